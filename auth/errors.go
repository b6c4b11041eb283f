package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/goliatone/go-credential-broker/core"
)

var rejectedGrantCodes = map[string]struct{}{
	"invalid_grant":        {},
	"interaction_required": {},
	"consent_required":     {},
	"login_required":       {},
}

// refreshFailure classifies a refresh-grant failure. A token endpoint that
// answers with a client error has rejected the grant for good.
func refreshFailure(record core.DelegatedTokenRecord, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return core.UpstreamUnavailable(err, "refresh token exchange interrupted")
	}
	status, code, reason, ok := retrieveFailure(err)
	if !ok {
		return core.UpstreamUnavailable(err, "token endpoint unreachable")
	}
	if _, rejected := rejectedGrantCodes[code]; rejected {
		return core.CredentialExpired(record.UserID, record.ProviderID, errors.New(reason))
	}
	if status == http.StatusBadRequest || status == http.StatusUnauthorized {
		return core.CredentialExpired(record.UserID, record.ProviderID, errors.New(reason))
	}
	return core.UpstreamRejected(status, reason)
}

// clientCredentialsFailure keeps the provider's wording; the lifecycle manager
// turns it into a configuration error for the tenant.
func clientCredentialsFailure(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	status, code, reason, ok := retrieveFailure(err)
	if !ok {
		return err
	}
	if code != "" && code != reason {
		return fmt.Errorf("%s (%d %s)", reason, status, code)
	}
	return fmt.Errorf("%s (%d)", reason, status)
}
