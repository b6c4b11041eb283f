package auth

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/goliatone/go-credential-broker/core"
	"golang.org/x/oauth2"
)

func normalizeValues(values []string) []string {
	if len(values) == 0 {
		return []string{}
	}
	seen := map[string]struct{}{}
	out := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		lowered := strings.ToLower(trimmed)
		if _, ok := seen[lowered]; ok {
			continue
		}
		seen[lowered] = struct{}{}
		out = append(out, trimmed)
	}
	sort.Strings(out)
	return out
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func withHTTPClient(ctx context.Context, client *http.Client) context.Context {
	if client == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, client)
}

func toExchangedToken(token *oauth2.Token) core.ExchangedToken {
	if token == nil {
		return core.ExchangedToken{}
	}
	return core.ExchangedToken{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
		ExpiresAt:    token.Expiry,
	}
}

// retrieveFailure unpacks an oauth2 token endpoint error into its HTTP status
// and the provider's own wording.
func retrieveFailure(err error) (status int, code string, reason string, ok bool) {
	var retrieveErr *oauth2.RetrieveError
	if !errors.As(err, &retrieveErr) {
		return 0, "", "", false
	}
	if retrieveErr.Response != nil {
		status = retrieveErr.Response.StatusCode
	}
	code = strings.TrimSpace(retrieveErr.ErrorCode)
	reason = firstNonEmpty(retrieveErr.ErrorDescription, retrieveErr.ErrorCode, string(retrieveErr.Body))
	return status, code, reason, true
}
