package core

import (
	"context"
	"errors"
	"strings"
	"time"
)

// MessagingCredentialResult is one entry of a bulk resolution; failures are
// isolated per tenant.
type MessagingCredentialResult struct {
	TenantID   string
	Credential MessagingCredential
	Err        error
}

// ResolveMessagingCredential picks the messaging token by precedence: the
// tenant's dedicated credential, then the shared integration it points at,
// then the process-wide default.
func (s *Service) ResolveMessagingCredential(ctx context.Context, tenantID string) (credential MessagingCredential, err error) {
	startedAt := time.Now()
	tenantID = strings.TrimSpace(tenantID)
	defer func() {
		s.observer.observeOperation(ctx, startedAt, "resolve_messaging_credential", err, map[string]any{
			"tenant_id":         tenantID,
			"credential_source": string(credential.Source),
		})
	}()
	if tenantID == "" {
		return MessagingCredential{}, BadInput("tenant id is required")
	}
	return s.resolveMessagingCredential(ctx, tenantID)
}

func (s *Service) resolveMessagingCredential(ctx context.Context, tenantID string) (MessagingCredential, error) {
	record, err := s.store.GetMessagingCredential(ctx, tenantID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return MessagingCredential{}, storeError(err, "failed to load messaging credential")
	}
	resolved := MessagingCredential{
		TenantID:            tenantID,
		CatalogID:           strings.TrimSpace(record.CatalogID),
		SharedIntegrationID: strings.TrimSpace(record.SharedIntegrationID),
	}
	sender := strings.TrimSpace(record.SenderID)

	if token := strings.TrimSpace(record.AccessToken); token != "" {
		resolved.AccessToken = token
		resolved.Source = MessagingSourceTenant
	}
	if resolved.AccessToken == "" && resolved.SharedIntegrationID != "" {
		shared, err := s.store.GetSharedIntegration(ctx, resolved.SharedIntegrationID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return MessagingCredential{}, storeError(err, "failed to load shared integration")
		}
		if token := strings.TrimSpace(shared.AccessToken); token != "" {
			resolved.AccessToken = token
			resolved.Source = MessagingSourceShared
			if sender == "" {
				sender = strings.TrimSpace(shared.SenderID)
			}
			if resolved.CatalogID == "" {
				resolved.CatalogID = strings.TrimSpace(shared.CatalogID)
			}
		}
	}
	if resolved.AccessToken == "" {
		if token := strings.TrimSpace(s.config.Messaging.DefaultAccessToken); token != "" {
			resolved.AccessToken = token
			resolved.Source = MessagingSourceDefault
		}
	}
	if sender == "" {
		sender = strings.TrimSpace(s.config.Messaging.DefaultSenderID)
	}

	if resolved.AccessToken == "" {
		return MessagingCredential{}, ConfigurationError(tenantID, "no messaging access token configured", "access_token")
	}
	if sender == "" {
		return MessagingCredential{}, ConfigurationError(tenantID, "no messaging sender id configured", "sender_id")
	}
	resolved.SenderID = sender
	return resolved, nil
}

// ResolveMessagingCredentials resolves each tenant independently and keeps the
// input order. A failing tenant never aborts the batch.
func (s *Service) ResolveMessagingCredentials(ctx context.Context, tenantIDs []string) []MessagingCredentialResult {
	results := make([]MessagingCredentialResult, 0, len(tenantIDs))
	for _, tenantID := range tenantIDs {
		if ctx.Err() != nil {
			results = append(results, MessagingCredentialResult{TenantID: tenantID, Err: ctx.Err()})
			continue
		}
		credential, err := s.ResolveMessagingCredential(ctx, tenantID)
		results = append(results, MessagingCredentialResult{
			TenantID:   strings.TrimSpace(tenantID),
			Credential: credential,
			Err:        err,
		})
	}
	return results
}
