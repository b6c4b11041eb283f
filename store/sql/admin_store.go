package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-credential-broker/core"
	"github.com/google/uuid"
)

// The writes below are administrative: the broker itself never writes tenant,
// messaging or profile records. They back seeding, the CLI and tests.

func (s *CredentialStore) PutTenantCredentials(ctx context.Context, in core.TenantCredentials) error {
	if err := s.configured(); err != nil {
		return err
	}
	if err := s.secrets.SealAll(ctx, &in.AppClientSecret); err != nil {
		return fmt.Errorf("sqlstore: seal tenant secret: %w", err)
	}
	record := newTenantCredentialRecord(in, s.now())
	if record.TenantID == "" {
		return fmt.Errorf("sqlstore: tenant id is required")
	}
	record.ID = uuid.NewString()
	_, err := s.db.NewInsert().
		Model(record).
		On("CONFLICT (tenant_id) DO UPDATE").
		Set("app_client_id = EXCLUDED.app_client_id").
		Set("app_client_secret = EXCLUDED.app_client_secret").
		Set("app_directory_id = EXCLUDED.app_directory_id").
		Set("coordinator_mailbox = EXCLUDED.coordinator_mailbox").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (s *CredentialStore) PutSharedIntegration(ctx context.Context, in core.SharedIntegration) error {
	if err := s.configured(); err != nil {
		return err
	}
	if err := s.secrets.SealAll(ctx, &in.AccessToken); err != nil {
		return fmt.Errorf("sqlstore: seal shared integration token: %w", err)
	}
	record := newSharedIntegrationRecord(in, s.now())
	if record.ID == "" {
		return fmt.Errorf("sqlstore: shared integration id is required")
	}
	_, err := s.db.NewInsert().
		Model(record).
		On("CONFLICT (id) DO UPDATE").
		Set("access_token = EXCLUDED.access_token").
		Set("sender_id = EXCLUDED.sender_id").
		Set("catalog_id = EXCLUDED.catalog_id").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (s *CredentialStore) PutMessagingCredential(ctx context.Context, in core.MessagingCredential) error {
	if err := s.configured(); err != nil {
		return err
	}
	if err := s.secrets.SealAll(ctx, &in.AccessToken); err != nil {
		return fmt.Errorf("sqlstore: seal messaging token: %w", err)
	}
	record := newMessagingCredentialRecord(in, s.now())
	if record.TenantID == "" {
		return fmt.Errorf("sqlstore: tenant id is required")
	}
	record.ID = uuid.NewString()
	_, err := s.db.NewInsert().
		Model(record).
		On("CONFLICT (tenant_id) DO UPDATE").
		Set("access_token = EXCLUDED.access_token").
		Set("sender_id = EXCLUDED.sender_id").
		Set("catalog_id = EXCLUDED.catalog_id").
		Set("shared_integration_id = EXCLUDED.shared_integration_id").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (s *CredentialStore) PutUserProfile(ctx context.Context, in core.UserProfile) error {
	if err := s.configured(); err != nil {
		return err
	}
	record := newUserProfileRecord(in, s.now())
	if strings.TrimSpace(record.UserID) == "" {
		return fmt.Errorf("sqlstore: user id is required")
	}
	record.ID = uuid.NewString()
	_, err := s.db.NewInsert().
		Model(record).
		On("CONFLICT (user_id) DO UPDATE").
		Set("provider_mailbox = EXCLUDED.provider_mailbox").
		Set("provider_email = EXCLUDED.provider_email").
		Set("linked_account_email = EXCLUDED.linked_account_email").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}
