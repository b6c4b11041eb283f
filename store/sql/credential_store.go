package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/goliatone/go-credential-broker/core"
	"github.com/goliatone/go-credential-broker/security"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// CredentialStore implements core.CredentialStore on bun. Reads go through
// typed repositories; writes are dialect-neutral upserts.
type CredentialStore struct {
	db        *bun.DB
	tenants   repository.Repository[*tenantCredentialRecord]
	delegated repository.Repository[*delegatedTokenRecord]
	messaging repository.Repository[*messagingCredentialRecord]
	shared    repository.Repository[*sharedIntegrationRecord]
	profiles  repository.Repository[*userProfileRecord]
	secrets   *security.FieldSealer
	now       func() time.Time
}

type StoreOption func(*CredentialStore)

// WithSecretProvider seals tokens and client secrets before they are written.
// Rows written before encryption was enabled are still read as stored.
func WithSecretProvider(provider security.SecretProvider) StoreOption {
	return func(s *CredentialStore) {
		s.secrets = security.NewFieldSealer(provider)
	}
}

func NewCredentialStore(db *bun.DB, opts ...StoreOption) (*CredentialStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	store := &CredentialStore{
		db:        db,
		tenants:   repository.NewRepository[*tenantCredentialRecord](db, tenantCredentialHandlers()),
		delegated: repository.NewRepository[*delegatedTokenRecord](db, delegatedTokenHandlers()),
		messaging: repository.NewRepository[*messagingCredentialRecord](db, messagingCredentialHandlers()),
		shared:    repository.NewRepository[*sharedIntegrationRecord](db, sharedIntegrationHandlers()),
		profiles:  repository.NewRepository[*userProfileRecord](db, userProfileHandlers()),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	for name, repo := range map[string]any{
		"tenant credential":    store.tenants,
		"delegated token":      store.delegated,
		"messaging credential": store.messaging,
		"shared integration":   store.shared,
		"user profile":         store.profiles,
	} {
		if validator, ok := repo.(repository.Validator); ok {
			if err := validator.Validate(); err != nil {
				return nil, fmt.Errorf("sqlstore: invalid %s repository wiring: %w", name, err)
			}
		}
	}
	return store, nil
}

func (s *CredentialStore) configured() error {
	if s == nil || s.db == nil || s.tenants == nil {
		return fmt.Errorf("sqlstore: credential store is not configured")
	}
	return nil
}

func (s *CredentialStore) GetTenantCredentials(ctx context.Context, tenantID string) (core.TenantCredentials, error) {
	if err := s.configured(); err != nil {
		return core.TenantCredentials{}, err
	}
	record, err := firstRecord(ctx, s.tenants, repository.SelectBy("tenant_id", "=", strings.TrimSpace(tenantID)))
	if err != nil {
		return core.TenantCredentials{}, err
	}
	out := record.toDomain()
	if err := s.secrets.OpenAll(ctx, &out.AppClientSecret); err != nil {
		return core.TenantCredentials{}, fmt.Errorf("sqlstore: open tenant %s secret: %w", out.TenantID, err)
	}
	return out, nil
}

func (s *CredentialStore) GetDelegatedToken(ctx context.Context, userID string, providerID string) (core.DelegatedTokenRecord, error) {
	if err := s.configured(); err != nil {
		return core.DelegatedTokenRecord{}, err
	}
	record, err := firstRecord(ctx, s.delegated,
		repository.SelectBy("user_id", "=", strings.TrimSpace(userID)),
		repository.SelectBy("provider_id", "=", normalizeProviderID(providerID)),
	)
	if err != nil {
		return core.DelegatedTokenRecord{}, err
	}
	out := record.toDomain()
	if err := s.secrets.OpenAll(ctx, &out.AccessToken, &out.RefreshToken); err != nil {
		return core.DelegatedTokenRecord{}, fmt.Errorf("sqlstore: open delegated token for %s: %w", out.UserID, err)
	}
	return out, nil
}

// PutDelegatedToken upserts by (user, provider). A record carrying Version > 0
// is written only when the stored version still matches; the returned record
// carries the new version.
func (s *CredentialStore) PutDelegatedToken(ctx context.Context, in core.DelegatedTokenRecord) (core.DelegatedTokenRecord, error) {
	if err := s.configured(); err != nil {
		return core.DelegatedTokenRecord{}, err
	}
	in.UserID = strings.TrimSpace(in.UserID)
	in.ProviderID = normalizeProviderID(in.ProviderID)
	if in.UserID == "" || in.ProviderID == "" {
		return core.DelegatedTokenRecord{}, fmt.Errorf("sqlstore: user id and provider id are required")
	}
	now := s.now()
	plainAccess, plainRefresh := in.AccessToken, in.RefreshToken
	if err := s.secrets.SealAll(ctx, &in.AccessToken, &in.RefreshToken); err != nil {
		return core.DelegatedTokenRecord{}, fmt.Errorf("sqlstore: seal delegated token: %w", err)
	}

	var out core.DelegatedTokenRecord
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		current, err := findDelegatedTokenTx(ctx, tx, in.UserID, in.ProviderID)
		if err != nil {
			return err
		}
		if current == nil {
			if in.Version > 0 {
				return core.ErrStaleWrite
			}
			record := newDelegatedTokenRecord(in, now)
			record.ID = uuid.NewString()
			if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
				if isUniqueViolation(err) {
					return core.ErrStaleWrite
				}
				return err
			}
			out = record.toDomain()
			return nil
		}

		expected := in.Version
		if expected == 0 {
			expected = current.Version
		}
		next := newDelegatedTokenRecord(in, now)
		res, err := tx.NewUpdate().
			Model((*delegatedTokenRecord)(nil)).
			Set("access_token = ?", next.AccessToken).
			Set("refresh_token = ?", next.RefreshToken).
			Set("expires_at = ?", nullableTime(next.ExpiresAt)).
			Set("bound_mailbox = ?", next.BoundMailbox).
			Set("version = ?", expected+1).
			Set("updated_at = ?", now).
			Where("id = ?", current.ID).
			Where("version = ?", expected).
			Exec(ctx)
		if err != nil {
			return err
		}
		if affected, err := res.RowsAffected(); err == nil && affected == 0 {
			return core.ErrStaleWrite
		}
		next.ID = current.ID
		next.CreatedAt = current.CreatedAt
		next.Version = expected + 1
		out = next.toDomain()
		return nil
	})
	if err != nil {
		return core.DelegatedTokenRecord{}, err
	}
	out.AccessToken, out.RefreshToken = plainAccess, plainRefresh
	return out, nil
}

func (s *CredentialStore) DeleteDelegatedToken(ctx context.Context, userID string, providerID string) error {
	if err := s.configured(); err != nil {
		return err
	}
	res, err := s.db.NewDelete().
		Model((*delegatedTokenRecord)(nil)).
		Where("user_id = ?", strings.TrimSpace(userID)).
		Where("provider_id = ?", normalizeProviderID(providerID)).
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *CredentialStore) GetMessagingCredential(ctx context.Context, tenantID string) (core.MessagingCredential, error) {
	if err := s.configured(); err != nil {
		return core.MessagingCredential{}, err
	}
	record, err := firstRecord(ctx, s.messaging, repository.SelectBy("tenant_id", "=", strings.TrimSpace(tenantID)))
	if err != nil {
		return core.MessagingCredential{}, err
	}
	out := record.toDomain()
	if err := s.secrets.OpenAll(ctx, &out.AccessToken); err != nil {
		return core.MessagingCredential{}, fmt.Errorf("sqlstore: open messaging token for %s: %w", out.TenantID, err)
	}
	return out, nil
}

func (s *CredentialStore) GetSharedIntegration(ctx context.Context, id string) (core.SharedIntegration, error) {
	if err := s.configured(); err != nil {
		return core.SharedIntegration{}, err
	}
	record, err := firstRecord(ctx, s.shared, repository.SelectBy("id", "=", strings.TrimSpace(id)))
	if err != nil {
		return core.SharedIntegration{}, err
	}
	out := record.toDomain()
	if err := s.secrets.OpenAll(ctx, &out.AccessToken); err != nil {
		return core.SharedIntegration{}, fmt.Errorf("sqlstore: open shared integration %s token: %w", out.ID, err)
	}
	return out, nil
}

func (s *CredentialStore) GetUserProfile(ctx context.Context, userID string) (core.UserProfile, error) {
	if err := s.configured(); err != nil {
		return core.UserProfile{}, err
	}
	record, err := firstRecord(ctx, s.profiles, repository.SelectBy("user_id", "=", strings.TrimSpace(userID)))
	if err != nil {
		return core.UserProfile{}, err
	}
	return record.toDomain(), nil
}

// ListTenantIDs returns every tenant with an app registration or a messaging
// credential, sorted.
func (s *CredentialStore) ListTenantIDs(ctx context.Context) ([]string, error) {
	if err := s.configured(); err != nil {
		return nil, err
	}
	var ids []string
	for _, model := range []any{(*tenantCredentialRecord)(nil), (*messagingCredentialRecord)(nil)} {
		var batch []string
		if err := s.db.NewSelect().Model(model).Column("tenant_id").Scan(ctx, &batch); err != nil {
			return nil, err
		}
		ids = append(ids, batch...)
	}
	return sortedUnique(ids), nil
}

func firstRecord[T any](ctx context.Context, repo repository.Repository[T], criteria ...repository.SelectCriteria) (T, error) {
	var zero T
	criteria = append(criteria, repository.SelectPaginate(1, 0))
	records, _, err := repo.List(ctx, criteria...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return zero, core.ErrNotFound
		}
		return zero, err
	}
	if len(records) == 0 {
		return zero, core.ErrNotFound
	}
	return records[0], nil
}

func findDelegatedTokenTx(ctx context.Context, tx bun.Tx, userID string, providerID string) (*delegatedTokenRecord, error) {
	record := &delegatedTokenRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.user_id = ?", userID).
		Where("?TableAlias.provider_id = ?", providerID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

func sortedUnique(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func nullableTime(value time.Time) any {
	if value.IsZero() {
		return nil
	}
	return value.UTC()
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}
