package sqlstore

import (
	"strings"
	"time"

	"github.com/goliatone/go-credential-broker/core"
	"github.com/uptrace/bun"
)

type tenantCredentialRecord struct {
	bun.BaseModel `bun:"table:broker_tenant_credentials,alias:btc"`

	ID                 string    `bun:"id,pk"`
	TenantID           string    `bun:"tenant_id,notnull"`
	AppClientID        string    `bun:"app_client_id,notnull"`
	AppClientSecret    string    `bun:"app_client_secret,notnull"`
	AppDirectoryID     string    `bun:"app_directory_id,notnull"`
	CoordinatorMailbox string    `bun:"coordinator_mailbox,notnull"`
	CreatedAt          time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt          time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type delegatedTokenRecord struct {
	bun.BaseModel `bun:"table:broker_delegated_tokens,alias:bdt"`

	ID           string    `bun:"id,pk"`
	UserID       string    `bun:"user_id,notnull"`
	ProviderID   string    `bun:"provider_id,notnull"`
	AccessToken  string    `bun:"access_token,notnull"`
	RefreshToken string    `bun:"refresh_token,notnull"`
	ExpiresAt    time.Time `bun:"expires_at,nullzero"`
	BoundMailbox string    `bun:"bound_mailbox,notnull"`
	Version      int       `bun:"version,notnull"`
	CreatedAt    time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt    time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type messagingCredentialRecord struct {
	bun.BaseModel `bun:"table:broker_messaging_credentials,alias:bmc"`

	ID                  string    `bun:"id,pk"`
	TenantID            string    `bun:"tenant_id,notnull"`
	AccessToken         string    `bun:"access_token,notnull"`
	SenderID            string    `bun:"sender_id,notnull"`
	CatalogID           string    `bun:"catalog_id,notnull"`
	SharedIntegrationID *string   `bun:"shared_integration_id"`
	CreatedAt           time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt           time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type sharedIntegrationRecord struct {
	bun.BaseModel `bun:"table:broker_shared_integrations,alias:bsi"`

	ID          string    `bun:"id,pk"`
	AccessToken string    `bun:"access_token,notnull"`
	SenderID    string    `bun:"sender_id,notnull"`
	CatalogID   string    `bun:"catalog_id,notnull"`
	CreatedAt   time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt   time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type userProfileRecord struct {
	bun.BaseModel `bun:"table:broker_user_profiles,alias:bup"`

	ID                 string    `bun:"id,pk"`
	UserID             string    `bun:"user_id,notnull"`
	ProviderMailbox    string    `bun:"provider_mailbox,notnull"`
	ProviderEmail      string    `bun:"provider_email,notnull"`
	LinkedAccountEmail string    `bun:"linked_account_email,notnull"`
	CreatedAt          time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt          time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func newTenantCredentialRecord(in core.TenantCredentials, now time.Time) *tenantCredentialRecord {
	return &tenantCredentialRecord{
		TenantID:           strings.TrimSpace(in.TenantID),
		AppClientID:        strings.TrimSpace(in.AppClientID),
		AppClientSecret:    strings.TrimSpace(in.AppClientSecret),
		AppDirectoryID:     strings.TrimSpace(in.AppDirectoryID),
		CoordinatorMailbox: strings.TrimSpace(in.CoordinatorMailbox),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

func (r *tenantCredentialRecord) toDomain() core.TenantCredentials {
	if r == nil {
		return core.TenantCredentials{}
	}
	return core.TenantCredentials{
		TenantID:           r.TenantID,
		AppClientID:        r.AppClientID,
		AppClientSecret:    r.AppClientSecret,
		AppDirectoryID:     r.AppDirectoryID,
		CoordinatorMailbox: r.CoordinatorMailbox,
		UpdatedAt:          r.UpdatedAt.UTC(),
	}
}

func newDelegatedTokenRecord(in core.DelegatedTokenRecord, now time.Time) *delegatedTokenRecord {
	record := &delegatedTokenRecord{
		UserID:       strings.TrimSpace(in.UserID),
		ProviderID:   normalizeProviderID(in.ProviderID),
		AccessToken:  in.AccessToken,
		RefreshToken: in.RefreshToken,
		BoundMailbox: strings.TrimSpace(in.BoundMailbox),
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if !in.ExpiresAt.IsZero() {
		record.ExpiresAt = in.ExpiresAt.UTC()
	}
	return record
}

func (r *delegatedTokenRecord) toDomain() core.DelegatedTokenRecord {
	if r == nil {
		return core.DelegatedTokenRecord{}
	}
	out := core.DelegatedTokenRecord{
		UserID:       r.UserID,
		ProviderID:   r.ProviderID,
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		BoundMailbox: r.BoundMailbox,
		Version:      r.Version,
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
	if !r.ExpiresAt.IsZero() {
		out.ExpiresAt = r.ExpiresAt.UTC()
	}
	return out
}

func newMessagingCredentialRecord(in core.MessagingCredential, now time.Time) *messagingCredentialRecord {
	record := &messagingCredentialRecord{
		TenantID:    strings.TrimSpace(in.TenantID),
		AccessToken: strings.TrimSpace(in.AccessToken),
		SenderID:    strings.TrimSpace(in.SenderID),
		CatalogID:   strings.TrimSpace(in.CatalogID),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if shared := strings.TrimSpace(in.SharedIntegrationID); shared != "" {
		record.SharedIntegrationID = &shared
	}
	return record
}

func (r *messagingCredentialRecord) toDomain() core.MessagingCredential {
	if r == nil {
		return core.MessagingCredential{}
	}
	out := core.MessagingCredential{
		TenantID:    r.TenantID,
		AccessToken: r.AccessToken,
		SenderID:    r.SenderID,
		CatalogID:   r.CatalogID,
	}
	if r.SharedIntegrationID != nil {
		out.SharedIntegrationID = *r.SharedIntegrationID
	}
	return out
}

func newSharedIntegrationRecord(in core.SharedIntegration, now time.Time) *sharedIntegrationRecord {
	return &sharedIntegrationRecord{
		ID:          strings.TrimSpace(in.ID),
		AccessToken: strings.TrimSpace(in.AccessToken),
		SenderID:    strings.TrimSpace(in.SenderID),
		CatalogID:   strings.TrimSpace(in.CatalogID),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (r *sharedIntegrationRecord) toDomain() core.SharedIntegration {
	if r == nil {
		return core.SharedIntegration{}
	}
	return core.SharedIntegration{
		ID:          r.ID,
		AccessToken: r.AccessToken,
		SenderID:    r.SenderID,
		CatalogID:   r.CatalogID,
	}
}

func newUserProfileRecord(in core.UserProfile, now time.Time) *userProfileRecord {
	return &userProfileRecord{
		UserID:             strings.TrimSpace(in.UserID),
		ProviderMailbox:    strings.TrimSpace(in.ProviderMailbox),
		ProviderEmail:      strings.TrimSpace(in.ProviderEmail),
		LinkedAccountEmail: strings.TrimSpace(in.LinkedAccountEmail),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

func (r *userProfileRecord) toDomain() core.UserProfile {
	if r == nil {
		return core.UserProfile{}
	}
	return core.UserProfile{
		UserID:             r.UserID,
		ProviderMailbox:    r.ProviderMailbox,
		ProviderEmail:      r.ProviderEmail,
		LinkedAccountEmail: r.LinkedAccountEmail,
	}
}

func normalizeProviderID(providerID string) string {
	return strings.ToLower(strings.TrimSpace(providerID))
}
