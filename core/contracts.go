package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type TenantCredentialStore interface {
	GetTenantCredentials(ctx context.Context, tenantID string) (TenantCredentials, error)
}

// TenantCredentialReloader is implemented by caching stores that can read
// through to the backing store.
type TenantCredentialReloader interface {
	ReloadTenantCredentials(ctx context.Context, tenantID string) (TenantCredentials, error)
}

type DelegatedTokenStore interface {
	GetDelegatedToken(ctx context.Context, userID string, providerID string) (DelegatedTokenRecord, error)
	// PutDelegatedToken upserts by (UserID, ProviderID). A record with Version > 0
	// is only written when the stored version matches, otherwise ErrStaleWrite.
	PutDelegatedToken(ctx context.Context, record DelegatedTokenRecord) (DelegatedTokenRecord, error)
	DeleteDelegatedToken(ctx context.Context, userID string, providerID string) error
}

type MessagingCredentialStore interface {
	GetMessagingCredential(ctx context.Context, tenantID string) (MessagingCredential, error)
	GetSharedIntegration(ctx context.Context, id string) (SharedIntegration, error)
}

type UserProfileStore interface {
	GetUserProfile(ctx context.Context, userID string) (UserProfile, error)
}

// CredentialStore is the document store the broker reads and writes.
type CredentialStore interface {
	TenantCredentialStore
	DelegatedTokenStore
	MessagingCredentialStore
	UserProfileStore
}

// ExchangedToken is the result of a token endpoint exchange.
type ExchangedToken struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresAt    time.Time
}

// RefreshExchanger performs the refresh-token grant for delegated tokens.
type RefreshExchanger interface {
	Refresh(ctx context.Context, record DelegatedTokenRecord) (ExchangedToken, error)
}

// AppTokenExchanger performs the client-credentials grant for app-only tokens.
type AppTokenExchanger interface {
	ClientCredentials(ctx context.Context, creds TenantCredentials) (ExchangedToken, error)
}

type TransportRequest struct {
	Method  string
	Path    string
	Headers map[string]string
	Query   map[string]string
	Body    []byte
	Timeout time.Duration
}

type TransportResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
}

// ReadOptions parameterises a read against a provider collection.
type ReadOptions struct {
	Query   map[string]string
	Select  []string
	Top     int
	Headers map[string]string
}

// IntegrationClient is bound to one bearer token and one provider base URL.
// It attaches the token and surfaces upstream failures verbatim; it never
// retries, caches, or rate limits.
type IntegrationClient interface {
	BaseURL() string
	Get(ctx context.Context, path string, opts ReadOptions) (TransportResponse, error)
	Do(ctx context.Context, req TransportRequest) (TransportResponse, error)
}

type ClientFactory func(baseURL string, bearerToken string) IntegrationClient

type PersistBackoffScheduler interface {
	NextDelay(attempt int) time.Duration
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type Clock func() time.Time
