package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-credential-broker/core"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

type OAuth2ExchangerConfig struct {
	// TokenURL may carry a {directory} placeholder.
	TokenURL        string
	ClientID        string
	ClientSecret    string
	Directory       string
	DelegatedScopes []string
	AppScopes       []string
	HTTPClient      *http.Client
	Timeout         time.Duration
}

// ConfigFromCalendar builds exchanger settings from the broker calendar config.
func ConfigFromCalendar(cfg core.CalendarConfig) OAuth2ExchangerConfig {
	return OAuth2ExchangerConfig{
		TokenURL:        cfg.TokenURL,
		ClientID:        cfg.DelegatedAppID,
		ClientSecret:    cfg.DelegatedSecret,
		Directory:       cfg.DelegatedTenant,
		DelegatedScopes: cfg.DelegatedScopes,
		AppScopes:       cfg.AppScopes,
	}
}

func (c OAuth2ExchangerConfig) tokenURLFor(directory string) string {
	return core.CalendarConfig{TokenURL: c.TokenURL}.TokenURLFor(directory)
}

func (c OAuth2ExchangerConfig) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// RefreshTokenExchanger runs the refresh-token grant against the platform's
// delegated app registration.
type RefreshTokenExchanger struct {
	config OAuth2ExchangerConfig
	client *http.Client
}

func NewRefreshTokenExchanger(cfg OAuth2ExchangerConfig) *RefreshTokenExchanger {
	cfg.TokenURL = strings.TrimSpace(cfg.TokenURL)
	cfg.ClientID = strings.TrimSpace(cfg.ClientID)
	cfg.ClientSecret = strings.TrimSpace(cfg.ClientSecret)
	cfg.DelegatedScopes = normalizeValues(cfg.DelegatedScopes)
	return &RefreshTokenExchanger{config: cfg, client: cfg.httpClient()}
}

func (e *RefreshTokenExchanger) Refresh(ctx context.Context, record core.DelegatedTokenRecord) (core.ExchangedToken, error) {
	if e == nil || e.config.TokenURL == "" {
		return core.ExchangedToken{}, core.ConfigurationError("", "refresh token endpoint is not configured")
	}
	if e.config.ClientID == "" {
		return core.ExchangedToken{}, core.ConfigurationError("", "delegated client id is not configured", "delegated_client_id")
	}
	refreshToken := strings.TrimSpace(record.RefreshToken)
	if refreshToken == "" {
		return core.ExchangedToken{}, core.CredentialExpired(record.UserID, record.ProviderID, nil)
	}

	conf := &oauth2.Config{
		ClientID:     e.config.ClientID,
		ClientSecret: e.config.ClientSecret,
		Scopes:       e.config.DelegatedScopes,
		Endpoint: oauth2.Endpoint{
			TokenURL:  e.config.tokenURLFor(e.config.Directory),
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	// An empty access token forces the source to run the refresh grant.
	source := conf.TokenSource(withHTTPClient(ctx, e.client), &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		return core.ExchangedToken{}, refreshFailure(record, err)
	}
	exchanged := toExchangedToken(token)
	if exchanged.RefreshToken == refreshToken {
		exchanged.RefreshToken = ""
	}
	return exchanged, nil
}

// ClientCredentialsExchanger runs the client-credentials grant with the
// tenant's own app registration.
type ClientCredentialsExchanger struct {
	config OAuth2ExchangerConfig
	client *http.Client
}

func NewClientCredentialsExchanger(cfg OAuth2ExchangerConfig) *ClientCredentialsExchanger {
	cfg.TokenURL = strings.TrimSpace(cfg.TokenURL)
	cfg.AppScopes = normalizeValues(cfg.AppScopes)
	if len(cfg.AppScopes) == 0 {
		cfg.AppScopes = []string{core.DefaultGraphAppScope}
	}
	return &ClientCredentialsExchanger{config: cfg, client: cfg.httpClient()}
}

func (e *ClientCredentialsExchanger) ClientCredentials(ctx context.Context, creds core.TenantCredentials) (core.ExchangedToken, error) {
	if e == nil || e.config.TokenURL == "" {
		return core.ExchangedToken{}, core.ConfigurationError(creds.TenantID, "client credentials endpoint is not configured")
	}
	if missing := creds.MissingAppFields(); len(missing) > 0 {
		return core.ExchangedToken{}, core.ConfigurationError(creds.TenantID, "tenant app registration is incomplete", missing...)
	}

	conf := &clientcredentials.Config{
		ClientID:     strings.TrimSpace(creds.AppClientID),
		ClientSecret: strings.TrimSpace(creds.AppClientSecret),
		TokenURL:     e.config.tokenURLFor(creds.AppDirectoryID),
		Scopes:       e.config.AppScopes,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	token, err := conf.Token(withHTTPClient(ctx, e.client))
	if err != nil {
		return core.ExchangedToken{}, clientCredentialsFailure(err)
	}
	if token == nil || strings.TrimSpace(token.AccessToken) == "" {
		return core.ExchangedToken{}, fmt.Errorf("client credentials response for tenant %q did not include an access token", creds.TenantID)
	}
	return toExchangedToken(token), nil
}

var (
	_ core.RefreshExchanger  = (*RefreshTokenExchanger)(nil)
	_ core.AppTokenExchanger = (*ClientCredentialsExchanger)(nil)
)
