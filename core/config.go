package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	DefaultGraphBaseURL        = "https://graph.microsoft.com/v1.0"
	DefaultGraphTokenURL       = "https://login.microsoftonline.com/{directory}/oauth2/v2.0/token"
	DefaultGraphAppScope       = "https://graph.microsoft.com/.default"
	DefaultMessagingBaseURL    = "https://graph.facebook.com"
	DefaultMessagingAPIVersion = "v23.0"
	DefaultMeetingPageSize     = 50
	DefaultRefreshSkew         = 5 * time.Minute
	DefaultRefreshTimeout      = 30 * time.Second
	DefaultPersistAttempts     = 3
	DefaultMeetingsLookBack    = 15 * 24 * time.Hour
	DefaultMeetingsLookAhead   = 30 * 24 * time.Hour
)

type CalendarConfig struct {
	ProviderID      string   `koanf:"provider_id" mapstructure:"provider_id"`
	BaseURL         string   `koanf:"base_url" mapstructure:"base_url"`
	TokenURL        string   `koanf:"token_url" mapstructure:"token_url"`
	DelegatedScopes []string `koanf:"delegated_scopes" mapstructure:"delegated_scopes"`
	AppScopes       []string `koanf:"app_scopes" mapstructure:"app_scopes"`
	DelegatedAppID  string   `koanf:"delegated_client_id" mapstructure:"delegated_client_id"`
	DelegatedSecret string   `koanf:"delegated_client_secret" mapstructure:"delegated_client_secret"`
	DelegatedTenant string   `koanf:"delegated_directory" mapstructure:"delegated_directory"`
	MeetingPageSize int      `koanf:"meeting_page_size" mapstructure:"meeting_page_size"`
}

type TokenConfig struct {
	RefreshSkew     time.Duration `koanf:"refresh_skew" mapstructure:"refresh_skew"`
	RefreshTimeout  time.Duration `koanf:"refresh_timeout" mapstructure:"refresh_timeout"`
	PersistAttempts int           `koanf:"persist_attempts" mapstructure:"persist_attempts"`
	CacheAppTokens  bool          `koanf:"cache_app_tokens" mapstructure:"cache_app_tokens"`
}

type MessagingConfig struct {
	BaseURL            string `koanf:"base_url" mapstructure:"base_url"`
	APIVersion         string `koanf:"api_version" mapstructure:"api_version"`
	DefaultAccessToken string `koanf:"default_access_token" mapstructure:"default_access_token"`
	DefaultSenderID    string `koanf:"default_sender_id" mapstructure:"default_sender_id"`
	LeadTemplate       string `koanf:"lead_template" mapstructure:"lead_template"`
	LeadTemplateLocale string `koanf:"lead_template_locale" mapstructure:"lead_template_locale"`
}

type MeetingsConfig struct {
	LookBack  time.Duration `koanf:"look_back" mapstructure:"look_back"`
	LookAhead time.Duration `koanf:"look_ahead" mapstructure:"look_ahead"`
}

type Config struct {
	ServiceName string          `koanf:"service_name" mapstructure:"service_name"`
	Calendar    CalendarConfig  `koanf:"calendar" mapstructure:"calendar"`
	Tokens      TokenConfig     `koanf:"tokens" mapstructure:"tokens"`
	Messaging   MessagingConfig `koanf:"messaging" mapstructure:"messaging"`
	Meetings    MeetingsConfig  `koanf:"meetings" mapstructure:"meetings"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "credential-broker",
		Calendar: CalendarConfig{
			ProviderID: DefaultCalendarProviderID,
			BaseURL:    DefaultGraphBaseURL,
			TokenURL:   DefaultGraphTokenURL,
			DelegatedScopes: []string{
				"offline_access",
				"Calendars.Read",
				"OnlineMeetings.Read",
			},
			AppScopes:       []string{DefaultGraphAppScope},
			MeetingPageSize: DefaultMeetingPageSize,
		},
		Tokens: TokenConfig{
			RefreshSkew:     DefaultRefreshSkew,
			RefreshTimeout:  DefaultRefreshTimeout,
			PersistAttempts: DefaultPersistAttempts,
			CacheAppTokens:  true,
		},
		Messaging: MessagingConfig{
			BaseURL:            DefaultMessagingBaseURL,
			APIVersion:         DefaultMessagingAPIVersion,
			LeadTemplate:       "lead_acknowledgement",
			LeadTemplateLocale: "en",
		},
		Meetings: MeetingsConfig{
			LookBack:  DefaultMeetingsLookBack,
			LookAhead: DefaultMeetingsLookAhead,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if strings.TrimSpace(c.Calendar.BaseURL) == "" {
		return fmt.Errorf("core: calendar.base_url is required")
	}
	if strings.TrimSpace(c.Calendar.TokenURL) == "" {
		return fmt.Errorf("core: calendar.token_url is required")
	}
	if c.Calendar.MeetingPageSize < 0 || c.Calendar.MeetingPageSize > DefaultMeetingPageSize {
		return fmt.Errorf("core: calendar.meeting_page_size must be between 1 and %d", DefaultMeetingPageSize)
	}
	if c.Tokens.RefreshSkew < 0 {
		return fmt.Errorf("core: tokens.refresh_skew must not be negative")
	}
	if strings.TrimSpace(c.Messaging.BaseURL) == "" {
		return fmt.Errorf("core: messaging.base_url is required")
	}
	return nil
}

// TokenURLFor expands the {directory} placeholder of the configured token URL.
func (c CalendarConfig) TokenURLFor(directoryID string) string {
	directoryID = strings.TrimSpace(directoryID)
	if directoryID == "" {
		directoryID = "common"
	}
	return strings.ReplaceAll(strings.TrimSpace(c.TokenURL), "{directory}", directoryID)
}
