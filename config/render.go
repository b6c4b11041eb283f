package config

import (
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/goliatone/go-credential-broker/core"
)

// Render writes the effective configuration as TOML. Secrets are masked and
// durations use ParseDuration syntax so the output loads back as a file.
func Render(w io.Writer, file File, cfg core.Config) error {
	doc := map[string]any{
		"service_name": cfg.ServiceName,
		"calendar": map[string]any{
			"provider_id":             cfg.Calendar.ProviderID,
			"base_url":                cfg.Calendar.BaseURL,
			"token_url":               cfg.Calendar.TokenURL,
			"delegated_scopes":        nonNil(cfg.Calendar.DelegatedScopes),
			"app_scopes":              nonNil(cfg.Calendar.AppScopes),
			"delegated_client_id":     cfg.Calendar.DelegatedAppID,
			"delegated_client_secret": mask(cfg.Calendar.DelegatedSecret),
			"delegated_directory":     cfg.Calendar.DelegatedTenant,
			"meeting_page_size":       cfg.Calendar.MeetingPageSize,
		},
		"tokens": map[string]any{
			"refresh_skew":     durationText(cfg.Tokens.RefreshSkew),
			"refresh_timeout":  durationText(cfg.Tokens.RefreshTimeout),
			"persist_attempts": cfg.Tokens.PersistAttempts,
			"cache_app_tokens": cfg.Tokens.CacheAppTokens,
		},
		"messaging": map[string]any{
			"base_url":             cfg.Messaging.BaseURL,
			"api_version":          cfg.Messaging.APIVersion,
			"default_access_token": mask(cfg.Messaging.DefaultAccessToken),
			"default_sender_id":    cfg.Messaging.DefaultSenderID,
			"lead_template":        cfg.Messaging.LeadTemplate,
			"lead_template_locale": cfg.Messaging.LeadTemplateLocale,
		},
		"meetings": map[string]any{
			"look_back":  durationText(cfg.Meetings.LookBack),
			"look_ahead": durationText(cfg.Meetings.LookAhead),
		},
		"database": map[string]any{
			"driver":            file.Database.Driver,
			"dsn":               mask(file.Database.DSN),
			"debug":             file.Database.Debug,
			"ping_timeout":      durationText(file.Database.PingTimeout),
			"tenant_cache_ttl":  durationText(file.Database.TenantCacheTTL),
			"encryption_key":    mask(file.Database.EncryptionKey),
			"encryption_key_id": file.Database.EncryptionKeyID,
		},
		"server": map[string]any{
			"addr":             file.Server.Addr,
			"read_timeout":     durationText(file.Server.ReadTimeout),
			"write_timeout":    durationText(file.Server.WriteTimeout),
			"shutdown_timeout": durationText(file.Server.ShutdownTimeout),
		},
	}
	return toml.NewEncoder(w).Encode(doc)
}

func mask(value string) string {
	if strings.TrimSpace(value) == "" {
		return ""
	}
	return core.RedactedValue
}

func durationText(value time.Duration) string {
	if value <= 0 {
		return "0s"
	}
	if value%(24*time.Hour) == 0 {
		return strconv.FormatInt(int64(value/(24*time.Hour)), 10) + "d"
	}
	return value.String()
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
