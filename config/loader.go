// Package config reads the broker's TOML file and BROKER_* environment
// overrides into the raw map the core config provider builds from.
package config

import (
	"context"
	"strings"
	"time"

	gconfig "github.com/goliatone/go-config/config"
	"github.com/goliatone/go-credential-broker/core"
	glog "github.com/goliatone/go-logger/glog"
)

const (
	EnvPrefix = "BROKER_"
	// EnvDelimiter separates nested keys in env names, so
	// BROKER_CALENDAR__DELEGATED_CLIENT_ID sets calendar.delegated_client_id.
	EnvDelimiter = "__"
)

type DatabaseSettings struct {
	Driver         string        `koanf:"driver"`
	DSN            string        `koanf:"dsn"`
	Debug          bool          `koanf:"debug"`
	PingTimeout    time.Duration `koanf:"ping_timeout"`
	TenantCacheTTL time.Duration `koanf:"tenant_cache_ttl"`
	// EncryptionKey enables sealing of stored tokens and secrets when set.
	EncryptionKey   string `koanf:"encryption_key"`
	EncryptionKeyID string `koanf:"encryption_key_id"`
}

type ServerSettings struct {
	Addr            string        `koanf:"addr"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// document is the part of the file the CLI owns. Everything else is handed
// to the core config provider untouched.
type document struct {
	Database DatabaseSettings `koanf:"database"`
	Server   ServerSettings   `koanf:"server"`
}

func (document) Validate() error { return nil }

// File is a decoded config file. Broker holds the sections the core config
// provider understands.
type File struct {
	Broker   map[string]any
	Database DatabaseSettings
	Server   ServerSettings
}

func DefaultServerSettings() ServerSettings {
	return ServerSettings{
		Addr:            ":8080",
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Load reads path, when set, and layers BROKER_* variables from the process
// environment on top. An empty path yields an environment-only config.
// Broker values are left as decoded; core.CfgxConfigProvider converts them.
func Load(ctx context.Context, path string, logger core.Logger) (File, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = glog.Nop()
	}
	doc := &document{Server: DefaultServerSettings()}
	container := gconfig.New(doc).
		WithLogger(logger).
		WithSolvers()

	providers := []gconfig.ProviderBuilder[*document]{
		gconfig.EnvProvider[*document](EnvPrefix, EnvDelimiter),
	}
	if path = strings.TrimSpace(path); path != "" {
		providers = append(providers, gconfig.FileProvider[*document](path))
	}
	container.WithProvider(providers...)

	if err := container.Load(ctx); err != nil {
		return File{}, err
	}

	raw := container.K.Raw()
	delete(raw, "database")
	delete(raw, "server")
	loaded := container.Raw()
	return File{
		Broker:   raw,
		Database: loaded.Database,
		Server:   loaded.Server,
	}, nil
}

// TOMLFileLoader is a core.RawConfigLoader over Load.
type TOMLFileLoader struct {
	Path   string
	Logger core.Logger
}

func NewTOMLFileLoader(path string, logger core.Logger) *TOMLFileLoader {
	return &TOMLFileLoader{Path: path, Logger: logger}
}

func (l *TOMLFileLoader) LoadRaw(ctx context.Context) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if l == nil {
		return map[string]any{}, nil
	}
	file, err := Load(ctx, l.Path, l.Logger)
	if err != nil {
		return nil, err
	}
	return file.Broker, nil
}

var _ core.RawConfigLoader = (*TOMLFileLoader)(nil)
