package main

import (
	"context"
	"fmt"
	"strings"

	broker "github.com/goliatone/go-credential-broker"
	"github.com/goliatone/go-credential-broker/adapters/gologger"
	"github.com/goliatone/go-credential-broker/config"
	"github.com/goliatone/go-credential-broker/core"
	"github.com/goliatone/go-credential-broker/security"
	sqlstore "github.com/goliatone/go-credential-broker/store/sql"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const (
	defaultDriver = "sqlite3"
	defaultDSN    = "file:credential-broker.db?_foreign_keys=on"
)

type app struct {
	file   config.File
	client *persistence.Client
	store  *sqlstore.CredentialStore
	broker *broker.Broker
	logger core.Logger
}

func openApp(ctx context.Context, opts *rootOptions) (*app, error) {
	root := gologger.New(gologger.Options{Level: opts.logLevel, Format: opts.logFormat})
	provider := gologger.NewProvider(root)
	logger := provider.GetLogger("credbroker")
	configLogger := provider.GetLogger("config")

	file, err := config.Load(ctx, opts.configPath, configLogger)
	if err != nil {
		return nil, err
	}
	dbConfig := databaseConfig(file.Database, opts)

	client, err := sqlstore.Open(ctx, dbConfig)
	if err != nil {
		return nil, err
	}
	storeOpts, err := storeOptions(file.Database)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	store, err := sqlstore.NewCredentialStoreFromPersistence(client, storeOpts...)
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	cacheConfig := repositorycache.DefaultConfig()
	if file.Database.TenantCacheTTL > 0 {
		cacheConfig.TTL = file.Database.TenantCacheTTL
	}
	cacheService, err := repositorycache.NewCacheService(cacheConfig)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("credbroker: tenant cache: %w", err)
	}
	tenants, err := sqlstore.NewCachedTenantCredentialStore(store, cacheService)
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	b, err := broker.New(broker.Config{},
		broker.WithCredentialStore(store),
		broker.WithTenantCredentialStore(tenants),
		broker.WithLoggerProvider(provider),
		broker.WithConfigProvider(core.NewCfgxConfigProvider(config.NewTOMLFileLoader(opts.configPath, configLogger))),
	)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	logger.Debug("broker ready", "driver", dbConfig.Driver, "service", b.Config().ServiceName)

	return &app{
		file:   file,
		client: client,
		store:  store,
		broker: b,
		logger: logger,
	}, nil
}

func (a *app) Close() error {
	if a == nil || a.client == nil {
		return nil
	}
	return a.client.Close()
}

func storeOptions(settings config.DatabaseSettings) ([]sqlstore.StoreOption, error) {
	if strings.TrimSpace(settings.EncryptionKey) == "" {
		return nil, nil
	}
	provider, err := security.NewAppKeySecretProviderFromString(settings.EncryptionKey, security.WithKeyID(settings.EncryptionKeyID))
	if err != nil {
		return nil, fmt.Errorf("credbroker: encryption key: %w", err)
	}
	return []sqlstore.StoreOption{sqlstore.WithSecretProvider(provider)}, nil
}

// databaseConfig layers flags over the config file and falls back to a local
// sqlite database.
func databaseConfig(settings config.DatabaseSettings, opts *rootOptions) sqlstore.DatabaseConfig {
	cfg := sqlstore.DatabaseConfig{
		Driver:      settings.Driver,
		DSN:         settings.DSN,
		Debug:       settings.Debug,
		PingTimeout: settings.PingTimeout,
	}
	if value := strings.TrimSpace(opts.driver); value != "" {
		cfg.Driver = value
	}
	if value := strings.TrimSpace(opts.dsn); value != "" {
		cfg.DSN = value
	}
	if strings.TrimSpace(cfg.Driver) == "" {
		cfg.Driver = defaultDriver
	}
	if strings.TrimSpace(cfg.DSN) == "" && cfg.Driver == defaultDriver {
		cfg.DSN = defaultDSN
	}
	return cfg
}
