package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type serviceBuilder struct {
	runtimeConfig    Config
	logger           Logger
	loggerProvider   LoggerProvider
	metricsRecorder  MetricsRecorder
	errorMapper      ErrorMapper
	configProvider   ConfigProvider
	optionsResolver  OptionsResolver
	credentialStore  CredentialStore
	tenantStore      TenantCredentialStore
	refreshExchanger RefreshExchanger
	appExchanger     AppTokenExchanger
	clientFactory    ClientFactory
	messageSender    MessageSender
	persistScheduler PersistBackoffScheduler
	clock            Clock

	refreshExchangerFactory func(Config) RefreshExchanger
	appExchangerFactory     func(Config) AppTokenExchanger
	messageSenderFactory    func(Config, ClientFactory) MessageSender
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithCredentialStore(store CredentialStore) Option {
	return func(b *serviceBuilder) {
		b.credentialStore = store
	}
}

// WithTenantCredentialStore overrides the tenant credential reads of the
// credential store, typically with a cached decorator.
func WithTenantCredentialStore(store TenantCredentialStore) Option {
	return func(b *serviceBuilder) {
		b.tenantStore = store
	}
}

func WithRefreshExchanger(exchanger RefreshExchanger) Option {
	return func(b *serviceBuilder) {
		b.refreshExchanger = exchanger
	}
}

func WithAppTokenExchanger(exchanger AppTokenExchanger) Option {
	return func(b *serviceBuilder) {
		b.appExchanger = exchanger
	}
}

func WithClientFactory(factory ClientFactory) Option {
	return func(b *serviceBuilder) {
		b.clientFactory = factory
	}
}

func WithMessageSender(sender MessageSender) Option {
	return func(b *serviceBuilder) {
		b.messageSender = sender
	}
}

// WithRefreshExchangerFactory builds the refresh exchanger from the resolved
// config. An explicit WithRefreshExchanger wins.
func WithRefreshExchangerFactory(factory func(Config) RefreshExchanger) Option {
	return func(b *serviceBuilder) {
		b.refreshExchangerFactory = factory
	}
}

func WithAppTokenExchangerFactory(factory func(Config) AppTokenExchanger) Option {
	return func(b *serviceBuilder) {
		b.appExchangerFactory = factory
	}
}

func WithMessageSenderFactory(factory func(Config, ClientFactory) MessageSender) Option {
	return func(b *serviceBuilder) {
		b.messageSenderFactory = factory
	}
}

func WithPersistBackoffScheduler(scheduler PersistBackoffScheduler) Option {
	return func(b *serviceBuilder) {
		b.persistScheduler = scheduler
	}
}

func WithClock(clock Clock) Option {
	return func(b *serviceBuilder) {
		b.clock = clock
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve("credential-broker", nil, nil)
	return serviceBuilder{
		runtimeConfig:    runtime,
		loggerProvider:   loggerProvider,
		logger:           logger,
		metricsRecorder:  NopMetricsRecorder{},
		errorMapper:      MapError,
		configProvider:   NewCfgxConfigProvider(nil),
		optionsResolver:  GoOptionsResolver{},
		persistScheduler: ExponentialBackoffScheduler{},
		clock:            time.Now,
	}
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

// StaticConfigLoader serves a fixed raw map, mostly for tests and embedding.
func StaticConfigLoader(values map[string]any) RawConfigLoader {
	return staticRawConfigLoader{Values: values}
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw, configBuildOptions(defaults)...)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// GoOptionsResolver layers defaults, loaded file config and runtime config, in
// that order of precedence.
type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			configToLayerMap(defaults, true),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			configToLayerMap(loaded, false),
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			configToLayerMap(runtime, false),
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value, configBuildOptions(defaults)...)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	putString(layer, "service_name", cfg.ServiceName, includeZero)

	calendar := map[string]any{}
	putString(calendar, "provider_id", cfg.Calendar.ProviderID, includeZero)
	putString(calendar, "base_url", cfg.Calendar.BaseURL, includeZero)
	putString(calendar, "token_url", cfg.Calendar.TokenURL, includeZero)
	putString(calendar, "delegated_client_id", cfg.Calendar.DelegatedAppID, includeZero)
	putString(calendar, "delegated_client_secret", cfg.Calendar.DelegatedSecret, includeZero)
	putString(calendar, "delegated_directory", cfg.Calendar.DelegatedTenant, includeZero)
	if includeZero || len(cfg.Calendar.DelegatedScopes) > 0 {
		calendar["delegated_scopes"] = append([]string(nil), cfg.Calendar.DelegatedScopes...)
	}
	if includeZero || len(cfg.Calendar.AppScopes) > 0 {
		calendar["app_scopes"] = append([]string(nil), cfg.Calendar.AppScopes...)
	}
	if includeZero || cfg.Calendar.MeetingPageSize > 0 {
		calendar["meeting_page_size"] = cfg.Calendar.MeetingPageSize
	}
	putSection(layer, "calendar", calendar)

	tokens := map[string]any{}
	putDuration(tokens, "refresh_skew", cfg.Tokens.RefreshSkew, includeZero)
	putDuration(tokens, "refresh_timeout", cfg.Tokens.RefreshTimeout, includeZero)
	if includeZero || cfg.Tokens.PersistAttempts > 0 {
		tokens["persist_attempts"] = cfg.Tokens.PersistAttempts
	}
	if includeZero || cfg.Tokens.CacheAppTokens {
		tokens["cache_app_tokens"] = cfg.Tokens.CacheAppTokens
	}
	putSection(layer, "tokens", tokens)

	messaging := map[string]any{}
	putString(messaging, "base_url", cfg.Messaging.BaseURL, includeZero)
	putString(messaging, "api_version", cfg.Messaging.APIVersion, includeZero)
	putString(messaging, "default_access_token", cfg.Messaging.DefaultAccessToken, includeZero)
	putString(messaging, "default_sender_id", cfg.Messaging.DefaultSenderID, includeZero)
	putString(messaging, "lead_template", cfg.Messaging.LeadTemplate, includeZero)
	putString(messaging, "lead_template_locale", cfg.Messaging.LeadTemplateLocale, includeZero)
	putSection(layer, "messaging", messaging)

	meetings := map[string]any{}
	putDuration(meetings, "look_back", cfg.Meetings.LookBack, includeZero)
	putDuration(meetings, "look_ahead", cfg.Meetings.LookAhead, includeZero)
	putSection(layer, "meetings", meetings)
	return layer
}

func putString(layer map[string]any, key string, value string, includeZero bool) {
	if includeZero || strings.TrimSpace(value) != "" {
		layer[key] = value
	}
}

func putDuration(layer map[string]any, key string, value time.Duration, includeZero bool) {
	if includeZero || value > 0 {
		layer[key] = value
	}
}

func putSection(layer map[string]any, key string, section map[string]any) {
	if len(section) > 0 {
		layer[key] = section
	}
}
