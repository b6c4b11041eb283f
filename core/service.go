package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Service struct {
	config          Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorMapper     ErrorMapper
	store           CredentialStore
	tenants         TenantCredentialStore
	clientFactory   ClientFactory
	sender          MessageSender
	clock           Clock
	tokens          *TokenLifecycleManager
	resolver        *CredentialResolver
	observer        observer
}

// CalendarAccessRequest is the explicit request context for a calendar call.
// Nothing is read from ambient session state.
type CalendarAccessRequest struct {
	SessionToken      string
	SessionElevated   bool
	TargetUserID      string
	TenantID          string
	OrganizerOverride string
}

// CalendarAccess is a provider client bound to the resolved bearer token,
// plus the mailbox calls must address.
type CalendarAccess struct {
	Client  IntegrationClient
	Mailbox string
	Tier    Tier
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("credential-broker", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("credential-broker"); named != nil {
			logger = glog.Ensure(named)
		}
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = MapError
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.clock == nil {
		builder.clock = time.Now
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	if builder.credentialStore == nil {
		return nil, mapBuildError(builder.errorMapper, fmt.Errorf("core: credential store is required"))
	}
	tenants := builder.tenantStore
	if tenants == nil {
		tenants = builder.credentialStore
	}
	if builder.refreshExchanger == nil && builder.refreshExchangerFactory != nil {
		builder.refreshExchanger = builder.refreshExchangerFactory(finalConfig)
	}
	if builder.appExchanger == nil && builder.appExchangerFactory != nil {
		builder.appExchanger = builder.appExchangerFactory(finalConfig)
	}
	if builder.messageSender == nil && builder.messageSenderFactory != nil {
		builder.messageSender = builder.messageSenderFactory(finalConfig, builder.clientFactory)
	}

	tokens := NewTokenLifecycleManager(TokenLifecycleDependencies{
		Store:            builder.credentialStore,
		RefreshExchanger: builder.refreshExchanger,
		AppExchanger:     builder.appExchanger,
		Config:           finalConfig.Tokens,
		Scheduler:        builder.persistScheduler,
		Clock:            builder.clock,
		Logger:           logger,
		MetricsRecorder:  builder.metricsRecorder,
	})

	return &Service{
		config:          finalConfig,
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		errorMapper:     builder.errorMapper,
		store:           builder.credentialStore,
		tenants:         tenants,
		clientFactory:   builder.clientFactory,
		sender:          builder.messageSender,
		clock:           builder.clock,
		tokens:          tokens,
		resolver:        NewCredentialResolver(builder.credentialStore, tenants, tokens, finalConfig.Calendar.ProviderID),
		observer:        observer{logger: logger, metrics: builder.metricsRecorder},
	}, nil
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Logger() Logger {
	if s == nil {
		return glog.Nop()
	}
	return s.logger
}

func (s *Service) Tokens() *TokenLifecycleManager {
	if s == nil {
		return nil
	}
	return s.tokens
}

func (s *Service) Now() time.Time {
	if s == nil || s.clock == nil {
		return time.Now()
	}
	return s.clock()
}

// Resolve selects the credential tier for req.
func (s *Service) Resolve(ctx context.Context, req ResolveRequest) (resolution Resolution, err error) {
	startedAt := time.Now()
	defer func() {
		s.observer.observeOperation(ctx, startedAt, "resolve_credential", err, map[string]any{
			"tenant_id": strings.TrimSpace(req.TenantID),
			"user_id":   strings.TrimSpace(req.TargetUserID),
			"tier":      string(resolution.Tier),
			"mailbox":   resolution.Mailbox,
		})
	}()
	return s.resolver.Resolve(ctx, req)
}

// ResolveCalendarAccess resolves a credential and binds it to a calendar
// provider client.
func (s *Service) ResolveCalendarAccess(ctx context.Context, req CalendarAccessRequest) (CalendarAccess, error) {
	if s.clientFactory == nil {
		return CalendarAccess{}, ConfigurationError(req.TenantID, "integration client factory is not configured")
	}
	resolution, err := s.Resolve(ctx, ResolveRequest{
		SessionToken:      req.SessionToken,
		SessionElevated:   req.SessionElevated,
		TargetUserID:      req.TargetUserID,
		TenantID:          req.TenantID,
		OrganizerOverride: req.OrganizerOverride,
		ProviderID:        s.config.Calendar.ProviderID,
	})
	if err != nil {
		return CalendarAccess{}, err
	}
	return CalendarAccess{
		Client:  s.clientFactory(s.config.Calendar.BaseURL, resolution.Token),
		Mailbox: resolution.Mailbox,
		Tier:    resolution.Tier,
	}, nil
}

func (s *Service) GetDelegatedToken(ctx context.Context, record DelegatedTokenRecord) (string, error) {
	return s.tokens.GetDelegatedToken(ctx, record)
}

func (s *Service) GetAppToken(ctx context.Context, creds TenantCredentials) (string, error) {
	return s.tokens.GetAppToken(ctx, creds)
}

// DeleteDelegatedToken unlinks a user's delegated grant for a provider.
func (s *Service) DeleteDelegatedToken(ctx context.Context, userID string, providerID string) (err error) {
	startedAt := time.Now()
	userID = strings.TrimSpace(userID)
	providerID = strings.TrimSpace(providerID)
	if providerID == "" {
		providerID = s.config.Calendar.ProviderID
	}
	defer func() {
		s.observer.observeOperation(ctx, startedAt, "delete_delegated_token", err, map[string]any{
			"user_id":     userID,
			"provider_id": providerID,
		})
	}()
	if userID == "" {
		return BadInput("user id is required")
	}
	err = s.store.DeleteDelegatedToken(ctx, userID, providerID)
	if err == nil || errors.Is(err, ErrNotFound) {
		s.tokens.Forget(userID, providerID)
	}
	if err != nil {
		return storeError(err, "failed to delete delegated token")
	}
	return nil
}
