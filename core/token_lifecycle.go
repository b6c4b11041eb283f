package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/sync/singleflight"
)

const (
	defaultPersistInitialBackoff = 100 * time.Millisecond
	defaultPersistMaxBackoff     = 2 * time.Second
	defaultExchangedTokenTTL     = time.Hour
)

type ExponentialBackoffScheduler struct {
	Initial time.Duration
	Max     time.Duration
}

func (s ExponentialBackoffScheduler) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	initial := s.Initial
	if initial <= 0 {
		initial = defaultPersistInitialBackoff
	}
	max := s.Max
	if max <= 0 {
		max = defaultPersistMaxBackoff
	}

	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

type TokenLifecycleDependencies struct {
	Store            DelegatedTokenStore
	RefreshExchanger RefreshExchanger
	AppExchanger     AppTokenExchanger
	Config           TokenConfig
	Scheduler        PersistBackoffScheduler
	Clock            Clock
	Logger           Logger
	MetricsRecorder  MetricsRecorder
}

// TokenLifecycleManager hands out bearer tokens that are valid at the time of
// return. Refreshes are de-duplicated per (user, provider) and the rotated
// token is persisted before it is handed out.
type TokenLifecycleManager struct {
	store     DelegatedTokenStore
	refresher RefreshExchanger
	app       AppTokenExchanger
	cfg       TokenConfig
	scheduler PersistBackoffScheduler
	clock     Clock
	observer  observer

	flights singleflight.Group

	mu      sync.Mutex
	pending map[string]pendingRotation

	appTokens *appTokenCache
}

func NewTokenLifecycleManager(deps TokenLifecycleDependencies) *TokenLifecycleManager {
	cfg := deps.Config
	if cfg.RefreshSkew < 0 {
		cfg.RefreshSkew = 0
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = DefaultRefreshTimeout
	}
	if cfg.PersistAttempts <= 0 {
		cfg.PersistAttempts = DefaultPersistAttempts
	}
	scheduler := deps.Scheduler
	if scheduler == nil {
		scheduler = ExponentialBackoffScheduler{}
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	metrics := deps.MetricsRecorder
	if metrics == nil {
		metrics = NopMetricsRecorder{}
	}
	manager := &TokenLifecycleManager{
		store:     deps.Store,
		refresher: deps.RefreshExchanger,
		app:       deps.AppExchanger,
		cfg:       cfg,
		scheduler: scheduler,
		clock:     clock,
		observer:  observer{logger: deps.Logger, metrics: metrics},
		pending:   map[string]pendingRotation{},
	}
	if cfg.CacheAppTokens {
		manager.appTokens = newAppTokenCache()
	}
	return manager
}

// GetDelegatedToken returns the record's access token when it is still valid
// past the refresh skew. Otherwise it refreshes, persists the rotated record
// and returns the new access token.
//
// Concurrent callers for the same (user, provider) share one refresh. A caller
// whose context ends stops waiting but does not cancel the shared refresh.
func (m *TokenLifecycleManager) GetDelegatedToken(ctx context.Context, record DelegatedTokenRecord) (string, error) {
	if m == nil {
		return "", ConfigurationError("", "token lifecycle manager is not configured")
	}
	if strings.TrimSpace(record.UserID) == "" {
		return "", BadInput("delegated token user id is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	key := record.Key()
	if !m.hasPending(key) && record.FreshAt(m.clock(), m.cfg.RefreshSkew) {
		return record.AccessToken, nil
	}

	results := m.flights.DoChan(key, func() (any, error) {
		return m.refreshFlight(ctx, record)
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case result := <-results:
		if result.Err != nil {
			return "", result.Err
		}
		refreshed, _ := result.Val.(DelegatedTokenRecord)
		return refreshed.AccessToken, nil
	}
}

func (m *TokenLifecycleManager) refreshFlight(parent context.Context, seed DelegatedTokenRecord) (record DelegatedTokenRecord, err error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), m.cfg.RefreshTimeout)
	defer cancel()

	startedAt := time.Now()
	fields := map[string]any{
		"user_id":     seed.UserID,
		"provider_id": seed.ProviderID,
	}
	refreshed := false
	defer func() {
		if !refreshed && err == nil {
			return
		}
		m.observer.observeOperation(parent, startedAt, "refresh_delegated_token", err, fields)
	}()

	key := seed.Key()
	if pending, ok := m.takePending(key); ok {
		stored, err := m.replayPending(parent, ctx, key, pending)
		if err != nil {
			return DelegatedTokenRecord{}, err
		}
		if stored.FreshAt(m.clock(), m.cfg.RefreshSkew) {
			return stored, nil
		}
		seed = stored
	}

	current, err := m.latestRecord(ctx, seed)
	if err != nil {
		return DelegatedTokenRecord{}, err
	}
	if current.FreshAt(m.clock(), m.cfg.RefreshSkew) {
		fields["reused"] = true
		return current, nil
	}
	if strings.TrimSpace(current.RefreshToken) == "" {
		return DelegatedTokenRecord{}, CredentialExpired(current.UserID, current.ProviderID, nil)
	}
	if m.refresher == nil {
		return DelegatedTokenRecord{}, ConfigurationError("", "refresh exchanger is not configured")
	}

	refreshed = true
	exchanged, err := m.refresher.Refresh(ctx, current)
	if err != nil {
		return DelegatedTokenRecord{}, refreshError(current, err)
	}
	if strings.TrimSpace(exchanged.AccessToken) == "" {
		return DelegatedTokenRecord{}, MalformedUpstreamResponse(nil, "refresh response did not include an access token")
	}

	rotated := m.rotate(current, exchanged)
	stored, err := m.persist(ctx, rotated)
	if err != nil {
		return DelegatedTokenRecord{}, m.persistFailed(parent, key, pendingRotation{from: current, rotated: rotated}, err)
	}
	return stored, nil
}

// replayPending writes a rotation that failed to persist earlier, but only
// while the stored grant is still the one it was rotated from. A removed
// grant is a revocation and a replaced one wins over the pending rotation.
func (m *TokenLifecycleManager) replayPending(parent context.Context, ctx context.Context, key string, pending pendingRotation) (DelegatedTokenRecord, error) {
	stored, err := m.latestRecord(ctx, pending.from)
	if err != nil {
		return DelegatedTokenRecord{}, err
	}
	if !sameGrant(stored, pending.from) {
		m.observer.logInfo(parent, "pending delegated token rotation discarded", map[string]any{
			"user_id":     pending.from.UserID,
			"provider_id": pending.from.ProviderID,
		})
		return stored, nil
	}
	rotated := pending.rotated
	rotated.Version = stored.Version
	persisted, err := m.persist(ctx, rotated)
	if err != nil {
		return DelegatedTokenRecord{}, m.persistFailed(parent, key, pending, err)
	}
	return persisted, nil
}

func sameGrant(stored DelegatedTokenRecord, from DelegatedTokenRecord) bool {
	return stored.Version == from.Version &&
		stored.RefreshToken == from.RefreshToken &&
		stored.UpdatedAt.Equal(from.UpdatedAt)
}

func (m *TokenLifecycleManager) latestRecord(ctx context.Context, seed DelegatedTokenRecord) (DelegatedTokenRecord, error) {
	if m.store == nil {
		return seed, nil
	}
	latest, err := m.store.GetDelegatedToken(ctx, seed.UserID, seed.ProviderID)
	if err == nil {
		return latest, nil
	}
	if errors.Is(err, ErrNotFound) {
		return DelegatedTokenRecord{}, CredentialExpired(seed.UserID, seed.ProviderID, err)
	}
	return DelegatedTokenRecord{}, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to load delegated token").
		WithTextCode(ErrorInternal)
}

func (m *TokenLifecycleManager) rotate(current DelegatedTokenRecord, exchanged ExchangedToken) DelegatedTokenRecord {
	now := m.clock()
	rotated := current
	rotated.AccessToken = strings.TrimSpace(exchanged.AccessToken)
	if refresh := strings.TrimSpace(exchanged.RefreshToken); refresh != "" {
		rotated.RefreshToken = refresh
	}
	rotated.ExpiresAt = exchanged.ExpiresAt
	if rotated.ExpiresAt.IsZero() {
		rotated.ExpiresAt = now.Add(defaultExchangedTokenTTL)
	}
	// Expiry only moves forward. A provider expiry at or before the previous
	// one is kept just past it so the next call refreshes again.
	if !current.ExpiresAt.IsZero() && !rotated.ExpiresAt.After(current.ExpiresAt) {
		rotated.ExpiresAt = current.ExpiresAt.Add(time.Second)
	}
	rotated.UpdatedAt = now
	return rotated
}

// persist retries the write, never the exchange. A stale version means another
// writer got there first; its record wins when it is fresh.
func (m *TokenLifecycleManager) persist(ctx context.Context, record DelegatedTokenRecord) (DelegatedTokenRecord, error) {
	if m.store == nil {
		return record, nil
	}
	var lastErr error
	for attempt := 1; attempt <= m.cfg.PersistAttempts; attempt++ {
		stored, err := m.store.PutDelegatedToken(ctx, record)
		if err == nil {
			return stored, nil
		}
		lastErr = err
		if errors.Is(err, ErrStaleWrite) {
			latest, getErr := m.store.GetDelegatedToken(ctx, record.UserID, record.ProviderID)
			if errors.Is(getErr, ErrNotFound) {
				return DelegatedTokenRecord{}, CredentialExpired(record.UserID, record.ProviderID, getErr)
			}
			if getErr == nil {
				if latest.FreshAt(m.clock(), m.cfg.RefreshSkew) {
					return latest, nil
				}
				record.Version = latest.Version
			}
		}
		if attempt == m.cfg.PersistAttempts {
			break
		}
		if waitErr := waitWithContext(ctx, m.scheduler.NextDelay(attempt)); waitErr != nil {
			return DelegatedTokenRecord{}, waitErr
		}
	}
	return DelegatedTokenRecord{}, lastErr
}

func (m *TokenLifecycleManager) persistFailed(ctx context.Context, key string, pending pendingRotation, cause error) error {
	if IsCredentialExpired(cause) {
		return cause
	}
	m.setPending(key, pending)
	m.observer.logError(ctx, "refreshed delegated token could not be persisted", map[string]any{
		"user_id":     pending.rotated.UserID,
		"provider_id": pending.rotated.ProviderID,
		"error":       cause.Error(),
	})
	return WrapConfigurationError(cause, "", "failed to persist refreshed delegated token")
}

func refreshError(record DelegatedTokenRecord, err error) error {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return UpstreamUnavailable(err, "delegated token refresh timed out")
	}
	return CredentialExpired(record.UserID, record.ProviderID, err)
}

func (m *TokenLifecycleManager) hasPending(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.pending[key]
	return ok
}

func (m *TokenLifecycleManager) takePending(key string) (pendingRotation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.pending[key]
	if ok {
		delete(m.pending, key)
	}
	return record, ok
}

func (m *TokenLifecycleManager) setPending(key string, pending pendingRotation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[key] = pending
}

// Forget drops any rotation still waiting to be persisted for the grant.
// Call it when the grant is unlinked.
func (m *TokenLifecycleManager) Forget(userID string, providerID string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, DelegatedTokenKey(userID, providerID))
}

type pendingRotation struct {
	from    DelegatedTokenRecord
	rotated DelegatedTokenRecord
}

// GetAppToken performs a client-credentials exchange for the tenant's app
// registration. Exchange failures are configuration errors.
func (m *TokenLifecycleManager) GetAppToken(ctx context.Context, creds TenantCredentials) (string, error) {
	if m == nil {
		return "", ConfigurationError(creds.TenantID, "token lifecycle manager is not configured")
	}
	if missing := creds.MissingAppFields(); len(missing) > 0 {
		return "", ConfigurationError(creds.TenantID, "tenant app registration is incomplete", missing...)
	}
	if m.app == nil {
		return "", ConfigurationError(creds.TenantID, "app token exchanger is not configured")
	}
	key := appTokenKey(creds)
	if token, ok := m.appTokens.get(key, m.clock(), m.cfg.RefreshSkew); ok {
		return token, nil
	}

	startedAt := time.Now()
	exchanged, err := m.app.ClientCredentials(ctx, creds)
	if err == nil && strings.TrimSpace(exchanged.AccessToken) == "" {
		err = MalformedUpstreamResponse(nil, "client credentials response did not include an access token")
	} else if err != nil && ctx.Err() == nil {
		err = WrapConfigurationError(err, creds.TenantID, "application token exchange failed")
	}
	m.observer.observeOperation(ctx, startedAt, "app_token_exchange", err, map[string]any{
		"tenant_id": creds.TenantID,
	})
	if err != nil {
		return "", err
	}
	expiresAt := exchanged.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = m.clock().Add(defaultExchangedTokenTTL)
	}
	m.appTokens.put(key, exchanged.AccessToken, expiresAt)
	return exchanged.AccessToken, nil
}

// DropAppToken evicts a cached app token, e.g. after the provider rejected it.
func (m *TokenLifecycleManager) DropAppToken(creds TenantCredentials) {
	if m == nil {
		return
	}
	m.appTokens.delete(appTokenKey(creds))
}

func appTokenKey(creds TenantCredentials) string {
	return strings.TrimSpace(creds.TenantID) + "|" + strings.TrimSpace(creds.AppClientID)
}

type cachedAppToken struct {
	token     string
	expiresAt time.Time
}

type appTokenCache struct {
	mu      sync.Mutex
	entries map[string]cachedAppToken
}

func newAppTokenCache() *appTokenCache {
	return &appTokenCache{entries: map[string]cachedAppToken{}}
}

func (c *appTokenCache) get(key string, now time.Time, skew time.Duration) (string, bool) {
	if c == nil {
		return "", false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if !now.Before(entry.expiresAt.Add(-skew)) {
		delete(c.entries, key)
		return "", false
	}
	return entry.token, true
}

func (c *appTokenCache) put(key string, token string, expiresAt time.Time) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cachedAppToken{token: token, expiresAt: expiresAt}
}

func (c *appTokenCache) delete(key string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
