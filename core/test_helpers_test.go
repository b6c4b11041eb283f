package core

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

type memoryCredentialStore struct {
	mu         sync.Mutex
	tenants    map[string]TenantCredentials
	delegated  map[string]DelegatedTokenRecord
	messaging  map[string]MessagingCredential
	shared     map[string]SharedIntegration
	profiles   map[string]UserProfile
	tenantGets int32
	putErrs    []error
	puts       int32
}

func newMemoryCredentialStore() *memoryCredentialStore {
	return &memoryCredentialStore{
		tenants:   map[string]TenantCredentials{},
		delegated: map[string]DelegatedTokenRecord{},
		messaging: map[string]MessagingCredential{},
		shared:    map[string]SharedIntegration{},
		profiles:  map[string]UserProfile{},
	}
}

func (s *memoryCredentialStore) GetTenantCredentials(_ context.Context, tenantID string) (TenantCredentials, error) {
	atomic.AddInt32(&s.tenantGets, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	creds, ok := s.tenants[tenantID]
	if !ok {
		return TenantCredentials{}, ErrNotFound
	}
	return creds, nil
}

func (s *memoryCredentialStore) GetDelegatedToken(_ context.Context, userID string, providerID string) (DelegatedTokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.delegated[DelegatedTokenKey(userID, providerID)]
	if !ok {
		return DelegatedTokenRecord{}, ErrNotFound
	}
	return record, nil
}

func (s *memoryCredentialStore) PutDelegatedToken(_ context.Context, record DelegatedTokenRecord) (DelegatedTokenRecord, error) {
	atomic.AddInt32(&s.puts, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.putErrs) > 0 {
		err := s.putErrs[0]
		s.putErrs = s.putErrs[1:]
		if err != nil {
			return DelegatedTokenRecord{}, err
		}
	}
	key := record.Key()
	current, exists := s.delegated[key]
	if record.Version > 0 && (!exists || current.Version != record.Version) {
		return DelegatedTokenRecord{}, ErrStaleWrite
	}
	record.Version = current.Version + 1
	s.delegated[key] = record
	return record, nil
}

func (s *memoryCredentialStore) DeleteDelegatedToken(_ context.Context, userID string, providerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := DelegatedTokenKey(userID, providerID)
	if _, ok := s.delegated[key]; !ok {
		return ErrNotFound
	}
	delete(s.delegated, key)
	return nil
}

func (s *memoryCredentialStore) GetMessagingCredential(_ context.Context, tenantID string) (MessagingCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	credential, ok := s.messaging[tenantID]
	if !ok {
		return MessagingCredential{}, ErrNotFound
	}
	return credential, nil
}

func (s *memoryCredentialStore) GetSharedIntegration(_ context.Context, id string) (SharedIntegration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	shared, ok := s.shared[id]
	if !ok {
		return SharedIntegration{}, ErrNotFound
	}
	return shared, nil
}

func (s *memoryCredentialStore) GetUserProfile(_ context.Context, userID string) (UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	profile, ok := s.profiles[userID]
	if !ok {
		return UserProfile{}, ErrNotFound
	}
	return profile, nil
}

func (s *memoryCredentialStore) seedDelegated(record DelegatedTokenRecord) DelegatedTokenRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record.Version == 0 {
		record.Version = 1
	}
	s.delegated[record.Key()] = record
	return record
}

func (s *memoryCredentialStore) delegatedRecord(userID string, providerID string) DelegatedTokenRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delegated[DelegatedTokenKey(userID, providerID)]
}

type fakeRefreshExchanger struct {
	mu     sync.Mutex
	calls  int32
	delay  time.Duration
	err    error
	token  ExchangedToken
	seen   []string
	gate   chan struct{}
	expiry func() time.Time
}

func (f *fakeRefreshExchanger) Refresh(ctx context.Context, record DelegatedTokenRecord) (ExchangedToken, error) {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	f.seen = append(f.seen, record.RefreshToken)
	f.mu.Unlock()
	if f.gate != nil {
		<-f.gate
	}
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return ExchangedToken{}, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if f.err != nil {
		return ExchangedToken{}, f.err
	}
	token := f.token
	if f.expiry != nil {
		token.ExpiresAt = f.expiry()
	}
	return token, nil
}

func (f *fakeRefreshExchanger) Calls() int {
	return int(atomic.LoadInt32(&f.calls))
}

func (f *fakeRefreshExchanger) SeenRefreshTokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.seen...)
}

type fakeAppExchanger struct {
	calls int32
	err   error
	token ExchangedToken
}

func (f *fakeAppExchanger) ClientCredentials(context.Context, TenantCredentials) (ExchangedToken, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return ExchangedToken{}, f.err
	}
	return f.token, nil
}

func (f *fakeAppExchanger) Calls() int {
	return int(atomic.LoadInt32(&f.calls))
}

type stubClient struct {
	baseURL string
	token   string
}

func (c stubClient) BaseURL() string { return c.baseURL }

func (c stubClient) Get(context.Context, string, ReadOptions) (TransportResponse, error) {
	return TransportResponse{StatusCode: 200}, nil
}

func (c stubClient) Do(context.Context, TransportRequest) (TransportResponse, error) {
	return TransportResponse{StatusCode: 200}, nil
}

func stubClientFactory(baseURL string, token string) IntegrationClient {
	return stubClient{baseURL: baseURL, token: token}
}

type recordingMetrics struct {
	mu       sync.Mutex
	counters map[string]int64
}

func (r *recordingMetrics) IncCounter(_ context.Context, name string, value int64, _ map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counters == nil {
		r.counters = map[string]int64{}
	}
	r.counters[name] += value
}

func (r *recordingMetrics) ObserveHistogram(context.Context, string, float64, map[string]string) {}

func (r *recordingMetrics) Count(name string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters[name]
}

func fixedClock(now time.Time) Clock {
	return func() time.Time { return now }
}

type noDelay struct{}

func (noDelay) NextDelay(int) time.Duration { return 0 }

func completeTenant(tenantID string) TenantCredentials {
	return TenantCredentials{
		TenantID:           tenantID,
		AppClientID:        "client-" + tenantID,
		AppClientSecret:    "secret-" + tenantID,
		AppDirectoryID:     "directory-" + tenantID,
		CoordinatorMailbox: "coordinator@" + tenantID + ".example",
	}
}

func newTestService(store *memoryCredentialStore, opts ...Option) (*Service, error) {
	base := []Option{
		WithCredentialStore(store),
		WithClientFactory(stubClientFactory),
		WithPersistBackoffScheduler(noDelay{}),
	}
	return NewService(Config{}, append(base, opts...)...)
}
