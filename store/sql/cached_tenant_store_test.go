package sqlstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-credential-broker/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

type countingTenantStore struct {
	calls   int
	records map[string]core.TenantCredentials
}

func (s *countingTenantStore) GetTenantCredentials(_ context.Context, tenantID string) (core.TenantCredentials, error) {
	s.calls++
	record, ok := s.records[tenantID]
	if !ok {
		return core.TenantCredentials{}, core.ErrNotFound
	}
	return record, nil
}

func newTestTenantCacheService(t *testing.T) repositorycache.CacheService {
	t.Helper()
	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	return service
}

func TestCachedTenantCredentialStore_ServesFromCache(t *testing.T) {
	base := &countingTenantStore{records: map[string]core.TenantCredentials{
		"t1": {TenantID: "t1", AppClientID: "client-v1"},
	}}
	store, err := NewCachedTenantCredentialStore(base, newTestTenantCacheService(t))
	if err != nil {
		t.Fatalf("new cached store: %v", err)
	}
	ctx := context.Background()

	for range 3 {
		record, err := store.GetTenantCredentials(ctx, "t1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if record.AppClientID != "client-v1" {
			t.Fatalf("unexpected record %#v", record)
		}
	}
	if base.calls != 1 {
		t.Fatalf("expected one backing read, got %d", base.calls)
	}
}

func TestCachedTenantCredentialStore_ReloadReadsThrough(t *testing.T) {
	base := &countingTenantStore{records: map[string]core.TenantCredentials{
		"t1": {TenantID: "t1", AppClientID: "client-v1"},
	}}
	store, err := NewCachedTenantCredentialStore(base, newTestTenantCacheService(t))
	if err != nil {
		t.Fatalf("new cached store: %v", err)
	}
	ctx := context.Background()

	if _, err := store.GetTenantCredentials(ctx, "t1"); err != nil {
		t.Fatalf("warm cache: %v", err)
	}
	base.records["t1"] = core.TenantCredentials{TenantID: "t1", AppClientID: "client-v2"}

	cached, _ := store.GetTenantCredentials(ctx, "t1")
	if cached.AppClientID != "client-v1" {
		t.Fatalf("expected cached registration, got %#v", cached)
	}
	reloaded, err := store.ReloadTenantCredentials(ctx, "t1")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.AppClientID != "client-v2" {
		t.Fatalf("expected fresh registration after reload, got %#v", reloaded)
	}
	if base.calls != 2 {
		t.Fatalf("expected two backing reads, got %d", base.calls)
	}
}

func TestCachedTenantCredentialStore_PropagatesNotFound(t *testing.T) {
	base := &countingTenantStore{records: map[string]core.TenantCredentials{}}
	store, err := NewCachedTenantCredentialStore(base, newTestTenantCacheService(t))
	if err != nil {
		t.Fatalf("new cached store: %v", err)
	}
	if _, err := store.GetTenantCredentials(context.Background(), "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestTenantCredentialsCacheKey(t *testing.T) {
	key, err := TenantCredentialsCacheKey(" acme/eu ")
	if err != nil {
		t.Fatalf("cache key: %v", err)
	}
	if key != "credential-broker::tenant_credentials::v1::acme%2Feu" {
		t.Fatalf("unexpected cache key %q", key)
	}
	if _, err := TenantCredentialsCacheKey(" "); err == nil {
		t.Fatalf("expected error for empty tenant id")
	}
}
