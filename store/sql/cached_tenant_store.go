package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-credential-broker/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const tenantCredentialsCacheKeyPrefix = "credential-broker::tenant_credentials::v1"

// CachedTenantCredentialStore serves read-mostly tenant app registrations from
// a cache. ReloadTenantCredentials always reads through.
type CachedTenantCredentialStore struct {
	base  core.TenantCredentialStore
	cache repositorycache.CacheService
}

func NewCachedTenantCredentialStore(
	base core.TenantCredentialStore,
	cacheService repositorycache.CacheService,
) (*CachedTenantCredentialStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base tenant credential store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: tenant credential cache service is required")
	}
	return &CachedTenantCredentialStore{base: base, cache: cacheService}, nil
}

// TenantCredentialsCacheKey returns
// credential-broker::tenant_credentials::v1::<tenant_id> with the tenant id
// URL-path escaped.
func TenantCredentialsCacheKey(tenantID string) (string, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return "", fmt.Errorf("sqlstore: tenant id is required")
	}
	return tenantCredentialsCacheKeyPrefix + "::" + url.PathEscape(tenantID), nil
}

func (s *CachedTenantCredentialStore) GetTenantCredentials(ctx context.Context, tenantID string) (core.TenantCredentials, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.TenantCredentials{}, fmt.Errorf("sqlstore: cached tenant credential store is not configured")
	}
	tenantID = strings.TrimSpace(tenantID)
	cacheKey, err := TenantCredentialsCacheKey(tenantID)
	if err != nil {
		return core.TenantCredentials{}, err
	}
	return repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.TenantCredentials, error) {
		return s.base.GetTenantCredentials(ctx, tenantID)
	})
}

func (s *CachedTenantCredentialStore) ReloadTenantCredentials(ctx context.Context, tenantID string) (core.TenantCredentials, error) {
	if err := s.Invalidate(ctx, tenantID); err != nil {
		return core.TenantCredentials{}, err
	}
	return s.GetTenantCredentials(ctx, tenantID)
}

func (s *CachedTenantCredentialStore) Invalidate(ctx context.Context, tenantID string) error {
	if s == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached tenant credential store is not configured")
	}
	cacheKey, err := TenantCredentialsCacheKey(tenantID)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

var (
	_ core.TenantCredentialStore    = (*CachedTenantCredentialStore)(nil)
	_ core.TenantCredentialReloader = (*CachedTenantCredentialStore)(nil)
)
