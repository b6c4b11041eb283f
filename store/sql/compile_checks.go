package sqlstore

import "github.com/goliatone/go-credential-broker/core"

var (
	_ core.CredentialStore       = (*CredentialStore)(nil)
	_ core.TenantCredentialStore = (*CachedTenantCredentialStore)(nil)
)
