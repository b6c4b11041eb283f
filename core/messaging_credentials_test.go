package core

import (
	"context"
	"testing"
)

func TestResolveMessagingCredential_Precedence(t *testing.T) {
	cases := []struct {
		name       string
		tenant     *MessagingCredential
		shared     *SharedIntegration
		defaults   MessagingConfig
		wantToken  string
		wantSender string
		wantSource MessagingCredentialSource
		wantErr    bool
	}{
		{
			name:       "tenant dedicated token",
			tenant:     &MessagingCredential{AccessToken: "tenant-token", SenderID: "tenant-sender", SharedIntegrationID: "shared-1"},
			shared:     &SharedIntegration{ID: "shared-1", AccessToken: "shared-token", SenderID: "shared-sender"},
			defaults:   MessagingConfig{DefaultAccessToken: "default-token", DefaultSenderID: "default-sender"},
			wantToken:  "tenant-token",
			wantSender: "tenant-sender",
			wantSource: MessagingSourceTenant,
		},
		{
			name:       "shared integration token",
			tenant:     &MessagingCredential{SharedIntegrationID: "shared-1"},
			shared:     &SharedIntegration{ID: "shared-1", AccessToken: "shared-token", SenderID: "shared-sender"},
			defaults:   MessagingConfig{DefaultAccessToken: "default-token", DefaultSenderID: "default-sender"},
			wantToken:  "shared-token",
			wantSender: "shared-sender",
			wantSource: MessagingSourceShared,
		},
		{
			name:       "tenant sender with shared token",
			tenant:     &MessagingCredential{SenderID: "tenant-sender", SharedIntegrationID: "shared-1"},
			shared:     &SharedIntegration{ID: "shared-1", AccessToken: "shared-token", SenderID: "shared-sender"},
			wantToken:  "shared-token",
			wantSender: "tenant-sender",
			wantSource: MessagingSourceShared,
		},
		{
			name:       "process default",
			defaults:   MessagingConfig{DefaultAccessToken: "default-token", DefaultSenderID: "default-sender"},
			wantToken:  "default-token",
			wantSender: "default-sender",
			wantSource: MessagingSourceDefault,
		},
		{
			name:     "no token anywhere",
			tenant:   &MessagingCredential{SenderID: "tenant-sender"},
			defaults: MessagingConfig{DefaultSenderID: "default-sender"},
			wantErr:  true,
		},
		{
			name:     "no sender anywhere",
			tenant:   &MessagingCredential{AccessToken: "tenant-token"},
			defaults: MessagingConfig{},
			wantErr:  true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newMemoryCredentialStore()
			if tc.tenant != nil {
				record := *tc.tenant
				record.TenantID = "t1"
				store.messaging["t1"] = record
			}
			if tc.shared != nil {
				store.shared[tc.shared.ID] = *tc.shared
			}
			cfg := Config{Messaging: tc.defaults}
			svc, err := NewService(cfg, WithCredentialStore(store))
			if err != nil {
				t.Fatalf("new service: %v", err)
			}

			credential, err := svc.ResolveMessagingCredential(context.Background(), "t1")
			if tc.wantErr {
				if !IsConfigurationError(err) {
					t.Fatalf("expected configuration error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("resolve messaging credential: %v", err)
			}
			if credential.AccessToken != tc.wantToken || credential.SenderID != tc.wantSender || credential.Source != tc.wantSource {
				t.Fatalf("unexpected credential %#v", credential)
			}
		})
	}
}

func TestResolveMessagingCredential_RequiresTenant(t *testing.T) {
	svc, err := newTestService(newMemoryCredentialStore())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	_, err = svc.ResolveMessagingCredential(context.Background(), " ")
	if !IsConfigurationError(err) || HTTPStatus(err) != 400 {
		t.Fatalf("expected bad input, got %v", err)
	}
}

func TestResolveMessagingCredentials_IsolatesFailures(t *testing.T) {
	store := newMemoryCredentialStore()
	store.messaging["ok"] = MessagingCredential{TenantID: "ok", AccessToken: "token", SenderID: "sender"}
	store.messaging["broken"] = MessagingCredential{TenantID: "broken", SenderID: "sender"}
	svc, err := newTestService(store)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	results := svc.ResolveMessagingCredentials(context.Background(), []string{"broken", "ok", ""})
	if len(results) != 3 {
		t.Fatalf("expected three results, got %d", len(results))
	}
	if !IsConfigurationError(results[0].Err) {
		t.Fatalf("expected configuration error for broken tenant, got %v", results[0].Err)
	}
	if results[1].Err != nil || results[1].Credential.AccessToken != "token" {
		t.Fatalf("expected ok tenant resolved, got %#v", results[1])
	}
	if results[2].Err == nil {
		t.Fatalf("expected error for empty tenant id")
	}
}

func TestDeleteDelegatedToken(t *testing.T) {
	store := newMemoryCredentialStore()
	store.seedDelegated(DelegatedTokenRecord{UserID: "u1", ProviderID: DefaultCalendarProviderID, AccessToken: "A"})
	svc, err := newTestService(store)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if err := svc.DeleteDelegatedToken(context.Background(), "u1", ""); err != nil {
		t.Fatalf("delete delegated token: %v", err)
	}
	if _, err := store.GetDelegatedToken(context.Background(), "u1", DefaultCalendarProviderID); err != ErrNotFound {
		t.Fatalf("expected record removed, got %v", err)
	}
	if err := svc.DeleteDelegatedToken(context.Background(), "", ""); !IsConfigurationError(err) {
		t.Fatalf("expected bad input for empty user, got %v", err)
	}
}
