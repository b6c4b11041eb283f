package core

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound   = errors.New("core: record not found")
	ErrStaleWrite = errors.New("core: stale delegated token write")
)

// SelfMailbox addresses the mailbox of whoever owns the bearer token.
const SelfMailbox = "me"

const DefaultCalendarProviderID = "microsoft_graph"

type Tier string

const (
	TierSession     Tier = "session"
	TierDelegated   Tier = "delegated"
	TierApplication Tier = "application"
)

func (t Tier) String() string {
	return string(t)
}

// TenantCredentials is the tenant's app registration. It is administered outside
// the broker and never written by it.
type TenantCredentials struct {
	TenantID           string
	AppClientID        string
	AppClientSecret    string
	AppDirectoryID     string
	CoordinatorMailbox string
	UpdatedAt          time.Time
}

// MissingAppFields lists the app registration fields required for a
// client-credentials exchange that are not set.
func (c TenantCredentials) MissingAppFields() []string {
	missing := []string{}
	if strings.TrimSpace(c.AppClientID) == "" {
		missing = append(missing, "app_client_id")
	}
	if strings.TrimSpace(c.AppClientSecret) == "" {
		missing = append(missing, "app_client_secret")
	}
	if strings.TrimSpace(c.AppDirectoryID) == "" {
		missing = append(missing, "app_directory_id")
	}
	return missing
}

func (c TenantCredentials) HasCoordinator() bool {
	return strings.TrimSpace(c.CoordinatorMailbox) != ""
}

// DelegatedTokenRecord is a per (user, provider) token obtained through the
// user's consent. Version guards in-place updates.
type DelegatedTokenRecord struct {
	UserID       string
	ProviderID   string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	BoundMailbox string
	Version      int
	UpdatedAt    time.Time
}

func (r DelegatedTokenRecord) Key() string {
	return DelegatedTokenKey(r.UserID, r.ProviderID)
}

func DelegatedTokenKey(userID, providerID string) string {
	return strings.TrimSpace(userID) + "|" + strings.ToLower(strings.TrimSpace(providerID))
}

// FreshAt reports whether the access token can be used at now without a refresh.
func (r DelegatedTokenRecord) FreshAt(now time.Time, skew time.Duration) bool {
	if strings.TrimSpace(r.AccessToken) == "" || r.ExpiresAt.IsZero() {
		return false
	}
	return now.Before(r.ExpiresAt.Add(-skew))
}

type MessagingCredential struct {
	TenantID            string
	AccessToken         string
	SenderID            string
	CatalogID           string
	SharedIntegrationID string
	Source              MessagingCredentialSource
}

type MessagingCredentialSource string

const (
	MessagingSourceTenant  MessagingCredentialSource = "tenant"
	MessagingSourceShared  MessagingCredentialSource = "shared_integration"
	MessagingSourceDefault MessagingCredentialSource = "default"
)

// SharedIntegration is a platform level messaging integration several tenants may point at.
type SharedIntegration struct {
	ID          string
	AccessToken string
	SenderID    string
	CatalogID   string
}

type UserProfile struct {
	UserID             string
	ProviderMailbox    string
	ProviderEmail      string
	LinkedAccountEmail string
}

// OnlineMeetingRecord is produced per query and never cached.
type OnlineMeetingRecord struct {
	EventID           string
	Subject           string
	Start             time.Time
	End               time.Time
	OrganizerMailbox  string
	MailboxQueried    string
	JoinURL           string
	ProviderMeetingID string
}
