package query

import (
	"strings"
	"time"

	"github.com/goliatone/go-credential-broker/core"
)

const (
	TypeListMeetings                = "broker.query.meetings.list"
	TypeResolveMessagingCredential  = "broker.query.messaging_credential.resolve"
	TypeResolveMessagingCredentials = "broker.query.messaging_credential.resolve_bulk"
)

// ListMeetingsMessage lists online meetings in [Start, End). A zero window
// selects the rolling current window.
type ListMeetingsMessage struct {
	Access core.CalendarAccessRequest
	Start  time.Time
	End    time.Time
}

func (ListMeetingsMessage) Type() string { return TypeListMeetings }

func (m ListMeetingsMessage) Current() bool {
	return m.Start.IsZero() && m.End.IsZero()
}

func (m ListMeetingsMessage) Validate() error {
	if strings.TrimSpace(m.Access.TenantID) == "" {
		return queryValidationError("tenant_id", "tenant id is required")
	}
	if m.Current() {
		return nil
	}
	if m.Start.IsZero() || m.End.IsZero() {
		return queryValidationError("window", "both window bounds are required")
	}
	if !m.End.After(m.Start) {
		return queryValidationError("window", "window end must be after start")
	}
	return nil
}

type ResolveMessagingCredentialMessage struct {
	TenantID string
}

func (ResolveMessagingCredentialMessage) Type() string { return TypeResolveMessagingCredential }

func (m ResolveMessagingCredentialMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return queryValidationError("tenant_id", "tenant id is required")
	}
	return nil
}

type ResolveMessagingCredentialsMessage struct {
	TenantIDs []string
}

func (ResolveMessagingCredentialsMessage) Type() string { return TypeResolveMessagingCredentials }

func (m ResolveMessagingCredentialsMessage) Validate() error {
	if len(m.TenantIDs) == 0 {
		return queryValidationError("tenant_ids", "at least one tenant id is required")
	}
	return nil
}
