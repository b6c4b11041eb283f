package query

import (
	"context"
	"time"

	"github.com/goliatone/go-credential-broker/core"
)

type MeetingsReader interface {
	ListMeetingsInWindow(ctx context.Context, req core.CalendarAccessRequest, start time.Time, end time.Time) ([]core.OnlineMeetingRecord, error)
	ListCurrentMeetings(ctx context.Context, req core.CalendarAccessRequest) ([]core.OnlineMeetingRecord, error)
}

type MessagingCredentialReader interface {
	ResolveMessagingCredential(ctx context.Context, tenantID string) (core.MessagingCredential, error)
	ResolveMessagingCredentials(ctx context.Context, tenantIDs []string) []core.MessagingCredentialResult
}

type ListMeetingsQuery struct {
	reader MeetingsReader
}

func NewListMeetingsQuery(reader MeetingsReader) *ListMeetingsQuery {
	return &ListMeetingsQuery{reader: reader}
}

func (q *ListMeetingsQuery) Query(ctx context.Context, msg ListMeetingsMessage) ([]core.OnlineMeetingRecord, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: meetings reader is required")
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	if msg.Current() {
		return q.reader.ListCurrentMeetings(ctx, msg.Access)
	}
	return q.reader.ListMeetingsInWindow(ctx, msg.Access, msg.Start, msg.End)
}

type ResolveMessagingCredentialQuery struct {
	reader MessagingCredentialReader
}

func NewResolveMessagingCredentialQuery(reader MessagingCredentialReader) *ResolveMessagingCredentialQuery {
	return &ResolveMessagingCredentialQuery{reader: reader}
}

func (q *ResolveMessagingCredentialQuery) Query(
	ctx context.Context,
	msg ResolveMessagingCredentialMessage,
) (core.MessagingCredential, error) {
	if q == nil || q.reader == nil {
		return core.MessagingCredential{}, queryDependencyError("query: messaging credential reader is required")
	}
	if err := msg.Validate(); err != nil {
		return core.MessagingCredential{}, err
	}
	return q.reader.ResolveMessagingCredential(ctx, msg.TenantID)
}

type ResolveMessagingCredentialsQuery struct {
	reader MessagingCredentialReader
}

func NewResolveMessagingCredentialsQuery(reader MessagingCredentialReader) *ResolveMessagingCredentialsQuery {
	return &ResolveMessagingCredentialsQuery{reader: reader}
}

// Query never fails for a single tenant; per-tenant errors are carried in the
// results.
func (q *ResolveMessagingCredentialsQuery) Query(
	ctx context.Context,
	msg ResolveMessagingCredentialsMessage,
) ([]core.MessagingCredentialResult, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: messaging credential reader is required")
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return q.reader.ResolveMessagingCredentials(ctx, msg.TenantIDs), nil
}
