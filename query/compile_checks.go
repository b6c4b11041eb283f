package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-credential-broker/core"
)

var (
	_ gocmd.Querier[ListMeetingsMessage, []core.OnlineMeetingRecord]                      = (*ListMeetingsQuery)(nil)
	_ gocmd.Querier[ResolveMessagingCredentialMessage, core.MessagingCredential]          = (*ResolveMessagingCredentialQuery)(nil)
	_ gocmd.Querier[ResolveMessagingCredentialsMessage, []core.MessagingCredentialResult] = (*ResolveMessagingCredentialsQuery)(nil)
)
