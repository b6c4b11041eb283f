package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[SendMessageMessage]          = (*SendMessageCommand)(nil)
	_ gocmd.Commander[AcknowledgeLeadMessage]      = (*AcknowledgeLeadCommand)(nil)
	_ gocmd.Commander[DeleteDelegatedTokenMessage] = (*DeleteDelegatedTokenCommand)(nil)
)
