package command

import (
	"strings"

	"github.com/goliatone/go-credential-broker/core"
)

const (
	TypeSendMessage          = "broker.command.message.send"
	TypeAcknowledgeLead      = "broker.command.lead.acknowledge"
	TypeDeleteDelegatedToken = "broker.command.delegated_token.delete"
)

// SendMessageMessage sends Payload to Recipient with the tenant's resolved
// messaging credential.
type SendMessageMessage struct {
	TenantID  string
	Recipient string
	Payload   core.MessagePayload
}

func (SendMessageMessage) Type() string { return TypeSendMessage }

func (m SendMessageMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return commandValidationError("tenant_id", "tenant id is required")
	}
	if strings.TrimSpace(m.Recipient) == "" {
		return commandValidationError("recipient", "recipient is required")
	}
	return commandWrapValidation(m.Payload.Validate(), "command: invalid message payload")
}

type AcknowledgeLeadMessage struct {
	TenantID string
	Lead     core.Lead
}

func (AcknowledgeLeadMessage) Type() string { return TypeAcknowledgeLead }

func (m AcknowledgeLeadMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return commandValidationError("tenant_id", "tenant id is required")
	}
	if strings.TrimSpace(m.Lead.Phone) == "" {
		return commandValidationError("lead.phone", "lead phone is required")
	}
	return nil
}

// DeleteDelegatedTokenMessage unlinks a user's delegated grant. An empty
// ProviderID means the calendar provider.
type DeleteDelegatedTokenMessage struct {
	UserID     string
	ProviderID string
}

func (DeleteDelegatedTokenMessage) Type() string { return TypeDeleteDelegatedToken }

func (m DeleteDelegatedTokenMessage) Validate() error {
	if strings.TrimSpace(m.UserID) == "" {
		return commandValidationError("user_id", "user id is required")
	}
	return nil
}
