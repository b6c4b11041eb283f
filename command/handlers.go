package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-credential-broker/core"
)

type MessagingService interface {
	ResolveMessagingCredential(ctx context.Context, tenantID string) (core.MessagingCredential, error)
	SendMessage(ctx context.Context, credential core.MessagingCredential, recipient string, payload core.MessagePayload) (core.SendResult, error)
	AcknowledgeLead(ctx context.Context, tenantID string, lead core.Lead) (core.SendResult, error)
}

type DelegatedTokenService interface {
	DeleteDelegatedToken(ctx context.Context, userID string, providerID string) error
}

type SendMessageCommand struct {
	service MessagingService
}

func NewSendMessageCommand(service MessagingService) *SendMessageCommand {
	return &SendMessageCommand{service: service}
}

func (c *SendMessageCommand) Execute(ctx context.Context, msg SendMessageMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: messaging service is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	credential, err := c.service.ResolveMessagingCredential(ctx, msg.TenantID)
	if err != nil {
		return err
	}
	out, err := c.service.SendMessage(ctx, credential, msg.Recipient, msg.Payload)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type AcknowledgeLeadCommand struct {
	service MessagingService
}

func NewAcknowledgeLeadCommand(service MessagingService) *AcknowledgeLeadCommand {
	return &AcknowledgeLeadCommand{service: service}
}

func (c *AcknowledgeLeadCommand) Execute(ctx context.Context, msg AcknowledgeLeadMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: messaging service is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	out, err := c.service.AcknowledgeLead(ctx, msg.TenantID, msg.Lead)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type DeleteDelegatedTokenCommand struct {
	service DelegatedTokenService
}

func NewDeleteDelegatedTokenCommand(service DelegatedTokenService) *DeleteDelegatedTokenCommand {
	return &DeleteDelegatedTokenCommand{service: service}
}

func (c *DeleteDelegatedTokenCommand) Execute(ctx context.Context, msg DeleteDelegatedTokenMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: delegated token service is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	return c.service.DeleteDelegatedToken(ctx, msg.UserID, msg.ProviderID)
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
