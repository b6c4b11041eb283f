package core

import (
	"context"
	"strings"
	"time"
)

const (
	MessageTypeText     = "text"
	MessageTypeTemplate = "template"
)

type MessageTemplateParameter struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type MessageTemplateComponent struct {
	Type       string                     `json:"type"`
	Parameters []MessageTemplateParameter `json:"parameters,omitempty"`
}

type MessageTemplate struct {
	Name       string
	Locale     string
	Components []MessageTemplateComponent
}

// MessagePayload carries either free text or a named template, never both.
type MessagePayload struct {
	Text       string
	PreviewURL bool
	Template   *MessageTemplate
}

func (p MessagePayload) Kind() string {
	if p.Template != nil {
		return MessageTypeTemplate
	}
	return MessageTypeText
}

func (p MessagePayload) Validate() error {
	hasText := strings.TrimSpace(p.Text) != ""
	switch {
	case p.Template != nil && hasText:
		return BadInput("message payload must be either text or template")
	case p.Template != nil:
		if strings.TrimSpace(p.Template.Name) == "" {
			return BadInput("message template name is required")
		}
		if strings.TrimSpace(p.Template.Locale) == "" {
			return BadInput("message template locale is required")
		}
	case !hasText:
		return BadInput("message text or template is required")
	}
	return nil
}

type SendResult struct {
	ProviderMessageID string
	Recipient         string
}

type MessageSender interface {
	SendMessage(ctx context.Context, credential MessagingCredential, recipient string, payload MessagePayload) (SendResult, error)
}

// Lead is an inbound contact that gets an acknowledgment message. The broker
// never stores it.
type Lead struct {
	Name   string
	Phone  string
	Source string
}

// LeadAcknowledgment builds the template payload sent back to a lead. The
// lead's name fills the body's single parameter when present.
func LeadAcknowledgment(lead Lead, templateName string, locale string) MessagePayload {
	template := &MessageTemplate{
		Name:   strings.TrimSpace(templateName),
		Locale: strings.TrimSpace(locale),
	}
	if name := strings.TrimSpace(lead.Name); name != "" {
		template.Components = []MessageTemplateComponent{{
			Type:       "body",
			Parameters: []MessageTemplateParameter{{Type: MessageTypeText, Text: name}},
		}}
	}
	return MessagePayload{Template: template}
}

// SendMessage delivers payload with an already resolved credential.
func (s *Service) SendMessage(ctx context.Context, credential MessagingCredential, recipient string, payload MessagePayload) (result SendResult, err error) {
	startedAt := time.Now()
	recipient = strings.TrimSpace(recipient)
	defer func() {
		s.observer.observeOperation(ctx, startedAt, "send_message", err, map[string]any{
			"tenant_id":         credential.TenantID,
			"sender_id":         credential.SenderID,
			"credential_source": string(credential.Source),
			"message_type":      payload.Kind(),
		})
	}()
	if s.sender == nil {
		return SendResult{}, ConfigurationError(credential.TenantID, "message sender is not configured")
	}
	if recipient == "" {
		return SendResult{}, BadInput("recipient is required")
	}
	if strings.TrimSpace(credential.AccessToken) == "" || strings.TrimSpace(credential.SenderID) == "" {
		return SendResult{}, ConfigurationError(credential.TenantID, "messaging credential is incomplete", "access_token", "sender_id")
	}
	if err := payload.Validate(); err != nil {
		return SendResult{}, err
	}
	return s.sender.SendMessage(ctx, credential, recipient, payload)
}

// AcknowledgeLead resolves the tenant's messaging credential and sends the
// configured acknowledgment template to the lead's phone.
func (s *Service) AcknowledgeLead(ctx context.Context, tenantID string, lead Lead) (SendResult, error) {
	if strings.TrimSpace(lead.Phone) == "" {
		return SendResult{}, BadInput("lead phone is required")
	}
	credential, err := s.ResolveMessagingCredential(ctx, tenantID)
	if err != nil {
		return SendResult{}, err
	}
	payload := LeadAcknowledgment(lead, s.config.Messaging.LeadTemplate, s.config.Messaging.LeadTemplateLocale)
	return s.SendMessage(ctx, credential, lead.Phone, payload)
}
