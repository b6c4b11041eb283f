// Package messaging sends business-messaging provider messages with a
// resolved tenant credential.
package messaging

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/goccy/go-json"
	"github.com/goliatone/go-credential-broker/core"
)

const messagingProduct = "whatsapp"

type Sender struct {
	baseURL       string
	apiVersion    string
	clientFactory core.ClientFactory
}

func NewSender(cfg core.MessagingConfig, factory core.ClientFactory) *Sender {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = core.DefaultMessagingBaseURL
	}
	version := strings.Trim(strings.TrimSpace(cfg.APIVersion), "/")
	if version == "" {
		version = core.DefaultMessagingAPIVersion
	}
	return &Sender{baseURL: baseURL, apiVersion: version, clientFactory: factory}
}

type templateLanguage struct {
	Code string `json:"code"`
}

type templateBody struct {
	Name       string                          `json:"name"`
	Language   templateLanguage                `json:"language"`
	Components []core.MessageTemplateComponent `json:"components,omitempty"`
}

type textBody struct {
	Body       string `json:"body"`
	PreviewURL bool   `json:"preview_url,omitempty"`
}

type sendRequest struct {
	MessagingProduct string        `json:"messaging_product"`
	RecipientType    string        `json:"recipient_type"`
	To               string        `json:"to"`
	Type             string        `json:"type"`
	Text             *textBody     `json:"text,omitempty"`
	Template         *templateBody `json:"template,omitempty"`
}

type sendResponse struct {
	Contacts []struct {
		Input string `json:"input"`
		WaID  string `json:"wa_id"`
	} `json:"contacts"`
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

func buildRequest(recipient string, payload core.MessagePayload) sendRequest {
	req := sendRequest{
		MessagingProduct: messagingProduct,
		RecipientType:    "individual",
		To:               recipient,
		Type:             payload.Kind(),
	}
	if payload.Template != nil {
		req.Template = &templateBody{
			Name:       strings.TrimSpace(payload.Template.Name),
			Language:   templateLanguage{Code: strings.TrimSpace(payload.Template.Locale)},
			Components: payload.Template.Components,
		}
		return req
	}
	req.Text = &textBody{Body: payload.Text, PreviewURL: payload.PreviewURL}
	return req
}

// SendMessage posts one message to {base}/{version}/{senderID}/messages.
// Provider rejections are returned as core.UpstreamRejected with the
// provider's error message preserved.
func (s *Sender) SendMessage(ctx context.Context, credential core.MessagingCredential, recipient string, payload core.MessagePayload) (core.SendResult, error) {
	if s == nil || s.clientFactory == nil {
		return core.SendResult{}, core.ConfigurationError(credential.TenantID, "messaging client factory is not configured")
	}
	senderID := strings.TrimSpace(credential.SenderID)
	if senderID == "" {
		return core.SendResult{}, core.ConfigurationError(credential.TenantID, "no messaging sender id configured", "sender_id")
	}
	if err := payload.Validate(); err != nil {
		return core.SendResult{}, err
	}
	recipient = normalizeRecipient(recipient)
	if recipient == "" {
		return core.SendResult{}, core.BadInput("recipient is required")
	}

	body, err := json.Marshal(buildRequest(recipient, payload))
	if err != nil {
		return core.SendResult{}, fmt.Errorf("messaging: encode send request: %w", err)
	}
	client := s.clientFactory(s.baseURL, credential.AccessToken)
	res, err := client.Do(ctx, core.TransportRequest{
		Method:  http.MethodPost,
		Path:    fmt.Sprintf("/%s/%s/messages", s.apiVersion, url.PathEscape(senderID)),
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    body,
	})
	if err != nil {
		return core.SendResult{}, err
	}

	var decoded sendResponse
	if err := json.Unmarshal(res.Body, &decoded); err != nil {
		return core.SendResult{}, core.MalformedUpstreamResponse(err, "messaging send response is not valid json")
	}
	if len(decoded.Messages) == 0 || strings.TrimSpace(decoded.Messages[0].ID) == "" {
		return core.SendResult{}, core.MalformedUpstreamResponse(nil, "messaging send response has no message id")
	}
	result := core.SendResult{ProviderMessageID: decoded.Messages[0].ID, Recipient: recipient}
	if len(decoded.Contacts) > 0 && decoded.Contacts[0].WaID != "" {
		result.Recipient = decoded.Contacts[0].WaID
	}
	return result, nil
}

// normalizeRecipient strips phone formatting; the provider expects digits only.
func normalizeRecipient(recipient string) string {
	recipient = strings.TrimSpace(recipient)
	var b strings.Builder
	for _, r := range recipient {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return recipient
	}
	return b.String()
}

var _ core.MessageSender = (*Sender)(nil)
