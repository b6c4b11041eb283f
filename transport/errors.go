package transport

import (
	"strings"

	"github.com/goccy/go-json"
	"github.com/goliatone/go-credential-broker/core"
	goerrors "github.com/goliatone/go-errors"
)

const maxProviderBodyInError = 2048

func transportError(
	message string,
	category goerrors.Category,
	code int,
	metadata map[string]any,
) error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(transportTextCode(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func transportWrapError(
	source error,
	category goerrors.Category,
	message string,
	code int,
	metadata map[string]any,
) error {
	if source == nil {
		return transportError(message, category, code, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(transportTextCode(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func transportTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return core.ErrorBadInput
	case goerrors.CategoryExternal:
		return core.ErrorUpstreamRejected
	default:
		return core.ErrorInternal
	}
}

// rejectedResponse wraps a non-2xx provider response. The provider's message
// is surfaced as-is and the raw body kept in metadata.
func rejectedResponse(statusCode int, body []byte, metadata map[string]any) error {
	err := core.UpstreamRejected(statusCode, ProviderMessage(body))
	fields := map[string]any{
		core.MetadataProviderStatus:  statusCode,
		core.MetadataProviderMessage: ProviderMessage(body),
		"provider_body":              truncateBody(body),
	}
	for key, value := range metadata {
		fields[key] = value
	}
	err.WithMetadata(fields)
	return err
}

type providerErrorEnvelope struct {
	Error            json.RawMessage `json:"error"`
	ErrorDescription string          `json:"error_description"`
	Message          string          `json:"message"`
}

type providerErrorBody struct {
	Code    any    `json:"code"`
	Message string `json:"message"`
}

// ProviderMessage extracts the human readable reason from a provider error
// body. Graph, messaging and OAuth style envelopes are recognised; anything
// else is returned verbatim.
func ProviderMessage(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return ""
	}
	var envelope providerErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return truncateBody(body)
	}
	if len(envelope.Error) > 0 {
		var nested providerErrorBody
		if err := json.Unmarshal(envelope.Error, &nested); err == nil && strings.TrimSpace(nested.Message) != "" {
			return strings.TrimSpace(nested.Message)
		}
		var code string
		if err := json.Unmarshal(envelope.Error, &code); err == nil && strings.TrimSpace(code) != "" {
			if description := strings.TrimSpace(envelope.ErrorDescription); description != "" {
				return description
			}
			return strings.TrimSpace(code)
		}
	}
	if message := strings.TrimSpace(envelope.Message); message != "" {
		return message
	}
	return truncateBody(body)
}

func truncateBody(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if len(trimmed) > maxProviderBodyInError {
		return trimmed[:maxProviderBodyInError]
	}
	return trimmed
}
