package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorUnauthorized         = "BROKER_UNAUTHORIZED"
	ErrorConfiguration        = "BROKER_CONFIGURATION_ERROR"
	ErrorBadInput             = "BROKER_BAD_INPUT"
	ErrorCredentialExpired    = "BROKER_CREDENTIAL_EXPIRED"
	ErrorUpstreamRejected     = "BROKER_UPSTREAM_REJECTED"
	ErrorMalformedUpstream    = "BROKER_MALFORMED_UPSTREAM"
	ErrorCanceled             = "BROKER_CANCELED"
	ErrorInternal             = "BROKER_INTERNAL_ERROR"
	MetadataProviderMessage   = "provider_message"
	MetadataProviderStatus    = "provider_status"
	MetadataMissingFields     = "missing_fields"
	metadataTenantID          = "tenant_id"
	metadataUserID            = "user_id"
	defaultUnauthorizedReason = "no usable credential for request"
)

type ErrorFactory func(message string, category ...goerrors.Category) *goerrors.Error

type ErrorMapper func(err error) *goerrors.Error

// Unauthorized reports that no credential tier applies to the request.
func Unauthorized(message string) *goerrors.Error {
	if strings.TrimSpace(message) == "" {
		message = defaultUnauthorizedReason
	}
	return goerrors.New(message, goerrors.CategoryAuth).
		WithCode(http.StatusUnauthorized).
		WithTextCode(ErrorUnauthorized)
}

// ConfigurationError reports an incomplete tenant setup.
func ConfigurationError(tenantID string, message string, missing ...string) *goerrors.Error {
	err := goerrors.New(message, goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(ErrorConfiguration)
	metadata := map[string]any{metadataTenantID: strings.TrimSpace(tenantID)}
	if len(missing) > 0 {
		metadata[MetadataMissingFields] = append([]string(nil), missing...)
	}
	err.WithMetadata(metadata)
	return err
}

// WrapConfigurationError keeps the upstream reason of a configuration failure.
func WrapConfigurationError(source error, tenantID string, message string) *goerrors.Error {
	if source == nil {
		return ConfigurationError(tenantID, message)
	}
	err := goerrors.Wrap(source, goerrors.CategoryInternal, message+": "+source.Error()).
		WithCode(http.StatusInternalServerError).
		WithTextCode(ErrorConfiguration)
	err.WithMetadata(map[string]any{
		metadataTenantID:        strings.TrimSpace(tenantID),
		MetadataProviderMessage: source.Error(),
	})
	return err
}

// BadInput is the caller-fault flavour of a configuration gap.
func BadInput(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(ErrorBadInput)
}

func CredentialExpired(userID string, providerID string, source error) *goerrors.Error {
	message := fmt.Sprintf("delegated credential for user %q expired and could not be refreshed", strings.TrimSpace(userID))
	var err *goerrors.Error
	if source != nil {
		err = goerrors.Wrap(source, goerrors.CategoryAuth, message+": "+source.Error())
	} else {
		err = goerrors.New(message, goerrors.CategoryAuth)
	}
	err = err.WithCode(http.StatusUnauthorized).WithTextCode(ErrorCredentialExpired)
	metadata := map[string]any{
		metadataUserID: strings.TrimSpace(userID),
		"provider_id":  strings.TrimSpace(providerID),
	}
	if source != nil {
		metadata[MetadataProviderMessage] = source.Error()
	}
	err.WithMetadata(metadata)
	return err
}

// UpstreamRejected wraps a non-success provider response. The provider message is
// kept verbatim.
func UpstreamRejected(statusCode int, providerMessage string) *goerrors.Error {
	providerMessage = strings.TrimSpace(providerMessage)
	message := fmt.Sprintf("upstream rejected request (%d)", statusCode)
	if providerMessage != "" {
		message += ": " + providerMessage
	}
	code := statusCode
	if code < http.StatusBadRequest {
		code = http.StatusBadGateway
	}
	err := goerrors.New(message, goerrors.CategoryExternal).
		WithCode(code).
		WithTextCode(ErrorUpstreamRejected)
	err.WithMetadata(map[string]any{
		MetadataProviderStatus:  statusCode,
		MetadataProviderMessage: providerMessage,
	})
	return err
}

func UpstreamUnavailable(source error, message string) *goerrors.Error {
	if source == nil {
		return UpstreamRejected(http.StatusBadGateway, message)
	}
	err := goerrors.Wrap(source, goerrors.CategoryExternal, message).
		WithCode(http.StatusBadGateway).
		WithTextCode(ErrorUpstreamRejected)
	err.WithMetadata(map[string]any{MetadataProviderMessage: source.Error()})
	return err
}

func MalformedUpstreamResponse(source error, message string) *goerrors.Error {
	var err *goerrors.Error
	if source != nil {
		err = goerrors.Wrap(source, goerrors.CategoryExternal, message+": "+source.Error())
	} else {
		err = goerrors.New(message, goerrors.CategoryExternal)
	}
	return err.WithCode(http.StatusBadGateway).WithTextCode(ErrorMalformedUpstream)
}

func IsUnauthorized(err error) bool { return hasTextCode(err, ErrorUnauthorized) }

func IsConfigurationError(err error) bool {
	return hasTextCode(err, ErrorConfiguration) || hasTextCode(err, ErrorBadInput)
}

func IsCredentialExpired(err error) bool { return hasTextCode(err, ErrorCredentialExpired) }

func IsUpstreamRejected(err error) bool { return hasTextCode(err, ErrorUpstreamRejected) }

func IsMalformedUpstream(err error) bool { return hasTextCode(err, ErrorMalformedUpstream) }

func hasTextCode(err error, code string) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == code
}

// HTTPStatus maps a broker error to the status the web layer answers with.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	mapped := MapError(err)
	if mapped.Code > 0 {
		return mapped.Code
	}
	return categoryHTTPStatus(mapped.Category)
}

// MapError converts any error into the broker taxonomy.
func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureErrorEnvelope(richErr)
	}
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ensureErrorEnvelope(
			goerrors.Wrap(err, goerrors.CategoryOperation, "request canceled").
				WithCode(http.StatusGatewayTimeout).
				WithTextCode(ErrorCanceled),
		)
	case errors.Is(err, ErrNotFound):
		return ensureErrorEnvelope(goerrors.New(err.Error(), goerrors.CategoryNotFound))
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "required") || strings.Contains(msg, "invalid") {
		return BadInput(err.Error())
	}
	return ensureErrorEnvelope(goerrors.MapToError(err, goerrors.DefaultErrorMappers()))
}

func ensureErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = categoryHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ErrorBadInput
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return ErrorUnauthorized
	case goerrors.CategoryExternal:
		return ErrorUpstreamRejected
	default:
		return ErrorInternal
	}
}

func categoryHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
