package broker

import "github.com/goliatone/go-credential-broker/core"

type Config = core.Config

type Option = core.Option

type CredentialStore = core.CredentialStore
type TenantCredentialStore = core.TenantCredentialStore

type CalendarAccessRequest = core.CalendarAccessRequest
type CalendarAccess = core.CalendarAccess
type OnlineMeetingRecord = core.OnlineMeetingRecord

type MessagingCredential = core.MessagingCredential
type MessagingCredentialResult = core.MessagingCredentialResult
type MessagePayload = core.MessagePayload
type SendResult = core.SendResult
type Lead = core.Lead

var (
	WithLogger                = core.WithLogger
	WithLoggerProvider        = core.WithLoggerProvider
	WithMetricsRecorder       = core.WithMetricsRecorder
	WithErrorMapper           = core.WithErrorMapper
	WithConfigProvider        = core.WithConfigProvider
	WithOptionsResolver       = core.WithOptionsResolver
	WithCredentialStore       = core.WithCredentialStore
	WithTenantCredentialStore = core.WithTenantCredentialStore
	WithRefreshExchanger      = core.WithRefreshExchanger
	WithAppTokenExchanger     = core.WithAppTokenExchanger
	WithClientFactory         = core.WithClientFactory
	WithMessageSender         = core.WithMessageSender
	WithClock                 = core.WithClock
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}
