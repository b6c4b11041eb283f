// Package broker resolves calendar and messaging credentials for a
// multi-tenant platform and lists online meetings with them.
package broker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-credential-broker/auth"
	brokercommand "github.com/goliatone/go-credential-broker/command"
	"github.com/goliatone/go-credential-broker/core"
	"github.com/goliatone/go-credential-broker/meetings"
	"github.com/goliatone/go-credential-broker/messaging"
	brokerquery "github.com/goliatone/go-credential-broker/query"
	"github.com/goliatone/go-credential-broker/transport"
)

type Commands struct {
	SendMessage          *brokercommand.SendMessageCommand
	AcknowledgeLead      *brokercommand.AcknowledgeLeadCommand
	DeleteDelegatedToken *brokercommand.DeleteDelegatedTokenCommand
}

type Queries struct {
	ListMeetings                *brokerquery.ListMeetingsQuery
	ResolveMessagingCredential  *brokerquery.ResolveMessagingCredentialQuery
	ResolveMessagingCredentials *brokerquery.ResolveMessagingCredentialsQuery
}

type Broker struct {
	service    *core.Service
	aggregator *meetings.Aggregator
	commands   Commands
	queries    Queries
}

// New builds a broker on the given credential store. The OAuth2 exchangers,
// the HTTP client factory and the messaging sender are wired by default; any
// of them can be replaced through opts.
func New(cfg Config, opts ...Option) (*Broker, error) {
	options := append(defaultOptions(), opts...)
	service, err := core.NewService(cfg, options...)
	if err != nil {
		return nil, err
	}
	return NewFromService(service)
}

func NewFromService(service *core.Service) (*Broker, error) {
	if service == nil {
		return nil, fmt.Errorf("broker: core service is required")
	}
	resolved := service.Config()
	b := &Broker{
		service: service,
		aggregator: meetings.NewAggregator(
			meetings.WithPageSize(resolved.Calendar.MeetingPageSize),
			meetings.WithLogger(service.Logger()),
		),
	}
	b.commands = Commands{
		SendMessage:          brokercommand.NewSendMessageCommand(b),
		AcknowledgeLead:      brokercommand.NewAcknowledgeLeadCommand(b),
		DeleteDelegatedToken: brokercommand.NewDeleteDelegatedTokenCommand(b),
	}
	b.queries = Queries{
		ListMeetings:                brokerquery.NewListMeetingsQuery(b),
		ResolveMessagingCredential:  brokerquery.NewResolveMessagingCredentialQuery(b),
		ResolveMessagingCredentials: brokerquery.NewResolveMessagingCredentialsQuery(b),
	}
	return b, nil
}

func defaultOptions() []Option {
	return []Option{
		core.WithClientFactory(transport.NewClientFactory(nil)),
		core.WithRefreshExchangerFactory(func(cfg core.Config) core.RefreshExchanger {
			exchangerConfig := auth.ConfigFromCalendar(cfg.Calendar)
			exchangerConfig.Timeout = cfg.Tokens.RefreshTimeout
			return auth.NewRefreshTokenExchanger(exchangerConfig)
		}),
		core.WithAppTokenExchangerFactory(func(cfg core.Config) core.AppTokenExchanger {
			exchangerConfig := auth.ConfigFromCalendar(cfg.Calendar)
			exchangerConfig.Timeout = cfg.Tokens.RefreshTimeout
			return auth.NewClientCredentialsExchanger(exchangerConfig)
		}),
		core.WithMessageSenderFactory(func(cfg core.Config, clients core.ClientFactory) core.MessageSender {
			return messaging.NewSender(cfg.Messaging, clients)
		}),
	}
}

func (b *Broker) Service() *core.Service {
	if b == nil {
		return nil
	}
	return b.service
}

func (b *Broker) Config() Config {
	if b == nil || b.service == nil {
		return Config{}
	}
	return b.service.Config()
}

func (b *Broker) Commands() Commands {
	if b == nil {
		return Commands{}
	}
	return b.commands
}

func (b *Broker) Queries() Queries {
	if b == nil {
		return Queries{}
	}
	return b.queries
}

func (b *Broker) ResolveCalendarAccess(ctx context.Context, req CalendarAccessRequest) (CalendarAccess, error) {
	return b.service.ResolveCalendarAccess(ctx, req)
}

// ListMeetingsInWindow resolves calendar access for req and lists the online
// meetings starting in [start, end) of the resolved mailbox.
func (b *Broker) ListMeetingsInWindow(
	ctx context.Context,
	req CalendarAccessRequest,
	start time.Time,
	end time.Time,
) ([]OnlineMeetingRecord, error) {
	access, err := b.service.ResolveCalendarAccess(ctx, req)
	if err != nil {
		return nil, err
	}
	records, err := b.aggregator.ListOnlineMeetings(ctx, access.Client, access.Mailbox, start, end)
	if err != nil {
		return nil, err
	}
	b.service.Logger().Debug("listed online meetings",
		"tenant_id", strings.TrimSpace(req.TenantID),
		"tier", access.Tier.String(),
		"mailbox", access.Mailbox,
		"count", len(records),
	)
	return records, nil
}

// ListCurrentMeetings lists meetings in the configured rolling window around
// the service clock.
func (b *Broker) ListCurrentMeetings(ctx context.Context, req CalendarAccessRequest) ([]OnlineMeetingRecord, error) {
	cfg := b.service.Config()
	start, end := meetings.RollingWindow(b.service.Now(), cfg.Meetings.LookBack, cfg.Meetings.LookAhead)
	return b.ListMeetingsInWindow(ctx, req, start, end)
}

func (b *Broker) ResolveMessagingCredential(ctx context.Context, tenantID string) (MessagingCredential, error) {
	return b.service.ResolveMessagingCredential(ctx, tenantID)
}

func (b *Broker) ResolveMessagingCredentials(ctx context.Context, tenantIDs []string) []MessagingCredentialResult {
	return b.service.ResolveMessagingCredentials(ctx, tenantIDs)
}

func (b *Broker) SendMessage(
	ctx context.Context,
	credential MessagingCredential,
	recipient string,
	payload MessagePayload,
) (SendResult, error) {
	return b.service.SendMessage(ctx, credential, recipient, payload)
}

// SendTenantMessage resolves the tenant's messaging credential and sends
// payload with it.
func (b *Broker) SendTenantMessage(
	ctx context.Context,
	tenantID string,
	recipient string,
	payload MessagePayload,
) (SendResult, error) {
	credential, err := b.service.ResolveMessagingCredential(ctx, tenantID)
	if err != nil {
		return SendResult{}, err
	}
	return b.service.SendMessage(ctx, credential, recipient, payload)
}

func (b *Broker) AcknowledgeLead(ctx context.Context, tenantID string, lead Lead) (SendResult, error) {
	return b.service.AcknowledgeLead(ctx, tenantID, lead)
}

func (b *Broker) DeleteDelegatedToken(ctx context.Context, userID string, providerID string) error {
	return b.service.DeleteDelegatedToken(ctx, userID, providerID)
}

var (
	_ brokercommand.MessagingService        = (*Broker)(nil)
	_ brokercommand.DelegatedTokenService   = (*Broker)(nil)
	_ brokerquery.MeetingsReader            = (*Broker)(nil)
	_ brokerquery.MessagingCredentialReader = (*Broker)(nil)
)
