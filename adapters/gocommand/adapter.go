package gocommand

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	broker "github.com/goliatone/go-credential-broker"
	brokercommand "github.com/goliatone/go-credential-broker/command"
	"github.com/goliatone/go-credential-broker/core"
	brokerquery "github.com/goliatone/go-credential-broker/query"
)

// ValidateMessageContract enforces Type() plus optional Validate() contract.
func ValidateMessageContract(msg any) error {
	if err := command.ValidateMessage(msg); err != nil {
		return err
	}
	m, ok := msg.(command.Message)
	if !ok {
		return fmt.Errorf("gocommand: message must implement Type() string")
	}
	if strings.TrimSpace(m.Type()) == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	return nil
}

type RegistryAdapter struct {
	registry *command.Registry
}

func NewRegistryAdapter(registry *command.Registry) *RegistryAdapter {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &RegistryAdapter{registry: registry}
}

func (a *RegistryAdapter) Registry() *command.Registry {
	if a == nil {
		return nil
	}
	return a.registry
}

func (a *RegistryAdapter) register(handler any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(handler)
}

func (a *RegistryAdapter) Initialize() error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.Initialize()
}

// Handlers is what a broker publishes on the dispatcher.
type Handlers interface {
	Commands() broker.Commands
	Queries() broker.Queries
}

// Registration owns the dispatcher subscriptions made by RegisterBroker.
type Registration struct {
	subscriptions []commanddispatcher.Subscription
}

// Close unsubscribes every handler. Safe to call more than once.
func (r *Registration) Close() {
	if r == nil {
		return
	}
	for _, subscription := range r.subscriptions {
		if subscription != nil {
			subscription.Unsubscribe()
		}
	}
	r.subscriptions = nil
}

func (r *Registration) add(subscription commanddispatcher.Subscription, err error) error {
	if err != nil {
		return err
	}
	r.subscriptions = append(r.subscriptions, subscription)
	return nil
}

// RegisterBroker subscribes the broker's commands and queries to the
// go-command dispatcher and registers them with the registry. On failure
// nothing stays subscribed.
func RegisterBroker(adapter *RegistryAdapter, source Handlers, runnerOpts ...runner.Option) (*Registration, error) {
	if source == nil {
		return nil, fmt.Errorf("gocommand: broker handlers are required")
	}
	commands := source.Commands()
	queries := source.Queries()
	reg := &Registration{}

	steps := []func() error{
		func() error {
			return reg.add(registerCommand[brokercommand.SendMessageMessage](adapter, commands.SendMessage, runnerOpts...))
		},
		func() error {
			return reg.add(registerCommand[brokercommand.AcknowledgeLeadMessage](adapter, commands.AcknowledgeLead, runnerOpts...))
		},
		func() error {
			return reg.add(registerCommand[brokercommand.DeleteDelegatedTokenMessage](adapter, commands.DeleteDelegatedToken, runnerOpts...))
		},
		func() error {
			return reg.add(registerQuery[brokerquery.ListMeetingsMessage, []core.OnlineMeetingRecord](
				adapter, queries.ListMeetings, runnerOpts...))
		},
		func() error {
			return reg.add(registerQuery[brokerquery.ResolveMessagingCredentialMessage, core.MessagingCredential](
				adapter, queries.ResolveMessagingCredential, runnerOpts...))
		},
		func() error {
			return reg.add(registerQuery[brokerquery.ResolveMessagingCredentialsMessage, []core.MessagingCredentialResult](
				adapter, queries.ResolveMessagingCredentials, runnerOpts...))
		},
	}
	for _, step := range steps {
		if err := step(); err != nil {
			reg.Close()
			return nil, err
		}
	}
	if err := adapter.Initialize(); err != nil {
		reg.Close()
		return nil, err
	}
	return reg, nil
}

func registerCommand[T any](
	adapter *RegistryAdapter,
	cmd command.Commander[T],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if cmd == nil {
		return nil, fmt.Errorf("gocommand: command is required")
	}
	subscription := commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
	if err := adapter.register(cmd); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

func registerQuery[T any, R any](
	adapter *RegistryAdapter,
	qry command.Querier[T, R],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if qry == nil {
		return nil, fmt.Errorf("gocommand: query is required")
	}
	subscription := commanddispatcher.SubscribeQuery(qry, runnerOpts...)
	if err := adapter.register(qry); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

// SendMessage dispatches a send command and returns the provider result the
// handler recorded.
func SendMessage(ctx context.Context, msg brokercommand.SendMessageMessage) (core.SendResult, error) {
	return dispatchWithResult[brokercommand.SendMessageMessage, core.SendResult](ctx, msg)
}

func AcknowledgeLead(ctx context.Context, msg brokercommand.AcknowledgeLeadMessage) (core.SendResult, error) {
	return dispatchWithResult[brokercommand.AcknowledgeLeadMessage, core.SendResult](ctx, msg)
}

func ResolveMessagingCredentials(ctx context.Context, tenantIDs []string) ([]core.MessagingCredentialResult, error) {
	return commanddispatcher.Query[brokerquery.ResolveMessagingCredentialsMessage, []core.MessagingCredentialResult](
		ctx,
		brokerquery.ResolveMessagingCredentialsMessage{TenantIDs: tenantIDs},
	)
}

func dispatchWithResult[T any, R any](ctx context.Context, msg T) (R, error) {
	var zero R
	if err := ValidateMessageContract(msg); err != nil {
		return zero, err
	}
	result := command.NewResult[R]()
	if err := commanddispatcher.Dispatch(command.ContextWithResult(ctx, result), msg); err != nil {
		return zero, err
	}
	out, _ := result.Load()
	return out, nil
}
