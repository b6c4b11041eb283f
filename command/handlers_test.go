package command

import (
	"context"
	"testing"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-credential-broker/core"
	goerrors "github.com/goliatone/go-errors"
)

type stubMessagingService struct {
	resolveFn     func(ctx context.Context, tenantID string) (core.MessagingCredential, error)
	sendFn        func(ctx context.Context, credential core.MessagingCredential, recipient string, payload core.MessagePayload) (core.SendResult, error)
	acknowledgeFn func(ctx context.Context, tenantID string, lead core.Lead) (core.SendResult, error)
}

func (s stubMessagingService) ResolveMessagingCredential(ctx context.Context, tenantID string) (core.MessagingCredential, error) {
	return s.resolveFn(ctx, tenantID)
}

func (s stubMessagingService) SendMessage(ctx context.Context, credential core.MessagingCredential, recipient string, payload core.MessagePayload) (core.SendResult, error) {
	return s.sendFn(ctx, credential, recipient, payload)
}

func (s stubMessagingService) AcknowledgeLead(ctx context.Context, tenantID string, lead core.Lead) (core.SendResult, error) {
	return s.acknowledgeFn(ctx, tenantID, lead)
}

type stubTokenService struct {
	deleteFn func(ctx context.Context, userID string, providerID string) error
}

func (s stubTokenService) DeleteDelegatedToken(ctx context.Context, userID string, providerID string) error {
	return s.deleteFn(ctx, userID, providerID)
}

func TestSendMessageCommand_ResolvesCredentialAndStoresResult(t *testing.T) {
	svc := stubMessagingService{
		resolveFn: func(_ context.Context, tenantID string) (core.MessagingCredential, error) {
			if tenantID != "t1" {
				t.Fatalf("unexpected tenant %q", tenantID)
			}
			return core.MessagingCredential{TenantID: "t1", AccessToken: "tok", SenderID: "555"}, nil
		},
		sendFn: func(_ context.Context, credential core.MessagingCredential, recipient string, payload core.MessagePayload) (core.SendResult, error) {
			if credential.AccessToken != "tok" || recipient != "+15550001" || payload.Text != "hi" {
				t.Fatalf("unexpected send %#v %q %#v", credential, recipient, payload)
			}
			return core.SendResult{ProviderMessageID: "wamid.1", Recipient: "15550001"}, nil
		},
	}

	collector := gocmd.NewResult[core.SendResult]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)
	err := NewSendMessageCommand(svc).Execute(ctx, SendMessageMessage{
		TenantID:  "t1",
		Recipient: "+15550001",
		Payload:   core.MessagePayload{Text: "hi"},
	})
	if err != nil {
		t.Fatalf("execute send: %v", err)
	}
	result, ok := collector.Load()
	if !ok || result.ProviderMessageID != "wamid.1" {
		t.Fatalf("unexpected stored result %#v ok=%v", result, ok)
	}
}

func TestSendMessageCommand_StopsOnResolutionFailure(t *testing.T) {
	svc := stubMessagingService{
		resolveFn: func(context.Context, string) (core.MessagingCredential, error) {
			return core.MessagingCredential{}, core.ConfigurationError("t1", "no messaging access token configured", "access_token")
		},
		sendFn: func(context.Context, core.MessagingCredential, string, core.MessagePayload) (core.SendResult, error) {
			t.Fatalf("send must not run without a credential")
			return core.SendResult{}, nil
		},
	}
	err := NewSendMessageCommand(svc).Execute(context.Background(), SendMessageMessage{
		TenantID:  "t1",
		Recipient: "+15550001",
		Payload:   core.MessagePayload{Text: "hi"},
	})
	if !core.IsConfigurationError(err) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestAcknowledgeLeadCommand_Delegates(t *testing.T) {
	called := false
	svc := stubMessagingService{
		acknowledgeFn: func(_ context.Context, tenantID string, lead core.Lead) (core.SendResult, error) {
			called = true
			if tenantID != "t1" || lead.Phone != "+15550002" {
				t.Fatalf("unexpected acknowledge payload %q %#v", tenantID, lead)
			}
			return core.SendResult{ProviderMessageID: "wamid.2"}, nil
		},
	}
	collector := gocmd.NewResult[core.SendResult]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)
	if err := NewAcknowledgeLeadCommand(svc).Execute(ctx, AcknowledgeLeadMessage{
		TenantID: "t1",
		Lead:     core.Lead{Name: "Ana", Phone: "+15550002"},
	}); err != nil {
		t.Fatalf("execute acknowledge: %v", err)
	}
	if !called {
		t.Fatalf("expected acknowledge invocation")
	}
	if result, ok := collector.Load(); !ok || result.ProviderMessageID != "wamid.2" {
		t.Fatalf("unexpected stored result %#v", result)
	}
}

func TestDeleteDelegatedTokenCommand_Delegates(t *testing.T) {
	called := false
	svc := stubTokenService{deleteFn: func(_ context.Context, userID string, providerID string) error {
		called = true
		if userID != "u1" || providerID != "microsoft_graph" {
			t.Fatalf("unexpected delete payload %q %q", userID, providerID)
		}
		return nil
	}}
	err := NewDeleteDelegatedTokenCommand(svc).Execute(context.Background(), DeleteDelegatedTokenMessage{
		UserID:     "u1",
		ProviderID: "microsoft_graph",
	})
	if err != nil {
		t.Fatalf("execute delete: %v", err)
	}
	if !called {
		t.Fatalf("expected delete invocation")
	}
}

func TestMessages_ValidateReturnsRichErrors(t *testing.T) {
	cases := []struct {
		name string
		msg  interface{ Validate() error }
	}{
		{name: "send without tenant", msg: SendMessageMessage{Recipient: "1", Payload: core.MessagePayload{Text: "x"}}},
		{name: "send without recipient", msg: SendMessageMessage{TenantID: "t1", Payload: core.MessagePayload{Text: "x"}}},
		{name: "send with empty payload", msg: SendMessageMessage{TenantID: "t1", Recipient: "1"}},
		{name: "lead without phone", msg: AcknowledgeLeadMessage{TenantID: "t1"}},
		{name: "delete without user", msg: DeleteDelegatedTokenMessage{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.msg.Validate()
			var rich *goerrors.Error
			if !goerrors.As(err, &rich) {
				t.Fatalf("expected go-errors envelope, got %T (%v)", err, err)
			}
			if rich.TextCode != core.ErrorBadInput {
				t.Fatalf("expected %q text code, got %q", core.ErrorBadInput, rich.TextCode)
			}
		})
	}
}

func TestCommands_NilServiceReturnsRichError(t *testing.T) {
	var cmd *SendMessageCommand
	err := cmd.Execute(context.Background(), SendMessageMessage{})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal category, got %q", rich.Category)
	}
}

func TestMessageTypes(t *testing.T) {
	if (SendMessageMessage{}).Type() != "broker.command.message.send" {
		t.Fatalf("unexpected send type")
	}
	if (AcknowledgeLeadMessage{}).Type() != "broker.command.lead.acknowledge" {
		t.Fatalf("unexpected acknowledge type")
	}
}
