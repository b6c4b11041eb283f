package gocommand

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-command"
	broker "github.com/goliatone/go-credential-broker"
	brokercommand "github.com/goliatone/go-credential-broker/command"
	"github.com/goliatone/go-credential-broker/core"
	brokerquery "github.com/goliatone/go-credential-broker/query"
)

type okMessage struct{}

func (okMessage) Type() string { return "broker.command.ok" }

type invalidMessage struct{}

func (invalidMessage) Type() string { return "" }

type failingMessage struct{}

func (failingMessage) Type() string { return "broker.command.fail" }

func (failingMessage) Validate() error { return errors.New("invalid payload") }

func TestValidateMessageContract(t *testing.T) {
	if err := ValidateMessageContract(okMessage{}); err != nil {
		t.Fatalf("expected valid message, got %v", err)
	}
	if err := ValidateMessageContract(invalidMessage{}); err == nil {
		t.Fatalf("expected empty type to fail contract validation")
	}
	if err := ValidateMessageContract(failingMessage{}); err == nil {
		t.Fatalf("expected Validate() failure to bubble")
	}
}

type stubBackend struct {
	sent     []string
	deleted  []string
	acked    []core.Lead
	failSend error
}

func (s *stubBackend) ResolveMessagingCredential(_ context.Context, tenantID string) (core.MessagingCredential, error) {
	if tenantID == "missing" {
		return core.MessagingCredential{}, core.ConfigurationError(tenantID, "no messaging credential configured")
	}
	return core.MessagingCredential{TenantID: tenantID, AccessToken: "tok-" + tenantID, SenderID: "sender-1"}, nil
}

func (s *stubBackend) ResolveMessagingCredentials(ctx context.Context, tenantIDs []string) []core.MessagingCredentialResult {
	out := make([]core.MessagingCredentialResult, 0, len(tenantIDs))
	for _, tenantID := range tenantIDs {
		credential, err := s.ResolveMessagingCredential(ctx, tenantID)
		out = append(out, core.MessagingCredentialResult{TenantID: tenantID, Credential: credential, Err: err})
	}
	return out
}

func (s *stubBackend) SendMessage(
	_ context.Context,
	credential core.MessagingCredential,
	recipient string,
	_ core.MessagePayload,
) (core.SendResult, error) {
	if s.failSend != nil {
		return core.SendResult{}, s.failSend
	}
	s.sent = append(s.sent, credential.TenantID+":"+recipient)
	return core.SendResult{ProviderMessageID: "wamid.1", Recipient: recipient}, nil
}

func (s *stubBackend) AcknowledgeLead(_ context.Context, _ string, lead core.Lead) (core.SendResult, error) {
	s.acked = append(s.acked, lead)
	return core.SendResult{ProviderMessageID: "wamid.lead", Recipient: lead.Phone}, nil
}

func (s *stubBackend) DeleteDelegatedToken(_ context.Context, userID string, providerID string) error {
	s.deleted = append(s.deleted, userID+"|"+providerID)
	return nil
}

func (s *stubBackend) ListMeetingsInWindow(
	context.Context,
	core.CalendarAccessRequest,
	time.Time,
	time.Time,
) ([]core.OnlineMeetingRecord, error) {
	return []core.OnlineMeetingRecord{{EventID: "evt-1"}}, nil
}

func (s *stubBackend) ListCurrentMeetings(context.Context, core.CalendarAccessRequest) ([]core.OnlineMeetingRecord, error) {
	return nil, nil
}

type stubHandlers struct {
	backend *stubBackend
}

func (h stubHandlers) Commands() broker.Commands {
	return broker.Commands{
		SendMessage:          brokercommand.NewSendMessageCommand(h.backend),
		AcknowledgeLead:      brokercommand.NewAcknowledgeLeadCommand(h.backend),
		DeleteDelegatedToken: brokercommand.NewDeleteDelegatedTokenCommand(h.backend),
	}
}

func (h stubHandlers) Queries() broker.Queries {
	return broker.Queries{
		ListMeetings:                brokerquery.NewListMeetingsQuery(h.backend),
		ResolveMessagingCredential:  brokerquery.NewResolveMessagingCredentialQuery(h.backend),
		ResolveMessagingCredentials: brokerquery.NewResolveMessagingCredentialsQuery(h.backend),
	}
}

func registerStub(t *testing.T) *stubBackend {
	t.Helper()
	backend := &stubBackend{}
	reg, err := RegisterBroker(NewRegistryAdapter(command.NewRegistry()), stubHandlers{backend: backend})
	if err != nil {
		t.Fatalf("register broker: %v", err)
	}
	t.Cleanup(reg.Close)
	return backend
}

func TestRegisterBrokerDispatchesSendMessage(t *testing.T) {
	backend := registerStub(t)

	out, err := SendMessage(context.Background(), brokercommand.SendMessageMessage{
		TenantID:  "t1",
		Recipient: "15550001111",
		Payload:   core.MessagePayload{Text: "hello"},
	})
	if err != nil {
		t.Fatalf("send message: %v", err)
	}
	if out.ProviderMessageID != "wamid.1" {
		t.Fatalf("expected provider message id from result collector, got %+v", out)
	}
	if len(backend.sent) != 1 || backend.sent[0] != "t1:15550001111" {
		t.Fatalf("unexpected sends %v", backend.sent)
	}
}

func TestRegisterBrokerDispatchesLeadAcknowledgement(t *testing.T) {
	backend := registerStub(t)

	out, err := AcknowledgeLead(context.Background(), brokercommand.AcknowledgeLeadMessage{
		TenantID: "t1",
		Lead:     core.Lead{Name: "Ada", Phone: "15550002222"},
	})
	if err != nil {
		t.Fatalf("acknowledge lead: %v", err)
	}
	if out.ProviderMessageID != "wamid.lead" || len(backend.acked) != 1 {
		t.Fatalf("unexpected lead acknowledgement %+v %v", out, backend.acked)
	}
}

func TestDispatchValidatesBeforeSending(t *testing.T) {
	backend := registerStub(t)

	_, err := SendMessage(context.Background(), brokercommand.SendMessageMessage{TenantID: "t1"})
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if len(backend.sent) != 0 {
		t.Fatalf("expected no sends, got %v", backend.sent)
	}
}

func TestRegisterBrokerServesBulkCredentialQuery(t *testing.T) {
	registerStub(t)

	results, err := ResolveMessagingCredentials(context.Background(), []string{"t1", "missing"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Err != nil || results[0].Credential.AccessToken != "tok-t1" {
		t.Fatalf("unexpected first result %+v", results[0])
	}
	if !core.IsConfigurationError(results[1].Err) {
		t.Fatalf("expected configuration error for missing tenant, got %v", results[1].Err)
	}
}

func TestRegisterBrokerRequiresHandlers(t *testing.T) {
	if _, err := RegisterBroker(NewRegistryAdapter(nil), nil); err == nil {
		t.Fatalf("expected error for nil handlers")
	}
}
