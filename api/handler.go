package api

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-credential-broker/command"
	"github.com/goliatone/go-credential-broker/core"
	"github.com/goliatone/go-credential-broker/query"
	glog "github.com/goliatone/go-logger/glog"
)

const (
	HeaderTargetUser      = "X-Broker-User"
	HeaderSessionElevated = "X-Broker-Session-Elevated"

	maxLeadBodyBytes = 64 << 10
)

// Backend is the broker surface the handler needs.
type Backend interface {
	query.MeetingsReader
	query.MessagingCredentialReader
	command.MessagingService
}

type Handler struct {
	listMeetings      *query.ListMeetingsQuery
	resolveCredential *query.ResolveMessagingCredentialQuery
	acknowledgeLead   *command.AcknowledgeLeadCommand
	logger            core.Logger
}

func NewHandler(backend Backend, logger core.Logger) *Handler {
	if logger == nil {
		logger = glog.Nop()
	}
	return &Handler{
		listMeetings:      query.NewListMeetingsQuery(backend),
		resolveCredential: query.NewResolveMessagingCredentialQuery(backend),
		acknowledgeLead:   command.NewAcknowledgeLeadCommand(backend),
		logger:            logger,
	}
}

// Routes mounts the tenant routes on a new chi router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Route("/tenants/{tenantID}", func(r chi.Router) {
		r.Get("/meetings", h.HandleListMeetings)
		r.Get("/meetings/current", h.HandleListCurrentMeetings)
		r.Get("/messaging/credential", h.HandleMessagingCredential)
		r.Post("/leads", h.HandleLead)
	})
	return r
}

type MeetingView struct {
	EventID           string    `json:"eventId"`
	Subject           string    `json:"subject"`
	Start             time.Time `json:"start"`
	End               time.Time `json:"end"`
	OrganizerMailbox  string    `json:"organizerMailbox,omitempty"`
	MailboxQueried    string    `json:"mailboxQueried"`
	JoinURL           string    `json:"joinUrl"`
	ProviderMeetingID string    `json:"providerMeetingId,omitempty"`
}

type meetingsResponse struct {
	Meetings []MeetingView `json:"meetings"`
	Count    int           `json:"count"`
}

// MessagingCredentialView never carries the raw access token.
type MessagingCredentialView struct {
	TenantID            string `json:"tenantId"`
	SenderID            string `json:"senderId"`
	CatalogID           string `json:"catalogId,omitempty"`
	SharedIntegrationID string `json:"sharedIntegrationId,omitempty"`
	Source              string `json:"source"`
	AccessToken         string `json:"accessToken"`
}

type leadRequest struct {
	Name   string `json:"name"`
	Phone  string `json:"phone"`
	Source string `json:"source"`
}

type leadResponse struct {
	ProviderMessageID string `json:"providerMessageId"`
	Recipient         string `json:"recipient"`
}

func (h *Handler) HandleListMeetings(w http.ResponseWriter, r *http.Request) {
	msg := query.ListMeetingsMessage{Access: accessRequest(r)}
	var err error
	if msg.Start, err = parseTimeParam(r, "start"); err != nil {
		h.writeError(w, r, err)
		return
	}
	if msg.End, err = parseTimeParam(r, "end"); err != nil {
		h.writeError(w, r, err)
		return
	}
	if msg.Current() {
		h.writeError(w, r, core.BadInput("start and end are required; use /meetings/current for the rolling window"))
		return
	}
	h.serveMeetings(w, r, msg)
}

func (h *Handler) HandleListCurrentMeetings(w http.ResponseWriter, r *http.Request) {
	h.serveMeetings(w, r, query.ListMeetingsMessage{Access: accessRequest(r)})
}

func (h *Handler) serveMeetings(w http.ResponseWriter, r *http.Request, msg query.ListMeetingsMessage) {
	records, err := h.listMeetings.Query(r.Context(), msg)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	views := make([]MeetingView, 0, len(records))
	for _, record := range records {
		views = append(views, MeetingView{
			EventID:           record.EventID,
			Subject:           record.Subject,
			Start:             record.Start,
			End:               record.End,
			OrganizerMailbox:  record.OrganizerMailbox,
			MailboxQueried:    record.MailboxQueried,
			JoinURL:           record.JoinURL,
			ProviderMeetingID: record.ProviderMeetingID,
		})
	}
	writeJSON(w, http.StatusOK, meetingsResponse{Meetings: views, Count: len(views)})
}

func (h *Handler) HandleMessagingCredential(w http.ResponseWriter, r *http.Request) {
	credential, err := h.resolveCredential.Query(r.Context(), query.ResolveMessagingCredentialMessage{
		TenantID: chi.URLParam(r, "tenantID"),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessagingCredentialView{
		TenantID:            credential.TenantID,
		SenderID:            credential.SenderID,
		CatalogID:           credential.CatalogID,
		SharedIntegrationID: credential.SharedIntegrationID,
		Source:              string(credential.Source),
		AccessToken:         core.RedactToken(credential.AccessToken),
	})
}

func (h *Handler) HandleLead(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxLeadBodyBytes))
	if err != nil {
		h.writeError(w, r, core.BadInput("unreadable request body"))
		return
	}
	var req leadRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.writeError(w, r, core.BadInput("request body must be a JSON lead"))
		return
	}

	result := gocmd.NewResult[core.SendResult]()
	ctx := gocmd.ContextWithResult(r.Context(), result)
	err = h.acknowledgeLead.Execute(ctx, command.AcknowledgeLeadMessage{
		TenantID: chi.URLParam(r, "tenantID"),
		Lead: core.Lead{
			Name:   strings.TrimSpace(req.Name),
			Phone:  strings.TrimSpace(req.Phone),
			Source: strings.TrimSpace(req.Source),
		},
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	sent, _ := result.Load()
	writeJSON(w, http.StatusAccepted, leadResponse{
		ProviderMessageID: sent.ProviderMessageID,
		Recipient:         sent.Recipient,
	})
}

func accessRequest(r *http.Request) core.CalendarAccessRequest {
	elevated, _ := strconv.ParseBool(strings.TrimSpace(r.Header.Get(HeaderSessionElevated)))
	return core.CalendarAccessRequest{
		SessionToken:      bearerToken(r),
		SessionElevated:   elevated,
		TargetUserID:      strings.TrimSpace(r.Header.Get(HeaderTargetUser)),
		TenantID:          strings.TrimSpace(chi.URLParam(r, "tenantID")),
		OrganizerOverride: strings.TrimSpace(r.URL.Query().Get("organizer")),
	}
}

func bearerToken(r *http.Request) string {
	value := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(value) < len("Bearer ") || !strings.EqualFold(value[:len("Bearer ")], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(value[len("Bearer "):])
}

func parseTimeParam(r *http.Request, name string) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return time.Time{}, nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, core.BadInput(name + " must be an RFC3339 timestamp")
	}
	return parsed, nil
}
