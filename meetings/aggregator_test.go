package meetings

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/goliatone/go-credential-broker/core"
)

type recordedGet struct {
	path string
	opts core.ReadOptions
}

type fakeCalendarClient struct {
	body  string
	err   error
	calls []recordedGet
}

func (c *fakeCalendarClient) BaseURL() string { return "https://graph.example/v1.0" }

func (c *fakeCalendarClient) Get(_ context.Context, path string, opts core.ReadOptions) (core.TransportResponse, error) {
	c.calls = append(c.calls, recordedGet{path: path, opts: opts})
	if c.err != nil {
		return core.TransportResponse{}, c.err
	}
	return core.TransportResponse{StatusCode: 200, Body: []byte(c.body)}, nil
}

func (c *fakeCalendarClient) Do(context.Context, core.TransportRequest) (core.TransportResponse, error) {
	return core.TransportResponse{}, fmt.Errorf("unexpected Do call")
}

var (
	windowStart = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	windowEnd   = time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)
)

func eventJSON(id string, start string, extra string) string {
	if extra != "" {
		extra = "," + extra
	}
	return fmt.Sprintf(`{"id":%q,"subject":"Sync %s","start":{"dateTime":%q,"timeZone":"UTC"},"end":{"dateTime":%q,"timeZone":"UTC"},"organizer":{"emailAddress":{"name":"Org","address":"org@tenant.test"}}%s}`,
		id, id, start, start, extra)
}

func page(events ...string) string {
	return `{"value":[` + strings.Join(events, ",") + `],"@odata.nextLink":"https://graph.example/next"}`
}

func TestListOnlineMeetings_QueriesCalendarView(t *testing.T) {
	client := &fakeCalendarClient{body: page()}
	_, err := ListOnlineMeetings(context.Background(), client, "coordinator@tenant.test", windowStart, windowEnd)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(client.calls) != 1 {
		t.Fatalf("expected exactly one provider call, got %d", len(client.calls))
	}
	call := client.calls[0]
	if call.path != "/users/coordinator@tenant.test/calendarView" {
		t.Fatalf("unexpected path %q", call.path)
	}
	if call.opts.Top != core.DefaultMeetingPageSize {
		t.Fatalf("expected top %d, got %d", core.DefaultMeetingPageSize, call.opts.Top)
	}
	if call.opts.Query["startDateTime"] != "2026-03-01T00:00:00Z" || call.opts.Query["endDateTime"] != "2026-03-31T00:00:00Z" {
		t.Fatalf("unexpected window query %#v", call.opts.Query)
	}
	if call.opts.Headers["Prefer"] != `outlook.timezone="UTC"` {
		t.Fatalf("expected UTC preference header, got %#v", call.opts.Headers)
	}
	if len(call.opts.Select) == 0 {
		t.Fatalf("expected a field selection")
	}
}

func TestListOnlineMeetings_SelfMailboxUsesMePath(t *testing.T) {
	client := &fakeCalendarClient{body: page()}
	if _, err := ListOnlineMeetings(context.Background(), client, core.SelfMailbox, windowStart, windowEnd); err != nil {
		t.Fatalf("list: %v", err)
	}
	if client.calls[0].path != "/me/calendarView" {
		t.Fatalf("unexpected path %q", client.calls[0].path)
	}
}

func TestListOnlineMeetings_FiltersAndNormalizes(t *testing.T) {
	client := &fakeCalendarClient{body: page(
		eventJSON("teams", "2026-03-05T10:00:00.0000000", `"isOnlineMeeting":true,"iCalUId":"ical-1","onlineMeeting":{"joinUrl":"https://teams.example/join/1","conferenceId":"conf-1"}`),
		eventJSON("legacy", "2026-03-06T10:00:00.0000000", `"isOnlineMeeting":true,"onlineMeetingUrl":"https://legacy.example/m/2","webLink":"https://outlook.example/e/2","iCalUId":"ical-2"`),
		eventJSON("payload-only", "2026-03-07T10:00:00.0000000", `"isOnlineMeeting":false,"onlineMeeting":{},"webLink":"https://outlook.example/e/3"`),
		eventJSON("offline", "2026-03-08T10:00:00.0000000", `"isOnlineMeeting":false,"onlineMeeting":null,"webLink":"https://outlook.example/e/4"`),
		eventJSON("recurring-offline", "2026-03-09T10:00:00.0000000", `"isOnlineMeeting":false,"webLink":"https://outlook.example/e/5"`),
		eventJSON("before-window", "2026-02-27T10:00:00.0000000", `"isOnlineMeeting":true`),
		eventJSON("at-window-end", "2026-03-31T00:00:00.0000000", `"isOnlineMeeting":true`),
	)}

	meetings, err := ListOnlineMeetings(context.Background(), client, "coordinator@tenant.test", windowStart, windowEnd)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(meetings) != 3 {
		t.Fatalf("expected 3 online meetings in window, got %d: %#v", len(meetings), meetings)
	}

	teams := meetings[0]
	if teams.EventID != "teams" || teams.JoinURL != "https://teams.example/join/1" || teams.ProviderMeetingID != "conf-1" {
		t.Fatalf("unexpected teams record %#v", teams)
	}
	if !teams.Start.Equal(time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start %s", teams.Start)
	}
	if teams.OrganizerMailbox != "org@tenant.test" || teams.MailboxQueried != "coordinator@tenant.test" {
		t.Fatalf("unexpected mailbox fields %#v", teams)
	}

	if meetings[1].JoinURL != "https://legacy.example/m/2" || meetings[1].ProviderMeetingID != "ical-2" {
		t.Fatalf("expected legacy join url and ical id fallback, got %#v", meetings[1])
	}
	if meetings[2].JoinURL != "https://outlook.example/e/3" {
		t.Fatalf("expected web link fallback, got %#v", meetings[2])
	}
}

func TestListOnlineMeetings_CapsAtPageSize(t *testing.T) {
	events := make([]string, 0, 60)
	for i := 0; i < 60; i++ {
		start := windowStart.Add(time.Duration(i) * time.Hour).Format(calendarViewTimeLayout)
		events = append(events, eventJSON(fmt.Sprintf("e%d", i), start, `"isOnlineMeeting":true`))
	}
	client := &fakeCalendarClient{body: page(events...)}

	meetings, err := ListOnlineMeetings(context.Background(), client, "a@tenant.test", windowStart, windowEnd)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(meetings) != core.DefaultMeetingPageSize {
		t.Fatalf("expected cap of %d, got %d", core.DefaultMeetingPageSize, len(meetings))
	}

	small := NewAggregator(WithPageSize(5))
	meetings, err = small.ListOnlineMeetings(context.Background(), client, "a@tenant.test", windowStart, windowEnd)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(meetings) != 5 || client.calls[len(client.calls)-1].opts.Top != 5 {
		t.Fatalf("expected page size option to bound query and result, got %d", len(meetings))
	}
}

func TestListOnlineMeetings_MalformedBody(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{name: "missing value", body: `{"error":"nope"}`},
		{name: "not json", body: `<html>`},
		{name: "null value", body: `{"value":null}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := &fakeCalendarClient{body: tc.body}
			_, err := ListOnlineMeetings(context.Background(), client, "a@tenant.test", windowStart, windowEnd)
			if !core.IsMalformedUpstream(err) {
				t.Fatalf("expected malformed upstream error, got %v", err)
			}
		})
	}
}

func TestListOnlineMeetings_PropagatesUpstreamRejection(t *testing.T) {
	rejected := core.UpstreamRejected(403, "Access is denied.")
	client := &fakeCalendarClient{err: rejected}
	_, err := ListOnlineMeetings(context.Background(), client, "a@tenant.test", windowStart, windowEnd)
	if !core.IsUpstreamRejected(err) || !strings.Contains(err.Error(), "Access is denied.") {
		t.Fatalf("expected upstream rejection with provider message, got %v", err)
	}
}

func TestListOnlineMeetings_ValidatesInput(t *testing.T) {
	client := &fakeCalendarClient{body: page()}
	if _, err := ListOnlineMeetings(context.Background(), client, " ", windowStart, windowEnd); !core.IsConfigurationError(err) {
		t.Fatalf("expected bad input for empty mailbox, got %v", err)
	}
	if _, err := ListOnlineMeetings(context.Background(), client, "a@tenant.test", windowEnd, windowStart); !core.IsConfigurationError(err) {
		t.Fatalf("expected bad input for inverted window, got %v", err)
	}
	if _, err := ListOnlineMeetings(context.Background(), nil, "a@tenant.test", windowStart, windowEnd); !core.IsConfigurationError(err) {
		t.Fatalf("expected configuration error for nil client, got %v", err)
	}
	if len(client.calls) != 0 {
		t.Fatalf("expected no provider calls for invalid input")
	}
}

func TestNormalizeEvent_TimeZones(t *testing.T) {
	event := calendarEvent{
		ID:    "tz",
		Start: dateTimeZone{DateTime: "2026-03-05T10:00:00", TimeZone: "America/New_York"},
		End:   dateTimeZone{DateTime: "2026-03-05T11:00:00Z", TimeZone: "UTC"},
	}
	record, ok := normalizeEvent(event, "me")
	if !ok {
		t.Fatalf("expected event to normalize")
	}
	if !record.Start.Equal(time.Date(2026, 3, 5, 15, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected zone-aware start, got %s", record.Start)
	}
	if !record.End.Equal(time.Date(2026, 3, 5, 11, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected RFC3339 end, got %s", record.End)
	}

	if _, ok := normalizeEvent(calendarEvent{ID: "bad", Start: dateTimeZone{DateTime: "yesterday"}}, "me"); ok {
		t.Fatalf("expected unparseable start to be skipped")
	}
}

func TestRollingWindow(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	start, end := RollingWindow(now, 0, 0)
	if !start.Equal(now.Add(-15*24*time.Hour)) || !end.Equal(now.Add(30*24*time.Hour)) {
		t.Fatalf("unexpected default window [%s, %s)", start, end)
	}
	start, end = RollingWindow(now, time.Hour, 2*time.Hour)
	if !start.Equal(now.Add(-time.Hour)) || !end.Equal(now.Add(2*time.Hour)) {
		t.Fatalf("unexpected custom window [%s, %s)", start, end)
	}
}
