package meetings

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/goliatone/go-credential-broker/core"
	glog "github.com/goliatone/go-logger/glog"
)

const calendarViewTimeLayout = "2006-01-02T15:04:05"

var calendarViewFields = []string{
	"id",
	"subject",
	"start",
	"end",
	"organizer",
	"isOnlineMeeting",
	"onlineMeeting",
	"onlineMeetingUrl",
	"webLink",
	"iCalUId",
}

type Option func(*Aggregator)

func WithPageSize(size int) Option {
	return func(a *Aggregator) {
		if size > 0 && size <= core.DefaultMeetingPageSize {
			a.pageSize = size
		}
	}
}

func WithLogger(logger core.Logger) Option {
	return func(a *Aggregator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// Aggregator issues a single calendar-view read per call. Pagination links are
// not followed; the page cap bounds the result.
type Aggregator struct {
	pageSize int
	logger   core.Logger
}

func NewAggregator(opts ...Option) *Aggregator {
	aggregator := &Aggregator{
		pageSize: core.DefaultMeetingPageSize,
		logger:   glog.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(aggregator)
		}
	}
	return aggregator
}

// ListOnlineMeetings runs with the default aggregator.
func ListOnlineMeetings(
	ctx context.Context,
	client core.IntegrationClient,
	mailbox string,
	windowStart time.Time,
	windowEnd time.Time,
) ([]core.OnlineMeetingRecord, error) {
	return NewAggregator().ListOnlineMeetings(ctx, client, mailbox, windowStart, windowEnd)
}

func (a *Aggregator) ListOnlineMeetings(
	ctx context.Context,
	client core.IntegrationClient,
	mailbox string,
	windowStart time.Time,
	windowEnd time.Time,
) ([]core.OnlineMeetingRecord, error) {
	if client == nil {
		return nil, core.ConfigurationError("", "calendar client is required")
	}
	mailbox = strings.TrimSpace(mailbox)
	if mailbox == "" {
		return nil, core.BadInput("mailbox is required")
	}
	if windowStart.IsZero() || windowEnd.IsZero() || !windowEnd.After(windowStart) {
		return nil, core.BadInput("meeting window end must be after start")
	}
	windowStart = windowStart.UTC()
	windowEnd = windowEnd.UTC()

	res, err := client.Get(ctx, calendarViewPath(mailbox), core.ReadOptions{
		Query: map[string]string{
			"startDateTime": windowStart.Format(time.RFC3339),
			"endDateTime":   windowEnd.Format(time.RFC3339),
		},
		Select:  calendarViewFields,
		Top:     a.pageSize,
		Headers: map[string]string{"Prefer": `outlook.timezone="UTC"`},
	})
	if err != nil {
		return nil, err
	}

	page, err := decodeCalendarView(res.Body)
	if err != nil {
		return nil, err
	}

	meetings := make([]core.OnlineMeetingRecord, 0, len(page))
	for _, event := range page {
		if len(meetings) >= a.pageSize {
			break
		}
		if !event.isOnline() {
			continue
		}
		record, ok := normalizeEvent(event, mailbox)
		if !ok {
			a.logger.Debug("skipping calendar event without parseable start", "event_id", event.ID)
			continue
		}
		if record.Start.Before(windowStart) || !record.Start.Before(windowEnd) {
			continue
		}
		meetings = append(meetings, record)
	}
	return meetings, nil
}

func calendarViewPath(mailbox string) string {
	if strings.EqualFold(mailbox, core.SelfMailbox) {
		return "/me/calendarView"
	}
	return fmt.Sprintf("/users/%s/calendarView", url.PathEscape(mailbox))
}

type calendarViewPage struct {
	Value *[]calendarEvent `json:"value"`
}

func decodeCalendarView(body []byte) ([]calendarEvent, error) {
	var page calendarViewPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, core.MalformedUpstreamResponse(err, "calendar view response is not valid json")
	}
	if page.Value == nil {
		return nil, core.MalformedUpstreamResponse(nil, "calendar view response has no value array")
	}
	return *page.Value, nil
}

// RollingWindow returns [now-lookBack, now+lookAhead). Non-positive spans use
// the broker defaults.
func RollingWindow(now time.Time, lookBack time.Duration, lookAhead time.Duration) (time.Time, time.Time) {
	if lookBack <= 0 {
		lookBack = core.DefaultMeetingsLookBack
	}
	if lookAhead <= 0 {
		lookAhead = core.DefaultMeetingsLookAhead
	}
	return now.Add(-lookBack), now.Add(lookAhead)
}
