package meetings

import (
	"strings"
	"time"

	"github.com/goliatone/go-credential-broker/core"
)

type emailAddress struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

type dateTimeZone struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

type onlineMeetingInfo struct {
	JoinURL      string `json:"joinUrl"`
	ConferenceID string `json:"conferenceId"`
}

type calendarEvent struct {
	ID               string             `json:"id"`
	ICalUID          string             `json:"iCalUId"`
	Subject          string             `json:"subject"`
	Start            dateTimeZone       `json:"start"`
	End              dateTimeZone       `json:"end"`
	IsOnlineMeeting  bool               `json:"isOnlineMeeting"`
	OnlineMeeting    *onlineMeetingInfo `json:"onlineMeeting"`
	OnlineMeetingURL string             `json:"onlineMeetingUrl"`
	WebLink          string             `json:"webLink"`
	Organizer        struct {
		EmailAddress emailAddress `json:"emailAddress"`
	} `json:"organizer"`
}

func (e calendarEvent) isOnline() bool {
	return e.IsOnlineMeeting || e.OnlineMeeting != nil
}

type stringExtractor func(calendarEvent) string

type timeExtractor func(dateTimeZone) (time.Time, bool)

// Extractors run in order; the first non-empty value wins.
var (
	joinURLExtractors = []stringExtractor{
		func(e calendarEvent) string {
			if e.OnlineMeeting == nil {
				return ""
			}
			return e.OnlineMeeting.JoinURL
		},
		func(e calendarEvent) string { return e.OnlineMeetingURL },
		func(e calendarEvent) string { return e.WebLink },
	}
	meetingIDExtractors = []stringExtractor{
		func(e calendarEvent) string {
			if e.OnlineMeeting == nil {
				return ""
			}
			return e.OnlineMeeting.ConferenceID
		},
		func(e calendarEvent) string { return e.ICalUID },
	}
	organizerExtractors = []stringExtractor{
		func(e calendarEvent) string { return e.Organizer.EmailAddress.Address },
	}
	timeExtractors = []timeExtractor{
		parseWithLayout(time.RFC3339Nano),
		parseWithLayout("2006-01-02T15:04:05.9999999"),
		parseWithLayout(calendarViewTimeLayout),
	}
)

func firstString(event calendarEvent, extractors []stringExtractor) string {
	for _, extract := range extractors {
		if value := strings.TrimSpace(extract(event)); value != "" {
			return value
		}
	}
	return ""
}

func firstTime(value dateTimeZone, extractors []timeExtractor) (time.Time, bool) {
	for _, extract := range extractors {
		if parsed, ok := extract(value); ok {
			return parsed, true
		}
	}
	return time.Time{}, false
}

// parseWithLayout interprets zone-less timestamps in the event's timeZone,
// falling back to UTC for unknown zone names.
func parseWithLayout(layout string) timeExtractor {
	return func(value dateTimeZone) (time.Time, bool) {
		raw := strings.TrimSpace(value.DateTime)
		if raw == "" {
			return time.Time{}, false
		}
		parsed, err := time.ParseInLocation(layout, raw, eventLocation(value.TimeZone))
		if err != nil {
			return time.Time{}, false
		}
		return parsed.UTC(), true
	}
}

func eventLocation(zone string) *time.Location {
	zone = strings.TrimSpace(zone)
	if zone == "" || strings.EqualFold(zone, "UTC") {
		return time.UTC
	}
	location, err := time.LoadLocation(zone)
	if err != nil {
		return time.UTC
	}
	return location
}

func normalizeEvent(event calendarEvent, mailbox string) (core.OnlineMeetingRecord, bool) {
	start, ok := firstTime(event.Start, timeExtractors)
	if !ok {
		return core.OnlineMeetingRecord{}, false
	}
	end, _ := firstTime(event.End, timeExtractors)
	return core.OnlineMeetingRecord{
		EventID:           strings.TrimSpace(event.ID),
		Subject:           strings.TrimSpace(event.Subject),
		Start:             start,
		End:               end,
		OrganizerMailbox:  firstString(event, organizerExtractors),
		MailboxQueried:    mailbox,
		JoinURL:           firstString(event, joinURLExtractors),
		ProviderMeetingID: firstString(event, meetingIDExtractors),
	}, true
}
