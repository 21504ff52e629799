package calendar

import (
	"time"

	calendar "google.golang.org/api/calendar/v3"
)

// EventInput is the input for creating or updating an event.
type EventInput struct {
	Summary     string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
	// TimeZone is an IANA zone name. Empty means the zone of Start.
	TimeZone string
	AllDay   bool
}

// EventPatch holds the fields UpdateEvent changes. Nil fields are kept.
type EventPatch struct {
	Summary     *string
	Description *string
	Location    *string
	Start       *time.Time
	End         *time.Time
	TimeZone    string
}

// Event is a simplified calendar event.
type Event struct {
	ID          string    `json:"id"`
	Summary     string    `json:"summary"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	Start       time.Time `json:"start,omitzero"`
	End         time.Time `json:"end,omitzero"`
	AllDay      bool      `json:"allDay,omitempty"`
	Status      string    `json:"status,omitempty"`
	HTMLLink    string    `json:"htmlLink,omitempty"`
	Organizer   string    `json:"organizer,omitempty"`
}

func toEvent(e *calendar.Event) Event {
	if e == nil {
		return Event{}
	}

	ev := Event{
		ID:          e.Id,
		Summary:     e.Summary,
		Description: e.Description,
		Location:    e.Location,
		Status:      e.Status,
		HTMLLink:    e.HtmlLink,
	}
	if e.Organizer != nil {
		ev.Organizer = e.Organizer.Email
	}
	ev.Start, ev.AllDay = parseEventTime(e.Start)
	ev.End, _ = parseEventTime(e.End)
	return ev
}

// parseEventTime reads a timed or all-day boundary. All-day dates are
// returned at midnight UTC.
func parseEventTime(t *calendar.EventDateTime) (time.Time, bool) {
	if t == nil {
		return time.Time{}, false
	}
	if t.DateTime != "" {
		parsed, err := time.Parse(time.RFC3339, t.DateTime)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, false
	}
	if t.Date != "" {
		parsed, err := time.Parse(dateLayout, t.Date)
		if err != nil {
			return time.Time{}, true
		}
		return parsed, true
	}
	return time.Time{}, false
}

func eventDateTime(t time.Time, zone string, allDay bool) *calendar.EventDateTime {
	if allDay {
		return &calendar.EventDateTime{Date: t.Format(dateLayout)}
	}
	if zone == "" {
		zone = t.Location().String()
		if zone == "Local" {
			zone = ""
		}
	}
	return &calendar.EventDateTime{
		DateTime: t.Format(time.RFC3339),
		TimeZone: zone,
	}
}
