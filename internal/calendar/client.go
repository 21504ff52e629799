package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/teemow/homedash/internal/instrumentation"
	"github.com/teemow/homedash/internal/oauth"
	"github.com/teemow/homedash/internal/provider"
	"github.com/teemow/homedash/internal/request"
)

// PrimaryCalendar is the calendar every operation works on.
const PrimaryCalendar = "primary"

// DefaultMaxResults bounds ListEvents when limit is not positive.
const DefaultMaxResults = 10

const dateLayout = "2006-01-02"

// Session runs authenticated requests for a Google provider session.
type Session interface {
	WithAuth(ctx context.Context, required oauth.ScopeSet, fn request.RequestFunc) error
}

// Client wraps the Google Calendar service.
type Client struct {
	session  Session
	scopes   oauth.ScopeSet
	endpoint string
}

// Option configures a Client.
type Option func(*Client)

// WithEndpoint overrides the Calendar API base URL.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) { c.endpoint = endpoint }
}

// NewClient creates a Calendar client on top of session.
func NewClient(session Session, opts ...Option) *Client {
	c := &Client{
		session: session,
		scopes:  provider.ScopesFor(provider.Google, provider.FeatureCalendar),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListEvents lists up to limit upcoming events starting at from, ordered by
// start time with recurring events expanded.
func (c *Client) ListEvents(ctx context.Context, from time.Time, limit int64) ([]Event, error) {
	if limit <= 0 {
		limit = DefaultMaxResults
	}

	var events []Event
	err := c.do(ctx, instrumentation.OperationList, func(ctx context.Context, svc *calendar.Service) error {
		resp, err := svc.Events.List(PrimaryCalendar).
			TimeMin(from.Format(time.RFC3339)).
			MaxResults(limit).
			SingleEvents(true).
			OrderBy("startTime").
			Context(ctx).
			Do()
		if err != nil {
			return fmt.Errorf("failed to list events: %w", err)
		}
		for _, item := range resp.Items {
			events = append(events, toEvent(item))
		}
		return nil
	})
	return events, err
}

// AddEvent creates an event.
func (c *Client) AddEvent(ctx context.Context, input EventInput) (*Event, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	body := &calendar.Event{
		Summary:     input.Summary,
		Description: input.Description,
		Location:    input.Location,
		Start:       eventDateTime(input.Start, input.TimeZone, input.AllDay),
		End:         eventDateTime(input.End, input.TimeZone, input.AllDay),
	}

	var created Event
	err := c.do(ctx, instrumentation.OperationCreate, func(ctx context.Context, svc *calendar.Service) error {
		ev, err := svc.Events.Insert(PrimaryCalendar, body).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("failed to create event: %w", err)
		}
		created = toEvent(ev)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateEvent changes the fields set in patch and keeps the others.
func (c *Client) UpdateEvent(ctx context.Context, eventID string, patch EventPatch) (*Event, error) {
	if eventID == "" {
		return nil, errors.New("event ID is required")
	}

	body := &calendar.Event{}
	if patch.Summary != nil {
		body.Summary = *patch.Summary
		body.ForceSendFields = append(body.ForceSendFields, "Summary")
	}
	if patch.Description != nil {
		body.Description = *patch.Description
		body.ForceSendFields = append(body.ForceSendFields, "Description")
	}
	if patch.Location != nil {
		body.Location = *patch.Location
		body.ForceSendFields = append(body.ForceSendFields, "Location")
	}
	if patch.Start != nil {
		body.Start = eventDateTime(*patch.Start, patch.TimeZone, false)
	}
	if patch.End != nil {
		body.End = eventDateTime(*patch.End, patch.TimeZone, false)
	}

	var updated Event
	err := c.do(ctx, instrumentation.OperationUpdate, func(ctx context.Context, svc *calendar.Service) error {
		ev, err := svc.Events.Patch(PrimaryCalendar, eventID, body).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("failed to update event: %w", err)
		}
		updated = toEvent(ev)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteEvent deletes an event.
func (c *Client) DeleteEvent(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errors.New("event ID is required")
	}

	return c.do(ctx, instrumentation.OperationDelete, func(ctx context.Context, svc *calendar.Service) error {
		if err := svc.Events.Delete(PrimaryCalendar, eventID).Context(ctx).Do(); err != nil {
			return fmt.Errorf("failed to delete event: %w", err)
		}
		return nil
	})
}

func (c *Client) do(ctx context.Context, op string, fn func(context.Context, *calendar.Service) error) error {
	ctx = request.WithOperation(ctx, instrumentation.ServiceCalendar, op)
	return c.session.WithAuth(ctx, c.scopes, func(ctx context.Context, hc *http.Client) error {
		opts := []option.ClientOption{option.WithHTTPClient(hc)}
		if c.endpoint != "" {
			opts = append(opts, option.WithEndpoint(c.endpoint))
		}
		svc, err := calendar.NewService(ctx, opts...)
		if err != nil {
			return fmt.Errorf("failed to create Calendar service: %w", err)
		}
		return fn(ctx, svc)
	})
}

func validateInput(input EventInput) error {
	if input.Summary == "" {
		return errors.New("event summary is required")
	}
	if input.Start.IsZero() || input.End.IsZero() {
		return errors.New("event start and end are required")
	}
	if input.End.Before(input.Start) {
		return errors.New("event end must not be before its start")
	}
	return nil
}
