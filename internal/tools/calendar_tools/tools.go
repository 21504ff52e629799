package calendar_tools

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/homedash/internal/calendar"
	"github.com/teemow/homedash/internal/server"
	"github.com/teemow/homedash/internal/session"
	"github.com/teemow/homedash/internal/tools/common"
)

// RegisterCalendarTools registers the calendar tools with the MCP server.
func RegisterCalendarTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	if _, err := sc.Sessions().Get(session.Calendar); err != nil {
		return fmt.Errorf("calendar tools need the %s session: %w", session.Calendar, err)
	}

	listEventsTool := mcp.NewTool("calendar_list_events",
		mcp.WithDescription("List upcoming events of the primary calendar, ordered by start time"),
		mcp.WithString("from",
			mcp.Description("Earliest end time of listed events (RFC3339 format, e.g., '2026-01-15T00:00:00Z'). Defaults to now."),
		),
		mcp.WithNumber("maxResults",
			mcp.Description(fmt.Sprintf("Maximum number of events to return (default: %d)", calendar.DefaultMaxResults)),
		),
	)
	s.AddTool(listEventsTool, common.InstrumentedToolHandler("calendar_list_events", session.Calendar, sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleListEvents(ctx, request, sc)
	}))

	if readOnly {
		return nil
	}

	addEventTool := mcp.NewTool("calendar_add_event",
		mcp.WithDescription("Add an event to the primary calendar"),
		mcp.WithString("summary",
			mcp.Required(),
			mcp.Description("Event title"),
		),
		mcp.WithString("start",
			mcp.Required(),
			mcp.Description("Start time (RFC3339 format, e.g., '2026-01-15T14:00:00+01:00')"),
		),
		mcp.WithString("end",
			mcp.Required(),
			mcp.Description("End time (RFC3339 format, e.g., '2026-01-15T15:00:00+01:00')"),
		),
		mcp.WithString("description",
			mcp.Description("Event description"),
		),
		mcp.WithString("location",
			mcp.Description("Event location"),
		),
		mcp.WithString("timeZone",
			mcp.Description("IANA time zone (e.g., 'Europe/Berlin'). Defaults to the offset of start."),
		),
		mcp.WithBoolean("allDay",
			mcp.Description("Create an all-day event (only the dates of start and end are used)"),
		),
	)
	s.AddTool(addEventTool, common.InstrumentedToolHandler("calendar_add_event", session.Calendar, sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleAddEvent(ctx, request, sc)
	}))

	updateEventTool := mcp.NewTool("calendar_update_event",
		mcp.WithDescription("Change fields of an event on the primary calendar. Omitted fields are kept."),
		mcp.WithString("eventId",
			mcp.Required(),
			mcp.Description("The ID of the event to update"),
		),
		mcp.WithString("summary", mcp.Description("New title")),
		mcp.WithString("description", mcp.Description("New description")),
		mcp.WithString("location", mcp.Description("New location")),
		mcp.WithString("start", mcp.Description("New start time (RFC3339 format)")),
		mcp.WithString("end", mcp.Description("New end time (RFC3339 format)")),
		mcp.WithString("timeZone", mcp.Description("IANA time zone of the new start and end")),
	)
	s.AddTool(updateEventTool, common.InstrumentedToolHandler("calendar_update_event", session.Calendar, sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleUpdateEvent(ctx, request, sc)
	}))

	deleteEventTool := mcp.NewTool("calendar_delete_event",
		mcp.WithDescription("Delete an event from the primary calendar"),
		mcp.WithString("eventId",
			mcp.Required(),
			mcp.Description("The ID of the event to delete"),
		),
	)
	s.AddTool(deleteEventTool, common.InstrumentedToolHandler("calendar_delete_event", session.Calendar, sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleDeleteEvent(ctx, request, sc)
	}))

	return nil
}

func handleListEvents(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	from, err := common.TimeArg(request, "from", time.Now())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	limit, err := common.IntArg(request, "maxResults", calendar.DefaultMaxResults)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	client, err := sc.CalendarClient()
	if err != nil {
		return nil, err
	}

	events, err := client.ListEvents(ctx, from, limit)
	if err != nil {
		return nil, err
	}

	if len(events) == 0 {
		return mcp.NewToolResultText("No upcoming events."), nil
	}

	result := fmt.Sprintf("Found %d events:\n\n", len(events))
	for i, event := range events {
		result += fmt.Sprintf("%d. %s\n", i+1, event.Summary)
		result += fmt.Sprintf("   ID: %s\n", event.ID)
		result += fmt.Sprintf("   When: %s\n", formatWhen(event))
		if event.Location != "" {
			result += fmt.Sprintf("   Location: %s\n", event.Location)
		}
		if event.Organizer != "" {
			result += fmt.Sprintf("   Organizer: %s\n", event.Organizer)
		}
		result += "\n"
	}

	return mcp.NewToolResultText(result), nil
}

func handleAddEvent(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	summary, errResult := common.RequiredString(request, "summary")
	if errResult != nil {
		return errResult, nil
	}
	start, end, errResult := requiredRange(request)
	if errResult != nil {
		return errResult, nil
	}

	client, err := sc.CalendarClient()
	if err != nil {
		return nil, err
	}

	event, err := client.AddEvent(ctx, calendar.EventInput{
		Summary:     summary,
		Description: common.StringArg(request, "description", ""),
		Location:    common.StringArg(request, "location", ""),
		Start:       start,
		End:         end,
		TimeZone:    common.StringArg(request, "timeZone", ""),
		AllDay:      common.BoolArg(request, "allDay", false),
	})
	if err != nil {
		return nil, err
	}

	return mcp.NewToolResultText(fmt.Sprintf("Event created: %s\nID: %s\nWhen: %s\nLink: %s",
		event.Summary, event.ID, formatWhen(*event), event.HTMLLink)), nil
}

func handleUpdateEvent(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	eventID, errResult := common.RequiredString(request, "eventId")
	if errResult != nil {
		return errResult, nil
	}

	patch := calendar.EventPatch{TimeZone: common.StringArg(request, "timeZone", "")}
	args := request.GetArguments()
	if v, ok := args["summary"].(string); ok {
		patch.Summary = &v
	}
	if v, ok := args["description"].(string); ok {
		patch.Description = &v
	}
	if v, ok := args["location"].(string); ok {
		patch.Location = &v
	}
	for name, dst := range map[string]**time.Time{"start": &patch.Start, "end": &patch.End} {
		t, err := common.TimeArg(request, name, time.Time{})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if !t.IsZero() {
			*dst = &t
		}
	}

	client, err := sc.CalendarClient()
	if err != nil {
		return nil, err
	}

	event, err := client.UpdateEvent(ctx, eventID, patch)
	if err != nil {
		return nil, err
	}

	return mcp.NewToolResultText(fmt.Sprintf("Event updated: %s\nID: %s\nWhen: %s", event.Summary, event.ID, formatWhen(*event))), nil
}

func handleDeleteEvent(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	eventID, errResult := common.RequiredString(request, "eventId")
	if errResult != nil {
		return errResult, nil
	}

	client, err := sc.CalendarClient()
	if err != nil {
		return nil, err
	}

	if err := client.DeleteEvent(ctx, eventID); err != nil {
		return nil, err
	}

	return mcp.NewToolResultText(fmt.Sprintf("Event %s deleted.", eventID)), nil
}

func requiredRange(request mcp.CallToolRequest) (time.Time, time.Time, *mcp.CallToolResult) {
	var bounds [2]time.Time
	for i, name := range []string{"start", "end"} {
		if _, errResult := common.RequiredString(request, name); errResult != nil {
			return time.Time{}, time.Time{}, errResult
		}
		t, err := common.TimeArg(request, name, time.Time{})
		if err != nil {
			return time.Time{}, time.Time{}, mcp.NewToolResultError(err.Error())
		}
		bounds[i] = t
	}
	return bounds[0], bounds[1], nil
}

func formatWhen(event calendar.Event) string {
	if event.AllDay {
		return fmt.Sprintf("%s (all day)", event.Start.Format(time.DateOnly))
	}
	return fmt.Sprintf("%s - %s", event.Start.Format(time.RFC3339), event.End.Format(time.RFC3339))
}
