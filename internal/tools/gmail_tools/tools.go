package gmail_tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/homedash/internal/gmail"
	"github.com/teemow/homedash/internal/server"
	"github.com/teemow/homedash/internal/session"
	"github.com/teemow/homedash/internal/tools/batch"
	"github.com/teemow/homedash/internal/tools/common"
)

// maxBodyChars bounds the body text returned per message.
const maxBodyChars = 4000

// RegisterGmailTools registers the Gmail tools with the MCP server.
func RegisterGmailTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	if _, err := sc.Sessions().Get(session.Gmail); err != nil {
		return fmt.Errorf("gmail tools need the %s session: %w", session.Gmail, err)
	}

	listMessagesTool := mcp.NewTool("gmail_list_messages",
		mcp.WithDescription("List the newest messages in the Gmail inbox"),
		mcp.WithNumber("maxResults",
			mcp.Description(fmt.Sprintf("Maximum number of messages to return (default: %d)", gmail.DefaultMaxResults)),
		),
		mcp.WithBoolean("includeBody",
			mcp.Description("Include the plain-text body of each message"),
		),
	)
	s.AddTool(listMessagesTool, common.InstrumentedToolHandler("gmail_list_messages", session.Gmail, sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleListMessages(ctx, request, sc)
	}))

	if readOnly {
		return nil
	}

	sendMessageTool := mcp.NewTool("gmail_send_message",
		mcp.WithDescription("Send a plain-text email from the connected Gmail account"),
		mcp.WithString("to",
			mcp.Required(),
			mcp.Description("Recipient email address(es), comma-separated"),
		),
		mcp.WithString("subject",
			mcp.Required(),
			mcp.Description("Email subject"),
		),
		mcp.WithString("body",
			mcp.Required(),
			mcp.Description("Plain-text email body"),
		),
	)
	s.AddTool(sendMessageTool, common.InstrumentedToolHandler("gmail_send_message", session.Gmail, sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleSendMessage(ctx, request, sc)
	}))

	markReadTool := mcp.NewTool("gmail_mark_read",
		mcp.WithDescription("Mark Gmail messages as read"),
		mcp.WithString("messageIds",
			mcp.Required(),
			mcp.Description("Message ID (string) or array of message IDs"),
		),
	)
	s.AddTool(markReadTool, common.InstrumentedToolHandler("gmail_mark_read", session.Gmail, sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleMarkRead(ctx, request, sc)
	}))

	return nil
}

func handleListMessages(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	limit, err := common.IntArg(request, "maxResults", gmail.DefaultMaxResults)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	includeBody := common.BoolArg(request, "includeBody", false)

	client, err := sc.GmailClient()
	if err != nil {
		return nil, err
	}

	messages, err := client.ListMessages(ctx, limit)
	if err != nil {
		return nil, err
	}

	if len(messages) == 0 {
		return mcp.NewToolResultText("The inbox is empty."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d messages:\n\n", len(messages))
	for i, m := range messages {
		summary := gmail.Summarize(m)
		marker := ""
		if summary.Unread {
			marker = " [unread]"
		}
		fmt.Fprintf(&b, "%d. %s%s\n", i+1, summary.Subject, marker)
		fmt.Fprintf(&b, "   ID: %s\n", summary.ID)
		fmt.Fprintf(&b, "   From: %s\n", summary.From)
		if summary.Date != "" {
			fmt.Fprintf(&b, "   Date: %s\n", summary.Date)
		}
		if includeBody {
			body := gmail.MessageBody(m)
			if len(body) > maxBodyChars {
				body = body[:maxBodyChars] + "..."
			}
			fmt.Fprintf(&b, "   Body:\n%s\n", indent(body, "      "))
		} else if summary.Snippet != "" {
			fmt.Fprintf(&b, "   Snippet: %s\n", summary.Snippet)
		}
		b.WriteString("\n")
	}

	return mcp.NewToolResultText(b.String()), nil
}

func handleSendMessage(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	to, errResult := common.RequiredString(request, "to")
	if errResult != nil {
		return errResult, nil
	}
	subject, errResult := common.RequiredString(request, "subject")
	if errResult != nil {
		return errResult, nil
	}
	body, errResult := common.RequiredString(request, "body")
	if errResult != nil {
		return errResult, nil
	}

	client, err := sc.GmailClient()
	if err != nil {
		return nil, err
	}

	id, err := client.SendMessage(ctx, to, subject, body)
	if err != nil {
		return nil, err
	}

	return mcp.NewToolResultText(fmt.Sprintf("Message sent to %s (ID: %s).", to, id)), nil
}

func handleMarkRead(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	ids, err := batch.ParseIDs(request.GetArguments()["messageIds"], "messageIds")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	client, err := sc.GmailClient()
	if err != nil {
		return nil, err
	}

	outcome, err := batch.Run(ctx, ids, func(ctx context.Context, id string) (string, error) {
		if err := client.MarkAsRead(ctx, id); err != nil {
			return "", err
		}
		return "marked as read", nil
	})
	if err != nil {
		return nil, err
	}

	if len(ids) == 1 && outcome.Successful == 1 {
		return mcp.NewToolResultText(fmt.Sprintf("Message %s marked as read.", ids[0])), nil
	}
	return mcp.NewToolResultText(outcome.JSON()), nil
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}
