package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/sync/errgroup"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/teemow/homedash/internal/instrumentation"
	"github.com/teemow/homedash/internal/oauth"
	"github.com/teemow/homedash/internal/provider"
	"github.com/teemow/homedash/internal/request"
)

const (
	// DefaultMaxResults bounds ListMessages when limit is not positive.
	DefaultMaxResults = 20

	me           = "me"
	labelInbox   = "INBOX"
	labelUnread  = "UNREAD"
	fetchWorkers = 5
)

// Session runs authenticated requests for a Google provider session.
type Session interface {
	WithAuth(ctx context.Context, required oauth.ScopeSet, fn request.RequestFunc) error
}

// Client wraps the Gmail service.
type Client struct {
	session  Session
	scopes   oauth.ScopeSet
	endpoint string
}

// Option configures a Client.
type Option func(*Client)

// WithEndpoint overrides the Gmail API base URL.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) { c.endpoint = endpoint }
}

// NewClient creates a Gmail client on top of session.
func NewClient(session Session, opts ...Option) *Client {
	c := &Client{
		session: session,
		scopes:  provider.ScopesFor(provider.Google, provider.FeatureGmail),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListMessages returns up to limit of the newest inbox messages in full
// format, in the order the list call returned them.
func (c *Client) ListMessages(ctx context.Context, limit int64) ([]*gmail.Message, error) {
	if limit <= 0 {
		limit = DefaultMaxResults
	}

	var messages []*gmail.Message
	err := c.do(ctx, instrumentation.OperationList, func(ctx context.Context, svc *gmail.Service) error {
		resp, err := svc.Users.Messages.List(me).
			LabelIds(labelInbox).
			MaxResults(limit).
			Context(ctx).
			Do()
		if err != nil {
			return fmt.Errorf("failed to list messages: %w", err)
		}

		messages = make([]*gmail.Message, len(resp.Messages))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(fetchWorkers)
		for i, ref := range resp.Messages {
			g.Go(func() error {
				msg, err := svc.Users.Messages.Get(me, ref.Id).Context(gctx).Do()
				if err != nil {
					return fmt.Errorf("failed to get message %s: %w", ref.Id, err)
				}
				messages[i] = msg
				return nil
			})
		}
		return g.Wait()
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// SendMessage sends a plain-text message and returns its ID.
func (c *Client) SendMessage(ctx context.Context, to, subject, body string) (string, error) {
	if strings.TrimSpace(to) == "" {
		return "", errors.New("recipient is required")
	}
	if subject == "" {
		return "", errors.New("subject is required")
	}

	raw := base64.RawURLEncoding.EncodeToString([]byte(buildMessage(to, subject, body)))

	var id string
	err := c.do(ctx, instrumentation.OperationSend, func(ctx context.Context, svc *gmail.Service) error {
		sent, err := svc.Users.Messages.Send(me, &gmail.Message{Raw: raw}).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("failed to send message: %w", err)
		}
		id = sent.Id
		return nil
	})
	return id, err
}

// MarkAsRead removes the UNREAD label from a message.
func (c *Client) MarkAsRead(ctx context.Context, messageID string) error {
	if messageID == "" {
		return errors.New("message ID is required")
	}

	return c.do(ctx, instrumentation.OperationUpdate, func(ctx context.Context, svc *gmail.Service) error {
		req := &gmail.ModifyMessageRequest{RemoveLabelIds: []string{labelUnread}}
		if _, err := svc.Users.Messages.Modify(me, messageID, req).Context(ctx).Do(); err != nil {
			return fmt.Errorf("failed to mark message as read: %w", err)
		}
		return nil
	})
}

func (c *Client) do(ctx context.Context, op string, fn func(context.Context, *gmail.Service) error) error {
	ctx = request.WithOperation(ctx, instrumentation.ServiceGmail, op)
	return c.session.WithAuth(ctx, c.scopes, func(ctx context.Context, hc *http.Client) error {
		opts := []option.ClientOption{option.WithHTTPClient(hc)}
		if c.endpoint != "" {
			opts = append(opts, option.WithEndpoint(c.endpoint))
		}
		svc, err := gmail.NewService(ctx, opts...)
		if err != nil {
			return fmt.Errorf("failed to create Gmail service: %w", err)
		}
		return fn(ctx, svc)
	})
}
