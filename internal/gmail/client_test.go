package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/homedash/internal/oauth"
	"github.com/teemow/homedash/internal/request"
)

type fakeSession struct {
	scopes []oauth.ScopeSet
}

func (f *fakeSession) WithAuth(ctx context.Context, required oauth.ScopeSet, fn request.RequestFunc) error {
	f.scopes = append(f.scopes, required)
	return fn(ctx, http.DefaultClient)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *fakeSession) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	sess := &fakeSession{}
	return NewClient(sess, WithEndpoint(srv.URL+"/")), sess
}

func TestListMessages(t *testing.T) {
	var gets atomic.Int32
	client, sess := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/gmail/v1/users/me/messages":
			assert.Equal(t, "INBOX", r.URL.Query().Get("labelIds"))
			assert.Equal(t, "3", r.URL.Query().Get("maxResults"))
			_, _ = io.WriteString(w, `{"messages":[{"id":"m1"},{"id":"m2"},{"id":"m3"}]}`)
		case strings.HasPrefix(r.URL.Path, "/gmail/v1/users/me/messages/"):
			gets.Add(1)
			id := strings.TrimPrefix(r.URL.Path, "/gmail/v1/users/me/messages/")
			_, _ = fmt.Fprintf(w, `{"id":%q,"snippet":"hello %s"}`, id, id)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})

	msgs, err := client.ListMessages(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	for i, id := range []string{"m1", "m2", "m3"} {
		assert.Equal(t, id, msgs[i].Id)
		assert.Equal(t, "hello "+id, msgs[i].Snippet)
	}
	assert.Equal(t, int32(3), gets.Load())
	assert.Equal(t, oauth.ScopeSet{
		"https://www.googleapis.com/auth/gmail.modify",
		"https://www.googleapis.com/auth/gmail.compose",
		"https://www.googleapis.com/auth/gmail.send",
	}, sess.scopes[0])
}

func TestListMessages_FetchError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/gmail/v1/users/me/messages" {
			_, _ = io.WriteString(w, `{"messages":[{"id":"m1"}]}`)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.ListMessages(context.Background(), 0)
	assert.ErrorContains(t, err, "failed to get message m1")
}

func TestSendMessage(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/gmail/v1/users/me/messages/send", r.URL.Path)

		var body struct {
			Raw string `json:"raw"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.NotContains(t, body.Raw, "=")

		raw, err := base64.RawURLEncoding.DecodeString(body.Raw)
		require.NoError(t, err)
		msg := string(raw)
		assert.Contains(t, msg, "To: ann@example.com\r\n")
		assert.Contains(t, msg, "Subject: =?UTF-8?b?")
		assert.True(t, strings.HasSuffix(msg, "\r\n\r\nSee you at 8"))

		_, _ = io.WriteString(w, `{"id":"sent-1"}`)
	})

	id, err := client.SendMessage(context.Background(), "ann@example.com", "Grüße", "See you at 8")
	require.NoError(t, err)
	assert.Equal(t, "sent-1", id)
}

func TestSendMessage_Validation(t *testing.T) {
	client, sess := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	_, err := client.SendMessage(context.Background(), " ", "s", "b")
	assert.Error(t, err)
	_, err = client.SendMessage(context.Background(), "a@example.com", "", "b")
	assert.Error(t, err)
	assert.Empty(t, sess.scopes)
}

func TestMarkAsRead(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/gmail/v1/users/me/messages/m1/modify", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []any{"UNREAD"}, body["removeLabelIds"])

		_, _ = io.WriteString(w, `{"id":"m1"}`)
	})

	require.NoError(t, client.MarkAsRead(context.Background(), "m1"))
	assert.Error(t, client.MarkAsRead(context.Background(), ""))
}
