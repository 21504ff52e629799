package onedrive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
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

func newTestClient(t *testing.T, handler http.Handler) (*Client, *fakeSession, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	sess := &fakeSession{}
	return NewClient(sess, WithEndpoint(srv.URL+"/v1.0/")), sess, srv
}

func TestListChildren(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		wantPath string
	}{
		{"root", "/", "/v1.0/me/drive/root/children"},
		{"empty", "", "/v1.0/me/drive/root/children"},
		{"folder", "/Documents/Taxes/", "/v1.0/me/drive/root:/Documents/Taxes:/children"},
		{"escaped", "/My Files", "/v1.0/me/drive/root:/My%20Files:/children"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, sess, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, tt.wantPath, r.URL.EscapedPath())
				assert.Equal(t, "lastModifiedDateTime desc", r.URL.Query().Get("$orderby"))
				assert.Contains(t, r.URL.Query().Get("$select"), "folder")
				_, _ = io.WriteString(w, `{"value":[{"id":"1","name":"a.txt","size":3},{"id":"2","name":"Sub","folder":{"childCount":2}}]}`)
			}))

			items, err := client.ListChildren(context.Background(), tt.path)
			require.NoError(t, err)
			require.Len(t, items, 2)
			assert.False(t, items[0].IsFolder())
			assert.True(t, items[1].IsFolder())
			assert.Equal(t, 2, items[1].Folder.ChildCount)
			assert.Contains(t, sess.scopes[0], "Files.ReadWrite")
		})
	}
}

func TestListChildren_FollowsNextLink(t *testing.T) {
	var srvURL string
	client, _, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			_, _ = io.WriteString(w, `{"value":[{"id":"2"}]}`)
			return
		}
		_, _ = fmt.Fprintf(w, `{"value":[{"id":"1"}],"@odata.nextLink":%q}`, srvURL+"/v1.0/me/drive/root/children?page=2")
	}))
	srvURL = srv.URL

	items, err := client.ListChildren(context.Background(), "/")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "2", items[1].ID)
}

func TestListChildren_GraphError(t *testing.T) {
	client, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":{"code":"itemNotFound","message":"The resource could not be found."}}`)
	}))

	_, err := client.ListChildren(context.Background(), "/missing")
	var serr *request.StatusError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, http.StatusNotFound, serr.StatusCode)
	assert.Equal(t, "itemNotFound", serr.Code)
}

func TestCreateFolder(t *testing.T) {
	client, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1.0/me/drive/root:/Photos:/children", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "2026", body["name"])
		assert.Equal(t, map[string]any{}, body["folder"])
		assert.Equal(t, "rename", body["@microsoft.graph.conflictBehavior"])

		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":"f1","name":"2026 1","folder":{"childCount":0}}`)
	}))

	item, err := client.CreateFolder(context.Background(), "/Photos", "2026")
	require.NoError(t, err)
	assert.Equal(t, "2026 1", item.Name)

	_, err = client.CreateFolder(context.Background(), "/", "")
	assert.Error(t, err)
}

func TestDelete(t *testing.T) {
	client, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/v1.0/me/drive/items/ABC!123", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))

	require.NoError(t, client.Delete(context.Background(), "ABC!123"))
	assert.Error(t, client.Delete(context.Background(), ""))
}

func TestDownload(t *testing.T) {
	client, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1.0/me/drive/items/f1/content", r.URL.Path)
		_, _ = io.WriteString(w, "file content")
	}))

	data, err := client.Download(context.Background(), "f1")
	require.NoError(t, err)
	assert.Equal(t, "file content", string(data))
}

func TestUpload_Simple(t *testing.T) {
	client, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/v1.0/me/drive/root:/Docs/notes.txt:/content", r.URL.Path)
		data, _ := io.ReadAll(r.Body)
		assert.Equal(t, "hello", string(data))

		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":"n1","name":"notes.txt","size":5}`)
	}))

	item, err := client.Upload(context.Background(), "/Docs", "notes.txt", []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, "n1", item.ID)
}

func TestUpload_Session(t *testing.T) {
	data := bytes.Repeat([]byte("x"), SimpleUploadLimit+ChunkSize/2)

	var (
		mu       sync.Mutex
		ranges   []string
		received int
		srvURL   string
	)
	mux := http.NewServeMux()
	mux.HandleFunc("/v1.0/me/drive/root:/big.bin:/createUploadSession", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		_, _ = fmt.Fprintf(w, `{"uploadUrl":%q}`, srvURL+"/upload/session-1")
	})
	mux.HandleFunc("/upload/session-1", func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)

		mu.Lock()
		defer mu.Unlock()
		ranges = append(ranges, r.Header.Get("Content-Range"))
		received += len(body)
		if received < len(data) {
			w.WriteHeader(http.StatusAccepted)
			_, _ = io.WriteString(w, `{"nextExpectedRanges":["x-"]}`)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":"big","name":"big.bin"}`)
	})

	client, _, srv := newTestClient(t, mux)
	srvURL = srv.URL

	item, err := client.Upload(context.Background(), "/", "big.bin", data)
	require.NoError(t, err)
	assert.Equal(t, "big", item.ID)

	wantChunks := (len(data) + ChunkSize - 1) / ChunkSize
	require.Len(t, ranges, wantChunks)
	assert.Equal(t, fmt.Sprintf("bytes 0-%d/%d", ChunkSize-1, len(data)), ranges[0])
	last := (wantChunks - 1) * ChunkSize
	assert.Equal(t, fmt.Sprintf("bytes %d-%d/%d", last, len(data)-1, len(data)), ranges[wantChunks-1])
	assert.Equal(t, len(data), received)
}

func TestUpload_FragmentRejectedIsNotUnauthorized(t *testing.T) {
	var srvURL string
	mux := http.NewServeMux()
	mux.HandleFunc("/v1.0/me/drive/root:/big.bin:/createUploadSession", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintf(w, `{"uploadUrl":%q}`, srvURL+"/upload/expired")
	})
	mux.HandleFunc("/upload/expired", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	client, _, srv := newTestClient(t, mux)
	srvURL = srv.URL

	_, err := client.Upload(context.Background(), "/", "big.bin", make([]byte, SimpleUploadLimit+1))
	require.Error(t, err)
	var serr *request.StatusError
	assert.False(t, strings.Contains(err.Error(), "createUploadSession"))
	assert.NotErrorAs(t, err, &serr)
}

func TestCleanPath(t *testing.T) {
	assert.Equal(t, "", cleanPath("/"))
	assert.Equal(t, "", cleanPath("./"))
	assert.Equal(t, "/a/b", cleanPath("a//b/"))
	assert.Equal(t, "/a%3Fb", cleanPath("/a?b"))
	assert.Equal(t, "/me/drive/root:/x.txt", filePath("/", "x.txt"))
}
