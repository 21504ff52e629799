package onedrive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/teemow/homedash/internal/instrumentation"
	"github.com/teemow/homedash/internal/oauth"
	"github.com/teemow/homedash/internal/provider"
	"github.com/teemow/homedash/internal/request"
)

const (
	// DefaultEndpoint is the Microsoft Graph v1.0 base URL.
	DefaultEndpoint = "https://graph.microsoft.com/v1.0"

	// SimpleUploadLimit is the largest file uploaded with a single PUT.
	SimpleUploadLimit = 4 << 20

	// ChunkSize is the upload session fragment size. Graph requires a
	// multiple of 320 KiB.
	ChunkSize = 320 << 10

	listSelect  = "id,name,size,webUrl,lastModifiedDateTime,folder,file"
	listOrderBy = "lastModifiedDateTime desc"
)

// Session runs authenticated requests for a Microsoft provider session.
type Session interface {
	WithAuth(ctx context.Context, required oauth.ScopeSet, fn request.RequestFunc) error
}

// Client calls the OneDrive endpoints of Microsoft Graph.
type Client struct {
	session  Session
	scopes   oauth.ScopeSet
	endpoint string
	// uploadClient sends upload session fragments. Upload URLs are
	// pre-authenticated and must not carry the bearer token.
	uploadClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithEndpoint overrides the Graph base URL.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) { c.endpoint = strings.TrimRight(endpoint, "/") }
}

// WithUploadClient sets the HTTP client used for upload session fragments.
func WithUploadClient(hc *http.Client) Option {
	return func(c *Client) { c.uploadClient = hc }
}

// NewClient creates a OneDrive client on top of session.
func NewClient(session Session, opts ...Option) *Client {
	c := &Client{
		session:      session,
		scopes:       provider.ScopesFor(provider.Microsoft, provider.FeatureOneDrive),
		endpoint:     DefaultEndpoint,
		uploadClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListChildren lists the items in the folder at path, newest first. Paged
// results are followed to the end.
func (c *Client) ListChildren(ctx context.Context, path string) ([]Item, error) {
	q := url.Values{}
	q.Set("$select", listSelect)
	q.Set("$orderby", listOrderBy)
	next := c.endpoint + childrenPath(path) + "?" + q.Encode()

	var items []Item
	err := c.do(ctx, instrumentation.OperationList, func(ctx context.Context, hc *http.Client) error {
		items = nil
		for u := next; u != ""; {
			var page itemList
			if err := c.doJSON(ctx, hc, http.MethodGet, u, nil, &page); err != nil {
				return fmt.Errorf("failed to list %s: %w", path, err)
			}
			items = append(items, page.Value...)
			u = page.NextLink
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// CreateFolder creates a folder named name inside the folder at path. A name
// clash is resolved by the service renaming the new folder.
func (c *Client) CreateFolder(ctx context.Context, path, name string) (*Item, error) {
	if name == "" {
		return nil, errors.New("folder name is required")
	}

	body := map[string]any{
		"name":                              name,
		"folder":                            map[string]any{},
		"@microsoft.graph.conflictBehavior": "rename",
	}

	var item Item
	err := c.do(ctx, instrumentation.OperationCreate, func(ctx context.Context, hc *http.Client) error {
		if err := c.doJSON(ctx, hc, http.MethodPost, c.endpoint+childrenPath(path), body, &item); err != nil {
			return fmt.Errorf("failed to create folder %s: %w", name, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// Delete moves the item to the recycle bin.
func (c *Client) Delete(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("item ID is required")
	}

	return c.do(ctx, instrumentation.OperationDelete, func(ctx context.Context, hc *http.Client) error {
		if err := c.doJSON(ctx, hc, http.MethodDelete, c.endpoint+itemPath(id), nil, nil); err != nil {
			return fmt.Errorf("failed to delete %s: %w", id, err)
		}
		return nil
	})
}

// Download returns the content of a file.
func (c *Client) Download(ctx context.Context, id string) ([]byte, error) {
	if id == "" {
		return nil, errors.New("item ID is required")
	}

	var data []byte
	err := c.do(ctx, instrumentation.OperationGet, func(ctx context.Context, hc *http.Client) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+itemPath(id)+"/content", nil)
		if err != nil {
			return err
		}
		resp, err := hc.Do(req)
		if err != nil {
			return fmt.Errorf("failed to download %s: %w", id, err)
		}
		defer func() { _ = resp.Body.Close() }()

		if err := request.CheckResponse(resp); err != nil {
			return fmt.Errorf("failed to download %s: %w", id, err)
		}
		data, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Upload stores data as name in the folder at path, replacing an existing
// file of that name.
func (c *Client) Upload(ctx context.Context, path, name string, data []byte) (*Item, error) {
	if name == "" {
		return nil, errors.New("file name is required")
	}

	target := c.endpoint + filePath(path, name)

	var item Item
	err := c.do(ctx, instrumentation.OperationUpload, func(ctx context.Context, hc *http.Client) error {
		if len(data) <= SimpleUploadLimit {
			if err := c.putContent(ctx, hc, target+":/content", data, &item); err != nil {
				return fmt.Errorf("failed to upload %s: %w", name, err)
			}
			return nil
		}

		var session uploadSession
		if err := c.doJSON(ctx, hc, http.MethodPost, target+":/createUploadSession", map[string]any{}, &session); err != nil {
			return fmt.Errorf("failed to create upload session for %s: %w", name, err)
		}
		if err := c.uploadChunks(ctx, session.UploadURL, data, &item); err != nil {
			return fmt.Errorf("failed to upload %s: %w", name, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// uploadChunks sends data to an upload session. The last fragment's
// response carries the created item.
func (c *Client) uploadChunks(ctx context.Context, uploadURL string, data []byte, out *Item) error {
	if uploadURL == "" {
		return errors.New("upload session has no upload URL")
	}

	total := len(data)
	for start := 0; start < total; start += ChunkSize {
		end := min(start+ChunkSize, total)

		req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(data[start:end]))
		if err != nil {
			return err
		}
		req.ContentLength = int64(end - start)
		req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end-1, total))

		resp, err := c.uploadClient.Do(req)
		if err != nil {
			return err
		}
		if err := request.CheckResponse(resp); err != nil {
			_ = resp.Body.Close()
			// Not wrapped: a rejected fragment says nothing about the
			// bearer token.
			return fmt.Errorf("upload session: %v", err)
		}
		if end == total {
			err = json.NewDecoder(resp.Body).Decode(out)
		}
		_ = resp.Body.Close()
		if err != nil {
			return fmt.Errorf("failed to decode upload response: %w", err)
		}
	}
	return nil
}

func (c *Client) putContent(ctx context.Context, hc *http.Client, u string, data []byte, out *Item) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	return send(hc, req, out)
}

func (c *Client) doJSON(ctx context.Context, hc *http.Client, method, u string, body, out any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return send(hc, req, out)
}

func (c *Client) do(ctx context.Context, op string, fn request.RequestFunc) error {
	ctx = request.WithOperation(ctx, instrumentation.ServiceOneDrive, op)
	return c.session.WithAuth(ctx, c.scopes, fn)
}

func send(hc *http.Client, req *http.Request, out any) error {
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := request.CheckResponse(resp); err != nil {
		return err
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// cleanPath trims and escapes a drive path. It returns "" for the root.
func cleanPath(p string) string {
	var segs []string
	for _, s := range strings.Split(p, "/") {
		if s == "" || s == "." {
			continue
		}
		segs = append(segs, url.PathEscape(s))
	}
	if len(segs) == 0 {
		return ""
	}
	return "/" + strings.Join(segs, "/")
}

func childrenPath(p string) string {
	if cp := cleanPath(p); cp != "" {
		return "/me/drive/root:" + cp + ":/children"
	}
	return "/me/drive/root/children"
}

func filePath(p, name string) string {
	return "/me/drive/root:" + cleanPath(p) + "/" + url.PathEscape(name)
}

func itemPath(id string) string {
	return "/me/drive/items/" + url.PathEscape(id)
}
