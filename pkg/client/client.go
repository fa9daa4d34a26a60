// ABOUTME: HTTP client for the whiteboard API implementing the snapshot store contract
// ABOUTME: Error responses are mapped back onto the board error sentinels

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nainya/boardstore/pkg/api"
	"github.com/nainya/boardstore/pkg/board"
)

// Client talks to a boardstore HTTP server
type Client struct {
	base string
	http *http.Client
}

// New creates a client for the server at baseURL. A nil httpClient uses a
// client with a 30 second timeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{base: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// Create implements store.Store. The owner is taken from the tenant in ctx
// on the server side; a non-empty owner overrides it.
func (c *Client) Create(ctx context.Context, name, owner string) (*board.Whiteboard, error) {
	if owner != "" {
		ctx = board.WithTenant(ctx, owner)
	}
	var out api.Whiteboard
	if err := c.do(ctx, http.MethodPost, "/whiteboard/create", api.CreateRequest{Name: name}, &out); err != nil {
		return nil, err
	}
	return out.ToBoard(), nil
}

// List implements store.Store
func (c *Client) List(ctx context.Context) ([]board.Summary, error) {
	var out []board.Summary
	if err := c.do(ctx, http.MethodGet, "/whiteboard/get", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Get implements store.Store
func (c *Client) Get(ctx context.Context, id string) (*board.Whiteboard, error) {
	var out api.Whiteboard
	if err := c.do(ctx, http.MethodGet, "/whiteboard/get/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return out.ToBoard(), nil
}

// GetCurrent implements store.Store
func (c *Client) GetCurrent(ctx context.Context, id string) (*board.Snapshot, error) {
	wb, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &wb.Current, nil
}

// PutCurrent implements store.Store
func (c *Client) PutCurrent(ctx context.Context, id, data string) (*board.SnapshotVersion, error) {
	var out api.WriteResponse
	if err := c.do(ctx, http.MethodPut, "/whiteboard/update/"+url.PathEscape(id), api.UpdateRequest{Data: data}, &out); err != nil {
		return nil, err
	}
	v := out.Version.ToBoard()
	v.Data = data
	return v, nil
}

// ListVersions implements store.Store
func (c *Client) ListVersions(ctx context.Context, id string) ([]board.SnapshotVersion, error) {
	var out []api.Version
	if err := c.do(ctx, http.MethodGet, "/whiteboard/get/"+url.PathEscape(id)+"/versions?payload=true", nil, &out); err != nil {
		return nil, err
	}
	versions := make([]board.SnapshotVersion, len(out))
	for i, v := range out {
		versions[i] = *v.ToBoard()
	}
	return versions, nil
}

// Restore implements store.Store
func (c *Client) Restore(ctx context.Context, id string, index int) (*board.SnapshotVersion, error) {
	var out api.WriteResponse
	path := "/whiteboard/get/" + url.PathEscape(id) + "/restore/" + strconv.Itoa(index) + "?payload=true"
	if err := c.do(ctx, http.MethodPost, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Version.ToBoard(), nil
}

// ExportPDF downloads the PDF rendering of a whiteboard. A negative version
// exports the current snapshot.
func (c *Client) ExportPDF(ctx context.Context, id string, version int) ([]byte, error) {
	path := "/whiteboard/get/" + url.PathEscape(id) + "/export.pdf"
	if version >= 0 {
		path += "?version=" + strconv.Itoa(version)
	}
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", board.ErrStoreUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a := board.AuthorFrom(ctx); a != "" {
		req.Header.Set(api.HeaderUserID, a)
	}
	if t := board.TenantFrom(ctx); t != "" {
		req.Header.Set(api.HeaderTenantID, t)
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", board.ErrStoreUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

// decodeError maps an error response onto a board sentinel
func decodeError(resp *http.Response) error {
	var body api.ErrorResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, &body); err != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(raw))
	}

	switch {
	case body.Code == api.CodeNotFound || resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", board.ErrNotFound, body.Error)
	case body.Code == api.CodeOutOfRange:
		return fmt.Errorf("%w: %s", board.ErrOutOfRange, body.Error)
	case body.Code == api.CodeInvalidRequest || resp.StatusCode == http.StatusBadRequest:
		return fmt.Errorf("%w: %s", board.ErrInvalidInput, body.Error)
	case resp.StatusCode == http.StatusServiceUnavailable,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusBadGateway,
		resp.StatusCode == http.StatusGatewayTimeout:
		return fmt.Errorf("%w: %s", board.ErrStoreUnavailable, body.Error)
	}
	return fmt.Errorf("http %d: %s", resp.StatusCode, body.Error)
}
