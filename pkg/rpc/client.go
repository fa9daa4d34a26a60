package rpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/nainya/boardstore/pkg/board"
)

// Client is a store.Store backed by a remote SnapshotStore service
type Client struct {
	conn grpc.ClientConnInterface
}

// NewClient wraps an established connection
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

func (c *Client) invoke(ctx context.Context, method string, in, out any) error {
	err := c.conn.Invoke(outgoing(ctx), "/"+ServiceName+"/"+method, in, out, grpc.CallContentSubtype(CodecName))
	return FromStatus(err)
}

// Create implements store.Store
func (c *Client) Create(ctx context.Context, name, owner string) (*board.Whiteboard, error) {
	var out CreateResponse
	if err := c.invoke(ctx, "Create", &CreateRequest{Name: name, Owner: owner}, &out); err != nil {
		return nil, err
	}
	return out.Whiteboard.ToBoard(), nil
}

// List implements store.Store
func (c *Client) List(ctx context.Context) ([]board.Summary, error) {
	var out ListResponse
	if err := c.invoke(ctx, "List", &ListRequest{}, &out); err != nil {
		return nil, err
	}
	return out.Whiteboards, nil
}

// Get implements store.Store
func (c *Client) Get(ctx context.Context, id string) (*board.Whiteboard, error) {
	var out GetResponse
	if err := c.invoke(ctx, "Get", &GetRequest{ID: id}, &out); err != nil {
		return nil, err
	}
	return out.Whiteboard.ToBoard(), nil
}

// GetCurrent implements store.Store
func (c *Client) GetCurrent(ctx context.Context, id string) (*board.Snapshot, error) {
	var out GetCurrentResponse
	if err := c.invoke(ctx, "GetCurrent", &GetCurrentRequest{ID: id}, &out); err != nil {
		return nil, err
	}
	return out.Snapshot.ToBoard(), nil
}

// PutCurrent implements store.Store
func (c *Client) PutCurrent(ctx context.Context, id, data string) (*board.SnapshotVersion, error) {
	var out PutCurrentResponse
	if err := c.invoke(ctx, "PutCurrent", &PutCurrentRequest{ID: id, Data: data}, &out); err != nil {
		return nil, err
	}
	return out.Version.ToBoard(), nil
}

// ListVersions implements store.Store
func (c *Client) ListVersions(ctx context.Context, id string) ([]board.SnapshotVersion, error) {
	var out ListVersionsResponse
	if err := c.invoke(ctx, "ListVersions", &ListVersionsRequest{ID: id}, &out); err != nil {
		return nil, err
	}
	versions := make([]board.SnapshotVersion, len(out.Versions))
	for i, v := range out.Versions {
		versions[i] = *v.ToBoard()
	}
	return versions, nil
}

// Restore implements store.Store
func (c *Client) Restore(ctx context.Context, id string, index int) (*board.SnapshotVersion, error) {
	var out RestoreResponse
	if err := c.invoke(ctx, "Restore", &RestoreRequest{ID: id, Index: index}, &out); err != nil {
		return nil, err
	}
	return out.Version.ToBoard(), nil
}
