// Package server implements the whiteboard gRPC and HTTP services
package server

import (
	"context"
	"sort"
	"sync"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/nainya/boardstore/pkg/board"
	"github.com/nainya/boardstore/pkg/rpc"
	"github.com/nainya/boardstore/pkg/store"
)

// Server implements the rpc.SnapshotStoreServer interface
type Server struct {
	store store.Store

	startTime time.Time
	mu        sync.Mutex
	opCounts  map[string]int64
}

// NewServer creates a new gRPC server instance over st
func NewServer(st store.Store) *Server {
	return &Server{
		store:     st,
		startTime: time.Now(),
		opCounts:  make(map[string]int64),
	}
}

// Uptime returns how long the server has been running
func (s *Server) Uptime() time.Duration {
	return time.Since(s.startTime)
}

// OpCounts returns the number of calls per method, sorted by name
func (s *Server) OpCounts() []OpCount {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]OpCount, 0, len(s.opCounts))
	for op, n := range s.opCounts {
		out = append(out, OpCount{Op: op, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Op < out[j].Op })
	return out
}

// OpCount is one entry of OpCounts
type OpCount struct {
	Op    string
	Count int64
}

func (s *Server) begin(ctx context.Context, op string) context.Context {
	s.mu.Lock()
	s.opCounts[op]++
	s.mu.Unlock()
	return rpc.Incoming(ctx)
}

// ========== Whiteboard Operations ==========

func (s *Server) Create(ctx context.Context, req *rpc.CreateRequest) (*rpc.CreateResponse, error) {
	ctx = s.begin(ctx, "Create")

	if req.Name == "" {
		return nil, status.Error(codes.InvalidArgument, "name is required")
	}
	owner := req.Owner
	if owner == "" {
		owner = board.TenantFrom(ctx)
	}

	wb, err := s.store.Create(ctx, req.Name, owner)
	if err != nil {
		return nil, rpc.ToStatus(err)
	}
	return &rpc.CreateResponse{Whiteboard: rpc.FromWhiteboard(wb)}, nil
}

func (s *Server) List(ctx context.Context, req *rpc.ListRequest) (*rpc.ListResponse, error) {
	ctx = s.begin(ctx, "List")

	list, err := s.store.List(ctx)
	if err != nil {
		return nil, rpc.ToStatus(err)
	}
	if list == nil {
		list = []board.Summary{}
	}
	return &rpc.ListResponse{Whiteboards: list}, nil
}

func (s *Server) Get(ctx context.Context, req *rpc.GetRequest) (*rpc.GetResponse, error) {
	ctx = s.begin(ctx, "Get")

	if req.ID == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}
	wb, err := s.store.Get(ctx, req.ID)
	if err != nil {
		return nil, rpc.ToStatus(err)
	}
	return &rpc.GetResponse{Whiteboard: rpc.FromWhiteboard(wb)}, nil
}

// ========== Snapshot Operations ==========

func (s *Server) GetCurrent(ctx context.Context, req *rpc.GetCurrentRequest) (*rpc.GetCurrentResponse, error) {
	ctx = s.begin(ctx, "GetCurrent")

	if req.ID == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}
	snap, err := s.store.GetCurrent(ctx, req.ID)
	if err != nil {
		return nil, rpc.ToStatus(err)
	}
	return &rpc.GetCurrentResponse{Snapshot: rpc.FromSnapshot(snap)}, nil
}

func (s *Server) PutCurrent(ctx context.Context, req *rpc.PutCurrentRequest) (*rpc.PutCurrentResponse, error) {
	ctx = s.begin(ctx, "PutCurrent")

	if req.ID == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}
	if req.Data == "" {
		return nil, status.Error(codes.InvalidArgument, "data is required")
	}
	v, err := s.store.PutCurrent(ctx, req.ID, req.Data)
	if err != nil {
		return nil, rpc.ToStatus(err)
	}
	return &rpc.PutCurrentResponse{Version: rpc.FromVersion(v)}, nil
}

// ========== Version Operations ==========

func (s *Server) ListVersions(ctx context.Context, req *rpc.ListVersionsRequest) (*rpc.ListVersionsResponse, error) {
	ctx = s.begin(ctx, "ListVersions")

	if req.ID == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}
	versions, err := s.store.ListVersions(ctx, req.ID)
	if err != nil {
		return nil, rpc.ToStatus(err)
	}

	out := make([]rpc.Version, len(versions))
	for i := range versions {
		out[i] = rpc.FromVersion(&versions[i])
	}
	return &rpc.ListVersionsResponse{Versions: out}, nil
}

func (s *Server) Restore(ctx context.Context, req *rpc.RestoreRequest) (*rpc.RestoreResponse, error) {
	ctx = s.begin(ctx, "Restore")

	if req.ID == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}
	v, err := s.store.Restore(ctx, req.ID, req.Index)
	if err != nil {
		return nil, rpc.ToStatus(err)
	}
	return &rpc.RestoreResponse{Version: rpc.FromVersion(v)}, nil
}
