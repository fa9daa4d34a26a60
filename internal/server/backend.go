package server

import (
	"context"
	"errors"
	"time"

	"github.com/nainya/boardstore/internal/events"
	"github.com/nainya/boardstore/internal/logger"
	"github.com/nainya/boardstore/internal/metrics"
	"github.com/nainya/boardstore/pkg/board"
	"github.com/nainya/boardstore/pkg/store"
)

// statser is implemented by stores that can report their size
type statser interface {
	Stats() (whiteboards, versions int)
}

// Backend wraps a store with metrics, logging and change events. Both the
// HTTP API and the gRPC service write through it so that feed subscribers
// see every new version regardless of transport.
type Backend struct {
	store   store.Store
	hub     *events.Hub
	log     *logger.Logger
	metrics *metrics.Metrics
}

// NewBackend instruments st. hub may be nil.
func NewBackend(st store.Store, hub *events.Hub, log *logger.Logger, m *metrics.Metrics) *Backend {
	b := &Backend{
		store:   st,
		hub:     hub,
		log:     log.Component("store"),
		metrics: m,
	}
	b.refreshStats()
	return b
}

// Create implements store.Store
func (b *Backend) Create(ctx context.Context, name, owner string) (*board.Whiteboard, error) {
	start := time.Now()
	wb, err := b.store.Create(ctx, name, owner)
	id := ""
	if wb != nil {
		id = wb.ID
	}
	b.observe("create", id, start, err)
	if err == nil {
		b.refreshStats()
	}
	return wb, err
}

// List implements store.Store
func (b *Backend) List(ctx context.Context) ([]board.Summary, error) {
	start := time.Now()
	list, err := b.store.List(ctx)
	b.observe("list", "", start, err)
	return list, err
}

// Get implements store.Store
func (b *Backend) Get(ctx context.Context, id string) (*board.Whiteboard, error) {
	start := time.Now()
	wb, err := b.store.Get(ctx, id)
	b.observe("get", id, start, err)
	return wb, err
}

// GetCurrent implements store.Store
func (b *Backend) GetCurrent(ctx context.Context, id string) (*board.Snapshot, error) {
	start := time.Now()
	snap, err := b.store.GetCurrent(ctx, id)
	b.observe("get_current", id, start, err)
	return snap, err
}

// PutCurrent implements store.Store
func (b *Backend) PutCurrent(ctx context.Context, id, data string) (*board.SnapshotVersion, error) {
	start := time.Now()
	v, err := b.store.PutCurrent(ctx, id, data)
	b.observe("put_current", id, start, err)
	if err != nil {
		b.metrics.CommitsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	b.metrics.CommitsTotal.WithLabelValues("success").Inc()
	b.metrics.SnapshotBytes.Observe(float64(len(data)))
	b.published(id, v)
	return v, nil
}

// ListVersions implements store.Store
func (b *Backend) ListVersions(ctx context.Context, id string) ([]board.SnapshotVersion, error) {
	start := time.Now()
	versions, err := b.store.ListVersions(ctx, id)
	b.observe("list_versions", id, start, err)
	return versions, err
}

// Restore implements store.Store
func (b *Backend) Restore(ctx context.Context, id string, index int) (*board.SnapshotVersion, error) {
	start := time.Now()
	v, err := b.store.Restore(ctx, id, index)
	b.observe("restore", id, start, err)
	if err != nil {
		b.metrics.RestoresTotal.WithLabelValues(outcome(err)).Inc()
		return nil, err
	}
	b.metrics.RestoresTotal.WithLabelValues("success").Inc()
	b.published(id, v)
	return v, nil
}

func (b *Backend) published(id string, v *board.SnapshotVersion) {
	b.refreshStats()
	if b.hub != nil {
		b.hub.Publish(events.FromVersion(id, v))
	}
}

func (b *Backend) observe(op, id string, start time.Time, err error) {
	duration := time.Since(start)
	b.metrics.RecordStoreOperation(op, outcome(err), duration)

	// Client errors log at debug level
	var logErr error
	if err != nil && !errors.Is(err, board.ErrNotFound) &&
		!errors.Is(err, board.ErrOutOfRange) && !errors.Is(err, board.ErrInvalidInput) {
		logErr = err
	}
	b.log.LogStoreOperation(op, id, duration, logErr)
}

func (b *Backend) refreshStats() {
	if s, ok := b.store.(statser); ok {
		b.metrics.UpdateStoreStats(s.Stats())
	}
}

// outcome labels an operation result for metrics
func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, board.ErrNotFound):
		return "not_found"
	case errors.Is(err, board.ErrOutOfRange):
		return "out_of_range"
	case errors.Is(err, board.ErrInvalidInput), errors.Is(err, board.ErrDecode):
		return "invalid"
	case errors.Is(err, board.ErrStoreUnavailable):
		return "unavailable"
	}
	return "error"
}
