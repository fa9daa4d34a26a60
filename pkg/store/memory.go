// ABOUTME: In-memory snapshot store with per-whiteboard locking
// ABOUTME: Optionally journals each mutation before applying it

package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nainya/boardstore/pkg/board"
	"github.com/nainya/boardstore/pkg/codec"
	"github.com/nainya/boardstore/pkg/wal"
)

// Journal durably records a group of operations as one unit
type Journal interface {
	Commit(ops []wal.Entry) (uint64, error)
}

// record holds one whiteboard and its history
type record struct {
	mu       sync.RWMutex
	wb       board.Whiteboard
	versions []board.SnapshotVersion
}

// MemoryStore keeps all whiteboards in memory. The map lock only guards
// lookup and insert; reads and writes of a whiteboard take its own lock.
type MemoryStore struct {
	mu     sync.RWMutex
	boards map[string]*record

	blank   string
	journal Journal
	now     func() time.Time
}

// NewMemoryStore creates an empty store. blank is the payload given to new
// whiteboards; an empty value uses codec.Blank with the default size.
func NewMemoryStore(blank string) (*MemoryStore, error) {
	if blank == "" {
		var err error
		blank, err = codec.Blank(DefaultWidth, DefaultHeight, "")
		if err != nil {
			return nil, err
		}
	}
	return &MemoryStore{
		boards: make(map[string]*record),
		blank:  blank,
		now:    time.Now,
	}, nil
}

const (
	DefaultWidth  = 1280
	DefaultHeight = 720

	// MaxNameLength bounds whiteboard names
	MaxNameLength = 120
)

// Create implements Store
func (s *MemoryStore) Create(ctx context.Context, name, owner string) (*board.Whiteboard, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" || len(name) > MaxNameLength {
		return nil, fmt.Errorf("%w: whiteboard name must be 1-%d characters", board.ErrInvalidInput, MaxNameLength)
	}

	now := s.now()
	wb := board.Whiteboard{
		ID:        uuid.NewString(),
		Name:      name,
		Owner:     owner,
		CreatedAt: now,
		Current: board.Snapshot{
			Data:      s.blank,
			MIMEType:  codec.MediaType(s.blank),
			UpdatedAt: now,
		},
	}

	// The map lock is held across the journal write so a replayed log
	// never contains an append before its create.
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.journal != nil {
		value, err := encodeCreate(&wb)
		if err != nil {
			return nil, err
		}
		if _, err := s.journal.Commit([]wal.Entry{{OpType: wal.OpCreate, Key: []byte(wb.ID), Value: value, Timestamp: now}}); err != nil {
			return nil, fmt.Errorf("%w: %v", board.ErrStoreUnavailable, err)
		}
	}

	s.boards[wb.ID] = &record{wb: wb}
	return wb.Clone(), nil
}

// List implements Store. Results are ordered by creation time.
func (s *MemoryStore) List(ctx context.Context) ([]board.Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tenant := board.TenantFrom(ctx)

	s.mu.RLock()
	recs := make([]*record, 0, len(s.boards))
	for _, r := range s.boards {
		recs = append(recs, r)
	}
	s.mu.RUnlock()

	type row struct {
		sum     board.Summary
		created time.Time
	}
	rows := make([]row, 0, len(recs))
	for _, r := range recs {
		r.mu.RLock()
		if tenant == "" || r.wb.Owner == tenant {
			rows = append(rows, row{board.Summary{ID: r.wb.ID, Name: r.wb.Name}, r.wb.CreatedAt})
		}
		r.mu.RUnlock()
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].created.Equal(rows[j].created) {
			return rows[i].sum.ID < rows[j].sum.ID
		}
		return rows[i].created.Before(rows[j].created)
	})

	out := make([]board.Summary, len(rows))
	for i, r := range rows {
		out[i] = r.sum
	}
	return out, nil
}

// Get implements Store
func (s *MemoryStore) Get(ctx context.Context, id string) (*board.Whiteboard, error) {
	r, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.wb.Clone(), nil
}

// GetCurrent implements Store
func (s *MemoryStore) GetCurrent(ctx context.Context, id string) (*board.Snapshot, error) {
	r, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	snap := r.wb.Current
	return &snap, nil
}

// PutCurrent implements Store
func (s *MemoryStore) PutCurrent(ctx context.Context, id, data string) (*board.SnapshotVersion, error) {
	if data == "" {
		return nil, fmt.Errorf("%w: empty snapshot", board.ErrInvalidInput)
	}
	r, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return s.appendLocked(r, data, board.AuthorFrom(ctx), nil)
}

// ListVersions implements Store
func (s *MemoryStore) ListVersions(ctx context.Context, id string) ([]board.SnapshotVersion, error) {
	r, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]board.SnapshotVersion, len(r.versions))
	for i := range r.versions {
		out[i] = *r.versions[i].Clone()
	}
	return out, nil
}

// Restore implements Store
func (s *MemoryStore) Restore(ctx context.Context, id string, index int) (*board.SnapshotVersion, error) {
	r, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if index < 0 || index >= len(r.versions) {
		return nil, fmt.Errorf("%w: %d not in [0, %d)", board.ErrOutOfRange, index, len(r.versions))
	}
	from := index
	return s.appendLocked(r, r.versions[index].Data, board.AuthorFrom(ctx), &from)
}

// Len returns the number of whiteboards
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.boards)
}

// Stats returns the number of whiteboards and of versions across them
func (s *MemoryStore) Stats() (whiteboards, versions int) {
	s.mu.RLock()
	records := make([]*record, 0, len(s.boards))
	for _, r := range s.boards {
		records = append(records, r)
	}
	s.mu.RUnlock()

	for _, r := range records {
		r.mu.RLock()
		versions += len(r.versions)
		r.mu.RUnlock()
	}
	return len(records), versions
}

func (s *MemoryStore) lookup(ctx context.Context, id string) (*record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	r, ok := s.boards[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", board.ErrNotFound, id)
	}
	return r, nil
}

// appendLocked journals and then applies a new version (caller holds r.mu)
func (s *MemoryStore) appendLocked(r *record, data, author string, restoredFrom *int) (*board.SnapshotVersion, error) {
	v := board.SnapshotVersion{
		Index:        len(r.versions),
		Data:         data,
		CreatedAt:    s.now(),
		Author:       author,
		RestoredFrom: restoredFrom,
	}

	if s.journal != nil {
		value, err := encodeAppend(&v)
		if err != nil {
			return nil, err
		}
		if _, err := s.journal.Commit([]wal.Entry{{OpType: wal.OpAppend, Key: []byte(r.wb.ID), Value: value, Timestamp: v.CreatedAt}}); err != nil {
			return nil, fmt.Errorf("%w: %v", board.ErrStoreUnavailable, err)
		}
	}

	applyVersion(r, v)
	return v.Clone(), nil
}

// applyVersion sets current and appends v in one step (caller holds r.mu)
func applyVersion(r *record, v board.SnapshotVersion) {
	r.versions = append(r.versions, v)
	r.wb.Current = board.Snapshot{
		Data:      v.Data,
		MIMEType:  codec.MediaType(v.Data),
		UpdatedAt: v.CreatedAt,
	}
}
