// ABOUTME: Durable snapshot store backed by the write-ahead log
// ABOUTME: The in-memory index is rebuilt from committed log transactions on open

package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nainya/boardstore/pkg/board"
	"github.com/nainya/boardstore/pkg/codec"
	"github.com/nainya/boardstore/pkg/wal"
)

// LogStore is a MemoryStore whose mutations are committed to a WAL before
// they become visible. A failed log write leaves the store unchanged.
type LogStore struct {
	*MemoryStore

	log   *wal.WAL
	stats *wal.RecoveryStats
}

// OpenLogStore opens or creates the log at path and replays it
func OpenLogStore(path, blank string) (*LogStore, error) {
	mem, err := NewMemoryStore(blank)
	if err != nil {
		return nil, err
	}

	log := &wal.WAL{Path: path}
	stats, err := wal.NewRecovery(log).RecoverWithStats(func(e *wal.Entry) error {
		return mem.replay(e)
	})
	if err != nil {
		return nil, fmt.Errorf("recover %s: %w", path, err)
	}

	if err := log.Open(); err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	mem.journal = log

	return &LogStore{MemoryStore: mem, log: log, stats: stats}, nil
}

// RecoveryStats describes the replay performed by OpenLogStore
func (s *LogStore) RecoveryStats() wal.RecoveryStats {
	return *s.stats
}

// Close closes the underlying log
func (s *LogStore) Close() error {
	return s.log.Close()
}

type createRecord struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Owner     string    `json:"owner,omitempty"`
	Data      string    `json:"data"`
	CreatedAt time.Time `json:"createdAt"`
}

type appendRecord struct {
	Index        int       `json:"index"`
	Data         string    `json:"data"`
	CreatedAt    time.Time `json:"createdAt"`
	Author       string    `json:"author,omitempty"`
	RestoredFrom *int      `json:"restoredFrom,omitempty"`
}

func encodeCreate(wb *board.Whiteboard) ([]byte, error) {
	return json.Marshal(createRecord{
		ID:        wb.ID,
		Name:      wb.Name,
		Owner:     wb.Owner,
		Data:      wb.Current.Data,
		CreatedAt: wb.CreatedAt,
	})
}

func encodeAppend(v *board.SnapshotVersion) ([]byte, error) {
	return json.Marshal(appendRecord{
		Index:        v.Index,
		Data:         v.Data,
		CreatedAt:    v.CreatedAt,
		Author:       v.Author,
		RestoredFrom: v.RestoredFrom,
	})
}

// replay applies one committed log operation. Called before the store is
// shared, so no locking is needed.
func (s *MemoryStore) replay(e *wal.Entry) error {
	id := string(e.Key)

	switch e.OpType {
	case wal.OpCreate:
		var rec createRecord
		if err := json.Unmarshal(e.Value, &rec); err != nil {
			return fmt.Errorf("create record: %w", err)
		}
		if _, dup := s.boards[id]; dup {
			return fmt.Errorf("duplicate whiteboard %s", id)
		}
		s.boards[id] = &record{wb: board.Whiteboard{
			ID:        id,
			Name:      rec.Name,
			Owner:     rec.Owner,
			CreatedAt: rec.CreatedAt,
			Current: board.Snapshot{
				Data:      rec.Data,
				MIMEType:  codec.MediaType(rec.Data),
				UpdatedAt: rec.CreatedAt,
			},
		}}

	case wal.OpAppend:
		r, ok := s.boards[id]
		if !ok {
			return fmt.Errorf("append to unknown whiteboard %s", id)
		}
		var rec appendRecord
		if err := json.Unmarshal(e.Value, &rec); err != nil {
			return fmt.Errorf("append record: %w", err)
		}
		if rec.Index != len(r.versions) {
			return fmt.Errorf("whiteboard %s: version %d out of sequence, have %d", id, rec.Index, len(r.versions))
		}
		applyVersion(r, board.SnapshotVersion{
			Index:        rec.Index,
			Data:         rec.Data,
			CreatedAt:    rec.CreatedAt,
			Author:       rec.Author,
			RestoredFrom: rec.RestoredFrom,
		})

	default:
		return fmt.Errorf("unexpected op %s", e.OpType)
	}
	return nil
}
