// ABOUTME: Snapshot store contract shared by the local and remote implementations
// ABOUTME: Every write sets the current snapshot and appends one history entry together

package store

import (
	"context"

	"github.com/nainya/boardstore/pkg/board"
)

// Store persists whiteboards, their current snapshot and their version
// history. Implementations must be safe for concurrent use. The author of
// new versions is read from ctx via board.AuthorFrom.
type Store interface {
	// Create makes a whiteboard with a blank current snapshot and no history
	Create(ctx context.Context, name, owner string) (*board.Whiteboard, error)

	// List returns summaries of the whiteboards owned by the tenant in ctx,
	// or all whiteboards when ctx carries no tenant
	List(ctx context.Context) ([]board.Summary, error)

	// Get returns the whiteboard with its current snapshot
	Get(ctx context.Context, id string) (*board.Whiteboard, error)

	// GetCurrent returns the current snapshot
	GetCurrent(ctx context.Context, id string) (*board.Snapshot, error)

	// PutCurrent replaces the current snapshot and appends it to history
	PutCurrent(ctx context.Context, id, data string) (*board.SnapshotVersion, error)

	// ListVersions returns the history in ascending index order
	ListVersions(ctx context.Context, id string) ([]board.SnapshotVersion, error)

	// Restore makes version index current again by appending a copy of it
	Restore(ctx context.Context, id string, index int) (*board.SnapshotVersion, error)
}
