// ABOUTME: Whiteboard data model shared by the store, the transports and sessions
// ABOUTME: A whiteboard owns an append-only list of snapshot versions

package board

import "time"

// Snapshot is a full raster image of a whiteboard at one instant
type Snapshot struct {
	Data      string    // Encoded payload (data URL)
	MIMEType  string    // Encoding tag parsed from Data, empty if unparseable
	UpdatedAt time.Time // When this snapshot became current
}

// Whiteboard is a drawable board with its current snapshot
type Whiteboard struct {
	ID        string
	Name      string
	Owner     string // Owning tenant
	Current   Snapshot
	CreatedAt time.Time
}

// Summary is the dashboard listing entry for a whiteboard
type Summary struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
}

// SnapshotVersion is an immutable, sequence-indexed history entry
type SnapshotVersion struct {
	Index        int       // 0-based, gap-free
	Data         string    // Encoded payload
	CreatedAt    time.Time // Append time
	Author       string    // Optional
	RestoredFrom *int      // Source index when appended by a restore
}

// IsRestore reports whether the entry was appended by a restore
func (v *SnapshotVersion) IsRestore() bool {
	return v.RestoredFrom != nil
}

// Clone returns a deep copy of the whiteboard
func (w *Whiteboard) Clone() *Whiteboard {
	c := *w
	return &c
}

// Clone returns a deep copy of the version
func (v *SnapshotVersion) Clone() *SnapshotVersion {
	c := *v
	if v.RestoredFrom != nil {
		from := *v.RestoredFrom
		c.RestoredFrom = &from
	}
	return &c
}
