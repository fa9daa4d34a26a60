// ABOUTME: Version controller states and save status
// ABOUTME: A controller moves Idle -> Drawing -> Committing -> Idle for each stroke

package version

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/nainya/boardstore/pkg/board"
)

// State is the controller lifecycle position
type State int

const (
	Idle State = iota
	Drawing
	Committing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Drawing:
		return "drawing"
	case Committing:
		return "committing"
	}
	return "unknown"
}

// Status is the save indicator shown to the user
type Status int

const (
	Saved Status = iota
	Saving
	NotSaved
)

func (s Status) String() string {
	switch s {
	case Saved:
		return "saved"
	case Saving:
		return "saving"
	case NotSaved:
		return "not saved"
	}
	return "unknown"
}

// Persister is the part of the store the controller writes through
type Persister interface {
	PutCurrent(ctx context.Context, id, data string) (*board.SnapshotVersion, error)
	Restore(ctx context.Context, id string, index int) (*board.SnapshotVersion, error)
}

// Config tunes commit retries
type Config struct {
	// MaxRetries bounds retries after the first attempt
	MaxRetries uint64

	InitialInterval time.Duration
	MaxInterval     time.Duration

	Logger zerolog.Logger
}

// DefaultConfig returns the retry policy used by sessions
func DefaultConfig() Config {
	return Config{
		MaxRetries:      4,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     3 * time.Second,
		Logger:          zerolog.Nop(),
	}
}
