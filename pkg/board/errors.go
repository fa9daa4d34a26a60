package board

import "errors"

var (
	// ErrNotFound indicates an unknown whiteboard id
	ErrNotFound = errors.New("board: whiteboard not found")

	// ErrOutOfRange indicates a version index that does not exist
	ErrOutOfRange = errors.New("board: version index out of range")

	// ErrDecode indicates a malformed or unsupported snapshot payload
	ErrDecode = errors.New("board: cannot decode snapshot")

	// ErrStoreUnavailable indicates a transient persistence failure
	ErrStoreUnavailable = errors.New("board: store unavailable")

	// ErrInvalidInput indicates a request rejected before reaching the store
	ErrInvalidInput = errors.New("board: invalid input")

	// ErrBusy indicates a restore requested while a stroke is being drawn
	ErrBusy = errors.New("board: stroke in progress")
)

// IsRetryable reports whether err is worth retrying
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
