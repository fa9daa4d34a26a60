package rpc

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/nainya/boardstore/pkg/board"
)

// ToStatus converts a store error into a gRPC status error
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	var code codes.Code
	switch {
	case errors.Is(err, board.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, board.ErrOutOfRange):
		code = codes.OutOfRange
	case errors.Is(err, board.ErrInvalidInput), errors.Is(err, board.ErrDecode):
		code = codes.InvalidArgument
	case errors.Is(err, board.ErrStoreUnavailable):
		code = codes.Unavailable
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	default:
		code = codes.Internal
	}
	return status.Error(code, err.Error())
}

// FromStatus maps a gRPC status error back to the board sentinels so callers
// can use errors.Is regardless of transport
func FromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("%w: %v", board.ErrStoreUnavailable, err)
	}
	switch st.Code() {
	case codes.NotFound:
		return fmt.Errorf("%w: %s", board.ErrNotFound, st.Message())
	case codes.OutOfRange:
		return fmt.Errorf("%w: %s", board.ErrOutOfRange, st.Message())
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", board.ErrInvalidInput, st.Message())
	case codes.Unavailable, codes.ResourceExhausted, codes.Aborted:
		return fmt.Errorf("%w: %s", board.ErrStoreUnavailable, st.Message())
	case codes.Canceled:
		return context.Canceled
	case codes.DeadlineExceeded:
		return context.DeadlineExceeded
	}
	return fmt.Errorf("rpc: %s: %s", st.Code(), st.Message())
}
