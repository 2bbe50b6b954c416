package grpcsrc

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/hanpama/modgraph/internal/source"
)

var (
	// ErrNoEndpoints indicates the client was built without endpoints.
	ErrNoEndpoints = errors.New("grpcsrc: no endpoints configured")
	// ErrClosed is returned by calls made after Close.
	ErrClosed = errors.New("grpcsrc: closed")
)

// toStatus maps provider errors onto gRPC status codes.
func toStatus(err error) error {
	switch {
	case errors.Is(err, source.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, source.ErrOutsideRoot):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// fromStatus maps a failed call back onto the source package errors.
func fromStatus(id string, err error) error {
	st := status.Convert(err)
	switch st.Code() {
	case codes.NotFound:
		return fmt.Errorf("%w: %s", source.ErrNotFound, id)
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", source.ErrOutsideRoot, id)
	default:
		return fmt.Errorf("grpcsrc: %s: %w", id, err)
	}
}
