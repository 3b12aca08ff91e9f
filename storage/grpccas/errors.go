package grpccas

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"lumen.dev/sdk/storage"
)

// statusCodes pairs storage sentinels with the status codes that carry them
// across the wire. The table is used in both directions.
var statusCodes = []struct {
	err  error
	code codes.Code
}{
	{storage.ErrNotFound, codes.NotFound},
	{storage.ErrInvalidCID, codes.InvalidArgument},
	{storage.ErrCIDMismatch, codes.DataLoss},
	{storage.ErrImmutable, codes.AlreadyExists},
	{storage.ErrNotCanonical, codes.FailedPrecondition},
}

// toStatus converts a backend error into a gRPC status error.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	for _, e := range statusCodes {
		if errors.Is(err, e.err) {
			return status.Error(e.code, err.Error())
		}
	}

	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// fromStatus turns a status error from the daemon back into the matching
// storage sentinel. The daemon's message is kept.
func fromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	for _, e := range statusCodes {
		if st.Code() == e.code {
			if st.Message() == e.err.Error() {
				return e.err
			}
			return fmt.Errorf("%w: %s", e.err, st.Message())
		}
	}
	return err
}
