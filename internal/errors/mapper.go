package errors

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"
)

// Map converts domain/repo/infra errors into gRPC status errors.
// Keeps the service layer transport-agnostic by centralizing the mapping.
func Map(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	var de *Error
	if errors.As(err, &de) {
		switch de.Kind {
		case KindValidation:
			return status.Error(codes.InvalidArgument, de.Msg)
		case KindNotFound:
			return status.Error(codes.NotFound, de.Msg)
		case KindPrecondition:
			return status.Error(codes.FailedPrecondition, de.Msg)
		case KindForbidden:
			return status.Error(codes.PermissionDenied, de.Msg)
		case KindUnavailable:
			return status.Error(codes.Unavailable, de.Msg)
		}
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return status.Error(codes.NotFound, "record not found")

	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "request timed out")

	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request was canceled")

	default:
		// persistence and unknown failures: the caller may retry the whole operation
		return status.Error(codes.Internal, err.Error())
	}
}

// InvalidArgument creates a gRPC InvalidArgument error.
// Use this in transport code for malformed requests.
func InvalidArgument(msg string) error {
	return status.Error(codes.InvalidArgument, msg)
}
