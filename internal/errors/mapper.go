// internal/errors/mapper.go
package errors

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"

	"github.com/oggyb/swap-market/internal/domain"
)

// Map converts domain/repo/infra errors into gRPC-friendly status errors.
// Keeps service layer clean by centralizing error mapping.
func Map(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrSelfInterest):
		return status.Error(codes.InvalidArgument, err.Error())

	case errors.Is(err, domain.ErrQuotaExceeded), errors.Is(err, domain.ErrInsufficientCoins):
		return status.Error(codes.ResourceExhausted, err.Error())

	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrListingUnavailable):
		return status.Error(codes.FailedPrecondition, err.Error())

	case errors.Is(err, domain.ErrForbidden), errors.Is(err, domain.ErrRatingNotAllowed):
		return status.Error(codes.PermissionDenied, err.Error())

	case errors.Is(err, domain.ErrDuplicate):
		return status.Error(codes.AlreadyExists, err.Error())

	case errors.Is(err, domain.ErrNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		return status.Error(codes.NotFound, "record not found")

	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "request timed out")

	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request was canceled")

	default:
		// fallback → bubble up error message for debugging
		return status.Error(codes.Internal, err.Error())
	}
}

// InvalidArgument creates a gRPC InvalidArgument error.
// Use this in service layer for bad input validation.
func InvalidArgument(msg string) error {
	return status.Error(codes.InvalidArgument, msg)
}

// Unauthenticated is returned when the caller identity is missing.
func Unauthenticated(msg string) error {
	return status.Error(codes.Unauthenticated, msg)
}
