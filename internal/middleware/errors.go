package middleware

import (
	"context"
	"errors"

	"github.com/fekuna/omnipos-stock-service/internal/apperror"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const errorDomain = "stock.omnipos"

// ToStatus maps a core error to the gRPC status callers see. Nothing is
// retried on the caller's behalf.
func ToStatus(err error) *status.Status {
	if err == nil {
		return status.New(codes.OK, "")
	}
	if s, ok := status.FromError(err); ok && s.Code() != codes.Unknown {
		return s
	}

	if ise, ok := apperror.AsInsufficientStock(err); ok {
		st := status.New(codes.Aborted, ise.Error())
		detailed, derr := st.WithDetails(&errdetails.ErrorInfo{
			Reason: "INSUFFICIENT_STOCK",
			Domain: errorDomain,
			Metadata: map[string]string{
				"product_id": ise.ProductID,
				"store_id":   ise.StoreID,
				"unit_id":    ise.UnitID,
				"available":  ise.Available.String(),
				"requested":  ise.Requested.String(),
			},
		})
		if derr != nil {
			return st
		}
		return detailed
	}

	var ve apperror.ValidationError
	switch {
	case errors.As(err, &ve):
		return withReason(codes.InvalidArgument, err, "VALIDATION", map[string]string{"field": ve.Field})
	case errors.Is(err, apperror.ErrTenantUnavailable):
		return withReason(codes.PermissionDenied, err, "TENANT_UNAVAILABLE", nil)
	case errors.Is(err, apperror.ErrTenantNotFound):
		return withReason(codes.NotFound, err, "TENANT_NOT_FOUND", nil)
	case errors.Is(err, apperror.ErrUnitMismatch):
		return withReason(codes.InvalidArgument, err, "UNIT_MISMATCH", nil)
	case errors.Is(err, apperror.ErrIncompatibleUnit):
		return withReason(codes.InvalidArgument, err, "INCOMPATIBLE_UNIT", nil)
	case errors.Is(err, apperror.ErrConcurrencyConflict):
		return withReason(codes.Aborted, err, "CONCURRENCY_CONFLICT", nil)
	case errors.Is(err, apperror.ErrProductNotFound), errors.Is(err, apperror.ErrSaleNotFound):
		return status.New(codes.NotFound, err.Error())
	case errors.Is(err, apperror.ErrFactorLocked),
		errors.Is(err, apperror.ErrSaleAlreadyRefunded),
		errors.Is(err, apperror.ErrInvalidStatusTransition):
		return status.New(codes.FailedPrecondition, err.Error())
	case errors.Is(err, apperror.ErrInvalidRefund):
		return status.New(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.New(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.New(codes.Canceled, err.Error())
	}
	// Connection failures and anything unexpected stay opaque.
	return status.New(codes.Internal, "internal error")
}

func withReason(code codes.Code, err error, reason string, md map[string]string) *status.Status {
	st := status.New(code, err.Error())
	detailed, derr := st.WithDetails(&errdetails.ErrorInfo{Reason: reason, Domain: errorDomain, Metadata: md})
	if derr != nil {
		return st
	}
	return detailed
}
