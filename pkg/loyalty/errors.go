package loyalty

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the loyalty service.
var (
	ErrMissingIdentifier     = errors.New("missing identifier")
	ErrPhoneRequired         = errors.New("phone number required")
	ErrInsufficientPoints    = errors.New("insufficient points")
	ErrUnknownProfile        = errors.New("unknown profile")
	ErrUnknownAccount        = errors.New("unknown loyalty account")
	ErrUnknownReward         = errors.New("unknown reward")
	ErrUnknownRedemption     = errors.New("unknown redemption")
	ErrUnknownPromotion      = errors.New("unknown promotion")
	ErrPromotionNotEligible  = errors.New("promotion not eligible")
	ErrRewardAlreadyRedeemed = errors.New("reward already redeemed")
	ErrInvalidPhoneNumber    = errors.New("invalid phone number")
	ErrInvalidIdempotencyKey = errors.New("invalid idempotency key")
	ErrInvalidRewardTier     = errors.New("invalid reward tier")
	ErrInvalidServiceConfig  = errors.New("invalid service config")
	ErrUpstreamFailure       = errors.New("upstream call failed")
)

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}
