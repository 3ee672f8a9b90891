package domain

import (
	"errors"
	"fmt"
	"strings"
)

// AppError is the base domain error type. Every expected, recoverable-by-
// caller outcome is one of these; the HTTP layer maps Code/Status to a
// user-facing response. Store connectivity failures are the only class not
// wrapped here; they surface unchanged as infrastructure errors.
type AppError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Status  int            `json:"-"`
	Details map[string]any `json:"details,omitempty"`
	Cause   error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Cause }

// IsCode reports whether err is an AppError with the given code.
func IsCode(err error, code string) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// Error codes returned by the ledger core.
const (
	CodeNotFound               = "NOT_FOUND"
	CodePartnerMismatch        = "PARTNER_MISMATCH"
	CodeInsufficientPoints     = "INSUFFICIENT_POINTS"
	CodeNotEligible            = "NOT_ELIGIBLE"
	CodeInvalidState           = "INVALID_STATE"
	CodeAlreadyUsed            = "ALREADY_USED"
	CodeAlreadyApplied         = "ALREADY_APPLIED"
	CodeExpired                = "EXPIRED"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"
	CodeOutOfStock             = "OUT_OF_STOCK"
	CodeValidation             = "VALIDATION_ERROR"
	CodeUnauthorized           = "UNAUTHORIZED"
	CodeForbidden              = "FORBIDDEN"
	CodeInternal               = "INTERNAL_ERROR"
)

// Standard domain error constructors.

func ErrNotFound(entity, id string) *AppError {
	return &AppError{Code: CodeNotFound, Message: fmt.Sprintf("%s %s not found", entity, id), Status: 404}
}

func ErrPartnerMismatch(recordPartner, requestPartner string) *AppError {
	return &AppError{
		Code:    CodePartnerMismatch,
		Message: fmt.Sprintf("visit record belongs to partner %s, not %s", recordPartner, requestPartner),
		Status:  409,
	}
}

// ErrInsufficientPoints reports the exact required and available figures so
// the caller can show the user how far short they are.
func ErrInsufficientPoints(required, available int) *AppError {
	return &AppError{
		Code:    CodeInsufficientPoints,
		Message: fmt.Sprintf("redemption requires %d points, %d available", required, available),
		Status:  400,
		Details: map[string]any{"required": required, "available": available},
	}
}

// ErrNotEligible reports the partner set the account must visit to qualify.
func ErrNotEligible(eligiblePartners []string) *AppError {
	return &AppError{
		Code:    CodeNotEligible,
		Message: fmt.Sprintf("reward requires a confirmed visit at one of: %s", strings.Join(eligiblePartners, ", ")),
		Status:  422,
		Details: map[string]any{"eligible_partners": eligiblePartners},
	}
}

func ErrInvalidState(current VoucherStatus, attempted string) *AppError {
	return &AppError{
		Code:    CodeInvalidState,
		Message: fmt.Sprintf("cannot %s a voucher in state %s", attempted, current),
		Status:  409,
	}
}

func ErrAlreadyUsed(status VoucherStatus) *AppError {
	return &AppError{
		Code:    CodeAlreadyUsed,
		Message: fmt.Sprintf("voucher already %s", status),
		Status:  409,
	}
}

func ErrAlreadyApplied(existingReference string) *AppError {
	return &AppError{
		Code:    CodeAlreadyApplied,
		Message: fmt.Sprintf("voucher already applied to booking %s", existingReference),
		Status:  409,
	}
}

func ErrExpired() *AppError {
	return &AppError{Code: CodeExpired, Message: "voucher has expired", Status: 410}
}

func ErrConcurrentModification(entity string) *AppError {
	return &AppError{
		Code:    CodeConcurrentModification,
		Message: fmt.Sprintf("%s was modified concurrently; re-fetch and retry", entity),
		Status:  409,
	}
}

func ErrOutOfStock(rewardID string) *AppError {
	return &AppError{Code: CodeOutOfStock, Message: fmt.Sprintf("reward %s is out of stock", rewardID), Status: 409}
}

func ErrValidation(msg string) *AppError {
	return &AppError{Code: CodeValidation, Message: msg, Status: 400}
}

func ErrUnauthorized(msg string) *AppError {
	return &AppError{Code: CodeUnauthorized, Message: msg, Status: 401}
}

func ErrForbidden(msg string) *AppError {
	return &AppError{Code: CodeForbidden, Message: msg, Status: 403}
}

func ErrInternal(msg string, cause error) *AppError {
	return &AppError{Code: CodeInternal, Message: msg, Status: 500, Cause: cause}
}
