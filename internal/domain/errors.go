package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds. Every AppError carries one of these so callers can branch with errors.Is
// without caring about the HTTP status the error maps to.
var (
	ErrValidation          = errors.New("validation error")
	ErrSessionExpired      = errors.New("session expired")
	ErrOrderCreation       = errors.New("order creation failed")
	ErrVerificationPending = errors.New("verification pending")
	ErrVerificationFailed  = errors.New("verification failed")
	ErrVerificationTimeout = errors.New("verification timed out")
	ErrNetwork             = errors.New("network error")
	ErrInvalidPlan         = errors.New("invalid plan")
	ErrInvalidRate         = errors.New("invalid exchange rate")
	ErrForbidden           = errors.New("forbidden")
	ErrNotFoundKind        = errors.New("not found")
	ErrInternalKind        = errors.New("internal error")
)

// AppError is a structured application error with HTTP status code.
type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"error"`
	Kind    error  `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the kind of this error.
func (e *AppError) Is(target error) bool {
	return e.Kind != nil && target == e.Kind
}

// Common error constructors.

func ErrNotFound(msg string) *AppError {
	return &AppError{Code: http.StatusNotFound, Message: msg, Kind: ErrNotFoundKind}
}

func ErrBadRequest(msg string) *AppError {
	return &AppError{Code: http.StatusBadRequest, Message: msg, Kind: ErrValidation}
}

func ErrInvalid(msg string) *AppError {
	return &AppError{Code: http.StatusUnprocessableEntity, Message: msg, Kind: ErrValidation}
}

func ErrInternal(msg string, err error) *AppError {
	return &AppError{Code: http.StatusInternalServerError, Message: msg, Kind: ErrInternalKind, Err: err}
}

// SessionExpired signals that the stored credential was rejected and must be cleared.
func SessionExpired() *AppError {
	return &AppError{Code: http.StatusUnauthorized, Message: "session expired, please log in again", Kind: ErrSessionExpired}
}

func Forbidden(msg string) *AppError {
	return &AppError{Code: http.StatusForbidden, Message: msg, Kind: ErrForbidden}
}

// OrderCreationFailed wraps a server supplied message, falling back to a generic one.
func OrderCreationFailed(msg string, err error) *AppError {
	if msg == "" {
		msg = "failed to create order"
	}
	return &AppError{Code: http.StatusBadGateway, Message: msg, Kind: ErrOrderCreation, Err: err}
}

func VerificationFailed(msg string) *AppError {
	if msg == "" {
		msg = "payment verification failed"
	}
	return &AppError{Code: http.StatusPaymentRequired, Message: msg, Kind: ErrVerificationFailed}
}

func VerificationTimeout() *AppError {
	return &AppError{
		Code:    http.StatusGatewayTimeout,
		Message: "unable to confirm payment, please contact support",
		Kind:    ErrVerificationTimeout,
	}
}

func InvalidPlan(msg string) *AppError {
	return &AppError{Code: http.StatusUnprocessableEntity, Message: msg, Kind: ErrInvalidPlan}
}

func InvalidRate(msg string) *AppError {
	return &AppError{Code: http.StatusUnprocessableEntity, Message: msg, Kind: ErrInvalidRate}
}

// Network wraps a transport failure talking to the payment backend.
func Network(err error) *AppError {
	return &AppError{Code: http.StatusBadGateway, Message: "payment backend unreachable", Kind: ErrNetwork, Err: err}
}

// AsAppError attempts to extract an AppError from an error chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
