package auth

import (
	"errors"
	"net/http"
)

type Code string

const (
	CodeTokenRequired        Code = "TOKEN_REQUIRED"
	CodeInvalidToken         Code = "INVALID_TOKEN"
	CodeTokenRevoked         Code = "TOKEN_REVOKED"
	CodeSessionRevoked       Code = "SESSION_REVOKED"
	CodeInsufficientRole     Code = "INSUFFICIENT_ROLE"
	CodeInvalidCredentials   Code = "INVALID_CREDENTIALS"
	CodeRefreshTokenRequired Code = "REFRESH_TOKEN_REQUIRED"
	CodeEmailTaken           Code = "EMAIL_TAKEN"
	CodeValidation           Code = "VALIDATION"
	CodeNotFound             Code = "NOT_FOUND"
	CodeRateLimited          Code = "RATE_LIMITED"
	CodeInternal             Code = "INTERNAL"
)

// Error is the closed set of failures this service surfaces over HTTP.
// Infrastructure failures are never folded into authentication failures:
// an unreachable store maps to CodeInternal so clients are not logged out
// by an outage.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
}

func (e *Error) Error() string { return string(e.Code) + ": " + e.Message }

var (
	ErrTokenRequired        = &Error{CodeTokenRequired, "authentication token required", http.StatusUnauthorized}
	ErrInvalidToken         = &Error{CodeInvalidToken, "invalid or expired token", http.StatusUnauthorized}
	ErrTokenRevoked         = &Error{CodeTokenRevoked, "token has been revoked", http.StatusUnauthorized}
	ErrSessionRevoked       = &Error{CodeSessionRevoked, "session is no longer active", http.StatusUnauthorized}
	ErrInsufficientRole     = &Error{CodeInsufficientRole, "insufficient permissions", http.StatusForbidden}
	ErrInvalidCredentials   = &Error{CodeInvalidCredentials, "invalid email or password", http.StatusUnauthorized}
	ErrRefreshTokenRequired = &Error{CodeRefreshTokenRequired, "refresh token required", http.StatusBadRequest}
	ErrEmailTaken           = &Error{CodeEmailTaken, "email already registered", http.StatusConflict}
	ErrNotFound             = &Error{CodeNotFound, "not found", http.StatusNotFound}
	ErrRateLimited          = &Error{CodeRateLimited, "too many requests", http.StatusTooManyRequests}
	ErrInternal             = &Error{CodeInternal, "internal error", http.StatusInternalServerError}
)

func validationError(msg string) *Error {
	return &Error{CodeValidation, msg, http.StatusBadRequest}
}

// asError maps any error to a member of the taxonomy, defaulting to internal.
func asError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return ErrInternal
}
