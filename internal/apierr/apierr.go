// Package apierr defines the error taxonomy surfaced at the admin HTTP
// boundary and the enforcement gate's reason codes.
package apierr

import (
	"encoding/json"
	"net/http"
)

// Code is one of the closed error_code values from the external interface.
type Code string

const (
	BannedPrincipal Code = "BANNED_PRINCIPAL"
	BannedAddress   Code = "BANNED_ADDRESS"
	Suspended       Code = "SUSPENDED"
	RateLimited     Code = "RATE_LIMITED"
	Forbidden       Code = "FORBIDDEN"
	InvalidInput    Code = "INVALID_INPUT"
	Conflict        Code = "CONFLICT"
	NotFound        Code = "NOT_FOUND"
	Internal        Code = "INTERNAL"
)

// Error is a typed admin/enforcement error carrying both a machine-readable
// code and the HTTP status it maps to.
type Error struct {
	HTTPStatus int
	ErrCode    Code
	Message    string
}

func (e *Error) Error() string { return e.Message }

func New(status int, code Code, message string) *Error {
	return &Error{HTTPStatus: status, ErrCode: code, Message: message}
}

func Invalid(message string) *Error    { return New(http.StatusBadRequest, InvalidInput, message) }
func NotFoundErr(message string) *Error { return New(http.StatusNotFound, NotFound, message) }
func ForbiddenErr(message string) *Error { return New(http.StatusForbidden, Forbidden, message) }
func InternalErr(message string) *Error { return New(http.StatusInternalServerError, Internal, message) }

// envelope is the standard `{success:false, error_code, message}` error body.
type envelope struct {
	Success  bool   `json:"success"`
	ErrCode  Code   `json:"error_code"`
	Message  string `json:"message"`
}

// Write serializes err as the standard error envelope. If err is not an
// *Error, it is treated as an opaque internal error.
func Write(w http.ResponseWriter, err error) {
	apiErr, ok := err.(*Error)
	if !ok {
		apiErr = InternalErr(err.Error())
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.HTTPStatus)
	json.NewEncoder(w).Encode(envelope{Success: false, ErrCode: apiErr.ErrCode, Message: apiErr.Message})
}
