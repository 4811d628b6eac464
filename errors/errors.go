package errors

import (
	goerrors "errors"
	"fmt"
	"net/http"
)

var (
	ErrUnauthenticated    = fmt.Errorf("unauthenticated")
	ErrForbidden          = fmt.Errorf("forbidden")
	ErrRoomNotFound       = fmt.Errorf("room not found")
	ErrMessageNotFound    = fmt.Errorf("message not found")
	ErrUserNotFound       = fmt.Errorf("user not found")
	ErrDeliveryFailed     = fmt.Errorf("failed to save message")
	ErrInvalidPayload     = fmt.Errorf("invalid payload")
	ErrEmptyMessage       = fmt.Errorf("message is empty")
	ErrMessageTooLong     = fmt.Errorf("message is too long")
	ErrRoomAlreadyExists  = fmt.Errorf("room already exists")
	ErrUserAlreadyExists  = fmt.Errorf("user already exists")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")
	ErrNotApproved        = fmt.Errorf("your account has not been approved yet")
	ErrInvalidPassword    = fmt.Errorf("invalid password")
	ErrTokenGeneration    = fmt.Errorf("token generation failed")
	ErrInvalidToken       = fmt.Errorf("invalid or expired token")
	ErrNotFaculty         = fmt.Errorf("user is not a faculty member")
	ErrConnectionClosed   = fmt.Errorf("connection closed")
	ErrWorkerPanic        = fmt.Errorf("worker panic")
	ErrEmptyWords         = fmt.Errorf("no words have been found")
	ErrRateLimited        = fmt.Errorf("too many messages, slow down")
)

type mapping struct {
	err    error
	status int
	code   string
}

// Order matters: the first match wins.
var mappings = []mapping{
	{ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
	{ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
	{ErrNotApproved, http.StatusUnauthorized, "not_approved"},
	{ErrForbidden, http.StatusForbidden, "forbidden"},
	{ErrRoomNotFound, http.StatusNotFound, "not_found"},
	{ErrMessageNotFound, http.StatusNotFound, "not_found"},
	{ErrUserNotFound, http.StatusNotFound, "not_found"},
	{ErrRoomAlreadyExists, http.StatusConflict, "conflict"},
	{ErrUserAlreadyExists, http.StatusConflict, "conflict"},
	{ErrInvalidPayload, http.StatusBadRequest, "invalid_payload"},
	{ErrEmptyMessage, http.StatusBadRequest, "invalid_payload"},
	{ErrMessageTooLong, http.StatusBadRequest, "invalid_payload"},
	{ErrInvalidPassword, http.StatusBadRequest, "invalid_payload"},
	{ErrNotFaculty, http.StatusBadRequest, "invalid_payload"},
	{ErrInvalidToken, http.StatusBadRequest, "invalid_token"},
	{ErrDeliveryFailed, http.StatusBadGateway, "delivery_failed"},
	{ErrConnectionClosed, http.StatusGone, "closed"},
	{ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
}

// HTTPStatus maps an error of the taxonomy to the status code returned by the REST layer.
func HTTPStatus(err error) int {
	for _, m := range mappings {
		if goerrors.Is(err, m.err) {
			return m.status
		}
	}
	return http.StatusInternalServerError
}

// Code is the short machine readable reason emitted in error events.
func Code(err error) string {
	for _, m := range mappings {
		if goerrors.Is(err, m.err) {
			return m.code
		}
	}
	return "internal"
}
