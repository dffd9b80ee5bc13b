package proxy

import (
	"errors"
	"net/http"

	"github.com/florianilch/solar-proxy/internal/payload"
)

// Error is an HTTP error response, serialized as {"detail": "..."}.
type Error struct {
	Status int    `json:"-"`
	Detail string `json:"detail"`
}

// Error implements the error interface, returning the detail message.
func (e *Error) Error() string {
	return e.Detail
}

// Request errors detected before any upstream call.
var (
	errAPIKeyMissing       = &Error{Status: http.StatusBadRequest, Detail: "API key is missing"}
	errInvalidModel        = &Error{Status: http.StatusBadRequest, Detail: "Invalid model"}
	errMissingSystemPrompt = &Error{Status: http.StatusBadRequest, Detail: "System prompt is missing"}
	errInvalidPayload      = &Error{Status: http.StatusBadRequest, Detail: "Invalid payload"}
	errRequestTooLarge     = &Error{Status: http.StatusRequestEntityTooLarge, Detail: http.StatusText(http.StatusRequestEntityTooLarge)}
	errUpstreamUnavailable = &Error{Status: http.StatusInternalServerError, Detail: "Upstream request failed"}
	errNotFound            = &Error{Status: http.StatusNotFound, Detail: "Not Found"}
	errMethodNotAllowed    = &Error{Status: http.StatusMethodNotAllowed, Detail: "Method Not Allowed"}
)

// fromRewriteError maps a payload.Rewrite error to its HTTP response.
func fromRewriteError(err error) *Error {
	switch {
	case errors.Is(err, payload.ErrInvalidModel):
		return errInvalidModel
	case errors.Is(err, payload.ErrMissingSystemPrompt):
		return errMissingSystemPrompt
	default:
		return errInvalidPayload
	}
}

// rateLimitResponse is the body of a 429 response: {"error": "Rate limit exceeded: ..."}.
type rateLimitResponse struct {
	Error string `json:"error"`
}
