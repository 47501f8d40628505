package api

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// Error is a non-2xx response from the cluster.
type Error struct {
	// StatusCode is the HTTP status code.
	StatusCode int
	// Type is error.type from the response envelope, when present.
	Type string
	// Reason is error.reason (or a string-valued error field).
	Reason string
	// Body holds the raw response body for diagnostics.
	Body []byte
}

func (e *Error) Error() string {
	switch {
	case e.Type != "" && e.Reason != "":
		return fmt.Sprintf("opensearch: status %d: %s: %s", e.StatusCode, e.Type, e.Reason)
	case e.Reason != "":
		return fmt.Sprintf("opensearch: status %d: %s", e.StatusCode, e.Reason)
	case e.Type != "":
		return fmt.Sprintf("opensearch: status %d: %s", e.StatusCode, e.Type)
	}
	return fmt.Sprintf("opensearch: status %d", e.StatusCode)
}

// ParseError builds an Error from a response status and body. Unknown body
// shapes keep Type and Reason empty.
func ParseError(status int, body []byte) *Error {
	e := &Error{StatusCode: status, Body: body}
	if !gjson.ValidBytes(body) {
		return e
	}
	errField := gjson.GetBytes(body, "error")
	switch {
	case errField.IsObject():
		e.Type = errField.Get("type").String()
		e.Reason = errField.Get("reason").String()
		if e.Reason == "" {
			e.Reason = errField.Get("root_cause.0.reason").String()
		}
	case errField.Type == gjson.String:
		e.Reason = errField.String()
	}
	return e
}

// IsStatus reports whether err wraps an *Error with the given status code.
func IsStatus(err error, status int) bool {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == status
	}
	return false
}

// IsNotFound reports whether err wraps a 404 response.
func IsNotFound(err error) bool {
	return IsStatus(err, 404)
}
