package apierror

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error is the type of error returned when a provider API answers with a
// non-success status. It keeps the HTTP status code so that callers can tell
// a missing resource from a throttled or failing provider.
type Error struct {
	err    error
	status int
}

// ErrorMessage is the JSON error body that provider gateways return.
type ErrorMessage struct {
	Message string `json:"message,omitempty"`
	Status  int    `json:"status,omitempty"`
}

func New(err error, status int) *Error {
	return &Error{
		err:    err,
		status: status,
	}
}

// FromResponse creates an error from a response status and body. If the body
// is a JSON ErrorMessage, then its message is used as the error text.
func FromResponse(status int, body []byte) error {
	var err error
	text := strings.TrimSpace(string(body))
	if text != "" {
		var msg ErrorMessage
		if json.Unmarshal(body, &msg) == nil && msg.Message != "" {
			text = msg.Message
		}
		err = errors.New(text)
	}
	if status == 0 {
		return err
	}
	return New(err, status)
}

func (e *Error) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	if e.status == 0 {
		return ""
	}
	// If there is only status, then return status text
	if text := http.StatusText(e.status); text != "" {
		return fmt.Sprintf("%d %s", e.status, text)
	}
	return fmt.Sprintf("%d", e.status)
}

func (e *Error) Status() int {
	return e.status
}

// Text returns the status line followed by the error message. It is logged
// for failed provider requests.
func (e *Error) Text() string {
	var b strings.Builder
	if e.status != 0 {
		fmt.Fprintf(&b, "%d", e.status)
		if text := http.StatusText(e.status); text != "" {
			b.WriteString(" ")
			b.WriteString(text)
		}
	}
	if e.err != nil {
		if b.Len() != 0 {
			b.WriteString(": ")
		}
		b.WriteString(e.err.Error())
	}
	return b.String()
}

// Temporary reports whether the status indicates a condition that may clear
// on its own, such as rate limiting or a provider outage.
func (e *Error) Temporary() bool {
	return e.status == http.StatusTooManyRequests || e.status >= http.StatusInternalServerError
}

func (e *Error) Unwrap() error {
	return e.err
}

// StatusOf returns the HTTP status carried by err, or 0 if err does not wrap
// an *Error.
func StatusOf(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status()
	}
	return 0
}

// IsNotFound reports whether err is an *Error with status 404.
func IsNotFound(err error) bool {
	return StatusOf(err) == http.StatusNotFound
}
