package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// GenericErrorMessage is reported when a failed response carries no usable detail
const GenericErrorMessage = "Request failed"

// maxErrorBody caps how much of a failed response is read
const maxErrorBody = 64 << 10

// Error is the normalised shape of every non-2xx response
type Error struct {
	StatusCode int
	Detail     string
}

// Error returns the human-readable detail
func (e *Error) Error() string {
	return e.Detail
}

// newError builds an Error from a failed response, preferring the body's
// "detail" field.
func newError(resp *http.Response) *Error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &Error{
		StatusCode: resp.StatusCode,
		Detail:     extractDetail(body),
	}
}

// extractDetail pulls a display string out of an error body. FastAPI sends
// either {"detail": "..."} or, for validation failures, a list of objects
// each carrying "msg".
func extractDetail(body []byte) string {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return GenericErrorMessage
	}

	detail := gjson.GetBytes(body, "detail")
	switch {
	case detail.Type == gjson.String:
		if s := strings.TrimSpace(detail.Str); s != "" {
			return s
		}
	case detail.IsArray():
		var msgs []string
		for _, m := range detail.Get("#.msg").Array() {
			if m.Str != "" {
				msgs = append(msgs, m.Str)
			}
		}
		if len(msgs) > 0 {
			return strings.Join(msgs, "; ")
		}
		return detail.Raw
	case detail.IsObject():
		return detail.Raw
	}
	return GenericErrorMessage
}

// IsNotFound reports whether err is a 404 from the backend
func IsNotFound(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// ErrorMessage converts any adapter error into the string shown to the user.
// fallback is used when err carries nothing readable.
func ErrorMessage(err error, fallback string) string {
	if err == nil {
		return ""
	}

	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Detail
	}
	if errors.Is(err, context.Canceled) {
		return "Request cancelled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "Request timed out"
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return fallback
}

// wrapTransport annotates network failures with the operation that failed
func wrapTransport(op string, err error) error {
	return fmt.Errorf("%s: %w", op, err)
}
