package exchange

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/alanyoungcy/crudebot/internal/domain"
)

// RequestFailure describes a failed exchange call. Body holds the raw
// response text so callers can log exactly what the exchange said.
type RequestFailure struct {
	Op         string
	Method     string
	Path       string
	StatusCode int // zero when no response was received
	Body       string
	Err        error
}

func (e *RequestFailure) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("exchange: %s: %s %s: %v", e.Op, e.Method, e.Path, e.Err)
	}
	msg := e.Body
	if m := gjson.Get(e.Body, "message"); m.Exists() && m.String() != "" {
		msg = m.String()
	}
	return fmt.Sprintf("exchange: %s: %s %s: HTTP %d: %s", e.Op, e.Method, e.Path, e.StatusCode, msg)
}

func (e *RequestFailure) Unwrap() error { return e.Err }

// ResponseBody returns the raw body of a RequestFailure found in err's chain.
func ResponseBody(err error) (string, bool) {
	var rf *RequestFailure
	if errors.As(err, &rf) {
		return rf.Body, true
	}
	return "", false
}

// statusError maps a non-2xx status code to a domain sentinel.
func statusError(statusCode int) error {
	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return domain.ErrUnauthorized
	case http.StatusTooManyRequests:
		return domain.ErrRateLimited
	case http.StatusNotFound:
		return domain.ErrNotFound
	case http.StatusBadRequest, http.StatusConflict, http.StatusUnprocessableEntity:
		return domain.ErrRejected
	default:
		return domain.ErrExchange
	}
}
