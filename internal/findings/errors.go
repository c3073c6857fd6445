package findings

import (
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ServiceError is returned when the findings service answers with a
// non-success status.
type ServiceError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *ServiceError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("findings: %s: status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("findings: %s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

func statusOf(err error) (int, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.StatusCode, true
	}
	return 0, false
}

// IsNotFound reports whether err is a 404 from the service, typically an
// unknown organization or report.
func IsNotFound(err error) bool {
	code, ok := statusOf(err)
	return ok && code == http.StatusNotFound
}

// IsUnauthorized reports whether err is a 401 or 403 from the service.
func IsUnauthorized(err error) bool {
	code, ok := statusOf(err)
	return ok && (code == http.StatusUnauthorized || code == http.StatusForbidden)
}

// IsTransient reports whether a later attempt may succeed: 5xx, 429, or a
// network error.
func IsTransient(err error) bool {
	if code, ok := statusOf(err); ok {
		return code >= 500 || code == http.StatusTooManyRequests
	}
	var ne net.Error
	return errors.As(err, &ne)
}
