package backend

import (
	"errors"
	"fmt"
)

var (
	// ErrUnreachable wraps transport failures (connection refused, timeouts, cancellation).
	ErrUnreachable = errors.New("backend unreachable")
	// ErrMalformed marks a 2xx response whose body does not have the expected shape.
	ErrMalformed = errors.New("malformed response")
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Code)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// QueryError is returned when the backend answers /query with {"error": "..."}.
type QueryError struct {
	Message string
}

func (e *QueryError) Error() string {
	return e.Message
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == 404
}
