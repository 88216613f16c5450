package knmi

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by all data platform clients. Coordinators retry
// transient failures (ErrNotFound, ServerError) and abort on everything else.
var (
	ErrNotFound     = errors.New("no data found for query")
	ErrTokenInvalid = errors.New("token not accepted")
	ErrRateLimited  = errors.New("rate limit exceeded")
)

// ServerError is an upstream 5xx response.
type ServerError struct {
	Status int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error: status code %d", e.Status)
}

// InvalidRequest is a 4xx response other than auth or rate limiting; it
// indicates a caller bug and is never retried.
type InvalidRequest struct {
	Body string
}

func (e *InvalidRequest) Error() string {
	return fmt.Sprintf("invalid request: %s", e.Body)
}

// Retryable reports whether a coordinator should retry the failed fetch.
func Retryable(err error) bool {
	var srv *ServerError
	return errors.Is(err, ErrNotFound) || errors.As(err, &srv)
}

// statusError maps an HTTP status to the taxonomy. Returns nil for 2xx.
func statusError(status int, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == 403:
		return fmt.Errorf("%w: %s", ErrTokenInvalid, body)
	case status == 404:
		return ErrNotFound
	case status == 429:
		return ErrRateLimited
	case status >= 500:
		return &ServerError{Status: status}
	default:
		return &InvalidRequest{Body: string(body)}
	}
}
