package core

import "errors"

// Status is the short machine-checkable outcome returned to API callers.
type Status string

const (
	StatusOK                  Status = "ok"
	StatusUnavailable         Status = "unavailable"
	StatusNotFound            Status = "not_found"
	StatusIncompleteStream    Status = "incomplete_stream"
	StatusUpstreamUnavailable Status = "upstream_unavailable"
	StatusInvalid             Status = "invalid"
	StatusError               Status = "error"
)

var (
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrIncompleteStream    = errors.New("stream ended before done")
	ErrChatNotFound        = errors.New("chat not found")
	ErrInvalidChunking     = errors.New("chunking requires size > 0 and 0 <= overlap < size")
	ErrInvalidSettings     = errors.New("invalid settings")
)

// StatusOf maps a service error to the status reported to the caller.
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, ErrChatNotFound):
		return StatusNotFound
	case errors.Is(err, ErrIncompleteStream):
		return StatusIncompleteStream
	case errors.Is(err, ErrUpstreamUnavailable):
		return StatusUpstreamUnavailable
	case errors.Is(err, ErrInvalidSettings), errors.Is(err, ErrInvalidChunking):
		return StatusInvalid
	default:
		return StatusError
	}
}
