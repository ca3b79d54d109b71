// Package api provides the HTTP client for the document-conversion service.
package api

import (
	"errors"
	"fmt"
)

// TransportError wraps a network-level failure: connection errors, timeouts,
// and client-initiated cancellation. The request may never have reached the
// server.
type TransportError struct {
	Op  string // "upload", "status", "download"
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s request to %s failed: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ServerError reports a non-2xx response or a 2xx response whose body could
// not be decoded. Message carries the response body when one was present.
type ServerError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s request failed: status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s request failed: status %d: %s", e.Op, e.StatusCode, e.Message)
}

// ParseError reports a malformed payload in an otherwise successful
// response, e.g. a status document with an unknown status string.
type ParseError struct {
	Op  string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed %s response: %v", e.Op, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// IsTransport reports whether err is (or wraps) a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsServer reports whether err is (or wraps) a ServerError.
func IsServer(err error) bool {
	var se *ServerError
	return errors.As(err, &se)
}
