package hn

import (
	"errors"
	"fmt"
)

// ErrWrongShape is returned by the decoders when a present body cannot populate an item id.
var ErrWrongShape = errors.New("item does not match requested shape")

// maxErrBody bounds how much of an unexpected response body is kept on a ProtocolError.
const maxErrBody = 512

// ProtocolError reports an unexpected status code or an undecodable body.
type ProtocolError struct {
	Op     string
	Status int
	Body   string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Op, e.Status, e.Body)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// TransportError reports a failure to complete the HTTP exchange at all.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e *TransportError) Unwrap() error { return e.Err }

func truncate(b []byte) string {
	if len(b) > maxErrBody {
		return string(b[:maxErrBody]) + "..."
	}
	return string(b)
}
