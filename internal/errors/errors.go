// Package errors holds the sentinel errors shared by the transport adapters
package errors

import "errors"

var (
	// ErrServer marks failures on the remote end or in transit. They are worth retrying later.
	ErrServer = errors.New("server error")
	// ErrClient marks requests the remote end refused as malformed or unauthorized
	ErrClient = errors.New("client error")
	// ErrRatelimitExceeded marks requests that could not be made within the rate limit
	ErrRatelimitExceeded = errors.New("ratelimit exceeded")
)
