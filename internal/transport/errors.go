package transport

import "errors"

var (
	// ErrUnreachable indicates the server could not be dialed.
	ErrUnreachable = errors.New("server unreachable")
	// ErrTimeout indicates the request exceeded the transport timeout.
	ErrTimeout = errors.New("request timed out")
	// ErrTLS indicates certificate or handshake failure.
	ErrTLS = errors.New("tls handshake failed")
	// ErrRequest covers every other round-trip failure.
	ErrRequest = errors.New("request failed")
)
