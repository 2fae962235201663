package handshake

import "errors"

var (
	// ErrProtocolViolation wraps the parse failure of a message that is not
	// what the current state expects.
	ErrProtocolViolation = errors.New("handshake: protocol violation")
	// ErrAuthenticationFailed means the challenge signature did not verify
	// against the presented key.
	ErrAuthenticationFailed = errors.New("handshake: authentication failed")
	// ErrTerminated is returned by a machine that already failed.
	ErrTerminated = errors.New("handshake: terminated")
)
