package pki

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidLength = errors.New("invalid length")
	ErrInvalidPoint  = errors.New("not a point on secp256k1")
	ErrInvalidScalar = errors.New("scalar out of range")
	ErrInvalidHex    = errors.New("invalid hex")
)

// ParseError reports a malformed public key, secret key, signature or
// challenge. What names the value being parsed.
type ParseError struct {
	What string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.What, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func parseErr(what string, err error) error {
	return &ParseError{What: what, Err: err}
}

func lengthErr(what string, want, got int) error {
	return parseErr(what, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidLength, want, got))
}
