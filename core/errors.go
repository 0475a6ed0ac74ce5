package core

import (
	"errors"
	"fmt"
)

// Session-terminal error classes. Everything here aborts the session;
// the engine never retries on its own.
var (
	ErrMalformedFrame       = errors.New("malformed frame")
	ErrUnexpectedFrame      = errors.New("unexpected frame")
	ErrSizeMismatch         = errors.New("size mismatch")
	ErrVerificationMismatch = errors.New("verification mismatch")
	ErrAckTimeout           = errors.New("timed out waiting for acknowledgment")

	ErrCanceled = errors.New("canceled")
)

// Structural violations detected by the codec. All of them unwrap to
// ErrMalformedFrame so callers only need one errors.Is check.
var (
	ErrInvalidVersion    = fmt.Errorf("%w: invalid version", ErrMalformedFrame)
	ErrInvalidType       = fmt.Errorf("%w: invalid type", ErrMalformedFrame)
	ErrReservedFieldUsed = fmt.Errorf("%w: reserved field must be zero", ErrMalformedFrame)
	ErrPayloadTooLarge   = fmt.Errorf("%w: payload exceeds maximum size", ErrMalformedFrame)
	ErrPayloadTruncated  = fmt.Errorf("%w: payload shorter than declared", ErrMalformedFrame)
	ErrPathTooLong       = fmt.Errorf("%w: path exceeds maximum length", ErrMalformedFrame)
	ErrEmptyPath         = fmt.Errorf("%w: path cannot be empty", ErrMalformedFrame)
	ErrUnsafePath        = fmt.Errorf("%w: path escapes destination", ErrMalformedFrame)
	ErrInvalidKind       = fmt.Errorf("%w: invalid kind", ErrMalformedFrame)
)
