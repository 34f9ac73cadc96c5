package protocol

import (
	"errors"
	"fmt"

	"github.com/danmuck/clichat/internal/protocol/frame"
)

var (
	ErrFormat           = errors.New("protocol: malformed message")
	ErrUsernameTooLong  = errors.New("protocol: username too long")
	ErrUsernameInvalid  = errors.New("protocol: username contains NUL byte")
	ErrInvalidTokenSize = errors.New("protocol: invalid token length")
	ErrMethodMismatch   = errors.New("protocol: method mismatch")
)

// FormatError reports a buffer that cannot hold the message it claims to carry.
type FormatError struct {
	Kind     string
	Reason   string
	Expected int
	Actual   int
}

func (e FormatError) Error() string {
	return fmt.Sprintf("protocol: %s: %s (expected %d bytes, got %d)", e.Kind, e.Reason, e.Expected, e.Actual)
}

func (e FormatError) Is(target error) bool {
	return target == ErrFormat
}

func shortBuffer(kind string, expected, actual int) error {
	return FormatError{Kind: kind, Reason: "buffer shorter than fixed size", Expected: expected, Actual: actual}
}

// IsFormatError reports whether err is a hard format failure from the codec or framer.
// Incomplete frames are not format errors; the caller should keep reading.
func IsFormatError(err error) bool {
	return errors.Is(err, ErrFormat) ||
		errors.Is(err, frame.ErrMalformedFrame) ||
		errors.Is(err, frame.ErrFrameTooLarge)
}
