package types

import (
	"errors"
	"fmt"

	"github.com/ineffectivecoder/cifsgoose/internal/encoding"
)

var (
	// ErrBufferTooSmall indicates the destination cannot hold the message.
	ErrBufferTooSmall = encoding.ErrBufferTooSmall

	// ErrBadMarker is returned for a header that does not start with 0xFF 'SMB'.
	ErrBadMarker = errors.New("bad SMB1 protocol marker")

	// ErrUnsupportedProtocol is returned for an SMB2/3 header.
	ErrUnsupportedProtocol = errors.New("unsupported protocol: SMB2/3")

	// ErrOddWords is returned when a parameter word block has odd length.
	ErrOddWords = errors.New("parameter words must have even length")

	// ErrTruncated is returned when a count field runs past the message.
	ErrTruncated = errors.New("truncated message")
)

// DecodeError reports where in a message decoding failed.
type DecodeError struct {
	Offset int
	What   string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s at offset %d: %v", e.What, e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// NewDecodeError builds a DecodeError.
func NewDecodeError(what string, off int, err error) *DecodeError {
	return &DecodeError{Offset: off, What: what, Err: err}
}
