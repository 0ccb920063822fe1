package tuple

import (
	"errors"
	"fmt"
)

// Unpack failures. Every error returned by Unpack is a *DecodeError wrapping
// one of these, so errors.Is works against the category.
var (
	ErrTruncated          = errors.New("truncated tuple")
	ErrUnknownTag         = errors.New("unknown type tag")
	ErrInvalidNestedTuple = errors.New("invalid nested tuple")
	ErrInvalidUTF8        = errors.New("invalid UTF-8 in text element")
)

// PackWithVersionstamp failures.
var (
	ErrNoIncompleteVersionstamp        = errors.New("tuple has no incomplete versionstamp")
	ErrMultipleIncompleteVersionstamps = errors.New("tuple has multiple incomplete versionstamps")
	ErrVersionstampOffsetTooLarge      = errors.New("versionstamp offset does not fit in 16 bits")
)

// DecodeError reports malformed input, carrying the input and the offset of
// the element the decoder gave up on.
type DecodeError struct {
	Input []byte
	Off   int
	Err   error
	Msg   string
}

func decodeErrf(input []byte, off int, err error, format string, args ...any) error {
	return &DecodeError{input, off, err, fmt.Sprintf(format, args...)}
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func (e *DecodeError) Error() string {
	const prefixLen = 64
	const suffixLen = 32
	n := len(e.Input)
	if n <= prefixLen+suffixLen {
		return fmt.Sprintf("%s at %d: %v: (%d) %x", e.Msg, e.Off, e.Err, n, e.Input)
	}
	p, s := e.Input[:prefixLen], e.Input[n-suffixLen:]
	return fmt.Sprintf("%s at %d: %v: (%d) %x...%x", e.Msg, e.Off, e.Err, n, p, s)
}
