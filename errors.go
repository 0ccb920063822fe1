package tuplekv

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned when starting a transaction on a closed DB.
	ErrClosed = errors.New("database is closed")

	// ErrReadOnlyTx is returned by mutating operations on read-only
	// transactions.
	ErrReadOnlyTx = errors.New("read-only transaction")

	// ErrTxClosed is returned when committing a transaction that has already
	// been committed or rolled back.
	ErrTxClosed = errors.New("transaction has already been closed")

	// ErrSystemKey is returned when a user operation touches the reserved
	// 0xFF keyspace.
	ErrSystemKey = errors.New("key is in the reserved system keyspace")

	// ErrEmptyKey is returned when storing or clearing an empty key.
	ErrEmptyKey = errors.New("key is empty")

	// ErrMissingTrailer is returned by SetVersionstampedKey/Value when the
	// argument does not end in a valid versionstamp offset trailer. Such
	// buffers come from PackWithVersionstamp; anything else is a protocol
	// mismatch on the caller's side.
	ErrMissingTrailer = errors.New("buffer lacks a versionstamp offset trailer")

	// ErrBadSnapshot is returned by Import when the input is not a valid
	// export file (bad magic, truncated data or checksum mismatch).
	ErrBadSnapshot = errors.New("bad snapshot file")
)

// DataError decorates an error with the byte string that caused it and an
// offset into it. Long data is elided in the middle when printing.
type DataError struct {
	Data []byte
	Off  int
	Err  error
	Msg  string
}

func dataErrf(data []byte, off int, err error, format string, args ...any) error {
	return &DataError{data, off, err, fmt.Sprintf(format, args...)}
}

func (e *DataError) Unwrap() error {
	return e.Err
}

func (e *DataError) Error() string {
	const prefixLen = 64
	const suffixLen = 32
	n := len(e.Data)
	if n <= prefixLen+suffixLen {
		if e.Err != nil {
			return fmt.Sprintf("%s: %v: (%d) %x", e.Msg, e.Err, n, e.Data)
		} else {
			return fmt.Sprintf("%s: (%d) %x", e.Msg, n, e.Data)
		}
	} else {
		p, s := e.Data[:prefixLen], e.Data[n-suffixLen:]
		if e.Err != nil {
			return fmt.Sprintf("%s: %v: (%d) %x...%x", e.Msg, e.Err, n, p, s)
		} else {
			return fmt.Sprintf("%s: (%d) %x...%x", e.Msg, n, p, s)
		}
	}
}
