// Package subspace scopes tuple-encoded keys under a fixed byte prefix.
//
// A subspace is nothing but an opaque prefix: packing prepends it, unpacking
// strips it, and because the tuple encoding is order-preserving and
// prefix-free, every subspace owns a contiguous key range disjoint from its
// siblings. Layers above (the directory layer, application code) compose
// subspaces instead of concatenating raw bytes.
package subspace

import (
	"bytes"
	"encoding/hex"
	"errors"

	"github.com/andreyvit/tuplekv/tuple"
)

// ErrOutsideSubspace is returned by Unpack for keys the subspace does not
// contain.
var ErrOutsideSubspace = errors.New("key is outside subspace")

// Subspace is an immutable key prefix. The zero value is the root subspace
// (empty prefix).
type Subspace struct {
	prefix []byte
}

// FromBytes makes a subspace with the given raw prefix. The prefix is copied.
func FromBytes(prefix []byte) Subspace {
	return Subspace{prefix: bytes.Clone(prefix)}
}

// Sub makes a subspace rooted at the packed elements.
func Sub(els ...any) Subspace {
	return Subspace{prefix: tuple.Tuple(els).Pack()}
}

// Sub returns a child subspace: the receiver's prefix extended with the
// packed elements.
func (s Subspace) Sub(els ...any) Subspace {
	return Subspace{prefix: tuple.Tuple(els).Append(bytes.Clone(s.prefix))}
}

// Bytes returns the raw prefix. The caller must not modify it.
func (s Subspace) Bytes() []byte {
	return s.prefix
}

// Pack prepends the subspace prefix to the packed tuple.
func (s Subspace) Pack(t tuple.Tuple) []byte {
	return t.Append(bytes.Clone(s.prefix))
}

// PackWithVersionstamp packs a tuple holding exactly one incomplete
// versionstamp under the subspace prefix; the offset trailer accounts for
// the prefix. See tuple.Tuple.PackWithVersionstamp.
func (s Subspace) PackWithVersionstamp(t tuple.Tuple) ([]byte, error) {
	return t.PackWithVersionstamp(s.prefix)
}

// Unpack decodes a key previously packed under this subspace.
func (s Subspace) Unpack(key []byte) (tuple.Tuple, error) {
	if !s.Contains(key) {
		return nil, ErrOutsideSubspace
	}
	return tuple.Unpack(key[len(s.prefix):])
}

// Contains reports whether key was packed under this subspace (or equals its
// prefix).
func (s Subspace) Contains(key []byte) bool {
	return bytes.HasPrefix(key, s.prefix)
}

// Range returns the begin and end keys of the half-open interval
// [begin, end) covering every tuple packed under the subspace. begin is
// prefix+0x00 and end is prefix+0xFF: packed tuples never start with 0xFF,
// and only the empty tuple packs to the bare prefix, so the interval is
// exactly the packed keys of non-empty tuples.
func (s Subspace) Range() (begin, end []byte) {
	begin = make([]byte, len(s.prefix)+1)
	copy(begin, s.prefix)
	begin[len(s.prefix)] = 0x00
	end = make([]byte, len(s.prefix)+1)
	copy(end, s.prefix)
	end[len(s.prefix)] = 0xFF
	return begin, end
}

func (s Subspace) String() string {
	t, err := tuple.Unpack(s.prefix)
	if err != nil {
		return "subspace(0x" + hex.EncodeToString(s.prefix) + ")"
	}
	return "subspace" + t.String()
}
