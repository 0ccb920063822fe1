/*
Package tuple implements an order-preserving binary encoding of
heterogeneous, optionally nested tuples of scalar values.

The defining property: comparing two packed tuples as raw bytes (unsigned,
lexicographic) gives the same result as comparing the tuples element by
element. This makes the encoding suitable for keys of a sorted key-value
store: a range scan over packed keys enumerates tuples in semantic order,
and every packed tuple is a prefix of all packed tuples that extend it.

# Wire format

Each element is a one-byte type tag followed by a payload. Tags are assigned
so that unsigned byte order of tags matches the semantic order of types
(nil < bytes < text < nested < negatives < zero < positives < float32 <
float64 < false < true < UUID < versionstamp):

	0x00       nil
	0x01       byte string
	0x02       text (UTF-8)
	0x05       nested tuple
	0x0B       negative integer, magnitude over 8 bytes (complemented length byte)
	0x0C..0x13 negative integer, 8..1 byte magnitude, complemented
	0x14       integer zero
	0x15..0x1C positive integer, 1..8 byte magnitude
	0x1D       positive integer, magnitude over 8 bytes (length byte)
	0x20       float32, 0x21 float64 (sign-transformed IEEE 754 bits, big-endian)
	0x26       false, 0x27 true
	0x30       UUID, 16 bytes
	0x33       versionstamp, 12 bytes

**Byte strings and text** are written verbatim with every 0x00 payload byte
escaped as {0x00, 0xFF}, and closed by a single unescaped 0x00. The
terminator is the smallest possible byte, so a shorter string sorts before
every extension of it.

**Integers** are sign-and-magnitude: the tag encodes both the sign and the
minimal big-endian byte length of the magnitude, so the tag alone orders
values of different signs or widths. Negative payloads (and the length byte
of the over-8-byte negative form) are bitwise-complemented, which reverses
the order of magnitudes and makes more negative values sort lower.

**Floats** store their IEEE 754 bits big-endian with the sign bit flipped,
and with all bits flipped instead when the value is negative. The transform
is applied to the bit pattern, not the value, so -0.0 and NaNs pack and
round-trip consistently.

**Nested tuples** recursively contain the same encoding, closed by 0x00. A
nil element inside a nested tuple is written as {0x00, 0xFF} so that it
cannot be mistaken for the terminator.

**Versionstamps** are 12 bytes: 8-byte big-endian transaction version,
2-byte big-endian batch number, 2-byte big-endian user version. An
IncompleteVersionstamp writes 10 bytes of 0xFF in place of the first two
fields; the store fills them in at commit time, see PackWithVersionstamp.
*/
package tuple

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"math/big"
	"math/bits"
	"strings"

	"github.com/google/uuid"
)

const (
	tagNil          = 0x00
	tagBytes        = 0x01
	tagString       = 0x02
	tagNested       = 0x05
	tagNegBigInt    = 0x0B
	tagIntZero      = 0x14
	tagPosBigInt    = 0x1D
	tagFloat32      = 0x20
	tagFloat64      = 0x21
	tagFalse        = 0x26
	tagTrue         = 0x27
	tagUUID         = 0x30
	tagVersionstamp = 0x33

	maxIntBytes = 8
	maxBigBytes = 0xFF
)

// Tuple is an ordered sequence of elements to be packed or produced by
// unpacking. Accepted element types:
//
//	nil
//	[]byte, Bytes, string
//	int, int8..int64, uint, uint8..uint64, *big.Int, big.Int
//	float32, float64
//	bool
//	UUID, uuid.UUID
//	Tuple (nested)
//	Versionstamp, IncompleteVersionstamp
//
// Pack panics on any other type; this is a caller bug, same as indexing out
// of range. Unpacking yields nil, []byte, string, int64, *big.Int, float32,
// float64, bool, UUID, Tuple and Versionstamp.
type Tuple []any

// Bytes is a byte string element. It packs the same as []byte; unpacking
// yields []byte.
type Bytes []byte

// UUID is a 16-byte identifier packed verbatim. Convertible to and from
// github.com/google/uuid.UUID; the latter is accepted by Pack directly.
type UUID [16]byte

func (u UUID) String() string {
	var sb strings.Builder
	sb.Grow(36)
	for i, b := range u {
		switch i {
		case 4, 6, 8, 10:
			sb.WriteByte('-')
		}
		sb.WriteString(hex.EncodeToString([]byte{b}))
	}
	return sb.String()
}

// Pack encodes the tuple. The result of packing an empty tuple is an empty,
// non-nil byte slice.
//
// Pack panics if the tuple contains an element outside the documented model,
// or an IncompleteVersionstamp at any nesting depth: an unresolved
// versionstamp placeholder must travel with its offset trailer, and only
// PackWithVersionstamp produces one.
func (t Tuple) Pack() []byte {
	return t.Append(make([]byte, 0, t.packedSizeHint()))
}

// Append packs the tuple onto buf and returns the extended buffer.
func (t Tuple) Append(buf []byte) []byte {
	for _, el := range t {
		buf = appendElement(buf, el, false, nil)
	}
	return buf
}

// PackWithVersionstamp encodes a tuple containing exactly one
// IncompleteVersionstamp (at any nesting depth) for use as the key of a
// versionstamped mutation: the result is prefix + packed tuple + a 2-byte
// little-endian trailer holding the offset of the 10-byte placeholder
// within the result. The store locates the placeholder through the trailer,
// overwrites it with the commit version and strips the trailer; the stored
// key carries no trailer and unpacks normally.
//
// Returns ErrNoIncompleteVersionstamp or ErrMultipleIncompleteVersionstamps
// when the count is off, and ErrVersionstampOffsetTooLarge when the
// placeholder sits beyond what the 16-bit trailer can address.
func (t Tuple) PackWithVersionstamp(prefix []byte) ([]byte, error) {
	st := packState{vsOff: -1}
	buf := make([]byte, 0, len(prefix)+t.packedSizeHint()+trailerLen)
	buf = append(buf, prefix...)
	for _, el := range t {
		buf = appendElement(buf, el, false, &st)
	}
	switch {
	case st.vsCount == 0:
		return nil, ErrNoIncompleteVersionstamp
	case st.vsCount > 1:
		return nil, ErrMultipleIncompleteVersionstamps
	case st.vsOff > math.MaxUint16:
		return nil, ErrVersionstampOffsetTooLarge
	}
	off, buf := grow(buf, trailerLen)
	binary.LittleEndian.PutUint16(buf[off:], uint16(st.vsOff))
	return buf, nil
}

// HasIncompleteVersionstamp reports whether the tuple contains an
// IncompleteVersionstamp at any nesting depth.
func (t Tuple) HasIncompleteVersionstamp() bool {
	for _, el := range t {
		switch v := el.(type) {
		case IncompleteVersionstamp:
			return true
		case Tuple:
			if v.HasIncompleteVersionstamp() {
				return true
			}
		}
	}
	return false
}

func (t Tuple) String() string {
	var sb strings.Builder
	t.writeTo(&sb)
	return sb.String()
}

func (t Tuple) writeTo(sb *strings.Builder) {
	sb.WriteByte('(')
	for i, el := range t {
		if i > 0 {
			sb.WriteString(", ")
		}
		switch v := el.(type) {
		case nil:
			sb.WriteString("nil")
		case []byte:
			sb.WriteString("0x")
			sb.WriteString(hex.EncodeToString(v))
		case Bytes:
			sb.WriteString("0x")
			sb.WriteString(hex.EncodeToString(v))
		case string:
			fmt.Fprintf(sb, "%q", v)
		case Tuple:
			v.writeTo(sb)
		default:
			fmt.Fprint(sb, v)
		}
	}
	sb.WriteByte(')')
}

func (t Tuple) packedSizeHint() int {
	n := 0
	for _, el := range t {
		switch v := el.(type) {
		case []byte:
			n += len(v) + 2
		case Bytes:
			n += len(v) + 2
		case string:
			n += len(v) + 2
		case Tuple:
			n += v.packedSizeHint() + 2
		default:
			n += 10
		}
	}
	return n
}

type packState struct {
	vsOff   int
	vsCount int
}

func appendElement(buf []byte, el any, nested bool, st *packState) []byte {
	switch v := el.(type) {
	case nil:
		if nested {
			return append(buf, tagNil, 0xFF)
		}
		return append(buf, tagNil)
	case []byte:
		buf = append(buf, tagBytes)
		return appendEscaped(buf, v)
	case Bytes:
		buf = append(buf, tagBytes)
		return appendEscaped(buf, v)
	case string:
		buf = append(buf, tagString)
		return appendEscapedString(buf, v)
	case int:
		return appendInt64(buf, int64(v))
	case int8:
		return appendInt64(buf, int64(v))
	case int16:
		return appendInt64(buf, int64(v))
	case int32:
		return appendInt64(buf, int64(v))
	case int64:
		return appendInt64(buf, v)
	case uint:
		return appendUint64(buf, uint64(v))
	case uint8:
		return appendInt64(buf, int64(v))
	case uint16:
		return appendInt64(buf, int64(v))
	case uint32:
		return appendInt64(buf, int64(v))
	case uint64:
		return appendUint64(buf, v)
	case *big.Int:
		return appendBigInt(buf, v)
	case big.Int:
		return appendBigInt(buf, &v)
	case float32:
		buf = append(buf, tagFloat32)
		return appendUint32BE(buf, floatToOrdered(v))
	case float64:
		buf = append(buf, tagFloat64)
		return appendUint64BE(buf, doubleToOrdered(v))
	case bool:
		if v {
			return append(buf, tagTrue)
		}
		return append(buf, tagFalse)
	case UUID:
		buf = append(buf, tagUUID)
		return append(buf, v[:]...)
	case uuid.UUID:
		buf = append(buf, tagUUID)
		return append(buf, v[:]...)
	case Tuple:
		buf = append(buf, tagNested)
		for _, inner := range v {
			buf = appendElement(buf, inner, true, st)
		}
		return append(buf, 0x00)
	case Versionstamp:
		buf = append(buf, tagVersionstamp)
		return v.append(buf)
	case IncompleteVersionstamp:
		if st == nil {
			panic("tuple: incomplete versionstamp in Pack, use PackWithVersionstamp")
		}
		st.vsCount++
		st.vsOff = len(buf) + 1
		buf = append(buf, tagVersionstamp)
		return v.append(buf)
	default:
		panic(fmt.Errorf("tuple: cannot pack element of type %T", el))
	}
}

func appendEscaped(buf []byte, v []byte) []byte {
	for {
		i := bytes.IndexByte(v, 0x00)
		if i < 0 {
			break
		}
		buf = append(buf, v[:i]...)
		buf = append(buf, 0x00, 0xFF)
		v = v[i+1:]
	}
	buf = append(buf, v...)
	return append(buf, 0x00)
}

func appendEscapedString(buf []byte, v string) []byte {
	for {
		i := strings.IndexByte(v, 0x00)
		if i < 0 {
			break
		}
		buf = append(buf, v[:i]...)
		buf = append(buf, 0x00, 0xFF)
		v = v[i+1:]
	}
	buf = append(buf, v...)
	return append(buf, 0x00)
}

func appendInt64(buf []byte, v int64) []byte {
	if v == 0 {
		return append(buf, tagIntZero)
	}
	if v > 0 {
		return appendPosInt(buf, uint64(v))
	}
	mag := uint64(-(v + 1)) + 1 // safe for math.MinInt64
	return appendNegInt(buf, mag)
}

func appendUint64(buf []byte, v uint64) []byte {
	if v == 0 {
		return append(buf, tagIntZero)
	}
	return appendPosInt(buf, v)
}

func appendPosInt(buf []byte, mag uint64) []byte {
	n := magLen(mag)
	buf = append(buf, tagIntZero+byte(n))
	off, buf := grow(buf, n)
	for i := n - 1; i >= 0; i-- {
		buf[off+i] = byte(mag)
		mag >>= 8
	}
	return buf
}

// appendNegInt writes (2^(8n) - 1 - mag), which is the lower n bytes of ^mag.
func appendNegInt(buf []byte, mag uint64) []byte {
	n := magLen(mag)
	buf = append(buf, tagIntZero-byte(n))
	comp := ^mag
	off, buf := grow(buf, n)
	for i := n - 1; i >= 0; i-- {
		buf[off+i] = byte(comp)
		comp >>= 8
	}
	return buf
}

func appendBigInt(buf []byte, v *big.Int) []byte {
	if v.IsInt64() {
		return appendInt64(buf, v.Int64())
	}
	if v.Sign() > 0 && v.IsUint64() {
		return appendPosInt(buf, v.Uint64())
	}
	mag := new(big.Int).Abs(v).Bytes()
	n := len(mag)
	if n > maxBigBytes {
		panic(fmt.Errorf("tuple: integer magnitude is %d bytes, max is %d", n, maxBigBytes))
	}
	if v.Sign() > 0 {
		buf = append(buf, tagPosBigInt, byte(n))
		return append(buf, mag...)
	}
	if n <= maxIntBytes {
		// magnitude fits the compact form even though the value is below
		// math.MinInt64 (between -2^64+1 and -2^63-1)
		buf = append(buf, tagIntZero-byte(n))
	} else {
		buf = append(buf, tagNegBigInt, ^byte(n))
	}
	off, buf := grow(buf, n)
	for i, b := range mag {
		buf[off+i] = ^b
	}
	return buf
}

func magLen(v uint64) int {
	return (bits.Len64(v) + 7) / 8
}

// floatToOrdered transforms IEEE 754 bits so that unsigned comparison of the
// result orders like the values: positives get the sign bit set, negatives
// get every bit flipped.
func floatToOrdered(v float32) uint32 {
	b := math.Float32bits(v)
	if b&0x80000000 != 0 {
		return ^b
	}
	return b | 0x80000000
}

func orderedToFloat(b uint32) float32 {
	if b&0x80000000 != 0 {
		b &^= 0x80000000
	} else {
		b = ^b
	}
	return math.Float32frombits(b)
}

func doubleToOrdered(v float64) uint64 {
	b := math.Float64bits(v)
	if b&0x8000000000000000 != 0 {
		return ^b
	}
	return b | 0x8000000000000000
}

func orderedToDouble(b uint64) float64 {
	if b&0x8000000000000000 != 0 {
		b &^= 0x8000000000000000
	} else {
		b = ^b
	}
	return math.Float64frombits(b)
}

func appendUint32BE(buf []byte, v uint32) []byte {
	off, buf := grow(buf, 4)
	binary.BigEndian.PutUint32(buf[off:], v)
	return buf
}

func appendUint64BE(buf []byte, v uint64) []byte {
	off, buf := grow(buf, 8)
	binary.BigEndian.PutUint64(buf[off:], v)
	return buf
}
