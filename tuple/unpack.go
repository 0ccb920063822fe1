package tuple

import (
	"bytes"
	"encoding/binary"
	"math"
	"math/big"
	"unicode/utf8"
)

// Unpack decodes a packed tuple. It returns a nil Tuple for empty input,
// and never returns partial output: any malformed byte yields a nil Tuple
// and a *DecodeError.
//
// Byte-string elements may alias b. A versionstamp element always unpacks
// as a complete Versionstamp carrying whatever bits were stored, including
// an unpatched placeholder; Unpack has no way to tell the two apart and
// never expects an offset trailer.
func Unpack(b []byte) (Tuple, error) {
	if len(b) == 0 {
		return nil, nil
	}
	d := decoder{orig: b, buf: b}
	var t Tuple
	for len(d.buf) > 0 {
		el, err := d.element()
		if err != nil {
			return nil, err
		}
		t = append(t, el)
	}
	return t, nil
}

type decoder struct {
	orig []byte
	buf  []byte
}

func (d *decoder) off() int {
	return len(d.orig) - len(d.buf)
}

func (d *decoder) errf(err error, format string, args ...any) error {
	return decodeErrf(d.orig, d.off(), err, format, args...)
}

func (d *decoder) take(n int) ([]byte, error) {
	if len(d.buf) < n {
		return nil, d.errf(ErrTruncated, "need %d more bytes, have %d", n, len(d.buf))
	}
	v := d.buf[:n]
	d.buf = d.buf[n:]
	return v, nil
}

func (d *decoder) element() (any, error) {
	start := d.off()
	tag := d.buf[0]
	d.buf = d.buf[1:]
	switch {
	case tag == tagNil:
		return nil, nil
	case tag == tagBytes:
		return d.zeroTerminated()
	case tag == tagString:
		v, err := d.zeroTerminated()
		if err != nil {
			return nil, err
		}
		if !utf8.Valid(v) {
			return nil, decodeErrf(d.orig, start, ErrInvalidUTF8, "text element")
		}
		return string(v), nil
	case tag == tagNested:
		return d.nested()
	case tag == tagNegBigInt:
		return d.bigInt(true)
	case tag == tagPosBigInt:
		return d.bigInt(false)
	case tag >= tagIntZero-maxIntBytes && tag <= tagIntZero+maxIntBytes:
		return d.compactInt(tag)
	case tag == tagFloat32:
		raw, err := d.take(4)
		if err != nil {
			return nil, err
		}
		return orderedToFloat(binary.BigEndian.Uint32(raw)), nil
	case tag == tagFloat64:
		raw, err := d.take(8)
		if err != nil {
			return nil, err
		}
		return orderedToDouble(binary.BigEndian.Uint64(raw)), nil
	case tag == tagFalse:
		return false, nil
	case tag == tagTrue:
		return true, nil
	case tag == tagUUID:
		raw, err := d.take(16)
		if err != nil {
			return nil, err
		}
		var u UUID
		copy(u[:], raw)
		return u, nil
	case tag == tagVersionstamp:
		raw, err := d.take(versionstampLen)
		if err != nil {
			return nil, err
		}
		return versionstampFromBytes(raw), nil
	default:
		return nil, decodeErrf(d.orig, start, ErrUnknownTag, "tag 0x%02X", tag)
	}
}

// zeroTerminated consumes bytes up to an unescaped 0x00, undoing the
// {0x00, 0xFF} escape. The result aliases the input unless escapes were
// present.
func (d *decoder) zeroTerminated() ([]byte, error) {
	rem := d.buf
	var out []byte
	for {
		i := bytes.IndexByte(rem, 0x00)
		if i < 0 {
			return nil, d.errf(ErrTruncated, "unterminated byte string")
		}
		if i+1 < len(rem) && rem[i+1] == 0xFF {
			out = append(out, rem[:i]...)
			out = append(out, 0x00)
			rem = rem[i+2:]
			continue
		}
		if out == nil {
			out = rem[:i]
		} else {
			out = append(out, rem[:i]...)
		}
		d.buf = rem[i+1:]
		return out, nil
	}
}

func (d *decoder) nested() (Tuple, error) {
	t := Tuple{}
	for {
		if len(d.buf) == 0 {
			return nil, d.errf(ErrInvalidNestedTuple, "missing terminator")
		}
		if d.buf[0] == 0x00 {
			if len(d.buf) >= 2 && d.buf[1] == 0xFF {
				t = append(t, nil)
				d.buf = d.buf[2:]
				continue
			}
			d.buf = d.buf[1:]
			return t, nil
		}
		el, err := d.element()
		if err != nil {
			return nil, err
		}
		t = append(t, el)
	}
}

func (d *decoder) compactInt(tag byte) (any, error) {
	if tag == tagIntZero {
		return int64(0), nil
	}
	if tag > tagIntZero {
		raw, err := d.take(int(tag - tagIntZero))
		if err != nil {
			return nil, err
		}
		v := beUint64(raw)
		if v > math.MaxInt64 {
			return new(big.Int).SetUint64(v), nil
		}
		return int64(v), nil
	}
	n := int(tagIntZero - tag)
	raw, err := d.take(n)
	if err != nil {
		return nil, err
	}
	mag := maxMag(n) - beUint64(raw)
	switch {
	case mag < 1<<63:
		return -int64(mag), nil
	case mag == 1<<63:
		return int64(math.MinInt64), nil
	default:
		return new(big.Int).Neg(new(big.Int).SetUint64(mag)), nil
	}
}

func (d *decoder) bigInt(neg bool) (any, error) {
	lb, err := d.take(1)
	if err != nil {
		return nil, err
	}
	n := int(lb[0])
	if neg {
		n = int(^lb[0])
	}
	raw, err := d.take(n)
	if err != nil {
		return nil, err
	}
	v := new(big.Int).SetBytes(raw)
	if neg {
		limit := new(big.Int).Lsh(big.NewInt(1), uint(8*n))
		limit.Sub(limit, big.NewInt(1))
		v.Sub(v, limit)
	}
	// non-canonical short forms still decode, normalized like compact ints
	if v.IsInt64() {
		return v.Int64(), nil
	}
	return v, nil
}

func beUint64(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

func maxMag(n int) uint64 {
	if n >= maxIntBytes {
		return math.MaxUint64
	}
	return (uint64(1) << (8 * n)) - 1
}
