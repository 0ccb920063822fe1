package tuple

import (
	"encoding/binary"
	"fmt"
)

const (
	versionstampLen = 12
	placeholderLen  = 10
	trailerLen      = 2
)

// Versionstamp is the complete, 12-byte form: the transaction version and
// batch number are assigned by the store at commit time, the user version
// distinguishes versionstamps created within one transaction. Versionstamps
// order by (TransactionVersion, BatchNumber, UserVersion), which the packed
// big-endian layout preserves.
type Versionstamp struct {
	TransactionVersion uint64
	BatchNumber        uint16
	UserVersion        uint16
}

// IncompleteVersionstamp stands in for a versionstamp whose transaction
// version and batch number are not known yet. It packs as 10 bytes of 0xFF
// followed by the user version, and is only accepted by
// PackWithVersionstamp.
type IncompleteVersionstamp struct {
	UserVersion uint16
}

func (v Versionstamp) String() string {
	return fmt.Sprintf("@%d/%d/%d", v.TransactionVersion, v.BatchNumber, v.UserVersion)
}

// Bytes returns the 12-byte packed form without a tag.
func (v Versionstamp) Bytes() []byte {
	return v.append(make([]byte, 0, versionstampLen))
}

func (v Versionstamp) append(buf []byte) []byte {
	off, buf := grow(buf, versionstampLen)
	binary.BigEndian.PutUint64(buf[off:], v.TransactionVersion)
	binary.BigEndian.PutUint16(buf[off+8:], v.BatchNumber)
	binary.BigEndian.PutUint16(buf[off+10:], v.UserVersion)
	return buf
}

func (v IncompleteVersionstamp) append(buf []byte) []byte {
	off, buf := grow(buf, versionstampLen)
	for i := 0; i < placeholderLen; i++ {
		buf[off+i] = 0xFF
	}
	binary.BigEndian.PutUint16(buf[off+placeholderLen:], v.UserVersion)
	return buf
}

func versionstampFromBytes(b []byte) Versionstamp {
	return Versionstamp{
		TransactionVersion: binary.BigEndian.Uint64(b),
		BatchNumber:        binary.BigEndian.Uint16(b[8:]),
		UserVersion:        binary.BigEndian.Uint16(b[10:]),
	}
}

// SplitVersionstampTrailer splits the output of PackWithVersionstamp into
// the packed bytes and the placeholder offset the trailer records. Reports
// ok = false when b is too short to carry a trailer or the offset does not
// address a full 10-byte placeholder inside the packed bytes.
func SplitVersionstampTrailer(b []byte) (packed []byte, offset int, ok bool) {
	if len(b) < trailerLen+1+versionstampLen {
		return nil, 0, false
	}
	packed = b[:len(b)-trailerLen]
	offset = int(binary.LittleEndian.Uint16(b[len(b)-trailerLen:]))
	if offset < 1 || offset+versionstampLen > len(packed) {
		return nil, 0, false
	}
	return packed, offset, true
}
