package tuplekv

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/andreyvit/tuplekv/tuple"
)

type DumpFlags uint64

const (
	DumpUserKeys = DumpFlags(1 << iota)
	DumpSystemKeys
	DumpStats

	DumpAll = DumpFlags(0xFFFFFFFFFFFFFFFF)
)

var (
	dumpSep1 = strings.Repeat("=", 80)
)

func (f DumpFlags) Contains(v DumpFlags) bool {
	return (f & v) == v
}

// Dump renders the store contents for debugging. Keys that decode as tuples
// are rendered in tuple syntax, everything else as hex.
func (tx *Tx) Dump(f DumpFlags) string {
	var buf strings.Builder

	if f.Contains(DumpStats) {
		var userKeys, systemKeys int
		var dataSize int64
		bcur := tx.stx.Cursor()
		for k, v := bcur.First(); k != nil; k, v = bcur.Next() {
			if k[0] == 0xFF {
				systemKeys++
			} else {
				userKeys++
			}
			dataSize += int64(len(k) + len(v))
		}
		fmt.Fprintln(&buf, dumpSep1)
		fmt.Fprintf(&buf, "stats: user_keys = %d, system_keys = %d, data_size = %d\n", userKeys, systemKeys, dataSize)
	}

	if f.Contains(DumpUserKeys) {
		tx.dumpSection(&buf, "data", nil, systemPrefix)
	}
	if f.Contains(DumpSystemKeys) {
		tx.dumpSection(&buf, "system", systemPrefix, nil)
	}

	return buf.String()
}

func (tx *Tx) dumpSection(w *strings.Builder, section string, lower, upper []byte) {
	fmt.Fprintln(w, rpadf('=', "== %s ", section))
	bcur := tx.stx.Cursor()
	var pos int
	for k, v := seekOrFirst(bcur, lower); k != nil; k, v = bcur.Next() {
		if upper != nil && bytes.Compare(k, upper) >= 0 {
			break
		}
		pos++
		fmt.Fprintf(w, "%s.%d: %s = %s\n", section, pos, dumpKey(k), hexstr(v))
	}
}

func seekOrFirst(bcur storageCursor, lower []byte) ([]byte, []byte) {
	if lower == nil {
		return bcur.First()
	}
	return bcur.Seek(lower)
}

func dumpKey(k []byte) string {
	if len(k) > 0 && k[0] == 0xFF {
		return fmt.Sprintf("%q", k)
	}
	if t, err := tuple.Unpack(k); err == nil && len(t) > 0 {
		return t.String()
	}
	return hexstr(k)
}

func rpadf(pad rune, format string, args ...any) string {
	s := fmt.Sprintf(format, args...)
	return rpad(s, 80, pad)
}
