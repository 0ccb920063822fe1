package tuplekv

import (
	"encoding/hex"
	"log/slog"
	"slices"
	"strings"
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func ensure(err error) {
	if err != nil {
		panic(err)
	}
}

func rpad(s string, n int, pad rune) string {
	rem := n - len(s)
	if rem <= 0 {
		return s
	}
	return s + strings.Repeat(string(pad), rem)
}

// prefixSuccessor returns the least byte string that sorts after every
// string starting with prefix, or nil if no such string exists (the prefix
// is empty or all 0xFF). Note that trailing 0xFF bytes must be truncated,
// not wrapped, or the result stops being a least upper bound.
func prefixSuccessor(prefix []byte) []byte {
	for i := len(prefix) - 1; i >= 0; i-- {
		if prefix[i] != 0xFF {
			succ := slices.Clone(prefix[:i+1])
			succ[i]++
			return succ
		}
	}
	return nil
}

func hexstr(b []byte) string {
	if b == nil {
		return "<nil>"
	}
	if len(b) == 0 {
		return "<empty>"
	}
	return hex.EncodeToString(b)
}

func hexAttr(key string, b []byte) slog.Attr {
	return slog.String(key, hexstr(b))
}
