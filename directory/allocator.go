package directory

import (
	"encoding/binary"
	"fmt"
	"math/rand"

	"github.com/andreyvit/tuplekv"
	"github.com/andreyvit/tuplekv/subspace"
	"github.com/andreyvit/tuplekv/tuple"
)

// allocator hands out integers for directory prefixes, never the same one
// twice. It keeps two subspaces: counters records how many allocations each
// window has seen, recent marks the integers already handed out. A window is
// abandoned for the next one as soon as it is half full, so random probing
// stays cheap and the packed integers stay short.
type allocator struct {
	counters subspace.Subspace
	recent   subspace.Subspace
}

func newAllocator(ss subspace.Subspace) allocator {
	return allocator{
		counters: ss.Sub(int64(0)),
		recent:   ss.Sub(int64(1)),
	}
}

func windowSize(start int64) int64 {
	switch {
	case start < 255:
		return 64
	case start < 65535:
		return 1024
	default:
		return 8192
	}
}

// allocate returns an integer never returned before by this allocator and
// marks it as used.
func (a allocator) allocate(tx *tuplekv.Tx) (int64, error) {
	start, err := a.currentWindowStart(tx)
	if err != nil {
		return 0, err
	}

	for {
		count, err := a.bumpCounter(tx, start)
		if err != nil {
			return 0, err
		}
		window := windowSize(start)
		if count*2 >= window {
			// Window is half full. Move to the next one and retire the
			// bookkeeping below it; integers there can never be candidates
			// again.
			start += window
			if err := a.advanceTo(tx, start); err != nil {
				return 0, err
			}
			continue
		}

		// Less than half the window is taken, so this terminates quickly.
		for {
			candidate := start + rand.Int63n(window)
			key := a.recent.Pack(tuple.Tuple{candidate})
			if tx.Get(key) != nil {
				continue
			}
			// The marker must be non-empty: the store reads empty values
			// back as nil.
			return candidate, tx.Set(key, []byte{1})
		}
	}
}

// currentWindowStart finds the start of the newest window, which is the
// largest key in the counters subspace, or 0 when nothing has been allocated
// yet.
func (a allocator) currentWindowStart(tx *tuplekv.Tx) (int64, error) {
	begin, end := a.counters.Range()
	c := tx.Scan(tuplekv.RawIE(begin, end).Reversed())
	if !c.Next() {
		return 0, nil
	}
	t, err := a.counters.Unpack(c.Key())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	start, ok := int64(0), false
	if len(t) == 1 {
		start, ok = t[0].(int64)
	}
	if !ok {
		return 0, fmt.Errorf("%w: unexpected allocator counter key %x", ErrCorruptRecord, c.Key())
	}
	return start, nil
}

func (a allocator) bumpCounter(tx *tuplekv.Tx, start int64) (int64, error) {
	key := a.counters.Pack(tuple.Tuple{start})
	var count int64
	if raw := tx.Get(key); raw != nil {
		if len(raw) != 8 {
			return 0, fmt.Errorf("%w: allocator counter is %d bytes, wanted 8", ErrCorruptRecord, len(raw))
		}
		count = int64(binary.LittleEndian.Uint64(raw))
	}
	count++
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(count))
	return count, tx.Set(key, buf[:])
}

// advanceTo clears counters and used-integer markers below the new window
// start.
func (a allocator) advanceTo(tx *tuplekv.Tx, start int64) error {
	begin, _ := a.counters.Range()
	if err := tx.ClearRange(begin, a.counters.Pack(tuple.Tuple{start})); err != nil {
		return err
	}
	begin, _ = a.recent.Range()
	return tx.ClearRange(begin, a.recent.Pack(tuple.Tuple{start}))
}
