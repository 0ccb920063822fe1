package directory

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/andreyvit/tuplekv"
	"github.com/andreyvit/tuplekv/subspace"
)

func TestWindowSize(t *testing.T) {
	require.EqualValues(t, 64, windowSize(0))
	require.EqualValues(t, 64, windowSize(254))
	require.EqualValues(t, 1024, windowSize(255))
	require.EqualValues(t, 1024, windowSize(65534))
	require.EqualValues(t, 8192, windowSize(65535))
}

func TestAllocatorNeverRepeats(t *testing.T) {
	db := open(t, tuplekv.BackendMemory)
	a := newAllocator(subspace.Sub("hca"))

	seen := make(map[int64]bool)
	update(t, db, func(tx *tuplekv.Tx) {
		for i := 0; i < 300; i++ {
			n, err := a.allocate(tx)
			require.NoError(t, err)
			require.False(t, seen[n], "%d allocated twice", n)
			require.GreaterOrEqual(t, n, int64(0))
			seen[n] = true
		}
	})

	// Windows retire as they half-fill, so exactly one counter survives.
	read(t, db, func(tx *tuplekv.Tx) {
		var counters int
		for c := tx.ScanSubspace(a.counters); c.Next(); {
			counters++
		}
		require.Equal(t, 1, counters)
	})
}

func TestAllocatorStatePersistsAcrossTxns(t *testing.T) {
	db := open(t, tuplekv.BackendMemory)
	a := newAllocator(subspace.Sub("hca"))

	seen := make(map[int64]bool)
	for round := 0; round < 10; round++ {
		update(t, db, func(tx *tuplekv.Tx) {
			for i := 0; i < 20; i++ {
				n, err := a.allocate(tx)
				require.NoError(t, err)
				require.False(t, seen[n], "%d allocated twice", n)
				seen[n] = true
			}
		})
	}
	require.Len(t, seen, 200)
}

func TestAllocatedDirectoryPrefixesAreUnique(t *testing.T) {
	db := open(t, tuplekv.BackendMemory)
	l := New()

	prefixes := make(map[string]bool)
	update(t, db, func(tx *tuplekv.Tx) {
		for i := 0; i < 100; i++ {
			dir, err := l.Create(tx, []string{"d", fmt.Sprintf("%03d", i)}, nil)
			require.NoError(t, err)
			p := string(dir.Bytes())
			require.False(t, prefixes[p], "prefix %x handed out twice", p)
			prefixes[p] = true
		}
	})
}
