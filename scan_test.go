package tuplekv

import (
	"encoding/hex"
	"log/slog"
	"testing"

	"github.com/andreyvit/tuplekv/tuple"
)

func TestRawScan(t *testing.T) {
	var (
		kb = x("10 12 14 40 44 47")
		k1 = x("10 12 14 40 44 48")
		k2 = x("10 12 14 40 44 49")
		k3 = x("10 12 14 40 44 50")
		k4 = x("10 12 14 40 44 51")
		ke = x("10 12 14 40 44 52")
		p  = x("10 12 14")
	)
	db := setup(t)
	db.Write(func(tx *Tx) {
		ensure(tx.Set(k1, []byte{1}))
		ensure(tx.Set(k2, []byte{2}))
		ensure(tx.Set(k3, []byte{3}))
		ensure(tx.Set(k4, []byte{4}))
	})

	o := func(name string, rang RawRange, exp ...[]byte) {
		t.Helper()
		t.Run(name, func(t *testing.T) {
			db.Read(func(tx *Tx) {
				slog.Debug(t.Name())
				scanKeys(t, tx, rang, exp...)
			})
		})
	}

	o("prefix", RawRange{Prefix: p}, k1, k2, k3, k4)
	o("prefix reverse", RawRange{Prefix: p, Reverse: true}, k4, k3, k2, k1)

	o("prefix + lower inc", RawRange{Prefix: p, Lower: k2, LowerInc: true}, k2, k3, k4)
	o("prefix + lower exc", RawRange{Prefix: p, Lower: k2, LowerInc: false}, k3, k4)
	o("prefix + lower inc reverse", RawRange{Prefix: p, Lower: k2, LowerInc: true, Reverse: true}, k4, k3, k2)
	o("prefix + lower exc reverse", RawRange{Prefix: p, Lower: k2, LowerInc: false, Reverse: true}, k4, k3)
	o("prefix + upper inc", RawRange{Prefix: p, Upper: k3, UpperInc: true}, k1, k2, k3)
	o("prefix + upper exc", RawRange{Prefix: p, Upper: k3, UpperInc: false}, k1, k2)
	o("prefix + upper inc reverse", RawRange{Prefix: p, Upper: k3, UpperInc: true, Reverse: true}, k3, k2, k1)
	o("prefix + upper exc reverse", RawRange{Prefix: p, Upper: k3, UpperInc: false, Reverse: true}, k2, k1)

	o("lower inc", RawRange{Lower: k2, LowerInc: true}, k2, k3, k4)
	o("lower exc", RawRange{Lower: k2, LowerInc: false}, k3, k4)
	o("lower inc reverse", RawRange{Lower: k2, LowerInc: true, Reverse: true}, k4, k3, k2)
	o("lower exc reverse", RawRange{Lower: k2, LowerInc: false, Reverse: true}, k4, k3)

	o("upper inc", RawRange{Upper: k3, UpperInc: true}, k1, k2, k3)
	o("upper exc", RawRange{Upper: k3, UpperInc: false}, k1, k2)
	o("upper inc reverse", RawRange{Upper: k3, UpperInc: true, Reverse: true}, k3, k2, k1)
	o("upper exc reverse", RawRange{Upper: k3, UpperInc: false, Reverse: true}, k2, k1)

	o("first lower inc", RawRange{Lower: kb, LowerInc: true}, k1, k2, k3, k4)
	o("first lower exc", RawRange{Lower: kb, LowerInc: false}, k1, k2, k3, k4)
	o("first lower inc reverse", RawRange{Lower: kb, LowerInc: true, Reverse: true}, k4, k3, k2, k1)
	o("first lower exc reverse", RawRange{Lower: kb, LowerInc: false, Reverse: true}, k4, k3, k2, k1)

	o("last upper inc", RawRange{Upper: ke, UpperInc: true}, k1, k2, k3, k4)
	o("last upper exc", RawRange{Upper: ke, UpperInc: false}, k1, k2, k3, k4)
	o("last upper inc reverse", RawRange{Upper: ke, UpperInc: true, Reverse: true}, k4, k3, k2, k1)
	o("last upper exc reverse", RawRange{Upper: ke, UpperInc: false, Reverse: true}, k4, k3, k2, k1)
}

func TestScanSkipsSystemKeys(t *testing.T) {
	forEachDB(t, func(t *testing.T, db *DB) {
		db.Write(func(tx *Tx) {
			ensure(tx.Set([]byte("a"), []byte("1")))
			ensure(tx.Set([]byte("z"), []byte("2")))
		})

		// the version key now exists in storage but stays invisible
		db.Read(func(tx *Tx) {
			scanKeys(t, tx, RawOO(), []byte("a"), []byte("z"))
			scanKeys(t, tx, RawOO().Reversed(), []byte("z"), []byte("a"))
			// explicit bounds reaching into the system keyspace are clamped
			scanKeys(t, tx, RawIE([]byte("z"), []byte("\xff\xff")), []byte("z"))
			scanKeys(t, tx, RawPrefix([]byte{0xFF}))
			scanKeys(t, tx, RawPrefix([]byte{0xFF}).Reversed())
			scanKeys(t, tx, RawPrefix([]byte("\xffvers")))
		})
	})
}

func TestScanReversePrefixEndingInFF(t *testing.T) {
	// 255 packs as {0x15, 0xFF}: computing the prefix successor by wrapping
	// the trailing byte instead of truncating it would start the reverse
	// scan in the wrong place
	forEachDB(t, func(t *testing.T, db *DB) {
		ka := tuple.Tuple{int64(255)}.Pack()
		kb := tuple.Tuple{int64(255), int64(1)}.Pack()
		kc := tuple.Tuple{int64(256)}.Pack()
		db.Write(func(tx *Tx) {
			ensure(tx.Set(ka, []byte("a")))
			ensure(tx.Set(kb, []byte("b")))
			ensure(tx.Set(kc, []byte("c")))
		})

		db.Read(func(tx *Tx) {
			prefix := tuple.Tuple{int64(255)}.Pack()
			scanKeys(t, tx, RawPrefix(prefix).Reversed(), kb, ka)
			scanKeys(t, tx, RawPrefix(prefix), ka, kb)
		})
	})
}

func TestScanBoundExtensions(t *testing.T) {
	// keys strictly extending a bound sort above it and must respect it in
	// both directions
	db := setup(t)
	db.Write(func(tx *Tx) {
		for _, k := range [][]byte{x("10"), x("10 00 00"), x("11")} {
			ensure(tx.Set(k, []byte{1}))
		}
	})

	db.Read(func(tx *Tx) {
		scanKeys(t, tx, RawOI(x("10 00")), x("10"))
		scanKeys(t, tx, RawOE(x("10 00")), x("10"))
		scanKeys(t, tx, RawOI(x("10 00")).Reversed(), x("10"))
		scanKeys(t, tx, RawOE(x("10 00")).Reversed(), x("10"))

		// an exclusive lower bound excludes only the exact key
		scanKeys(t, tx, RawEO(x("10 00")), x("10 00 00"), x("11"))
		scanKeys(t, tx, RawEO(x("10")), x("10 00 00"), x("11"))
	})
}

func TestRawRangeCursor_BoundsPrefixAndReverse(t *testing.T) {
	stg := newMemStorage()
	wtx := must(stg.BeginTx(true))
	ensure(wtx.Put([]byte{0x10, 0x01}, []byte("a")))
	ensure(wtx.Put([]byte{0x10, 0x02}, []byte("b")))
	ensure(wtx.Put([]byte{0x10, 0x03}, []byte("c")))
	ensure(wtx.Put([]byte{0x11, 0x01}, []byte("x")))
	ensure(wtx.Commit())

	rtx := must(stg.BeginTx(false))
	defer rtx.Rollback()
	logger := slog.Default()

	{
		cur := (&RawRange{Prefix: []byte{0x10}}).newCursor(rtx.Cursor(), logger)
		var got []string
		for cur.Next() {
			got = append(got, string(cur.Value()))
		}
		if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
			t.Fatalf("prefix scan values = %v, wanted [a b c]", got)
		}
	}

	{
		cur := (&RawRange{Prefix: []byte{0x10}, Reverse: true}).newCursor(rtx.Cursor(), logger)
		var got []string
		for cur.Next() {
			got = append(got, string(cur.Value()))
		}
		if len(got) != 3 || got[0] != "c" || got[1] != "b" || got[2] != "a" {
			t.Fatalf("prefix reverse scan values = %v, wanted [c b a]", got)
		}
	}

	{
		cur := (&RawRange{Lower: []byte{0x10, 0x01}, LowerInc: false}).newCursor(rtx.Cursor(), logger)
		if !cur.Next() || string(cur.Value()) != "b" {
			t.Fatalf("lower exclusive start = %q, wanted b", cur.Value())
		}
	}

	{
		cur := (&RawRange{Upper: []byte{0x10, 0x03}, UpperInc: false, Reverse: true}).newCursor(rtx.Cursor(), logger)
		if !cur.Next() || string(cur.Value()) != "b" {
			t.Fatalf("upper exclusive reverse start = %q, wanted b", cur.Value())
		}
	}
}

func TestRawRangeCursor_PrefixMismatchPanics(t *testing.T) {
	stg := newMemStorage()
	wtx := must(stg.BeginTx(true))
	ensure(wtx.Put([]byte{0x10}, []byte("a")))
	ensure(wtx.Commit())

	rtx := must(stg.BeginTx(false))
	defer rtx.Rollback()
	logger := slog.Default()

	assertPanics(t, func() {
		cur := (&RawRange{Prefix: []byte{0x10}, Lower: []byte{0x11}, LowerInc: true}).newCursor(rtx.Cursor(), logger)
		_ = cur.Next()
	})
	assertPanics(t, func() {
		cur := (&RawRange{Prefix: []byte{0x10}, Upper: []byte{0x11}, UpperInc: true, Reverse: true}).newCursor(rtx.Cursor(), logger)
		_ = cur.Next()
	})
}

func TestRawRange_ConstructorsAndModifiers(t *testing.T) {
	l := []byte{1}
	u := []byte{2}

	_ = RawOO()
	_ = RawIO(l)
	_ = RawEO(l)
	_ = RawOI(u)
	_ = RawOE(u)
	_ = RawII(l, u)
	_ = RawIE(l, u)
	_ = RawEI(l, u)
	_ = RawEE(l, u)

	r := RawPrefix([]byte{9})
	if r.Prefix == nil || len(r.Prefix) != 1 || r.Prefix[0] != 9 {
		t.Fatalf("RawPrefix returned unexpected range: %+v", r)
	}
	r2 := r.Prefixed([]byte{8}).Reversed()
	if !r2.Reverse || len(r2.Prefix) != 1 || r2.Prefix[0] != 8 {
		t.Fatalf("Prefixed/Reversed returned unexpected range: %+v", r2)
	}
}

func assertPanics(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	fn()
}

func scanKeys(t testing.TB, tx *Tx, rang RawRange, exp ...[]byte) {
	t.Helper()
	var out []string
	for c := tx.Scan(rang); c.Next(); {
		out = append(out, hex.EncodeToString(c.Key()))
	}
	var expstr []string
	for _, k := range exp {
		expstr = append(expstr, hex.EncodeToString(k))
	}
	deepEqual(t, out, expstr)
}
