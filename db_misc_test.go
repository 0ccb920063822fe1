package tuplekv

import (
	"strings"
	"testing"
	"time"
)

func TestDescribeOpenTxns(t *testing.T) {
	db := setup(t)

	if got := db.DescribeOpenTxns(); !strings.Contains(got, "NO OPEN TRANSACTIONS") {
		t.Fatalf("DescribeOpenTxns() = %q, wanted NO OPEN TRANSACTIONS", got)
	}

	rtx := db.BeginRead()
	desc := db.DescribeOpenTxns()
	if !strings.Contains(desc, "1 OPEN TRANSACTIONS") {
		t.Fatalf("DescribeOpenTxns() missing expected text, got: %q", desc)
	}

	// old transactions are listed with the stack that opened them
	time.Sleep(120 * time.Millisecond)
	desc = db.DescribeOpenTxns()
	if !strings.Contains(desc, "goroutine") {
		t.Fatalf("DescribeOpenTxns() missing origin stack for an old transaction, got: %q", desc)
	}

	rtx.Close()
	if got := db.DescribeOpenTxns(); !strings.Contains(got, "NO OPEN TRANSACTIONS") {
		t.Fatalf("DescribeOpenTxns() = %q, wanted NO OPEN TRANSACTIONS", got)
	}
}

func TestMonitoringCounters(t *testing.T) {
	db := setup(t)

	db.Read(func(tx *Tx) {
		if got := db.ReaderCount.Load(); got != 1 {
			t.Fatalf("ReaderCount inside Read = %d, wanted 1", got)
		}
	})
	if got := db.ReaderCount.Load(); got != 0 {
		t.Fatalf("ReaderCount after Read = %d, wanted 0", got)
	}
	if got := db.ReadCount.Load(); got != 1 {
		t.Fatalf("ReadCount = %d, wanted 1", got)
	}

	db.Write(func(tx *Tx) {
		if got := db.WriterCount.Load(); got != 1 {
			t.Fatalf("WriterCount inside Write = %d, wanted 1", got)
		}
		ensure(tx.Set([]byte("k"), []byte("v")))
	})
	if got := db.WriterCount.Load(); got != 0 {
		t.Fatalf("WriterCount after Write = %d, wanted 0", got)
	}
	if got := db.WriteCount.Load(); got != 1 {
		t.Fatalf("WriteCount = %d, wanted 1", got)
	}
}

func TestDBSize(t *testing.T) {
	db := setup(t)
	db.Write(func(tx *Tx) {
		ensure(tx.Set([]byte("k"), []byte("v")))
	})
	if got := db.Size(); got <= 0 {
		t.Fatalf("Size() = %d, wanted > 0 after a write", got)
	}
}

func TestDumpFlagsAndDump(t *testing.T) {
	db := setup(t)
	db.Write(func(tx *Tx) {
		ensure(tx.Set(x("02 75 73 65 72 73 00 15 01"), []byte("alice"))) // ("users", 1)
		ensure(tx.Set(x("dead"), []byte{0xBE, 0xEF}))
	})

	if !DumpStats.Contains(DumpStats) || DumpStats.Contains(DumpUserKeys) {
		t.Fatalf("DumpFlags.Contains returned unexpected results")
	}

	db.Read(func(tx *Tx) {
		out := tx.Dump(DumpAll)
		for _, want := range []string{
			"stats: user_keys = 2, system_keys = 1",
			"== data ",
			"== system ",
			`("users", 1)`, // tuple keys decode
			"616c696365",
			"dead",    // non-tuple keys fall back to hex
			"version", // the system section shows the version key
		} {
			if !strings.Contains(out, want) {
				t.Fatalf("Dump output missing %q; got:\n%s", want, out)
			}
		}

		out = tx.Dump(DumpUserKeys)
		if strings.Contains(out, "== system ") || strings.Contains(out, "stats:") {
			t.Fatalf("Dump(DumpUserKeys) included extra sections:\n%s", out)
		}
	})
}

func TestRpadf(t *testing.T) {
	got := rpadf('.', "%s", "x")
	if len(got) != 80 || !strings.HasPrefix(got, "x") {
		t.Fatalf("rpadf returned %q (len=%d), wanted len=80 and prefix x", got, len(got))
	}
}
