package tuplekv

import (
	"path/filepath"
	"testing"

	"github.com/andreyvit/tuplekv/subspace"
	"github.com/andreyvit/tuplekv/tuple"
)

func TestCommitVersion(t *testing.T) {
	forEachDB(t, func(t *testing.T, db *DB) {
		if v := db.CommitVersion(); v != 0 {
			t.Fatalf("CommitVersion of a fresh store = %d, wanted 0", v)
		}

		db.Write(func(tx *Tx) { ensure(tx.Set([]byte("a"), []byte("1"))) })
		deepEqual(t, db.CommitVersion(), uint64(1))

		db.Write(func(tx *Tx) { ensure(tx.Set([]byte("b"), []byte("2"))) })
		deepEqual(t, db.CommitVersion(), uint64(2))

		// a committed transaction without writes does not consume a version
		db.Write(func(tx *Tx) { _ = tx.Get([]byte("a")) })
		deepEqual(t, db.CommitVersion(), uint64(2))

		db.Write(func(tx *Tx) { ensure(tx.Clear([]byte("a"))) })
		deepEqual(t, db.CommitVersion(), uint64(3))

		// neither does a rolled back one
		tx := db.BeginUpdate()
		ensure(tx.Set([]byte("c"), []byte("3")))
		tx.Close()
		deepEqual(t, db.CommitVersion(), uint64(3))
	})
}

func TestCommittedVersion(t *testing.T) {
	db := setup(t)

	tx := db.BeginUpdate()
	if _, ok := tx.CommittedVersion(); ok {
		t.Fatalf("CommittedVersion reports ok before commit")
	}
	ensure(tx.Set([]byte("k"), []byte("v")))
	ensure(tx.Commit())
	vs, ok := tx.CommittedVersion()
	if !ok || vs.TransactionVersion != 1 || vs.BatchNumber != 0 || vs.UserVersion != 0 {
		t.Fatalf("CommittedVersion = (%v, %v), wanted (@1/0/0, true)", vs, ok)
	}
	tx.Close()

	// non-mutating commits are not assigned a version
	tx = db.BeginUpdate()
	ensure(tx.Commit())
	if _, ok := tx.CommittedVersion(); ok {
		t.Fatalf("CommittedVersion of a non-mutating commit reports ok")
	}
	tx.Close()
}

func TestCommitVersionPersistence(t *testing.T) {
	for _, backend := range []Backend{BackendBolt, BackendPebble} {
		t.Run(string(backend), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "test.db")
			opt := Options{Backend: backend, IsTesting: true}

			db := must(Open(path, opt))
			db.Write(func(tx *Tx) { ensure(tx.Set([]byte("a"), []byte("1"))) })
			db.Write(func(tx *Tx) { ensure(tx.Set([]byte("b"), []byte("2"))) })
			deepEqual(t, db.CommitVersion(), uint64(2))
			db.Close()

			db = must(Open(path, opt))
			deepEqual(t, db.CommitVersion(), uint64(2))
			db.Write(func(tx *Tx) { ensure(tx.Set([]byte("c"), []byte("3"))) })
			deepEqual(t, db.CommitVersion(), uint64(3))
			db.Close()
		})
	}
}

func TestSetVersionstampedKey(t *testing.T) {
	forEachDB(t, func(t *testing.T, db *DB) {
		logss := subspace.Sub("log")
		key1 := must(logss.PackWithVersionstamp(tuple.Tuple{tuple.IncompleteVersionstamp{UserVersion: 7}}))

		tx := db.BeginUpdate()
		ensure(tx.SetVersionstampedKey(key1, []byte("first")))
		// deferred writes are not visible inside the transaction
		if c := tx.ScanSubspace(logss); c.Next() {
			t.Fatalf("deferred versionstamped write visible before commit: %x", c.Key())
		}
		ensure(tx.Commit())
		vs, ok := tx.CommittedVersion()
		if !ok {
			t.Fatalf("CommittedVersion reports no version after a versionstamped write")
		}
		tx.Close()

		db.Read(func(tx *Tx) {
			c := tx.ScanSubspace(logss)
			if !c.Next() {
				t.Fatalf("no keys under the log subspace after commit")
			}
			tup := must(logss.Unpack(c.Key()))
			got := tup[0].(tuple.Versionstamp)
			deepEqual(t, got, tuple.Versionstamp{TransactionVersion: vs.TransactionVersion, UserVersion: 7})
			deepEqual(t, string(c.Value()), "first")
			if c.Next() {
				t.Fatalf("unexpected extra key: %x", c.Key())
			}
		})

		// versions increase from one transaction to the next, so later
		// writes sort after earlier ones
		key2 := must(logss.PackWithVersionstamp(tuple.Tuple{tuple.IncompleteVersionstamp{}}))
		db.Write(func(tx *Tx) { ensure(tx.SetVersionstampedKey(key2, []byte("second"))) })

		db.Read(func(tx *Tx) {
			var values []string
			for c := tx.ScanSubspace(logss); c.Next(); {
				values = append(values, string(c.Value()))
			}
			deepEqual(t, values, []string{"first", "second"})
		})
	})
}

func TestSetVersionstampedKey_UserVersionOrdersWithinTx(t *testing.T) {
	db := setup(t)
	q := subspace.Sub("q")
	k0 := must(q.PackWithVersionstamp(tuple.Tuple{tuple.IncompleteVersionstamp{UserVersion: 0}}))
	k1 := must(q.PackWithVersionstamp(tuple.Tuple{tuple.IncompleteVersionstamp{UserVersion: 1}}))

	db.Write(func(tx *Tx) {
		ensure(tx.SetVersionstampedKey(k1, []byte("b")))
		ensure(tx.SetVersionstampedKey(k0, []byte("a")))
	})

	db.Read(func(tx *Tx) {
		var values []string
		for c := tx.ScanSubspace(q); c.Next(); {
			tup := must(q.Unpack(c.Key()))
			vs := tup[0].(tuple.Versionstamp)
			if vs.TransactionVersion != db.CommitVersion() {
				t.Fatalf("stamped key carries version %d, last commit is %d", vs.TransactionVersion, db.CommitVersion())
			}
			values = append(values, string(c.Value()))
		}
		deepEqual(t, values, []string{"a", "b"})
	})
}

func TestSetVersionstampedValue(t *testing.T) {
	db := setup(t)
	buf := must(tuple.Tuple{"watermark", tuple.IncompleteVersionstamp{}}.PackWithVersionstamp(nil))

	db.Write(func(tx *Tx) {
		ensure(tx.SetVersionstampedValue([]byte("meta"), buf))
		isnilbytes(t, tx.Get([]byte("meta"))) // deferred until commit
	})

	db.Read(func(tx *Tx) {
		tup := must(tuple.Unpack(tx.Get([]byte("meta"))))
		deepEqual(t, tup[0].(string), "watermark")
		deepEqual(t, tup[1].(tuple.Versionstamp), tuple.Versionstamp{TransactionVersion: db.CommitVersion()})
	})
}

func TestVersionstampedOpErrors(t *testing.T) {
	db := setup(t)
	db.Write(func(tx *Tx) {
		// no trailer at all
		iserr(t, tx.SetVersionstampedKey([]byte("plain key"), nil), ErrMissingTrailer)
		// a complete pack has no trailer either
		iserr(t, tx.SetVersionstampedKey(tuple.Tuple{"a", int64(1)}.Pack(), nil), ErrMissingTrailer)
		iserr(t, tx.SetVersionstampedValue([]byte("k"), tuple.Tuple{"a"}.Pack()), ErrMissingTrailer)

		// a stamped key cannot land in the system keyspace
		sys := subspace.FromBytes([]byte{0xFF})
		key := must(sys.PackWithVersionstamp(tuple.Tuple{tuple.IncompleteVersionstamp{}}))
		iserr(t, tx.SetVersionstampedKey(key, nil), ErrSystemKey)

		// key checks still apply to the fixed key of a stamped value
		vbuf := must(tuple.Tuple{tuple.IncompleteVersionstamp{}}.PackWithVersionstamp(nil))
		iserr(t, tx.SetVersionstampedValue(nil, vbuf), ErrEmptyKey)
		iserr(t, tx.SetVersionstampedValue([]byte("\xffk"), vbuf), ErrSystemKey)
	})
}
