package tuplekv

import (
	"bytes"
	"slices"

	"go.etcd.io/bbolt"
)

// All data lives in a single root bucket: the store's keyspace is flat, and
// scoping is the tuple layer's job.
var boltDataBucket = []byte("kv")

type boltStorage struct {
	bdb *bbolt.DB
}

func newBoltStorage(bdb *bbolt.DB) (storage, error) {
	err := bdb.Update(func(btx *bbolt.Tx) error {
		_, err := btx.CreateBucketIfNotExists(boltDataBucket)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &boltStorage{bdb: bdb}, nil
}

func (s *boltStorage) BeginTx(writable bool) (storageTx, error) {
	btx, err := s.bdb.Begin(writable)
	if err != nil {
		return nil, err
	}
	return &boltTx{btx: btx, b: btx.Bucket(boltDataBucket)}, nil
}

func (s *boltStorage) Close() error {
	return s.bdb.Close()
}

type boltTx struct {
	btx *bbolt.Tx
	b   *bbolt.Bucket
}

func (tx *boltTx) Writable() bool { return tx.btx.Writable() }

func (tx *boltTx) Get(key []byte) []byte { return tx.b.Get(key) }

func (tx *boltTx) Put(key, value []byte) error {
	if !tx.btx.Writable() {
		return ErrReadOnlyTx
	}
	return tx.b.Put(key, value)
}

func (tx *boltTx) Delete(key []byte) error {
	if !tx.btx.Writable() {
		return ErrReadOnlyTx
	}
	return tx.b.Delete(key)
}

func (tx *boltTx) DeleteRange(begin, end []byte) error {
	if !tx.btx.Writable() {
		return ErrReadOnlyTx
	}
	// collect first: Bolt pages may shift under a cursor that deletes
	var doomed [][]byte
	c := tx.b.Cursor()
	for k, _ := c.Seek(begin); k != nil; k, _ = c.Next() {
		if end != nil && bytes.Compare(k, end) >= 0 {
			break
		}
		doomed = append(doomed, slices.Clone(k))
	}
	for _, k := range doomed {
		if err := tx.b.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

func (tx *boltTx) Cursor() storageCursor { return boltCursor{c: tx.b.Cursor()} }

func (tx *boltTx) Commit() error {
	if !tx.btx.Writable() {
		return ErrReadOnlyTx
	}
	return tx.btx.Commit()
}

func (tx *boltTx) Rollback() error {
	err := tx.btx.Rollback()
	if err == bbolt.ErrTxClosed {
		return nil
	}
	return err
}

func (tx *boltTx) Size() int64 { return tx.btx.Size() }

type boltCursor struct {
	c *bbolt.Cursor
}

func (c boltCursor) First() ([]byte, []byte) { return c.c.First() }

func (c boltCursor) Last() ([]byte, []byte) { return c.c.Last() }

func (c boltCursor) Seek(seek []byte) ([]byte, []byte) { return c.c.Seek(seek) }

func (c boltCursor) SeekLast(prefix []byte) ([]byte, []byte) {
	succ := prefixSuccessor(prefix)
	if succ == nil {
		// All-0xFF prefix (or empty): every key past the prefix starts
		// with it, so the overall last key satisfies the contract.
		return c.c.Last()
	}
	k, _ := c.c.Seek(succ)
	if k == nil {
		return c.c.Last()
	}
	return c.c.Prev()
}

func (c boltCursor) Next() ([]byte, []byte) { return c.c.Next() }

func (c boltCursor) Prev() ([]byte, []byte) { return c.c.Prev() }
