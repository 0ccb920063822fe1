package tuplekv

import (
	"bytes"
	"errors"
	"io"
	"slices"
	"sync"

	"github.com/cockroachdb/pebble"
)

type pebbleStorage struct {
	pdb    *pebble.DB
	wo     *pebble.WriteOptions
	mu     sync.Mutex
	cond   *sync.Cond
	closed bool
	writer bool
}

func newPebbleStorage(path string, noSync bool) (storage, error) {
	pdb, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	s := &pebbleStorage{pdb: pdb, wo: pebble.Sync}
	if noSync {
		s.wo = pebble.NoSync
	}
	s.cond = sync.NewCond(&s.mu)
	return s, nil
}

func (s *pebbleStorage) BeginTx(writable bool) (storageTx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if !writable {
		return &pebbleTx{stg: s, snap: s.pdb.NewSnapshot()}, nil
	}
	// Pebble runs batches concurrently, but the store's commit protocol
	// requires a single writer.
	for s.writer && !s.closed {
		s.cond.Wait()
	}
	if s.closed {
		return nil, ErrClosed
	}
	s.writer = true
	return &pebbleTx{stg: s, batch: s.pdb.NewIndexedBatch()}, nil
}

func (s *pebbleStorage) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()
	return s.pdb.Close()
}

// pebbleTx is either a writable transaction over an indexed batch or a
// read-only transaction over a snapshot.
type pebbleTx struct {
	stg    *pebbleStorage
	batch  *pebble.Batch
	snap   *pebble.Snapshot
	iters  []*pebble.Iterator
	closed bool
}

func (tx *pebbleTx) Writable() bool { return tx.batch != nil }

func (tx *pebbleTx) Get(key []byte) []byte {
	var value []byte
	var closer io.Closer
	var err error
	if tx.batch != nil {
		value, closer, err = tx.batch.Get(key)
	} else {
		value, closer, err = tx.snap.Get(key)
	}
	if errors.Is(err, pebble.ErrNotFound) {
		return nil
	}
	ensure(err)
	out := slices.Clone(value)
	ensure(closer.Close())
	return out
}

func (tx *pebbleTx) Put(key, value []byte) error {
	if tx.batch == nil {
		return ErrReadOnlyTx
	}
	return tx.batch.Set(key, value, nil)
}

func (tx *pebbleTx) Delete(key []byte) error {
	if tx.batch == nil {
		return ErrReadOnlyTx
	}
	return tx.batch.Delete(key, nil)
}

func (tx *pebbleTx) DeleteRange(begin, end []byte) error {
	if tx.batch == nil {
		return ErrReadOnlyTx
	}
	if end == nil {
		// DeleteRange needs an explicit upper bound; delete the last key
		// separately.
		it, err := tx.batch.NewIter(&pebble.IterOptions{})
		if err != nil {
			return err
		}
		var last []byte
		if it.Last() {
			last = slices.Clone(it.Key())
		}
		if err := it.Close(); err != nil {
			return err
		}
		if last == nil || bytes.Compare(last, begin) < 0 {
			return nil
		}
		if bytes.Compare(begin, last) < 0 {
			if err := tx.batch.DeleteRange(begin, last, nil); err != nil {
				return err
			}
		}
		return tx.batch.Delete(last, nil)
	}
	return tx.batch.DeleteRange(begin, end, nil)
}

func (tx *pebbleTx) Cursor() storageCursor {
	var it *pebble.Iterator
	var err error
	if tx.batch != nil {
		it, err = tx.batch.NewIter(&pebble.IterOptions{})
	} else {
		it, err = tx.snap.NewIter(&pebble.IterOptions{})
	}
	ensure(err)
	tx.iters = append(tx.iters, it)
	return &pebbleCursor{it: it}
}

func (tx *pebbleTx) Commit() error {
	if tx.batch == nil {
		return ErrReadOnlyTx
	}
	if tx.closed {
		return nil
	}
	tx.closeIters()
	err := tx.batch.Commit(tx.stg.wo)
	tx.release()
	if cerr := tx.batch.Close(); err == nil {
		err = cerr
	}
	return err
}

func (tx *pebbleTx) Rollback() error {
	if tx.closed {
		return nil
	}
	tx.closeIters()
	var err error
	if tx.batch != nil {
		err = tx.batch.Close()
	} else {
		err = tx.snap.Close()
	}
	tx.release()
	return err
}

func (tx *pebbleTx) Size() int64 { return 0 }

func (tx *pebbleTx) closeIters() {
	for _, it := range tx.iters {
		_ = it.Close()
	}
	tx.iters = nil
}

func (tx *pebbleTx) release() {
	tx.closed = true
	if tx.batch != nil {
		tx.stg.mu.Lock()
		tx.stg.writer = false
		tx.stg.cond.Broadcast()
		tx.stg.mu.Unlock()
	}
}

type pebbleCursor struct {
	it *pebble.Iterator
}

func (c *pebbleCursor) First() ([]byte, []byte) { return pebblePos(c.it, c.it.First()) }

func (c *pebbleCursor) Last() ([]byte, []byte) { return pebblePos(c.it, c.it.Last()) }

func (c *pebbleCursor) Seek(seek []byte) ([]byte, []byte) {
	return pebblePos(c.it, c.it.SeekGE(seek))
}

func (c *pebbleCursor) SeekLast(prefix []byte) ([]byte, []byte) {
	succ := prefixSuccessor(prefix)
	if succ == nil {
		return c.Last()
	}
	return pebblePos(c.it, c.it.SeekLT(succ))
}

func (c *pebbleCursor) Next() ([]byte, []byte) { return pebblePos(c.it, c.it.Next()) }

func (c *pebbleCursor) Prev() ([]byte, []byte) { return pebblePos(c.it, c.it.Prev()) }

func pebblePos(it *pebble.Iterator, valid bool) ([]byte, []byte) {
	if !valid {
		return nil, nil
	}
	return it.Key(), it.Value()
}
