package tuplekv

import (
	"bytes"
	"slices"
	"sort"
	"sync"
)

type memStorage struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []memKV // sorted by key
	closed bool
	writer bool
}

// newMemStorage returns a transient in-memory storage implementation,
// intended for tests and throwaway stores.
func newMemStorage() storage {
	s := &memStorage{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

type memKV struct {
	key   []byte
	value []byte
}

func (s *memStorage) BeginTx(writable bool) (storageTx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if writable {
		for s.writer && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			return nil, ErrClosed
		}
		s.writer = true
	}

	// Snapshot everything for transactional isolation (simplicity over
	// efficiency).
	snap := make([]memKV, len(s.items))
	for i, kv := range s.items {
		snap[i] = memKV{key: slices.Clone(kv.key), value: slices.Clone(kv.value)}
	}

	return &memTx{base: s, writable: writable, items: snap}, nil
}

func (s *memStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.items = nil
	if s.cond != nil {
		s.cond.Broadcast()
	}
	return nil
}

type memTx struct {
	base     *memStorage
	writable bool
	items    []memKV
	closed   bool
}

func (tx *memTx) Writable() bool { return tx.writable }

func (tx *memTx) closeLocked() {
	if tx.closed {
		return
	}
	tx.closed = true
	if tx.writable {
		tx.base.writer = false
		tx.base.cond.Broadcast()
	}
}

func (tx *memTx) find(key []byte) (idx int, ok bool) {
	i := sort.Search(len(tx.items), func(i int) bool {
		return bytes.Compare(tx.items[i].key, key) >= 0
	})
	if i < len(tx.items) && bytes.Equal(tx.items[i].key, key) {
		return i, true
	}
	return i, false
}

func (tx *memTx) Get(key []byte) []byte {
	i, ok := tx.find(key)
	if !ok {
		return nil
	}
	return tx.items[i].value
}

func (tx *memTx) Put(key, value []byte) error {
	if !tx.writable {
		return ErrReadOnlyTx
	}
	key = slices.Clone(key)
	value = slices.Clone(value)

	i, ok := tx.find(key)
	if ok {
		tx.items[i].value = value
		return nil
	}
	tx.items = slices.Insert(tx.items, i, memKV{key: key, value: value})
	return nil
}

func (tx *memTx) Delete(key []byte) error {
	if !tx.writable {
		return ErrReadOnlyTx
	}
	i, ok := tx.find(key)
	if !ok {
		return nil
	}
	tx.items = slices.Delete(tx.items, i, i+1)
	return nil
}

func (tx *memTx) DeleteRange(begin, end []byte) error {
	if !tx.writable {
		return ErrReadOnlyTx
	}
	lo := sort.Search(len(tx.items), func(i int) bool {
		return bytes.Compare(tx.items[i].key, begin) >= 0
	})
	hi := len(tx.items)
	if end != nil {
		hi = sort.Search(len(tx.items), func(i int) bool {
			return bytes.Compare(tx.items[i].key, end) >= 0
		})
	}
	if lo < hi {
		tx.items = slices.Delete(tx.items, lo, hi)
	}
	return nil
}

func (tx *memTx) Cursor() storageCursor {
	return &memCursor{tx: tx, pos: -1}
}

func (tx *memTx) Commit() error {
	if tx.closed {
		return nil
	}
	if !tx.writable {
		return ErrReadOnlyTx
	}
	tx.base.mu.Lock()
	defer tx.base.mu.Unlock()
	if tx.base.closed {
		tx.closeLocked()
		return ErrClosed
	}
	tx.base.items = tx.items
	tx.closeLocked()
	return nil
}

func (tx *memTx) Rollback() error {
	tx.base.mu.Lock()
	defer tx.base.mu.Unlock()
	tx.closeLocked()
	return nil
}

func (tx *memTx) Size() int64 {
	var n int64
	for _, kv := range tx.items {
		n += int64(len(kv.key) + len(kv.value))
	}
	return n
}

type memCursor struct {
	tx  *memTx
	pos int
}

func (c *memCursor) First() ([]byte, []byte) {
	c.pos = 0
	return c.cur()
}

func (c *memCursor) Last() ([]byte, []byte) {
	c.pos = len(c.tx.items) - 1
	return c.cur()
}

func (c *memCursor) Seek(seek []byte) ([]byte, []byte) {
	items := c.tx.items
	c.pos = sort.Search(len(items), func(i int) bool {
		return bytes.Compare(items[i].key, seek) >= 0
	})
	return c.cur()
}

func (c *memCursor) SeekLast(prefix []byte) ([]byte, []byte) {
	succ := prefixSuccessor(prefix)
	if succ == nil {
		return c.Last()
	}
	items := c.tx.items
	i := sort.Search(len(items), func(i int) bool {
		return bytes.Compare(items[i].key, succ) >= 0
	})
	c.pos = i - 1
	return c.cur()
}

func (c *memCursor) Next() ([]byte, []byte) {
	if c.pos < 0 {
		return c.First()
	}
	c.pos++
	return c.cur()
}

func (c *memCursor) Prev() ([]byte, []byte) {
	if c.pos < 0 {
		return nil, nil
	}
	c.pos--
	return c.cur()
}

func (c *memCursor) cur() ([]byte, []byte) {
	if c.pos < 0 || c.pos >= len(c.tx.items) {
		return nil, nil
	}
	kv := c.tx.items[c.pos]
	return kv.key, kv.value
}
