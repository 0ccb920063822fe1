package tuplekv

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"runtime/debug"
	"slices"
	"time"

	"github.com/andreyvit/tuplekv/subspace"
	"github.com/andreyvit/tuplekv/tuple"
)

type Txish interface {
	DBTx() *Tx
}

// Tx is a store transaction. Read-only transactions see a stable snapshot;
// at most one writable transaction runs at a time.
//
// Versionstamped operations are deferred: they take effect at Commit, after
// the store assigns the transaction version. Nothing written through them is
// visible to reads within the same transaction.
type Tx struct {
	db  *DB
	stx storageTx

	written          bool
	commitDespiteErr bool
	done             bool
	released         bool

	pendingVS []pendingStamp

	committedVersion    tuple.Versionstamp
	hasCommittedVersion bool

	memo map[string]any

	startTime time.Time
	stack     string
}

// pendingStamp is a deferred versionstamped write. off locates the 12-byte
// versionstamp region inside key (inKey) or value; its first placeholderBytes
// bytes are the placeholder patched at commit.
type pendingStamp struct {
	key   []byte
	value []byte
	off   int
	inKey bool
}

const placeholderBytes = 10

func (db *DB) newTx(stx storageTx) *Tx {
	tx := &Tx{
		db:        db,
		stx:       stx,
		startTime: time.Now(),
	}
	if trackTxns {
		tx.stack = string(debug.Stack())
	}
	db.addTx(tx)
	return tx
}

// DBTx implements Txish
func (tx *Tx) DBTx() *Tx {
	return tx
}

func (tx *Tx) DB() *DB {
	return tx.db
}

func (db *DB) Tx(writable bool, f func(tx *Tx) error) error {
	if writable {
		tx := db.BeginUpdate()
		defer tx.Close()
		err := safelyCall(f, tx)
		if err != nil && !tx.commitDespiteErr {
			return err
		}
		if cerr := tx.Commit(); err == nil {
			err = cerr
		}
		return err
	} else {
		tx := db.BeginRead()
		defer tx.Close()
		return f(tx)
	}
}

type panicked struct {
	reason interface{}
	stack  string
}

func (p panicked) Error() string {
	return fmt.Sprintf("panic: %v\n\n%s", p.reason, p.stack)
}

func safelyCall(fn func(*Tx) error, tx *Tx) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = panicked{p, string(debug.Stack())}
		}
	}()
	return fn(tx)
}

func (db *DB) BeginRead() *Tx {
	db.ReadCount.Add(1)
	stx, err := db.stg.BeginTx(false)
	if err != nil {
		panic(fmt.Errorf("failed to start reading: %w", err))
	}
	db.ReaderCount.Add(1)
	return db.newTx(stx)
}

func (db *DB) Read(f func(tx *Tx)) {
	tx := db.BeginRead()
	defer tx.Close()
	f(tx)
}
func (db *DB) ReadErr(f func(tx *Tx) error) error {
	tx := db.BeginRead()
	defer tx.Close()
	return f(tx)
}

func (db *DB) Write(f func(tx *Tx)) {
	tx := db.BeginUpdate()
	defer tx.Close()
	f(tx)
	err := tx.Commit()
	if err != nil {
		panic(fmt.Errorf("commit: %w", err))
	}
}

func (db *DB) BeginUpdate() *Tx {
	db.WriteCount.Add(1)
	db.PendingWriterCount.Add(1)
	stx, err := db.stg.BeginTx(true)
	db.PendingWriterCount.Add(-1)
	if err != nil {
		panic(fmt.Errorf("failed to start writing: %w", err))
	}
	db.WriterCount.Add(1)
	return db.newTx(stx)
}

func (tx *Tx) IsWritable() bool {
	return tx.stx.Writable()
}

// CommitDespiteError makes the managed Tx wrapper commit even when the
// transaction func returns an error.
func (tx *Tx) CommitDespiteError() {
	tx.commitDespiteErr = true
}

func (tx *Tx) markWritten() {
	tx.written = true
}

func checkUserKey(key []byte) error {
	if len(key) == 0 {
		return ErrEmptyKey
	}
	if key[0] == 0xFF {
		return ErrSystemKey
	}
	return nil
}

// Get returns the value stored at key, nil if absent. Keys in the system
// keyspace read as absent. The returned slice is owned by the transaction
// and valid until it ends.
func (tx *Tx) Get(key []byte) []byte {
	if len(key) == 0 || key[0] == 0xFF {
		return nil
	}
	return tx.stx.Get(key)
}

// Set stores value at key. Both slices must remain unmodified until the
// transaction ends.
func (tx *Tx) Set(key, value []byte) error {
	if !tx.stx.Writable() {
		return ErrReadOnlyTx
	}
	if err := checkUserKey(key); err != nil {
		return err
	}
	tx.markWritten()
	return tx.stx.Put(key, value)
}

// Clear removes key. Clearing an absent key is not an error.
func (tx *Tx) Clear(key []byte) error {
	if !tx.stx.Writable() {
		return ErrReadOnlyTx
	}
	if err := checkUserKey(key); err != nil {
		return err
	}
	tx.markWritten()
	return tx.stx.Delete(key)
}

// ClearRange removes all keys in [begin, end). A nil begin means the start
// of the keyspace; a nil end is clamped to the end of the user keyspace.
func (tx *Tx) ClearRange(begin, end []byte) error {
	if !tx.stx.Writable() {
		return ErrReadOnlyTx
	}
	if len(begin) > 0 && begin[0] == 0xFF {
		return ErrSystemKey
	}
	if end == nil || bytes.Compare(end, systemPrefix) >= 0 {
		end = systemPrefix
	}
	if bytes.Compare(begin, end) >= 0 {
		return nil
	}
	tx.markWritten()
	return tx.stx.DeleteRange(begin, end)
}

// ClearPrefix removes all keys starting with prefix. An empty prefix clears
// the entire user keyspace.
func (tx *Tx) ClearPrefix(prefix []byte) error {
	if !tx.stx.Writable() {
		return ErrReadOnlyTx
	}
	if len(prefix) == 0 {
		return tx.ClearRange(nil, nil)
	}
	if prefix[0] == 0xFF {
		return ErrSystemKey
	}
	tx.markWritten()
	return tx.stx.DeleteRange(prefix, prefixSuccessor(prefix))
}

// Scan iterates over the given range of the user keyspace. System keys are
// never yielded.
func (tx *Tx) Scan(rang RawRange) *RangeCursor {
	rang = clampUserRange(rang)
	return rang.newCursor(tx.stx.Cursor(), tx.db.logger)
}

// ScanSubspace iterates over every packed tuple key under the subspace.
// For a reverse scan, compose the range by hand:
//
//	begin, end := ss.Range()
//	c := tx.Scan(RawIE(begin, end).Reversed())
func (tx *Tx) ScanSubspace(ss subspace.Subspace) *RangeCursor {
	begin, end := ss.Range()
	return tx.Scan(RawIE(begin, end))
}

func clampUserRange(r RawRange) RawRange {
	if len(r.Prefix) > 0 {
		if r.Prefix[0] == 0xFF {
			// Entirely inside the system keyspace: an empty range.
			return RawRange{Lower: systemPrefix, Upper: systemPrefix, Reverse: r.Reverse}
		}
		return r
	}
	r.Prefix = nil
	if r.Upper == nil || bytes.Compare(r.Upper, systemPrefix) >= 0 {
		r.Upper = systemPrefix
		r.UpperInc = false
	}
	return r
}

// SetVersionstampedKey defers a write whose key contains an incomplete
// versionstamp. keyWithTrailer must come from PackWithVersionstamp (possibly
// via a subspace); the trailer is stripped and the placeholder is patched
// with the assigned version at commit time. The value follows the Set
// contract; the key buffer is copied.
func (tx *Tx) SetVersionstampedKey(keyWithTrailer, value []byte) error {
	if !tx.stx.Writable() {
		return ErrReadOnlyTx
	}
	key, off, ok := tuple.SplitVersionstampTrailer(keyWithTrailer)
	if !ok {
		return ErrMissingTrailer
	}
	if key[0] == 0xFF {
		return ErrSystemKey
	}
	tx.pendingVS = append(tx.pendingVS, pendingStamp{
		key:   slices.Clone(key),
		value: value,
		off:   off,
		inKey: true,
	})
	return nil
}

// SetVersionstampedValue defers a write whose value contains an incomplete
// versionstamp, locating the placeholder the same way as
// SetVersionstampedKey. The value buffer is copied.
func (tx *Tx) SetVersionstampedValue(key, valueWithTrailer []byte) error {
	if !tx.stx.Writable() {
		return ErrReadOnlyTx
	}
	if err := checkUserKey(key); err != nil {
		return err
	}
	value, off, ok := tuple.SplitVersionstampTrailer(valueWithTrailer)
	if !ok {
		return ErrMissingTrailer
	}
	tx.pendingVS = append(tx.pendingVS, pendingStamp{
		key:   key,
		value: slices.Clone(value),
		off:   off,
		inKey: false,
	})
	return nil
}

// CommittedVersion returns the versionstamp assigned to this transaction,
// valid after a successful Commit of a mutating transaction. The user
// version is always 0; per-operation user versions live in the stamped keys
// themselves.
func (tx *Tx) CommittedVersion() (tuple.Versionstamp, bool) {
	return tx.committedVersion, tx.hasCommittedVersion
}

func (tx *Tx) Close() {
	if !tx.done {
		tx.done = true
		err := tx.stx.Rollback()
		if err != nil {
			panic(err) // backends treat rollback after commit as a no-op
		}
	}
	tx.release()
}

func (tx *Tx) release() {
	if tx.released {
		return
	}
	tx.released = true
	if tx.stx.Writable() {
		tx.db.WriterCount.Add(-1)
	} else {
		tx.db.ReaderCount.Add(-1)
	}
	tx.db.removeTx(tx)
}

// Commit applies deferred versionstamped writes and commits. When the
// transaction mutated anything, the next transaction version is allocated,
// every placeholder is patched with it, and the version counter is persisted
// in the same storage transaction.
func (tx *Tx) Commit() error {
	if tx.done {
		return ErrTxClosed
	}
	if !tx.stx.Writable() {
		return ErrReadOnlyTx
	}

	mutated := tx.written || len(tx.pendingVS) > 0
	var ver uint64
	if mutated {
		ver = tx.db.version.Load() + 1
		var stamp [10]byte
		binary.BigEndian.PutUint64(stamp[:8], ver)
		// stamp[8:10] stays 0: the single writer never splits a batch
		for _, p := range tx.pendingVS {
			target := p.value
			if p.inKey {
				target = p.key
			}
			if tx.db.strict {
				for _, b := range target[p.off : p.off+placeholderBytes] {
					if b != 0xFF {
						panic(fmt.Errorf("tuplekv: versionstamp placeholder damaged at offset %d in %s", p.off, hexstr(target)))
					}
				}
			}
			copy(target[p.off:p.off+placeholderBytes], stamp[:])
			if err := tx.stx.Put(p.key, p.value); err != nil {
				return err
			}
		}
		var vbuf [8]byte
		binary.BigEndian.PutUint64(vbuf[:], ver)
		if err := tx.stx.Put(versionKey, vbuf[:]); err != nil {
			return err
		}
	}

	size := tx.stx.Size()
	if mutated {
		// Published before the storage commit: the commit releases the
		// writer slot, and the next writer must not see a stale counter and
		// allocate the same version. A failed commit leaves a gap in the
		// version sequence, which is harmless.
		tx.db.version.Store(ver)
	}
	if err := tx.stx.Commit(); err != nil {
		return err
	}
	tx.done = true
	tx.db.lastSize.Store(size)
	if mutated {
		tx.committedVersion = tuple.Versionstamp{TransactionVersion: ver}
		tx.hasCommittedVersion = true
		if tx.db.verbose {
			tx.db.logger.Debug("tuplekv: committed", "version", ver, "size", size)
		}
	}
	tx.release()
	return nil
}

func (tx *Tx) GetMemo(key string) (any, bool) {
	v, found := tx.memo[key]
	return v, found
}

func (tx *Tx) Memo(key string, f func() (any, error)) (any, error) {
	v, found := tx.memo[key]
	if found {
		if e, ok := v.(error); ok {
			return nil, e
		}
		return v, nil
	}

	if tx.memo == nil {
		tx.memo = make(map[string]any)
	}

	v, err := f()
	if err != nil {
		tx.memo[key] = err
	} else {
		tx.memo[key] = v
	}
	return v, err
}

func Memo[T any](txish Txish, key string, f func() (T, error)) (T, error) {
	tx := txish.DBTx()
	v, err := tx.Memo(key, func() (any, error) {
		return f()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), err
}
