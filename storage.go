package tuplekv

// storage is a sorted key-value storage backend (Bolt, Pebble, in-memory).
// The store keeps a single flat keyspace; backends that support scoped
// namespaces natively (Bolt buckets) hide them behind this interface.
type storage interface {
	// BeginTx starts a new transaction. At most one writable transaction is
	// open at a time; BeginTx blocks until the slot frees up.
	BeginTx(writable bool) (storageTx, error)
	// Close closes the storage.
	Close() error
}

// storageTx is a storage transaction over the flat keyspace.
type storageTx interface {
	// Writable returns true if this is a writable transaction.
	Writable() bool

	// Get retrieves a value by key. Returns nil if not found. Values stored
	// as empty may read back as nil; callers must not distinguish the two.
	Get(key []byte) []byte

	// Put stores a key-value pair.
	Put(key, value []byte) error

	// Delete removes a key. Deleting a missing key is not an error.
	Delete(key []byte) error

	// DeleteRange removes all keys in [begin, end). A nil end means
	// unbounded.
	DeleteRange(begin, end []byte) error

	// Cursor returns a cursor for iteration. Cursors stay valid until the
	// transaction ends.
	Cursor() storageCursor

	// Commit commits the transaction.
	Commit() error

	// Rollback aborts the transaction. It is safe to call after Commit and
	// multiple times.
	Rollback() error

	// Size returns the database size in bytes (0 if unknown).
	Size() int64
}

// storageCursor iterates over the sorted keyspace. Returned key and value
// slices are only valid until the next cursor operation; callers copy what
// they keep.
type storageCursor interface {
	// First moves to the first key-value pair.
	First() (key, value []byte)

	// Last moves to the last key-value pair.
	Last() (key, value []byte)

	// Seek moves to the first key >= seek.
	Seek(seek []byte) (key, value []byte)

	// SeekLast moves to the last key that starts with prefix or sorts before
	// any key that does. Implemented as Seek(prefixSuccessor(prefix)) + Prev,
	// falling back to Last when the prefix has no successor.
	SeekLast(prefix []byte) (key, value []byte)

	// Next moves to the next key-value pair.
	Next() (key, value []byte)

	// Prev moves to the previous key-value pair.
	Prev() (key, value []byte)
}
