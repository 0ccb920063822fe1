package tuplekv

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.etcd.io/bbolt"
)

const trackTxns = true

// Backend selects the storage engine backing a DB.
type Backend string

const (
	// BackendBolt stores data in a single Bolt file. This is the default.
	BackendBolt Backend = "bolt"
	// BackendPebble stores data in a Pebble directory.
	BackendPebble Backend = "pebble"
	// BackendMemory keeps data in memory, for tests and throwaway stores.
	// The path argument of Open is ignored.
	BackendMemory Backend = "memory"
)

// DB is an ordered key-value store with tuple-encoded keys. Keys starting
// with 0xFF form the reserved system keyspace and are not accessible through
// transaction operations; the store keeps its commit version counter there.
type DB struct {
	stg     storage
	logger  *slog.Logger
	verbose bool
	strict  bool

	// version is the last committed transaction version, mirrored from the
	// system version key. Only the single writer advances it.
	version atomic.Uint64

	lastSize           atomic.Int64
	ReaderCount        atomic.Int64
	WriterCount        atomic.Int64
	PendingWriterCount atomic.Int64
	ReadCount          atomic.Uint64
	WriteCount         atomic.Uint64

	txns     []*Tx
	txnsLock sync.Mutex
}

type Options struct {
	Backend   Backend
	Logger    *slog.Logger // nil means slog.Default()
	Verbose   bool
	IsTesting bool
	NoSync    bool
	MmapSize  int // Bolt only
}

var (
	systemPrefix = []byte{0xFF}
	versionKey   = []byte("\xFFversion")
)

func Open(path string, opt Options) (*DB, error) {
	logger := opt.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var stg storage
	switch opt.Backend {
	case BackendBolt, "":
		bopt := *bbolt.DefaultOptions
		bopt.Timeout = 10 * time.Second
		if opt.IsTesting {
			bopt.NoSync = true
			bopt.NoFreelistSync = true
			bopt.InitialMmapSize = 1024 * 1024 * 5
		} else {
			bopt.InitialMmapSize = 1024 * 1024 * 1024
			bopt.FreelistType = bbolt.FreelistMapType
		}
		if opt.NoSync {
			bopt.NoSync = true
		}
		if opt.MmapSize != 0 {
			bopt.InitialMmapSize = opt.MmapSize
		}
		bdb, err := bbolt.Open(path, 0666, &bopt)
		if err != nil {
			return nil, fmt.Errorf("tuplekv: %w", err)
		}
		stg, err = newBoltStorage(bdb)
		if err != nil {
			bdb.Close()
			return nil, fmt.Errorf("tuplekv: %w", err)
		}
	case BackendPebble:
		var err error
		stg, err = newPebbleStorage(path, opt.NoSync || opt.IsTesting)
		if err != nil {
			return nil, fmt.Errorf("tuplekv: %w", err)
		}
	case BackendMemory:
		stg = newMemStorage()
	default:
		return nil, fmt.Errorf("tuplekv: unknown backend %q", opt.Backend)
	}

	db := &DB{
		stg:     stg,
		logger:  logger,
		verbose: opt.Verbose,
		strict:  opt.IsTesting,
	}

	stx, err := stg.BeginTx(false)
	if err != nil {
		stg.Close()
		return nil, fmt.Errorf("tuplekv: %w", err)
	}
	if raw := stx.Get(versionKey); len(raw) == 8 {
		db.version.Store(binary.BigEndian.Uint64(raw))
	}
	if err := stx.Rollback(); err != nil {
		stg.Close()
		return nil, fmt.Errorf("tuplekv: %w", err)
	}

	return db, nil
}

// CommitVersion returns the transaction version of the last mutating commit,
// 0 if the store has never been written to.
func (db *DB) CommitVersion() uint64 {
	return db.version.Load()
}

// Size returns the storage size in bytes as of the last transaction, 0 if
// unknown.
func (db *DB) Size() int64 {
	return db.lastSize.Load()
}

func (db *DB) Close() {
	err := db.stg.Close()
	if err != nil {
		panic(fmt.Errorf("tuplekv: closing: %w", err))
	}
}

func (db *DB) addTx(tx *Tx) {
	if !trackTxns {
		return
	}
	db.txnsLock.Lock()
	defer db.txnsLock.Unlock()
	db.txns = append(db.txns, tx)
}

func (db *DB) removeTx(tx *Tx) {
	if !trackTxns {
		return
	}
	db.txnsLock.Lock()
	defer db.txnsLock.Unlock()

	found := -1
	for i, t := range db.txns {
		if t == tx {
			found = i
			break
		}
	}
	if found < 0 {
		panic("tx not found in list")
	}

	n := len(db.txns)
	db.txns[found] = db.txns[n-1]
	db.txns[n-1] = nil // ensure it gets collected
	db.txns = db.txns[:n-1]
}

// DescribeOpenTxns renders the currently open transactions with their ages
// and origin stacks. With a single writer, a forgotten transaction blocks
// all writes; this is the tool to find it.
func (db *DB) DescribeOpenTxns() string {
	if !trackTxns {
		return "OPEN TX TRACKING DISABLED"
	}

	db.txnsLock.Lock()
	txns := slices.Clone(db.txns)
	db.txnsLock.Unlock()

	if len(txns) == 0 {
		return "NO OPEN TRANSACTIONS"
	}

	slices.SortFunc(txns, func(a, b *Tx) int {
		return a.startTime.Compare(b.startTime)
	})

	now := time.Now()

	var buf strings.Builder
	fmt.Fprintf(&buf, "%d OPEN TRANSACTIONS:\n", len(txns))
	for _, tx := range txns {
		ms := now.Sub(tx.startTime).Milliseconds()
		if ms < 100 {
			fmt.Fprintf(&buf, "\n---\nopen for %d ms\n", ms)
		} else {
			fmt.Fprintf(&buf, "\n---\nopen for %d ms:\n%s", ms, tx.stack)
		}
	}

	return buf.String()
}
