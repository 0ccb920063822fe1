package tuplekv

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"
)

// Export/Import move the entire keyspace, system keys included, through a
// flat snapshot file:
//
//   - header = magic:64 flags:uvarint count:uvarint
//   - count records, each key:varbytes value:varbytes
//   - checksum:64 = xxhash64 of everything before it
//
// The version counter travels with the data, so versionstamps keep
// increasing after a restore.

const (
	exportMagic   = 0x3154505845564B54 // "TKVEXPT1" as little-endian uint64
	exportTrailer = 8
)

// Export writes a snapshot of the store and returns the number of records
// written. The snapshot is taken in a single read transaction.
func (db *DB) Export(w io.Writer) (int, error) {
	var count int
	err := db.ReadErr(func(tx *Tx) error {
		bcur := tx.stx.Cursor()
		for k, _ := bcur.First(); k != nil; k, _ = bcur.Next() {
			count++
		}

		h := xxhash.New()
		mw := io.MultiWriter(w, h)

		var head [8]byte
		binary.LittleEndian.PutUint64(head[:], exportMagic)
		if _, err := mw.Write(head[:]); err != nil {
			return err
		}
		buf := appendUvarint(nil, 0) // flags
		buf = appendUvarint(buf, uint64(count))
		if _, err := mw.Write(buf); err != nil {
			return err
		}

		bcur = tx.stx.Cursor()
		for k, v := bcur.First(); k != nil; k, v = bcur.Next() {
			buf = appendVarbytes(buf[:0], k)
			buf = appendVarbytes(buf, v)
			if _, err := mw.Write(buf); err != nil {
				return err
			}
		}

		var sum [exportTrailer]byte
		binary.LittleEndian.PutUint64(sum[:], h.Sum64())
		_, err := w.Write(sum[:])
		return err
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Import replaces the entire store with the contents of a snapshot and
// returns the number of records restored. The file is fully validated before
// anything is written; on error the store is unchanged. The version counter
// never moves backwards: after a restore it is the higher of the snapshot's
// counter and the store's own.
func (db *DB) Import(r io.Reader) (int, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	recs, err := parseSnapshot(data)
	if err != nil {
		return 0, err
	}

	stx, err := db.stg.BeginTx(true)
	if err != nil {
		return 0, err
	}
	err = func() error {
		if err := stx.DeleteRange(nil, nil); err != nil {
			return err
		}
		ver := db.version.Load() // stable while the writer slot is held
		for _, rec := range recs {
			if bytes.Equal(rec.key, versionKey) {
				if len(rec.value) == 8 {
					ver = max(ver, binary.BigEndian.Uint64(rec.value))
				}
				continue
			}
			if err := stx.Put(rec.key, rec.value); err != nil {
				return err
			}
		}
		var vbuf [8]byte
		binary.BigEndian.PutUint64(vbuf[:], ver)
		if err := stx.Put(versionKey, vbuf[:]); err != nil {
			return err
		}
		db.version.Store(ver)
		return stx.Commit()
	}()
	if err != nil {
		stx.Rollback()
		return 0, err
	}
	return len(recs), nil
}

type kvRec struct {
	key, value []byte
}

func parseSnapshot(data []byte) ([]kvRec, error) {
	if len(data) < 8+exportTrailer {
		return nil, dataErrf(data, 0, ErrBadSnapshot, "truncated snapshot")
	}
	if binary.LittleEndian.Uint64(data) != exportMagic {
		return nil, dataErrf(data, 0, ErrBadSnapshot, "bad magic")
	}
	body, trail := data[:len(data)-exportTrailer], data[len(data)-exportTrailer:]
	if xxhash.Sum64(body) != binary.LittleEndian.Uint64(trail) {
		return nil, dataErrf(data, len(body), ErrBadSnapshot, "checksum mismatch")
	}

	d := makeByteDecoder(body)
	if _, err := d.Raw(8); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadSnapshot, err)
	}
	flags, err := d.Uvarint()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadSnapshot, err)
	}
	if flags != 0 {
		return nil, dataErrf(body, d.Off(), ErrBadSnapshot, "unsupported flags 0x%x", flags)
	}
	count, err := d.Uvarinti()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadSnapshot, err)
	}

	recs := make([]kvRec, 0, min(count, 1<<16))
	for i := 0; i < count; i++ {
		k, err := d.VarBytes()
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %w", ErrBadSnapshot, i, err)
		}
		v, err := d.VarBytes()
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %w", ErrBadSnapshot, i, err)
		}
		recs = append(recs, kvRec{k, v})
	}
	if len(d.Buf) != 0 {
		return nil, dataErrf(body, d.Off(), ErrBadSnapshot, "trailing data after %d records", count)
	}
	return recs, nil
}
