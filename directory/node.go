package directory

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/andreyvit/tuplekv"
	"github.com/andreyvit/tuplekv/tuple"
)

// Node records are keyed (parentPrefix, slot, childName) under the node
// subspace. Slot 0 holds child pointers; other slots are reserved for future
// per-node metadata.
const subdirSlot = 0

// nodeRecord is the stored value of a single directory entry. Keys are
// tuple-encoded, values are msgpack.
type nodeRecord struct {
	Prefix []byte `msgpack:"p"`
	Layer  []byte `msgpack:"l"`
}

func (rec *nodeRecord) encode() []byte {
	var buf bytes.Buffer
	enc := msgpack.GetEncoder()
	enc.ResetDict(&buf, nil)
	err := enc.Encode(rec)
	msgpack.PutEncoder(enc)
	if err != nil {
		panic(fmt.Errorf("directory: failed to encode node record: %w", err))
	}
	return buf.Bytes()
}

func decodeNodeRecord(raw []byte) (nodeRecord, error) {
	var rec nodeRecord
	var r bytes.Reader
	r.Reset(raw)
	dec := msgpack.GetDecoder()
	dec.ResetDict(&r, nil)
	err := dec.Decode(&rec)
	msgpack.PutDecoder(dec)
	if err != nil {
		return nodeRecord{}, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	if len(rec.Prefix) == 0 {
		return nodeRecord{}, fmt.Errorf("%w: node record has no prefix", ErrCorruptRecord)
	}
	return rec, nil
}

// node is a resolved directory entry. The root resolves to a node whose
// prefix is the node subspace itself and which has no record.
type node struct {
	prefix []byte
	rec    nodeRecord
}

func (l *Layer) childKey(parentPrefix []byte, name string) []byte {
	return l.nodes.Pack(tuple.Tuple{parentPrefix, int64(subdirSlot), name})
}

// lookup walks path from the root, returning found=false when some component
// does not exist.
func (l *Layer) lookup(tx *tuplekv.Tx, path []string) (node, bool, error) {
	cur := node{prefix: l.nodes.Bytes()}
	for _, name := range path {
		raw := tx.Get(l.childKey(cur.prefix, name))
		if raw == nil {
			return node{}, false, nil
		}
		rec, err := decodeNodeRecord(raw)
		if err != nil {
			return node{}, false, err
		}
		cur = node{prefix: rec.Prefix, rec: rec}
	}
	return cur, true, nil
}

// children returns the names and records of the direct children of the node
// with the given prefix, in lexicographic name order.
func (l *Layer) children(tx *tuplekv.Tx, prefix []byte) ([]string, []nodeRecord, error) {
	ss := l.nodes.Sub(prefix, int64(subdirSlot))
	var names []string
	var recs []nodeRecord
	for c := tx.ScanSubspace(ss); c.Next(); {
		t, err := ss.Unpack(c.Key())
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
		}
		if len(t) != 1 {
			return nil, nil, fmt.Errorf("%w: unexpected node key %x", ErrCorruptRecord, c.Key())
		}
		name, ok := t[0].(string)
		if !ok {
			return nil, nil, fmt.Errorf("%w: unexpected node key %x", ErrCorruptRecord, c.Key())
		}
		rec, err := decodeNodeRecord(c.Value())
		if err != nil {
			return nil, nil, err
		}
		names = append(names, name)
		recs = append(recs, rec)
	}
	return names, recs, nil
}

// walkRecords calls f for every directory record reachable from prefix,
// depth-first.
func (l *Layer) walkRecords(tx *tuplekv.Tx, prefix []byte, f func(rec nodeRecord) error) error {
	_, recs, err := l.children(tx, prefix)
	if err != nil {
		return err
	}
	for i := range recs {
		if err := f(recs[i]); err != nil {
			return err
		}
		if err := l.walkRecords(tx, recs[i].Prefix, f); err != nil {
			return err
		}
	}
	return nil
}
