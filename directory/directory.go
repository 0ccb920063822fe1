// Package directory maps hierarchical paths to short binary prefixes, so
// that related keys can live under a compact prefix instead of repeating the
// whole path in every key.
//
// Directory metadata lives in a node subspace (0xFE by default); the
// prefixes handed out for directory contents come from a content subspace
// (the whole keyspace by default). Paths can be created, opened, listed,
// moved and removed. Moving a directory rewrites a single pointer record and
// never touches the directory's contents.
package directory

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"

	"github.com/andreyvit/tuplekv"
	"github.com/andreyvit/tuplekv/subspace"
)

// Directory metadata format version. The major component gates all access,
// the minor component gates writes.
const (
	versionMajor = 1
	versionMinor = 0
	versionPatch = 0
)

// Layer provides directory operations over a store. The zero value is not
// usable; use New or NewAt. A Layer holds no state of its own and is safe
// for concurrent use.
type Layer struct {
	nodes      subspace.Subspace
	content    subspace.Subspace
	alloc      allocator
	versionKey []byte
	memoKey    string
}

// New returns a directory layer with the default layout: node records under
// 0xFE, content prefixes allocated from the root of the keyspace.
func New() *Layer {
	return NewAt(subspace.FromBytes([]byte{0xFE}), subspace.FromBytes(nil))
}

// NewAt returns a directory layer with custom node and content subspaces.
// Both must stay fixed for the lifetime of the data.
func NewAt(nodes, content subspace.Subspace) *Layer {
	root := nodes.Bytes()
	return &Layer{
		nodes:      nodes,
		content:    content,
		alloc:      newAllocator(nodes.Sub(root, "hca")),
		versionKey: append(append([]byte(nil), root...), "version"...),
		memoKey:    "directory/version@" + hex.EncodeToString(root),
	}
}

// Dir is an opened directory: a subspace positioned at the directory's
// prefix, plus the path and layer tag it was created with.
type Dir struct {
	subspace.Subspace
	path  []string
	layer []byte
}

// Path returns the absolute path of the directory.
func (d Dir) Path() []string { return slices.Clone(d.path) }

// Layer returns the layer tag the directory was created with.
func (d Dir) Layer() []byte { return slices.Clone(d.layer) }

func (l *Layer) newDir(path []string, rec nodeRecord) Dir {
	return Dir{
		Subspace: subspace.FromBytes(rec.Prefix),
		path:     slices.Clone(path),
		layer:    slices.Clone(rec.Layer),
	}
}

func pathString(path []string) string {
	return "/" + strings.Join(path, "/")
}

// CreateOrOpen opens the directory at path, creating it (and any missing
// parents) if necessary. A non-empty layer tag must match the stored one
// when opening an existing directory, and is recorded when creating a new
// one. Parents created along the way carry no layer tag.
func (l *Layer) CreateOrOpen(txh tuplekv.Txish, path []string, layer []byte) (Dir, error) {
	return l.createOrOpen(txh.DBTx(), path, layer, nil, true, true)
}

// Create creates the directory at path, failing with ErrDirExists when it
// already exists. Missing parents are created along the way.
func (l *Layer) Create(txh tuplekv.Txish, path []string, layer []byte) (Dir, error) {
	return l.createOrOpen(txh.DBTx(), path, layer, nil, true, false)
}

// CreatePrefix is Create with a caller-chosen prefix instead of an allocated
// one. The prefix must not overlap the node subspace or any existing
// directory; data already stored under it is allowed and becomes the
// directory's contents.
func (l *Layer) CreatePrefix(txh tuplekv.Txish, path []string, layer, prefix []byte) (Dir, error) {
	if len(prefix) == 0 {
		return Dir{}, fmt.Errorf("%w: prefix is empty", ErrPrefixConflict)
	}
	return l.createOrOpen(txh.DBTx(), path, layer, prefix, true, false)
}

// Open opens the directory at path, failing with ErrDirNotFound when it
// does not exist. A non-empty layer tag must match the stored one.
func (l *Layer) Open(txh tuplekv.Txish, path []string, layer []byte) (Dir, error) {
	return l.createOrOpen(txh.DBTx(), path, layer, nil, false, true)
}

func (l *Layer) createOrOpen(tx *tuplekv.Tx, path []string, layer, prefix []byte, allowCreate, allowOpen bool) (Dir, error) {
	if err := l.checkVersion(tx, false); err != nil {
		return Dir{}, err
	}
	if len(path) == 0 {
		return Dir{}, ErrRootDir
	}

	nd, found, err := l.lookup(tx, path)
	if err != nil {
		return Dir{}, err
	}
	if found {
		if !allowOpen {
			return Dir{}, fmt.Errorf("%w: %s", ErrDirExists, pathString(path))
		}
		if len(layer) > 0 && !bytes.Equal(nd.rec.Layer, layer) {
			return Dir{}, fmt.Errorf("%w: %s", ErrLayerMismatch, pathString(path))
		}
		return l.newDir(path, nd.rec), nil
	}
	if !allowCreate {
		return Dir{}, fmt.Errorf("%w: %s", ErrDirNotFound, pathString(path))
	}

	if err := l.checkVersion(tx, true); err != nil {
		return Dir{}, err
	}

	// Parents are created before the prefix is chosen or validated, so that
	// a parent's freshly allocated prefix takes part in the collision check.
	parentPrefix := l.nodes.Bytes()
	if len(path) > 1 {
		parent, err := l.createOrOpen(tx, path[:len(path)-1], nil, nil, true, true)
		if err != nil {
			return Dir{}, err
		}
		parentPrefix = parent.Bytes()
	}

	if prefix == nil {
		n, err := l.alloc.allocate(tx)
		if err != nil {
			return Dir{}, err
		}
		prefix = l.content.Sub(n).Bytes()
		if c := tx.Scan(tuplekv.RawPrefix(prefix)); c.Next() {
			return Dir{}, fmt.Errorf("%w: allocated prefix %x already has data", ErrPrefixConflict, prefix)
		}
		free, err := l.isPrefixFree(tx, prefix)
		if err != nil {
			return Dir{}, err
		}
		if !free {
			return Dir{}, fmt.Errorf("%w: allocated prefix %x collides with a manually created directory", ErrPrefixConflict, prefix)
		}
	} else {
		free, err := l.isPrefixFree(tx, prefix)
		if err != nil {
			return Dir{}, err
		}
		if !free {
			return Dir{}, fmt.Errorf("%w: prefix %x is already in use", ErrPrefixConflict, prefix)
		}
	}

	rec := nodeRecord{Prefix: prefix, Layer: layer}
	if err := tx.Set(l.childKey(parentPrefix, path[len(path)-1]), rec.encode()); err != nil {
		return Dir{}, err
	}
	return l.newDir(path, rec), nil
}

// Exists reports whether the directory at path exists. The root always
// exists.
func (l *Layer) Exists(txh tuplekv.Txish, path []string) (bool, error) {
	tx := txh.DBTx()
	if err := l.checkVersion(tx, false); err != nil {
		return false, err
	}
	if len(path) == 0 {
		return true, nil
	}
	_, found, err := l.lookup(tx, path)
	return found, err
}

// List returns the names of the immediate children of the directory at
// path, in lexicographic order. Pass an empty path to list the root.
func (l *Layer) List(txh tuplekv.Txish, path []string) ([]string, error) {
	tx := txh.DBTx()
	if err := l.checkVersion(tx, false); err != nil {
		return nil, err
	}
	nd, found, err := l.lookup(tx, path)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrDirNotFound, pathString(path))
	}
	names, _, err := l.children(tx, nd.prefix)
	return names, err
}

// Move renames the directory at oldPath to newPath, keeping its prefix,
// layer tag, contents and subdirectories. The destination must not exist and
// its parent must. A directory cannot be moved into its own subtree.
func (l *Layer) Move(txh tuplekv.Txish, oldPath, newPath []string) (Dir, error) {
	tx := txh.DBTx()
	if err := l.checkVersion(tx, true); err != nil {
		return Dir{}, err
	}
	if len(oldPath) == 0 || len(newPath) == 0 {
		return Dir{}, ErrRootDir
	}
	if slices.Equal(oldPath, newPath) {
		return Dir{}, fmt.Errorf("%w: %s", ErrDirExists, pathString(newPath))
	}
	if len(newPath) > len(oldPath) && slices.Equal(newPath[:len(oldPath)], oldPath) {
		return Dir{}, fmt.Errorf("directory: cannot move %s into its own subtree %s", pathString(oldPath), pathString(newPath))
	}

	src, found, err := l.lookup(tx, oldPath)
	if err != nil {
		return Dir{}, err
	}
	if !found {
		return Dir{}, fmt.Errorf("%w: %s", ErrDirNotFound, pathString(oldPath))
	}
	if _, found, err := l.lookup(tx, newPath); err != nil {
		return Dir{}, err
	} else if found {
		return Dir{}, fmt.Errorf("%w: %s", ErrDirExists, pathString(newPath))
	}
	newParent, found, err := l.lookup(tx, newPath[:len(newPath)-1])
	if err != nil {
		return Dir{}, err
	}
	if !found {
		return Dir{}, fmt.Errorf("%w: %s", ErrDirNotFound, pathString(newPath[:len(newPath)-1]))
	}
	oldParent, _, err := l.lookup(tx, oldPath[:len(oldPath)-1])
	if err != nil {
		return Dir{}, err
	}

	if err := tx.Set(l.childKey(newParent.prefix, newPath[len(newPath)-1]), src.rec.encode()); err != nil {
		return Dir{}, err
	}
	if err := tx.Clear(l.childKey(oldParent.prefix, oldPath[len(oldPath)-1])); err != nil {
		return Dir{}, err
	}
	return l.newDir(newPath, src.rec), nil
}

// Remove deletes the directory at path, all its subdirectories, and all of
// their contents. It reports whether the directory existed.
func (l *Layer) Remove(txh tuplekv.Txish, path []string) (bool, error) {
	tx := txh.DBTx()
	if err := l.checkVersion(tx, true); err != nil {
		return false, err
	}
	if len(path) == 0 {
		return false, ErrRootDir
	}
	nd, found, err := l.lookup(tx, path)
	if err != nil || !found {
		return false, err
	}
	if err := l.removeSubtree(tx, nd.prefix); err != nil {
		return false, err
	}
	parent, _, err := l.lookup(tx, path[:len(path)-1])
	if err != nil {
		return false, err
	}
	if err := tx.Clear(l.childKey(parent.prefix, path[len(path)-1])); err != nil {
		return false, err
	}
	return true, nil
}

// removeSubtree deletes the node records and contents of the directory with
// the given prefix, recursing into children first.
func (l *Layer) removeSubtree(tx *tuplekv.Tx, prefix []byte) error {
	_, recs, err := l.children(tx, prefix)
	if err != nil {
		return err
	}
	for i := range recs {
		if err := l.removeSubtree(tx, recs[i].Prefix); err != nil {
			return err
		}
	}
	begin, end := l.nodes.Sub(prefix).Range()
	if err := tx.ClearRange(begin, end); err != nil {
		return err
	}
	return tx.ClearPrefix(prefix)
}

// isPrefixFree reports whether prefix does not overlap the node subspace or
// any existing directory prefix, in either direction.
func (l *Layer) isPrefixFree(tx *tuplekv.Tx, prefix []byte) (bool, error) {
	if len(prefix) == 0 || prefix[0] == 0xFF {
		return false, nil
	}
	root := l.nodes.Bytes()
	if bytes.HasPrefix(prefix, root) || bytes.HasPrefix(root, prefix) {
		return false, nil
	}
	free := true
	err := l.walkRecords(tx, root, func(rec nodeRecord) error {
		if bytes.HasPrefix(prefix, rec.Prefix) || bytes.HasPrefix(rec.Prefix, prefix) {
			free = false
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return free, nil
}

type diskVersion struct {
	present             bool
	major, minor, patch uint32
}

func (l *Layer) readVersion(tx *tuplekv.Tx) (diskVersion, error) {
	return tuplekv.Memo(tx, l.memoKey, func() (diskVersion, error) {
		raw := tx.Get(l.versionKey)
		if raw == nil {
			return diskVersion{}, nil
		}
		if len(raw) != 12 {
			return diskVersion{}, fmt.Errorf("%w: version record is %d bytes, wanted 12", ErrCorruptRecord, len(raw))
		}
		return diskVersion{
			present: true,
			major:   binary.LittleEndian.Uint32(raw[0:4]),
			minor:   binary.LittleEndian.Uint32(raw[4:8]),
			patch:   binary.LittleEndian.Uint32(raw[8:12]),
		}, nil
	})
}

func (l *Layer) checkVersion(tx *tuplekv.Tx, write bool) error {
	v, err := l.readVersion(tx)
	if err != nil {
		return err
	}
	if !v.present {
		if write {
			// First write initializes the version record. The memo keeps the
			// pre-init read; rewriting the same bytes is harmless.
			var buf [12]byte
			binary.LittleEndian.PutUint32(buf[0:4], versionMajor)
			binary.LittleEndian.PutUint32(buf[4:8], versionMinor)
			binary.LittleEndian.PutUint32(buf[8:12], versionPatch)
			return tx.Set(l.versionKey, buf[:])
		}
		return nil
	}
	if v.major > versionMajor {
		return fmt.Errorf("%w: data is at %d.%d.%d, supported is %d.%d.%d", ErrUnsupportedVersion,
			v.major, v.minor, v.patch, versionMajor, versionMinor, versionPatch)
	}
	if write && v.minor > versionMinor {
		return fmt.Errorf("%w: cannot write to %d.%d.%d data, this version writes %d.%d.%d", ErrUnsupportedVersion,
			v.major, v.minor, v.patch, versionMajor, versionMinor, versionPatch)
	}
	return nil
}
