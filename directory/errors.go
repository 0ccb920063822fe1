package directory

import "errors"

var (
	// ErrDirNotFound is returned when the directory at the given path does
	// not exist.
	ErrDirNotFound = errors.New("directory does not exist")

	// ErrDirExists is returned by Create and Move when the target path is
	// already taken.
	ErrDirExists = errors.New("directory already exists")

	// ErrLayerMismatch means the directory exists, but was created with a
	// different layer tag than the one requested.
	ErrLayerMismatch = errors.New("directory was created with a different layer tag")

	// ErrPrefixConflict means a prefix overlaps the node subspace, an
	// existing directory, or (for allocated prefixes) existing data.
	ErrPrefixConflict = errors.New("directory prefix conflict")

	// ErrRootDir is returned by operations that cannot act on the root
	// directory itself.
	ErrRootDir = errors.New("cannot perform this operation on the root directory")

	// ErrUnsupportedVersion means the directory metadata was written by an
	// incompatible newer version of this package.
	ErrUnsupportedVersion = errors.New("unsupported directory metadata version")

	// ErrCorruptRecord means directory metadata failed to decode.
	ErrCorruptRecord = errors.New("corrupt directory record")
)
