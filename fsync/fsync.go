package fsync

import "os"

// Datasync flushes written data to stable storage using the cheapest
// syscall the platform offers that still guarantees durability.
//
// On Linux this is fdatasync(2), which skips flushing metadata-only
// updates (modification times and the like) that a full fsync would
// also wait for. Elsewhere it falls back to File.Sync.
//
// Errors are not recoverable: most kernels mark dirty pages clean even
// when the flush fails, so a retry reports success without making the
// data durable. Treat a failure as a corrupt output file.
func Datasync(f *os.File) error {
	return datasync(f)
}
