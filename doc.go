/*
Package tuplekv implements an ordered key-value store with tuple-encoded
keys (on top of Bolt, Pebble or an in-memory backend).

We implement:

1. Ordered binary keys, encoded with the tuple encoding from the tuple
subpackage, so that byte order matches the natural order of the values
inside the keys.

2. Subspaces (see the subspace subpackage), scoping keys under opaque byte
prefixes.

3. Transactions, one writer at a time and any number of snapshot readers,
with managed wrappers (Read, ReadErr, Write, Tx) and raw Begin calls.

4. Versionstamped operations, assigning each mutating transaction a
monotonically increasing version that can be spliced into keys and values
at commit time.

5. Directories (see the directory subpackage), mapping path-like names to
short allocated key prefixes.

6. Snapshots, exporting and importing the whole store as a checksummed flat
file.

# Technical Details

**Keyspace.**
The store is a single flat ordered keyspace. Keys starting with 0xFF are
reserved for the store itself and are invisible to user operations; the
only system key currently in use holds the commit version counter.

**Backends.**
Bolt is the default backend and stores everything in one file (inside a
single bucket; the keyspace is flat). Pebble stores data in a directory.
The memory backend is for tests. All three expose the same cursor-based
interface internally, and one conformance suite covers them.

**Commit protocol.**
Versionstamped writes are deferred. At commit, the store allocates the next
transaction version, patches the 10-byte placeholder in every deferred key
or value, writes them together with the updated version counter, and then
commits the storage transaction. A transaction either commits entirely or
leaves no trace. Batch numbers are always zero: with a single writer there
is nothing to disambiguate.

**Versionstamp buffers.**
SetVersionstampedKey and SetVersionstampedValue accept only buffers produced
by tuple.Tuple.PackWithVersionstamp (directly or through a subspace), which
carry a 2-byte little-endian trailer recording the placeholder offset. The
trailer is stripped before the key hits storage.
*/
package tuplekv
