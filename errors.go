// Package sortdata reads and writes the sort-data sidecar file that
// accompanies an in-memory engine snapshot.
//
// At snapshot time the engine serializes primary-key tuples in sorted
// order; without help, every secondary key would have to be rebuilt on
// startup by re-inserting every tuple. The sidecar records each
// secondary key's sorted leaf arrangement next to the snapshot, plus a
// primary-key address stream that lets recovery translate tuple
// addresses captured at save time into the addresses allocated at load
// time. With the sidecar present, secondary keys are bulk-loaded from
// presorted runs instead of being re-sorted.
//
// The sidecar is strictly optional: a missing, foreign or damaged file
// degrades recovery to a conventional rebuild, never fails it.
package sortdata

import "errors"

// Sentinel errors returned by sidecar operations.
var (
	// ErrMalformed is returned when the file header cannot be parsed.
	ErrMalformed = errors.New("malformed sort data file")

	// ErrUUIDMismatch is returned when the file belongs to a different
	// instance than the one recovering.
	ErrUUIDMismatch = errors.New("sort data instance uuid mismatch")

	// ErrTruncated is returned when a payload region ends before the
	// header says it should.
	ErrTruncated = errors.New("truncated sort data")

	// ErrInvalidated is returned by operations on a reader that has
	// already detected corruption and shut itself down.
	ErrInvalidated = errors.New("sort data invalidated")

	// ErrNotFound is returned when a requested (space, index) entry is
	// not present in the file.
	ErrNotFound = errors.New("sort data entry not found")

	// ErrShortWrite is returned when the OS accepts fewer bytes than
	// requested during payload emission.
	ErrShortWrite = errors.New("short sort data write")
)
