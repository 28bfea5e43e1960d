// Snapshot read-view model consumed by the writer.
//
// The snapshot pipeline hands the writer a frozen view of all spaces
// and their indexes. The writer scans it exactly once, at
// construction, to decide which (space, index) pairs get an entry in
// the file. Presort support is a per-index capability: an index that
// cannot dump its sorted leaves simply leaves DumpSortData nil.
package sortdata

// MemoryEngine is the engine name of indexes that live in memory and
// may therefore carry sort data. A secondary key of any other engine
// excludes its whole space from the sidecar.
const MemoryEngine = "memtx"

// ReadView is a consistent, frozen view of spaces and indexes produced
// at snapshot time.
type ReadView struct {
	// Signature is the vclock sum identifying the snapshot generation.
	Signature int64
	Spaces    []*SpaceReadView
}

// SpaceReadView is one space in the read view.
type SpaceReadView struct {
	ID uint32

	// System marks engine-internal spaces, which never carry sort data.
	System bool

	// Indexes holds the per-index read views positioned by index id;
	// element 0 is the primary key. Holes (indexes without a read
	// view) are nil.
	Indexes []*IndexReadView
}

// DumpFunc dumps a slice of this index's presorted run into the
// writer's active entry via Put. It emits at most limit tuples per
// call and reports whether more remain, so huge indexes can dump in
// batches between scheduler yields.
type DumpFunc func(w *Writer, limit int64) (haveMore bool, err error)

// IndexReadView is one index in the read view.
type IndexReadView struct {
	// Engine names the index's storage engine.
	Engine string

	// DumpSortData dumps the index's presorted run. Nil means the
	// index does not support presort dump.
	DumpSortData DumpFunc
}
