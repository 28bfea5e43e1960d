// Writer state machine for the sidecar file.
//
// Lifecycle: open → (begin → put* → commit)* → close → materialize,
// with discard available from any state to abandon the file. The file
// is created with an .inprogress suffix and only gains its final name
// through an atomic rename in Materialize, so a crash at any earlier
// point leaves nothing recovery would consult.
//
// The entry set is fixed at construction from the snapshot read view.
// Begin on a pair that was not registered reports not-included and
// subsequent puts become no-ops, which lets index dump code emit its
// payload unconditionally.
//
// Protocol ordering is a client contract: the caller issues BeginPK
// before any secondary-key Begin of the same space, because the remap
// stream only makes sense when the primary key is emitted first. The
// writer does not enforce cross-entry ordering — entries are located
// by absolute offset, not position.
package sortdata

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/natefinch/atomic"
	"go.uber.org/multierr"
)

type writerState int

const (
	stateFresh writerState = iota
	stateOpen              // idle or writing; writing iff an entry is active
	stateClosed
	stateMaterialized
	stateDiscarded
)

// Writer produces one sidecar file per snapshot.
type Writer struct {
	c     *container
	bw    *bufio.Writer
	state writerState
}

// NewWriter scans the read view and registers the entries the file
// will carry. System spaces are skipped. A space contributes entries
// when at least one of its secondary keys is a memory-engine index
// advertising presort dump; the primary-key entry that carries the
// address stream is added for exactly those spaces. A single foreign-
// engine secondary key excludes its whole space. Never fails.
func NewWriter(rv *ReadView, dirname string, instanceUUID uuid.UUID, cfg Config) *Writer {
	c := newContainer(dirname, rv.Signature, instanceUUID, cfg.logger())

	for _, sp := range rv.Spaces {
		if sp == nil || sp.System {
			continue
		}
		var sks []uint32
		foreign := false
		for i := 1; i < len(sp.Indexes); i++ {
			ix := sp.Indexes[i]
			if ix == nil {
				continue
			}
			if ix.Engine != MemoryEngine {
				foreign = true
				break
			}
			if ix.DumpSortData == nil {
				continue
			}
			sks = append(sks, uint32(i))
		}
		if foreign || len(sks) == 0 {
			continue
		}
		c.entries.add(&entry{key: entryKey{spaceID: sp.ID, indexID: 0}})
		for _, id := range sks {
			c.entries.add(&entry{key: entryKey{spaceID: sp.ID, indexID: id}})
		}
	}

	return &Writer{c: c}
}

// Path returns the final (materialized) file name.
func (w *Writer) Path() string {
	return w.c.fname
}

// Open creates the .inprogress file and writes the header skeleton
// with zero placeholders, recording the slot offsets for backpatching.
func (w *Writer) Open() error {
	if w.state != stateFresh {
		panic("sortdata: Open on a used writer")
	}
	f, err := os.OpenFile(w.c.fname+inProgressSuffix,
		os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("%s: create: %w", w.c.fname, err)
	}
	w.c.f = f
	if err := w.c.writeSkeleton(); err != nil {
		return err
	}
	w.bw = bufio.NewWriterSize(f, 1<<16)
	w.state = stateOpen
	return nil
}

// Begin activates the entry for (spaceID, indexID). Returns false when
// the pair was not registered — the index is not included and later
// puts are no-ops. On seek failure the whole container is invalidated
// and every remaining entry is lost.
func (w *Writer) Begin(spaceID, indexID uint32) (bool, error) {
	if w.state != stateOpen {
		panic("sortdata: Begin outside open state")
	}
	if w.c.curr != nil {
		panic("sortdata: Begin with an active entry")
	}

	e := w.c.entries.find(spaceID, indexID)
	if e == nil {
		return false, nil
	}
	if e.committed {
		panic("sortdata: Begin on a committed entry")
	}

	if err := w.bw.Flush(); err != nil {
		w.c.invalidate()
		return false, fmt.Errorf("%s: flush: %w", w.c.fname, err)
	}
	pos, err := w.c.f.Seek(0, io.SeekEnd)
	if err != nil {
		w.c.log.Errorf("%s: space %d: index #%d seek failed, file ignored",
			w.c.fname, spaceID, indexID)
		w.c.invalidate()
		return false, fmt.Errorf("%s: seek: %w", w.c.fname, err)
	}
	e.offset = uint64(pos)
	e.psize = 0
	e.len = 0
	w.c.curr = e
	return true, nil
}

// Put appends elemCount elements of elemSize bytes each to the active
// entry. Without an active entry it is a no-op so callers can emit
// payload unconditionally.
func (w *Writer) Put(data []byte, elemSize, elemCount uint64) error {
	if w.state != stateOpen {
		panic("sortdata: Put outside open state")
	}
	if w.c.curr == nil {
		return nil
	}
	n := elemSize * elemCount
	if uint64(len(data)) != n {
		panic("sortdata: Put size mismatch")
	}
	written, err := w.bw.Write(data)
	if err != nil {
		return fmt.Errorf("%s: write: %w", w.c.fname, err)
	}
	if uint64(written) != n {
		return fmt.Errorf("%s: %w", w.c.fname, ErrShortWrite)
	}
	w.c.curr.psize += n
	w.c.curr.len += elemCount
	return nil
}

// Commit finalizes the active entry: the three header placeholders are
// patched with the final offset, physical size and tuple count, and
// primary-key entries contribute their count to the cardinality.
func (w *Writer) Commit() error {
	if w.state != stateOpen {
		panic("sortdata: Commit outside open state")
	}
	e := w.c.curr
	if e == nil {
		return nil
	}
	if err := w.bw.Flush(); err != nil {
		return fmt.Errorf("%s: flush: %w", w.c.fname, err)
	}
	if err := w.c.patchHex(e.offsetSlot, e.offset); err != nil {
		return fmt.Errorf("%s: patch offset: %w", w.c.fname, err)
	}
	if err := w.c.patchHex(e.psizeSlot, e.psize); err != nil {
		return fmt.Errorf("%s: patch psize: %w", w.c.fname, err)
	}
	if err := w.c.patchDec(e.lenSlot, e.len); err != nil {
		return fmt.Errorf("%s: patch len: %w", w.c.fname, err)
	}
	if e.key.indexID == 0 {
		w.c.cardinality += e.len
	}
	e.committed = true
	w.c.curr = nil
	return nil
}

// BeginPK activates the primary-key entry of a space, which carries
// the save-time tuple address stream.
func (w *Writer) BeginPK(spaceID uint32) (bool, error) {
	return w.Begin(spaceID, 0)
}

// PutPKTuple appends one tuple address to the active primary-key
// entry, in the snapshot's PK traversal order.
func (w *Writer) PutPKTuple(ptr TuplePtr) error {
	var b [8]byte
	binary.NativeEndian.PutUint64(b[:], uint64(ptr))
	return w.Put(b[:], 8, 1)
}

// CommitPK finalizes the primary-key entry.
func (w *Writer) CommitPK() error {
	return w.Commit()
}

// DumpIndex runs one secondary key's full begin/dump/commit cycle,
// honoring the dump hook's have-more batching. A nil error with no
// work done means the index was not included.
func (w *Writer) DumpIndex(spaceID, indexID uint32, dump DumpFunc, batch int64) error {
	included, err := w.Begin(spaceID, indexID)
	if err != nil || !included {
		return err
	}
	for {
		more, err := dump(w, batch)
		if err != nil {
			return err
		}
		if !more {
			break
		}
	}
	return w.Commit()
}

// Close backpatches the cardinality, syncs and closes the handle. The
// file still carries the .inprogress suffix until Materialize.
func (w *Writer) Close() error {
	if w.state != stateOpen {
		panic("sortdata: Close outside open state")
	}
	if w.c.curr != nil {
		panic("sortdata: Close with an active entry")
	}
	w.state = stateClosed
	if err := w.bw.Flush(); err != nil {
		return fmt.Errorf("%s: flush: %w", w.c.fname, err)
	}
	if err := w.c.patchDec(w.c.cardinalitySlot, w.c.cardinality); err != nil {
		return fmt.Errorf("%s: patch cardinality: %w", w.c.fname, err)
	}
	if err := w.c.f.Sync(); err != nil {
		return fmt.Errorf("%s: sync: %w", w.c.fname, err)
	}
	if err := w.c.f.Close(); err != nil {
		return fmt.Errorf("%s: close: %w", w.c.fname, err)
	}
	w.c.f = nil
	return nil
}

// Materialize atomically renames the .inprogress file to its final
// name. Until it returns, no complete-looking sidecar exists on disk.
func (w *Writer) Materialize() error {
	if w.state != stateClosed {
		panic("sortdata: Materialize before Close")
	}
	if err := atomic.ReplaceFile(w.c.fname+inProgressSuffix, w.c.fname); err != nil {
		return fmt.Errorf("%s: materialize: %w", w.c.fname, err)
	}
	w.state = stateMaterialized
	return nil
}

// Discard abandons the file: the handle is closed and both the
// in-progress and the materialized names are unlinked if present.
// Safe to call from any state, including after partial writes.
func (w *Writer) Discard() error {
	var errs error
	if w.c.f != nil {
		errs = multierr.Append(errs, w.c.f.Close())
		w.c.f = nil
	}
	if err := os.Remove(w.c.fname + inProgressSuffix); err != nil && !os.IsNotExist(err) {
		errs = multierr.Append(errs, err)
	}
	if err := os.Remove(w.c.fname); err != nil && !os.IsNotExist(err) {
		errs = multierr.Append(errs, err)
	}
	w.state = stateDiscarded
	return errs
}
