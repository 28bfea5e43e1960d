// Reader state machine for the sidecar file.
//
// Construction parses and validates the header; a file that is
// missing, foreign or damaged yields a nil reader and recovery falls
// back to a conventional rebuild. Per space, the primary-key address
// stream is pulled through a bounded buffer in lockstep with the
// snapshot read to populate the old→new remap table; each secondary
// key is then located by header offset, read whole, and its embedded
// save-time addresses resolved through the table.
//
// Any corruption detected after construction invalidates the reader:
// the entry registry is emptied, the remap table released, the handle
// closed. From then on the reader is a sink — Seek reports
// not-included, Resolve reports unknown — which the engine interprets
// as "no presorted data for the remainder".
package sortdata

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
)

// Reader consumes one sidecar file during snapshot recovery.
type Reader struct {
	c *container

	// Primary-key streaming state.
	remaining uint64 // addresses not yet pulled from the current entry
	buf       []byte // bounded pre-read buffer, bufSlots addresses
	bufSlots  int
	bufSize   int // addresses available in buf
	bufIdx    int // next address to consume

	old2new *remapTable
	invalid bool
}

// NewReader opens and validates the sidecar of a snapshot generation.
// Returns nil when no usable sidecar exists: the file is absent, or it
// is malformed, or it belongs to another instance. instanceUUID equal
// to uuid.Nil accepts any instance.
func NewReader(dirname string, signature int64, instanceUUID uuid.UUID, cfg Config) *Reader {
	log := cfg.logger()
	c := newContainer(dirname, signature, instanceUUID, log)

	f, err := os.Open(c.fname)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warnf("sort data file '%s' ignored: %v", c.fname, err)
		}
		return nil
	}
	c.f = f

	hi, err := parseHeader(bufio.NewReader(f), c.fname, log)
	if err == nil && instanceUUID != uuid.Nil && hi.hasInstance && hi.instance != instanceUUID {
		err = ErrUUIDMismatch
	}
	if err != nil {
		log.Warnf("sort data file '%s' ignored: %v", c.fname, err)
		f.Close()
		return nil
	}

	c.cardinality = hi.cardinality
	for _, e := range hi.entries {
		c.entries.add(e)
	}

	slots := cfg.bufferSlots()
	r := &Reader{
		c:        c,
		buf:      make([]byte, slots*8),
		bufSlots: slots,
		old2new:  newRemapTable(hi.cardinality),
	}
	log.Infof("using the sort data from '%s'", c.fname)
	return r
}

// invalidateReader drops everything: registry, remap table, streaming
// state and the file handle. Subsequent queries miss cleanly.
func (r *Reader) invalidateReader() {
	r.c.invalidate()
	r.old2new = newRemapTable(0)
	r.remaining = 0
	r.bufSize = 0
	r.bufIdx = 0
	r.invalid = true
	if r.c.f != nil {
		r.c.f.Close()
		r.c.f = nil
	}
}

// SpaceInit prepares primary-key streaming for a space. Returns false
// when the space has no sort data (absent from the file, or the file
// was invalidated) — the caller then rebuilds conventionally.
func (r *Reader) SpaceInit(spaceID uint32) bool {
	e := r.c.entries.find(spaceID, 0)
	if e == nil {
		r.c.curr = nil
		return false
	}
	if _, err := r.c.f.Seek(int64(e.offset), io.SeekStart); err != nil {
		r.c.log.Errorf("%s: space %d: PK seek failed, file ignored",
			r.c.fname, spaceID)
		r.invalidateReader()
		return false
	}
	r.c.curr = e
	r.remaining = e.len
	r.bufSize = 0
	r.bufIdx = 0
	return true
}

// AddPKTuple publishes the load-time address of the next primary-key
// tuple. Called once per tuple, in the snapshot's PK order; the
// matching save-time address is pulled from the file through the
// bounded buffer and the pair is recorded in the remap table. A short
// read, an overrun past the recorded count, or a duplicate save-time
// address invalidates the reader.
func (r *Reader) AddPKTuple(newPtr TuplePtr) {
	if r.c.curr == nil {
		return
	}
	if r.bufIdx >= r.bufSize {
		spaceID := r.c.curr.key.spaceID
		if r.remaining == 0 {
			r.c.log.Errorf("%s: space %d: PK read failed, file ignored",
				r.c.fname, spaceID)
			r.invalidateReader()
			return
		}
		n := min(uint64(r.bufSlots), r.remaining)
		if _, err := io.ReadFull(r.c.f, r.buf[:n*8]); err != nil {
			r.c.log.Errorf("%s: space %d: PK read failed, file ignored",
				r.c.fname, spaceID)
			r.invalidateReader()
			return
		}
		r.remaining -= n
		r.bufSize = int(n)
		r.bufIdx = 0
	}
	old := binary.NativeEndian.Uint64(r.buf[r.bufIdx*8:])
	r.bufIdx++
	if !r.old2new.put(old, uint64(newPtr)) {
		r.c.log.Errorf("%s: space %d: duplicate tuple address, file ignored",
			r.c.fname, r.c.curr.key.spaceID)
		r.invalidateReader()
	}
}

// Seek locates a secondary key's payload. included reports whether the
// file carries an entry for the pair; a false with a nil error leaves
// the reader valid and only that index falls back to a conventional
// rebuild. The error is non-nil once the reader has been invalidated
// or when the seek itself fails.
func (r *Reader) Seek(spaceID, indexID uint32) (included bool, err error) {
	if r.invalid {
		return false, ErrInvalidated
	}
	e := r.c.entries.find(spaceID, indexID)
	if e == nil {
		return false, nil
	}
	if _, err := r.c.f.Seek(int64(e.offset), io.SeekStart); err != nil {
		r.c.log.Errorf("%s: space %d: SK seek failed, file ignored",
			r.c.fname, spaceID)
		r.invalidateReader()
		return false, fmt.Errorf("%s: seek: %w", r.c.fname, err)
	}
	r.c.curr = e
	return true, nil
}

// Size returns the payload length of the located entry.
func (r *Reader) Size() uint64 {
	if r.c.curr == nil {
		panic("sortdata: Size without a located entry")
	}
	return r.c.curr.psize
}

// Read fills buf with the located entry's payload, exactly Size
// bytes. A short read invalidates the reader.
func (r *Reader) Read(buf []byte) error {
	e := r.c.curr
	if e == nil {
		panic("sortdata: Read without a located entry")
	}
	if uint64(len(buf)) < e.psize {
		panic("sortdata: Read buffer smaller than payload")
	}
	if _, err := io.ReadFull(r.c.f, buf[:e.psize]); err != nil {
		r.c.log.Errorf("%s: space %d: SK read failed, file ignored",
			r.c.fname, e.key.spaceID)
		r.invalidateReader()
		return fmt.Errorf("%s: %w", r.c.fname, ErrTruncated)
	}
	return nil
}

// Resolve maps a save-time tuple address to its load-time counterpart.
// An unknown address means the file disagrees with the snapshot; the
// reader invalidates and reports no mapping.
func (r *Reader) Resolve(old TuplePtr) (TuplePtr, bool) {
	if r.c.curr == nil {
		return 0, false
	}
	v, ok := r.old2new.get(uint64(old))
	if !ok {
		r.c.log.Errorf("%s: space %d: tuple resolve failed, file ignored",
			r.c.fname, r.c.curr.key.spaceID)
		r.invalidateReader()
		return 0, false
	}
	return TuplePtr(v), true
}

// SpaceCommit reports whether the space recovered without the reader
// degrading; false means some index of the space may be incomplete and
// must be rebuilt conventionally.
func (r *Reader) SpaceCommit() bool {
	return r.c.curr != nil
}

// SpaceFree releases the per-space streaming state. The remap entries
// are retained until Close — addresses are globally unique across
// spaces, so keeping them costs memory but never correctness.
func (r *Reader) SpaceFree(spaceID uint32) {
	r.c.curr = nil
}

// Close releases the reader.
func (r *Reader) Close() error {
	r.old2new = nil
	if r.c.f == nil {
		return nil
	}
	err := r.c.f.Close()
	r.c.f = nil
	if err != nil && !errors.Is(err, os.ErrClosed) {
		return fmt.Errorf("%s: close: %w", r.c.fname, err)
	}
	return nil
}
