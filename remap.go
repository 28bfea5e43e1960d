// Old-to-new tuple address remapping.
//
// Secondary-key payloads embed tuple addresses as they were at save
// time. During recovery every tuple is re-allocated, so each embedded
// address must be translated before insertion. The remap table is a
// dense open-addressing hash map from save-time address to load-time
// address, filled once by the primary-key stream and then probed once
// per secondary-key record.
//
// The table is sized up front from the header's Cardinality field so
// that streaming millions of primary-key tuples never rehashes.
package sortdata

import (
	"encoding/binary"

	"github.com/zeebo/xxh3"
)

// TuplePtr is an opaque pointer-sized tuple address. The writer stores
// the value verbatim; the reader only ever compares and maps it.
type TuplePtr uint64

// remapSlot is one table cell. A zero key means the slot is free —
// tuple addresses are never null, so no separate occupancy bit is
// needed and the table stays at 16 bytes per slot.
type remapSlot struct {
	key uint64
	val uint64
}

type remapTable struct {
	slots []remapSlot
	mask  uint64
	count int
}

// hashPtr hashes a tuple address: xxh3 over the 8 key bytes.
func hashPtr(p uint64) uint64 {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], p)
	return xxh3.Hash(b[:])
}

// newRemapTable creates a table pre-reserved for n keys. Capacity is
// the smallest power of two, at least 1024, above 4n/3 so the load
// factor stays below 0.75 even when the header's cardinality is exact.
func newRemapTable(n uint64) *remapTable {
	capacity := uint64(1024)
	for capacity < n+n/3+1 {
		capacity <<= 1
	}
	return &remapTable{
		slots: make([]remapSlot, capacity),
		mask:  capacity - 1,
	}
}

// put inserts old→new. Returns false if old is null, which names no
// tuple, or already present, which means the file records two distinct
// tuples at one save-time address — a valid snapshot produces neither.
func (t *remapTable) put(old, new uint64) bool {
	if old == 0 {
		return false
	}
	if t.count >= len(t.slots)*3/4 {
		t.grow()
	}
	i := hashPtr(old) & t.mask
	for {
		s := &t.slots[i]
		if s.key == 0 {
			s.key = old
			s.val = new
			t.count++
			return true
		}
		if s.key == old {
			return false
		}
		i = (i + 1) & t.mask
	}
}

// get probes for old. The second result is false when the address was
// never published through the primary-key stream.
func (t *remapTable) get(old uint64) (uint64, bool) {
	if old == 0 {
		return 0, false
	}
	i := hashPtr(old) & t.mask
	for {
		s := &t.slots[i]
		if s.key == 0 {
			return 0, false
		}
		if s.key == old {
			return s.val, true
		}
		i = (i + 1) & t.mask
	}
}

// grow doubles the table. Only reachable when the header understated
// cardinality; the normal path reserves exactly once.
func (t *remapTable) grow() {
	old := t.slots
	t.slots = make([]remapSlot, len(old)*2)
	t.mask = uint64(len(t.slots) - 1)
	t.count = 0
	for _, s := range old {
		if s.key != 0 {
			t.put(s.key, s.val)
		}
	}
}
