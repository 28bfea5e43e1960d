// Recovery choreography: feeding presorted runs to index builders.
//
// For each space, in the snapshot's space-iteration order, the driver
// streams the primary-key read (which re-allocates every tuple) while
// publishing each new address to the reader, then hands every
// secondary key its presorted run. Any degradation — no sidecar, a
// space not included, a damaged payload, an unresolvable address —
// routes the affected indexes to their conventional rebuild. The
// sidecar only ever makes recovery faster, never impossible.
package sortdata

import (
	"fmt"

	"go.uber.org/zap"
)

// BuildFunc bulk-loads one secondary key from its presorted run. The
// implementation calls Size, Read and then Resolve once per record,
// inserting without re-sorting. It reports false when the run could
// not be used (typically because Resolve invalidated the reader), in
// which case the driver falls back to RebuildFunc.
type BuildFunc func(r *Reader) bool

// RebuildFunc rebuilds one secondary key conventionally, by inserting
// every tuple of the space.
type RebuildFunc func() error

// RecoveryIndex describes one secondary key to recover.
type RecoveryIndex struct {
	ID uint32

	// BuildPresorted is nil for indexes without presort support.
	BuildPresorted BuildFunc
	Rebuild        RebuildFunc
}

// RecoverySpace describes one space to recover.
type RecoverySpace struct {
	ID uint32

	// LoadTuples runs the snapshot primary-key read for the space. It
	// must call alloc once per tuple, in PK order, with the tuple's
	// freshly allocated address.
	LoadTuples func(alloc func(TuplePtr)) error

	Indexes []RecoveryIndex
}

// Recover drives the per-space recovery protocol. r may be nil — then
// every index rebuilds conventionally. Reader degradation mid-run is
// absorbed: spaces and indexes past the point of damage rebuild
// conventionally and the error is only logged.
func Recover(r *Reader, spaces []RecoverySpace, log *zap.SugaredLogger) error {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	for i := range spaces {
		if err := recoverSpace(r, &spaces[i], log); err != nil {
			return err
		}
	}
	return nil
}

func recoverSpace(r *Reader, sp *RecoverySpace, log *zap.SugaredLogger) error {
	included := r != nil && r.SpaceInit(sp.ID)

	alloc := func(TuplePtr) {}
	if included {
		alloc = func(p TuplePtr) { r.AddPKTuple(p) }
	}
	if err := sp.LoadTuples(alloc); err != nil {
		return fmt.Errorf("space %d: load tuples: %w", sp.ID, err)
	}

	for _, ix := range sp.Indexes {
		if included && ix.BuildPresorted != nil && buildPresorted(r, sp.ID, &ix) {
			continue
		}
		if err := ix.Rebuild(); err != nil {
			return fmt.Errorf("space %d: rebuild index #%d: %w", sp.ID, ix.ID, err)
		}
	}

	if included {
		if !r.SpaceCommit() {
			log.Warnf("space %d: sort data degraded during recovery", sp.ID)
		}
		r.SpaceFree(sp.ID)
	}
	return nil
}

// buildPresorted attempts the bulk load of one secondary key. False
// means the caller must rebuild conventionally.
func buildPresorted(r *Reader, spaceID uint32, ix *RecoveryIndex) bool {
	included, err := r.Seek(spaceID, ix.ID)
	if err != nil || !included {
		return false
	}
	return ix.BuildPresorted(r)
}
