// Shared container state for the sidecar file.
//
// Writer and reader wrap the same core: an exclusively owned file
// handle, the entry registry, the single active entry, and the running
// primary-key cardinality. All calls happen on the thread that owns
// the snapshot pipeline; nothing here is safe for concurrent use.
package sortdata

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// fileSuffix is the extension of a materialized sidecar file.
	fileSuffix = ".sortdata"

	// inProgressSuffix marks a sidecar that is still being written.
	// Only the suffix-free name is ever consulted on recovery, so a
	// crash mid-write leaves nothing that could be mistaken for a
	// complete file.
	inProgressSuffix = ".inprogress"
)

// Version is the free-form software version recorded in the header.
// The reader requires its presence but not any particular value.
const Version = "1.0.0"

// Config carries optional knobs shared by the writer and reader.
// The zero value is fully usable.
type Config struct {
	// Logger receives the diagnostic channel. Nil means silent.
	Logger *zap.SugaredLogger

	// BufferSlots is the capacity, in pointer-sized elements, of the
	// reader's primary-key pre-read buffer. Defaults to 1,048,576.
	BufferSlots int
}

func (c Config) logger() *zap.SugaredLogger {
	if c.Logger != nil {
		return c.Logger
	}
	return zap.NewNop().Sugar()
}

func (c Config) bufferSlots() int {
	if c.BufferSlots > 0 {
		return c.BufferSlots
	}
	return 1 << 20
}

// FileName returns the sidecar path for a snapshot generation. The
// 20-digit zero-padded signature matches the snapshot file prefix.
func FileName(dirname string, signature int64) string {
	return filepath.Join(dirname, fmt.Sprintf("%020d%s", signature, fileSuffix))
}

// container is the state shared by the writer and reader sides.
type container struct {
	f            *os.File
	fname        string
	dirname      string
	signature    int64
	instanceUUID uuid.UUID

	entries *registry
	curr    *entry // the entry between begin and commit, or nil

	cardinality     uint64 // running total of PK tuples
	cardinalitySlot int64  // header offset of the cardinality digits

	log *zap.SugaredLogger
}

func newContainer(dirname string, signature int64, instanceUUID uuid.UUID, log *zap.SugaredLogger) *container {
	return &container{
		fname:        FileName(dirname, signature),
		dirname:      dirname,
		signature:    signature,
		instanceUUID: instanceUUID,
		entries:      newRegistry(),
		log:          log,
	}
}

// invalidate turns the container into a sink: the active entry is
// dropped and the registry is emptied so every later lookup misses.
func (c *container) invalidate() {
	c.curr = nil
	c.entries.clear()
}
