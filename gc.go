// Garbage collection of sidecar files.
//
// A sidecar is pinned to its snapshot generation through the shared
// 20-digit signature prefix. When the snapshot of a generation is
// collected, the companion sidecar goes with it. A leftover
// .inprogress file — the trace of a writer that died between open and
// materialize — is never consulted by recovery, but it is disk the
// operator paid for, so the sweep removes those too.
package sortdata

import (
	"os"
	"path/filepath"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Collect removes the sidecar of a collected snapshot generation.
// A missing sidecar is not an error.
func Collect(dirname string, signature int64, log *zap.SugaredLogger) error {
	fname := FileName(dirname, signature)
	err := os.Remove(fname)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if log != nil {
		log.Infof("removed the sort data file '%s'", fname)
	}
	return nil
}

// Sweep removes every stale .inprogress sidecar in the directory.
// Called once at startup, before any writer runs, so the only
// .inprogress files that can exist are crash leftovers.
func Sweep(dirname string, log *zap.SugaredLogger) error {
	stale, err := filepath.Glob(filepath.Join(dirname, "*"+fileSuffix+inProgressSuffix))
	if err != nil {
		return err
	}
	var errs error
	for _, fname := range stale {
		if err := os.Remove(fname); err != nil && !os.IsNotExist(err) {
			errs = multierr.Append(errs, err)
			continue
		}
		if log != nil {
			log.Warnf("removed incomplete sort data file '%s'", fname)
		}
	}
	return errs
}
