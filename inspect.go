// Offline inspection of sidecar files.
//
// Inspect parses a sidecar header without any snapshot context and
// returns a machine-readable description: the version and instance
// lines, the cardinality, and every entry with its region geometry.
// Payload fingerprints let support compare two files byte-for-byte
// without shipping the payloads themselves. DumpPayload extracts one
// entry's raw bytes, optionally zstd-compressed, for a support bundle.
//
// These entry points back the cmd/sortdata tool and are exercised
// directly by tests.
package sortdata

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
)

// EntryInfo describes one payload region of an inspected file.
type EntryInfo struct {
	SpaceID     uint32 `json:"space_id"`
	IndexID     uint32 `json:"index_id"`
	Offset      uint64 `json:"offset"`
	PSize       uint64 `json:"psize"`
	Len         uint64 `json:"len"`
	Fingerprint string `json:"fingerprint,omitempty"` // blake2b-128 of the payload
}

// FileInfo is the parsed description of a sidecar file.
type FileInfo struct {
	Path        string      `json:"path"`
	Version     string      `json:"version"`
	Instance    string      `json:"instance,omitempty"`
	Cardinality uint64      `json:"cardinality"`
	Entries     []EntryInfo `json:"entries"`
}

// JSON renders the description for tooling output.
func (fi *FileInfo) JSON() ([]byte, error) {
	return json.MarshalIndent(fi, "", "  ")
}

// Inspect parses the header of the sidecar at path. With fingerprints
// set, every entry's payload is hashed so two files can be compared
// without access to their contents.
func Inspect(path string, fingerprints bool) (*FileInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	hi, err := parseHeader(bufio.NewReader(f), path, zap.NewNop().Sugar())
	if err != nil {
		return nil, err
	}

	fi := &FileInfo{
		Path:        path,
		Version:     hi.version,
		Cardinality: hi.cardinality,
	}
	if hi.hasInstance {
		fi.Instance = hi.instance.String()
	}
	for _, e := range hi.entries {
		info := EntryInfo{
			SpaceID: e.key.spaceID,
			IndexID: e.key.indexID,
			Offset:  e.offset,
			PSize:   e.psize,
			Len:     e.len,
		}
		if fingerprints {
			fp, err := fingerprint(f, e)
			if err != nil {
				return nil, fmt.Errorf("%s: entry %d/%d: %w",
					path, e.key.spaceID, e.key.indexID, err)
			}
			info.Fingerprint = fp
		}
		fi.Entries = append(fi.Entries, info)
	}
	return fi, nil
}

// fingerprint hashes one entry's payload region.
func fingerprint(f *os.File, e *entry) (string, error) {
	h, _ := blake2b.New(16, nil)
	section := io.NewSectionReader(f, int64(e.offset), int64(e.psize))
	n, err := io.Copy(h, section)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	if uint64(n) != e.psize {
		return "", ErrTruncated
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// DumpPayload writes one entry's raw payload bytes to w, optionally
// zstd-compressed for transport. Returns ErrNotFound when the file has
// no entry for the pair.
func DumpPayload(path string, spaceID, indexID uint32, w io.Writer, compress bool) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	hi, err := parseHeader(bufio.NewReader(f), path, zap.NewNop().Sugar())
	if err != nil {
		return err
	}
	var target *entry
	for _, e := range hi.entries {
		if e.key.spaceID == spaceID && e.key.indexID == indexID {
			target = e
			break
		}
	}
	if target == nil {
		return fmt.Errorf("%s: %d/%d: %w", path, spaceID, indexID, ErrNotFound)
	}

	section := io.NewSectionReader(f, int64(target.offset), int64(target.psize))
	if !compress {
		n, err := io.Copy(w, section)
		if err != nil || uint64(n) != target.psize {
			return fmt.Errorf("%s: %w", path, ErrTruncated)
		}
		return nil
	}

	// SpeedFastest: dumps are taken from live systems, so the priority
	// is getting off the box quickly, not the last few ratio points.
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return err
	}
	n, err := io.Copy(zw, section)
	if err != nil || uint64(n) != target.psize {
		zw.Close()
		return fmt.Errorf("%s: %w", path, ErrTruncated)
	}
	return zw.Close()
}
