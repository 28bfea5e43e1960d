// Header codec for the sidecar file.
//
// The file opens with an ASCII header terminated by a blank line,
// followed by the binary payload area:
//
//	SORTDATA\n
//	1\n
//	Version: <free-form>\n
//	Instance: <36-char UUID>\n
//	Cardinality: <20-digit decimal>\n
//	Entries: <count>\n
//	<space>/<index>: <16-hex offset>, <16-hex psize>, <20-dec len>\n
//	\n
//
// The numeric fields are fixed-width so they can be rewritten in place
// once the payload sizes are known: the writer records the byte
// position of the first digit of each placeholder while emitting the
// skeleton, then seeks back and overwrites exactly those digits on
// commit and close. The widths — 16 hex for offsets and sizes, 20
// decimal for counts — are part of the format.
package sortdata

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	magicLine   = "SORTDATA\n"
	versionLine = "1\n"

	keyVersion     = "Version: "
	keyInstance    = "Instance: "
	keyCardinality = "Cardinality: "
	keyEntries     = "Entries: "
)

// writeSkeleton emits the header with zero placeholders and records
// the slot offsets used for backpatching. The header is assembled in
// memory first so every slot position is simply the buffer length at
// the moment the placeholder is appended.
func (c *container) writeSkeleton() error {
	var b bytes.Buffer
	b.WriteString(magicLine)
	b.WriteString(versionLine)
	fmt.Fprintf(&b, "%s%s\n", keyVersion, Version)
	fmt.Fprintf(&b, "%s%s\n", keyInstance, c.instanceUUID.String())

	b.WriteString(keyCardinality)
	c.cardinalitySlot = int64(b.Len())
	fmt.Fprintf(&b, "%020d\n", 0)

	fmt.Fprintf(&b, "%s%d\n", keyEntries, c.entries.size())
	for _, key := range c.entries.order {
		e := c.entries.byKey[key]
		fmt.Fprintf(&b, "%d/%d: ", key.spaceID, key.indexID)
		e.offsetSlot = int64(b.Len())
		fmt.Fprintf(&b, "%016x, ", 0)
		e.psizeSlot = int64(b.Len())
		fmt.Fprintf(&b, "%016x, ", 0)
		e.lenSlot = int64(b.Len())
		fmt.Fprintf(&b, "%020d\n", 0)
	}
	b.WriteByte('\n')

	if _, err := c.f.Write(b.Bytes()); err != nil {
		return fmt.Errorf("%s: write header: %w", c.fname, err)
	}
	return nil
}

// patchHex overwrites a 16-hex placeholder in place.
func (c *container) patchHex(slot int64, v uint64) error {
	_, err := c.f.WriteAt(fmt.Appendf(nil, "%016x", v), slot)
	return err
}

// patchDec overwrites a 20-decimal placeholder in place.
func (c *container) patchDec(slot int64, v uint64) error {
	_, err := c.f.WriteAt(fmt.Appendf(nil, "%020d", v), slot)
	return err
}

// headerInfo is the parsed header of an existing sidecar file.
type headerInfo struct {
	version     string
	instance    uuid.UUID
	hasInstance bool
	cardinality uint64
	entries     []*entry // header line order
}

// parseHeader reads and validates the ASCII header. Structural damage
// (magic, version, a missing Version line, UUID, cardinality, the
// len/psize sanity check)
// rejects the whole file; a single unparsable entry line is logged and
// skipped so one damaged index does not cost the others.
func parseHeader(br *bufio.Reader, fname string, log *zap.SugaredLogger) (*headerInfo, error) {
	line, err := br.ReadString('\n')
	if err != nil || line != magicLine {
		return nil, fmt.Errorf("%w: bad file magic", ErrMalformed)
	}
	line, err = br.ReadString('\n')
	if err != nil || line != versionLine {
		return nil, fmt.Errorf("%w: unsupported file version", ErrMalformed)
	}

	hi := &headerInfo{}
	expect := 0
	hasVersion := false
	for {
		line, err = br.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("%w: unterminated header", ErrMalformed)
		}
		switch {
		case line == "\n":
			if !hasVersion {
				return nil, fmt.Errorf("%w: missing version", ErrMalformed)
			}
			return hi, nil
		case strings.HasPrefix(line, keyVersion):
			hi.version = strings.TrimSuffix(line[len(keyVersion):], "\n")
			hasVersion = true
		case strings.HasPrefix(line, keyInstance):
			s := strings.TrimSuffix(line[len(keyInstance):], "\n")
			if len(s) != 36 {
				return nil, fmt.Errorf("%w: invalid instance uuid size", ErrMalformed)
			}
			u, err := uuid.Parse(s)
			if err != nil {
				return nil, fmt.Errorf("%w: invalid instance uuid", ErrMalformed)
			}
			hi.instance = u
			hi.hasInstance = true
		case strings.HasPrefix(line, keyCardinality):
			s := strings.TrimSuffix(line[len(keyCardinality):], "\n")
			v, err := strconv.ParseUint(s, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: invalid cardinality", ErrMalformed)
			}
			hi.cardinality = v
		case strings.HasPrefix(line, keyEntries):
			s := strings.TrimSuffix(line[len(keyEntries):], "\n")
			v, err := strconv.Atoi(s)
			if err != nil || v < 0 {
				return nil, fmt.Errorf("%w: invalid entry count", ErrMalformed)
			}
			expect = v
		case expect > 0:
			e, err := parseEntryLine(line)
			if err != nil {
				log.Warnf("%s: unexpected contents in the sort data entry, index skipped: %s",
					fname, strings.TrimSuffix(line, "\n"))
				continue
			}
			if (e.len == 0) != (e.psize == 0) {
				return nil, fmt.Errorf("%w: entry size verification failed", ErrMalformed)
			}
			hi.entries = append(hi.entries, e)
			expect--
		}
	}
}

// parseEntryLine parses one `<space>/<index>: <offset>, <psize>, <len>`
// line. The literal separators are part of the format; anything else
// fails the parse.
func parseEntryLine(line string) (*entry, error) {
	s := strings.TrimSuffix(line, "\n")

	spaceStr, rest, ok := strings.Cut(s, "/")
	if !ok {
		return nil, fmt.Errorf("%w: expected '/' after space id", ErrMalformed)
	}
	indexStr, rest, ok := strings.Cut(rest, ": ")
	if !ok {
		return nil, fmt.Errorf("%w: expected ': ' after index id", ErrMalformed)
	}
	offsetStr, rest, ok := strings.Cut(rest, ", ")
	if !ok {
		return nil, fmt.Errorf("%w: expected ', ' after data offset", ErrMalformed)
	}
	psizeStr, lenStr, ok := strings.Cut(rest, ", ")
	if !ok {
		return nil, fmt.Errorf("%w: expected ', ' after physical size", ErrMalformed)
	}

	spaceID, err := strconv.ParseUint(spaceStr, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid space id", ErrMalformed)
	}
	indexID, err := strconv.ParseUint(indexStr, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid index id", ErrMalformed)
	}
	offset, err := strconv.ParseUint(offsetStr, 16, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid data offset", ErrMalformed)
	}
	psize, err := strconv.ParseUint(psizeStr, 16, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid physical size", ErrMalformed)
	}
	length, err := strconv.ParseUint(lenStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid tuple count", ErrMalformed)
	}

	return &entry{
		key:    entryKey{spaceID: uint32(spaceID), indexID: uint32(indexID)},
		offset: offset,
		psize:  psize,
		len:    length,
	}, nil
}
