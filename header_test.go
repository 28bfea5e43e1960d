// Header format and parser tests.
//
// The header is the only part of the file both sides interpret, and
// its numeric fields are rewritten in place at recorded byte offsets —
// so the exact byte layout is a contract, not an implementation
// detail. These tests verify the skeleton the writer emits, the
// fixed placeholder widths the backpatcher depends on, and the
// parser's split between structural damage (file rejected) and a
// single bad entry line (line skipped, file kept).
package sortdata

import (
	"bufio"
	"errors"
	"os"
	"strings"
	"testing"

	"go.uber.org/zap"
)

// skeleton returns the header bytes of a freshly opened (unwritten)
// file for one space with one secondary key.
func skeleton(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	sp := space(512, sk([]byte("AAAA"), 1))
	rv := &ReadView{Signature: 77, Spaces: []*SpaceReadView{sp}}
	w := NewWriter(rv, dir, testUUID, Config{})
	if err := w.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer w.Discard()

	raw, err := os.ReadFile(w.Path() + inProgressSuffix)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	return string(raw)
}

// TestSkeletonLayout pins the header line by line. The reader parses
// these byte patterns with exact literal separators; any drift makes
// every existing sidecar unreadable.
func TestSkeletonLayout(t *testing.T) {
	got := skeleton(t)
	want := strings.Join([]string{
		"SORTDATA",
		"1",
		"Version: " + Version,
		"Instance: 11111111-2222-3333-4444-555555555555",
		"Cardinality: 00000000000000000000",
		"Entries: 2",
		"512/0: 0000000000000000, 0000000000000000, 00000000000000000000",
		"512/1: 0000000000000000, 0000000000000000, 00000000000000000000",
		"",
		"",
	}, "\n")
	if got != want {
		t.Errorf("skeleton mismatch:\ngot:\n%q\nwant:\n%q", got, want)
	}
}

// TestFileName guards the 20-digit zero-padded signature prefix shared
// with the snapshot file — garbage collection pairs the two files by
// this prefix.
func TestFileName(t *testing.T) {
	got := FileName("/snaps", 42)
	if got != "/snaps/00000000000000000042.sortdata" {
		t.Errorf("FileName = %q", got)
	}
}

// parse is a helper running parseHeader over literal file contents.
func parse(s string) (*headerInfo, error) {
	return parseHeader(bufio.NewReader(strings.NewReader(s)), "test", zap.NewNop().Sugar())
}

const validHeader = "SORTDATA\n1\n" +
	"Version: 1.0.0\n" +
	"Instance: 11111111-2222-3333-4444-555555555555\n" +
	"Cardinality: 00000000000000000003\n" +
	"Entries: 1\n" +
	"512/1: 00000000000000d2, 0000000000000004, 00000000000000000001\n" +
	"\n"

// TestParseHeaderValid verifies a well-formed header parses into the
// expected fields with hex offsets and decimal counts decoded in the
// right bases — a base mix-up here would seek payload reads into the
// middle of other entries.
func TestParseHeaderValid(t *testing.T) {
	hi, err := parse(validHeader)
	if err != nil {
		t.Fatalf("parseHeader: %v", err)
	}
	if hi.version != "1.0.0" {
		t.Errorf("version = %q", hi.version)
	}
	if !hi.hasInstance || hi.instance != testUUID {
		t.Errorf("instance = %v, %v", hi.instance, hi.hasInstance)
	}
	if hi.cardinality != 3 {
		t.Errorf("cardinality = %d", hi.cardinality)
	}
	if len(hi.entries) != 1 {
		t.Fatalf("entries = %d", len(hi.entries))
	}
	e := hi.entries[0]
	if e.key != (entryKey{512, 1}) || e.offset != 0xd2 || e.psize != 4 || e.len != 1 {
		t.Errorf("entry = %+v", e)
	}
}

// TestParseHeaderStructuralDamage covers the rejection paths: damage
// to the magic, version, identity or accounting lines discredits the
// whole file, because nothing after the damaged line can be trusted to
// mean what it says.
func TestParseHeaderStructuralDamage(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"bad magic", strings.Replace(validHeader, "SORTDATA", "SORTDATB", 1)},
		{"bad version", strings.Replace(validHeader, "SORTDATA\n1\n", "SORTDATA\n2\n", 1)},
		{"short uuid", strings.Replace(validHeader, "-4444-", "-444-", 1)},
		{"invalid uuid", strings.Replace(validHeader, "11111111", "1111111g", 1)},
		{"bad cardinality", strings.Replace(validHeader, "Cardinality: 00000000000000000003", "Cardinality: three", 1)},
		{"bad entry count", strings.Replace(validHeader, "Entries: 1", "Entries: one", 1)},
		{"no terminator", strings.TrimSuffix(validHeader, "\n")},
		{"len psize mismatch", strings.Replace(validHeader,
			"0000000000000004, 00000000000000000001",
			"0000000000000000, 00000000000000000001", 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parse(tt.data)
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("err = %v, want ErrMalformed", err)
			}
		})
	}
}

// TestParseHeaderSkipsBadEntryLine: one unparsable entry line costs
// that index, not the file. The remaining entries stay usable, which
// is the difference between a slow rebuild of one index and a slow
// rebuild of everything.
func TestParseHeaderSkipsBadEntryLine(t *testing.T) {
	data := "SORTDATA\n1\n" +
		"Version: 1.0.0\n" +
		"Instance: 11111111-2222-3333-4444-555555555555\n" +
		"Cardinality: 00000000000000000002\n" +
		"Entries: 2\n" +
		"512/1: garbage here\n" +
		"513/1: 00000000000000d2, 0000000000000004, 00000000000000000001\n" +
		"\n"
	hi, err := parse(data)
	if err != nil {
		t.Fatalf("parseHeader: %v", err)
	}
	if len(hi.entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(hi.entries))
	}
	if hi.entries[0].key != (entryKey{513, 1}) {
		t.Errorf("surviving entry = %+v", hi.entries[0].key)
	}
}

// TestParseEntryLineMalformed exercises every separator and every
// numeric field of the entry grammar. The separators are literal:
// a missing space after the comma is damage, not style.
func TestParseEntryLineMalformed(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"no slash", "5121: 00000000000000d2, 0000000000000004, 00000000000000000001\n"},
		{"no colon", "512/1 00000000000000d2, 0000000000000004, 00000000000000000001\n"},
		{"no comma after offset", "512/1: 00000000000000d2 0000000000000004, 00000000000000000001\n"},
		{"no space after comma", "512/1: 00000000000000d2,0000000000000004, 00000000000000000001\n"},
		{"bad space id", "x/1: 00000000000000d2, 0000000000000004, 00000000000000000001\n"},
		{"bad index id", "512/x: 00000000000000d2, 0000000000000004, 00000000000000000001\n"},
		{"bad offset", "512/1: zzzz, 0000000000000004, 00000000000000000001\n"},
		{"bad psize", "512/1: 00000000000000d2, zzzz, 00000000000000000001\n"},
		{"bad len", "512/1: 00000000000000d2, 0000000000000004, abc\n"},
		{"empty", "\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseEntryLine(tt.line); err == nil {
				t.Error("expected parse error")
			}
		})
	}
}

// TestParseHeaderNoInstanceLine: the identity line is checked when
// present but its absence is tolerated — tooling-generated files and
// future header revisions may omit it. Without the line there is
// nothing to compare, so the file is accepted even when the caller
// passes a non-nil UUID. This mirrors the writer always emitting the
// line while the reader stays lenient.
func TestParseHeaderNoInstanceLine(t *testing.T) {
	data := "SORTDATA\n1\n" +
		"Version: 1.0.0\n" +
		"Cardinality: 00000000000000000000\n" +
		"Entries: 0\n" +
		"\n"
	hi, err := parse(data)
	if err != nil {
		t.Fatalf("parseHeader: %v", err)
	}
	if hi.hasInstance {
		t.Error("hasInstance = true without an Instance line")
	}
}
