// Command sortdata inspects sort-data sidecar files.
//
// Usage:
//
//	sortdata inspect [--fingerprint] <file.sortdata>
//	sortdata dump [--compress] [--out <path>] <space>/<index> <file.sortdata>
//
// inspect prints the parsed header as JSON; dump extracts one entry's
// raw payload bytes, optionally zstd-compressed, for a support bundle.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/jpl-au/sortdata"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		return errors.New(usage())
	}
	switch args[0] {
	case "inspect":
		return cmdInspect(args[1:])
	case "dump":
		return cmdDump(args[1:])
	default:
		return fmt.Errorf("unknown command %q\n%s", args[0], usage())
	}
}

func usage() string {
	return strings.TrimSpace(`
usage:
  sortdata inspect [--fingerprint] <file.sortdata>
  sortdata dump [--compress] [--out <path>] <space>/<index> <file.sortdata>`)
}

func cmdInspect(args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	fingerprint := fs.Bool("fingerprint", false, "hash each entry payload")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New(usage())
	}

	fi, err := sortdata.Inspect(fs.Arg(0), *fingerprint)
	if err != nil {
		return err
	}
	out, err := fi.JSON()
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func cmdDump(args []string) error {
	fs := flag.NewFlagSet("dump", flag.ContinueOnError)
	compress := fs.Bool("compress", false, "zstd-compress the payload")
	outPath := fs.String("out", "", "write to a file instead of stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return errors.New(usage())
	}

	spaceID, indexID, err := parseEntryArg(fs.Arg(0))
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	return sortdata.DumpPayload(fs.Arg(1), spaceID, indexID, w, *compress)
}

// parseEntryArg parses the <space>/<index> selector.
func parseEntryArg(s string) (uint32, uint32, error) {
	spaceStr, indexStr, ok := strings.Cut(s, "/")
	if !ok {
		return 0, 0, fmt.Errorf("invalid entry %q, want <space>/<index>", s)
	}
	spaceID, err := strconv.ParseUint(spaceStr, 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid space id %q", spaceStr)
	}
	indexID, err := strconv.ParseUint(indexStr, 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid index id %q", indexStr)
	}
	return uint32(spaceID), uint32(indexID), nil
}
