package source

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/elonfeng/fingest/pkg/record"
)

const maxLineSize = 16 << 20

// ReadJSONL decodes one raw record per non-empty line. A line that is not a
// JSON object fails the whole read with its line number.
func ReadJSONL(r io.Reader) ([]record.Raw, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)

	var raws []record.Raw
	line := 0
	for sc.Scan() {
		line++
		text := bytes.TrimSpace(sc.Bytes())
		if len(text) == 0 {
			continue
		}
		var raw record.Raw
		if err := decodeJSON(text, &raw); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		raws = append(raws, raw)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read jsonl: %w", err)
	}
	return raws, nil
}

// File replays JSONL files as a collector.
type File struct {
	source record.SourceID
	paths  []string
}

// NewFile creates a collector reading the given JSONL files in order.
func NewFile(src record.SourceID, paths ...string) *File {
	return &File{source: src, paths: paths}
}

func (f *File) Source() record.SourceID { return f.source }

func (f *File) Collect(ctx context.Context) ([]record.Raw, error) {
	var all []record.Raw
	for _, p := range f.paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raws, err := readFile(p)
		if err != nil {
			return nil, err
		}
		all = append(all, raws...)
	}
	return all, nil
}

func readFile(path string) ([]record.Raw, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer fh.Close()

	raws, err := ReadJSONL(fh)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return raws, nil
}
