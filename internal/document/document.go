package document

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Document is a source text split into lines. It is never mutated after loading.
type Document struct {
	Name  string   // File name without directory or extension
	Path  string   // Source path ("" for uploads)
	Lines []string // Text lines without line terminators
	Size  int64    // Byte size used for chunk count estimates
}

// New builds a Document from lines. Size is the UTF-8 length of the joined text.
func New(name string, lines []string) *Document {
	var size int64
	for i, l := range lines {
		if i > 0 {
			size++
		}
		size += int64(len(l))
	}
	return &Document{Name: name, Lines: lines, Size: size}
}

// Text joins the lines back with newlines.
func (d *Document) Text() string {
	return strings.Join(d.Lines, "\n")
}

// BaseName strips directory and extension from a file name.
func BaseName(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Find lists regular files in dir whose extension is in exts, sorted by name.
func Find(dir string, exts map[string]bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}
	var paths []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if exts[strings.ToLower(filepath.Ext(e.Name()))] {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}
