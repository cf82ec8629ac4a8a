package assemble

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// MergeError reports an I/O fault while reading a fragment or writing the
// merged file. The merge of that document is abandoned.
type MergeError struct {
	Path string
	Err  error
}

func (e *MergeError) Error() string {
	return fmt.Sprintf("merge %s: %v", e.Path, e.Err)
}

func (e *MergeError) Unwrap() error {
	return e.Err
}

// Result describes one merge.
type Result struct {
	// Path of the merged file, empty when nothing was written.
	Path         string
	Fragments    []string
	Bytes        int64
	StaleRemoved bool
}

// Merged reports whether a merged file was written.
func (r Result) Merged() bool {
	return r.Path != ""
}

// concatSafe lists containers whose frames or pages stay decodable when
// files are joined byte for byte.
var concatSafe = map[string]bool{
	"mp3":  true,
	"aac":  true,
	"opus": true,
	"pcm":  true,
}

// ConcatSafe reports whether fragments of this format can be merged by raw
// concatenation. WAV and FLAC carry a single header with a total length.
func ConcatSafe(ext string) bool {
	return concatSafe[strings.ToLower(strings.TrimPrefix(ext, "."))]
}

// MergedName is the file name of the merged output inside dir.
func MergedName(dir, ext string) string {
	return filepath.Base(filepath.Clean(dir)) + "." + strings.TrimPrefix(ext, ".")
}

// Fragments lists the audio fragments in dir sorted by name, leaving out the
// merged output file.
func Fragments(dir, ext string) ([]string, error) {
	ext = strings.TrimPrefix(ext, ".")
	merged := MergedName(dir, ext)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		name := e.Name()
		if name == merged || !strings.EqualFold(filepath.Ext(name), "."+ext) {
			continue
		}
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

// Merge concatenates the fragments in dir into <dir>/<dirname>.<ext>. A stale
// merged file is deleted first. Zero or one fragment produces no output.
func Merge(dir, ext string) (Result, error) {
	ext = strings.TrimPrefix(ext, ".")
	out := filepath.Join(dir, MergedName(dir, ext))

	names, err := Fragments(dir, ext)
	if err != nil {
		return Result{}, &MergeError{Path: dir, Err: err}
	}
	res := Result{Fragments: names}
	if len(names) < 2 {
		return res, nil
	}

	if err := os.Remove(out); err == nil {
		res.StaleRemoved = true
	} else if !os.IsNotExist(err) {
		return res, &MergeError{Path: out, Err: fmt.Errorf("remove stale: %w", err)}
	}

	// Written under a name that does not match the fragment pattern so a
	// crash never leaves a truncated file that looks complete.
	tmp := out + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return res, &MergeError{Path: tmp, Err: err}
	}

	for _, name := range names {
		n, err := appendFile(f, filepath.Join(dir, name))
		if err != nil {
			f.Close()
			os.Remove(tmp)
			return res, &MergeError{Path: filepath.Join(dir, name), Err: err}
		}
		res.Bytes += n
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return res, &MergeError{Path: tmp, Err: err}
	}
	if err := os.Rename(tmp, out); err != nil {
		os.Remove(tmp)
		return res, &MergeError{Path: out, Err: err}
	}
	res.Path = out
	return res, nil
}

func appendFile(w io.Writer, path string) (int64, error) {
	src, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer src.Close()
	return io.Copy(w, src)
}
