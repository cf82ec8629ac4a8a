package assemble

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dgallion1/docnarrate/internal/chunker"
)

// Widen renames fragments <prefix><digits>.<ext> in dir whose label is
// narrower than width so that name order matches index order again. It is
// needed when a document produced more chunks than its size estimate
// predicted. Returns the number of files renamed.
func Widen(dir, prefix, ext string, width int) (int, error) {
	ext = strings.TrimPrefix(ext, ".")
	names, err := Fragments(dir, ext)
	if err != nil {
		return 0, err
	}

	renamed := 0
	for _, name := range names {
		label, ok := fragmentLabel(name, prefix, ext)
		if !ok || len(label) >= width {
			continue
		}
		value, err := strconv.Atoi(label)
		if err != nil {
			continue
		}
		target := prefix + chunker.PadLabel(value, width) + "." + ext
		if _, err := os.Stat(filepath.Join(dir, target)); err == nil {
			return renamed, fmt.Errorf("widen %s: %s already exists", name, target)
		}
		if err := os.Rename(filepath.Join(dir, name), filepath.Join(dir, target)); err != nil {
			return renamed, fmt.Errorf("widen %s: %w", name, err)
		}
		renamed++
	}
	return renamed, nil
}

func fragmentLabel(name, prefix, ext string) (string, bool) {
	rest, ok := strings.CutPrefix(name, prefix)
	if !ok {
		return "", false
	}
	label, ok := strings.CutSuffix(rest, "."+ext)
	if !ok || label == "" {
		return "", false
	}
	for _, r := range label {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	return label, true
}
