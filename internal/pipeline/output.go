package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/dgallion1/docnarrate/internal/chunker"
)

const maxNameRunes = 50

// SanitizeName keeps letters, digits and whitespace and truncates to 50
// runes. The result names both the output directory and the fragments.
func SanitizeName(name string) string {
	var sb strings.Builder
	n := 0
	for _, r := range name {
		if n == maxNameRunes {
			break
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			sb.WriteRune(r)
			n++
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "untitled"
	}
	return sb.String()
}

// docState is the mutable state of one document's conversion: the fragment
// counter and the output directory. A fresh value is made per document.
type docState struct {
	name    string
	dir     string
	format  string
	index   *chunker.Indexer
	created bool

	written  []string
	maxIndex int
}

// newDocState expects name to be sanitized already.
func newDocState(outputFolder, name, format string, offset, expected int) *docState {
	return &docState{
		name:     name,
		dir:      filepath.Join(outputFolder, name),
		format:   strings.TrimPrefix(format, "."),
		index:    chunker.NewIndexer(offset, expected),
		maxIndex: -1,
	}
}

// writeFragment stores audio under the next index, creating the output
// directory on first use.
func (s *docState) writeFragment(audio []byte) (string, error) {
	if !s.created {
		if err := os.MkdirAll(s.dir, 0o755); err != nil {
			return "", fmt.Errorf("create output dir: %w", err)
		}
		s.created = true
	}
	i := s.index.Next()
	path := filepath.Join(s.dir, s.name+s.index.Label(i)+"."+s.format)
	if err := os.WriteFile(path, audio, 0o644); err != nil {
		return "", fmt.Errorf("write fragment: %w", err)
	}
	s.written = append(s.written, path)
	s.maxIndex = max(s.maxIndex, i)
	return path, nil
}

// outgrown reports the label width needed when the counter went past the
// estimate, or 0 when the estimated width still holds.
func (s *docState) outgrown() int {
	if s.maxIndex < 0 {
		return 0
	}
	if need := chunker.Digits(s.maxIndex); need > s.index.Width() {
		return need
	}
	return 0
}
