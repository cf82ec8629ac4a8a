package chunker

import (
	"fmt"
	"iter"
	"slices"
	"strings"

	"github.com/dgallion1/docnarrate/internal/document"
)

const (
	wordSeparator = " "
	lineBreak     = "\n"
)

// Coord addresses a word inside a document: Lines[Line] split on spaces, word Word.
type Coord struct {
	Line int
	Word int
}

func (c Coord) String() string {
	return fmt.Sprintf("%d,%d", c.Line, c.Word)
}

// Before reports whether c comes strictly before o in reading order.
func (c Coord) Before(o Coord) bool {
	return c.Line < o.Line || (c.Line == o.Line && c.Word < o.Word)
}

// Chunk is a finalized, byte-bounded slice of document text.
type Chunk struct {
	Seq   int    // Position within the scan that produced it, from 0
	Text  string // Words joined by spaces, lines by "\n"
	Start Coord  // First word of the chunk
	End   Coord  // First word after the chunk; resuming here yields the next chunk
}

// Chunker partitions document text under a UTF-8 byte budget.
type Chunker struct {
	Budget int
}

// New returns a Chunker for the given byte budget.
func New(budget int) *Chunker {
	return &Chunker{Budget: budget}
}

// Words splits a line the same way the scan does.
func Words(line string) []string {
	return strings.Split(line, wordSeparator)
}

// Chunks lazily scans doc from the given coordinate.
//
// A word is accepted while len(acc + piece) < Budget, where piece is the word
// plus a trailing space, preceded by a line break when the word opens a new
// line. The line break never starts a chunk, so scanning from any chunk
// boundary reproduces the tail of a scan from the beginning. A single word
// longer than the budget is emitted on its own.
func (c *Chunker) Chunks(doc *document.Document, from Coord) iter.Seq[Chunk] {
	return func(yield func(Chunk) bool) {
		var acc strings.Builder
		seq := 0
		start := from

		emit := func(end Coord) bool {
			text := acc.String()
			acc.Reset()
			if strings.TrimSpace(text) == "" {
				return true
			}
			ch := Chunk{Seq: seq, Text: text, Start: start, End: end}
			seq++
			return yield(ch)
		}

		for li := max(from.Line, 0); li < len(doc.Lines); li++ {
			words := Words(doc.Lines[li])
			wi := 0
			if li == from.Line {
				wi = max(from.Word, 0)
			}
			newLine := li != from.Line

			for ; wi < len(words); wi++ {
				piece := words[wi] + wordSeparator
				if newLine && acc.Len() > 0 {
					piece = lineBreak + piece
				}
				newLine = false

				if acc.Len() == 0 || acc.Len()+len(piece) < c.Budget {
					if acc.Len() == 0 {
						start = Coord{Line: li, Word: wi}
					}
					acc.WriteString(piece)
					continue
				}

				at := Coord{Line: li, Word: wi}
				if !emit(at) {
					return
				}
				start = at
				acc.WriteString(words[wi] + wordSeparator)
			}
		}

		emit(Coord{Line: len(doc.Lines), Word: 0})
	}
}

// Split collects every chunk of doc from the given coordinate.
func (c *Chunker) Split(doc *document.Document, from Coord) []Chunk {
	return slices.Collect(c.Chunks(doc, from))
}

// EstimateCount approximates how many chunks a document of size bytes yields.
// It only sizes index labels; the real count may differ.
func EstimateCount(size int64, budget int) int {
	if budget <= 0 || size <= 0 {
		return 0
	}
	return int((size + int64(budget) - 1) / int64(budget))
}
