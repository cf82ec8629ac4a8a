package chunker

import "fmt"

// Indexer hands out fragment sequence numbers for one document.
// It is not safe for concurrent use; each document run owns its own.
type Indexer struct {
	next     int
	expected int
}

// NewIndexer starts counting at offset. expected is the estimated chunk count
// used to size labels.
func NewIndexer(offset, expected int) *Indexer {
	return &Indexer{next: offset, expected: expected}
}

// Next returns the current value and advances the counter.
func (ix *Indexer) Next() int {
	v := ix.next
	ix.next++
	return v
}

// Peek returns the value Next would return.
func (ix *Indexer) Peek() int {
	return ix.next
}

// Width is the label width for this document.
func (ix *Indexer) Width() int {
	return Digits(ix.expected)
}

// Label renders v zero-padded to the document's label width.
func (ix *Indexer) Label(v int) string {
	return Label(v, ix.expected)
}

// Digits is max(1, floor(log10(|n|)) + 1).
func Digits(n int) int {
	if n < 0 {
		n = -n
	}
	d := 1
	for n >= 10 {
		n /= 10
		d++
	}
	return d
}

// Label left-pads value with zeros to Digits(expected) characters. Labels
// sort like numbers only while value < 10^Digits(expected).
func Label(value, expected int) string {
	return PadLabel(value, Digits(expected))
}

// PadLabel left-pads value with zeros to width characters.
func PadLabel(value, width int) string {
	return fmt.Sprintf("%0*d", width, value)
}
