package parser

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/docnarrate/internal/document"
)

// CSVParser handles CSV files. Each data row becomes one spoken line of
// "header: value" pairs.
type CSVParser struct{}

func (p *CSVParser) Parse(r io.Reader, filename string) (*document.Document, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}

	name := document.BaseName(filename)
	if len(records) == 0 {
		return document.New(name, nil), nil
	}

	headers := records[0]
	lines := make([]string, 0, len(records)-1)
	for _, row := range records[1:] {
		var line strings.Builder
		for j, cell := range row {
			if j > 0 {
				line.WriteString(", ")
			}
			if j < len(headers) {
				line.WriteString(headers[j] + ": " + cell)
			} else {
				line.WriteString(cell)
			}
		}
		lines = append(lines, line.String())
	}

	return document.New(name, lines), nil
}
