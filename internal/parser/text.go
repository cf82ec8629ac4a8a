package parser

import (
	"bufio"
	"io"
	"strings"

	"github.com/dgallion1/docnarrate/internal/document"
)

// TextParser handles plain text files. Lines are kept verbatim, including
// blank ones, so resume coordinates match the file. A leading byte order
// mark is dropped and lines have no length limit.
type TextParser struct{}

func (p *TextParser) Parse(r io.Reader, filename string) (*document.Document, error) {
	br := bufio.NewReader(r)

	var lines []string
	for {
		line, err := br.ReadString('\n')
		if err != nil && err != io.EOF {
			return nil, err
		}
		if line != "" {
			line = strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")
			if len(lines) == 0 {
				line = strings.TrimPrefix(line, "\ufeff")
			}
			lines = append(lines, line)
		}
		if err == io.EOF {
			break
		}
	}

	return document.New(document.BaseName(filename), lines), nil
}
