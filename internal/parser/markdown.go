package parser

import (
	"bytes"
	"io"
	"strings"

	"github.com/dgallion1/docnarrate/internal/document"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownParser handles Markdown files using goldmark. Markup is dropped and
// every heading, paragraph line and code line becomes a narration line.
type MarkdownParser struct{}

func (p *MarkdownParser) Parse(r io.Reader, filename string) (*document.Document, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(src))

	var lines []string
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		lines = append(lines, blockLines(n, src)...)
	}

	return document.New(document.BaseName(filename), lines), nil
}

// blockLines flattens a block node into non-empty text lines.
func blockLines(n ast.Node, src []byte) []string {
	switch n.(type) {
	case *ast.FencedCodeBlock, *ast.CodeBlock:
		var out []string
		segs := n.Lines()
		for i := 0; i < segs.Len(); i++ {
			seg := segs.At(i)
			if l := strings.TrimRight(string(seg.Value(src)), "\r\n"); strings.TrimSpace(l) != "" {
				out = append(out, l)
			}
		}
		return out
	case *ast.HTMLBlock, *ast.ThematicBreak:
		return nil
	}

	if c := n.FirstChild(); c != nil && c.Type() == ast.TypeInline {
		return splitNonEmpty(inlineText(n, src))
	}

	var out []string
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		out = append(out, blockLines(c, src)...)
	}
	return out
}

// inlineText collects the visible text of an inline container.
func inlineText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch t := c.(type) {
		case *ast.Text:
			buf.Write(t.Value(src))
			if t.HardLineBreak() || t.SoftLineBreak() {
				buf.WriteByte('\n')
			}
		case *ast.String:
			buf.Write(t.Value)
		default:
			buf.WriteString(inlineText(c, src))
		}
	}
	return buf.String()
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, l := range strings.Split(s, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}
