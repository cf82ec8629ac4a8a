package parser

import (
	"strings"
	"testing"
)

func TestHTMLParser_BlocksBecomeLines(t *testing.T) {
	input := `<html><head><title>Ignored</title><style>p{}</style></head>
<body>
<nav>menu</nav>
<h1>Chapter   One</h1>
<p>It was a <b>dark</b> night.</p>
<ul><li>one</li><li>two</li></ul>
<script>var x = 1;</script>
</body></html>`
	p := &HTMLParser{}
	doc, err := p.Parse(strings.NewReader(input), "story.html")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Name != "story" {
		t.Errorf("expected name %q, got %q", "story", doc.Name)
	}
	want := []string{"Chapter One", "It was a dark night.", "one", "two"}
	if len(doc.Lines) != len(want) {
		t.Fatalf("expected %q, got %q", want, doc.Lines)
	}
	for i, w := range want {
		if doc.Lines[i] != w {
			t.Errorf("line[%d]: expected %q, got %q", i, w, doc.Lines[i])
		}
	}
}

func TestCSVParser_RowsBecomeLines(t *testing.T) {
	input := "name,age\nada,36\ngrace,45,extra\n"
	p := &CSVParser{}
	doc, err := p.Parse(strings.NewReader(input), "people.csv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"name: ada, age: 36", "name: grace, age: 45, extra"}
	if len(doc.Lines) != len(want) {
		t.Fatalf("expected %q, got %q", want, doc.Lines)
	}
	for i, w := range want {
		if doc.Lines[i] != w {
			t.Errorf("line[%d]: expected %q, got %q", i, w, doc.Lines[i])
		}
	}
}
