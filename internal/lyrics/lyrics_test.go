package lyrics

import (
	"reflect"
	"strings"
	"testing"
)

func TestSplit(t *testing.T) {
	tc := []struct {
		name string
		raw  string
		want []string
	}{
		{name: "empty", raw: "", want: []string{""}},
		{name: "single line", raw: "hello", want: []string{"hello"}},
		{name: "stanza break", raw: "a\nb\n\nc", want: []string{"a", "b", "", "c"}},
		{name: "trailing newline", raw: "a\n", want: []string{"a", ""}},
		{name: "whitespace kept", raw: "  a  \n\t", want: []string{"  a  ", "\t"}},
		{name: "crlf not normalized", raw: "a\r\nb", want: []string{"a\r", "b"}},
		{name: "only newlines", raw: "\n\n", want: []string{"", "", ""}},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			got := Split(tt.raw)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Split(%q) = %q, want %q", tt.raw, got, tt.want)
			}
			if len(got) != strings.Count(tt.raw, "\n")+1 {
				t.Errorf("expected %d lines, got %d", strings.Count(tt.raw, "\n")+1, len(got))
			}
		})
	}
}

func TestNumbered(t *testing.T) {
	raw := "a\nb\n\nc"
	lines := Numbered(raw)

	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d", len(lines))
	}
	for i, l := range lines {
		if l.LineNumber != i+1 {
			t.Errorf("line %d has number %d", i, l.LineNumber)
		}
	}
	if lines[2].Text != "" {
		t.Errorf("expected blank third line, got %q", lines[2].Text)
	}
	if Join(lines) != raw {
		t.Errorf("Join(Numbered(raw)) = %q, want %q", Join(lines), raw)
	}
}

func TestClean(t *testing.T) {
	tc := []struct {
		name string
		in   string
		want string
	}{
		{name: "no banner", in: "  line one\nline two\n", want: "line one\nline two"},
		{name: "banner stripped", in: "Paroles de la chanson Song par Artist\n\nline one\nline two", want: "line one\nline two"},
		{name: "banner spans lines", in: "Paroles de la chanson Song\npar Artist\n\nline one", want: "line one"},
		{name: "only first blank line consumed", in: "Paroles de la chanson X\n\na\n\nb", want: "a\n\nb"},
		{name: "banner not at start", in: "intro\nParoles de la chanson X\n\na", want: "intro\nParoles de la chanson X\n\na"},
		{name: "whitespace only", in: " \n\t ", want: ""},
		{name: "banner only", in: "Paroles de la chanson X\n\n", want: ""},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := Clean(tt.in); got != tt.want {
				t.Errorf("Clean(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
