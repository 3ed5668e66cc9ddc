package style

import (
	"strings"
	"testing"
)

func TestApplyTabsToFourSpaces(t *testing.T) {
	original := "def f(x):\n    if x:\n        return 1\n    return 0\n"
	translated := "function f(x) {\n\tif (x) {\n\t\treturn 1;\n\t}\n\treturn 0;\n}\n"

	got := Apply(original, translated)
	want := "function f(x) {\n    if (x) {\n        return 1;\n    }\n    return 0;\n}\n"

	if got != want {
		t.Errorf("Apply() =\n%q\nerwartet\n%q", got, want)
	}

	// Token-Inhalt bleibt unveraendert
	if strings.Join(strings.Fields(got), " ") != strings.Join(strings.Fields(translated), " ") {
		t.Error("Apply() hat Tokens veraendert")
	}
}

func TestApplyLineEndings(t *testing.T) {
	original := "int main() {\r\n  return 0;\r\n}"
	translated := "def main():\n\treturn 0\n"

	got := Apply(original, translated)
	want := "def main():\r\n  return 0"

	if got != want {
		t.Errorf("Apply() = %q, erwartet %q", got, want)
	}
}

func TestApplyKeepsBlankLines(t *testing.T) {
	original := "a:\n  b\n"
	translated := "x {\n\ty\n\t\n\tz\n}\n"

	got := Apply(original, translated)
	want := "x {\n  y\n\n  z\n}\n"
	if got != want {
		t.Errorf("Apply() = %q, erwartet %q", got, want)
	}
}

func TestApplyKeepsContinuationAlignment(t *testing.T) {
	translated := "if (x) {\n    call(a,\n          b);\n}\n"

	cases := []struct {
		name, original, want string
	}{
		{"same unit", "if x:\n    call(a,\n        b)\n", translated},
		{"tabs", "if x:\n\tcall(a,\n\t\tb)\n", "if (x) {\n\tcall(a,\n\t\t  b);\n}\n"},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			if got := Apply(tt.original, translated); got != tt.want {
				t.Errorf("Apply() = %q, erwartet %q", got, tt.want)
			}
		})
	}
}

func TestApplyEmpty(t *testing.T) {
	for _, translated := range []string{"", "\n", "  \n\t"} {
		if got := Apply("def f():\n    pass\n", translated); got != "" {
			t.Errorf("Apply(%q) = %q, erwartet leer", translated, got)
		}
	}
}

func TestDetectIndent(t *testing.T) {
	cases := []struct {
		name string
		text string
		want Indent
	}{
		{"vier Leerzeichen", "a:\n    b\n        c\n", Indent{' ', 4}},
		{"zwei Leerzeichen", "a {\n  b {\n    c\n  }\n}\n", Indent{' ', 2}},
		{"tabs", "a {\n\tb\n\t\tc\n}\n", Tab},
		{"ohne Einrueckung", "a\nb\n", FourSpaces},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			if got := Detect(tt.text).Indent; got != tt.want {
				t.Errorf("Indent = %+v, erwartet %+v", got, tt.want)
			}
		})
	}
}

func TestLevels(t *testing.T) {
	cases := []struct {
		line  string
		unit  Indent
		level int
		rest  string
	}{
		{"\t\treturn x", Tab, 2, "return x"},
		{"        return x", FourSpaces, 2, "return x"},
		{"    return x", Indent{' ', 2}, 2, "return x"},
		{"return x", FourSpaces, 0, "return x"},
		{"\t    x", Tab, 2, "x"},
	}

	for _, tt := range cases {
		level, rest := Levels(tt.line, tt.unit)
		if level != tt.level || rest != tt.rest {
			t.Errorf("Levels(%q) = %d, %q; erwartet %d, %q", tt.line, level, rest, tt.level, tt.rest)
		}
	}

	level, extra, rest := Align("      b)", FourSpaces)
	if level != 1 || extra != 2 || rest != "b)" {
		t.Errorf("Align() = %d, %d, %q", level, extra, rest)
	}
}

func TestDetectConventions(t *testing.T) {
	s := Detect("const userName = 'bob';\nfunction getUser() {\r\n  return 'x';\r\n}\r\n")

	if s.Quote != '\'' {
		t.Errorf("Quote = %q", s.Quote)
	}
	if s.Naming != CamelCase {
		t.Errorf("Naming = %q", s.Naming)
	}
	if s.Brackets != SameLine {
		t.Errorf("Brackets = %q", s.Brackets)
	}
	if s.LineEnding != CRLF {
		t.Errorf("LineEnding = %q", s.LineEnding)
	}

	py := Detect("def load_user(user_id):\n    return \"ok\"\n")
	if py.Naming != SnakeCase || py.Quote != '"' {
		t.Errorf("python: %+v", py)
	}
}

func TestLineWidth(t *testing.T) {
	// Breite Zeichen zaehlen doppelt
	s := Detect("x = '日本'\n")
	if s.MaxLineWidth != 10 {
		t.Errorf("MaxLineWidth = %d, erwartet 10", s.MaxLineWidth)
	}
}
