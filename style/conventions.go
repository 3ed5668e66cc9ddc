// conventions.go - Erkennung von Quote-Stil, Namenskonvention, Klammerstil
// und Zeilenbreite. Die Werte sind rein informativ, Apply nutzt sie nicht.
package style

import (
	"slices"
	"strings"
	"unicode"

	"github.com/dlclark/regexp2"
	"github.com/mattn/go-runewidth"
)

// Naming ist die dominierende Namenskonvention eines Texts
type Naming string

const (
	NamingUnknown Naming = ""
	SnakeCase     Naming = "snake_case"
	CamelCase     Naming = "camelCase"
	PascalCase    Naming = "PascalCase"
)

// Brackets beschreibt die Position oeffnender Block-Klammern
type Brackets string

const (
	SameLine Brackets = "same_line"
	NewLine  Brackets = "new_line"
)

var (
	// String-Literale ohne vorangestellten Backslash
	singleQuoted = regexp2.MustCompile(`(?<!\\)'[^'\\\n]*(?:\\.[^'\\\n]*)*'`, regexp2.None)
	doubleQuoted = regexp2.MustCompile(`(?<!\\)"[^"\\\n]*(?:\\.[^"\\\n]*)*"`, regexp2.None)

	identifier = regexp2.MustCompile(`\b[A-Za-z_]\w*\b`, regexp2.None)

	bracketSameLine = regexp2.MustCompile(`\)[ \t]*\{`, regexp2.None)
	bracketNewLine  = regexp2.MustCompile(`\)[ \t]*\r?\n[ \t]*\{`, regexp2.None)
)

// countMatches zaehlt nicht-ueberlappende Treffer von re in s
func countMatches(re *regexp2.Regexp, s string) int {
	var n int
	m, _ := re.FindStringMatch(s)
	for m != nil {
		n++
		m, _ = re.FindNextMatch(m)
	}
	return n
}

// matches sammelt alle Treffer von re in s
func matches(re *regexp2.Regexp, s string) []string {
	var out []string
	m, _ := re.FindStringMatch(s)
	for m != nil {
		out = append(out, m.String())
		m, _ = re.FindNextMatch(m)
	}
	return out
}

func detectQuote(text string) rune {
	single := countMatches(singleQuoted, text)
	double := countMatches(doubleQuoted, text)

	switch {
	case single == 0 && double == 0:
		return 0
	case single > double:
		return '\''
	default:
		return '"'
	}
}

// Schluesselwoerter die fuer die Namenskonvention nicht zaehlen
var namingStopwords = []string{
	"def", "class", "if", "else", "while", "for", "try", "except", "return", "import", "from",
	"function", "var", "let", "const", "new", "this", "super", "extends", "constructor",
	"public", "private", "protected", "static", "void", "int", "using", "include",
}

func detectNaming(text string) Naming {
	var snake, camel, pascal int
	for _, name := range matches(identifier, text) {
		if slices.Contains(namingStopwords, name) || strings.HasPrefix(name, "__") {
			continue
		}

		runes := []rune(name)
		hasUnderscore := strings.Contains(name, "_")
		hasUpperTail := strings.IndexFunc(string(runes[1:]), unicode.IsUpper) >= 0

		switch {
		case hasUnderscore && strings.ToLower(name) == name:
			snake++
		case unicode.IsUpper(runes[0]) && !hasUnderscore && strings.ToUpper(name) != name:
			pascal++
		case unicode.IsLower(runes[0]) && !hasUnderscore && hasUpperTail:
			camel++
		}
	}

	switch {
	case snake == 0 && camel == 0 && pascal == 0:
		return NamingUnknown
	case camel >= snake && camel >= pascal:
		return CamelCase
	case snake >= pascal:
		return SnakeCase
	default:
		return PascalCase
	}
}

func detectBrackets(text string) Brackets {
	if countMatches(bracketNewLine, text) > countMatches(bracketSameLine, text) {
		return NewLine
	}
	return SameLine
}

// lineWidthP90 liefert das 90. Perzentil der Display-Breite nicht-leerer Zeilen
func lineWidthP90(text string) int {
	var widths []int
	for _, line := range splitLines(text) {
		if strings.TrimSpace(line) == "" {
			continue
		}
		widths = append(widths, runewidth.StringWidth(strings.ReplaceAll(line, "\t", "    ")))
	}

	if len(widths) == 0 {
		return 0
	}

	slices.Sort(widths)
	return widths[min(len(widths)*9/10, len(widths)-1)]
}
