// structure.go - Strukturelle Aehnlichkeit unabhaengig von der Sprache
package metrics

import (
	"github.com/dlclark/regexp2"
)

// noise entfernt Kommentare und String-Literale
var noise = regexp2.MustCompile(`#.*?$|//.*?$|/\*.*?\*/|'(?:\\.|[^'\\\n])*'|"(?:\\.|[^"\\\n])*"|`+"`[^`]*`",
	regexp2.Multiline|regexp2.Singleline)

// element ordnet ein Muster einer sprachunabhaengigen Kategorie zu
type element struct {
	kind    string
	pattern *regexp2.Regexp
}

var elements = []element{
	{"function", regexp2.MustCompile(`\b(?:def|function|func)\s+\w+|\b(?!return\b|new\b|else\b)\w+\s+\w+\s*\([^()]*\)\s*(?:\{|$)`, regexp2.Multiline)},
	{"class", regexp2.MustCompile(`\b(?:class|struct|interface)\s+\w+`, regexp2.None)},
	{"if", regexp2.MustCompile(`\b(?:if|elif)\b`, regexp2.None)},
	{"else", regexp2.MustCompile(`\belse\b`, regexp2.None)},
	{"loop", regexp2.MustCompile(`\b(?:for|foreach|while)\b`, regexp2.None)},
	{"try", regexp2.MustCompile(`\btry\b`, regexp2.None)},
	{"catch", regexp2.MustCompile(`\b(?:catch|except)\b`, regexp2.None)},
	{"return", regexp2.MustCompile(`\breturn\b`, regexp2.None)},
	{"declaration", regexp2.MustCompile(`\b(?:var|let|const|int|long|float|double|bool|boolean|char|string|String|auto)\s+\w+`, regexp2.None)},
}

// Structure vergleicht die Haeufigkeit struktureller Elemente als
// Multiset-Jaccard. Zwei Texte ohne Elemente gelten als gleich.
func Structure(a, b string) float64 {
	ca, cb := structure(a), structure(b)

	var inter, union int
	for _, e := range elements {
		inter += min(ca[e.kind], cb[e.kind])
		union += max(ca[e.kind], cb[e.kind])
	}
	if union == 0 {
		return 1
	}
	return float64(inter) / float64(union)
}

func structure(code string) map[string]int {
	if stripped, err := noise.Replace(code, "", -1, -1); err == nil {
		code = stripped
	}

	counts := make(map[string]int)
	for _, e := range elements {
		m, _ := e.pattern.FindStringMatch(code)
		for m != nil {
			counts[e.kind]++
			m, _ = e.pattern.FindNextMatch(m)
		}
	}
	return counts
}
