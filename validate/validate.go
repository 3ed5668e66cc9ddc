// Package validate - Syntaktische Pruefung uebersetzter Quelltexte
//
// Der Validator prueft ohne Parser, nur mit lexikalischem Wissen aus der
// Sprach-Registry:
// - Klammern (), [], {} ueber einen Stack, Strings und Kommentare werden uebersprungen
// - Strings und Block-Kommentare muessen geschlossen sein
// - Einrueckung: keine gemischten Tabs/Spaces, tieferer Block nach dem Opener
//
// Validate ist rein und deterministisch.
package validate

import (
	"fmt"
	"strings"

	"github.com/7blacky7/codetrans/languages"
)

// Verdict ist das Ergebnis einer Pruefung
type Verdict struct {
	Valid      bool     `json:"valid"`
	Reason     string   `json:"reason,omitempty"`
	Confidence float64  `json:"confidence"`
	Warnings   []string `json:"warnings,omitempty"`
}

// valid baut ein positives Verdict, jede Warnung senkt die Konfidenz
func valid(warnings []string) Verdict {
	return Verdict{
		Valid:      true,
		Confidence: max(0.5, 1-0.1*float64(len(warnings))),
		Warnings:   warnings,
	}
}

func invalid(format string, args ...any) Verdict {
	return Verdict{Reason: fmt.Sprintf(format, args...)}
}

// Named loest die Sprache per Name auf und prueft text
func Named(text, lang string) (Verdict, error) {
	l, err := languages.Lookup(lang)
	if err != nil {
		return Verdict{}, err
	}
	return Validate(text, l), nil
}

// Validate prueft text fuer die Sprache lang
func Validate(text string, lang languages.Language) Verdict {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if strings.TrimSpace(text) == "" {
		return invalid("empty output")
	}

	s := scanner{lang: lang}
	ind := indentation{lang: lang, stack: []int{0}}

	var warnings []string
	if strings.Contains(text, "<unk>") {
		warnings = append(warnings, "output contains unknown tokens")
	}

	for i, line := range strings.Split(text, "\n") {
		n := i + 1
		logical := s.atLineStart()

		code, err := s.scanLine(line, n)
		if err != "" {
			return invalid("%s", err)
		}

		trimmed := strings.TrimSpace(code)
		if !logical || trimmed == "" {
			if trimmed != "" && s.atLineStart() {
				ind.end(code, n)
			}
			continue
		}

		prefix := leadingWhitespace(line)
		if strings.Contains(prefix, "\t") && strings.Contains(prefix, " ") {
			if lang.IndentSignificant {
				return invalid("mixed tabs and spaces in indentation at line %d", n)
			}
			warnings = append(warnings, fmt.Sprintf("mixed tabs and spaces in indentation at line %d", n))
		}

		if msg, fatal := ind.begin(prefix, trimmed, n); msg != "" {
			if fatal {
				return invalid("%s", msg)
			}
			warnings = append(warnings, msg)
		}
		if s.atLineStart() {
			ind.end(code, n)
		}
	}

	if err := s.finish(); err != "" {
		return invalid("%s", err)
	}
	if msg := ind.finish(); msg != "" {
		return invalid("%s", msg)
	}

	return valid(warnings)
}

func leadingWhitespace(line string) string {
	return line[:len(line)-len(strings.TrimLeft(line, " \t"))]
}
