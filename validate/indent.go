// indent.go - Einrueckungsregeln pro logischer Zeile
package validate

import (
	"fmt"
	"strings"

	"github.com/7blacky7/codetrans/languages"
)

const tabWidth = 4

// indentation verfolgt Block-Ebenen ueber die logischen Zeilen
type indentation struct {
	lang  languages.Language
	stack []int

	expect     bool // letzte logische Zeile endete mit Block-Opener
	expectLine int
}

func width(prefix string) int {
	var w int
	for _, c := range prefix {
		if c == '\t' {
			w += tabWidth
		} else {
			w++
		}
	}
	return w
}

// begin prueft die Einrueckung am Anfang einer logischen Zeile.
// fatal ist true wenn die Sprache die Einrueckung als Syntax behandelt.
func (ind *indentation) begin(prefix, code string, n int) (msg string, fatal bool) {
	w := width(prefix)
	top := ind.stack[len(ind.stack)-1]
	expect := ind.expect
	ind.expect = false

	if !ind.lang.IndentSignificant {
		// Klammer-Sprachen: nur Hinweis wenn ein Block nicht eingerueckt ist
		if expect && w <= top && !strings.HasPrefix(code, "}") {
			return fmt.Sprintf("block after line %d is not indented", ind.expectLine), false
		}
		ind.stack = append(ind.stack[:0], w)
		return "", false
	}

	switch {
	case expect:
		if w <= top {
			return fmt.Sprintf("expected an indented block after line %d", ind.expectLine), true
		}
		ind.stack = append(ind.stack, w)
	case w > top:
		return fmt.Sprintf("unexpected indent at line %d", n), true
	case w < top:
		for len(ind.stack) > 1 && ind.stack[len(ind.stack)-1] > w {
			ind.stack = ind.stack[:len(ind.stack)-1]
		}
		if ind.stack[len(ind.stack)-1] != w {
			return fmt.Sprintf("unindent does not match any outer indentation level at line %d", n), true
		}
	}
	return "", false
}

// end merkt sich ob die logische Zeile einen Block oeffnet
func (ind *indentation) end(code string, n int) {
	if opener := ind.lang.BlockOpener; opener != "" && strings.HasSuffix(strings.TrimSpace(code), opener) {
		ind.expect, ind.expectLine = true, n
	}
}

// finish meldet einen Block-Opener ohne Rumpf am Textende
func (ind *indentation) finish() string {
	if ind.expect && ind.lang.IndentSignificant {
		return fmt.Sprintf("expected an indented block after line %d", ind.expectLine)
	}
	return ""
}
