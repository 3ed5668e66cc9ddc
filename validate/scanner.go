// scanner.go - Zeilenweiser Lexer fuer Klammern, Strings und Kommentare
package validate

import (
	"fmt"
	"strings"

	"github.com/7blacky7/codetrans/languages"
)

var closers = map[byte]byte{')': '(', ']': '[', '}': '{'}

type bracket struct {
	ch   byte
	line int
}

// scanner haelt den Zustand ueber Zeilengrenzen hinweg
type scanner struct {
	lang languages.Language

	stack []bracket

	quote     string // offener String-Delimiter, "" ausserhalb
	quoteLine int

	comment     bool // in einem Block-Kommentar
	commentLine int

	backslash bool // letzte Zeile endete mit '\'
}

// atLineStart meldet ob die naechste Zeile eine neue logische Zeile beginnt
func (s *scanner) atLineStart() bool {
	return s.quote == "" && !s.comment && !s.backslash && s.continuation() == 0
}

// continuation zaehlt offene Klammern die keine Bloecke sind
func (s *scanner) continuation() int {
	var n int
	for _, b := range s.stack {
		if string(b.ch) != s.lang.BlockOpener {
			n++
		}
	}
	return n
}

// scanLine verarbeitet eine Zeile und gibt den Code ohne Kommentare zurueck,
// jeder String wird an seinem Anfang durch "" ersetzt
func (s *scanner) scanLine(line string, n int) (string, string) {
	var code strings.Builder
	start, end := s.lang.BlockComment[0], s.lang.BlockComment[1]

	for i := 0; i < len(line); {
		rest := line[i:]

		if s.comment {
			j := strings.Index(rest, end)
			if j < 0 {
				break
			}
			s.comment = false
			i += j + len(end)
			continue
		}

		if s.quote != "" {
			switch {
			case rest[0] == '\\':
				i += 2
			case strings.HasPrefix(rest, s.quote):
				i += len(s.quote)
				s.quote = ""
			default:
				i++
			}
			continue
		}

		if start != "" && strings.HasPrefix(rest, start) {
			s.comment, s.commentLine = true, n
			i += len(start)
			continue
		}

		if s.isLineComment(rest) {
			break
		}

		c := line[i]
		if strings.IndexByte(s.lang.StringDelims, c) >= 0 {
			q := string(c)
			if triple := strings.Repeat(q, 3); strings.HasPrefix(rest, triple) {
				q = triple
			}
			s.quote, s.quoteLine = q, n
			code.WriteString(`""`)
			i += len(q)
			continue
		}

		if c == '/' && s.lang.RegexLiterals && regexAllowed(code.String()) {
			if j := regexEnd(rest); j > 0 {
				code.WriteString("//")
				i += j
				continue
			}
		}

		switch c {
		case '(', '[', '{':
			s.stack = append(s.stack, bracket{ch: c, line: n})
		case ')', ']', '}':
			if len(s.stack) == 0 {
				return "", fmt.Sprintf("unexpected '%c' at line %d", c, n)
			}
			top := s.stack[len(s.stack)-1]
			if top.ch != closers[c] {
				return "", fmt.Sprintf("mismatched '%c' at line %d, '%c' opened at line %d", c, n, top.ch, top.line)
			}
			s.stack = s.stack[:len(s.stack)-1]
		}

		code.WriteByte(c)
		i++
	}

	// Einfache Strings enden mit der Zeile, ausser bei '\' am Zeilenende
	if len(s.quote) == 1 && s.quote != "`" && !strings.HasSuffix(line, `\`) {
		return "", fmt.Sprintf("unterminated string literal at line %d", s.quoteLine)
	}

	s.backslash = s.quote == "" && !s.comment && strings.HasSuffix(strings.TrimRight(code.String(), " \t"), `\`)
	return code.String(), ""
}

// regexAllowed meldet ob nach code ein Regex-Literal beginnen kann: am
// Zeilenanfang, nach Operatoren und oeffnenden Klammern oder nach return
func regexAllowed(code string) bool {
	code = strings.TrimRight(code, " \t")
	if code == "" || strings.IndexByte("(,=:[!&|?{};+-*%<>~^", code[len(code)-1]) >= 0 {
		return true
	}
	for _, kw := range []string{"return", "typeof", "case"} {
		if before, ok := strings.CutSuffix(code, kw); ok && (before == "" || !isIdentByte(before[len(before)-1])) {
			return true
		}
	}
	return false
}

// regexEnd gibt die Laenge des Regex-Literals am Anfang von rest inklusive
// Flags zurueck, -1 wenn es in der Zeile nicht endet
func regexEnd(rest string) int {
	class := false
	for i := 1; i < len(rest); i++ {
		switch rest[i] {
		case '\\':
			i++
		case '[':
			class = true
		case ']':
			class = false
		case '/':
			if class {
				continue
			}
			j := i + 1
			for j < len(rest) && isIdentByte(rest[j]) {
				j++
			}
			return j
		}
	}
	return -1
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '$' || 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9'
}

func (s *scanner) isLineComment(rest string) bool {
	for _, p := range s.lang.LineComment {
		if strings.HasPrefix(rest, p) {
			return true
		}
	}
	return false
}

// finish prueft offene Strings, Kommentare und Klammern am Textende
func (s *scanner) finish() string {
	switch {
	case s.quote != "":
		return fmt.Sprintf("unterminated string literal opened at line %d", s.quoteLine)
	case s.comment:
		return fmt.Sprintf("unterminated block comment opened at line %d", s.commentLine)
	case len(s.stack) > 0:
		b := s.stack[len(s.stack)-1]
		return fmt.Sprintf("unclosed '%c' opened at line %d", b.ch, b.line)
	}
	return ""
}
