// Package style - Erkennen und Uebertragen von Formatierungskonventionen
//
// Enthaelt:
//   - Style: Einrueckung, Zeilenende, abschliessender Zeilenumbruch,
//     Quote-Praeferenz, Namenskonvention, Klammerstil, Zeilenbreite
//   - Detect: liest den Style aus einem Quelltext
//   - Levels: zerlegt eine Zeile in Einrueckungsebene und Rest
//   - Align: wie Levels, zusaetzlich die Leerzeichen unterhalb einer Ebene
//   - Apply: uebertraegt Einrueckung und Zeilenenden des Originals
//
// Apply veraendert ausschliesslich fuehrende Einrueckung und Zeilenenden,
// der Token-Inhalt jeder Zeile bleibt unangetastet.
package style

import (
	"cmp"
	"slices"
	"strconv"
	"strings"
)

const (
	LF   = "\n"
	CRLF = "\r\n"
)

// tabWidth ist die Breite eines Tabs wenn Leerzeichen-Einrueckung erwartet wird
const tabWidth = 4

// Indent beschreibt eine Einrueckungseinheit
type Indent struct {
	Char  byte // '\t' oder ' '
	Width int  // Anzahl Zeichen pro Ebene
}

var (
	Tab        = Indent{Char: '\t', Width: 1}
	FourSpaces = Indent{Char: ' ', Width: 4}
)

func (i Indent) String() string {
	if i.Width <= 0 {
		return ""
	}
	return strings.Repeat(string(i.Char), i.Width)
}

// Name gibt eine lesbare Beschreibung wie "tab" oder "4 spaces" zurueck
func (i Indent) Name() string {
	if i.Char == '\t' {
		return "tab"
	}
	if i.Width == 1 {
		return "1 space"
	}
	return strconv.Itoa(i.Width) + " spaces"
}

// Style fasst die erkannten Konventionen eines Texts zusammen
type Style struct {
	Indent          Indent
	LineEnding      string
	TrailingNewline bool
	Quote           rune   // '"', '\'' oder 0 wenn keine Strings vorkommen
	Naming          Naming // dominierende Namenskonvention
	Brackets        Brackets
	MaxLineWidth    int // 90. Perzentil der Zeilenbreite (Display-Breite)
}

// Detect liest den Style aus text
func Detect(text string) Style {
	s := Style{
		Indent:          DetectIndent(text),
		LineEnding:      LF,
		TrailingNewline: strings.HasSuffix(text, "\n"),
		Quote:           detectQuote(text),
		Naming:          detectNaming(text),
		Brackets:        detectBrackets(text),
		MaxLineWidth:    lineWidthP90(text),
	}

	if crlf := strings.Count(text, CRLF); crlf > 0 && crlf*2 >= strings.Count(text, "\n") {
		s.LineEnding = CRLF
	}

	return s
}

// splitLines trennt text an LF oder CRLF
func splitLines(text string) []string {
	return strings.Split(strings.ReplaceAll(text, CRLF, LF), LF)
}

// leading gibt die fuehrenden Leerzeichen/Tabs einer Zeile zurueck
func leading(line string) string {
	return line[:len(line)-len(strings.TrimLeft(line, " \t"))]
}

// DetectIndent bestimmt die haeufigste Einrueckungsstufe
// Zeilen mit Tab-Einrueckung stimmen fuer Tab, sonst zaehlt die haeufigste
// positive Differenz zwischen aufeinanderfolgenden Einrueckungen.
func DetectIndent(text string) Indent {
	var tabs, spaces int
	deltas := make(map[int]int)
	prev := 0

	for _, line := range splitLines(text) {
		if strings.TrimSpace(line) == "" {
			continue
		}

		ws := leading(line)
		switch {
		case strings.HasPrefix(ws, "\t"):
			tabs++
			continue
		case ws != "":
			spaces++
		}

		if width := len(ws); width > prev {
			deltas[width-prev]++
		}
		prev = len(ws)
	}

	if tabs > spaces {
		return Tab
	}

	if len(deltas) == 0 {
		return FourSpaces
	}

	type candidate struct{ width, count int }
	var candidates []candidate
	for w, c := range deltas {
		candidates = append(candidates, candidate{w, c})
	}

	// Haeufigste Differenz, bei Gleichstand die kleinere
	slices.SortFunc(candidates, func(a, b candidate) int {
		return cmp.Or(cmp.Compare(b.count, a.count), cmp.Compare(a.width, b.width))
	})

	return Indent{Char: ' ', Width: candidates[0].width}
}

// Levels zerlegt line in Einrueckungsebene (gemessen in unit) und Rest
// Tabs zaehlen als eine Ebene, Leerzeichen in Vielfachen der Einheit.
func Levels(line string, unit Indent) (int, string) {
	level, _, rest := Align(line, unit)
	return level, rest
}

// Align gibt zusaetzlich zu Levels die Leerzeichen nach der letzten vollen
// Ebene zurueck, z.B. Ausrichtung von Fortsetzungszeilen.
func Align(line string, unit Indent) (level, extra int, rest string) {
	ws := leading(line)
	rest = line[len(ws):]

	spaceUnit := unit.Width
	if unit.Char == '\t' || spaceUnit <= 0 {
		spaceUnit = tabWidth
	}

	for _, c := range ws {
		switch c {
		case '\t':
			level++
			extra = 0
		case ' ':
			extra++
			if extra == spaceUnit {
				level++
				extra = 0
			}
		}
	}

	return level, extra, rest
}

// Apply uebertraegt Einrueckungseinheit, Zeilenende und abschliessenden
// Zeilenumbruch von original auf translated.
func Apply(original, translated string) string {
	if strings.TrimSpace(translated) == "" {
		return ""
	}

	want := Detect(original)
	have := DetectIndent(translated)

	lines := splitLines(strings.TrimRight(translated, "\r\n"))
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			lines[i] = ""
			continue
		}

		level, extra, rest := Align(line, have)
		lines[i] = strings.Repeat(want.Indent.String(), level) + strings.Repeat(" ", extra) + rest
	}

	out := strings.Join(lines, want.LineEnding)
	if want.TrailingNewline || (original == "" && strings.HasSuffix(translated, "\n")) {
		out += want.LineEnding
	}

	return out
}
