// encode.go - Text zu Token-IDs encodieren
//
// Enthaelt:
// - pieces: Pre-Tokenisierung (Zeilen, Einrueckungsebenen, regexp2-Muster)
// - Encode: Text zu TokenSequence, unbekannte Tokens werden zu <unk>
// - EncodeBatch: parallele Encodierung vieler Texte
//
// Siehe auch: decode.go fuer die Rueckrichtung
package tokenizer

import (
	"runtime"
	"slices"
	"strings"

	"github.com/dlclark/regexp2"
	"golang.org/x/sync/errgroup"

	"github.com/7blacky7/codetrans/style"
)

// pretokenizer zerlegt eine Zeile (ohne Einrueckung) in Tokens:
// String-Literale, Bezeichner, Zahlen, Mehrzeichen-Operatoren, Einzelzeichen
var pretokenizer = regexp2.MustCompile(
	`"(?:\\.|[^"\\])*"|'(?:\\.|[^'\\])*'|\x60(?:\\.|[^\x60\\])*\x60`+
		`|[A-Za-z_]\w*|\d+(?:\.\d+)?`+
		`|==|!=|<=|>=|&&|\|\||\+\+|--|->|=>|\+=|-=|\*=|/=|::|<<|>>|\*\*|//|/\*|\*/`+
		`|\S`,
	regexp2.None)

// pieces zerlegt text in Token-Strings inklusive <nl> und <ind>
func pieces(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	unit := style.DetectIndent(text)

	var out []string
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			out = append(out, Newline)
		}

		if strings.TrimSpace(line) == "" {
			continue
		}

		level, rest := style.Levels(line, unit)
		for range level {
			out = append(out, Indent)
		}

		m, _ := pretokenizer.FindStringMatch(rest)
		for m != nil {
			out = append(out, m.String())
			m, _ = pretokenizer.FindNextMatch(m)
		}
	}

	return out
}

// Encoding ist das Ergebnis von Encode
// Unbekannte Tokens und Kuerzungen sind erwartete Faelle und werden hier
// gemeldet statt als Fehler.
type Encoding struct {
	Sequence TokenSequence
	// Unknown enthaelt jedes unbekannte Token einmal, in Reihenfolge des Auftretens
	Unknown []string
	// Dropped ist die Anzahl Tokens die wegen maxLength entfernt wurden
	Dropped int
}

// TooLong meldet ob die Eingabe auf maxLength gekuerzt wurde
func (e Encoding) TooLong() bool {
	return e.Dropped > 0
}

// HasUnknown meldet ob die Eingabe unbekannte Tokens enthielt
func (e Encoding) HasUnknown() bool {
	return len(e.Unknown) > 0
}

// Encode wandelt text in eine TokenSequence mit abschliessendem <eos>
// prefix-Tokens (z.B. Sprach-Tags) werden unveraendert vorangestellt.
// maxLength <= 0 bedeutet keine Begrenzung.
func (v *Vocabulary) Encode(text string, maxLength int, prefix ...string) Encoding {
	var enc Encoding
	seen := make(map[string]bool)

	ps := slices.Concat(prefix, pieces(text))
	ids := make([]int32, 0, len(ps)+1)
	for _, p := range ps {
		id, ok := v.index[p]
		if !ok {
			id = UnkID
			if !seen[p] {
				seen[p] = true
				enc.Unknown = append(enc.Unknown, p)
			}
		}
		ids = append(ids, id)
	}
	ids = append(ids, EOSID)

	if maxLength > 0 && len(ids) > maxLength {
		enc.Dropped = len(ids) - maxLength
		ids = append(ids[:maxLength-1], EOSID)
	}

	enc.Sequence = TokenSequence{IDs: ids, Length: len(ids)}
	return enc
}

// EncodeBatch encodiert texts parallel, die Reihenfolge bleibt erhalten
func (v *Vocabulary) EncodeBatch(texts []string, maxLength int, prefix ...string) []Encoding {
	out := make([]Encoding, len(texts))

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, text := range texts {
		g.Go(func() error {
			out[i] = v.Encode(text, maxLength, prefix...)
			return nil
		})
	}
	_ = g.Wait()

	return out
}
