// vocabulary.go - Vokabular: bijektive Abbildung Token <-> ID
//
// Enthaelt:
// - Reservierte IDs (pad/bos/eos/unk/nl/ind), stabil ueber Save/Load
// - Build: Aufbau aus einem Trainingskorpus (Haeufigkeit, dann lexikographisch)
// - New: Rekonstruktion aus einer persistierten Token-Liste
// - VocabularyError: leerer oder ungueltiger Korpus
package tokenizer

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"unicode"

	"github.com/google/uuid"
)

// Reservierte Token-IDs
const (
	PadID int32 = iota
	BOSID
	EOSID
	UnkID
	NewlineID
	IndentID
)

// Reservierte Token-Strings in ID-Reihenfolge
const (
	Pad     = "<pad>"
	BOS     = "<bos>"
	EOS     = "<eos>"
	Unk     = "<unk>"
	Newline = "<nl>"
	Indent  = "<ind>"
)

var reserved = []string{Pad, BOS, EOS, Unk, Newline, Indent}

// CurrentVersion ist die Version des Vokabular-Layouts
const CurrentVersion uint32 = 1

// VocabularyError meldet einen leeren oder inkonsistenten Korpus
type VocabularyError struct {
	Reason string
}

func (e *VocabularyError) Error() string {
	return "vocabulary: " + e.Reason
}

// BuildOptions steuert den Aufbau aus einem Korpus
type BuildOptions struct {
	// MinFreq ist die minimale Haeufigkeit eines Tokens (Default 1)
	MinFreq int
	// MaxSize begrenzt die Gesamtgroesse inklusive reservierter Tokens (0 = unbegrenzt)
	MaxSize int
	// Specials werden direkt nach den reservierten Tokens eingefuegt (z.B. Sprach-Tags)
	Specials []string
}

// Vocabulary ist nach der Konstruktion unveraenderlich
type Vocabulary struct {
	ID      string
	Version uint32

	tokens   []string
	index    map[string]int32
	specials int // Anzahl reservierter Tokens + Specials
}

// Build erstellt ein Vokabular aus corpus
func Build(corpus []string, opts BuildOptions) (*Vocabulary, error) {
	if len(corpus) == 0 {
		return nil, &VocabularyError{Reason: "empty corpus"}
	}

	counts := make(map[string]int)
	for _, text := range corpus {
		for _, piece := range pieces(text) {
			if piece == Newline || piece == Indent {
				continue
			}
			counts[piece]++
		}
	}

	if len(counts) == 0 {
		return nil, &VocabularyError{Reason: "corpus contains no tokens"}
	}

	head := slices.Concat(reserved, opts.Specials)
	for _, s := range head {
		delete(counts, s)
	}

	minFreq := max(opts.MinFreq, 1)
	words := slices.Collect(maps.Keys(counts))
	words = slices.DeleteFunc(words, func(w string) bool { return counts[w] < minFreq })

	slices.SortFunc(words, func(a, b string) int {
		return cmp.Or(cmp.Compare(counts[b], counts[a]), cmp.Compare(a, b))
	})

	if opts.MaxSize > 0 {
		if room := opts.MaxSize - len(head); room < len(words) {
			words = words[:max(room, 0)]
		}
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}

	return New(slices.Concat(head, words), id.String(), CurrentVersion)
}

// New rekonstruiert ein Vokabular aus einer vollstaendigen Token-Liste
// Die reservierten Tokens muessen an ihren festen Positionen stehen.
func New(tokens []string, id string, version uint32) (*Vocabulary, error) {
	if version != CurrentVersion {
		return nil, &VocabularyError{Reason: fmt.Sprintf("unsupported version %d", version)}
	}

	if len(tokens) < len(reserved) {
		return nil, &VocabularyError{Reason: fmt.Sprintf("expected at least %d tokens, got %d", len(reserved), len(tokens))}
	}

	for i, want := range reserved {
		if tokens[i] != want {
			return nil, &VocabularyError{Reason: fmt.Sprintf("reserved id %d is %q, want %q", i, tokens[i], want)}
		}
	}

	v := &Vocabulary{
		ID:      id,
		Version: version,
		tokens:  slices.Clone(tokens),
		index:   make(map[string]int32, len(tokens)),
	}

	for i, t := range v.tokens {
		if _, ok := v.index[t]; ok {
			return nil, &VocabularyError{Reason: fmt.Sprintf("duplicate token %q", t)}
		}
		v.index[t] = int32(i)
	}

	for v.specials < len(v.tokens) && isMarker(v.tokens[v.specials]) {
		v.specials++
	}

	return v, nil
}

// isMarker erkennt Tokens der Form <name>
func isMarker(t string) bool {
	if len(t) < 3 || t[0] != '<' || t[len(t)-1] != '>' {
		return false
	}
	for _, r := range t[1 : len(t)-1] {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return false
		}
	}
	return true
}

// Size gibt die Anzahl der Tokens zurueck
func (v *Vocabulary) Size() int {
	return len(v.tokens)
}

// Tokens gibt eine Kopie aller Tokens in ID-Reihenfolge zurueck
func (v *Vocabulary) Tokens() []string {
	return slices.Clone(v.tokens)
}

// Lookup gibt die ID eines Tokens zurueck
func (v *Vocabulary) Lookup(token string) (int32, bool) {
	id, ok := v.index[token]
	return id, ok
}

// Token gibt den String zu id zurueck, "<unk>" fuer ungueltige IDs
func (v *Vocabulary) Token(id int32) string {
	if id < 0 || int(id) >= len(v.tokens) {
		return Unk
	}
	return v.tokens[id]
}

// IsSpecial meldet reservierte Tokens und Specials (z.B. Sprach-Tags)
func (v *Vocabulary) IsSpecial(id int32) bool {
	return id >= 0 && int(id) < v.specials
}
