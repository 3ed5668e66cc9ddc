// Package metrics - Qualitaetsmetriken fuer Uebersetzungen
//
// Enthaelt:
// - BLEU: n-Gramm-Uebereinstimmung (n <= 4) mit Brevity Penalty und Add-One-Smoothing
// - Structure: Aehnlichkeit der Kontrollstruktur (Funktionen, Klassen, Schleifen, ...)
// - Syntax: 1 wenn der Validator die Ausgabe akzeptiert, sonst 0
// - Edit: normierte Levenshtein-Aehnlichkeit
//
// Overall = 0.4 * Syntax + 0.3 * BLEU + 0.3 * Structure
package metrics

import (
	"math"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/dlclark/regexp2"

	"github.com/7blacky7/codetrans/languages"
	"github.com/7blacky7/codetrans/validate"
)

// Gewichte der Gesamtwertung
const (
	syntaxWeight    = 0.4
	bleuWeight      = 0.3
	structureWeight = 0.3

	maxOrder = 4
)

var tokenPattern = regexp2.MustCompile(`\w+|[^\w\s]`, regexp2.None)

// Scores sind die Metriken einer einzelnen Uebersetzung
type Scores struct {
	Syntax    float64 `json:"syntax_valid"`
	BLEU      float64 `json:"bleu_score"`
	Structure float64 `json:"structural_similarity"`
	Edit      float64 `json:"edit_similarity"`
	Overall   float64 `json:"overall_score"`
}

// Evaluate bewertet candidate gegen reference in der Zielsprache lang
func Evaluate(reference, candidate string, lang languages.Language) Scores {
	s := Scores{
		BLEU:      BLEU(Tokenize(reference), Tokenize(candidate)),
		Structure: Structure(reference, candidate),
		Edit:      Edit(reference, candidate),
	}
	if validate.Validate(candidate, lang).Valid {
		s.Syntax = 1
	}
	s.Overall = syntaxWeight*s.Syntax + bleuWeight*s.BLEU + structureWeight*s.Structure
	return s
}

// Tokenize zerlegt Code in Woerter und einzelne Satzzeichen
func Tokenize(code string) []string {
	var tokens []string
	m, _ := tokenPattern.FindStringMatch(code)
	for m != nil {
		tokens = append(tokens, m.String())
		m, _ = tokenPattern.FindNextMatch(m)
	}
	return tokens
}

// BLEU berechnet den geglaetteten BLEU-Score von candidate gegen reference.
// Die Ordnung ist durch die Laenge von candidate begrenzt. Add-One-Smoothing
// gilt nur fuer n > 1, die Unigramm-Precision bleibt ungeglaettet.
func BLEU(reference, candidate []string) float64 {
	if len(reference) == 0 || len(candidate) == 0 {
		return 0
	}

	order := min(maxOrder, len(candidate))

	var logSum float64
	for n := 1; n <= order; n++ {
		ref := ngrams(reference, n)
		var matches, total int
		for ng, count := range ngrams(candidate, n) {
			matches += min(count, ref[ng])
			total += count
		}
		if n == 1 {
			if matches == 0 {
				return 0
			}
			logSum += math.Log(float64(matches) / float64(total))
			continue
		}
		logSum += math.Log(float64(matches+1) / float64(total+1))
	}

	bp := 1.0
	if c, r := len(candidate), len(reference); c < r {
		bp = math.Exp(1 - float64(r)/float64(c))
	}

	return bp * math.Exp(logSum/float64(order))
}

func ngrams(tokens []string, n int) map[string]int {
	counts := make(map[string]int)
	for i := 0; i+n <= len(tokens); i++ {
		counts[strings.Join(tokens[i:i+n], "\x00")]++
	}
	return counts
}

// Edit gibt 1 - Levenshtein/max(len) zurueck, 1 fuer zwei leere Texte
func Edit(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	longest := max(len(ra), len(rb))
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}
