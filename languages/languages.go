// Package languages - Registry der unterstuetzten Programmiersprachen
//
// Enthaelt:
// - Language: Kommentar-Marker, String-Delimiter, Block-Opener, Keywords
// - Lookup/Named: Suche per Name, Alias oder unscharfem Namen (Levenshtein)
// - FromPath: Sprache anhand der Dateiendung
// - Tag: Sprach-Token fuer das Vokabular ("<python>")
//
// Die Definitionen liegen als index.json im Binary.
package languages

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/agnivade/levenshtein"
)

//go:embed index.json
var indexBytes []byte

// Language beschreibt die lexikalischen Eigenschaften einer Sprache
type Language struct {
	Name              string    `json:"name"`
	Aliases           []string  `json:"aliases,omitempty"`
	Extensions        []string  `json:"extensions"`
	LineComment       []string  `json:"line_comment"`
	BlockComment      [2]string `json:"block_comment,omitzero"`
	StringDelims      string    `json:"string_delims"`
	RegexLiterals     bool      `json:"regex_literals,omitempty"`
	BlockOpener       string    `json:"block_opener"`
	IndentSignificant bool      `json:"indent_significant,omitempty"`
	Keywords          []string  `json:"keywords"`
}

// Tag gibt das Vokabular-Token der Sprache zurueck
func (l Language) Tag() string {
	return Tag(l.Name)
}

// IsKeyword meldet ob word ein Schluesselwort der Sprache ist
func (l Language) IsKeyword(word string) bool {
	return slices.Contains(l.Keywords, word)
}

// UnknownLanguageError wird fuer nicht registrierte Sprachen geliefert
type UnknownLanguageError struct {
	Name       string
	Suggestion string
}

func (e *UnknownLanguageError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("unknown language %q, did you mean %q?", e.Name, e.Suggestion)
	}
	return fmt.Sprintf("unknown language %q", e.Name)
}

var registryOnce = sync.OnceValues(func() ([]Language, error) {
	var langs []Language
	if err := json.Unmarshal(indexBytes, &langs); err != nil {
		return nil, err
	}
	return langs, nil
})

// All gibt alle registrierten Sprachen in fester Reihenfolge zurueck
func All() []Language {
	langs, err := registryOnce()
	if err != nil {
		panic(fmt.Sprintf("languages: invalid index: %v", err))
	}
	return slices.Clone(langs)
}

// Names gibt die kanonischen Namen aller Sprachen zurueck
func Names() []string {
	var names []string
	for _, l := range All() {
		names = append(names, l.Name)
	}
	return names
}

// Tag baut das Sprach-Token fuer name
func Tag(name string) string {
	return "<" + name + ">"
}

// Tags gibt die Sprach-Tokens aller registrierten Sprachen zurueck
func Tags() []string {
	var tags []string
	for _, l := range All() {
		tags = append(tags, l.Tag())
	}
	return tags
}

// Lookup sucht eine Sprache per Name oder Alias (case-insensitive)
func Lookup(name string) (Language, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	for _, l := range All() {
		if l.Name == key || slices.Contains(l.Aliases, key) {
			return l, nil
		}
	}

	return Language{}, &UnknownLanguageError{Name: name, Suggestion: closest(key)}
}

// closest findet den aehnlichsten Namen, nur bei kleinem Abstand
func closest(key string) string {
	if key == "" {
		return ""
	}

	var best string
	score := math.MaxInt
	for _, l := range All() {
		for _, candidate := range append([]string{l.Name}, l.Aliases...) {
			if d := levenshtein.ComputeDistance(key, candidate); d < score {
				score, best = d, l.Name
			}
		}
	}

	if score <= 2 {
		return best
	}
	return ""
}

// FromPath bestimmt die Sprache anhand der Dateiendung
func FromPath(path string) (Language, error) {
	ext := strings.ToLower(filepath.Ext(path))
	for _, l := range All() {
		if slices.Contains(l.Extensions, ext) {
			return l, nil
		}
	}
	return Language{}, &UnknownLanguageError{Name: ext}
}
