// pair.go - Sprachpaare (Quelle -> Ziel)
package languages

import (
	"fmt"
	"strings"
)

// Pair ist eine Uebersetzungsrichtung mit kanonischen Sprachnamen
type Pair struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// NewPair loest beide Namen ueber Lookup auf
func NewPair(source, target string) (Pair, error) {
	src, err := Lookup(source)
	if err != nil {
		return Pair{}, err
	}
	tgt, err := Lookup(target)
	if err != nil {
		return Pair{}, err
	}
	return Pair{Source: src.Name, Target: tgt.Name}, nil
}

// ParsePair parst "python->java"
func ParsePair(s string) (Pair, error) {
	source, target, ok := strings.Cut(s, "->")
	if !ok {
		return Pair{}, fmt.Errorf("invalid language pair %q", s)
	}
	return NewPair(source, target)
}

func (p Pair) String() string {
	return p.Source + "->" + p.Target
}

// Prefix gibt die Tag-Tokens fuer die Quellsequenz zurueck
func (p Pair) Prefix() []string {
	return []string{Tag(p.Source), Tag(p.Target)}
}
