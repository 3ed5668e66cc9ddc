// augment.go - Daten-Augmentation mit Muster-Paaren
//
// Zwei Varianten, beide aendern Quelle und Ziel gleichartig:
// - Muster einfuegen: gleiches Snippet pro Sprache vor dem ersten return
// - Umbenennen: ein gemeinsamer Bezeichner wird konsistent ersetzt
package train

import (
	"math/rand/v2"
	"slices"
	"strings"

	"github.com/dlclark/regexp2"

	"github.com/7blacky7/codetrans/languages"
	"github.com/7blacky7/codetrans/style"
)

// pattern enthaelt dasselbe Snippet pro Sprache
// Fuehrende Tabs markieren relative Einrueckungsebenen.
type pattern map[string]string

var patterns = []pattern{
	{
		"python":     "acc = 0\nfor i in range(3):\n\tacc += i",
		"javascript": "let acc = 0;\nfor (let i = 0; i < 3; i++) {\n\tacc += i;\n}",
		"java":       "int acc = 0;\nfor (int i = 0; i < 3; i++) {\n\tacc += i;\n}",
		"cpp":        "int acc = 0;\nfor (int i = 0; i < 3; i++) {\n\tacc += i;\n}",
		"csharp":     "int acc = 0;\nfor (int i = 0; i < 3; i++) {\n\tacc += i;\n}",
	},
	{
		"python":     "flag = True\nif flag:\n\tflag = False",
		"javascript": "let flag = true;\nif (flag) {\n\tflag = false;\n}",
		"java":       "boolean flag = true;\nif (flag) {\n\tflag = false;\n}",
		"cpp":        "bool flag = true;\nif (flag) {\n\tflag = false;\n}",
		"csharp":     "bool flag = true;\nif (flag) {\n\tflag = false;\n}",
	},
	{
		"python":     "items = [1, 2, 3]\ncount = len(items)",
		"javascript": "const items = [1, 2, 3];\nconst count = items.length;",
		"java":       "int[] items = {1, 2, 3};\nint count = items.length;",
		"cpp":        "std::vector<int> items = {1, 2, 3};\nint count = items.size();",
		"csharp":     "int[] items = {1, 2, 3};\nint count = items.Length;",
	},
}

var (
	returnPattern     = regexp2.MustCompile(`^\s*return\b`, regexp2.None)
	identifierPattern = regexp2.MustCompile(`\b[A-Za-z_][A-Za-z0-9_]*\b`, regexp2.None)
)

var renames = []string{"value", "item", "data", "temp", "current", "entry"}

// Augmenter wendet Augmentation mit Wahrscheinlichkeit prob an
// Die Entscheidung haengt nur von seed, Epoche und Index ab, damit ein
// fortgesetzter Lauf dieselben Daten sieht.
type Augmenter struct {
	prob float64
	seed int64
}

func NewAugmenter(prob float64, seed int64) *Augmenter {
	return &Augmenter{prob: prob, seed: seed}
}

// Apply gibt s unveraendert oder augmentiert zurueck
func (a *Augmenter) Apply(s PairedSample, epoch, index int) PairedSample {
	if a == nil || a.prob <= 0 {
		return s
	}

	rng := rand.New(rand.NewPCG(uint64(a.seed), uint64(epoch)<<32|uint64(uint32(index))))
	if rng.Float64() >= a.prob {
		return s
	}

	if rng.IntN(2) == 0 {
		if out, ok := rename(s, rng); ok {
			return out
		}
	}
	if out, ok := insertPattern(s, patterns[rng.IntN(len(patterns))]); ok {
		return out
	}
	return s
}

func insertPattern(s PairedSample, p pattern) (PairedSample, bool) {
	src, ok1 := p[s.Pair.Source]
	tgt, ok2 := p[s.Pair.Target]
	if !ok1 || !ok2 {
		return s, false
	}

	s.Source = insertBeforeReturn(s.Source, src)
	s.Target = insertBeforeReturn(s.Target, tgt)
	return s, true
}

// insertBeforeReturn fuegt snippet vor der ersten return-Zeile ein
func insertBeforeReturn(text, snippet string) string {
	lines := strings.Split(text, "\n")
	unit := style.DetectIndent(text).String()

	at, base := len(lines), ""
	for i, line := range lines {
		if ok, _ := returnPattern.MatchString(line); ok {
			at = i
			base = line[:len(line)-len(strings.TrimLeft(line, " \t"))]
			break
		}
	}
	if at == len(lines) {
		// ohne return: vor schliessenden Klammern am Ende
		for at > 0 && (strings.TrimSpace(lines[at-1]) == "" || strings.HasPrefix(strings.TrimSpace(lines[at-1]), "}")) {
			at--
		}
		if at > 0 {
			base = lines[at-1][:len(lines[at-1])-len(strings.TrimLeft(lines[at-1], " \t"))]
		}
	}

	var inserted []string
	for line := range strings.SplitSeq(snippet, "\n") {
		rest := strings.TrimLeft(line, "\t")
		levels := len(line) - len(rest)
		inserted = append(inserted, base+strings.Repeat(unit, levels)+rest)
	}

	out := make([]string, 0, len(lines)+len(inserted))
	out = append(out, lines[:at]...)
	out = append(out, inserted...)
	out = append(out, lines[at:]...)
	return strings.Join(out, "\n")
}

func identifiers(text string) map[string]bool {
	out := make(map[string]bool)
	m, _ := identifierPattern.FindStringMatch(text)
	for m != nil {
		out[m.String()] = true
		m, _ = identifierPattern.FindNextMatch(m)
	}
	return out
}

// rename ersetzt einen gemeinsamen Bezeichner in Quelle und Ziel
func rename(s PairedSample, rng *rand.Rand) (PairedSample, bool) {
	srcLang, err := languages.Lookup(s.Pair.Source)
	if err != nil {
		return s, false
	}
	tgtLang, err := languages.Lookup(s.Pair.Target)
	if err != nil {
		return s, false
	}

	srcIDs, tgtIDs := identifiers(s.Source), identifiers(s.Target)

	var shared []string
	for id := range srcIDs {
		if tgtIDs[id] && len(id) > 1 && !srcLang.IsKeyword(id) && !tgtLang.IsKeyword(id) {
			shared = append(shared, id)
		}
	}
	if len(shared) == 0 {
		return s, false
	}
	// Map-Reihenfolge ist zufaellig
	slices.Sort(shared)

	from := shared[rng.IntN(len(shared))]
	var to string
	for _, cand := range rng.Perm(len(renames)) {
		if name := renames[cand]; !srcIDs[name] && !tgtIDs[name] {
			to = name
			break
		}
	}
	if to == "" {
		return s, false
	}

	re := regexp2.MustCompile(`\b`+regexp2.Escape(from)+`\b`, regexp2.None)
	src, err := re.Replace(s.Source, to, -1, -1)
	if err != nil {
		return s, false
	}
	tgt, err := re.Replace(s.Target, to, -1, -1)
	if err != nil {
		return s, false
	}

	s.Source, s.Target = src, tgt
	return s, true
}
