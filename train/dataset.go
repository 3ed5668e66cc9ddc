// dataset.go - Trainingsdaten laden, bereinigen und aufteilen
//
// Unterstuetzte Formate (JSON-Array, einzelnes Objekt oder JSONL):
// - {"source": ..., "target": ..., "source_lang": ..., "target_lang": ...}
// - {"source_codes": [...], "target_codes": [...], "source_lang": ..., "target_lang": ...}
package train

import (
	"bufio"
	"bytes"
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/7blacky7/codetrans/languages"
	"github.com/7blacky7/codetrans/store"
)

// Sample ist ein Quelltext-Paar vor der Tokenisierung
type Sample struct {
	Source     string `json:"source"`
	Target     string `json:"target"`
	SourceLang string `json:"source_lang,omitempty"`
	TargetLang string `json:"target_lang,omitempty"`
}

// record deckt beide Eingabeformen ab
type record struct {
	Source      *string  `json:"source"`
	Target      *string  `json:"target"`
	SourceCodes []string `json:"source_codes"`
	TargetCodes []string `json:"target_codes"`
	SourceLang  string   `json:"source_lang"`
	TargetLang  string   `json:"target_lang"`
}

func (r record) samples() ([]Sample, error) {
	switch {
	case r.Source != nil || r.Target != nil:
		if r.Source == nil || r.Target == nil {
			return nil, errors.New("source and target are required")
		}
		return []Sample{{Source: *r.Source, Target: *r.Target, SourceLang: r.SourceLang, TargetLang: r.TargetLang}}, nil
	case r.SourceCodes != nil || r.TargetCodes != nil:
		if len(r.SourceCodes) != len(r.TargetCodes) {
			return nil, fmt.Errorf("source_codes has %d entries, target_codes %d", len(r.SourceCodes), len(r.TargetCodes))
		}
		out := make([]Sample, len(r.SourceCodes))
		for i := range r.SourceCodes {
			out[i] = Sample{Source: r.SourceCodes[i], Target: r.TargetCodes[i], SourceLang: r.SourceLang, TargetLang: r.TargetLang}
		}
		return out, nil
	}
	return nil, errors.New("record has neither source/target nor source_codes/target_codes")
}

// NewReader entfernt ein UTF-8/UTF-16 BOM und dekodiert nach UTF-8
func NewReader(r io.Reader) io.Reader {
	return transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
}

// LoadDataset liest eine Datei, JSONL wird an der Endung .jsonl erkannt
func LoadDataset(path string) ([]Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var samples []Sample
	if strings.EqualFold(filepath.Ext(path), ".jsonl") {
		samples, err = DecodeJSONL(NewReader(f))
	} else {
		samples, err = DecodeJSON(NewReader(f))
	}
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", path, err)
	}
	return samples, nil
}

// DecodeJSON liest ein Array von Records oder einen einzelnen Record
func DecodeJSON(r io.Reader) ([]Sample, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.New("empty dataset")
	}

	var records []record
	if data[0] == '[' {
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, err
		}
	} else {
		var rec record
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, err
		}
		records = []record{rec}
	}

	var out []Sample
	for i, rec := range records {
		s, err := rec.samples()
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out = append(out, s...)
	}
	return out, nil
}

// DecodeJSONL liest einen Record pro Zeile, leere Zeilen werden uebersprungen
func DecodeJSONL(r io.Reader) ([]Sample, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var out []Sample
	for n := 1; scanner.Scan(); n++ {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var rec record
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		s, err := rec.samples()
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		out = append(out, s...)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// FromFeedback wandelt Benutzer-Korrekturen in Trainingspaare
func FromFeedback(fb []store.Feedback) []Sample {
	out := make([]Sample, 0, len(fb))
	for _, f := range fb {
		out = append(out, Sample{Source: f.Source, Target: f.Correction, SourceLang: f.SourceLang, TargetLang: f.TargetLang})
	}
	return out
}

// Clean normalisiert Zeilenenden, entfernt Leerraum am Zeilenende und
// fasst mehrere Leerzeilen zu einer zusammen
func Clean(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var b strings.Builder
	blank := false
	for line := range strings.SplitSeq(text, "\n") {
		line = strings.TrimRight(line, " \t")
		if line == "" {
			if blank || b.Len() == 0 {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}

	return strings.TrimRight(b.String(), "\n")
}

// PairedSample ist ein bereinigtes Sample mit aufgeloestem Sprachpaar
type PairedSample struct {
	Sample
	Pair languages.Pair
}

// Prepare bereinigt samples, loest Sprachen auf (Defaults fuer fehlende
// Angaben) und entfernt leere Eintraege und Duplikate
func Prepare(samples []Sample, defaultSource, defaultTarget string) ([]PairedSample, error) {
	type key struct {
		pair           languages.Pair
		source, target string
	}
	seen := make(map[key]bool, len(samples))

	out := make([]PairedSample, 0, len(samples))
	for i, s := range samples {
		src := cmp.Or(s.SourceLang, defaultSource)
		tgt := cmp.Or(s.TargetLang, defaultTarget)
		if src == "" || tgt == "" {
			return nil, fmt.Errorf("sample %d: language pair missing and no source_lang/target_lang default configured", i)
		}

		pair, err := languages.NewPair(src, tgt)
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}

		s.Source, s.Target = Clean(s.Source), Clean(s.Target)
		if s.Source == "" || s.Target == "" {
			continue
		}
		s.SourceLang, s.TargetLang = pair.Source, pair.Target

		k := key{pair, s.Source, s.Target}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, PairedSample{Sample: s, Pair: pair})
	}
	return out, nil
}

// Split teilt deterministisch (per seed) in Trainings- und Validierungsmenge
// Bei fraction > 0 und mindestens zwei Samples enthaelt jede Seite
// mindestens ein Sample. Eine leere Validierungsmenge bedeutet, dass auf
// den Trainingsdaten validiert wird.
func Split(samples []PairedSample, fraction float64, seed int64) (trainSet, valSet []PairedSample) {
	idx := make([]int, len(samples))
	for i := range idx {
		idx[i] = i
	}
	rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x5eed))
	rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })

	n := 0
	if fraction > 0 && len(samples) >= 2 {
		n = min(max(int(float64(len(samples))*fraction), 1), len(samples)-1)
	}

	for i, j := range idx {
		if i < n {
			valSet = append(valSet, samples[j])
		} else {
			trainSet = append(trainSet, samples[j])
		}
	}
	return trainSet, valSet
}
