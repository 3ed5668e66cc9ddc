// report.go - Bewertung ganzer Datensaetze und JSON-Report
package metrics

import (
	"context"
	"encoding/json"
	"runtime"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"golang.org/x/sync/errgroup"

	"github.com/7blacky7/codetrans/languages"
)

// Sample ist ein zu bewertendes Paar
type Sample struct {
	Reference string `json:"reference"`
	Candidate string `json:"candidate"`
	Language  string `json:"language"`
}

// Report fasst die Bewertung mehrerer Samples zusammen
type Report struct {
	Count   int      `json:"count"`
	Valid   int      `json:"valid"`
	Mean    Scores   `json:"mean"`
	Samples []Scores `json:"samples,omitempty"`
}

// Ordered gibt die Scores in fester Reihenfolge fuer die Ausgabe zurueck
func (s Scores) Ordered() *orderedmap.OrderedMap[string, float64] {
	om := orderedmap.New[string, float64]()
	om.Set("overall_score", s.Overall)
	om.Set("syntax_valid", s.Syntax)
	om.Set("bleu_score", s.BLEU)
	om.Set("structural_similarity", s.Structure)
	om.Set("edit_similarity", s.Edit)
	return om
}

// MarshalJSON schreibt die Scores mit Overall zuerst
func (s Scores) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Ordered())
}

// UnmarshalJSON liest die Scores unabhaengig von der Reihenfolge
func (s *Scores) UnmarshalJSON(data []byte) error {
	type plain Scores
	return json.Unmarshal(data, (*plain)(s))
}

// EvaluateAll bewertet samples parallel mit hoechstens workers Goroutinen.
// Die Reihenfolge von Report.Samples entspricht der Eingabe.
func EvaluateAll(ctx context.Context, samples []Sample, workers int) (Report, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	scores := make([]Scores, len(samples))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, sample := range samples {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			lang, err := languages.Lookup(sample.Language)
			if err != nil {
				return err
			}
			scores[i] = Evaluate(sample.Reference, sample.Candidate, lang)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	r := Report{Count: len(scores), Samples: scores}
	for _, s := range scores {
		r.Mean.Syntax += s.Syntax
		r.Mean.BLEU += s.BLEU
		r.Mean.Structure += s.Structure
		r.Mean.Edit += s.Edit
		r.Mean.Overall += s.Overall
		if s.Syntax == 1 {
			r.Valid++
		}
	}
	if n := float64(len(scores)); n > 0 {
		r.Mean.Syntax /= n
		r.Mean.BLEU /= n
		r.Mean.Structure /= n
		r.Mean.Edit /= n
		r.Mean.Overall /= n
	}
	return r, nil
}
