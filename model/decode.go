// decode.go - Autoregressives Decoding: greedy, top-k Sampling, Beam Search
//
// Jeder Schritt verwendet das eigene vorherige Token als Eingabe. Das Decoding
// endet bei <eos> oder nach MaxLength Schritten. Bei gleichen Scores gewinnt
// immer die niedrigste Token-ID.
package model

import (
	"cmp"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/emirpasic/gods/v2/lists/arraylist"
	"gonum.org/v1/gonum/floats"
)

// Strategy waehlt das Verfahren fuer das naechste Token
type Strategy string

const (
	Greedy Strategy = "greedy"
	TopK   Strategy = "topk"
	Beam   Strategy = "beam"
)

// DefaultMaxLength begrenzt das Decoding wenn nichts anderes gesetzt ist
const DefaultMaxLength = 256

// DecodeOptions steuert das Decoding
type DecodeOptions struct {
	Strategy    Strategy `json:"strategy,omitempty"`
	MaxLength   int      `json:"max_length,omitempty"`
	TopK        int      `json:"top_k,omitempty"`
	BeamSize    int      `json:"beam_size,omitempty"`
	Temperature float64  `json:"temperature,omitempty"`
	Seed        uint64   `json:"seed,omitempty"`
}

func (o DecodeOptions) withDefaults() DecodeOptions {
	if o.Strategy == "" {
		o.Strategy = Greedy
	}
	if o.MaxLength <= 0 {
		o.MaxLength = DefaultMaxLength
	}
	if o.TopK <= 0 {
		o.TopK = 5
	}
	if o.BeamSize <= 0 {
		o.BeamSize = 4
	}
	if o.Temperature <= 0 {
		o.Temperature = 1
	}
	return o
}

// Decoded ist das Ergebnis eines Decoding-Laufs
type Decoded struct {
	// Tokens ohne <eos>, len(Tokens) <= MaxLength
	Tokens []int32
	// Logits pro Schritt (nur greedy und top-k)
	Logits [][]float64
	// Finished ist true wenn <eos> erzeugt wurde
	Finished bool
	// Score ist die Summe der Log-Wahrscheinlichkeiten
	Score float64
}

func decode(p *Params, src []int32, opts DecodeOptions, keepLogits bool) (Decoded, error) {
	v, _, _ := p.dims()
	if err := checkIDs(src, v); err != nil {
		return Decoded{}, err
	}

	opts = opts.withDefaults()
	hidden, summary := p.Encode(src)

	switch opts.Strategy {
	case Greedy:
		return sample(p, hidden, summary, opts, nil, keepLogits), nil
	case TopK:
		rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x5851f42d4c957f2d))
		return sample(p, hidden, summary, opts, rng, keepLogits), nil
	case Beam:
		return beamSearch(p, hidden, summary, opts), nil
	default:
		return Decoded{}, fmt.Errorf("model: unknown decoding strategy %q", opts.Strategy)
	}
}

// sample decodiert greedy (rng == nil) oder per top-k Sampling
func sample(p *Params, hidden HiddenStates, summary []float64, opts DecodeOptions, rng *rand.Rand, keepLogits bool) Decoded {
	var out Decoded
	prev, input := summary, bosID

	for range opts.MaxLength {
		st := p.step(prev, input, hidden, nil, nil)
		if keepLogits {
			out.Logits = append(out.Logits, st.logits)
		}

		next := int32(floats.MaxIdx(st.logits))
		if rng != nil && opts.TopK > 1 {
			next = sampleTopK(st.logits, opts.TopK, opts.Temperature, rng)
		}

		out.Score += logSoftmax(st.logits)[next]
		if next == eosID {
			out.Finished = true
			break
		}

		out.Tokens = append(out.Tokens, next)
		prev, input = st.s, next
	}

	return out
}

// topIndices gibt die k besten Indizes absteigend nach Wert zurueck
// Gleichstand wird zugunsten der niedrigeren ID entschieden.
func topIndices(values []float64, k int) []int32 {
	idx := make([]int32, len(values))
	for i := range idx {
		idx[i] = int32(i)
	}

	slices.SortStableFunc(idx, func(a, b int32) int {
		return cmp.Compare(values[b], values[a])
	})

	return idx[:min(k, len(idx))]
}

func sampleTopK(logits []float64, k int, temperature float64, rng *rand.Rand) int32 {
	candidates := topIndices(logits, k)

	probs := make([]float64, len(candidates))
	for i, id := range candidates {
		probs[i] = logits[id] / temperature
	}
	softmax(probs)

	r := rng.Float64()
	for i, pr := range probs {
		if r < pr {
			return candidates[i]
		}
		r -= pr
	}
	return candidates[len(candidates)-1]
}

// hypothesis ist ein Kandidat der Beam Search
type hypothesis struct {
	tokens []int32
	state  []float64
	score  float64
	done   bool
}

// compareHypotheses sortiert nach Score absteigend, dann lexikographisch nach IDs
func compareHypotheses(a, b *hypothesis) int {
	return cmp.Or(cmp.Compare(b.score, a.score), slices.Compare(a.tokens, b.tokens))
}

func beamSearch(p *Params, hidden HiddenStates, summary []float64, opts DecodeOptions) Decoded {
	beams := arraylist.New(&hypothesis{state: summary})

	for range opts.MaxLength {
		candidates := arraylist.New[*hypothesis]()
		for _, h := range beams.Values() {
			if h.done {
				candidates.Add(h)
				continue
			}

			input := bosID
			if len(h.tokens) > 0 {
				input = h.tokens[len(h.tokens)-1]
			}

			st := p.step(h.state, input, hidden, nil, nil)
			logp := logSoftmax(st.logits)
			for _, id := range topIndices(logp, opts.BeamSize) {
				candidates.Add(&hypothesis{
					tokens: append(slices.Clone(h.tokens), id),
					state:  st.s,
					score:  h.score + logp[id],
					done:   id == eosID,
				})
			}
		}

		ranked := candidates.Values()
		slices.SortStableFunc(ranked, compareHypotheses)
		beams = arraylist.New(ranked[:min(opts.BeamSize, len(ranked))]...)

		if !slices.ContainsFunc(beams.Values(), func(h *hypothesis) bool { return !h.done }) {
			break
		}
	}

	best, _ := beams.Get(0)
	for _, h := range beams.Values() {
		if h.done {
			best = h
			break
		}
	}

	out := Decoded{Tokens: best.tokens, Finished: best.done, Score: best.score}
	if best.done {
		out.Tokens = best.tokens[:len(best.tokens)-1]
	}
	if math.IsInf(out.Score, -1) {
		out.Score = -math.MaxFloat64
	}
	return out
}
