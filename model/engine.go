// engine.go - Translation Engine: Forward, Loss und Training-Schritt
//
// Die Engine besitzt die veraenderlichen Gewichte. Pro Engine laeuft
// immer nur eine Berechnung, Inferenz fuer Aufrufer geschieht ueber
// unveraenderliche Snapshots (state.go).
package model

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"sync"

	"gonum.org/v1/gonum/floats"
)

// Output ist das Ergebnis von Forward
type Output struct {
	// Logits pro Decoder-Schritt
	Logits [][]float64
	// Tokens ist das Argmax pro Schritt (ohne abschliessendes <eos>)
	Tokens []int32
	// Loss ist der mittlere Cross-Entropy-Loss, nur mit Ziel gueltig
	Loss    float64
	HasLoss bool
}

// Engine verbindet Encoder, Attention und Decoder
type Engine struct {
	mu     sync.Mutex
	cfg    Config
	params *Params
	rng    *rand.Rand
}

// NewEngine erstellt eine Engine; params == nil initialisiert neue Gewichte
func NewEngine(cfg Config, params *Params, seed uint64) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if params == nil {
		params = NewParams(cfg, seed)
	} else if !params.Matches(cfg) {
		v, d, h := params.dims()
		return nil, fmt.Errorf("model: params %dx%dx%d do not match config %dx%dx%d",
			v, d, h, cfg.VocabSize, cfg.EmbeddingDim, cfg.HiddenDim)
	}

	return &Engine{
		cfg:    cfg,
		params: params,
		rng:    rand.New(rand.NewPCG(seed, seed+1)),
	}, nil
}

func (e *Engine) Config() Config {
	return e.cfg
}

// Params gibt die veraenderlichen Gewichte zurueck
// Nur der Optimizer des Trainings darf sie veraendern.
func (e *Engine) Params() *Params {
	return e.params
}

// Forward berechnet Logits ohne Dropout
// Mit target: Teacher Forcing und Loss. Ohne target: greedy Decoding
// bis <eos> oder maxLength Schritte.
func (e *Engine) Forward(src, target []int32, maxLength int) (Output, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return forward(e.params, e.cfg, src, target, maxLength)
}

// Step berechnet Loss und Gradienten fuer einen Batch
// Gradienten werden vorher geleert und ueber den Batch gemittelt. Der
// Optimizer-Schritt ist Sache des Aufrufers.
func (e *Engine) Step(batch []Example) (float64, error) {
	if len(batch) == 0 {
		return 0, ErrEmptySequence
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.params.ZeroGrad()
	drop := &dropout{p: e.cfg.Dropout, rng: e.rng}
	attnDrop := &dropout{p: e.cfg.AttentionDropout, rng: e.rng}
	scale := 1 / float64(len(batch))

	var total float64
	for _, ex := range batch {
		tr, err := e.params.forwardTrain(e.cfg, ex, drop, attnDrop)
		if err != nil {
			return 0, err
		}
		total += tr.loss
		e.params.backward(tr, scale)
	}

	return total * scale, nil
}

// Snapshot erstellt einen unveraenderlichen Zustand mit Kopie der Gewichte
func (e *Engine) Snapshot(version uint64) *State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return NewState(e.cfg, e.params, version)
}

// trace haelt alle Zwischenwerte eines Trainingsbeispiels
type trace struct {
	enc   *encoderTrace
	steps []*decoderStep
	dz    [][]float64 // Logit-Gradienten, bereits durch T geteilt
	loss  float64
}

// forwardTrain fuehrt Teacher Forcing mit Dropout aus und berechnet den Loss
func (p *Params) forwardTrain(cfg Config, ex Example, drop, attnDrop *dropout) (*trace, error) {
	if err := checkIDs(ex.Source, cfg.VocabSize); err != nil {
		return nil, err
	}
	if err := checkIDs(ex.Target, cfg.VocabSize); err != nil {
		return nil, err
	}

	tr := &trace{enc: p.encode(ex.Source, drop)}
	invT := 1 / float64(len(ex.Target))

	prev, input := tr.enc.summary(), bosID
	for _, target := range ex.Target {
		st := p.step(prev, input, tr.enc.h, drop, attnDrop)
		dz := make([]float64, len(st.logits))
		tr.loss += smoothedCrossEntropy(st.logits, target, cfg.LabelSmoothing, dz) * invT
		floats.Scale(invT, dz)

		tr.steps = append(tr.steps, st)
		tr.dz = append(tr.dz, dz)
		prev, input = st.s, target
	}

	return tr, nil
}

// backward akkumuliert scale * Gradient des Beispiels in die Param-Gradienten
func (p *Params) backward(tr *trace, scale float64) {
	_, _, hdim := p.dims()
	hidden := tr.enc.h

	dh := make([][]float64, len(hidden))
	for i := range dh {
		dh[i] = make([]float64, hdim)
	}

	ds := make([]float64, hdim)
	for t := len(tr.steps) - 1; t >= 0; t-- {
		dz := make([]float64, len(tr.dz[t]))
		floats.ScaleTo(dz, scale, tr.dz[t])
		ds = p.backwardStep(tr.steps[t], dz, ds, hidden, dh)
	}

	// s_0 ist der Summary-Vektor
	floats.Add(dh[len(dh)-1], ds)
	p.backwardEncoder(tr.enc, dh)
}

// smoothedCrossEntropy berechnet -sum q log p mit geglaetteten Zielen
// q = (1-eps) onehot(target) + eps/V. dz erhaelt p - q.
func smoothedCrossEntropy(logits []float64, target int32, eps float64, dz []float64) float64 {
	lse := floats.LogSumExp(logits)
	off := eps / float64(len(logits))

	var loss float64
	for k, z := range logits {
		q := off
		if int32(k) == target {
			q += 1 - eps
		}
		logp := z - lse
		loss -= q * logp
		dz[k] = math.Exp(logp) - q
	}
	return loss
}

// forward ist die gemeinsame Auswertung fuer Engine und State
func forward(p *Params, cfg Config, src, target []int32, maxLength int) (Output, error) {
	if err := checkIDs(src, cfg.VocabSize); err != nil {
		return Output{}, err
	}

	if target == nil {
		dec, err := decode(p, src, DecodeOptions{Strategy: Greedy, MaxLength: maxLength}, true)
		if err != nil {
			return Output{}, err
		}
		return Output{Logits: dec.Logits, Tokens: dec.Tokens}, nil
	}

	if err := checkIDs(target, cfg.VocabSize); err != nil {
		return Output{}, err
	}

	hidden, summary := p.Encode(src)
	out := Output{HasLoss: true}
	dz := make([]float64, cfg.VocabSize)

	prev, input := summary, bosID
	for _, t := range target {
		st := p.step(prev, input, hidden, nil, nil)
		out.Logits = append(out.Logits, st.logits)
		out.Loss += smoothedCrossEntropy(st.logits, t, cfg.LabelSmoothing, dz)
		out.Tokens = append(out.Tokens, int32(floats.MaxIdx(st.logits)))
		prev, input = st.s, t
	}
	out.Loss /= float64(len(target))

	if i := slices.Index(out.Tokens, eosID); i >= 0 {
		out.Tokens = out.Tokens[:i]
	}

	if math.IsNaN(out.Loss) || math.IsInf(out.Loss, 0) {
		return out, ErrNonFiniteLoss
	}

	return out, nil
}
