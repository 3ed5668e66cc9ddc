// optim.go - AdamW, Gradient-Clipping und Lernraten-Verlauf
//
// AdamW (entkoppelter Weight Decay):
//
//	m_t = b1*m + (1-b1)*g
//	v_t = b2*v + (1-b2)*g^2
//	w  -= lr * (m_hat/(sqrt(v_hat)+eps) + wd*w)
//
// Biases (Namen mit Suffix ".b") bekommen keinen Weight Decay.
package train

import (
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/7blacky7/codetrans/checkpoint"
	"github.com/7blacky7/codetrans/model"
)

const (
	adamBeta1   = 0.9
	adamBeta2   = 0.999
	adamEpsilon = 1e-8
)

// AdamW haelt die Momente pro Parametername
type AdamW struct {
	weightDecay float64
	step        int
	m, v        map[string][]float64
}

func NewAdamW(weightDecay float64) *AdamW {
	return &AdamW{
		weightDecay: weightDecay,
		m:           make(map[string][]float64),
		v:           make(map[string][]float64),
	}
}

// Step aktualisiert params mit den aktuellen Gradienten
func (o *AdamW) Step(params *model.Params, lr float64) {
	o.step++
	bias1 := 1 - math.Pow(adamBeta1, float64(o.step))
	bias2 := 1 - math.Pow(adamBeta2, float64(o.step))

	for _, p := range params.All() {
		w, g := p.Data(), p.Grad()
		m, ok := o.m[p.Name]
		if !ok {
			m = make([]float64, len(w))
			o.m[p.Name] = m
		}
		v, ok := o.v[p.Name]
		if !ok {
			v = make([]float64, len(w))
			o.v[p.Name] = v
		}

		decay := o.weightDecay
		if strings.HasSuffix(p.Name, ".b") {
			decay = 0
		}

		floats.Scale(adamBeta1, m)
		floats.AddScaled(m, 1-adamBeta1, g)
		for i, gi := range g {
			v[i] = adamBeta2*v[i] + (1-adamBeta2)*gi*gi
			mHat := m[i] / bias1
			vHat := v[i] / bias2
			w[i] -= lr * (mHat/(math.Sqrt(vHat)+adamEpsilon) + decay*w[i])
		}
	}
}

// State gibt eine Kopie der Momente fuer den Checkpoint zurueck (nil vor
// dem ersten Schritt)
func (o *AdamW) State() *checkpoint.Optimizer {
	if o.step == 0 {
		return nil
	}
	s := &checkpoint.Optimizer{
		Step: o.step,
		M:    make(map[string][]float64, len(o.m)),
		V:    make(map[string][]float64, len(o.v)),
	}
	for name, m := range o.m {
		s.M[name] = append([]float64(nil), m...)
	}
	for name, v := range o.v {
		s.V[name] = append([]float64(nil), v...)
	}
	return s
}

// Restore uebernimmt die Momente aus einem Checkpoint
func (o *AdamW) Restore(s *checkpoint.Optimizer) {
	if s == nil {
		return
	}
	o.step = s.Step
	for name, m := range s.M {
		o.m[name] = append([]float64(nil), m...)
	}
	for name, v := range s.V {
		o.v[name] = append([]float64(nil), v...)
	}
}

// GradNorm berechnet die globale L2-Norm aller Gradienten
func GradNorm(params *model.Params) float64 {
	var sum float64
	for _, p := range params.All() {
		g := p.Grad()
		sum += floats.Dot(g, g)
	}
	return math.Sqrt(sum)
}

// ClipGradients skaliert alle Gradienten so dass die globale Norm
// hoechstens maxNorm ist. Zurueck kommt die Norm vor dem Clipping.
func ClipGradients(params *model.Params, maxNorm float64) float64 {
	norm := GradNorm(params)
	if norm > maxNorm && norm > 0 && !math.IsInf(norm, 0) {
		scale := maxNorm / norm
		for _, p := range params.All() {
			floats.Scale(scale, p.Grad())
		}
	}
	return norm
}

// Schedule berechnet die Lernrate pro globalem Schritt
//
// cosine: linearer Warmup, danach Cosinus-Abfall bis min_lr am Ende des Laufs.
// plateau: linearer Warmup, danach konstant; nach plateau_patience Epochen
// ohne Verbesserung wird die Rate mit plateau_factor multipliziert.
type Schedule struct {
	kind       string
	base, min  float64
	warmup     int
	total      int
	patience   int
	factor     float64
	plateauLR  float64
	lastReduce int
}

// NewSchedule erstellt den Verlauf fuer totalSteps Schritte
func NewSchedule(cfg Config, totalSteps int) *Schedule {
	return &Schedule{
		kind:      cfg.LRSchedule,
		base:      cfg.LearningRate,
		min:       cfg.MinLR,
		warmup:    cfg.WarmupSteps,
		total:     max(totalSteps, 1),
		patience:  cfg.PlateauPatience,
		factor:    cfg.PlateauFactor,
		plateauLR: cfg.LearningRate,
	}
}

// LR gibt die Lernrate fuer den (0-basierten) Schritt step zurueck
func (s *Schedule) LR(step int) float64 {
	if step < s.warmup {
		return s.base * float64(step+1) / float64(s.warmup)
	}

	if s.kind == SchedulePlateau {
		return s.plateauLR
	}

	span := s.total - s.warmup
	if span <= 0 {
		return s.min
	}
	progress := math.Min(float64(step-s.warmup)/float64(span), 1)
	return s.min + 0.5*(s.base-s.min)*(1+math.Cos(math.Pi*progress))
}

// EpochEnd meldet die Anzahl Epochen ohne Verbesserung
// Nur fuer plateau relevant: reduziert bei jedem vollen Vielfachen von
// plateau_patience.
func (s *Schedule) EpochEnd(stale int) {
	if s.kind != SchedulePlateau {
		return
	}
	if stale == 0 {
		s.lastReduce = 0
		return
	}
	if stale%s.patience == 0 && stale != s.lastReduce {
		s.plateauLR = math.Max(s.plateauLR*s.factor, s.min)
		s.lastReduce = stale
	}
}

// Restore setzt die Plateau-Rate nach einem Resume
// lr ist die gespeicherte Rate fuer den naechsten Schritt step.
func (s *Schedule) Restore(lr float64, stale, step int) {
	if s.kind == SchedulePlateau && step >= s.warmup && lr > 0 {
		s.plateauLR = lr
		s.lastReduce = stale - stale%s.patience
	}
}
