// decoder.go - Ein Decoder-Schritt und seine Backpropagation
//
// s_t = tanh(Wdx e(u_t) + Wdh s_{t-1} + Wdc c_t + bd), logits_t = Wo s_t + bo
// c_t verwendet s_{t-1} als Query. s_0 ist der Encoder-Summary.
package model

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// decoderStep speichert alle Zwischenwerte eines Schritts
type decoderStep struct {
	input  int32
	x      []float64 // Embedding nach Dropout
	xmask  []float64
	prev   []float64 // s_{t-1}
	q      []float64 // Wa^T s_{t-1}
	alpha  []float64 // Attention-Gewichte
	amask  []float64 // Attention-Dropout
	ctx    []float64
	s      []float64
	logits []float64
}

func (p *Params) step(prev []float64, input int32, hidden HiddenStates, drop, attnDrop *dropout) *decoderStep {
	v, d, hdim := p.dims()
	st := &decoderStep{input: input, prev: prev}

	st.xmask = drop.mask(d)
	st.x = masked(p.Embed.W.RawRowView(int(input)), st.xmask)

	st.q, st.alpha = p.score(prev, hidden)
	st.amask = attnDrop.mask(len(hidden))
	st.ctx = Context(masked(st.alpha, st.amask), hidden)

	s := make([]float64, hdim)
	tmp := make([]float64, hdim)
	mulVec(s, p.DecWx.W, st.x)
	mulVec(tmp, p.DecWh.W, prev)
	floats.Add(s, tmp)
	mulVec(tmp, p.DecWc.W, st.ctx)
	floats.Add(s, tmp)
	floats.Add(s, p.DecB.Data())
	for j := range s {
		s[j] = math.Tanh(s[j])
	}
	st.s = s

	st.logits = make([]float64, v)
	mulVec(st.logits, p.OutW.W, s)
	floats.Add(st.logits, p.OutB.Data())

	return st
}

// backwardStep propagiert dz (Logit-Gradient, bereits skaliert) und ds (aus
// Schritt t+1) durch einen Schritt. dh sammelt Gradienten fuer die Encoder-
// Zustaende. Rueckgabe ist der Gradient fuer s_{t-1}.
func (p *Params) backwardStep(st *decoderStep, dz, ds []float64, hidden HiddenStates, dh [][]float64) []float64 {
	_, d, hdim := p.dims()

	addOuter(p.OutW.G, 1, dz, st.s)
	floats.Add(p.OutB.Grad(), dz)

	dS := make([]float64, hdim)
	mulVecT(dS, p.OutW.W, dz)
	floats.Add(dS, ds)

	da := make([]float64, hdim)
	for j := range da {
		da[j] = dS[j] * (1 - st.s[j]*st.s[j])
	}

	addOuter(p.DecWx.G, 1, da, st.x)
	addOuter(p.DecWh.G, 1, da, st.prev)
	addOuter(p.DecWc.G, 1, da, st.ctx)
	floats.Add(p.DecB.Grad(), da)

	dx := make([]float64, d)
	mulVecT(dx, p.DecWx.W, da)
	if st.xmask != nil {
		floats.Mul(dx, st.xmask)
	}
	floats.Add(p.Embed.G.RawRowView(int(st.input)), dx)

	dPrev := make([]float64, hdim)
	mulVecT(dPrev, p.DecWh.W, da)

	dc := make([]float64, hdim)
	mulVecT(dc, p.DecWc.W, da)

	// context = sum_i alpha_i m_i h_i
	dAlpha := make([]float64, len(hidden))
	for i, h := range hidden {
		m := 1.0
		if st.amask != nil {
			m = st.amask[i]
		}
		floats.AddScaled(dh[i], st.alpha[i]*m, dc)
		dAlpha[i] = floats.Dot(dc, h) * m
	}

	// Softmax-Rueckrichtung
	sum := floats.Dot(st.alpha, dAlpha)
	dq := make([]float64, hdim)
	for i, h := range hidden {
		dScore := st.alpha[i] * (dAlpha[i] - sum)
		floats.AddScaled(dq, dScore, h)
		floats.AddScaled(dh[i], dScore, st.q)
	}

	// q = Wa^T s_{t-1}
	addOuter(p.AttnW.G, 1, st.prev, dq)
	tmp := make([]float64, hdim)
	mulVec(tmp, p.AttnW.W, dq)
	floats.Add(dPrev, tmp)

	return dPrev
}
