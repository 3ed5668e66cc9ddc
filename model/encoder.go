// encoder.go - Rekurrenter Encoder
//
// h_i = tanh(Wx x_i + Wh h_{i-1} + b), h_0 = 0
// Position i sieht nur Tokens <= i. Summary ist der letzte Zustand.
package model

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// HiddenStates enthaelt einen Vektor pro Eingabeposition
type HiddenStates [][]float64

// encoderTrace speichert Zwischenwerte fuer die Backpropagation
type encoderTrace struct {
	ids   []int32
	x     [][]float64 // Embeddings nach Dropout
	masks [][]float64 // Dropout-Masken, nil ohne Dropout
	h     HiddenStates
}

func (t *encoderTrace) summary() []float64 {
	return t.h[len(t.h)-1]
}

func (p *Params) encode(ids []int32, drop *dropout) *encoderTrace {
	_, d, hdim := p.dims()
	tr := &encoderTrace{
		ids:   ids,
		x:     make([][]float64, len(ids)),
		masks: make([][]float64, len(ids)),
		h:     make(HiddenStates, len(ids)),
	}

	prev := make([]float64, hdim)
	wx := make([]float64, hdim)
	for i, id := range ids {
		tr.masks[i] = drop.mask(d)
		tr.x[i] = masked(p.Embed.W.RawRowView(int(id)), tr.masks[i])

		h := make([]float64, hdim)
		mulVec(wx, p.EncWx.W, tr.x[i])
		mulVec(h, p.EncWh.W, prev)
		floats.Add(h, wx)
		floats.Add(h, p.EncB.Data())
		for j := range h {
			h[j] = math.Tanh(h[j])
		}

		tr.h[i] = h
		prev = h
	}

	return tr
}

// Encode berechnet die Hidden States und den Summary-Vektor ohne Dropout
func (p *Params) Encode(ids []int32) (HiddenStates, []float64) {
	tr := p.encode(ids, nil)
	return tr.h, tr.summary()
}

// backwardEncoder propagiert dh (Gradienten je Position) durch die Rekurrenz
func (p *Params) backwardEncoder(tr *encoderTrace, dh [][]float64) {
	_, _, hdim := p.dims()
	next := make([]float64, hdim)
	da := make([]float64, hdim)
	dx := make([]float64, len(tr.x[0]))
	zero := make([]float64, hdim)

	for i := len(tr.h) - 1; i >= 0; i-- {
		h := tr.h[i]
		for j := range da {
			da[j] = (dh[i][j] + next[j]) * (1 - h[j]*h[j])
		}

		prev := zero
		if i > 0 {
			prev = tr.h[i-1]
		}

		addOuter(p.EncWx.G, 1, da, tr.x[i])
		addOuter(p.EncWh.G, 1, da, prev)
		floats.Add(p.EncB.Grad(), da)

		mulVecT(dx, p.EncWx.W, da)
		if tr.masks[i] != nil {
			floats.Mul(dx, tr.masks[i])
		}
		floats.Add(p.Embed.G.RawRowView(int(tr.ids[i])), dx)

		mulVecT(next, p.EncWh.W, da)
	}
}
