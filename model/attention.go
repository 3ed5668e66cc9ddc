// attention.go - Bilineare Attention ueber alle Encoder-Positionen
//
// score_i = s^T Wa h_i, weights = softmax(score), context = sum_i w_i h_i
package model

import "gonum.org/v1/gonum/floats"

// Score gibt normalisierte Gewichte (nicht-negativ, Summe 1) pro Position zurueck
func (p *Params) Score(state []float64, hidden HiddenStates) []float64 {
	_, weights := p.score(state, hidden)
	return weights
}

// score gibt zusaetzlich q = Wa^T s zurueck, das die Backpropagation braucht
func (p *Params) score(state []float64, hidden HiddenStates) (q, weights []float64) {
	q = make([]float64, len(state))
	mulVecT(q, p.AttnW.W, state)

	weights = make([]float64, len(hidden))
	for i, h := range hidden {
		weights[i] = floats.Dot(q, h)
	}
	softmax(weights)
	return q, weights
}

// Context bildet die gewichtete Summe der Hidden States
func Context(weights []float64, hidden HiddenStates) []float64 {
	ctx := make([]float64, len(hidden[0]))
	for i, h := range hidden {
		floats.AddScaled(ctx, weights[i], h)
	}
	return ctx
}
