// linalg.go - Vektor-Hilfsfunktionen auf gonum
package model

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// mulVec setzt dst = w * x
func mulVec(dst []float64, w mat.Matrix, x []float64) {
	mat.NewVecDense(len(dst), dst).MulVec(w, mat.NewVecDense(len(x), x))
}

// mulVecT setzt dst = w^T * x
func mulVecT(dst []float64, w *mat.Dense, x []float64) {
	mulVec(dst, w.T(), x)
}

// addOuter addiert alpha * x y^T auf g
func addOuter(g *mat.Dense, alpha float64, x, y []float64) {
	g.RankOne(g, alpha, mat.NewVecDense(len(x), x), mat.NewVecDense(len(y), y))
}

// softmax normalisiert s in-place
func softmax(s []float64) {
	lse := floats.LogSumExp(s)
	for i := range s {
		s[i] = math.Exp(s[i] - lse)
	}
}

// logSoftmax gibt log(softmax(s)) als neuen Slice zurueck
func logSoftmax(s []float64) []float64 {
	lse := floats.LogSumExp(s)
	out := make([]float64, len(s))
	for i, v := range s {
		out[i] = v - lse
	}
	return out
}

// dropout erzeugt invertierte Dropout-Masken, nil bedeutet deaktiviert
type dropout struct {
	p   float64
	rng *rand.Rand
}

// mask gibt eine Maske mit Eintraegen 0 oder 1/(1-p) zurueck, nil wenn inaktiv
func (d *dropout) mask(n int) []float64 {
	if d == nil || d.p <= 0 {
		return nil
	}

	keep := 1 / (1 - d.p)
	m := make([]float64, n)
	for i := range m {
		if d.rng.Float64() >= d.p {
			m[i] = keep
		}
	}
	return m
}

// masked gibt eine Kopie von s zurueck, elementweise mit mask multipliziert
func masked(s, mask []float64) []float64 {
	out := make([]float64, len(s))
	copy(out, s)
	if mask != nil {
		floats.Mul(out, mask)
	}
	return out
}
