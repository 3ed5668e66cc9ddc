// params.go - Lernbare Gewichte und ihre Gradienten
package model

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// Param ist eine Gewichtsmatrix mit gleich grosser Gradientenmatrix
// Bias-Vektoren sind Matrizen mit einer Spalte.
type Param struct {
	Name string
	W    *mat.Dense
	G    *mat.Dense
}

func newParam(name string, r, c int) *Param {
	return &Param{Name: name, W: mat.NewDense(r, c, nil), G: mat.NewDense(r, c, nil)}
}

// Data gibt die Gewichte als zusammenhaengenden Slice zurueck
func (p *Param) Data() []float64 {
	return p.W.RawMatrix().Data
}

// Grad gibt die Gradienten als zusammenhaengenden Slice zurueck
func (p *Param) Grad() []float64 {
	return p.G.RawMatrix().Data
}

// Shape gibt Zeilen und Spalten zurueck
func (p *Param) Shape() (int, int) {
	return p.W.Dims()
}

// Params enthaelt alle Gewichte des Modells
type Params struct {
	Embed *Param // V x D, geteilt von Encoder und Decoder

	EncWx *Param // H x D
	EncWh *Param // H x H
	EncB  *Param // H x 1

	AttnW *Param // H x H, score = s^T W h

	DecWx *Param // H x D
	DecWh *Param // H x H
	DecWc *Param // H x H
	DecB  *Param // H x 1

	OutW *Param // V x H
	OutB *Param // V x 1
}

// NewParams initialisiert Gewichte mit Xavier-Uniform, Biases mit 0
func NewParams(cfg Config, seed uint64) *Params {
	v, d, h := cfg.VocabSize, cfg.EmbeddingDim, cfg.HiddenDim
	p := &Params{
		Embed: newParam("embed", v, d),
		EncWx: newParam("enc.wx", h, d),
		EncWh: newParam("enc.wh", h, h),
		EncB:  newParam("enc.b", h, 1),
		AttnW: newParam("attn.w", h, h),
		DecWx: newParam("dec.wx", h, d),
		DecWh: newParam("dec.wh", h, h),
		DecWc: newParam("dec.wc", h, h),
		DecB:  newParam("dec.b", h, 1),
		OutW:  newParam("out.w", v, h),
		OutB:  newParam("out.b", v, 1),
	}

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	for _, param := range p.All() {
		r, c := param.Shape()
		if c == 1 {
			continue
		}

		limit := math.Sqrt(6 / float64(r+c))
		if param == p.Embed {
			limit = 0.1
		}

		data := param.Data()
		for i := range data {
			data[i] = (rng.Float64()*2 - 1) * limit
		}
	}

	return p
}

// All gibt die Parameter in fester Reihenfolge zurueck
func (p *Params) All() []*Param {
	return []*Param{p.Embed, p.EncWx, p.EncWh, p.EncB, p.AttnW, p.DecWx, p.DecWh, p.DecWc, p.DecB, p.OutW, p.OutB}
}

// Lookup sucht einen Parameter per Name
func (p *Params) Lookup(name string) *Param {
	for _, param := range p.All() {
		if param.Name == name {
			return param
		}
	}
	return nil
}

// Count gibt die Anzahl aller Gewichte zurueck
func (p *Params) Count() int {
	var n int
	for _, param := range p.All() {
		n += len(param.Data())
	}
	return n
}

// ZeroGrad setzt alle Gradienten auf 0
func (p *Params) ZeroGrad() {
	for _, param := range p.All() {
		param.G.Zero()
	}
}

// Clone erstellt eine tiefe Kopie der Gewichte mit leeren Gradienten
func (p *Params) Clone() *Params {
	c := *p
	for _, dst := range []**Param{&c.Embed, &c.EncWx, &c.EncWh, &c.EncB, &c.AttnW, &c.DecWx, &c.DecWh, &c.DecWc, &c.DecB, &c.OutW, &c.OutB} {
		src := *dst
		r, cols := src.Shape()
		np := newParam(src.Name, r, cols)
		np.W.Copy(src.W)
		*dst = np
	}
	return &c
}

// dims leitet die Dimensionen aus den Gewichten ab
func (p *Params) dims() (v, d, h int) {
	v, d = p.Embed.Shape()
	h, _ = p.EncWh.Shape()
	return v, d, h
}

// Matches prueft ob die Gewichte zu cfg passen
func (p *Params) Matches(cfg Config) bool {
	v, d, h := p.dims()
	return v == cfg.VocabSize && d == cfg.EmbeddingDim && h == cfg.HiddenDim
}
