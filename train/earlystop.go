// earlystop.go - Early Stopping und Stochastic Weight Averaging
package train

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/7blacky7/codetrans/model"
)

// EarlyStopper zaehlt Epochen ohne Verbesserung des Validierungs-Loss
// Verbesserung heisst best - loss > minDelta.
type EarlyStopper struct {
	Patience int
	MinDelta float64
	Best     float64
	Stale    int
}

func NewEarlyStopper(patience int, minDelta float64) *EarlyStopper {
	return &EarlyStopper{Patience: patience, MinDelta: minDelta, Best: math.Inf(1)}
}

// Observe verarbeitet den Loss einer Epoche
func (e *EarlyStopper) Observe(loss float64) (improved, stop bool) {
	if e.Best-loss > e.MinDelta {
		e.Best = loss
		e.Stale = 0
		return true, false
	}

	e.Stale++
	return false, e.Stale >= e.Patience
}

// SWA mittelt Gewichte ueber Epochen (gleichgewichtet)
type SWA struct {
	n   int
	avg *model.Params
}

// Update nimmt die aktuellen Gewichte in den Mittelwert auf
func (s *SWA) Update(p *model.Params) {
	s.n++
	if s.avg == nil {
		s.avg = p.Clone()
		return
	}

	inv := 1 / float64(s.n)
	cur := p.All()
	for i, a := range s.avg.All() {
		// avg += (w - avg) / n
		avg := a.Data()
		floats.Scale(1-inv, avg)
		floats.AddScaled(avg, inv, cur[i].Data())
	}
}

// Count gibt die Anzahl gemittelter Epochen zurueck
func (s *SWA) Count() int {
	return s.n
}

// Params gibt die gemittelten Gewichte zurueck (nil vor dem ersten Update)
func (s *SWA) Params() *model.Params {
	return s.avg
}
