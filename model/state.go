// state.go - Unveraenderlicher, versionierter Modell-Snapshot
//
// Ein State wird einmal aus den Gewichten kopiert und danach nur gelesen.
// Mehrere Goroutinen duerfen denselben State gleichzeitig verwenden; ein
// Checkpoint-Wechsel ersetzt den State statt ihn zu veraendern.
package model

// State ist der Inferenz-Handle auf einen festen Satz Gewichte
type State struct {
	version uint64
	cfg     Config
	params  *Params
}

// NewState kopiert params in einen neuen Snapshot
func NewState(cfg Config, params *Params, version uint64) *State {
	return &State{version: version, cfg: cfg, params: params.Clone()}
}

// Version identifiziert den Snapshot (steigt mit jedem Checkpoint-Wechsel)
func (s *State) Version() uint64 {
	return s.version
}

func (s *State) Config() Config {
	return s.cfg
}

// Params gibt eine Kopie der Gewichte zurueck
func (s *State) Params() *Params {
	return s.params.Clone()
}

// Translate decodiert src autoregressiv mit den Optionen opts
func (s *State) Translate(src []int32, opts DecodeOptions) (Decoded, error) {
	return decode(s.params, src, opts, false)
}

// Forward wertet src (und optional target) ohne Dropout aus
func (s *State) Forward(src, target []int32, maxLength int) (Output, error) {
	return forward(s.params, s.cfg, src, target, maxLength)
}
