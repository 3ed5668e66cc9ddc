// Package checkpoint - Checkpoint-Datensatz fuer Training und Serving
//
// Ein Checkpoint enthaelt alles was fuer Resume und Inferenz noetig ist:
// Modell-Konfiguration und Gewichte, Trainingsfortschritt, Vokabular,
// Optimizer-Momente, die trainierten Sprachpaare und die Decoding-Defaults
// aus der Trainings-Konfiguration. Gespeichert wird im
// fs/ckpt Container.
//
// Hauptfunktionen:
// - Save: Schreibt atomar und gibt den Digest zurueck
// - Load: Liest und validiert gegen Konfiguration und Vokabular
// - Export: Schreibt eine Serving-Kopie ohne Optimizer in F32/F16/BF16
// - Digest: blake2b-Hash einer Datei
package checkpoint

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"slices"

	"golang.org/x/crypto/blake2b"

	"github.com/7blacky7/codetrans/fs/ckpt"
	"github.com/7blacky7/codetrans/languages"
	"github.com/7blacky7/codetrans/model"
	"github.com/7blacky7/codetrans/tokenizer"
)

// Dateinamen im Checkpoint-Verzeichnis
const (
	BestFile = "best.ckpt"
	LastFile = "last.ckpt"
	SWAFile  = "swa.ckpt"
)

// ErrIncomplete wird geliefert wenn Tensors oder Keys fehlen
var ErrIncomplete = errors.New("checkpoint: incomplete")

// Progress ist der gespeicherte Stand eines Trainingslaufs
type Progress struct {
	RunID string `json:"run_id"`

	// Epoch ist die aktuelle (0-basierte) Epoche, BatchInEpoch die Anzahl
	// bereits abgeschlossener Batches darin.
	Epoch        int `json:"epoch"`
	BatchInEpoch int `json:"batch_in_epoch"`
	Step         int `json:"step"`

	BestLoss    float64 `json:"best_loss"`
	StaleEpochs int     `json:"stale_epochs"`
	LR          float64 `json:"lr"`
	Completed   bool    `json:"completed"`
}

// Optimizer haelt die AdamW-Momente pro Parametername
type Optimizer struct {
	Step int
	M    map[string][]float64
	V    map[string][]float64
}

// Checkpoint ist ein vollstaendiger Datensatz
type Checkpoint struct {
	Config    model.Config
	Params    *model.Params
	Progress  Progress
	Vocab     *tokenizer.Vocabulary
	Optimizer *Optimizer
	Pairs     []languages.Pair

	// MaxLength ist die Sequenzlaenge mit der trainiert wurde
	MaxLength int

	// Decode sind die Decoding-Defaults fuer Uebersetzungen mit diesem Checkpoint
	Decode model.DecodeOptions

	// Digest wird von Load gesetzt
	Digest string
}

// Path gibt den Pfad einer Checkpoint-Datei in dir zurueck
func Path(dir, name string) string {
	return filepath.Join(dir, name)
}

// Save schreibt c als F64-Container nach path und gibt den Digest zurueck
func Save(path string, c *Checkpoint) (string, error) {
	return save(path, c, ckpt.KindF64, true)
}

// Export schreibt eine Serving-Kopie ohne Optimizer-Momente im Typ kind
func Export(path string, c *Checkpoint, kind ckpt.Kind) (string, error) {
	return save(path, c, kind, false)
}

func save(path string, c *Checkpoint, kind ckpt.Kind, withOptimizer bool) (string, error) {
	if c.Params == nil || c.Vocab == nil {
		return "", fmt.Errorf("%w: params and vocabulary required", ErrIncomplete)
	}
	if !c.Params.Matches(c.Config) {
		return "", fmt.Errorf("checkpoint: params do not match config %+v", c.Config)
	}

	kv := ckpt.KV{
		"general.name": "codetrans",

		"model.vocab_size":        uint32(c.Config.VocabSize),
		"model.embedding_dim":     uint32(c.Config.EmbeddingDim),
		"model.hidden_dim":        uint32(c.Config.HiddenDim),
		"model.dropout":           c.Config.Dropout,
		"model.attention_dropout": c.Config.AttentionDropout,
		"model.label_smoothing":   c.Config.LabelSmoothing,
		"model.max_length":        uint32(c.MaxLength),

		"train.run_id":         c.Progress.RunID,
		"train.epoch":          uint64(c.Progress.Epoch),
		"train.batch_in_epoch": uint64(c.Progress.BatchInEpoch),
		"train.step":           uint64(c.Progress.Step),
		"train.best_loss":      c.Progress.BestLoss,
		"train.stale_epochs":   uint64(c.Progress.StaleEpochs),
		"train.lr":             c.Progress.LR,
		"train.completed":      c.Progress.Completed,

		"decode.strategy":    string(c.Decode.Strategy),
		"decode.max_length":  uint32(max(c.Decode.MaxLength, 0)),
		"decode.top_k":       uint32(max(c.Decode.TopK, 0)),
		"decode.beam_size":   uint32(max(c.Decode.BeamSize, 0)),
		"decode.temperature": c.Decode.Temperature,
		"decode.seed":        c.Decode.Seed,

		"vocab.id":      c.Vocab.ID,
		"vocab.version": c.Vocab.Version,
		"vocab.tokens":  c.Vocab.Tokens(),
	}

	pairs := make([]string, len(c.Pairs))
	for i, p := range c.Pairs {
		pairs[i] = p.String()
	}
	kv["general.pairs"] = pairs

	var ts []*ckpt.Tensor
	for _, p := range c.Params.All() {
		r, cols := p.Shape()
		ts = append(ts, &ckpt.Tensor{
			Name:   p.Name,
			Kind:   kind,
			Shape:  []uint64{uint64(r), uint64(cols)},
			Values: p.Data(),
		})
	}

	if withOptimizer && c.Optimizer != nil {
		kv["optim.step"] = uint64(c.Optimizer.Step)
		for _, p := range c.Params.All() {
			m, v := c.Optimizer.M[p.Name], c.Optimizer.V[p.Name]
			if len(m) != len(p.Data()) || len(v) != len(p.Data()) {
				return "", fmt.Errorf("checkpoint: optimizer moments for %s have wrong size", p.Name)
			}
			ts = append(ts,
				&ckpt.Tensor{Name: "optim.m." + p.Name, Kind: ckpt.KindF64, Shape: []uint64{uint64(len(m))}, Values: m},
				&ckpt.Tensor{Name: "optim.v." + p.Name, Kind: ckpt.KindF64, Shape: []uint64{uint64(len(v))}, Values: v},
			)
		}
	}

	if err := ckpt.WriteFile(path, kv, ts); err != nil {
		return "", fmt.Errorf("checkpoint: write %s: %w", path, err)
	}
	return Digest(path)
}

// Load liest einen Checkpoint und prueft Konsistenz von Gewichten,
// Konfiguration und Vokabular
func Load(path string) (*Checkpoint, error) {
	f, err := ckpt.Read(path)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: read %s: %w", path, err)
	}

	kv := f.KV
	c := Checkpoint{
		Config: model.Config{
			VocabSize:        int(kv.Uint("model.vocab_size")),
			EmbeddingDim:     int(kv.Uint("model.embedding_dim")),
			HiddenDim:        int(kv.Uint("model.hidden_dim")),
			Dropout:          kv.Float("model.dropout"),
			AttentionDropout: kv.Float("model.attention_dropout"),
			LabelSmoothing:   kv.Float("model.label_smoothing"),
		},
		MaxLength: int(kv.Uint("model.max_length")),
		Decode: model.DecodeOptions{
			Strategy:    model.Strategy(kv.String("decode.strategy")),
			MaxLength:   int(kv.Uint("decode.max_length")),
			TopK:        int(kv.Uint("decode.top_k")),
			BeamSize:    int(kv.Uint("decode.beam_size")),
			Temperature: kv.Float("decode.temperature"),
			Seed:        kv.Uint("decode.seed"),
		},
		Progress: Progress{
			RunID:        kv.String("train.run_id"),
			Epoch:        int(kv.Uint("train.epoch")),
			BatchInEpoch: int(kv.Uint("train.batch_in_epoch")),
			Step:         int(kv.Uint("train.step")),
			BestLoss:     kv.Float("train.best_loss", math.Inf(1)),
			StaleEpochs:  int(kv.Uint("train.stale_epochs")),
			LR:           kv.Float("train.lr"),
			Completed:    kv.Bool("train.completed"),
		},
	}
	if err := c.Config.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIncomplete, err)
	}
	switch c.Decode.Strategy {
	case "", model.Greedy, model.TopK, model.Beam:
	default:
		return nil, fmt.Errorf("checkpoint: unknown decoding strategy %q", c.Decode.Strategy)
	}

	vocab, err := tokenizer.New(kv.Strings("vocab.tokens"), kv.String("vocab.id"), uint32(kv.Uint("vocab.version")))
	if err != nil {
		return nil, err
	}
	if vocab.Size() != c.Config.VocabSize {
		return nil, fmt.Errorf("checkpoint: vocabulary has %d tokens, model expects %d", vocab.Size(), c.Config.VocabSize)
	}
	c.Vocab = vocab

	for _, s := range kv.Strings("general.pairs") {
		p, err := languages.ParsePair(s)
		if err != nil {
			return nil, fmt.Errorf("checkpoint: %w", err)
		}
		c.Pairs = append(c.Pairs, p)
	}

	c.Params = model.NewParams(c.Config, 0)
	for _, p := range c.Params.All() {
		t := f.Tensor(p.Name)
		if t == nil {
			return nil, fmt.Errorf("%w: tensor %s missing", ErrIncomplete, p.Name)
		}
		if len(t.Values) != len(p.Data()) {
			return nil, fmt.Errorf("checkpoint: tensor %s has %d values, expected %d", p.Name, len(t.Values), len(p.Data()))
		}
		copy(p.Data(), t.Values)
	}

	if _, ok := kv["optim.step"]; ok {
		opt := &Optimizer{
			Step: int(kv.Uint("optim.step")),
			M:    make(map[string][]float64),
			V:    make(map[string][]float64),
		}
		for _, p := range c.Params.All() {
			m, v := f.Tensor("optim.m."+p.Name), f.Tensor("optim.v."+p.Name)
			if m == nil || v == nil {
				return nil, fmt.Errorf("%w: optimizer moments for %s missing", ErrIncomplete, p.Name)
			}
			opt.M[p.Name], opt.V[p.Name] = m.Values, v.Values
		}
		c.Optimizer = opt
	}

	if c.Digest, err = Digest(path); err != nil {
		return nil, err
	}
	return &c, nil
}

// State baut einen Inferenz-Snapshot aus dem Checkpoint
func (c *Checkpoint) State(version uint64) *model.State {
	return model.NewState(c.Config, c.Params, version)
}

// Supports meldet ob das Sprachpaar trainiert wurde
func (c *Checkpoint) Supports(p languages.Pair) bool {
	return slices.Contains(c.Pairs, p)
}

// Digest berechnet "blake2b-<hex>" ueber den Dateiinhalt
func Digest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return "blake2b-" + hex.EncodeToString(h.Sum(nil)), nil
}
