// Package model - Encoder-Decoder mit Attention fuer Code-Uebersetzung
//
// Dieses Paket enthaelt das gelernte Modell und seine Inferenz:
//
// Hauptkomponenten:
// - Config: Dimensionen, Dropout und Label Smoothing
// - Params: alle lernbaren Gewichte (gonum Dense) mit Gradienten
// - Encoder: rekurrenter Links-nach-rechts-Pass (encoder.go)
// - Attention: bilineare Bewertung ueber alle Encoder-Positionen (attention.go)
// - Decoder: Teacher Forcing im Training, greedy/top-k/beam bei Inferenz
// - Engine: Forward, Loss und Backpropagation, Besitzer der veraenderlichen Gewichte
// - State: unveraenderlicher, versionierter Snapshot fuer Inferenz
package model

import (
	"errors"
	"fmt"
)

var (
	ErrEmptySequence = errors.New("model: empty sequence")
	ErrTokenRange    = errors.New("model: token id out of range")
	ErrNonFiniteLoss = errors.New("model: non-finite loss")
)

// Config beschreibt Architektur und Regularisierung
type Config struct {
	VocabSize        int     `json:"vocab_size"`
	EmbeddingDim     int     `json:"embedding_dim"`
	HiddenDim        int     `json:"hidden_dim"`
	Dropout          float64 `json:"dropout"`
	AttentionDropout float64 `json:"attention_dropout"`
	LabelSmoothing   float64 `json:"label_smoothing"`
}

func (c Config) Validate() error {
	switch {
	case c.VocabSize <= 0:
		return fmt.Errorf("model: vocab_size must be positive, got %d", c.VocabSize)
	case c.EmbeddingDim <= 0 || c.HiddenDim <= 0:
		return fmt.Errorf("model: dimensions must be positive, got %dx%d", c.EmbeddingDim, c.HiddenDim)
	case c.Dropout < 0 || c.Dropout >= 1:
		return fmt.Errorf("model: dropout must be in [0,1), got %v", c.Dropout)
	case c.AttentionDropout < 0 || c.AttentionDropout >= 1:
		return fmt.Errorf("model: attention_dropout must be in [0,1), got %v", c.AttentionDropout)
	case c.LabelSmoothing < 0 || c.LabelSmoothing >= 1:
		return fmt.Errorf("model: label_smoothing must be in [0,1), got %v", c.LabelSmoothing)
	}
	return nil
}

// Example ist ein Trainingspaar aus Token-IDs
// Target endet mit <eos>, der Decoder startet implizit mit <bos>.
type Example struct {
	Source []int32
	Target []int32
}

// Reservierte IDs, identisch mit dem Tokenizer-Layout
const (
	bosID int32 = 1
	eosID int32 = 2
)

func checkIDs(ids []int32, vocab int) error {
	if len(ids) == 0 {
		return ErrEmptySequence
	}
	for _, id := range ids {
		if id < 0 || int(id) >= vocab {
			return fmt.Errorf("%w: %d (vocab %d)", ErrTokenRange, id, vocab)
		}
	}
	return nil
}
