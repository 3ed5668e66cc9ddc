// types.go - Request/Response-Typen der HTTP-API
// Enthaelt: StatusError, Translate, Validate, Evaluate, Feedback, Languages, Runs, Reload
package api

import (
	"fmt"
	"math"
	"time"
)

// StatusError ist ein Fehler mit HTTP-Statuscode und Meldung
type StatusError struct {
	StatusCode   int
	Status       string
	ErrorMessage string `json:"error"`
}

func (e StatusError) Error() string {
	switch {
	case e.Status != "" && e.ErrorMessage != "":
		return fmt.Sprintf("%s: %s", e.Status, e.ErrorMessage)
	case e.Status != "":
		return e.Status
	case e.ErrorMessage != "":
		return e.ErrorMessage
	default:
		// this should not happen
		return "something went wrong, please see the codetrans server logs for details"
	}
}

// Options ueberschreibt die Decoding-Defaults des Servers
type Options struct {
	Strategy    string  `json:"strategy,omitempty"`
	MaxLength   int     `json:"max_length,omitempty"`
	TopK        int     `json:"top_k,omitempty"`
	BeamSize    int     `json:"beam_size,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	Seed        uint64  `json:"seed,omitempty"`
}

// TranslateRequest ist der Body von POST /api/translate
type TranslateRequest struct {
	Source     string   `json:"source"`
	SourceLang string   `json:"source_lang"`
	TargetLang string   `json:"target_lang"`
	Options    *Options `json:"options,omitempty"`
}

// TranslateResponse ist die Antwort von POST /api/translate
type TranslateResponse struct {
	Text       string   `json:"text"`
	Raw        string   `json:"raw"`
	Valid      bool     `json:"valid"`
	Reason     string   `json:"reason,omitempty"`
	Confidence float64  `json:"confidence"`
	Warnings   []string `json:"warnings,omitempty"`
	Unknown    []string `json:"unknown_tokens,omitempty"`
	Truncated  bool     `json:"truncated,omitempty"`

	ModelVersion  uint64        `json:"model_version"`
	TotalDuration time.Duration `json:"total_duration,omitempty"`
}

// ValidateRequest ist der Body von POST /api/validate
type ValidateRequest struct {
	Code     string `json:"code"`
	Language string `json:"language"`
}

// ValidateResponse ist das Urteil des Validators
type ValidateResponse struct {
	Valid      bool     `json:"valid"`
	Reason     string   `json:"reason,omitempty"`
	Confidence float64  `json:"confidence"`
	Warnings   []string `json:"warnings,omitempty"`
}

// EvaluateSample ist ein Referenz/Kandidat-Paar
type EvaluateSample struct {
	Reference string `json:"reference"`
	Candidate string `json:"candidate"`
	Language  string `json:"language"`
}

// EvaluateRequest ist der Body von POST /api/evaluate
type EvaluateRequest struct {
	Samples []EvaluateSample `json:"samples"`
}

// Scores sind die Metriken eines Samples oder deren Mittel
type Scores struct {
	Overall   float64 `json:"overall_score"`
	Syntax    float64 `json:"syntax_valid"`
	BLEU      float64 `json:"bleu_score"`
	Structure float64 `json:"structural_similarity"`
	Edit      float64 `json:"edit_similarity"`
}

// EvaluateResponse fasst die Metriken zusammen
type EvaluateResponse struct {
	Count   int      `json:"count"`
	Valid   int      `json:"valid"`
	Mean    Scores   `json:"mean"`
	Samples []Scores `json:"samples"`
}

// FeedbackRequest ist eine Benutzer-Korrektur
type FeedbackRequest struct {
	SourceLang  string `json:"source_lang"`
	TargetLang  string `json:"target_lang"`
	Source      string `json:"source"`
	Translation string `json:"translation,omitempty"`
	Correction  string `json:"correction"`
	Rating      int    `json:"rating,omitempty"`
}

type FeedbackResponse struct {
	ID string `json:"id"`
}

// Language beschreibt eine registrierte Sprache
type Language struct {
	Name       string   `json:"name"`
	Aliases    []string `json:"aliases,omitempty"`
	Extensions []string `json:"extensions"`
}

// LanguagesResponse listet Sprachen und die Paare des geladenen Modells
type LanguagesResponse struct {
	Languages []Language `json:"languages"`
	Pairs     []string   `json:"pairs"`
}

// Run ist ein Trainingslauf aus der Historie
type Run struct {
	ID         string     `json:"id"`
	Status     string     `json:"status"`
	Pairs      string     `json:"pairs"`
	Examples   int        `json:"examples"`
	BestLoss   *float64   `json:"best_loss,omitempty"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

type RunsResponse struct {
	Runs []Run `json:"runs"`
}

// Epoch sind die Metriken einer Epoche
type Epoch struct {
	Epoch     int           `json:"epoch"`
	Step      int           `json:"step"`
	TrainLoss float64       `json:"train_loss"`
	ValLoss   float64       `json:"val_loss"`
	LR        float64       `json:"lr"`
	Improved  bool          `json:"improved"`
	Duration  time.Duration `json:"duration"`
}

// RunResponse ist ein Lauf mit Epochen
type RunResponse struct {
	Run
	Epochs []Epoch `json:"epochs"`
}

// ReloadRequest laedt einen Checkpoint, ohne Pfad den Default
type ReloadRequest struct {
	Path string `json:"path,omitempty"`
}

// ModelResponse beschreibt den geladenen Checkpoint
type ModelResponse struct {
	Path     string    `json:"path"`
	Digest   string    `json:"digest"`
	Version  uint64    `json:"version"`
	Step     int       `json:"step"`
	Epoch    int       `json:"epoch"`
	BestLoss *float64  `json:"best_loss,omitempty"`
	Pairs    []string  `json:"pairs"`
	LoadedAt time.Time `json:"loaded_at"`

	// Defaults sind die Decoding-Optionen fuer Anfragen ohne eigene Werte
	Defaults Options `json:"defaults"`
}

type VersionResponse struct {
	Version string `json:"version"`
}

// Finite gibt nil fuer NaN und Inf zurueck, JSON kennt beides nicht
func Finite(f float64) *float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}
