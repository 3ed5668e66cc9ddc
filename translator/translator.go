// Package translator - Uebersetzung mit einem geladenen Checkpoint
//
// Ablauf pro Anfrage: Encode (mit Sprach-Tags) -> Decoding auf dem
// unveraenderlichen model.State -> Validate -> Style uebertragen. Der Style
// wird nur auf gueltige Uebersetzungen angewendet, sonst ist Text gleich Raw.
//
// Der aktive Checkpoint liegt hinter einem atomic.Pointer. Reload ersetzt
// ihn komplett, laufende Uebersetzungen behalten ihren alten State.
package translator

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/7blacky7/codetrans/checkpoint"
	"github.com/7blacky7/codetrans/languages"
	"github.com/7blacky7/codetrans/model"
	"github.com/7blacky7/codetrans/style"
	"github.com/7blacky7/codetrans/tokenizer"
	"github.com/7blacky7/codetrans/validate"
)

// ErrNotLoaded wird geliefert solange kein Checkpoint geladen ist
var ErrNotLoaded = errors.New("translator: no checkpoint loaded")

// ErrEmptySource wird fuer leere Eingaben geliefert
var ErrEmptySource = errors.New("translator: empty source")

// UnsupportedLanguagePairError meldet ein Paar fuer das nicht trainiert wurde
type UnsupportedLanguagePairError struct {
	Source, Target string
	Supported      []languages.Pair
	// Err ist gesetzt wenn eine Sprache unbekannt ist
	Err error
}

func (e *UnsupportedLanguagePairError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("unsupported language pair %s->%s: %v", e.Source, e.Target, e.Err)
	}

	supported := make([]string, len(e.Supported))
	for i, p := range e.Supported {
		supported[i] = p.String()
	}
	return fmt.Sprintf("unsupported language pair %s->%s (supported: %s)", e.Source, e.Target, strings.Join(supported, ", "))
}

func (e *UnsupportedLanguagePairError) Unwrap() error {
	return e.Err
}

// ValidationFailure ist eine Warnung: die Uebersetzung wird trotzdem geliefert
type ValidationFailure struct {
	Reason string
}

func (e *ValidationFailure) Error() string {
	return "translation failed validation: " + e.Reason
}

// Request ist eine Uebersetzungsanfrage
// Nicht gesetzte Options-Felder uebernehmen die Defaults des Translators.
type Request struct {
	Source     string              `json:"source"`
	SourceLang string              `json:"source_lang"`
	TargetLang string              `json:"target_lang"`
	Options    model.DecodeOptions `json:"options,omitzero"`
}

// Result ist das Ergebnis einer Uebersetzung
type Result struct {
	Text    string           `json:"text"`
	Raw     string           `json:"raw"`
	Tokens  []int32          `json:"tokens"`
	Verdict validate.Verdict `json:"verdict"`

	// Failure ist gesetzt wenn die Validierung fehlschlug
	Failure *ValidationFailure `json:"-"`

	Unknown   []string `json:"unknown,omitempty"`
	Truncated bool     `json:"truncated,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`

	Pair         languages.Pair `json:"pair"`
	ModelVersion uint64         `json:"model_version"`
	Duration     time.Duration  `json:"duration"`
}

// Model ist ein geladener, unveraenderlicher Checkpoint
type Model struct {
	State     *model.State
	Vocab     *tokenizer.Vocabulary
	Pairs     []languages.Pair
	MaxLength int
	Defaults  model.DecodeOptions

	Path     string
	Digest   string
	Progress checkpoint.Progress
	LoadedAt time.Time
}

// Version ist die Snapshot-Version des Modells
func (m *Model) Version() uint64 {
	return m.State.Version()
}

// Translator haelt den aktiven Checkpoint
type Translator struct {
	mu       sync.Mutex // serialisiert Load
	current  atomic.Pointer[Model]
	versions atomic.Uint64
	defaults model.DecodeOptions
}

// New erstellt einen Translator ohne Checkpoint
func New(defaults model.DecodeOptions) *Translator {
	return &Translator{defaults: defaults}
}

// Load liest einen Checkpoint und aktiviert ihn
func (t *Translator) Load(path string) (*Model, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	start := time.Now()
	c, err := checkpoint.Load(path)
	if err != nil {
		return nil, err
	}

	m := t.set(c, path)
	slog.Info("checkpoint loaded", "path", path, "version", m.Version(), "digest", c.Digest,
		"step", c.Progress.Step, "pairs", len(c.Pairs), "duration", time.Since(start))
	return m, nil
}

// Set aktiviert einen bereits geladenen Checkpoint
func (t *Translator) Set(c *checkpoint.Checkpoint, path string) *Model {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.set(c, path)
}

func (t *Translator) set(c *checkpoint.Checkpoint, path string) *Model {
	version := t.versions.Add(1)
	maxLength := cmp.Or(c.MaxLength, model.DefaultMaxLength)

	// Translator-Defaults vor den Defaults aus dem Checkpoint
	defaults := merge(c.Decode, t.defaults, maxLength)

	m := &Model{
		State:     c.State(version),
		Vocab:     c.Vocab,
		Pairs:     slices.Clone(c.Pairs),
		MaxLength: maxLength,
		Defaults:  defaults,
		Path:      path,
		Digest:    c.Digest,
		Progress:  c.Progress,
		LoadedAt:  time.Now(),
	}
	t.current.Store(m)
	return m
}

// Model gibt den aktiven Checkpoint zurueck
func (t *Translator) Model() (*Model, error) {
	m := t.current.Load()
	if m == nil {
		return nil, ErrNotLoaded
	}
	return m, nil
}

// Supports meldet ob das aktive Modell pair uebersetzen kann
func (t *Translator) Supports(pair languages.Pair) bool {
	m := t.current.Load()
	return m != nil && slices.Contains(m.Pairs, pair)
}

// merge ergaenzt req mit den Defaults des Modells
// MaxLength wird auf die Trainingslaenge begrenzt.
func merge(defaults, req model.DecodeOptions, maxLength int) model.DecodeOptions {
	out := model.DecodeOptions{
		Strategy:    cmp.Or(req.Strategy, defaults.Strategy),
		MaxLength:   cmp.Or(req.MaxLength, defaults.MaxLength),
		TopK:        cmp.Or(req.TopK, defaults.TopK),
		BeamSize:    cmp.Or(req.BeamSize, defaults.BeamSize),
		Temperature: cmp.Or(req.Temperature, defaults.Temperature),
		Seed:        cmp.Or(req.Seed, defaults.Seed),
	}
	if out.MaxLength <= 0 || out.MaxLength > maxLength {
		out.MaxLength = maxLength
	}
	return out
}

// Translate uebersetzt req.Source von SourceLang nach TargetLang
// Ein ungueltiges Ergebnis ist kein Fehler: Result.Failure und
// Result.Warnings beschreiben es.
func (t *Translator) Translate(ctx context.Context, req Request) (Result, error) {
	start := time.Now()

	m := t.current.Load()
	if m == nil {
		return Result{}, ErrNotLoaded
	}

	pair, err := languages.NewPair(req.SourceLang, req.TargetLang)
	if err != nil {
		return Result{}, &UnsupportedLanguagePairError{Source: req.SourceLang, Target: req.TargetLang, Supported: m.Pairs, Err: err}
	}
	if !slices.Contains(m.Pairs, pair) {
		return Result{}, &UnsupportedLanguagePairError{Source: pair.Source, Target: pair.Target, Supported: m.Pairs}
	}

	target, err := languages.Lookup(pair.Target)
	if err != nil {
		return Result{}, err
	}

	if strings.TrimSpace(req.Source) == "" {
		return Result{}, ErrEmptySource
	}

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	enc := m.Vocab.Encode(req.Source, m.MaxLength, pair.Prefix()...)
	opts := merge(m.Defaults, req.Options, m.MaxLength)

	dec, err := m.State.Translate(enc.Sequence.Tokens(), opts)
	if err != nil {
		return Result{}, fmt.Errorf("translate: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	raw := m.Vocab.Decode(dec.Tokens)
	text, verdict := finish(req.Source, raw, target)
	res := Result{
		Raw:          raw,
		Tokens:       dec.Tokens,
		Verdict:      verdict,
		Text:         text,
		Unknown:      enc.Unknown,
		Truncated:    enc.TooLong(),
		Pair:         pair,
		ModelVersion: m.Version(),
	}

	if enc.HasUnknown() {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%d unknown source tokens", len(enc.Unknown)))
	}
	if res.Truncated {
		res.Warnings = append(res.Warnings, fmt.Sprintf("source truncated to %d tokens", m.MaxLength))
	}
	if !dec.Finished {
		res.Warnings = append(res.Warnings, fmt.Sprintf("output reached the length limit of %d tokens", opts.MaxLength))
	}
	if !res.Verdict.Valid {
		res.Failure = &ValidationFailure{Reason: res.Verdict.Reason}
		res.Warnings = append(res.Warnings, res.Failure.Error())
	}
	res.Warnings = append(res.Warnings, res.Verdict.Warnings...)

	res.Duration = time.Since(start)
	slog.Debug("translated", "pair", pair, "source_tokens", enc.Sequence.Length,
		"output_tokens", len(dec.Tokens), "valid", res.Verdict.Valid, "duration", res.Duration)
	return res, nil
}

// finish validiert raw und uebertraegt den Style der Quelle nur auf
// gueltige Uebersetzungen
func finish(source, raw string, target languages.Language) (string, validate.Verdict) {
	verdict := validate.Validate(raw, target)
	if !verdict.Valid {
		return raw, verdict
	}
	return style.Apply(source, raw), verdict
}
