// Package train - Trainings-Orchestrierung
//
// Enthaelt:
// - Config: Trainings-Parameter (viper, strikt typisiert)
// - Dataset: Laden, Bereinigen, Deduplizieren und Aufteilen von Paaren
// - AdamW, ClipGradients, Schedule: Optimizer und Lernraten-Verlauf
// - EarlyStopper, SWA: Abbruch bei Stagnation, Gewichtsmittelung
// - Trainer: Epochen-/Batch-Schleife mit Checkpoints und Resume
//
// Zustaende: idle -> running -> {converged, early_stopped, failed, cancelled}
package train

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"math/rand/v2"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"github.com/7blacky7/codetrans/checkpoint"
	"github.com/7blacky7/codetrans/format"
	"github.com/7blacky7/codetrans/languages"
	"github.com/7blacky7/codetrans/logutil"
	"github.com/7blacky7/codetrans/model"
	"github.com/7blacky7/codetrans/store"
	"github.com/7blacky7/codetrans/tokenizer"
)

// Status ist der Zustand eines Trainers
type Status string

const (
	StatusIdle         Status = "idle"
	StatusRunning      Status = "running"
	StatusConverged    Status = "converged"
	StatusEarlyStopped Status = "early_stopped"
	StatusFailed       Status = "failed"
	StatusCancelled    Status = "cancelled"
)

// ErrInvalidState wird geliefert wenn Run waehrend eines Laufs aufgerufen wird
var ErrInvalidState = errors.New("train: invalid state")

// NumericDivergenceError meldet einen nicht-endlichen Loss oder Gradienten
type NumericDivergenceError struct {
	Epoch    int
	Step     int
	Loss     float64
	GradNorm float64
}

func (e *NumericDivergenceError) Error() string {
	return fmt.Sprintf("train: numeric divergence at epoch %d step %d (loss %v, grad norm %v)", e.Epoch+1, e.Step, e.Loss, e.GradNorm)
}

// Sink nimmt Laufhistorie auf, *store.Store erfuellt das Interface
type Sink interface {
	CreateRun(ctx context.Context, r store.Run) error
	FinishRun(ctx context.Context, id, status string, bestLoss float64, runErr error) error
	AddEpoch(ctx context.Context, e store.Epoch) error
	AddCheckpoint(ctx context.Context, c store.Checkpoint) error
}

type nopSink struct{}

func (nopSink) CreateRun(context.Context, store.Run) error                      { return nil }
func (nopSink) FinishRun(context.Context, string, string, float64, error) error { return nil }
func (nopSink) AddEpoch(context.Context, store.Epoch) error                     { return nil }
func (nopSink) AddCheckpoint(context.Context, store.Checkpoint) error           { return nil }

// EpochResult sind die Metriken einer abgeschlossenen Epoche
type EpochResult struct {
	Epoch     int
	Step      int
	TrainLoss float64
	ValLoss   float64
	LR        float64
	Improved  bool
	Duration  time.Duration
}

// Options steuert Ablage, Historie und Fortschrittsmeldungen
type Options struct {
	// Dir nimmt best.ckpt, last.ckpt und swa.ckpt auf
	Dir string
	// Sink ist optional
	Sink Sink
	// Resume setzt einen Lauf aus einem Checkpoint fort
	Resume *checkpoint.Checkpoint

	OnStep  func(p checkpoint.Progress, loss float64)
	OnEpoch func(EpochResult)
}

// Result fasst einen beendeten Lauf zusammen
type Result struct {
	Status   Status
	Progress checkpoint.Progress
	// Checkpoints enthaelt die geschriebenen Dateien nach Name
	Checkpoints map[string]string
}

// Trainer besitzt Engine, Optimizer und Fortschritt eines Laufs
type Trainer struct {
	cfg  Config
	opts Options
	sink Sink

	mu       sync.Mutex
	status   Status
	progress checkpoint.Progress
	written  map[string]string

	vocab    *tokenizer.Vocabulary
	pairs    []languages.Pair
	trainSet []PairedSample
	valSet   []model.Example
	batches  int

	engine  *model.Engine
	optim   *AdamW
	sched   *Schedule
	stopper *EarlyStopper
	swa     *SWA
	augment *Augmenter

	// austauschbar fuer Tests
	step     func([]model.Example) (float64, error)
	evaluate func(context.Context) (float64, error)
}

// New bereitet einen Lauf vor: Daten aufteilen, Vokabular bauen (oder aus
// dem Resume-Checkpoint uebernehmen) und Engine initialisieren
func New(cfg Config, samples []Sample, opts Options) (*Trainer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Dir == "" {
		return nil, errors.New("train: checkpoint directory required")
	}

	prepared, err := Prepare(samples, cfg.SourceLang, cfg.TargetLang)
	if err != nil {
		return nil, err
	}
	if len(prepared) == 0 {
		return nil, &tokenizer.VocabularyError{Reason: "empty corpus"}
	}
	trainSet, valSet := Split(prepared, cfg.ValSplit, cfg.Seed)
	if len(valSet) == 0 {
		valSet = trainSet
	}

	t := &Trainer{
		cfg:      cfg,
		opts:     opts,
		sink:     opts.Sink,
		status:   StatusIdle,
		written:  make(map[string]string),
		trainSet: trainSet,
		optim:    NewAdamW(cfg.WeightDecay),
		stopper:  NewEarlyStopper(cfg.Patience, cfg.MinDelta),
		augment:  NewAugmenter(cfg.AugmentationProb, cfg.Seed),
	}
	if t.sink == nil {
		t.sink = nopSink{}
	}

	var params *model.Params
	if r := opts.Resume; r != nil {
		if r.Config.EmbeddingDim != cfg.EmbeddingDim || r.Config.HiddenDim != cfg.HiddenDim {
			return nil, fmt.Errorf("train: checkpoint dimensions %dx%d do not match config %dx%d",
				r.Config.EmbeddingDim, r.Config.HiddenDim, cfg.EmbeddingDim, cfg.HiddenDim)
		}
		t.vocab = r.Vocab
		t.pairs = slices.Clone(r.Pairs)
		t.progress = r.Progress
		t.optim.Restore(r.Optimizer)
		t.stopper.Best = r.Progress.BestLoss
		t.stopper.Stale = r.Progress.StaleEpochs
		params = r.Params
	} else {
		corpus := make([]string, 0, 2*len(trainSet))
		for _, s := range trainSet {
			corpus = append(corpus, s.Source, s.Target)
		}
		t.vocab, err = tokenizer.Build(corpus, tokenizer.BuildOptions{
			MinFreq:  cfg.VocabMinFreq,
			MaxSize:  cfg.VocabMaxSize,
			Specials: languages.Tags(),
		})
		if err != nil {
			return nil, err
		}

		id, err := uuid.NewV7()
		if err != nil {
			return nil, err
		}
		t.progress = checkpoint.Progress{RunID: id.String(), BestLoss: math.Inf(1)}
	}

	for _, s := range prepared {
		if !slices.Contains(t.pairs, s.Pair) {
			t.pairs = append(t.pairs, s.Pair)
		}
	}

	t.engine, err = model.NewEngine(cfg.Model(t.vocab.Size()), params, uint64(cfg.Seed)+uint64(t.progress.Step))
	if err != nil {
		return nil, err
	}

	t.batches = (len(trainSet) + cfg.BatchSize - 1) / cfg.BatchSize
	t.sched = NewSchedule(cfg, t.batches*cfg.NumEpochs)
	if opts.Resume != nil {
		t.sched.Restore(t.progress.LR, t.progress.StaleEpochs, t.progress.Step)
	} else {
		t.progress.LR = t.sched.LR(0)
	}

	if cfg.SWAStartEpoch > 0 {
		t.swa = &SWA{}
	}

	t.valSet = make([]model.Example, len(valSet))
	for i, s := range valSet {
		t.valSet[i] = t.encode(s)
	}

	t.step = t.engine.Step
	t.evaluate = t.validate
	return t, nil
}

// Status gibt den aktuellen Zustand zurueck
func (t *Trainer) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Progress gibt eine Kopie des Fortschritts zurueck
func (t *Trainer) Progress() checkpoint.Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progress
}

// Vocabulary gibt das Vokabular des Laufs zurueck
func (t *Trainer) Vocabulary() *tokenizer.Vocabulary {
	return t.vocab
}

// Pairs gibt die trainierten Sprachpaare zurueck
func (t *Trainer) Pairs() []languages.Pair {
	return slices.Clone(t.pairs)
}

// Sizes gibt die Anzahl Trainings- und Validierungsbeispiele zurueck
func (t *Trainer) Sizes() (trainN, valN int) {
	return len(t.trainSet), len(t.valSet)
}

// Snapshot gibt den aktuellen Modellzustand fuer Inferenz zurueck
func (t *Trainer) Snapshot() *model.State {
	return t.engine.Snapshot(uint64(t.Progress().Step))
}

func (t *Trainer) setStatus(s Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = s
}

func (t *Trainer) update(fn func(p *checkpoint.Progress)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&t.progress)
}

func (t *Trainer) encode(s PairedSample) model.Example {
	src := t.vocab.Encode(s.Source, t.cfg.MaxLength, s.Pair.Prefix()...)
	tgt := t.vocab.Encode(s.Target, t.cfg.MaxLength)
	return model.Example{Source: src.Sequence.Tokens(), Target: tgt.Sequence.Tokens()}
}

// order ist die Reihenfolge der Trainingsbeispiele in epoch
// Nur von seed und Epoche abhaengig, damit Resume dieselben Batches sieht.
func (t *Trainer) order(epoch int) []int {
	rng := rand.New(rand.NewPCG(uint64(t.cfg.Seed), uint64(epoch)))
	return rng.Perm(len(t.trainSet))
}

func (t *Trainer) batch(order []int, epoch, b int) []model.Example {
	lo := b * t.cfg.BatchSize
	hi := min(lo+t.cfg.BatchSize, len(order))

	out := make([]model.Example, 0, hi-lo)
	for _, i := range order[lo:hi] {
		out = append(out, t.encode(t.augment.Apply(t.trainSet[i], epoch, i)))
	}
	return out
}

// validate berechnet den mittleren Loss auf der Validierungsmenge
func (t *Trainer) validate(ctx context.Context) (float64, error) {
	state := t.engine.Snapshot(uint64(t.progress.Step))
	losses := make([]float64, len(t.valSet))

	workers := t.cfg.EvalWorkers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, ex := range t.valSet {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out, err := state.Forward(ex.Source, ex.Target, t.cfg.MaxLength)
			if err != nil {
				return err
			}
			losses[i] = out.Loss
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	return floats.Sum(losses) / float64(len(losses)), nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Run trainiert bis num_epochs, Early Stopping, Divergenz oder Abbruch
// Ein abgebrochener Lauf schreibt last.ckpt und liefert ctx.Err().
func (t *Trainer) Run(ctx context.Context) (Result, error) {
	t.mu.Lock()
	if t.status == StatusRunning {
		t.mu.Unlock()
		return Result{}, ErrInvalidState
	}
	t.status = StatusRunning
	t.mu.Unlock()

	// Historie auch nach Abbruch von ctx schreiben
	bg := context.WithoutCancel(ctx)

	cfgJSON, _ := json.Marshal(t.cfg)
	var pairs []string
	for _, p := range t.pairs {
		pairs = append(pairs, p.String())
	}
	if err := t.sink.CreateRun(bg, store.Run{
		ID:       t.progress.RunID,
		Status:   string(StatusRunning),
		Config:   string(cfgJSON),
		Pairs:    strings.Join(pairs, ","),
		Examples: len(t.trainSet),
		BestLoss: t.progress.BestLoss,
	}); err != nil {
		slog.Warn("failed to record run", "run", t.progress.RunID, "error", err)
	}

	slog.Info("training started", "run", t.progress.RunID, "examples", len(t.trainSet),
		"validation", len(t.valSet), "vocab", t.vocab.Size(), "pairs", strings.Join(pairs, ","),
		"epoch", t.progress.Epoch+1, "step", t.progress.Step)

	switch {
	case t.progress.Completed || t.progress.Epoch >= t.cfg.NumEpochs:
		return t.finish(bg, StatusConverged)
	case t.stopper.Stale >= t.cfg.Patience:
		return t.finish(bg, StatusEarlyStopped)
	}

	params := t.engine.Params()
	for t.progress.Epoch < t.cfg.NumEpochs {
		epoch := t.progress.Epoch
		start := time.Now()
		order := t.order(epoch)

		var sum float64
		var n int
		for b := t.progress.BatchInEpoch; b < t.batches; b++ {
			if err := ctx.Err(); err != nil {
				return t.cancel(bg, err)
			}

			loss, err := t.step(t.batch(order, epoch, b))
			if err != nil && !errors.Is(err, model.ErrNonFiniteLoss) {
				return t.fail(bg, err)
			}

			norm := ClipGradients(params, t.cfg.MaxGradNorm)
			if err != nil || !finite(loss) || !finite(norm) {
				return t.fail(bg, &NumericDivergenceError{Epoch: epoch, Step: t.progress.Step, Loss: loss, GradNorm: norm})
			}

			t.optim.Step(params, t.sched.LR(t.progress.Step))
			t.update(func(p *checkpoint.Progress) {
				p.Step++
				p.BatchInEpoch = b + 1
				p.LR = t.sched.LR(p.Step)
			})
			sum += loss
			n++

			logutil.Trace("train step", "epoch", epoch+1, "batch", b+1, "step", t.progress.Step, "loss", loss, "grad_norm", norm)
			if t.opts.OnStep != nil {
				t.opts.OnStep(t.Progress(), loss)
			}

			if every := t.cfg.CheckpointInterval; every > 0 && t.progress.Step%every == 0 {
				if err := t.save(bg, checkpoint.LastFile, params, true); err != nil {
					return t.fail(bg, err)
				}
			}
		}

		if err := ctx.Err(); err != nil {
			return t.cancel(bg, err)
		}

		valLoss, err := t.evaluate(ctx)
		switch {
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			return t.cancel(bg, err)
		case errors.Is(err, model.ErrNonFiniteLoss) || (err == nil && !finite(valLoss)):
			return t.fail(bg, &NumericDivergenceError{Epoch: epoch, Step: t.progress.Step, Loss: valLoss})
		case err != nil:
			return t.fail(bg, err)
		}

		improved, stop := t.stopper.Observe(valLoss)
		t.sched.EpochEnd(t.stopper.Stale)
		t.update(func(p *checkpoint.Progress) {
			p.Epoch = epoch + 1
			p.BatchInEpoch = 0
			p.BestLoss = t.stopper.Best
			p.StaleEpochs = t.stopper.Stale
			p.LR = t.sched.LR(p.Step)
		})

		if improved {
			if err := t.save(bg, checkpoint.BestFile, params, true); err != nil {
				return t.fail(bg, err)
			}
		}

		if t.swa != nil && epoch+1 >= t.cfg.SWAStartEpoch {
			t.swa.Update(params)
			if err := t.save(bg, checkpoint.SWAFile, t.swa.Params(), false); err != nil {
				return t.fail(bg, err)
			}
		}

		res := EpochResult{
			Epoch:     epoch,
			Step:      t.progress.Step,
			TrainLoss: sum / float64(max(n, 1)),
			ValLoss:   valLoss,
			LR:        t.progress.LR,
			Improved:  improved,
			Duration:  time.Since(start),
		}
		if err := t.sink.AddEpoch(bg, store.Epoch{
			RunID:     t.progress.RunID,
			Epoch:     res.Epoch,
			Step:      res.Step,
			TrainLoss: res.TrainLoss,
			ValLoss:   res.ValLoss,
			LR:        res.LR,
			Improved:  res.Improved,
			Duration:  res.Duration,
		}); err != nil {
			slog.Warn("failed to record epoch", "run", t.progress.RunID, "epoch", epoch+1, "error", err)
		}

		slog.Info("epoch finished", "epoch", epoch+1, "of", t.cfg.NumEpochs,
			"train_loss", res.TrainLoss, "val_loss", valLoss, "best", t.stopper.Best,
			"lr", res.LR, "improved", improved, "duration", format.HumanDuration(res.Duration))
		if t.opts.OnEpoch != nil {
			t.opts.OnEpoch(res)
		}

		if stop {
			slog.Info("early stopping", "epoch", epoch+1, "stale_epochs", t.stopper.Stale, "best", t.stopper.Best)
			return t.finish(bg, StatusEarlyStopped)
		}
	}

	return t.finish(bg, StatusConverged)
}

// save schreibt einen Checkpoint und traegt ihn in die Historie ein
func (t *Trainer) save(ctx context.Context, name string, params *model.Params, withOptimizer bool) error {
	c := &checkpoint.Checkpoint{
		Config:    t.engine.Config(),
		Params:    params,
		Progress:  t.Progress(),
		Vocab:     t.vocab,
		Pairs:     t.pairs,
		MaxLength: t.cfg.MaxLength,
		Decode:    t.cfg.DecodeOptions(),
	}
	if withOptimizer {
		c.Optimizer = t.optim.State()
	}

	path := checkpoint.Path(t.opts.Dir, name)
	digest, err := checkpoint.Save(path, c)
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.written[name] = path
	t.mu.Unlock()

	slog.Debug("checkpoint written", "name", name, "step", c.Progress.Step, "digest", digest)
	if err := t.sink.AddCheckpoint(ctx, store.Checkpoint{
		RunID:   c.Progress.RunID,
		Name:    name,
		Path:    path,
		Digest:  digest,
		Step:    c.Progress.Step,
		ValLoss: c.Progress.BestLoss,
	}); err != nil {
		slog.Warn("failed to record checkpoint", "name", name, "error", err)
	}
	return nil
}

func (t *Trainer) result(status Status) Result {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = status
	return Result{Status: status, Progress: t.progress, Checkpoints: maps.Clone(t.written)}
}

func (t *Trainer) finish(ctx context.Context, status Status) (Result, error) {
	t.update(func(p *checkpoint.Progress) { p.Completed = true })
	if err := t.save(ctx, checkpoint.LastFile, t.engine.Params(), true); err != nil {
		return t.fail(ctx, err)
	}

	if err := t.sink.FinishRun(ctx, t.progress.RunID, string(status), t.progress.BestLoss, nil); err != nil {
		slog.Warn("failed to record run result", "run", t.progress.RunID, "error", err)
	}
	slog.Info("training finished", "status", status, "epochs", t.progress.Epoch, "steps", t.progress.Step, "best", t.progress.BestLoss)
	return t.result(status), nil
}

func (t *Trainer) cancel(ctx context.Context, cause error) (Result, error) {
	if err := t.save(ctx, checkpoint.LastFile, t.engine.Params(), true); err != nil {
		slog.Error("failed to write checkpoint after cancellation", "error", err)
	}
	if err := t.sink.FinishRun(ctx, t.progress.RunID, string(StatusCancelled), t.progress.BestLoss, cause); err != nil {
		slog.Warn("failed to record run result", "run", t.progress.RunID, "error", err)
	}
	slog.Info("training cancelled", "epoch", t.progress.Epoch+1, "batch", t.progress.BatchInEpoch, "step", t.progress.Step)
	return t.result(StatusCancelled), cause
}

// fail beendet den Lauf ohne Checkpoint, der letzte gute bleibt erhalten
func (t *Trainer) fail(ctx context.Context, cause error) (Result, error) {
	if err := t.sink.FinishRun(ctx, t.progress.RunID, string(StatusFailed), t.progress.BestLoss, cause); err != nil {
		slog.Warn("failed to record run result", "run", t.progress.RunID, "error", err)
	}
	slog.Error("training failed", "epoch", t.progress.Epoch+1, "step", t.progress.Step, "error", cause)
	return t.result(StatusFailed), cause
}
