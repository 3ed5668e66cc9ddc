package train

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/7blacky7/codetrans/checkpoint"
	"github.com/7blacky7/codetrans/languages"
	"github.com/7blacky7/codetrans/model"
	"github.com/7blacky7/codetrans/store"
	"github.com/7blacky7/codetrans/tokenizer"
)

func testSamples(n int) []Sample {
	out := make([]Sample, n)
	for i := range out {
		out[i] = Sample{
			Source:     fmt.Sprintf("def f%d(x):\n    return x + %d", i, i),
			Target:     fmt.Sprintf("int f%d(int x) {\n    return x + %d;\n}", i, i),
			SourceLang: "python",
			TargetLang: "java",
		}
	}
	return out
}

// testTrainConfig: 8 Beispiele, Batchgroesse 2 -> 4 Batches pro Epoche
func testTrainConfig(epochs int) Config {
	cfg := DefaultConfig(2, epochs, 0.01)
	cfg.EmbeddingDim = 4
	cfg.HiddenDim = 6
	cfg.MaxLength = 24
	cfg.ValSplit = 0
	cfg.WarmupSteps = 0
	cfg.CheckpointInterval = 0
	cfg.Dropout = 0
	cfg.AttentionDropout = 0
	return cfg
}

func TestTrainerConverges(t *testing.T) {
	dir := t.TempDir()
	db, err := store.Open(filepath.Join(dir, "runs.db"))
	require.NoError(t, err)
	defer db.Close()

	var epochs []EpochResult
	tr, err := New(testTrainConfig(2), testSamples(8), Options{
		Dir:     filepath.Join(dir, "ckpt"),
		Sink:    db,
		OnEpoch: func(r EpochResult) { epochs = append(epochs, r) },
	})
	require.NoError(t, err)
	assert.Equal(t, StatusIdle, tr.Status())
	assert.Equal(t, []languages.Pair{{Source: "python", Target: "java"}}, tr.Pairs())

	_, ok := tr.Vocabulary().Lookup("<java>")
	assert.True(t, ok, "Sprach-Tags im Vokabular")

	res, err := tr.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusConverged, res.Status)
	assert.Equal(t, StatusConverged, tr.Status())
	assert.Equal(t, 2, res.Progress.Epoch)
	assert.Equal(t, 8, res.Progress.Step)
	assert.True(t, res.Progress.Completed)
	require.Len(t, epochs, 2)
	assert.True(t, epochs[0].Improved)

	for _, name := range []string{checkpoint.BestFile, checkpoint.LastFile} {
		assert.FileExists(t, res.Checkpoints[name])
	}

	last, err := checkpoint.Load(res.Checkpoints[checkpoint.LastFile])
	require.NoError(t, err)
	assert.Equal(t, res.Progress, last.Progress)
	assert.True(t, last.Supports(languages.Pair{Source: "python", Target: "java"}))
	require.NotNil(t, last.Optimizer)
	assert.Equal(t, 8, last.Optimizer.Step)

	// Historie in der Datenbank
	run, err := db.Run(context.Background(), res.Progress.RunID)
	require.NoError(t, err)
	assert.Equal(t, string(StatusConverged), run.Status)
	assert.Equal(t, 8, run.Examples)

	rows, err := db.Epochs(context.Background(), res.Progress.RunID)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	cps, err := db.Checkpoints(context.Background(), res.Progress.RunID)
	require.NoError(t, err)
	assert.Len(t, cps, 2)

	// Ein zweiter Aufruf ist erlaubt und endet sofort
	res, err = tr.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusConverged, res.Status)
	assert.Equal(t, 8, res.Progress.Step)
}

func TestTrainerStoresDecodeDefaults(t *testing.T) {
	cfg := testTrainConfig(1)
	cfg.Decoding = "beam"
	cfg.BeamSize = 3
	cfg.Temperature = 0.7

	tr, err := New(cfg, testSamples(8), Options{Dir: t.TempDir()})
	require.NoError(t, err)
	res, err := tr.Run(context.Background())
	require.NoError(t, err)

	for _, name := range []string{checkpoint.BestFile, checkpoint.LastFile} {
		c, err := checkpoint.Load(res.Checkpoints[name])
		require.NoError(t, err)
		assert.Equal(t, model.Beam, c.Decode.Strategy, name)
		assert.Equal(t, 3, c.Decode.BeamSize, name)
		assert.Equal(t, 0.7, c.Decode.Temperature, name)
		assert.Equal(t, 24, c.Decode.MaxLength, name)
	}
}

func TestTrainerEarlyStopping(t *testing.T) {
	cfg := testTrainConfig(20)
	cfg.Patience = 3

	tr, err := New(cfg, testSamples(4), Options{Dir: t.TempDir()})
	require.NoError(t, err)

	losses := []float64{1.0, 0.9, 0.95, 0.92, 0.91, 0.1, 0.1}
	calls := 0
	tr.evaluate = func(context.Context) (float64, error) {
		loss := losses[calls]
		calls++
		return loss, nil
	}

	res, err := tr.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusEarlyStopped, res.Status)
	assert.Equal(t, 5, calls, "Stopp nach patience Epochen ohne Verbesserung, nicht frueher")
	assert.Equal(t, 5, res.Progress.Epoch)
	assert.Equal(t, 0.9, res.Progress.BestLoss)
	assert.Equal(t, 3, res.Progress.StaleEpochs)

	best, err := checkpoint.Load(res.Checkpoints[checkpoint.BestFile])
	require.NoError(t, err)
	assert.Equal(t, 2, best.Progress.Epoch, "best.ckpt stammt aus Epoche 2")
}

func TestTrainerDivergence(t *testing.T) {
	cfg := testTrainConfig(3)
	cfg.CheckpointInterval = 1
	dir := t.TempDir()

	tr, err := New(cfg, testSamples(8), Options{Dir: dir})
	require.NoError(t, err)

	step := tr.step
	calls := 0
	tr.step = func(batch []model.Example) (float64, error) {
		calls++
		loss, err := step(batch)
		if calls == 2 {
			return math.NaN(), err
		}
		return loss, err
	}

	res, err := tr.Run(context.Background())
	var div *NumericDivergenceError
	require.ErrorAs(t, err, &div)
	assert.Equal(t, 1, div.Step)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, StatusFailed, tr.Status())

	last, err := checkpoint.Load(checkpoint.Path(dir, checkpoint.LastFile))
	require.NoError(t, err)
	assert.Equal(t, 1, last.Progress.Step, "letzter guter Checkpoint bleibt erhalten")
	assert.False(t, last.Progress.Completed)
	for _, p := range last.Params.All() {
		for _, v := range p.Data() {
			require.False(t, math.IsNaN(v))
		}
	}
}

func TestTrainerCancelAndResume(t *testing.T) {
	cfg := testTrainConfig(2)
	dir := t.TempDir()
	samples := testSamples(8)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tr, err := New(cfg, samples, Options{
		Dir: dir,
		OnStep: func(p checkpoint.Progress, _ float64) {
			if p.Step == 2 {
				cancel()
			}
		},
	})
	require.NoError(t, err)

	res, err := tr.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StatusCancelled, res.Status)

	saved, err := checkpoint.Load(checkpoint.Path(dir, checkpoint.LastFile))
	require.NoError(t, err)
	assert.Equal(t, 0, saved.Progress.Epoch)
	assert.Equal(t, 2, saved.Progress.BatchInEpoch)
	assert.Equal(t, 2, saved.Progress.Step)
	require.NotNil(t, saved.Optimizer)
	assert.Equal(t, 2, saved.Optimizer.Step)

	// Fortsetzen: Batches 3 und 4 von Epoche 1, dann Epoche 2
	var seen []checkpoint.Progress
	resumed, err := New(cfg, samples, Options{
		Dir:    dir,
		Resume: saved,
		OnStep: func(p checkpoint.Progress, _ float64) { seen = append(seen, p) },
	})
	require.NoError(t, err)
	assert.Equal(t, saved.Vocab.ID, resumed.Vocabulary().ID)

	res, err = resumed.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusConverged, res.Status)
	assert.Equal(t, saved.Progress.RunID, res.Progress.RunID)
	assert.Equal(t, 8, res.Progress.Step, "keine Batches doppelt")
	assert.Equal(t, 2, res.Progress.Epoch)

	require.Len(t, seen, 6)
	assert.Equal(t, 3, seen[0].Step)
	assert.Equal(t, 3, seen[0].BatchInEpoch)
	assert.Equal(t, 1, seen[2].Epoch)
	assert.Equal(t, 1, seen[2].BatchInEpoch)
}

func TestTrainerResumeMismatch(t *testing.T) {
	cfg := testTrainConfig(1)
	dir := t.TempDir()

	tr, err := New(cfg, testSamples(4), Options{Dir: dir})
	require.NoError(t, err)
	_, err = tr.Run(context.Background())
	require.NoError(t, err)

	saved, err := checkpoint.Load(checkpoint.Path(dir, checkpoint.LastFile))
	require.NoError(t, err)

	cfg.HiddenDim = 8
	_, err = New(cfg, testSamples(4), Options{Dir: dir, Resume: saved})
	assert.Error(t, err)
}

func TestTrainerSWA(t *testing.T) {
	cfg := testTrainConfig(3)
	cfg.SWAStartEpoch = 2
	dir := t.TempDir()

	tr, err := New(cfg, testSamples(4), Options{Dir: dir})
	require.NoError(t, err)
	_, err = tr.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, tr.swa.Count(), "Epochen 2 und 3")

	swa, err := checkpoint.Load(checkpoint.Path(dir, checkpoint.SWAFile))
	require.NoError(t, err)
	assert.Nil(t, swa.Optimizer)

	state := swa.State(1)
	src := swa.Vocab.Encode("def f1(x):\n    return x + 1", cfg.MaxLength, languages.Pair{Source: "python", Target: "java"}.Prefix()...)
	_, err = state.Translate(src.Sequence.Tokens(), model.DecodeOptions{MaxLength: cfg.MaxLength})
	assert.NoError(t, err)
}

func TestNewErrors(t *testing.T) {
	cfg := testTrainConfig(1)

	_, err := New(cfg, nil, Options{Dir: t.TempDir()})
	var verr *tokenizer.VocabularyError
	assert.ErrorAs(t, err, &verr)

	_, err = New(cfg, testSamples(2), Options{})
	assert.Error(t, err, "ohne Verzeichnis")

	bad := cfg
	bad.BatchSize = 0
	_, err = New(bad, testSamples(2), Options{Dir: t.TempDir()})
	assert.Error(t, err)

	// Run waehrend eines Laufs
	tr, err := New(cfg, testSamples(2), Options{Dir: t.TempDir()})
	require.NoError(t, err)
	tr.status = StatusRunning
	_, err = tr.Run(context.Background())
	assert.True(t, errors.Is(err, ErrInvalidState))
}
