package translator

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/7blacky7/codetrans/checkpoint"
	"github.com/7blacky7/codetrans/languages"
	"github.com/7blacky7/codetrans/model"
	"github.com/7blacky7/codetrans/style"
	"github.com/7blacky7/codetrans/tokenizer"
)

var pythonToJava = languages.Pair{Source: "python", Target: "java"}

func testCheckpoint(t *testing.T, seed uint64) *checkpoint.Checkpoint {
	t.Helper()

	vocab, err := tokenizer.Build([]string{
		"def f(x):\n    return x + 1",
		"int f(int x) {\n    return x + 1;\n}",
	}, tokenizer.BuildOptions{Specials: languages.Tags()})
	require.NoError(t, err)

	cfg := model.Config{VocabSize: vocab.Size(), EmbeddingDim: 4, HiddenDim: 6}
	return &checkpoint.Checkpoint{
		Config:    cfg,
		Params:    model.NewParams(cfg, seed),
		Progress:  checkpoint.Progress{RunID: "test", BestLoss: math.Inf(1)},
		Vocab:     vocab,
		Pairs:     []languages.Pair{pythonToJava},
		MaxLength: 12,
	}
}

func TestTranslateNotLoaded(t *testing.T) {
	tr := New(model.DecodeOptions{})
	_, err := tr.Translate(context.Background(), Request{Source: "x", SourceLang: "python", TargetLang: "java"})
	assert.ErrorIs(t, err, ErrNotLoaded)

	_, err = tr.Model()
	assert.ErrorIs(t, err, ErrNotLoaded)
	assert.False(t, tr.Supports(pythonToJava))
}

func TestTranslate(t *testing.T) {
	tr := New(model.DecodeOptions{Strategy: model.Greedy})
	m := tr.Set(testCheckpoint(t, 1), "")
	assert.Equal(t, uint64(1), m.Version())
	assert.True(t, tr.Supports(pythonToJava))

	req := Request{Source: "def f(x):\n    return x + 1\n", SourceLang: "py", TargetLang: "Java"}
	res, err := tr.Translate(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, pythonToJava, res.Pair)
	assert.Equal(t, uint64(1), res.ModelVersion)
	assert.LessOrEqual(t, len(res.Tokens), 12, "Ausgabe durch max_length begrenzt")
	assert.Empty(t, res.Unknown)
	assert.False(t, res.Truncated)

	if res.Verdict.Valid {
		assert.Nil(t, res.Failure)
		assert.Equal(t, style.Apply(req.Source, res.Raw), res.Text)
	} else {
		assert.Equal(t, res.Raw, res.Text, "ohne gueltige Validierung kein Style")
		require.NotNil(t, res.Failure)
		assert.Equal(t, res.Verdict.Reason, res.Failure.Reason)
		assert.Contains(t, res.Warnings, res.Failure.Error())
	}

	// Greedy ist deterministisch
	again, err := tr.Translate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, res.Tokens, again.Tokens)
	assert.Equal(t, res.Text, again.Text)
}

func TestTranslateDiagnostics(t *testing.T) {
	tr := New(model.DecodeOptions{})
	tr.Set(testCheckpoint(t, 1), "")

	res, err := tr.Translate(context.Background(), Request{
		Source:     strings.Repeat("unseen_name ", 30),
		SourceLang: "python",
		TargetLang: "java",
		Options:    model.DecodeOptions{MaxLength: 100},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"unseen_name"}, res.Unknown)
	assert.True(t, res.Truncated)
	assert.LessOrEqual(t, len(res.Tokens), 12, "Anfrage kann max_length nicht erhoehen")
}

func TestTranslateErrors(t *testing.T) {
	tr := New(model.DecodeOptions{})
	tr.Set(testCheckpoint(t, 1), "")
	ctx := context.Background()

	cases := []struct {
		name string
		req  Request
		pair bool
	}{
		{"untrained pair", Request{Source: "x", SourceLang: "java", TargetLang: "python"}, true},
		{"unknown language", Request{Source: "x", SourceLang: "cobol", TargetLang: "java"}, true},
		{"empty source", Request{Source: "  \n", SourceLang: "python", TargetLang: "java"}, false},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tr.Translate(ctx, tt.req)
			require.Error(t, err)

			var pairErr *UnsupportedLanguagePairError
			assert.Equal(t, tt.pair, errors.As(err, &pairErr))
		})
	}

	var unknown *languages.UnknownLanguageError
	_, err := tr.Translate(ctx, Request{Source: "x", SourceLang: "pyhton", TargetLang: "java"})
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "python", unknown.Suggestion)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = tr.Translate(cancelled, Request{Source: "x", SourceLang: "python", TargetLang: "java"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoadAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, checkpoint.BestFile)
	_, err := checkpoint.Save(path, testCheckpoint(t, 1))
	require.NoError(t, err)

	tr := New(model.DecodeOptions{})
	m1, err := tr.Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, m1.Path)
	assert.True(t, strings.HasPrefix(m1.Digest, "blake2b-"))

	req := Request{Source: "def f(x):\n    return x", SourceLang: "python", TargetLang: "java"}

	// Parallele Uebersetzungen waehrend eines Reloads
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := tr.Translate(context.Background(), req)
			assert.NoError(t, err)
			assert.Contains(t, []uint64{1, 2}, res.ModelVersion)
		}()
	}

	_, err = checkpoint.Save(path, testCheckpoint(t, 2))
	require.NoError(t, err)
	m2, err := tr.Load(path)
	require.NoError(t, err)
	wg.Wait()

	assert.Equal(t, uint64(2), m2.Version())
	current, err := tr.Model()
	require.NoError(t, err)
	assert.Same(t, m2, current)
	assert.NotEqual(t, m1.Digest, m2.Digest)

	_, err = tr.Load(filepath.Join(dir, "missing.ckpt"))
	assert.Error(t, err)
	current, err = tr.Model()
	require.NoError(t, err)
	assert.Same(t, m2, current, "fehlgeschlagener Reload behaelt das alte Modell")
}

func TestCheckpointDecodeDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), checkpoint.BestFile)
	c := testCheckpoint(t, 2)
	c.Decode = model.DecodeOptions{Strategy: model.Beam, BeamSize: 3, MaxLength: 50}
	_, err := checkpoint.Save(path, c)
	require.NoError(t, err)

	tr := New(model.DecodeOptions{})
	m, err := tr.Load(path)
	require.NoError(t, err)
	assert.Equal(t, model.Beam, m.Defaults.Strategy)
	assert.Equal(t, 3, m.Defaults.BeamSize)
	assert.Equal(t, 12, m.Defaults.MaxLength, "auf Trainingslaenge begrenzt")

	req := Request{Source: "def f(x):\n    return x + 1", SourceLang: "python", TargetLang: "java"}
	src := m.Vocab.Encode(req.Source, m.MaxLength, pythonToJava.Prefix()...).Sequence.Tokens()

	beam, err := m.State.Translate(src, model.DecodeOptions{Strategy: model.Beam, BeamSize: 3, MaxLength: 12})
	require.NoError(t, err)
	res, err := tr.Translate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, beam.Tokens, res.Tokens, "ohne Optionen wird mit Beam Search uebersetzt")

	// Optionen der Anfrage gehen vor
	greedy, err := m.State.Translate(src, model.DecodeOptions{Strategy: model.Greedy, MaxLength: 12})
	require.NoError(t, err)
	req.Options = model.DecodeOptions{Strategy: model.Greedy}
	res, err = tr.Translate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, greedy.Tokens, res.Tokens)

	// Defaults des Translators gehen vor denen des Checkpoints
	tr = New(model.DecodeOptions{Strategy: model.TopK})
	m, err = tr.Load(path)
	require.NoError(t, err)
	assert.Equal(t, model.TopK, m.Defaults.Strategy)
	assert.Equal(t, 3, m.Defaults.BeamSize)
}

func TestFinishAppliesStyleOnlyWhenValid(t *testing.T) {
	java, err := languages.Lookup("java")
	require.NoError(t, err)
	source := "def f(x):\n\treturn x\n"

	text, verdict := finish(source, "int f(int x) {\n    return x;\n}", java)
	assert.True(t, verdict.Valid)
	assert.Equal(t, "int f(int x) {\n\treturn x;\n}\n", text)

	raw := "int f(int x) {\n    return (x;\n}"
	text, verdict = finish(source, raw, java)
	assert.False(t, verdict.Valid)
	assert.Equal(t, raw, text)
}
