package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/7blacky7/codetrans/checkpoint"
	"github.com/7blacky7/codetrans/fs/ckpt"
	"github.com/7blacky7/codetrans/model"
	"github.com/7blacky7/codetrans/store"
)

// execute fuehrt die CLI mit args aus und gibt stdout zurueck
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	cli := NewCLI()
	cli.SetArgs(args)
	cli.SetIn(strings.NewReader(stdin))
	cli.SetOut(&stdout)
	cli.SetErr(&stderr)
	err := cli.Execute()
	return stdout.String(), err
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// trainFixture trainiert ein winziges Modell und gibt das Modellverzeichnis zurueck
func trainFixture(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	models := filepath.Join(dir, "models")
	t.Setenv("CODETRANS_MODELS", models)
	t.Setenv("CODETRANS_DB", filepath.Join(dir, "codetrans.db"))

	config := writeFile(t, filepath.Join(dir, "config.yaml"), `
batch_size: 2
num_epochs: 1
learning_rate: 0.01
embedding_dim: 4
hidden_dim: 6
max_length: 24
warmup_steps: 0
checkpoint_interval: 0
dropout: 0
attention_dropout: 0
val_split: 0.25
decoding: beam
beam_size: 2
`)

	var samples []map[string]string
	for i := range 4 {
		samples = append(samples, map[string]string{
			"source":      fmt.Sprintf("def f%d(x):\n    return x + %d", i, i),
			"target":      fmt.Sprintf("int f%d(int x) {\n    return x + %d;\n}", i, i),
			"source_lang": "python",
			"target_lang": "java",
		})
	}
	data, err := json.Marshal(samples)
	require.NoError(t, err)
	dataset := writeFile(t, filepath.Join(dir, "train.json"), string(data))

	out, err := execute(t, "", "train", config, dataset)
	require.NoError(t, err)
	assert.Contains(t, out, "status:     converged")
	assert.Contains(t, out, checkpoint.Path(models, checkpoint.LastFile))
	return models
}

func TestTrainShowExport(t *testing.T) {
	models := trainFixture(t)

	last := checkpoint.Path(models, checkpoint.LastFile)
	out, err := execute(t, "", "show", last)
	require.NoError(t, err)
	assert.Contains(t, out, "python->java")
	assert.Contains(t, out, "optimizer state")
	assert.Regexp(t, `decoding\s+beam`, out)

	exported := filepath.Join(t.TempDir(), "serve.ckpt")
	out, err = execute(t, "", "export", "--type", "bf16", last, exported)
	require.NoError(t, err)
	assert.Contains(t, out, "BF16")

	c, err := checkpoint.Load(exported)
	require.NoError(t, err)
	assert.Nil(t, c.Optimizer, "Export enthaelt keine Optimizer-Momente")
	assert.Equal(t, model.Beam, c.Decode.Strategy, "Decoding-Defaults bleiben erhalten")

	_, err = execute(t, "", "export", "--type", "q4", last, exported)
	assert.Error(t, err)

	// Lauf wurde in der Historie aufgezeichnet
	db, err := store.Open(os.Getenv("CODETRANS_DB"))
	require.NoError(t, err)
	defer db.Close()
	runs, err := db.Runs(t.Context(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "converged", runs[0].Status)
}

func TestTrainResumeCompleted(t *testing.T) {
	models := trainFixture(t)

	before, err := checkpoint.Load(checkpoint.Path(models, checkpoint.LastFile))
	require.NoError(t, err)

	dir := filepath.Dir(models)
	out, err := execute(t, "", "train", "--resume", filepath.Join(dir, "config.yaml"), filepath.Join(dir, "train.json"))
	require.NoError(t, err)
	assert.Contains(t, out, fmt.Sprintf("steps:      %d", before.Progress.Step), "abgeschlossener Lauf macht keine weiteren Schritte")
}

func TestTranslateLocal(t *testing.T) {
	models := trainFixture(t)
	best := checkpoint.Path(models, checkpoint.BestFile)

	src := writeFile(t, filepath.Join(t.TempDir(), "f.py"), "\ufeffdef f(x):\n    return x + 1\n")
	_, err := execute(t, "", "translate", "--checkpoint", best, "--to", "java", src)
	require.NoError(t, err, "Sprache wird aus der Endung erkannt")

	_, err = execute(t, "def f(x):\n    return x\n", "translate", "--checkpoint", best, "--to", "java")
	assert.ErrorContains(t, err, "--from")

	_, err = execute(t, "int x = 1;", "translate", "--checkpoint", best, "--from", "java", "--to", "python", "-")
	assert.ErrorContains(t, err, "unsupported language pair")
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, "", "validate", writeFile(t, filepath.Join(dir, "A.java"), "int f(int x) { return x; }"))
	require.NoError(t, err)
	assert.Contains(t, out, "valid java")

	_, err = execute(t, "", "validate", writeFile(t, filepath.Join(dir, "f.py"), "def f(x): return (x"))
	assert.ErrorContains(t, err, "invalid python")

	out, err = execute(t, "x = [1, 2]\n", "validate", "--lang", "py")
	require.NoError(t, err)
	assert.Contains(t, out, "valid python")

	_, err = execute(t, "x", "validate")
	assert.ErrorContains(t, err, "--lang")
}

func TestResumePath(t *testing.T) {
	assert.Equal(t, filepath.Join("models", "last.ckpt"), resumePath("models", "last.ckpt"))
	assert.Equal(t, filepath.Join("other", "x.ckpt"), resumePath("models", filepath.Join("other", "x.ckpt")))
}

func TestParseKindFlagDefault(t *testing.T) {
	kind, err := ckpt.ParseKind(newExportCmd().Flags().Lookup("type").DefValue)
	require.NoError(t, err)
	assert.Equal(t, ckpt.KindF16, kind)
}
