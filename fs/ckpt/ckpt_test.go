package ckpt

import (
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func testTensors() []*Tensor {
	return []*Tensor{
		{Name: "out.w", Kind: KindF64, Shape: []uint64{2, 3}, Values: []float64{1, -2, 3.5, 0, 1e-9, -7}},
		{Name: "embed", Kind: KindF64, Shape: []uint64{3}, Values: []float64{0.25, 0.5, 0.75}},
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "best.ckpt")

	kv := KV{
		"general.name":   "codetrans",
		"model.hidden":   uint32(16),
		"train.step":     uint64(42),
		"train.loss":     1.25,
		"train.lr":       float32(0.5),
		"train.done":     true,
		"vocab.tokens":   []string{"<pad>", "<bos>", "def"},
		"train.pairs":    []int32{1, 2},
		"optim.m":        []float64{0.1, 0.2},
		"train.run_seed": int64(-3),
	}
	if err := WriteFile(path, kv, testTensors()); err != nil {
		t.Fatal(err)
	}

	f, err := Read(path)
	if err != nil {
		t.Fatal(err)
	}

	if f.Version != ContainerVersion {
		t.Errorf("Version = %d", f.Version)
	}
	if got := f.KV.FormatVersion(); got != FormatVersion {
		t.Errorf("format version = %q, erwartet %q", got, FormatVersion)
	}
	if got := f.KV.String("general.name"); got != "codetrans" {
		t.Errorf("name = %q", got)
	}
	if got := f.KV.Uint("model.hidden"); got != 16 {
		t.Errorf("hidden = %d", got)
	}
	if got := f.KV.Uint("train.step"); got != 42 {
		t.Errorf("step = %d", got)
	}
	if got := f.KV.Float("train.loss"); got != 1.25 {
		t.Errorf("loss = %v", got)
	}
	if got := f.KV.Float("train.lr"); got != 0.5 {
		t.Errorf("lr = %v", got)
	}
	if !f.KV.Bool("train.done") {
		t.Error("done = false")
	}
	if got := f.KV.Int("train.run_seed"); got != -3 {
		t.Errorf("seed = %d", got)
	}
	if diff := cmp.Diff([]string{"<pad>", "<bos>", "def"}, f.KV.Strings("vocab.tokens")); diff != "" {
		t.Errorf("tokens (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int32{1, 2}, f.KV.Ints("train.pairs")); diff != "" {
		t.Errorf("pairs (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{0.1, 0.2}, f.KV.Floats("optim.m")); diff != "" {
		t.Errorf("moments (-want +got):\n%s", diff)
	}

	// Tensors sind nach Namen sortiert
	if len(f.Tensors) != 2 || f.Tensors[0].Name != "embed" {
		t.Fatalf("tensors = %v", f.Tensors)
	}
	for _, want := range testTensors() {
		got := f.Tensor(want.Name)
		if got == nil {
			t.Fatalf("tensor %s fehlt", want.Name)
		}
		if diff := cmp.Diff(want.Shape, got.Shape); diff != "" {
			t.Errorf("%s shape (-want +got):\n%s", want.Name, diff)
		}
		if diff := cmp.Diff(want.Values, got.Values); diff != "" {
			t.Errorf("%s values (-want +got):\n%s", want.Name, diff)
		}
	}
	if f.Tensor("missing") != nil {
		t.Error("unbekannter Tensor sollte nil sein")
	}
}

func TestDefaults(t *testing.T) {
	kv := KV{}
	if kv.String("x", "d") != "d" || kv.Uint("x", 7) != 7 || kv.Float("x", 0.5) != 0.5 || !kv.Bool("x", true) {
		t.Error("Defaults werden nicht zurueckgegeben")
	}
	if kv.String("x") != "" || kv.Uint("x") != 0 {
		t.Error("Zero-Values erwartet")
	}
}

func TestHalfPrecisionKinds(t *testing.T) {
	values := []float64{1, -0.5, 0.25, 3}

	cases := []struct {
		kind Kind
		tol  float64
	}{
		{KindF64, 0},
		{KindF32, 0},
		{KindF16, 1e-3},
		{KindBF16, 1e-2},
	}

	for _, tt := range cases {
		t.Run(tt.kind.String(), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "export.ckpt")
			ts := []*Tensor{{Name: "w", Kind: tt.kind, Shape: []uint64{2, 2}, Values: values}}
			if err := WriteFile(path, KV{}, ts); err != nil {
				t.Fatal(err)
			}

			f, err := Read(path)
			if err != nil {
				t.Fatal(err)
			}
			got := f.Tensor("w")
			if got.Kind != tt.kind {
				t.Errorf("kind = %s", got.Kind)
			}
			for i, v := range values {
				if math.Abs(got.Values[i]-v) > tt.tol {
					t.Errorf("value[%d] = %v, erwartet %v", i, got.Values[i], v)
				}
			}
		})
	}
}

func TestParseKind(t *testing.T) {
	for s, want := range map[string]Kind{"f32": KindF32, "FP16": KindF16, "bf16": KindBF16, "": KindF64} {
		got, err := ParseKind(s)
		if err != nil || got != want {
			t.Errorf("ParseKind(%q) = %v, %v", s, got, err)
		}
	}
	if _, err := ParseKind("q4_0"); err == nil {
		t.Error("Fehler fuer unbekannten Typ erwartet")
	}
}

func TestFormatVersionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.ckpt")
	if err := WriteFile(path, KV{"general.format_version": "v2.1.0"}, testTensors()); err != nil {
		t.Fatal(err)
	}

	_, err := Read(path)
	var verr *VersionError
	if !errors.As(err, &verr) {
		t.Fatalf("VersionError erwartet, bekommen %v", err)
	}
	if verr.Found != "v2.1.0" || verr.Want != FormatVersion {
		t.Errorf("VersionError = %+v", verr)
	}

	// Minor-Versionen sind kompatibel
	if err := WriteFile(path, KV{"general.format_version": "v1.7.2"}, testTensors()); err != nil {
		t.Fatal(err)
	}
	if _, err := Read(path); err != nil {
		t.Errorf("minor version sollte lesbar sein: %v", err)
	}
}

func TestInvalidFormatVersionRejectedOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.ckpt")
	if err := WriteFile(path, KV{"general.format_version": "1.0"}, nil); err == nil {
		t.Fatal("Fehler erwartet")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("bei Fehler darf keine Datei entstehen")
	}
}

func TestNotAContainer(t *testing.T) {
	dir := t.TempDir()

	garbage := filepath.Join(dir, "garbage.ckpt")
	if err := os.WriteFile(garbage, []byte("GGUF\x03\x00\x00\x00"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Read(garbage); !errors.Is(err, ErrUnsupported) {
		t.Errorf("ErrUnsupported erwartet, bekommen %v", err)
	}

	empty := filepath.Join(dir, "empty.ckpt")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Read(empty); !errors.Is(err, ErrUnsupported) {
		t.Errorf("ErrUnsupported erwartet, bekommen %v", err)
	}
}

func TestContainerVersionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "future.ckpt")
	if err := WriteFile(path, KV{}, nil); err != nil {
		t.Fatal(err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	b[4] = 9
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatal(err)
	}

	var verr *VersionError
	if _, err := Read(path); !errors.As(err, &verr) {
		t.Fatalf("VersionError erwartet, bekommen %v", err)
	}
}

func TestShapeMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.ckpt")
	ts := []*Tensor{{Name: "w", Kind: KindF64, Shape: []uint64{3}, Values: []float64{1}}}
	if err := WriteFile(path, KV{}, ts); err == nil {
		t.Fatal("Fehler erwartet")
	}
}

// writeRaw schreibt einen Container ohne die Pruefungen von Write
func writeRaw(t *testing.T, path string, kv KV, ts []*Tensor, data []byte) {
	t.Helper()

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	for _, v := range []any{[]byte(Magic), ContainerVersion, uint64(len(ts)), uint64(kv.Len())} {
		if err := binary.Write(f, binary.LittleEndian, v); err != nil {
			t.Fatal(err)
		}
	}
	for _, k := range kv.Keys() {
		if err := writeKV(f, k, kv[k]); err != nil {
			t.Fatal(err)
		}
	}
	for _, tt := range ts {
		if err := writeTensorInfo(f, tt); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := f.Write(data); err != nil {
		t.Fatal(err)
	}
}

func TestCorruptContainer(t *testing.T) {
	version := KV{"general.format_version": FormatVersion}
	data := make([]byte, 64)

	cases := []struct {
		name string
		kv   KV
		ts   []*Tensor
	}{
		{"shape overflows size", version, []*Tensor{{Name: "w", Kind: KindF64, Shape: []uint64{1 << 61}}}},
		{"shape product overflows", version, []*Tensor{{Name: "w", Kind: KindF32, Shape: []uint64{1 << 32, 1 << 32}}}},
		{"shape exceeds file", version, []*Tensor{{Name: "w", Kind: KindF64, Shape: []uint64{1 << 40}}}},
		{"offset exceeds file", version, []*Tensor{{Name: "w", Kind: KindF64, Shape: []uint64{2}, Offset: 1 << 20}}},
		{"too many dims", version, []*Tensor{{Name: "w", Kind: KindF64, Shape: make([]uint64, 1000)}}},
		{"zero alignment", KV{"general.format_version": FormatVersion, "general.alignment": uint32(0)}, []*Tensor{{Name: "w", Kind: KindF64, Shape: []uint64{2}}}},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "corrupt.ckpt")
			writeRaw(t, path, tt.kv, tt.ts, data)

			if _, err := Read(path); !errors.Is(err, ErrUnsupported) {
				t.Errorf("ErrUnsupported erwartet, bekommen %v", err)
			}
		})
	}
}

func TestTruncatedContainer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "truncated.ckpt")
	if err := WriteFile(path, KV{}, testTensors()); err != nil {
		t.Fatal(err)
	}

	fi, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Truncate(path, fi.Size()-32); err != nil {
		t.Fatal(err)
	}

	if _, err := Read(path); !errors.Is(err, ErrUnsupported) {
		t.Errorf("ErrUnsupported erwartet, bekommen %v", err)
	}
}

func TestWriteRejectsInvalidLayout(t *testing.T) {
	dir := t.TempDir()

	if err := WriteFile(filepath.Join(dir, "a.ckpt"), KV{"general.alignment": uint32(0)}, testTensors()); err == nil {
		t.Error("Fehler fuer alignment 0 erwartet")
	}

	ts := []*Tensor{{Name: "w", Kind: KindF64, Shape: []uint64{1 << 61}}}
	if err := WriteFile(filepath.Join(dir, "b.ckpt"), KV{}, ts); err == nil {
		t.Error("Fehler fuer ueberlaufende Shape erwartet")
	}
}
