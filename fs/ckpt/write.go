// write.go - Schreiben von Checkpoint-Containern
package ckpt

import (
	"cmp"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"

	"golang.org/x/mod/semver"
	"golang.org/x/sync/errgroup"
)

// WriteFile schreibt einen Container atomar: erst in eine Temp-Datei im
// Zielverzeichnis, dann Rename. Eine bestehende Datei bleibt bei Fehlern erhalten.
func WriteFile(path string, kv KV, ts []*Tensor) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())

	if err := Write(f, kv, ts); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), path)
}

// Write schreibt einen Container mit KV-Paaren und Tensors. Fehlende
// general.format_version und general.alignment werden ergaenzt.
func Write(f *os.File, kv KV, ts []*Tensor) error {
	kv = cloneKV(kv)
	if _, ok := kv[keyFormatVersion]; !ok {
		kv[keyFormatVersion] = FormatVersion
	}
	if _, ok := kv[keyAlignment]; !ok {
		kv[keyAlignment] = uint32(defaultAlignment)
	}
	if v := kv.FormatVersion(); !semver.IsValid(v) {
		return fmt.Errorf("invalid format version %q", v)
	}

	// Magic + Version
	if err := binary.Write(f, binary.LittleEndian, []byte(Magic)); err != nil {
		return err
	}
	if err := binary.Write(f, binary.LittleEndian, ContainerVersion); err != nil {
		return err
	}

	// Counts
	if err := binary.Write(f, binary.LittleEndian, uint64(len(ts))); err != nil {
		return err
	}
	if err := binary.Write(f, binary.LittleEndian, uint64(kv.Len())); err != nil {
		return err
	}

	for _, key := range kv.Keys() {
		if err := writeKV(f, key, kv[key]); err != nil {
			return err
		}
	}

	slices.SortStableFunc(ts, func(a, b *Tensor) int {
		return cmp.Compare(a.Name, b.Name)
	})

	alignment := int64(kv.Uint(keyAlignment, defaultAlignment))
	if alignment <= 0 || alignment > maxAlignment {
		return fmt.Errorf("invalid alignment %d", alignment)
	}

	// Offsets berechnen und Tensor-Infos schreiben
	var s uint64
	for _, t := range ts {
		if _, ok := t.checkedSize(); !ok || len(t.Shape) > maxDims {
			return fmt.Errorf("tensor %s: invalid shape %v", t.Name, t.Shape)
		}
		t.Offset = s
		if err := writeTensorInfo(f, t); err != nil {
			return err
		}
		s += t.Size()
		s += uint64(padding(int64(s), alignment))
	}

	offset, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	offset += padding(offset, alignment)

	// Tensor-Daten parallel schreiben
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, t := range ts {
		w := io.NewOffsetWriter(f, offset+int64(t.Offset))
		g.Go(func() error {
			_, err := t.WriteTo(w)
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	// Datei bis zum Ende des letzten Paddings verlaengern
	return f.Truncate(offset + int64(s))
}

func cloneKV(kv KV) KV {
	out := make(KV, len(kv)+2)
	for k, v := range kv {
		out[k] = v
	}
	return out
}

// writeTyped schreibt einen Wert mit Typ-Prefix
func writeTyped[V any](w io.Writer, t uint32, v V) error {
	if err := binary.Write(w, binary.LittleEndian, t); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, v)
}

// writeString schreibt Laenge und Bytes eines Strings
func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint64(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

// writeArray schreibt ein Array mit Typ-Prefix
func writeArray[S ~[]E, E any](w io.Writer, t uint32, s S) error {
	if err := binary.Write(w, binary.LittleEndian, typeArray); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, t); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(len(s))); err != nil {
		return err
	}

	// Strings muessen einzeln geschrieben werden
	if t == typeString {
		for _, e := range any(s).([]string) {
			if err := writeString(w, e); err != nil {
				return err
			}
		}
		return nil
	}

	return binary.Write(w, binary.LittleEndian, s)
}

// writeKV schreibt ein Key-Value Paar
func writeKV(w io.Writer, k string, v any) error {
	slog.Debug(k, "type", fmt.Sprintf("%T", v))

	if err := writeString(w, k); err != nil {
		return err
	}

	switch v := v.(type) {
	case int32:
		return writeTyped(w, typeInt32, v)
	case int64:
		return writeTyped(w, typeInt64, v)
	case uint32:
		return writeTyped(w, typeUint32, v)
	case uint64:
		return writeTyped(w, typeUint64, v)
	case float32:
		return writeTyped(w, typeFloat32, v)
	case float64:
		return writeTyped(w, typeFloat64, v)
	case bool:
		return writeTyped(w, typeBool, v)
	case string:
		if err := binary.Write(w, binary.LittleEndian, typeString); err != nil {
			return err
		}
		return writeString(w, v)
	case []int32:
		return writeArray(w, typeInt32, v)
	case []int64:
		return writeArray(w, typeInt64, v)
	case []uint64:
		return writeArray(w, typeUint64, v)
	case []float64:
		return writeArray(w, typeFloat64, v)
	case []string:
		return writeArray(w, typeString, v)
	case []bool:
		return writeArray(w, typeBool, v)
	default:
		return fmt.Errorf("improper type %T for '%s'", v, k)
	}
}

// writeTensorInfo schreibt die Tensor-Metadaten
func writeTensorInfo(w io.Writer, t *Tensor) error {
	slog.Debug(t.Name, "kind", t.Kind, "shape", t.Shape, "offset", t.Offset)

	if err := writeString(w, t.Name); err != nil {
		return err
	}

	if err := binary.Write(w, binary.LittleEndian, uint32(len(t.Shape))); err != nil {
		return err
	}
	for _, n := range t.Shape {
		if err := binary.Write(w, binary.LittleEndian, n); err != nil {
			return err
		}
	}

	if err := binary.Write(w, binary.LittleEndian, t.Kind); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, t.Offset)
}

// padding berechnet das Padding fuer Alignment
func padding(offset, align int64) int64 {
	return (align - offset%align) % align
}
