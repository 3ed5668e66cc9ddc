// tensor.go - Tensor-Typen und Kodierung der Tensor-Daten
//
// Training speichert F64, fuer Export koennen F32, F16 und BF16
// geschrieben werden. Beim Lesen werden alle Typen zu float64 erweitert.
package ckpt

import (
	"encoding/binary"
	"fmt"
	"io"
	"math/bits"
	"strings"

	"github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"
)

// Kind ist der Speichertyp eines Tensors
type Kind uint32

const (
	KindF32 Kind = iota
	KindF16
	KindBF16
	KindF64
)

// String gibt den Namen des Typs zurueck
func (k Kind) String() string {
	switch k {
	case KindF32:
		return "F32"
	case KindF16:
		return "F16"
	case KindBF16:
		return "BF16"
	case KindF64:
		return "F64"
	default:
		return "unknown"
	}
}

// ParseKind parst einen Typ-Namen (case-insensitive)
func ParseKind(s string) (Kind, error) {
	switch strings.ToUpper(s) {
	case "F32", "FP32":
		return KindF32, nil
	case "F16", "FP16":
		return KindF16, nil
	case "BF16":
		return KindBF16, nil
	case "F64", "FP64", "":
		return KindF64, nil
	default:
		return 0, fmt.Errorf("unsupported tensor kind %q", s)
	}
}

// typeSize gibt die Bytes pro Element zurueck
func (k Kind) typeSize() uint64 {
	switch k {
	case KindF16, KindBF16:
		return 2
	case KindF32:
		return 4
	case KindF64:
		return 8
	default:
		return 0
	}
}

// Tensor ist ein benannter, dichter Tensor
type Tensor struct {
	Name   string
	Kind   Kind
	Shape  []uint64
	Offset uint64

	// Values haelt die Elemente in Zeilen-Reihenfolge
	Values []float64
}

// Elements gibt die Anzahl der Elemente laut Shape zurueck
func (t *Tensor) Elements() uint64 {
	var count uint64 = 1
	for _, n := range t.Shape {
		count *= n
	}
	return count
}

// checkedSize gibt die Groesse in Bytes zurueck, false bei Ueberlauf
func (t *Tensor) checkedSize() (uint64, bool) {
	n := t.Kind.typeSize()
	for _, d := range t.Shape {
		hi, lo := bits.Mul64(n, d)
		if hi != 0 {
			return 0, false
		}
		n = lo
	}
	return n, true
}

// Size gibt die Groesse der Tensor-Daten in Bytes zurueck
func (t *Tensor) Size() uint64 {
	return t.Elements() * t.Kind.typeSize()
}

// WriteTo schreibt die Tensor-Daten im gespeicherten Typ
func (t *Tensor) WriteTo(w io.Writer) (int64, error) {
	if uint64(len(t.Values)) != t.Elements() {
		return 0, fmt.Errorf("tensor %s: %d values for shape %v", t.Name, len(t.Values), t.Shape)
	}

	var data any
	switch t.Kind {
	case KindF64:
		data = t.Values
	case KindF32:
		data = toFloat32(t.Values)
	case KindF16:
		u16s := make([]uint16, len(t.Values))
		for i, v := range t.Values {
			u16s[i] = float16.Fromfloat32(float32(v)).Bits()
		}
		data = u16s
	case KindBF16:
		b := bfloat16.EncodeFloat32(toFloat32(t.Values))
		n, err := w.Write(b)
		return int64(n), err
	default:
		return 0, fmt.Errorf("tensor %s: unsupported kind %d", t.Name, t.Kind)
	}

	if err := binary.Write(w, binary.LittleEndian, data); err != nil {
		return 0, err
	}
	return int64(t.Size()), nil
}

// readData liest die Tensor-Daten und erweitert sie zu float64
func (t *Tensor) readData(r io.Reader) error {
	n := t.Elements()
	values := make([]float64, n)

	switch t.Kind {
	case KindF64:
		if err := binary.Read(r, binary.LittleEndian, values); err != nil {
			return err
		}
	case KindF32:
		f32s := make([]float32, n)
		if err := binary.Read(r, binary.LittleEndian, f32s); err != nil {
			return err
		}
		for i, v := range f32s {
			values[i] = float64(v)
		}
	case KindF16:
		u16s := make([]uint16, n)
		if err := binary.Read(r, binary.LittleEndian, u16s); err != nil {
			return err
		}
		for i, v := range u16s {
			values[i] = float64(float16.Frombits(v).Float32())
		}
	case KindBF16:
		b := make([]byte, t.Size())
		if _, err := io.ReadFull(r, b); err != nil {
			return err
		}
		for i, v := range bfloat16.DecodeFloat32(b) {
			values[i] = float64(v)
		}
	default:
		return fmt.Errorf("tensor %s: unsupported kind %d", t.Name, t.Kind)
	}

	t.Values = values
	return nil
}

func toFloat32(values []float64) []float32 {
	f32s := make([]float32, len(values))
	for i, v := range values {
		f32s[i] = float32(v)
	}
	return f32s
}
