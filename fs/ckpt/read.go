// read.go - Lesen von Checkpoint-Containern
package ckpt

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Typ-Konstanten fuer KV-Werte
const (
	typeUint8 uint32 = iota
	typeInt8
	typeUint16
	typeInt16
	typeUint32
	typeInt32
	typeFloat32
	typeBool
	typeString
	typeArray
	typeUint64
	typeInt64
	typeFloat64
)

const (
	// maxStringLength begrenzt Strings beim Lesen beschaedigter Dateien
	maxStringLength = 1 << 30
	maxDims         = 8
	maxAlignment    = 1 << 16
)

// Read oeffnet und liest einen Container vollstaendig
func Read(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return Decode(f, fi.Size())
}

// Decode liest Header, KV und Tensor-Infos sequentiell und danach die
// Tensor-Daten parallel ueber Section-Reader. size ist die Groesse des
// Containers in Bytes; Laengen und Offsets ausserhalb davon werden mit
// ErrUnsupported abgelehnt.
func Decode(ra io.ReaderAt, size int64) (*File, error) {
	f, err := decode(ra, size)
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	return f, err
}

func decode(ra io.ReaderAt, size int64) (*File, error) {
	cr := &countingReader{r: bufio.NewReader(io.NewSectionReader(ra, 0, size)), size: size}

	magic := make([]byte, len(Magic))
	if _, err := io.ReadFull(cr, magic); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrUnsupported
		}
		return nil, err
	}
	if string(magic) != Magic {
		return nil, fmt.Errorf("%w: magic %q", ErrUnsupported, magic)
	}

	file := File{KV: KV{}}
	if err := binary.Read(cr, binary.LittleEndian, &file.Version); err != nil {
		return nil, err
	}
	if file.Version != ContainerVersion {
		return nil, &VersionError{
			Found: fmt.Sprintf("container v%d", file.Version),
			Want:  fmt.Sprintf("container v%d", ContainerVersion),
		}
	}

	var numTensor, numKV uint64
	if err := binary.Read(cr, binary.LittleEndian, &numTensor); err != nil {
		return nil, err
	}
	if err := binary.Read(cr, binary.LittleEndian, &numKV); err != nil {
		return nil, err
	}

	for range numKV {
		k, err := readString(cr)
		if err != nil {
			return nil, err
		}
		v, err := readValue(cr)
		if err != nil {
			return nil, fmt.Errorf("key %s: %w", k, err)
		}
		file.KV[k] = v
	}

	if err := checkFormatVersion(file.KV.FormatVersion()); err != nil {
		return nil, err
	}

	alignment := file.KV.Uint(keyAlignment, defaultAlignment)
	if alignment == 0 || alignment > maxAlignment {
		return nil, fmt.Errorf("%w: alignment %d", ErrUnsupported, alignment)
	}

	for range numTensor {
		t, err := readTensorInfo(cr)
		if err != nil {
			return nil, err
		}
		file.Tensors = append(file.Tensors, t)
	}

	offset := cr.n + padding(cr.n, int64(alignment))

	// Alle Werte sind <= size < 2^63, die Summen laufen nicht ueber
	for _, t := range file.Tensors {
		n, ok := t.checkedSize()
		if !ok || n > uint64(size) || t.Offset > uint64(size) || uint64(offset)+t.Offset+n > uint64(size) {
			return nil, fmt.Errorf("%w: tensor %s with shape %v at offset %d exceeds file size %d",
				ErrUnsupported, t.Name, t.Shape, t.Offset, size)
		}
	}

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, t := range file.Tensors {
		r := io.NewSectionReader(ra, offset+int64(t.Offset), int64(t.Size()))
		g.Go(func() error {
			if err := t.readData(r); err != nil {
				return fmt.Errorf("tensor %s: %w", t.Name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &file, nil
}

// countingReader zaehlt gelesene Bytes fuer die Offset-Berechnung
type countingReader struct {
	r    io.Reader
	n    int64
	size int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// remaining gibt die noch ungelesenen Bytes des Containers zurueck
func (c *countingReader) remaining() uint64 {
	if c.n >= c.size {
		return 0
	}
	return uint64(c.size - c.n)
}

func readTyped[T any](r io.Reader) (T, error) {
	var t T
	err := binary.Read(r, binary.LittleEndian, &t)
	return t, err
}

func readString(r *countingReader) (string, error) {
	length, err := readTyped[uint64](r)
	if err != nil {
		return "", err
	}
	if length > maxStringLength || length > r.remaining() {
		return "", fmt.Errorf("%w: string length %d exceeds limit", ErrUnsupported, length)
	}

	b := make([]byte, length)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func readArray[T any](r *countingReader, n uint64) ([]T, error) {
	var zero T
	if n > r.remaining()/uint64(binary.Size(zero)) {
		return nil, fmt.Errorf("%w: array length %d exceeds file", ErrUnsupported, n)
	}

	s := make([]T, n)
	err := binary.Read(r, binary.LittleEndian, s)
	return s, err
}

// readValue liest einen typisierten KV-Wert
func readValue(r *countingReader) (any, error) {
	t, err := readTyped[uint32](r)
	if err != nil {
		return nil, err
	}

	switch t {
	case typeUint32:
		return readTyped[uint32](r)
	case typeInt32:
		return readTyped[int32](r)
	case typeUint64:
		return readTyped[uint64](r)
	case typeInt64:
		return readTyped[int64](r)
	case typeFloat32:
		return readTyped[float32](r)
	case typeFloat64:
		return readTyped[float64](r)
	case typeBool:
		return readTyped[bool](r)
	case typeString:
		return readString(r)
	case typeArray:
		return readArrayValue(r)
	default:
		return nil, fmt.Errorf("invalid type: %d", t)
	}
}

func readArrayValue(r *countingReader) (any, error) {
	t, err := readTyped[uint32](r)
	if err != nil {
		return nil, err
	}
	n, err := readTyped[uint64](r)
	if err != nil {
		return nil, err
	}
	if n > maxStringLength {
		return nil, fmt.Errorf("%w: array length %d exceeds limit", ErrUnsupported, n)
	}

	switch t {
	case typeInt32:
		return readArray[int32](r, n)
	case typeInt64:
		return readArray[int64](r, n)
	case typeUint64:
		return readArray[uint64](r, n)
	case typeFloat64:
		return readArray[float64](r, n)
	case typeBool:
		return readArray[bool](r, n)
	case typeString:
		// jeder String hat mindestens seinen Laengen-Prefix
		if n > r.remaining()/8 {
			return nil, fmt.Errorf("%w: array length %d exceeds file", ErrUnsupported, n)
		}
		s := make([]string, n)
		for i := range s {
			if s[i], err = readString(r); err != nil {
				return nil, err
			}
		}
		return s, nil
	default:
		return nil, fmt.Errorf("invalid array type: %d", t)
	}
}

func readTensorInfo(r *countingReader) (*Tensor, error) {
	name, err := readString(r)
	if err != nil {
		return nil, err
	}

	dims, err := readTyped[uint32](r)
	if err != nil {
		return nil, err
	}
	if dims > maxDims {
		return nil, fmt.Errorf("%w: tensor %s has %d dims", ErrUnsupported, name, dims)
	}
	shape, err := readArray[uint64](r, uint64(dims))
	if err != nil {
		return nil, err
	}

	kind, err := readTyped[Kind](r)
	if err != nil {
		return nil, err
	}
	if kind.typeSize() == 0 {
		return nil, fmt.Errorf("tensor %s: unsupported kind %d", name, kind)
	}

	offset, err := readTyped[uint64](r)
	if err != nil {
		return nil, err
	}

	return &Tensor{Name: name, Kind: kind, Shape: shape, Offset: offset}, nil
}
