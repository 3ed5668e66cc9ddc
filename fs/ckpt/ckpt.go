// Package ckpt - Binaeres Checkpoint-Container-Format
//
// Aufbau einer Datei:
//
//	magic "CTCK" | container version uint32 | tensor count uint64 | kv count uint64
//	kv paare (sortiert, typisiert) | tensor infos | padding | tensor daten
//
// Enthaelt:
// - KV: Typisierte Metadaten mit Accessor-Funktionen
// - Tensor: Benannter Tensor mit Shape, Kind und Werten
// - File: Gelesener Container
// - VersionError: Inkompatible Format-Version
//
// Hauptfunktionen:
// - Write / WriteFile: Container schreiben (atomar ueber Temp-Datei)
// - Read / Decode: Container lesen und Versionen pruefen
package ckpt

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"golang.org/x/mod/semver"
)

// Magic ist die Dateikennung am Anfang jedes Containers
const Magic = "CTCK"

// ContainerVersion ist die Version des Binaer-Layouts
const ContainerVersion uint32 = 1

// FormatVersion ist die Version des Inhalts (Keys und Tensor-Namen).
// Dateien mit anderer Major-Version werden abgelehnt.
const FormatVersion = "v1.0.0"

const (
	keyFormatVersion = "general.format_version"
	keyAlignment     = "general.alignment"
	defaultAlignment = 32
)

// ErrUnsupported wird zurueckgegeben wenn die Datei kein Container ist
var ErrUnsupported = errors.New("unsupported checkpoint file")

// VersionError meldet eine inkompatible Container- oder Format-Version
type VersionError struct {
	Found string
	Want  string
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("checkpoint format %s is incompatible with %s", e.Found, e.Want)
}

// checkFormatVersion prueft ob die Major-Version zur aktuellen passt
func checkFormatVersion(v string) error {
	if !semver.IsValid(v) {
		return &VersionError{Found: fmt.Sprintf("%q", v), Want: FormatVersion}
	}
	if semver.Major(v) != semver.Major(FormatVersion) {
		return &VersionError{Found: v, Want: FormatVersion}
	}
	return nil
}

// =============================================================================
// KV
// =============================================================================

// KV haelt die Metadaten eines Containers
type KV map[string]any

// Keys gibt die Schluessel sortiert zurueck
func (kv KV) Keys() []string {
	return slices.Sorted(maps.Keys(kv))
}

// Len gibt die Anzahl der Eintraege zurueck
func (kv KV) Len() int {
	return len(kv)
}

// FormatVersion gibt die gespeicherte Format-Version zurueck
func (kv KV) FormatVersion() string {
	return kv.String(keyFormatVersion)
}

// String gibt einen String-Wert oder den Default zurueck
func (kv KV) String(key string, defaultValue ...string) string {
	if v, ok := kv[key].(string); ok {
		return v
	}
	return first(defaultValue)
}

// Uint gibt einen vorzeichenlosen Wert zurueck, uint32 und uint64 werden akzeptiert
func (kv KV) Uint(key string, defaultValue ...uint64) uint64 {
	switch v := kv[key].(type) {
	case uint32:
		return uint64(v)
	case uint64:
		return v
	}
	return first(defaultValue)
}

// Int gibt einen vorzeichenbehafteten Wert zurueck
func (kv KV) Int(key string, defaultValue ...int64) int64 {
	switch v := kv[key].(type) {
	case int32:
		return int64(v)
	case int64:
		return v
	}
	return first(defaultValue)
}

// Float gibt einen Gleitkomma-Wert zurueck, float32 wird erweitert
func (kv KV) Float(key string, defaultValue ...float64) float64 {
	switch v := kv[key].(type) {
	case float32:
		return float64(v)
	case float64:
		return v
	}
	return first(defaultValue)
}

// Bool gibt einen Bool-Wert zurueck
func (kv KV) Bool(key string, defaultValue ...bool) bool {
	if v, ok := kv[key].(bool); ok {
		return v
	}
	return first(defaultValue)
}

// Strings gibt ein String-Array zurueck
func (kv KV) Strings(key string) []string {
	v, _ := kv[key].([]string)
	return v
}

// Ints gibt ein int32-Array zurueck
func (kv KV) Ints(key string) []int32 {
	v, _ := kv[key].([]int32)
	return v
}

// Floats gibt ein float64-Array zurueck
func (kv KV) Floats(key string) []float64 {
	v, _ := kv[key].([]float64)
	return v
}

func first[T any](s []T) T {
	var zero T
	if len(s) > 0 {
		return s[0]
	}
	return zero
}

// =============================================================================
// File
// =============================================================================

// File ist ein gelesener Container
type File struct {
	Version uint32
	KV      KV
	Tensors []*Tensor
}

// Tensor sucht einen Tensor nach Namen, nil wenn nicht vorhanden
func (f *File) Tensor(name string) *Tensor {
	for _, t := range f.Tensors {
		if t.Name == name {
			return t
		}
	}
	return nil
}
