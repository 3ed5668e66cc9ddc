// Package format - menschenlesbare Ausgabe von Groessen, Zahlen und Zeiten
//
// Hauptfunktionen:
// - HumanBytes: 1536 -> "1.5 KB"
// - HumanNumber: 1200000 -> "1.2M"
// - HumanTime: Zeitpunkt relativ zu jetzt ("3 minutes ago")
// - HumanDuration: kompakte Dauer ("1h2m", "850ms")
package format

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

const (
	Byte = 1

	KiloByte = Byte * 1000
	MegaByte = KiloByte * 1000
	GigaByte = MegaByte * 1000
	TeraByte = GigaByte * 1000
)

// HumanBytes formatiert eine Byte-Anzahl mit SI-Einheiten
func HumanBytes(b int64) string {
	var value float64
	var unit string

	switch {
	case b >= TeraByte:
		value, unit = float64(b)/TeraByte, "TB"
	case b >= GigaByte:
		value, unit = float64(b)/GigaByte, "GB"
	case b >= MegaByte:
		value, unit = float64(b)/MegaByte, "MB"
	case b >= KiloByte:
		value, unit = float64(b)/KiloByte, "KB"
	default:
		return fmt.Sprintf("%d B", b)
	}

	switch {
	case value >= 100:
		return fmt.Sprintf("%d %s", int(value), unit)
	case value >= 10 || value == math.Trunc(value):
		return fmt.Sprintf("%d %s", int(value), unit)
	default:
		return fmt.Sprintf("%.1f %s", value, unit)
	}
}

// HumanNumber formatiert grosse Zahlen mit K/M/B-Suffix
func HumanNumber(b uint64) string {
	const (
		thousand = 1000
		million  = thousand * 1000
		billion  = million * 1000
	)

	switch {
	case b >= billion:
		return trimFloat(float64(b)/billion) + "B"
	case b >= million:
		return trimFloat(float64(b)/million) + "M"
	case b >= thousand:
		return trimFloat(float64(b)/thousand) + "K"
	default:
		return strconv.FormatUint(b, 10)
	}
}

func trimFloat(f float64) string {
	if f >= 100 {
		return strconv.FormatFloat(math.Round(f), 'f', 0, 64)
	}
	return strconv.FormatFloat(math.Round(f*10)/10, 'f', -1, 64)
}

// HumanTime gibt t relativ zur aktuellen Zeit aus
// zeroValue wird fuer den Null-Zeitpunkt verwendet
func HumanTime(t time.Time, zeroValue string) string {
	if t.IsZero() {
		return zeroValue
	}

	d := time.Since(t)
	suffix := "ago"
	if d < 0 {
		d, suffix = -d, "from now"
	}

	switch {
	case d < time.Second:
		return "Less than a second " + suffix
	case d < time.Minute:
		return plural(int(d/time.Second), "second") + " " + suffix
	case d < time.Hour:
		return plural(int(d/time.Minute), "minute") + " " + suffix
	case d < 24*time.Hour:
		return plural(int(d/time.Hour), "hour") + " " + suffix
	case d < 30*24*time.Hour:
		return plural(int(d/(24*time.Hour)), "day") + " " + suffix
	default:
		return t.Format("2006-01-02")
	}
}

// HumanDuration formatiert eine Dauer ohne Nachkommastellen-Rauschen
func HumanDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	case d < time.Minute:
		return d.Round(100 * time.Millisecond).String()
	default:
		return d.Round(time.Second).String()
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
