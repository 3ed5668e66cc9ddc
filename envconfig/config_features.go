// config_features.go - Parallelitaet und Laufzeit-Flags
//
// Dieses Modul enthaelt:
// - NumParallel: maximale Anzahl gleichzeitiger Uebersetzungen
// - MaxQueue: maximale Anzahl wartender Requests
// - NoHistory: deaktiviert das Schreiben der Run-Historie
package envconfig

var (
	// NumParallel begrenzt gleichzeitig laufende Uebersetzungen pro Server
	NumParallel = Uint("CODETRANS_NUM_PARALLEL", 4)

	// MaxQueue begrenzt wartende Requests bevor 503 geliefert wird
	MaxQueue = Uint("CODETRANS_MAX_QUEUE", 64)

	// NoHistory deaktiviert die SQLite-Run-Historie beim Training
	NoHistory = Bool("CODETRANS_NOHISTORY")
)
