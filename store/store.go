// Package store - SQLite-Speicher fuer Trainingslaeufe und Feedback
//
// Enthaelt:
// - runs: ein Eintrag pro Trainingslauf mit Status und bestem Loss
// - epochs: Metriken pro Epoche
// - checkpoints: geschriebene Checkpoint-Dateien mit Digest
// - feedback: Korrekturen von Benutzern, spaeter in Trainingsdaten gemischt
//
// SQLite verwaltet das Locking selbst, WAL erlaubt Leser parallel zum Schreiber.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3" // SQLite-Treiber registrieren
)

// currentSchemaVersion wird bei Schema-Aenderungen erhoeht
const currentSchemaVersion = 2

// ErrNotFound wird fuer unbekannte IDs geliefert
var ErrNotFound = errors.New("store: not found")

// Store umhuellt die SQLite-Verbindung
type Store struct {
	conn *sql.DB
}

// Open oeffnet (oder erstellt) die Datenbank unter path
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	conn, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if path == ":memory:" {
		// jede Verbindung haette sonst ihre eigene Datenbank
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{conn: conn}
	if err := s.init(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	return s, nil
}

// Close schliesst die Datenbankverbindung
func (s *Store) Close() error {
	_, _ = s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE);")
	return s.conn.Close()
}

func (s *Store) init() error {
	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS meta (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		schema_version INTEGER NOT NULL DEFAULT %d
	);

	INSERT OR IGNORE INTO meta (id) VALUES (1);

	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		config TEXT NOT NULL DEFAULT '{}',
		pairs TEXT NOT NULL DEFAULT '',
		examples INTEGER NOT NULL DEFAULT 0,
		best_loss REAL,
		error TEXT NOT NULL DEFAULT '',
		started_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		finished_at TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS epochs (
		run_id TEXT NOT NULL,
		epoch INTEGER NOT NULL,
		step INTEGER NOT NULL,
		train_loss REAL NOT NULL,
		val_loss REAL NOT NULL,
		lr REAL NOT NULL,
		improved BOOLEAN NOT NULL DEFAULT 0,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (run_id, epoch),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS checkpoints (
		run_id TEXT NOT NULL,
		name TEXT NOT NULL,
		path TEXT NOT NULL,
		digest TEXT NOT NULL,
		step INTEGER NOT NULL,
		val_loss REAL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (run_id, name),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS feedback (
		id TEXT PRIMARY KEY,
		source_lang TEXT NOT NULL,
		target_lang TEXT NOT NULL,
		source TEXT NOT NULL,
		translation TEXT NOT NULL DEFAULT '',
		correction TEXT NOT NULL,
		rating INTEGER NOT NULL DEFAULT 0,
		used BOOLEAN NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_feedback_used ON feedback(used);
	`, currentSchemaVersion)

	if _, err := s.conn.Exec(schema); err != nil {
		return err
	}

	if err := s.migrate(); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// migrate bringt aeltere Datenbanken auf currentSchemaVersion
func (s *Store) migrate() error {
	var version int
	if err := s.conn.QueryRow("SELECT schema_version FROM meta").Scan(&version); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	for version < currentSchemaVersion {
		switch version {
		case 1:
			// rating Spalte zur feedback Tabelle hinzufuegen
			if err := s.migrateV1ToV2(); err != nil {
				return fmt.Errorf("migrate v1 to v2: %w", err)
			}
			version = 2
		default:
			return fmt.Errorf("unknown schema version %d", version)
		}
	}

	if version > currentSchemaVersion {
		return fmt.Errorf("schema version %d is newer than supported %d", version, currentSchemaVersion)
	}
	return nil
}

func (s *Store) migrateV1ToV2() error {
	var count int
	err := s.conn.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('feedback') WHERE name = 'rating'`).Scan(&count)
	if err != nil {
		return err
	}
	if count == 0 {
		if _, err := s.conn.Exec(`ALTER TABLE feedback ADD COLUMN rating INTEGER NOT NULL DEFAULT 0`); err != nil {
			return err
		}
	}
	_, err = s.conn.Exec(`UPDATE meta SET schema_version = 2`)
	return err
}
