// runs.go - Trainingslaeufe, Epochen und Checkpoints
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"
)

// Run ist ein Trainingslauf
type Run struct {
	ID         string    `json:"id"`
	Status     string    `json:"status"`
	Config     string    `json:"config"`
	Pairs      string    `json:"pairs"`
	Examples   int       `json:"examples"`
	BestLoss   float64   `json:"best_loss"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

// Epoch sind die Metriken einer abgeschlossenen Epoche
type Epoch struct {
	RunID     string        `json:"run_id"`
	Epoch     int           `json:"epoch"`
	Step      int           `json:"step"`
	TrainLoss float64       `json:"train_loss"`
	ValLoss   float64       `json:"val_loss"`
	LR        float64       `json:"lr"`
	Improved  bool          `json:"improved"`
	Duration  time.Duration `json:"duration"`
	CreatedAt time.Time     `json:"created_at"`
}

// Checkpoint ist eine geschriebene Checkpoint-Datei
type Checkpoint struct {
	RunID     string    `json:"run_id"`
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	Digest    string    `json:"digest"`
	Step      int       `json:"step"`
	ValLoss   float64   `json:"val_loss"`
	CreatedAt time.Time `json:"created_at"`
}

// nullFloat speichert +Inf und NaN als NULL
func nullFloat(f float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: f, Valid: !math.IsInf(f, 0) && !math.IsNaN(f)}
}

func floatOrInf(f sql.NullFloat64) float64 {
	if !f.Valid {
		return math.Inf(1)
	}
	return f.Float64
}

// CreateRun legt einen Lauf an, StartedAt wird bei Zero-Value gesetzt
func (s *Store) CreateRun(ctx context.Context, r Run) error {
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now().UTC()
	}
	if r.Config == "" {
		r.Config = "{}"
	}

	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO runs (id, status, config, pairs, examples, best_loss, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status = excluded.status, finished_at = NULL, error = ''
	`, r.ID, r.Status, r.Config, r.Pairs, r.Examples, nullFloat(r.BestLoss), r.StartedAt)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// FinishRun setzt den Endstatus eines Laufs
func (s *Store) FinishRun(ctx context.Context, id, status string, bestLoss float64, runErr error) error {
	var msg string
	if runErr != nil {
		msg = runErr.Error()
	}

	res, err := s.conn.ExecContext(ctx, `
		UPDATE runs SET status = ?, best_loss = ?, error = ?, finished_at = ?
		WHERE id = ?
	`, status, nullFloat(bestLoss), msg, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return nil
}

const runColumns = `id, status, config, pairs, examples, best_loss, error, started_at, finished_at`

func scanRun(row interface{ Scan(...any) error }) (Run, error) {
	var r Run
	var best sql.NullFloat64
	var finished sql.NullTime
	if err := row.Scan(&r.ID, &r.Status, &r.Config, &r.Pairs, &r.Examples, &best, &r.Error, &r.StartedAt, &finished); err != nil {
		return Run{}, err
	}
	r.BestLoss = floatOrInf(best)
	if finished.Valid {
		r.FinishedAt = finished.Time
	}
	return r, nil
}

// Run gibt einen Lauf per ID zurueck
func (s *Store) Run(ctx context.Context, id string) (*Run, error) {
	r, err := scanRun(s.conn.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	} else if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}
	return &r, nil
}

// Runs gibt die letzten limit Laeufe zurueck, neueste zuerst (limit <= 0: alle)
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.conn.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// AddEpoch speichert die Metriken einer Epoche (ersetzt bei Resume)
func (s *Store) AddEpoch(ctx context.Context, e Epoch) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	_, err := s.conn.ExecContext(ctx, `
		INSERT OR REPLACE INTO epochs (run_id, epoch, step, train_loss, val_loss, lr, improved, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.RunID, e.Epoch, e.Step, e.TrainLoss, e.ValLoss, e.LR, e.Improved, e.Duration.Milliseconds(), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert epoch: %w", err)
	}
	return nil
}

// Epochs gibt die Epochen eines Laufs aufsteigend zurueck
func (s *Store) Epochs(ctx context.Context, runID string) ([]Epoch, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT run_id, epoch, step, train_loss, val_loss, lr, improved, duration_ms, created_at
		FROM epochs WHERE run_id = ? ORDER BY epoch
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query epochs: %w", err)
	}
	defer rows.Close()

	var epochs []Epoch
	for rows.Next() {
		var e Epoch
		var ms int64
		if err := rows.Scan(&e.RunID, &e.Epoch, &e.Step, &e.TrainLoss, &e.ValLoss, &e.LR, &e.Improved, &ms, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan epoch: %w", err)
		}
		e.Duration = time.Duration(ms) * time.Millisecond
		epochs = append(epochs, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate epochs: %w", err)
	}
	return epochs, nil
}

// AddCheckpoint speichert eine Checkpoint-Datei, gleiche Namen werden ersetzt
func (s *Store) AddCheckpoint(ctx context.Context, c Checkpoint) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	_, err := s.conn.ExecContext(ctx, `
		INSERT OR REPLACE INTO checkpoints (run_id, name, path, digest, step, val_loss, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, c.RunID, c.Name, c.Path, c.Digest, c.Step, nullFloat(c.ValLoss), c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert checkpoint: %w", err)
	}
	return nil
}

// Checkpoints gibt die Checkpoints eines Laufs nach Name sortiert zurueck
func (s *Store) Checkpoints(ctx context.Context, runID string) ([]Checkpoint, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT run_id, name, path, digest, step, val_loss, created_at
		FROM checkpoints WHERE run_id = ? ORDER BY name
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query checkpoints: %w", err)
	}
	defer rows.Close()

	var out []Checkpoint
	for rows.Next() {
		var c Checkpoint
		var loss sql.NullFloat64
		if err := rows.Scan(&c.RunID, &c.Name, &c.Path, &c.Digest, &c.Step, &loss, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		c.ValLoss = floatOrInf(loss)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checkpoints: %w", err)
	}
	return out, nil
}
