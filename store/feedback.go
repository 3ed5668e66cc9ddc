// feedback.go - Benutzer-Korrekturen fuer spaeteres Training
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Feedback ist eine korrigierte Uebersetzung
type Feedback struct {
	ID          string    `json:"id"`
	SourceLang  string    `json:"source_lang"`
	TargetLang  string    `json:"target_lang"`
	Source      string    `json:"source"`
	Translation string    `json:"translation,omitempty"`
	Correction  string    `json:"correction"`
	Rating      int       `json:"rating,omitempty"`
	Used        bool      `json:"used"`
	CreatedAt   time.Time `json:"created_at"`
}

// AddFeedback speichert f und gibt die neue ID zurueck
func (s *Store) AddFeedback(ctx context.Context, f Feedback) (string, error) {
	if strings.TrimSpace(f.Source) == "" || strings.TrimSpace(f.Correction) == "" {
		return "", fmt.Errorf("feedback: source and correction are required")
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}

	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO feedback (id, source_lang, target_lang, source, translation, correction, rating, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, id.String(), f.SourceLang, f.TargetLang, f.Source, f.Translation, f.Correction, f.Rating, f.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("insert feedback: %w", err)
	}
	return id.String(), nil
}

// Feedback gibt gespeicherte Korrekturen in Einfuege-Reihenfolge zurueck
func (s *Store) Feedback(ctx context.Context, unusedOnly bool) ([]Feedback, error) {
	query := `
		SELECT id, source_lang, target_lang, source, translation, correction, rating, used, created_at
		FROM feedback
	`
	if unusedOnly {
		query += ` WHERE used = 0`
	}
	// UUIDv7 ist zeitlich sortierbar
	query += ` ORDER BY id`

	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query feedback: %w", err)
	}
	defer rows.Close()

	var out []Feedback
	for rows.Next() {
		var f Feedback
		if err := rows.Scan(&f.ID, &f.SourceLang, &f.TargetLang, &f.Source, &f.Translation, &f.Correction, &f.Rating, &f.Used, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan feedback: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate feedback: %w", err)
	}
	return out, nil
}

// MarkFeedbackUsed markiert Korrekturen als in ein Training uebernommen
func (s *Store) MarkFeedbackUsed(ctx context.Context, ids []string) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `UPDATE feedback SET used = 1 WHERE id = ?`, id); err != nil {
			return fmt.Errorf("mark feedback %s: %w", id, err)
		}
	}
	return tx.Commit()
}
