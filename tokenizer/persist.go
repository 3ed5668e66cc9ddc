// persist.go - Vokabular als JSON speichern und laden
package tokenizer

import (
	"encoding/json"
	"fmt"
	"os"
)

type vocabularyFile struct {
	ID      string   `json:"id"`
	Version uint32   `json:"version"`
	Tokens  []string `json:"tokens"`
}

func (v *Vocabulary) MarshalJSON() ([]byte, error) {
	return json.Marshal(vocabularyFile{ID: v.ID, Version: v.Version, Tokens: v.tokens})
}

func (v *Vocabulary) UnmarshalJSON(data []byte) error {
	var f vocabularyFile
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}

	nv, err := New(f.Tokens, f.ID, f.Version)
	if err != nil {
		return err
	}

	*v = *nv
	return nil
}

// Save schreibt das Vokabular als JSON nach path
func (v *Vocabulary) Save(path string) error {
	bts, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, bts, 0o644)
}

// Load liest ein mit Save geschriebenes Vokabular
func Load(path string) (*Vocabulary, error) {
	bts, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var v Vocabulary
	if err := json.Unmarshal(bts, &v); err != nil {
		return nil, fmt.Errorf("load vocabulary %s: %w", path, err)
	}
	return &v, nil
}
