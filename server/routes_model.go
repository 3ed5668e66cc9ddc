// routes_model.go - Sprachen, geladener Checkpoint und Reload
// Enthaelt: LanguagesHandler, ModelHandler, ReloadHandler
package server

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/7blacky7/codetrans/api"
	"github.com/7blacky7/codetrans/checkpoint"
	"github.com/7blacky7/codetrans/languages"
	"github.com/7blacky7/codetrans/translator"
)

// LanguagesHandler listet Sprachen und die Paare des aktiven Modells
func (s *Server) LanguagesHandler(c *gin.Context) {
	resp := api.LanguagesResponse{Pairs: []string{}}
	for _, l := range languages.All() {
		resp.Languages = append(resp.Languages, api.Language{Name: l.Name, Aliases: l.Aliases, Extensions: l.Extensions})
	}

	if m, err := s.translator.Model(); err == nil {
		for _, p := range m.Pairs {
			resp.Pairs = append(resp.Pairs, p.String())
		}
	}

	c.JSON(http.StatusOK, resp)
}

func modelResponse(m *translator.Model) api.ModelResponse {
	resp := api.ModelResponse{
		Path:     m.Path,
		Digest:   m.Digest,
		Version:  m.Version(),
		Step:     m.Progress.Step,
		Epoch:    m.Progress.Epoch,
		BestLoss: api.Finite(m.Progress.BestLoss),
		Pairs:    make([]string, len(m.Pairs)),
		LoadedAt: m.LoadedAt,
		Defaults: api.Options{
			Strategy:    string(m.Defaults.Strategy),
			MaxLength:   m.Defaults.MaxLength,
			TopK:        m.Defaults.TopK,
			BeamSize:    m.Defaults.BeamSize,
			Temperature: m.Defaults.Temperature,
			Seed:        m.Defaults.Seed,
		},
	}
	for i, p := range m.Pairs {
		resp.Pairs[i] = p.String()
	}
	return resp
}

// ModelHandler beschreibt den aktiven Checkpoint
func (s *Server) ModelHandler(c *gin.Context) {
	m, err := s.translator.Model()
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, modelResponse(m))
}

// defaultCheckpoint gibt best.ckpt im Modellverzeichnis zurueck
func (s *Server) defaultCheckpoint() string {
	return checkpoint.Path(s.models, checkpoint.BestFile)
}

// ReloadHandler laedt einen Checkpoint neu, laufende Uebersetzungen
// behalten ihren alten Stand
func (s *Server) ReloadHandler(c *gin.Context) {
	var req api.ReloadRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	path := req.Path
	if path == "" {
		path = s.defaultCheckpoint()
	} else if !filepath.IsAbs(path) {
		path = filepath.Join(s.models, path)
	}

	m, err := s.translator.Load(path)
	if err != nil {
		slog.Warn("reload failed", "path", path, "error", err)
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, modelResponse(m))
}
