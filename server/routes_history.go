// routes_history.go - Feedback und Trainingshistorie
// Enthaelt: FeedbackHandler, RunsHandler, RunHandler
package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/7blacky7/codetrans/api"
	"github.com/7blacky7/codetrans/languages"
	"github.com/7blacky7/codetrans/store"
)

// FeedbackHandler speichert eine Benutzer-Korrektur
func (s *Server) FeedbackHandler(c *gin.Context) {
	if s.store == nil {
		abortWithError(c, errNoStore)
		return
	}

	var req api.FeedbackRequest
	if !bindJSON(c, &req) {
		return
	}

	pair, err := languages.NewPair(req.SourceLang, req.TargetLang)
	if err != nil {
		abortWithError(c, err)
		return
	}

	if req.Rating < 0 || req.Rating > 5 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "rating must be between 0 and 5"})
		return
	}

	id, err := s.store.AddFeedback(c.Request.Context(), store.Feedback{
		SourceLang:  pair.Source,
		TargetLang:  pair.Target,
		Source:      req.Source,
		Translation: req.Translation,
		Correction:  req.Correction,
		Rating:      req.Rating,
	})
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, api.FeedbackResponse{ID: id})
}

func apiRun(r store.Run) api.Run {
	run := api.Run{
		ID:        r.ID,
		Status:    r.Status,
		Pairs:     r.Pairs,
		Examples:  r.Examples,
		BestLoss:  api.Finite(r.BestLoss),
		Error:     r.Error,
		StartedAt: r.StartedAt,
	}
	if !r.FinishedAt.IsZero() {
		run.FinishedAt = &r.FinishedAt
	}
	return run
}

// RunsHandler listet die letzten Trainingslaeufe, ?limit=n begrenzt
func (s *Server) RunsHandler(c *gin.Context) {
	if s.store == nil {
		abortWithError(c, errNoStore)
		return
	}

	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	runs, err := s.store.Runs(c.Request.Context(), limit)
	if err != nil {
		abortWithError(c, err)
		return
	}

	resp := api.RunsResponse{Runs: make([]api.Run, len(runs))}
	for i, r := range runs {
		resp.Runs[i] = apiRun(r)
	}
	c.JSON(http.StatusOK, resp)
}

// RunHandler liefert einen Lauf mit seinen Epochen
func (s *Server) RunHandler(c *gin.Context) {
	if s.store == nil {
		abortWithError(c, errNoStore)
		return
	}

	run, err := s.store.Run(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	epochs, err := s.store.Epochs(c.Request.Context(), run.ID)
	if err != nil {
		abortWithError(c, err)
		return
	}

	resp := api.RunResponse{Run: apiRun(*run), Epochs: make([]api.Epoch, len(epochs))}
	for i, e := range epochs {
		resp.Epochs[i] = api.Epoch{
			Epoch:     e.Epoch,
			Step:      e.Step,
			TrainLoss: e.TrainLoss,
			ValLoss:   e.ValLoss,
			LR:        e.LR,
			Improved:  e.Improved,
			Duration:  e.Duration,
		}
	}
	c.JSON(http.StatusOK, resp)
}
