// routes_translate.go - Handler fuer Uebersetzung, Validierung und Bewertung
// Enthaelt: TranslateHandler, ValidateHandler, EvaluateHandler
package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/7blacky7/codetrans/api"
	"github.com/7blacky7/codetrans/metrics"
	"github.com/7blacky7/codetrans/model"
	"github.com/7blacky7/codetrans/translator"
	"github.com/7blacky7/codetrans/validate"
)

// bindJSON liest den Request-Body, false wenn der Request bereits beendet wurde
func bindJSON(c *gin.Context, v any) bool {
	err := c.ShouldBindJSON(v)
	switch {
	case errors.Is(err, io.EOF):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing request body"})
		return false
	case err != nil:
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

// decodeOptions prueft die Decoding-Optionen einer Anfrage
func decodeOptions(o *api.Options) (model.DecodeOptions, error) {
	if o == nil {
		return model.DecodeOptions{}, nil
	}

	opts := model.DecodeOptions{
		Strategy:    model.Strategy(o.Strategy),
		MaxLength:   o.MaxLength,
		TopK:        o.TopK,
		BeamSize:    o.BeamSize,
		Temperature: o.Temperature,
		Seed:        o.Seed,
	}

	switch opts.Strategy {
	case "", model.Greedy, model.TopK, model.Beam:
	default:
		return opts, fmt.Errorf("unknown decoding strategy %q, expected greedy, topk or beam", o.Strategy)
	}

	if o.MaxLength < 0 || o.TopK < 0 || o.BeamSize < 0 || o.Temperature < 0 {
		return opts, errors.New("decoding options must not be negative")
	}
	return opts, nil
}

// TranslateHandler uebersetzt Quelltext mit dem geladenen Checkpoint
func (s *Server) TranslateHandler(c *gin.Context) {
	var req api.TranslateRequest
	if !bindJSON(c, &req) {
		return
	}

	opts, err := decodeOptions(req.Options)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := s.translator.Translate(c.Request.Context(), translator.Request{
		Source:     req.Source,
		SourceLang: req.SourceLang,
		TargetLang: req.TargetLang,
		Options:    opts,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, api.TranslateResponse{
		Text:          res.Text,
		Raw:           res.Raw,
		Valid:         res.Verdict.Valid,
		Reason:        res.Verdict.Reason,
		Confidence:    res.Verdict.Confidence,
		Warnings:      res.Warnings,
		Unknown:       res.Unknown,
		Truncated:     res.Truncated,
		ModelVersion:  res.ModelVersion,
		TotalDuration: res.Duration,
	})
}

// ValidateHandler prueft Code ohne Modell
func (s *Server) ValidateHandler(c *gin.Context) {
	var req api.ValidateRequest
	if !bindJSON(c, &req) {
		return
	}

	v, err := validate.Named(req.Code, req.Language)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, api.ValidateResponse{
		Valid:      v.Valid,
		Reason:     v.Reason,
		Confidence: v.Confidence,
		Warnings:   v.Warnings,
	})
}

func apiScores(s metrics.Scores) api.Scores {
	return api.Scores{
		Overall:   s.Overall,
		Syntax:    s.Syntax,
		BLEU:      s.BLEU,
		Structure: s.Structure,
		Edit:      s.Edit,
	}
}

// EvaluateHandler berechnet die Metriken fuer Referenz/Kandidat-Paare
func (s *Server) EvaluateHandler(c *gin.Context) {
	var req api.EvaluateRequest
	if !bindJSON(c, &req) {
		return
	}

	if len(req.Samples) == 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "samples are required"})
		return
	}

	samples := make([]metrics.Sample, len(req.Samples))
	for i, sample := range req.Samples {
		samples[i] = metrics.Sample{Reference: sample.Reference, Candidate: sample.Candidate, Language: sample.Language}
	}

	report, err := metrics.EvaluateAll(c.Request.Context(), samples, s.evalWorkers)
	if err != nil {
		abortWithError(c, err)
		return
	}

	resp := api.EvaluateResponse{
		Count:   report.Count,
		Valid:   report.Valid,
		Mean:    apiScores(report.Mean),
		Samples: make([]api.Scores, len(report.Samples)),
	}
	for i, sc := range report.Samples {
		resp.Samples[i] = apiScores(sc)
	}
	c.JSON(http.StatusOK, resp)
}
