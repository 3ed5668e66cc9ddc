// routes_errors.go - Abbildung von Fehlern auf HTTP-Statuscodes
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/7blacky7/codetrans/fs/ckpt"
	"github.com/7blacky7/codetrans/languages"
	"github.com/7blacky7/codetrans/store"
	"github.com/7blacky7/codetrans/translator"
)

// errNoStore wird geliefert wenn die Historie nicht verfuegbar ist
var errNoStore = errors.New("history database is not available")

// statusCode waehlt den HTTP-Status fuer err
func statusCode(err error) int {
	var pairErr *translator.UnsupportedLanguagePairError
	var langErr *languages.UnknownLanguageError
	var versionErr *ckpt.VersionError

	switch {
	case errors.As(err, &pairErr), errors.As(err, &langErr),
		errors.Is(err, translator.ErrEmptySource):
		return http.StatusBadRequest
	case errors.As(err, &versionErr), errors.Is(err, ckpt.ErrUnsupported):
		return http.StatusUnprocessableEntity
	case errors.Is(err, store.ErrNotFound), errors.Is(err, os.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, translator.ErrNotLoaded), errors.Is(err, ErrMaxQueue),
		errors.Is(err, errNoStore):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		// Client hat die Verbindung geschlossen
		return 499
	default:
		return http.StatusInternalServerError
	}
}

// abortWithError beendet den Request mit {"error": ...}
func abortWithError(c *gin.Context, err error) {
	code := statusCode(err)
	if code >= http.StatusInternalServerError {
		slog.Error("request failed", "path", c.Request.URL.Path, "error", err)
	}
	c.AbortWithStatusJSON(code, gin.H{"error": err.Error()})
}
