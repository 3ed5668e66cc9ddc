// routes_serve.go - Server-Start und Lifecycle-Management
// Enthaelt: Serve() - Hauptfunktion zum Starten des HTTP-Servers

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/7blacky7/codetrans/envconfig"
	"github.com/7blacky7/codetrans/logutil"
	"github.com/7blacky7/codetrans/model"
	"github.com/7blacky7/codetrans/store"
	"github.com/7blacky7/codetrans/translator"
	"github.com/7blacky7/codetrans/version"
)

const shutdownTimeout = 10 * time.Second

// loadDefault laedt best.ckpt beim Start
// Laeuft das Laden laenger als timeout, geht es im Hintergrund weiter und
// Uebersetzungen liefern bis dahin 503.
func (s *Server) loadDefault(timeout time.Duration) {
	path := s.defaultCheckpoint()
	if _, err := os.Stat(path); err != nil {
		slog.Info("no checkpoint found, waiting for /api/reload", "path", path)
		return
	}

	done := make(chan error, 1)
	go func() {
		_, err := s.translator.Load(path)
		done <- err
	}()

	var expired <-chan time.Time
	if timeout > 0 {
		expired = time.After(timeout)
	}

	select {
	case err := <-done:
		if err != nil {
			slog.Warn("failed to load checkpoint", "path", path, "error", err)
		}
	case <-expired:
		slog.Warn("checkpoint load timed out, continuing in background", "path", path, "timeout", timeout)
	}
}

// Serve startet den HTTP-Server
func Serve(ln net.Listener) error {
	slog.SetDefault(logutil.NewLogger(os.Stderr, envconfig.LogLevel()))
	slog.Info("server config", "env", envconfig.Values())

	s := &Server{
		addr:        ln.Addr(),
		translator:  translator.New(model.DecodeOptions{}),
		limiter:     newLimiter(envconfig.NumParallel(), envconfig.MaxQueue()),
		models:      envconfig.Models(),
		evalWorkers: runtime.GOMAXPROCS(0),
	}

	if st, err := store.Open(envconfig.DB()); err != nil {
		slog.Warn("history database unavailable, feedback and runs are disabled", "path", envconfig.DB(), "error", err)
	} else {
		s.store = st
		defer st.Close()
	}

	s.loadDefault(envconfig.LoadTimeout())

	srvr := &http.Server{Handler: s.GenerateRoutes(envconfig.AllowedOrigins())}

	ctx, done := context.WithCancel(context.Background())

	// listen for a ctrl+c and finish in-flight requests
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signals
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srvr.Shutdown(shutdownCtx); err != nil {
			slog.Warn("shutdown", "error", err)
			srvr.Close()
		}
		done()
	}()

	slog.Info(fmt.Sprintf("Listening on %s (version %s)", ln.Addr(), version.Version))
	err := srvr.Serve(ln)
	// If server is closed from the signal handler, wait for the ctx to be done
	// otherwise error out quickly
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-ctx.Done()
	return nil
}
