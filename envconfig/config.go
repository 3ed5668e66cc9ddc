// config.go - Haupt-Konfigurationsfunktionen fuer codetrans
//
// Dieses Modul enthaelt:
// - Host: Gibt Scheme und Host zurueck (CODETRANS_HOST)
// - AllowedOrigins: Gibt erlaubte Origins zurueck (CODETRANS_ORIGINS)
// - Models: Gibt das Checkpoint-Verzeichnis zurueck (CODETRANS_MODELS)
// - DB: Gibt den Pfad der Run-Datenbank zurueck (CODETRANS_DB)
// - LoadTimeout: Gibt Load-Timeout zurueck (CODETRANS_LOAD_TIMEOUT)
// - LogLevel: Gibt Log-Level zurueck (CODETRANS_DEBUG)
//
// Weitere Konfigurationen sind ausgelagert:
// - config_features.go: Parallelitaet und Queue
// - config_utils.go: Utility-Funktionen und AsMap/Values
package envconfig

import (
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Host gibt Scheme und Host zurueck
// Konfigurierbar via CODETRANS_HOST
// Default: http://127.0.0.1:11435
func Host() *url.URL {
	defaultPort := "11435"

	s := strings.TrimSpace(Var("CODETRANS_HOST"))
	scheme, hostport, ok := strings.Cut(s, "://")
	switch {
	case !ok:
		scheme, hostport = "http", s
	case scheme == "http":
		defaultPort = "80"
	case scheme == "https":
		defaultPort = "443"
	}

	hostport, path, _ := strings.Cut(hostport, "/")
	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		host, port = "127.0.0.1", defaultPort
		if ip := net.ParseIP(strings.Trim(hostport, "[]")); ip != nil {
			host = ip.String()
		} else if hostport != "" {
			host = hostport
		}
	}

	if n, err := strconv.ParseInt(port, 10, 32); err != nil || n > 65535 || n < 0 {
		slog.Warn("invalid port, using default", "port", port, "default", defaultPort)
		port = defaultPort
	}

	return &url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(host, port),
		Path:   path,
	}
}

// AllowedOrigins gibt erlaubte Origins zurueck
// Konfigurierbar via CODETRANS_ORIGINS (komma-separiert)
// Enthaelt Standard-Origins fuer localhost
func AllowedOrigins() (origins []string) {
	if s := Var("CODETRANS_ORIGINS"); s != "" {
		origins = strings.Split(s, ",")
	}

	for _, origin := range []string{"localhost", "127.0.0.1", "0.0.0.0"} {
		origins = append(origins,
			fmt.Sprintf("http://%s", origin),
			fmt.Sprintf("https://%s", origin),
			fmt.Sprintf("http://%s", net.JoinHostPort(origin, "*")),
			fmt.Sprintf("https://%s", net.JoinHostPort(origin, "*")),
		)
	}

	// Editor-Integrationen
	origins = append(origins,
		"file://*",
		"vscode-webview://*",
		"vscode-file://*",
	)

	return origins
}

// home gibt das Basisverzeichnis $HOME/.codetrans zurueck
func home() string {
	home, err := os.UserHomeDir()
	if err != nil {
		panic(err)
	}

	return filepath.Join(home, ".codetrans")
}

// Models gibt das Checkpoint-Verzeichnis zurueck
// Konfigurierbar via CODETRANS_MODELS
// Default: $HOME/.codetrans/models
func Models() string {
	if s := Var("CODETRANS_MODELS"); s != "" {
		return s
	}

	return filepath.Join(home(), "models")
}

// DB gibt den Pfad der SQLite-Datenbank fuer Runs und Feedback zurueck
// Konfigurierbar via CODETRANS_DB
// Default: $HOME/.codetrans/codetrans.db
func DB() string {
	if s := Var("CODETRANS_DB"); s != "" {
		return s
	}

	return filepath.Join(home(), "codetrans.db")
}

// LoadTimeout gibt das Timeout fuer das Laden eines Checkpoints zurueck
// Konfigurierbar via CODETRANS_LOAD_TIMEOUT
// 0 oder negative Werte = unendlich
// Default: 5 Minuten
func LoadTimeout() (loadTimeout time.Duration) {
	loadTimeout = 5 * time.Minute
	if s := Var("CODETRANS_LOAD_TIMEOUT"); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			loadTimeout = d
		} else if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			loadTimeout = time.Duration(n) * time.Second
		}
	}

	if loadTimeout <= 0 {
		return time.Duration(math.MaxInt64)
	}

	return loadTimeout
}

// LogLevel gibt das Log-Level zurueck
// Konfigurierbar via CODETRANS_DEBUG
// Werte: 0/false = INFO (Default), 1/true = DEBUG, 2 = TRACE
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("CODETRANS_DEBUG"); s != "" {
		if b, _ := strconv.ParseBool(s); b {
			level = slog.LevelDebug
		} else if i, _ := strconv.ParseInt(s, 10, 64); i != 0 {
			level = slog.Level(i * -4)
		}
	}

	return level
}

// Var gibt eine Environment-Variable zurueck
// Entfernt fuehrende/trailing Quotes und Leerzeichen
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}
