// config_test.go - Tests fuer die Environment-Konfiguration
package envconfig

import (
	"log/slog"
	"math"
	"path/filepath"
	"testing"
	"time"
)

func TestHost(t *testing.T) {
	cases := map[string]struct {
		value  string
		expect string
	}{
		"empty":               {"", "127.0.0.1:11435"},
		"only address":        {"1.2.3.4", "1.2.3.4:11435"},
		"only port":           {":1234", ":1234"},
		"address and port":    {"1.2.3.4:1234", "1.2.3.4:1234"},
		"hostname":            {"example.com", "example.com:11435"},
		"hostname and port":   {"example.com:1234", "example.com:1234"},
		"ipv6 localhost":      {"[::1]", "[::1]:11435"},
		"ipv6 with port":      {"[::1]:1337", "[::1]:1337"},
		"zero port":           {"0.0.0.0:0", "0.0.0.0:0"},
		"invalid port wieder": {"127.0.0.1:99999", "127.0.0.1:11435"},
		"scheme http":         {"http://1.2.3.4", "1.2.3.4:80"},
		"scheme https":        {"https://1.2.3.4", "1.2.3.4:443"},
	}

	for name, tt := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("CODETRANS_HOST", tt.value)
			if host := Host(); host.Host != tt.expect {
				t.Errorf("%s: expected %s, got %s", name, tt.expect, host.Host)
			}
		})
	}
}

func TestModelsAndDB(t *testing.T) {
	t.Setenv("CODETRANS_MODELS", "/tmp/ckpts")
	if got := Models(); got != "/tmp/ckpts" {
		t.Errorf("Models() = %q", got)
	}

	// Default liegt unter $HOME/.codetrans
	t.Setenv("HOME", "/home/tester")
	t.Setenv("CODETRANS_DB", "")
	if got, want := DB(), filepath.Join("/home/tester", ".codetrans", "codetrans.db"); got != want {
		t.Errorf("DB() = %q, erwartet %q", got, want)
	}
}

func TestLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":      slog.LevelInfo,
		"false": slog.LevelInfo,
		"0":     slog.LevelInfo,
		"true":  slog.LevelDebug,
		"1":     slog.LevelDebug,
		"2":     slog.Level(-8),
	}

	for value, want := range cases {
		t.Setenv("CODETRANS_DEBUG", value)
		if got := LogLevel(); got != want {
			t.Errorf("CODETRANS_DEBUG=%q: got %v, want %v", value, got, want)
		}
	}
}

func TestLoadTimeout(t *testing.T) {
	cases := map[string]time.Duration{
		"":    5 * time.Minute,
		"1s":  time.Second,
		"30":  30 * time.Second,
		"0":   time.Duration(math.MaxInt64),
		"-1":  time.Duration(math.MaxInt64),
		"bad": 5 * time.Minute,
	}

	for value, want := range cases {
		t.Setenv("CODETRANS_LOAD_TIMEOUT", value)
		if got := LoadTimeout(); got != want {
			t.Errorf("CODETRANS_LOAD_TIMEOUT=%q: got %v, want %v", value, got, want)
		}
	}
}

func TestNumParallel(t *testing.T) {
	t.Setenv("CODETRANS_NUM_PARALLEL", "")
	if got := NumParallel(); got != 4 {
		t.Errorf("Default = %d, erwartet 4", got)
	}

	t.Setenv("CODETRANS_NUM_PARALLEL", "8")
	if got := NumParallel(); got != 8 {
		t.Errorf("got %d, erwartet 8", got)
	}

	// Ungueltige Werte fallen auf den Default zurueck
	t.Setenv("CODETRANS_NUM_PARALLEL", "viele")
	if got := NumParallel(); got != 4 {
		t.Errorf("got %d, erwartet Default 4", got)
	}
}

func TestVar(t *testing.T) {
	t.Setenv("CODETRANS_VAR", `  "quoted"  `)
	if got := Var("CODETRANS_VAR"); got != "quoted" {
		t.Errorf("Var() = %q", got)
	}
}
