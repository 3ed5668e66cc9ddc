package format

import (
	"testing"
	"time"
)

func TestHumanBytes(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{999, "999 B"},
		{1000, "1 KB"},
		{1500, "1.5 KB"},
		{12_345_678, "12 MB"},
		{2_000_000_000, "2 GB"},
	}

	for _, tt := range cases {
		if got := HumanBytes(tt.in); got != tt.want {
			t.Errorf("HumanBytes(%d) = %q, erwartet %q", tt.in, got, tt.want)
		}
	}
}

func TestHumanNumber(t *testing.T) {
	cases := []struct {
		in   uint64
		want string
	}{
		{12, "12"},
		{1200, "1.2K"},
		{1_000_000, "1M"},
		{250_000_000, "250M"},
		{7_500_000_000, "7.5B"},
	}

	for _, tt := range cases {
		if got := HumanNumber(tt.in); got != tt.want {
			t.Errorf("HumanNumber(%d) = %q, erwartet %q", tt.in, got, tt.want)
		}
	}
}

func TestHumanTime(t *testing.T) {
	if got := HumanTime(time.Time{}, "Never"); got != "Never" {
		t.Errorf("Null-Zeitpunkt: %q", got)
	}

	if got := HumanTime(time.Now().Add(-3*time.Minute), ""); got != "3 minutes ago" {
		t.Errorf("got %q", got)
	}

	if got := HumanTime(time.Now().Add(-time.Hour-time.Minute), ""); got != "1 hour ago" {
		t.Errorf("got %q", got)
	}
}
