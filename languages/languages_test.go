package languages

import (
	"errors"
	"testing"
)

func TestLookup(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"python", "python"},
		{"Python", "python"},
		{"py", "python"},
		{"js", "javascript"},
		{"c++", "cpp"},
		{"C#", "csharp"},
		{" java ", "java"},
	}

	for _, tt := range cases {
		l, err := Lookup(tt.in)
		if err != nil {
			t.Errorf("Lookup(%q) error = %v", tt.in, err)
			continue
		}
		if l.Name != tt.want {
			t.Errorf("Lookup(%q) = %q, erwartet %q", tt.in, l.Name, tt.want)
		}
	}
}

func TestLookupSuggestion(t *testing.T) {
	_, err := Lookup("pyton")

	var uerr *UnknownLanguageError
	if !errors.As(err, &uerr) {
		t.Fatalf("erwartet UnknownLanguageError, got %v", err)
	}
	if uerr.Suggestion != "python" {
		t.Errorf("Suggestion = %q, erwartet python", uerr.Suggestion)
	}

	// Weit entfernte Namen bekommen keinen Vorschlag
	_, err = Lookup("cobol")
	if !errors.As(err, &uerr) || uerr.Suggestion != "" {
		t.Errorf("unerwarteter Vorschlag: %v", err)
	}
}

func TestFromPath(t *testing.T) {
	l, err := FromPath("src/Main.java")
	if err != nil || l.Name != "java" {
		t.Errorf("FromPath(.java) = %v, %v", l.Name, err)
	}

	if _, err := FromPath("README.md"); err == nil {
		t.Error("erwartet Fehler fuer .md")
	}
}

func TestRegistry(t *testing.T) {
	names := Names()
	if len(names) != 5 {
		t.Fatalf("erwartet 5 Sprachen, got %v", names)
	}

	python, _ := Lookup("python")
	if !python.IndentSignificant || python.BlockOpener != ":" {
		t.Errorf("python: %+v", python)
	}
	if python.Tag() != "<python>" {
		t.Errorf("Tag = %q", python.Tag())
	}

	cpp, _ := Lookup("cpp")
	if cpp.BlockComment != [2]string{"/*", "*/"} || cpp.IndentSignificant {
		t.Errorf("cpp: %+v", cpp)
	}
}

func TestParsePair(t *testing.T) {
	p, err := ParsePair("Py->JS")
	if err != nil {
		t.Fatal(err)
	}
	if p.Source != "python" || p.Target != "javascript" {
		t.Errorf("pair = %+v", p)
	}
	if p.String() != "python->javascript" {
		t.Errorf("String() = %q", p.String())
	}
	if prefix := p.Prefix(); len(prefix) != 2 || prefix[0] != "<python>" || prefix[1] != "<javascript>" {
		t.Errorf("Prefix() = %v", prefix)
	}

	for _, s := range []string{"python", "python->cobol", "->java"} {
		if _, err := ParsePair(s); err == nil {
			t.Errorf("ParsePair(%q): Fehler erwartet", s)
		}
	}
}
