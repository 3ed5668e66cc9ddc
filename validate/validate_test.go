package validate

import (
	"strings"
	"testing"

	"github.com/7blacky7/codetrans/languages"
)

func lang(t *testing.T, name string) languages.Language {
	t.Helper()
	l, err := languages.Lookup(name)
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		lang   string
		text   string
		valid  bool
		reason string
	}{
		{"python offene Klammer", "python", "def f(x): return (x", false, "unclosed '(' opened at line 1"},
		{"cpp einzeilig", "cpp", "int f(int x) { return x; }", true, ""},
		{"python block", "python", "def f(x):\n    return x\n", true, ""},
		{"python block mit tabs", "python", "def f(x):\n\tif x:\n\t\treturn x\n\treturn 0", true, ""},
		{"python fehlender block", "python", "def f(x):\nreturn x", false, "expected an indented block after line 1"},
		{"python block am ende", "python", "x = 1\nif x:", false, "expected an indented block after line 2"},
		{"python unerwartete einrueckung", "python", "x = 1\n    y = 2", false, "unexpected indent at line 2"},
		{"python ausrueckung", "python", "if a:\n        b = 1\n    c = 2", false, "unindent does not match any outer indentation level at line 3"},
		{"python gemischt", "python", "if a:\n\t  b = 1", false, "mixed tabs and spaces in indentation at line 2"},
		{"python klammer im string", "python", `print("(")`, true, ""},
		{"python klammer im kommentar", "python", "x = 1  # (", true, ""},
		{"python doppelpunkt im string", "python", "print('a:')\nx = 1", true, ""},
		{"python fortsetzung", "python", "foo(\n        a,\n  b)\nx = 1", true, ""},
		{"python fortsetzung mit opener", "python", "def f(a,\n      b):\n    return a", true, ""},
		{"python backslash", "python", "x = 1 + \\\n        2\ny = x", true, ""},
		{"python docstring", "python", "def f():\n    \"\"\"doc (\n    \"\"\"\n    return 1", true, ""},
		{"python docstring als rumpf", "python", "def f():\n    \"\"\"doc (\n    \"\"\"\nx = 1", true, ""},
		{"java block-kommentar", "java", "/* { */ int x = 1;", true, ""},
		{"java offener kommentar", "java", "int x = 1; /* (", false, "unterminated block comment opened at line 1"},
		{"java falsche klammer", "java", "int x = (1];", false, "mismatched ']' at line 1, '(' opened at line 1"},
		{"java unerwartete klammer", "java", "}", false, "unexpected '}' at line 1"},
		{"java char literal", "java", "char c = '{';", true, ""},
		{"javascript offener string", "javascript", "let s = \"abc;", false, "unterminated string literal at line 1"},
		{"javascript template", "javascript", "let s = `a\n(b`;", true, ""},
		{"javascript escape", "javascript", `let s = "a\"(";`, true, ""},
		{"javascript regex", "javascript", `const r = /\(/;`, true, ""},
		{"javascript regex klasse", "javascript", "if (/[/)]+/g.test(s)) {\n    return /}/;\n}", true, ""},
		{"javascript division", "javascript", "const x = (a / b) / (c);", true, ""},
		{"javascript regex ohne ende", "javascript", "const x = a(/ 2;", false, "unclosed '(' opened at line 1"},
		{"java kein regex", "java", `String r = /\(/;`, false, "unclosed '(' opened at line 1"},
		{"csharp methode", "csharp", "public int F(int x)\n{\n    return x;\n}\n", true, ""},
		{"leer", "python", "  \n\n", false, "empty output"},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			v := Validate(tt.text, lang(t, tt.lang))
			if v.Valid != tt.valid {
				t.Fatalf("Valid = %v, erwartet %v (reason %q)", v.Valid, tt.valid, v.Reason)
			}
			if v.Reason != tt.reason {
				t.Errorf("Reason = %q, erwartet %q", v.Reason, tt.reason)
			}
			if !v.Valid && v.Confidence != 0 {
				t.Errorf("Confidence = %v, erwartet 0", v.Confidence)
			}
		})
	}
}

func TestValidateConfidence(t *testing.T) {
	v := Validate("int f(int x) { return x; }", lang(t, "cpp"))
	if v.Confidence != 1 || len(v.Warnings) != 0 {
		t.Errorf("Verdict = %+v", v)
	}

	// Nicht eingerueckter Block ist in Klammer-Sprachen nur eine Warnung
	v = Validate("int f() {\nreturn 1;\n}", lang(t, "java"))
	if !v.Valid {
		t.Fatalf("Valid erwartet: %+v", v)
	}
	if len(v.Warnings) != 1 || v.Warnings[0] != "block after line 1 is not indented" {
		t.Errorf("Warnings = %v", v.Warnings)
	}
	if v.Confidence != 0.9 {
		t.Errorf("Confidence = %v", v.Confidence)
	}

	v = Validate("int x = <unk>;\n\t  int y = 1;", lang(t, "cpp"))
	if !v.Valid || len(v.Warnings) != 2 {
		t.Errorf("Verdict = %+v", v)
	}
	if v.Confidence >= 0.9 || v.Confidence < 0.5 {
		t.Errorf("Confidence = %v", v.Confidence)
	}
}

func TestValidateCRLF(t *testing.T) {
	v := Validate("def f(x):\r\n    return x\r\n", lang(t, "python"))
	if !v.Valid {
		t.Errorf("CRLF sollte gueltig sein: %s", v.Reason)
	}
}

func TestValidateDeterministic(t *testing.T) {
	text := strings.Repeat("if a:\n    b = (1,\n 2)\n", 3)
	first := Validate(text, lang(t, "python"))
	for range 5 {
		if got := Validate(text, lang(t, "python")); got.Valid != first.Valid || got.Reason != first.Reason {
			t.Fatalf("Ergebnis nicht deterministisch: %+v vs %+v", got, first)
		}
	}
}

func TestNamed(t *testing.T) {
	v, err := Named("x = (1, 2)", "py")
	if err != nil || !v.Valid {
		t.Errorf("Named = %+v, %v", v, err)
	}
	if _, err := Named("x", "cobol"); err == nil {
		t.Error("Fehler fuer unbekannte Sprache erwartet")
	}
}
