package train

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/7blacky7/codetrans/languages"
	"github.com/7blacky7/codetrans/store"
)

func TestDecodeJSON(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  []Sample
	}{
		{
			name:  "array of pairs",
			input: `[{"source": "x = 1", "target": "int x = 1;", "source_lang": "python", "target_lang": "java"}]`,
			want:  []Sample{{Source: "x = 1", Target: "int x = 1;", SourceLang: "python", TargetLang: "java"}},
		},
		{
			name:  "parallel lists",
			input: `{"source_codes": ["a = 1", "b = 2"], "target_codes": ["let a = 1;", "let b = 2;"], "target_lang": "javascript"}`,
			want: []Sample{
				{Source: "a = 1", Target: "let a = 1;", TargetLang: "javascript"},
				{Source: "b = 2", Target: "let b = 2;", TargetLang: "javascript"},
			},
		},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeJSON(strings.NewReader(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []string{
		``,
		`[{"source": "x"}]`,
		`{"source_codes": ["a"], "target_codes": []}`,
		`[{"foo": 1}]`,
	} {
		_, err := DecodeJSON(strings.NewReader(bad))
		assert.Error(t, err, "erwartet Fehler fuer %q", bad)
	}
}

func TestLoadDatasetJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pairs.jsonl")
	content := "\ufeff" + `{"source": "x = 1", "target": "int x = 1;"}` + "\n\n" +
		`{"source_codes": ["y = 2"], "target_codes": ["int y = 2;"]}` + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	got, err := LoadDataset(path)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "x = 1", got[0].Source, "BOM wird entfernt")
	assert.Equal(t, "int y = 2;", got[1].Target)

	require.NoError(t, os.WriteFile(path, []byte("{broken\n"), 0o644))
	_, err = LoadDataset(path)
	assert.ErrorContains(t, err, "line 1")
}

func TestClean(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"a  \r\nb\t\r\n", "a\nb"},
		{"\n\na\n\n\n\nb\n", "a\n\nb"},
		{"def f():\n    return 1   \n", "def f():\n    return 1"},
		{"   \n\t\n", ""},
	}
	for _, tt := range cases {
		assert.Equal(t, tt.want, Clean(tt.in), "Clean(%q)", tt.in)
	}
}

func TestPrepare(t *testing.T) {
	samples := []Sample{
		{Source: "x = 1\r\n", Target: "int x = 1;", SourceLang: "py"},
		{Source: "x = 1", Target: "int x = 1;  "},
		{Source: "   ", Target: "int y;"},
		{Source: "y = 2", Target: "let y = 2;", SourceLang: "python", TargetLang: "js"},
	}

	got, err := Prepare(samples, "python", "java")
	require.NoError(t, err)
	require.Len(t, got, 2, "Duplikat und leere Quelle entfernt")
	assert.Equal(t, languages.Pair{Source: "python", Target: "java"}, got[0].Pair)
	assert.Equal(t, "x = 1", got[0].Source)
	assert.Equal(t, languages.Pair{Source: "python", Target: "javascript"}, got[1].Pair)
	assert.Equal(t, "javascript", got[1].TargetLang)

	_, err = Prepare([]Sample{{Source: "a", Target: "b"}}, "", "")
	assert.Error(t, err, "ohne Sprachpaar")

	_, err = Prepare([]Sample{{Source: "a", Target: "b", SourceLang: "cobol", TargetLang: "java"}}, "", "")
	var unknown *languages.UnknownLanguageError
	assert.ErrorAs(t, err, &unknown)
}

func TestSplit(t *testing.T) {
	var samples []PairedSample
	for i := range 20 {
		samples = append(samples, PairedSample{Sample: Sample{Source: strings.Repeat("a", i+1)}})
	}

	train1, val1 := Split(samples, 0.25, 7)
	train2, val2 := Split(samples, 0.25, 7)
	assert.Len(t, val1, 5)
	assert.Len(t, train1, 15)
	assert.Equal(t, val1, val2, "gleicher Seed, gleiche Aufteilung")
	assert.Equal(t, train1, train2)

	_, val3 := Split(samples, 0.25, 8)
	assert.NotEqual(t, val1, val3)

	trainSet, valSet := Split(samples[:2], 0.01, 1)
	assert.Len(t, valSet, 1, "mindestens ein Validierungsbeispiel")
	assert.Len(t, trainSet, 1)

	trainSet, valSet = Split(samples, 0, 1)
	assert.Empty(t, valSet)
	assert.Len(t, trainSet, 20)
}

func TestFromFeedback(t *testing.T) {
	got := FromFeedback([]store.Feedback{{SourceLang: "python", TargetLang: "java", Source: "x = 1", Translation: "x = 1", Correction: "int x = 1;"}})
	assert.Equal(t, []Sample{{Source: "x = 1", Target: "int x = 1;", SourceLang: "python", TargetLang: "java"}}, got)
}

func TestAugmenter(t *testing.T) {
	s := PairedSample{
		Sample: Sample{
			Source: "def total(values):\n    result = sum(values)\n    return result",
			Target: "int total(int[] values) {\n    int result = sum(values);\n    return result;\n}",
		},
		Pair: languages.Pair{Source: "python", Target: "java"},
	}

	assert.Equal(t, s, NewAugmenter(0, 1).Apply(s, 0, 0), "prob 0 aendert nichts")

	a := NewAugmenter(1, 1)
	for i := range 10 {
		got := a.Apply(s, 0, i)
		assert.NotEqual(t, s, got, "prob 1 aendert immer (index %d)", i)
		assert.Equal(t, got, a.Apply(s, 0, i), "deterministisch pro Epoche und Index")
	}
}

func TestInsertBeforeReturn(t *testing.T) {
	got := insertBeforeReturn("def f(x):\n    y = x\n    return y", patterns[0]["python"])
	want := "def f(x):\n    y = x\n    acc = 0\n    for i in range(3):\n        acc += i\n    return y"
	assert.Equal(t, want, got)

	got = insertBeforeReturn("void f() {\n\tg();\n}", patterns[1]["java"])
	assert.Contains(t, got, "\tboolean flag = true;\n\tif (flag) {\n\t\tflag = false;\n\t}\n}")
}

func TestRename(t *testing.T) {
	s := PairedSample{
		Sample: Sample{Source: "counter = counter + 1", Target: "counter = counter + 1;"},
		Pair:   languages.Pair{Source: "python", Target: "javascript"},
	}
	a := NewAugmenter(1, 3)

	found := false
	for i := range 20 {
		got := a.Apply(s, 1, i)
		if !strings.Contains(got.Source, "counter") {
			found = true
			assert.NotContains(t, got.Target, "counter", "konsistent in beiden Seiten")
		}
	}
	assert.True(t, found, "erwartet mindestens eine Umbenennung")
}
