// tokenizer_test.go - Tests fuer Vokabular, Encode/Decode und Padding
package tokenizer

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

var corpus = []string{
	"def add(a, b):\n    return a + b\n",
	"function add(a, b) {\n    return a + b;\n}\n",
	"int add(int a, int b) { return a + b; }",
}

func mustBuild(t *testing.T) *Vocabulary {
	t.Helper()
	v, err := Build(corpus, BuildOptions{Specials: []string{"<python>", "<javascript>"}})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return v
}

func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func TestBuildEmptyCorpus(t *testing.T) {
	for name, c := range map[string][]string{
		"ohne Texte":   nil,
		"nur Leerraum": {"   \n\t\n"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Build(c, BuildOptions{})
			var verr *VocabularyError
			if !errors.As(err, &verr) {
				t.Fatalf("erwartet VocabularyError, got %v", err)
			}
		})
	}
}

func TestReservedIDs(t *testing.T) {
	v := mustBuild(t)

	for id, tok := range []string{Pad, BOS, EOS, Unk, Newline, Indent, "<python>", "<javascript>"} {
		if got := v.Token(int32(id)); got != tok {
			t.Errorf("Token(%d) = %q, erwartet %q", id, got, tok)
		}
	}

	if !v.IsSpecial(7) || v.IsSpecial(8) {
		t.Errorf("IsSpecial Grenze falsch")
	}
}

func TestBuildDeterministicOrder(t *testing.T) {
	a := mustBuild(t)
	b := mustBuild(t)

	if diff := cmp.Diff(a.Tokens(), b.Tokens()); diff != "" {
		t.Errorf("Reihenfolge nicht deterministisch (-a +b):\n%s", diff)
	}

	// Gleich haeufige Tokens sind lexikographisch sortiert
	tokens := a.Tokens()
	plus, _ := a.Lookup("+")
	ret, _ := a.Lookup("return")
	if plus > ret {
		t.Errorf("'+' (%d) sollte vor 'return' (%d) stehen: %v", plus, ret, tokens)
	}
}

func TestBuildMaxSize(t *testing.T) {
	v, err := Build(corpus, BuildOptions{MaxSize: 10})
	if err != nil {
		t.Fatal(err)
	}
	if v.Size() != 10 {
		t.Errorf("Size() = %d, erwartet 10", v.Size())
	}
}

func TestRoundTrip(t *testing.T) {
	v := mustBuild(t)

	cases := []string{
		"return a + b",
		"def add ( a , b ) :\n\treturn a + b",
		"int add ( int a , int b ) { return a + b ; }",
	}

	for _, text := range cases {
		enc := v.Encode(text, 0)
		if enc.HasUnknown() {
			t.Fatalf("unerwartete unbekannte Tokens: %v", enc.Unknown)
		}

		got := v.Decode(enc.Sequence.IDs)
		if normalize(got) != normalize(text) {
			t.Errorf("Round-Trip:\n got %q\nwant %q", got, text)
		}
	}
}

func TestRoundTripCompact(t *testing.T) {
	v := mustBuild(t)
	text := "def add(a, b):\n    return a + b"

	got := v.Decode(v.Encode(text, 0).Sequence.IDs)
	if want := "def add ( a , b ) :\n\treturn a + b"; got != want {
		t.Errorf("Decode() = %q, erwartet %q", got, want)
	}

	strip := func(s string) string { return strings.Join(strings.Fields(s), "") }
	if strip(got) != strip(text) {
		t.Errorf("Tokens weichen ab: %q vs %q", got, text)
	}
}

func TestEncodeUnknown(t *testing.T) {
	v := mustBuild(t)

	enc := v.Encode("return zeta + zeta + omega", 0)
	if diff := cmp.Diff([]string{"zeta", "omega"}, enc.Unknown); diff != "" {
		t.Errorf("Unknown (-want +got):\n%s", diff)
	}

	ids := enc.Sequence.Tokens()
	if ids[1] != UnkID || ids[len(ids)-1] != EOSID {
		t.Errorf("ids = %v", ids)
	}
}

func TestEncodeTooLong(t *testing.T) {
	v := mustBuild(t)

	enc := v.Encode("a + b + a + b", 4, "<python>")
	if !enc.TooLong() {
		t.Fatal("TooLong() sollte true sein")
	}
	if enc.Sequence.Length != 4 {
		t.Errorf("Length = %d, erwartet 4", enc.Sequence.Length)
	}
	if last := enc.Sequence.IDs[3]; last != EOSID {
		t.Errorf("letztes Token = %d, erwartet EOS", last)
	}
	// 1 Tag + 7 Tokens + EOS = 9, davon bleiben 4
	if enc.Dropped != 5 {
		t.Errorf("Dropped = %d, erwartet 5", enc.Dropped)
	}
}

func TestDecodeDropsMarkers(t *testing.T) {
	v := mustBuild(t)
	a, _ := v.Lookup("a")
	py, _ := v.Lookup("<python>")

	got := v.Decode([]int32{BOSID, py, a, EOSID, PadID, PadID})
	if got != "a" {
		t.Errorf("Decode() = %q, erwartet %q", got, "a")
	}
}

func TestEncodeBatchOrder(t *testing.T) {
	v := mustBuild(t)
	texts := []string{"a", "a + b", "return a"}

	encs := v.EncodeBatch(texts, 0)
	for i, enc := range encs {
		if want := v.Encode(texts[i], 0); !cmp.Equal(want.Sequence, enc.Sequence) {
			t.Errorf("Batch[%d] = %v, erwartet %v", i, enc.Sequence, want.Sequence)
		}
	}
}

func TestPadBatch(t *testing.T) {
	seqs := []TokenSequence{
		{IDs: []int32{7, 8, EOSID}, Length: 3},
		{IDs: []int32{9, EOSID}, Length: 2},
	}

	ids, mask := PadBatch(seqs)
	want := [][]int32{{7, 8, EOSID}, {9, EOSID, PadID}}
	if diff := cmp.Diff(want, ids); diff != "" {
		t.Errorf("ids (-want +got):\n%s", diff)
	}

	back := Unpad(ids, mask)
	if diff := cmp.Diff(seqs, back); diff != "" {
		t.Errorf("Unpad (-want +got):\n%s", diff)
	}
}

func TestSaveLoad(t *testing.T) {
	v := mustBuild(t)
	path := filepath.Join(t.TempDir(), "vocab.json")

	if err := v.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if loaded.ID != v.ID || loaded.Version != v.Version {
		t.Errorf("Metadaten: %s/%d vs %s/%d", loaded.ID, loaded.Version, v.ID, v.Version)
	}
	if diff := cmp.Diff(v.Tokens(), loaded.Tokens()); diff != "" {
		t.Errorf("Tokens (-want +got):\n%s", diff)
	}
	if !loaded.IsSpecial(7) {
		t.Error("Specials nach Load verloren")
	}
}

func TestNewRejectsMovedReserved(t *testing.T) {
	_, err := New([]string{Pad, EOS, BOS, Unk, Newline, Indent}, "x", CurrentVersion)
	var verr *VocabularyError
	if !errors.As(err, &verr) {
		t.Errorf("erwartet VocabularyError, got %v", err)
	}
}
