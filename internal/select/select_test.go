package selecter

import (
	"iter"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/hyperifyio/poemscout/internal/extract"
)

func seq(texts ...string) iter.Seq[extract.Candidate] {
	return func(yield func(extract.Candidate) bool) {
		for _, t := range texts {
			if !yield(extract.Candidate{Text: t, Source: extract.SourceParagraph}) {
				return
			}
		}
	}
}

func set(texts ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(texts))
	for _, t := range texts {
		m[t] = struct{}{}
	}
	return m
}

func texts(cs []extract.Candidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Text
	}
	return out
}

func TestNewPoems_FiltersAndKeepsOrder(t *testing.T) {
	t.Parallel()
	got := texts(NewPoems(seq("a", "b", "c", "b", "d"), set("c")))
	want := []string{"a", "b", "b", "d"}
	if !slices.Equal(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestNewPoems_EmptyInputs(t *testing.T) {
	t.Parallel()
	if got := NewPoems(nil, nil); len(got) != 0 {
		t.Fatalf("nil seq: %v", got)
	}
	if got := NewPoems(seq(), set("a")); len(got) != 0 {
		t.Fatalf("empty seq: %v", got)
	}
	if got := texts(NewPoems(seq("a"), nil)); !slices.Equal(got, []string{"a"}) {
		t.Fatalf("nil existing: %v", got)
	}
}

func TestPick(t *testing.T) {
	t.Parallel()
	s := Selector{Rand: rand.New(rand.NewPCG(1, 2))}
	cases := []struct {
		name       string
		candidates []string
		existing   map[string]struct{}
		wantOK     bool
		oneOf      []string
	}{
		{"empty candidates", nil, set("a"), false, nil},
		{"all stored", []string{"a", "b", "a"}, set("a", "b"), false, nil},
		{"single new", []string{"a", "b"}, set("a"), true, []string{"b"}},
		{"several new", []string{"a", "b", "c"}, set(), true, []string{"a", "b", "c"}},
	}
	for _, tc := range cases {
		got, ok := s.Pick(seq(tc.candidates...), tc.existing)
		if ok != tc.wantOK {
			t.Fatalf("%s: ok=%v want %v", tc.name, ok, tc.wantOK)
		}
		if ok && !slices.Contains(tc.oneOf, got.Text) {
			t.Fatalf("%s: picked %q, want one of %v", tc.name, got.Text, tc.oneOf)
		}
	}
}

func TestPick_NeverReturnsStoredText(t *testing.T) {
	t.Parallel()
	s := Selector{}
	existing := set("stored-1", "stored-2")
	for i := 0; i < 200; i++ {
		got, ok := s.Pick(seq("stored-1", "new-1", "stored-2", "new-2"), existing)
		if !ok {
			t.Fatalf("expected a pick")
		}
		if _, stored := existing[got.Text]; stored {
			t.Fatalf("picked stored text %q", got.Text)
		}
	}
}

func TestPick_CoversAllNewCandidates(t *testing.T) {
	t.Parallel()
	s := Selector{Rand: rand.New(rand.NewPCG(7, 11))}
	seen := map[string]int{}
	for i := 0; i < 300; i++ {
		got, _ := s.Pick(seq("x", "y", "z"), nil)
		seen[got.Text]++
	}
	for _, want := range []string{"x", "y", "z"} {
		if seen[want] == 0 {
			t.Fatalf("%q never picked in 300 draws: %v", want, seen)
		}
	}
}
