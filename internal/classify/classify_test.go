package classify

import (
	"strings"
	"testing"
)

func TestIsPoemLike_LengthBoundary(t *testing.T) {
	// "ب" is U+0628, inside the Arabic block.
	fifty := strings.Repeat("ب", 50)
	fiftyOne := strings.Repeat("ب", 51)

	if IsPoemLike(fifty) {
		t.Fatalf("expected 50 trimmed characters to be rejected")
	}
	if !IsPoemLike(fiftyOne) {
		t.Fatalf("expected 51 trimmed characters to pass")
	}
}

func TestIsPoemLike_TrimsBeforeCounting(t *testing.T) {
	padded := "   \n\t" + strings.Repeat("ب", 50) + "  \n"
	if IsPoemLike(padded) {
		t.Fatalf("surrounding whitespace must not count toward the length")
	}
}

func TestIsPoemLike_RequiresArabicScript(t *testing.T) {
	latin := strings.Repeat("a", 120)
	if IsPoemLike(latin) {
		t.Fatalf("latin-only text must not be poem-like")
	}
	// A single qualifying rune is enough.
	mixed := strings.Repeat("a", 60) + "ک"
	if !IsPoemLike(mixed) {
		t.Fatalf("expected one Arabic-script rune to qualify a long text")
	}
}

func TestContainsArabicScript_BlockEdges(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want bool
	}{
		{"lower edge", "\u0600", true},
		{"upper edge", "\u06FF", true},
		{"below block", "\u05FF", false},
		{"above block", "\u0700", false},
		{"arabic supplement is outside", "\u0750", false},
		{"empty", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ContainsArabicScript(tc.in); got != tc.want {
				t.Fatalf("ContainsArabicScript(%q)=%v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestLongEnough_CountsCodePointsNotBytes(t *testing.T) {
	// 30 two-byte runes are 60 bytes but only 30 characters.
	if LongEnough(strings.Repeat("ب", 30)) {
		t.Fatalf("length must be measured in code points")
	}
}
