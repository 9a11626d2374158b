package ussd

import (
	"strings"
	"testing"
)

func TestDecode_Empty(t *testing.T) {
	steps := Decode("")
	if len(steps) != 0 {
		t.Fatalf("expected empty sequence for empty text, got %q", steps)
	}
}

func TestDecode_TokenCount(t *testing.T) {
	inputs := []string{
		"1",
		"2*Maize",
		"2*Maize*100kg",
		"1*Jane*Nairobi*2ha*Maize,Beans*none",
		"1**x",
		"*",
		"**",
		" 3 * Goats ",
	}
	for _, in := range inputs {
		got := Decode(in)
		if want := len(strings.Split(in, "*")); len(got) != want {
			t.Errorf("Decode(%q) returned %d tokens, want %d", in, len(got), want)
		}
	}
}

func TestDecode_PreservesTokensVerbatim(t *testing.T) {
	got := Decode("1** Jane *")
	want := []string{"1", "", " Jane ", ""}
	if len(got) != len(want) {
		t.Fatalf("Decode returned %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d = %q, want %q", i, got[i], want[i])
		}
	}
}
