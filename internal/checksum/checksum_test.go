package checksum

import (
	"strings"
	"testing"
)

func TestSum_Deterministic(t *testing.T) {
	inputs := [][]byte{nil, {}, []byte("!!ARBvp1.0\nEND\n"), []byte(strings.Repeat("x", 4096))}
	for _, in := range inputs {
		if a, b := Sum(in), Sum(in); a != b {
			t.Errorf("Sum(%q) not deterministic: %s vs %s", in, a, b)
		}
	}
}

func TestSum_FixedLengthLowerHex(t *testing.T) {
	got := Sum([]byte("hello"))
	if len(got) != HexLen {
		t.Fatalf("len = %d, want %d", len(got), HexLen)
	}
	if got != strings.ToLower(got) {
		t.Errorf("digest not lowercase: %s", got)
	}
	if got != "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824" {
		t.Errorf("unexpected digest %s", got)
	}
}

func TestSum_DistinguishesContent(t *testing.T) {
	if Sum([]byte("a")) == Sum([]byte("b")) {
		t.Error("different inputs produced the same digest")
	}
}
