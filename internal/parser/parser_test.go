package parser

import (
	"errors"
	"testing"

	"github.com/starford/livetext/internal/apperr"
)

type wantSection struct {
	marker int
	text   string
}

func assertSections(t *testing.T, text string, markers []string, want []wantSection) {
	t.Helper()
	s := NewSectioner([]byte(text), markers)
	if s.Count() != len(want) {
		t.Fatalf("Count() = %d, want %d (%+v)", s.Count(), len(want), s.Sections())
	}
	for i, w := range want {
		sec, err := s.Section(i)
		if err != nil {
			t.Fatalf("Section(%d): %v", i, err)
		}
		if sec.MarkerIndex != w.marker {
			t.Errorf("section %d marker = %d, want %d", i, sec.MarkerIndex, w.marker)
		}
		if got := string(sec.Bytes([]byte(text))); got != w.text {
			t.Errorf("section %d text = %q, want %q", i, got, w.text)
		}
	}
}

func TestSectioner_TwoMarkers(t *testing.T) {
	assertSections(t, "AAA\nfoo\nBBB\nbar\nbaz\n", []string{"AAA", "BBB"}, []wantSection{
		{0, "AAA\nfoo\n"},
		{1, "BBB\nbar\nbaz\n"},
	})
}

func TestSectioner_LeadingTextDropped(t *testing.T) {
	s := NewSectioner([]byte("junk\nAAA\nfoo\n"), []string{"AAA"})
	if s.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", s.Count())
	}
	sec, _ := s.Section(0)
	if sec.Offset != 5 || sec.Length != 8 {
		t.Errorf("section = %+v, want offset 5 length 8", sec)
	}
}

func TestSectioner_EmptyInput(t *testing.T) {
	for _, markers := range [][]string{nil, {"AAA"}, {"A", "B", "C"}} {
		if n := NewSectioner(nil, markers).Count(); n != 0 {
			t.Errorf("markers %v: Count() = %d, want 0", markers, n)
		}
		if n := NewSectioner([]byte{}, markers).Count(); n != 0 {
			t.Errorf("markers %v: Count() = %d, want 0", markers, n)
		}
	}
}

func TestSectioner_NoTrailingNewline(t *testing.T) {
	assertSections(t, "AAA\nfoo\nBBB", []string{"AAA", "BBB"}, []wantSection{
		{0, "AAA\nfoo\n"},
		{1, "BBB"},
	})
	assertSections(t, "AAA\nlast line", []string{"AAA"}, []wantSection{
		{0, "AAA\nlast line"},
	})
}

func TestSectioner_FirstMatchWins(t *testing.T) {
	// "!!ARB" is tested before the longer "!!ARBfp" and therefore claims the line.
	assertSections(t, "!!ARBfp1.0\nMOV\n", []string{"!!ARB", "!!ARBfp"}, []wantSection{
		{0, "!!ARBfp1.0\nMOV\n"},
	})
	assertSections(t, "!!ARBfp1.0\nMOV\n", []string{"!!ARBfp", "!!ARB"}, []wantSection{
		{0, "!!ARBfp1.0\nMOV\n"},
	})
}

func TestSectioner_MarkerMustStartLine(t *testing.T) {
	assertSections(t, "AAA\n  BBB indented\nx BBB\n", []string{"AAA", "BBB"}, []wantSection{
		{0, "AAA\n  BBB indented\nx BBB\n"},
	})
}

func TestSectioner_RepeatedMarker(t *testing.T) {
	assertSections(t, "//!!GLSLV\na\n//!!GLSLF\nb\n//!!GLSLV\nc\n", []string{"//!!GLSLV", "//!!GLSLF"}, []wantSection{
		{0, "//!!GLSLV\na\n"},
		{1, "//!!GLSLF\nb\n"},
		{0, "//!!GLSLV\nc\n"},
	})
}

func TestSectioner_EmptyMarkerTerminatesTable(t *testing.T) {
	assertSections(t, "AAA\nBBB\n", []string{"AAA", "", "BBB"}, []wantSection{
		{0, "AAA\nBBB\n"},
	})
}

func TestSectioner_NoMarkers(t *testing.T) {
	if n := NewSectioner([]byte("some\ntext\n"), nil).Count(); n != 0 {
		t.Errorf("Count() = %d, want 0", n)
	}
}

func TestSectioner_SectionsCoverTailWithoutGaps(t *testing.T) {
	text := []byte("pre\nAAA\n1\n2\nBBB\n3\n")
	s := NewSectioner(text, []string{"AAA", "BBB"})
	secs := s.Sections()
	for i := 1; i < len(secs); i++ {
		if secs[i].Offset != secs[i-1].Offset+secs[i-1].Length {
			t.Errorf("gap or overlap between section %d and %d", i-1, i)
		}
	}
	last := secs[len(secs)-1]
	if last.Offset+last.Length != len(text) {
		t.Errorf("last section ends at %d, want %d", last.Offset+last.Length, len(text))
	}
}

func TestSectioner_IndexOutOfRange(t *testing.T) {
	s := NewSectioner([]byte("AAA\n"), []string{"AAA"})
	for _, i := range []int{-1, 1, 5} {
		if _, err := s.Section(i); !errors.Is(err, apperr.ErrIndexOutOfRange) {
			t.Errorf("Section(%d) err = %v, want ErrIndexOutOfRange", i, err)
		}
	}
}

func TestSection_Header(t *testing.T) {
	text := []byte("!!ARBvp1.0\r\nDP4\n")
	sec := NewSectioner(text, []string{"!!ARBvp"}).Sections()[0]
	if got := sec.Header(text); got != "!!ARBvp1.0" {
		t.Errorf("Header() = %q", got)
	}
	single := []byte("//!!GLSLF")
	sec = NewSectioner(single, []string{"//!!GLSLF"}).Sections()[0]
	if got := sec.Header(single); got != "//!!GLSLF" {
		t.Errorf("Header() = %q", got)
	}
}

func TestSections_ReturnsCopy(t *testing.T) {
	s := NewSectioner([]byte("AAA\n"), []string{"AAA"})
	secs := s.Sections()
	secs[0].Length = 99
	if got, _ := s.Section(0); got.Length != 4 {
		t.Errorf("internal state mutated: %+v", got)
	}
}
