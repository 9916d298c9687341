package textitem

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/livetext/internal/apperr"
	"github.com/starford/livetext/internal/checksum"
	"github.com/starford/livetext/internal/mirror"
)

func instantSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func prefix(t *testing.T) string {
	t.Helper()
	return t.TempDir() + string(os.PathSeparator)
}

func newItem(t *testing.T, text string, cfg Config) *Item {
	t.Helper()
	it, err := New([]byte(text), cfg, nil, mirror.WithSleeper(instantSleep))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return it
}

func currentText(t *testing.T, it *Item) string {
	t.Helper()
	b, err := it.CurrentText()
	if err != nil {
		t.Fatalf("CurrentText: %v", err)
	}
	return string(b)
}

type recordingLauncher struct {
	path       string
	foreground bool
}

func (r *recordingLauncher) Open(path string, foreground bool) error {
	r.path, r.foreground = path, foreground
	return nil
}

func TestMirrorPath_Format(t *testing.T) {
	h := checksum.Sum([]byte("x"))
	if got := MirrorPath("/tmp/mirrors/", h, ".glsl"); got != "/tmp/mirrors/"+h+".glsl" {
		t.Errorf("MirrorPath = %q", got)
	}
}

func TestNew_DeterministicIdentity(t *testing.T) {
	p := prefix(t)
	a := newItem(t, "!!ARBvp1.0\nEND\n", Config{Prefix: p, Suffix: ".arb"})
	b := newItem(t, "!!ARBvp1.0\nEND\n", Config{Prefix: p, Suffix: ".arb"})
	if a.Hash() != b.Hash() || a.Path() != b.Path() {
		t.Errorf("same text produced different identities: %s/%s vs %s/%s", a.Hash(), a.Path(), b.Hash(), b.Path())
	}
	if !strings.HasPrefix(a.Path(), p) || !strings.HasSuffix(a.Path(), ".arb") {
		t.Errorf("path %q lacks prefix/suffix", a.Path())
	}
	c := newItem(t, "!!ARBvp1.0\nMOV\nEND\n", Config{Prefix: p, Suffix: ".arb"})
	if c.Path() == a.Path() {
		t.Error("different text mapped to the same mirror path")
	}
}

func TestNew_FreshMirrorGetsGeneratedText(t *testing.T) {
	it := newItem(t, "generated shader text", Config{Prefix: prefix(t), Suffix: ".glsl"})
	if it.Source() != SourceGenerated {
		t.Errorf("source = %v", it.Source())
	}
	if currentText(t, it) != "generated shader text" {
		t.Errorf("current = %q", currentText(t, it))
	}
	disk, err := os.ReadFile(it.Path())
	if err != nil || string(disk) != "generated shader text" {
		t.Errorf("disk = %q err=%v", disk, err)
	}
	if !it.HasData() {
		t.Error("HasData() = false after publishing")
	}
}

func TestNew_OverridePolicy(t *testing.T) {
	const generated = "generated text from the runtime"
	const edited = "hand edited replacement that is long enough"

	setup := func(t *testing.T) string {
		p := prefix(t)
		path := MirrorPath(p, checksum.Sum([]byte(generated)), ".glsl")
		if err := os.WriteFile(path, []byte(edited), 0o644); err != nil {
			t.Fatal(err)
		}
		return p
	}

	t.Run("honor disk edit", func(t *testing.T) {
		p := setup(t)
		it := newItem(t, generated, Config{Prefix: p, Suffix: ".glsl"})
		if it.Source() != SourceDisk {
			t.Errorf("source = %v, want disk", it.Source())
		}
		if currentText(t, it) != edited {
			t.Errorf("current = %q, want edited", currentText(t, it))
		}
		if !bytes.Equal(it.Original(), []byte(generated)) {
			t.Errorf("original = %q", it.Original())
		}
	})

	t.Run("force overwrite", func(t *testing.T) {
		p := setup(t)
		it := newItem(t, generated, Config{Prefix: p, Suffix: ".glsl", Overwrite: true})
		if it.Source() != SourceGenerated {
			t.Errorf("source = %v, want generated", it.Source())
		}
		if currentText(t, it) != generated {
			t.Errorf("current = %q", currentText(t, it))
		}
		disk, _ := os.ReadFile(it.Path())
		if string(disk) != generated {
			t.Errorf("disk not overwritten: %q", disk)
		}
	})
}

func TestNew_StubMirrorIsReplaced(t *testing.T) {
	const generated = "generated text"
	for _, stub := range []string{"", "short", "exactly10!"} {
		p := prefix(t)
		path := MirrorPath(p, checksum.Sum([]byte(generated)), ".txt")
		if err := os.WriteFile(path, []byte(stub), 0o644); err != nil {
			t.Fatal(err)
		}
		it := newItem(t, generated, Config{Prefix: p, Suffix: ".txt"})
		if it.Source() != SourceGenerated {
			t.Errorf("stub %q: source = %v, want generated", stub, it.Source())
		}
		disk, _ := os.ReadFile(path)
		if string(disk) != generated {
			t.Errorf("stub %q: disk = %q", stub, disk)
		}
	}
}

func TestNew_CustomThreshold(t *testing.T) {
	const generated = "generated"
	p := prefix(t)
	path := MirrorPath(p, checksum.Sum([]byte(generated)), "")
	_ = os.WriteFile(path, []byte("tiny"), 0o644)

	it := newItem(t, generated, Config{Prefix: p, MinOverrideSize: 2})
	if it.Source() != SourceDisk || currentText(t, it) != "tiny" {
		t.Errorf("source=%v current=%q", it.Source(), currentText(t, it))
	}
}

func TestNew_NegativeThresholdKeepsAnyEdit(t *testing.T) {
	const generated = "generated"
	for _, tc := range []struct {
		disk string
		want Source
	}{
		{"x", SourceDisk},
		{"", SourceGenerated},
	} {
		p := prefix(t)
		path := MirrorPath(p, checksum.Sum([]byte(generated)), "")
		if err := os.WriteFile(path, []byte(tc.disk), 0o644); err != nil {
			t.Fatal(err)
		}
		it := newItem(t, generated, Config{Prefix: p, MinOverrideSize: -1})
		if it.Source() != tc.want {
			t.Errorf("disk %q: source = %v, want %v", tc.disk, it.Source(), tc.want)
		}
	}
}

func TestNew_CopiesInput(t *testing.T) {
	buf := []byte("mutable generator buffer")
	it, err := New(buf, Config{Prefix: prefix(t)}, nil)
	if err != nil {
		t.Fatal(err)
	}
	buf[0] = 'X'
	if currentText(t, it) != "mutable generator buffer" {
		t.Errorf("item aliased caller buffer")
	}
}

func TestPoll_AdoptsExternalEdit(t *testing.T) {
	it := newItem(t, "generated version", Config{Prefix: prefix(t), Suffix: ".glsl"})

	changed, err := it.PollForChanges(context.Background())
	if err != nil || changed {
		t.Fatalf("initial poll: changed=%v err=%v", changed, err)
	}

	later := time.Now().Add(time.Minute)
	_ = os.WriteFile(it.Path(), []byte("edited in an external editor"), 0o644)
	_ = os.Chtimes(it.Path(), later, later)

	changed, err = it.PollForChanges(context.Background())
	if err != nil || !changed {
		t.Fatalf("changed=%v err=%v", changed, err)
	}
	if currentText(t, it) != "edited in an external editor" {
		t.Errorf("current = %q", currentText(t, it))
	}
	if it.Source() != SourceDisk {
		t.Errorf("source = %v", it.Source())
	}

	changed, _ = it.PollForChanges(context.Background())
	if changed {
		t.Error("idempotent poll reported change")
	}
}

func TestPoll_EmptiedMirrorIsRestored(t *testing.T) {
	it := newItem(t, "keep me around", Config{Prefix: prefix(t)})

	later := time.Now().Add(time.Minute)
	_ = os.WriteFile(it.Path(), nil, 0o644)
	_ = os.Chtimes(it.Path(), later, later)

	changed, err := it.PollForChanges(context.Background())
	if err != nil || changed {
		t.Fatalf("changed=%v err=%v, want false/nil", changed, err)
	}
	if currentText(t, it) != "keep me around" {
		t.Errorf("current = %q", currentText(t, it))
	}
	disk, _ := os.ReadFile(it.Path())
	if string(disk) != "keep me around" {
		t.Errorf("disk = %q, want restored text", disk)
	}
}

func TestPoll_DeletedMirrorSelfHeals(t *testing.T) {
	it := newItem(t, "survives deletion", Config{Prefix: prefix(t)})
	_ = os.Remove(it.Path())

	changed, err := it.PollForChanges(context.Background())
	if err != nil || changed {
		t.Fatalf("changed=%v err=%v", changed, err)
	}
	if _, err := os.Stat(it.Path()); err != nil {
		t.Errorf("mirror not recreated: %v", err)
	}
}

func TestCurrentText_Unresolved(t *testing.T) {
	var it Item
	_, err := it.CurrentText()
	if !errors.Is(err, apperr.ErrInconsistentState) {
		t.Errorf("err = %v, want ErrInconsistentState", err)
	}
	if _, err := it.PollForChanges(context.Background()); !errors.Is(err, apperr.ErrInconsistentState) {
		t.Errorf("poll err = %v, want ErrInconsistentState", err)
	}
}

func TestNew_MirrorUnwritable(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	_ = os.WriteFile(blocker, []byte("x"), 0o644)

	_, err := New([]byte("text"), Config{Prefix: blocker + string(os.PathSeparator)}, nil)
	if !errors.Is(err, apperr.ErrIO) {
		t.Errorf("err = %v, want ErrIO", err)
	}
}

func TestOpenInEditor(t *testing.T) {
	it := newItem(t, "open me", Config{Prefix: prefix(t), Suffix: ".glsl"})
	l := &recordingLauncher{}
	if err := it.OpenInEditor(l, true); err != nil {
		t.Fatal(err)
	}
	if l.path != it.Path() || !l.foreground {
		t.Errorf("launcher got %q fg=%v", l.path, l.foreground)
	}
}

func TestSource_String(t *testing.T) {
	if SourceGenerated.String() != "generated" || SourceDisk.String() != "disk" || SourceUnresolved.String() != "unresolved" {
		t.Error("unexpected Source names")
	}
}
