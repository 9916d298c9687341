package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func tempInbox(t *testing.T, suffixes ...string) *FS {
	t.Helper()
	dir := t.TempDir()
	fs, err := NewFS(dir, suffixes...)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func put(t *testing.T, fs *FS, rel, content string) {
	t.Helper()
	if err := WriteFile(filepath.Join(fs.Root(), rel), []byte(content)); err != nil {
		t.Fatalf("WriteFile(%s): %v", rel, err)
	}
}

func TestWriteFileAndRead(t *testing.T) {
	s := tempInbox(t)
	put(t, s, "water.glsl", "//!!GLSLV\nvoid main(){}\n")
	got, err := s.Read("water.glsl")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "//!!GLSLV\nvoid main(){}\n" {
		t.Errorf("content mismatch: got %q", got)
	}
}

func TestWriteFileCreatesSubdirs(t *testing.T) {
	s := tempInbox(t)
	put(t, s, "a/b/c.arb", "deep")
	got, err := s.Read("a/b/c.arb")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "deep" {
		t.Errorf("content = %q", got)
	}
}

func TestWriteFileEmpty(t *testing.T) {
	s := tempInbox(t)
	put(t, s, "empty.txt", "")
	info, err := os.Stat(filepath.Join(s.Root(), "empty.txt"))
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Size() != 0 {
		t.Errorf("size = %d, want 0", info.Size())
	}
}

func TestList_FiltersBySuffix(t *testing.T) {
	s := tempInbox(t, ".glsl", ".arb")
	put(t, s, "a.glsl", "a")
	put(t, s, "sub/b.arb", "b")
	put(t, s, "readme.txt", "ignored")

	items, err := s.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len = %d, want 2", len(items))
	}
	for _, it := range items {
		if it.Checksum == "" || it.Size == 0 {
			t.Errorf("incomplete metadata: %+v", it)
		}
	}
}

func TestMatches(t *testing.T) {
	s := tempInbox(t, ".glsl")
	cases := []struct {
		name string
		want bool
	}{
		{"x.glsl", true},
		{"dir/x.glsl", true},
		{"x.arb", false},
		{".livetext-tmp-1234", false},
		{".livetext-tmp-1234.glsl", false},
	}
	for _, tc := range cases {
		if got := s.Matches(tc.name); got != tc.want {
			t.Errorf("Matches(%q) = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestTraversalBlocked(t *testing.T) {
	s := tempInbox(t)
	for _, p := range []string{"../../etc/passwd", "../outside.glsl", "/etc/shadow"} {
		if _, err := s.Read(p); err == nil {
			t.Errorf("expected error for path %q", p)
		}
	}
}

func TestWriteFile_NoLeftoverTemp(t *testing.T) {
	s := tempInbox(t)
	put(t, s, "atomic.glsl", "original content")
	put(t, s, "atomic.glsl", "updated content")

	got, _ := s.Read("atomic.glsl")
	if string(got) != "updated content" {
		t.Errorf("expected updated content, got %q", got)
	}
	matches, _ := filepath.Glob(filepath.Join(s.Root(), ".livetext-tmp-*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestWriteFile_ParentIsFile(t *testing.T) {
	s := tempInbox(t)
	put(t, s, "blocker", "x")
	if err := WriteFile(filepath.Join(s.Root(), "blocker", "child.glsl"), []byte("y")); err == nil {
		t.Error("expected error when parent is a regular file")
	}
}

func TestNewFS_NonExistentDir(t *testing.T) {
	if _, err := NewFS(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for non-existent dir")
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp(t.TempDir(), "livetext-test-*")
	_ = f.Close()
	if _, err := NewFS(f.Name()); err == nil {
		t.Error("expected error when root is a file")
	}
}
