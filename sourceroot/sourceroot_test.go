package sourceroot

import (
	"testing"

	"github.com/spf13/afero"
)

func TestReadFileAndListTree(t *testing.T) {
	mem := afero.NewMemMapFs()
	afero.WriteFile(mem, "src/a.txt", []byte("hello"), 0o644)
	afero.WriteFile(mem, "src/b.txt", []byte("world"), 0o644)

	fsys := New(mem, "")
	data, err := fsys.ReadFile("src/a.txt")
	if err != nil || string(data) != "hello" {
		t.Fatalf("unexpected read: %v %q", err, data)
	}

	files, err := fsys.ListTree("src")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(files) != 2 || files[0] != "src/a.txt" || files[1] != "src/b.txt" {
		t.Fatalf("unexpected tree listing: %v", files)
	}
}

func TestGlobMatchesDirectChildren(t *testing.T) {
	mem := afero.NewMemMapFs()
	afero.WriteFile(mem, "pkg/foo.go", []byte(""), 0o644)
	afero.WriteFile(mem, "pkg/bar.go", []byte(""), 0o644)
	afero.WriteFile(mem, "pkg/readme.md", []byte(""), 0o644)

	fsys := New(mem, "")
	matches, err := fsys.Glob("pkg", "*.go")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %v", matches)
	}
}
