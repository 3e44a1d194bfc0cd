// Package sourceroot is the filesystem abstraction the target analyzer
// reads file/tree/glob/symlink reference kinds through.
package sourceroot

import (
	"fmt"
	"io/fs"
	"path"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"
)

// FS wraps an afero.Fs rooted at a repository checkout, giving the
// analyzer a single read surface regardless of whether the backing store
// is a real directory, a memory-mapped fixture (tests) or a read-only
// overlay.
type FS struct {
	fs   afero.Fs
	root string
}

// New wraps fs, treating root as the logical root every reference-kind
// path is resolved relative to.
func New(fsys afero.Fs, root string) *FS {
	return &FS{fs: fsys, root: root}
}

// NewOS builds an FS rooted at a real directory on the local filesystem.
func NewOS(root string) *FS {
	return New(afero.NewBasePathFs(afero.NewOsFs(), root), root)
}

// ReadFile reads the file at logical path p, relative to the root.
func (s *FS) ReadFile(p string) ([]byte, error) {
	return afero.ReadFile(s.fs, p)
}

// symlinkReader is satisfied structurally by afero.OsFs (and any other
// backend that bothers to support symlinks); declared locally so the
// type assertion below doesn't depend on afero exporting a matching
// named interface.
type symlinkReader interface {
	ReadlinkIfPossible(name string) (string, error)
}

// ReadLink reads the target of the symlink at p. afero's generic Fs
// interface has no native symlink support, so this requires the
// underlying Fs to implement symlinkReader (as afero.OsFs does).
func (s *FS) ReadLink(p string) (string, error) {
	reader, ok := s.fs.(symlinkReader)
	if !ok {
		return "", fmt.Errorf("sourceroot: filesystem does not support symlinks")
	}
	return reader.ReadlinkIfPossible(p)
}

// ListTree recursively lists every regular file and symlink under dir,
// returning logical paths relative to the root.
func (s *FS) ListTree(dir string) ([]string, error) {
	var out []string
	err := afero.Walk(s.fs, dir, func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		out = append(out, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

// Glob matches pattern (a doublestar/fnmatch-style POSIX pattern) against
// every entry directly inside dir, returning the logical paths of the
// matches.
func (s *FS) Glob(dir, pattern string) ([]string, error) {
	entries, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		ok, err := doublestar.Match(pattern, e.Name())
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, path.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

// IsDir reports whether p names a directory.
func (s *FS) IsDir(p string) (bool, error) {
	info, err := s.fs.Stat(p)
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}
