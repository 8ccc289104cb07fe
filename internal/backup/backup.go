// Package backup keeps copies of corpus documents before they are rewritten
// in place.
//
// Directory layout:
//
//	<root>/.douane/backups/<run-id>/
//	    <relative path of each saved document>
package backup

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

// Snapshot is one run's backup directory.
type Snapshot struct {
	Root  string // corpus root
	Dir   string
	RunID string
	Saved []string // relative paths, in save order
}

// baseDir returns <root>/.douane/backups.
func baseDir(root string) string {
	return filepath.Join(root, ".douane", "backups")
}

// Create makes <root>/.douane/backups/<runID>/ and errors if it already
// exists.
func Create(root, runID string) (*Snapshot, error) {
	dir := filepath.Join(baseDir(root), runID)
	if _, err := os.Stat(dir); err == nil {
		return nil, fmt.Errorf("backup %q already exists at %s", runID, dir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup: %w", err)
	}
	return &Snapshot{Root: root, Dir: dir, RunID: runID}, nil
}

// Open opens an existing backup.
func Open(root, runID string) (*Snapshot, error) {
	dir := filepath.Join(baseDir(root), runID)
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("backup %q not found", runID)
	}
	return &Snapshot{Root: root, Dir: dir, RunID: runID}, nil
}

// Save copies the document at rel (relative to the corpus root) into the
// snapshot, preserving its relative path. Saving the same path twice keeps
// the first copy.
func (s *Snapshot) Save(rel string) error {
	for _, p := range s.Saved {
		if p == rel {
			return nil
		}
	}
	dst := filepath.Join(s.Dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("backup %s: %w", rel, err)
	}
	if err := copyFile(filepath.Join(s.Root, filepath.FromSlash(rel)), dst); err != nil {
		return fmt.Errorf("backup %s: %w", rel, err)
	}
	s.Saved = append(s.Saved, rel)
	return nil
}

// Restore copies every file of the snapshot back over the corpus.
func (s *Snapshot) Restore() error {
	if err := copyDir(s.Dir, s.Root); err != nil {
		return fmt.Errorf("restore %s: %w", s.RunID, err)
	}
	return nil
}

// Files returns the relative paths held by the snapshot, sorted.
func (s *Snapshot) Files() ([]string, error) {
	var files []string
	err := filepath.Walk(s.Dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.Dir, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list backup %s: %w", s.RunID, err)
	}
	sort.Strings(files)
	return files, nil
}

// List returns the run ids of all backups under root, sorted.
func List(root string) ([]string, error) {
	entries, err := os.ReadDir(baseDir(root))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read backups dir: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// copyDir recursively copies src to dst.
func copyDir(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target)
	})
}

// copyFile copies a single file from src to dst, preserving permissions.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode())
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
