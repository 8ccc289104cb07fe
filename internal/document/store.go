package document

// store.go — Filesystem access for corpus documents, rooted at a directory.
// Every write goes through a temporary file in the destination directory and
// a rename, so readers never observe a half-written document.

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Store reads and writes documents relative to Root.
type Store struct {
	Root string
}

// NewStore returns a store rooted at root.
func NewStore(root string) *Store {
	return &Store{Root: root}
}

// Path resolves rel against the store root. Absolute paths are returned
// unchanged.
func (s *Store) Path(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(s.Root, rel)
}

// Exists reports whether rel exists.
func (s *Store) Exists(rel string) bool {
	_, err := os.Stat(s.Path(rel))
	return err == nil
}

// ReadBytes returns the raw bytes of rel. A missing file yields an error
// wrapping fs.ErrNotExist.
func (s *Store) ReadBytes(rel string) ([]byte, error) {
	data, err := os.ReadFile(s.Path(rel))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rel, err)
	}
	return data, nil
}

// Read decodes the document at rel.
func (s *Store) Read(rel string) (any, error) {
	data, err := s.ReadBytes(rel)
	if err != nil {
		return nil, err
	}
	v, err := Decode(data)
	if err != nil {
		return nil, withPath(err, rel)
	}
	return v, nil
}

// Load decodes the document at rel and also returns its raw bytes.
func (s *Store) Load(rel string) (any, []byte, error) {
	data, err := s.ReadBytes(rel)
	if err != nil {
		return nil, nil, err
	}
	v, err := Decode(data)
	if err != nil {
		return nil, nil, withPath(err, rel)
	}
	return v, data, nil
}

// ReadObject decodes the document at rel and requires a top-level object.
func (s *Store) ReadObject(rel string) (*Object, error) {
	data, err := s.ReadBytes(rel)
	if err != nil {
		return nil, err
	}
	obj, err := DecodeObject(data)
	if err != nil {
		return nil, withPath(err, rel)
	}
	return obj, nil
}

// Write encodes v and atomically replaces rel, creating parent directories.
func (s *Store) Write(rel string, v any) error {
	data, err := Encode(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", rel, err)
	}
	return s.WriteBytes(rel, data)
}

// WriteBytes atomically replaces rel with data.
func (s *Store) WriteBytes(rel string, data []byte) (err error) {
	path := s.Path(rel)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", rel, err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()
	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", rel, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", rel, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", rel, err)
	}
	if err = os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", rel, err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename %s: %w", rel, err)
	}
	return nil
}

// Touch creates an empty placeholder file at rel if it does not exist.
func (s *Store) Touch(rel string) error {
	if s.Exists(rel) {
		return nil
	}
	return s.WriteBytes(rel, nil)
}

// List returns the names of the regular files in directory rel with the
// given extension, sorted. A missing directory lists nothing.
func (s *Store) List(rel, ext string) ([]string, error) {
	entries, err := os.ReadDir(s.Path(rel))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", rel, err)
	}
	var out []string
	for _, e := range entries {
		if e.Type().IsRegular() && filepath.Ext(e.Name()) == ext {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

func withPath(err error, rel string) error {
	var me *MalformedError
	if errors.As(err, &me) {
		me.Path = rel
		return me
	}
	return fmt.Errorf("%s: %w", rel, err)
}
