package backup_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"douane/internal/backup"
)

func write(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestCreateAndOpen(t *testing.T) {
	root := t.TempDir()
	s, err := backup.Create(root, "run-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	want := filepath.Join(root, ".douane", "backups", "run-1")
	if s.Dir != want {
		t.Errorf("Dir = %s, want %s", s.Dir, want)
	}

	// Create again must fail.
	if _, err := backup.Create(root, "run-1"); err == nil {
		t.Fatal("expected error on duplicate Create")
	}
	if _, err := backup.Open(root, "run-1"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := backup.Open(root, "missing"); err == nil {
		t.Fatal("expected error for missing backup")
	}
}

func TestSaveAndRestore(t *testing.T) {
	root := t.TempDir()
	write(t, root, "chapitres.json", "original")
	write(t, root, "N1/exercices/ch1.json", "exercises")

	s, err := backup.Create(root, "run-2")
	if err != nil {
		t.Fatal(err)
	}
	for _, rel := range []string{"chapitres.json", "N1/exercices/ch1.json", "chapitres.json"} {
		if err := s.Save(rel); err != nil {
			t.Fatalf("Save(%s): %v", rel, err)
		}
	}
	if len(s.Saved) != 2 {
		t.Errorf("Saved = %v, want 2 entries", s.Saved)
	}
	files, err := s.Files()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"N1/exercices/ch1.json", "chapitres.json"}, files); diff != "" {
		t.Errorf("Files (-want +got):\n%s", diff)
	}

	// Overwrite with a shorter content, then restore.
	write(t, root, "chapitres.json", "new")
	if err := s.Restore(); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	data, _ := os.ReadFile(filepath.Join(root, "chapitres.json"))
	if string(data) != "original" {
		t.Errorf("restored content = %q", data)
	}
}

func TestList(t *testing.T) {
	root := t.TempDir()
	ids, err := backup.List(root)
	if err != nil || len(ids) != 0 {
		t.Fatalf("List on empty root = %v, %v", ids, err)
	}
	for _, id := range []string{"b", "a"} {
		if _, err := backup.Create(root, id); err != nil {
			t.Fatal(err)
		}
	}
	ids, err = backup.List(root)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"a", "b"}, ids); diff != "" {
		t.Errorf("List (-want +got):\n%s", diff)
	}
}
