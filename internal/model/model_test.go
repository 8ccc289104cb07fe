package model

// model_test.go — Loader and registry tests. Fixtures are written to
// t.TempDir() so every test owns its corpus.

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"douane/internal/document"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

const flatCorpus = `{
  "chapitres": [
    {
      "id": "ch1", "numero": 1, "titre": "Intro", "couleur": "#112233",
      "etapes": [
        {"id": "s1", "titre": "Video", "type": "video", "points": 5,
         "exercices": [{"id": "e1", "type": "video", "points": 2}]},
        {"id": "s2", "titre": "Quiz", "type": "qcm",
         "exercices": [{"id": "e2", "type": "qcm"}, {"id": "e3", "type": "qcm"}]}
      ]
    },
    {
      "id": "ch2", "numero": 2,
      "etapes": [
        {"id": "s3", "type": "exercise_group", "exercices": [{"id": "e4", "type": "video"}]}
      ]
    }
  ]
}`

// ---------------------------------------------------------------------------
// Flat layout
// ---------------------------------------------------------------------------

func TestLoadFlat(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "chapitres.json", flatCorpus)

	c, err := LoadFlat(document.NewStore(dir), "chapitres.json")
	require.NoError(t, err)

	if c.Layout != LayoutFlat {
		t.Errorf("Layout = %q, want flat", c.Layout)
	}
	var ids []string
	for _, ch := range c.Chapters {
		ids = append(ids, ch.ID())
	}
	if diff := cmp.Diff([]string{"ch1", "ch2"}, ids); diff != "" {
		t.Errorf("chapters (-want +got):\n%s", diff)
	}
	if got := len(c.Steps()); got != 3 {
		t.Errorf("steps = %d, want 3", got)
	}
	if got := len(c.Exercises()); got != 4 {
		t.Errorf("exercises = %d, want 4", got)
	}
	if got := len(c.ExercisesOfType("video")); got != 2 {
		t.Errorf("video exercises = %d, want 2", got)
	}
	if got := c.Registry.Len(); got != 9 {
		t.Errorf("registry ids = %d, want 9", got)
	}
	if len(c.Registry.Duplicates) != 0 || len(c.Registry.Missing) != 0 {
		t.Errorf("unexpected registry problems: %+v %+v", c.Registry.Duplicates, c.Registry.Missing)
	}

	ex := c.Chapters[0].Steps[0].Exercises[0]
	if ex.ChapterID != "ch1" || ex.StepID != "s1" || ex.Points() != 2 {
		t.Errorf("exercise context = %+v points %d", ex, ex.Points())
	}
}

func TestLoadFlatTopLevelArray(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "c.json", `[{"id":"a","etapes":[]},{"id":"b"}]`)
	c, err := LoadFlat(document.NewStore(dir), "c.json")
	require.NoError(t, err)
	if len(c.Chapters) != 2 {
		t.Errorf("chapters = %d, want 2", len(c.Chapters))
	}
}

func TestLoadFlatErrors(t *testing.T) {
	dir := t.TempDir()
	store := document.NewStore(dir)

	_, err := LoadFlat(store, "absent.json")
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("missing corpus err = %v, want fs.ErrNotExist", err)
	}

	writeFile(t, dir, "bad.json", `{"chapitres": [`)
	_, err = LoadFlat(store, "bad.json")
	var me *document.MalformedError
	if !errors.As(err, &me) {
		t.Errorf("malformed corpus err = %v, want *MalformedError", err)
	}

	writeFile(t, dir, "nochapters.json", `{"other": []}`)
	if _, err := LoadFlat(store, "nochapters.json"); err == nil {
		t.Error("expected error for document without chapitres")
	}
}

// ---------------------------------------------------------------------------
// Registry
// ---------------------------------------------------------------------------

func TestRegistryDuplicatesAcrossKinds(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "chapitres.json", `{"chapitres":[
	  {"id":"x","etapes":[{"id":"s1","exercices":[{"id":"x","type":"qcm"},{"type":"qcm"}]}]}
	]}`)
	c, err := LoadFlat(document.NewStore(dir), "chapitres.json")
	require.NoError(t, err)

	if len(c.Registry.Duplicates) != 1 {
		t.Fatalf("duplicates = %+v, want 1", c.Registry.Duplicates)
	}
	d := c.Registry.Duplicates[0]
	if d.ID != "x" || d.First.Kind != KindChapter || d.Second.Kind != KindExercise || d.Second.StepID != "s1" {
		t.Errorf("duplicate = %+v", d)
	}
	if len(c.Registry.Missing) != 1 || c.Registry.Missing[0].Kind != KindExercise {
		t.Errorf("missing = %+v, want one exercise", c.Registry.Missing)
	}
}

// ---------------------------------------------------------------------------
// Levels layout
// ---------------------------------------------------------------------------

func TestLoadLevels(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "N1/chapitres.json", `{"chapitres":[{"id":"ch1","numero":1,"etapes":[{"id":"s1","type":"video","exercices":[]}]}]}`)
	writeFile(t, dir, "N1/exercices/ch1.json", `{"exercices":[{"id":"e1","type":"video"},{"id":"e2","type":"qcm"}]}`)
	writeFile(t, dir, "N2/chapitres.json", `{"chapitres":[{"id":"ch9","etapes":[]}]}`)

	specs := []LevelSpec{{ID: "N1"}, {ID: "N2"}, {ID: "N3", EmptyByDesign: true}}
	c, err := LoadLevels(document.NewStore(dir), specs)
	require.NoError(t, err)

	if len(c.Levels) != 3 {
		t.Fatalf("levels = %d, want 3", len(c.Levels))
	}
	ch1, ok := c.Chapter("ch1")
	if !ok {
		t.Fatal("ch1 not indexed")
	}
	if !ch1.ExerciseFileFound || len(ch1.Exercises) != 2 {
		t.Errorf("ch1 exercise file found=%v exercises=%d", ch1.ExerciseFileFound, len(ch1.Exercises))
	}
	ch9, _ := c.Chapter("ch9")
	if ch9.ExerciseFileFound || ch9.ExerciseFile != "N2/exercices/ch9.json" {
		t.Errorf("ch9 exercise file = %q found=%v", ch9.ExerciseFile, ch9.ExerciseFileFound)
	}

	// N3 has no document at all.
	if len(c.Issues) != 1 || c.Issues[0].Path != "N3/chapitres.json" || !errors.Is(c.Issues[0].Err, fs.ErrNotExist) {
		t.Errorf("issues = %+v", c.Issues)
	}
	if c.Levels[2].Source != nil {
		t.Error("N3 should have no source")
	}
}

// ---------------------------------------------------------------------------
// Bundle layout
// ---------------------------------------------------------------------------

func TestLoadBundle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bundle.json", `{"niveaux":[
	  {"id":"N1","couleur":"#abcdef","chapitres":[{"id":"ch1","etapes":[{"id":"s1","exercices":[{"id":"e1"}]}]}]},
	  {"id":"N2","couleur":"#000000","chapitres":[]}
	]}`)
	c, err := LoadBundle(document.NewStore(dir), "bundle.json")
	require.NoError(t, err)

	if len(c.Levels) != 2 || c.Levels[0].Color != "#abcdef" || len(c.Levels[1].Chapters) != 0 {
		t.Errorf("levels = %+v", c.Levels)
	}
	if c.Chapters[0].LevelID != "N1" {
		t.Errorf("LevelID = %q, want N1", c.Chapters[0].LevelID)
	}
}

// ---------------------------------------------------------------------------
// Hash and dirty tracking
// ---------------------------------------------------------------------------

func TestHashIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "chapitres.json", flatCorpus)
	store := document.NewStore(dir)

	a, err := LoadFlat(store, "chapitres.json")
	require.NoError(t, err)
	b, err := LoadFlat(store, "chapitres.json")
	require.NoError(t, err)
	if a.Hash() != b.Hash() {
		t.Error("hash differs between identical loads")
	}

	writeFile(t, dir, "chapitres.json", flatCorpus+"\n")
	c, err := LoadFlat(store, "chapitres.json")
	require.NoError(t, err)
	if a.Hash() == c.Hash() {
		t.Error("hash did not change with content")
	}
}

func TestDirtySources(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "chapitres.json", flatCorpus)
	c, err := LoadFlat(document.NewStore(dir), "chapitres.json")
	require.NoError(t, err)

	if len(c.DirtySources()) != 0 {
		t.Fatal("fresh corpus has dirty sources")
	}
	c.Chapters[0].Steps[0].Source.MarkDirty()
	if got := c.DirtySources(); len(got) != 1 || got[0].Path != "chapitres.json" {
		t.Errorf("dirty = %+v", got)
	}
}

func TestStepFlags(t *testing.T) {
	tests := []struct {
		raw      string
		resolved bool
		has      bool
	}{
		{`{"id":"s"}`, false, false},
		{`{"id":"s","consultation":true,"validation":false}`, true, true},
		{`{"id":"s","consultation":false,"validation":false}`, false, true},
		{`{"id":"s","validation":"yes"}`, false, true},
	}
	for _, tt := range tests {
		obj, err := document.DecodeObject([]byte(tt.raw))
		require.NoError(t, err)
		s := &Step{Raw: obj}
		if s.Resolved() != tt.resolved || s.HasFlags() != tt.has {
			t.Errorf("%s: resolved=%v has=%v", tt.raw, s.Resolved(), s.HasFlags())
		}
	}
}
