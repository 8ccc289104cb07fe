package validate

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"douane/internal/document"
	"douane/internal/model"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

var levels = []model.LevelSpec{
	{ID: "N1", Color: "#667eea"},
	{ID: "N2", Color: "#667eea"},
	{ID: "N3", EmptyByDesign: true},
}

func writeFiles(t *testing.T, files map[string]string) *document.Store {
	t.Helper()
	dir := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return document.NewStore(dir)
}

func run(t *testing.T, store *document.Store, opts Options) *Report {
	t.Helper()
	if opts.Levels == nil {
		opts.Levels = levels
	}
	if opts.DefaultPath == "" {
		opts.DefaultPath = "chapitres.json"
	}
	r, err := Run(context.Background(), store, opts)
	require.NoError(t, err)
	return r
}

func checks(fs []Finding) []string {
	var out []string
	for _, f := range fs {
		out = append(out, f.Check)
	}
	return out
}

const goodFlat = `{"chapitres":[
  {"id":"ch1","numero":1,"couleur":"#112233","etapes":[
    {"id":"s1","type":"video","points":10,"consultation":true,"validation":false,
     "exercices":[{"id":"e1","type":"video","points":4},{"id":"e2","type":"video","points":6}]}
  ]},
  {"id":"ch2","numero":2,"couleur":"445566","etapes":[
    {"id":"s2","type":"qcm","points":0,"consultation":false,"validation":true,"exercices":[]}
  ]}
]}`

// ---------------------------------------------------------------------------
// Flat layout
// ---------------------------------------------------------------------------

func TestFlatOK(t *testing.T) {
	r := run(t, writeFiles(t, map[string]string{"chapitres.json": goodFlat}), Options{})
	if !r.OK() {
		t.Fatalf("unexpected violations:\n%s", Text(r))
	}
	if r.Layout != model.LayoutFlat {
		t.Errorf("layout = %s", r.Layout)
	}
	want := Totals{Levels: 0, Chapters: 2, Steps: 2, Exercises: 2, Points: 20}
	if diff := cmp.Diff(want, r.Totals); diff != "" {
		t.Errorf("totals (-want +got):\n%s", diff)
	}
}

func TestFlatViolations(t *testing.T) {
	content := `{"chapitres":[
	  {"id":"ch1","couleur":"#12345G","externalDataFile":"data/none.json","etapes":[
	    {"id":"s1","titre":"A","exercices":[{"id":"ch1","points":5}]},
	    {"id":"s2","consultation":true,"validation":true,"points":1,"exercices":[{"id":"e9","points":3}]}
	  ]}
	]}`
	r := run(t, writeFiles(t, map[string]string{"chapitres.json": content}), Options{})
	if r.OK() {
		t.Fatal("expected violations")
	}
	wantViolations := []string{CheckDuplicateID, CheckColor, CheckUnresolvedStep, CheckConflictingFlags}
	if diff := cmp.Diff(wantViolations, checks(r.Violations())); diff != "" {
		t.Errorf("violations (-want +got):\n%s", diff)
	}
	wantWarnings := []string{CheckExternalReference, CheckStepPoints, CheckStepPoints}
	if diff := cmp.Diff(wantWarnings, checks(r.Warnings())); diff != "" {
		t.Errorf("warnings (-want +got):\n%s", diff)
	}
}

func TestRepeatedIdentifierAlwaysRejected(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"chapter and chapter", `{"chapitres":[{"id":"x","etapes":[]},{"id":"x","etapes":[]}]}`},
		{"step and exercise", `{"chapitres":[{"id":"c","etapes":[{"id":"s","consultation":true,"exercices":[{"id":"s"}]}]}]}`},
		{"exercises across chapters", `{"chapitres":[
		  {"id":"a","etapes":[{"id":"s1","consultation":true,"exercices":[{"id":"e"}]}]},
		  {"id":"b","etapes":[{"id":"s2","consultation":true,"exercices":[{"id":"e"}]}]}]}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := run(t, writeFiles(t, map[string]string{"chapitres.json": tc.content}), Options{})
			if r.OK() {
				t.Fatal("corpus with a repeated id accepted")
			}
			if diff := cmp.Diff([]string{CheckDuplicateID}, checks(r.Violations())); diff != "" {
				t.Errorf("violations (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMalformedAndMissing(t *testing.T) {
	r := run(t, writeFiles(t, map[string]string{"chapitres.json": `{"chapitres": [`}), Options{})
	if diff := cmp.Diff([]string{CheckMalformed}, checks(r.Violations())); diff != "" {
		t.Errorf("violations (-want +got):\n%s", diff)
	}

	r = run(t, writeFiles(t, nil), Options{})
	if diff := cmp.Diff([]string{CheckMissingDocument}, checks(r.Violations())); diff != "" {
		t.Errorf("violations (-want +got):\n%s", diff)
	}
}

// ---------------------------------------------------------------------------
// Levels layout
// ---------------------------------------------------------------------------

func TestLevelsLayout(t *testing.T) {
	store := writeFiles(t, map[string]string{
		"N1/chapitres.json": `{"chapitres":[
		  {"id":"ch2","numero":2,"couleur":"A1B2C3","etapes":[{"id":"s2","consultation":true,"validation":false,"points":5,"exercices":[]}]},
		  {"id":"ch1","numero":1,"couleur":"A1B2C3","etapes":[]},
		  {"id":"ch3","numero":2,"couleur":"A1B2C3","etapes":[]}
		]}`,
		"N1/exercices/ch2.json": `{"exercices":[{"id":"e1","points":3}]}`,
		"N1/exercices/ch1.json": `{"exercices":[]}`,
		"N3/chapitres.json":     `{"chapitres":[{"id":"ch9","numero":1,"etapes":[]}]}`,
	})
	r := run(t, store, Options{})

	if r.Layout != model.LayoutLevels {
		t.Fatalf("layout = %s, want levels", r.Layout)
	}
	// N2 missing; ch1 listed after numero 2; ch3 repeats numero 2;
	// ch3 has no exercise file. ch9 is in a level empty by design.
	want := []string{CheckMissingDocument, CheckNumero, CheckNumero, CheckMissingExerciseFile}
	if diff := cmp.Diff(want, checks(r.Violations())); diff != "" {
		t.Errorf("violations (-want +got):\n%s", diff)
	}
	if r.Totals.Levels != 3 || r.Totals.Exercises != 1 || r.Totals.Points != 8 {
		t.Errorf("totals = %+v", r.Totals)
	}
}

func TestLevelsLayoutOrphanExerciseDocument(t *testing.T) {
	store := writeFiles(t, map[string]string{
		"N1/chapitres.json":     `{"chapitres":[{"id":"ch1","numero":1,"couleur":"A1B2C3","etapes":[]}]}`,
		"N1/exercices/ch1.json": `{"exercices":[]}`,
		"N1/exercices/ch2.json": `{"exercices":[{"id":"e1"}]}`,
		"N1/exercices/.gitkeep": ``,
		"N2/chapitres.json":     `{"chapitres":[{"id":"ch2","numero":1,"couleur":"A1B2C3","etapes":[]}]}`,
		"N2/exercices/ch2.json": `{"exercices":[{"id":"e2"}]}`,
		"N3/chapitres.json":     `{"chapitres":[]}`,
	})
	r := run(t, store, Options{})

	var orphans []string
	for _, f := range r.Warnings() {
		if f.Check == CheckOrphanExerciseFile {
			orphans = append(orphans, f.Path)
		}
	}
	// ch2 moved to N2; its old N1 document stays behind.
	if diff := cmp.Diff([]string{"N1/exercices/ch2.json"}, orphans); diff != "" {
		t.Errorf("orphan documents (-want +got):\n%s", diff)
	}
	if len(r.Violations()) != 0 {
		t.Errorf("violations = %v", checks(r.Violations()))
	}
}

func TestLevelsLayoutForcedWithPath(t *testing.T) {
	store := writeFiles(t, map[string]string{
		"N1/chapitres.json": `{"chapitres":[]}`,
		"flat.json":         goodFlat,
	})
	r := run(t, store, Options{Path: "flat.json"})
	if r.Layout != model.LayoutFlat {
		t.Errorf("explicit path should select the document layout, got %s", r.Layout)
	}
	r = run(t, store, Options{Layout: "levels"})
	if r.Layout != model.LayoutLevels {
		t.Errorf("forced layout = %s", r.Layout)
	}
	if _, err := Run(context.Background(), store, Options{Layout: "tree"}); err == nil {
		t.Error("expected error for unknown layout")
	}
}

// ---------------------------------------------------------------------------
// Bundle layout
// ---------------------------------------------------------------------------

func TestBundle(t *testing.T) {
	store := writeFiles(t, map[string]string{"bundle.json": `{"niveaux":[
	  {"id":"N1","couleur":"#667eea","chapitres":[
	    {"id":"ch1","numero":1,"etapes":[{"id":"s1","consultation":true,"points":2,"exercices":[{"id":"e1","points":2}]}]}
	  ]},
	  {"id":"N2","couleur":"blue","chapitres":[]},
	  {"id":"N5","couleur":"#000000","chapitres":[]}
	]}`})
	r := run(t, store, Options{Path: "bundle.json"})

	if r.Layout != model.LayoutBundle {
		t.Fatalf("layout = %s, want bundle", r.Layout)
	}
	if diff := cmp.Diff([]string{CheckMissingLevel, CheckColor}, checks(r.Violations())); diff != "" {
		t.Errorf("violations (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{CheckUnknownLevel}, checks(r.Warnings())); diff != "" {
		t.Errorf("warnings (-want +got):\n%s", diff)
	}
	// A level with no chapters still counts.
	if r.Totals.Levels != 3 {
		t.Errorf("levels = %d, want 3", r.Totals.Levels)
	}
}
