package schema

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"douane/internal/document"
	"douane/internal/model"
)

func loadCorpus(t *testing.T, content string) *model.Corpus {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "chapitres.json"), []byte(content), 0o644))
	c, err := model.LoadFlat(document.NewStore(dir), "chapitres.json")
	require.NoError(t, err)
	return c
}

const corpus = `{"chapitres":[
  {"id":"golden","etapes":[
    {"id":"g1","exercices":[
      {"id":"v1","titre":"a","type":"video","content":{"url":"u","duree":3}},
      {"id":"q1","type":"qcm","points":2,"content":{"question":"?","options":[]}},
      {"id":"v2","type":"video","content":{}},
      {"id":"x1","titre":"untyped"}
    ]}
  ]},
  {"id":"other","etapes":[]}
]}`

func TestExtract(t *testing.T) {
	c := loadCorpus(t, corpus)
	golden, err := Golden(c, "")
	require.NoError(t, err)
	set := Extract(golden)

	if diff := cmp.Diff([]string{"video", "qcm"}, set.Types()); diff != "" {
		t.Errorf("types (-want +got):\n%s", diff)
	}
	video, _ := set.Get("video")
	want := &Reference{
		Type:        "video",
		Keys:        []string{"id", "titre", "type", "content"},
		ContentKeys: []string{"url", "duree"},
		Count:       2,
		ExampleID:   "v1",
	}
	if diff := cmp.Diff(want, video); diff != "" {
		t.Errorf("video reference (-want +got):\n%s", diff)
	}
	if _, ok := set.Get("quiz"); ok {
		t.Error("unexpected quiz reference")
	}

	// Pure: extracting again yields the same set.
	if diff := cmp.Diff(set.Types(), Extract(golden).Types()); diff != "" {
		t.Errorf("second extraction differs:\n%s", diff)
	}
}

func TestGolden(t *testing.T) {
	c := loadCorpus(t, corpus)
	ch, err := Golden(c, "other")
	require.NoError(t, err)
	if ch.ID() != "other" {
		t.Errorf("Golden = %s", ch.ID())
	}
	if _, err := Golden(c, "nope"); !errors.Is(err, ErrNoGolden) {
		t.Errorf("err = %v, want ErrNoGolden", err)
	}
	empty := loadCorpus(t, `{"chapitres":[]}`)
	if _, err := Golden(empty, ""); !errors.Is(err, ErrNoGolden) {
		t.Errorf("err = %v, want ErrNoGolden", err)
	}
}

func TestDrift(t *testing.T) {
	c := loadCorpus(t, corpus)
	golden, _ := Golden(c, "")
	extracted := Extract(golden)

	declared := Declared([]Declaration{
		{Type: "video", Keys: []string{"id", "titre", "type", "url", "content"}},
		{Type: "qcm", Keys: []string{"id", "type", "points", "content"}, ContentKeys: []string{"options", "question"}},
		{Type: "flashcards", Keys: []string{"id", "type"}},
	})
	got := Drift(declared, extracted)
	want := []DriftEntry{
		{Type: "video", Kind: DriftKeys, Declared: []string{"id", "titre", "type", "url", "content"}, Extracted: []string{"id", "titre", "type", "content"}},
		{Type: "flashcards", Kind: DriftAbsent, Declared: []string{"id", "type"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Drift (-want +got):\n%s", diff)
	}
}
