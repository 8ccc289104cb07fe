// Package model is the in-memory content tree of a course corpus:
// levels → chapters → steps → exercises.
//
// Every node keeps the raw ordered object it was decoded from, so unknown keys
// and key order survive a read/modify/write cycle. Nodes that belong to the
// same document share a *Source; mutating a node marks its source dirty.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"douane/internal/document"
)

// JSON keys used by the corpus documents.
const (
	KeyChapters     = "chapitres"
	KeySteps        = "etapes"
	KeyExercises    = "exercices"
	KeyLevels       = "niveaux"
	KeyID           = "id"
	KeyNumero       = "numero"
	KeyTitle        = "titre"
	KeyType         = "type"
	KeyPoints       = "points"
	KeyColor        = "couleur"
	KeyContent      = "content"
	KeyExternalData = "externalDataFile"
	KeyConsultation = "consultation"
	KeyValidation   = "validation"
)

// Layout names the on-disk arrangement of a corpus.
type Layout string

const (
	LayoutFlat   Layout = "flat"
	LayoutLevels Layout = "levels"
	LayoutBundle Layout = "bundle"
)

// ---------------------------------------------------------------------------
// Sources
// ---------------------------------------------------------------------------

// Source is one JSON document of the corpus.
type Source struct {
	Path   string // relative to the corpus root, forward slashes
	Root   any    // *document.Object or []any
	SHA256 string
	Dirty  bool
}

func newSource(path string, root any, data []byte) *Source {
	sum := sha256.Sum256(data)
	return &Source{Path: path, Root: root, SHA256: hex.EncodeToString(sum[:])}
}

// MarkDirty flags the source for persistence. Safe on nil.
func (s *Source) MarkDirty() {
	if s != nil {
		s.Dirty = true
	}
}

// ---------------------------------------------------------------------------
// Tree
// ---------------------------------------------------------------------------

// Exercise is one exercise object.
type Exercise struct {
	Raw       *document.Object
	Source    *Source
	ChapterID string
	StepID    string // empty for exercises held in a per-chapter document
}

func (e *Exercise) ID() string   { return e.Raw.String(KeyID) }
func (e *Exercise) Type() string { return e.Raw.String(KeyType) }

// Points returns the exercise points, 0 when absent.
func (e *Exercise) Points() int {
	n, _ := e.Raw.Int(KeyPoints)
	return n
}

// Step is one step of a chapter.
type Step struct {
	Raw       *document.Object
	Source    *Source
	ChapterID string
	Exercises []*Exercise
	// Detached is set in the levels layout when the step holds no inline
	// exercises while its chapter's exercises live in a separate document
	// (or that document is missing). Which of them belong to the step is
	// not recorded, so its content is unknown rather than empty.
	Detached bool
}

func (s *Step) ID() string    { return s.Raw.String(KeyID) }
func (s *Step) Type() string  { return s.Raw.String(KeyType) }
func (s *Step) Title() string { return s.Raw.String(KeyTitle) }

// Points returns the step points, 0 when absent.
func (s *Step) Points() int {
	n, _ := s.Raw.Int(KeyPoints)
	return n
}

// Flags returns the classification flags. A flag that is absent or not a
// boolean reads as false.
func (s *Step) Flags() (consultation, validation bool) {
	consultation, _ = s.Raw.Bool(KeyConsultation)
	validation, _ = s.Raw.Bool(KeyValidation)
	return consultation, validation
}

// HasFlags reports whether either classification key is present.
func (s *Step) HasFlags() bool {
	return s.Raw.Has(KeyConsultation) || s.Raw.Has(KeyValidation)
}

// Resolved reports whether at least one classification flag is true.
func (s *Step) Resolved() bool {
	c, v := s.Flags()
	return c || v
}

// Chapter is one chapter. In the levels layout its exercises live in a
// separate document and are held in Exercises rather than under steps.
type Chapter struct {
	Raw     *document.Object
	Source  *Source
	LevelID string
	Steps   []*Step

	Exercises      []*Exercise
	ExerciseSource *Source
	// ExerciseFile is the expected per-chapter exercise document (levels
	// layout only) and ExerciseFileFound whether it was read.
	ExerciseFile      string
	ExerciseFileFound bool
}

func (c *Chapter) ID() string    { return c.Raw.String(KeyID) }
func (c *Chapter) Title() string { return c.Raw.String(KeyTitle) }
func (c *Chapter) Color() string { return c.Raw.String(KeyColor) }

// Numero returns the chapter number and whether it is set.
func (c *Chapter) Numero() (int, bool) { return c.Raw.Int(KeyNumero) }

// ExternalDataFile returns the path of the chapter's external exercise
// document, or "".
func (c *Chapter) ExternalDataFile() string { return c.Raw.String(KeyExternalData) }

// AllExercises returns the exercises nested under steps in traversal order,
// followed by the chapter's detached exercises.
func (c *Chapter) AllExercises() []*Exercise {
	var out []*Exercise
	for _, s := range c.Steps {
		out = append(out, s.Exercises...)
	}
	return append(out, c.Exercises...)
}

// Level groups chapters under a level id.
type Level struct {
	ID            string
	Title         string
	Color         string
	EmptyByDesign bool
	Chapters      []*Chapter
	Source        *Source // nil when the level document is missing
	Raw           *document.Object
}

// Issue is a non-fatal problem found while loading: a missing or malformed
// document that the caller may report.
type Issue struct {
	Path string
	Err  error
}

func (i Issue) Error() string { return i.Path + ": " + i.Err.Error() }

// Corpus is a loaded content tree.
type Corpus struct {
	Root     string
	Layout   Layout
	Levels   []*Level
	Chapters []*Chapter
	Sources  []*Source
	Registry *Registry
	Issues   []Issue

	chapters map[string]*Chapter
	byType   map[string][]*Exercise
}

func newCorpus(root string, layout Layout) *Corpus {
	return &Corpus{
		Root:     root,
		Layout:   layout,
		Registry: NewRegistry(),
		chapters: make(map[string]*Chapter),
		byType:   make(map[string][]*Exercise),
	}
}

// Chapter returns the chapter with the given id.
func (c *Corpus) Chapter(id string) (*Chapter, bool) {
	ch, ok := c.chapters[id]
	return ch, ok
}

// ExercisesOfType returns every exercise of type t in load order.
func (c *Corpus) ExercisesOfType(t string) []*Exercise {
	return c.byType[t]
}

// Steps returns every step in traversal order.
func (c *Corpus) Steps() []*Step {
	var out []*Step
	for _, ch := range c.Chapters {
		out = append(out, ch.Steps...)
	}
	return out
}

// Exercises returns every exercise in traversal order.
func (c *Corpus) Exercises() []*Exercise {
	var out []*Exercise
	for _, ch := range c.Chapters {
		out = append(out, ch.AllExercises()...)
	}
	return out
}

// DirtySources returns the sources marked for persistence, sorted by path.
func (c *Corpus) DirtySources() []*Source {
	var out []*Source
	for _, s := range c.Sources {
		if s.Dirty {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Hash returns a deterministic digest over every loaded document, computed
// from the sorted "path@sha256" lines.
func (c *Corpus) Hash() string {
	lines := make([]string, len(c.Sources))
	for i, s := range c.Sources {
		lines[i] = s.Path + "@" + s.SHA256
	}
	sort.Strings(lines)
	sum := sha256.Sum256([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(sum[:])
}

func (c *Corpus) addSource(s *Source) {
	c.Sources = append(c.Sources, s)
}

func (c *Corpus) issue(path string, err error) {
	c.Issues = append(c.Issues, Issue{Path: path, Err: err})
}

// indexExercise records ex in the type index and the identifier registry.
func (c *Corpus) indexExercise(ex *Exercise) {
	if t := ex.Type(); t != "" {
		c.byType[t] = append(c.byType[t], ex)
	}
	c.Registry.Register(ex.ID(), Location{
		Path:      ex.Source.Path,
		ChapterID: ex.ChapterID,
		StepID:    ex.StepID,
		Kind:      KindExercise,
	})
}
