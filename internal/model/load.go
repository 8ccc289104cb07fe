package model

// load.go — Loaders for the three corpus layouts. Fatal errors are returned;
// documents that are missing or malformed inside a multi-document layout are
// recorded as Issues so the caller can report every one of them.

import (
	"fmt"
	"path"
	"strings"

	"douane/internal/document"
)

// LevelSpec describes a configured level.
type LevelSpec struct {
	ID            string
	Title         string
	Color         string
	EmptyByDesign bool
}

// LevelDocument returns the per-level chapter document path.
func LevelDocument(levelID string) string {
	return path.Join(levelID, "chapitres.json")
}

// ExerciseDocument returns the per-chapter exercise document path. Callers
// check the id with SafeChapterID first.
func ExerciseDocument(levelID, chapterID string) string {
	return path.Join(levelID, "exercices", chapterID+".json")
}

// SafeChapterID reports whether id can name a file inside the exercise
// directory: non-empty, no path separator, not hidden.
func SafeChapterID(id string) bool {
	return id != "" && !strings.ContainsAny(id, `/\`) && !strings.HasPrefix(id, ".")
}

// ---------------------------------------------------------------------------
// Flat layout
// ---------------------------------------------------------------------------

// LoadFlat loads a single-document corpus: either {"chapitres": [...]} or a
// top-level array of chapters, with steps and exercises nested inline.
func LoadFlat(store *document.Store, rel string) (*Corpus, error) {
	v, data, err := store.Load(rel)
	if err != nil {
		return nil, err
	}
	c := newCorpus(store.Root, LayoutFlat)
	src := newSource(rel, v, data)
	c.addSource(src)

	chapters, err := chapterList(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", rel, err)
	}
	for i, item := range chapters {
		obj, ok := item.(*document.Object)
		if !ok {
			c.issue(rel, fmt.Errorf("chapter %d is not an object", i))
			continue
		}
		c.addChapter(c.buildChapter(obj, src, ""))
	}
	return c, nil
}

func chapterList(v any) ([]any, error) {
	switch t := v.(type) {
	case []any:
		return t, nil
	case *document.Object:
		if !t.Has(KeyChapters) {
			return nil, fmt.Errorf("missing %q", KeyChapters)
		}
		arr, ok := t.Get(KeyChapters)
		list, isArr := arr.([]any)
		if !ok || !isArr {
			return nil, fmt.Errorf("%q is not an array", KeyChapters)
		}
		return list, nil
	}
	return nil, fmt.Errorf("top-level value is neither an object nor an array")
}

// ---------------------------------------------------------------------------
// Levels layout
// ---------------------------------------------------------------------------

// LoadLevels loads the partitioned layout: <L>/chapitres.json per level and
// <L>/exercices/<chapterId>.json per chapter. Missing or malformed documents
// become Issues; every configured level appears in the result.
func LoadLevels(store *document.Store, levels []LevelSpec) (*Corpus, error) {
	c := newCorpus(store.Root, LayoutLevels)
	for _, spec := range levels {
		lvl := &Level{ID: spec.ID, Title: spec.Title, Color: spec.Color, EmptyByDesign: spec.EmptyByDesign}
		c.Levels = append(c.Levels, lvl)

		rel := LevelDocument(spec.ID)
		v, data, err := store.Load(rel)
		if err != nil {
			c.issue(rel, err)
			continue
		}
		src := newSource(rel, v, data)
		c.addSource(src)
		lvl.Source = src
		chapters, err := chapterList(v)
		if err != nil {
			c.issue(rel, err)
			continue
		}
		for i, item := range chapters {
			obj, ok := item.(*document.Object)
			if !ok {
				c.issue(rel, fmt.Errorf("chapter %d is not an object", i))
				continue
			}
			ch := c.buildChapter(obj, src, spec.ID)
			c.loadExerciseDocument(store, ch)
			markDetached(ch)
			lvl.Chapters = append(lvl.Chapters, ch)
			c.addChapter(ch)
		}
	}
	return c, nil
}

func (c *Corpus) loadExerciseDocument(store *document.Store, ch *Chapter) {
	if ch.ID() == "" {
		return
	}
	if !SafeChapterID(ch.ID()) {
		c.issue(LevelDocument(ch.LevelID), fmt.Errorf("chapter id %q cannot name an exercise document", ch.ID()))
		return
	}
	rel := ExerciseDocument(ch.LevelID, ch.ID())
	ch.ExerciseFile = rel
	if !store.Exists(rel) {
		return
	}
	v, data, err := store.Load(rel)
	if err != nil {
		c.issue(rel, err)
		return
	}
	ch.ExerciseFileFound = true
	src := newSource(rel, v, data)
	c.addSource(src)
	ch.ExerciseSource = src

	var list []any
	switch t := v.(type) {
	case *document.Object:
		list = t.Array(KeyExercises)
	case []any:
		list = t
	}
	for i, item := range list {
		obj, ok := item.(*document.Object)
		if !ok {
			c.issue(rel, fmt.Errorf("exercise %d is not an object", i))
			continue
		}
		ex := &Exercise{Raw: obj, Source: src, ChapterID: ch.ID()}
		ch.Exercises = append(ch.Exercises, ex)
		c.indexExercise(ex)
	}
}

// markDetached flags the steps of ch whose exercises cannot be told apart
// from the chapter's exercise document. A found document with no exercises
// means every step without inline exercises really is empty.
func markDetached(ch *Chapter) {
	if ch.ExerciseFileFound && len(ch.Exercises) == 0 {
		return
	}
	for _, st := range ch.Steps {
		if len(st.Exercises) == 0 {
			st.Detached = true
		}
	}
}

// ---------------------------------------------------------------------------
// Bundle layout
// ---------------------------------------------------------------------------

// LoadBundle loads a single document of the form
// {"niveaux": [{"id", "couleur", "chapitres": [...]}]}.
func LoadBundle(store *document.Store, rel string) (*Corpus, error) {
	v, data, err := store.Load(rel)
	if err != nil {
		return nil, err
	}
	root, ok := v.(*document.Object)
	if !ok || !root.Has(KeyLevels) {
		return nil, fmt.Errorf("%s: missing %q", rel, KeyLevels)
	}
	c := newCorpus(store.Root, LayoutBundle)
	src := newSource(rel, v, data)
	c.addSource(src)

	for i, item := range root.Array(KeyLevels) {
		obj, ok := item.(*document.Object)
		if !ok {
			c.issue(rel, fmt.Errorf("level %d is not an object", i))
			continue
		}
		lvl := &Level{
			ID:     obj.String(KeyID),
			Title:  obj.String(KeyTitle),
			Color:  obj.String(KeyColor),
			Source: src,
			Raw:    obj,
		}
		c.Levels = append(c.Levels, lvl)
		for j, chItem := range obj.Array(KeyChapters) {
			chObj, ok := chItem.(*document.Object)
			if !ok {
				c.issue(rel, fmt.Errorf("level %s chapter %d is not an object", lvl.ID, j))
				continue
			}
			ch := c.buildChapter(chObj, src, lvl.ID)
			lvl.Chapters = append(lvl.Chapters, ch)
			c.addChapter(ch)
		}
	}
	return c, nil
}

// ---------------------------------------------------------------------------
// Tree construction
// ---------------------------------------------------------------------------

// buildChapter wraps obj and its nested steps and exercises, registering
// identifiers in traversal order.
func (c *Corpus) buildChapter(obj *document.Object, src *Source, levelID string) *Chapter {
	ch := &Chapter{Raw: obj, Source: src, LevelID: levelID}
	c.Registry.Register(ch.ID(), Location{Path: src.Path, ChapterID: ch.ID(), Kind: KindChapter})

	for i, item := range obj.Array(KeySteps) {
		stObj, ok := item.(*document.Object)
		if !ok {
			c.issue(src.Path, fmt.Errorf("chapter %s step %d is not an object", ch.ID(), i))
			continue
		}
		st := &Step{Raw: stObj, Source: src, ChapterID: ch.ID()}
		c.Registry.Register(st.ID(), Location{Path: src.Path, ChapterID: ch.ID(), StepID: st.ID(), Kind: KindStep})
		for j, exItem := range stObj.Array(KeyExercises) {
			exObj, ok := exItem.(*document.Object)
			if !ok {
				c.issue(src.Path, fmt.Errorf("step %s exercise %d is not an object", st.ID(), j))
				continue
			}
			ex := &Exercise{Raw: exObj, Source: src, ChapterID: ch.ID(), StepID: st.ID()}
			st.Exercises = append(st.Exercises, ex)
			c.indexExercise(ex)
		}
		ch.Steps = append(ch.Steps, st)
	}
	return ch
}

func (c *Corpus) addChapter(ch *Chapter) {
	c.Chapters = append(c.Chapters, ch)
	if id := ch.ID(); id != "" {
		if _, dup := c.chapters[id]; !dup {
			c.chapters[id] = ch
		}
	}
}
