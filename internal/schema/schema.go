// Package schema derives the reference key layout of each exercise type,
// either from a golden chapter or from declared schemas.
package schema

import (
	"errors"
	"fmt"
	"slices"

	"douane/internal/model"
)

// ErrNoGolden is returned when the golden chapter cannot be found.
var ErrNoGolden = errors.New("golden chapter not found")

// Reference is the expected layout of one exercise type.
type Reference struct {
	Type        string
	Keys        []string // top-level keys, order-sensitive
	ContentKeys []string
	Count       int    // examples seen in the golden chapter
	ExampleID   string // first example's id
	Declared    bool
}

// Set holds references by type in first-seen order.
type Set struct {
	order  []string
	byType map[string]*Reference
}

func newSet() *Set {
	return &Set{byType: make(map[string]*Reference)}
}

// Get returns the reference for type t.
func (s *Set) Get(t string) (*Reference, bool) {
	if s == nil {
		return nil, false
	}
	r, ok := s.byType[t]
	return r, ok
}

// Types returns the known types in first-seen order.
func (s *Set) Types() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.order...)
}

// Len returns the number of types.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

func (s *Set) add(r *Reference) {
	if _, ok := s.byType[r.Type]; !ok {
		s.order = append(s.order, r.Type)
	}
	s.byType[r.Type] = r
}

// ContentKeys returns the key list of an exercise's content object, or nil.
func ContentKeys(ex *model.Exercise) []string {
	return ex.Raw.Object(model.KeyContent).Keys()
}

// ---------------------------------------------------------------------------
// Extraction
// ---------------------------------------------------------------------------

// Golden returns the chapter with id, or the first chapter when id is empty.
func Golden(c *model.Corpus, id string) (*model.Chapter, error) {
	if id == "" {
		if len(c.Chapters) == 0 {
			return nil, fmt.Errorf("%w: corpus has no chapters", ErrNoGolden)
		}
		return c.Chapters[0], nil
	}
	ch, ok := c.Chapter(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoGolden, id)
	}
	return ch, nil
}

// Extract records, for each exercise type in ch, the first example's key
// list and content key list, the example count and the first example's id.
// Untyped exercises are ignored.
func Extract(ch *model.Chapter) *Set {
	set := newSet()
	for _, ex := range ch.AllExercises() {
		t := ex.Type()
		if t == "" {
			continue
		}
		if r, ok := set.byType[t]; ok {
			r.Count++
			continue
		}
		set.add(&Reference{
			Type:        t,
			Keys:        ex.Raw.Keys(),
			ContentKeys: ContentKeys(ex),
			Count:       1,
			ExampleID:   ex.ID(),
		})
	}
	return set
}

// ---------------------------------------------------------------------------
// Declared schemas
// ---------------------------------------------------------------------------

// Declaration is an explicitly configured schema.
type Declaration struct {
	Type        string
	Keys        []string
	ContentKeys []string
}

// Declared builds a set from declarations, in declaration order.
func Declared(decls []Declaration) *Set {
	set := newSet()
	for _, d := range decls {
		set.add(&Reference{
			Type:        d.Type,
			Keys:        append([]string(nil), d.Keys...),
			ContentKeys: append([]string(nil), d.ContentKeys...),
			Declared:    true,
		})
	}
	return set
}

// DriftKind classifies a difference between declared and extracted schemas.
type DriftKind string

const (
	DriftKeys        DriftKind = "keys_differ"
	DriftContentKeys DriftKind = "content_keys_differ"
	DriftAbsent      DriftKind = "absent_from_golden"
)

// DriftEntry is one disagreement between a declaration and the golden
// chapter.
type DriftEntry struct {
	Type      string
	Kind      DriftKind
	Declared  []string
	Extracted []string
}

// Drift checks the golden chapter against the declarations, in declaration
// order. Content keys are compared only when the declaration lists them.
func Drift(declared, extracted *Set) []DriftEntry {
	var out []DriftEntry
	for _, t := range declared.Types() {
		d, _ := declared.Get(t)
		e, ok := extracted.Get(t)
		if !ok {
			out = append(out, DriftEntry{Type: t, Kind: DriftAbsent, Declared: d.Keys})
			continue
		}
		if !slices.Equal(d.Keys, e.Keys) {
			out = append(out, DriftEntry{Type: t, Kind: DriftKeys, Declared: d.Keys, Extracted: e.Keys})
		}
		if len(d.ContentKeys) > 0 && !sameSet(d.ContentKeys, e.ContentKeys) {
			out = append(out, DriftEntry{Type: t, Kind: DriftContentKeys, Declared: d.ContentKeys, Extracted: e.ContentKeys})
		}
	}
	return out
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	in := make(map[string]bool, len(a))
	for _, k := range a {
		in[k] = true
	}
	for _, k := range b {
		if !in[k] {
			return false
		}
	}
	return true
}
