package model

// registry.go — Identifier registry. Chapters, steps and exercises share one
// namespace; ids are registered as documents are loaded so that duplicates
// carry both source locations.

import "fmt"

// Kind is the kind of node an identifier belongs to.
type Kind string

const (
	KindChapter  Kind = "chapter"
	KindStep     Kind = "step"
	KindExercise Kind = "exercise"
)

// Location is where an identifier was registered.
type Location struct {
	Path      string
	ChapterID string
	StepID    string
	Kind      Kind
}

func (l Location) String() string {
	s := fmt.Sprintf("%s in %s", l.Kind, l.Path)
	if l.ChapterID != "" {
		s += " (chapter " + l.ChapterID
		if l.StepID != "" {
			s += ", step " + l.StepID
		}
		s += ")"
	}
	return s
}

// Duplicate is a second registration of an identifier.
type Duplicate struct {
	ID     string
	First  Location
	Second Location
}

// Registry tracks every identifier seen.
type Registry struct {
	seen       map[string]Location
	order      []string
	Duplicates []Duplicate
	Missing    []Location
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{seen: make(map[string]Location)}
}

// Register records id at loc. It returns false when id is empty or was
// already registered; both cases are recorded.
func (r *Registry) Register(id string, loc Location) bool {
	if id == "" {
		r.Missing = append(r.Missing, loc)
		return false
	}
	if first, ok := r.seen[id]; ok {
		r.Duplicates = append(r.Duplicates, Duplicate{ID: id, First: first, Second: loc})
		return false
	}
	r.seen[id] = loc
	r.order = append(r.order, id)
	return true
}

// Lookup returns the first location of id.
func (r *Registry) Lookup(id string) (Location, bool) {
	loc, ok := r.seen[id]
	return loc, ok
}

// Len returns the number of distinct identifiers.
func (r *Registry) Len() int { return len(r.order) }

// IDs returns the distinct identifiers in registration order.
func (r *Registry) IDs() []string { return append([]string(nil), r.order...) }
