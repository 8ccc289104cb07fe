// Package audit checks every exercise of a corpus against the reference
// layout of its type and applies the bounded locator repair.
package audit

import (
	"context"
	"slices"

	"go.uber.org/zap"

	"douane/internal/model"
	"douane/internal/schema"
)

// Options configures an audit run.
type Options struct {
	// GoldenChapter is excluded from the audit. Empty excludes nothing.
	GoldenChapter string
	// CheckContent also compares content key sets.
	CheckContent bool
	// Skip excludes chapters by id.
	Skip   func(chapterID string) bool
	Logger *zap.Logger
}

// Discrepancy is one exercise whose keys differ from its reference.
type Discrepancy struct {
	ChapterID  string
	StepID     string
	Type       string
	ExerciseID string
	Missing    []string // reference order
	Extra      []string // actual order
	Actual     []string
	Expected   []string

	ContentMissing []string
	ContentExtra   []string

	Exercise *model.Exercise
}

// Counts summarizes an audit run.
type Counts struct {
	Seen          int
	Untyped       int
	Novel         int
	Audited       int
	Conformant    int
	NonConformant int
}

// Result is the outcome of Run.
type Result struct {
	GoldenChapter string
	Reference     *schema.Set
	Discrepancies []Discrepancy
	Counts        Counts
	NovelTypes    []string // first-seen order
	Skipped       []string // chapter ids excluded by Options.Skip
	CheckContent  bool
}

// Run walks every chapter except the golden one in source order and compares
// each typed exercise against ref. Exercises of types absent from ref are
// counted as novel and skipped.
func Run(ctx context.Context, c *model.Corpus, ref *schema.Set, opts Options) (*Result, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	res := &Result{GoldenChapter: opts.GoldenChapter, Reference: ref, CheckContent: opts.CheckContent}
	novel := make(map[string]bool)

	for _, ch := range c.Chapters {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id := ch.ID()
		if opts.GoldenChapter != "" && id == opts.GoldenChapter {
			continue
		}
		if opts.Skip != nil && opts.Skip(id) {
			res.Skipped = append(res.Skipped, id)
			log.Debug("chapter skipped", zap.String("chapter", id))
			continue
		}
		before := len(res.Discrepancies)
		for _, ex := range ch.AllExercises() {
			res.Counts.Seen++
			t := ex.Type()
			if t == "" {
				res.Counts.Untyped++
				continue
			}
			r, ok := ref.Get(t)
			if !ok {
				res.Counts.Novel++
				if !novel[t] {
					novel[t] = true
					res.NovelTypes = append(res.NovelTypes, t)
				}
				continue
			}
			res.Counts.Audited++
			d, conforms := compare(ex, r, opts.CheckContent)
			if conforms {
				res.Counts.Conformant++
				continue
			}
			res.Counts.NonConformant++
			res.Discrepancies = append(res.Discrepancies, d)
		}
		log.Debug("chapter audited",
			zap.String("chapter", id),
			zap.Int("discrepancies", len(res.Discrepancies)-before))
	}

	log.Info("audit complete",
		zap.Int("seen", res.Counts.Seen),
		zap.Int("audited", res.Counts.Audited),
		zap.Int("non_conformant", res.Counts.NonConformant),
		zap.Strings("novel_types", res.NovelTypes))
	return res, nil
}

// compare checks ex against r. The top-level key list must be equal in
// order; content keys are compared as sets when checkContent is set.
func compare(ex *model.Exercise, r *schema.Reference, checkContent bool) (Discrepancy, bool) {
	actual := ex.Raw.Keys()
	d := Discrepancy{
		ChapterID:  ex.ChapterID,
		StepID:     ex.StepID,
		Type:       ex.Type(),
		ExerciseID: ex.ID(),
		Actual:     actual,
		Expected:   append([]string(nil), r.Keys...),
		Exercise:   ex,
	}
	conforms := slices.Equal(actual, r.Keys)
	if !conforms {
		d.Missing = difference(r.Keys, actual)
		d.Extra = difference(actual, r.Keys)
	}
	if checkContent {
		got := schema.ContentKeys(ex)
		d.ContentMissing = difference(r.ContentKeys, got)
		d.ContentExtra = difference(got, r.ContentKeys)
		if len(d.ContentMissing) > 0 || len(d.ContentExtra) > 0 {
			conforms = false
		}
	}
	return d, conforms
}

// difference returns the elements of a absent from b, in a's order.
func difference(a, b []string) []string {
	in := make(map[string]bool, len(b))
	for _, k := range b {
		in[k] = true
	}
	var out []string
	for _, k := range a {
		if !in[k] {
			out = append(out, k)
		}
	}
	return out
}
