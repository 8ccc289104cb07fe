package classify

// apply.go — Override list and the corpus-wide classification pass.

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"douane/internal/model"
)

// Override forces the category of matching steps. StepID is preferred;
// TitleContains matches a substring of the step title.
type Override struct {
	StepID        string
	TitleContains string
	Category      Category
}

// OverrideList is matched in order; the first matching entry wins.
type OverrideList []Override

// Match returns the first entry matching step.
func (l OverrideList) Match(step *model.Step) (Override, bool) {
	for _, o := range l {
		switch {
		case o.StepID != "":
			if o.StepID == step.ID() {
				return o, true
			}
		case o.TitleContains != "":
			if strings.Contains(step.Title(), o.TitleContains) {
				return o, true
			}
		}
	}
	return Override{}, false
}

// Options configures Apply.
type Options struct {
	Engine    *Engine
	Overrides OverrideList
	Logger    *zap.Logger
}

// Decide returns the final decision for step: the cascade, replaced by the
// first matching override.
func (o Options) Decide(step *model.Step) Decision {
	d, _ := o.decide(step)
	return d
}

func (o Options) decide(step *model.Step) (Decision, bool) {
	eng := o.Engine
	if eng == nil {
		eng = NewEngine(Rules{})
	}
	d := eng.Classify(step)
	if ov, ok := o.Overrides.Match(step); ok {
		return decide(ov.Category, RuleOverride), true
	}
	return d, false
}

// Outcome is the classification of one step.
type Outcome struct {
	ChapterID  string
	StepID     string
	Title      string
	Type       string
	Decision   Decision
	Overridden bool
	// Kept reports a detached group whose existing flags were left as is.
	Kept bool
	// Changed reports whether the raw step was modified.
	Changed bool
}

// Counts summarizes a classification pass.
type Counts struct {
	Steps        int
	Consultation int
	Validation   int
	Unresolved   int
	NeedsReview  int
	Overridden   int
	Kept         int
	Changed      int
}

// Result is the outcome of Apply.
type Result struct {
	Outcomes []Outcome
	Counts   Counts
}

// Unresolved returns the outcomes of steps left without a category.
func (r *Result) Unresolved() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if !o.Decision.Resolved() {
			out = append(out, o)
		}
	}
	return out
}

// ForReview returns the outcomes an operator should look at: unresolved
// steps and default decisions flagged for review.
func (r *Result) ForReview() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if !o.Decision.Resolved() || o.Decision.NeedsReview {
			out = append(out, o)
		}
	}
	return out
}

// Apply classifies every step of c and writes the resolved flags onto the
// raw steps. Unresolved steps are left untouched. A detached group keeps
// the flags it already carries and is unresolved without them. Sources
// with a changed step are marked dirty. Applying twice changes nothing.
func Apply(ctx context.Context, c *model.Corpus, opts Options) (*Result, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	res := &Result{}

	for _, ch := range c.Chapters {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, st := range ch.Steps {
			d, overridden := opts.decide(st)
			out := Outcome{
				ChapterID:  ch.ID(),
				StepID:     st.ID(),
				Title:      st.Title(),
				Type:       st.Type(),
				Decision:   d,
				Overridden: overridden,
			}
			if d.Rule == RuleDetachedGroup && st.Resolved() {
				c, v := st.Flags()
				out.Decision = Decision{Consultation: c, Validation: v, Rule: RuleDetachedGroup}
				out.Kept = true
				log.Debug("detached group kept", zap.String("step", st.ID()), zap.Bool("consultation", c), zap.Bool("validation", v))
			} else if d.Resolved() {
				changed := setFlag(st, model.KeyConsultation, d.Consultation, overridden, log)
				changed = setFlag(st, model.KeyValidation, d.Validation, overridden, log) || changed
				if changed {
					st.Source.MarkDirty()
					out.Changed = true
				}
			}
			res.add(out)
		}
	}

	log.Info("classification complete",
		zap.Int("steps", res.Counts.Steps),
		zap.Int("consultation", res.Counts.Consultation),
		zap.Int("validation", res.Counts.Validation),
		zap.Int("unresolved", res.Counts.Unresolved),
		zap.Int("needs_review", res.Counts.NeedsReview),
		zap.Int("overridden", res.Counts.Overridden),
		zap.Int("kept", res.Counts.Kept))
	return res, nil
}

func (r *Result) add(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
	r.Counts.Steps++
	switch {
	case o.Decision.Validation:
		r.Counts.Validation++
	case o.Decision.Consultation:
		r.Counts.Consultation++
	default:
		r.Counts.Unresolved++
	}
	if o.Decision.NeedsReview {
		r.Counts.NeedsReview++
	}
	if o.Overridden {
		r.Counts.Overridden++
	}
	if o.Kept {
		r.Counts.Kept++
	}
	if o.Changed {
		r.Counts.Changed++
	}
}

// setFlag writes a classification flag, reporting whether the step changed.
// Replacing an existing value is logged at info so hand-set flags never
// change silently.
func setFlag(st *model.Step, key string, v, overridden bool, log *zap.Logger) bool {
	prev, had := st.Raw.Get(key)
	if b, ok := prev.(bool); had && ok && b == v {
		return false
	}
	st.Raw.Set(key, v)
	if had {
		msg := "cascade changed flag"
		if overridden {
			msg = "override changed flag"
		}
		log.Info(msg,
			zap.String("step", st.ID()),
			zap.String("title", st.Title()),
			zap.String("flag", key),
			zap.Any("from", prev),
			zap.Bool("to", v))
	} else {
		log.Debug("flag set", zap.String("step", st.ID()), zap.String("flag", key), zap.Bool("value", v))
	}
	return true
}
