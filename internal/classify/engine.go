// Package classify decides whether a step is consultation or validation.
//
// The engine applies a first-match cascade over the step type and, for
// exercise groups, over the set of child exercise types. An ordered override
// list then forces the category of specific steps.
package classify

import (
	"slices"

	"douane/internal/model"
)

// Category is the classification of a step.
type Category string

const (
	Consultation Category = "consultation"
	Validation   Category = "validation"
)

// Rule names the cascade rule that produced a decision.
type Rule string

const (
	RulePresentational      Rule = "presentational"
	RuleAssessment          Rule = "assessment"
	RuleGroupAssessment     Rule = "group_assessment"
	RuleGroupPresentational Rule = "group_presentational"
	RuleGroupPortfolio      Rule = "group_portfolio"
	RuleGroupEmpty          Rule = "group_empty"
	RuleGroupInteractive    Rule = "group_interactive"
	RuleGroupNarrative      Rule = "group_narrative"
	RuleGroupDefault        Rule = "group_default"
	RuleDetachedGroup       Rule = "detached_group"
	RuleOverride            Rule = "override"
	RuleUnresolved          Rule = "unresolved"
)

// GroupType is the step type whose category depends on its children.
const GroupType = "exercise_group"

const (
	portfolioType = "portfolio"
	unknownType   = "unknown"
)

// Decision is the classification of one step.
type Decision struct {
	Consultation bool
	Validation   bool
	Rule         Rule
	// NeedsReview marks a default decision an operator should confirm.
	NeedsReview bool
}

// Resolved reports whether a category was chosen.
func (d Decision) Resolved() bool { return d.Consultation || d.Validation }

// Category returns the chosen category, or "" when unresolved.
func (d Decision) Category() Category {
	switch {
	case d.Validation:
		return Validation
	case d.Consultation:
		return Consultation
	}
	return ""
}

func decide(c Category, r Rule) Decision {
	return Decision{Consultation: c == Consultation, Validation: c == Validation, Rule: r}
}

// Rules are the type tables of the cascade.
type Rules struct {
	Presentational      []string
	Assessment          []string
	ChildPresentational []string
	Interactive         []string
	Narrative           []string
}

// DefaultRules returns the historical tables.
func DefaultRules() Rules {
	return Rules{
		Presentational:      []string{"video", "lecture", "reading", "objectives", "portfolio"},
		Assessment:          []string{"qcm", "quiz", "assessment", "qcm_scenario"},
		ChildPresentational: []string{"video", "lecture", "reading"},
		Interactive:         []string{"matching", "flashcards", "dragdrop", "drag_drop", "fillblanks", "fill_blanks"},
		Narrative:           []string{"scenario", "case_study"},
	}
}

// Engine classifies steps.
type Engine struct {
	rules Rules
}

// NewEngine returns an engine over r. Empty tables fall back to the defaults.
func NewEngine(r Rules) *Engine {
	def := DefaultRules()
	pick := func(v, d []string) []string {
		if len(v) == 0 {
			return d
		}
		return v
	}
	return &Engine{rules: Rules{
		Presentational:      pick(r.Presentational, def.Presentational),
		Assessment:          pick(r.Assessment, def.Assessment),
		ChildPresentational: pick(r.ChildPresentational, def.ChildPresentational),
		Interactive:         pick(r.Interactive, def.Interactive),
		Narrative:           pick(r.Narrative, def.Narrative),
	}}
}

// Rules returns the tables in use.
func (e *Engine) Rules() Rules { return e.rules }

// Classify runs the cascade on step. A step without a type is treated as an
// exercise group when it has no exercises and is unresolved otherwise.
// A detached group is never classified from its (unknown) children.
func (e *Engine) Classify(step *model.Step) Decision {
	t := step.Type()
	if t == "" {
		if len(step.Exercises) > 0 {
			return Decision{Rule: RuleUnresolved}
		}
		t = GroupType
	}

	switch {
	case slices.Contains(e.rules.Presentational, t):
		return decide(Consultation, RulePresentational)
	case slices.Contains(e.rules.Assessment, t):
		return decide(Validation, RuleAssessment)
	case t == GroupType && step.Detached:
		return Decision{Rule: RuleDetachedGroup}
	case t == GroupType:
		return e.classifyGroup(childTypes(step))
	}
	return Decision{Rule: RuleUnresolved}
}

func (e *Engine) classifyGroup(children []string) Decision {
	switch {
	case intersects(children, e.rules.Assessment):
		return decide(Validation, RuleGroupAssessment)
	case intersects(children, e.rules.ChildPresentational):
		return decide(Consultation, RuleGroupPresentational)
	case slices.Contains(children, portfolioType):
		return decide(Consultation, RuleGroupPortfolio)
	case len(children) == 0:
		return decide(Consultation, RuleGroupEmpty)
	case intersects(children, e.rules.Interactive):
		return decide(Consultation, RuleGroupInteractive)
	case intersects(children, e.rules.Narrative):
		return decide(Validation, RuleGroupNarrative)
	}
	d := decide(Consultation, RuleGroupDefault)
	d.NeedsReview = true
	return d
}

// childTypes returns the distinct exercise types of step. Exercises without
// a type count as "unknown".
func childTypes(step *model.Step) []string {
	var out []string
	for _, ex := range step.Exercises {
		t := ex.Type()
		if t == "" {
			t = unknownType
		}
		if !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}

func intersects(a, b []string) bool {
	for _, x := range a {
		if slices.Contains(b, x) {
			return true
		}
	}
	return false
}
