package classify

import (
	"fmt"
	"strings"
)

// Report renders res as text: counts, then every step needing attention.
func Report(res *Result) string {
	var sb strings.Builder
	c := res.Counts
	fmt.Fprintf(&sb, "Classification of %d steps\n", c.Steps)
	fmt.Fprintf(&sb, "  consultation: %d\n", c.Consultation)
	fmt.Fprintf(&sb, "  validation:   %d\n", c.Validation)
	fmt.Fprintf(&sb, "  unresolved:   %d\n", c.Unresolved)
	fmt.Fprintf(&sb, "  needs review: %d\n", c.NeedsReview)
	fmt.Fprintf(&sb, "  overridden:   %d\n", c.Overridden)
	fmt.Fprintf(&sb, "  kept:         %d\n", c.Kept)
	fmt.Fprintf(&sb, "  changed:      %d\n", c.Changed)

	review := res.ForReview()
	if len(review) == 0 {
		return sb.String()
	}
	sb.WriteString("\nSteps to review:\n")
	for _, o := range review {
		state := "unresolved"
		if o.Decision.Rule == RuleDetachedGroup {
			state = "unresolved, exercises not attached to steps"
		}
		if o.Decision.Resolved() {
			state = string(o.Decision.Category()) + ", needs review"
		}
		fmt.Fprintf(&sb, "- %s / %s %q (type %s): %s\n", o.ChapterID, o.StepID, o.Title, typeOrNone(o.Type), state)
	}
	return sb.String()
}

func typeOrNone(t string) string {
	if t == "" {
		return "(none)"
	}
	return t
}
