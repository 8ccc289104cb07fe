package audit

// report.go — Plain-text rendering of audit and repair results. Output
// depends only on the result, so identical corpora give identical reports.

import (
	"fmt"
	"strings"
)

// Report renders res as text.
func Report(res *Result) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Audit against golden chapter %s\n", orNone(res.GoldenChapter))
	sb.WriteString("\nReference schemas:\n")
	for _, t := range res.Reference.Types() {
		r, _ := res.Reference.Get(t)
		src := fmt.Sprintf("%d example(s), first %s", r.Count, orNone(r.ExampleID))
		if r.Declared {
			src = "declared"
		}
		fmt.Fprintf(&sb, "  %-16s [%s] (%s)\n", t, strings.Join(r.Keys, ", "), src)
	}

	c := res.Counts
	sb.WriteString("\nCounts:\n")
	fmt.Fprintf(&sb, "  seen:           %d\n", c.Seen)
	fmt.Fprintf(&sb, "  untyped:        %d\n", c.Untyped)
	fmt.Fprintf(&sb, "  novel:          %d\n", c.Novel)
	fmt.Fprintf(&sb, "  audited:        %d\n", c.Audited)
	fmt.Fprintf(&sb, "  conformant:     %d\n", c.Conformant)
	fmt.Fprintf(&sb, "  non-conformant: %d\n", c.NonConformant)
	if len(res.NovelTypes) > 0 {
		fmt.Fprintf(&sb, "  novel types:    %s\n", strings.Join(res.NovelTypes, ", "))
	}
	if len(res.Skipped) > 0 {
		fmt.Fprintf(&sb, "  skipped:        %s\n", strings.Join(res.Skipped, ", "))
	}

	if len(res.Discrepancies) == 0 {
		sb.WriteString("\nNo discrepancies.\n")
		return sb.String()
	}
	sb.WriteString("\nDiscrepancies:\n")
	for _, d := range res.Discrepancies {
		fmt.Fprintf(&sb, "- %s / %s / %s\n", d.ChapterID, d.Type, orNone(d.ExerciseID))
		fmt.Fprintf(&sb, "    missing:  [%s]\n", strings.Join(d.Missing, ", "))
		fmt.Fprintf(&sb, "    extra:    [%s]\n", strings.Join(d.Extra, ", "))
		fmt.Fprintf(&sb, "    actual:   [%s]\n", strings.Join(d.Actual, ", "))
		fmt.Fprintf(&sb, "    expected: [%s]\n", strings.Join(d.Expected, ", "))
		if len(d.ContentMissing) > 0 || len(d.ContentExtra) > 0 {
			fmt.Fprintf(&sb, "    content missing: [%s]\n", strings.Join(d.ContentMissing, ", "))
			fmt.Fprintf(&sb, "    content extra:   [%s]\n", strings.Join(d.ContentExtra, ", "))
		}
	}
	return sb.String()
}

// RepairReport renders r as text.
func RepairReport(r *RepairResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Repair of %q: %d repaired, %d not repairable, %d unverified\n",
		r.LocatorKey, r.Repaired, r.NotRepairable, r.Unverified)
	for _, e := range r.Entries {
		fmt.Fprintf(&sb, "- %s / %s / %s: %s", e.ChapterID, e.Type, orNone(e.ExerciseID), e.Outcome)
		if e.Reason != "" {
			fmt.Fprintf(&sb, " (%s)", e.Reason)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
