package export

// export.go — Markdown report bundle: renders audit, classification and
// validation results into a directory of linked pages.
//
// Bundle layout:
//   index.md             — run summary, links to every page
//   audit.md             — reference schemas and discrepancies
//   classification.md    — flag counts and steps to review
//   validation.md        — totals and findings
//   levels/<id>.md       — one per level of the validated corpus
//
// Every page starts with a YAML header (run id, timestamp, corpus hash,
// tags). Pages depend only on their inputs, so rerunning on the same corpus
// with the same Meta yields byte-identical files.

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"douane/internal/audit"
	"douane/internal/classify"
	"douane/internal/frontmatter"
	"douane/internal/model"
	"douane/internal/validate"
)

// Input holds the results to render. Nil results render as "not run".
type Input struct {
	Meta           frontmatter.Meta
	Audit          *audit.Result
	Repair         *audit.RepairResult
	Classification *classify.Result
	Validation     *validate.Report
}

// Bundle holds pre-generated page content (path → markdown).
// Paths are relative to the output directory, using forward slashes.
type Bundle struct {
	pages map[string][]byte
}

// Paths returns the page paths, sorted.
func (b *Bundle) Paths() []string {
	paths := make([]string, 0, len(b.pages))
	for p := range b.pages {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Page returns the content of one page.
func (b *Bundle) Page(path string) ([]byte, bool) {
	p, ok := b.pages[path]
	return p, ok
}

// Generate builds every page from in. No files are written.
func Generate(in Input) (*Bundle, error) {
	bodies := map[string]struct {
		tag  string
		body string
	}{
		"index.md":          {"douane/index", buildIndex(in)},
		"audit.md":          {"douane/audit", buildAudit(in.Audit, in.Repair)},
		"classification.md": {"douane/classification", buildClassification(in.Classification)},
		"validation.md":     {"douane/validation", buildValidation(in.Validation)},
	}
	for _, lvl := range levels(in.Validation) {
		tags := "douane/level"
		if lvl.EmptyByDesign {
			tags = "douane/level-empty"
		}
		bodies["levels/"+sanitizeFilename(lvl.ID)+".md"] = struct {
			tag  string
			body string
		}{tags, buildLevel(lvl)}
	}

	pages := make(map[string][]byte, len(bodies))
	for path, p := range bodies {
		data, err := frontmatter.Write(in.Meta.WithTags("douane", p.tag), p.body)
		if err != nil {
			return nil, fmt.Errorf("render %s: %w", path, err)
		}
		pages[path] = data
	}
	return &Bundle{pages: pages}, nil
}

// Write writes all pages of bundle under outputDir in sorted path order.
func Write(bundle *Bundle, outputDir string) error {
	for _, p := range bundle.Paths() {
		abs := filepath.Join(outputDir, filepath.FromSlash(p))
		if err := writeNote(abs, bundle.pages[p]); err != nil {
			return err
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Page builders
// ---------------------------------------------------------------------------

func buildIndex(in Input) string {
	var b strings.Builder
	b.WriteString("# Corpus Report\n\n")
	fmt.Fprintf(&b, "- **Run**: `%s`\n", in.Meta.RunID)
	fmt.Fprintf(&b, "- **Generated**: %s\n", in.Meta.GeneratedAt)
	fmt.Fprintf(&b, "- **Corpus hash**: `%s`\n\n", in.Meta.CorpusSHA256)

	b.WriteString("## Pages\n\n")
	if a := in.Audit; a != nil {
		fmt.Fprintf(&b, "- [[audit|Audit]]: %d audited, %d non-conformant\n", a.Counts.Audited, a.Counts.NonConformant)
	} else {
		b.WriteString("- [[audit|Audit]]: not run\n")
	}
	if c := in.Classification; c != nil {
		fmt.Fprintf(&b, "- [[classification|Classification]]: %d steps, %d unresolved, %d to review\n",
			c.Counts.Steps, c.Counts.Unresolved, len(c.ForReview()))
	} else {
		b.WriteString("- [[classification|Classification]]: not run\n")
	}
	if v := in.Validation; v != nil {
		status := "OK"
		if !v.OK() {
			status = "FAILED"
		}
		fmt.Fprintf(&b, "- [[validation|Validation]]: %s, %d violation(s), %d warning(s)\n",
			status, len(v.Violations()), len(v.Warnings()))
	} else {
		b.WriteString("- [[validation|Validation]]: not run\n")
	}

	lvls := levels(in.Validation)
	if len(lvls) > 0 {
		b.WriteString("\n## Levels\n\n")
		for _, lvl := range lvls {
			fmt.Fprintf(&b, "- [[levels/%s|%s]]: %d chapter(s)\n", sanitizeFilename(lvl.ID), levelName(lvl), len(lvl.Chapters))
		}
	}
	return b.String()
}

func buildAudit(res *audit.Result, rep *audit.RepairResult) string {
	var b strings.Builder
	b.WriteString("# Audit\n\n")
	if res == nil {
		b.WriteString("_Not run._\n")
		return b.String()
	}
	fmt.Fprintf(&b, "Golden chapter: `%s`\n\n", res.GoldenChapter)

	b.WriteString("## Reference Schemas\n\n")
	b.WriteString("| Type | Keys | Source |\n")
	b.WriteString("|------|------|--------|\n")
	for _, t := range res.Reference.Types() {
		r, _ := res.Reference.Get(t)
		src := fmt.Sprintf("%d example(s)", r.Count)
		if r.Declared {
			src = "declared"
		}
		fmt.Fprintf(&b, "| %s | %s | %s |\n", t, codeList(r.Keys), src)
	}

	c := res.Counts
	b.WriteString("\n## Counts\n\n")
	fmt.Fprintf(&b, "- Seen: %d\n- Untyped: %d\n- Novel: %d\n- Audited: %d\n- Conformant: %d\n- Non-conformant: %d\n",
		c.Seen, c.Untyped, c.Novel, c.Audited, c.Conformant, c.NonConformant)
	if len(res.NovelTypes) > 0 {
		fmt.Fprintf(&b, "- Novel types: %s\n", codeList(res.NovelTypes))
	}
	if len(res.Skipped) > 0 {
		fmt.Fprintf(&b, "- Skipped chapters: %s\n", codeList(res.Skipped))
	}

	b.WriteString("\n## Discrepancies\n\n")
	if len(res.Discrepancies) == 0 {
		b.WriteString("_None found._\n")
	} else {
		b.WriteString("| Chapter | Type | Exercise | Missing | Extra |\n")
		b.WriteString("|---------|------|----------|---------|-------|\n")
		for _, d := range res.Discrepancies {
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
				d.ChapterID, d.Type, d.ExerciseID, codeList(d.Missing), codeList(d.Extra))
		}
	}

	if rep != nil {
		b.WriteString("\n## Repair\n\n")
		fmt.Fprintf(&b, "Locator key `%s`: %d repaired, %d not repairable, %d unverified.\n",
			rep.LocatorKey, rep.Repaired, rep.NotRepairable, rep.Unverified)
		if len(rep.Entries) > 0 {
			b.WriteString("\n| Chapter | Type | Exercise | Outcome | Reason |\n")
			b.WriteString("|---------|------|----------|---------|--------|\n")
			for _, e := range rep.Entries {
				fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n", e.ChapterID, e.Type, e.ExerciseID, e.Outcome, e.Reason)
			}
		}
	}
	return b.String()
}

func buildClassification(res *classify.Result) string {
	var b strings.Builder
	b.WriteString("# Classification\n\n")
	if res == nil {
		b.WriteString("_Not run._\n")
		return b.String()
	}
	c := res.Counts
	b.WriteString("| Steps | Consultation | Validation | Unresolved | Needs review | Overridden |\n")
	b.WriteString("|-------|--------------|------------|------------|--------------|------------|\n")
	fmt.Fprintf(&b, "| %d | %d | %d | %d | %d | %d |\n",
		c.Steps, c.Consultation, c.Validation, c.Unresolved, c.NeedsReview, c.Overridden)

	b.WriteString("\n## Steps to Review\n\n")
	review := res.ForReview()
	if len(review) == 0 {
		b.WriteString("_None._\n")
		return b.String()
	}
	b.WriteString("| Chapter | Step | Title | Type | Rule | State |\n")
	b.WriteString("|---------|------|-------|------|------|-------|\n")
	for _, o := range review {
		state := "unresolved"
		if o.Decision.Resolved() {
			state = string(o.Decision.Category())
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s |\n",
			o.ChapterID, o.StepID, escapeCell(o.Title), o.Type, o.Decision.Rule, state)
	}
	return b.String()
}

func buildValidation(r *validate.Report) string {
	var b strings.Builder
	b.WriteString("# Validation\n\n")
	if r == nil {
		b.WriteString("_Not run._\n")
		return b.String()
	}
	fmt.Fprintf(&b, "- **Layout**: %s\n", r.Layout)
	if r.Path != "" {
		fmt.Fprintf(&b, "- **Document**: `%s`\n", r.Path)
	}
	t := r.Totals
	fmt.Fprintf(&b, "- **Totals**: %d levels, %d chapters, %d steps, %d exercises, %d points\n",
		t.Levels, t.Chapters, t.Steps, t.Exercises, t.Points)
	if r.OK() {
		b.WriteString("- **Status**: OK\n")
	} else {
		fmt.Fprintf(&b, "- **Status**: FAILED (%d violation(s))\n", len(r.Violations()))
	}

	b.WriteString("\n## Findings\n\n")
	if len(r.Findings) == 0 {
		b.WriteString("_None found._\n")
		return b.String()
	}
	b.WriteString("| Severity | Check | Document | Message |\n")
	b.WriteString("|----------|-------|----------|---------|\n")
	for _, f := range r.Findings {
		fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", f.Severity, f.Check, f.Path, escapeCell(f.Message))
	}
	return b.String()
}

func buildLevel(lvl *model.Level) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", levelName(lvl))
	if lvl.Color != "" {
		fmt.Fprintf(&b, "**Color**: `%s`\n\n", lvl.Color)
	}
	if len(lvl.Chapters) == 0 {
		if lvl.EmptyByDesign {
			b.WriteString("_Empty by design._\n")
		} else {
			b.WriteString("_No chapters._\n")
		}
		return b.String()
	}
	b.WriteString("| Numero | Chapter | Title | Steps | Exercises |\n")
	b.WriteString("|--------|---------|-------|-------|-----------|\n")
	for _, ch := range lvl.Chapters {
		numero := ""
		if n, ok := ch.Numero(); ok {
			numero = fmt.Sprint(n)
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %d | %d |\n",
			numero, ch.ID(), escapeCell(ch.Title()), len(ch.Steps), len(ch.AllExercises()))
	}
	return b.String()
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func levels(r *validate.Report) []*model.Level {
	if r == nil || r.Corpus == nil {
		return nil
	}
	return r.Corpus.Levels
}

func levelName(lvl *model.Level) string {
	if lvl.Title != "" {
		return lvl.Title
	}
	return lvl.ID
}

// codeList renders keys as inline code separated by commas.
func codeList(keys []string) string {
	if len(keys) == 0 {
		return ""
	}
	return "`" + strings.Join(keys, "`, `") + "`"
}

// escapeCell keeps a value from breaking a markdown table row.
func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

// sanitizeFilename replaces / and . with -, collapses consecutive - to one,
// and trims leading/trailing -.
func sanitizeFilename(s string) string {
	s = strings.ReplaceAll(s, "/", "-")
	s = strings.ReplaceAll(s, ".", "-")
	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	return strings.Trim(s, "-")
}

// writeNote writes content to path, creating parent directories as needed.
func writeNote(path string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
