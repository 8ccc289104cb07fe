// Package validate checks the integrity of a corpus in any layout. Every
// check runs and accumulates findings; nothing short-circuits.
package validate

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"douane/internal/document"
	"douane/internal/model"
)

// LayoutAuto detects the layout from the files present.
const LayoutAuto = "auto"

var hexColor = regexp.MustCompile(`^#?[0-9A-Fa-f]{6}$`)

// Severity of a finding.
type Severity string

const (
	Violation Severity = "violation"
	Warning   Severity = "warning"
)

// Check names.
const (
	CheckMissingDocument     = "missing_document"
	CheckMalformed           = "malformed"
	CheckMissingLevel        = "missing_level"
	CheckUnknownLevel        = "unknown_level"
	CheckDuplicateID         = "duplicate_id"
	CheckMissingID           = "missing_id"
	CheckMissingExerciseFile = "missing_exercise_file"
	CheckOrphanExerciseFile  = "orphan_exercise_file"
	CheckColor               = "color"
	CheckNumero              = "numero"
	CheckUnresolvedStep      = "unresolved_step"
	CheckConflictingFlags    = "conflicting_flags"
	CheckExternalReference   = "external_reference"
	CheckStepPoints          = "step_points"
)

// Finding is one integrity problem.
type Finding struct {
	Severity Severity
	Check    string
	Path     string
	Message  string
}

// Totals counts the validated corpus.
type Totals struct {
	Levels    int
	Chapters  int
	Steps     int
	Exercises int
	Points    int // step points plus exercise points
}

// Report is the outcome of Run.
type Report struct {
	Layout   model.Layout
	Path     string
	Findings []Finding
	Totals   Totals
	Corpus   *model.Corpus // nil when the corpus could not be loaded
}

// OK reports whether the corpus has no violations.
func (r *Report) OK() bool {
	return len(r.Violations()) == 0
}

// Violations returns the findings of severity Violation.
func (r *Report) Violations() []Finding { return r.filter(Violation) }

// Warnings returns the findings of severity Warning.
func (r *Report) Warnings() []Finding { return r.filter(Warning) }

func (r *Report) filter(s Severity) []Finding {
	var out []Finding
	for _, f := range r.Findings {
		if f.Severity == s {
			out = append(out, f)
		}
	}
	return out
}

func (r *Report) add(s Severity, check, path, format string, args ...any) {
	r.Findings = append(r.Findings, Finding{Severity: s, Check: check, Path: path, Message: fmt.Sprintf(format, args...)})
}

// Options configures Run.
type Options struct {
	// Layout is "auto", "flat", "levels" or "bundle".
	Layout string
	// Path is the single document of the flat and bundle layouts. Empty
	// means DefaultPath and lets auto-detection consider the levels layout.
	Path        string
	DefaultPath string
	Levels      []model.LevelSpec
	Logger      *zap.Logger
}

// Detect resolves the layout of the corpus under store.
func Detect(store *document.Store, opts Options) (model.Layout, string, error) {
	docPath := opts.Path
	if docPath == "" {
		docPath = opts.DefaultPath
	}
	switch opts.Layout {
	case "", LayoutAuto:
	case string(model.LayoutFlat):
		return model.LayoutFlat, docPath, nil
	case string(model.LayoutLevels):
		return model.LayoutLevels, "", nil
	case string(model.LayoutBundle):
		return model.LayoutBundle, docPath, nil
	default:
		return "", "", fmt.Errorf("unknown layout %q", opts.Layout)
	}

	if opts.Path == "" {
		for _, l := range opts.Levels {
			if store.Exists(model.LevelDocument(l.ID)) {
				return model.LayoutLevels, "", nil
			}
		}
	}
	if v, err := store.Read(docPath); err == nil {
		if obj, ok := v.(*document.Object); ok && obj.Has(model.KeyLevels) {
			return model.LayoutBundle, docPath, nil
		}
	}
	return model.LayoutFlat, docPath, nil
}

// Run validates the corpus under store. The error is non-nil only for an
// invalid layout or a cancelled context; integrity problems are findings.
func Run(ctx context.Context, store *document.Store, opts Options) (*Report, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	layout, docPath, err := Detect(store, opts)
	if err != nil {
		return nil, err
	}
	r := &Report{Layout: layout, Path: docPath}
	log.Debug("validating", zap.String("layout", string(layout)), zap.String("path", docPath))

	var c *model.Corpus
	switch layout {
	case model.LayoutFlat:
		c, err = model.LoadFlat(store, docPath)
	case model.LayoutBundle:
		c, err = model.LoadBundle(store, docPath)
	case model.LayoutLevels:
		c, err = model.LoadLevels(store, opts.Levels)
	}
	if err != nil {
		r.addLoadError(docPath, err)
		return r, nil
	}
	r.Corpus = c
	for _, is := range c.Issues {
		r.addLoadError(is.Path, is.Err)
	}

	if layout == model.LayoutBundle {
		r.checkConfiguredLevels(c, opts.Levels)
	}
	r.checkIdentifiers(c)

	for _, lvl := range c.Levels {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r.checkLevel(lvl, layout)
		if layout == model.LayoutLevels {
			r.checkOrphanExerciseFiles(store, lvl)
		}
	}
	for _, ch := range c.Chapters {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r.checkChapter(store, ch, layout)
	}
	r.total(c)

	log.Info("validation complete",
		zap.String("layout", string(layout)),
		zap.Int("violations", len(r.Violations())),
		zap.Int("warnings", len(r.Warnings())))
	return r, nil
}

func (r *Report) addLoadError(path string, err error) {
	var me *document.MalformedError
	switch {
	case errors.As(err, &me):
		r.add(Violation, CheckMalformed, path, "%v", err)
	case errors.Is(err, fs.ErrNotExist):
		r.add(Violation, CheckMissingDocument, path, "document does not exist")
	default:
		r.add(Violation, CheckMalformed, path, "%v", err)
	}
}

// checkConfiguredLevels requires every configured level in a bundle.
func (r *Report) checkConfiguredLevels(c *model.Corpus, levels []model.LevelSpec) {
	present := make(map[string]bool)
	for _, l := range c.Levels {
		present[l.ID] = true
	}
	configured := make(map[string]bool)
	for _, l := range levels {
		configured[l.ID] = true
		if !present[l.ID] {
			r.add(Violation, CheckMissingLevel, r.Path, "level %s is missing", l.ID)
		}
	}
	for _, l := range c.Levels {
		if !configured[l.ID] {
			r.add(Warning, CheckUnknownLevel, r.Path, "level %q is not configured", l.ID)
		}
	}
}

func (r *Report) checkIdentifiers(c *model.Corpus) {
	for _, d := range c.Registry.Duplicates {
		r.add(Violation, CheckDuplicateID, d.Second.Path, "id %q used by %s and %s", d.ID, d.First, d.Second)
	}
	for _, loc := range c.Registry.Missing {
		r.add(Violation, CheckMissingID, loc.Path, "%s without id", loc)
	}
}

func (r *Report) checkLevel(lvl *model.Level, layout model.Layout) {
	path := ""
	if lvl.Source != nil {
		path = lvl.Source.Path
	}
	// Bundle levels carry their own color; configured colors are checked
	// only when set.
	if layout == model.LayoutBundle || lvl.Color != "" {
		if !hexColor.MatchString(lvl.Color) {
			r.add(Violation, CheckColor, path, "level %s: invalid color %q", lvl.ID, lvl.Color)
		}
	}

	seen := make(map[int]string)
	prev := -1
	for _, ch := range lvl.Chapters {
		n, ok := ch.Numero()
		if !ok {
			r.add(Warning, CheckNumero, path, "level %s: chapter %s has no numero", lvl.ID, ch.ID())
			continue
		}
		if other, dup := seen[n]; dup {
			r.add(Violation, CheckNumero, path, "level %s: numero %d used by %s and %s", lvl.ID, n, other, ch.ID())
		}
		seen[n] = ch.ID()
		if n < prev {
			r.add(Violation, CheckNumero, path, "level %s: chapter %s (numero %d) listed after numero %d", lvl.ID, ch.ID(), n, prev)
		}
		prev = n
	}

	for _, ch := range lvl.Chapters {
		if layout == model.LayoutLevels && !ch.ExerciseFileFound && !lvl.EmptyByDesign && ch.ID() != "" {
			r.add(Violation, CheckMissingExerciseFile, ch.ExerciseFile, "chapter %s has no exercise document", ch.ID())
		}
	}
}

// checkOrphanExerciseFiles warns about exercise documents of lvl that no
// chapter of the level names, such as those left behind by a reassignment.
func (r *Report) checkOrphanExerciseFiles(store *document.Store, lvl *model.Level) {
	dir := path.Join(lvl.ID, "exercices")
	names, err := store.List(dir, ".json")
	if err != nil {
		r.add(Warning, CheckOrphanExerciseFile, dir, "%v", err)
		return
	}
	known := make(map[string]bool, len(lvl.Chapters))
	for _, ch := range lvl.Chapters {
		known[ch.ID()+".json"] = true
	}
	for _, name := range names {
		if !known[name] {
			r.add(Warning, CheckOrphanExerciseFile, path.Join(dir, name), "level %s: no chapter %s", lvl.ID, strings.TrimSuffix(name, ".json"))
		}
	}
}

func (r *Report) checkChapter(store *document.Store, ch *model.Chapter, layout model.Layout) {
	path := ch.Source.Path
	if ch.Raw.Has(model.KeyColor) && !hexColor.MatchString(ch.Color()) {
		r.add(Violation, CheckColor, path, "chapter %s: invalid color %q", ch.ID(), ch.Color())
	}
	if ext := ch.ExternalDataFile(); ext != "" && layout == model.LayoutFlat && !store.Exists(ext) {
		r.add(Warning, CheckExternalReference, path, "chapter %s: external data %s does not exist", ch.ID(), ext)
	}
	for _, st := range ch.Steps {
		c, v := st.Flags()
		switch {
		case c && v:
			r.add(Violation, CheckConflictingFlags, path, "step %s %q is both consultation and validation", st.ID(), st.Title())
		case !c && !v:
			r.add(Violation, CheckUnresolvedStep, path, "step %s %q is neither consultation nor validation", st.ID(), st.Title())
		}
		if len(st.Exercises) == 0 {
			continue
		}
		sum := 0
		for _, ex := range st.Exercises {
			sum += ex.Points()
		}
		if st.Points() < sum {
			r.add(Warning, CheckStepPoints, path, "step %s: %d points, exercises total %d", st.ID(), st.Points(), sum)
		}
	}
}

func (r *Report) total(c *model.Corpus) {
	r.Totals.Levels = len(c.Levels)
	r.Totals.Chapters = len(c.Chapters)
	for _, st := range c.Steps() {
		r.Totals.Steps++
		r.Totals.Points += st.Points()
	}
	for _, ex := range c.Exercises() {
		r.Totals.Exercises++
		r.Totals.Points += ex.Points()
	}
}

// Text renders the report.
func Text(r *Report) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Validation (%s layout", r.Layout)
	if r.Path != "" {
		fmt.Fprintf(&sb, ", %s", r.Path)
	}
	sb.WriteString(")\n")
	t := r.Totals
	fmt.Fprintf(&sb, "  levels: %d  chapters: %d  steps: %d  exercises: %d  points: %d\n",
		t.Levels, t.Chapters, t.Steps, t.Exercises, t.Points)
	for _, f := range r.Findings {
		loc := ""
		if f.Path != "" {
			loc = " [" + f.Path + "]"
		}
		fmt.Fprintf(&sb, "%s %s%s: %s\n", strings.ToUpper(string(f.Severity)), f.Check, loc, f.Message)
	}
	if r.OK() {
		sb.WriteString("OK\n")
	} else {
		fmt.Fprintf(&sb, "FAILED: %d violation(s)\n", len(r.Violations()))
	}
	return sb.String()
}
