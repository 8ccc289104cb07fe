// Package migrate restructures a flat corpus into the level-indexed layout:
// <L>/chapitres.json holding chapter shells and <L>/exercices/<id>.json
// holding each chapter's exercises.
package migrate

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"go.uber.org/zap"

	"douane/internal/classify"
	"douane/internal/document"
	"douane/internal/model"
)

// Defaults filled into chapter and step shells.
const (
	defaultTitle     = "Sans titre"
	defaultEmoji     = "📚"
	defaultColor     = "000000"
	defaultStepType  = classify.GroupType
	missingNumeroKey = 999
)

// Options configures Plan.
type Options struct {
	// Assignment maps chapter id → level id.
	Assignment map[string]string
	// Classify, when set, adds flags to steps that carry none.
	Classify func(*model.Step) classify.Decision
	// Source reads external exercise documents, relative to the corpus root.
	Source *document.Store
	Logger *zap.Logger
}

// ChapterPlan is one migrated chapter.
type ChapterPlan struct {
	ID        string
	Shell     *document.Object
	Exercises []*document.Object
	// Inline and External count the exercises by origin.
	Inline   int
	External int
}

// LevelPlan is one level of the output.
type LevelPlan struct {
	Spec     model.LevelSpec
	Chapters []*ChapterPlan
}

// Exercises returns the number of exercises in the level.
func (l *LevelPlan) Exercises() int {
	n := 0
	for _, ch := range l.Chapters {
		n += len(ch.Exercises)
	}
	return n
}

// Migration is the planned output. Every configured level is present.
type Migration struct {
	Levels     []*LevelPlan
	Unassigned []string // corpus chapters with no level
	Warnings   []string
	Classified int // steps that received classifier flags
}

// Plan builds the migration of c into levels. The corpus is never mutated;
// every output object is a deep copy.
func Plan(ctx context.Context, c *model.Corpus, levels []model.LevelSpec, opts Options) (*Migration, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	m := &Migration{}
	byLevel := make(map[string]*LevelPlan, len(levels))
	for _, spec := range levels {
		lp := &LevelPlan{Spec: spec}
		m.Levels = append(m.Levels, lp)
		byLevel[spec.ID] = lp
	}

	grouped := make(map[string][]*model.Chapter)
	seen := make(map[string]bool)
	for _, ch := range c.Chapters {
		id := ch.ID()
		levelID, ok := opts.Assignment[id]
		if !ok {
			m.Unassigned = append(m.Unassigned, id)
			continue
		}
		if _, ok := byLevel[levelID]; !ok {
			m.Warnings = append(m.Warnings, fmt.Sprintf("chapter %s assigned to unknown level %s", id, levelID))
			continue
		}
		if seen[id] {
			m.Warnings = append(m.Warnings, fmt.Sprintf("chapter %s appears more than once; first occurrence kept", id))
			continue
		}
		seen[id] = true
		if !model.SafeChapterID(id) {
			m.Warnings = append(m.Warnings, fmt.Sprintf("chapter %q skipped: id cannot name an exercise document", id))
			log.Warn("unsafe chapter id", zap.String("chapter", id))
			continue
		}
		grouped[levelID] = append(grouped[levelID], ch)
	}
	for _, id := range sortedKeys(opts.Assignment) {
		if !seen[id] {
			if _, inCorpus := c.Chapter(id); !inCorpus {
				m.Warnings = append(m.Warnings, fmt.Sprintf("chapter %s assigned to %s is not in the corpus", id, opts.Assignment[id]))
			}
		}
	}

	for _, lp := range m.Levels {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		chapters := grouped[lp.Spec.ID]
		sort.SliceStable(chapters, func(i, j int) bool {
			return numero(chapters[i]) < numero(chapters[j])
		})
		for _, ch := range chapters {
			cp := &ChapterPlan{ID: ch.ID(), Shell: m.shell(ch, opts)}
			for _, ex := range ch.AllExercises() {
				cp.Exercises = append(cp.Exercises, ex.Raw.Clone())
			}
			cp.Inline = len(cp.Exercises)
			if ext := ch.ExternalDataFile(); ext != "" {
				external, err := readExternal(opts.Source, ext)
				if err != nil {
					m.Warnings = append(m.Warnings, fmt.Sprintf("chapter %s: external data %s: %v", ch.ID(), ext, err))
					log.Warn("external data unreadable", zap.String("chapter", ch.ID()), zap.String("path", ext), zap.Error(err))
				}
				cp.Exercises = append(cp.Exercises, external...)
				cp.External = len(external)
			}
			lp.Chapters = append(lp.Chapters, cp)
		}
		log.Debug("level planned",
			zap.String("level", lp.Spec.ID),
			zap.Int("chapters", len(lp.Chapters)),
			zap.Int("exercises", lp.Exercises()))
	}
	return m, nil
}

func numero(ch *model.Chapter) int {
	if n, ok := ch.Numero(); ok {
		return n
	}
	return missingNumeroKey
}

// shell copies the chapter without its exercises, filling defaults.
func (m *Migration) shell(ch *model.Chapter, opts Options) *document.Object {
	out := ch.Raw.Clone()
	out.Delete(model.KeyExternalData)

	color := strings.TrimPrefix(out.String(model.KeyColor), "#")
	if color == "" {
		color = defaultColor
	}
	out.Set(model.KeyColor, color)
	setDefault(out, model.KeyTitle, defaultTitle)
	setDefault(out, "description", "")
	setDefault(out, "emoji", defaultEmoji)
	setDefault(out, "objectifs", []any{})
	setDefault(out, "progression", 0)

	steps := make([]any, 0, len(ch.Steps))
	for _, st := range ch.Steps {
		s := st.Raw.Clone()
		setDefault(s, model.KeyTitle, defaultTitle)
		setDefault(s, model.KeyType, defaultStepType)
		setDefault(s, "duree", "")
		setDefault(s, model.KeyPoints, 0)
		s.Set(model.KeyExercises, []any{})
		if opts.Classify != nil && !st.HasFlags() {
			if d := opts.Classify(st); d.Resolved() {
				s.Set(model.KeyConsultation, d.Consultation)
				s.Set(model.KeyValidation, d.Validation)
				m.Classified++
			}
		}
		steps = append(steps, s)
	}
	out.Set(model.KeySteps, steps)
	return out
}

func setDefault(o *document.Object, key string, v any) {
	if !o.Has(key) {
		o.Set(key, v)
	}
}

// readExternal returns the exercises of an external document laid out as
// {"etapes": [{"exercices": [...]}]}.
func readExternal(store *document.Store, rel string) ([]*document.Object, error) {
	if store == nil {
		return nil, fmt.Errorf("no source store")
	}
	doc, err := store.ReadObject(path.Clean(rel))
	if err != nil {
		return nil, err
	}
	var out []*document.Object
	for _, st := range doc.Array(model.KeySteps) {
		stObj, ok := st.(*document.Object)
		if !ok {
			continue
		}
		for _, ex := range stObj.Array(model.KeyExercises) {
			if exObj, ok := ex.(*document.Object); ok {
				out = append(out, exObj.Clone())
			}
		}
	}
	return out, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ---------------------------------------------------------------------------
// Write
// ---------------------------------------------------------------------------

// Write persists m under store: one chapter document per level, one exercise
// document per chapter and a .gitkeep in the exercise directory of empty
// levels.
func Write(ctx context.Context, store *document.Store, m *Migration) error {
	for _, lp := range m.Levels {
		if err := ctx.Err(); err != nil {
			return err
		}
		shells := make([]any, len(lp.Chapters))
		for i, cp := range lp.Chapters {
			if !model.SafeChapterID(cp.ID) {
				return fmt.Errorf("chapter %q: id cannot name an exercise document", cp.ID)
			}
			shells[i] = cp.Shell
		}
		if err := store.Write(model.LevelDocument(lp.Spec.ID), document.ObjectOf(model.KeyChapters, shells)); err != nil {
			return fmt.Errorf("level %s: %w", lp.Spec.ID, err)
		}
		if len(lp.Chapters) == 0 {
			if err := store.Touch(path.Join(lp.Spec.ID, "exercices", ".gitkeep")); err != nil {
				return fmt.Errorf("level %s: %w", lp.Spec.ID, err)
			}
			continue
		}
		for _, cp := range lp.Chapters {
			exercises := make([]any, len(cp.Exercises))
			for i, ex := range cp.Exercises {
				exercises[i] = ex
			}
			rel := model.ExerciseDocument(lp.Spec.ID, cp.ID)
			if err := store.Write(rel, document.ObjectOf(model.KeyExercises, exercises)); err != nil {
				return fmt.Errorf("chapter %s: %w", cp.ID, err)
			}
		}
	}
	return nil
}

// Summary renders m as text.
func Summary(m *Migration) string {
	var sb strings.Builder
	for _, lp := range m.Levels {
		fmt.Fprintf(&sb, "%s: %d chapters, %d exercises\n", lp.Spec.ID, len(lp.Chapters), lp.Exercises())
		for _, cp := range lp.Chapters {
			fmt.Fprintf(&sb, "  %s: %d inline + %d external\n", cp.ID, cp.Inline, cp.External)
		}
	}
	if m.Classified > 0 {
		fmt.Fprintf(&sb, "classified steps: %d\n", m.Classified)
	}
	if len(m.Unassigned) > 0 {
		fmt.Fprintf(&sb, "unassigned chapters: %s\n", strings.Join(m.Unassigned, ", "))
	}
	for _, w := range m.Warnings {
		fmt.Fprintf(&sb, "warning: %s\n", w)
	}
	return sb.String()
}
