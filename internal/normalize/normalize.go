// Package normalize converts exercises from the legacy field layout to the
// unified one where type-specific fields live under "content".
package normalize

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"douane/internal/document"
	"douane/internal/model"
)

// Change records one converted exercise.
type Change struct {
	ChapterID  string
	ExerciseID string
	Type       string
	Consumed   []string // legacy keys moved under content
}

// Result is the outcome of Apply.
type Result struct {
	Seen      int
	Modern    int // already had a content object
	Unchanged int // no legacy field for its type
	Changes   []Change
}

// converter builds the content object from a legacy exercise and returns the
// keys it consumed.
type converter func(ex *document.Object) (*document.Object, []string)

// moveTo copies a single legacy key to content.<to>.
func moveTo(from, to string) converter {
	return func(ex *document.Object) (*document.Object, []string) {
		v, _ := ex.Get(from)
		return document.ObjectOf(to, v), []string{from}
	}
}

var converters = map[string]struct {
	trigger string
	convert converter
}{
	"qcm":          {"choix", convertQCM},
	"true_false":   {"affirmations", convertTrueFalse},
	"drag_drop":    {"items", moveTo("items", "items")},
	"matching":     {"paires", moveTo("paires", "pairs")},
	"likert_scale": {"items", moveTo("items", "items")},
	"flashcards":   {"cartes", moveTo("cartes", "cards")},
	"lecture":      {"texte", moveTo("texte", "text")},
	"quiz":         {"questions", moveTo("questions", "questions")},
}

// Exercise converts ex in place. It reports the consumed legacy keys and
// whether anything changed. Exercises that already have content are left
// alone.
func Exercise(ex *document.Object) ([]string, bool) {
	if v, ok := ex.Get(model.KeyContent); ok && present(v) {
		return nil, false
	}
	c, ok := converters[ex.String(model.KeyType)]
	if !ok {
		return nil, false
	}
	if v, ok := ex.Get(c.trigger); !ok || !present(v) {
		return nil, false
	}
	content, consumed := c.convert(ex)
	for _, k := range consumed {
		ex.Delete(k)
	}
	ex.Delete(model.KeyContent)
	ex.Set(model.KeyContent, content)
	return consumed, true
}

// present mirrors a truthiness test: null, false, 0 and "" are absent;
// empty arrays and objects are present.
func present(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	}
	if n, ok := document.IntOf(v); ok {
		return n != 0
	}
	return true
}

func convertQCM(ex *document.Object) (*document.Object, []string) {
	question := ex.String("question")
	if question == "" {
		question = "Question"
	}
	options := []any{}
	correct := -1
	for i, choice := range ex.Array("choix") {
		opt := choice
		if obj, ok := choice.(*document.Object); ok {
			if t, ok := obj.Get("texte"); ok && present(t) {
				opt = t
			}
			if b, _ := obj.Bool("correct"); b && correct < 0 {
				correct = i
			}
		}
		options = append(options, opt)
	}
	return document.ObjectOf(
		"question", question,
		"options", options,
		"correctAnswer", correct,
		"explanation", ex.String("explication"),
	), []string{"choix", "question", "explication"}
}

func convertTrueFalse(ex *document.Object) (*document.Object, []string) {
	items := []any{}
	for _, aff := range ex.Array("affirmations") {
		var statement any = aff
		answer := false
		if obj, ok := aff.(*document.Object); ok {
			if v, ok := obj.Get("texte"); ok && present(v) {
				statement = v
			} else if v, ok := obj.Get("affirmation"); ok && present(v) {
				statement = v
			}
			c, _ := obj.Bool("correct")
			a, _ := obj.Bool("answer")
			answer = c || a
		}
		items = append(items, document.ObjectOf("statement", statement, "answer", answer))
	}
	return document.ObjectOf("items", items), []string{"affirmations"}
}

// Apply converts every exercise of c. Sources with a converted exercise are
// marked dirty.
func Apply(ctx context.Context, c *model.Corpus, log *zap.Logger) (*Result, error) {
	if log == nil {
		log = zap.NewNop()
	}
	res := &Result{}
	for _, ch := range c.Chapters {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, ex := range ch.AllExercises() {
			res.Seen++
			if v, ok := ex.Raw.Get(model.KeyContent); ok && present(v) {
				res.Modern++
				continue
			}
			consumed, changed := Exercise(ex.Raw)
			if !changed {
				res.Unchanged++
				continue
			}
			ex.Source.MarkDirty()
			res.Changes = append(res.Changes, Change{
				ChapterID:  ch.ID(),
				ExerciseID: ex.ID(),
				Type:       ex.Type(),
				Consumed:   consumed,
			})
			log.Debug("exercise normalized", zap.String("exercise", ex.ID()), zap.Strings("consumed", consumed))
		}
	}
	log.Info("normalization complete", zap.Int("seen", res.Seen), zap.Int("converted", len(res.Changes)))
	return res, nil
}

// Report renders res as text.
func Report(res *Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Normalized %d of %d exercises (%d already unified, %d without legacy fields)\n",
		len(res.Changes), res.Seen, res.Modern, res.Unchanged)
	for _, c := range res.Changes {
		id := c.ExerciseID
		if id == "" {
			id = "(none)"
		}
		fmt.Fprintf(&sb, "- %s / %s (%s): %s\n", c.ChapterID, id, c.Type, strings.Join(c.Consumed, ", "))
	}
	return sb.String()
}
