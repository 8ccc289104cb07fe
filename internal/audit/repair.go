package audit

// repair.go — Bounded auto-repair. The only change ever made is copying
// content.<locator> to the top level of an exercise that lacks it. Values are
// never invented and extra keys are never removed.

import (
	"slices"
	"strings"

	"go.uber.org/zap"

	"douane/internal/document"
	"douane/internal/model"
	"douane/internal/schema"
)

// Outcome is the result of one repair attempt.
type Outcome string

const (
	OutcomeRepaired      Outcome = "repaired"
	OutcomeNotRepairable Outcome = "not_repairable"
	OutcomeUnverified    Outcome = "unverified"
)

// RepairOptions configures Repair.
type RepairOptions struct {
	// LocatorKey is the key copied from content. Defaults to "url".
	LocatorKey   string
	CheckContent bool
	Logger       *zap.Logger
}

// RepairEntry records one attempted repair.
type RepairEntry struct {
	ChapterID  string
	Type       string
	ExerciseID string
	Outcome    Outcome
	// Remaining, Extra and Reason describe why an unverified repair was
	// reverted.
	Remaining []string
	Extra     []string
	Reason    string
}

// RepairResult is the outcome of Repair.
type RepairResult struct {
	LocatorKey    string
	Entries       []RepairEntry
	Repaired      int
	NotRepairable int
	Unverified    int
}

// Repair applies the locator repair to every discrepancy of res whose
// missing keys contain the locator. Each repaired exercise is compared again;
// repairs that leave it non-conformant are reverted and reported as
// unverified. Sources holding a verified repair are marked dirty.
func Repair(c *model.Corpus, res *Result, opts RepairOptions) *RepairResult {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	locator := opts.LocatorKey
	if locator == "" {
		locator = "url"
	}
	out := &RepairResult{LocatorKey: locator}

	for _, d := range res.Discrepancies {
		if !slices.Contains(d.Missing, locator) || d.Exercise == nil {
			continue
		}
		ref, ok := res.Reference.Get(d.Type)
		if !ok {
			continue
		}
		entry := RepairEntry{ChapterID: d.ChapterID, Type: d.Type, ExerciseID: d.ExerciseID}
		ex := d.Exercise

		v, ok := ex.Raw.Object(model.KeyContent).Get(locator)
		if !ok || document.IsEmpty(v) {
			entry.Outcome = OutcomeNotRepairable
			out.NotRepairable++
			out.Entries = append(out.Entries, entry)
			continue
		}

		ex.Raw.Insert(insertPosition(ex.Raw.Keys(), ref, locator), locator, document.CloneValue(v))
		if after, conforms := compare(ex, ref, opts.CheckContent); !conforms {
			ex.Raw.Delete(locator)
			entry.Outcome = OutcomeUnverified
			entry.Remaining = after.Missing
			entry.Extra = after.Extra
			entry.Reason = revertReason(after)
			out.Unverified++
			log.Debug("repair reverted",
				zap.String("exercise", d.ExerciseID),
				zap.String("reason", entry.Reason))
		} else {
			ex.Source.MarkDirty()
			entry.Outcome = OutcomeRepaired
			out.Repaired++
			log.Debug("repaired", zap.String("exercise", d.ExerciseID), zap.String("key", locator))
		}
		out.Entries = append(out.Entries, entry)
	}

	log.Info("repair complete",
		zap.Int("repaired", out.Repaired),
		zap.Int("not_repairable", out.NotRepairable),
		zap.Int("unverified", out.Unverified))
	return out
}

// revertReason names what still differs from the reference after a repair.
func revertReason(d Discrepancy) string {
	var parts []string
	if len(d.Missing) > 0 {
		parts = append(parts, "still missing: "+strings.Join(d.Missing, ", "))
	}
	if len(d.Extra) > 0 {
		parts = append(parts, "extra keys: "+strings.Join(d.Extra, ", "))
	}
	if len(d.ContentMissing) > 0 {
		parts = append(parts, "content missing: "+strings.Join(d.ContentMissing, ", "))
	}
	if len(d.ContentExtra) > 0 {
		parts = append(parts, "content extra: "+strings.Join(d.ContentExtra, ", "))
	}
	if len(parts) == 0 {
		return "key order differs"
	}
	return strings.Join(parts, "; ")
}

// insertPosition places key right after the closest preceding reference key
// that the exercise already has, or first when there is none.
func insertPosition(actual []string, ref *schema.Reference, key string) int {
	idx := slices.Index(ref.Keys, key)
	for i := idx - 1; i >= 0; i-- {
		if pos := slices.Index(actual, ref.Keys[i]); pos >= 0 {
			return pos + 1
		}
	}
	return 0
}
