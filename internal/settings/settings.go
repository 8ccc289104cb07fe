package settings

// settings.go — douane configuration loaded from .douane/settings.yaml.
//
// Every accessor is safe on a nil *Settings and falls back to the built-in
// defaults, so a corpus without a settings file behaves exactly like the
// historical scripts.

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"douane/internal/model"
)

// Dir is the per-corpus directory holding settings and backups.
const Dir = ".douane"

// FileName is the settings file name inside Dir.
const FileName = "settings.yaml"

// Settings holds douane configuration from .douane/settings.yaml.
type Settings struct {
	// Corpus is the flat corpus document, relative to the root.
	Corpus string `yaml:"corpus,omitempty"`
	// GoldenChapter is the reference chapter id. Empty means the first
	// chapter of the corpus.
	GoldenChapter string     `yaml:"golden_chapter,omitempty"`
	Levels        []Level    `yaml:"levels,omitempty"`
	Rules         *Rules     `yaml:"rules,omitempty"`
	Overrides     []Override `yaml:"overrides,omitempty"`
	Schemas       []Schema   `yaml:"schemas,omitempty"`
	Repair        Repair     `yaml:"repair,omitempty"`
	Audit         Audit      `yaml:"audit,omitempty"`
}

// Level configures one level and the chapters assigned to it.
type Level struct {
	ID            string   `yaml:"id"`
	Title         string   `yaml:"title,omitempty"`
	Color         string   `yaml:"color,omitempty"`
	Chapters      []string `yaml:"chapters,omitempty"`
	EmptyByDesign bool     `yaml:"empty_by_design,omitempty"`
}

// Rules replaces the classification rule tables. Nil lists keep the default.
type Rules struct {
	Presentational      []string `yaml:"presentational,omitempty"`
	Assessment          []string `yaml:"assessment,omitempty"`
	ChildPresentational []string `yaml:"child_presentational,omitempty"`
	Interactive         []string `yaml:"interactive,omitempty"`
	Narrative           []string `yaml:"narrative,omitempty"`
}

// Override forces the classification of matching steps.
type Override struct {
	StepID        string `yaml:"step_id,omitempty"`
	TitleContains string `yaml:"title_contains,omitempty"`
	// Category is "consultation" or "validation".
	Category string `yaml:"category"`
}

// Schema declares the expected keys of one exercise type.
type Schema struct {
	Type        string   `yaml:"type"`
	Keys        []string `yaml:"keys"`
	ContentKeys []string `yaml:"content_keys,omitempty"`
}

// Repair configures the bounded auto-repair.
type Repair struct {
	LocatorKey string `yaml:"locator_key,omitempty"`
}

// Audit configures the conformance audit.
type Audit struct {
	// Skip is a list of chapter id patterns excluded from the audit.
	// Patterns use filepath.Match syntax; "prefix/**" matches a prefix.
	Skip []string `yaml:"skip,omitempty"`
}

// ---------------------------------------------------------------------------
// Defaults
// ---------------------------------------------------------------------------

const (
	DefaultCorpus     = "chapitres.json"
	DefaultLocatorKey = "url"
	defaultLevelColor = "#667eea"
)

// DefaultLevels returns the historical four-level layout: ch1..ch5 in N1,
// 101BT in N2, N3 and N4 empty by design.
func DefaultLevels() []Level {
	return []Level{
		{ID: "N1", Title: "Niveau 1: Les Fondamentaux", Color: defaultLevelColor, Chapters: []string{"ch1", "ch2", "ch3", "ch4", "ch5"}},
		{ID: "N2", Title: "Niveau 2: Procédures Avancées", Color: defaultLevelColor, Chapters: []string{"101BT"}},
		{ID: "N3", Title: "Niveau 3: Cas Complexes", Color: defaultLevelColor, EmptyByDesign: true},
		{ID: "N4", Title: "Niveau 4: Certification", Color: defaultLevelColor, EmptyByDesign: true},
	}
}

// DefaultOverrides returns the historical title table.
func DefaultOverrides() []Override {
	return []Override{
		{TitleContains: "Les 3 domaines douaniers", Category: "consultation"},
		{TitleContains: "Classification tarifaire", Category: "consultation"},
		{TitleContains: "Recours et contestation", Category: "consultation"},
		{TitleContains: "Documents commerciaux", Category: "consultation"},
		{TitleContains: "Portfolio", Category: "consultation"},
		{TitleContains: "Marchandises prohibées", Category: "validation"},
	}
}

// ---------------------------------------------------------------------------
// Load / Save
// ---------------------------------------------------------------------------

// Path returns the settings file path for root.
func Path(root string) string {
	return filepath.Join(root, Dir, FileName)
}

// LoadSettings reads .douane/settings.yaml relative to root.
// Returns nil (not an error) if the file does not exist.
func LoadSettings(root string) (*Settings, error) {
	path := Path(root)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", path, err)
	}
	if err := s.check(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &s, nil
}

// Save writes s to .douane/settings.yaml under root.
func Save(root string, s *Settings) error {
	if s == nil {
		s = &Settings{}
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	path := Path(root)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func (s *Settings) check() error {
	seen := make(map[string]bool)
	for _, l := range s.Levels {
		if l.ID == "" {
			return fmt.Errorf("level without id")
		}
		if seen[l.ID] {
			return fmt.Errorf("level %s declared twice", l.ID)
		}
		seen[l.ID] = true
	}
	for i, o := range s.Overrides {
		if (o.StepID == "") == (o.TitleContains == "") {
			return fmt.Errorf("override %d: set exactly one of step_id or title_contains", i)
		}
		if o.Category != "consultation" && o.Category != "validation" {
			return fmt.Errorf("override %d: category %q is not consultation or validation", i, o.Category)
		}
	}
	for _, sc := range s.Schemas {
		if sc.Type == "" {
			return fmt.Errorf("schema without type")
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

// CorpusPath returns the flat corpus document path.
func (s *Settings) CorpusPath() string {
	if s == nil || s.Corpus == "" {
		return DefaultCorpus
	}
	return s.Corpus
}

// GoldenChapterID returns the configured golden chapter, or "".
func (s *Settings) GoldenChapterID() string {
	if s == nil {
		return ""
	}
	return s.GoldenChapter
}

// LevelList returns the configured levels, or the defaults.
func (s *Settings) LevelList() []Level {
	if s == nil || len(s.Levels) == 0 {
		return DefaultLevels()
	}
	return s.Levels
}

// LevelSpecs converts the level list for the model loaders.
func (s *Settings) LevelSpecs() []model.LevelSpec {
	levels := s.LevelList()
	out := make([]model.LevelSpec, len(levels))
	for i, l := range levels {
		out[i] = model.LevelSpec{ID: l.ID, Title: l.Title, Color: l.Color, EmptyByDesign: l.EmptyByDesign}
	}
	return out
}

// Assignment maps chapter id → level id.
func (s *Settings) Assignment() map[string]string {
	out := make(map[string]string)
	for _, l := range s.LevelList() {
		for _, ch := range l.Chapters {
			out[ch] = l.ID
		}
	}
	return out
}

// OverrideList returns the configured overrides, or the historical table.
func (s *Settings) OverrideList() []Override {
	if s == nil || s.Overrides == nil {
		return DefaultOverrides()
	}
	return s.Overrides
}

// SetStepOverride records a step_id override, replacing any previous entry
// for the same step. Step entries are kept ahead of title entries. When no
// overrides were configured the historical table is kept after the new entry.
func (s *Settings) SetStepOverride(stepID, category string) {
	if s.Overrides == nil {
		s.Overrides = DefaultOverrides()
	}
	var steps, titles []Override
	for _, o := range s.Overrides {
		switch {
		case o.StepID == stepID:
		case o.StepID != "":
			steps = append(steps, o)
		default:
			titles = append(titles, o)
		}
	}
	steps = append(steps, Override{StepID: stepID, Category: category})
	s.Overrides = append(steps, titles...)
}

// LocatorKey returns the key the auto-repair copies from content.
func (s *Settings) LocatorKey() string {
	if s == nil || s.Repair.LocatorKey == "" {
		return DefaultLocatorKey
	}
	return s.Repair.LocatorKey
}

// SchemaList returns the declared schemas, possibly none.
func (s *Settings) SchemaList() []Schema {
	if s == nil {
		return nil
	}
	return s.Schemas
}

// RuleTables returns the configured rule tables, or nil.
func (s *Settings) RuleTables() *Rules {
	if s == nil {
		return nil
	}
	return s.Rules
}

// SkipsAudit reports whether chapterID matches any audit skip pattern.
// Safe to call on a nil *Settings receiver.
func (s *Settings) SkipsAudit(chapterID string) bool {
	if s == nil {
		return false
	}
	for _, p := range s.Audit.Skip {
		if matchPattern(p, chapterID) {
			return true
		}
	}
	return false
}

// matchPattern reports whether name matches a skip pattern.
//
// "prefix/**" matches the prefix itself and every name beneath it.
// All other patterns use filepath.Match semantics.
func matchPattern(pattern, name string) bool {
	if strings.HasSuffix(pattern, "/**") {
		prefix := strings.TrimSuffix(pattern, "/**")
		return name == prefix || strings.HasPrefix(name, prefix+"/")
	}
	matched, _ := filepath.Match(pattern, name)
	return matched
}
