package main

// main.go — douane command line: global flags, per-run setup and the helpers
// shared by every subcommand.

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"douane/internal/backup"
	"douane/internal/classify"
	"douane/internal/document"
	"douane/internal/logging"
	"douane/internal/model"
	"douane/internal/review"
	"douane/internal/schema"
	"douane/internal/settings"
	"douane/internal/validate"
)

// errFailed is returned when a command ran to completion but its checks
// failed. The report has already been printed.
var errFailed = errors.New("checks failed")

// app carries the state of one invocation.
type app struct {
	// flags
	root    string
	verbose bool
	logMode string

	runID    string
	log      *zap.Logger
	settings *settings.Settings
	store    *document.Store

	now    func() time.Time
	prompt func([]review.Item) ([]review.Answer, error)
}

func newApp() *app {
	return &app{
		now: time.Now,
		prompt: func(items []review.Item) ([]review.Answer, error) {
			return review.Run(items)
		},
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "douane",
		Short: "Audit, classify, restructure and validate a course corpus",
		Long: `douane maintains a JSON course corpus made of levels, chapters, steps
and exercises.

Settings are read from <root>/.douane/settings.yaml when present. In-place
rewrites back up the affected documents under <root>/.douane/backups/<run-id>/.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&a.root, "root", ".", "corpus root directory")
	root.PersistentFlags().BoolVar(&a.verbose, "verbose", false, "debug logging")
	root.PersistentFlags().StringVar(&a.logMode, "log-mode", "dev", "log format: dev or prod")

	root.AddCommand(
		newAuditCmd(a),
		newClassifyCmd(a),
		newMigrateCmd(a),
		newValidateCmd(a),
		newNormalizeCmd(a),
		newReportCmd(a),
		newBackupsCmd(a),
	)
	return root
}

// setup builds the logger, the run id, the settings and the store.
func (a *app) setup() error {
	a.runID = uuid.NewString()
	log, err := logging.New(a.logMode, a.verbose)
	if err != nil {
		return err
	}
	a.log = logging.WithRun(log, a.runID)

	s, err := settings.LoadSettings(a.root)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	a.settings = s
	a.store = document.NewStore(a.root)
	a.log.Debug("run started", zap.String("root", a.root), zap.Bool("settings", s != nil))
	return nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// loadCorpus loads the corpus in whatever layout the root holds. Load issues
// of the levels layout are fatal here; the validate command reports them
// instead.
func (a *app) loadCorpus() (*model.Corpus, error) {
	layout, docPath, err := validate.Detect(a.store, validate.Options{
		DefaultPath: a.settings.CorpusPath(),
		Levels:      a.settings.LevelSpecs(),
	})
	if err != nil {
		return nil, err
	}
	var c *model.Corpus
	switch layout {
	case model.LayoutLevels:
		c, err = model.LoadLevels(a.store, a.settings.LevelSpecs())
	case model.LayoutBundle:
		c, err = model.LoadBundle(a.store, docPath)
	default:
		c, err = model.LoadFlat(a.store, docPath)
	}
	if err != nil {
		return nil, err
	}
	for _, is := range c.Issues {
		if !errors.Is(is.Err, os.ErrNotExist) {
			return nil, is
		}
		a.log.Warn("document missing", zap.String("path", is.Path))
	}
	a.log.Debug("corpus loaded",
		zap.String("layout", string(c.Layout)),
		zap.Int("chapters", len(c.Chapters)),
		zap.Int("documents", len(c.Sources)))
	return c, nil
}

// classifyOptions builds the cascade and overrides from settings.
func (a *app) classifyOptions() classify.Options {
	var rules classify.Rules
	if r := a.settings.RuleTables(); r != nil {
		rules = classify.Rules{
			Presentational:      r.Presentational,
			Assessment:          r.Assessment,
			ChildPresentational: r.ChildPresentational,
			Interactive:         r.Interactive,
			Narrative:           r.Narrative,
		}
	}
	var overrides classify.OverrideList
	for _, o := range a.settings.OverrideList() {
		overrides = append(overrides, classify.Override{
			StepID:        o.StepID,
			TitleContains: o.TitleContains,
			Category:      classify.Category(o.Category),
		})
	}
	return classify.Options{Engine: classify.NewEngine(rules), Overrides: overrides, Logger: a.log}
}

// declarations returns the declared schemas from settings.
func (a *app) declarations() []schema.Declaration {
	var out []schema.Declaration
	for _, s := range a.settings.SchemaList() {
		out = append(out, schema.Declaration{Type: s.Type, Keys: s.Keys, ContentKeys: s.ContentKeys})
	}
	return out
}

// persist backs up and rewrites every dirty document of c. Nothing is
// written once ctx is cancelled.
func (a *app) persist(ctx context.Context, c *model.Corpus) (int, error) {
	dirty := c.DirtySources()
	if len(dirty) == 0 {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	snap, err := backup.Create(a.root, a.runID)
	if err != nil {
		return 0, err
	}
	for _, src := range dirty {
		if err := snap.Save(src.Path); err != nil {
			return 0, err
		}
	}
	a.log.Info("backup written", zap.String("dir", snap.Dir), zap.Int("documents", len(snap.Saved)))
	for i, src := range dirty {
		if err := a.store.Write(src.Path, src.Root); err != nil {
			return i, err
		}
		a.log.Debug("document written", zap.String("path", src.Path))
	}
	return len(dirty), nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(newApp()).ExecuteContext(ctx)
	stop()
	if err != nil {
		if !errors.Is(err, errFailed) {
			fmt.Fprintln(os.Stderr, "douane:", err)
		}
		os.Exit(1)
	}
}
