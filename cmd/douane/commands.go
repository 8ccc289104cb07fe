package main

// commands.go — one constructor per subcommand.

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"douane/internal/audit"
	"douane/internal/backup"
	"douane/internal/classify"
	"douane/internal/document"
	"douane/internal/export"
	"douane/internal/frontmatter"
	"douane/internal/migrate"
	"douane/internal/model"
	"douane/internal/normalize"
	"douane/internal/review"
	"douane/internal/schema"
	"douane/internal/settings"
	"douane/internal/validate"
)

// ---------------------------------------------------------------------------
// audit
// ---------------------------------------------------------------------------

func newAuditCmd(a *app) *cobra.Command {
	var fix, content bool
	var reportDir string
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Compare every exercise against the golden chapter",
		Long: `Extract one reference schema per exercise type from the golden chapter
(or use the schemas declared in settings) and list every exercise whose keys
differ.

With --fix, a missing locator key is copied from the exercise content when a
value is there. Repaired documents are backed up and rewritten.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.loadCorpus()
			if err != nil {
				return err
			}
			res, drift, err := a.runAudit(cmd, c, content)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, d := range drift {
				fmt.Fprintf(out, "schema drift: %s %s: declared [%s], golden [%s]\n",
					d.Type, d.Kind, strings.Join(d.Declared, ", "), strings.Join(d.Extracted, ", "))
			}
			fmt.Fprint(out, audit.Report(res))

			var rr *audit.RepairResult
			if fix {
				rr = audit.Repair(c, res, audit.RepairOptions{
					LocatorKey:   a.settings.LocatorKey(),
					CheckContent: content,
					Logger:       a.log,
				})
				fmt.Fprint(out, "\n"+audit.RepairReport(rr))
				n, err := a.persist(cmd.Context(), c)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%d document(s) rewritten\n", n)
			}
			if reportDir != "" {
				return a.writeReport(c, reportDir, export.Input{Audit: res, Repair: rr})
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&fix, "fix", false, "apply the bounded repair and rewrite repaired documents")
	cmd.Flags().BoolVar(&content, "content", false, "also compare content key sets")
	cmd.Flags().StringVar(&reportDir, "report-dir", "", "write the markdown report bundle to this directory")
	return cmd
}

// runAudit picks the reference schemas and audits c.
func (a *app) runAudit(cmd *cobra.Command, c *model.Corpus, content bool) (*audit.Result, []schema.DriftEntry, error) {
	golden, err := schema.Golden(c, a.settings.GoldenChapterID())
	if err != nil {
		return nil, nil, err
	}
	ref := schema.Extract(golden)
	var drift []schema.DriftEntry
	if decls := a.declarations(); len(decls) > 0 {
		declared := schema.Declared(decls)
		drift = schema.Drift(declared, ref)
		for _, d := range drift {
			a.log.Warn("golden chapter drifts from declared schema", zap.String("type", d.Type), zap.String("kind", string(d.Kind)))
		}
		ref = declared
	}
	res, err := audit.Run(cmd.Context(), c, ref, audit.Options{
		GoldenChapter: golden.ID(),
		CheckContent:  content,
		Skip:          a.settings.SkipsAudit,
		Logger:        a.log,
	})
	if err != nil {
		return nil, nil, err
	}
	return res, drift, nil
}

// ---------------------------------------------------------------------------
// classify
// ---------------------------------------------------------------------------

func newClassifyCmd(a *app) *cobra.Command {
	var write, doReview bool
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Mark each step as consultation or validation",
		Long: `Run the classification cascade on every step, then apply the overrides
from settings (step id entries first, then title substrings).

With --review, unresolved steps and steps that fell through to the default
rule are presented one by one; answers are saved as step id overrides.
With --write, the flags are written back to the corpus.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.loadCorpus()
			if err != nil {
				return err
			}
			res, err := classify.Apply(cmd.Context(), c, a.classifyOptions())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if doReview {
				items := review.Items(res)
				answers, err := a.prompt(items)
				if err != nil {
					return err
				}
				if len(answers) > 0 {
					if a.settings == nil {
						a.settings = &settings.Settings{}
					}
					for _, ans := range answers {
						a.settings.SetStepOverride(ans.Item.StepID, string(ans.Category))
					}
					if err := settings.Save(a.root, a.settings); err != nil {
						return err
					}
					a.log.Info("overrides saved", zap.Int("answers", len(answers)), zap.String("path", settings.Path(a.root)))
					// Rerun so the new overrides reach the flags.
					if res, err = classify.Apply(cmd.Context(), c, a.classifyOptions()); err != nil {
						return err
					}
				}
			}
			fmt.Fprint(out, classify.Report(res))

			if write {
				n, err := a.persist(cmd.Context(), c)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%d document(s) rewritten\n", n)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&write, "write", false, "write the flags back to the corpus")
	cmd.Flags().BoolVar(&doReview, "review", false, "prompt for steps that need a decision")
	return cmd
}

// ---------------------------------------------------------------------------
// migrate
// ---------------------------------------------------------------------------

func newMigrateCmd(a *app) *cobra.Command {
	var outDir string
	var noClassify bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Restructure the flat corpus into one directory per level",
		Long: `Split the flat corpus into <level>/chapitres.json and
<level>/exercices/<chapter>.json following the level assignment from
settings, inlining external exercise data. Steps without flags are
classified on the way unless --no-classify is given.

The output is validated afterwards; the command fails on any violation.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := model.LoadFlat(a.store, a.settings.CorpusPath())
			if err != nil {
				return err
			}
			opts := migrate.Options{
				Assignment: a.settings.Assignment(),
				Source:     a.store,
				Logger:     a.log,
			}
			if !noClassify {
				opts.Classify = a.classifyOptions().Decide
			}
			levels := a.settings.LevelSpecs()
			m, err := migrate.Plan(cmd.Context(), c, levels, opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprint(out, migrate.Summary(m))

			dest := a.store
			if outDir != "" {
				dest = document.NewStore(outDir)
			}
			if err := migrate.Write(cmd.Context(), dest, m); err != nil {
				return err
			}
			r, err := validate.Run(cmd.Context(), dest, validate.Options{
				Layout: string(model.LayoutLevels),
				Levels: levels,
				Logger: a.log,
			})
			if err != nil {
				return err
			}
			fmt.Fprint(out, "\n"+validate.Text(r))
			if !r.OK() {
				return errFailed
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "out", "", "output directory (default: the corpus root)")
	cmd.Flags().BoolVar(&noClassify, "no-classify", false, "leave unflagged steps as they are")
	return cmd
}

// ---------------------------------------------------------------------------
// validate
// ---------------------------------------------------------------------------

func newValidateCmd(a *app) *cobra.Command {
	var layout, path string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the integrity of the corpus",
		Long: `Check identifiers, colors, chapter numbering, step flags and external
references. The layout is detected unless --layout is given: the levels
layout when level directories exist, the bundle layout when the document
holds "niveaux", the flat layout otherwise.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := validate.Run(cmd.Context(), a.store, validate.Options{
				Layout:      layout,
				Path:        path,
				DefaultPath: a.settings.CorpusPath(),
				Levels:      a.settings.LevelSpecs(),
				Logger:      a.log,
			})
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), validate.Text(r))
			if !r.OK() {
				return errFailed
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&layout, "layout", validate.LayoutAuto, "auto, flat, levels or bundle")
	cmd.Flags().StringVar(&path, "path", "", "document of the flat or bundle layout")
	return cmd
}

// ---------------------------------------------------------------------------
// normalize
// ---------------------------------------------------------------------------

func newNormalizeCmd(a *app) *cobra.Command {
	var write bool
	cmd := &cobra.Command{
		Use:   "normalize",
		Short: "Move legacy exercise fields under content",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.loadCorpus()
			if err != nil {
				return err
			}
			res, err := normalize.Apply(cmd.Context(), c, a.log)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprint(out, normalize.Report(res))
			if write {
				n, err := a.persist(cmd.Context(), c)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%d document(s) rewritten\n", n)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&write, "write", false, "rewrite converted documents")
	return cmd
}

// ---------------------------------------------------------------------------
// report
// ---------------------------------------------------------------------------

func newReportCmd(a *app) *cobra.Command {
	var reportDir string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Write the markdown report bundle",
		Long: `Run the audit, the classification and the validation without writing to
the corpus, and render the results as linked markdown pages with YAML
frontmatter.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.loadCorpus()
			if err != nil {
				return err
			}
			ar, _, err := a.runAudit(cmd, c, false)
			if err != nil {
				return err
			}
			cr, err := classify.Apply(cmd.Context(), c, a.classifyOptions())
			if err != nil {
				return err
			}
			vr, err := validate.Run(cmd.Context(), a.store, validate.Options{
				DefaultPath: a.settings.CorpusPath(),
				Levels:      a.settings.LevelSpecs(),
				Logger:      a.log,
			})
			if err != nil {
				return err
			}
			return a.writeReport(c, reportDir, export.Input{Audit: ar, Classification: cr, Validation: vr})
		},
	}
	cmd.Flags().StringVar(&reportDir, "report-dir", "", "output directory")
	_ = cmd.MarkFlagRequired("report-dir")
	return cmd
}

// writeReport stamps in with the run metadata and writes the bundle.
func (a *app) writeReport(c *model.Corpus, dir string, in export.Input) error {
	in.Meta = frontmatter.NewMeta(a.runID, c.Hash(), a.now())
	b, err := export.Generate(in)
	if err != nil {
		return err
	}
	if err := export.Write(b, dir); err != nil {
		return err
	}
	a.log.Info("report written", zap.String("dir", dir), zap.Int("pages", len(b.Paths())))
	return nil
}

// ---------------------------------------------------------------------------
// backups
// ---------------------------------------------------------------------------

func newBackupsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backups",
		Short: "List the backups taken before in-place rewrites",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := backup.List(a.root)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, id := range ids {
				snap, err := backup.Open(a.root, id)
				if err != nil {
					return err
				}
				files, err := snap.Files()
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s: %s\n", id, strings.Join(files, ", "))
			}
			return nil
		},
	}
	restore := &cobra.Command{
		Use:   "restore <run-id>",
		Short: "Copy the documents of a backup back over the corpus",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := backup.Open(a.root, args[0])
			if err != nil {
				return err
			}
			if err := snap.Restore(); err != nil {
				return err
			}
			files, err := snap.Files()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored %d document(s) from %s\n", len(files), args[0])
			return nil
		},
	}
	cmd.AddCommand(restore)
	return cmd
}
