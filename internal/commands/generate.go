package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cleared-dev/parsergen/internal/artifact"
	"github.com/cleared-dev/parsergen/internal/attemptlog"
	"github.com/cleared-dev/parsergen/internal/config"
	"github.com/cleared-dev/parsergen/internal/generate"
	"github.com/cleared-dev/parsergen/internal/gitops"
	"github.com/cleared-dev/parsergen/internal/refine"
	"github.com/cleared-dev/parsergen/internal/sample"
	"github.com/cleared-dev/parsergen/internal/sandbox"
	"github.com/cleared-dev/parsergen/internal/target"
	"github.com/cleared-dev/parsergen/internal/validate"
)

type generateOptions struct {
	target      string
	maxAttempts int
	sandbox     string
	tolerance   float64
	dryRun      bool
}

func newGenerateCommand(global *globalOptions) *cobra.Command {
	opts := &generateOptions{}
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate, test and refine a parser for a target",
		Long: `Generate asks the model for a parsing routine, runs it against the target's
sample statement and compares the output with the expected CSV. Failures are
fed back to the model until the routine passes or attempts run out.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := global.workspace()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("max-attempts") {
				ws.cfg.Loop.MaxAttempts = opts.maxAttempts
			}
			if cmd.Flags().Changed("sandbox") {
				ws.cfg.Sandbox.Mode = opts.sandbox
			}
			if cmd.Flags().Changed("tolerance") {
				ws.cfg.Validation.NumericTolerance = opts.tolerance
			}
			if err := ws.cfg.Validate(); err != nil {
				return err
			}
			return runGenerate(cmd.Context(), cmd.OutOrStdout(), global, ws, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.target, "target", "t", "", "target bank name (directory under the data dir)")
	cmd.Flags().IntVar(&opts.maxAttempts, "max-attempts", refine.DefaultMaxAttempts, "maximum generation attempts")
	cmd.Flags().StringVar(&opts.sandbox, "sandbox", config.SandboxProcess, "sandbox mode: process or inprocess")
	cmd.Flags().Float64Var(&opts.tolerance, "tolerance", 0.01, "numeric comparison tolerance")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "run the loop without saving the parser")
	_ = cmd.MarkFlagRequired("target")

	return cmd
}

func runGenerate(ctx context.Context, out io.Writer, global *globalOptions, ws *workspace, opts *generateOptions) error {
	logger := global.logger
	t, err := target.Resolve(ws.dataDir(), opts.target)
	if err != nil {
		return err
	}

	gen, err := global.newClient(ctx, ws, logger)
	if err != nil {
		return err
	}
	exec, err := newExecutor(ws.cfg, logger)
	if err != nil {
		return err
	}

	ctrl := refine.New(sample.NewLoader(logger), gen, exec, refine.Options{
		MaxAttempts:     ws.cfg.Loop.MaxAttempts,
		Validation:      validate.Options{Tolerance: ws.cfg.Tolerance()},
		CaseInsensitive: ws.cfg.Validation.CaseInsensitiveColumns,
		AllowedImports:  ws.cfg.Sandbox.AllowedImports,
		FeedbackLimit:   ws.cfg.Loop.FeedbackLimit,
		FeedbackRows:    ws.cfg.Loop.FeedbackRows,
		Logger:          logger,
	})
	res := ctrl.Run(ctx, t)

	// Diagnostics are best effort; the run outcome decides the exit code.
	if err := attemptlog.Append(ws.logsDir(), attemptlog.Entries(res)); err != nil {
		logger.Warn("writing attempt log", zap.Error(err))
	}
	runDir, err := attemptlog.WriteRun(ws.logsDir(), res)
	if err != nil {
		logger.Warn("writing run artifacts", zap.Error(err))
	}

	printAttempts(out, res)

	if !res.Success() {
		if last := res.Last(); last != nil && last.Report != "" {
			fmt.Fprintf(out, "Last attempt feedback:\n%s\n", last.Report)
		}
		if runDir != "" {
			fmt.Fprintf(out, "Attempt details: %s\n", runDir)
		}
		return fmt.Errorf("generating %s parser (%s): %w", t.Name, res.State, res.Err)
	}

	if opts.dryRun {
		fmt.Fprintf(out, "Parser for %s passed (dry run, not saved)\n", t.Name)
		return nil
	}

	store := artifact.NewStore(ws.parsersDir())
	path, err := store.Save(t.Name, res.Artifact, res.RunID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Saved %s parser to %s\n", t.Name, relTo(ws.root, path))

	if ws.cfg.Git.AutoCommit && gitops.IsRepo(ws.root) {
		author := gitops.Author{Name: ws.cfg.Git.AuthorName, Email: ws.cfg.Git.AuthorEmail}
		msg := fmt.Sprintf("parser: %s (run %s)", t.Name, res.RunID)
		if _, err := gitops.CommitPaths(ws.root, msg, author, path); err != nil {
			logger.Warn("committing parser", zap.Error(err))
		}
	}
	return nil
}

func printAttempts(out io.Writer, res *refine.Result) {
	for _, a := range res.Attempts {
		fmt.Fprintf(out, "Attempt %d: %s (%s)\n", a.Index, a.Outcome, a.Duration.Round(time.Millisecond))
	}
}

// newExecutor builds the configured sandbox.
func newExecutor(cfg *config.Config, logger *zap.Logger) (sandbox.Executor, error) {
	switch cfg.Sandbox.Mode {
	case config.SandboxInProcess:
		return sandbox.NewInterpreter(cfg.Sandbox.Timeout, cfg.Sandbox.AllowedImports), nil
	case config.SandboxProcess, "":
		return sandbox.NewProcessExecutor(sandbox.ProcessOptions{
			Timeout:        cfg.Sandbox.Timeout,
			AllowedImports: cfg.Sandbox.AllowedImports,
			Logger:         logger,
		})
	default:
		return nil, fmt.Errorf("unknown sandbox mode %q", cfg.Sandbox.Mode)
	}
}

func newGeminiClient(ctx context.Context, ws *workspace, logger *zap.Logger) (generate.Client, error) {
	key, err := ws.cfg.APIKey(ws.root)
	if err != nil {
		return nil, errors.Join(generate.ErrGenerationUnavailable, err)
	}
	gen := ws.cfg.Generation
	return generate.NewGemini(ctx, generate.GeminiConfig{
		APIKey:            key,
		Model:             gen.Model,
		Timeout:           gen.Timeout,
		RequestsPerMinute: gen.RequestsPerMinute,
		Temperature:       gen.Temperature,
		Prompt: generate.PromptOptions{
			ExcerptChars: gen.ExcerptChars,
			SampleRows:   gen.SampleRows,
		},
		Logger: logger,
	})
}

func relTo(root, path string) string {
	if rel, err := filepath.Rel(root, path); err == nil {
		return rel
	}
	return path
}
