package commands

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cleared-dev/parsergen/internal/buildinfo"
	"github.com/cleared-dev/parsergen/internal/config"
	"github.com/cleared-dev/parsergen/internal/generate"
)

// clientFactory builds the generation client for a workspace.
type clientFactory func(ctx context.Context, ws *workspace, logger *zap.Logger) (generate.Client, error)

type globalOptions struct {
	configPath string
	verbose    bool
	logger     *zap.Logger
	newClient  clientFactory
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&globalOptions{newClient: newGeminiClient})
}

func newRootCommand(opts *globalOptions) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "parsergen",
		Short:   "Generate bank statement parsers from a sample statement and its expected table",
		Version: buildinfo.String(),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.logger != nil {
				return nil
			}
			logger, err := newLogger(opts.verbose)
			if err != nil {
				return fmt.Errorf("creating logger: %w", err)
			}
			opts.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", config.FileName, "path to parsergen.yaml")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(
		newInitCommand(opts),
		newGenerateCommand(opts),
		newCheckCommand(opts),
		newTargetsCommand(opts),
		newWorkerCommand(opts),
	)

	return rootCmd
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}

// workspace is a loaded config and the directory it is relative to.
type workspace struct {
	root string
	cfg  *config.Config
}

func (o *globalOptions) workspace() (*workspace, error) {
	path, err := filepath.Abs(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("resolving config path: %w", err)
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, err
	}
	return &workspace{root: filepath.Dir(path), cfg: cfg}, nil
}

func (w *workspace) dataDir() string    { return config.Resolve(w.root, w.cfg.Paths.DataDir) }
func (w *workspace) parsersDir() string { return config.Resolve(w.root, w.cfg.Paths.ParsersDir) }
func (w *workspace) logsDir() string    { return config.Resolve(w.root, w.cfg.Paths.LogsDir) }
