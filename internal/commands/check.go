package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cleared-dev/parsergen/internal/artifact"
	"github.com/cleared-dev/parsergen/internal/sample"
	"github.com/cleared-dev/parsergen/internal/schema"
	"github.com/cleared-dev/parsergen/internal/stmt"
	"github.com/cleared-dev/parsergen/internal/target"
	"github.com/cleared-dev/parsergen/internal/validate"
)

// ErrCheckFailed is returned when a saved parser no longer matches its reference.
var ErrCheckFailed = errors.New("parser output does not match reference")

type checkOptions struct {
	target  string
	sandbox string
	output  string
}

func newCheckCommand(global *globalOptions) *cobra.Command {
	opts := &checkOptions{}
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run a saved parser against its sample and compare with the expected CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := global.workspace()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("sandbox") {
				ws.cfg.Sandbox.Mode = opts.sandbox
			}
			logger := global.logger
			out := cmd.OutOrStdout()

			t, err := target.Resolve(ws.dataDir(), opts.target)
			if err != nil {
				return err
			}
			source, err := artifact.NewStore(ws.parsersDir()).Load(t.Name)
			if err != nil {
				return err
			}
			s, err := sample.NewLoader(logger).Load(cmd.Context(), t)
			if err != nil {
				return err
			}
			sch, err := schema.Observe(s.Reference, schema.WithCaseInsensitive(ws.cfg.Validation.CaseInsensitiveColumns...))
			if err != nil {
				return err
			}
			exec, err := newExecutor(ws.cfg, logger)
			if err != nil {
				return err
			}

			got, err := exec.Execute(cmd.Context(), source, s.Document)
			if err != nil {
				return fmt.Errorf("running %s parser: %w", t.Name, err)
			}

			if opts.output != "" {
				if err := writeTableFile(opts.output, got); err != nil {
					return err
				}
				logger.Debug("wrote parser output", zap.String("path", opts.output))
			}

			verdict := validate.Validate(got, s.Reference, sch, validate.Options{Tolerance: ws.cfg.Tolerance()})
			fmt.Fprintf(out, "Shape: expected %d x %d, got %d x %d\n",
				verdict.ExpectedRows, len(sch.Columns), verdict.GotRows, len(got.Columns))
			fmt.Fprintf(out, "Result: %s\n", verdict.Summary())
			if !verdict.Pass {
				return fmt.Errorf("%s: %w", t.Name, ErrCheckFailed)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.target, "target", "t", "", "target bank name")
	cmd.Flags().StringVar(&opts.sandbox, "sandbox", "", "sandbox mode: process or inprocess")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "write the parser output to this CSV file")
	_ = cmd.MarkFlagRequired("target")

	return cmd
}

func writeTableFile(path string, t *stmt.Table) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := sample.WriteTable(f, t); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}
