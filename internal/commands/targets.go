package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cleared-dev/parsergen/internal/artifact"
	"github.com/cleared-dev/parsergen/internal/attemptlog"
	"github.com/cleared-dev/parsergen/internal/target"
)

func newTargetsCommand(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "targets",
		Short: "List targets in the data directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := global.workspace()
			if err != nil {
				return err
			}
			infos, err := target.Discover(ws.dataDir())
			if err != nil {
				return err
			}
			if len(infos) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No targets in %s\n", relTo(ws.root, ws.dataDir()))
				return nil
			}

			entries, err := attemptlog.Read(ws.logsDir())
			if err != nil {
				global.logger.Warn("reading attempt log", zap.Error(err))
			}
			runs := lastRuns(entries)

			store := artifact.NewStore(ws.parsersDir())
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TARGET\tSTATEMENT\tEXPECTED\tPARSER\tLAST RUN")
			for _, info := range infos {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					info.Name,
					yesNo(info.HasDocument),
					yesNo(info.HasReference),
					yesNo(store.Exists(info.Name)),
					describeRun(runs[info.Name]),
				)
			}
			return w.Flush()
		},
	}
}

// lastRuns returns the latest attempt log entry per target.
func lastRuns(entries []attemptlog.Entry) map[string]attemptlog.Entry {
	runs := make(map[string]attemptlog.Entry)
	for _, e := range entries {
		prev, ok := runs[e.Target]
		if !ok || !entryTime(e).Before(entryTime(prev)) {
			runs[e.Target] = e
		}
	}
	return runs
}

func entryTime(e attemptlog.Entry) time.Time {
	t, err := e.Time()
	if err != nil {
		return time.Time{}
	}
	return t
}

func describeRun(e attemptlog.Entry) string {
	if e.RunID == "" {
		return "-"
	}
	if t, err := e.Time(); err == nil {
		return fmt.Sprintf("%s %s", e.State, t.UTC().Format("2006-01-02 15:04"))
	}
	return e.State
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
