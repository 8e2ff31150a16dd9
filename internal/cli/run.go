package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/rowclaim/internal/config"
	"github.com/roach88/rowclaim/internal/host"
	"github.com/roach88/rowclaim/internal/trigger"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database     string
	Workers      int
	Repeat       bool
	MaxRetries   int
	ScanInterval time.Duration
	Submit       bool

	// Sleeper overrides trigger suspension (for testing).
	Sleeper trigger.Sleeper
}

// RunSummary counts stored triggers by status after the runner stops.
type RunSummary struct {
	Statuses map[string]int `json:"statuses"`
	Events   int            `json:"events"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <path>",
		Short: "Run stored triggers",
		Long: `Start the host runner over the host database. Connections are resolved from
the definitions at <path>, falling back to ROWCLAIM_CONN_<REF> variables.

Without --repeat the runner stops once no trigger is pending or running.
With --repeat every emitted event resubmits the trigger and the runner stays
up until interrupted. Interrupted activations are requeued and resume on the
next start.

Example:
  rowclaim run --db ./host.db ./triggers --submit
  rowclaim run --db ./host.db ./triggers --repeat --workers 8`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHost(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to host SQLite database (required)")
	cmd.Flags().IntVar(&opts.Workers, "workers", 4, "concurrent activations")
	cmd.Flags().BoolVar(&opts.Repeat, "repeat", false, "resubmit each trigger after it emits")
	cmd.Flags().IntVar(&opts.MaxRetries, "max-retries", 3, "connection error retries per activation")
	cmd.Flags().DurationVar(&opts.ScanInterval, "scan-interval", time.Second, "how often to look for new submissions")
	cmd.Flags().BoolVar(&opts.Submit, "submit", false, "submit every defined trigger before running")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runHost(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	logger := opts.logger()

	doc, err := loadDefinitions(formatter, path)
	if err != nil {
		return err
	}

	connector := newConnector(doc, logger)
	defer closeConnector(connector, logger)

	st, err := openStore(formatter, opts.Database, logger)
	if err != nil {
		return err
	}
	defer closeStore(st, logger)

	ctx, cancel := signalContext(cmd, logger)
	defer cancel()

	if opts.Submit {
		if _, err := submitTriggers(ctx, formatter, st, connector, doc.Triggers, logger); err != nil {
			return err
		}
	}

	var trOpts []trigger.Option
	if opts.Sleeper != nil {
		trOpts = append(trOpts, trigger.WithSleeper(opts.Sleeper))
	}
	runner, err := host.NewRunner(st, host.DefaultRegistry(connector, trOpts...),
		host.WithWorkers(opts.Workers),
		host.WithRepeat(opts.Repeat),
		host.WithMaxRetries(opts.MaxRetries),
		host.WithScanInterval(opts.ScanInterval),
		host.WithRunnerLogger(logger),
	)
	if err != nil {
		return formatter.Fail(ExitCommandError, config.ErrCodeGeneric, "failed to start runner", err)
	}

	logger.Info("runner starting", "db", opts.Database, "workers", opts.Workers, "repeat", opts.Repeat)
	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return formatter.Fail(ExitFailure, ErrCodeDatabase, "runner stopped", err)
	}
	logger.Info("runner stopped")

	summary, err := summarize(context.WithoutCancel(ctx), st)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDatabase, "failed to read results", err)
	}
	if err := formatter.Result(summary, func(w io.Writer) {
		statuses := make([]string, 0, len(summary.Statuses))
		for s := range summary.Statuses {
			statuses = append(statuses, s)
		}
		sort.Strings(statuses)
		for _, s := range statuses {
			fmt.Fprintf(w, "%-10s %d\n", s, summary.Statuses[s])
		}
		fmt.Fprintf(w, "%-10s %d\n", "events", summary.Events)
	}); err != nil {
		return err
	}

	if summary.Statuses[string(host.StatusFailed)] > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d trigger(s) failed", summary.Statuses[string(host.StatusFailed)]))
	}
	return nil
}

func summarize(ctx context.Context, st *host.Store) (RunSummary, error) {
	triggers, err := st.List(ctx)
	if err != nil {
		return RunSummary{}, err
	}
	events, err := st.Events(ctx, "")
	if err != nil {
		return RunSummary{}, err
	}

	summary := RunSummary{Statuses: make(map[string]int), Events: len(events)}
	for _, t := range triggers {
		summary.Statuses[string(t.Status)]++
	}
	return summary, nil
}
