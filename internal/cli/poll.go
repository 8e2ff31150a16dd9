package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/rowclaim/internal/trigger"
)

// PollOptions holds flags for the poll command.
type PollOptions struct {
	*RootOptions
	Timeout time.Duration

	// Sleeper overrides the trigger's suspension (for testing).
	Sleeper trigger.Sleeper
}

// NewPollCommand creates the poll command.
func NewPollCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PollOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "poll <path> <trigger>",
		Short: "Run one activation in the foreground",
		Long: `Run a single activation of the named trigger: poll until a candidate row
appears, claim it, and print the one event the activation emits.

Exit codes:
  0 - Record claimed
  1 - Claim failed, or the activation ended in an error
  2 - Definitions could not be loaded or the trigger is invalid

Example:
  rowclaim poll ./triggers claim-orders
  rowclaim poll ./triggers claim-orders --timeout 30s --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPoll(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "give up after this long (0 waits forever)")

	return cmd
}

func runPoll(opts *PollOptions, path, name string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	logger := opts.logger()

	doc, err := loadDefinitions(formatter, path)
	if err != nil {
		return err
	}
	defs, err := selectTriggers(formatter, doc, []string{name})
	if err != nil {
		return err
	}

	connector := newConnector(doc, logger)
	defer closeConnector(connector, logger)

	trOpts := []trigger.Option{trigger.WithLogger(logger.With("trigger", name))}
	if opts.Sleeper != nil {
		trOpts = append(trOpts, trigger.WithSleeper(opts.Sleeper))
	}
	tr, err := buildTrigger(formatter, defs[0], connector, trOpts...)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd, logger)
	defer cancel()
	if opts.Timeout > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeout(ctx, opts.Timeout)
		defer stop()
	}

	ev, err := tr.Run(ctx)
	if err != nil {
		switch {
		case trigger.IsConfigurationError(err):
			return formatter.Fail(ExitCommandError, ErrCodeInvalidTrigger, fmt.Sprintf("trigger %q", name), err)
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			return formatter.Fail(ExitFailure, ErrCodeActivation, fmt.Sprintf("no candidate within %s", opts.Timeout), nil)
		default:
			return formatter.Fail(ExitFailure, ErrCodeActivation, "activation failed", err)
		}
	}

	if err := formatter.Result(ev, func(w io.Writer) {
		switch ev.Kind {
		case trigger.EventClaimed:
			fmt.Fprintf(w, "✓ claimed %s after %d poll(s)\n", ev.Record, ev.Polls)
		default:
			fmt.Fprintf(w, "✗ %s\n", ev.Reason)
		}
	}); err != nil {
		return err
	}

	if ev.Kind == trigger.EventClaimFailed {
		return NewExitError(ExitFailure, ev.Reason)
	}
	return nil
}
