package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/rowclaim/internal/host"
)

// EventsOptions holds flags for the events command.
type EventsOptions struct {
	*RootOptions
	Database string
	Trigger  string
}

// NewEventsCommand creates the events command.
func NewEventsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EventsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List emitted events",
		Long: `List the events stored triggers have emitted, in emission order.

Example:
  rowclaim events --db ./host.db
  rowclaim events --db ./host.db --trigger 0192f0c4-... --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvents(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to host SQLite database (required)")
	cmd.Flags().StringVar(&opts.Trigger, "trigger", "", "only events of this trigger ID")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runEvents(opts *EventsOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	logger := opts.logger()

	st, err := openStore(formatter, opts.Database, logger)
	if err != nil {
		return err
	}
	defer closeStore(st, logger)

	events, err := st.Events(cmd.Context(), opts.Trigger)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDatabase, "failed to read events", err)
	}
	if events == nil {
		events = []host.StoredEvent{}
	}

	return formatter.Result(events, func(w io.Writer) {
		if len(events) == 0 {
			fmt.Fprintln(w, "No events.")
			return
		}
		for _, ev := range events {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", ev.Seq, ev.TriggerID, ev.Kind, ev.Payload)
		}
	})
}
