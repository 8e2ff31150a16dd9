package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/rowclaim/internal/config"
	"github.com/roach88/rowclaim/internal/datasource"
	"github.com/roach88/rowclaim/internal/host"
)

// SubmitOptions holds flags for the submit command.
type SubmitOptions struct {
	*RootOptions
	Database string
}

// Submission reports one stored trigger.
type Submission struct {
	Name     string `json:"name"`
	ID       string `json:"id"`
	Hash     string `json:"hash"`
	Inserted bool   `json:"inserted"`
}

// NewSubmitCommand creates the submit command.
func NewSubmitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SubmitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "submit <path> [trigger...]",
		Short: "Store serialized triggers for the host runner",
		Long: `Serialize the named triggers, or every trigger when none is named, and store
them as pending in the host database. A trigger identical to one that is
still pending or running is not stored twice.

Example:
  rowclaim submit --db ./host.db ./triggers
  rowclaim submit --db ./host.db ./triggers claim-orders`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmit(opts, args[0], args[1:], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to host SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runSubmit(opts *SubmitOptions, path string, names []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	logger := opts.logger()

	doc, err := loadDefinitions(formatter, path)
	if err != nil {
		return err
	}
	defs, err := selectTriggers(formatter, doc, names)
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

	out, err := submitTriggers(cmd.Context(), formatter, st, connector, defs, logger)
	if err != nil {
		return err
	}

	return formatter.Result(out, func(w io.Writer) {
		for _, s := range out {
			note := "submitted"
			if !s.Inserted {
				note = "already pending"
			}
			fmt.Fprintf(w, "%s %s (%s)\n", s.ID, s.Name, note)
		}
	})
}

// submitTriggers serializes each definition into the store.
func submitTriggers(ctx context.Context, f *OutputFormatter, st *host.Store, connector datasource.Connector, defs []config.TriggerSpec, logger *slog.Logger) ([]Submission, error) {
	out := make([]Submission, 0, len(defs))
	for _, def := range defs {
		tr, err := buildTrigger(f, def, connector)
		if err != nil {
			return nil, err
		}
		typeID, params := tr.Serialize()
		stored, inserted, err := st.Submit(ctx, typeID, params)
		if err != nil {
			return nil, f.Fail(ExitCommandError, ErrCodeDatabase, fmt.Sprintf("submit %q", def.Name), err)
		}
		logger.Info("trigger submitted", "trigger", def.Name, "id", stored.ID, "inserted", inserted)
		out = append(out, Submission{Name: def.Name, ID: stored.ID, Hash: stored.Hash, Inserted: inserted})
	}
	return out, nil
}

func openStore(f *OutputFormatter, path string, logger *slog.Logger) (*host.Store, error) {
	logger.Debug("opening database", "path", path)
	st, err := host.Open(path)
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeDatabase, "failed to open database", err)
	}
	return st, nil
}

func closeStore(st *host.Store, logger *slog.Logger) {
	if err := st.Close(); err != nil {
		logger.Error("error closing database", "error", err)
	}
}
