package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/rowclaim/internal/config"
	"github.com/roach88/rowclaim/internal/datasource"
	"github.com/roach88/rowclaim/internal/trigger"
)

// loadDefinitions loads trigger definitions and turns any load problem into
// a command error.
func loadDefinitions(f *OutputFormatter, path string) (*config.Document, error) {
	doc, errs := config.Load(path)
	if len(errs) == 0 {
		f.VerboseLog("Loaded %d trigger(s) from %d file(s)", len(doc.Triggers), doc.FileCount)
		return doc, nil
	}

	code := config.ErrCodeGeneric
	var loadErr *config.LoadError
	if errors.As(errs[0], &loadErr) {
		code = loadErr.Code
	}
	return nil, f.Fail(ExitCommandError, code, "failed to load definitions", errors.Join(errs...))
}

// selectTriggers returns the named definitions, or all of them when names
// is empty.
func selectTriggers(f *OutputFormatter, doc *config.Document, names []string) ([]config.TriggerSpec, error) {
	if len(names) == 0 {
		return doc.Triggers, nil
	}
	out := make([]config.TriggerSpec, 0, len(names))
	for _, name := range names {
		t, ok := doc.Trigger(name)
		if !ok {
			return nil, f.Fail(ExitCommandError, ErrCodeUnknownTrigger,
				fmt.Sprintf("unknown trigger %q (defined: %v)", name, doc.Names()), nil)
		}
		out = append(out, t)
	}
	return out, nil
}

// newConnector opens connections from the document, falling back to the
// environment.
func newConnector(doc *config.Document, logger *slog.Logger) *datasource.SQLConnector {
	return datasource.NewSQLConnector(doc.Resolver(nil), datasource.WithLogger(logger))
}

// buildTrigger validates a definition into a fresh trigger.
func buildTrigger(f *OutputFormatter, def config.TriggerSpec, connector datasource.Connector, opts ...trigger.Option) (*trigger.Trigger, error) {
	spec, err := def.PollSpec()
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeInvalidTrigger, fmt.Sprintf("trigger %q", def.Name), err)
	}
	tr, err := trigger.New(spec, connector, opts...)
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeInvalidTrigger, fmt.Sprintf("trigger %q", def.Name), err)
	}
	return tr, nil
}

// signalContext is cancelled on SIGINT or SIGTERM, or when the command's
// own context ends.
func signalContext(cmd *cobra.Command, logger *slog.Logger) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}

func closeConnector(c *datasource.SQLConnector, logger *slog.Logger) {
	if err := c.Close(); err != nil {
		logger.Error("error closing connections", "error", err)
	}
}
