package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/rowclaim/internal/config"
	"github.com/roach88/rowclaim/internal/trigger"
)

// ValidationIssue is one problem found in the definitions.
type ValidationIssue struct {
	Code    string `json:"code"`
	Trigger string `json:"trigger,omitempty"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Where   string `json:"where,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool              `json:"valid"`
	Triggers []string          `json:"triggers"`
	Errors   []ValidationIssue `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <path>",
		Short: "Validate trigger definitions",
		Long: `Load trigger definitions from a .cue or .yaml file, or a directory of them,
and check every trigger without connecting to a data source: the select must be
a SELECT without placeholders, the update an UPDATE with exactly one, the id
column and connection must be named and the interval must not be negative.

Exit codes:
  0 - All triggers valid
  1 - One or more triggers invalid
  2 - Definitions could not be loaded`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	doc, loadErrors := config.Load(path)
	if doc == nil {
		var loadErr *config.LoadError
		if errors.As(loadErrors[0], &loadErr) {
			return formatter.Fail(ExitCommandError, loadErr.Code, loadErr.Message, nil)
		}
		return formatter.Fail(ExitCommandError, config.ErrCodeGeneric, loadErrors[0].Error(), nil)
	}

	formatter.VerboseLog("Found %d definition file(s) in %s", doc.FileCount, path)

	var issues []ValidationIssue
	for _, err := range loadErrors {
		issues = append(issues, loadIssue(err))
	}
	for _, def := range doc.Triggers {
		formatter.VerboseLog("Validating trigger: %s", def.Name)
		issues = append(issues, triggerIssues(def)...)
	}

	result := ValidationResult{Valid: len(issues) == 0, Triggers: doc.Names(), Errors: issues}
	if result.Valid {
		return formatter.Result(result, func(w io.Writer) {
			fmt.Fprintf(w, "✓ %d trigger(s) valid\n", len(result.Triggers))
		})
	}
	return outputValidationErrors(formatter, result)
}

func loadIssue(err error) ValidationIssue {
	var loadErr *config.LoadError
	if !errors.As(err, &loadErr) {
		return ValidationIssue{Code: config.ErrCodeGeneric, Message: err.Error()}
	}
	issue := ValidationIssue{Code: loadErr.Code, Message: loadErr.Message, Where: loadErr.Where}
	if loadErr.Pos.IsValid() {
		issue.Where = fmt.Sprintf("%s:%d:%d", loadErr.Pos.Filename(), loadErr.Pos.Line(), loadErr.Pos.Column())
	}
	return issue
}

// triggerIssues splits a trigger's joined validation error into one issue
// per field.
func triggerIssues(def config.TriggerSpec) []ValidationIssue {
	spec, err := def.PollSpec()
	if err == nil {
		err = spec.Validate()
	}
	if err == nil {
		return nil
	}

	var errs []error
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs = joined.Unwrap()
	} else {
		errs = []error{err}
	}

	issues := make([]ValidationIssue, 0, len(errs))
	for _, e := range errs {
		issue := ValidationIssue{Code: ErrCodeInvalidTrigger, Trigger: def.Name, Message: e.Error(), Where: def.Pos}
		var cfgErr *trigger.ConfigurationError
		if errors.As(e, &cfgErr) {
			issue.Field = cfgErr.Field
			issue.Message = cfgErr.Message
		}
		issues = append(issues, issue)
	}
	return issues
}

// outputValidationErrors outputs every issue and returns a failure exit.
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	first := result.Errors[0]
	if formatter.Format == "json" {
		if err := formatter.encode(CLIResponse{
			Status: "error",
			Data:   result,
			Error:  &CLIError{Code: first.Code, Message: first.Message},
		}); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)))
	}

	w := formatter.Writer
	fmt.Fprintln(w, "✗ Validation failed")
	fmt.Fprintln(w)
	for _, issue := range result.Errors {
		if issue.Where != "" {
			fmt.Fprintln(w, issue.Where)
		}
		switch {
		case issue.Trigger != "" && issue.Field != "":
			fmt.Fprintf(w, "  %s: %s.%s: %s\n\n", issue.Code, issue.Trigger, issue.Field, issue.Message)
		case issue.Trigger != "":
			fmt.Fprintf(w, "  %s: %s: %s\n\n", issue.Code, issue.Trigger, issue.Message)
		default:
			fmt.Fprintf(w, "  %s: %s\n\n", issue.Code, issue.Message)
		}
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)))
}
