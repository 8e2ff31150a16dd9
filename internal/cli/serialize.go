package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/rowclaim/internal/canon"
)

// SerializedTrigger is the portable form of one trigger.
type SerializedTrigger struct {
	Name   string         `json:"name"`
	TypeID string         `json:"type_id"`
	Params map[string]any `json:"params"`
	Hash   string         `json:"hash"`
}

// NewSerializeCommand creates the serialize command.
func NewSerializeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serialize <path> [trigger...]",
		Short: "Print serialized triggers",
		Long: `Print the type identifier, canonical parameters and content hash of each
named trigger, or of every trigger when none is named. A host restores a
trigger from exactly this form.

Example:
  rowclaim serialize ./triggers claim-orders
  rowclaim serialize ./triggers --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSerialize(rootOpts, args[0], args[1:], cmd)
		},
	}

	return cmd
}

func runSerialize(opts *RootOptions, path string, names []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	doc, err := loadDefinitions(formatter, path)
	if err != nil {
		return err
	}
	defs, err := selectTriggers(formatter, doc, names)
	if err != nil {
		return err
	}

	connector := newConnector(doc, opts.logger())
	defer closeConnector(connector, opts.logger())

	out := make([]SerializedTrigger, 0, len(defs))
	for _, def := range defs {
		tr, err := buildTrigger(formatter, def, connector)
		if err != nil {
			return err
		}
		typeID, params := tr.Serialize()
		hash, err := tr.Hash()
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeInvalidTrigger, fmt.Sprintf("hash trigger %q", def.Name), err)
		}
		out = append(out, SerializedTrigger{Name: def.Name, TypeID: typeID, Params: params, Hash: hash})
	}

	return formatter.Result(out, func(w io.Writer) {
		for _, s := range out {
			params, _ := canon.Marshal(s.Params)
			fmt.Fprintf(w, "%s\n  type_id: %s\n  hash:    %s\n  params:  %s\n", s.Name, s.TypeID, s.Hash, params)
		}
	})
}
