package config

import (
	"fmt"
	"sort"

	"github.com/roach88/rowclaim/internal/datasource"
	"github.com/roach88/rowclaim/internal/trigger"
)

// Document is the merged content of one or more trigger definition files.
type Document struct {
	Connections map[string]datasource.Connection
	Triggers    []TriggerSpec
	FileCount   int
}

// TriggerSpec is a named trigger definition as written in a file.
type TriggerSpec struct {
	Name            string  `json:"-" yaml:"-"`
	Connection      string  `json:"connection" yaml:"connection"`
	Select          string  `json:"select" yaml:"select"`
	IDColumn        string  `json:"id_column" yaml:"id_column"`
	Update          string  `json:"update" yaml:"update"`
	IntervalSeconds float64 `json:"interval_seconds" yaml:"interval_seconds"`
	BindValues      []any   `json:"bind_values,omitempty" yaml:"bind_values,omitempty"`

	// Pos is "file:line:col" of the definition, for diagnostics.
	Pos string `json:"-" yaml:"-"`
}

// PollSpec converts the definition into a trigger spec. It fails only when
// the interval cannot be represented; statements are checked by Validate.
func (t TriggerSpec) PollSpec() (trigger.PollSpec, error) {
	interval, err := trigger.IntervalFromSeconds(t.IntervalSeconds)
	if err != nil {
		return trigger.PollSpec{}, err
	}
	return trigger.PollSpec{
		ConnectionRef:   t.Connection,
		SelectQuery:     t.Select,
		IDColumn:        t.IDColumn,
		UpdateStatement: t.Update,
		PollInterval:    interval,
		BindValues:      t.BindValues,
	}, nil
}

// Trigger returns the named trigger definition.
func (d *Document) Trigger(name string) (TriggerSpec, bool) {
	for _, t := range d.Triggers {
		if t.Name == name {
			return t, true
		}
	}
	return TriggerSpec{}, false
}

// Names returns trigger names in definition order.
func (d *Document) Names() []string {
	out := make([]string, len(d.Triggers))
	for i, t := range d.Triggers {
		out[i] = t.Name
	}
	return out
}

// Resolver serves the document's connections, falling back to
// ROWCLAIM_CONN_<REF> environment variables for references it does not
// define.
func (d *Document) Resolver(lookup func(string) (string, bool)) datasource.Resolver {
	return datasource.ChainResolver{
		datasource.StaticResolver(d.Connections),
		datasource.EnvResolver{Lookup: lookup},
	}
}

func (d *Document) merge(other *Document) []error {
	var errs []error
	names := make([]string, 0, len(other.Connections))
	for name := range other.Connections {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, dup := d.Connections[name]; dup {
			errs = append(errs, &LoadError{Code: ErrCodeDuplicate, Message: fmt.Sprintf("connection %q defined more than once", name)})
			continue
		}
		d.Connections[name] = other.Connections[name]
	}
	for _, t := range other.Triggers {
		if _, dup := d.Trigger(t.Name); dup {
			errs = append(errs, &LoadError{Code: ErrCodeDuplicate, Message: fmt.Sprintf("trigger %q defined more than once", t.Name), Where: t.Pos})
			continue
		}
		d.Triggers = append(d.Triggers, t)
	}
	d.FileCount += other.FileCount
	return errs
}

func newDocument() *Document {
	return &Document{Connections: make(map[string]datasource.Connection)}
}
