package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/rowclaim/internal/datasource"
)

// loadYAMLFile reads one YAML file with the same shape as the CUE form:
//
//	connection:
//	  warehouse: {driver: sqlite3, dsn: /var/lib/wh.db}
//	trigger:
//	  new_orders: {connection: warehouse, select: ..., ...}
func loadYAMLFile(path string) (*Document, []error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("reading %s: %v", path, err)}}
	}

	doc := newDocument()
	doc.FileCount = 1

	var root yaml.Node
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&root); err != nil {
		if errors.Is(err, io.EOF) {
			return doc, nil
		}
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("parsing %s: %v", path, err)}}
	}
	if len(root.Content) == 0 {
		return doc, nil
	}
	top := root.Content[0]
	if top.Kind != yaml.MappingNode {
		return nil, []error{&LoadError{Code: ErrCodeFieldType, Message: "top level must be a mapping", Where: where(path, top)}}
	}

	var errs []error
	for i := 0; i+1 < len(top.Content); i += 2 {
		key, val := top.Content[i], top.Content[i+1]
		switch key.Value {
		case "connection":
			errs = append(errs, eachEntry(path, key.Value, val, func(name *yaml.Node, body *yaml.Node) error {
				var conn datasource.Connection
				if err := body.Decode(&conn); err != nil {
					return &LoadError{Code: ErrCodeFieldType, Message: fmt.Sprintf("connection %q: %v", name.Value, err), Where: where(path, body)}
				}
				if conn.Driver == "" || conn.DSN == "" {
					return &LoadError{Code: ErrCodeMissingField, Message: fmt.Sprintf("connection %q requires driver and dsn", name.Value), Where: where(path, name)}
				}
				if _, dup := doc.Connections[name.Value]; dup {
					return &LoadError{Code: ErrCodeDuplicate, Message: fmt.Sprintf("connection %q defined more than once", name.Value), Where: where(path, name)}
				}
				doc.Connections[name.Value] = conn
				return nil
			})...)
		case "trigger":
			errs = append(errs, eachEntry(path, key.Value, val, func(name *yaml.Node, body *yaml.Node) error {
				t, err := decodeYAMLTrigger(path, name, body)
				if err != nil {
					return err
				}
				if _, dup := doc.Trigger(t.Name); dup {
					return &LoadError{Code: ErrCodeDuplicate, Message: fmt.Sprintf("trigger %q defined more than once", t.Name), Where: t.Pos}
				}
				doc.Triggers = append(doc.Triggers, t)
				return nil
			})...)
		default:
			errs = append(errs, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("unknown top-level key %q", key.Value), Where: where(path, key)})
		}
	}
	return doc, errs
}

func eachEntry(path, section string, m *yaml.Node, fn func(name, body *yaml.Node) error) []error {
	if m.Kind != yaml.MappingNode {
		return []error{&LoadError{Code: ErrCodeFieldType, Message: fmt.Sprintf("%s must be a mapping", section), Where: where(path, m)}}
	}
	var errs []error
	for i := 0; i+1 < len(m.Content); i += 2 {
		if err := fn(m.Content[i], m.Content[i+1]); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

type yamlTrigger struct {
	Connection      string   `yaml:"connection"`
	Select          string   `yaml:"select"`
	IDColumn        string   `yaml:"id_column"`
	Update          string   `yaml:"update"`
	IntervalSeconds *float64 `yaml:"interval_seconds"`
	BindValues      []any    `yaml:"bind_values"`
}

func decodeYAMLTrigger(path string, name, body *yaml.Node) (TriggerSpec, error) {
	var raw yamlTrigger
	if err := body.Decode(&raw); err != nil {
		return TriggerSpec{}, &LoadError{Code: ErrCodeFieldType, Message: fmt.Sprintf("trigger %q: %v", name.Value, err), Where: where(path, body)}
	}

	var missing []string
	for field, v := range map[string]string{
		"connection": raw.Connection,
		"select":     raw.Select,
		"id_column":  raw.IDColumn,
		"update":     raw.Update,
	} {
		if v == "" {
			missing = append(missing, field)
		}
	}
	if raw.IntervalSeconds == nil {
		missing = append(missing, "interval_seconds")
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return TriggerSpec{}, &LoadError{
			Code:    ErrCodeMissingField,
			Message: fmt.Sprintf("trigger %q missing required field(s) %v", name.Value, missing),
			Where:   where(path, name),
		}
	}

	return TriggerSpec{
		Name:            name.Value,
		Connection:      raw.Connection,
		Select:          raw.Select,
		IDColumn:        raw.IDColumn,
		Update:          raw.Update,
		IntervalSeconds: *raw.IntervalSeconds,
		BindValues:      raw.BindValues,
		Pos:             where(path, name),
	}, nil
}

func where(path string, n *yaml.Node) string {
	return fmt.Sprintf("%s:%d:%d", path, n.Line, n.Column)
}
