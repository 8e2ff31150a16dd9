package config

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/rowclaim/internal/datasource"
)

// loadCUEDir builds the CUE package in dir, as the cue tool would.
func loadCUEDir(dir string, fileCount int) (*Document, []error) {
	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}

	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}
	return decodeCUE(value, fileCount)
}

// loadCUEFile compiles a single standalone CUE file.
func loadCUEFile(path string) (*Document, []error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("reading %s: %v", path, err)}}
	}

	value := cuecontext.New().CompileBytes(data, cue.Filename(path))
	if err := value.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}
	return decodeCUE(value, 1)
}

func decodeCUE(value cue.Value, fileCount int) (*Document, []error) {
	doc := newDocument()
	doc.FileCount = fileCount
	var errs []error

	if conns := value.LookupPath(cue.ParsePath("connection")); conns.Exists() {
		iter, err := conns.Fields()
		if err != nil {
			errs = append(errs, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating connections: %v", err), Pos: conns.Pos()})
		} else {
			for iter.Next() {
				f := cueFields{v: iter.Value()}
				conn := datasource.Connection{
					Driver: f.str("driver", true),
					DSN:    f.str("dsn", true),
				}
				if len(f.errs) > 0 {
					errs = append(errs, f.errs...)
					continue
				}
				doc.Connections[iter.Label()] = conn
			}
		}
	}

	if triggers := value.LookupPath(cue.ParsePath("trigger")); triggers.Exists() {
		iter, err := triggers.Fields()
		if err != nil {
			errs = append(errs, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating triggers: %v", err), Pos: triggers.Pos()})
		} else {
			for iter.Next() {
				v := iter.Value()
				f := cueFields{v: v}
				t := TriggerSpec{
					Name:            iter.Label(),
					Connection:      f.str("connection", true),
					Select:          f.str("select", true),
					IDColumn:        f.str("id_column", true),
					Update:          f.str("update", true),
					IntervalSeconds: f.number("interval_seconds"),
					BindValues:      f.list("bind_values"),
				}
				if pos := v.Pos(); pos.IsValid() {
					t.Pos = fmt.Sprintf("%s:%d:%d", pos.Filename(), pos.Line(), pos.Column())
				}
				if len(f.errs) > 0 {
					errs = append(errs, f.errs...)
					continue
				}
				doc.Triggers = append(doc.Triggers, t)
			}
		}
	}

	return doc, errs
}

// cueFields extracts typed fields from one struct value, collecting
// positioned errors.
type cueFields struct {
	v    cue.Value
	errs []error
}

func (f *cueFields) fail(code string, at cue.Value, format string, args ...any) {
	pos := at.Pos()
	if !pos.IsValid() {
		pos = f.v.Pos()
	}
	f.errs = append(f.errs, &LoadError{Code: code, Message: fmt.Sprintf(format, args...), Pos: pos})
}

func (f *cueFields) str(name string, required bool) string {
	fv := f.v.LookupPath(cue.ParsePath(name))
	if !fv.Exists() {
		if required {
			f.fail(ErrCodeMissingField, f.v, "missing required field %q", name)
		}
		return ""
	}
	s, err := fv.String()
	if err != nil {
		f.fail(ErrCodeFieldType, fv, "%s must be a string: %v", name, err)
		return ""
	}
	return s
}

func (f *cueFields) number(name string) float64 {
	fv := f.v.LookupPath(cue.ParsePath(name))
	if !fv.Exists() {
		f.fail(ErrCodeMissingField, f.v, "missing required field %q", name)
		return 0
	}
	switch fv.Kind() {
	case cue.IntKind:
		n, err := fv.Int64()
		if err != nil {
			f.fail(ErrCodeFieldType, fv, "%s: %v", name, err)
		}
		return float64(n)
	case cue.FloatKind:
		n, err := fv.Float64()
		if err != nil {
			f.fail(ErrCodeFieldType, fv, "%s: %v", name, err)
		}
		return n
	default:
		f.fail(ErrCodeFieldType, fv, "%s must be a number, got %v", name, fv.IncompleteKind())
		return 0
	}
}

func (f *cueFields) list(name string) []any {
	fv := f.v.LookupPath(cue.ParsePath(name))
	if !fv.Exists() {
		return nil
	}
	iter, err := fv.List()
	if err != nil {
		f.fail(ErrCodeFieldType, fv, "%s must be a list: %v", name, err)
		return nil
	}

	var out []any
	for i := 0; iter.Next(); i++ {
		ev := iter.Value()
		switch ev.Kind() {
		case cue.NullKind:
			out = append(out, nil)
		case cue.StringKind:
			s, _ := ev.String()
			out = append(out, s)
		case cue.BoolKind:
			b, _ := ev.Bool()
			out = append(out, b)
		case cue.IntKind:
			n, _ := ev.Int64()
			out = append(out, n)
		case cue.FloatKind:
			n, _ := ev.Float64()
			out = append(out, n)
		default:
			f.fail(ErrCodeFieldType, ev, "%s[%d] must be a scalar, got %v", name, i, ev.IncompleteKind())
		}
	}
	return out
}
