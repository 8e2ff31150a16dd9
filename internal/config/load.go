package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Load reads trigger definitions from a .cue, .yaml or .yml file, or from
// every such file directly inside a directory. CUE files in a directory are
// built together as one package; YAML files are read one by one. Names must
// be unique across all files.
//
// Like the cue tool, Load collects every problem it can find rather than
// stopping at the first. The document is returned alongside any errors so
// callers can report partial results.
func Load(path string) (*Document, []error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("path not found: %s", path)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing %s: %v", path, err)}}
	}

	var (
		doc  *Document
		errs []error
	)
	if info.IsDir() {
		doc, errs = loadDir(path)
	} else {
		doc, errs = loadFile(path)
	}
	if doc == nil {
		return nil, errs
	}

	if len(doc.Triggers) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeNoTriggers, Message: "no triggers defined"})
	}
	return doc, errs
}

func loadFile(path string) (*Document, []error) {
	switch filepath.Ext(path) {
	case ".cue":
		return loadCUEFile(path)
	case ".yaml", ".yml":
		return loadYAMLFile(path)
	default:
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("unsupported file type: %s", path)}}
	}
}

func loadDir(dir string) (*Document, []error) {
	cueFiles, yamlFiles, err := FindFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(cueFiles) == 0 && len(yamlFiles) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no .cue or .yaml files found in %s", dir)}}
	}

	doc := newDocument()
	var errs []error

	if len(cueFiles) > 0 {
		part, partErrs := loadCUEDir(dir, len(cueFiles))
		errs = append(errs, partErrs...)
		if part != nil {
			errs = append(errs, doc.merge(part)...)
		}
	}
	for _, f := range yamlFiles {
		part, partErrs := loadYAMLFile(f)
		errs = append(errs, partErrs...)
		if part != nil {
			errs = append(errs, doc.merge(part)...)
		}
	}
	return doc, errs
}

// FindFiles returns the .cue and .yaml/.yml files directly inside dir,
// sorted by name.
func FindFiles(dir string) (cueFiles, yamlFiles []string, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		p := filepath.Join(dir, e.Name())
		switch filepath.Ext(e.Name()) {
		case ".cue":
			cueFiles = append(cueFiles, p)
		case ".yaml", ".yml":
			yamlFiles = append(yamlFiles, p)
		}
	}
	sort.Strings(cueFiles)
	sort.Strings(yamlFiles)
	return cueFiles, yamlFiles, nil
}
