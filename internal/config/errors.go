package config

import (
	"fmt"

	"cuelang.org/go/cue/token"
)

// Error codes shared by every loader.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No definition files found
	ErrCodeLoadFailed  = "E004" // CUE or YAML load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed

	ErrCodeMissingField = "E101" // Required field absent
	ErrCodeFieldType    = "E102" // Field has the wrong type
	ErrCodeDuplicate    = "E103" // Name defined twice
	ErrCodeNoTriggers   = "E104" // Nothing to run
)

// LoadError is a definition-file problem with a source position when one is
// known.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
	Where   string    // file:line:col for YAML sources
}

func (e *LoadError) Error() string {
	switch {
	case e.Pos.IsValid():
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	case e.Where != "":
		return fmt.Sprintf("%s: %s: %s", e.Where, e.Code, e.Message)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}
