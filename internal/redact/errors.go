package redact

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a configuration failure
type ErrorKind string

const (
	// KindRead means the rules source could not be read
	KindRead ErrorKind = "read"
	// KindParse means the document is not well-formed
	KindParse ErrorKind = "parse"
	// KindSchema means a required field is missing or has the wrong type
	KindSchema ErrorKind = "schema"
	// KindPattern means a search pattern or replacement template does not compile
	KindPattern ErrorKind = "pattern"
)

// Sentinel errors usable with errors.Is
var (
	ErrRead    = errors.New("rules read error")
	ErrParse   = errors.New("rules parse error")
	ErrSchema  = errors.New("rules schema error")
	ErrPattern = errors.New("rules pattern error")

	// ErrUnconfigured is returned when redacting without a bound rule set
	ErrUnconfigured = errors.New("redactor has no rule set")
)

// ConfigError describes why a rule set could not be loaded.
// Index is the zero-based rule position, or -1 for document level errors.
type ConfigError struct {
	Kind   ErrorKind
	Source string
	Index  int
	Field  string
	Line   int
	Column int
	Msg    string
	Err    error
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	b.WriteString(" error in ")
	if e.Source != "" {
		b.WriteString(e.Source)
	} else {
		b.WriteString("<rules>")
	}
	if e.Line > 0 {
		fmt.Fprintf(&b, " at line %d, column %d", e.Line, e.Column)
	}
	if e.Index >= 0 {
		fmt.Fprintf(&b, ": rule %d", e.Index)
		if e.Field != "" {
			fmt.Fprintf(&b, " field %q", e.Field)
		}
	} else if e.Field != "" {
		fmt.Fprintf(&b, ": field %q", e.Field)
	}
	b.WriteString(": ")
	b.WriteString(e.Msg)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel error for the error's kind
func (e *ConfigError) Is(target error) bool {
	switch target {
	case ErrRead:
		return e.Kind == KindRead
	case ErrParse:
		return e.Kind == KindParse
	case ErrSchema:
		return e.Kind == KindSchema
	case ErrPattern:
		return e.Kind == KindPattern
	}
	return false
}

func schemaError(source string, index int, field, msg string) *ConfigError {
	return &ConfigError{Kind: KindSchema, Source: source, Index: index, Field: field, Msg: msg}
}

func patternError(source string, index int, field, msg string, err error) *ConfigError {
	return &ConfigError{Kind: KindPattern, Source: source, Index: index, Field: field, Msg: msg, Err: err}
}
