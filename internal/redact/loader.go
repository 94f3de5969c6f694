package redact

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// RulesKey is the top-level key holding the rule array
const RulesKey = "rules"

// SupportedVersion is the only document version accepted when one is declared
const SupportedVersion = 1

// LoadFile reads and compiles a rules file. Files ending in .yaml or .yml
// are parsed as YAML, everything else as JSON.
func LoadFile(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Kind: KindRead, Source: path, Index: -1, Msg: "failed to read rules file", Err: err}
	}
	if IsYAML(path) {
		return ParseYAML(data, path)
	}
	return ParseJSON(data, path)
}

// IsYAML reports whether path names a YAML rules file
func IsYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// LoadReader reads a JSON rules document from r
func LoadReader(r io.Reader, source string) (*RuleSet, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &ConfigError{Kind: KindRead, Source: source, Index: -1, Msg: "failed to read rules", Err: err}
	}
	return ParseJSON(data, source)
}

// ParseJSON compiles a JSON rules document
func ParseJSON(data []byte, source string) (*RuleSet, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		cerr := &ConfigError{Kind: KindParse, Source: source, Index: -1, Msg: "malformed JSON", Err: err}
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			cerr.Line, cerr.Column = position(data, syntaxErr.Offset)
		}
		return nil, cerr
	}
	return build(doc, data, source)
}

// ParseYAML compiles a YAML rules document with the same schema as JSON
func ParseYAML(data []byte, source string) (*RuleSet, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ConfigError{Kind: KindParse, Source: source, Index: -1, Msg: "malformed YAML", Err: err}
	}
	return build(doc, data, source)
}

// position converts a byte offset into a 1-based line and column
func position(data []byte, offset int64) (int, int) {
	if offset > int64(len(data)) {
		offset = int64(len(data))
	}
	if offset < 0 {
		offset = 0
	}
	prefix := data[:offset]
	line := bytes.Count(prefix, []byte{'\n'}) + 1
	col := int(offset) - bytes.LastIndexByte(prefix, '\n')
	return line, col
}

// build validates a decoded document and compiles its rules
func build(doc any, raw []byte, source string) (*RuleSet, error) {
	top, ok := doc.(map[string]any)
	if !ok {
		return nil, schemaError(source, -1, "", "document must be an object")
	}

	version := 0
	if v, present := top["version"]; present {
		n, ok := asInt(v)
		if !ok || n != SupportedVersion {
			return nil, schemaError(source, -1, "version",
				fmt.Sprintf("unsupported version %v, expected %d", v, SupportedVersion))
		}
		version = n
	}

	rawRules, present := top[RulesKey]
	if !present || rawRules == nil {
		return nil, schemaError(source, -1, RulesKey, "missing rules array")
	}
	list, ok := rawRules.([]any)
	if !ok {
		return nil, schemaError(source, -1, RulesKey, "rules must be an array")
	}

	specs := make([]RuleSpec, 0, len(list))
	for i, item := range list {
		spec, err := ruleSpec(item, i, source)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}

	return compile(source, version, specs, raw)
}

// ruleSpec checks the fields of one rule object
func ruleSpec(item any, index int, source string) (RuleSpec, error) {
	obj, ok := item.(map[string]any)
	if !ok {
		return RuleSpec{}, schemaError(source, index, "", "rule must be an object")
	}

	var spec RuleSpec
	var err error
	if spec.Search, err = requiredString(obj, "search", index, source); err != nil {
		return RuleSpec{}, err
	}
	if spec.Replace, err = requiredString(obj, "replace", index, source); err != nil {
		return RuleSpec{}, err
	}
	if spec.Description, err = optionalString(obj, "description", index, source); err != nil {
		return RuleSpec{}, err
	}
	if spec.Trigger, err = optionalString(obj, "trigger", index, source); err != nil {
		return RuleSpec{}, err
	}

	if v, present := obj["caseSensitive"]; present && v != nil {
		b, ok := v.(bool)
		if !ok {
			return RuleSpec{}, schemaError(source, index, "caseSensitive", "must be a boolean")
		}
		spec.CaseSensitive = &b
	}
	return spec, nil
}

func requiredString(obj map[string]any, key string, index int, source string) (string, error) {
	v, present := obj[key]
	if !present || v == nil {
		return "", schemaError(source, index, key, "required field is missing")
	}
	s, ok := v.(string)
	if !ok {
		return "", schemaError(source, index, key, "must be a string")
	}
	return s, nil
}

func optionalString(obj map[string]any, key string, index int, source string) (string, error) {
	v, present := obj[key]
	if !present || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", schemaError(source, index, key, "must be a string")
	}
	return s, nil
}

// asInt accepts JSON numbers (float64) and YAML integers
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	}
	return 0, false
}
