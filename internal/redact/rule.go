package redact

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// MaxPatternLength bounds the source length of a search pattern
const MaxPatternLength = 4096

// RuleSpec is the declarative form of a rule, as written in a rules file.
// A nil CaseSensitive means case-sensitive.
type RuleSpec struct {
	Description   string `json:"description,omitempty" yaml:"description,omitempty"`
	CaseSensitive *bool  `json:"caseSensitive,omitempty" yaml:"caseSensitive,omitempty"`
	Trigger       string `json:"trigger,omitempty" yaml:"trigger,omitempty"`
	Search        string `json:"search" yaml:"search"`
	Replace       string `json:"replace" yaml:"replace"`
}

// Document is the top-level shape of a rules file
type Document struct {
	Version int        `json:"version,omitempty" yaml:"version,omitempty"`
	Rules   []RuleSpec `json:"rules" yaml:"rules"`
}

// Rule is a compiled redaction directive. Rules are immutable.
type Rule struct {
	description   string
	trigger       string
	lowerTrigger  string
	search        string
	replace       string
	caseSensitive bool
	re            *regexp.Regexp
	tmpl          template
}

// Description returns the free-text description of the rule
func (r *Rule) Description() string { return r.description }

// Trigger returns the substring pre-check, or "" when the rule has none
func (r *Rule) Trigger() string { return r.trigger }

// Search returns the pattern source
func (r *Rule) Search() string { return r.search }

// Replace returns the replacement template source
func (r *Rule) Replace() string { return r.replace }

// CaseSensitive reports whether the pattern and trigger match case-sensitively
func (r *Rule) CaseSensitive() bool { return r.caseSensitive }

// Spec returns the declarative form of the rule
func (r *Rule) Spec() RuleSpec {
	spec := RuleSpec{
		Description: r.description,
		Trigger:     r.trigger,
		Search:      r.search,
		Replace:     r.replace,
	}
	if !r.caseSensitive {
		cs := false
		spec.CaseSensitive = &cs
	}
	return spec
}

// newRule compiles spec. index and source are only used for error reporting.
func newRule(spec RuleSpec, index int, source string) (*Rule, error) {
	caseSensitive := spec.CaseSensitive == nil || *spec.CaseSensitive

	if len(spec.Search) > MaxPatternLength {
		return nil, patternError(source, index, "search",
			fmt.Sprintf("pattern is %d bytes, limit is %d", len(spec.Search), MaxPatternLength), nil)
	}

	expr := spec.Search
	if !caseSensitive {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, patternError(source, index, "search", "invalid pattern", err)
	}

	tmpl, err := compileTemplate(spec.Replace, re)
	if err != nil {
		return nil, patternError(source, index, "replace", "invalid replacement", err)
	}

	r := &Rule{
		description:   spec.Description,
		trigger:       spec.Trigger,
		search:        spec.Search,
		replace:       spec.Replace,
		caseSensitive: caseSensitive,
		re:            re,
		tmpl:          tmpl,
	}
	if !caseSensitive {
		r.lowerTrigger = strings.ToLower(spec.Trigger)
	}
	return r, nil
}

// apply performs one find-and-replace-all pass over text.
// The returned string is text itself when nothing changed.
func (r *Rule) apply(text string) (string, bool) {
	var matches [][]int
	if r.tmpl.literal {
		matches = r.re.FindAllStringIndex(text, -1)
	} else {
		matches = r.re.FindAllStringSubmatchIndex(text, -1)
	}
	if len(matches) == 0 {
		return text, false
	}

	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, m := range matches {
		b.WriteString(text[last:m[0]])
		r.tmpl.expand(&b, text, m)
		last = m[1]
	}
	b.WriteString(text[last:])

	out := b.String()
	if out == text {
		return text, false
	}
	return out, true
}

// RuleSet is an ordered, immutable collection of rules plus provenance.
// It is safe for concurrent use.
type RuleSet struct {
	source   string
	version  int
	checksum string
	rules    []*Rule
}

// Compile builds a RuleSet from declarative rules, preserving their order.
// It fails on the first rule that does not compile.
func Compile(source string, specs []RuleSpec) (*RuleSet, error) {
	data, err := json.Marshal(Document{Rules: specs})
	if err != nil {
		return nil, fmt.Errorf("failed to encode rules: %w", err)
	}
	return compile(source, 0, specs, data)
}

func compile(source string, version int, specs []RuleSpec, raw []byte) (*RuleSet, error) {
	rules := make([]*Rule, 0, len(specs))
	for i, spec := range specs {
		rule, err := newRule(spec, i, source)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}

	sum := sha256.Sum256(raw)
	return &RuleSet{
		source:   source,
		version:  version,
		checksum: hex.EncodeToString(sum[:]),
		rules:    rules,
	}, nil
}

// Source identifies where the rule set was loaded from
func (rs *RuleSet) Source() string { return rs.source }

// Version returns the document version, 0 when the document declared none
func (rs *RuleSet) Version() int { return rs.version }

// Checksum returns the hex SHA-256 of the document the set was built from
func (rs *RuleSet) Checksum() string { return rs.checksum }

// Len returns the number of rules
func (rs *RuleSet) Len() int { return len(rs.rules) }

// Rule returns the rule at position i
func (rs *RuleSet) Rule(i int) *Rule { return rs.rules[i] }

// Rules returns the rules in application order
func (rs *RuleSet) Rules() []*Rule {
	out := make([]*Rule, len(rs.rules))
	copy(out, rs.rules)
	return out
}

// Document returns the declarative form of the rule set
func (rs *RuleSet) Document() Document {
	doc := Document{Version: rs.version, Rules: make([]RuleSpec, len(rs.rules))}
	for i, r := range rs.rules {
		doc.Rules[i] = r.Spec()
	}
	return doc
}

// Redact applies every rule in order. When no rule changes the text,
// the input string is returned as is.
func (rs *RuleSet) Redact(text string) string {
	out, _ := rs.redact(text, nil)
	return out
}

// redact runs the rules over text, calling hit with the index of every
// rule that changed it.
func (rs *RuleSet) redact(text string, hit func(int)) (string, bool) {
	changed := false
	// lower caches strings.ToLower(text) for case-insensitive triggers
	var lower string
	lowerValid := false

	for i, r := range rs.rules {
		if r.trigger != "" {
			if r.caseSensitive {
				if !strings.Contains(text, r.trigger) {
					continue
				}
			} else {
				if !lowerValid {
					lower = strings.ToLower(text)
					lowerValid = true
				}
				if !strings.Contains(lower, r.lowerTrigger) {
					continue
				}
			}
		}

		out, ok := r.apply(text)
		if !ok {
			continue
		}
		text = out
		changed = true
		lowerValid = false
		if hit != nil {
			hit(i)
		}
	}
	return text, changed
}
