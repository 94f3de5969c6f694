package redact

import (
	"sync/atomic"
)

// Engine redacts text with a bound RuleSet. The zero Engine is
// unconfigured: Redact panics and TryRedact returns ErrUnconfigured.
//
// The RuleSet is held behind an atomic pointer, so Redact needs no locks
// and a Swap concurrent with Redact calls never mixes two rule sets
// within one call.
type Engine struct {
	rules atomic.Pointer[RuleSet]
}

// Result describes a single redaction
type Result struct {
	Text    string `json:"text"`
	Changed bool   `json:"changed"`
	// Rules holds the positions of the rules that changed the text
	Rules []int `json:"rules,omitempty"`
}

// NewEngine binds rs to a new engine
func NewEngine(rs *RuleSet) (*Engine, error) {
	if rs == nil {
		return nil, ErrUnconfigured
	}
	e := &Engine{}
	e.rules.Store(rs)
	return e, nil
}

// NewEngineFromFile loads a rules file and binds it to a new engine
func NewEngineFromFile(path string) (*Engine, error) {
	rs, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return NewEngine(rs)
}

// Redact returns text with every rule applied in order. It returns text
// unchanged when no rule matched.
func (e *Engine) Redact(text string) string {
	rs := e.rules.Load()
	if rs == nil {
		panic(ErrUnconfigured)
	}
	out, _ := rs.redact(text, nil)
	return out
}

// TryRedact is Redact for callers that may hold an unconfigured engine
func (e *Engine) TryRedact(text string) (string, error) {
	rs := e.rules.Load()
	if rs == nil {
		return "", ErrUnconfigured
	}
	out, _ := rs.redact(text, nil)
	return out, nil
}

// RedactDetailed is Redact that also reports which rules fired
func (e *Engine) RedactDetailed(text string) Result {
	rs := e.rules.Load()
	if rs == nil {
		panic(ErrUnconfigured)
	}
	var hits []int
	out, changed := rs.redact(text, func(i int) { hits = append(hits, i) })
	return Result{Text: out, Changed: changed, Rules: hits}
}

// Configured reports whether a rule set is bound
func (e *Engine) Configured() bool {
	return e.rules.Load() != nil
}

// RuleSet returns the currently bound rule set, or nil
func (e *Engine) RuleSet() *RuleSet {
	return e.rules.Load()
}

// Swap atomically replaces the bound rule set and returns the previous one.
// A nil rs is rejected; an engine never goes back to unconfigured.
func (e *Engine) Swap(rs *RuleSet) (*RuleSet, error) {
	if rs == nil {
		return nil, ErrUnconfigured
	}
	return e.rules.Swap(rs), nil
}

// Reload loads path and swaps it in. On error the current rule set stays bound.
func (e *Engine) Reload(path string) (*RuleSet, error) {
	rs, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	if _, err := e.Swap(rs); err != nil {
		return nil, err
	}
	return rs, nil
}
