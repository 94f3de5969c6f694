package logger

import (
	"go.uber.org/zap/zapcore"
)

// Redactor rewrites a log message. Implementations must return the input
// unchanged when there is nothing to redact.
type Redactor interface {
	Redact(text string) string
}

// redactingCore passes entries through a Redactor before handing them to
// the wrapped core. Entries and field slices are copied only when the
// redactor changed something; the caller's values are never mutated.
type redactingCore struct {
	zapcore.Core
	redactor Redactor
	fields   bool
}

// NewRedactingCore wraps core so that every entry message, and with fields
// set every string field and error message, is redacted before encoding.
func NewRedactingCore(core zapcore.Core, r Redactor, fields bool) zapcore.Core {
	return &redactingCore{Core: core, redactor: r, fields: fields}
}

// With redacts context fields once, when they are attached
func (c *redactingCore) With(fields []zapcore.Field) zapcore.Core {
	return &redactingCore{
		Core:     c.Core.With(c.redactFields(fields)),
		redactor: c.redactor,
		fields:   c.fields,
	}
}

// Check registers this core, not the wrapped one, so Write sees the entry
func (c *redactingCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *redactingCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	// ent is a copy; only its message may change
	if msg := c.redactor.Redact(ent.Message); msg != ent.Message {
		ent.Message = msg
	}
	return c.Core.Write(ent, c.redactFields(fields))
}

// redactFields returns fields itself when nothing changed
func (c *redactingCore) redactFields(fields []zapcore.Field) []zapcore.Field {
	if !c.fields {
		return fields
	}

	var out []zapcore.Field
	for i, f := range fields {
		redacted, changed := c.redactField(f)
		if !changed {
			continue
		}
		if out == nil {
			out = make([]zapcore.Field, len(fields))
			copy(out, fields)
		}
		out[i] = redacted
	}
	if out == nil {
		return fields
	}
	return out
}

func (c *redactingCore) redactField(f zapcore.Field) (zapcore.Field, bool) {
	switch f.Type {
	case zapcore.StringType:
		if s := c.redactor.Redact(f.String); s != f.String {
			f.String = s
			return f, true
		}
	case zapcore.ErrorType:
		err, ok := f.Interface.(error)
		if !ok || err == nil {
			return f, false
		}
		msg := err.Error()
		if s := c.redactor.Redact(msg); s != msg {
			return zapcore.Field{Key: f.Key, Type: zapcore.StringType, String: s}, true
		}
	}
	return f, false
}
