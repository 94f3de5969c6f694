package redact

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// segment is either literal text or a reference to a capture group.
// group is -1 for literals.
type segment struct {
	lit   string
	group int
}

// template is a compiled replacement string
type template struct {
	segments []segment
	literal  bool // no group references
	text     string
}

// compileTemplate parses a replacement string against the groups of re.
//
// Syntax follows the rules file format: $n refers to group n, with digits
// consumed greedily while the number is still a valid group; ${n} and
// ${name} are explicit references; a backslash escapes the next character.
func compileTemplate(repl string, re *regexp.Regexp) (template, error) {
	groups := re.NumSubexp()
	var segs []segment
	var lit strings.Builder

	flush := func() {
		if lit.Len() > 0 {
			segs = append(segs, segment{lit: lit.String(), group: -1})
			lit.Reset()
		}
	}

	for i := 0; i < len(repl); {
		c := repl[i]
		switch c {
		case '\\':
			i++
			if i == len(repl) {
				return template{}, errors.New("character to be escaped is missing")
			}
			lit.WriteByte(repl[i])
			i++
		case '$':
			i++
			if i == len(repl) {
				return template{}, errors.New("group reference is missing after '$'")
			}
			var ref int
			if repl[i] == '{' {
				end := strings.IndexByte(repl[i:], '}')
				if end < 0 {
					return template{}, errors.New("missing '}' in group reference")
				}
				name := repl[i+1 : i+end]
				i += end + 1
				n, err := resolveGroupName(name, re)
				if err != nil {
					return template{}, err
				}
				ref = n
			} else {
				if !isDigit(repl[i]) {
					return template{}, fmt.Errorf("illegal group reference '$%c'", repl[i])
				}
				ref = int(repl[i] - '0')
				i++
				for i < len(repl) && isDigit(repl[i]) {
					next := ref*10 + int(repl[i]-'0')
					if next > groups {
						break
					}
					ref = next
					i++
				}
			}
			if ref > groups {
				return template{}, fmt.Errorf("no group %d in pattern with %d groups", ref, groups)
			}
			flush()
			segs = append(segs, segment{group: ref})
		default:
			lit.WriteByte(c)
			i++
		}
	}
	flush()

	t := template{segments: segs, literal: true}
	for _, s := range segs {
		if s.group >= 0 {
			t.literal = false
			break
		}
	}
	if t.literal {
		for _, s := range segs {
			t.text += s.lit
		}
	}
	return t, nil
}

func resolveGroupName(name string, re *regexp.Regexp) (int, error) {
	if name == "" {
		return 0, errors.New("empty group name")
	}
	if isDigit(name[0]) {
		n, err := strconv.Atoi(name)
		if err != nil {
			return 0, fmt.Errorf("illegal group reference %q", name)
		}
		return n, nil
	}
	idx := re.SubexpIndex(name)
	if idx < 0 {
		return 0, fmt.Errorf("no group with name %q", name)
	}
	return idx, nil
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// expand appends the template to b, reading groups from match, which holds
// submatch index pairs into src. Unmatched groups expand to nothing.
func (t *template) expand(b *strings.Builder, src string, match []int) {
	if t.literal {
		b.WriteString(t.text)
		return
	}
	for _, s := range t.segments {
		if s.group < 0 {
			b.WriteString(s.lit)
			continue
		}
		start, end := match[2*s.group], match[2*s.group+1]
		if start >= 0 {
			b.WriteString(src[start:end])
		}
	}
}
