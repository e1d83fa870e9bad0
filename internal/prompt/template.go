// internal/prompt/template.go

// Package prompt parses prompt bodies with {name} placeholders and renders
// them. "{{" and "}}" stand for literal braces.
package prompt

import (
	"fmt"
	"strings"
)

type segment struct {
	literal     string
	placeholder string
}

// Compiled is a parsed body. It is immutable and safe for concurrent use.
type Compiled struct {
	segments  []segment
	variables []string
}

// SyntaxError reports a malformed body at a byte offset.
type SyntaxError struct {
	Offset int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("template syntax error at offset %d: %s", e.Offset, e.Msg)
}

// Compile parses body once. Variables are returned in order of first
// occurrence without duplicates.
func Compile(body string) (*Compiled, error) {
	c := &Compiled{}
	seen := make(map[string]bool)
	var lit strings.Builder

	flush := func() {
		if lit.Len() > 0 {
			c.segments = append(c.segments, segment{literal: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(body); i++ {
		ch := body[i]
		switch ch {
		case '{':
			if i+1 < len(body) && body[i+1] == '{' {
				lit.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(body[i+1:], '}')
			if end < 0 {
				return nil, &SyntaxError{Offset: i, Msg: "unterminated placeholder"}
			}
			name := body[i+1 : i+1+end]
			if !validName(name) {
				return nil, &SyntaxError{Offset: i, Msg: fmt.Sprintf("invalid placeholder name %q", name)}
			}
			flush()
			c.segments = append(c.segments, segment{placeholder: name})
			if !seen[name] {
				seen[name] = true
				c.variables = append(c.variables, name)
			}
			i += end + 1
		case '}':
			if i+1 < len(body) && body[i+1] == '}' {
				lit.WriteByte('}')
				i++
				continue
			}
			return nil, &SyntaxError{Offset: i, Msg: "unmatched '}'"}
		default:
			lit.WriteByte(ch)
		}
	}
	flush()

	return c, nil
}

// ExtractVariables returns the placeholder names of body in order of first
// occurrence.
func ExtractVariables(body string) ([]string, error) {
	c, err := Compile(body)
	if err != nil {
		return nil, err
	}
	return c.Variables(), nil
}

func (c *Compiled) Variables() []string {
	out := make([]string, len(c.variables))
	copy(out, c.variables)
	return out
}

// Execute substitutes each placeholder with values[name], falling back to
// defaults[name]. It returns the name of the first placeholder, in body
// order, that has neither.
func (c *Compiled) Execute(values, defaults map[string]string) (string, string, bool) {
	var out strings.Builder
	for _, seg := range c.segments {
		if seg.placeholder == "" {
			out.WriteString(seg.literal)
			continue
		}
		if v, ok := values[seg.placeholder]; ok {
			out.WriteString(v)
			continue
		}
		if v, ok := defaults[seg.placeholder]; ok {
			out.WriteString(v)
			continue
		}
		return "", seg.placeholder, false
	}
	return out.String(), "", true
}

func validName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		ch := name[i]
		switch {
		case ch == '_', ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z':
		case ch >= '0' && ch <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
