package engine

import (
	"fmt"
	"strings"

	"github.com/conneroisu/tagfill/internal/errors"
	"github.com/conneroisu/tagfill/internal/markup"
	"github.com/conneroisu/tagfill/internal/value"
)

// substitutePass replaces placeholders in text nodes and attribute values.
// Comments are left as written.
func (r *renderer) substitutePass(nodes []*markup.Node, ctx value.Context) ([]*markup.Node, error) {
	var out []*markup.Node
	for _, n := range nodes {
		if r.isResolved(n) {
			out = append(out, n)
			continue
		}
		switch n.Type {
		case markup.TextNode:
			text, err := r.fill(n.Data, ctx)
			if err != nil {
				return nil, err
			}
			out = append(out, markup.NewText(text))
		case markup.ElementNode:
			children, err := r.substitutePass(n.Children, ctx)
			if err != nil {
				return nil, err
			}
			c := rebuild(n, children)
			for i, a := range c.Attrs {
				val, err := r.fill(a.Val, ctx)
				if err != nil {
					return nil, err
				}
				c.Attrs[i].Val = val
			}
			out = append(out, c)
		default:
			out = append(out, n)
		}
	}
	return out, nil
}

// fill substitutes every {{ name }} in s. Substituted values are not scanned
// again, and an opening {{ without a closing }} is left as text.
func (r *renderer) fill(s string, ctx value.Context) (string, error) {
	if !strings.Contains(s, "{{") {
		return s, nil
	}

	var b strings.Builder
	for {
		start := strings.Index(s, "{{")
		if start < 0 {
			break
		}
		end := strings.Index(s[start+2:], "}}")
		if end < 0 {
			break
		}
		name := strings.TrimSpace(s[start+2 : start+2+end])
		v, err := r.placeholder(name, ctx)
		if err != nil {
			return "", err
		}
		b.WriteString(s[:start])
		b.WriteString(value.String(v))
		s = s[start+2+end+2:]
	}
	b.WriteString(s)
	return b.String(), nil
}

func (r *renderer) placeholder(name string, ctx value.Context) (any, error) {
	v, ok := ctx.Lookup(name)
	if ok && (r.engine.allowFalsy || value.Truthy(v)) {
		return v, nil
	}

	msg := fmt.Sprintf("cannot fill template: variable %q is not defined", name)
	if ok {
		msg = fmt.Sprintf("cannot fill template: variable %q has falsy value %q", name, value.String(v))
	}
	return nil, errors.NewReferenceError(errors.ErrCodeUndefinedVariable, msg).
		WithContext("variable", name)
}
