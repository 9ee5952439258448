// Package engine renders template trees against a data context.
//
// A template is a markup tree that may contain four directive elements and
// {{ name }} placeholders:
//
//	<repeat for="item of items">...</repeat>
//	<if cond="{{ count }} > 3">...</if><else>...</else>
//	<insert template="footer"></insert>
//
// Rendering runs four passes over the content, each completing before the
// next starts: every repeat is expanded, then every if/else is resolved, then
// every insert, and finally placeholders in text and attribute values are
// substituted. Repeat items, taken branches and inserted templates are
// rendered by a recursive call with their own context, and their output is
// final: later passes of the enclosing render do not look into it.
//
// The input tree is never modified. The engine holds no state between calls
// and never logs; every failure is returned as a *errors.FillError of kind
// structural, reference or grammar and aborts the whole render.
package engine

import (
	"bytes"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/conneroisu/tagfill/internal/errors"
	"github.com/conneroisu/tagfill/internal/markup"
	"github.com/conneroisu/tagfill/internal/value"
)

// Directive tag names.
const (
	TagRepeat = "repeat"
	TagIf     = "if"
	TagElse   = "else"
	TagInsert = "insert"
)

// DefaultMaxDepth bounds nested renders when no WithMaxDepth option is given.
const DefaultMaxDepth = 64

// Registry resolves the template ids used by insert.
type Registry interface {
	Lookup(id string) (*markup.Node, bool)
}

// MapRegistry is a Registry backed by a map.
type MapRegistry map[string]*markup.Node

// Lookup implements Registry.
func (m MapRegistry) Lookup(id string) (*markup.Node, bool) {
	n, ok := m[id]
	return n, ok && n != nil
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxDepth sets how deeply renders may nest through repeat items,
// branches and inserts. Values below 1 are ignored.
func WithMaxDepth(depth int) Option {
	return func(e *Engine) {
		if depth > 0 {
			e.maxDepth = depth
		}
	}
}

// WithFalsyPlaceholders lets placeholders print defined falsy values such
// as 0, false and "". Without it those fail like undefined names.
func WithFalsyPlaceholders() Option {
	return func(e *Engine) {
		e.allowFalsy = true
	}
}

// Engine renders templates. It is immutable after New and safe for
// concurrent use.
type Engine struct {
	registry   Registry
	maxDepth   int
	allowFalsy bool
}

// New creates an engine that resolves inserts through reg. A nil reg makes
// every insert fail with a reference error.
func New(reg Registry, opts ...Option) *Engine {
	e := &Engine{
		registry: reg,
		maxDepth: DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// MaxDepth returns the configured nesting limit.
func (e *Engine) MaxDepth() int {
	return e.maxDepth
}

// Render renders the children of tmpl against data and returns them as a new
// fragment. tmpl must be an element or fragment and data a mapping with
// string keys.
func (e *Engine) Render(tmpl *markup.Node, data any) (*markup.Node, error) {
	return e.render(tmpl, data, nil)
}

// RenderTemplate looks id up in the registry and renders it against data.
func (e *Engine) RenderTemplate(id string, data any) (*markup.Node, error) {
	tmpl, ok := e.lookup(id)
	if !ok {
		return nil, errors.ErrTemplateNotFound(id)
	}
	out, err := e.render(tmpl, data, []string{id})
	if err != nil {
		return nil, withTemplate(err, id)
	}
	return out, nil
}

// RenderHTML renders template id and writes the result as HTML.
func (e *Engine) RenderHTML(w io.Writer, id string, data any) error {
	out, err := e.RenderTemplate(id, data)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := markup.Render(&buf, out); err != nil {
		return errors.NewIOError(errors.ErrCodeInternalError, "serializing "+id, err)
	}
	_, err = buf.WriteTo(w)
	return err
}

func (e *Engine) lookup(id string) (*markup.Node, bool) {
	if e.registry == nil {
		return nil, false
	}
	return e.registry.Lookup(id)
}

func (e *Engine) render(tmpl *markup.Node, data any, chain []string) (*markup.Node, error) {
	if !tmpl.IsStructural() {
		return nil, errors.NewStructuralError(
			errors.ErrCodeInvalidTemplate,
			"template must be an element or fragment node",
		)
	}
	ctx, ok := value.AsContext(data)
	if !ok {
		return nil, errors.NewStructuralError(
			errors.ErrCodeInvalidContext,
			fmt.Sprintf("data must be a mapping, got %T", data),
		)
	}

	r := &renderer{
		engine:   e,
		resolved: make(map[*markup.Node]struct{}),
		chain:    chain,
	}
	nodes, err := r.content(tmpl.Children, ctx, 0)
	if err != nil {
		return nil, err
	}
	return markup.NewFragment(nodes...), nil
}

// renderer carries the state of one top-level Render call.
type renderer struct {
	engine *Engine
	// resolved holds every node produced by a nested render.
	resolved map[*markup.Node]struct{}
	// chain is the stack of template ids currently being inserted.
	chain []string
}

func (r *renderer) content(nodes []*markup.Node, ctx value.Context, depth int) ([]*markup.Node, error) {
	if depth > r.engine.maxDepth {
		return nil, errors.NewStructuralError(
			errors.ErrCodeDepthExceeded,
			fmt.Sprintf("templates nest deeper than %d levels", r.engine.maxDepth),
		).WithContext("chain", slices.Clone(r.chain))
	}

	nodes, err := r.repeatPass(nodes, ctx, depth)
	if err != nil {
		return nil, err
	}
	nodes, err = r.conditionalPass(nodes, ctx, depth)
	if err != nil {
		return nil, err
	}
	nodes, err = r.insertPass(nodes, ctx, depth)
	if err != nil {
		return nil, err
	}
	return r.substitutePass(nodes, ctx)
}

// nested renders nodes one level deeper and marks the output as resolved.
func (r *renderer) nested(nodes []*markup.Node, ctx value.Context, depth int) ([]*markup.Node, error) {
	out, err := r.content(nodes, ctx, depth+1)
	if err != nil {
		return nil, err
	}
	for _, n := range out {
		n.Walk(func(c *markup.Node) bool {
			r.resolved[c] = struct{}{}
			return true
		})
	}
	return out, nil
}

func (r *renderer) isResolved(n *markup.Node) bool {
	_, ok := r.resolved[n]
	return ok
}

// rebuild copies element n around new children.
func rebuild(n *markup.Node, children []*markup.Node) *markup.Node {
	c := n.ShallowCopy()
	c.Children = children
	return c
}

func directiveError(err error, tag string) error {
	if fe, ok := err.(*errors.FillError); ok && fe.Directive == "" {
		fe.Directive = tag
	}
	return err
}

func withTemplate(err error, id string) error {
	if fe, ok := err.(*errors.FillError); ok {
		fe.WithTemplate(id)
	}
	return err
}

func missingAttribute(tag, attr string) *errors.FillError {
	return errors.NewStructuralError(
		errors.ErrCodeMissingAttribute,
		fmt.Sprintf("<%s> requires a non-empty %q attribute", tag, attr),
	).WithDirective(tag)
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
