package engine

import (
	"fmt"
	"slices"
	"strings"

	"github.com/conneroisu/tagfill/internal/errors"
	"github.com/conneroisu/tagfill/internal/expr"
	"github.com/conneroisu/tagfill/internal/markup"
	"github.com/conneroisu/tagfill/internal/value"
)

// ParseFor splits a repeat's for attribute, "item of items", into the item
// and iterable names.
func ParseFor(attr string) (item, iterable string, err error) {
	i := strings.Index(attr, " of ")
	if i >= 0 {
		item = strings.TrimSpace(attr[:i])
		iterable = strings.TrimSpace(attr[i+len(" of "):])
	}
	if i < 0 || isBlank(item) || isBlank(iterable) {
		return "", "", errors.NewStructuralError(
			errors.ErrCodeInvalidRepeat,
			fmt.Sprintf(`for=%q must have the form "item of iterable"`, attr),
		).WithDirective(TagRepeat)
	}
	return item, iterable, nil
}

// repeatPass expands every repeat outside of repeat bodies. Bodies are
// rendered once per element with the element as their whole context.
func (r *renderer) repeatPass(nodes []*markup.Node, ctx value.Context, depth int) ([]*markup.Node, error) {
	var out []*markup.Node
	for _, n := range nodes {
		switch {
		case r.isResolved(n):
			out = append(out, n)
		case n.Is(TagRepeat):
			expanded, err := r.repeat(n, ctx, depth)
			if err != nil {
				return nil, err
			}
			out = append(out, expanded...)
		case n.Type == markup.ElementNode:
			children, err := r.repeatPass(n.Children, ctx, depth)
			if err != nil {
				return nil, err
			}
			out = append(out, rebuild(n, children))
		default:
			out = append(out, n.Clone())
		}
	}
	return out, nil
}

func (r *renderer) repeat(n *markup.Node, ctx value.Context, depth int) ([]*markup.Node, error) {
	attr, ok := n.Attr("for")
	if !ok || attr == "" {
		return nil, missingAttribute(TagRepeat, "for")
	}
	_, name, err := ParseFor(attr)
	if err != nil {
		return nil, err
	}

	v, _ := ctx.Lookup(name)
	items, ok := value.Iterate(v)
	if !ok {
		return nil, errors.NewStructuralError(
			errors.ErrCodeNotIterable,
			fmt.Sprintf("iterable %q must be an array or set, got %s", name, describe(v)),
		).WithDirective(TagRepeat).WithContext("iterable", name)
	}

	var out []*markup.Node
	for i, item := range items {
		itemCtx, ok := value.AsContext(item)
		if !ok {
			return nil, errors.NewStructuralError(
				errors.ErrCodeInvalidContext,
				fmt.Sprintf("element %d of %q must be a mapping, got %s", i, name, describe(item)),
			).WithDirective(TagRepeat).WithContext("iterable", name)
		}
		rendered, err := r.nested(n.Children, itemCtx, depth)
		if err != nil {
			return nil, err
		}
		out = append(out, rendered...)
	}
	return out, nil
}

// conditionalPass resolves every if and its paired else. An else pairs only
// with an if that is its immediately preceding sibling.
func (r *renderer) conditionalPass(nodes []*markup.Node, ctx value.Context, depth int) ([]*markup.Node, error) {
	var out []*markup.Node
	for i := 0; i < len(nodes); i++ {
		n := nodes[i]
		switch {
		case r.isResolved(n):
			out = append(out, n)
		case n.Is(TagIf):
			var elseNode *markup.Node
			if next := i + 1; next < len(nodes) && !r.isResolved(nodes[next]) && nodes[next].Is(TagElse) {
				elseNode = nodes[next]
				i++
			}
			rendered, err := r.conditional(n, elseNode, ctx, depth)
			if err != nil {
				return nil, err
			}
			out = append(out, rendered...)
		case n.Is(TagElse):
			return nil, errors.NewStructuralError(
				errors.ErrCodeOrphanElse,
				"<else> must immediately follow an <if>",
			).WithDirective(TagElse)
		case n.Type == markup.ElementNode:
			children, err := r.conditionalPass(n.Children, ctx, depth)
			if err != nil {
				return nil, err
			}
			out = append(out, rebuild(n, children))
		default:
			out = append(out, n)
		}
	}
	return out, nil
}

func (r *renderer) conditional(ifNode, elseNode *markup.Node, ctx value.Context, depth int) ([]*markup.Node, error) {
	cond, ok := ifNode.Attr("cond")
	if !ok || cond == "" {
		return nil, missingAttribute(TagIf, "cond")
	}
	truth, err := expr.Evaluate(cond, ctx)
	if err != nil {
		return nil, directiveError(err, TagIf)
	}

	branch := ifNode
	if !truth {
		branch = elseNode
	}
	if branch == nil {
		return nil, nil
	}
	return r.nested(branch.Children, ctx, depth)
}

// insertPass replaces every insert with its template rendered against the
// current context.
func (r *renderer) insertPass(nodes []*markup.Node, ctx value.Context, depth int) ([]*markup.Node, error) {
	var out []*markup.Node
	for _, n := range nodes {
		switch {
		case r.isResolved(n):
			out = append(out, n)
		case n.Is(TagInsert):
			rendered, err := r.insert(n, ctx, depth)
			if err != nil {
				return nil, err
			}
			out = append(out, rendered...)
		case n.Type == markup.ElementNode:
			children, err := r.insertPass(n.Children, ctx, depth)
			if err != nil {
				return nil, err
			}
			out = append(out, rebuild(n, children))
		default:
			out = append(out, n)
		}
	}
	return out, nil
}

func (r *renderer) insert(n *markup.Node, ctx value.Context, depth int) ([]*markup.Node, error) {
	id, ok := n.Attr("template")
	if !ok || id == "" {
		return nil, missingAttribute(TagInsert, "template")
	}
	tmpl, found := r.engine.lookup(id)
	if !found {
		return nil, errors.ErrTemplateNotFound(id).WithDirective(TagInsert)
	}
	if !tmpl.IsStructural() {
		return nil, errors.NewStructuralError(
			errors.ErrCodeInvalidTemplate,
			fmt.Sprintf("template %q is not an element or fragment", id),
		).WithDirective(TagInsert)
	}
	if slices.Contains(r.chain, id) {
		cycle := append(slices.Clone(r.chain), id)
		return nil, errors.NewStructuralError(
			errors.ErrCodeInsertCycle,
			"insert cycle: "+strings.Join(cycle, " -> "),
		).WithDirective(TagInsert).WithContext("chain", cycle)
	}

	r.chain = append(r.chain, id)
	rendered, err := r.nested(tmpl.Children, ctx, depth)
	r.chain = r.chain[:len(r.chain)-1]
	if err != nil {
		return nil, withTemplate(err, id)
	}
	return rendered, nil
}

func describe(v any) string {
	switch v := value.Normalize(v).(type) {
	case nil:
		return "undefined"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64:
		return "number"
	default:
		if _, ok := value.AsContext(v); ok {
			return "object"
		}
		return fmt.Sprintf("%T", v)
	}
}
