package engine

import (
	"github.com/conneroisu/tagfill/internal/errors"
	"github.com/conneroisu/tagfill/internal/expr"
	"github.com/conneroisu/tagfill/internal/markup"
)

// Lint reports the problems in tmpl that do not depend on data: missing or
// malformed directive attributes, conditions outside the grammar, orphan
// else elements and inserts of ids reg does not know. A nil reg skips the
// insert lookups. Insert cycles span templates and are reported by the
// registry's dependency analysis instead.
func Lint(tmpl *markup.Node, reg Registry) []error {
	if !tmpl.IsStructural() {
		return []error{errors.NewStructuralError(
			errors.ErrCodeInvalidTemplate,
			"template must be an element or fragment node",
		)}
	}
	var problems []error
	lintNodes(tmpl.Children, reg, &problems)
	return problems
}

func lintNodes(nodes []*markup.Node, reg Registry, problems *[]error) {
	for i, n := range nodes {
		if n.Type != markup.ElementNode {
			continue
		}
		switch n.Tag {
		case TagRepeat:
			if attr, ok := n.Attr("for"); !ok || attr == "" {
				*problems = append(*problems, missingAttribute(TagRepeat, "for"))
			} else if _, _, err := ParseFor(attr); err != nil {
				*problems = append(*problems, err)
			}
		case TagIf:
			cond, ok := n.Attr("cond")
			if !ok || cond == "" {
				*problems = append(*problems, missingAttribute(TagIf, "cond"))
				break
			}
			e, err := expr.Parse(cond)
			if err == nil {
				err = e.Check()
			}
			if err != nil {
				*problems = append(*problems, directiveError(err, TagIf))
			}
		case TagElse:
			if i == 0 || !nodes[i-1].Is(TagIf) {
				*problems = append(*problems, errors.NewStructuralError(
					errors.ErrCodeOrphanElse,
					"<else> must immediately follow an <if>",
				).WithDirective(TagElse))
			}
		case TagInsert:
			id, ok := n.Attr("template")
			if !ok || id == "" {
				*problems = append(*problems, missingAttribute(TagInsert, "template"))
			} else if reg != nil {
				if _, found := reg.Lookup(id); !found {
					*problems = append(*problems, errors.ErrTemplateNotFound(id).WithDirective(TagInsert))
				}
			}
		}
		lintNodes(n.Children, reg, problems)
	}
}

// Inserts returns the template ids referenced by insert elements in tmpl,
// in document order and without duplicates.
func Inserts(tmpl *markup.Node) []string {
	var ids []string
	seen := make(map[string]bool)
	for _, n := range tmpl.FindAll(TagInsert) {
		if id, ok := n.Attr("template"); ok && id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}
