package markup

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// bodyContext is the context element fragments are parsed in. Parsing in
// body context keeps custom directive tags (repeat, if, else, insert) as
// ordinary elements and drops stray html/head/body wrappers.
var bodyContext = &html.Node{
	Type:     html.ElementNode,
	Data:     "body",
	DataAtom: atom.Body,
}

// Parse reads HTML markup and returns it as a fragment.
func Parse(r io.Reader) (*Node, error) {
	nodes, err := html.ParseFragment(r, bodyContext)
	if err != nil {
		return nil, fmt.Errorf("parsing markup: %w", err)
	}

	fragment := NewFragment()
	for _, h := range nodes {
		if n := fromHTML(h); n != nil {
			fragment.Children = append(fragment.Children, n)
		}
	}
	return fragment, nil
}

// ParseString is Parse over a string.
func ParseString(s string) (*Node, error) {
	return Parse(strings.NewReader(s))
}

// MustParse is ParseString that panics on error. It is meant for tests and
// package-level fixtures.
func MustParse(s string) *Node {
	n, err := ParseString(s)
	if err != nil {
		panic(err)
	}
	return n
}

// Render writes n as HTML. Fragments render their children in order.
func Render(w io.Writer, n *Node) error {
	if n == nil {
		return nil
	}
	if n.Type == FragmentNode {
		for _, child := range n.Children {
			if err := Render(w, child); err != nil {
				return err
			}
		}
		return nil
	}
	return html.Render(w, toHTML(n))
}

// RenderString renders n into a string.
func RenderString(n *Node) (string, error) {
	var buf bytes.Buffer
	if err := Render(&buf, n); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// fromHTML converts an x/net/html node. Doctype and error nodes are dropped.
func fromHTML(h *html.Node) *Node {
	switch h.Type {
	case html.TextNode:
		return NewText(h.Data)
	case html.CommentNode:
		return NewComment(h.Data)
	case html.ElementNode, html.DocumentNode:
		var n *Node
		if h.Type == html.DocumentNode {
			n = NewFragment()
		} else {
			n = &Node{Type: ElementNode, Tag: h.Data}
			for _, a := range h.Attr {
				key := a.Key
				if a.Namespace != "" {
					key = a.Namespace + ":" + a.Key
				}
				n.Attrs = append(n.Attrs, Attribute{Key: key, Val: a.Val})
			}
		}
		for c := h.FirstChild; c != nil; c = c.NextSibling {
			if child := fromHTML(c); child != nil {
				n.Children = append(n.Children, child)
			}
		}
		return n
	default:
		return nil
	}
}

// toHTML converts n back into an x/net/html tree for serialization.
func toHTML(n *Node) *html.Node {
	switch n.Type {
	case TextNode:
		return &html.Node{Type: html.TextNode, Data: n.Data}
	case CommentNode:
		return &html.Node{Type: html.CommentNode, Data: n.Data}
	}

	h := &html.Node{
		Type:     html.ElementNode,
		Data:     n.Tag,
		DataAtom: atom.Lookup([]byte(n.Tag)),
	}
	if n.Type == FragmentNode {
		h = &html.Node{Type: html.DocumentNode}
	}
	for _, a := range n.Attrs {
		h.Attr = append(h.Attr, html.Attribute{Key: a.Key, Val: a.Val})
	}
	for _, child := range n.Children {
		h.AppendChild(toHTML(child))
	}
	return h
}
