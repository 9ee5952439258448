// Package markup provides the node tree that templates are parsed into and
// rendered from.
//
// A Node is a plain value tree: a fragment or element owns an ordered list of
// children, attributes keep their source order, and nothing holds parent or
// sibling pointers. Callers that need to expand a subtree more than once take
// a deep copy with Clone, so the tree handed to the renderer is never mutated.
package markup

import "strings"

// NodeType identifies what a Node represents.
type NodeType int

const (
	// FragmentNode is a parentless list of nodes.
	FragmentNode NodeType = iota
	// ElementNode is a tag with attributes and children.
	ElementNode
	// TextNode holds character data.
	TextNode
	// CommentNode holds the body of an HTML comment.
	CommentNode
)

// String returns the string representation of the NodeType
func (t NodeType) String() string {
	switch t {
	case FragmentNode:
		return "fragment"
	case ElementNode:
		return "element"
	case TextNode:
		return "text"
	case CommentNode:
		return "comment"
	default:
		return "unknown"
	}
}

// Attribute is a single key/value pair on an element.
type Attribute struct {
	Key string
	Val string
}

// Node is one node of a template tree.
type Node struct {
	Type NodeType
	// Tag is the lower-case element name; empty for other node types.
	Tag string
	// Data is the character data of text and comment nodes.
	Data     string
	Attrs    []Attribute
	Children []*Node
}

// NewFragment creates a fragment holding children.
func NewFragment(children ...*Node) *Node {
	return &Node{Type: FragmentNode, Children: children}
}

// NewElement creates an element node.
func NewElement(tag string, attrs []Attribute, children ...*Node) *Node {
	return &Node{
		Type:     ElementNode,
		Tag:      strings.ToLower(tag),
		Attrs:    attrs,
		Children: children,
	}
}

// NewText creates a text node.
func NewText(data string) *Node {
	return &Node{Type: TextNode, Data: data}
}

// NewComment creates a comment node.
func NewComment(data string) *Node {
	return &Node{Type: CommentNode, Data: data}
}

// Attr returns the value of the attribute key and whether it is present.
func (n *Node) Attr(key string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attrs {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// Is reports whether n is an element with the given tag.
func (n *Node) Is(tag string) bool {
	return n != nil && n.Type == ElementNode && n.Tag == tag
}

// IsStructural reports whether n can own children.
func (n *Node) IsStructural() bool {
	return n != nil && (n.Type == ElementNode || n.Type == FragmentNode)
}

// Clone returns a deep copy of n.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := &Node{
		Type: n.Type,
		Tag:  n.Tag,
		Data: n.Data,
	}
	if n.Attrs != nil {
		c.Attrs = make([]Attribute, len(n.Attrs))
		copy(c.Attrs, n.Attrs)
	}
	if n.Children != nil {
		c.Children = CloneAll(n.Children)
	}
	return c
}

// CloneAll deep-copies a list of nodes.
func CloneAll(nodes []*Node) []*Node {
	out := make([]*Node, len(nodes))
	for i, child := range nodes {
		out[i] = child.Clone()
	}
	return out
}

// ShallowCopy returns a copy of n with its own attribute slice and no
// children. The renderer uses it to rebuild an element around resolved
// children without touching the source node.
func (n *Node) ShallowCopy() *Node {
	c := &Node{Type: n.Type, Tag: n.Tag, Data: n.Data}
	if n.Attrs != nil {
		c.Attrs = make([]Attribute, len(n.Attrs))
		copy(c.Attrs, n.Attrs)
	}
	return c
}

// Walk visits n and its descendants depth-first in document order. Returning
// false from fn skips the children of the visited node.
func (n *Node) Walk(fn func(*Node) bool) {
	if n == nil {
		return
	}
	if !fn(n) {
		return
	}
	for _, child := range n.Children {
		child.Walk(fn)
	}
}

// FindAll returns every element below n (n included) with the given tag.
func (n *Node) FindAll(tag string) []*Node {
	var found []*Node
	n.Walk(func(c *Node) bool {
		if c.Is(tag) {
			found = append(found, c)
		}
		return true
	})
	return found
}

// TextContent concatenates the text of n and all of its descendants.
func (n *Node) TextContent() string {
	var b strings.Builder
	n.Walk(func(c *Node) bool {
		if c.Type == TextNode {
			b.WriteString(c.Data)
		}
		return true
	})
	return b.String()
}

// IsWhitespace reports whether n is a text node containing only whitespace.
func (n *Node) IsWhitespace() bool {
	return n != nil && n.Type == TextNode && strings.TrimSpace(n.Data) == ""
}
