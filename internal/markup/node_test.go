package markup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeTypeString(t *testing.T) {
	testCases := []struct {
		nodeType NodeType
		expected string
	}{
		{FragmentNode, "fragment"},
		{ElementNode, "element"},
		{TextNode, "text"},
		{CommentNode, "comment"},
		{NodeType(99), "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.nodeType.String())
		})
	}
}

func TestAttr(t *testing.T) {
	n := NewElement("repeat", []Attribute{{Key: "for", Val: "item of items"}})

	val, ok := n.Attr("for")
	assert.True(t, ok)
	assert.Equal(t, "item of items", val)

	_, ok = n.Attr("cond")
	assert.False(t, ok)

	var nilNode *Node
	_, ok = nilNode.Attr("for")
	assert.False(t, ok)
}

func TestCloneIsDeep(t *testing.T) {
	original := NewElement("div", []Attribute{{Key: "class", Val: "card"}},
		NewElement("h1", nil, NewText("{{ title }}")),
	)

	clone := original.Clone()
	require.Equal(t, original, clone)

	clone.Attrs[0].Val = "changed"
	clone.Children[0].Children[0].Data = "changed"
	clone.Children = append(clone.Children, NewText("extra"))

	assert.Equal(t, "card", original.Attrs[0].Val)
	assert.Equal(t, "{{ title }}", original.Children[0].Children[0].Data)
	assert.Len(t, original.Children, 1)
}

func TestShallowCopyDropsChildren(t *testing.T) {
	original := NewElement("p", []Attribute{{Key: "id", Val: "x"}}, NewText("hi"))
	c := original.ShallowCopy()

	assert.Equal(t, "p", c.Tag)
	assert.Empty(t, c.Children)
	c.Attrs[0].Val = "y"
	assert.Equal(t, "x", original.Attrs[0].Val)
}

func TestFindAllAndTextContent(t *testing.T) {
	root := MustParse(`<div><insert template="a"></insert><p>one <b>two</b></p><insert template="b"></insert></div>`)

	inserts := root.FindAll("insert")
	require.Len(t, inserts, 2)
	id, _ := inserts[1].Attr("template")
	assert.Equal(t, "b", id)

	assert.Equal(t, "one two", root.TextContent())
}

func TestIsWhitespace(t *testing.T) {
	assert.True(t, NewText(" \n\t").IsWhitespace())
	assert.False(t, NewText(" x ").IsWhitespace())
	assert.False(t, NewElement("p", nil).IsWhitespace())
}

func TestIsStructural(t *testing.T) {
	assert.True(t, NewFragment().IsStructural())
	assert.True(t, NewElement("div", nil).IsStructural())
	assert.False(t, NewText("x").IsStructural())
	assert.False(t, NewComment("x").IsStructural())

	var nilNode *Node
	assert.False(t, nilNode.IsStructural())
}
