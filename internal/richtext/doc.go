package richtext

const (
	NodeDoc         = "doc"
	NodeParagraph   = "paragraph"
	NodeHeading     = "heading"
	NodeBlockquote  = "blockquote"
	NodeBulletList  = "bulletList"
	NodeOrderedList = "orderedList"
	NodeListItem    = "listItem"
	NodeText        = "text"
)

// Node is one element of a portable document tree.
type Node struct {
	Type    string                 `json:"type"`
	Attrs   map[string]interface{} `json:"attrs,omitempty"`
	Content []Node                 `json:"content,omitempty"`
	Text    string                 `json:"text,omitempty"`
}

func textNode(s string) Node {
	return Node{Type: NodeText, Text: s}
}

func paragraph(s string) Node {
	return Node{Type: NodeParagraph, Content: []Node{textNode(s)}}
}

func heading(level int, s string) Node {
	return Node{
		Type:    NodeHeading,
		Attrs:   map[string]interface{}{"level": level},
		Content: []Node{textNode(s)},
	}
}

// HeadingLevel returns the level attribute of a heading node, defaulting to 1.
func (n Node) HeadingLevel() int {
	if n.Attrs == nil {
		return 1
	}
	switch lvl := n.Attrs["level"].(type) {
	case int:
		return lvl
	case float64:
		return int(lvl)
	}
	return 1
}

// PlainText concatenates every text node under n.
func (n Node) PlainText() string {
	if n.Type == NodeText {
		return n.Text
	}
	out := ""
	for _, child := range n.Content {
		out += child.PlainText()
	}
	return out
}
