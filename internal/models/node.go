// Defines the rich-text node tree that document content is made of.

package models

import "github.com/google/uuid"

// NodeKind discriminates the closed set of node types a document tree can
// contain. Tree walkers switch exhaustively on it; there is no default
// fallthrough for unknown kinds.
type NodeKind string

const (
	// NodeParagraph is a structural paragraph container.
	NodeParagraph NodeKind = "paragraph"
	// NodeHeading is a heading with a level (1-6).
	NodeHeading NodeKind = "heading"
	// NodeBulletedList is an unordered list container.
	NodeBulletedList NodeKind = "bulleted-list"
	// NodeNumberedList is an ordered list container.
	NodeNumberedList NodeKind = "numbered-list"
	// NodeListItem is a single item inside a list container.
	NodeListItem NodeKind = "list-item"
	// NodeText is a plain text run with optional boolean marks.
	NodeText NodeKind = "text"
	// NodeReference is an inline link to another document by name.
	NodeReference NodeKind = "reference"
	// NodeDrawing is an inline embed of a drawing by name.
	NodeDrawing NodeKind = "drawing"
	// NodeRemoteFile is an inline embed of an uploaded binary file by id.
	NodeRemoteFile NodeKind = "remote-file"
	// NodePortal transcludes another document's content by name.
	NodePortal NodeKind = "portal"
)

// Node is a single node in a document content tree.
//
// ID is a stable identity tag assigned once at creation and never rewritten;
// the merge engine aligns divergent trees by it rather than by position.
// Which payload fields are meaningful depends on Kind: Text and the mark
// booleans apply to NodeText, Level to NodeHeading, Ref to NodeReference,
// NodeDrawing and NodePortal (the referenced document or drawing name), and
// FileID to NodeRemoteFile. Structural kinds carry Children.
type Node struct {
	ID            string   `json:"id"`
	Kind          NodeKind `json:"kind"`
	Text          string   `json:"text,omitempty"`
	Bold          bool     `json:"bold,omitempty"`
	Italic        bool     `json:"italic,omitempty"`
	Underline     bool     `json:"underline,omitempty"`
	Strikethrough bool     `json:"strikethrough,omitempty"`
	Level         int      `json:"level,omitempty"`
	Ref           string   `json:"ref,omitempty"`
	FileID        string   `json:"fileId,omitempty"`
	Children      []*Node  `json:"children,omitempty"`
}

// NewNodeID returns a fresh stable identity tag for a node.
func NewNodeID() string {
	return uuid.NewString()
}

// IsContainer reports whether the kind nests child nodes.
func (k NodeKind) IsContainer() bool {
	switch k {
	case NodeParagraph, NodeHeading, NodeBulletedList, NodeNumberedList, NodeListItem, NodePortal:
		return true
	case NodeText, NodeReference, NodeDrawing, NodeRemoteFile:
		return false
	}
	return false
}

// Clone returns a deep copy of the node and its subtree.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := *n
	c.Children = CloneNodes(n.Children)
	return &c
}

// CloneNodes returns a deep copy of a node list.
func CloneNodes(nodes []*Node) []*Node {
	if nodes == nil {
		return nil
	}
	out := make([]*Node, len(nodes))
	for i, n := range nodes {
		out[i] = n.Clone()
	}
	return out
}

// TextNode builds a plain text run. Convenience constructor used by tests
// and the lazy-creation path.
func TextNode(text string) *Node {
	return &Node{ID: NewNodeID(), Kind: NodeText, Text: text}
}

// Paragraph builds a paragraph wrapping the given children.
func Paragraph(children ...*Node) *Node {
	return &Node{ID: NewNodeID(), Kind: NodeParagraph, Children: children}
}

// ReferenceNode builds an inline reference to the named document.
func ReferenceNode(name string) *Node {
	return &Node{ID: NewNodeID(), Kind: NodeReference, Ref: name}
}

// DrawingNode builds an inline embed of the named drawing.
func DrawingNode(name string) *Node {
	return &Node{ID: NewNodeID(), Kind: NodeDrawing, Ref: name}
}

// PortalNode builds a transclusion of the named document.
func PortalNode(name string) *Node {
	return &Node{ID: NewNodeID(), Kind: NodePortal, Ref: name, Children: []*Node{TextNode("")}}
}

// EmptyContent returns the content of a freshly created document: a single
// empty paragraph.
func EmptyContent() []*Node {
	return []*Node{Paragraph(TextNode(""))}
}

// IsEmptyContent reports whether content holds no user-visible text,
// references or embeds. Used by the navigate-away cleanup rule.
func IsEmptyContent(nodes []*Node) bool {
	for _, n := range nodes {
		switch n.Kind {
		case NodeText:
			if n.Text != "" {
				return false
			}
		case NodeReference, NodeDrawing, NodeRemoteFile, NodePortal:
			return false
		case NodeParagraph, NodeHeading, NodeBulletedList, NodeNumberedList, NodeListItem:
			if !IsEmptyContent(n.Children) {
				return false
			}
		}
	}
	return true
}
