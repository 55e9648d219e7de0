package partial

import "strings"

// Node is one entry of a field selector tree. MemberName may be a dotted
// path (location.city). Select is the projection requested for the
// populated relation, built from the node's direct children.
type Node struct {
	MemberName string  `json:"member_name"`
	Exclude    bool    `json:"exclude,omitempty"`
	Select     string  `json:"select,omitempty"`
	Nodes      []*Node `json:"nodes,omitempty"`
}

// GetOrAddChildNode returns the child named name, creating it on first use.
// A leading '-' is stripped and recorded in Exclude, overwriting any value a
// previous call left on an existing child.
func (n *Node) GetOrAddChildNode(name string) *Node {
	name = strings.TrimSpace(name)
	exclude := false
	if strings.HasPrefix(name, "-") {
		exclude = true
		name = strings.TrimSpace(name[1:])
	}

	child := n.Child(name)
	if child == nil {
		child = &Node{MemberName: name}
		n.Nodes = append(n.Nodes, child)
	}
	child.Exclude = exclude
	return child
}

// Child returns the direct child with the given member name, or nil.
func (n *Node) Child(name string) *Node {
	for _, c := range n.Nodes {
		if c.MemberName == name {
			return c
		}
	}
	return nil
}

// Token renders the node name the way it appeared in the query, '-' included.
func (n *Node) Token() string {
	if n.Exclude {
		return "-" + n.MemberName
	}
	return n.MemberName
}

// SelectFields splits Select into its field tokens.
func (n *Node) SelectFields() []string {
	if n.Select == "" {
		return nil
	}
	return strings.Split(n.Select, ",")
}

func (n *Node) childTokens() []string {
	tokens := make([]string, len(n.Nodes))
	for i, c := range n.Nodes {
		tokens[i] = c.Token()
	}
	return tokens
}

// Tree is the expand tree of one request. A nil *Tree is an empty tree.
type Tree struct {
	Root *Node `json:"root"`
}

// NewTree returns an empty tree.
func NewTree() *Tree {
	return &Tree{Root: &Node{}}
}

// Nodes returns the top-level nodes in the order they were first referenced.
func (t *Tree) Nodes() []*Node {
	if t == nil || t.Root == nil {
		return nil
	}
	return t.Root.Nodes
}

// Len returns the number of top-level nodes.
func (t *Tree) Len() int {
	return len(t.Nodes())
}

// Find returns the top-level node with the given member name, or nil.
func (t *Tree) Find(name string) *Node {
	if t == nil || t.Root == nil {
		return nil
	}
	return t.Root.Child(name)
}
