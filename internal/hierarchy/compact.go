package hierarchy

import (
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

// CompactNode is the persisted shape of one chart position.
type CompactNode struct {
	ID       string        `json:"id"`
	Children []CompactNode `json:"children"`
}

// Lookup reports whether an employee id still resolves in the directory.
type Lookup func(id string) bool

// Compact serializes the forest in display order. Children is never nil so
// leaves encode as "children": [].
func (f *Forest) Compact() []CompactNode {
	out := make([]CompactNode, 0, len(f.roots))
	for _, r := range f.roots {
		out = append(out, compactNode(r))
	}
	return out
}

func compactNode(n *Node) CompactNode {
	c := CompactNode{ID: n.EmployeeID, Children: make([]CompactNode, 0, len(n.Children))}
	for _, child := range n.Children {
		c.Children = append(c.Children, compactNode(child))
	}
	return c
}

// FromCompact builds a forest from persisted data. Nodes whose employee no
// longer resolves are dropped together with their subtree, as are repeated
// ids. The dropped ids (subtree roots only) are returned.
func FromCompact(tree []CompactNode, exists Lookup) (*Forest, []string) {
	f := New()
	pruned := f.build(tree, exists)
	return f, pruned
}

// Replace swaps the whole forest for tree, pruning as FromCompact does, and
// emits a single ChangeReplace.
func (f *Forest) Replace(tree []CompactNode, exists Lookup) []string {
	f.roots = nil
	f.index = make(map[string]*Node)
	pruned := f.build(tree, exists)
	f.notify(Change{Kind: ChangeReplace})
	return pruned
}

func (f *Forest) build(tree []CompactNode, exists Lookup) []string {
	var pruned []string
	var attach func(c CompactNode, parent *Node) *Node
	attach = func(c CompactNode, parent *Node) *Node {
		if c.ID == "" || f.Has(c.ID) || (exists != nil && !exists(c.ID)) {
			pruned = append(pruned, c.ID)
			return nil
		}
		n := &Node{EmployeeID: c.ID, parent: parent}
		f.index[c.ID] = n
		for _, cc := range c.Children {
			if child := attach(cc, n); child != nil {
				n.Children = append(n.Children, child)
			}
		}
		return n
	}
	for _, c := range tree {
		if n := attach(c, nil); n != nil {
			f.roots = append(f.roots, n)
		}
	}
	return pruned
}

// MarshalCompact encodes tree as the persisted JSON array.
func MarshalCompact(tree []CompactNode) ([]byte, error) {
	if tree == nil {
		tree = []CompactNode{}
	}
	b, err := json.Marshal(tree)
	if err != nil {
		return nil, errors.Wrap(err, "encode hierarchy")
	}
	return b, nil
}

// UnmarshalCompact decodes the persisted JSON array.
func UnmarshalCompact(data []byte) ([]CompactNode, error) {
	var tree []CompactNode
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, errors.Wrap(err, "decode hierarchy")
	}
	return tree, nil
}

// CountCompact returns the number of nodes in tree.
func CountCompact(tree []CompactNode) int {
	n := 0
	for _, c := range tree {
		n += 1 + CountCompact(c.Children)
	}
	return n
}
