// Package hierarchy holds the reporting-line forest shown on the org chart.
//
// The forest references employees by id only. Every employee id appears at
// most once, and a node can never be attached beneath itself or one of its
// own reports.
package hierarchy

import (
	"github.com/pkg/errors"
)

var (
	// ErrNotFound is returned when an employee id is not on the chart.
	ErrNotFound = errors.New("employee is not on the chart")
	// ErrAlreadyOnChart is returned when adding an id that already has a position.
	ErrAlreadyOnChart = errors.New("employee is already on the chart")
	// ErrCycle is returned when a reassignment target lies inside the moved subtree.
	ErrCycle = errors.New("cannot assign a manager under their own report")
	// ErrEmptyID is returned for blank employee ids.
	ErrEmptyID = errors.New("employee id is empty")
)

// Node is one position on the chart.
type Node struct {
	EmployeeID string
	Children   []*Node

	parent *Node
}

// Parent returns the manager node, or nil for a root.
func (n *Node) Parent() *Node {
	return n.parent
}

// ParentID returns the manager's employee id, or "" for a root.
func (n *Node) ParentID() string {
	if n.parent == nil {
		return ""
	}
	return n.parent.EmployeeID
}

// Contains reports whether id is n itself or one of its descendants.
func (n *Node) Contains(id string) bool {
	if n.EmployeeID == id {
		return true
	}
	for _, c := range n.Children {
		if c.Contains(id) {
			return true
		}
	}
	return false
}

// Size is the number of nodes in the subtree rooted at n.
func (n *Node) Size() int {
	size := 1
	for _, c := range n.Children {
		size += c.Size()
	}
	return size
}

// ChangeKind identifies a structural mutation.
type ChangeKind int

const (
	ChangeAddRoot ChangeKind = iota
	ChangeAddChild
	ChangeRemove
	ChangeReassign
	ChangeReplace
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeAddRoot:
		return "add_root"
	case ChangeAddChild:
		return "add_child"
	case ChangeRemove:
		return "remove"
	case ChangeReassign:
		return "reassign"
	case ChangeReplace:
		return "replace"
	}
	return "unknown"
}

// Change describes a completed mutation. ParentID is the new manager for
// additions and reassignments; OldParentID is the previous manager for
// removals and reassignments. Either is "" when the node is or was a root.
type Change struct {
	Kind        ChangeKind
	EmployeeID  string
	ParentID    string
	OldParentID string
}

// Listener receives changes after the mutation that produced them is complete.
type Listener func(Change)

// Forest is the ordered set of chart roots plus an id index.
type Forest struct {
	roots     []*Node
	index     map[string]*Node
	listeners []Listener

	pending     []Change
	dispatching bool
}

func New() *Forest {
	return &Forest{index: make(map[string]*Node)}
}

// Subscribe registers l for change notifications and returns a cancel func.
func (f *Forest) Subscribe(l Listener) func() {
	f.listeners = append(f.listeners, l)
	idx := len(f.listeners) - 1
	return func() {
		if idx < len(f.listeners) {
			f.listeners[idx] = nil
		}
	}
}

// notify queues c and drains the queue unless a drain is already running.
// A listener that mutates the forest gets its change delivered after the
// current one, never nested inside it. If a listener panics the rest of the
// queue is dropped.
func (f *Forest) notify(c Change) {
	f.pending = append(f.pending, c)
	if f.dispatching {
		return
	}
	f.dispatching = true
	defer func() {
		f.dispatching = false
		f.pending = nil
	}()
	for len(f.pending) > 0 {
		next := f.pending[0]
		f.pending = f.pending[1:]
		for _, l := range f.listeners {
			if l != nil {
				l(next)
			}
		}
	}
}

// Roots returns the top-level nodes in display order.
func (f *Forest) Roots() []*Node {
	out := make([]*Node, len(f.roots))
	copy(out, f.roots)
	return out
}

// Len is the number of employees on the chart.
func (f *Forest) Len() int {
	return len(f.index)
}

func (f *Forest) Empty() bool {
	return len(f.roots) == 0
}

func (f *Forest) Has(id string) bool {
	_, ok := f.index[id]
	return ok
}

// Node returns the chart position of id.
func (f *Forest) Node(id string) (*Node, bool) {
	n, ok := f.index[id]
	return n, ok
}

// IDs returns every employee id on the chart in depth-first display order.
func (f *Forest) IDs() []string {
	ids := make([]string, 0, len(f.index))
	f.Walk(func(n *Node, _ int) bool {
		ids = append(ids, n.EmployeeID)
		return true
	})
	return ids
}

// Walk visits nodes depth-first in display order. Returning false from fn
// skips that node's children.
func (f *Forest) Walk(fn func(n *Node, depth int) bool) {
	var visit func(n *Node, depth int)
	visit = func(n *Node, depth int) {
		if !fn(n, depth) {
			return
		}
		for _, c := range n.Children {
			visit(c, depth+1)
		}
	}
	for _, r := range f.roots {
		visit(r, 0)
	}
}

// AddRoot places id at the top level after any existing roots.
func (f *Forest) AddRoot(id string) error {
	if id == "" {
		return ErrEmptyID
	}
	if f.Has(id) {
		return errors.Wrapf(ErrAlreadyOnChart, "add root %s", id)
	}
	n := &Node{EmployeeID: id}
	f.roots = append(f.roots, n)
	f.index[id] = n
	f.notify(Change{Kind: ChangeAddRoot, EmployeeID: id})
	return nil
}

// AddChild places id as the last direct report of parentID.
func (f *Forest) AddChild(parentID, id string) error {
	if id == "" {
		return ErrEmptyID
	}
	parent, ok := f.index[parentID]
	if !ok {
		return errors.Wrapf(ErrNotFound, "parent %s", parentID)
	}
	if f.Has(id) {
		return errors.Wrapf(ErrAlreadyOnChart, "add %s under %s", id, parentID)
	}
	n := &Node{EmployeeID: id, parent: parent}
	parent.Children = append(parent.Children, n)
	f.index[id] = n
	f.notify(Change{Kind: ChangeAddChild, EmployeeID: id, ParentID: parentID})
	return nil
}

// Remove takes id and its whole subtree off the chart and returns the
// detached subtree. The employees themselves are untouched.
func (f *Forest) Remove(id string) (*Node, error) {
	n, ok := f.index[id]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "remove %s", id)
	}
	oldParent := n.ParentID()
	f.detach(n)
	f.unindex(n)
	f.notify(Change{Kind: ChangeRemove, EmployeeID: id, OldParentID: oldParent})
	return n, nil
}

// Reassign moves srcID, with its reports, to be the last direct report of
// dstID and returns the previous manager id ("" for top level).
//
// Moving a node onto itself or onto its current manager changes nothing.
// A target inside the moved subtree is rejected with ErrCycle and the forest
// is left as it was.
func (f *Forest) Reassign(srcID, dstID string) (string, error) {
	src, ok := f.index[srcID]
	if !ok {
		return "", errors.Wrapf(ErrNotFound, "reassign source %s", srcID)
	}
	dst, ok := f.index[dstID]
	if !ok {
		return "", errors.Wrapf(ErrNotFound, "reassign target %s", dstID)
	}
	oldParent := src.ParentID()
	if src == dst || src.parent == dst {
		return oldParent, nil
	}
	if src.Contains(dstID) {
		return oldParent, ErrCycle
	}

	f.detach(src)
	src.parent = dst
	dst.Children = append(dst.Children, src)
	f.notify(Change{Kind: ChangeReassign, EmployeeID: srcID, ParentID: dstID, OldParentID: oldParent})
	return oldParent, nil
}

// CanReassign reports whether Reassign(srcID, dstID) would move anything.
func (f *Forest) CanReassign(srcID, dstID string) bool {
	src, ok := f.index[srcID]
	if !ok {
		return false
	}
	dst, ok := f.index[dstID]
	if !ok {
		return false
	}
	return src != dst && src.parent != dst && !src.Contains(dstID)
}

// DirectsCount counts the immediate children of id accepted by visible.
// A nil visible counts every child.
func (f *Forest) DirectsCount(id string, visible func(string) bool) int {
	n, ok := f.index[id]
	if !ok {
		return 0
	}
	count := 0
	for _, c := range n.Children {
		if visible == nil || visible(c.EmployeeID) {
			count++
		}
	}
	return count
}

// Depth returns how many managers sit above id.
func (f *Forest) Depth(id string) int {
	n, ok := f.index[id]
	if !ok {
		return -1
	}
	depth := 0
	for p := n.parent; p != nil; p = p.parent {
		depth++
	}
	return depth
}

// Siblings returns the ordered child list that contains id.
func (f *Forest) Siblings(id string) []*Node {
	n, ok := f.index[id]
	if !ok {
		return nil
	}
	if n.parent == nil {
		return f.Roots()
	}
	out := make([]*Node, len(n.parent.Children))
	copy(out, n.parent.Children)
	return out
}

func (f *Forest) detach(n *Node) {
	if n.parent == nil {
		f.roots = removeNode(f.roots, n)
		return
	}
	n.parent.Children = removeNode(n.parent.Children, n)
	n.parent = nil
}

func (f *Forest) unindex(n *Node) {
	delete(f.index, n.EmployeeID)
	for _, c := range n.Children {
		f.unindex(c)
	}
}

func removeNode(list []*Node, n *Node) []*Node {
	for i, c := range list {
		if c == n {
			return append(list[:i:i], list[i+1:]...)
		}
	}
	return list
}
