// Package layout projects the forest into positioned cards and connector
// geometry. It never changes the forest; every structural edit is followed
// by a fresh Build.
package layout

import (
	"strings"

	"orgterm/internal/directory"
	"orgterm/internal/hierarchy"
)

// Config holds the layout metrics in pixels.
type Config struct {
	CardWidth  float64
	CardHeight float64
	// SiblingGap separates neighbouring subtrees, and roots.
	SiblingGap float64
	// StemHeight runs from the parent's bottom edge to the bus.
	StemHeight float64
	// DropHeight runs from the bus to the child's top edge.
	DropHeight float64
}

func DefaultConfig() Config {
	return Config{
		CardWidth:  240,
		CardHeight: 96,
		SiblingGap: 48,
		StemHeight: 64,
		DropHeight: 32,
	}
}

// State is the display-only view state applied on top of the forest.
type State struct {
	// Visible filters cards out of the layout; nil shows everything.
	Visible   func(id string) bool
	Collapsed map[string]bool
	// Dimmed marks cards outside the attribute filter.
	Dimmed map[string]bool
	// Faded marks cards a search pushed into the background.
	Faded     map[string]bool
	Highlight map[string]bool
}

// Card is one positioned employee.
type Card struct {
	ID         string
	Rect       Rect
	Depth      int
	Name       string
	Title      string
	Department string
	// Badge is the upper-cased department, or LEADERSHIP for chiefs.
	Badge      string
	StatsLabel string
	Directs    int
	Status     string

	Inactive    bool
	Missing     bool
	Dimmed      bool
	Faded       bool
	Highlight   bool
	Collapsed   bool
	HasChildren bool
}

// Draggable reports whether the card can be picked up. A search only fades
// cards and leaves them draggable.
func (c Card) Draggable() bool {
	return !c.Inactive && !c.Dimmed && !c.Missing
}

// Group is the connector set joining a parent to its visible children. It
// only exists while the parent has at least one visible, expanded child.
type Group struct {
	ParentID string
	ChildIDs []string
	Stem     Segment
	// Bus spans first to last child centre and is nil for a single child.
	Bus   *Segment
	Drops []Segment
}

// Scene is the rendered chart in natural (unscaled) layout pixels with the
// origin at the top-left of the tree.
type Scene struct {
	Cards   []Card
	Groups  []Group
	RootIDs []string
	Bounds  Rect

	index  map[string]int
	groups map[string]int
}

func (s *Scene) Card(id string) (Card, bool) {
	i, ok := s.index[id]
	if !ok {
		return Card{}, false
	}
	return s.Cards[i], true
}

// Group returns the child group under parentID.
func (s *Scene) Group(parentID string) (Group, bool) {
	i, ok := s.groups[parentID]
	if !ok {
		return Group{}, false
	}
	return s.Groups[i], true
}

func (s *Scene) Empty() bool {
	return len(s.Cards) == 0
}

// HitTest returns the card under p, skipping exclude. When cards overlap
// the last one drawn wins. Whether the card accepts a drop is up to the
// caller.
func (s *Scene) HitTest(p Point, exclude string) (string, bool) {
	for i := len(s.Cards) - 1; i >= 0; i-- {
		c := s.Cards[i]
		if c.ID == exclude {
			continue
		}
		if c.Rect.Contains(p) {
			return c.ID, true
		}
	}
	return "", false
}

// Compact walks what is drawn back into the persisted shape. With nothing
// hidden or collapsed it equals the forest's own Compact.
func (s *Scene) Compact() []hierarchy.CompactNode {
	var build func(id string) hierarchy.CompactNode
	build = func(id string) hierarchy.CompactNode {
		n := hierarchy.CompactNode{ID: id, Children: []hierarchy.CompactNode{}}
		if g, ok := s.Group(id); ok {
			for _, c := range g.ChildIDs {
				n.Children = append(n.Children, build(c))
			}
		}
		return n
	}
	out := make([]hierarchy.CompactNode, 0, len(s.RootIDs))
	for _, id := range s.RootIDs {
		out = append(out, build(id))
	}
	return out
}

type builder struct {
	f     *hierarchy.Forest
	dir   directory.Provider
	st    State
	cfg   Config
	scene *Scene
	width map[string]float64
}

// Build lays the forest out top-down. Each parent is centred over the row
// of its visible children and siblings keep their stored order.
func Build(f *hierarchy.Forest, dir directory.Provider, st State, cfg Config) *Scene {
	b := &builder{
		f:     f,
		dir:   dir,
		st:    st,
		cfg:   cfg,
		scene: &Scene{index: map[string]int{}, groups: map[string]int{}},
		width: map[string]float64{},
	}
	var roots []*hierarchy.Node
	for _, r := range f.Roots() {
		if b.visible(r.EmployeeID) {
			roots = append(roots, r)
		}
	}
	x := 0.0
	for i, r := range roots {
		if i > 0 {
			x += cfg.SiblingGap
		}
		b.measure(r)
		b.place(r, x, 0, 0)
		b.scene.RootIDs = append(b.scene.RootIDs, r.EmployeeID)
		x += b.width[r.EmployeeID]
	}
	var bounds Rect
	for _, c := range b.scene.Cards {
		bounds = bounds.Union(c.Rect)
	}
	b.scene.Bounds = bounds
	return b.scene
}

func (b *builder) visible(id string) bool {
	return b.st.Visible == nil || b.st.Visible(id)
}

func (b *builder) visibleChildren(n *hierarchy.Node) []*hierarchy.Node {
	var out []*hierarchy.Node
	for _, c := range n.Children {
		if b.visible(c.EmployeeID) {
			out = append(out, c)
		}
	}
	return out
}

func (b *builder) expandedChildren(n *hierarchy.Node) []*hierarchy.Node {
	if b.st.Collapsed[n.EmployeeID] {
		return nil
	}
	return b.visibleChildren(n)
}

func (b *builder) rowWidth(children []*hierarchy.Node) float64 {
	w := 0.0
	for i, c := range children {
		if i > 0 {
			w += b.cfg.SiblingGap
		}
		w += b.width[c.EmployeeID]
	}
	return w
}

func (b *builder) measure(n *hierarchy.Node) float64 {
	children := b.expandedChildren(n)
	for _, c := range children {
		b.measure(c)
	}
	w := b.cfg.CardWidth
	if row := b.rowWidth(children); row > w {
		w = row
	}
	b.width[n.EmployeeID] = w
	return w
}

func (b *builder) place(n *hierarchy.Node, x, y float64, depth int) {
	w := b.width[n.EmployeeID]
	rect := Rect{X: x + (w-b.cfg.CardWidth)/2, Y: y, W: b.cfg.CardWidth, H: b.cfg.CardHeight}
	b.addCard(n, rect, depth)

	children := b.expandedChildren(n)
	if len(children) == 0 {
		return
	}
	row := b.rowWidth(children)
	busY := rect.Bottom() + b.cfg.StemHeight
	childY := busY + b.cfg.DropHeight
	cx := x + (w-row)/2

	g := Group{
		ParentID: n.EmployeeID,
		Stem:     Segment{From: rect.BottomCenter(), To: Point{X: rect.BottomCenter().X, Y: busY}},
	}
	for i, c := range children {
		if i > 0 {
			cx += b.cfg.SiblingGap
		}
		cw := b.width[c.EmployeeID]
		center := cx + cw/2
		g.ChildIDs = append(g.ChildIDs, c.EmployeeID)
		g.Drops = append(g.Drops, Segment{From: Point{X: center, Y: busY}, To: Point{X: center, Y: childY}})
		b.place(c, cx, childY, depth+1)
		cx += cw
	}
	if len(g.Drops) > 1 {
		first := g.Drops[0].From
		last := g.Drops[len(g.Drops)-1].From
		g.Bus = &Segment{From: first, To: last}
	}
	b.scene.groups[n.EmployeeID] = len(b.scene.Groups)
	b.scene.Groups = append(b.scene.Groups, g)
}

func (b *builder) addCard(n *hierarchy.Node, rect Rect, depth int) {
	id := n.EmployeeID
	e, ok := b.dir.Get(id)
	card := Card{
		ID:          id,
		Rect:        rect,
		Depth:       depth,
		Name:        e.DisplayName(),
		Title:       e.Title,
		Department:  e.Department,
		Status:      e.NormalizedStatus(),
		Directs:     b.f.DirectsCount(id, b.st.Visible),
		Inactive:    ok && e.Inactive(),
		Missing:     !ok,
		Dimmed:      b.st.Dimmed[id],
		Faded:       b.st.Faded[id],
		Highlight:   b.st.Highlight[id],
		Collapsed:   b.st.Collapsed[id] && len(b.visibleChildren(n)) > 0,
		HasChildren: len(b.visibleChildren(n)) > 0,
	}
	if !ok {
		card.Name = "Unknown"
	}
	card.Badge, card.StatsLabel = badge(e)
	b.scene.index[id] = len(b.scene.Cards)
	b.scene.Cards = append(b.scene.Cards, card)
}

func badge(e directory.Employee) (string, string) {
	if strings.EqualFold(e.Title, "CEO") || strings.Contains(e.Title, "Chief") {
		return "LEADERSHIP", "Total"
	}
	dept := strings.TrimSpace(e.Department)
	if dept == "" {
		dept = "General"
	}
	return strings.ToUpper(dept), "Directs"
}
