package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orgterm/internal/directory"
	"orgterm/internal/hierarchy"
)

func testConfig() Config {
	return Config{CardWidth: 100, CardHeight: 40, SiblingGap: 20, StemHeight: 30, DropHeight: 10}
}

func fixture(t *testing.T) (*hierarchy.Forest, *directory.Memory) {
	t.Helper()
	dir := directory.NewMemory(
		directory.Employee{ID: "ceo", Name: "Ada", Title: "Chief Executive", Department: "Leadership"},
		directory.Employee{ID: "a", Name: "Bo", Department: "Eng"},
		directory.Employee{ID: "b", Name: "Cy", Department: "Sales"},
		directory.Employee{ID: "c", Name: "Di", Department: "Sales", Status: "inactive"},
	)
	f := hierarchy.New()
	require.NoError(t, f.AddRoot("ceo"))
	require.NoError(t, f.AddChild("ceo", "a"))
	require.NoError(t, f.AddChild("ceo", "b"))
	require.NoError(t, f.AddChild("b", "c"))
	return f, dir
}

func TestBuild_Positions(t *testing.T) {
	f, dir := fixture(t)

	s := Build(f, dir, State{}, testConfig())

	// Row under ceo: a (100) + gap (20) + b (100) = 220.
	ceo, _ := s.Card("ceo")
	a, _ := s.Card("a")
	b, _ := s.Card("b")
	c, _ := s.Card("c")
	assert.Equal(t, Rect{X: 60, Y: 0, W: 100, H: 40}, ceo.Rect)
	assert.Equal(t, Rect{X: 0, Y: 80, W: 100, H: 40}, a.Rect)
	assert.Equal(t, Rect{X: 120, Y: 80, W: 100, H: 40}, b.Rect)
	assert.Equal(t, Rect{X: 120, Y: 160, W: 100, H: 40}, c.Rect)
	assert.Equal(t, Rect{X: 0, Y: 0, W: 220, H: 200}, s.Bounds)

	g, ok := s.Group("ceo")
	require.True(t, ok)
	assert.Equal(t, Segment{From: Point{110, 40}, To: Point{110, 70}}, g.Stem)
	require.NotNil(t, g.Bus)
	assert.Equal(t, Segment{From: Point{50, 70}, To: Point{170, 70}}, *g.Bus)
	assert.Equal(t, []Segment{
		{From: Point{50, 70}, To: Point{50, 80}},
		{From: Point{170, 70}, To: Point{170, 80}},
	}, g.Drops)

	single, ok := s.Group("b")
	require.True(t, ok)
	assert.Nil(t, single.Bus)
	_, ok = s.Group("a")
	assert.False(t, ok, "leaf must not get an empty group")
}

func TestBuild_CardState(t *testing.T) {
	f, dir := fixture(t)

	s := Build(f, dir, State{
		Dimmed:    map[string]bool{"a": true},
		Faded:     map[string]bool{"ceo": true},
		Highlight: map[string]bool{"b": true},
	}, testConfig())

	ceo, _ := s.Card("ceo")
	assert.Equal(t, "LEADERSHIP", ceo.Badge)
	assert.Equal(t, "Total", ceo.StatsLabel)
	assert.Equal(t, 2, ceo.Directs)
	assert.True(t, ceo.Faded)
	assert.True(t, ceo.Draggable(), "faded cards stay draggable")
	b, _ := s.Card("b")
	assert.Equal(t, "SALES", b.Badge)
	assert.True(t, b.Highlight)
	assert.True(t, b.HasChildren)
	c, _ := s.Card("c")
	assert.True(t, c.Inactive)
	assert.False(t, c.Draggable())
	a, _ := s.Card("a")
	assert.True(t, a.Dimmed)
	assert.False(t, a.Draggable())
}

func TestBuild_HiddenChildrenDropOutOfConnectors(t *testing.T) {
	f, dir := fixture(t)
	hidden := map[string]bool{"a": true}

	s := Build(f, dir, State{Visible: func(id string) bool { return !hidden[id] }}, testConfig())

	_, ok := s.Card("a")
	assert.False(t, ok)
	ceo, _ := s.Card("ceo")
	assert.Equal(t, 1, ceo.Directs)
	g, _ := s.Group("ceo")
	assert.Nil(t, g.Bus)
	assert.Equal(t, []string{"b"}, g.ChildIDs)
	// The remaining child sits straight under its parent.
	assert.Equal(t, g.Stem.To.X, g.Drops[0].From.X)
}

func TestBuild_Collapsed(t *testing.T) {
	f, dir := fixture(t)

	s := Build(f, dir, State{Collapsed: map[string]bool{"b": true, "a": true}}, testConfig())

	_, ok := s.Card("c")
	assert.False(t, ok)
	b, _ := s.Card("b")
	assert.True(t, b.Collapsed)
	assert.Equal(t, 1, b.Directs)
	a, _ := s.Card("a")
	assert.False(t, a.Collapsed, "leaves never show as collapsed")
	_, ok = s.Group("b")
	assert.False(t, ok)
}

func TestBuild_MultipleRootsAndMissing(t *testing.T) {
	f, dir := fixture(t)
	require.NoError(t, f.AddRoot("ghost"))

	s := Build(f, dir, State{}, testConfig())

	ghost, ok := s.Card("ghost")
	require.True(t, ok)
	assert.True(t, ghost.Missing)
	assert.Equal(t, "Unknown", ghost.Name)
	assert.Equal(t, 240.0, ghost.Rect.X)
	assert.Equal(t, []string{"ceo", "ghost"}, s.RootIDs)
}

func TestScene_CompactMatchesForest(t *testing.T) {
	f, dir := fixture(t)
	_, err := f.Reassign("c", "a")
	require.NoError(t, err)

	s := Build(f, dir, State{}, testConfig())

	assert.Equal(t, f.Compact(), s.Compact())
	_, ok := s.Group("b")
	assert.False(t, ok, "emptied group is gone after reassignment")
}

func TestScene_HitTest(t *testing.T) {
	f, dir := fixture(t)
	s := Build(f, dir, State{}, testConfig())

	id, ok := s.HitTest(Point{X: 150, Y: 100}, "")
	require.True(t, ok)
	assert.Equal(t, "b", id)

	_, ok = s.HitTest(Point{X: 150, Y: 100}, "b")
	assert.False(t, ok)
	id, ok = s.HitTest(Point{X: 150, Y: 170}, "")
	require.True(t, ok, "inactive cards are hit; the drop is refused later")
	assert.Equal(t, "c", id)
	_, ok = s.HitTest(Point{X: 110, Y: 60}, "")
	assert.False(t, ok)
}

func TestScene_HitTestOverlapLastWins(t *testing.T) {
	s := &Scene{Cards: []Card{
		{ID: "under", Rect: Rect{X: 0, Y: 0, W: 50, H: 50}},
		{ID: "over", Rect: Rect{X: 25, Y: 25, W: 50, H: 50}},
	}}

	id, ok := s.HitTest(Point{X: 30, Y: 30}, "")
	require.True(t, ok)
	assert.Equal(t, "over", id)
	id, _ = s.HitTest(Point{X: 30, Y: 30}, "over")
	assert.Equal(t, "under", id)
}

func TestBuild_Empty(t *testing.T) {
	s := Build(hierarchy.New(), directory.NewMemory(), State{}, DefaultConfig())
	assert.True(t, s.Empty())
	assert.Equal(t, Rect{}, s.Bounds)
}

func TestGeometry_Anchors(t *testing.T) {
	r := Rect{X: 10, Y: 20, W: 100, H: 40}
	assert.Equal(t, Point{X: 60, Y: 20}, r.TopCenter())
	assert.Equal(t, Point{X: 60, Y: 60}, r.BottomCenter())

	assert.True(t, Segment{From: Point{X: 0, Y: 5}, To: Point{X: 30, Y: 5}}.Horizontal())
	assert.False(t, Segment{From: Point{X: 0, Y: 5}, To: Point{X: 0, Y: 30}}.Horizontal())
}
