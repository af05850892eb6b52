package main

import (
	"context"
	"io"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orgterm/internal/chart"
	"orgterm/internal/directory"
	"orgterm/internal/hierarchy"
	"orgterm/internal/store"
)

func newTestModel(t *testing.T, config *Config, ids ...[2]string) model {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	log := logrus.NewEntry(logger)

	p := store.NewPersister(store.NewMemoryCache(0), store.WithLogger(log))
	svc := chart.New(testDirectory(), p, chart.WithLogger(log))
	t.Cleanup(func() { _ = svc.Close(context.Background()) })
	for _, pair := range ids {
		require.NoError(t, svc.AddEmployee(pair[0], pair[1]))
	}
	if config.ReadOnly {
		svc = chart.New(testDirectory(), p, chart.WithLogger(log), chart.WithEditable(false))
		require.NoError(t, svc.Load(context.Background()))
		readOnly := svc
		t.Cleanup(func() { _ = readOnly.Close(context.Background()) })
	}

	m := initialModel(config, svc, log)
	return send(t, m, tea.WindowSizeMsg{Width: 220, Height: 60})
}

// threeCards is Ada with Bo and Cy reporting to her.
var threeCards = [][2]string{{"E1", ""}, {"E2", "E1"}, {"E3", "E1"}}

func send(t *testing.T, m model, msg tea.Msg) model {
	t.Helper()
	next, _ := m.Update(msg)
	return next.(model)
}

func keys(t *testing.T, m model, ks ...string) model {
	t.Helper()
	for _, k := range ks {
		m = send(t, m, keyMsg(k))
	}
	return m
}

func keyMsg(k string) tea.KeyMsg {
	switch k {
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEscape}
	case " ":
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	case "ctrl+z":
		return tea.KeyMsg{Type: tea.KeyCtrlZ}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
}

// cellOf is the middle cell of the card drawn for id.
func cellOf(t *testing.T, m model, id string) (int, int) {
	t.Helper()
	scene := m.scene()
	card, ok := scene.Card(id)
	require.True(t, ok, "no card for %s", id)
	b := cardBox(m.vp.RectToScreen(card.Rect, scene.Bounds.W), m.config.CellWidth, m.config.CellHeight)
	return b.X + b.W/2, b.Y + b.H/2
}

func press(x, y int) tea.MouseMsg {
	return tea.MouseMsg{X: x, Y: y, Button: tea.MouseButtonLeft, Action: tea.MouseActionPress}
}

func motion(x, y int) tea.MouseMsg {
	return tea.MouseMsg{X: x, Y: y, Button: tea.MouseButtonLeft, Action: tea.MouseActionMotion}
}

func release(x, y int) tea.MouseMsg {
	return tea.MouseMsg{X: x, Y: y, Button: tea.MouseButtonNone, Action: tea.MouseActionRelease}
}

func leaf(id string, children ...hierarchy.CompactNode) hierarchy.CompactNode {
	if children == nil {
		children = []hierarchy.CompactNode{}
	}
	return hierarchy.CompactNode{ID: id, Children: children}
}

func TestModel_FirstResizeFits(t *testing.T) {
	m := newTestModel(t, defaultConfig(), threeCards...)
	assert.True(t, m.fitted)
	assert.Equal(t, 1.0, m.vp.Zoom)
	assert.Equal(t, m.config.TopOffset, m.vp.PanY)
}

func TestModel_ZoomKeys(t *testing.T) {
	m := newTestModel(t, defaultConfig(), threeCards...)

	m = keys(t, m, "-")
	assert.InDelta(t, 0.9, m.vp.Zoom, 1e-9)
	m = keys(t, m, "0")
	assert.Equal(t, 1.0, m.vp.Zoom)
	m = keys(t, m, "+", "+")
	assert.InDelta(t, 1.2, m.vp.Zoom, 1e-9)
	assert.Equal(t, "120%", m.vp.Label())
}

func TestModel_SelectionKeys(t *testing.T) {
	m := newTestModel(t, defaultConfig(), threeCards...)

	m = keys(t, m, "tab")
	assert.Equal(t, "E1", m.selected)
	m = keys(t, m, "tab")
	assert.Equal(t, "E2", m.selected)
	m = keys(t, m, "}")
	assert.Equal(t, "E3", m.selected)
	m = keys(t, m, "p")
	assert.Equal(t, "E1", m.selected)
	m = keys(t, m, "esc")
	assert.Empty(t, m.selected)
	m = keys(t, m, "g")
	assert.Equal(t, "E1", m.selected)
}

func TestModel_DragReassigns(t *testing.T) {
	m := newTestModel(t, defaultConfig(), threeCards...)
	bx, by := cellOf(t, m, "E2")
	cx, cy := cellOf(t, m, "E3")

	m = send(t, m, press(bx, by))
	require.True(t, m.drag.Active())
	m = send(t, m, motion(cx, cy))
	assert.Equal(t, "E3", m.drag.Session().TargetID)
	assert.Contains(t, m.View(), "Moving Bo")

	m = send(t, m, release(cx, cy))
	assert.False(t, m.drag.Active())
	assert.Equal(t, "Bo now reports to Cy", m.successMessage)
	assert.Equal(t, "E2", m.selected)
	assert.Equal(t, []hierarchy.CompactNode{leaf("E1", leaf("E3", leaf("E2")))}, m.svc.Compact())
}

func TestModel_DragWhileSearching(t *testing.T) {
	m := newTestModel(t, defaultConfig(), threeCards...)
	m = keys(t, m, "/", "a", "d", "a", "enter")
	require.Equal(t, "E1", m.selected)
	faded, _ := m.scene().Card("E2")
	require.True(t, faded.Faded)

	bx, by := cellOf(t, m, "E2")
	cx, cy := cellOf(t, m, "E3")
	m = send(t, m, press(bx, by))
	require.True(t, m.drag.Active(), "search results do not lock cards")
	m = send(t, m, motion(cx, cy))
	assert.Equal(t, "E3", m.drag.Session().TargetID)
	m = send(t, m, release(cx, cy))

	assert.Equal(t, "Bo now reports to Cy", m.successMessage)
	assert.Equal(t, []hierarchy.CompactNode{leaf("E1", leaf("E3", leaf("E2")))}, m.svc.Compact())
}

func TestModel_DragOntoOwnReportRejected(t *testing.T) {
	m := newTestModel(t, defaultConfig(), threeCards...)
	ax, ay := cellOf(t, m, "E1")
	bx, by := cellOf(t, m, "E2")
	before := m.svc.Compact()

	m = send(t, m, press(ax, ay))
	m = send(t, m, motion(bx, by))
	m = send(t, m, release(bx, by))

	assert.Contains(t, m.errorMessage, hierarchy.ErrCycle.Error())
	assert.Equal(t, before, m.svc.Compact())
}

func TestModel_DropOnEmptySpaceChangesNothing(t *testing.T) {
	m := newTestModel(t, defaultConfig(), threeCards...)
	bx, by := cellOf(t, m, "E2")
	before := m.svc.Compact()

	m = send(t, m, press(bx, by))
	m = send(t, m, release(bx, m.height-4))

	assert.False(t, m.drag.Active())
	assert.Empty(t, m.errorMessage)
	assert.Equal(t, before, m.svc.Compact())
}

func TestModel_BlurAbortsDrag(t *testing.T) {
	m := newTestModel(t, defaultConfig(), threeCards...)
	bx, by := cellOf(t, m, "E2")
	cx, cy := cellOf(t, m, "E3")
	before := m.svc.Compact()

	m = send(t, m, press(bx, by))
	m = send(t, m, motion(cx, cy))
	m = send(t, m, tea.BlurMsg{})

	assert.False(t, m.drag.Active())
	assert.Equal(t, "Move cancelled: window lost focus", m.errorMessage)
	assert.Equal(t, before, m.svc.Compact())

	// The release that follows is ignored.
	m = send(t, m, release(cx, cy))
	assert.Equal(t, before, m.svc.Compact())
}

func TestModel_PointerLeavingChartAbortsDrag(t *testing.T) {
	m := newTestModel(t, defaultConfig(), threeCards...)
	bx, by := cellOf(t, m, "E2")

	m = send(t, m, press(bx, by))
	m = send(t, m, motion(2, by))

	assert.False(t, m.drag.Active())
	assert.Equal(t, "Move cancelled: pointer left the chart", m.errorMessage)
}

func TestModel_SuspendAbortsDrag(t *testing.T) {
	m := newTestModel(t, defaultConfig(), threeCards...)
	bx, by := cellOf(t, m, "E2")

	m = send(t, m, press(bx, by))
	next, cmd := m.Update(keyMsg("ctrl+z"))
	m = next.(model)

	assert.NotNil(t, cmd)
	assert.False(t, m.drag.Active())
	assert.Equal(t, "Move cancelled: window hidden", m.errorMessage)
}

func TestModel_ReadOnlyNeverDrags(t *testing.T) {
	config := defaultConfig()
	config.ReadOnly = true
	m := newTestModel(t, config, threeCards...)
	bx, by := cellOf(t, m, "E2")

	m = send(t, m, press(bx, by))
	assert.False(t, m.drag.Active())
	assert.Empty(t, m.errorMessage)
	assert.Equal(t, "E2", m.selected)

	m = keys(t, m, "a")
	assert.Equal(t, chart.ErrReadOnly.Error(), m.errorMessage)
	assert.Equal(t, ModeNormal, m.mode)
	assert.Contains(t, m.View(), "read-only")
}

func TestModel_CollapseKey(t *testing.T) {
	m := newTestModel(t, defaultConfig(), threeCards...)

	m = keys(t, m, "tab", " ")
	assert.True(t, m.svc.Collapsed("E1"))
	assert.Equal(t, "Collapsed Ada", m.successMessage)
	_, ok := m.scene().Card("E2")
	assert.False(t, ok)

	m = keys(t, m, " ")
	assert.False(t, m.svc.Collapsed("E1"))
	assert.Equal(t, "Expanded Ada", m.successMessage)
}

func TestModel_CollapseToggleClick(t *testing.T) {
	m := newTestModel(t, defaultConfig(), threeCards...)
	card, _ := m.scene().Card("E1")
	box := cardBox(m.vp.RectToScreen(card.Rect, m.scene().Bounds.W), m.config.CellWidth, m.config.CellHeight)
	ctl, ok := controlCell(box)
	require.True(t, ok)

	m = send(t, m, press(ctl.X+1, ctl.Y))
	assert.True(t, m.svc.Collapsed("E1"))
	assert.False(t, m.drag.Active())
}

func TestModel_AddFirstEmployee(t *testing.T) {
	m := newTestModel(t, defaultConfig())
	assert.Contains(t, m.View(), "No one is on the chart yet.")

	m = keys(t, m, "a")
	require.Equal(t, ModeAddEmployee, m.mode)
	assert.Len(t, m.candidates, 3, "inactive employees are not offered")

	m = keys(t, m, "C", "y")
	require.NotEmpty(t, m.candidates)
	assert.Equal(t, "E3", m.candidates[0].ID)

	m = keys(t, m, "enter")
	assert.Equal(t, ModeNormal, m.mode)
	assert.Equal(t, "Added Cy", m.successMessage)
	assert.Equal(t, "E3", m.selected)
	assert.Equal(t, []hierarchy.CompactNode{leaf("E3")}, m.svc.Compact())
}

func TestModel_AddUnderSelection(t *testing.T) {
	m := newTestModel(t, defaultConfig(), [2]string{"E1", ""})

	m = keys(t, m, "tab", "a", "B", "o", "enter")
	assert.Equal(t, "Added Bo under Ada", m.successMessage)
	assert.Equal(t, []hierarchy.CompactNode{leaf("E1", leaf("E2"))}, m.svc.Compact())
}

func TestModel_RemoveAsksFirst(t *testing.T) {
	m := newTestModel(t, defaultConfig(), threeCards...)

	m = keys(t, m, "tab", "tab", "d")
	require.Equal(t, ModeConfirm, m.mode)
	assert.Contains(t, m.statusLine(), "Remove Bo and everyone under them")

	m = keys(t, m, "n")
	assert.Equal(t, ModeNormal, m.mode)
	assert.True(t, m.svc.Forest().Has("E2"))

	m = keys(t, m, "d", "y")
	assert.False(t, m.svc.Forest().Has("E2"))
	assert.Equal(t, "Removed Bo", m.successMessage)
	assert.Empty(t, m.selected)
}

func TestModel_ReassignByKeyboard(t *testing.T) {
	m := newTestModel(t, defaultConfig(), threeCards...)

	m = keys(t, m, "tab", "tab", "m")
	require.Equal(t, ModeReassign, m.mode)
	assert.Equal(t, "E2", m.moveSource)

	m = keys(t, m, "tab", "enter")
	assert.Equal(t, ModeNormal, m.mode)
	assert.Equal(t, "Bo now reports to Cy", m.successMessage)
	assert.Equal(t, []hierarchy.CompactNode{leaf("E1", leaf("E3", leaf("E2")))}, m.svc.Compact())
}

func TestModel_ReassignInactiveByKeyboard(t *testing.T) {
	m := newTestModel(t, defaultConfig(), threeCards...)
	m.svc.Directory().(*directory.Memory).Put(directory.Employee{ID: "E2", Name: "Bo", Department: "Eng", Status: "inactive"})
	m.svc.Refresh()
	before := m.svc.Compact()

	m = keys(t, m, "tab", "tab", "m")
	require.Equal(t, "E2", m.moveSource)
	m = keys(t, m, "tab", "enter")

	assert.Equal(t, ModeNormal, m.mode)
	assert.Contains(t, m.errorMessage, chart.ErrInactive.Error())
	assert.Equal(t, before, m.svc.Compact())
}

func TestModel_SiblingJumps(t *testing.T) {
	m := newTestModel(t, defaultConfig(), threeCards...)

	m = keys(t, m, "tab", "tab")
	require.Equal(t, "E2", m.selected)
	m = keys(t, m, "}")
	assert.Equal(t, "E3", m.selected)
	m = keys(t, m, "{")
	assert.Equal(t, "E2", m.selected)
}

func TestModel_SearchFocusesFirstMatch(t *testing.T) {
	m := newTestModel(t, defaultConfig(), threeCards...)

	m = keys(t, m, "/")
	require.Equal(t, ModeSearch, m.mode)
	m = keys(t, m, strings.Split("engineer", "")...)
	m = keys(t, m, "enter")

	assert.Equal(t, "E2", m.selected)
	assert.Equal(t, "1 matches", m.successMessage)
	card, _ := m.scene().Card("E2")
	assert.True(t, card.Highlight)

	m = keys(t, m, "esc", "/", "z", "z", "z", "enter")
	assert.Equal(t, `No one on the chart matches "zzz"`, m.errorMessage)
}

func TestModel_DepartmentCycle(t *testing.T) {
	m := newTestModel(t, defaultConfig(), threeCards...)

	m = keys(t, m, ">", ">")
	assert.Equal(t, "Sales", m.svc.Department())
	_, ok := m.scene().Card("E2")
	assert.False(t, ok, "Bo is outside Sales")
	_, ok = m.scene().Card("E1")
	assert.True(t, ok, "Ada leads the path to Cy")

	m = keys(t, m, "<", "<")
	assert.Equal(t, m.svc.Pills()[0].Label, m.svc.Department())
	_, ok = m.scene().Card("E2")
	assert.True(t, ok)
}

func TestModel_SidebarPillClick(t *testing.T) {
	m := newTestModel(t, defaultConfig(), threeCards...)
	pills := m.svc.Pills()
	require.GreaterOrEqual(t, len(pills), 3)

	m = send(t, m, press(2, sidebarPillRow+2))
	assert.Equal(t, pills[2].Label, m.svc.Department())
}

func TestModel_ToolbarZoomButtons(t *testing.T) {
	m := newTestModel(t, defaultConfig(), threeCards...)
	out, in := m.zoomButtons()

	m = send(t, m, press(in+1, 0))
	assert.InDelta(t, 1.1, m.vp.Zoom, 1e-9)
	m = send(t, m, press(out+1, 0))
	m = send(t, m, press(out+1, 0))
	assert.InDelta(t, 0.9, m.vp.Zoom, 1e-9)
}

func TestModel_WheelPansAndZooms(t *testing.T) {
	m := newTestModel(t, defaultConfig(), threeCards...)
	y := m.vp.PanY

	m = send(t, m, tea.MouseMsg{X: 100, Y: 20, Button: tea.MouseButtonWheelDown, Action: tea.MouseActionPress})
	assert.Equal(t, y-3*m.config.CellHeight, m.vp.PanY)

	m = send(t, m, tea.MouseMsg{X: 100, Y: 20, Button: tea.MouseButtonWheelUp, Action: tea.MouseActionPress, Ctrl: true})
	assert.InDelta(t, 1.05, m.vp.Zoom, 1e-9)
}

func TestModel_QuitConfirms(t *testing.T) {
	m := newTestModel(t, defaultConfig(), threeCards...)

	next, cmd := m.Update(keyMsg("q"))
	m = next.(model)
	assert.Nil(t, cmd)
	assert.Equal(t, ModeConfirm, m.mode)
	assert.Contains(t, m.statusLine(), "Quit orgterm?")

	_, cmd = m.Update(keyMsg("y"))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
}

func TestModel_View(t *testing.T) {
	m := newTestModel(t, defaultConfig(), threeCards...)
	m = keys(t, m, "tab")

	out := m.View()
	for _, want := range []string{"orgterm", "100%", "Departments", "Ada", "Cy", "Mode: NORMAL", "Selected: Ada"} {
		assert.Contains(t, out, want)
	}
	assert.Len(t, strings.Split(out, "\n"), m.height)
}

func TestModel_LogOverlay(t *testing.T) {
	m := newTestModel(t, defaultConfig(), threeCards...)

	m = keys(t, m, "i")
	out := m.View()
	assert.Contains(t, out, "Set new organization head Ada")
	assert.Contains(t, out, "Activity (3 entries)")

	m = keys(t, m, "esc")
	assert.False(t, m.showLog)
}

func TestModel_SyncWithoutRemote(t *testing.T) {
	m := newTestModel(t, defaultConfig(), threeCards...)

	next, cmd := m.Update(keyMsg("s"))
	m = next.(model)
	assert.Nil(t, cmd)
	assert.Equal(t, "No remote store configured", m.errorMessage)
}

func TestModel_SyncTickRunsInBackground(t *testing.T) {
	m := newTestModel(t, defaultConfig(), threeCards...)

	next, cmd := m.Update(syncTickMsg{})
	m = next.(model)
	require.NotNil(t, cmd)
	assert.True(t, m.syncing)

	done, ok := cmd().(syncDoneMsg)
	require.True(t, ok)
	m = send(t, m, done)
	assert.False(t, m.syncing)
}
