package main

import (
	"fmt"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/sirupsen/logrus"

	"orgterm/internal/chart"
	"orgterm/internal/directory"
	"orgterm/internal/drag"
	"orgterm/internal/filter"
	"orgterm/internal/layout"
	"orgterm/internal/viewport"
)

func initialModel(config *Config, svc *chart.Service, log *logrus.Entry) model {
	ti := textinput.New()
	ti.CharLimit = 60
	ti.Width = 30

	return model{
		mode:   ModeNormal,
		config: config,
		log:    log,
		svc:    svc,
		vp:     viewport.New(config.viewportConfig()),
		drag: drag.New(svc, svc.Scene,
			drag.WithEditGate(svc.Editable),
			drag.WithDropCheck(svc.CanReassign),
			drag.WithLogger(log.WithField("component", "drag")),
		),
		input: ti,
	}
}

func (m *model) scene() *layout.Scene {
	return m.svc.Scene()
}

// screen is the terminal size in pixels.
func (m *model) screen() viewport.Size {
	return viewport.Size{W: float64(m.width) * m.config.CellWidth, H: float64(m.height) * m.config.CellHeight}
}

// pixelAt is the centre of terminal cell (x, y) in pixels.
func (m *model) pixelAt(x, y int) layout.Point {
	return layout.Point{
		X: (float64(x) + 0.5) * m.config.CellWidth,
		Y: (float64(y) + 0.5) * m.config.CellHeight,
	}
}

func (m *model) treeAt(x, y int) layout.Point {
	return m.vp.ToTree(m.pixelAt(x, y), m.scene().Bounds.W)
}

func (m *model) sidebarCols() int {
	return int(m.config.SidebarWidth / m.config.CellWidth)
}

func (m *model) minimapBox() cellRect {
	return cellRect{
		X: m.width - minimapWidth - 1,
		Y: m.height - statusRows - minimapHeight,
		W: minimapWidth,
		H: minimapHeight,
	}
}

// inChart reports whether cell (x, y) is on the open chart area.
func (m *model) inChart(x, y int) bool {
	if x < m.sidebarCols() || x >= m.width {
		return false
	}
	return y >= toolbarRows && y < m.height-statusRows
}

// cardAt returns the topmost card drawn over cell (x, y).
func (m *model) cardAt(x, y int) (layout.Card, cellRect, bool) {
	scene := m.scene()
	for i := len(scene.Cards) - 1; i >= 0; i-- {
		card := scene.Cards[i]
		box := cardBox(m.vp.RectToScreen(card.Rect, scene.Bounds.W), m.config.CellWidth, m.config.CellHeight)
		if box.contains(x, y) {
			return card, box, true
		}
	}
	return layout.Card{}, cellRect{}, false
}

func (m *model) fit() {
	m.vp.Fit(m.screen(), m.scene().Bounds)
}

func (m *model) center() {
	m.vp.Center(m.screen(), m.scene().Bounds)
}

// focusCard selects id and pans it to the middle of the chart area.
func (m *model) focusCard(id string) {
	card, ok := m.scene().Card(id)
	if !ok {
		return
	}
	m.selected = id
	m.vp.CenterOn(card.Rect.Center(), m.screen(), m.scene().Bounds.W)
}

func (m *model) name(id string) string {
	if e, ok := m.svc.Directory().Get(id); ok {
		return e.DisplayName()
	}
	return id
}

func (m *model) clearMessages() {
	m.errorMessage = ""
	m.successMessage = ""
}

func (m *model) showError(err error) {
	m.successMessage = ""
	m.errorMessage = err.Error()
}

// ensureSelection drops a selection that is no longer drawn.
func (m *model) ensureSelection() {
	if m.selected == "" {
		return
	}
	if _, ok := m.scene().Card(m.selected); !ok {
		m.selected = ""
	}
}

// selectNext moves the selection through the cards in display order.
func (m *model) selectNext(delta int) {
	cards := m.scene().Cards
	if len(cards) == 0 {
		return
	}
	idx := -1
	for i, c := range cards {
		if c.ID == m.selected {
			idx = i
			break
		}
	}
	switch {
	case idx < 0 && delta > 0:
		idx = 0
	case idx < 0:
		idx = len(cards) - 1
	default:
		idx = (idx + delta + len(cards)) % len(cards)
	}
	m.focusCard(cards[idx].ID)
}

func (m *model) selectRoot() {
	if roots := m.scene().RootIDs; len(roots) > 0 {
		m.focusCard(roots[0])
	}
}

func (m *model) selectParent() {
	n, ok := m.svc.Forest().Node(m.selected)
	if !ok || n.Parent() == nil {
		return
	}
	m.focusCard(n.ParentID())
}

// selectChild moves to the first drawn child of the selection.
func (m *model) selectChild() {
	if g, ok := m.scene().Group(m.selected); ok && len(g.ChildIDs) > 0 {
		m.focusCard(g.ChildIDs[0])
	}
}

// selectSibling jumps to the first or last drawn sibling.
func (m *model) selectSibling(last bool) {
	var ids []string
	for _, n := range m.svc.Forest().Siblings(m.selected) {
		if _, ok := m.scene().Card(n.EmployeeID); ok {
			ids = append(ids, n.EmployeeID)
		}
	}
	if len(ids) == 0 {
		return
	}
	if last {
		m.focusCard(ids[len(ids)-1])
	} else {
		m.focusCard(ids[0])
	}
}

func (m *model) toggleCollapse(id string) {
	n, ok := m.svc.Forest().Node(id)
	if !ok || len(n.Children) == 0 {
		return
	}
	if m.svc.ToggleCollapse(id) {
		m.successMessage = fmt.Sprintf("Collapsed %s", m.name(id))
	} else {
		m.successMessage = fmt.Sprintf("Expanded %s", m.name(id))
	}
}

// startAdd opens the add-to-chart search. parent "" adds a new root.
func (m *model) startAdd(parent string) {
	if !m.svc.Editable() {
		m.showError(chart.ErrReadOnly)
		return
	}
	m.clearMessages()
	m.mode = ModeAddEmployee
	m.addParent = parent
	m.input.SetValue("")
	m.input.Placeholder = "name, email, department or phone"
	m.input.Prompt = "Add: "
	m.input.Focus()
	m.refreshCandidates()
}

func (m *model) refreshCandidates() {
	m.candidates = m.svc.Candidates(m.input.Value())
	if len(m.candidates) > maxCandidates {
		m.candidates = m.candidates[:maxCandidates]
	}
	m.candidateIndex = clamp(m.candidateIndex, 0, max(0, len(m.candidates)-1))
}

func (m *model) commitAdd() {
	if len(m.candidates) == 0 {
		m.errorMessage = "No matching employees"
		return
	}
	e := m.candidates[m.candidateIndex]
	if err := m.svc.AddEmployee(e.ID, m.addParent); err != nil {
		m.showError(err)
		return
	}
	m.endInput()
	if m.addParent == "" {
		m.successMessage = fmt.Sprintf("Added %s", e.DisplayName())
	} else {
		m.successMessage = fmt.Sprintf("Added %s under %s", e.DisplayName(), m.name(m.addParent))
	}
	if m.svc.Forest().Len() == 1 {
		m.fit()
	}
	m.focusCard(e.ID)
}

func (m *model) endInput() {
	m.input.Blur()
	m.input.SetValue("")
	m.candidates = nil
	m.candidateIndex = 0
	m.mode = ModeNormal
}

func (m *model) removeEmployee(id string) {
	name := m.name(id)
	if err := m.svc.Remove(id); err != nil {
		m.showError(err)
		return
	}
	m.successMessage = fmt.Sprintf("Removed %s", name)
	m.ensureSelection()
}

func (m *model) startReassign() {
	if m.selected == "" {
		m.errorMessage = "Select someone to move first"
		return
	}
	if !m.svc.Editable() {
		m.showError(chart.ErrReadOnly)
		return
	}
	m.clearMessages()
	m.moveSource = m.selected
	m.mode = ModeReassign
}

// commitReassign moves moveSource under the current selection.
func (m *model) commitReassign() {
	src, dst := m.moveSource, m.selected
	m.moveSource = ""
	m.mode = ModeNormal
	if err := m.svc.Reassign(src, dst); err != nil {
		m.showError(err)
		return
	}
	m.successMessage = fmt.Sprintf("%s now reports to %s", m.name(src), m.name(dst))
	m.focusCard(src)
}

func (m *model) finishDrag(res drag.Result) {
	switch res.End {
	case drag.EndCommitted:
		m.successMessage = fmt.Sprintf("%s now reports to %s", m.name(res.SourceID), m.name(res.TargetID))
		m.selected = res.SourceID
	case drag.EndRejected:
		m.showError(res.Err)
	case drag.EndAborted:
		m.errorMessage = "Move cancelled: " + res.Err.Error()
	}
}

// cycleDepartment steps through the department pills.
func (m *model) cycleDepartment(delta int) {
	pills := m.svc.Pills()
	current := 0
	for i, p := range pills {
		if p.Label == m.svc.Department() {
			current = i
			break
		}
	}
	m.selectPill(pills[(current+delta+len(pills))%len(pills)])
}

func (m *model) selectPill(p filter.Pill) {
	if p.All {
		m.svc.SetDepartment(filter.AllDepartments)
	} else {
		m.svc.SetDepartment(p.Label)
	}
	m.ensureSelection()
	m.center()
}

// filterItems lists every toggleable attribute filter value.
func (m *model) filterItems() []filterItem {
	all := m.svc.Directory().All()
	var items []filterItem
	add := func(facet string, counts []directory.Count) {
		for _, c := range counts {
			items = append(items, filterItem{facet: facet, value: c.Name, count: c.Count})
		}
	}
	add("Department", directory.Departments(all))
	add("Location", directory.Locations(all))
	add("Status", directory.Statuses(all))
	return items
}

func (m *model) filterChecked(it filterItem) bool {
	c := m.svc.Criteria()
	var list []string
	switch it.facet {
	case "Department":
		list = c.Departments
	case "Location":
		list = c.Locations
	case "Status":
		list = c.Statuses
	}
	for _, v := range list {
		if v == it.value {
			return true
		}
	}
	return false
}

func (m *model) toggleFilter() {
	items := m.filterItems()
	if len(items) == 0 {
		return
	}
	it := items[clamp(m.filterCursor, 0, len(items)-1)]
	c := m.svc.Criteria()
	switch it.facet {
	case "Department":
		c.Departments = filter.Toggle(c.Departments, it.value)
	case "Location":
		c.Locations = filter.Toggle(c.Locations, it.value)
	case "Status":
		c.Statuses = filter.Toggle(c.Statuses, it.value)
	}
	m.svc.SetCriteria(c)
}
