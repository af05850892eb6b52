package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

// Sidebar rows. Department pills start at sidebarPillRow.
const (
	sidebarHeaderRow = 1
	sidebarPillRow   = 2
)

var (
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
)

const helpMarkdown = `# orgterm

## Moving around

| Key | Action |
|---|---|
| h j k l, arrows | Pan the chart (Shift pans faster) |
| wheel | Pan up and down; Ctrl or Alt + wheel zooms |
| drag on empty space | Pan |
| click the minimap | Centre the view on that spot |
| + / - / 0 | Zoom in, zoom out, reset to 100% |
| f / c | Fit the whole chart, centre it |

## Selecting

| Key | Action |
|---|---|
| tab / shift+tab | Next and previous card |
| g / p | Top of the chart, manager of the selection |
| { / } | First and last colleague |
| ctrl+j / ctrl+k | First report, manager |
| space, enter | Collapse or expand the reports under the selection |
| E | Expand everything |

## Changing the chart

| Key | Action |
|---|---|
| drag a card | Drop it on someone to make them its manager |
| m | Move the selection: pick the new manager, then enter |
| a | Add someone under the selection (or the first person) |
| A | Add someone at the top level |
| d, x | Remove the selection and everyone under them |

Inactive people are greyed out. They cannot be moved and cannot take reports.

## Views

| Key | Action |
|---|---|
| < / > | Previous and next department view |
| / | Highlight people by name or title |
| F | Attribute filters: j/k to move, space to toggle, r to reset |
| R | Clear every filter |
| i | Activity log |

## Sharing

| Key | Action |
|---|---|
| s | Sync with the remote store |
| e | Export a snapshot: p PNG, s SVG, t text |
| y | Copy the hierarchy JSON |
| q, ctrl+c | Quit |
`

// renderHelp formats the help page for the current width.
func (m *model) renderHelp() []string {
	width := max(20, m.width-2)
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(width))
	if err != nil {
		return strings.Split(helpMarkdown, "\n")
	}
	out, err := r.Render(helpMarkdown)
	if err != nil {
		return strings.Split(helpMarkdown, "\n")
	}
	return strings.Split(strings.TrimRight(out, "\n"), "\n")
}

func (m model) helpLines() []string {
	if m.helpCache != nil {
		return m.helpCache
	}
	return m.renderHelp()
}

func (m model) helpView() string {
	helpLines := m.helpLines()
	visibleHeight := max(1, m.height-1)

	startLine := m.helpScroll
	if startLine >= len(helpLines) {
		startLine = max(0, len(helpLines)-visibleHeight)
	}
	endLine := min(len(helpLines), startLine+visibleHeight)

	result := strings.Join(helpLines[startLine:endLine], "\n")
	result += "\n" + fmt.Sprintf("Help (%d-%d of %d lines) | j/k to scroll, Esc to close",
		startLine+1, endLine, len(helpLines))
	return result
}

func (m model) logView() string {
	entries := m.svc.Audit().Entries()
	visibleHeight := max(1, m.height-1)
	lines := []string{"Activity", ""}
	if len(entries) == 0 {
		lines = append(lines, "  Nothing has changed yet.")
	}
	for _, e := range entries {
		who := e.User
		if who == "" {
			who = "someone"
		}
		line := fmt.Sprintf("  %s  %-12s %s", e.Timestamp.Local().Format("Jan 02 15:04"), who, e.String())
		lines = append(lines, runewidth.Truncate(line, m.width, "…"))
	}
	if len(lines) > visibleHeight {
		lines = lines[:visibleHeight]
	}
	for len(lines) < visibleHeight {
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n") + "\n" +
		fmt.Sprintf("Activity (%d entries) | Esc to close", len(entries))
}

func (m model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}
	if m.help {
		return m.helpView()
	}
	if m.showLog {
		return m.logView()
	}

	renderHeight := max(1, m.height-statusRows)
	c := NewCanvas(m.width, renderHeight, m.config.CellWidth, m.config.CellHeight)

	scene := m.scene()
	if scene.Empty() {
		m.drawEmptyState(c)
	} else {
		v := sceneView{scene: scene, vp: m.vp, selected: m.selected}
		if o, ok := m.drag.Overlay(); ok {
			v.overlay = &o
		}
		c.DrawScene(v)
		c.DrawMinimap(m.minimapBox(), scene, m.vp, m.screen())
	}
	m.drawSidebar(c)
	m.drawToolbar(c)

	lines := c.Lines(true)
	return strings.Join(lines, "\n") + "\n" + m.statusLine()
}

func (m model) drawEmptyState(c *Canvas) {
	msg := []string{"No one is on the chart yet."}
	if m.svc.Editable() {
		msg = append(msg, "Press a to add the first employee.")
	} else {
		msg = append(msg, "The chart is read-only.")
	}
	left := m.sidebarCols()
	mid := left + (m.width-left)/2
	top := c.height/2 - len(msg)/2
	for i, line := range msg {
		w := runewidth.StringWidth(line)
		c.text(mid-w/2, top+i, line, w, styleNone)
	}
}

const (
	toolbarTitle = " orgterm"
	toolbarSep   = "  │  "
)

// zoomButtons returns the toolbar columns of the zoom out and zoom in buttons.
func (m model) zoomButtons() (out, in int) {
	out = runewidth.StringWidth(toolbarTitle + toolbarSep)
	in = out + runewidth.StringWidth("[-] "+m.vp.Label()+" ")
	return out, in
}

func (m model) drawToolbar(c *Canvas) {
	parts := []string{toolbarTitle, "[-] " + m.vp.Label() + " [+]", m.svc.Department()}
	if q := m.svc.Query(); q != "" {
		parts = append(parts, fmt.Sprintf("%q: %d found", q, m.svc.Matches()))
	}
	if m.svc.Criteria().Active() {
		parts = append(parts, "filtered")
	}
	if !m.svc.Editable() {
		parts = append(parts, "read-only")
	}
	if m.syncing {
		parts = append(parts, "syncing…")
	}
	c.fill(cellRect{X: 0, Y: 0, W: c.width, H: toolbarRows}, stylePanel)
	c.text(0, 0, strings.Join(parts, toolbarSep), c.width, stylePanel)
}

func (m model) drawSidebar(c *Canvas) {
	w := m.sidebarCols()
	if w <= 0 {
		return
	}
	box := cellRect{X: 0, Y: toolbarRows, W: w, H: c.height - toolbarRows}
	c.fill(box, stylePanel)
	for y := box.Y; y < box.Y+box.H; y++ {
		c.set(w-1, y, '│', styleLine)
	}
	inner := w - 3

	c.text(1, sidebarHeaderRow, "Departments", inner, styleName)
	row := sidebarPillRow
	for _, p := range m.svc.Pills() {
		active := p.Label == m.svc.Department()
		mark, st := "○ ", stylePanel
		if active {
			mark, st = "● ", stylePanelActive
		}
		c.text(1, row, fmt.Sprintf("%s%s (%d)", mark, p.Label, p.Count), inner, st)
		row++
	}
	row++

	switch m.mode {
	case ModeAddEmployee:
		m.drawCandidates(c, row, inner)
	case ModeFilter:
		m.drawFilters(c, row, inner, box.Y+box.H)
	default:
		m.drawSelection(c, row, inner)
	}
}

func (m model) drawCandidates(c *Canvas, row, inner int) {
	title := "Add at the top level"
	if m.addParent != "" {
		title = "Add under " + m.name(m.addParent)
	}
	c.text(1, row, title, inner, styleName)
	row++
	c.text(1, row, fmt.Sprintf("%d matches", len(m.candidates)), inner, stylePanel)
	row++
	for i, e := range m.candidates {
		st, mark := stylePanel, "  "
		if i == m.candidateIndex {
			st, mark = stylePanelActive, "> "
		}
		label := e.DisplayName()
		if e.Department != "" {
			label += " · " + e.Department
		}
		c.text(1, row, mark+label, inner, st)
		row++
	}
}

func (m model) drawFilters(c *Canvas, row, inner, bottom int) {
	c.text(1, row, "Filters", inner, styleName)
	row++
	items := m.filterItems()
	// Keep the cursor in view.
	visible := max(1, bottom-row)
	start := 0
	if m.filterCursor >= visible {
		start = m.filterCursor - visible + 1
	}
	for i := start; i < len(items) && row < bottom; i++ {
		it := items[i]
		check := "[ ]"
		if m.filterChecked(it) {
			check = "[x]"
		}
		st := stylePanel
		if i == m.filterCursor {
			st = stylePanelActive
		}
		c.text(1, row, fmt.Sprintf("%s %s: %s (%d)", check, it.facet, it.value, it.count), inner, st)
		row++
	}
}

func (m model) drawSelection(c *Canvas, row, inner int) {
	if m.selected == "" {
		return
	}
	e, ok := m.svc.Directory().Get(m.selected)
	if !ok {
		return
	}
	c.text(1, row, e.DisplayName(), inner, styleName)
	row++
	for _, line := range []string{e.Title, e.Department, e.Location, e.Email, e.Phone, e.NormalizedStatus()} {
		if line == "" {
			continue
		}
		c.text(1, row, line, inner, stylePanel)
		row++
	}
	if card, ok := m.scene().Card(m.selected); ok {
		c.text(1, row, fmt.Sprintf("%s: %d", card.StatsLabel, card.Directs), inner, stylePanel)
	}
}

func (m model) statusLine() string {
	var status string
	switch m.mode {
	case ModeAddEmployee:
		status = fmt.Sprintf("Mode: %s | %s | ↑/↓=choose, Enter=add, Esc=cancel", m.mode, m.input.View())
	case ModeSearch:
		status = fmt.Sprintf("Mode: %s | %s | Enter=find, Esc=clear", m.mode, m.input.View())
	case ModeConfirm:
		var message string
		switch m.confirmAction {
		case ConfirmRemoveEmployee:
			message = fmt.Sprintf("Remove %s and everyone under them from the chart? (y/n)", m.name(m.confirmID))
		case ConfirmQuit:
			message = "Quit orgterm? (y/n)"
		case ConfirmResetFilters:
			message = "Clear the department view, filters and search? (y/n)"
		}
		status = fmt.Sprintf("Mode: CONFIRM | %s", message)
	case ModeFilter:
		status = "Mode: FILTER | j/k=move, Space=toggle, r=reset, Esc=done"
	case ModeExport:
		status = "Mode: EXPORT | p=PNG, s=SVG, t=text, Esc=cancel"
	case ModeReassign:
		status = fmt.Sprintf("Mode: REASSIGN | Moving %s | select the new manager, Enter=confirm, Esc=cancel", m.name(m.moveSource))
	default:
		status = fmt.Sprintf("Mode: %s | Zoom: %s | %s", m.mode, m.vp.Label(), m.svc.Department())
		if m.selected != "" {
			status += " | Selected: " + m.name(m.selected)
		}
		if s := m.drag.Session(); s != nil {
			status += " | Moving " + m.name(s.SourceID)
		}
	}
	if m.mode != ModeConfirm {
		switch {
		case m.errorMessage != "":
			status += " | " + errorStyle.Render("ERROR: "+m.errorMessage)
		case m.successMessage != "":
			status += " | " + okStyle.Render(m.successMessage)
		case m.mode == ModeNormal:
			status += " | ? for help | q to quit"
		}
	}
	return status
}
