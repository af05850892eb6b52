package main

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"

	"orgterm/internal/chart"
	"orgterm/internal/drag"
)

const syncTimeout = 30 * time.Second

func (m model) Init() tea.Cmd {
	return tea.Tick(m.config.SyncDelay, func(time.Time) tea.Msg {
		return syncTickMsg{}
	})
}

// startSync runs the remote exchange off the UI loop; the result comes back
// as a syncDoneMsg and is applied there.
func (m *model) startSync() tea.Cmd {
	if m.syncing {
		return nil
	}
	m.syncing = true
	svc := m.svc
	started := svc.Version()
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
		defer cancel()
		res, err := svc.RunSync(ctx)
		return syncDoneMsg{started: started, res: res, err: err}
	}
}

func (m *model) applySync(msg syncDoneMsg) {
	m.syncing = false
	switch m.svc.ApplySync(msg.started, msg.res, msg.err) {
	case chart.SyncApplied:
		m.successMessage = "Loaded the shared hierarchy"
		m.ensureSelection()
		m.fit()
	case chart.SyncPushed:
		m.successMessage = "Shared the local hierarchy"
	case chart.SyncKeptLocal:
		m.successMessage = "Kept local changes made during sync"
	case chart.SyncFailed:
		m.errorMessage = "Remote sync failed, working from the local cache"
	}
}

func (m *model) exportCmd(format ExportFormat) tea.Cmd {
	scene := m.scene()
	config := m.config
	path := exportName(format)
	return func() tea.Msg {
		return exportDoneMsg{path: path, err: exportFile(path, scene, config)}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.helpCache = nil
		if m.help {
			m.helpCache = m.renderHelp()
		}
		if !m.fitted {
			m.fitted = true
			m.fit()
		}
		return m, nil

	case syncTickMsg:
		return m, m.startSync()

	case syncDoneMsg:
		m.applySync(msg)
		return m, nil

	case directoryChangedMsg:
		m.svc.Refresh()
		m.ensureSelection()
		if m.mode == ModeAddEmployee {
			m.refreshCandidates()
		}
		return m, nil

	case exportDoneMsg:
		if msg.err != nil {
			m.log.WithError(msg.err).WithField("path", msg.path).Warn("export failed")
			m.showError(msg.err)
		} else {
			m.successMessage = "Exported " + msg.path
		}
		return m, nil

	case tea.BlurMsg:
		m.panning = false
		if m.drag.Active() {
			m.endDrag(drag.ErrWindowBlur)
		}
		return m, nil

	case tea.FocusMsg, tea.ResumeMsg:
		return m, nil

	case tea.MouseMsg:
		return m.handleMouse(msg)

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if msg.String() == "ctrl+z" {
			if m.drag.Active() {
				m.endDrag(drag.ErrHidden)
			}
			return m, tea.Suspend
		}
		if m.help {
			return m.handleHelpKey(msg)
		}
		if m.showLog {
			switch msg.String() {
			case "esc", "i", "q":
				m.showLog = false
			}
			return m, nil
		}
		switch m.mode {
		case ModeAddEmployee:
			return m.handleAddKey(msg)
		case ModeSearch:
			return m.handleSearchKey(msg)
		case ModeConfirm:
			return m.handleConfirmKey(msg)
		case ModeFilter:
			return m.handleFilterKey(msg)
		case ModeExport:
			return m.handleExportKey(msg)
		case ModeReassign:
			return m.handleReassignKey(msg)
		}
		return m.handleNormalKey(msg)
	}
	return m, nil
}

// endDrag aborts the active drag and reports why.
func (m *model) endDrag(cause error) {
	s := m.drag.Session()
	if s == nil || !m.drag.Abort(cause) {
		return
	}
	m.finishDrag(drag.Result{SourceID: s.SourceID, End: drag.EndAborted, Err: cause})
}

func (m model) handleNormalKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	m.clearMessages()
	switch key {
	case "q":
		if m.config.Confirmations {
			m.mode = ModeConfirm
			m.confirmAction = ConfirmQuit
			return m, nil
		}
		return m, tea.Quit
	case "?":
		m.help = true
		m.helpScroll = 0
		m.helpCache = m.renderHelp()
	case "h", "l", "k", "j", "left", "right", "up", "down",
		"H", "L", "K", "J", "shift+left", "shift+right", "shift+up", "shift+down":
		m.handlePan(key, m.getMoveSpeed(key))
	case "tab", "shift+tab", "ctrl+k", "ctrl+j", "ctrl+h", "ctrl+l",
		"alt+up", "alt+down", "alt+left", "alt+right":
		m.handleSelectMove(key)
	case "g":
		m.selectRoot()
	case "p":
		m.selectParent()
	case "{":
		m.selectSibling(false)
	case "}":
		m.selectSibling(true)
	case "+", "=":
		m.vp.ZoomIn()
	case "-":
		m.vp.ZoomOut()
	case "0":
		m.vp.ResetZoom()
	case "f":
		m.fit()
	case "c":
		m.center()
	case "a":
		if m.svc.Forest().Empty() {
			m.startAdd("")
		} else if m.selected == "" {
			m.errorMessage = "Select a manager first, or A to add a top-level employee"
		} else {
			m.startAdd(m.selected)
		}
	case "A":
		m.startAdd("")
	case "d", "x":
		if m.selected == "" {
			return m, nil
		}
		if !m.svc.Editable() {
			m.showError(chart.ErrReadOnly)
			return m, nil
		}
		if m.config.Confirmations {
			m.mode = ModeConfirm
			m.confirmAction = ConfirmRemoveEmployee
			m.confirmID = m.selected
			return m, nil
		}
		m.removeEmployee(m.selected)
	case " ", "enter":
		m.toggleCollapse(m.selected)
	case "E":
		m.svc.ExpandAll()
	case "m":
		m.startReassign()
	case "/":
		m.mode = ModeSearch
		m.input.SetValue(m.svc.Query())
		m.input.Placeholder = "name or title"
		m.input.Prompt = "Search: "
		m.input.Focus()
	case "<":
		m.cycleDepartment(-1)
	case ">":
		m.cycleDepartment(1)
	case "F":
		m.mode = ModeFilter
		m.filterCursor = 0
	case "R":
		m.mode = ModeConfirm
		m.confirmAction = ConfirmResetFilters
	case "s":
		if !m.svc.HasRemote() {
			m.errorMessage = "No remote store configured"
			return m, nil
		}
		return m, m.startSync()
	case "e":
		m.mode = ModeExport
	case "y":
		if err := copyTree(m.svc.Compact()); err != nil {
			m.showError(err)
		} else {
			m.successMessage = "Copied hierarchy JSON"
		}
	case "i":
		m.showLog = true
	case "esc":
		m.selected = ""
		m.svc.Search("")
	}
	return m, nil
}

func (m model) handleHelpKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "q", "?":
		m.help = false
		m.helpScroll = 0
	case "j", "down":
		lines := m.helpLines()
		visibleHeight := max(1, m.height-1)
		if m.helpScroll < max(0, len(lines)-visibleHeight) {
			m.helpScroll++
		}
	case "k", "up":
		if m.helpScroll > 0 {
			m.helpScroll--
		}
	}
	return m, nil
}

func (m model) handleAddKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.endInput()
		return m, nil
	case "enter":
		m.commitAdd()
		return m, nil
	case "up", "ctrl+p":
		if m.candidateIndex > 0 {
			m.candidateIndex--
		}
		return m, nil
	case "down", "ctrl+n":
		if m.candidateIndex < len(m.candidates)-1 {
			m.candidateIndex++
		}
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.candidateIndex = 0
	m.refreshCandidates()
	return m, cmd
}

func (m model) handleSearchKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.svc.Search("")
		m.endInput()
		return m, nil
	case "enter":
		first := m.svc.Search(m.input.Value())
		m.endInput()
		if first == "" {
			if m.svc.Query() != "" {
				m.errorMessage = fmt.Sprintf("No one on the chart matches %q", m.svc.Query())
			}
			return m, nil
		}
		m.focusCard(first)
		m.successMessage = fmt.Sprintf("%d matches", m.svc.Matches())
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.svc.Search(m.input.Value())
	return m, cmd
}

func (m model) handleConfirmKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y":
		m.mode = ModeNormal
		switch m.confirmAction {
		case ConfirmQuit:
			return m, tea.Quit
		case ConfirmRemoveEmployee:
			m.removeEmployee(m.confirmID)
		case ConfirmResetFilters:
			m.svc.ResetFilters()
			m.successMessage = "Filters cleared"
		}
		m.confirmID = ""
	case "n", "N", "esc":
		m.mode = ModeNormal
		m.confirmID = ""
	}
	return m, nil
}

func (m model) handleFilterKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	items := m.filterItems()
	switch msg.String() {
	case "esc", "F", "q":
		m.mode = ModeNormal
	case "j", "down":
		if m.filterCursor < len(items)-1 {
			m.filterCursor++
		}
	case "k", "up":
		if m.filterCursor > 0 {
			m.filterCursor--
		}
	case " ", "enter":
		m.toggleFilter()
		m.ensureSelection()
	case "r":
		m.svc.ResetFilters()
		m.ensureSelection()
	}
	return m, nil
}

func (m model) handleExportKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.mode = ModeNormal
	switch msg.String() {
	case "p":
		return m, m.exportCmd(ExportPNG)
	case "s":
		return m, m.exportCmd(ExportSVG)
	case "t":
		return m, m.exportCmd(ExportTXT)
	}
	return m, nil
}

func (m model) handleReassignKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	switch key {
	case "esc":
		m.focusCard(m.moveSource)
		m.moveSource = ""
		m.mode = ModeNormal
	case "enter", "m":
		m.commitReassign()
	case "tab", "shift+tab", "ctrl+k", "ctrl+j", "ctrl+h", "ctrl+l",
		"alt+up", "alt+down", "alt+left", "alt+right":
		m.handleSelectMove(key)
	case "g":
		m.selectRoot()
	case "p":
		m.selectParent()
	case "h", "l", "k", "j", "left", "right", "up", "down",
		"H", "L", "K", "J", "shift+left", "shift+right", "shift+up", "shift+down":
		m.handlePan(key, m.getMoveSpeed(key))
	}
	return m, nil
}

func (m model) handleMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.Button == tea.MouseButtonWheelUp || msg.Button == tea.MouseButtonWheelDown:
		up := msg.Button == tea.MouseButtonWheelUp
		if msg.Ctrl || msg.Alt {
			m.vp.Wheel(up)
			return m, nil
		}
		step := 3 * m.config.CellHeight
		if !up {
			step = -step
		}
		m.vp.Pan(0, step)
		return m, nil

	case msg.Button == tea.MouseButtonWheelLeft || msg.Button == tea.MouseButtonWheelRight:
		step := 6 * m.config.CellWidth
		if msg.Button == tea.MouseButtonWheelRight {
			step = -step
		}
		m.vp.Pan(step, 0)
		return m, nil

	case msg.Action == tea.MouseActionPress && msg.Button == tea.MouseButtonLeft:
		return m.handlePress(msg)

	case msg.Action == tea.MouseActionMotion:
		if m.drag.Active() {
			if !m.inChart(msg.X, msg.Y) {
				m.endDrag(drag.ErrPointerLeft)
				return m, nil
			}
			m.drag.PointerMove(m.treeAt(msg.X, msg.Y))
			return m, nil
		}
		if m.panning {
			p := m.pixelAt(msg.X, msg.Y)
			m.vp.Pan(p.X-m.lastMouse.X, p.Y-m.lastMouse.Y)
			m.lastMouse = p
		}
		return m, nil

	case msg.Action == tea.MouseActionRelease:
		m.panning = false
		if m.drag.Active() {
			res, err := m.drag.PointerUp(m.treeAt(msg.X, msg.Y))
			if err == nil {
				m.finishDrag(res)
			}
		}
		return m, nil
	}
	return m, nil
}

func (m model) handlePress(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	x, y := msg.X, msg.Y
	if m.mode != ModeNormal && m.mode != ModeReassign {
		return m, nil
	}
	m.clearMessages()

	if y < toolbarRows {
		out, in := m.zoomButtons()
		switch {
		case x >= out && x < out+3:
			m.vp.ZoomOut()
		case x >= in && x < in+3:
			m.vp.ZoomIn()
		}
		return m, nil
	}
	if mm := m.minimapBox(); !m.scene().Empty() && mm.contains(x, y) {
		mmPx := toPixelRect(mm, m.config.CellWidth, m.config.CellHeight)
		m.vp.MinimapClick(mmPx, m.pixelAt(x, y), m.screen(), m.scene().Bounds)
		return m, nil
	}
	if x < m.sidebarCols() {
		m.handleSidebarClick(y)
		return m, nil
	}
	if !m.inChart(x, y) {
		return m, nil
	}

	card, box, ok := m.cardAt(x, y)
	if !ok {
		m.panning = true
		m.lastMouse = m.pixelAt(x, y)
		return m, nil
	}
	if m.mode == ModeReassign {
		m.selected = card.ID
		m.commitReassign()
		return m, nil
	}
	m.selected = card.ID
	ctl, hasCtl := controlCell(box)
	onControl := hasCtl && card.HasChildren && ctl.contains(x, y)
	if onControl {
		m.toggleCollapse(card.ID)
		return m, nil
	}
	if _, err := m.drag.PointerDown(card.ID, m.treeAt(x, y), false); err != nil && !errors.Is(err, drag.ErrNotPermitted) {
		m.showError(err)
	}
	return m, nil
}

// handleSidebarClick selects the department pill drawn on row y.
func (m *model) handleSidebarClick(y int) {
	idx := y - sidebarPillRow
	pills := m.svc.Pills()
	if idx < 0 || idx >= len(pills) {
		return
	}
	m.selectPill(pills[idx])
}
