package main

// handlePan moves the chart under the terminal. speed is in cells.
func (m *model) handlePan(key string, speed int) {
	dx := float64(speed) * m.config.CellWidth
	dy := float64(speed) * m.config.CellHeight
	switch key {
	case "h", "left", "H", "shift+left":
		m.vp.Pan(dx, 0)
	case "l", "right", "L", "shift+right":
		m.vp.Pan(-dx, 0)
	case "k", "up", "K", "shift+up":
		m.vp.Pan(0, dy)
	case "j", "down", "J", "shift+down":
		m.vp.Pan(0, -dy)
	}
}

func (m *model) getMoveSpeed(key string) int {
	switch key {
	case "H", "L", "K", "J", "shift+left", "shift+right", "shift+up", "shift+down":
		return panStep * 4
	default:
		return panStep
	}
}

// handleSelectMove walks the selection along reporting lines.
func (m *model) handleSelectMove(key string) {
	if m.selected == "" {
		m.selectRoot()
		return
	}
	switch key {
	case "ctrl+k", "alt+up":
		m.selectParent()
	case "ctrl+j", "alt+down":
		m.selectChild()
	case "ctrl+h", "alt+left", "shift+tab":
		m.selectNext(-1)
	case "ctrl+l", "alt+right", "tab":
		m.selectNext(1)
	}
}
