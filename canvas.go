package main

import (
	"math"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"orgterm/internal/drag"
	"orgterm/internal/layout"
	"orgterm/internal/viewport"
)

type cellStyle int

const (
	styleNone cellStyle = iota
	styleLine
	styleCard
	styleName
	styleSelected
	styleHighlight
	styleInactive
	styleDimmed
	styleClone
	styleGhost
	styleLink
	styleBadge
	stylePanel
	stylePanelActive
	styleMinimap
	styleIndicator
)

var cellStyles = map[cellStyle]lipgloss.Style{
	styleLine:        lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
	styleCard:        lipgloss.NewStyle(),
	styleName:        lipgloss.NewStyle().Bold(true),
	styleSelected:    lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true),
	styleHighlight:   lipgloss.NewStyle().Foreground(lipgloss.Color("220")).Bold(true),
	styleInactive:    lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
	styleDimmed:      lipgloss.NewStyle().Faint(true),
	styleClone:       lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
	styleGhost:       lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
	styleLink:        lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
	styleBadge:       lipgloss.NewStyle().Foreground(lipgloss.Color("111")),
	stylePanel:       lipgloss.NewStyle().Foreground(lipgloss.Color("250")),
	stylePanelActive: lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true),
	styleMinimap:     lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
	styleIndicator:   lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
}

// Connector directions, merged per cell and resolved to a box-drawing rune.
const (
	linkUp uint8 = 1 << iota
	linkDown
	linkLeft
	linkRight
)

var linkRunes = map[uint8]rune{
	linkUp:                                   '│',
	linkDown:                                 '│',
	linkUp | linkDown:                        '│',
	linkLeft:                                 '─',
	linkRight:                                '─',
	linkLeft | linkRight:                     '─',
	linkDown | linkRight:                     '┌',
	linkDown | linkLeft:                      '┐',
	linkUp | linkRight:                       '└',
	linkUp | linkLeft:                        '┘',
	linkUp | linkDown | linkRight:            '├',
	linkUp | linkDown | linkLeft:             '┤',
	linkDown | linkLeft | linkRight:          '┬',
	linkUp | linkLeft | linkRight:            '┴',
	linkUp | linkDown | linkLeft | linkRight: '┼',
}

type cell struct {
	r     rune
	style cellStyle
	links uint8
	// cont marks the second column of a wide rune.
	cont bool
}

// cellRect is a box in terminal cells.
type cellRect struct {
	X, Y, W, H int
}

func (r cellRect) contains(x, y int) bool {
	return x >= r.X && x < r.X+r.W && y >= r.Y && y < r.Y+r.H
}

// Canvas rasterizes pixel geometry onto a grid of terminal cells.
type Canvas struct {
	width  int
	height int
	cellW  float64
	cellH  float64
	cells  [][]cell
}

func NewCanvas(width, height int, cellW, cellH float64) *Canvas {
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	c := &Canvas{width: width, height: height, cellW: cellW, cellH: cellH}
	c.cells = make([][]cell, height)
	for y := range c.cells {
		c.cells[y] = make([]cell, width)
		for x := range c.cells[y] {
			c.cells[y][x] = cell{r: ' '}
		}
	}
	return c
}

func (c *Canvas) col(px float64) int {
	return int(math.Floor(px / c.cellW))
}

func (c *Canvas) row(py float64) int {
	return int(math.Floor(py / c.cellH))
}

func (c *Canvas) toCells(r layout.Rect) cellRect {
	return toCellRect(r, c.cellW, c.cellH)
}

// toCellRect converts a pixel rect into the cells it covers.
func toCellRect(r layout.Rect, cellW, cellH float64) cellRect {
	x0, y0 := int(math.Floor(r.X/cellW)), int(math.Floor(r.Y/cellH))
	x1, y1 := int(math.Floor(r.Right()/cellW)), int(math.Floor(r.Bottom()/cellH))
	return cellRect{X: x0, Y: y0, W: max(1, x1-x0), H: max(1, y1-y0)}
}

func (c *Canvas) isValidPos(x, y int) bool {
	return y >= 0 && y < c.height && x >= 0 && x < c.width
}

func (c *Canvas) set(x, y int, r rune, style cellStyle) {
	if !c.isValidPos(x, y) {
		return
	}
	c.cells[y][x] = cell{r: r, style: style}
}

func (c *Canvas) restyle(x, y int, style cellStyle) {
	if c.isValidPos(x, y) {
		c.cells[y][x].style = style
	}
}

func (c *Canvas) at(x, y int) rune {
	if !c.isValidPos(x, y) {
		return 0
	}
	return c.cells[y][x].r
}

// text writes s from (x, y), clipped to maxW display columns.
func (c *Canvas) text(x, y int, s string, maxW int, style cellStyle) int {
	if maxW <= 0 {
		return 0
	}
	s = runewidth.Truncate(s, maxW, "…")
	col := x
	for _, r := range s {
		w := runewidth.RuneWidth(r)
		if w == 0 {
			continue
		}
		c.set(col, y, r, style)
		if w == 2 && c.isValidPos(col+1, y) {
			c.cells[y][col+1] = cell{style: style, cont: true}
		}
		col += w
	}
	return col - x
}

func (c *Canvas) fill(r cellRect, style cellStyle) {
	for y := r.Y; y < r.Y+r.H; y++ {
		for x := r.X; x < r.X+r.W; x++ {
			c.set(x, y, ' ', style)
		}
	}
}

func (c *Canvas) link(x, y int, dir uint8, style cellStyle) {
	if !c.isValidPos(x, y) {
		return
	}
	cl := &c.cells[y][x]
	cl.links |= dir
	cl.r = linkRunes[cl.links]
	cl.style = style
	cl.cont = false
}

func (c *Canvas) vline(x, y0, y1 int, style cellStyle) {
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	for y := y0; y <= y1; y++ {
		var dir uint8
		if y > y0 {
			dir |= linkUp
		}
		if y < y1 {
			dir |= linkDown
		}
		if dir == 0 {
			dir = linkUp | linkDown
		}
		c.link(x, y, dir, style)
	}
}

func (c *Canvas) hline(x0, x1, y int, style cellStyle) {
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	for x := x0; x <= x1; x++ {
		var dir uint8
		if x > x0 {
			dir |= linkLeft
		}
		if x < x1 {
			dir |= linkRight
		}
		if dir == 0 {
			dir = linkLeft | linkRight
		}
		c.link(x, y, dir, style)
	}
}

func (c *Canvas) drawBoxAt(r cellRect, isSelected bool, style cellStyle) {
	var corner, horizontal, vertical rune
	if isSelected {
		corner = '#'
		horizontal = '#'
		vertical = '#'
	} else {
		corner = '+'
		horizontal = '-'
		vertical = '|'
	}
	c.fill(r, style)
	for y := r.Y; y < r.Y+r.H; y++ {
		for x := r.X; x < r.X+r.W; x++ {
			if y == r.Y || y == r.Y+r.H-1 {
				if x == r.X || x == r.X+r.W-1 {
					c.set(x, y, corner, style)
				} else {
					c.set(x, y, horizontal, style)
				}
			} else if x == r.X || x == r.X+r.W-1 {
				c.set(x, y, vertical, style)
			}
		}
	}
}

// Lines renders the grid, styled through lipgloss when styled is true.
func (c *Canvas) Lines(styled bool) []string {
	out := make([]string, c.height)
	for y, row := range c.cells {
		var b strings.Builder
		var run strings.Builder
		current := styleNone
		flush := func() {
			if run.Len() == 0 {
				return
			}
			if st, ok := cellStyles[current]; ok && styled && current != styleNone {
				b.WriteString(st.Render(run.String()))
			} else {
				b.WriteString(run.String())
			}
			run.Reset()
		}
		for _, cl := range row {
			if cl.cont {
				continue
			}
			if cl.style != current {
				flush()
				current = cl.style
			}
			r := cl.r
			if r == 0 {
				r = ' '
			}
			run.WriteRune(r)
		}
		flush()
		out[y] = b.String()
	}
	return out
}

// sceneView is everything drawn in the chart area.
type sceneView struct {
	scene    *layout.Scene
	vp       *viewport.Viewport
	selected string
	overlay  *drag.Overlay
}

func (v sceneView) screenRect(r layout.Rect) layout.Rect {
	return v.vp.RectToScreen(r, v.scene.Bounds.W)
}

func (v sceneView) screenPoint(p layout.Point) layout.Point {
	return v.vp.ToScreen(p, v.scene.Bounds.W)
}

func (c *Canvas) cardBox(v sceneView, card layout.Card) cellRect {
	return cardBox(v.screenRect(card.Rect), c.cellW, c.cellH)
}

// cardBox is where a card with screen rect r is drawn, in cells.
func cardBox(r layout.Rect, cellW, cellH float64) cellRect {
	b := toCellRect(r, cellW, cellH)
	if b.W < 3 {
		b.W = 3
	}
	return b
}

// controlCell is the collapse toggle drawn on the card's bottom border.
func controlCell(b cellRect) (cellRect, bool) {
	if b.H < 3 || b.W < 7 {
		return cellRect{}, false
	}
	return cellRect{X: b.X + b.W - 4, Y: b.Y + b.H - 1, W: 3, H: 1}, true
}

func (c *Canvas) DrawScene(v sceneView) {
	if v.scene == nil {
		return
	}
	for _, g := range v.scene.Groups {
		c.drawGroup(v, g)
	}
	for _, card := range v.scene.Cards {
		c.drawCard(v, card)
	}
	if v.overlay != nil {
		c.drawOverlay(v, *v.overlay)
	}
}

func (c *Canvas) drawGroup(v sceneView, g layout.Group) {
	for _, s := range groupSegments(g) {
		from, to := v.screenPoint(s.From), v.screenPoint(s.To)
		if s.Horizontal() {
			c.hline(c.col(from.X), c.col(to.X), c.row(from.Y), styleLine)
			continue
		}
		// Drops stop above the child's border row.
		end := c.row(to.Y)
		if s.To.Y > g.Stem.To.Y {
			end--
		}
		c.vline(c.col(from.X), c.row(from.Y), end, styleLine)
	}
}

func cardStyle(card layout.Card, selected bool) cellStyle {
	switch {
	case card.Inactive || card.Missing:
		return styleInactive
	case card.Dimmed || card.Faded:
		return styleDimmed
	case selected:
		return styleSelected
	case card.Highlight:
		return styleHighlight
	}
	return styleCard
}

// cardLines is the text shown inside a card, most important first.
func cardLines(card layout.Card) []string {
	lines := []string{card.Name}
	if card.Title != "" {
		lines = append(lines, card.Title)
	}
	lines = append(lines, card.Badge)
	if card.Inactive {
		lines = append(lines, "Inactive")
	} else {
		lines = append(lines, card.StatsLabel+": "+strconv.Itoa(card.Directs))
	}
	return lines
}

func (c *Canvas) drawCard(v sceneView, card layout.Card) {
	selected := card.ID == v.selected
	style := cardStyle(card, selected)
	if v.overlay != nil && card.ID != v.overlay.TargetID && card.ID != v.overlay.SourceID && style == styleCard {
		style = styleDimmed
	}
	b := c.cardBox(v, card)
	c.drawCardAt(b, card, selected || card.Highlight, style)
}

func (c *Canvas) drawCardAt(b cellRect, card layout.Card, bold bool, style cellStyle) {
	if b.H < 3 {
		c.fill(b, style)
		c.text(b.X, b.Y, "["+card.Name+"]", b.W, style)
		return
	}
	c.drawBoxAt(b, bold, style)
	nameStyle := style
	if style == styleCard {
		nameStyle = styleName
	}
	for i, line := range cardLines(card) {
		y := b.Y + 1 + i
		if y >= b.Y+b.H-1 {
			break
		}
		st := style
		switch {
		case i == 0:
			st = nameStyle
		case line == card.Badge && style == styleCard:
			st = styleBadge
		}
		c.text(b.X+2, y, line, b.W-4, st)
	}
	if ctl, ok := controlCell(b); ok && card.HasChildren {
		label := "[-]"
		if card.Collapsed {
			label = "[+]"
		}
		c.text(ctl.X, ctl.Y, label, ctl.W, style)
	}
}

func (c *Canvas) drawOverlay(v sceneView, o drag.Overlay) {
	for _, p := range o.Link.Points(48) {
		sp := v.screenPoint(p)
		x, y := c.col(sp.X), c.row(sp.Y)
		if c.at(x, y) == ' ' {
			c.set(x, y, '·', styleLink)
		}
	}
	if src, ok := v.scene.Card(o.SourceID); ok {
		b := c.toCells(v.screenRect(o.Clone))
		if b.W < 3 {
			b.W = 3
		}
		clone := src
		clone.Badge = o.Badge
		c.drawCardAt(b, clone, true, styleClone)
	}
	if o.GhostLabel != "" {
		g := c.toCells(v.screenRect(o.Ghost))
		y := g.Y + g.H
		label := "v " + o.GhostLabel
		c.text(g.X, y, label, runewidth.StringWidth(label), styleGhost)
		for x := g.X; x < g.X+g.W; x++ {
			c.restyle(x, g.Y, styleGhost)
			c.restyle(x, g.Y+g.H-1, styleGhost)
		}
	}
}

// DrawMinimap draws every card as a dot inside box and the visible area as
// a frame. box is in cells; the viewport works in the same pixel space.
func (c *Canvas) DrawMinimap(box cellRect, scene *layout.Scene, vp *viewport.Viewport, screen viewport.Size) {
	c.fill(box, styleMinimap)
	c.drawBoxAt(box, false, styleMinimap)
	if scene == nil || scene.Empty() {
		return
	}
	mm := c.pixelRect(box)
	for _, card := range scene.Cards {
		p := vp.MinimapPoint(mm, scene.Bounds, card.Rect.Center())
		st := styleMinimap
		if card.Highlight {
			st = styleHighlight
		}
		c.set(c.col(p.X), c.row(p.Y), '•', st)
	}
	ind := c.toCells(vp.Indicator(mm, screen, scene.Bounds))
	ind = clipRect(ind, cellRect{X: box.X + 1, Y: box.Y + 1, W: box.W - 2, H: box.H - 2})
	if ind.W < 1 || ind.H < 1 {
		return
	}
	for x := ind.X; x < ind.X+ind.W; x++ {
		c.restyle(x, ind.Y, styleIndicator)
		c.restyle(x, ind.Y+ind.H-1, styleIndicator)
		if c.at(x, ind.Y) == ' ' {
			c.set(x, ind.Y, '·', styleIndicator)
		}
		if c.at(x, ind.Y+ind.H-1) == ' ' {
			c.set(x, ind.Y+ind.H-1, '·', styleIndicator)
		}
	}
	for y := ind.Y; y < ind.Y+ind.H; y++ {
		c.restyle(ind.X, y, styleIndicator)
		c.restyle(ind.X+ind.W-1, y, styleIndicator)
	}
}

func (c *Canvas) pixelRect(r cellRect) layout.Rect {
	return toPixelRect(r, c.cellW, c.cellH)
}

// toPixelRect is the inverse of toCellRect.
func toPixelRect(r cellRect, cellW, cellH float64) layout.Rect {
	return layout.Rect{
		X: float64(r.X) * cellW,
		Y: float64(r.Y) * cellH,
		W: float64(r.W) * cellW,
		H: float64(r.H) * cellH,
	}
}

func clipRect(r, bounds cellRect) cellRect {
	x0 := max(r.X, bounds.X)
	y0 := max(r.Y, bounds.Y)
	x1 := min(r.X+r.W, bounds.X+bounds.W)
	y1 := min(r.Y+r.H, bounds.Y+bounds.H)
	return cellRect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}
