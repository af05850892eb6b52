// Package viewport holds the zoom and pan applied to the rendered chart and
// the mappings between tree, canvas and minimap coordinates.
//
// The chart is drawn at Sidebar pixels from the canvas's left edge and
// scaled around its top-centre, then translated by the pan:
//
//	screen.x = Sidebar + W/2 + (x - W/2)*zoom + panX
//	screen.y = y*zoom + panY
//
// where W is the natural tree width.
package viewport

import (
	"fmt"
	"math"

	"orgterm/internal/layout"
)

const (
	MinZoom = 0.25
	MaxZoom = 2.0

	// ButtonStep is the zoom change of the zoom in/out controls.
	ButtonStep = 0.1
	// WheelStep is the zoom change per modifier+wheel notch.
	WheelStep = 0.05
)

// Config holds the fixed canvas reservations in pixels.
type Config struct {
	// Sidebar is the filter panel width on the canvas's left.
	Sidebar float64
	// TopOffset is the vertical pan after centring, leaving the root just
	// below the toolbar.
	TopOffset float64
	// FitReserveWidth and FitReserveHeight are removed from the canvas
	// before computing the fit zoom.
	FitReserveWidth  float64
	FitReserveHeight float64
	// WorldPadding surrounds the tree in the minimap world.
	WorldPadding float64
	// MinimapPadding is the inset of the minimap's drawable area.
	MinimapPadding float64
	// IndicatorMinWidth and IndicatorMinHeight keep the minimap viewport
	// indicator clickable when zoomed far out.
	IndicatorMinWidth  float64
	IndicatorMinHeight float64
}

func DefaultConfig() Config {
	return Config{
		Sidebar:            340,
		TopOffset:          40,
		FitReserveWidth:    360,
		FitReserveHeight:   80,
		WorldPadding:       400,
		MinimapPadding:     16,
		IndicatorMinWidth:  12,
		IndicatorMinHeight: 8,
	}
}

// Size is a width/height pair in pixels.
type Size struct {
	W, H float64
}

// Viewport is the current transform. It is derived state: it is recomputed
// by Center or Fit after every load and never persisted.
type Viewport struct {
	Zoom float64
	PanX float64
	PanY float64

	cfg Config
}

func New(cfg Config) *Viewport {
	return &Viewport{Zoom: 1, cfg: cfg}
}

func (v *Viewport) Config() Config {
	return v.cfg
}

// Clamp limits z to [MinZoom, MaxZoom].
func Clamp(z float64) float64 {
	return math.Max(MinZoom, math.Min(MaxZoom, z))
}

func roundTo(z, steps float64) float64 {
	return math.Round(z*steps) / steps
}

// ZoomIn adds ButtonStep, rounded to tenths.
func (v *Viewport) ZoomIn() float64 {
	v.Zoom = Clamp(roundTo(v.Zoom+ButtonStep, 10))
	return v.Zoom
}

// ZoomOut removes ButtonStep, rounded to tenths.
func (v *Viewport) ZoomOut() float64 {
	v.Zoom = Clamp(roundTo(v.Zoom-ButtonStep, 10))
	return v.Zoom
}

// Wheel zooms by WheelStep, rounded to twentieths. in is true for scroll up.
func (v *Viewport) Wheel(in bool) float64 {
	delta := -WheelStep
	if in {
		delta = WheelStep
	}
	v.Zoom = Clamp(roundTo(v.Zoom+delta, 20))
	return v.Zoom
}

func (v *Viewport) ResetZoom() {
	v.Zoom = 1
}

// SetZoom clamps and rounds z to the nearest 5%.
func (v *Viewport) SetZoom(z float64) {
	v.Zoom = Clamp(roundTo(z, 20))
}

// Pan accumulates a drag delta; zoom is unaffected.
func (v *Viewport) Pan(dx, dy float64) {
	v.PanX += dx
	v.PanY += dy
}

// Label is the zoom percentage shown next to the zoom controls.
func (v *Viewport) Label() string {
	return fmt.Sprintf("%d%%", int(math.Round(v.Zoom*100)))
}

// Center puts the tree's horizontal midpoint at the midpoint of the canvas
// area right of the sidebar and the root TopOffset below the top.
func (v *Viewport) Center(canvas Size, tree layout.Rect) {
	available := canvas.W - v.cfg.Sidebar
	v.PanX = (available - tree.W) / 2
	v.PanY = v.cfg.TopOffset
}

// Fit picks the largest zoom, at most 100%, that shows the whole tree
// inside the canvas less its reservations, then centres.
func (v *Viewport) Fit(canvas Size, tree layout.Rect) {
	if tree.W <= 0 || tree.H <= 0 {
		v.ResetZoom()
		v.Center(canvas, tree)
		return
	}
	zx := (canvas.W - v.cfg.FitReserveWidth) / tree.W
	zy := (canvas.H - v.cfg.FitReserveHeight) / tree.H
	v.SetZoom(math.Min(math.Min(zx, zy), 1))
	v.Center(canvas, tree)
}

// ToScreen maps a tree point to canvas pixels.
func (v *Viewport) ToScreen(p layout.Point, treeW float64) layout.Point {
	return layout.Point{
		X: v.cfg.Sidebar + treeW/2 + (p.X-treeW/2)*v.Zoom + v.PanX,
		Y: p.Y*v.Zoom + v.PanY,
	}
}

// ToTree maps canvas pixels back to a tree point.
func (v *Viewport) ToTree(p layout.Point, treeW float64) layout.Point {
	return layout.Point{
		X: (p.X-v.cfg.Sidebar-treeW/2-v.PanX)/v.Zoom + treeW/2,
		Y: (p.Y - v.PanY) / v.Zoom,
	}
}

// RectToScreen maps a tree rect to canvas pixels.
func (v *Viewport) RectToScreen(r layout.Rect, treeW float64) layout.Rect {
	p := v.ToScreen(layout.Point{X: r.X, Y: r.Y}, treeW)
	return layout.Rect{X: p.X, Y: p.Y, W: r.W * v.Zoom, H: r.H * v.Zoom}
}

// CenterOn pans so tree point p lands in the middle of the canvas area right
// of the sidebar.
func (v *Viewport) CenterOn(p layout.Point, canvas Size, treeW float64) {
	cx := v.cfg.Sidebar + (canvas.W-v.cfg.Sidebar)/2
	cy := canvas.H / 2
	v.PanX = cx - v.cfg.Sidebar - treeW/2 - (p.X-treeW/2)*v.Zoom
	v.PanY = cy - p.Y*v.Zoom
}

// World is the minimap's padded rectangle in tree coordinates.
func (v *Viewport) World(tree layout.Rect) layout.Rect {
	pad := v.cfg.WorldPadding
	return layout.Rect{X: -pad, Y: -pad, W: tree.W + 2*pad, H: tree.H + 2*pad}
}

func (v *Viewport) minimapInner(minimap layout.Rect) layout.Rect {
	pad := v.cfg.MinimapPadding
	return layout.Rect{
		X: minimap.X + pad,
		Y: minimap.Y + pad,
		W: math.Max(1, minimap.W-2*pad),
		H: math.Max(1, minimap.H-2*pad),
	}
}

func clamp01(f float64) float64 {
	return math.Max(0, math.Min(1, f))
}

// MinimapClick pans so the world point under click becomes the canvas
// centre. click and minimap share one coordinate space; positions outside
// the inner area clamp to its edge.
func (v *Viewport) MinimapClick(minimap layout.Rect, click layout.Point, canvas Size, tree layout.Rect) {
	inner := v.minimapInner(minimap)
	fx := clamp01((click.X - inner.X) / inner.W)
	fy := clamp01((click.Y - inner.Y) / inner.H)
	world := v.World(tree)
	p := layout.Point{X: world.X + fx*world.W, Y: world.Y + fy*world.H}
	v.CenterOn(p, canvas, tree.W)
}

// Indicator is the minimap rectangle showing the visible part of the world.
// It never leaves the minimap's inner area.
func (v *Viewport) Indicator(minimap layout.Rect, canvas Size, tree layout.Rect) layout.Rect {
	inner := v.minimapInner(minimap)
	world := v.World(tree)

	topLeft := v.ToTree(layout.Point{X: v.cfg.Sidebar, Y: 0}, tree.W)
	bottomRight := v.ToTree(layout.Point{X: canvas.W, Y: canvas.H}, tree.W)

	fx := (topLeft.X - world.X) / world.W
	fy := (topLeft.Y - world.Y) / world.H
	fw := math.Min(1, (bottomRight.X-topLeft.X)/world.W)
	fh := math.Min(1, (bottomRight.Y-topLeft.Y)/world.H)

	w := math.Min(inner.W, math.Max(v.cfg.IndicatorMinWidth, fw*inner.W))
	h := math.Min(inner.H, math.Max(v.cfg.IndicatorMinHeight, fh*inner.H))
	x := inner.X + math.Max(0, math.Min(inner.W-w, fx*inner.W))
	y := inner.Y + math.Max(0, math.Min(inner.H-h, fy*inner.H))
	return layout.Rect{X: x, Y: y, W: w, H: h}
}

// MinimapPoint maps a tree point into the minimap's inner area.
func (v *Viewport) MinimapPoint(minimap layout.Rect, tree layout.Rect, p layout.Point) layout.Point {
	inner := v.minimapInner(minimap)
	world := v.World(tree)
	return layout.Point{
		X: inner.X + (p.X-world.X)/world.W*inner.W,
		Y: inner.Y + (p.Y-world.Y)/world.H*inner.H,
	}
}
