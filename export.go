package main

import (
	"image/color"
	"os"
	"strconv"
	"strings"

	svg "github.com/ajstarks/svgo"
	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/pkg/errors"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"

	"orgterm/internal/layout"
	"orgterm/internal/viewport"
)

const exportPadding = 40.0

var errNothingToExport = errors.New("nothing to export")

var (
	cardFill     = color.White
	inactiveFill = color.RGBA{0xe5, 0xe7, 0xeb, 0xff}
	lineColor    = color.RGBA{0x9c, 0xa3, 0xaf, 0xff}
	textColor    = color.Black
	mutedColor   = color.RGBA{0x6b, 0x72, 0x80, 0xff}
)

func exportPNG(filename string, scene *layout.Scene) error {
	if scene == nil || scene.Empty() {
		return errNothingToExport
	}

	imageWidth := int(scene.Bounds.W + 2*exportPadding)
	imageHeight := int(scene.Bounds.H + 2*exportPadding)

	dc := gg.NewContext(imageWidth, imageHeight)
	dc.SetColor(color.White)
	dc.Clear()

	ttfFont, err := truetype.Parse(gomono.TTF)
	if err != nil {
		return errors.Wrap(err, "parse font")
	}
	face := truetype.NewFace(ttfFont, &truetype.Options{
		Size:    12,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	dc.SetFontFace(face)

	// Connectors first so cards sit on top of them.
	dc.SetLineWidth(2)
	dc.SetColor(lineColor)
	for _, g := range scene.Groups {
		for _, s := range groupSegments(g) {
			dc.DrawLine(s.From.X+exportPadding, s.From.Y+exportPadding, s.To.X+exportPadding, s.To.Y+exportPadding)
			dc.Stroke()
		}
	}

	for _, card := range scene.Cards {
		drawCardPNG(dc, card)
	}

	return errors.Wrapf(dc.SavePNG(filename), "write %s", filename)
}

func drawCardPNG(dc *gg.Context, card layout.Card) {
	r := card.Rect.Translate(exportPadding, exportPadding)

	var fill color.Color = cardFill
	if card.Inactive || card.Missing {
		fill = inactiveFill
	}
	dc.SetColor(fill)
	dc.DrawRoundedRectangle(r.X, r.Y, r.W, r.H, 8)
	dc.Fill()

	dc.SetLineWidth(1)
	dc.SetColor(lineColor)
	if card.Highlight {
		dc.SetLineWidth(2)
		dc.SetColor(color.RGBA{0xf5, 0x9e, 0x0b, 0xff})
	}
	dc.DrawRoundedRectangle(r.X, r.Y, r.W, r.H, 8)
	dc.Stroke()

	lineHeight := 16.0
	y := r.Y + 20
	for i, line := range cardLines(card) {
		dc.SetColor(textColor)
		if i > 0 || card.Inactive {
			dc.SetColor(mutedColor)
		}
		dc.DrawStringAnchored(line, r.X+r.W/2, y+float64(i)*lineHeight, 0.5, 0.5)
	}
}

// groupSegments lists the straight pieces of a connector group.
func groupSegments(g layout.Group) []layout.Segment {
	segs := []layout.Segment{g.Stem}
	if g.Bus != nil {
		segs = append(segs, *g.Bus)
	}
	return append(segs, g.Drops...)
}

func exportSVG(filename string, scene *layout.Scene) error {
	if scene == nil || scene.Empty() {
		return errNothingToExport
	}
	f, err := os.Create(filename)
	if err != nil {
		return errors.Wrapf(err, "create %s", filename)
	}
	defer f.Close()

	pad := int(exportPadding)
	canvas := svg.New(f)
	canvas.Start(int(scene.Bounds.W)+2*pad, int(scene.Bounds.H)+2*pad)
	canvas.Rect(0, 0, int(scene.Bounds.W)+2*pad, int(scene.Bounds.H)+2*pad, "fill:white")

	for _, g := range scene.Groups {
		for _, s := range groupSegments(g) {
			canvas.Line(int(s.From.X)+pad, int(s.From.Y)+pad, int(s.To.X)+pad, int(s.To.Y)+pad,
				"stroke:#9ca3af;stroke-width:2")
		}
	}

	for _, card := range scene.Cards {
		x, y := int(card.Rect.X)+pad, int(card.Rect.Y)+pad
		w, h := int(card.Rect.W), int(card.Rect.H)
		fill := "#ffffff"
		if card.Inactive || card.Missing {
			fill = "#e5e7eb"
		}
		stroke := "#9ca3af"
		if card.Highlight {
			stroke = "#f59e0b"
		}
		canvas.Roundrect(x, y, w, h, 8, 8, "fill:"+fill+";stroke:"+stroke)
		for i, line := range cardLines(card) {
			style := "text-anchor:middle;font-family:monospace;font-size:12px;fill:#6b7280"
			if i == 0 {
				style = "text-anchor:middle;font-family:monospace;font-size:13px;font-weight:bold;fill:#111827"
			}
			canvas.Text(x+w/2, y+24+i*16, line, style)
		}
	}

	canvas.End()
	return nil
}

// exportTXT rasterizes the whole chart at 100% without styling.
func exportTXT(filename string, scene *layout.Scene, config *Config) error {
	if scene == nil || scene.Empty() {
		return errNothingToExport
	}
	lines := renderPlain(scene, config.CellWidth, config.CellHeight)
	return errors.Wrapf(os.WriteFile(filename, []byte(strings.Join(lines, "\n")+"\n"), 0o644), "write %s", filename)
}

// renderPlain draws scene at natural size on a canvas exactly large enough.
func renderPlain(scene *layout.Scene, cellW, cellH float64) []string {
	vp := viewport.New(viewport.Config{})
	cols := int(scene.Bounds.W/cellW) + 2
	rows := int(scene.Bounds.H/cellH) + 2
	c := NewCanvas(cols, rows, cellW, cellH)
	c.DrawScene(sceneView{scene: scene, vp: vp})
	lines := c.Lines(false)
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " ")
	}
	return lines
}

func exportName(format ExportFormat) string {
	return "orgchart-" + strconv.FormatInt(nowFunc().Unix(), 10) + format.Ext()
}
