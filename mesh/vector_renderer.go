package mesh

import (
	"image/color"
	"image/png"
	"io"
	"math"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
)

// nrgbaToRGBA converts color.NRGBA to color.RGBA by premultiplying alpha
// This is needed for the canvas library which expects premultiplied RGBA
func nrgbaToRGBA(c color.NRGBA) color.RGBA {
	if c.A == 0 {
		return color.RGBA{0, 0, 0, 0}
	}
	if c.A == 255 {
		return color.RGBA{c.R, c.G, c.B, 255}
	}
	alpha32 := uint32(c.A)
	return color.RGBA{
		R: uint8((uint32(c.R) * alpha32) / 255),
		G: uint8((uint32(c.G) * alpha32) / 255),
		B: uint8((uint32(c.B) * alpha32) / 255),
		A: c.A,
	}
}

// MapPalette holds the colors used by both renderers.
type MapPalette struct {
	Beacon    color.NRGBA
	Reference color.NRGBA
	Scanner   color.NRGBA
	Link      color.NRGBA
}

// DefaultPalette returns the standard colors.
func DefaultPalette() MapPalette {
	return MapPalette{
		Beacon:    color.NRGBA{60, 60, 60, 255},
		Reference: color.NRGBA{0, 0, 139, 255},
		Scanner:   color.NRGBA{178, 34, 34, 255},
		Link:      color.NRGBA{100, 149, 237, 120},
	}
}

// worldBounds returns the XY extent of all beacons and scanner origins.
func worldBounds(res *Result) (minX, minY, maxX, maxY float64) {
	if res == nil {
		return 0, 0, 0, 0
	}
	minX, minY = math.MaxFloat64, math.MaxFloat64
	maxX, maxY = -math.MaxFloat64, -math.MaxFloat64
	grow := func(c Coordinate) {
		minX = math.Min(minX, float64(c.X))
		minY = math.Min(minY, float64(c.Y))
		maxX = math.Max(maxX, float64(c.X))
		maxY = math.Max(maxY, float64(c.Y))
	}
	for b := range res.Beacons {
		grow(b)
	}
	for _, p := range res.Placements {
		grow(p.Offset)
	}
	if minX > maxX {
		return 0, 0, 0, 0
	}
	return minX, minY, maxX, maxY
}

// VectorRenderer draws a top-down (XY) view of a registration result
type VectorRenderer struct {
	Result     *Result
	Config     RenderConfig
	Palette    MapPalette
	Resolution canvas.Resolution // PNG output resolution
}

// NewVectorRenderer creates a vector renderer with default colors
func NewVectorRenderer(res *Result, cfg RenderConfig) *VectorRenderer {
	return &VectorRenderer{
		Result:     res,
		Config:     cfg,
		Palette:    DefaultPalette(),
		Resolution: canvas.DPI(25.4 * cfg.Scale), // Scale pixels per world unit
	}
}

// canvasRenderer is an interface that both svg and rasterizer renderers implement
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

func (r *VectorRenderer) size() (minX, minY, width, height float64) {
	minX, minY, maxX, maxY := worldBounds(r.Result)
	pad := r.Config.Padding + r.Config.ScannerRadius
	return minX - pad, minY - pad, (maxX - minX) + 2*pad, (maxY - minY) + 2*pad
}

// RenderToSVG writes the map as an SVG to the provided writer
func (r *VectorRenderer) RenderToSVG(w io.Writer) error {
	originX, originY, width, height := r.size()

	svgRenderer := svg.New(w, width, height, nil)
	r.renderToCanvas(svgRenderer, originX, originY, width, height)

	return svgRenderer.Close()
}

// RenderToPNG writes the map as a PNG to the provided writer
func (r *VectorRenderer) RenderToPNG(w io.Writer) error {
	originX, originY, width, height := r.size()

	rast := rasterizer.New(width, height, r.Resolution, canvas.DefaultColorSpace)
	r.renderToCanvas(rast, originX, originY, width, height)

	return png.Encode(w, rast)
}

// renderToCanvas draws background, scanner links, beacons and scanners, in
// that order. Canvas space has its origin at (originX, originY).
func (r *VectorRenderer) renderToCanvas(renderer canvasRenderer, originX, originY, width, height float64) {
	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: canvas.White}
	renderer.RenderPath(canvas.Rectangle(width, height), bgStyle, canvas.Identity)

	if r.Result == nil {
		return
	}

	local := func(c Coordinate) (float64, float64) {
		return float64(c.X) - originX, float64(c.Y) - originY
	}

	// Lines from the reference origin to every other scanner.
	linkStyle := canvas.DefaultStyle
	linkStyle.Fill = canvas.Paint{Color: canvas.Transparent}
	linkStyle.Stroke = canvas.Paint{Color: nrgbaToRGBA(r.Palette.Link)}
	linkStyle.StrokeWidth = math.Max(1, r.Config.BeaconRadius/2)
	x0, y0 := local(Coordinate{})
	for _, p := range r.Result.Placements {
		if p.Scanner == 0 {
			continue
		}
		x, y := local(p.Offset)
		path := &canvas.Path{}
		path.MoveTo(x0, y0)
		path.LineTo(x, y)
		renderer.RenderPath(path, linkStyle, canvas.Identity)
	}

	if r.Config.BeaconRadius > 0 {
		beaconStyle := canvas.DefaultStyle
		beaconStyle.Fill = canvas.Paint{Color: nrgbaToRGBA(r.Palette.Beacon)}
		beaconStyle.Stroke = canvas.Paint{Color: canvas.Transparent}
		for _, b := range r.Result.Beacons.Sorted() {
			x, y := local(b)
			renderer.RenderPath(canvas.Circle(r.Config.BeaconRadius).Translate(x, y), beaconStyle, canvas.Identity)
		}
	}

	if r.Config.ScannerRadius > 0 {
		for _, p := range r.Result.Placements {
			fill := r.Palette.Scanner
			if p.Scanner == 0 {
				fill = r.Palette.Reference
			}
			style := canvas.DefaultStyle
			style.Fill = canvas.Paint{Color: nrgbaToRGBA(fill)}
			style.Stroke = canvas.Paint{Color: canvas.Black}
			style.StrokeWidth = math.Max(1, r.Config.ScannerRadius/8)

			x, y := local(p.Offset)
			renderer.RenderPath(canvas.Circle(r.Config.ScannerRadius).Translate(x, y), style, canvas.Identity)
		}
	}
}
