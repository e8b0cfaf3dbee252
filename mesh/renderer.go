package mesh

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// maxRasterSize caps either image dimension.
const maxRasterSize = 4000

// RasterRenderer draws a labelled top-down preview of a registration result
type RasterRenderer struct {
	Result  *Result
	Config  RenderConfig
	Palette MapPalette
}

// NewRasterRenderer creates a raster renderer with default colors
func NewRasterRenderer(res *Result, cfg RenderConfig) *RasterRenderer {
	return &RasterRenderer{
		Result:  res,
		Config:  cfg,
		Palette: DefaultPalette(),
	}
}

// rasterLayout maps world XY onto image pixels.
type rasterLayout struct {
	scale         float64
	pad           int
	width, height int
	minX, minY    float64
}

// project flips Y so +Y points up like the vector render.
func (l rasterLayout) project(c Coordinate) (int, int) {
	x := int((float64(c.X)-l.minX)*l.scale) + l.pad
	y := l.height - 1 - (int((float64(c.Y)-l.minY)*l.scale) + l.pad)
	return x, y
}

// layout picks one scale that fits the padded world extent into
// maxRasterSize on both axes. Padding is in world units, so it shrinks with
// the scale.
func (r *RasterRenderer) layout() rasterLayout {
	scale := r.Config.Scale
	if scale <= 0 {
		scale = 1
	}
	margin := r.Config.Padding + r.Config.ScannerRadius

	var minX, minY, maxX, maxY float64
	if r.Result != nil {
		minX, minY, maxX, maxY = worldBounds(r.Result)
	}
	for _, span := range []float64{maxX - minX + 2*margin, maxY - minY + 2*margin} {
		if span > 0 && span*scale > maxRasterSize {
			scale = maxRasterSize / span
		}
	}

	pad := int(margin * scale)
	width := int((maxX-minX)*scale) + 2*pad
	height := int((maxY-minY)*scale) + 2*pad
	return rasterLayout{
		scale:  scale,
		pad:    pad,
		width:  min(max(width, 2*pad+1, 160), maxRasterSize),
		height: min(max(height, 2*pad+1, 60), maxRasterSize),
		minX:   minX,
		minY:   minY,
	}
}

// Render draws beacons as dots and scanners as labelled circles, with a
// legend carrying the two answers.
func (r *RasterRenderer) Render() *image.RGBA {
	l := r.layout()
	width, height, scale := l.width, l.height, l.scale

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{240, 240, 240, 255})
		}
	}

	if r.Result == nil {
		return img
	}

	beaconR := max(1, int(r.Config.BeaconRadius*scale))
	for _, b := range r.Result.Beacons.Sorted() {
		x, y := l.project(b)
		drawCircle(img, x, y, beaconR, toRGBA(r.Palette.Beacon))
	}

	scannerR := max(2, int(r.Config.ScannerRadius*scale))
	for _, p := range r.Result.Placements {
		fill := r.Palette.Scanner
		if p.Scanner == 0 {
			fill = r.Palette.Reference
		}
		x, y := l.project(p.Offset)
		drawCircle(img, x, y, scannerR, toRGBA(fill))
		drawText(img, x+scannerR+2, y+4, fmt.Sprintf("S%d", p.Scanner), color.RGBA{0, 0, 0, 255})
	}

	r.drawLegend(img)
	return img
}

// RenderToPNG encodes the preview as PNG
func (r *RasterRenderer) RenderToPNG(w io.Writer) error {
	return png.Encode(w, r.Render())
}

// SavePNG saves the preview image to a file
func (r *RasterRenderer) SavePNG(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	return r.RenderToPNG(f)
}

func (r *RasterRenderer) drawLegend(img *image.RGBA) {
	black := color.RGBA{0, 0, 0, 255}
	drawText(img, 10, 16, fmt.Sprintf("beacons: %d", r.Result.BeaconCount()), black)
	drawText(img, 10, 34, fmt.Sprintf("max distance: %d", r.Result.MaxScannerDistance()), black)
}

func toRGBA(c color.NRGBA) color.RGBA {
	return color.RGBA{c.R, c.G, c.B, 255}
}

// drawCircle draws a filled circle
func drawCircle(img *image.RGBA, cx, cy, radius int, c color.RGBA) {
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy <= radius*radius {
				x, y := cx+dx, cy+dy
				if x >= 0 && x < img.Bounds().Max.X && y >= 0 && y < img.Bounds().Max.Y {
					img.Set(x, y, c)
				}
			}
		}
	}
}

// drawText renders text onto an image at the specified position
func drawText(img *image.RGBA, x, y int, text string, c color.RGBA) {
	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}
