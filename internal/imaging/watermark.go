package imaging

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

const watermarkAngle = -30 * math.Pi / 180

var watermarkInk = color.NRGBA{R: 255, G: 255, B: 255, A: 50}

// Watermark stamps text repeatedly along a rotated grid over the whole image
// and returns an opaque result of the same size. Font size and tile spacing
// follow the shorter side so density looks the same at every resolution.
func Watermark(src image.Image, text string) (*image.RGBA, error) {
	const op = "watermark"
	if err := checkSource(op, src); err != nil {
		return nil, err
	}
	if text == "" {
		return Flatten(src), nil
	}

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	fontSize := max(20, min(w, h)/15)

	face, err := newFace(true, float64(fontSize))
	if err != nil {
		return nil, &TransformError{Op: op, Err: err}
	}
	defer face.Close()

	tw, th := textWidth(face, text), textHeight(face)
	if tw <= 0 || th <= 0 {
		return Flatten(src), nil
	}
	tile := image.NewRGBA(image.Rect(0, 0, tw, th))
	drawText(tile, face, 0, 0, watermarkInk, text)

	overlay := image.NewRGBA(image.Rect(0, 0, w, h))
	stepX, stepY := fontSize*8, fontSize*4
	sin, cos := math.Sincos(watermarkAngle)
	tcx, tcy := float64(tw)/2, float64(th)/2
	// Start outside the canvas so rotated tiles also cover the corners.
	for y := -stepY; y < h+stepY; y += stepY {
		offset := 0
		if (y/stepY)%2 != 0 {
			offset = stepX / 2
		}
		for x := -stepX + offset; x < w+stepX; x += stepX {
			cx, cy := float64(x), float64(y)
			m := f64.Aff3{
				cos, -sin, cx - cos*tcx + sin*tcy,
				sin, cos, cy - sin*tcx - cos*tcy,
			}
			draw.BiLinear.Transform(overlay, m, tile, tile.Bounds(), draw.Over, nil)
		}
	}

	dst := Flatten(src)
	draw.Draw(dst, dst.Bounds(), overlay, image.Point{}, draw.Over)
	return dst, nil
}
