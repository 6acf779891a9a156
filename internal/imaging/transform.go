package imaging

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
)

// TransformError reports a failed finishing stage. Callers keep the prior image.
type TransformError struct {
	Op  string
	Err error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransformError) Unwrap() error { return e.Err }

func transformErr(op, format string, args ...any) error {
	return &TransformError{Op: op, Err: fmt.Errorf(format, args...)}
}

func checkSource(op string, src image.Image) error {
	if src == nil {
		return transformErr(op, "nil image")
	}
	if b := src.Bounds(); b.Dx() <= 0 || b.Dy() <= 0 {
		return transformErr(op, "empty image %v", b)
	}
	return nil
}

// RatioMismatch is |target - source| / max(target, source) of the aspect ratios.
func RatioMismatch(srcW, srcH, dstW, dstH int) float64 {
	if srcW <= 0 || srcH <= 0 || dstW <= 0 || dstH <= 0 {
		return 0
	}
	src := float64(srcW) / float64(srcH)
	dst := float64(dstW) / float64(dstH)
	return math.Abs(dst-src) / math.Max(dst, src)
}

// FitRatio center-crops src to the target aspect ratio and resizes it to
// exactly w×h. The crop is unconditional whatever the mismatch.
func FitRatio(src image.Image, w, h int) (*image.RGBA, error) {
	const op = "fit ratio"
	if err := checkSource(op, src); err != nil {
		return nil, err
	}
	if w <= 0 || h <= 0 {
		return nil, transformErr(op, "invalid target %dx%d", w, h)
	}

	b := src.Bounds()
	sw, sh := b.Dx(), b.Dy()
	target := float64(w) / float64(h)
	crop := b
	if float64(sw)/float64(sh) > target {
		cw := clamp(int(math.Round(float64(sh)*target)), 1, sw)
		x0 := b.Min.X + (sw-cw)/2
		crop = image.Rect(x0, b.Min.Y, x0+cw, b.Max.Y)
	} else {
		ch := clamp(int(math.Round(float64(sw)/target)), 1, sh)
		y0 := b.Min.Y + (sh-ch)/2
		crop = image.Rect(b.Min.X, y0, b.Max.X, y0+ch)
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, crop, draw.Src, nil)
	return dst, nil
}

// ContainRatio scales src down to fit inside w×h, never up, and centers it on
// a bg canvas of exactly w×h. Nothing is cropped.
func ContainRatio(src image.Image, w, h int, bg color.Color) (*image.RGBA, error) {
	const op = "contain ratio"
	if err := checkSource(op, src); err != nil {
		return nil, err
	}
	if w <= 0 || h <= 0 {
		return nil, transformErr(op, "invalid target %dx%d", w, h)
	}
	if bg == nil {
		bg = color.White
	}

	b := src.Bounds()
	sw, sh := b.Dx(), b.Dy()
	scale := math.Min(1, math.Min(float64(w)/float64(sw), float64(h)/float64(sh)))
	nw := clamp(int(math.Floor(float64(sw)*scale)), 1, w)
	nh := clamp(int(math.Floor(float64(sh)*scale)), 1, h)

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)

	x0, y0 := (w-nw)/2, (h-nh)/2
	target := image.Rect(x0, y0, x0+nw, y0+nh)
	if nw == sw && nh == sh {
		draw.Draw(dst, target, src, b.Min, draw.Over)
	} else {
		draw.CatmullRom.Scale(dst, target, src, b, draw.Over, nil)
	}
	return dst, nil
}

// CenterCropZoom crops the centered zoom fraction of each side and scales it
// back to the original size.
func CenterCropZoom(src image.Image, zoom float64) (*image.RGBA, error) {
	const op = "center crop zoom"
	if err := checkSource(op, src); err != nil {
		return nil, err
	}
	if zoom <= 0 || zoom > 1 || math.IsNaN(zoom) {
		return nil, transformErr(op, "zoom %v out of range (0, 1]", zoom)
	}

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	cw := clamp(int(float64(w)*zoom), 1, w)
	ch := clamp(int(float64(h)*zoom), 1, h)
	x0 := b.Min.X + (w-cw)/2
	y0 := b.Min.Y + (h-ch)/2

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, image.Rect(x0, y0, x0+cw, y0+ch), draw.Src, nil)
	return dst, nil
}

// Thumbnail scales src down to fit within maxW×maxH, never up.
func Thumbnail(src image.Image, maxW, maxH int) image.Image {
	b := src.Bounds()
	sw, sh := b.Dx(), b.Dy()
	if sw <= maxW && sh <= maxH {
		return src
	}
	scale := math.Min(float64(maxW)/float64(sw), float64(maxH)/float64(sh))
	nw := clamp(int(float64(sw)*scale), 1, maxW)
	nh := clamp(int(float64(sh)*scale), 1, maxH)
	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

// Flatten composites src over white and returns a fully opaque copy.
func Flatten(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
	return dst
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
