package imaging

import (
	"image"
	"image/color"
	"strings"

	"golang.org/x/image/draw"
)

type Anchor string

const (
	TopLeft     Anchor = "top-left"
	TopRight    Anchor = "top-right"
	BottomLeft  Anchor = "bottom-left"
	BottomRight Anchor = "bottom-right"
	Center      Anchor = "center"
)

// ParseAnchor maps unknown values to BottomRight.
func ParseAnchor(s string) Anchor {
	switch a := Anchor(strings.ToLower(strings.TrimSpace(s))); a {
	case TopLeft, TopRight, BottomLeft, BottomRight, Center:
		return a
	}
	return BottomRight
}

// OverlayLogo shrinks logo to at most maxSizePct of the base width and height
// and alpha-blends it at the anchor with a 3% edge padding.
func OverlayLogo(src, logo image.Image, anchor Anchor, maxSizePct float64) (*image.RGBA, error) {
	const op = "overlay logo"
	if err := checkSource(op, src); err != nil {
		return nil, err
	}
	if err := checkSource(op, logo); err != nil {
		return nil, err
	}
	if maxSizePct <= 0 || maxSizePct > 1 {
		maxSizePct = 0.15
	}

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	mark := Thumbnail(logo, max(1, int(float64(w)*maxSizePct)), max(1, int(float64(h)*maxSizePct)))
	lb := mark.Bounds()
	lw, lh := lb.Dx(), lb.Dy()
	pad := int(float64(w) * 0.03)

	var at image.Point
	switch anchor {
	case TopLeft:
		at = image.Pt(pad, pad)
	case TopRight:
		at = image.Pt(w-lw-pad, pad)
	case BottomLeft:
		at = image.Pt(pad, h-lh-pad)
	case Center:
		at = image.Pt((w-lw)/2, (h-lh)/2)
	default:
		at = image.Pt(w-lw-pad, h-lh-pad)
	}

	dst := Flatten(src)
	draw.Draw(dst, image.Rectangle{Min: at, Max: at.Add(image.Pt(lw, lh))}, mark, lb.Min, draw.Over)
	return dst, nil
}

// Branding is the business identity printed in the branding bar.
type Branding struct {
	BusinessName string
	Phone        string
	Website      string
	// Logo is optional; a failed fetch simply leaves it nil.
	Logo image.Image
}

var (
	barFill       = color.NRGBA{A: 180}
	barNameInk    = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	barDetailsInk = color.NRGBA{R: 200, G: 200, B: 200, A: 255}
)

// BrandingBar darkens the bottom max(60, 12%) of the image and writes the
// optional logo, the business name and a "phone | website" line on it.
func BrandingBar(src image.Image, br Branding) (*image.RGBA, error) {
	const op = "branding bar"
	if err := checkSource(op, src); err != nil {
		return nil, err
	}

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	barH := min(h, max(60, int(float64(h)*0.12)))

	bar := image.NewRGBA(image.Rect(0, 0, w, barH))
	draw.Draw(bar, bar.Bounds(), image.NewUniform(barFill), image.Point{}, draw.Src)

	textX := int(float64(w) * 0.04)
	offset := 0
	if br.Logo != nil && !br.Logo.Bounds().Empty() {
		size := max(1, barH-16)
		mark := Thumbnail(br.Logo, size, size)
		mb := mark.Bounds()
		at := image.Pt(textX, (barH-mb.Dy())/2)
		draw.Draw(bar, image.Rectangle{Min: at, Max: at.Add(mb.Size())}, mark, mb.Min, draw.Over)
		offset = mb.Dx() + 10
	}

	nameSize := max(14, barH/3)
	detailSize := max(10, barH/5)
	x := textX + offset

	var details []string
	for _, s := range []string{br.Phone, br.Website} {
		if s = strings.TrimSpace(s); s != "" {
			details = append(details, s)
		}
	}

	nameY := (barH - nameSize) / 2
	if len(details) > 0 {
		nameY = barH/2 - nameSize - 2
	}
	if br.BusinessName != "" {
		face, err := newFace(true, float64(nameSize))
		if err != nil {
			return nil, &TransformError{Op: op, Err: err}
		}
		drawText(bar, face, x, nameY, barNameInk, br.BusinessName)
		face.Close()
	}

	if len(details) > 0 {
		face, err := newFace(false, float64(detailSize))
		if err != nil {
			return nil, &TransformError{Op: op, Err: err}
		}
		drawText(bar, face, x, barH/2+2, barDetailsInk, strings.Join(details, " | "))
		face.Close()
	}

	dst := Flatten(src)
	draw.Draw(dst, image.Rect(0, h-barH, w, h), bar, image.Point{}, draw.Over)
	return dst, nil
}
