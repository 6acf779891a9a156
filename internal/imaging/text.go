package imaging

import (
	"fmt"
	"image"
	"image/color"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

var (
	fontsOnce   sync.Once
	boldFont    *opentype.Font
	regularFont *opentype.Font
	fontsErr    error
)

func loadFonts() error {
	fontsOnce.Do(func() {
		boldFont, fontsErr = opentype.Parse(gobold.TTF)
		if fontsErr != nil {
			fontsErr = fmt.Errorf("parse bold font: %w", fontsErr)
			return
		}
		regularFont, fontsErr = opentype.Parse(goregular.TTF)
		if fontsErr != nil {
			fontsErr = fmt.Errorf("parse regular font: %w", fontsErr)
		}
	})
	return fontsErr
}

func newFace(bold bool, size float64) (font.Face, error) {
	if err := loadFonts(); err != nil {
		return nil, err
	}
	f := regularFont
	if bold {
		f = boldFont
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{Size: size, DPI: 72, Hinting: font.HintingFull})
	if err != nil {
		return nil, fmt.Errorf("new font face: %w", err)
	}
	return face, nil
}

// drawText renders s with its top-left corner at (x, y).
func drawText(dst *image.RGBA, face font.Face, x, y int, c color.Color, s string) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y+face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(s)
}

func textWidth(face font.Face, s string) int {
	return font.MeasureString(face, s).Ceil()
}

func textHeight(face font.Face) int {
	m := face.Metrics()
	return (m.Ascent + m.Descent).Ceil()
}
