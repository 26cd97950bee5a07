package render

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/goregular"
)

var (
	fontOnce      sync.Once
	watermarkFont *truetype.Font
	fontErr       error
)

func loadFont() (*truetype.Font, error) {
	fontOnce.Do(func() {
		watermarkFont, fontErr = truetype.Parse(goregular.TTF)
	})
	return watermarkFont, fontErr
}

// watermark draws text at 50% opacity in the bottom-left corner.
func watermark(img image.Image, text string) (image.Image, error) {
	f, err := loadFont()
	if err != nil {
		return nil, fmt.Errorf("load font: %w", err)
	}

	dst := imaging.Clone(img)
	b := dst.Bounds()
	size := math.Max(8, float64(b.Dy())/12)

	c := freetype.NewContext()
	c.SetDPI(72)
	c.SetFont(f)
	c.SetFontSize(size)
	c.SetClip(b)
	c.SetDst(dst)
	c.SetSrc(image.NewUniform(color.NRGBA{R: 255, G: 255, B: 255, A: 128}))

	margin := int(size / 2)
	if _, err := c.DrawString(text, freetype.Pt(b.Min.X+margin, b.Max.Y-margin)); err != nil {
		return nil, fmt.Errorf("draw watermark: %w", err)
	}
	return dst, nil
}
