package shot

import (
	"fmt"
	"image"
	"image/color"

	"github.com/mj1618/mobile-mcp/internal/model"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// LabelMode controls what text is drawn on each annotated element.
type LabelMode int

const (
	// LabelIndex draws "[n]" element indexes.
	LabelIndex LabelMode = iota
	// LabelPercent draws "(x%,y%)" percent-of-screen centers.
	LabelPercent
)

// Annotate draws bounding boxes and labels for elements. Element bounds are in
// device pixels; img may be a scaled copy of the screen.
func Annotate(img image.Image, elements []model.Element, screen model.Size, mode LabelMode) *image.RGBA {
	rgba := toRGBA(img)
	b := img.Bounds()

	scaleX, scaleY := 1.0, 1.0
	if screen.Width > 0 {
		scaleX = float64(b.Dx()) / float64(screen.Width)
	}
	if screen.Height > 0 {
		scaleY = float64(b.Dy()) / float64(screen.Height)
	}

	boxColor := color.RGBA{R: 255, G: 0, B: 0, A: 160}
	textColor := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	outlineColor := color.RGBA{R: 0, G: 0, B: 0, A: 200}

	for _, el := range elements {
		r := el.Bounds
		x := int(float64(r.X()) * scaleX)
		y := int(float64(r.Y()) * scaleY)
		w := int(float64(r.W()) * scaleX)
		h := int(float64(r.H()) * scaleY)
		drawRectangle(rgba, x, y, x+w, y+h, boxColor)

		var label string
		switch mode {
		case LabelPercent:
			pct := model.ToPercent(el.Center(), screen)
			label = fmt.Sprintf("(%.1f%%,%.1f%%)", pct.X, pct.Y)
		default:
			label = fmt.Sprintf("[%d]", el.Index)
		}
		drawTextWithOutline(rgba, label, x+w/2, y+h/2, textColor, outlineColor)
	}
	return rgba
}

func toRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	rgba := image.NewRGBA(b)
	draw.Draw(rgba, b, img, b.Min, draw.Src)
	return rgba
}

func drawRectangle(img *image.RGBA, x1, y1, x2, y2 int, c color.Color) {
	r := image.Rect(x1, y1, x2, y2).Intersect(img.Bounds())
	if r.Empty() {
		return
	}
	for x := r.Min.X; x < r.Max.X; x++ {
		img.Set(x, r.Min.Y, c)
		img.Set(x, r.Max.Y-1, c)
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		img.Set(r.Min.X, y, c)
		img.Set(r.Max.X-1, y, c)
	}
}

// drawTextWithOutline centers text on (x, y) using basicfont.Face7x13.
func drawTextWithOutline(img *image.RGBA, text string, x, y int, textColor, outlineColor color.Color) {
	offsetX := x - len(text)*7/2
	offsetY := y + 13/2

	draw1 := func(dx, dy int, c color.Color) {
		d := &font.Drawer{
			Dst:  img,
			Src:  image.NewUniform(c),
			Face: basicfont.Face7x13,
			Dot:  fixed.P(offsetX+dx, offsetY+dy),
		}
		d.DrawString(text)
	}
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			if dx != 0 || dy != 0 {
				draw1(dx, dy, outlineColor)
			}
		}
	}
	draw1(0, 0, textColor)
}
