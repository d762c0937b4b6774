// Package shot compresses, crops and annotates device screenshots.
package shot

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/mj1618/mobile-mcp/internal/model"
	"golang.org/x/image/draw"
)

// Image is an encoded screenshot plus the geometry needed to map image
// pixels back to device pixels.
type Image struct {
	Data   []byte     `yaml:"-"                json:"-"`
	Format string     `yaml:"format"           json:"format"`
	Width  int        `yaml:"width"            json:"width"`
	Height int        `yaml:"height"           json:"height"`
	Screen model.Size `yaml:"screen"           json:"screen"`
	Path   string     `yaml:"path,omitempty"   json:"path,omitempty"`
}

// Decode decodes a PNG or JPEG screenshot.
func Decode(raw []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode screenshot: %w", err)
	}
	return img, nil
}

// Compress downscales img to at most maxWidth pixels wide and encodes it
// as JPEG at quality.
func Compress(img image.Image, maxWidth, quality int) (Image, error) {
	b := img.Bounds()
	screen := model.Size{Width: b.Dx(), Height: b.Dy()}
	dst := Scale(img, maxWidth)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: quality}); err != nil {
		return Image{}, fmt.Errorf("encode jpeg: %w", err)
	}
	db := dst.Bounds()
	return Image{Data: buf.Bytes(), Format: "jpeg", Width: db.Dx(), Height: db.Dy(), Screen: screen}, nil
}

// Scale returns img resized to maxWidth, keeping the aspect ratio. Images
// already narrow enough are returned unchanged.
func Scale(img image.Image, maxWidth int) image.Image {
	b := img.Bounds()
	if maxWidth <= 0 || b.Dx() <= maxWidth {
		return img
	}
	h := b.Dy() * maxWidth / b.Dx()
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// Crop cuts region out of img and encodes it as PNG. The region is clamped to
// the image; an empty intersection is an error.
func Crop(img image.Image, region model.Rect) ([]byte, error) {
	r := image.Rect(region.X(), region.Y(), region.X()+region.W(), region.Y()+region.H()).Intersect(img.Bounds())
	if r.Empty() {
		return nil, fmt.Errorf("crop region %v lies outside the %dx%d screenshot", region, img.Bounds().Dx(), img.Bounds().Dy())
	}
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// ToDevice maps a point in a scaled image back to device pixels.
func ToDevice(p model.Point, imageWidth, imageHeight int, screen model.Size) model.Point {
	if imageWidth <= 0 || imageHeight <= 0 {
		return p
	}
	return model.Point{
		X: p.X * screen.Width / imageWidth,
		Y: p.Y * screen.Height / imageHeight,
	}
}
