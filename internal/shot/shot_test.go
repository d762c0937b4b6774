package shot

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/mj1618/mobile-mcp/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	return img
}

func TestCompress_DownscalesWideImages(t *testing.T) {
	out, err := Compress(solid(1080, 2400), 720, 75)
	require.NoError(t, err)
	assert.Equal(t, 720, out.Width)
	assert.Equal(t, 1600, out.Height)
	assert.Equal(t, model.Size{Width: 1080, Height: 2400}, out.Screen)
	assert.Equal(t, "jpeg", out.Format)

	img, err := Decode(out.Data)
	require.NoError(t, err)
	assert.Equal(t, 720, img.Bounds().Dx())
}

func TestCompress_KeepsNarrowImages(t *testing.T) {
	out, err := Compress(solid(300, 600), 720, 75)
	require.NoError(t, err)
	assert.Equal(t, 300, out.Width)
	assert.Equal(t, 600, out.Height)
}

func TestCrop(t *testing.T) {
	raw, err := Crop(solid(100, 200), model.Rect{90, 190, 40, 40})
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 10, 10), img.Bounds())

	_, err = Crop(solid(100, 200), model.Rect{500, 500, 10, 10})
	assert.Error(t, err)
}

func TestToDevice(t *testing.T) {
	screen := model.Size{Width: 1080, Height: 2400}
	assert.Equal(t, model.Point{X: 540, Y: 1200}, ToDevice(model.Point{X: 360, Y: 800}, 720, 1600, screen))
	assert.Equal(t, model.Point{X: 5, Y: 5}, ToDevice(model.Point{X: 5, Y: 5}, 0, 0, screen))
}

func TestAnnotate_DrawsBox(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 540, 1200))
	screen := model.Size{Width: 1080, Height: 2400}
	els := []model.Element{{Index: 0, Bounds: model.Rect{100, 200, 200, 100}}}

	out := Annotate(img, els, screen, LabelIndex)
	// (100,200) on screen is (50,100) at half scale.
	assert.Equal(t, color.RGBA{R: 255, A: 160}, out.RGBAAt(50, 100))
	assert.Equal(t, color.RGBA{}, out.RGBAAt(10, 10))
}
