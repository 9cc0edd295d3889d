package figure

import (
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestInspectOpaqueRGB(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 300, 250))
	for y := 0; y < 250; y++ {
		for x := 0; x < 300; x++ {
			img.Set(x, y, color.RGBA{R: 255, G: 0, B: 0, A: 255})
		}
	}
	path := filepath.Join(t.TempDir(), "fig.png")
	writePNG(t, path, img)

	info, err := Inspect(path)
	require.NoError(t, err)
	assert.Equal(t, "png", info.Format)
	assert.Equal(t, 300, info.Width)
	assert.Equal(t, 250, info.Height)
	assert.Equal(t, 75000, info.Pixels())
	assert.Greater(t, info.Bytes, int64(0))
	assert.Equal(t, 3, info.Channels)
	assert.InDelta(t, 1.0/3.0, info.Mean, 1e-6)
}

func TestMeanCountsAlpha(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 0, G: 0, B: 0, A: 255})
	img.SetNRGBA(1, 0, color.NRGBA{R: 0, G: 0, B: 0, A: 255})
	mean, channels := MeanIntensity(img)
	assert.Equal(t, 4, channels)
	assert.InDelta(t, 0.25, mean, 1e-9)
}

func TestMeanWhiteImageIsOne(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 4, 4))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	mean, channels := MeanIntensity(img)
	assert.Equal(t, 1, channels)
	assert.InDelta(t, 1.0, mean, 1e-9)
}

func TestMeanEmptyImage(t *testing.T) {
	mean, _ := MeanIntensity(image.NewGray(image.Rect(0, 0, 0, 0)))
	assert.False(t, math.IsNaN(mean))
	assert.Equal(t, 0.0, mean)
}

func TestInspectRejectsNonImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fig.png")
	require.NoError(t, os.WriteFile(path, []byte("not an image"), 0o644))
	_, err := Inspect(path)
	require.Error(t, err)
}
