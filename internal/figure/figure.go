package figure

import (
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
)

// Info describes a decoded raster figure.
type Info struct {
	Path   string
	Format string
	Width  int
	Height int
	Bytes  int64
	// Mean is the average channel value normalized to [0,1]. Alpha counts as
	// a channel when the image carries one.
	Mean     float64
	Channels int
}

func (i Info) Pixels() int { return i.Width * i.Height }

func Inspect(path string) (Info, error) {
	st, err := os.Stat(path)
	if err != nil {
		return Info{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		return Info{}, err
	}
	defer f.Close()
	img, format, err := image.Decode(f)
	if err != nil {
		return Info{}, fmt.Errorf("decode %s: %w", path, err)
	}
	b := img.Bounds()
	mean, channels := MeanIntensity(img)
	return Info{
		Path:     path,
		Format:   format,
		Width:    b.Dx(),
		Height:   b.Dy(),
		Bytes:    st.Size(),
		Mean:     mean,
		Channels: channels,
	}, nil
}

// MeanIntensity averages every channel of every pixel, normalized to [0,1].
func MeanIntensity(img image.Image) (float64, int) {
	b := img.Bounds()
	n := b.Dx() * b.Dy()
	channels := channelCount(img)
	if n == 0 {
		return 0, channels
	}
	var sum float64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBA64Model.Convert(img.At(x, y)).(color.NRGBA64)
			switch channels {
			case 1:
				sum += float64(c.R)
			case 2:
				sum += float64(c.R) + float64(c.A)
			case 3:
				sum += float64(c.R) + float64(c.G) + float64(c.B)
			default:
				sum += float64(c.R) + float64(c.G) + float64(c.B) + float64(c.A)
			}
		}
	}
	return sum / (float64(n) * float64(channels) * 0xffff), channels
}

func channelCount(img image.Image) int {
	switch m := img.(type) {
	case *image.Gray, *image.Gray16:
		return 1
	case *image.RGBA, *image.RGBA64, *image.YCbCr, *image.CMYK:
		return 3
	case *image.Paletted:
		for _, c := range m.Palette {
			if _, _, _, a := c.RGBA(); a != 0xffff {
				return 4
			}
		}
		return 3
	default:
		return 4
	}
}
