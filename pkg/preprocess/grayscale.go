// Package preprocess turns decoded images into analysis-ready intensity
// fields: luminance conversion, rotation and band inversion. Every function
// returns a new field and leaves its input untouched.
package preprocess

import (
	"image"
	"image/color"
	"math"

	"blotquant/internal/models"
)

// BT.601 luma weights, the same conversion OpenCV applies for BGR2GRAY.
const (
	lumaR = 0.299
	lumaG = 0.587
	lumaB = 0.114
)

// ToGrayscale converts img into a single-channel field. Gray sources are
// copied exactly; colour sources are reduced to luma on non-premultiplied
// channels with alpha ignored. 16-bit source types keep a 0..65535 range,
// everything else is expressed on 0..255.
func ToGrayscale(img image.Image, id string) *models.ImageField {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	pix := make([]float64, width*height)

	maxValue := 255.0
	if is16Bit(img) {
		maxValue = 65535.0
	}

	switch src := img.(type) {
	case *image.Gray:
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				pix[y*width+x] = float64(src.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y)
			}
		}
	case *image.Gray16:
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				pix[y*width+x] = float64(src.Gray16At(bounds.Min.X+x, bounds.Min.Y+y).Y)
			}
		}
	default:
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				c := color.NRGBA64Model.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA64)
				// Channels are 16-bit here; rescale to the field range
				pix[y*width+x] = luma(c.R, c.G, c.B) * maxValue / 65535.0
			}
		}
	}

	return models.WrapPixels(id, width, height, maxValue, pix)
}

func luma(r, g, b uint16) float64 {
	if r == g && g == b {
		return float64(r)
	}
	return lumaR*float64(r) + lumaG*float64(g) + lumaB*float64(b)
}

func is16Bit(img image.Image) bool {
	switch img.(type) {
	case *image.Gray16, *image.RGBA64, *image.NRGBA64:
		return true
	}
	return false
}

// ToImage renders a field as a 16-bit gray image, scaling MaxValue to 65535.
func ToImage(f *models.ImageField) *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			v := f.At(x, y) / f.MaxValue * 65535.0
			v = math.Max(0, math.Min(65535, math.Round(v)))
			img.SetGray16(x, y, color.Gray16{Y: uint16(v)})
		}
	}
	return img
}
