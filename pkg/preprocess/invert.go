package preprocess

import (
	"image"

	"blotquant/internal/models"
)

// InvertIfNeeded flips intensities to MaxValue - v when inverted is set, so
// dark bands on a light background read as high signal. Otherwise f is
// returned as is.
func InvertIfNeeded(f *models.ImageField, inverted bool) *models.ImageField {
	if !inverted {
		return f
	}
	pix := f.Pixels()
	for i, v := range pix {
		pix[i] = f.MaxValue - v
	}
	out := f.Derive(f.Width, f.Height, pix)
	out.Inverted = true
	return out
}

// Options describes the preprocessing of one decoded image.
type Options struct {
	ID              string
	Inverted        bool
	RotationDegrees float64
	Fill            Fill
}

// Prepare runs grayscale conversion, rotation and inversion in that order.
// Lane coordinates are always interpreted on the returned field.
func Prepare(img image.Image, opts Options) *models.ImageField {
	field := ToGrayscale(img, opts.ID)
	if opts.RotationDegrees != 0 {
		field = Rotate(field, opts.RotationDegrees, opts.Fill)
	}
	return InvertIfNeeded(field, opts.Inverted)
}
