package models

import "fmt"

// ImageField is an immutable grayscale intensity grid. Preprocessing steps
// never modify a field in place; they return a new one.
type ImageField struct {
	// ID identifies the source image in measurements and exports
	ID string

	// Width and Height are the field dimensions in pixels
	Width  int
	Height int

	// MaxValue is the largest representable intensity (255 or 65535)
	MaxValue float64

	// Inverted is set once bands were flipped to read brighter than background
	Inverted bool

	// RotationDegrees is the total rotation applied to the source image
	RotationDegrees float64

	// pix holds intensities in row-major order
	pix []float64
}

// NewImageField copies pix into a new field. len(pix) must equal width*height.
func NewImageField(id string, width, height int, maxValue float64, pix []float64) (*ImageField, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("field dimensions must be positive, got %dx%d", width, height)
	}
	if len(pix) != width*height {
		return nil, fmt.Errorf("pixel count %d does not match %dx%d", len(pix), width, height)
	}
	if maxValue <= 0 {
		return nil, fmt.Errorf("max value must be positive, got %g", maxValue)
	}
	data := make([]float64, len(pix))
	copy(data, pix)
	return &ImageField{ID: id, Width: width, Height: height, MaxValue: maxValue, pix: data}, nil
}

// WrapPixels builds a field that takes ownership of pix without copying.
func WrapPixels(id string, width, height int, maxValue float64, pix []float64) *ImageField {
	return &ImageField{ID: id, Width: width, Height: height, MaxValue: maxValue, pix: pix}
}

// NewUniformField creates a field filled with a single value.
func NewUniformField(id string, width, height int, maxValue, value float64) *ImageField {
	pix := make([]float64, width*height)
	for i := range pix {
		pix[i] = value
	}
	return &ImageField{ID: id, Width: width, Height: height, MaxValue: maxValue, pix: pix}
}

// Derive returns a field sharing this field's metadata with new pixel data.
// The caller hands over ownership of pix.
func (f *ImageField) Derive(width, height int, pix []float64) *ImageField {
	return &ImageField{
		ID:              f.ID,
		Width:           width,
		Height:          height,
		MaxValue:        f.MaxValue,
		Inverted:        f.Inverted,
		RotationDegrees: f.RotationDegrees,
		pix:             pix,
	}
}

// At returns the intensity at (x, y). Callers must stay inside Bounds.
func (f *ImageField) At(x, y int) float64 {
	return f.pix[y*f.Width+x]
}

// Bounds returns the field rectangle anchored at the origin.
func (f *ImageField) Bounds() Rect {
	return Rect{X: 0, Y: 0, Width: f.Width, Height: f.Height}
}

// Pixels returns a copy of the intensity data.
func (f *ImageField) Pixels() []float64 {
	out := make([]float64, len(f.pix))
	copy(out, f.pix)
	return out
}

// Region copies the pixels inside r in row-major order.
func (f *ImageField) Region(r Rect) ([]float64, error) {
	if !r.Within(f.Bounds()) {
		return nil, fmt.Errorf("region %v outside field %dx%d", r, f.Width, f.Height)
	}
	out := make([]float64, 0, r.Width*r.Height)
	for y := r.Y; y < r.Y+r.Height; y++ {
		row := f.pix[y*f.Width+r.X : y*f.Width+r.X+r.Width]
		out = append(out, row...)
	}
	return out, nil
}

// Rect is an axis-aligned rectangle in field coordinates. The right and
// bottom edges are exclusive.
type Rect struct {
	X, Y          int
	Width, Height int
}

// Right returns the exclusive right edge.
func (r Rect) Right() int { return r.X + r.Width }

// Bottom returns the exclusive bottom edge.
func (r Rect) Bottom() int { return r.Y + r.Height }

// Empty reports whether the rectangle covers no pixels.
func (r Rect) Empty() bool { return r.Width <= 0 || r.Height <= 0 }

// Within reports whether r lies entirely inside outer.
func (r Rect) Within(outer Rect) bool {
	return !r.Empty() &&
		r.X >= outer.X && r.Y >= outer.Y &&
		r.Right() <= outer.Right() && r.Bottom() <= outer.Bottom()
}

func (r Rect) String() string {
	return fmt.Sprintf("(%d,%d %dx%d)", r.X, r.Y, r.Width, r.Height)
}

// ROI is the user selected rectangle of one analysis pass.
type ROI struct {
	ID string
	Rect
}
