package preprocess

import (
	"math"

	"blotquant/internal/models"
)

// FillPolicy decides what rotation writes where the source has no data.
type FillPolicy int

const (
	// FillReplicate extends the nearest edge pixel outwards.
	FillReplicate FillPolicy = iota
	// FillConstant writes Fill.Value outside the source pixel area.
	FillConstant
)

// Fill configures out-of-bounds handling for Rotate.
type Fill struct {
	Policy FillPolicy
	Value  float64
}

// keysA is the Keys cubic convolution parameter (Catmull-Rom).
const keysA = -0.5

// quarterTolerance decides when an angle counts as an exact multiple of 90.
const quarterTolerance = 1e-9

// Rotate resamples f by degrees, counter-clockwise for positive angles. The
// output is the minimal bounding box of the rotated content. Multiples of 90
// degrees are exact pixel transpositions; other angles use bicubic
// interpolation clamped to [0, MaxValue].
func Rotate(f *models.ImageField, degrees float64, fill Fill) *models.ImageField {
	d := math.Mod(degrees, 360)
	if d < 0 {
		d += 360
	}

	q := math.Round(d / 90)
	if math.Abs(d-q*90) < quarterTolerance {
		out := rotateQuarter(f, int(q)%4)
		out.RotationDegrees = f.RotationDegrees + degrees
		return out
	}

	rad := d * math.Pi / 180
	cos := math.Cos(rad)
	sin := math.Sin(rad)

	w := float64(f.Width)
	h := float64(f.Height)
	newW := int(math.Ceil(w*math.Abs(cos) + h*math.Abs(sin) - quarterTolerance))
	newH := int(math.Ceil(w*math.Abs(sin) + h*math.Abs(cos) - quarterTolerance))

	cx := (w - 1) / 2
	cy := (h - 1) / 2
	ncx := float64(newW-1) / 2
	ncy := float64(newH-1) / 2

	pix := make([]float64, newW*newH)
	for y := 0; y < newH; y++ {
		dy := float64(y) - ncy
		for x := 0; x < newW; x++ {
			dx := float64(x) - ncx
			sx := cx + cos*dx - sin*dy
			sy := cy + sin*dx + cos*dy

			if fill.Policy == FillConstant && outside(f, sx, sy) {
				pix[y*newW+x] = fill.Value
				continue
			}
			v := bicubic(f, sx, sy)
			pix[y*newW+x] = math.Max(0, math.Min(f.MaxValue, v))
		}
	}

	out := f.Derive(newW, newH, pix)
	out.RotationDegrees = f.RotationDegrees + degrees
	return out
}

// outside reports whether (sx, sy) falls beyond the source pixel area.
func outside(f *models.ImageField, sx, sy float64) bool {
	return sx < -0.5 || sy < -0.5 || sx > float64(f.Width)-0.5 || sy > float64(f.Height)-0.5
}

func rotateQuarter(f *models.ImageField, q int) *models.ImageField {
	w, h := f.Width, f.Height
	switch q {
	case 1:
		pix := make([]float64, w*h)
		for y := 0; y < w; y++ {
			for x := 0; x < h; x++ {
				pix[y*h+x] = f.At(w-1-y, x)
			}
		}
		return f.Derive(h, w, pix)
	case 2:
		pix := make([]float64, w*h)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				pix[y*w+x] = f.At(w-1-x, h-1-y)
			}
		}
		return f.Derive(w, h, pix)
	case 3:
		pix := make([]float64, w*h)
		for y := 0; y < w; y++ {
			for x := 0; x < h; x++ {
				pix[y*h+x] = f.At(y, h-1-x)
			}
		}
		return f.Derive(h, w, pix)
	default:
		return f.Derive(w, h, f.Pixels())
	}
}

// bicubic samples f at a fractional position. Neighbours beyond the grid are
// replicated from the nearest edge.
func bicubic(f *models.ImageField, sx, sy float64) float64 {
	x0 := math.Floor(sx)
	y0 := math.Floor(sy)
	fx := sx - x0
	fy := sy - y0
	ix := int(x0)
	iy := int(y0)

	var wx, wy [4]float64
	for i := 0; i < 4; i++ {
		wx[i] = keys(fx - float64(i-1))
		wy[i] = keys(fy - float64(i-1))
	}

	sum := 0.0
	for j := 0; j < 4; j++ {
		yy := clampInt(iy+j-1, 0, f.Height-1)
		row := 0.0
		for i := 0; i < 4; i++ {
			xx := clampInt(ix+i-1, 0, f.Width-1)
			row += wx[i] * f.At(xx, yy)
		}
		sum += wy[j] * row
	}
	return sum
}

// keys is the cubic convolution kernel.
func keys(t float64) float64 {
	t = math.Abs(t)
	switch {
	case t <= 1:
		return (keysA+2)*t*t*t - (keysA+3)*t*t + 1
	case t < 2:
		return keysA*t*t*t - 5*keysA*t*t + 8*keysA*t - 4*keysA
	default:
		return 0
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
