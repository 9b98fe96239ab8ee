// Package visualization extracts intensity profiles and image crops from a
// prepared blot so lane placement can be checked by eye.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"

	"blotquant/internal/models"
	"blotquant/pkg/geometry"
)

// Viewer reads profiles and regions out of one image field.
type Viewer struct {
	field *models.ImageField
}

// NewViewer creates a viewer over f
func NewViewer(f *models.ImageField) *Viewer {
	return &Viewer{field: f}
}

// ColumnProfile returns the mean intensity of every column of r, left to
// right. Bands show up as peaks.
func (v *Viewer) ColumnProfile(r models.Rect) ([]float64, error) {
	pix, err := v.field.Region(r)
	if err != nil {
		return nil, err
	}

	profile := make([]float64, r.Width)
	for y := 0; y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			profile[x] += pix[y*r.Width+x]
		}
	}
	for x := range profile {
		profile[x] /= float64(r.Height)
	}
	return profile, nil
}

// LaneProfiles returns the column profile of every lane of layout
func (v *Viewer) LaneProfiles(layout geometry.Layout) ([][]float64, error) {
	out := make([][]float64, len(layout.Lanes))
	for i, lane := range layout.Lanes {
		p, err := v.ColumnProfile(lane.Rect)
		if err != nil {
			return nil, fmt.Errorf("lane %d: %w", lane.Index, err)
		}
		out[i] = p
	}
	return out, nil
}

// ExtractRegion crops r as a 16-bit gray image scaled to the full range
func (v *Viewer) ExtractRegion(r models.Rect) (*image.Gray16, error) {
	pix, err := v.field.Region(r)
	if err != nil {
		return nil, err
	}

	scale := 65535.0
	if v.field.MaxValue > 0 {
		scale /= v.field.MaxValue
	}
	img := image.NewGray16(image.Rect(0, 0, r.Width, r.Height))
	for y := 0; y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			value := uint16(math.Max(0, math.Min(65535, math.Round(pix[y*r.Width+x]*scale))))
			img.SetGray16(x, y, color.Gray16{Y: value})
		}
	}
	return img, nil
}

// SaveRegion crops r and saves it; the format follows the file extension
func (v *Viewer) SaveRegion(r models.Rect, filename string) error {
	img, err := v.ExtractRegion(r)
	if err != nil {
		return err
	}
	return imaging.Save(img, filename)
}

// SaveLaneSequence saves the ROI of layout and then each of its lanes as PNG
// files under outputDir, prefixed with prefix.
func (v *Viewer) SaveLaneSequence(layout geometry.Layout, outputDir, prefix string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	if err := v.SaveRegion(layout.ROI.Rect, filepath.Join(outputDir, prefix+"_roi.png")); err != nil {
		return err
	}
	for _, lane := range layout.Lanes {
		filename := filepath.Join(outputDir, fmt.Sprintf("%s_lane_%03d.png", prefix, lane.Index))
		if err := v.SaveRegion(lane.Rect, filename); err != nil {
			return err
		}
	}
	return nil
}
