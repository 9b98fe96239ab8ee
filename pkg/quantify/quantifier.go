// Package quantify computes integrated densities of blot lanes.
//
// Each lane is measured against its own background: the lower quartile of
// the lane's pixels. A wide ROI on a blot with a background gradient thus
// gets a local baseline per lane instead of one value imposed blot-wide.
// Only pixels above background + k*stddev contribute, each by its excess over
// background.
package quantify

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"blotquant/internal/models"
	"blotquant/pkg/quanterr"
)

// DefaultSensitivity is the k used when none is configured.
const DefaultSensitivity = 0.2

// BackgroundQuantile is the fraction of lane pixels at or below background.
const BackgroundQuantile = 0.25

// Quantifier measures lanes with a fixed sensitivity constant.
type Quantifier struct {
	// Sensitivity is k in threshold = background + k*stddev. Higher values
	// reject more noise and risk clipping faint bands.
	Sensitivity float64

	// Workers bounds the parallelism of QuantifyLanes and QuantifyBatch.
	// Zero or less means one worker per CPU.
	Workers int
}

// New returns a Quantifier, rejecting negative or non-finite sensitivity.
func New(sensitivity float64, workers int) (*Quantifier, error) {
	if sensitivity < 0 || math.IsNaN(sensitivity) || math.IsInf(sensitivity, 0) {
		return nil, quanterr.New(quanterr.InvalidParameter, "new quantifier",
			"sensitivity must be a finite value >= 0, got %g", sensitivity)
	}
	return &Quantifier{Sensitivity: sensitivity, Workers: workers}, nil
}

// Quantify measures one lane of f. roiID tags the measurement.
func (q *Quantifier) Quantify(f *models.ImageField, roiID string, lane models.Lane) (models.LaneMeasurement, error) {
	pix, err := f.Region(lane.Rect)
	if err != nil {
		return models.LaneMeasurement{}, quanterr.Wrap(quanterr.InvalidGeometry, "quantify", err).
			WithSource(f.ID, roiID).WithLane(lane.Index)
	}

	m := Measure(pix, q.Sensitivity)
	m.ImageID = f.ID
	m.ROIID = roiID
	m.LaneIndex = lane.Index
	m.Group = lane.Group
	m.Replicate = lane.Replicate
	return m, nil
}

// Measure applies the background, threshold and integration steps to raw
// lane pixels. pix is not modified.
func Measure(pix []float64, k float64) models.LaneMeasurement {
	if len(pix) == 0 {
		return models.LaneMeasurement{}
	}

	sorted := make([]float64, len(pix))
	copy(sorted, pix)
	sort.Float64s(sorted)

	background := stat.Quantile(BackgroundQuantile, stat.Empirical, sorted, nil)
	_, variance := stat.PopMeanVariance(pix, nil)
	stddev := math.Sqrt(variance)
	threshold := background + k*stddev

	density := 0.0
	for _, p := range pix {
		if p > threshold {
			density += p - background
		}
	}

	return models.LaneMeasurement{
		Background:        background,
		StdDev:            stddev,
		Threshold:         threshold,
		IntegratedDensity: density,
		PixelCount:        len(pix),
	}
}
