// Package normalize divides target lane densities by the loading-control
// densities of the same physical lanes. Control measurements may come from
// the current run or from a table exported by an earlier session; only lane
// alignment matters.
package normalize

import (
	"errors"

	"blotquant/internal/models"
	"blotquant/pkg/quanterr"
)

// Normalize pairs target[i] with control[i]. A length or lane-index mismatch
// fails the whole call. A zero-density control lane only invalidates that
// lane's result.
func Normalize(target, control []models.LaneMeasurement) ([]models.NormalizedResult, error) {
	if err := checkAlignment(target, control); err != nil {
		return nil, err
	}

	results := make([]models.NormalizedResult, len(target))
	for i := range target {
		t, c := target[i], control[i]
		r := models.NormalizedResult{Target: t, Control: c}
		if c.IntegratedDensity == 0 {
			r.Err = quanterr.New(quanterr.UndefinedNormalization, "normalize",
				"loading control %s has zero integrated density", describe(c)).
				WithSource(t.ImageID, t.ROIID).WithLane(t.LaneIndex)
		} else {
			r.Value = t.IntegratedDensity / c.IntegratedDensity
			r.Valid = true
		}
		results[i] = r
	}
	return results, nil
}

func checkAlignment(target, control []models.LaneMeasurement) error {
	src := func() (string, string) {
		if len(target) > 0 {
			return target[0].ImageID, target[0].ROIID
		}
		return "", ""
	}
	if len(target) != len(control) {
		img, roi := src()
		return quanterr.New(quanterr.MismatchedLaneCount, "normalize",
			"%d target lanes against %d loading-control lanes", len(target), len(control)).
			WithSource(img, roi)
	}
	for i := range target {
		if target[i].LaneIndex != control[i].LaneIndex {
			img, roi := src()
			return quanterr.New(quanterr.MismatchedLaneCount, "normalize",
				"position %d pairs target lane %d with control lane %d",
				i, target[i].LaneIndex, control[i].LaneIndex).
				WithSource(img, roi).WithLane(target[i].LaneIndex)
		}
	}
	return nil
}

func describe(m models.LaneMeasurement) string {
	if m.ROIID == "" {
		return "(imported)"
	}
	return m.ROIID
}

// Denormalize multiplies valid results back by their control density.
// Invalid results stay zero and their positions are returned.
func Denormalize(results []models.NormalizedResult) ([]float64, []int) {
	out := make([]float64, len(results))
	var skipped []int
	for i, r := range results {
		if !r.Valid {
			skipped = append(skipped, i)
			continue
		}
		out[i] = r.Value * r.Control.IntegratedDensity
	}
	return out, skipped
}

// Invalid joins the per-lane errors of results, or returns nil when every
// lane normalized.
func Invalid(results []models.NormalizedResult) error {
	var errs []error
	for _, r := range results {
		if !r.Valid && r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return errors.Join(errs...)
}

// Values returns the ratios of valid results in lane order.
func Values(results []models.NormalizedResult) []float64 {
	out := make([]float64, 0, len(results))
	for _, r := range results {
		if r.Valid {
			out = append(out, r.Value)
		}
	}
	return out
}
