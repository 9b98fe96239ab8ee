package stats

import (
	"math"

	mstats "github.com/montanaflynn/stats"

	"blotquant/pkg/quanterr"
)

// Describe computes N, mean, sample SD and SEM of a group. A single value has
// SD and SEM of zero.
func Describe(g Group) (Summary, error) {
	n := len(g.Values)
	if n == 0 {
		return Summary{}, quanterr.New(quanterr.InsufficientSamples, "describe",
			"group %q has no values", g.Name)
	}
	if err := checkFinite(g); err != nil {
		return Summary{}, err
	}

	mean, err := mstats.Mean(g.Values)
	if err != nil {
		return Summary{}, quanterr.Wrap(quanterr.InsufficientSamples, "describe", err)
	}
	s := Summary{Name: g.Name, N: n, Mean: mean}
	if n > 1 {
		sd, err := mstats.StandardDeviationSample(g.Values)
		if err != nil {
			return Summary{}, quanterr.Wrap(quanterr.InsufficientSamples, "describe", err)
		}
		s.SD = sd
		s.SEM = sd / math.Sqrt(float64(n))
	}
	return s, nil
}

// withFold fills fold and percent change relative to ref.
func withFold(s Summary, ref float64) Summary {
	if ref == 0 {
		s.FoldDefined = false
		s.FoldChange = 0
		s.PercentChange = 0
		return s
	}
	s.FoldDefined = true
	s.FoldChange = s.Mean / ref
	s.PercentChange = (s.Mean - ref) / ref * 100
	return s
}

func checkFinite(g Group) error {
	for i, v := range g.Values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return quanterr.New(quanterr.InvalidParameter, "describe",
				"group %q value %d is not finite", g.Name, i)
		}
	}
	return nil
}

func variance(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	v, err := mstats.SampleVariance(values)
	if err != nil {
		return 0
	}
	return v
}
