package stats

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"blotquant/pkg/quanterr"
)

// TTest is the result of a two-sample t-test. T is positive when the second
// sample has the larger mean.
type TTest struct {
	T  float64
	DF float64
	P  float64
}

// StudentTTest runs the pooled-variance two-sample t-test.
func StudentTTest(a, b []float64) (TTest, error) {
	if err := needTwo("student t", a, b); err != nil {
		return TTest{}, err
	}
	n1, n2 := float64(len(a)), float64(len(b))
	df := n1 + n2 - 2
	pooled := ((n1-1)*variance(a) + (n2-1)*variance(b)) / df
	se := math.Sqrt(pooled * (1/n1 + 1/n2))
	return tResult(mean(b)-mean(a), se, df), nil
}

// WelchTTest runs the unequal-variance t-test with Welch-Satterthwaite
// degrees of freedom.
func WelchTTest(a, b []float64) (TTest, error) {
	if err := needTwo("welch t", a, b); err != nil {
		return TTest{}, err
	}
	n1, n2 := float64(len(a)), float64(len(b))
	q1, q2 := variance(a)/n1, variance(b)/n2
	se := math.Sqrt(q1 + q2)

	df := n1 + n2 - 2
	if q1+q2 > 0 {
		df = (q1 + q2) * (q1 + q2) / (q1*q1/(n1-1) + q2*q2/(n2-1))
	}
	return tResult(mean(b)-mean(a), se, df), nil
}

// PairedTTest runs the t-test on the differences b[i]-a[i].
func PairedTTest(a, b []float64) (TTest, error) {
	if len(a) != len(b) {
		return TTest{}, quanterr.New(quanterr.UnsupportedTestSelection, "paired t",
			"paired samples need equal sizes, got %d and %d", len(a), len(b))
	}
	if err := needTwo("paired t", a, b); err != nil {
		return TTest{}, err
	}
	d := make([]float64, len(a))
	for i := range a {
		d[i] = b[i] - a[i]
	}
	n := float64(len(d))
	se := math.Sqrt(variance(d) / n)
	return tResult(mean(d), se, n-1), nil
}

func tResult(diff, se, df float64) TTest {
	switch {
	case se == 0 && diff == 0:
		return TTest{T: 0, DF: df, P: 1}
	case se == 0:
		return TTest{T: math.Copysign(math.Inf(1), diff), DF: df, P: 0}
	}
	t := diff / se
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	p := 2 * (1 - dist.CDF(math.Abs(t)))
	return TTest{T: t, DF: df, P: clampP(p)}
}

func needTwo(op string, a, b []float64) error {
	if len(a) < 2 || len(b) < 2 {
		return quanterr.New(quanterr.InsufficientSamples, op,
			"need at least 2 values per group, got %d and %d", len(a), len(b))
	}
	return nil
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func clampP(p float64) float64 {
	return math.Min(1, math.Max(0, p))
}
