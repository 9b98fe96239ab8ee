package stats

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"blotquant/pkg/quanterr"
)

// ANOVATable is a two-way analysis of variance with interaction.
type ANOVATable struct {
	LevelsA []string
	LevelsB []string
	Sources []Source
}

// ANOVA runs a two-way analysis of variance. It decomposes the variance of
// obs into factor A, factor B, their interaction and the residual. Sums of
// squares are Type III, computed as the increase in residual sum of squares
// when a term's effect-coded columns are dropped from the full model. For
// balanced designs they equal the classical decomposition.
func ANOVA(obs []Observation, alpha float64) (ANOVATable, error) {
	levelsA, levelsB := levels(obs)
	if len(levelsA) < 2 || len(levelsB) < 2 {
		return ANOVATable{}, quanterr.New(quanterr.UnsupportedTestSelection, "anova",
			"two-way ANOVA needs at least 2 levels per factor, got %d and %d",
			len(levelsA), len(levelsB))
	}

	cells := make(map[[2]string]int)
	for _, o := range obs {
		if math.IsNaN(o.Value) || math.IsInf(o.Value, 0) {
			return ANOVATable{}, quanterr.New(quanterr.InvalidParameter, "anova",
				"observation %s/%s is not finite", o.A, o.B)
		}
		cells[[2]string{o.A, o.B}]++
	}
	for _, a := range levelsA {
		for _, b := range levelsB {
			if n := cells[[2]string{a, b}]; n < 2 {
				return ANOVATable{}, quanterr.New(quanterr.InsufficientSamples, "anova",
					"cell %s/%s has %d observations, need 2", a, b, n)
			}
		}
	}

	d := newDesign(obs, levelsA, levelsB)
	full, err := d.rss(true, true, true)
	if err != nil {
		return ANOVATable{}, err
	}
	noA, err := d.rss(false, true, true)
	if err != nil {
		return ANOVATable{}, err
	}
	noB, err := d.rss(true, false, true)
	if err != nil {
		return ANOVATable{}, err
	}
	noAB, err := d.rss(true, true, false)
	if err != nil {
		return ANOVATable{}, err
	}

	dfA := float64(len(levelsA) - 1)
	dfB := float64(len(levelsB) - 1)
	dfRes := float64(len(obs) - len(levelsA)*len(levelsB))
	msRes := full / dfRes

	table := ANOVATable{LevelsA: levelsA, LevelsB: levelsB}
	table.Sources = []Source{
		effect(SourceA, noA-full, dfA, msRes, dfRes, alpha),
		effect(SourceB, noB-full, dfB, msRes, dfRes, alpha),
		effect(SourceInteraction, noAB-full, dfA*dfB, msRes, dfRes, alpha),
		{Name: SourceResidual, SS: full, DF: dfRes, MS: msRes},
	}
	return table, nil
}

func effect(name string, ss, df, msRes, dfRes, alpha float64) Source {
	// Least-squares round off can push a null effect slightly negative
	if ss < 0 {
		ss = 0
	}
	s := Source{Name: name, SS: ss, DF: df, MS: ss / df}
	switch {
	case msRes == 0 && s.MS == 0:
		s.F, s.P = 0, 1
	case msRes == 0:
		s.F, s.P = math.Inf(1), 0
	default:
		s.F = s.MS / msRes
		dist := distuv.F{D1: df, D2: dfRes}
		s.P = clampP(1 - dist.CDF(s.F))
	}
	s.Significant = s.P < alpha
	return s
}

// levels returns the distinct factor levels in first-seen order.
func levels(obs []Observation) ([]string, []string) {
	var as, bs []string
	seenA, seenB := map[string]bool{}, map[string]bool{}
	for _, o := range obs {
		if !seenA[o.A] {
			seenA[o.A] = true
			as = append(as, o.A)
		}
		if !seenB[o.B] {
			seenB[o.B] = true
			bs = append(bs, o.B)
		}
	}
	return as, bs
}

// design holds the effect-coded columns of the full two-way model.
type design struct {
	y    *mat.VecDense
	n    int
	a, b [][]float64 // per observation, one code per non-last level
	nA   int
	nB   int
}

func newDesign(obs []Observation, levelsA, levelsB []string) *design {
	idxA := indexOf(levelsA)
	idxB := indexOf(levelsB)
	d := &design{
		y:  mat.NewVecDense(len(obs), nil),
		n:  len(obs),
		nA: len(levelsA) - 1,
		nB: len(levelsB) - 1,
	}
	d.a = make([][]float64, len(obs))
	d.b = make([][]float64, len(obs))
	for i, o := range obs {
		d.y.SetVec(i, o.Value)
		d.a[i] = effectCode(idxA[o.A], len(levelsA))
		d.b[i] = effectCode(idxB[o.B], len(levelsB))
	}
	return d
}

// effectCode encodes level among k levels as k-1 sum-to-zero contrasts.
func effectCode(level, k int) []float64 {
	c := make([]float64, k-1)
	if level == k-1 {
		for j := range c {
			c[j] = -1
		}
		return c
	}
	c[level] = 1
	return c
}

func indexOf(levels []string) map[string]int {
	m := make(map[string]int, len(levels))
	for i, l := range levels {
		m[l] = i
	}
	return m
}

// rss fits the model with the selected terms and returns its residual sum of
// squares.
func (d *design) rss(withA, withB, withAB bool) (float64, error) {
	cols := 1
	if withA {
		cols += d.nA
	}
	if withB {
		cols += d.nB
	}
	if withAB {
		cols += d.nA * d.nB
	}

	x := mat.NewDense(d.n, cols, nil)
	for i := 0; i < d.n; i++ {
		j := 0
		x.Set(i, j, 1)
		j++
		if withA {
			for _, v := range d.a[i] {
				x.Set(i, j, v)
				j++
			}
		}
		if withB {
			for _, v := range d.b[i] {
				x.Set(i, j, v)
				j++
			}
		}
		if withAB {
			for _, va := range d.a[i] {
				for _, vb := range d.b[i] {
					x.Set(i, j, va*vb)
					j++
				}
			}
		}
	}

	var beta mat.VecDense
	if err := beta.SolveVec(x, d.y); err != nil {
		return 0, quanterr.Wrap(quanterr.UnsupportedTestSelection, "anova",
			fmt.Errorf("solve %d x %d design: %w", d.n, cols, err))
	}
	var fit, resid mat.VecDense
	fit.MulVec(x, &beta)
	resid.SubVec(d.y, &fit)
	return mat.Dot(&resid, &resid), nil
}
