package stats

import (
	"math"

	"blotquant/pkg/quanterr"
)

type runner func(c Comparison, alpha float64) (StatReport, error)

var runners = map[TestKind]runner{
	StudentT:    runTTest,
	WelchT:      runTTest,
	TwoWayANOVA: runANOVA,
}

// CompareGroups runs the test selected by c.Kind.
func CompareGroups(c Comparison) (StatReport, error) {
	run, ok := runners[c.Kind]
	if !ok {
		return StatReport{}, quanterr.New(quanterr.UnsupportedTestSelection, "compare",
			"unknown test %s", c.Kind)
	}
	alpha, err := resolveAlpha(c.Alpha)
	if err != nil {
		return StatReport{}, err
	}
	return run(c, alpha)
}

// CompareAgainstReference compares every non-reference group with the
// reference group and returns one report per comparison, in group order.
func CompareAgainstReference(groups []Group, reference string, kind TestKind, opts Options) ([]StatReport, error) {
	if kind == TwoWayANOVA {
		return nil, quanterr.New(quanterr.UnsupportedTestSelection, "compare",
			"two-way ANOVA needs factor-tagged observations")
	}
	ref, ok := findGroup(groups, reference)
	if !ok {
		return nil, quanterr.New(quanterr.InvalidParameter, "compare",
			"reference group %q not found", reference)
	}

	var reports []StatReport
	for _, g := range groups {
		if g.Name == reference {
			continue
		}
		r, err := CompareGroups(Comparison{
			Kind:      kind,
			Options:   opts,
			Groups:    []Group{ref, g},
			Reference: reference,
		})
		if err != nil {
			return reports, err
		}
		reports = append(reports, r)
	}
	return reports, nil
}

func resolveAlpha(alpha float64) (float64, error) {
	if alpha == 0 {
		return DefaultAlpha, nil
	}
	if math.IsNaN(alpha) || alpha <= 0 || alpha >= 1 {
		return 0, quanterr.New(quanterr.InvalidParameter, "compare",
			"alpha must lie in (0, 1), got %g", alpha)
	}
	return alpha, nil
}

func runTTest(c Comparison, alpha float64) (StatReport, error) {
	if len(c.Groups) != 2 {
		return StatReport{}, quanterr.New(quanterr.UnsupportedTestSelection, "compare",
			"%s compares exactly 2 groups, got %d", c.Kind, len(c.Groups))
	}
	if c.Paired && c.Kind != StudentT {
		return StatReport{}, quanterr.New(quanterr.UnsupportedTestSelection, "compare",
			"%s has no paired form", c.Kind)
	}

	refName := c.Reference
	if refName == "" {
		refName = c.Groups[0].Name
	}
	ref, ok := findGroup(c.Groups, refName)
	if !ok {
		return StatReport{}, quanterr.New(quanterr.InvalidParameter, "compare",
			"reference group %q not found", refName)
	}
	other := c.Groups[0]
	if other.Name == refName {
		other = c.Groups[1]
	}

	groups := c.Groups
	if c.Paired {
		var err error
		ref, other, err = pairByKey(ref, other)
		if err != nil {
			return StatReport{}, err
		}
		groups = []Group{ref, other}
		if c.Groups[0].Name != refName {
			groups = []Group{other, ref}
		}
	}

	summaries, err := summarize(groups, refName)
	if err != nil {
		return StatReport{}, err
	}

	var t TTest
	switch {
	case c.Paired:
		t, err = PairedTTest(ref.Values, other.Values)
	case c.Kind == WelchT:
		t, err = WelchTTest(ref.Values, other.Values)
	default:
		t, err = StudentTTest(ref.Values, other.Values)
	}
	if err != nil {
		return StatReport{}, err
	}

	return StatReport{
		Test:        c.Kind,
		Paired:      c.Paired,
		Reference:   refName,
		Groups:      summaries,
		Statistic:   t.T,
		DF:          t.DF,
		PValue:      t.P,
		Significant: t.P < alpha,
		Alpha:       alpha,
	}, nil
}

func runANOVA(c Comparison, alpha float64) (StatReport, error) {
	if c.Paired {
		return StatReport{}, quanterr.New(quanterr.UnsupportedTestSelection, "compare",
			"two-way ANOVA has no paired form")
	}
	table, err := ANOVA(c.Observations, alpha)
	if err != nil {
		return StatReport{}, err
	}

	refB := c.Reference
	if refB == "" {
		refB = table.LevelsB[0]
	}
	if _, ok := indexOf(table.LevelsB)[refB]; !ok {
		return StatReport{}, quanterr.New(quanterr.InvalidParameter, "compare",
			"reference level %q not found in factor B", refB)
	}
	cells := make(map[[2]string][]float64)
	for _, o := range c.Observations {
		k := [2]string{o.A, o.B}
		cells[k] = append(cells[k], o.Value)
	}

	var summaries []Summary
	for _, a := range table.LevelsA {
		refMean := mean(cells[[2]string{a, refB}])
		for _, b := range table.LevelsB {
			s, err := Describe(Group{Name: a + "/" + b, Values: cells[[2]string{a, b}]})
			if err != nil {
				return StatReport{}, err
			}
			summaries = append(summaries, withFold(s, refMean))
		}
	}

	report := StatReport{
		Test:      TwoWayANOVA,
		Reference: refB,
		Groups:    summaries,
		Alpha:     alpha,
		Sources:   table.Sources,
	}
	for _, s := range table.Sources {
		if s.Significant {
			report.Significant = true
		}
	}
	return report, nil
}

// pairByKey keeps the values of a and b whose keys appear in both groups,
// in a's order. Unkeyed groups are paired by position.
func pairByKey(a, b Group) (Group, Group, error) {
	if len(a.Keys) == 0 && len(b.Keys) == 0 {
		return a, b, nil
	}
	if len(a.Keys) != len(a.Values) || len(b.Keys) != len(b.Values) {
		return a, b, quanterr.New(quanterr.InvalidParameter, "compare",
			"paired groups %q and %q need one key per value", a.Name, b.Name)
	}

	index := make(map[string]int, len(b.Keys))
	for i, k := range b.Keys {
		if _, dup := index[k]; dup {
			return a, b, quanterr.New(quanterr.UnsupportedTestSelection, "compare",
				"sample %q appears twice in group %q", k, b.Name)
		}
		index[k] = i
	}

	pa := Group{Name: a.Name}
	pb := Group{Name: b.Name}
	seen := make(map[string]bool, len(a.Keys))
	for i, k := range a.Keys {
		if seen[k] {
			return a, b, quanterr.New(quanterr.UnsupportedTestSelection, "compare",
				"sample %q appears twice in group %q", k, a.Name)
		}
		seen[k] = true
		j, ok := index[k]
		if !ok {
			continue
		}
		pa.Values = append(pa.Values, a.Values[i])
		pa.Keys = append(pa.Keys, k)
		pb.Values = append(pb.Values, b.Values[j])
		pb.Keys = append(pb.Keys, k)
	}
	return pa, pb, nil
}

func summarize(groups []Group, reference string) ([]Summary, error) {
	out := make([]Summary, len(groups))
	var refMean float64
	for i, g := range groups {
		s, err := Describe(g)
		if err != nil {
			return nil, err
		}
		out[i] = s
		if g.Name == reference {
			refMean = s.Mean
		}
	}
	for i := range out {
		out[i] = withFold(out[i], refMean)
	}
	return out, nil
}

func findGroup(groups []Group, name string) (Group, bool) {
	for _, g := range groups {
		if g.Name == name {
			return g, true
		}
	}
	return Group{}, false
}
