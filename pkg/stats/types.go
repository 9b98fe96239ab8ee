// Package stats aggregates normalized lane values into groups and runs the
// hypothesis tests used to compare them.
package stats

import (
	"fmt"
	"strings"
)

// DefaultAlpha is the significance level used when none is given.
const DefaultAlpha = 0.05

// TestKind selects a hypothesis test.
type TestKind int

const (
	// StudentT is the equal-variance t-test, paired or unpaired.
	StudentT TestKind = iota + 1
	// WelchT is the unpaired unequal-variance t-test.
	WelchT
	// TwoWayANOVA tests two categorical factors and their interaction.
	TwoWayANOVA
)

func (k TestKind) String() string {
	switch k {
	case StudentT:
		return "student_t"
	case WelchT:
		return "welch_t"
	case TwoWayANOVA:
		return "two_way_anova"
	default:
		return fmt.Sprintf("test(%d)", int(k))
	}
}

// ParseTestKind accepts the names produced by String plus a few aliases.
func ParseTestKind(s string) (TestKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "student_t", "student", "t", "ttest":
		return StudentT, nil
	case "welch_t", "welch":
		return WelchT, nil
	case "two_way_anova", "anova", "anova2":
		return TwoWayANOVA, nil
	}
	return 0, fmt.Errorf("unknown test %q", s)
}

// Group is a named bucket of normalized values.
type Group struct {
	Name   string
	Values []float64

	// Keys optionally labels each value with the sample it came from.
	// Paired tests match keyed values across groups instead of by position.
	Keys []string
}

// Observation is one value tagged with two factor levels.
type Observation struct {
	Value float64
	A     string
	B     string
}

// Options are the knobs shared by every comparison.
type Options struct {
	// Alpha is the significance level; zero means DefaultAlpha
	Alpha float64

	// Paired selects the paired Student t-test
	Paired bool
}

// Comparison is one requested test.
type Comparison struct {
	Kind TestKind
	Options

	// Groups holds exactly two groups for the t-tests
	Groups []Group

	// Reference names the group fold changes are relative to. For the
	// t-tests it defaults to the first group; for ANOVA it is a level of
	// factor B and fold changes are taken within each level of A.
	Reference string

	// Observations feeds TwoWayANOVA
	Observations []Observation
}

// Summary describes one group.
type Summary struct {
	Name string
	N    int
	Mean float64
	SD   float64
	SEM  float64

	// FoldChange is Mean over the reference mean; FoldDefined is false when
	// the reference mean is zero
	FoldChange    float64
	PercentChange float64
	FoldDefined   bool
}

// Source is one row of an ANOVA table.
type Source struct {
	Name        string
	SS          float64
	DF          float64
	MS          float64
	F           float64
	P           float64
	Significant bool
}

// ANOVA source names.
const (
	SourceA           = "A"
	SourceB           = "B"
	SourceInteraction = "A x B"
	SourceResidual    = "Residual"
)

// StatReport is the outcome of one comparison.
type StatReport struct {
	Test      TestKind
	Paired    bool
	Reference string
	Groups    []Summary

	// Statistic, DF and PValue describe the t-test. ANOVA reports per source
	// and sets Significant when any effect is
	Statistic   float64
	DF          float64
	PValue      float64
	Significant bool
	Alpha       float64

	Sources []Source
}

// Source returns the named ANOVA row.
func (r StatReport) Source(name string) (Source, bool) {
	for _, s := range r.Sources {
		if s.Name == name {
			return s, true
		}
	}
	return Source{}, false
}
