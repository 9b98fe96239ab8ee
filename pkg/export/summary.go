package export

import (
	"strconv"

	"blotquant/pkg/stats"
)

// LabeledReport is a statistics report with the name of the comparison it
// answers, for example the target protein.
type LabeledReport struct {
	Label  string
	Report stats.StatReport
}

// SummaryColumns is the header of the statistics summary.
var SummaryColumns = []string{
	"comparison",
	"test",
	"reference",
	"group",
	"n",
	"mean",
	"sd",
	"sem",
	"fold_change",
	"percent_change",
	"source",
	"statistic",
	"df",
	"p_value",
	"significant",
}

// summaryLine holds one summary row. Group rows leave the source empty;
// ANOVA source rows leave the group columns empty.
type summaryLine struct {
	comparison, test, reference string

	group   string
	summary *stats.Summary

	source      string
	hasTest     bool
	statistic   float64
	df          float64
	p           float64
	significant bool
}

func summaryLines(reports []LabeledReport) []summaryLine {
	var lines []summaryLine
	for _, lr := range reports {
		r := lr.Report
		base := summaryLine{comparison: lr.Label, test: r.Test.String(), reference: r.Reference}
		if r.Paired {
			base.test += " (paired)"
		}

		for i := range r.Groups {
			l := base
			l.group = r.Groups[i].Name
			l.summary = &r.Groups[i]
			if r.Test != stats.TwoWayANOVA && l.group != r.Reference {
				l.hasTest = true
				l.statistic, l.df, l.p, l.significant = r.Statistic, r.DF, r.PValue, r.Significant
			}
			lines = append(lines, l)
		}
		for _, s := range r.Sources {
			l := base
			l.source = s.Name
			if s.Name != stats.SourceResidual {
				l.hasTest = true
				l.statistic, l.p, l.significant = s.F, s.P, s.Significant
			}
			l.df = s.DF
			lines = append(lines, l)
		}
	}
	return lines
}

// cells returns the row as spreadsheet values; empty cells are nil.
func (l summaryLine) cells() []any {
	out := make([]any, len(SummaryColumns))
	out[0], out[1], out[2] = l.comparison, l.test, l.reference
	if l.summary != nil {
		s := l.summary
		out[3], out[4], out[5], out[6], out[7] = l.group, s.N, s.Mean, s.SD, s.SEM
		if s.FoldDefined {
			out[8], out[9] = s.FoldChange, s.PercentChange
		}
	}
	if l.source != "" {
		out[10] = l.source
		out[12] = l.df
	}
	if l.hasTest {
		out[11], out[12], out[13], out[14] = l.statistic, l.df, l.p, l.significant
	}
	return out
}

func (l summaryLine) strings() []string {
	cells := l.cells()
	out := make([]string, len(cells))
	for i, c := range cells {
		switch v := c.(type) {
		case nil:
		case string:
			out[i] = v
		case int:
			out[i] = strconv.Itoa(v)
		case float64:
			out[i] = formatFloat(v)
		case bool:
			out[i] = strconv.FormatBool(v)
		}
	}
	return out
}
