package analysis

import (
	"context"
	"fmt"
	"log/slog"

	"blotquant/internal/models"
	"blotquant/pkg/export"
	"blotquant/pkg/geometry"
	"blotquant/pkg/quanterr"
	"blotquant/pkg/stats"
)

// PassResult is one pass quantified over one image.
type PassResult struct {
	ImageID      string
	PassID       string
	Kind         PassKind
	Protein      string
	Layout       geometry.Layout
	Measurements []models.LaneMeasurement
}

// TargetResult is a target pass normalized against its loading control.
type TargetResult struct {
	ImageID string
	PassID  string
	Protein string

	// Control is the loading-control pass id or imported table path
	Control string
	Results []models.NormalizedResult
}

// Warning is a problem that did not stop the run.
type Warning struct {
	ImageID string
	PassID  string
	Protein string
	Lane    int
	Err     error
}

func (w Warning) String() string {
	switch {
	case w.PassID != "":
		return fmt.Sprintf("image %s pass %s lane %d: %v", w.ImageID, w.PassID, w.Lane, w.Err)
	case w.Protein != "":
		return fmt.Sprintf("%s: %v", w.Protein, w.Err)
	}
	return w.Err.Error()
}

// Report is the outcome of a run.
type Report struct {
	RunID string

	// Images holds the image ids in input order
	Images []string

	Passes   []PassResult
	Targets  []TargetResult
	Stats    []export.LabeledReport
	Warnings []Warning
}

// Rows flattens the report into lane table rows: every pass of every image,
// target lanes carrying their normalized value.
func (r *Report) Rows() []export.Row {
	targets := make(map[[2]string]TargetResult, len(r.Targets))
	for _, t := range r.Targets {
		targets[[2]string{t.ImageID, t.PassID}] = t
	}
	var rows []export.Row
	for _, p := range r.Passes {
		if t, ok := targets[[2]string{p.ImageID, p.PassID}]; ok {
			rows = append(rows, export.RowsFromResults(t.Results)...)
			continue
		}
		rows = append(rows, export.RowsFromMeasurements(p.Measurements)...)
	}
	return rows
}

// GroupValues collects the valid normalized values of one protein per group,
// leaving out excluded replicates. Groups keep first-seen order. Each value is
// keyed by image, pass and replicate number so paired tests match replicate n
// of one group with replicate n of another from the same pass.
func (r *Report) GroupValues(plan *Plan, protein string) []stats.Group {
	var groups []stats.Group
	index := make(map[string]int)
	for _, t := range r.Targets {
		if t.Protein != protein {
			continue
		}
		for _, res := range t.Results {
			if !res.Valid || plan.excluded(res.Target.Group, res.Target.Replicate) {
				continue
			}
			name := res.Target.Group
			i, ok := index[name]
			if !ok {
				i = len(groups)
				index[name] = i
				groups = append(groups, stats.Group{Name: name})
			}
			groups[i].Values = append(groups[i].Values, res.Value)
			groups[i].Keys = append(groups[i].Keys, sampleKey(t, res.Target.Replicate))
		}
	}
	return groups
}

func sampleKey(t TargetResult, replicate int) string {
	return fmt.Sprintf("%s/%s/%d", t.ImageID, t.PassID, replicate)
}

func (r *Report) proteins() []string {
	var out []string
	seen := make(map[string]bool)
	for _, t := range r.Targets {
		if !seen[t.Protein] {
			seen[t.Protein] = true
			out = append(out, t.Protein)
		}
	}
	return out
}

// compare runs the configured test. Failures are kept as warnings so one
// underpowered protein does not hide the others.
func (p *Pipeline) compare(ctx context.Context, plan *Plan, report *Report) {
	warn := func(protein string, err error) {
		p.logger().WarnContext(ctx, "Comparison skipped",
			slog.String("protein", protein),
			slog.String("error", err.Error()))
		report.Warnings = append(report.Warnings, Warning{Protein: protein, Lane: quanterr.NoLane, Err: err})
	}

	if p.Test == stats.TwoWayANOVA {
		var obs []stats.Observation
		for _, protein := range report.proteins() {
			for _, g := range report.GroupValues(plan, protein) {
				for _, v := range g.Values {
					obs = append(obs, stats.Observation{Value: v, A: protein, B: g.Name})
				}
			}
		}
		r, err := stats.CompareGroups(stats.Comparison{
			Kind:         stats.TwoWayANOVA,
			Options:      p.Stats,
			Reference:    p.Reference,
			Observations: obs,
		})
		if err != nil {
			warn("protein x group", err)
			return
		}
		report.Stats = append(report.Stats, export.LabeledReport{Label: "protein x group", Report: r})
		return
	}

	for _, protein := range report.proteins() {
		groups := report.GroupValues(plan, protein)
		if len(groups) < 2 {
			warn(protein, quanterr.New(quanterr.UnsupportedTestSelection, "compare",
				"%d group(s) with valid values, need 2", len(groups)))
			continue
		}
		reports, err := stats.CompareAgainstReference(groups, p.Reference, p.Test, p.Stats)
		for _, r := range reports {
			report.Stats = append(report.Stats, export.LabeledReport{Label: protein, Report: r})
		}
		if err != nil {
			warn(protein, err)
		}
	}
}
