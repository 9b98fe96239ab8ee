// Package analysis runs an analysis plan over a batch of blot images:
// preprocessing, lane layout, quantification, normalization against loading
// controls and group statistics.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"runtime"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"blotquant/internal/logging"
	"blotquant/internal/models"
	"blotquant/pkg/config"
	"blotquant/pkg/export"
	"blotquant/pkg/geometry"
	"blotquant/pkg/normalize"
	"blotquant/pkg/preprocess"
	"blotquant/pkg/quanterr"
	"blotquant/pkg/quantify"
	"blotquant/pkg/stats"
)

// Image is one decoded blot with its preprocessing settings.
type Image struct {
	ID              string
	Source          image.Image
	Inverted        bool
	RotationDegrees float64
}

// Pipeline holds the settings shared by every pass of a run.
type Pipeline struct {
	Quantifier *quantify.Quantifier

	// Geometry is the lane layout used where a pass sets none
	Geometry geometry.Options

	Fill      preprocess.Fill
	Test      stats.TestKind
	Reference string
	Stats     stats.Options
	Workers   int
	Logger    *slog.Logger

	// ReadTable loads imported control tables
	ReadTable func(path string) ([]export.Row, error)
}

// NewPipeline builds a pipeline from configuration.
func NewPipeline(cfg *config.Config, logger *slog.Logger) (*Pipeline, error) {
	q, err := quantify.New(cfg.Quantification.Sensitivity, cfg.Quantification.Workers)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		Quantifier: q,
		Geometry: geometry.Options{
			Pairing:      cfg.Pairing(),
			Groups:       cfg.Geometry.Groups,
			DefaultGroup: cfg.Geometry.DefaultGroup,
		},
		Fill:      cfg.Fill(),
		Test:      cfg.Test(),
		Reference: cfg.Statistics.Reference,
		Stats:     cfg.StatOptions(),
		Workers:   cfg.Quantification.Workers,
		Logger:    logger,
		ReadTable: export.ReadTable,
	}, nil
}

func (p *Pipeline) workers() int {
	if p.Workers > 0 {
		return p.Workers
	}
	return runtime.NumCPU()
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}

func (p *Pipeline) quantifier() *quantify.Quantifier {
	if p.Quantifier == nil {
		return &quantify.Quantifier{Sensitivity: quantify.DefaultSensitivity, Workers: p.Workers}
	}
	return p.Quantifier
}

// layoutOptions merges a pass's layout settings over the pipeline defaults.
func (p *Pipeline) layoutOptions(pass Pass) (geometry.Options, error) {
	opts := p.Geometry
	if pass.Pairing != "" {
		pairing, err := geometry.ParsePairing(pass.Pairing)
		if err != nil {
			return opts, quanterr.Wrap(quanterr.InvalidParameter, "pass "+pass.ID, err)
		}
		opts.Pairing = pairing
	}
	if len(pass.Groups) > 0 {
		opts.Groups = pass.Groups
	}
	if pass.DefaultGroup != "" {
		opts.DefaultGroup = pass.DefaultGroup
	}
	opts.LaneOffset = pass.LaneOffset
	return opts, nil
}

// Prepare converts an image to a field: grayscale, rotate, invert.
func (p *Pipeline) Prepare(img Image) *models.ImageField {
	return preprocess.Prepare(img.Source, preprocess.Options{
		ID:              img.ID,
		Inverted:        img.Inverted,
		RotationDegrees: img.RotationDegrees,
		Fill:            p.Fill,
	})
}

// resolve lays out the lanes of pass over f.
func (p *Pipeline) resolve(ctx context.Context, f *models.ImageField, pass Pass) (geometry.Layout, error) {
	opts, err := p.layoutOptions(pass)
	if err != nil {
		return geometry.Layout{}, err
	}
	roi := models.ROI{ID: pass.ID, Rect: pass.ROI}
	layout, err := geometry.Resolve(roi, pass.Replicates, pass.Offsets, opts)
	if err != nil {
		return geometry.Layout{}, tag(err, f.ID, pass.ID)
	}

	log := p.logger().With(slog.String("image", f.ID), slog.String("pass", pass.ID))
	if len(pass.Offsets) > 0 && !layout.UsedOffsets {
		log.WarnContext(ctx, "Separator offsets rejected, using equal lanes",
			slog.Any("offsets", pass.Offsets))
	}
	if layout.Unbalanced {
		log.WarnContext(ctx, "Lanes do not split evenly between groups",
			slog.Int("lanes", len(layout.Lanes)))
	}
	return layout, nil
}

func passResult(f *models.ImageField, pass Pass, layout geometry.Layout, ms []models.LaneMeasurement) PassResult {
	return PassResult{
		ImageID:      f.ID,
		PassID:       pass.ID,
		Kind:         pass.Kind,
		Protein:      pass.ProteinName(),
		Layout:       layout,
		Measurements: ms,
	}
}

// RunPass resolves the lanes of pass over f and quantifies them.
func (p *Pipeline) RunPass(ctx context.Context, f *models.ImageField, pass Pass) (PassResult, error) {
	layout, err := p.resolve(ctx, f, pass)
	if err != nil {
		return PassResult{}, err
	}
	ms, err := p.quantifier().QuantifyLanes(ctx, f, pass.ID, layout.Lanes)
	if err != nil {
		return PassResult{}, err
	}
	p.logger().DebugContext(ctx, "Pass quantified",
		slog.String("image", f.ID),
		slog.String("pass", pass.ID),
		slog.Int("lanes", len(ms)),
		slog.Float64("width_cv", layout.WidthCV))
	return passResult(f, pass, layout, ms), nil
}

// Run executes plan over images. Passes of all images are quantified in
// parallel; results keep image and plan order.
func (p *Pipeline) Run(ctx context.Context, plan *Plan, images []Image) (*Report, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	if len(images) == 0 {
		return nil, quanterr.New(quanterr.InvalidParameter, "run", "no images")
	}

	report := &Report{RunID: uuid.NewString()}
	ctx = logging.WithRunID(ctx, report.RunID)
	log := p.logger()
	log.InfoContext(ctx, "Starting analysis",
		slog.Int("images", len(images)),
		slog.Int("passes", len(plan.Passes)),
		slog.String("test", p.Test.String()))

	images = withIDs(images)
	if err := uniqueIDs(images); err != nil {
		return nil, err
	}
	for _, img := range images {
		report.Images = append(report.Images, img.ID)
	}

	tables, err := p.loadControlTables(plan)
	if err != nil {
		return nil, err
	}

	fields := make([]*models.ImageField, len(images))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers())
	for i := range images {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fields[i] = p.Prepare(images[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Every lane of every image and pass goes through one worker pool
	nPass := len(plan.Passes)
	layouts := make([]geometry.Layout, len(fields)*nPass)
	jobs := make([]quantify.Job, len(fields)*nPass)
	for i, f := range fields {
		for j, pass := range plan.Passes {
			layout, err := p.resolve(ctx, f, pass)
			if err != nil {
				return nil, err
			}
			layouts[i*nPass+j] = layout
			jobs[i*nPass+j] = quantify.Job{Field: f, ROIID: pass.ID, Lanes: layout.Lanes}
		}
	}
	measured, err := p.quantifier().QuantifyBatch(ctx, jobs)
	if err != nil {
		return nil, err
	}

	results := make([]PassResult, len(jobs))
	for i, f := range fields {
		for j, pass := range plan.Passes {
			k := i*nPass + j
			results[k] = passResult(f, pass, layouts[k], measured[k])
		}
	}
	report.Passes = results

	for i, f := range fields {
		for j, pass := range plan.Passes {
			if pass.Kind != KindTarget {
				continue
			}
			target := results[i*nPass+j]
			control, source, err := p.controlMeasurements(plan, j, f.ID, results[i*nPass:(i+1)*nPass], tables)
			if err != nil {
				return nil, err
			}
			normalized, err := normalize.Normalize(target.Measurements, control)
			if err != nil {
				return nil, fmt.Errorf("pass %s against %s: %w", pass.ID, source, err)
			}
			for _, r := range normalized {
				if r.Valid {
					continue
				}
				log.WarnContext(ctx, "Normalization undefined",
					slog.String("image", f.ID),
					slog.String("pass", pass.ID),
					slog.Int("lane", r.Target.LaneIndex),
					slog.String("control", source))
				report.Warnings = append(report.Warnings, Warning{
					ImageID: f.ID, PassID: pass.ID, Protein: target.Protein,
					Lane: r.Target.LaneIndex, Err: r.Err,
				})
			}
			report.Targets = append(report.Targets, TargetResult{
				ImageID: f.ID,
				PassID:  pass.ID,
				Protein: target.Protein,
				Control: source,
				Results: normalized,
			})
		}
	}

	p.compare(ctx, plan, report)
	log.InfoContext(ctx, "Analysis complete",
		slog.Int("targets", len(report.Targets)),
		slog.Int("comparisons", len(report.Stats)),
		slog.Int("warnings", len(report.Warnings)))
	return report, nil
}

// controlMeasurements finds the loading-control lanes for target pass j of
// one image. passes holds that image's results in plan order.
func (p *Pipeline) controlMeasurements(plan *Plan, j int, imageID string, passes []PassResult, tables map[string][]export.Row) ([]models.LaneMeasurement, string, error) {
	pass := plan.Passes[j]
	if pass.ControlTable != "" {
		ms, err := export.ControlMeasurements(tables[pass.ControlTable], pass.ControlImage, pass.ControlROI)
		if err != nil {
			return nil, "", fmt.Errorf("pass %s: %w", pass.ID, tag(err, imageID, pass.ID))
		}
		return ms, pass.ControlTable, nil
	}
	k, err := plan.controlFor(j)
	if err != nil {
		return nil, "", err
	}
	return passes[k].Measurements, plan.Passes[k].ID, nil
}

func (p *Pipeline) loadControlTables(plan *Plan) (map[string][]export.Row, error) {
	read := p.ReadTable
	if read == nil {
		read = export.ReadTable
	}
	tables := make(map[string][]export.Row)
	for _, pass := range plan.Passes {
		if pass.ControlTable == "" {
			continue
		}
		if _, ok := tables[pass.ControlTable]; ok {
			continue
		}
		rows, err := read(plan.resolve(pass.ControlTable))
		if err != nil {
			return nil, fmt.Errorf("pass %s: control table: %w", pass.ID, err)
		}
		tables[pass.ControlTable] = rows
	}
	return tables, nil
}

// OpenImages decodes the images of a plan.
func OpenImages(plan *Plan) ([]Image, error) {
	images := make([]Image, len(plan.Images))
	for i, spec := range plan.Images {
		src, err := imaging.Open(plan.resolve(spec.Path))
		if err != nil {
			return nil, fmt.Errorf("failed to open image %s: %w", spec.Path, err)
		}
		images[i] = Image{
			ID:              spec.ID,
			Source:          src,
			Inverted:        spec.Inverted,
			RotationDegrees: spec.Rotation,
		}
	}
	return images, nil
}

func withIDs(images []Image) []Image {
	out := make([]Image, len(images))
	copy(out, images)
	for i := range out {
		if out[i].ID == "" {
			out[i].ID = uuid.NewString()
		}
	}
	return out
}

func uniqueIDs(images []Image) error {
	seen := make(map[string]bool, len(images))
	for _, img := range images {
		if seen[img.ID] {
			return quanterr.New(quanterr.InvalidParameter, "run", "image id %q is used twice", img.ID)
		}
		seen[img.ID] = true
	}
	return nil
}

// tag attaches image and ROI ids to a classified error.
func tag(err error, imageID, roiID string) error {
	var qe *quanterr.Error
	if errors.As(err, &qe) && qe.ImageID == "" {
		return qe.WithSource(imageID, roiID)
	}
	return err
}
