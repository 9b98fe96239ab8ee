package analysis

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"blotquant/internal/models"
	"blotquant/pkg/quanterr"
)

// PassKind says whether a pass measures a target protein or a loading control.
type PassKind string

const (
	KindTarget         PassKind = "target"
	KindLoadingControl PassKind = "loading_control"
)

// Pass is one ROI over one channel, applied to every image of a plan.
type Pass struct {
	ID      string      `yaml:"id" validate:"required"`
	Kind    PassKind    `yaml:"kind" validate:"oneof=target loading_control"`
	Protein string      `yaml:"protein"`
	ROI     models.Rect `yaml:"roi"`

	Replicates int       `yaml:"replicates" validate:"gte=1"`
	Offsets    []float64 `yaml:"offsets,omitempty"`

	// Pairing, Groups and DefaultGroup override the configured lane layout
	Pairing      string   `yaml:"pairing,omitempty" validate:"omitempty,oneof=none block interleaved"`
	Groups       []string `yaml:"groups,omitempty"`
	DefaultGroup string   `yaml:"defaultGroup,omitempty"`
	LaneOffset   int      `yaml:"laneOffset,omitempty" validate:"gte=0"`

	// Control names the loading-control pass a target is normalized by.
	// Without it the closest preceding loading-control pass for the same
	// group is used.
	Control string `yaml:"control,omitempty"`

	// ControlTable imports loading-control lanes from an exported table
	// instead; ControlImage and ControlROI select its rows.
	ControlTable string `yaml:"controlTable,omitempty"`
	ControlImage string `yaml:"controlImage,omitempty"`
	ControlROI   string `yaml:"controlROI,omitempty"`
}

// ProteinName is the label statistics are grouped under.
func (p Pass) ProteinName() string {
	if p.Protein != "" {
		return p.Protein
	}
	return p.ID
}

// ImageSpec locates one blot image of a plan.
type ImageSpec struct {
	ID       string  `yaml:"id"`
	Path     string  `yaml:"path" validate:"required"`
	Inverted bool    `yaml:"inverted,omitempty"`
	Rotation float64 `yaml:"rotation,omitempty"`
}

// Plan is an analysis session: images, the passes run over each of them and
// the replicates left out of statistics.
type Plan struct {
	Images []ImageSpec `yaml:"images,omitempty" validate:"dive"`
	Passes []Pass      `yaml:"passes" validate:"required,min=1,dive"`

	// Exclude lists 1-based replicates per group that are kept in the lane
	// table but dropped from statistics
	Exclude map[string][]int `yaml:"exclude,omitempty"`

	// BaseDir resolves relative image and table paths
	BaseDir string `yaml:"-"`
}

// LoadPlan reads and validates a YAML plan. Relative paths inside it are
// resolved against the plan's directory.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading plan: %w", err)
	}
	var plan Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("error parsing plan: %w", err)
	}
	plan.BaseDir = filepath.Dir(path)
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return &plan, nil
}

// SavePlan writes a plan as YAML.
func SavePlan(plan *Plan, path string) error {
	data, err := yaml.Marshal(plan)
	if err != nil {
		return fmt.Errorf("error marshaling plan: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks field constraints and that every target pass has exactly
// one loading-control source it can be normalized by.
func (p *Plan) Validate() error {
	if err := validator.New().Struct(p); err != nil {
		return quanterr.Wrap(quanterr.InvalidParameter, "plan", err)
	}

	index := make(map[string]int, len(p.Passes))
	for i, pass := range p.Passes {
		if _, dup := index[pass.ID]; dup {
			return planError("pass id %q is used twice", pass.ID)
		}
		index[pass.ID] = i
	}

	for i, pass := range p.Passes {
		switch pass.Kind {
		case KindLoadingControl:
			if pass.Control != "" || pass.ControlTable != "" {
				return planError("loading-control pass %q cannot have a control", pass.ID)
			}
		case KindTarget:
			if pass.Control != "" && pass.ControlTable != "" {
				return planError("pass %q sets both control and controlTable", pass.ID)
			}
			if pass.ControlTable != "" {
				continue
			}
			if _, err := p.controlFor(i); err != nil {
				return err
			}
		}
	}

	for group, reps := range p.Exclude {
		for _, r := range reps {
			if r < 1 {
				return planError("exclusion %d of group %q must be 1-based", r, group)
			}
		}
	}
	return nil
}

// controlFor returns the index of the loading-control pass for target i.
func (p *Plan) controlFor(i int) (int, error) {
	target := p.Passes[i]
	if target.Control != "" {
		for j, pass := range p.Passes {
			if pass.ID != target.Control {
				continue
			}
			if pass.Kind != KindLoadingControl {
				return -1, planError("pass %q names %q as control, which is not a loading control", target.ID, pass.ID)
			}
			return j, nil
		}
		return -1, planError("pass %q names unknown control %q", target.ID, target.Control)
	}

	key := groupKey(target)
	for j := i - 1; j >= 0; j-- {
		if p.Passes[j].Kind == KindLoadingControl && groupKey(p.Passes[j]) == key {
			return j, nil
		}
	}
	return -1, planError("target pass %q has no preceding loading control", target.ID)
}

// groupKey is the group a whole pass is recorded under. Passes without a
// default group share the empty key.
func groupKey(p Pass) string {
	return strings.ToLower(strings.TrimSpace(p.DefaultGroup))
}

func planError(format string, args ...any) error {
	return quanterr.New(quanterr.InvalidParameter, "plan", format, args...)
}

func (p *Plan) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || p.BaseDir == "" {
		return path
	}
	return filepath.Join(p.BaseDir, path)
}

// excluded reports whether replicate of group is left out of statistics.
func (p *Plan) excluded(group string, replicate int) bool {
	for _, r := range p.Exclude[group] {
		if r == replicate {
			return true
		}
	}
	return false
}
