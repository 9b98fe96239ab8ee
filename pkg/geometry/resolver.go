// Package geometry partitions an ROI into lanes. Resolution is a pure
// function of the ROI, the lane count and the separator offsets, so a UI can
// call it repeatedly while separators are dragged, or replay an earlier input
// to undo.
package geometry

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/stat"

	"blotquant/internal/models"
	"blotquant/pkg/quanterr"
)

// Pairing controls how group labels are assigned to lanes.
type Pairing int

const (
	// PairingNone gives every lane Options.DefaultGroup.
	PairingNone Pairing = iota
	// PairingBlock assigns contiguous blocks, one per group label.
	PairingBlock
	// PairingInterleaved cycles through the group labels lane by lane.
	PairingInterleaved
)

func (p Pairing) String() string {
	switch p {
	case PairingBlock:
		return "block"
	case PairingInterleaved:
		return "interleaved"
	default:
		return "none"
	}
}

// ParsePairing maps a config string onto a Pairing.
func ParsePairing(s string) (Pairing, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return PairingNone, nil
	case "block":
		return PairingBlock, nil
	case "interleaved":
		return PairingInterleaved, nil
	}
	return PairingNone, fmt.Errorf("unknown pairing policy %q", s)
}

// Default group labels used by Equal N pairing.
const (
	GroupControl   = "Control"
	GroupTreatment = "Treatment"
)

// Options tune label assignment and lane numbering.
type Options struct {
	Pairing Pairing

	// Groups are the labels distributed by block or interleaved pairing.
	// Empty means Control, Treatment.
	Groups []string

	// DefaultGroup labels every lane under PairingNone. Empty means Control.
	DefaultGroup string

	// LaneOffset is added to every lane index so lanes from separate ROIs
	// can share a physical lane number.
	LaneOffset int
}

// Layout is the resolved partition of one ROI.
type Layout struct {
	ROI   models.ROI
	Lanes []models.Lane

	// UsedOffsets is false when offsets were absent or rejected and equal
	// division was used instead.
	UsedOffsets bool

	// Unbalanced is set when pairing could not give every group the same
	// number of lanes.
	Unbalanced bool

	// WidthCV is the coefficient of variation of lane widths. A high value
	// usually means a misplaced separator.
	WidthCV float64
}

// Resolve splits roi into replicateCount lanes that tile its width exactly.
// offsets, if valid, are fractions of the ROI width marking separator
// positions; invalid offsets fall back to equal division.
func Resolve(roi models.ROI, replicateCount int, offsets []float64, opts Options) (Layout, error) {
	if replicateCount < 1 {
		return Layout{}, quanterr.New(quanterr.InvalidGeometry, "resolve lanes",
			"replicate count must be at least 1, got %d", replicateCount).WithSource("", roi.ID)
	}
	if roi.Empty() {
		return Layout{}, quanterr.New(quanterr.InvalidGeometry, "resolve lanes",
			"roi %v has no area", roi.Rect).WithSource("", roi.ID)
	}
	if roi.Width < replicateCount {
		return Layout{}, quanterr.New(quanterr.InvalidGeometry, "resolve lanes",
			"roi width %d cannot hold %d lanes", roi.Width, replicateCount).WithSource("", roi.ID)
	}

	bounds, used := offsetBoundaries(roi.Rect, replicateCount, offsets)
	if !used {
		bounds = equalBoundaries(roi.Rect, replicateCount)
	}

	lanes := make([]models.Lane, replicateCount)
	widths := make([]float64, replicateCount)
	for i := 0; i < replicateCount; i++ {
		lanes[i] = models.Lane{
			Index: opts.LaneOffset + i,
			Rect: models.Rect{
				X:      bounds[i],
				Y:      roi.Y,
				Width:  bounds[i+1] - bounds[i],
				Height: roi.Height,
			},
		}
		widths[i] = float64(lanes[i].Rect.Width)
	}

	unbalanced := assignGroups(lanes, opts)

	return Layout{
		ROI:         roi,
		Lanes:       lanes,
		UsedOffsets: used,
		Unbalanced:  unbalanced,
		WidthCV:     coefficientOfVariation(widths),
	}, nil
}

// equalBoundaries returns n+1 edges with lane i spanning
// [x + floor(i*w/n), x + floor((i+1)*w/n)).
func equalBoundaries(r models.Rect, n int) []int {
	bounds := make([]int, n+1)
	for i := 0; i <= n; i++ {
		bounds[i] = r.X + i*r.Width/n
	}
	return bounds
}

// offsetBoundaries converts separator fractions into edges. It reports false
// when the offsets cannot describe n lanes of at least one pixel.
func offsetBoundaries(r models.Rect, n int, offsets []float64) ([]int, bool) {
	if len(offsets) == 0 || len(offsets) != n-1 {
		return nil, false
	}
	bounds := make([]int, 0, n+1)
	bounds = append(bounds, r.X)
	prev := 0.0
	for _, off := range offsets {
		if math.IsNaN(off) || off <= prev || off >= 1 {
			return nil, false
		}
		prev = off
		edge := r.X + offsetEdge(off, r.Width)
		if edge <= bounds[len(bounds)-1] {
			return nil, false
		}
		bounds = append(bounds, edge)
	}
	if bounds[len(bounds)-1] >= r.Right() {
		return nil, false
	}
	bounds = append(bounds, r.Right())
	return bounds, true
}

// edgeTolerance absorbs the rounding error of fractions such as i/n, so an
// offset that names an integer column lands on that column.
const edgeTolerance = 1e-9

func offsetEdge(off float64, width int) int {
	return int(math.Floor(off*float64(width) + edgeTolerance))
}

func assignGroups(lanes []models.Lane, opts Options) bool {
	groups := opts.Groups
	if len(groups) == 0 {
		groups = []string{GroupControl, GroupTreatment}
	}
	n := len(lanes)
	counts := make(map[string]int)
	label := func(i int, g string) {
		counts[g]++
		lanes[i].Group = g
		lanes[i].Replicate = counts[g]
	}

	switch opts.Pairing {
	case PairingBlock:
		// Remainder lanes go to the trailing groups, so with two groups and
		// an odd count the treatment block is the larger one
		g := len(groups)
		base := n / g
		extra := n % g
		i := 0
		for gi, name := range groups {
			size := base
			if gi >= g-extra {
				size++
			}
			for k := 0; k < size; k++ {
				label(i, name)
				i++
			}
		}
		return extra != 0
	case PairingInterleaved:
		for i := range lanes {
			label(i, groups[i%len(groups)])
		}
		return n%len(groups) != 0
	default:
		name := opts.DefaultGroup
		if name == "" {
			name = GroupControl
		}
		for i := range lanes {
			label(i, name)
		}
		return false
	}
}

func coefficientOfVariation(widths []float64) float64 {
	mean, variance := stat.PopMeanVariance(widths, nil)
	if mean == 0 {
		return 0
	}
	return math.Sqrt(variance) / mean
}

// EqualOffsets returns the separator fractions of an equal division into n
// lanes, the starting point for manual adjustment.
func EqualOffsets(n int) []float64 {
	if n < 2 {
		return nil
	}
	out := make([]float64, n-1)
	for i := range out {
		out[i] = float64(i+1) / float64(n)
	}
	return out
}

// Boundaries lists the lane edges, left to right, including both ROI edges.
func (l Layout) Boundaries() []int {
	if len(l.Lanes) == 0 {
		return nil
	}
	out := make([]int, 0, len(l.Lanes)+1)
	for _, lane := range l.Lanes {
		out = append(out, lane.Rect.X)
	}
	last := l.Lanes[len(l.Lanes)-1].Rect
	return append(out, last.Right())
}

// LanesInGroup returns the lanes labelled group, in order.
func (l Layout) LanesInGroup(group string) []models.Lane {
	var out []models.Lane
	for _, lane := range l.Lanes {
		if lane.Group == group {
			out = append(out, lane)
		}
	}
	return out
}
