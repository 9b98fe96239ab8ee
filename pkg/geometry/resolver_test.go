package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blotquant/internal/models"
	"blotquant/pkg/quanterr"
)

func roi(x, y, w, h int) models.ROI {
	return models.ROI{ID: "roi", Rect: models.Rect{X: x, Y: y, Width: w, Height: h}}
}

// assertTiles checks lanes cover the ROI width exactly once
func assertTiles(t *testing.T, r models.ROI, layout Layout, n int) {
	t.Helper()
	require.Len(t, layout.Lanes, n)
	sum := 0
	next := r.X
	for i, lane := range layout.Lanes {
		assert.Equal(t, next, lane.Rect.X, "lane %d starts where the previous ended", i)
		assert.Equal(t, r.Y, lane.Rect.Y)
		assert.Equal(t, r.Height, lane.Rect.Height)
		assert.Positive(t, lane.Rect.Width)
		next = lane.Rect.Right()
		sum += lane.Rect.Width
	}
	assert.Equal(t, r.Width, sum)
	assert.Equal(t, r.Right(), next)
}

func TestResolveTilingInvariant(t *testing.T) {
	for _, width := range []int{1, 7, 30, 99, 120, 257, 1000} {
		for n := 1; n <= 13 && n <= width; n++ {
			r := roi(11, 4, width, 20)
			layout, err := Resolve(r, n, nil, Options{})
			require.NoError(t, err)
			assertTiles(t, r, layout, n)
			assert.False(t, layout.UsedOffsets)
		}
	}
}

func TestResolveEqualScenario(t *testing.T) {
	r := roi(0, 0, 120, 50)
	layout, err := Resolve(r, 4, nil, Options{})
	require.NoError(t, err)

	for i, lane := range layout.Lanes {
		assert.Equal(t, i, lane.Index)
		assert.Equal(t, 30, lane.Rect.Width)
		assert.Equal(t, 30*i, lane.Rect.X)
		assert.Equal(t, 50, lane.Rect.Height)
	}
	assert.Equal(t, []int{0, 30, 60, 90, 120}, layout.Boundaries())
	assert.Zero(t, layout.WidthCV)
}

func TestResolveEqualRoundingDistributed(t *testing.T) {
	r := roi(0, 0, 10, 5)
	layout, err := Resolve(r, 3, nil, Options{})
	require.NoError(t, err)
	// floor(i*10/3): 0, 3, 6, 10
	assert.Equal(t, []int{0, 3, 6, 10}, layout.Boundaries())
	assert.Positive(t, layout.WidthCV)
}

func TestResolveWithOffsets(t *testing.T) {
	r := roi(100, 0, 200, 40)
	offsets := []float64{0.1, 0.5, 0.9}

	layout, err := Resolve(r, 4, offsets, Options{})
	require.NoError(t, err)
	assert.True(t, layout.UsedOffsets)
	assert.Equal(t, []int{100, 120, 200, 280, 300}, layout.Boundaries())
	assertTiles(t, r, layout, 4)

	again, err := Resolve(r, 4, offsets, Options{})
	require.NoError(t, err)
	assert.Equal(t, layout, again)
}

func TestResolveDraggingOneSeparatorLeavesOthers(t *testing.T) {
	r := roi(0, 0, 100, 10)
	before, err := Resolve(r, 4, []float64{0.25, 0.5, 0.75}, Options{})
	require.NoError(t, err)
	after, err := Resolve(r, 4, []float64{0.25, 0.6, 0.75}, Options{})
	require.NoError(t, err)

	assert.Equal(t, before.Lanes[0].Rect, after.Lanes[0].Rect)
	assert.Equal(t, before.Lanes[3].Rect, after.Lanes[3].Rect)
	assert.Equal(t, 35, after.Lanes[1].Rect.Width)
	assert.Equal(t, 15, after.Lanes[2].Rect.Width)
}

func TestResolveInvalidOffsetsFallBack(t *testing.T) {
	r := roi(0, 0, 120, 10)
	cases := map[string][]float64{
		"wrong length":     {0.5},
		"not increasing":   {0.5, 0.4, 0.8},
		"duplicate":        {0.25, 0.25, 0.75},
		"zero":             {0, 0.5, 0.75},
		"one":              {0.25, 0.5, 1},
		"collapse to zero": {0.001, 0.002, 0.5},
	}
	for name, offsets := range cases {
		t.Run(name, func(t *testing.T) {
			layout, err := Resolve(r, 4, offsets, Options{})
			require.NoError(t, err)
			assert.False(t, layout.UsedOffsets)
			assert.Equal(t, []int{0, 30, 60, 90, 120}, layout.Boundaries())
		})
	}
}

func TestResolveInvalidGeometry(t *testing.T) {
	cases := []struct {
		name string
		r    models.ROI
		n    int
	}{
		{"zero lanes", roi(0, 0, 10, 10), 0},
		{"negative lanes", roi(0, 0, 10, 10), -2},
		{"empty roi", roi(0, 0, 0, 10), 1},
		{"flat roi", roi(0, 0, 10, 0), 1},
		{"too narrow", roi(0, 0, 3, 10), 4},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Resolve(tc.r, tc.n, nil, Options{})
			require.Error(t, err)
			assert.ErrorIs(t, err, quanterr.ErrInvalidGeometry)
		})
	}
}

func TestPairingBlock(t *testing.T) {
	layout, err := Resolve(roi(0, 0, 60, 10), 6, nil, Options{Pairing: PairingBlock})
	require.NoError(t, err)
	assert.False(t, layout.Unbalanced)

	groups := make([]string, 0, 6)
	reps := make([]int, 0, 6)
	for _, lane := range layout.Lanes {
		groups = append(groups, lane.Group)
		reps = append(reps, lane.Replicate)
	}
	assert.Equal(t, []string{"Control", "Control", "Control", "Treatment", "Treatment", "Treatment"}, groups)
	assert.Equal(t, []int{1, 2, 3, 1, 2, 3}, reps)
}

func TestPairingInterleaved(t *testing.T) {
	layout, err := Resolve(roi(0, 0, 40, 10), 4, nil, Options{Pairing: PairingInterleaved})
	require.NoError(t, err)

	var groups []string
	for _, lane := range layout.Lanes {
		groups = append(groups, lane.Group)
	}
	assert.Equal(t, []string{"Control", "Treatment", "Control", "Treatment"}, groups)
	assert.Len(t, layout.LanesInGroup("Treatment"), 2)
	assert.Equal(t, 2, layout.LanesInGroup("Treatment")[1].Replicate)
}

func TestPairingOddCount(t *testing.T) {
	block, err := Resolve(roi(0, 0, 50, 10), 5, nil, Options{Pairing: PairingBlock})
	require.NoError(t, err)
	assert.True(t, block.Unbalanced)
	assert.Len(t, block.LanesInGroup("Control"), 2)
	assert.Len(t, block.LanesInGroup("Treatment"), 3)

	inter, err := Resolve(roi(0, 0, 50, 10), 5, nil, Options{Pairing: PairingInterleaved})
	require.NoError(t, err)
	assert.True(t, inter.Unbalanced)
	assert.Len(t, inter.LanesInGroup("Control"), 3)
}

func TestPairingNaryGroups(t *testing.T) {
	opts := Options{Pairing: PairingBlock, Groups: []string{"Vehicle", "Low", "High"}}
	layout, err := Resolve(roi(0, 0, 90, 10), 6, nil, opts)
	require.NoError(t, err)
	assert.Len(t, layout.LanesInGroup("Vehicle"), 2)
	assert.Len(t, layout.LanesInGroup("Low"), 2)
	assert.Len(t, layout.LanesInGroup("High"), 2)
	assert.Equal(t, "Low", layout.Lanes[2].Group)
}

func TestPairingNoneUsesDefaultGroup(t *testing.T) {
	layout, err := Resolve(roi(0, 0, 30, 10), 3, nil, Options{DefaultGroup: "Treatment"})
	require.NoError(t, err)
	for i, lane := range layout.Lanes {
		assert.Equal(t, "Treatment", lane.Group)
		assert.Equal(t, i+1, lane.Replicate)
	}
}

func TestLaneOffset(t *testing.T) {
	layout, err := Resolve(roi(0, 0, 30, 10), 3, nil, Options{LaneOffset: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, layout.Lanes[0].Index)
	assert.Equal(t, 4, layout.Lanes[2].Index)
}

func TestParsePairing(t *testing.T) {
	for in, want := range map[string]Pairing{"": PairingNone, "none": PairingNone, "Block": PairingBlock, " interleaved ": PairingInterleaved} {
		got, err := ParsePairing(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		if in != "" {
			assert.Equal(t, want.String(), got.String())
		}
	}
	_, err := ParsePairing("zigzag")
	assert.Error(t, err)
}

func TestEqualOffsetsRoundTrip(t *testing.T) {
	assert.Nil(t, EqualOffsets(1))
	offsets := EqualOffsets(4)
	assert.Equal(t, []float64{0.25, 0.5, 0.75}, offsets)

	r := roi(0, 0, 120, 10)
	fromOffsets, err := Resolve(r, 4, offsets, Options{})
	require.NoError(t, err)
	equal, err := Resolve(r, 4, nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, equal.Boundaries(), fromOffsets.Boundaries())
}

func TestEqualOffsetsMatchEqualDivision(t *testing.T) {
	for width := 2; width <= 600; width++ {
		for n := 2; n <= 24 && n <= width; n++ {
			r := roi(0, 0, width, 5)
			equal, err := Resolve(r, n, nil, Options{})
			require.NoError(t, err)
			fromOffsets, err := Resolve(r, n, EqualOffsets(n), Options{})
			require.NoError(t, err)
			if !assert.True(t, fromOffsets.UsedOffsets, "w=%d n=%d", width, n) {
				return
			}
			if !assert.Equal(t, equal.Boundaries(), fromOffsets.Boundaries(), "w=%d n=%d", width, n) {
				return
			}
		}
	}
}

func TestDraggingFromEqualOffsetsKeepsOtherLanes(t *testing.T) {
	r := roi(0, 0, 55, 5)
	offsets := EqualOffsets(11)
	base, err := Resolve(r, 11, offsets, Options{})
	require.NoError(t, err)

	offsets[4] += 0.02
	moved, err := Resolve(r, 11, offsets, Options{})
	require.NoError(t, err)
	for i := range base.Lanes {
		if i == 4 || i == 5 {
			continue
		}
		assert.Equal(t, base.Lanes[i].Rect, moved.Lanes[i].Rect, "lane %d", i)
	}
	assert.Equal(t, []int{0, 5, 10, 15, 20}, base.Boundaries()[:5])
}
