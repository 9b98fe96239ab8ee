package quantify

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blotquant/internal/models"
	"blotquant/pkg/geometry"
	"blotquant/pkg/quanterr"
)

// bandField builds a width x height field of value bg with a vertical band
// of value band spanning columns [from, to)
func bandField(width, height int, bg, band float64, from, to int) *models.ImageField {
	pix := make([]float64, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := bg
			if x >= from && x < to {
				v = band
			}
			pix[y*width+x] = v
		}
	}
	return models.WrapPixels("blot", width, height, 255, pix)
}

func lane(index, x, y, w, h int) models.Lane {
	return models.Lane{Index: index, Rect: models.Rect{X: x, Y: y, Width: w, Height: h}, Group: "Control", Replicate: index + 1}
}

func TestQuantifyBandScenarioSingleRow(t *testing.T) {
	f := bandField(30, 1, 100, 200, 10, 20)
	q, err := New(0.2, 1)
	require.NoError(t, err)

	m, err := q.Quantify(f, "roi", lane(0, 0, 0, 30, 1))
	require.NoError(t, err)
	assert.Equal(t, 100.0, m.Background)
	assert.Positive(t, m.StdDev)
	assert.InDelta(t, 100+0.2*m.StdDev, m.Threshold, 1e-12)
	assert.InDelta(t, 1000, m.IntegratedDensity, 1e-9)
	assert.Equal(t, 30, m.PixelCount)
}

func TestQuantifyBandScenarioFullROI(t *testing.T) {
	// 120x50 ROI, 4 lanes of 30px; lane 1 carries a 10px band at 200
	f := bandField(120, 50, 100, 200, 40, 50)
	layout, err := geometry.Resolve(models.ROI{ID: "roi", Rect: f.Bounds()}, 4, nil, geometry.Options{})
	require.NoError(t, err)

	q, err := New(0.3, 2)
	require.NoError(t, err)
	ms, err := q.QuantifyLanes(context.Background(), f, "roi", layout.Lanes)
	require.NoError(t, err)
	require.Len(t, ms, 4)

	band := ms[1]
	assert.Equal(t, 100.0, band.Background)
	assert.Positive(t, band.StdDev)
	assert.InDelta(t, 10*50*(200-100), band.IntegratedDensity, 1e-9)
	assert.Equal(t, 1500, band.PixelCount)

	for _, i := range []int{0, 2, 3} {
		assert.Zero(t, ms[i].IntegratedDensity, "lane %d is flat", i)
		assert.Zero(t, ms[i].StdDev)
		assert.Equal(t, ms[i].Background, ms[i].Threshold)
	}
}

func TestQuantifyZeroSignal(t *testing.T) {
	f := models.NewUniformField("flat", 20, 10, 255, 87)
	q := &Quantifier{Sensitivity: 0.5}
	m, err := q.Quantify(f, "roi", lane(0, 0, 0, 20, 10))
	require.NoError(t, err)
	assert.Equal(t, 87.0, m.Background)
	assert.Zero(t, m.StdDev)
	assert.Zero(t, m.IntegratedDensity)
}

func TestQuantifyAllBelowThreshold(t *testing.T) {
	// Low-amplitude noise with k large enough to reject every pixel
	pix := []float64{10, 11, 10, 11, 10, 11, 10, 11}
	m := Measure(pix, 10)
	assert.Zero(t, m.IntegratedDensity)
}

func TestMeasureNonNegative(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 200; trial++ {
		n := 1 + rng.Intn(300)
		pix := make([]float64, n)
		for i := range pix {
			pix[i] = rng.Float64() * 65535
		}
		k := rng.Float64() * 2
		m := Measure(pix, k)
		assert.GreaterOrEqual(t, m.IntegratedDensity, 0.0)
		assert.Equal(t, n, m.PixelCount)
	}
}

func TestMeasureMonotonicInSensitivity(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	pix := make([]float64, 400)
	for i := range pix {
		pix[i] = 50 + rng.NormFloat64()*5
		if i%40 < 6 {
			pix[i] += 120 * rng.Float64()
		}
	}

	prev := Measure(pix, 0).IntegratedDensity
	for k := 0.1; k <= 4; k += 0.1 {
		cur := Measure(pix, k).IntegratedDensity
		assert.LessOrEqual(t, cur, prev, "k=%.1f", k)
		prev = cur
	}
}

func TestMeasureDeterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	pix := make([]float64, 500)
	for i := range pix {
		pix[i] = rng.Float64() * 255
	}
	original := append([]float64(nil), pix...)

	a := Measure(pix, 0.25)
	b := Measure(pix, 0.25)
	assert.Equal(t, a, b)
	assert.Equal(t, original, pix, "input must not be reordered")
}

func TestMeasureEmpty(t *testing.T) {
	m := Measure(nil, 0.2)
	assert.Zero(t, m.PixelCount)
	assert.Zero(t, m.IntegratedDensity)
}

func TestBackgroundIsLowerQuartile(t *testing.T) {
	pix := []float64{8, 1, 7, 2, 6, 3, 5, 4}
	m := Measure(pix, 0)
	assert.Equal(t, 2.0, m.Background)
}

func TestQuantifyLaneOutsideField(t *testing.T) {
	f := models.NewUniformField("img", 10, 10, 255, 1)
	q := &Quantifier{Sensitivity: 0.2}
	_, err := q.Quantify(f, "roi-x", lane(4, 5, 0, 10, 10))
	require.Error(t, err)
	assert.ErrorIs(t, err, quanterr.ErrInvalidGeometry)

	var qe *quanterr.Error
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, "img", qe.ImageID)
	assert.Equal(t, "roi-x", qe.ROIID)
	assert.Equal(t, 4, qe.Lane)
}

func TestNewRejectsBadSensitivity(t *testing.T) {
	_, err := New(-0.1, 1)
	assert.ErrorIs(t, err, quanterr.ErrInvalidParameter)

	q, err := New(0, 0)
	require.NoError(t, err)
	assert.Positive(t, q.workers())
}

func TestQuantifyLanesKeepsOrder(t *testing.T) {
	width := 200
	pix := make([]float64, width*4)
	for y := 0; y < 4; y++ {
		for x := 0; x < width; x++ {
			// Each 10px lane gets a distinct peak so results are identifiable
			v := 10.0
			if x%10 == 5 {
				v = float64(20 + x)
			}
			pix[y*width+x] = v
		}
	}
	f := models.WrapPixels("ordered", width, 4, 255, pix)
	layout, err := geometry.Resolve(models.ROI{ID: "r", Rect: f.Bounds()}, 20, nil, geometry.Options{})
	require.NoError(t, err)

	q := &Quantifier{Sensitivity: 0.2, Workers: 8}
	ms, err := q.QuantifyLanes(context.Background(), f, "r", layout.Lanes)
	require.NoError(t, err)

	serial := make([]models.LaneMeasurement, len(layout.Lanes))
	for i, l := range layout.Lanes {
		serial[i], err = q.Quantify(f, "r", l)
		require.NoError(t, err)
	}
	assert.Equal(t, serial, ms)
	for i := 1; i < len(ms); i++ {
		assert.Greater(t, ms[i].IntegratedDensity, ms[i-1].IntegratedDensity)
		assert.Equal(t, i, ms[i].LaneIndex)
	}
}

func TestQuantifyLanesPropagatesError(t *testing.T) {
	f := models.NewUniformField("img", 10, 10, 255, 1)
	lanes := []models.Lane{lane(0, 0, 0, 5, 10), lane(1, 5, 0, 50, 10)}
	q := &Quantifier{Sensitivity: 0.2, Workers: 2}
	_, err := q.QuantifyLanes(context.Background(), f, "roi", lanes)
	assert.ErrorIs(t, err, quanterr.ErrInvalidGeometry)
}

func TestQuantifyLanesCancelled(t *testing.T) {
	f := models.NewUniformField("img", 10, 10, 255, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	q := &Quantifier{Sensitivity: 0.2, Workers: 1}
	_, err := q.QuantifyLanes(ctx, f, "roi", []models.Lane{lane(0, 0, 0, 5, 10)})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestQuantifyBatch(t *testing.T) {
	a := bandField(40, 5, 10, 90, 0, 5)
	a.ID = "a"
	b := models.NewUniformField("b", 40, 5, 255, 30)

	la, err := geometry.Resolve(models.ROI{ID: "ra", Rect: a.Bounds()}, 4, nil, geometry.Options{})
	require.NoError(t, err)
	lb, err := geometry.Resolve(models.ROI{ID: "rb", Rect: b.Bounds()}, 2, nil, geometry.Options{})
	require.NoError(t, err)

	q := &Quantifier{Sensitivity: 0.2, Workers: 3}
	out, err := q.QuantifyBatch(context.Background(), []Job{
		{Field: a, ROIID: "ra", Lanes: la.Lanes},
		{Field: b, ROIID: "rb", Lanes: lb.Lanes},
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Len(t, out[0], 4)
	require.Len(t, out[1], 2)

	assert.Equal(t, "a", out[0][0].ImageID)
	assert.Equal(t, "rb", out[1][1].ROIID)
	assert.InDelta(t, 5*5*80, out[0][0].IntegratedDensity, 1e-9)
	assert.Zero(t, out[1][0].IntegratedDensity)
}
