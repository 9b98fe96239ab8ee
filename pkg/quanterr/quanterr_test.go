package quanterr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMatchesSentinelByKind(t *testing.T) {
	err := New(UndefinedNormalization, "normalize", "control density is zero").
		WithSource("blot-1", "actin").
		WithLane(3)

	assert.ErrorIs(t, err, ErrUndefinedNormalization)
	assert.NotErrorIs(t, err, ErrMismatchedLaneCount)

	wrapped := fmt.Errorf("run pass: %w", err)
	assert.ErrorIs(t, wrapped, ErrUndefinedNormalization)

	kind, ok := KindOf(wrapped)
	require.True(t, ok)
	assert.Equal(t, UndefinedNormalization, kind)
}

func TestErrorMessageCarriesLocation(t *testing.T) {
	err := New(InvalidGeometry, "quantify", "lane outside field").WithSource("img", "roi-a").WithLane(2)
	assert.Equal(t, "quantify: invalid geometry (image img, roi roi-a, lane 2): lane outside field", err.Error())

	bare := New(InsufficientSamples, "", "need 2")
	assert.Equal(t, "insufficient samples: need 2", bare.Error())
}

func TestWithLaneDoesNotMutateOriginal(t *testing.T) {
	base := New(InvalidParameter, "op", "x")
	tagged := base.WithLane(5)
	assert.Equal(t, NoLane, base.Lane)
	assert.Equal(t, 5, tagged.Lane)
}

func TestWrapUnwraps(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(InvalidParameter, "config", cause)
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrInvalidParameter)

	_, ok := KindOf(cause)
	assert.False(t, ok)
}
