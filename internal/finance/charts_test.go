package finance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMovingAverage(t *testing.T) {
	assert.Equal(t, []float64{2, 3, 4}, movingAverage([]float64{1, 2, 3, 4, 5}, 3))
	assert.Nil(t, movingAverage([]float64{1, 2}, 3))
	assert.Nil(t, movingAverage([]float64{1, 2}, 0))
}

func TestPaddedRange(t *testing.T) {
	lo, hi := paddedRange([]float64{100, 110}, []float64{90})
	assert.InDelta(t, 89, lo, 1e-9)
	assert.InDelta(t, 111, hi, 1e-9)

	lo, _ = paddedRange([]float64{1, 100})
	assert.Equal(t, 0.0, lo)
}

func TestChartCacheExpires(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := base
	now = func() time.Time { return clock }
	t.Cleanup(func() { now = time.Now })

	cacheSet("k", []byte{1, 2, 3})
	img, ok := cacheGet("k")
	require.True(t, ok)
	img[0] = 9
	again, _ := cacheGet("k")
	assert.Equal(t, byte(1), again[0], "callers get a copy")

	clock = base.Add(chartCacheTTL + time.Second)
	_, ok = cacheGet("k")
	assert.False(t, ok)
}

func TestMakeWeightsChart(t *testing.T) {
	img, err := MakeWeightsChart([]string{"AAA", "BBB"}, []float64{0.7, 0.3}, "Weights")
	require.NoError(t, err)
	assert.NotEmpty(t, img)

	img, err = MakeWeightsChart([]string{"AAA", "BBB"}, []float64{1.4, -0.4}, "Weights")
	require.NoError(t, err)
	assert.NotEmpty(t, img)

	_, err = MakeWeightsChart([]string{"AAA"}, []float64{0.5, 0.5}, "Weights")
	assert.Error(t, err)
}
