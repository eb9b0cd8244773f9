package lstm

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seq(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i + 1)
	}
	return out
}

func TestBuildWindowsCountAndTargets(t *testing.T) {
	tests := []struct {
		n, lookback int
	}{
		{n: 100, lookback: 10},
		{n: 61, lookback: 60},
		{n: 7, lookback: 3},
		{n: 2, lookback: 1},
	}
	for _, tt := range tests {
		series := seq(tt.n)
		ds, err := BuildWindows(series, tt.lookback)
		require.NoError(t, err)
		require.Len(t, ds, tt.n-tt.lookback)
		for i, w := range ds {
			assert.Equal(t, series[i:i+tt.lookback], w.Input)
			assert.Equal(t, series[i+tt.lookback], w.Target)
		}
	}
}

func TestBuildWindowsSingleWindow(t *testing.T) {
	ds, err := BuildWindows(seq(61), 60)
	require.NoError(t, err)
	require.Len(t, ds, 1)
	assert.Equal(t, 61.0, ds[0].Target)
}

func TestBuildWindowsInsufficientData(t *testing.T) {
	for _, n := range []int{0, 1, 59, 60} {
		_, err := BuildWindows(seq(n), 60)
		assert.ErrorIs(t, err, ErrInsufficientData, "n=%d", n)
	}
}

func TestBuildWindowsInputIsCapped(t *testing.T) {
	series := seq(5)
	ds, err := BuildWindows(series, 2)
	require.NoError(t, err)
	_ = append(ds[0].Input, 99)
	assert.Equal(t, 3.0, series[2])
}

func TestSplitSizes(t *testing.T) {
	for _, d := range []int{1, 5, 10, 18, 72, 90, 1000, 1197} {
		ds := make(Dataset, d)
		train, eval := Split(ds, 0.8, rand.New(rand.NewSource(1)))
		assert.Equal(t, int(float64(d)*8/10), len(train), "d=%d", d)
		assert.Equal(t, d, len(train)+len(eval), "d=%d", d)
	}
}

func TestTrainSizeUsesFloor(t *testing.T) {
	assert.Equal(t, 72, TrainSize(90, 0.8))
	assert.Equal(t, 7, TrainSize(10, 0.7))
	assert.Equal(t, 3, TrainSize(4, 0.8))
	assert.Equal(t, 0, TrainSize(1, 0.8))
}

func TestSplitIsAPartition(t *testing.T) {
	ds, err := BuildWindows(seq(50), 5)
	require.NoError(t, err)
	train, eval := Split(ds, 0.8, rand.New(rand.NewSource(3)))

	seen := map[float64]int{}
	for _, w := range append(append(Dataset{}, train...), eval...) {
		seen[w.Target]++
	}
	require.Len(t, seen, len(ds))
	for target, count := range seen {
		assert.Equal(t, 1, count, "target %v", target)
	}
}

func TestSplitWithoutRandKeepsOrder(t *testing.T) {
	ds, err := BuildWindows(seq(20), 5)
	require.NoError(t, err)
	train, eval := Split(ds, 0.8, nil)
	assert.Equal(t, ds[:12], train)
	assert.Equal(t, ds[12:], eval)
}
