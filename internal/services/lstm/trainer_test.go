package lstm

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallConfig() Config {
	return Config{
		Lookback:      5,
		Horizon:       3,
		Epochs:        30,
		BatchSize:     8,
		LearningRate:  0.01,
		HiddenSize:    8,
		TrainFraction: 0.8,
		Seed:          7,
		Workers:       1,
	}
}

func sineDataset(t *testing.T, n, lookback int) Dataset {
	t.Helper()
	series := make([]float64, n)
	for i := range series {
		series[i] = 0.5 + 0.4*math.Sin(float64(i)/6)
	}
	ds, err := BuildWindows(series, lookback)
	require.NoError(t, err)
	return ds
}

func TestTrainLossDecreases(t *testing.T) {
	cfg := smallConfig()
	var losses []float64
	tr := NewTrainer(cfg, WithEpochHook(func(s EpochStats) {
		assert.Equal(t, cfg.Epochs, s.Epochs)
		losses = append(losses, s.Loss)
	}))

	m, err := tr.Train(context.Background(), sineDataset(t, 120, cfg.Lookback))
	require.NoError(t, err)
	require.NotNil(t, m)
	require.Len(t, losses, cfg.Epochs)
	assert.Less(t, losses[len(losses)-1], losses[0])
	assert.Less(t, mean(losses[len(losses)-5:]), mean(losses[:5]))
}

func mean(xs []float64) float64 {
	var s float64
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

func TestTrainIsReproducibleWithSeed(t *testing.T) {
	cfg := smallConfig()
	cfg.Epochs = 5
	ds := sineDataset(t, 60, cfg.Lookback)

	a, err := NewTrainer(cfg).Train(context.Background(), ds)
	require.NoError(t, err)
	b, err := NewTrainer(cfg).Train(context.Background(), ds)
	require.NoError(t, err)
	assert.Equal(t, a.Weights(), b.Weights())
}

func TestTrainParallelMatchesSequential(t *testing.T) {
	cfg := smallConfig()
	cfg.Epochs = 4
	ds := sineDataset(t, 70, cfg.Lookback)

	seqModel, err := NewTrainer(cfg).Train(context.Background(), ds)
	require.NoError(t, err)

	cfg.Workers = 4
	parModel, err := NewTrainer(cfg).Train(context.Background(), ds)
	require.NoError(t, err)

	assert.Equal(t, seqModel.Weights(), parModel.Weights())
}

func TestTrainEmptySet(t *testing.T) {
	_, err := NewTrainer(smallConfig()).Train(context.Background(), nil)
	require.ErrorIs(t, err, ErrEmptyBatch)
}

func TestTrainLastBatchMayBeSmaller(t *testing.T) {
	cfg := smallConfig()
	cfg.Epochs = 2
	cfg.BatchSize = 32
	// 37 windows: one full batch and one of five.
	m, err := NewTrainer(cfg).Train(context.Background(), sineDataset(t, 42, cfg.Lookback))
	require.NoError(t, err)
	assert.NotNil(t, m)
}

func TestTrainCancelled(t *testing.T) {
	cfg := smallConfig()
	ctx, cancel := context.WithCancel(context.Background())
	epochs := 0
	tr := NewTrainer(cfg, WithEpochHook(func(EpochStats) {
		epochs++
		cancel()
	}))

	m, err := tr.Train(ctx, sineDataset(t, 60, cfg.Lookback))
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, m)
	assert.Equal(t, 1, epochs)
}

func TestTrainCancelledParallel(t *testing.T) {
	cfg := smallConfig()
	cfg.Workers = 3
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m, err := NewTrainer(cfg).Train(ctx, sineDataset(t, 60, cfg.Lookback))
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, m)
}

func TestTrainNonFiniteIsFatal(t *testing.T) {
	ds := sineDataset(t, 30, 5)
	ds[3].Target = math.NaN()

	m, err := NewTrainer(smallConfig()).Train(context.Background(), ds)
	require.ErrorIs(t, err, ErrNonFinite)
	assert.Nil(t, m)
}

func TestAdamStepMovesAgainstGradient(t *testing.T) {
	opt := newAdam(2, 0.1)
	params := []float64{1, 1}
	opt.step(params, []float64{0.5, -2})
	// The first bias-corrected step has magnitude lr in each coordinate.
	assert.InDelta(t, 0.9, params[0], 1e-6)
	assert.InDelta(t, 1.1, params[1], 1e-6)
}
