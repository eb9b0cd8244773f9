package lstm

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// meanModel predicts the mean of its window.
type meanModel struct{}

func (meanModel) Predict(w []float64) float64 {
	var s float64
	for _, v := range w {
		s += v
	}
	return s / float64(len(w))
}

// driftModel returns the last value plus a constant and records every input.
type driftModel struct {
	step   float64
	inputs [][]float64
}

func (d *driftModel) Predict(w []float64) float64 {
	d.inputs = append(d.inputs, append([]float64(nil), w...))
	return w[len(w)-1] + d.step
}

type stubFitter struct {
	model Predictor
	seen  Dataset
}

func (s *stubFitter) Fit(_ context.Context, train Dataset) (Predictor, error) {
	s.seen = train
	return s.model, nil
}

func TestPredictNextDenormalizes(t *testing.T) {
	p := Params{Min: 100, Max: 200}
	got := PredictNext(meanModel{}, p, []float64{0.2, 0.4, 0.6})
	assert.InDelta(t, 140.0, got, 1e-9)
}

func TestPredictHorizonLength(t *testing.T) {
	p := Params{Min: 0, Max: 1}
	m := NewModel(4, rand.New(rand.NewSource(2)))
	for _, h := range []int{1, 7, 30} {
		assert.Len(t, PredictHorizon(m, p, []float64{0.3, 0.5, 0.4}, h), h)
	}
	assert.Empty(t, PredictHorizon(m, p, []float64{0.3}, 0))
}

func TestPredictHorizonFeedsPredictionsBack(t *testing.T) {
	p := Params{Min: 0, Max: 10}
	m := &driftModel{step: 0.01}
	last := []float64{0.1, 0.2, 0.3}

	out := PredictHorizon(m, p, last, 5)

	require.Len(t, out, 5)
	for k, want := range []float64{3.1, 3.2, 3.3, 3.4, 3.5} {
		assert.InDelta(t, want, out[k], 1e-9, "step %d", k)
	}
	wantInputs := [][]float64{
		{0.1, 0.2, 0.3},
		{0.2, 0.3, 0.31},
		{0.3, 0.31, 0.32},
		{0.31, 0.32, 0.33},
		{0.32, 0.33, 0.34},
	}
	require.Len(t, m.inputs, len(wantInputs))
	for k := range wantInputs {
		assert.InDeltaSlice(t, wantInputs[k], m.inputs[k], 1e-9, "step %d", k)
	}
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, last)
}

func TestPipelineEndToEndWithMeanModel(t *testing.T) {
	series := seq(100)
	cfg := DefaultConfig()
	cfg.Lookback = 10
	cfg.Seed = 1
	fit := &stubFitter{model: meanModel{}}

	res, err := NewPipeline(cfg, WithFitter(fit)).Run(context.Background(), series)
	require.NoError(t, err)

	assert.Equal(t, 72, res.TrainSize)
	assert.Equal(t, 18, res.EvalSize)
	assert.Len(t, fit.seen, 72)
	assert.Equal(t, Params{Min: 1, Max: 100}, res.Params)

	// The mean commutes with the min-max map, so the reference runs in price scale.
	window := append([]float64(nil), series[90:]...)
	want := make([]float64, 0, 30)
	for k := 0; k < 30; k++ {
		next := meanModel{}.Predict(window)
		want = append(want, next)
		window = append(window[1:], next)
	}

	assert.InDelta(t, 95.5, res.NextDay, 1e-9)
	require.Len(t, res.Horizon, 30)
	assert.InDelta(t, 95.5, res.Horizon[0], 1e-9)
	assert.InDelta(t, 95.95, res.Horizon[1], 1e-9)
	assert.InDelta(t, 96.345, res.Horizon[2], 1e-9)
	assert.InDeltaSlice(t, want, res.Horizon, 1e-9)
}

func TestPipelineEvalNeverTrains(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Lookback = 10
	cfg.Seed = 4
	fit := &stubFitter{model: meanModel{}}

	res, err := NewPipeline(cfg, WithFitter(fit)).Run(context.Background(), seq(100))
	require.NoError(t, err)

	trained := map[float64]bool{}
	for _, w := range fit.seen {
		trained[w.Target] = true
	}
	assert.Len(t, trained, res.TrainSize)
	assert.Equal(t, 90, len(trained)+res.EvalSize)
}

func TestPipelineErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Lookback = 10
	run := func(series []float64) error {
		_, err := NewPipeline(cfg, WithFitter(&stubFitter{model: meanModel{}})).Run(context.Background(), series)
		return err
	}

	assert.ErrorIs(t, run(nil), ErrNoData)
	assert.ErrorIs(t, run(seq(10)), ErrInsufficientData)
	assert.ErrorIs(t, run([]float64{5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5}), ErrDegenerateSeries)
}

func TestPipelineCancelledProducesNothing(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Lookback = 10
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := NewPipeline(cfg, WithFitter(&stubFitter{model: meanModel{}})).Run(ctx, seq(100))
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, res)
}

func TestPipelineTrainsRealModel(t *testing.T) {
	cfg := smallConfig()
	cfg.Epochs = 3
	series := make([]float64, 60)
	for i := range series {
		series[i] = 100 + float64(i%9)
	}

	res, err := NewPipeline(cfg).Run(context.Background(), series)
	require.NoError(t, err)
	assert.Len(t, res.Horizon, cfg.Horizon)
	assert.Equal(t, 44, res.TrainSize)
	assert.Equal(t, 11, res.EvalSize)
	assert.False(t, res.EvalRMSE < 0)
}
