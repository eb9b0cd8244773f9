package lstm

import (
	"context"
	"fmt"
	"math"
)

// Result is the outcome of one train-then-forecast run.
type Result struct {
	NextDay   float64
	Horizon   []float64
	Params    Params
	TrainSize int
	EvalSize  int
	// EvalRMSE is measured on held-out windows in price scale. NaN when the
	// eval set is empty.
	EvalRMSE float64
}

// PipelineOption configures Pipeline.
type PipelineOption func(*Pipeline)

// WithFitter replaces the LSTM trainer, e.g. with a stub model in tests.
func WithFitter(f Fitter) PipelineOption {
	return func(p *Pipeline) { p.fitter = f }
}

// WithTrainerOptions forwards options to the default trainer.
func WithTrainerOptions(opts ...TrainerOption) PipelineOption {
	return func(p *Pipeline) { p.trainerOpts = append(p.trainerOpts, opts...) }
}

// Pipeline runs normalize, window, split, fit, evaluate and forecast over one
// series. A Pipeline holds no state between runs.
type Pipeline struct {
	cfg         Config
	fitter      Fitter
	trainerOpts []TrainerOption
}

// NewPipeline creates a Pipeline for cfg.
func NewPipeline(cfg Config, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{cfg: cfg}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run fits a fresh model on closes and forecasts from its last window.
// Either both forecasts are produced or an error is returned.
func (p *Pipeline) Run(ctx context.Context, closes []float64) (*Result, error) {
	if len(closes) == 0 {
		return nil, ErrNoData
	}
	params, err := Fit(closes)
	if err != nil {
		return nil, err
	}
	norm := params.NormalizeSeries(closes)
	ds, err := BuildWindows(norm, p.cfg.Lookback)
	if err != nil {
		return nil, err
	}

	rng := p.cfg.Rand()
	train, eval := Split(ds, p.cfg.TrainFraction, rng)

	fitter := p.fitter
	if fitter == nil {
		opts := append([]TrainerOption{WithRand(rng)}, p.trainerOpts...)
		fitter = NewTrainer(p.cfg, opts...)
	}
	model, err := fitter.Fit(ctx, train)
	if err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	last := norm[len(norm)-p.cfg.Lookback:]
	return &Result{
		NextDay:   PredictNext(model, params, last),
		Horizon:   PredictHorizon(model, params, last, p.cfg.Horizon),
		Params:    params,
		TrainSize: len(train),
		EvalSize:  len(eval),
		EvalRMSE:  evalRMSE(model, params, eval),
	}, nil
}

func evalRMSE(model Predictor, params Params, eval Dataset) float64 {
	if len(eval) == 0 {
		return math.NaN()
	}
	var sum float64
	for _, w := range eval {
		d := params.Denormalize(model.Predict(w.Input)) - params.Denormalize(w.Target)
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(eval)))
}
