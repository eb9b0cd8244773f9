package lstm

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	applogger "FinCast/pkg/logger"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
)

// EpochStats summarizes one pass over the training set.
type EpochStats struct {
	Epoch   int
	Epochs  int
	Loss    float64 // mean squared error over the epoch, normalized scale
	Elapsed time.Duration
}

// EpochHook observes training progress. It runs on the training goroutine.
type EpochHook func(EpochStats)

// Fitter turns a training set into a Predictor.
type Fitter interface {
	Fit(ctx context.Context, train Dataset) (Predictor, error)
}

// TrainerOption configures Trainer.
type TrainerOption func(*Trainer)

// WithLogger attaches a logger for per-epoch debug lines.
func WithLogger(l *applogger.Logger) TrainerOption {
	return func(t *Trainer) { t.logger = l }
}

// WithEpochHook registers a progress callback.
func WithEpochHook(h EpochHook) TrainerOption {
	return func(t *Trainer) { t.hook = h }
}

// WithRand overrides the generator derived from Config.Seed.
func WithRand(rng *rand.Rand) TrainerOption {
	return func(t *Trainer) { t.rng = rng }
}

// Trainer fits a Model with Adam on mean squared error.
type Trainer struct {
	cfg    Config
	rng    *rand.Rand
	logger *applogger.Logger
	hook   EpochHook
}

// NewTrainer creates a Trainer. Each Train call owns its Model exclusively.
func NewTrainer(cfg Config, opts ...TrainerOption) *Trainer {
	t := &Trainer{cfg: cfg}
	for _, opt := range opts {
		opt(t)
	}
	if t.rng == nil {
		t.rng = cfg.Rand()
	}
	return t
}

// Fit implements Fitter.
func (t *Trainer) Fit(ctx context.Context, train Dataset) (Predictor, error) {
	m, err := t.Train(ctx, train)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Train runs cfg.Epochs passes of shuffled mini-batches. Cancellation is
// observed between examples; a cancelled or failed run returns no model.
func (t *Trainer) Train(ctx context.Context, train Dataset) (*Model, error) {
	n := len(train)
	if n == 0 {
		return nil, ErrEmptyBatch
	}
	batchSize := t.cfg.BatchSize
	if batchSize < 1 {
		batchSize = 1
	}

	model := NewModel(t.cfg.HiddenSize, t.rng)
	opt := newAdam(len(model.w.flat), t.cfg.LearningRate)
	grad := newWeights(t.cfg.HiddenSize)
	slots := make([]*weights, min(batchSize, n))
	for i := range slots {
		slots[i] = newWeights(t.cfg.HiddenSize)
	}
	losses := make([]float64, len(slots))

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}

	for epoch := 1; epoch <= t.cfg.Epochs; epoch++ {
		start := time.Now()
		t.rng.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })

		var total float64
		for lo := 0; lo < n; lo += batchSize {
			hi := min(lo+batchSize, n)
			loss, err := t.batch(ctx, model, train, order[lo:hi], slots, losses, grad)
			if err != nil {
				return nil, err
			}
			if !finite(loss) || !allFinite(grad.flat) {
				return nil, fmt.Errorf("%w: epoch %d batch at %d", ErrNonFinite, epoch, lo)
			}
			opt.step(model.w.flat, grad.flat)
			total += loss * float64(hi-lo)
		}

		stats := EpochStats{Epoch: epoch, Epochs: t.cfg.Epochs, Loss: total / float64(n), Elapsed: time.Since(start)}
		if t.logger != nil {
			t.logger.Debug("epoch finished",
				applogger.Int("epoch", epoch),
				applogger.Float64("loss", stats.Loss),
				applogger.Duration("duration_ms", stats.Elapsed))
		}
		if t.hook != nil {
			t.hook(stats)
		}
	}
	return model, nil
}

// batch computes one gradient per example into its own slot, possibly in
// parallel, then sums the slots in batch order so the update does not depend
// on the worker count. Returns the batch mean squared error.
func (t *Trainer) batch(ctx context.Context, m *Model, data Dataset, idx []int, slots []*weights, losses []float64, grad *weights) (float64, error) {
	scale := 1 / float64(len(idx))
	one := func(k int) {
		g := slots[k]
		clear(g.flat)
		ex := data[idx[k]]
		var tp tape
		diff := m.w.forward(ex.Input, &tp) - ex.Target
		losses[k] = diff * diff * scale
		m.w.backward(&tp, 2*diff*scale, g)
	}

	workers := max(1, t.cfg.Workers)
	if workers == 1 || len(idx) == 1 {
		for k := range idx {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
			one(k)
		}
	} else {
		eg, egCtx := errgroup.WithContext(ctx)
		eg.SetLimit(workers)
		for k := range idx {
			eg.Go(func() error {
				if err := egCtx.Err(); err != nil {
					return err
				}
				one(k)
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return 0, err
		}
		if err := ctx.Err(); err != nil {
			return 0, err
		}
	}

	clear(grad.flat)
	var loss float64
	for k := range idx {
		floats.Add(grad.flat, slots[k].flat)
		loss += losses[k]
	}
	return loss, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func allFinite(xs []float64) bool {
	for _, v := range xs {
		if !finite(v) {
			return false
		}
	}
	return true
}
