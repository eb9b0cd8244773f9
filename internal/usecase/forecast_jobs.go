package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	domsvc "FinCast/internal/domain/service"
	trainmetrics "FinCast/internal/service/metrics"
	applogger "FinCast/pkg/logger"
	"FinCast/pkg/queue"
	"FinCast/pkg/util"
)

// ForecastJobType is the queue message type for asynchronous forecasts.
const ForecastJobType = "forecast"

// ErrJobFinished is returned when cancelling a job that already ended.
var ErrJobFinished = errors.New("job already finished")

type forecastPayload struct {
	JobID string `json:"job_id"`
}

// ForecastJobs submits forecasts to the job queue and runs them as a queue.Job.
type ForecastJobs struct {
	uc    *ForecastUseCase
	store domrepo.JobStore
	bus   domrepo.ProgressBus
	queue queue.QueueService
	log   *applogger.Logger
	now   func() time.Time

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

// NewForecastJobs wires the job runner. Register it on q before Submit.
func NewForecastJobs(uc *ForecastUseCase, store domrepo.JobStore, bus domrepo.ProgressBus, q queue.QueueService, log *applogger.Logger) *ForecastJobs {
	return &ForecastJobs{
		uc:      uc,
		store:   store,
		bus:     bus,
		queue:   q,
		log:     log,
		now:     time.Now,
		running: make(map[string]context.CancelFunc),
	}
}

func (j *ForecastJobs) Name() string { return "forecast-job" }
func (j *ForecastJobs) Type() string { return ForecastJobType }

// Submit stores a queued job and enqueues it.
func (j *ForecastJobs) Submit(ctx context.Context, symbol string, seed int64, epochs int, source string) (*models.ForecastJob, error) {
	job := &models.ForecastJob{
		ID:        uuid.NewString(),
		Symbol:    util.NormalizeSymbol(symbol),
		Status:    models.JobQueued,
		Seed:      seed,
		Epochs:    epochs,
		Source:    source,
		CreatedAt: j.now().UTC(),
	}
	if err := j.store.Save(ctx, job); err != nil {
		return nil, err
	}
	if err := j.queue.PublishMessage(ctx, ForecastJobType, forecastPayload{JobID: job.ID}); err != nil {
		job.Status = models.JobFailed
		job.Error = "enqueue: " + err.Error()
		_ = j.store.Save(ctx, job)
		return nil, fmt.Errorf("enqueue job: %w", err)
	}
	j.log.Info("forecast job queued",
		applogger.String("job_id", job.ID),
		applogger.String("symbol", job.Symbol),
		applogger.String("source", source))
	return job, nil
}

// Get returns the stored job or domrepo.ErrJobNotFound.
func (j *ForecastJobs) Get(ctx context.Context, id string) (*models.ForecastJob, error) {
	return j.store.Get(ctx, id)
}

// Cancel marks the job cancelled. A job running in this process stops at the
// next batch; one running elsewhere notices at its next epoch. Whoever moves
// the stored job to a terminal status publishes the terminal event.
func (j *ForecastJobs) Cancel(ctx context.Context, id string) (*models.ForecastJob, error) {
	ended := j.now().UTC()
	job, err := j.update(ctx, id, func(job *models.ForecastJob) error {
		if job.Status.Terminal() {
			return ErrJobFinished
		}
		job.Status = models.JobCancelled
		job.FinishedAt = &ended
		job.Result = nil
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrJobFinished) {
			return job, err
		}
		return nil, err
	}

	j.mu.Lock()
	stop, local := j.running[id]
	j.mu.Unlock()
	if local {
		stop()
	}
	j.ended(ctx, job)
	return job, nil
}

// Handle runs one queued job. Failures are recorded on the job rather than
// returned so the queue does not retry deterministic errors.
func (j *ForecastJobs) Handle(ctx context.Context, payload interface{}) error {
	p, err := queue.ParsePayload[forecastPayload](payload)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	j.mu.Lock()
	j.running[p.JobID] = cancel
	j.mu.Unlock()
	defer func() {
		j.mu.Lock()
		delete(j.running, p.JobID)
		j.mu.Unlock()
	}()

	started := j.now().UTC()
	job, err := j.update(ctx, p.JobID, func(job *models.ForecastJob) error {
		if job.Status.Terminal() {
			return ErrJobFinished
		}
		job.Status = models.JobRunning
		job.StartedAt = &started
		return nil
	})
	if errors.Is(err, ErrJobFinished) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("start job %s: %w", p.JobID, err)
	}
	log := j.log.With(applogger.String("job_id", job.ID), applogger.String("symbol", job.Symbol))
	log.Info("forecast job started")

	opts := domsvc.RunOptions{
		Seed:   job.Seed,
		Epochs: job.Epochs,
		OnEpoch: func(epoch, epochs int, loss float64) {
			j.progress(runCtx, job.ID, epoch, epochs, loss, cancel)
		},
	}
	f, err := j.uc.Forecast(runCtx, job.Symbol, opts)

	var final *models.ForecastJob
	switch {
	case runCtx.Err() != nil && ctx.Err() == nil:
		final = j.finish(ctx, job.ID, models.JobCancelled, nil, nil)
	case err != nil:
		final = j.finish(ctx, job.ID, models.JobFailed, nil, err)
	default:
		final = j.finish(ctx, job.ID, models.JobSucceeded, f, nil)
	}
	log.Info("forecast job finished", applogger.String("status", string(final.Status)))
	return nil
}

// update applies fn to the stored job while holding its lock. An error from
// fn leaves the stored job untouched and is returned with it.
func (j *ForecastJobs) update(ctx context.Context, id string, fn func(*models.ForecastJob) error) (*models.ForecastJob, error) {
	unlock, err := j.store.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	job, err := j.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(job); err != nil {
		return job, err
	}
	if err := j.store.Save(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

func (j *ForecastJobs) progress(ctx context.Context, id string, epoch, epochs int, loss float64, cancel context.CancelFunc) {
	_, err := j.update(ctx, id, func(job *models.ForecastJob) error {
		// a cancel issued on another replica only reaches the store
		if job.Status.Terminal() {
			return ErrJobFinished
		}
		job.Epoch, job.Epochs, job.Loss = epoch, epochs, loss
		return nil
	})
	if errors.Is(err, ErrJobFinished) {
		cancel()
		return
	}
	if err != nil {
		j.log.Warn("save job progress failed", applogger.String("job_id", id), applogger.Error(err))
		return
	}
	ev := models.ProgressEvent{
		JobID:     id,
		Status:    models.JobRunning,
		Epoch:     epoch,
		Epochs:    epochs,
		Loss:      loss,
		Timestamp: j.now().UTC(),
	}
	if err := j.bus.Publish(ctx, ev); err != nil {
		j.log.Warn("publish progress failed", applogger.String("job_id", id), applogger.Error(err))
	}
}

// finish records the outcome unless the job already reached a terminal
// status, in which case the stored job wins and nothing is published.
func (j *ForecastJobs) finish(ctx context.Context, id string, status models.JobStatus, f *models.Forecast, runErr error) *models.ForecastJob {
	ended := j.now().UTC()
	apply := func(job *models.ForecastJob) {
		job.Status = status
		job.FinishedAt = &ended
		job.Result = f
		if runErr != nil {
			job.Error = runErr.Error()
		}
	}
	job, err := j.update(ctx, id, func(job *models.ForecastJob) error {
		if job.Status.Terminal() {
			return ErrJobFinished
		}
		apply(job)
		return nil
	})
	switch {
	case errors.Is(err, ErrJobFinished):
		return job
	case err != nil:
		j.log.Error("save job failed", applogger.String("job_id", id), applogger.Error(err))
		job = &models.ForecastJob{ID: id}
		apply(job)
	}
	j.ended(ctx, job)
	return job
}

// ended counts a terminal transition and tells subscribers about it.
func (j *ForecastJobs) ended(ctx context.Context, job *models.ForecastJob) {
	trainmetrics.Jobs.WithLabelValues(string(job.Status)).Inc()

	ev := models.ProgressEvent{
		JobID:  job.ID,
		Status: job.Status,
		Epoch:  job.Epoch,
		Epochs: job.Epochs,
		Loss:   job.Loss,
		Error:  job.Error,
	}
	if job.FinishedAt != nil {
		ev.Timestamp = *job.FinishedAt
	}
	if err := j.bus.Publish(ctx, ev); err != nil {
		j.log.Warn("publish progress failed", applogger.String("job_id", job.ID), applogger.Error(err))
	}
}

var _ queue.Job = (*ForecastJobs)(nil)
