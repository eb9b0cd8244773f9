package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"FinCast/internal/domain/models"
	applogger "FinCast/pkg/logger"
	"FinCast/pkg/util"
)

// DefaultSpec runs after the US close on weekdays. The first field is seconds.
const DefaultSpec = "0 30 22 * * 1-5"

// Submitter enqueues a forecast job.
type Submitter interface {
	Submit(ctx context.Context, symbol string, seed int64, epochs int, source string) (*models.ForecastJob, error)
}

// Locker grants a key to one caller until ttl expires.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// Scheduler enqueues one forecast job per watchlist symbol on a cron spec.
type Scheduler struct {
	cron      *cron.Cron
	jobs      Submitter
	locker    Locker
	watchlist []string
	log       *applogger.Logger
	now       func() time.Time
}

// New parses spec with a seconds field. A nil locker lets every replica enqueue.
func New(spec string, watchlist []string, jobs Submitter, locker Locker, log *applogger.Logger) (*Scheduler, error) {
	if spec == "" {
		spec = DefaultSpec
	}
	s := &Scheduler{
		cron:   cron.New(cron.WithSeconds()),
		jobs:   jobs,
		locker: locker,
		log:    log.With(applogger.String("component", "scheduler")),
		now:    time.Now,
	}
	for _, sym := range watchlist {
		sym = util.NormalizeSymbol(sym)
		if sym != "" && !util.Contains(s.watchlist, sym) {
			s.watchlist = append(s.watchlist, sym)
		}
	}
	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		return nil, fmt.Errorf("register forecast schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start runs the cron loop in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started", applogger.Strings("watchlist", s.watchlist))
}

// Stop waits for a running tick to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop().Done()
	select {
	case <-done:
		s.log.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunNow enqueues the watchlist immediately and returns the jobs created.
func (s *Scheduler) RunNow(ctx context.Context) []*models.ForecastJob {
	day := s.now().UTC().Format(util.DateLayout)
	var queued []*models.ForecastJob
	for _, sym := range s.watchlist {
		if s.locker != nil {
			ok, err := s.locker.TryLock(ctx, "scheduler:"+sym+":"+day, 20*time.Hour)
			if err != nil {
				s.log.Warn("scheduler lock failed", applogger.String("symbol", sym), applogger.Error(err))
				continue
			}
			if !ok {
				s.log.Debug("forecast already scheduled", applogger.String("symbol", sym), applogger.String("day", day))
				continue
			}
		}
		job, err := s.jobs.Submit(ctx, sym, 0, 0, "scheduler")
		if err != nil {
			s.log.Error("scheduled forecast not queued", applogger.String("symbol", sym), applogger.Error(err))
			continue
		}
		queued = append(queued, job)
	}
	return queued
}

func (s *Scheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	jobs := s.RunNow(ctx)
	s.log.Info("scheduled forecasts queued", applogger.Int("jobs", len(jobs)))
}
