package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	domrepo "FinCast/internal/domain/repository"
	"FinCast/internal/scheduler"
	"FinCast/internal/service/ratelimit"
	"FinCast/internal/usecase"
	"FinCast/pkg/config"
	xhttp "FinCast/pkg/http"
	pkgkafka "FinCast/pkg/kafka"
	applogger "FinCast/pkg/logger"
	"FinCast/pkg/queue"
	"FinCast/pkg/tracing"
)

// Components is everything the App runs. Optional parts are nil when disabled.
type Components struct {
	Config    *config.Config
	Logger    *applogger.Logger
	HTTP      *xhttp.Server
	Queue     queue.Queue
	Jobs      *usecase.ForecastJobs
	Metrics   domrepo.Metrics
	Tracing   tracing.ShutdownFunc
	Limiter   *ratelimit.Limiter
	Producer  *pkgkafka.Producer
	Consumer  *pkgkafka.Consumer
	Bars      *usecase.KafkaBarsHandler
	Scheduler *scheduler.Scheduler
}

// App encapsulates the entire application lifecycle.
type App struct {
	Components
	stopSweep chan struct{}
}

// New wraps the wired components. Nil optional components are skipped.
func New(c Components) *App {
	return &App{Components: c, stopSweep: make(chan struct{})}
}

// Run starts every component and blocks until ctx ends, a signal arrives or
// the HTTP listener fails.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.Producer != nil {
		a.Logger.AttachCollector(applogger.NewErrorCollector(applogger.CollectorConfig{
			Topic:     a.Config.Kafka.Topics.Errors,
			Publisher: a.Producer,
		}))
	}

	a.Queue.RegisterJob(a.Jobs)
	if err := a.Queue.Start(); err != nil {
		return fmt.Errorf("start queue: %w", err)
	}

	if a.Consumer != nil && a.Bars != nil {
		a.Consumer.RegisterHandler(a.Bars)
		a.Consumer.OnDeadLetter(func(topic string, data []byte, err error) {
			a.Metrics.RecordError("bars_dead_letter")
			a.Logger.Error("bar message dead-lettered",
				applogger.String("topic", topic),
				applogger.Int("bytes", len(data)),
				applogger.Error(err))
		})
		if err := a.Consumer.Start(ctx); err != nil {
			return errors.Join(fmt.Errorf("start kafka consumer: %w", err), a.shutdown())
		}
	}

	if a.Scheduler != nil {
		a.Scheduler.Start()
	}
	if a.Limiter != nil {
		go a.Limiter.Run(time.Minute, a.stopSweep)
	}

	if err := a.HTTP.Start(); err != nil {
		return errors.Join(fmt.Errorf("start http server: %w", err), a.shutdown())
	}
	a.Logger.Info("fincast started",
		applogger.String("env", a.Config.Environment),
		applogger.String("provider", a.Config.MarketData.Provider),
		applogger.String("queue", a.Config.Queue.Backend),
		applogger.Bool("tracing", a.Config.Tracing.Enabled),
		applogger.Bool("scheduler", a.Scheduler != nil),
		applogger.Any("symbols", a.Config.Symbols))

	var runErr error
	select {
	case <-ctx.Done():
		a.Logger.Info("shutdown signal received")
	case runErr = <-a.HTTP.Errors():
	}
	return errors.Join(runErr, a.shutdown())
}

// shutdown stops intake first, then the workers, then flushes telemetry.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.HTTP.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http: %w", err))
	}
	if a.Scheduler != nil {
		if err := a.Scheduler.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("scheduler: %w", err))
		}
	}
	if a.Consumer != nil && a.Bars != nil {
		if err := a.Consumer.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("kafka consumer: %w", err))
		}
	}
	if err := a.Queue.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("queue: %w", err))
	}
	close(a.stopSweep)

	if a.Tracing != nil {
		if err := a.Tracing(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracing: %w", err))
		}
	}
	a.Logger.DetachCollector()

	if err := errors.Join(errs...); err != nil {
		a.Logger.Error("shutdown incomplete", applogger.Error(err))
		return err
	}
	a.Logger.Info("shutdown complete")
	return nil
}
