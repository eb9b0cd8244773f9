package api

import (
	"context"
	"strings"

	"github.com/labstack/echo/v4"

	"FinCast/internal/domain/models"
	domsvc "FinCast/internal/domain/service"
	xhttp "FinCast/pkg/http"
	xlogger "FinCast/pkg/logger"
)

// ForecastRunner runs a synchronous forecast.
type ForecastRunner interface {
	Forecast(ctx context.Context, symbol string, opts domsvc.RunOptions) (*models.Forecast, error)
}

// JobService manages asynchronous forecast jobs.
type JobService interface {
	Submit(ctx context.Context, symbol string, seed int64, epochs int, source string) (*models.ForecastJob, error)
	Get(ctx context.Context, id string) (*models.ForecastJob, error)
	Cancel(ctx context.Context, id string) (*models.ForecastJob, error)
}

type ForecastHandler struct {
	logger *xlogger.Logger
	runner ForecastRunner
	jobs   JobService
}

func NewForecastHandler(logger *xlogger.Logger, runner ForecastRunner, jobs JobService) *ForecastHandler {
	return &ForecastHandler{logger: logger, runner: runner, jobs: jobs}
}

func (h *ForecastHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/stock-prediction", h.Predict)
	g.POST("/forecasts", h.Submit)
	g.GET("/forecasts/:id", h.Status)
	g.DELETE("/forecasts/:id", h.Cancel)
}

// Predict trains on the symbol's history and returns the next-day and 30-day forecast.
func (h *ForecastHandler) Predict(c echo.Context) error {
	req := &models.PredictionRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.runner.Forecast(c.Request().Context(), req.Symbol, domsvc.RunOptions{})
	if err != nil {
		return writeError(c, h.logger, "forecast failed", err, xlogger.String("symbol", req.Symbol))
	}
	return xhttp.SuccessResponse(c, res)
}

// Submit queues a forecast job and answers 202 with its Location.
func (h *ForecastHandler) Submit(c echo.Context) error {
	req := &models.SubmitForecastRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	job, err := h.jobs.Submit(c.Request().Context(), req.Symbol, req.Seed, req.Epochs, "api")
	if err != nil {
		return writeError(c, h.logger, "submit forecast job", err, xlogger.String("symbol", req.Symbol))
	}
	c.Response().Header().Set(echo.HeaderLocation, strings.TrimSuffix(c.Path(), "/")+"/"+job.ID)
	return xhttp.AcceptedResponse(c, job)
}

// Status returns the stored job.
func (h *ForecastHandler) Status(c echo.Context) error {
	req := &models.JobRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	job, err := h.jobs.Get(c.Request().Context(), req.ID)
	if err != nil {
		return writeError(c, h.logger, "load forecast job", jobError(req.ID, err), xlogger.String("job_id", req.ID))
	}
	return xhttp.SuccessResponse(c, job)
}

// Cancel stops a queued or running job. A finished job is 409.
func (h *ForecastHandler) Cancel(c echo.Context) error {
	req := &models.JobRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	job, err := h.jobs.Cancel(c.Request().Context(), req.ID)
	if err != nil {
		return writeError(c, h.logger, "cancel forecast job", jobError(req.ID, err), xlogger.String("job_id", req.ID))
	}
	return xhttp.SuccessResponse(c, job)
}

// writeError logs the failure and writes the mapped error.
func writeError(c echo.Context, logger *xlogger.Logger, msg string, err error, fields ...xlogger.Field) error {
	appErr := toAppError(err)
	fields = append(fields, xlogger.Error(err), xlogger.Int("status", appErr.Status))
	if appErr.Status >= 500 {
		logger.Error(msg, fields...)
	} else {
		logger.Warn(msg, fields...)
	}
	return xhttp.AppErrorResponse(c, appErr)
}
