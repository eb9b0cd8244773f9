package api

import (
	"context"
	"errors"
	"net/http"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	"FinCast/internal/services/lstm"
	"FinCast/internal/services/marketdata"
	"FinCast/internal/usecase"
	xhttp "FinCast/pkg/http"
)

// jobError names the job in a not-found response.
func jobError(id string, err error) error {
	if errors.Is(err, domrepo.ErrJobNotFound) {
		return xhttp.NotFoundErrorf("Job %s not found", id).WithError(err)
	}
	return err
}

// toAppError maps domain and core errors onto HTTP errors.
func toAppError(err error) *xhttp.AppError {
	var appErr *xhttp.AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, models.ErrNoData), errors.Is(err, lstm.ErrNoData):
		return xhttp.NotFoundError("No data found").WithError(err)
	case errors.Is(err, domrepo.ErrJobNotFound):
		return xhttp.NotFoundError("Job not found").WithError(err)
	case errors.Is(err, models.ErrInsufficientPosition):
		return xhttp.BadRequestError("Insufficient position").WithError(err)
	case errors.Is(err, usecase.ErrJobFinished):
		return xhttp.NewAppError("ERR_CONFLICT", "", "Job already finished", http.StatusConflict).WithError(err)
	case errors.Is(err, models.ErrInvalidSeries),
		errors.Is(err, lstm.ErrInsufficientData),
		errors.Is(err, lstm.ErrDegenerateSeries):
		return xhttp.UnprocessableError("Price series cannot be used for a forecast").WithError(err)
	case errors.Is(err, marketdata.ErrRateLimited):
		return xhttp.UnavailableError("Market data provider is rate limiting").WithError(err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return xhttp.UnavailableError("Request cancelled").WithError(err)
	default:
		return xhttp.InternalError("Something went wrong").WithError(err)
	}
}
