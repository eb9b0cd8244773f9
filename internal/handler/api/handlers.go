package api

import (
	"github.com/labstack/echo/v4"

	"FinCast/internal/service/ratelimit"
	xhttp "FinCast/pkg/http"
)

// Router mounts the API handlers under /api.
type Router struct {
	Forecast  *ForecastHandler
	Market    *MarketHandler
	Portfolio *PortfolioHandler
	Progress  *ProgressHandler
	Limiter   *ratelimit.Limiter
}

func NewRouter(forecast *ForecastHandler, market *MarketHandler, portfolio *PortfolioHandler,
	progress *ProgressHandler, limiter *ratelimit.Limiter) *Router {
	return &Router{
		Forecast:  forecast,
		Market:    market,
		Portfolio: portfolio,
		Progress:  progress,
		Limiter:   limiter,
	}
}

func (r *Router) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	r.Market.RegisterRoutes(g)
	r.Portfolio.RegisterRoutes(g)
	r.Progress.RegisterRoutes(g)

	// training is the expensive path
	limited := g.Group("", RateLimit(r.Limiter))
	r.Forecast.RegisterRoutes(limited)
}

var _ xhttp.Handler = (*Router)(nil)
