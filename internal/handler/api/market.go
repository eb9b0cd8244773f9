package api

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"

	"FinCast/internal/domain/models"
	"FinCast/internal/services/features"
	xhttp "FinCast/pkg/http"
	xlogger "FinCast/pkg/logger"
	"FinCast/pkg/util"
)

// MarketService serves the symbol list and enriched daily bars.
type MarketService interface {
	Symbols() []string
	StockData(ctx context.Context, symbol string, from, to time.Time) ([]features.Row, error)
}

type MarketHandler struct {
	logger *xlogger.Logger
	market MarketService
	now    func() time.Time
}

func NewMarketHandler(logger *xlogger.Logger, market MarketService) *MarketHandler {
	return &MarketHandler{logger: logger, market: market, now: time.Now}
}

func (h *MarketHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/symbols", h.Symbols)
	g.GET("/stock-data", h.StockData)
}

func (h *MarketHandler) Symbols(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.market.Symbols())
}

// StockData returns OHLCV rows with MA50 and MA200 between startDate and endDate (default today).
func (h *MarketHandler) StockData(c echo.Context) error {
	req := &models.StockDataRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	from, ok := util.ParseDate(req.StartDate)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("invalid startDate %q", req.StartDate))
	}
	to := util.ParseDateDefault(req.EndDate, util.StartOfDay(h.now()))
	if to.Before(from) {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("endDate is before startDate"))
	}

	rows, err := h.market.StockData(c.Request().Context(), req.Symbol, from, to)
	if err != nil {
		return writeError(c, h.logger, "stock data failed", err, xlogger.String("symbol", req.Symbol))
	}
	return xhttp.SuccessResponse(c, rows)
}
