package api

import (
	"context"

	"github.com/labstack/echo/v4"

	"FinCast/internal/domain/models"
	xhttp "FinCast/pkg/http"
	xlogger "FinCast/pkg/logger"
)

// PortfolioService records trades and lists holdings.
type PortfolioService interface {
	Buy(ctx context.Context, req models.TradeRequest) (*models.Position, error)
	Sell(ctx context.Context, req models.TradeRequest) (*models.Position, error)
	Positions(ctx context.Context) ([]models.Position, error)
	Transactions(ctx context.Context, limit int) ([]models.Transaction, error)
}

type PortfolioHandler struct {
	logger    *xlogger.Logger
	portfolio PortfolioService
}

func NewPortfolioHandler(logger *xlogger.Logger, portfolio PortfolioService) *PortfolioHandler {
	return &PortfolioHandler{logger: logger, portfolio: portfolio}
}

func (h *PortfolioHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/buy", h.Buy)
	g.POST("/sell", h.Sell)
	g.GET("/portfolio", h.Portfolio)
	g.GET("/transactions", h.Transactions)
}

func (h *PortfolioHandler) Buy(c echo.Context) error {
	return h.trade(c, models.SideBuy, h.portfolio.Buy)
}

func (h *PortfolioHandler) Sell(c echo.Context) error {
	return h.trade(c, models.SideSell, h.portfolio.Sell)
}

func (h *PortfolioHandler) trade(c echo.Context, side models.Side, do func(context.Context, models.TradeRequest) (*models.Position, error)) error {
	req := &models.TradeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	pos, err := do(c.Request().Context(), *req)
	if err != nil {
		return writeError(c, h.logger, "trade failed", err,
			xlogger.String("side", string(side)),
			xlogger.String("symbol", req.Symbol))
	}
	return xhttp.CreatedResponse(c, pos)
}

func (h *PortfolioHandler) Portfolio(c echo.Context) error {
	positions, err := h.portfolio.Positions(c.Request().Context())
	if err != nil {
		return writeError(c, h.logger, "list positions", err)
	}
	return xhttp.SuccessResponse(c, positions)
}

func (h *PortfolioHandler) Transactions(c echo.Context) error {
	req := &models.TransactionsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	txs, err := h.portfolio.Transactions(c.Request().Context(), req.Limit)
	if err != nil {
		return writeError(c, h.logger, "list transactions", err)
	}
	return xhttp.SuccessResponse(c, txs)
}
