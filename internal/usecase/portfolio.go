package usecase

import (
	"context"

	"github.com/shopspring/decimal"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	"FinCast/pkg/util"
)

type PortfolioUseCase struct {
	ledger domrepo.Ledger
}

func NewPortfolioUseCase(ledger domrepo.Ledger) *PortfolioUseCase {
	return &PortfolioUseCase{ledger: ledger}
}

func (uc *PortfolioUseCase) Buy(ctx context.Context, req models.TradeRequest) (*models.Position, error) {
	return uc.ledger.Buy(ctx, util.NormalizeSymbol(req.Symbol), decimal.NewFromFloat(req.Quantity), decimal.NewFromFloat(req.Price))
}

func (uc *PortfolioUseCase) Sell(ctx context.Context, req models.TradeRequest) (*models.Position, error) {
	return uc.ledger.Sell(ctx, util.NormalizeSymbol(req.Symbol), decimal.NewFromFloat(req.Quantity), decimal.NewFromFloat(req.Price))
}

func (uc *PortfolioUseCase) Positions(ctx context.Context) ([]models.Position, error) {
	return uc.ledger.Positions(ctx)
}

func (uc *PortfolioUseCase) Transactions(ctx context.Context, limit int) ([]models.Transaction, error) {
	return uc.ledger.Transactions(ctx, limit)
}
