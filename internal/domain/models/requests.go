package models

// Requests for the HTTP endpoints. Defaults and validation come from the tags.

type PredictionRequest struct {
	Symbol string `query:"symbol" json:"symbol" default:"AAPL" validate:"required,max=16"`
}

type StockDataRequest struct {
	Symbol    string `query:"symbol" json:"symbol" default:"AAPL" validate:"required,max=16"`
	StartDate string `query:"startDate" json:"startDate" default:"2024-08-01" validate:"datetime=2006-01-02"`
	EndDate   string `query:"endDate" json:"endDate" validate:"omitempty,datetime=2006-01-02"`
}

type SubmitForecastRequest struct {
	Symbol string `json:"symbol" validate:"required,max=16"`
	Seed   int64  `json:"seed"`
	Epochs int    `json:"epochs" validate:"omitempty,gte=1,lte=1000"`
}

type JobRequest struct {
	ID string `param:"id" validate:"required,uuid"`
}

type TradeRequest struct {
	Symbol   string  `json:"symbol" validate:"required,max=16"`
	Quantity float64 `json:"quantity" validate:"gt=0"`
	Price    float64 `json:"price" validate:"gt=0"`
}

type TransactionsRequest struct {
	Limit int `query:"limit" json:"limit" default:"100" validate:"gte=1,lte=1000"`
}
