package dbModel

import (
	"time"

	"github.com/shopspring/decimal"
)

type Price struct {
	AssetID int64           `db:"asset_id"`
	Date    time.Time       `db:"date"`
	Price   decimal.Decimal `db:"price"`
}

type QuantityRecord struct {
	PortfolioID int64           `db:"portfolio_id"`
	AssetID     int64           `db:"asset_id"`
	Date        time.Time       `db:"date"`
	Quantity    decimal.Decimal `db:"quantity"`
}

type PortfolioValue struct {
	PortfolioID int64           `db:"portfolio_id"`
	Date        time.Time       `db:"date"`
	TotalValue  decimal.Decimal `db:"total_value"`
}

type AssetWeight struct {
	PortfolioID int64           `db:"portfolio_id"`
	AssetID     int64           `db:"asset_id"`
	AssetCode   string          `db:"code"`
	Date        time.Time       `db:"date"`
	Weight      decimal.Decimal `db:"weight"`
	AssetValue  decimal.Decimal `db:"asset_value"`
}

type Transaction struct {
	TransactionID int64           `db:"transaction_id"`
	PortfolioID   int64           `db:"portfolio_id"`
	AssetID       int64           `db:"asset_id"`
	Date          time.Time       `db:"date"`
	Type          string          `db:"type"`
	Amount        decimal.Decimal `db:"amount"`
	UnitPrice     decimal.Decimal `db:"unit_price"`
	Quantity      decimal.Decimal `db:"quantity"`
}
