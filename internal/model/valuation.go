package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Stored decimal scales. Arithmetic runs at full precision; rounding happens
// only when a value is persisted.
const (
	PriceScale    = 4
	QuantityScale = 4
	WeightScale   = 6
	ValueScale    = 2
)

// PortfolioValue is the derived total value V_t. A missing row for a date
// means "not computable on that date", never zero.
type PortfolioValue struct {
	PortfolioID int64
	Date        time.Time
	TotalValue  decimal.Decimal
}

// AssetWeight is the derived per-asset slice of a portfolio on a date:
// asset value x_i,t and dynamic weight w_i,t = x_i,t / V_t.
type AssetWeight struct {
	PortfolioID int64
	AssetID     int64
	AssetCode   string
	Date        time.Time
	Weight      decimal.Decimal
	AssetValue  decimal.Decimal
}

// PortfolioSeries is the query payload for one portfolio over a date range.
type PortfolioSeries struct {
	Portfolio Portfolio
	Values    []PortfolioValue
	Weights   []AssetWeight
	From      time.Time
	To        time.Time
}
