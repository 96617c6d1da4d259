package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionRequest is one incoming buy/sell batch: all items share the
// portfolio and the execution date, and apply (or fail) as a unit.
type TransactionRequest struct {
	PortfolioID int64
	Date        time.Time
	Items       []TransactionItem
}

// TransactionResult reports the per-item outcomes plus the overall verdict.
// When Applied is false nothing was persisted.
type TransactionResult struct {
	PortfolioID int64
	Date        time.Time
	Applied     bool
	Items       []TransactionItemResult
}

// LoadSummary describes one completed workbook load.
type LoadSummary struct {
	Portfolios    []Portfolio
	AssetCount    int
	PriceRows     int
	WeightRows    int
	SeededRecords int
	SweepFrom     time.Time
	SweepTo       time.Time
}

// LoadOptions carries the caller-supplied overrides for a workbook load.
// Zero values fall back to configured/inferred defaults.
type LoadOptions struct {
	InitialValue  decimal.Decimal // V0 for every portfolio in the workbook
	InceptionDate time.Time       // defaults to the first weight row's date
}
