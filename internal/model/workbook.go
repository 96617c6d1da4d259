package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// WeightRow is one parsed row of the weights sheet: an asset code plus one
// target-weight fraction per portfolio column. Only rows at the inception
// date seed portfolios.
type WeightRow struct {
	Date      time.Time
	AssetCode string
	Weights   map[string]decimal.Decimal // keyed by portfolio name
}

// PriceRow is one parsed row of the wide-form prices sheet: one price per
// asset column for a single date. Assets with unparsable or empty cells are
// simply absent from the map.
type PriceRow struct {
	Date   time.Time
	Prices map[string]decimal.Decimal // keyed by asset code
}

// Workbook is the structured result of parsing an ingestion workbook.
type Workbook struct {
	PortfolioNames []string // weight-sheet portfolio columns, in sheet order
	AssetCodes     []string // union of weight-sheet and price-sheet assets, first-seen order
	WeightRows     []WeightRow
	PriceRows      []PriceRow
}
