package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// QuantityRecord is one step boundary of the held-quantity step function.
// The effective quantity on any date is the record with the largest date at
// or before it; between consecutive records the quantity is flat.
type QuantityRecord struct {
	PortfolioID int64
	AssetID     int64
	Date        time.Time
	Quantity    decimal.Decimal
}
