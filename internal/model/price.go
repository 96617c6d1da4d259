package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type PriceObservation struct {
	AssetID int64
	Date    time.Time
	Price   decimal.Decimal
}
