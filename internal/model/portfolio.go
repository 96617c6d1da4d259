package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Portfolio struct {
	PortfolioID   int64
	Name          string
	InitialValue  decimal.Decimal
	InceptionDate time.Time
}

// TargetWeight is the inception-date allocation fraction for one asset.
// It is fixed at portfolio creation and is not time-indexed.
type TargetWeight struct {
	PortfolioID int64
	AssetID     int64
	AssetCode   string
	Weight      decimal.Decimal
}
