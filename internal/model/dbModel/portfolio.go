package dbModel

import (
	"time"

	"github.com/shopspring/decimal"
)

type Asset struct {
	AssetID int64  `db:"asset_id"`
	Code    string `db:"code"`
	Name    string `db:"name"`
}

type Portfolio struct {
	PortfolioID   int64           `db:"portfolio_id"`
	Name          string          `db:"name"`
	InitialValue  decimal.Decimal `db:"initial_value"`
	InceptionDate time.Time       `db:"inception_date"`
}

type TargetWeight struct {
	PortfolioID int64           `db:"portfolio_id"`
	AssetID     int64           `db:"asset_id"`
	AssetCode   string          `db:"code"`
	Weight      decimal.Decimal `db:"weight"`
}
