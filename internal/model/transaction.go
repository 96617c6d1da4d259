package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionBuy  TransactionType = "BUY"
	TransactionSell TransactionType = "SELL"
)

func (t TransactionType) Valid() bool {
	return t == TransactionBuy || t == TransactionSell
}

// Transaction is the append-only audit record of a processed buy/sell.
// Quantity is stored as a magnitude; the type carries the sign.
type Transaction struct {
	TransactionID int64
	PortfolioID   int64
	AssetID       int64
	Date          time.Time
	Type          TransactionType
	Amount        decimal.Decimal
	UnitPrice     decimal.Decimal
	Quantity      decimal.Decimal
}

// TransactionItem is one instruction within an incoming transaction request.
type TransactionItem struct {
	AssetCode string
	Type      TransactionType
	Amount    decimal.Decimal
}

// TransactionItemResult reports the outcome of one instruction: either the
// resolved price/delta/resulting quantity or an error message.
type TransactionItemResult struct {
	AssetCode   string
	UnitPrice   decimal.Decimal
	Delta       decimal.Decimal
	NewQuantity decimal.Decimal
	Err         string
}
