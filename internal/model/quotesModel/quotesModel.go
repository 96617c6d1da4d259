package quotesModel

import (
	"time"

	"github.com/shopspring/decimal"
)

// RawQuotes mirrors the quotes feed response before parsing.
type RawQuotes struct {
	Quotes []RawQuote `json:"quotes"`
}

type RawQuote struct {
	Symbol string `json:"symbol"`
	Date   string `json:"date"`
	Close  string `json:"close"`
}

// Quote is one parsed end-of-day closing price.
type Quote struct {
	Code  string
	Date  time.Time
	Price decimal.Decimal
}
