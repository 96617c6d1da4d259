// Package ledger holds the in-memory step-function index over quantity
// records. Each (portfolio, asset) pair owns a date-sorted series; the
// effective quantity on a date is the record with the largest date at or
// before it. Point lookups are binary searches, which keeps the per-date
// valuation sweep cheap even over long histories.
package ledger

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/acalderon/portfolio-valuation/internal/model"
)

type Key struct {
	PortfolioID int64
	AssetID     int64
}

type Record struct {
	Date     time.Time
	Quantity decimal.Decimal
}

// Series is the date-sorted quantity step function for one (portfolio, asset).
type Series struct {
	records []Record
}

// searchAfter returns the index of the first record strictly after date.
func (s *Series) searchAfter(date time.Time) int {
	return sort.Search(len(s.records), func(i int) bool {
		return s.records[i].Date.After(date)
	})
}

// At returns the effective quantity on date: the latest record at or before
// it. ok is false when no record exists yet.
func (s *Series) At(date time.Time) (decimal.Decimal, bool) {
	i := s.searchAfter(date)
	if i == 0 {
		return decimal.Decimal{}, false
	}
	return s.records[i-1].Quantity, true
}

// Before returns the latest quantity strictly before date, for carry-forward
// reads that must not see a record on the date itself.
func (s *Series) Before(date time.Time) (decimal.Decimal, bool) {
	i := sort.Search(len(s.records), func(i int) bool {
		return !s.records[i].Date.Before(date)
	})
	if i == 0 {
		return decimal.Decimal{}, false
	}
	return s.records[i-1].Quantity, true
}

// Set upserts the record at exactly date, keeping the series sorted.
func (s *Series) Set(date time.Time, quantity decimal.Decimal) {
	i := s.searchAfter(date)
	if i > 0 && s.records[i-1].Date.Equal(date) {
		s.records[i-1].Quantity = quantity
		return
	}
	s.records = append(s.records, Record{})
	copy(s.records[i+1:], s.records[i:])
	s.records[i] = Record{Date: date, Quantity: quantity}
}

// DatesAfter lists the record dates strictly after date, ascending.
func (s *Series) DatesAfter(date time.Time) []time.Time {
	i := s.searchAfter(date)
	dates := make([]time.Time, 0, len(s.records)-i)
	for _, r := range s.records[i:] {
		dates = append(dates, r.Date)
	}
	return dates
}

func (s *Series) Records() []Record {
	return s.records
}

func (s *Series) Len() int {
	return len(s.records)
}

// Index maps (portfolio, asset) keys to their series.
type Index struct {
	series map[Key]*Series
}

func NewIndex() *Index {
	return &Index{series: make(map[Key]*Series)}
}

// FromRecords builds an index from persisted quantity records. Input order
// does not matter; each series is sorted once after grouping.
func FromRecords(records []model.QuantityRecord) *Index {
	idx := NewIndex()
	for _, rec := range records {
		k := Key{PortfolioID: rec.PortfolioID, AssetID: rec.AssetID}
		s, ok := idx.series[k]
		if !ok {
			s = &Series{}
			idx.series[k] = s
		}
		s.records = append(s.records, Record{Date: rec.Date, Quantity: rec.Quantity})
	}
	for _, s := range idx.series {
		sort.Slice(s.records, func(i, j int) bool {
			return s.records[i].Date.Before(s.records[j].Date)
		})
	}
	return idx
}

// Series returns the series for a key, or nil when none exists.
func (idx *Index) Series(portfolioID, assetID int64) *Series {
	return idx.series[Key{PortfolioID: portfolioID, AssetID: assetID}]
}

// Ensure returns the series for a key, creating an empty one when absent.
func (idx *Index) Ensure(portfolioID, assetID int64) *Series {
	k := Key{PortfolioID: portfolioID, AssetID: assetID}
	s, ok := idx.series[k]
	if !ok {
		s = &Series{}
		idx.series[k] = s
	}
	return s
}

// At is a convenience point lookup across the index.
func (idx *Index) At(portfolioID, assetID int64, date time.Time) (decimal.Decimal, bool) {
	s := idx.Series(portfolioID, assetID)
	if s == nil {
		return decimal.Decimal{}, false
	}
	return s.At(date)
}
