package ledger

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acalderon/portfolio-valuation/internal/model"
)

func day(d int) time.Time {
	return time.Date(2022, 2, d, 0, 0, 0, 0, time.UTC)
}

func qty(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestSeriesStepFunction(t *testing.T) {
	s := &Series{}
	s.Set(day(15), qty("5000000"))
	s.Set(day(20), qty("5010000"))

	// before the first record the quantity is unknown
	_, ok := s.At(day(14))
	assert.False(t, ok)

	// exact boundary
	got, ok := s.At(day(15))
	require.True(t, ok)
	assert.True(t, got.Equal(qty("5000000")))

	// flat between records
	got, ok = s.At(day(18))
	require.True(t, ok)
	assert.True(t, got.Equal(qty("5000000")))

	// after the last record the last value carries forward
	got, ok = s.At(day(25))
	require.True(t, ok)
	assert.True(t, got.Equal(qty("5010000")))
}

func TestSeriesBeforeExcludesSameDate(t *testing.T) {
	s := &Series{}
	s.Set(day(15), qty("100"))
	s.Set(day(20), qty("200"))

	_, ok := s.Before(day(15))
	assert.False(t, ok)

	got, ok := s.Before(day(20))
	require.True(t, ok)
	assert.True(t, got.Equal(qty("100")))

	got, ok = s.Before(day(21))
	require.True(t, ok)
	assert.True(t, got.Equal(qty("200")))
}

func TestSeriesSetUpsertsAndKeepsOrder(t *testing.T) {
	s := &Series{}
	s.Set(day(20), qty("2"))
	s.Set(day(10), qty("1"))
	s.Set(day(15), qty("1.5"))

	recs := s.Records()
	require.Len(t, recs, 3)
	assert.Equal(t, day(10), recs[0].Date)
	assert.Equal(t, day(15), recs[1].Date)
	assert.Equal(t, day(20), recs[2].Date)

	// overwrite at an existing date does not grow the series
	s.Set(day(15), qty("9"))
	require.Equal(t, 3, s.Len())
	got, ok := s.At(day(15))
	require.True(t, ok)
	assert.True(t, got.Equal(qty("9")))
}

func TestSeriesDatesAfter(t *testing.T) {
	s := &Series{}
	s.Set(day(10), qty("1"))
	s.Set(day(15), qty("2"))
	s.Set(day(20), qty("3"))

	after := s.DatesAfter(day(10))
	assert.Equal(t, []time.Time{day(15), day(20)}, after)

	assert.Empty(t, s.DatesAfter(day(20)))
}

func TestIndexFromRecords(t *testing.T) {
	idx := FromRecords([]model.QuantityRecord{
		{PortfolioID: 1, AssetID: 2, Date: day(20), Quantity: qty("7")},
		{PortfolioID: 1, AssetID: 2, Date: day(10), Quantity: qty("5")},
		{PortfolioID: 1, AssetID: 3, Date: day(10), Quantity: qty("1")},
	})

	got, ok := idx.At(1, 2, day(12))
	require.True(t, ok)
	assert.True(t, got.Equal(qty("5")))

	_, ok = idx.At(1, 4, day(12))
	assert.False(t, ok)

	assert.Nil(t, idx.Series(9, 9))
	assert.NotNil(t, idx.Ensure(9, 9))
	assert.NotNil(t, idx.Series(9, 9))
}
