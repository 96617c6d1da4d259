package workbookLoader

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/acalderon/portfolio-valuation/config"
)

func testConfig() *config.Config {
	return &config.Config{ETL: config.ETL{WeightsSheet: "weights", PricesSheet: "prices"}}
}

func buildWorkbook(t *testing.T, weights [][]any, prices [][]any) *bytes.Reader {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	for _, sheetDef := range []struct {
		sheet string
		rows  [][]any
	}{{"weights", weights}, {"prices", prices}} {
		if sheetDef.rows == nil {
			continue
		}
		_, err := f.NewSheet(sheetDef.sheet)
		require.NoError(t, err)
		for i, row := range sheetDef.rows {
			cellName, err := excelize.CoordinatesToCellName(1, i+1)
			require.NoError(t, err)
			require.NoError(t, f.SetSheetRow(sheetDef.sheet, cellName, &row))
		}
	}
	require.NoError(t, f.DeleteSheet("Sheet1"))

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return bytes.NewReader(buf.Bytes())
}

func TestParseWorkbook(t *testing.T) {
	reader := buildWorkbook(t,
		[][]any{
			{"Date", "Assets", "Growth", "Defensive"},
			{"2022-02-15", "AAA", "0.5", "0.25"},
			{"2022-02-15", "BBB", "0,5", "0.75"}, // comma decimal separator
		},
		[][]any{
			{"Date", "AAA", "BBB"},
			{"2022-02-15", "100.00", "40.00"},
			{"2022-02-16", "110.00", ""}, // BBB unobserved
		},
	)

	wb, report, err := New(testConfig()).Parse(context.Background(), reader)
	require.NoError(t, err)
	assert.True(t, report.Success())
	assert.Empty(t, report.Notes())

	assert.Equal(t, []string{"Growth", "Defensive"}, wb.PortfolioNames)
	assert.Equal(t, []string{"AAA", "BBB"}, wb.AssetCodes)

	require.Len(t, wb.WeightRows, 2)
	d0 := time.Date(2022, 2, 15, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, d0, wb.WeightRows[0].Date)
	assert.Equal(t, "AAA", wb.WeightRows[0].AssetCode)
	assert.Equal(t, "0.5", wb.WeightRows[0].Weights["Growth"].String())
	assert.Equal(t, "0.5", wb.WeightRows[1].Weights["Growth"].String())
	assert.Equal(t, "0.75", wb.WeightRows[1].Weights["Defensive"].String())

	require.Len(t, wb.PriceRows, 2)
	assert.Equal(t, "100", wb.PriceRows[0].Prices["AAA"].String())
	_, hasBBB := wb.PriceRows[1].Prices["BBB"]
	assert.False(t, hasBBB, "empty cell means no observation, not zero")
}

func TestParseWorkbookMissingSheetAborts(t *testing.T) {
	reader := buildWorkbook(t,
		[][]any{
			{"Date", "Assets", "Growth"},
			{"2022-02-15", "AAA", "1"},
		},
		nil,
	)

	_, _, err := New(testConfig()).Parse(context.Background(), reader)
	assert.Error(t, err)
}

func TestParseWorkbookMissingColumnAborts(t *testing.T) {
	reader := buildWorkbook(t,
		[][]any{
			{"Date", "Growth"}, // no asset column
			{"2022-02-15", "1"},
		},
		[][]any{
			{"Date", "AAA"},
			{"2022-02-15", "100"},
		},
	)

	_, _, err := New(testConfig()).Parse(context.Background(), reader)
	assert.Error(t, err)
}

func TestParseWorkbookBadCellsAreSoftSkips(t *testing.T) {
	reader := buildWorkbook(t,
		[][]any{
			{"Date", "Assets", "Growth"},
			{"2022-02-15", "AAA", "not-a-number"},
		},
		[][]any{
			{"Date", "AAA"},
			{"2022-02-15", "oops"},
		},
	)

	wb, report, err := New(testConfig()).Parse(context.Background(), reader)
	require.NoError(t, err)
	assert.True(t, report.Success(), "bad cells warn, they do not abort")
	assert.Len(t, report.Notes(), 2)

	// the weight defaulted to zero, the price was skipped
	require.Len(t, wb.WeightRows, 1)
	assert.True(t, wb.WeightRows[0].Weights["Growth"].IsZero())
	require.Len(t, wb.PriceRows, 1)
	assert.Empty(t, wb.PriceRows[0].Prices)
}
