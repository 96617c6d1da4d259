// Package workbookLoader parses an ingestion workbook into the structured
// rows the service layer loads: a long-form weights sheet and a wide-form
// prices sheet with one column per asset. A missing sheet or required column
// fails the whole parse; a single bad cell is skipped with a diagnostic.
package workbookLoader

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/acalderon/portfolio-valuation/config"
	"github.com/acalderon/portfolio-valuation/internal/diag"
	"github.com/acalderon/portfolio-valuation/internal/model"
	"github.com/acalderon/portfolio-valuation/utils"
)

var (
	dateHeaders  = map[string]bool{"date": true, "dates": true, "fecha": true}
	assetHeaders = map[string]bool{"asset": true, "assets": true, "asset_code": true, "activos": true}
)

type Loader struct {
	cfg *config.Config
}

func New(cfg *config.Config) *Loader {
	return &Loader{cfg: cfg}
}

// Parse reads the workbook and returns its structured content. The returned
// report carries the soft skips; returning a non-nil error means nothing of
// the workbook is usable and the load must abort.
func (l *Loader) Parse(ctx context.Context, reader io.Reader) (model.Workbook, *diag.Report, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Loader.Parse"
	report := &diag.Report{}

	slog.Debug("Parse start", slog.String("rqID", rqID), slog.String("op", op))

	f, err := excelize.OpenReader(reader)
	if err != nil {
		return model.Workbook{}, report, fmt.Errorf("open workbook: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			slog.Error("got error while closing workbook", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		}
	}()

	wb := model.Workbook{}

	weightRows, portfolioNames, weightAssets, err := l.parseWeightsSheet(f, report)
	if err != nil {
		return model.Workbook{}, report, err
	}

	priceRows, priceAssets, err := l.parsePricesSheet(f, report)
	if err != nil {
		return model.Workbook{}, report, err
	}

	wb.WeightRows = weightRows
	wb.PortfolioNames = portfolioNames
	wb.PriceRows = priceRows
	wb.AssetCodes = mergeCodes(weightAssets, priceAssets)

	slog.Debug(
		"Parse completed",
		slog.String("rqID", rqID),
		slog.String("op", op),
		slog.Int("weightRows", len(wb.WeightRows)),
		slog.Int("priceRows", len(wb.PriceRows)),
		slog.Int("assets", len(wb.AssetCodes)),
	)

	return wb, report, nil
}

func (l *Loader) parseWeightsSheet(f *excelize.File, report *diag.Report) (weightRows []model.WeightRow, portfolioNames, assetCodes []string, err error) {
	sheet := l.cfg.ETL.WeightsSheet
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("sheet %q is missing: %w", sheet, err)
	}
	if len(rows) < 2 {
		return nil, nil, nil, fmt.Errorf("sheet %q has no data rows", sheet)
	}

	header := rows[0]
	dateCol, assetCol := -1, -1
	portfolioCols := make(map[int]string)
	for i, h := range header {
		name := strings.TrimSpace(h)
		switch {
		case dateHeaders[strings.ToLower(name)]:
			dateCol = i
		case assetHeaders[strings.ToLower(name)]:
			assetCol = i
		case name != "":
			portfolioCols[i] = name
			portfolioNames = append(portfolioNames, name)
		}
	}
	if dateCol < 0 {
		return nil, nil, nil, fmt.Errorf("sheet %q has no date column", sheet)
	}
	if assetCol < 0 {
		return nil, nil, nil, fmt.Errorf("sheet %q has no asset column", sheet)
	}
	if len(portfolioCols) == 0 {
		return nil, nil, nil, fmt.Errorf("sheet %q has no portfolio columns", sheet)
	}

	seen := make(map[string]bool)
	for rowIdx, row := range rows[1:] {
		if cell(row, assetCol) == "" && cell(row, dateCol) == "" {
			continue // trailing blank row
		}

		date, err := utils.ParseCellDate(cell(row, dateCol))
		if err != nil {
			return nil, nil, nil, fmt.Errorf("sheet %q row %d: %w", sheet, rowIdx+2, err)
		}

		code := strings.TrimSpace(cell(row, assetCol))
		if code == "" {
			report.Warnf("weights row %d: empty asset code, row skipped", rowIdx+2)
			continue
		}

		weights := make(map[string]decimal.Decimal, len(portfolioCols))
		for col, portfolioName := range portfolioCols {
			raw := cell(row, col)
			w, err := utils.ParseFlexDecimal(raw)
			if err != nil {
				// an unparsable weight defaults to zero, it does not fail the load
				report.Warnf("weights row %d: bad weight %q for %s/%s, defaulting to 0", rowIdx+2, raw, portfolioName, code)
				w = decimal.Zero
			}
			weights[portfolioName] = w
		}

		weightRows = append(weightRows, model.WeightRow{Date: date, AssetCode: code, Weights: weights})
		if !seen[code] {
			seen[code] = true
			assetCodes = append(assetCodes, code)
		}
	}

	if len(weightRows) == 0 {
		return nil, nil, nil, fmt.Errorf("sheet %q has no usable rows", sheet)
	}

	return weightRows, portfolioNames, assetCodes, nil
}

func (l *Loader) parsePricesSheet(f *excelize.File, report *diag.Report) (priceRows []model.PriceRow, assetCodes []string, err error) {
	sheet := l.cfg.ETL.PricesSheet
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, nil, fmt.Errorf("sheet %q is missing: %w", sheet, err)
	}
	if len(rows) < 1 {
		return nil, nil, fmt.Errorf("sheet %q is empty", sheet)
	}

	header := rows[0]
	dateCol := -1
	assetCols := make(map[int]string)
	for i, h := range header {
		name := strings.TrimSpace(h)
		switch {
		case dateHeaders[strings.ToLower(name)]:
			dateCol = i
		case name != "":
			assetCols[i] = name
			assetCodes = append(assetCodes, name)
		}
	}
	if dateCol < 0 {
		return nil, nil, fmt.Errorf("sheet %q has no date column", sheet)
	}
	if len(assetCols) == 0 {
		return nil, nil, fmt.Errorf("sheet %q has no asset columns", sheet)
	}

	for rowIdx, row := range rows[1:] {
		if cell(row, dateCol) == "" {
			continue
		}

		date, err := utils.ParseCellDate(cell(row, dateCol))
		if err != nil {
			return nil, nil, fmt.Errorf("sheet %q row %d: %w", sheet, rowIdx+2, err)
		}

		prices := make(map[string]decimal.Decimal, len(assetCols))
		for col, code := range assetCols {
			raw := strings.TrimSpace(cell(row, col))
			if raw == "" {
				continue // no observation for this asset on this date
			}
			p, err := utils.ParseFlexDecimal(raw)
			if err != nil {
				report.Warnf("prices row %d: bad price %q for %s, cell skipped", rowIdx+2, raw, code)
				continue
			}
			prices[code] = p
		}

		priceRows = append(priceRows, model.PriceRow{Date: date, Prices: prices})
	}

	return priceRows, assetCodes, nil
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// mergeCodes unions code lists preserving first-seen order.
func mergeCodes(lists ...[]string) []string {
	var merged []string
	seen := make(map[string]bool)
	for _, list := range lists {
		for _, code := range list {
			if !seen[code] {
				seen[code] = true
				merged = append(merged, code)
			}
		}
	}
	return merged
}
