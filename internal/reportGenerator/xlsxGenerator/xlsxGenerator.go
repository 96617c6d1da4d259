package xlsxGenerator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/xuri/excelize/v2"

	"github.com/acalderon/portfolio-valuation/internal/model"
	"github.com/acalderon/portfolio-valuation/utils"
)

type XLSXGenerator struct{}

func New() *XLSXGenerator {
	return &XLSXGenerator{}
}

// Generate renders one sheet per portfolio: the value series followed by the
// per-date asset weights.
func (g *XLSXGenerator) Generate(ctx context.Context, series []model.PortfolioSeries) (fileBytes []byte, fileExtension string, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "XLSXGenerator.Generate"

	if len(series) == 0 {
		return nil, "", errors.New("empty series")
	}

	slog.Debug("Generate start", slog.String("rqID", rqID), slog.String("op", op))

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			slog.Error("got error while closing file", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		}
	}()

	for i, portfolioSeries := range series {
		err := g.fillSheet(f, portfolioSeries, i+1)
		if err != nil {
			slog.Error("got error while filling sheet", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
			return nil, "", err
		}
	}

	if err := f.DeleteSheet("Sheet1"); err != nil {
		slog.Error("got error while deleting Sheet1", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		slog.Error("got error while saving file to bytes buffer", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, "", err
	}

	slog.Debug("Generate completed", slog.String("rqID", rqID), slog.String("op", op))

	return buf.Bytes(), ".xlsx", nil
}

func (g *XLSXGenerator) fillSheet(f *excelize.File, series model.PortfolioSeries, ordinal int) error {
	sheetName := fmt.Sprintf("%d. %s", ordinal, series.Portfolio.Name)
	_, err := f.NewSheet(sheetName)
	if err != nil {
		return err
	}

	if err := g.sectionHeader(f, sheetName, "A1", "B1", "Portfolio value", "#cfe2f3"); err != nil {
		return err
	}
	_ = f.SetCellStr(sheetName, "A2", "date")
	_ = f.SetCellStr(sheetName, "B2", "total value")

	for i, value := range series.Values {
		_ = f.SetCellStr(sheetName, fmt.Sprintf("A%d", i+3), utils.FormatDate(value.Date))
		_ = f.SetCellValue(sheetName, fmt.Sprintf("B%d", i+3), value.TotalValue.InexactFloat64())
	}

	rowNum := len(series.Values) + 5

	if err := g.sectionHeader(f, sheetName, fmt.Sprintf("A%d", rowNum), fmt.Sprintf("D%d", rowNum), "Asset weights", "#d9ead3"); err != nil {
		return err
	}
	rowNum++
	_ = f.SetCellStr(sheetName, fmt.Sprintf("A%d", rowNum), "date")
	_ = f.SetCellStr(sheetName, fmt.Sprintf("B%d", rowNum), "asset")
	_ = f.SetCellStr(sheetName, fmt.Sprintf("C%d", rowNum), "value")
	_ = f.SetCellStr(sheetName, fmt.Sprintf("D%d", rowNum), "weight")

	for _, weight := range series.Weights {
		rowNum++
		_ = f.SetCellStr(sheetName, fmt.Sprintf("A%d", rowNum), utils.FormatDate(weight.Date))
		_ = f.SetCellStr(sheetName, fmt.Sprintf("B%d", rowNum), weight.AssetCode)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("C%d", rowNum), weight.AssetValue.InexactFloat64())
		_ = f.SetCellValue(sheetName, fmt.Sprintf("D%d", rowNum), weight.Weight.InexactFloat64())
	}

	return nil
}

func (g *XLSXGenerator) sectionHeader(f *excelize.File, sheetName, from, to, title, color string) error {
	if err := f.MergeCell(sheetName, from, to); err != nil {
		return err
	}
	f.SetCellValue(sheetName, from, title)

	styleID, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
		Font: &excelize.Font{
			Bold: true,
			Size: 11,
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Pattern: 1,
			Color:   []string{color},
		},
	})
	if err != nil {
		return err
	}

	if err := f.SetCellStyle(sheetName, from, from, styleID); err != nil {
		return fmt.Errorf("apply style: %w", err)
	}

	return nil
}
