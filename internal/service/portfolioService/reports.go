package portfolioService

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/acalderon/portfolio-valuation/internal/model"
	"github.com/acalderon/portfolio-valuation/utils"
)

// GenerateReport renders an Excel report with the value and weight series of
// the given portfolios (all when empty) over [from, to]. When Google Drive
// is configured the file is also uploaded and the download link returned;
// an upload failure degrades to a link-less report instead of failing it.
func (s *PortfolioService) GenerateReport(ctx context.Context, portfolioIDs []int64, from, to time.Time) (fileName string, fileBytes []byte, downloadLink string, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioService.GenerateReport"

	slog.Debug("GenerateReport start", slog.String("rqID", rqID), slog.String("op", op), slog.Int("portfolios", len(portfolioIDs)))

	portfolios, err := s.resolvePortfolios(ctx, portfolioIDs)
	if err != nil {
		return "", nil, "", err
	}

	series := make([]model.PortfolioSeries, 0, len(portfolios))
	for _, portfolio := range portfolios {
		portfolioSeries, err := s.QuerySeries(ctx, portfolio.PortfolioID, from, to)
		if err != nil {
			return "", nil, "", err
		}
		series = append(series, portfolioSeries)
	}

	fileBytes, extension, err := s.reports.Generate(ctx, series)
	if err != nil {
		slog.Error("got err from reports.Generate", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return "", nil, "", err
	}
	fileName = fmt.Sprintf("valuation_report_%s%s", time.Now().UTC().Format("2006-01-02_15-04-05"), extension)

	if s.cloudStorage != nil && s.cfg.GoogleDrive.Enabled {
		downloadLink, err = s.cloudStorage.UploadFile(ctx, bytes.NewReader(fileBytes), fileName)
		if err != nil {
			slog.Error("got err from cloudStorage.UploadFile", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
			downloadLink = ""
		}
	}

	slog.Debug("GenerateReport completed", slog.String("rqID", rqID), slog.String("op", op), slog.String("fileName", fileName))

	return fileName, fileBytes, downloadLink, nil
}
