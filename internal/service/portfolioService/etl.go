package portfolioService

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/acalderon/portfolio-valuation/data/repository"
	"github.com/acalderon/portfolio-valuation/internal/diag"
	"github.com/acalderon/portfolio-valuation/internal/model"
	"github.com/acalderon/portfolio-valuation/internal/service"
	"github.com/acalderon/portfolio-valuation/utils"
)

// LoadWorkbook ingests one Excel workbook: parses the weights and prices
// sheets, registers assets and portfolios, seeds inception-date quantities
// from target weights (c0 = w * V0 / p0) and reruns the full valuation sweep.
// Everything commits as a single unit of work; on any hard failure the
// database is untouched.
func (s *PortfolioService) LoadWorkbook(ctx context.Context, reader io.Reader, opts model.LoadOptions) (model.LoadSummary, *diag.Report, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioService.LoadWorkbook"
	summary := model.LoadSummary{}

	slog.Debug("LoadWorkbook start", slog.String("rqID", rqID), slog.String("op", op))

	workbook, report, err := s.parser.Parse(ctx, reader)
	if err != nil {
		slog.Warn("workbook rejected", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return summary, report, fmt.Errorf("%w: %v", service.ErrLoadAborted, err)
	}

	initialValue := opts.InitialValue
	if !initialValue.IsPositive() {
		initialValue, err = decimal.NewFromString(s.cfg.ETL.InitialValue)
		if err != nil {
			return summary, report, fmt.Errorf("bad configured initial value %q: %w", s.cfg.ETL.InitialValue, err)
		}
	}

	inceptionDate := utils.NormalizeDate(opts.InceptionDate)
	if inceptionDate.IsZero() {
		inceptionDate = earliestWeightDate(workbook.WeightRows)
	}
	inceptionRows := weightRowsAt(workbook.WeightRows, inceptionDate)
	if len(inceptionRows) == 0 {
		report.Errorf("no weight rows at inception date %s", utils.FormatDate(inceptionDate))
		return summary, report, fmt.Errorf("%w: no weights at inception date", service.ErrLoadAborted)
	}

	err = s.repo.WithinTransaction(ctx, func(ctx context.Context) error {
		assetIDs, err := s.registerAssets(ctx, workbook.AssetCodes)
		if err != nil {
			return err
		}

		portfolios, seedable, err := s.registerPortfolios(ctx, workbook.PortfolioNames, initialValue, inceptionDate, report)
		if err != nil {
			return err
		}
		summary.Portfolios = portfolios

		if err := s.storePrices(ctx, workbook.PriceRows, assetIDs); err != nil {
			return err
		}

		seeded, err := s.seedPortfolios(ctx, portfolios, seedable, inceptionRows, assetIDs, report)
		if err != nil {
			return err
		}
		summary.SeededRecords = seeded

		sweepTo, err := s.repo.GetLatestPriceDate(ctx)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				report.Warnf("workbook carried no usable prices, valuation skipped")
				return nil
			}
			return err
		}
		summary.SweepFrom = inceptionDate
		summary.SweepTo = sweepTo

		for _, portfolio := range portfolios {
			if err := s.sweepPortfolio(ctx, portfolio, time.Time{}, sweepTo, report); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		slog.Error("got err from LoadWorkbook", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return model.LoadSummary{}, report, err
	}

	for _, portfolio := range summary.Portfolios {
		if err := s.cache.FlushPortfolioSeries(ctx, portfolio.PortfolioID); err != nil {
			slog.Error("got error from cache.FlushPortfolioSeries", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		}
	}

	summary.AssetCount = len(workbook.AssetCodes)
	summary.PriceRows = len(workbook.PriceRows)
	summary.WeightRows = len(workbook.WeightRows)

	slog.Debug(
		"LoadWorkbook completed",
		slog.String("rqID", rqID),
		slog.String("op", op),
		slog.Int("portfolios", len(summary.Portfolios)),
		slog.Int("seededRecords", summary.SeededRecords),
	)

	return summary, report, nil
}

func (s *PortfolioService) registerAssets(ctx context.Context, codes []string) (map[string]int64, error) {
	assetIDs := make(map[string]int64, len(codes))
	for _, code := range codes {
		assetID, err := s.repo.UpsertAsset(ctx, code, code)
		if err != nil {
			return nil, err
		}
		assetIDs[code] = assetID
	}
	return assetIDs, nil
}

// registerPortfolios creates or updates the workbook's portfolios. A
// portfolio that already carries valuation history keeps its stored initial
// value and inception date and is not re-seeded, so a reload cannot
// silently rewrite an established baseline.
func (s *PortfolioService) registerPortfolios(
	ctx context.Context,
	names []string,
	initialValue decimal.Decimal,
	inceptionDate time.Time,
	report *diag.Report,
) (portfolios []model.Portfolio, seedable map[int64]bool, err error) {
	seedable = make(map[int64]bool, len(names))
	for _, name := range names {
		existing, err := s.repo.GetPortfolioByName(ctx, name)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, nil, err
		}
		if err == nil {
			hasValues, err := s.repo.HasPortfolioValues(ctx, existing.PortfolioID)
			if err != nil {
				return nil, nil, err
			}
			if hasValues {
				report.Warnf("portfolio %s already has valuation history, keeping its baseline", name)
				portfolios = append(portfolios, existing)
				continue
			}
		}

		portfolioID, err := s.repo.UpsertPortfolio(ctx, name, initialValue, inceptionDate)
		if err != nil {
			return nil, nil, err
		}
		seedable[portfolioID] = true
		portfolios = append(portfolios, model.Portfolio{
			PortfolioID:   portfolioID,
			Name:          name,
			InitialValue:  initialValue,
			InceptionDate: inceptionDate,
		})
	}
	return portfolios, seedable, nil
}

func (s *PortfolioService) storePrices(ctx context.Context, rows []model.PriceRow, assetIDs map[string]int64) error {
	var observations []model.PriceObservation
	for _, row := range rows {
		for code, price := range row.Prices {
			observations = append(observations, model.PriceObservation{
				AssetID: assetIDs[code],
				Date:    row.Date,
				Price:   price,
			})
		}
	}
	return s.repo.UpsertPrices(ctx, observations)
}

// seedPortfolios writes the inception-date quantity record for every
// seedable portfolio/asset pair: c0 = w * V0 / p0. Assets without a usable
// inception price are skipped with a diagnostic rather than seeded at a
// fabricated quantity.
func (s *PortfolioService) seedPortfolios(
	ctx context.Context,
	portfolios []model.Portfolio,
	seedable map[int64]bool,
	inceptionRows []model.WeightRow,
	assetIDs map[string]int64,
	report *diag.Report,
) (int, error) {
	seeded := 0
	for _, portfolio := range portfolios {
		if !seedable[portfolio.PortfolioID] {
			continue
		}

		var records []model.QuantityRecord
		for _, row := range inceptionRows {
			weight, ok := row.Weights[portfolio.Name]
			if !ok {
				continue
			}
			assetID := assetIDs[row.AssetCode]

			if err := s.repo.UpsertTargetWeight(ctx, portfolio.PortfolioID, assetID, weight); err != nil {
				return 0, err
			}

			price, err := s.repo.GetPrice(ctx, assetID, portfolio.InceptionDate)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					report.Warnf("portfolio %s: asset %s has no price at inception, not seeded", portfolio.Name, row.AssetCode)
					continue
				}
				return 0, err
			}
			if !price.IsPositive() {
				report.Warnf("portfolio %s: asset %s has non-positive inception price, not seeded", portfolio.Name, row.AssetCode)
				continue
			}

			records = append(records, model.QuantityRecord{
				PortfolioID: portfolio.PortfolioID,
				AssetID:     assetID,
				Date:        portfolio.InceptionDate,
				Quantity:    weight.Mul(portfolio.InitialValue).Div(price),
			})
		}

		if err := s.repo.UpsertQuantityRecords(ctx, records); err != nil {
			return 0, err
		}
		seeded += len(records)
	}
	return seeded, nil
}

func earliestWeightDate(rows []model.WeightRow) time.Time {
	var earliest time.Time
	for _, row := range rows {
		if earliest.IsZero() || row.Date.Before(earliest) {
			earliest = row.Date
		}
	}
	return earliest
}

func weightRowsAt(rows []model.WeightRow, date time.Time) []model.WeightRow {
	var matched []model.WeightRow
	for _, row := range rows {
		if row.Date.Equal(date) {
			matched = append(matched, row)
		}
	}
	return matched
}
