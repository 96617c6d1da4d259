package portfolioService

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/acalderon/portfolio-valuation/data/repository"
	"github.com/acalderon/portfolio-valuation/internal/diag"
	"github.com/acalderon/portfolio-valuation/internal/ledger"
	"github.com/acalderon/portfolio-valuation/internal/model"
	"github.com/acalderon/portfolio-valuation/internal/service"
	"github.com/acalderon/portfolio-valuation/utils"
)

// Recalculate reruns the valuation sweep for the given portfolios (all when
// empty) over [from, to]. A zero from sweeps from the beginning of the price
// history; a zero to sweeps up to the latest observation date. Each
// portfolio's sweep commits as its own atomic unit.
func (s *PortfolioService) Recalculate(ctx context.Context, portfolioIDs []int64, from, to time.Time) (*diag.Report, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioService.Recalculate"
	report := &diag.Report{}

	slog.Debug("Recalculate start", slog.String("rqID", rqID), slog.String("op", op))
	defer func() {
		slog.Debug("Recalculate finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	portfolios, err := s.resolvePortfolios(ctx, portfolioIDs)
	if err != nil {
		return report, err
	}

	if to.IsZero() {
		to, err = s.repo.GetLatestPriceDate(ctx)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				report.Warnf("no prices loaded, nothing to revalue")
				return report, nil
			}
			return report, err
		}
	}

	for _, portfolio := range portfolios {
		err = s.repo.WithinTransaction(ctx, func(ctx context.Context) error {
			return s.sweepPortfolio(ctx, portfolio, from, to, report)
		})
		if err != nil {
			slog.Error("sweep failed", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("portfolioID", portfolio.PortfolioID), slog.String("err", err.Error()))
			return report, err
		}

		if err := s.cache.FlushPortfolioSeries(ctx, portfolio.PortfolioID); err != nil {
			slog.Error("got error from cache.FlushPortfolioSeries", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		}
	}

	return report, nil
}

func (s *PortfolioService) resolvePortfolios(ctx context.Context, portfolioIDs []int64) ([]model.Portfolio, error) {
	if len(portfolioIDs) == 0 {
		return s.repo.GetPortfolios(ctx)
	}

	portfolios := make([]model.Portfolio, 0, len(portfolioIDs))
	for _, id := range portfolioIDs {
		portfolio, err := s.repo.GetPortfolio(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, fmt.Errorf("portfolio %d: %w", id, service.ErrPortfolioNotFound)
			}
			return nil, err
		}
		portfolios = append(portfolios, portfolio)
	}
	return portfolios, nil
}

// sweepPortfolio derives PortfolioValue and AssetWeight rows for every
// distinct price date in [from, to], ascending. Dates where no asset
// contributes a positive value are left absent from the output series
// rather than zero-filled. Must run inside a repository transaction.
func (s *PortfolioService) sweepPortfolio(ctx context.Context, portfolio model.Portfolio, from, to time.Time, report *diag.Report) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioService.sweepPortfolio"

	slog.Debug(
		"sweepPortfolio start",
		slog.String("rqID", rqID),
		slog.String("op", op),
		slog.Int64("portfolioID", portfolio.PortfolioID),
		slog.String("from", utils.FormatDate(from)),
		slog.String("to", utils.FormatDate(to)),
	)

	if err := s.repo.LockPortfolio(ctx, portfolio.PortfolioID); err != nil {
		return err
	}

	dates, err := s.repo.GetDistinctPriceDates(ctx, from, to)
	if err != nil {
		return err
	}
	if len(dates) == 0 {
		report.Warnf("portfolio %s: no price dates in range, nothing to revalue", portfolio.Name)
		return nil
	}

	priceIdx, err := s.loadPriceIndex(ctx, from, to)
	if err != nil {
		return err
	}

	records, err := s.repo.GetQuantityRecords(ctx, portfolio.PortfolioID)
	if err != nil {
		return err
	}
	quantities := ledger.FromRecords(records)

	assets, err := s.sweepAssets(ctx, portfolio.PortfolioID, records)
	if err != nil {
		return err
	}

	var (
		values     []model.PortfolioValue
		weights    []model.AssetWeight
		noPrice    = make(map[string]int)
		noQuantity = make(map[string]int)
	)

	for _, date := range dates {
		total := decimal.Zero
		staged := make([]model.AssetWeight, 0, len(assets))
		for _, asset := range assets {
			price, ok := priceIdx.at(asset.AssetID, date)
			if !ok {
				noPrice[asset.Code]++
				continue
			}
			qty, ok := quantities.At(portfolio.PortfolioID, asset.AssetID, date)
			if !ok {
				noQuantity[asset.Code]++
				continue
			}

			value := qty.Mul(price)
			total = total.Add(value)
			staged = append(staged, model.AssetWeight{
				PortfolioID: portfolio.PortfolioID,
				AssetID:     asset.AssetID,
				AssetCode:   asset.Code,
				Date:        date,
				AssetValue:  value,
			})
		}

		if !total.IsPositive() {
			continue // nothing computable for this date, leave it absent
		}

		for i := range staged {
			staged[i].Weight = staged[i].AssetValue.Div(total)
		}
		weights = append(weights, staged...)
		values = append(values, model.PortfolioValue{
			PortfolioID: portfolio.PortfolioID,
			Date:        date,
			TotalValue:  total,
		})
	}

	for code, n := range noPrice {
		report.Warnf("portfolio %s: asset %s skipped on %d date(s) without a price", portfolio.Name, code, n)
	}
	for code, n := range noQuantity {
		report.Warnf("portfolio %s: asset %s skipped on %d date(s) without a quantity record", portfolio.Name, code, n)
	}

	if err := s.repo.UpsertPortfolioValues(ctx, values); err != nil {
		return err
	}
	if err := s.repo.UpsertAssetWeights(ctx, weights); err != nil {
		return err
	}

	slog.Debug(
		"sweepPortfolio completed",
		slog.String("rqID", rqID),
		slog.String("op", op),
		slog.Int64("portfolioID", portfolio.PortfolioID),
		slog.Int("valueRows", len(values)),
		slog.Int("weightRows", len(weights)),
	)

	return nil
}

type sweepAsset struct {
	AssetID int64
	Code    string
}

// sweepAssets lists the assets a sweep must visit: everything with a target
// weight plus anything that acquired quantity history through transactions.
func (s *PortfolioService) sweepAssets(ctx context.Context, portfolioID int64, records []model.QuantityRecord) ([]sweepAsset, error) {
	targetWeights, err := s.repo.GetTargetWeights(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]bool, len(targetWeights))
	assets := make([]sweepAsset, 0, len(targetWeights))
	for _, w := range targetWeights {
		seen[w.AssetID] = true
		assets = append(assets, sweepAsset{AssetID: w.AssetID, Code: w.AssetCode})
	}

	var extra []int64
	for _, rec := range records {
		if !seen[rec.AssetID] {
			seen[rec.AssetID] = true
			extra = append(extra, rec.AssetID)
		}
	}
	if len(extra) > 0 {
		all, err := s.repo.GetAssets(ctx)
		if err != nil {
			return nil, err
		}
		codes := make(map[int64]string, len(all))
		for _, a := range all {
			codes[a.AssetID] = a.Code
		}
		for _, id := range extra {
			assets = append(assets, sweepAsset{AssetID: id, Code: codes[id]})
		}
	}

	return assets, nil
}

// priceIndex answers point lookups during a sweep without further queries.
type priceIndex struct {
	prices map[int64]map[string]decimal.Decimal // assetID -> date -> price
}

func (p *priceIndex) at(assetID int64, date time.Time) (decimal.Decimal, bool) {
	byDate, ok := p.prices[assetID]
	if !ok {
		return decimal.Decimal{}, false
	}
	price, ok := byDate[utils.FormatDate(date)]
	return price, ok
}

func (s *PortfolioService) loadPriceIndex(ctx context.Context, from, to time.Time) (*priceIndex, error) {
	observations, err := s.repo.GetPricesInRange(ctx, from, to)
	if err != nil {
		return nil, err
	}

	idx := &priceIndex{prices: make(map[int64]map[string]decimal.Decimal)}
	for _, obs := range observations {
		byDate, ok := idx.prices[obs.AssetID]
		if !ok {
			byDate = make(map[string]decimal.Decimal)
			idx.prices[obs.AssetID] = byDate
		}
		byDate[utils.FormatDate(obs.Date)] = obs.Price
	}
	return idx, nil
}
