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

// ProcessTransactions applies one buy/sell batch against the quantity step
// function and reruns the valuation sweep from the execution date forward.
// The batch is all-or-nothing: an unknown asset or a missing price on any
// item rejects the whole request and nothing is persisted. Per-item
// outcomes are reported either way.
func (s *PortfolioService) ProcessTransactions(ctx context.Context, req model.TransactionRequest) (model.TransactionResult, *diag.Report, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioService.ProcessTransactions"
	report := &diag.Report{}

	date := utils.NormalizeDate(req.Date)
	result := model.TransactionResult{
		PortfolioID: req.PortfolioID,
		Date:        date,
		Items:       make([]model.TransactionItemResult, len(req.Items)),
	}
	for i, item := range req.Items {
		result.Items[i].AssetCode = item.AssetCode
	}

	slog.Debug(
		"ProcessTransactions start",
		slog.String("rqID", rqID),
		slog.String("op", op),
		slog.Int64("portfolioID", req.PortfolioID),
		slog.String("date", utils.FormatDate(date)),
		slog.Int("items", len(req.Items)),
	)

	portfolio, err := s.repo.GetPortfolio(ctx, req.PortfolioID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return result, report, service.ErrPortfolioNotFound
		}
		return result, report, err
	}

	rejected := false
	for i, item := range req.Items {
		if !item.Type.Valid() {
			result.Items[i].Err = "unknown transaction type " + string(item.Type)
			rejected = true
			continue
		}
		if !item.Amount.IsPositive() {
			result.Items[i].Err = "amount must be positive"
			rejected = true
		}
	}
	if rejected {
		return result, report, service.ErrBatchRejected
	}

	err = s.repo.WithinTransaction(ctx, func(ctx context.Context) error {
		return s.applyBatch(ctx, portfolio, date, req.Items, &result, report)
	})
	if err != nil {
		if !errors.Is(err, service.ErrBatchRejected) {
			slog.Error("got err from ProcessTransactions", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		}
		return result, report, err
	}
	result.Applied = true

	if err := s.cache.FlushPortfolioSeries(ctx, portfolio.PortfolioID); err != nil {
		slog.Error("got error from cache.FlushPortfolioSeries", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
	}

	slog.Debug("ProcessTransactions completed", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("portfolioID", portfolio.PortfolioID))
	return result, report, nil
}

// applyBatch runs inside the unit of work. It resolves every item before the
// first mutation so a bad item cannot leave partial ledger state behind.
func (s *PortfolioService) applyBatch(
	ctx context.Context,
	portfolio model.Portfolio,
	date time.Time,
	items []model.TransactionItem,
	result *model.TransactionResult,
	report *diag.Report,
) error {
	type resolvedItem struct {
		assetID int64
		price   decimal.Decimal
	}

	if err := s.repo.LockPortfolio(ctx, portfolio.PortfolioID); err != nil {
		return err
	}

	resolved := make([]resolvedItem, len(items))
	rejected := false
	for i, item := range items {
		asset, err := s.repo.GetAssetByCode(ctx, item.AssetCode)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				result.Items[i].Err = service.ErrAssetNotFound.Error()
				rejected = true
				continue
			}
			return err
		}

		price, err := s.repo.GetPrice(ctx, asset.AssetID, date)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				result.Items[i].Err = fmt.Sprintf("%s at %s", service.ErrPriceNotFound, utils.FormatDate(date))
				rejected = true
				continue
			}
			return err
		}

		resolved[i] = resolvedItem{assetID: asset.AssetID, price: price}
	}
	if rejected {
		return service.ErrBatchRejected
	}

	var records []model.QuantityRecord
	loaded := make(map[int64]bool, len(resolved))
	for _, res := range resolved {
		if loaded[res.assetID] {
			continue
		}
		loaded[res.assetID] = true
		assetRecords, err := s.repo.GetQuantityRecordsForAsset(ctx, portfolio.PortfolioID, res.assetID)
		if err != nil {
			return err
		}
		records = append(records, assetRecords...)
	}
	quantities := ledger.FromRecords(records)

	for i, item := range items {
		assetID, price := resolved[i].assetID, resolved[i].price

		// Guarded division: a stored zero price yields a zero delta
		// instead of failing the batch.
		delta := decimal.Zero
		if price.IsPositive() {
			delta = item.Amount.Div(price)
			if item.Type == model.TransactionSell {
				delta = delta.Neg()
			}
		} else {
			report.Warnf("asset %s has zero price at %s, delta treated as zero", item.AssetCode, utils.FormatDate(date))
		}

		series := quantities.Ensure(portfolio.PortfolioID, assetID)
		prior, _ := series.Before(date) // carry-forward, zero when no earlier record
		newQuantity := prior.Add(delta)

		series.Set(date, newQuantity)
		changed := []model.QuantityRecord{{
			PortfolioID: portfolio.PortfolioID,
			AssetID:     assetID,
			Date:        date,
			Quantity:    newQuantity,
		}}
		// Later step boundaries are overwritten with the absolute new
		// quantity, not shifted by the delta. Two transactions landing
		// between the same pair of boundaries therefore do not stack on
		// the later records; the last one wins. The same holds for two
		// items on one asset within a single batch: each carries forward
		// from strictly before the date, so the second overwrites the
		// first's record rather than stacking on it.
		for _, later := range series.DatesAfter(date) {
			series.Set(later, newQuantity)
			changed = append(changed, model.QuantityRecord{
				PortfolioID: portfolio.PortfolioID,
				AssetID:     assetID,
				Date:        later,
				Quantity:    newQuantity,
			})
		}
		if err := s.repo.UpsertQuantityRecords(ctx, changed); err != nil {
			return err
		}

		if _, err := s.repo.InsertTransaction(ctx, model.Transaction{
			PortfolioID: portfolio.PortfolioID,
			AssetID:     assetID,
			Date:        date,
			Type:        item.Type,
			Amount:      item.Amount,
			UnitPrice:   price,
			Quantity:    delta.Abs(),
		}); err != nil {
			return err
		}

		result.Items[i].UnitPrice = price
		result.Items[i].Delta = delta
		result.Items[i].NewQuantity = newQuantity
	}

	sweepTo, err := s.repo.GetLatestPriceDate(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return err
	}
	return s.sweepPortfolio(ctx, portfolio, date, sweepTo, report)
}
