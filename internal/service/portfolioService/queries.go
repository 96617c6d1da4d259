package portfolioService

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/acalderon/portfolio-valuation/data/repository"
	"github.com/acalderon/portfolio-valuation/internal/model"
	"github.com/acalderon/portfolio-valuation/internal/service"
	"github.com/acalderon/portfolio-valuation/utils"
)

// QuerySeries returns the stored value and weight series of one portfolio
// restricted to [from, to]. A zero from defaults to the inception date, a
// zero to defaults to the latest price date. Responses are cached per
// (portfolio, range) until the next sweep flushes them.
func (s *PortfolioService) QuerySeries(ctx context.Context, portfolioID int64, from, to time.Time) (model.PortfolioSeries, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioService.QuerySeries"

	slog.Debug("QuerySeries start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("portfolioID", portfolioID))

	portfolio, err := s.repo.GetPortfolio(ctx, portfolioID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.PortfolioSeries{}, service.ErrPortfolioNotFound
		}
		return model.PortfolioSeries{}, err
	}

	from = utils.NormalizeDate(from)
	if from.IsZero() {
		from = portfolio.InceptionDate
	}
	to = utils.NormalizeDate(to)
	if to.IsZero() {
		to, err = s.repo.GetLatestPriceDate(ctx)
		if err != nil {
			if !errors.Is(err, repository.ErrNotFound) {
				return model.PortfolioSeries{}, err
			}
			to = utils.NormalizeDate(time.Now().UTC())
		}
	}

	fromStr, toStr := utils.FormatDate(from), utils.FormatDate(to)
	series, err := s.cache.GetPortfolioSeries(ctx, portfolioID, fromStr, toStr)
	if err == nil {
		slog.Debug("QuerySeries served from cache", slog.String("rqID", rqID), slog.String("op", op))
		return series, nil
	}

	values, err := s.repo.GetPortfolioValues(ctx, portfolioID, from, to)
	if err != nil {
		return model.PortfolioSeries{}, err
	}
	weights, err := s.repo.GetAssetWeights(ctx, portfolioID, from, to)
	if err != nil {
		return model.PortfolioSeries{}, err
	}

	series = model.PortfolioSeries{
		Portfolio: portfolio,
		Values:    values,
		Weights:   weights,
		From:      from,
		To:        to,
	}

	if err := s.cache.SetPortfolioSeries(ctx, portfolioID, fromStr, toStr, series); err != nil {
		slog.Error("got error from cache.SetPortfolioSeries", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
	}

	slog.Debug("QuerySeries completed", slog.String("rqID", rqID), slog.String("op", op), slog.Int("valueRows", len(values)), slog.Int("weightRows", len(weights)))

	return series, nil
}

// ListTransactions returns the audit trail of applied buy/sell items for one
// portfolio, oldest first.
func (s *PortfolioService) ListTransactions(ctx context.Context, portfolioID int64) ([]model.Transaction, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioService.ListTransactions"

	slog.Debug("ListTransactions start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("portfolioID", portfolioID))

	if _, err := s.repo.GetPortfolio(ctx, portfolioID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, service.ErrPortfolioNotFound
		}
		return nil, err
	}

	transactions, err := s.repo.GetTransactions(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	slog.Debug("ListTransactions completed", slog.String("rqID", rqID), slog.String("op", op), slog.Int("rows", len(transactions)))

	return transactions, nil
}
