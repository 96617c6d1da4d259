package portfolioService

import (
	"context"
	"log/slog"
	"time"

	"github.com/acalderon/portfolio-valuation/internal/model"
	"github.com/acalderon/portfolio-valuation/utils"
)

// RefreshQuotes pulls closing prices for every known asset from the external
// quotes feed, stores them and reruns the sweep from the earliest refreshed
// date. No-op when the feed integration is disabled.
func (s *PortfolioService) RefreshQuotes(ctx context.Context) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioService.RefreshQuotes"

	if s.quotesApi == nil {
		return nil
	}

	slog.Debug("RefreshQuotes start", slog.String("rqID", rqID), slog.String("op", op))

	assets, err := s.repo.GetAssets(ctx)
	if err != nil {
		return err
	}
	if len(assets) == 0 {
		slog.Debug("RefreshQuotes: no assets registered", slog.String("rqID", rqID), slog.String("op", op))
		return nil
	}

	codes := make([]string, 0, len(assets))
	assetIDs := make(map[string]int64, len(assets))
	for _, asset := range assets {
		codes = append(codes, asset.Code)
		assetIDs[asset.Code] = asset.AssetID
	}

	quotes, err := s.quotesApi.GetClosingQuotes(ctx, codes)
	if err != nil {
		slog.Error("got err from quotesApi.GetClosingQuotes", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return err
	}
	if len(quotes) == 0 {
		slog.Warn("quotes feed returned nothing", slog.String("rqID", rqID), slog.String("op", op))
		return nil
	}

	var (
		observations []model.PriceObservation
		sweepFrom    time.Time
	)
	for _, quote := range quotes {
		assetID, ok := assetIDs[quote.Code]
		if !ok {
			slog.Warn("quote for unknown asset skipped", slog.String("rqID", rqID), slog.String("op", op), slog.String("code", quote.Code))
			continue
		}
		date := utils.NormalizeDate(quote.Date)
		if sweepFrom.IsZero() || date.Before(sweepFrom) {
			sweepFrom = date
		}
		observations = append(observations, model.PriceObservation{
			AssetID: assetID,
			Date:    date,
			Price:   quote.Price,
		})
	}
	if len(observations) == 0 {
		return nil
	}

	if err := s.repo.UpsertPrices(ctx, observations); err != nil {
		return err
	}

	if _, err := s.Recalculate(ctx, nil, sweepFrom, time.Time{}); err != nil {
		return err
	}

	slog.Debug("RefreshQuotes completed", slog.String("rqID", rqID), slog.String("op", op), slog.Int("observations", len(observations)))

	return nil
}
