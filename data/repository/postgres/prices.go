package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/acalderon/portfolio-valuation/data/repository"
	"github.com/acalderon/portfolio-valuation/internal/converter/dbConverter"
	"github.com/acalderon/portfolio-valuation/internal/model"
	"github.com/acalderon/portfolio-valuation/internal/model/dbModel"
	"github.com/acalderon/portfolio-valuation/utils"
)

// UpsertPrices bulk-upserts price observations. Reloading the same rows
// overwrites the price for the (asset, date) key instead of duplicating it.
func (r *Postgres) UpsertPrices(ctx context.Context, prices []model.PriceObservation) (err error) {
	if len(prices) == 0 {
		return nil
	}

	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.UpsertPrices"
	query := `
		INSERT INTO prices(asset_id, date, price)
		SELECT u.asset_id, u.date, u.price
		FROM UNNEST($1::bigint[], $2::date[], $3::decimal[]) AS u(asset_id, date, price)
		ON CONFLICT (asset_id, date) DO UPDATE SET price = EXCLUDED.price
		`

	assetIDs := make([]int64, 0, len(prices))
	dates := make([]time.Time, 0, len(prices))
	values := make([]decimal.Decimal, 0, len(prices))
	for _, p := range prices {
		assetIDs = append(assetIDs, p.AssetID)
		dates = append(dates, p.Date)
		values = append(values, p.Price.Round(model.PriceScale))
	}

	slog.Debug("UpsertPrices start", slog.String("rqID", rqID), slog.String("op", op), slog.Int("rows", len(prices)))
	defer func() {
		if err != nil {
			slog.Error("UpsertPrices failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("UpsertPrices completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	_, err = r.txOrDb(ctx).ExecContext(ctx, query, assetIDs, dates, values)
	if err != nil {
		return err
	}

	return nil
}

func (r *Postgres) GetPrice(ctx context.Context, assetID int64, date time.Time) (price decimal.Decimal, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.GetPrice"
	query := `SELECT price FROM prices WHERE asset_id = $1 AND date = $2`

	slog.Debug("GetPrice start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("assetID", assetID), slog.String("date", utils.FormatDate(date)))
	defer func() {
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			slog.Error("GetPrice failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetPrice completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	err = r.txOrDb(ctx).QueryRowContext(ctx, query, assetID, date).Scan(&price)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Decimal{}, repository.ErrNotFound
		}
		return decimal.Decimal{}, err
	}

	return price, nil
}

// GetPricesInRange loads every observation within [from, to] across all
// assets, for the valuation sweep's in-memory price lookup.
func (r *Postgres) GetPricesInRange(ctx context.Context, from, to time.Time) (prices []model.PriceObservation, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.GetPricesInRange"
	query := `
		SELECT asset_id, date, price
		FROM prices
		WHERE date >= $1 AND date <= $2
		ORDER BY date, asset_id
		`

	slog.Debug("GetPricesInRange start", slog.String("rqID", rqID), slog.String("op", op), slog.String("from", utils.FormatDate(from)), slog.String("to", utils.FormatDate(to)))
	defer func() {
		if err != nil {
			slog.Error("GetPricesInRange failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetPricesInRange completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	rows, err := r.txOrDb(ctx).QueryxContext(ctx, query, from, to)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	for rows.Next() {
		var dbPrice dbModel.Price
		err = rows.StructScan(&dbPrice)
		if err != nil {
			return nil, err
		}
		prices = append(prices, dbConverter.ConvertPrice(dbPrice))
	}

	return prices, nil
}

// GetDistinctPriceDates returns the ascending distinct observation dates in
// [from, to]. These dates drive the valuation sweep.
func (r *Postgres) GetDistinctPriceDates(ctx context.Context, from, to time.Time) (dates []time.Time, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.GetDistinctPriceDates"
	query := `SELECT DISTINCT date FROM prices WHERE date >= $1 AND date <= $2 ORDER BY date`

	slog.Debug("GetDistinctPriceDates start", slog.String("rqID", rqID), slog.String("op", op))
	defer func() {
		if err != nil {
			slog.Error("GetDistinctPriceDates failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetDistinctPriceDates completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	rows, err := r.txOrDb(ctx).QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	for rows.Next() {
		var d time.Time
		err = rows.Scan(&d)
		if err != nil {
			return nil, err
		}
		dates = append(dates, utils.NormalizeDate(d))
	}

	return dates, nil
}

// GetLatestPriceDate returns the most recent observation date across all
// assets, or ErrNotFound when no prices are loaded yet.
func (r *Postgres) GetLatestPriceDate(ctx context.Context) (date time.Time, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.GetLatestPriceDate"
	query := `SELECT max(date) FROM prices`

	slog.Debug("GetLatestPriceDate start", slog.String("rqID", rqID), slog.String("op", op))
	defer func() {
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			slog.Error("GetLatestPriceDate failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetLatestPriceDate completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	var d sql.NullTime
	err = r.txOrDb(ctx).QueryRowContext(ctx, query).Scan(&d)
	if err != nil {
		return time.Time{}, err
	}
	if !d.Valid {
		return time.Time{}, repository.ErrNotFound
	}

	return utils.NormalizeDate(d.Time), nil
}
