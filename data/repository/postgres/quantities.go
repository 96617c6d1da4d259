package postgres

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/acalderon/portfolio-valuation/internal/converter/dbConverter"
	"github.com/acalderon/portfolio-valuation/internal/model"
	"github.com/acalderon/portfolio-valuation/internal/model/dbModel"
	"github.com/acalderon/portfolio-valuation/utils"
)

// UpsertQuantityRecords bulk-upserts step-function records. An existing
// record at the same (portfolio, asset, date) key is overwritten, never
// duplicated.
func (r *Postgres) UpsertQuantityRecords(ctx context.Context, records []model.QuantityRecord) (err error) {
	if len(records) == 0 {
		return nil
	}

	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.UpsertQuantityRecords"
	query := `
		INSERT INTO quantity_records(portfolio_id, asset_id, date, quantity)
		SELECT u.portfolio_id, u.asset_id, u.date, u.quantity
		FROM UNNEST($1::bigint[], $2::bigint[], $3::date[], $4::decimal[]) AS u(portfolio_id, asset_id, date, quantity)
		ON CONFLICT (portfolio_id, asset_id, date) DO UPDATE SET quantity = EXCLUDED.quantity
		`

	portfolioIDs := make([]int64, 0, len(records))
	assetIDs := make([]int64, 0, len(records))
	dates := make([]time.Time, 0, len(records))
	quantities := make([]decimal.Decimal, 0, len(records))
	for _, rec := range records {
		portfolioIDs = append(portfolioIDs, rec.PortfolioID)
		assetIDs = append(assetIDs, rec.AssetID)
		dates = append(dates, rec.Date)
		quantities = append(quantities, rec.Quantity.Round(model.QuantityScale))
	}

	slog.Debug("UpsertQuantityRecords start", slog.String("rqID", rqID), slog.String("op", op), slog.Int("rows", len(records)))
	defer func() {
		if err != nil {
			slog.Error("UpsertQuantityRecords failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("UpsertQuantityRecords completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	_, err = r.txOrDb(ctx).ExecContext(ctx, query, portfolioIDs, assetIDs, dates, quantities)
	if err != nil {
		return err
	}

	return nil
}

func (r *Postgres) UpsertQuantityRecord(ctx context.Context, record model.QuantityRecord) error {
	return r.UpsertQuantityRecords(ctx, []model.QuantityRecord{record})
}

// GetQuantityRecords loads every record of a portfolio, for building the
// in-memory step-function index.
func (r *Postgres) GetQuantityRecords(ctx context.Context, portfolioID int64) (records []model.QuantityRecord, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.GetQuantityRecords"
	query := `
		SELECT portfolio_id, asset_id, date, quantity
		FROM quantity_records
		WHERE portfolio_id = $1
		ORDER BY asset_id, date
		`

	slog.Debug("GetQuantityRecords start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("portfolioID", portfolioID))
	defer func() {
		if err != nil {
			slog.Error("GetQuantityRecords failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetQuantityRecords completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	rows, err := r.txOrDb(ctx).QueryxContext(ctx, query, portfolioID)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	for rows.Next() {
		var dbRecord dbModel.QuantityRecord
		err = rows.StructScan(&dbRecord)
		if err != nil {
			return nil, err
		}
		records = append(records, dbConverter.ConvertQuantityRecord(dbRecord))
	}

	return records, nil
}

// GetQuantityRecordsForAsset loads the step-function records of one
// (portfolio, asset) pair, ordered by date.
func (r *Postgres) GetQuantityRecordsForAsset(ctx context.Context, portfolioID, assetID int64) (records []model.QuantityRecord, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.GetQuantityRecordsForAsset"
	query := `
		SELECT portfolio_id, asset_id, date, quantity
		FROM quantity_records
		WHERE portfolio_id = $1 AND asset_id = $2
		ORDER BY date
		`

	slog.Debug("GetQuantityRecordsForAsset start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("portfolioID", portfolioID), slog.Int64("assetID", assetID))
	defer func() {
		if err != nil {
			slog.Error("GetQuantityRecordsForAsset failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetQuantityRecordsForAsset completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	rows, err := r.txOrDb(ctx).QueryxContext(ctx, query, portfolioID, assetID)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	for rows.Next() {
		var dbRecord dbModel.QuantityRecord
		err = rows.StructScan(&dbRecord)
		if err != nil {
			return nil, err
		}
		records = append(records, dbConverter.ConvertQuantityRecord(dbRecord))
	}

	return records, nil
}
