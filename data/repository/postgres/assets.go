package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver

	"github.com/acalderon/portfolio-valuation/data/repository"
	"github.com/acalderon/portfolio-valuation/internal/converter/dbConverter"
	"github.com/acalderon/portfolio-valuation/internal/model"
	"github.com/acalderon/portfolio-valuation/internal/model/dbModel"
	"github.com/acalderon/portfolio-valuation/utils"
)

// UpsertAsset inserts the asset or returns the existing id for the code.
// The display name of an existing asset is left untouched so reloads stay
// idempotent.
func (r *Postgres) UpsertAsset(ctx context.Context, code, name string) (assetID int64, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.UpsertAsset"
	query := `
		INSERT INTO assets(code, name) VALUES($1, $2)
		ON CONFLICT (code) DO UPDATE SET name = assets.name
		RETURNING asset_id
		`

	slog.Debug("UpsertAsset start", slog.String("rqID", rqID), slog.String("op", op), slog.String("code", code))
	defer func() {
		if err != nil {
			slog.Error("UpsertAsset failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("UpsertAsset completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	err = r.txOrDb(ctx).QueryRowContext(ctx, query, code, name).Scan(&assetID)
	if err != nil {
		return 0, err
	}

	return assetID, nil
}

func (r *Postgres) GetAssetByCode(ctx context.Context, code string) (asset model.Asset, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.GetAssetByCode"
	query := `SELECT asset_id, code, name FROM assets WHERE code = $1`

	slog.Debug("GetAssetByCode start", slog.String("rqID", rqID), slog.String("op", op), slog.String("code", code))
	defer func() {
		if err != nil {
			slog.Error("GetAssetByCode failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetAssetByCode completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	dbAsset := dbModel.Asset{}
	err = r.txOrDb(ctx).QueryRowxContext(ctx, query, code).StructScan(&dbAsset)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Asset{}, repository.ErrNotFound
		}
		return model.Asset{}, err
	}

	return dbConverter.ConvertAsset(dbAsset), nil
}

func (r *Postgres) GetAssets(ctx context.Context) (assets []model.Asset, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.GetAssets"
	query := `SELECT asset_id, code, name FROM assets ORDER BY code`

	slog.Debug("GetAssets start", slog.String("rqID", rqID), slog.String("op", op))
	defer func() {
		if err != nil {
			slog.Error("GetAssets failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetAssets completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	rows, err := r.txOrDb(ctx).QueryxContext(ctx, query)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	for rows.Next() {
		var dbAsset dbModel.Asset
		err = rows.StructScan(&dbAsset)
		if err != nil {
			return nil, err
		}
		assets = append(assets, dbConverter.ConvertAsset(dbAsset))
	}

	return assets, nil
}
