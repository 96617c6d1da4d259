package postgres

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/acalderon/portfolio-valuation/internal/converter/dbConverter"
	"github.com/acalderon/portfolio-valuation/internal/model"
	"github.com/acalderon/portfolio-valuation/internal/model/dbModel"
	"github.com/acalderon/portfolio-valuation/utils"
)

func (r *Postgres) UpsertTargetWeight(ctx context.Context, portfolioID, assetID int64, weight decimal.Decimal) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.UpsertTargetWeight"
	query := `
		INSERT INTO target_weights(portfolio_id, asset_id, weight) VALUES($1, $2, $3)
		ON CONFLICT (portfolio_id, asset_id) DO UPDATE SET weight = EXCLUDED.weight
		`

	slog.Debug("UpsertTargetWeight start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("portfolioID", portfolioID), slog.Int64("assetID", assetID))
	defer func() {
		if err != nil {
			slog.Error("UpsertTargetWeight failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("UpsertTargetWeight completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	_, err = r.txOrDb(ctx).ExecContext(ctx, query, portfolioID, assetID, weight.Round(model.WeightScale))
	if err != nil {
		return err
	}

	return nil
}

// GetTargetWeights lists a portfolio's allocation, ordered by asset code.
func (r *Postgres) GetTargetWeights(ctx context.Context, portfolioID int64) (weights []model.TargetWeight, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.GetTargetWeights"
	query := `
		SELECT w.portfolio_id, w.asset_id, a.code, w.weight
		FROM target_weights w
		JOIN assets a USING(asset_id)
		WHERE w.portfolio_id = $1
		ORDER BY a.code
		`

	slog.Debug("GetTargetWeights start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("portfolioID", portfolioID))
	defer func() {
		if err != nil {
			slog.Error("GetTargetWeights failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetTargetWeights completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	rows, err := r.txOrDb(ctx).QueryxContext(ctx, query, portfolioID)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	for rows.Next() {
		var dbWeight dbModel.TargetWeight
		err = rows.StructScan(&dbWeight)
		if err != nil {
			return nil, err
		}
		weights = append(weights, dbConverter.ConvertTargetWeight(dbWeight))
	}

	return weights, nil
}
