package postgres

import (
	"context"
	"log/slog"

	"github.com/acalderon/portfolio-valuation/internal/converter/dbConverter"
	"github.com/acalderon/portfolio-valuation/internal/model"
	"github.com/acalderon/portfolio-valuation/internal/model/dbModel"
	"github.com/acalderon/portfolio-valuation/utils"
)

// InsertTransaction appends one audit record. Transactions are never updated
// or deleted after creation.
func (r *Postgres) InsertTransaction(ctx context.Context, txn model.Transaction) (transactionID int64, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.InsertTransaction"
	query := `
		INSERT INTO transactions(portfolio_id, asset_id, date, type, amount, unit_price, quantity)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING transaction_id
		`

	slog.Debug(
		"InsertTransaction start",
		slog.String("rqID", rqID),
		slog.String("op", op),
		slog.Int64("portfolioID", txn.PortfolioID),
		slog.Int64("assetID", txn.AssetID),
		slog.String("type", string(txn.Type)),
	)
	defer func() {
		if err != nil {
			slog.Error("InsertTransaction failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("InsertTransaction completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	err = r.txOrDb(ctx).QueryRowContext(
		ctx,
		query,
		txn.PortfolioID,
		txn.AssetID,
		txn.Date,
		string(txn.Type),
		txn.Amount.Round(model.ValueScale),
		txn.UnitPrice.Round(model.PriceScale),
		txn.Quantity.Round(model.QuantityScale),
	).Scan(&transactionID)
	if err != nil {
		return 0, err
	}

	return transactionID, nil
}

func (r *Postgres) GetTransactions(ctx context.Context, portfolioID int64) (transactions []model.Transaction, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.GetTransactions"
	query := `
		SELECT transaction_id, portfolio_id, asset_id, date, type, amount, unit_price, quantity
		FROM transactions
		WHERE portfolio_id = $1
		ORDER BY date, transaction_id
		`

	slog.Debug("GetTransactions start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("portfolioID", portfolioID))
	defer func() {
		if err != nil {
			slog.Error("GetTransactions failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetTransactions completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	rows, err := r.txOrDb(ctx).QueryxContext(ctx, query, portfolioID)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	for rows.Next() {
		var dbTxn dbModel.Transaction
		err = rows.StructScan(&dbTxn)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, dbConverter.ConvertTransaction(dbTxn))
	}

	return transactions, nil
}
