// Package portfolioService implements the valuation core: quantity seeding
// from target weights, transaction processing against the quantity step
// function, and the historical revaluation sweep that derives portfolio
// values and dynamic asset weights.
package portfolioService

import (
	"context"
	"io"
	"time"

	"github.com/shopspring/decimal"

	"github.com/acalderon/portfolio-valuation/config"
	"github.com/acalderon/portfolio-valuation/internal/diag"
	"github.com/acalderon/portfolio-valuation/internal/model"
	"github.com/acalderon/portfolio-valuation/internal/model/quotesModel"
)

type Repository interface {
	// WithinTransaction makes every repository call through the derived
	// context part of one atomic unit of work.
	WithinTransaction(ctx context.Context, tFunc func(ctx context.Context) error) error

	UpsertAsset(ctx context.Context, code, name string) (assetID int64, err error)
	GetAssetByCode(ctx context.Context, code string) (model.Asset, error)
	GetAssets(ctx context.Context) ([]model.Asset, error)

	UpsertPortfolio(ctx context.Context, name string, initialValue decimal.Decimal, inceptionDate time.Time) (portfolioID int64, err error)
	// LockPortfolio serializes concurrent units of work touching the same
	// portfolio. Only meaningful inside WithinTransaction.
	LockPortfolio(ctx context.Context, portfolioID int64) error
	GetPortfolio(ctx context.Context, portfolioID int64) (model.Portfolio, error)
	GetPortfolioByName(ctx context.Context, name string) (model.Portfolio, error)
	GetPortfolios(ctx context.Context) ([]model.Portfolio, error)

	UpsertPrices(ctx context.Context, prices []model.PriceObservation) error
	GetPrice(ctx context.Context, assetID int64, date time.Time) (decimal.Decimal, error)
	GetPricesInRange(ctx context.Context, from, to time.Time) ([]model.PriceObservation, error)
	GetDistinctPriceDates(ctx context.Context, from, to time.Time) ([]time.Time, error)
	GetLatestPriceDate(ctx context.Context) (time.Time, error)

	UpsertTargetWeight(ctx context.Context, portfolioID, assetID int64, weight decimal.Decimal) error
	GetTargetWeights(ctx context.Context, portfolioID int64) ([]model.TargetWeight, error)

	UpsertQuantityRecord(ctx context.Context, record model.QuantityRecord) error
	UpsertQuantityRecords(ctx context.Context, records []model.QuantityRecord) error
	GetQuantityRecords(ctx context.Context, portfolioID int64) ([]model.QuantityRecord, error)
	GetQuantityRecordsForAsset(ctx context.Context, portfolioID, assetID int64) ([]model.QuantityRecord, error)

	UpsertPortfolioValues(ctx context.Context, values []model.PortfolioValue) error
	UpsertAssetWeights(ctx context.Context, weights []model.AssetWeight) error
	GetPortfolioValues(ctx context.Context, portfolioID int64, from, to time.Time) ([]model.PortfolioValue, error)
	GetAssetWeights(ctx context.Context, portfolioID int64, from, to time.Time) ([]model.AssetWeight, error)
	HasPortfolioValues(ctx context.Context, portfolioID int64) (bool, error)

	InsertTransaction(ctx context.Context, txn model.Transaction) (transactionID int64, err error)
	GetTransactions(ctx context.Context, portfolioID int64) ([]model.Transaction, error)
}

type Cache interface {
	GetPortfolioSeries(ctx context.Context, portfolioID int64, from, to string) (model.PortfolioSeries, error)
	SetPortfolioSeries(ctx context.Context, portfolioID int64, from, to string, series model.PortfolioSeries) error
	FlushPortfolioSeries(ctx context.Context, portfolioID int64) error
}

type WorkbookParser interface {
	Parse(ctx context.Context, reader io.Reader) (model.Workbook, *diag.Report, error)
}

type QuotesApi interface {
	GetClosingQuotes(ctx context.Context, codes []string) ([]quotesModel.Quote, error)
}

type ReportGenerator interface {
	Generate(ctx context.Context, series []model.PortfolioSeries) (fileBytes []byte, fileExtension string, err error)
}

type CloudStorage interface {
	UploadFile(ctx context.Context, reader io.Reader, filename string) (downloadLink string, err error)
}

type PortfolioService struct {
	cfg          *config.Config
	repo         Repository
	cache        Cache
	parser       WorkbookParser
	quotesApi    QuotesApi
	reports      ReportGenerator
	cloudStorage CloudStorage
}

// New wires the service. quotesApi and cloudStorage may be nil when the
// corresponding integrations are disabled.
func New(
	cfg *config.Config,
	repo Repository,
	cache Cache,
	parser WorkbookParser,
	quotesApi QuotesApi,
	reports ReportGenerator,
	cloudStorage CloudStorage,
) *PortfolioService {
	return &PortfolioService{
		cfg:          cfg,
		repo:         repo,
		cache:        cache,
		parser:       parser,
		quotesApi:    quotesApi,
		reports:      reports,
		cloudStorage: cloudStorage,
	}
}
