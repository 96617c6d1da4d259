package portfolioService

import (
	"context"
	"io"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acalderon/portfolio-valuation/config"
	"github.com/acalderon/portfolio-valuation/data/repository"
	"github.com/acalderon/portfolio-valuation/internal/diag"
	"github.com/acalderon/portfolio-valuation/internal/model"
	"github.com/acalderon/portfolio-valuation/internal/service"
	"github.com/acalderon/portfolio-valuation/utils"
)

func date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := utils.ParseDate(s)
	require.NoError(t, err)
	return d
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// fakeRepo is an in-memory Repository. WithinTransaction runs the callback
// directly; atomicity is exercised against the real implementation, here we
// only care about the valuation semantics.
type fakeRepo struct {
	assets       []model.Asset
	portfolios   []model.Portfolio
	prices       []model.PriceObservation
	targets      []model.TargetWeight
	quantities   []model.QuantityRecord
	values       []model.PortfolioValue
	assetWeights []model.AssetWeight
	transactions []model.Transaction
	locked       []int64
}

func (f *fakeRepo) WithinTransaction(ctx context.Context, tFunc func(ctx context.Context) error) error {
	return tFunc(ctx)
}

func (f *fakeRepo) UpsertAsset(_ context.Context, code, name string) (int64, error) {
	for _, a := range f.assets {
		if a.Code == code {
			return a.AssetID, nil
		}
	}
	asset := model.Asset{AssetID: int64(len(f.assets) + 1), Code: code, Name: name}
	f.assets = append(f.assets, asset)
	return asset.AssetID, nil
}

func (f *fakeRepo) GetAssetByCode(_ context.Context, code string) (model.Asset, error) {
	for _, a := range f.assets {
		if a.Code == code {
			return a, nil
		}
	}
	return model.Asset{}, repository.ErrNotFound
}

func (f *fakeRepo) GetAssets(_ context.Context) ([]model.Asset, error) {
	return f.assets, nil
}

func (f *fakeRepo) UpsertPortfolio(_ context.Context, name string, initialValue decimal.Decimal, inceptionDate time.Time) (int64, error) {
	for i, p := range f.portfolios {
		if p.Name == name {
			f.portfolios[i].InitialValue = initialValue
			f.portfolios[i].InceptionDate = inceptionDate
			return p.PortfolioID, nil
		}
	}
	portfolio := model.Portfolio{PortfolioID: int64(len(f.portfolios) + 1), Name: name, InitialValue: initialValue, InceptionDate: inceptionDate}
	f.portfolios = append(f.portfolios, portfolio)
	return portfolio.PortfolioID, nil
}

func (f *fakeRepo) GetPortfolio(_ context.Context, portfolioID int64) (model.Portfolio, error) {
	for _, p := range f.portfolios {
		if p.PortfolioID == portfolioID {
			return p, nil
		}
	}
	return model.Portfolio{}, repository.ErrNotFound
}

func (f *fakeRepo) LockPortfolio(ctx context.Context, portfolioID int64) error {
	if _, err := f.GetPortfolio(ctx, portfolioID); err != nil {
		return err
	}
	f.locked = append(f.locked, portfolioID)
	return nil
}

func (f *fakeRepo) GetPortfolioByName(_ context.Context, name string) (model.Portfolio, error) {
	for _, p := range f.portfolios {
		if p.Name == name {
			return p, nil
		}
	}
	return model.Portfolio{}, repository.ErrNotFound
}

func (f *fakeRepo) GetPortfolios(_ context.Context) ([]model.Portfolio, error) {
	return f.portfolios, nil
}

func (f *fakeRepo) UpsertPrices(_ context.Context, prices []model.PriceObservation) error {
	for _, obs := range prices {
		replaced := false
		for i, existing := range f.prices {
			if existing.AssetID == obs.AssetID && existing.Date.Equal(obs.Date) {
				f.prices[i] = obs
				replaced = true
				break
			}
		}
		if !replaced {
			f.prices = append(f.prices, obs)
		}
	}
	return nil
}

func (f *fakeRepo) GetPrice(_ context.Context, assetID int64, date time.Time) (decimal.Decimal, error) {
	for _, obs := range f.prices {
		if obs.AssetID == assetID && obs.Date.Equal(date) {
			return obs.Price, nil
		}
	}
	return decimal.Decimal{}, repository.ErrNotFound
}

func (f *fakeRepo) GetPricesInRange(_ context.Context, from, to time.Time) ([]model.PriceObservation, error) {
	var out []model.PriceObservation
	for _, obs := range f.prices {
		if !obs.Date.Before(from) && !obs.Date.After(to) {
			out = append(out, obs)
		}
	}
	return out, nil
}

func (f *fakeRepo) GetDistinctPriceDates(_ context.Context, from, to time.Time) ([]time.Time, error) {
	seen := make(map[string]time.Time)
	for _, obs := range f.prices {
		if !obs.Date.Before(from) && !obs.Date.After(to) {
			seen[utils.FormatDate(obs.Date)] = obs.Date
		}
	}
	dates := make([]time.Time, 0, len(seen))
	for _, d := range seen {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, nil
}

func (f *fakeRepo) GetLatestPriceDate(_ context.Context) (time.Time, error) {
	var latest time.Time
	for _, obs := range f.prices {
		if obs.Date.After(latest) {
			latest = obs.Date
		}
	}
	if latest.IsZero() {
		return time.Time{}, repository.ErrNotFound
	}
	return latest, nil
}

func (f *fakeRepo) UpsertTargetWeight(_ context.Context, portfolioID, assetID int64, weight decimal.Decimal) error {
	for i, w := range f.targets {
		if w.PortfolioID == portfolioID && w.AssetID == assetID {
			f.targets[i].Weight = weight
			return nil
		}
	}
	code := ""
	for _, a := range f.assets {
		if a.AssetID == assetID {
			code = a.Code
		}
	}
	f.targets = append(f.targets, model.TargetWeight{PortfolioID: portfolioID, AssetID: assetID, AssetCode: code, Weight: weight})
	return nil
}

func (f *fakeRepo) GetTargetWeights(_ context.Context, portfolioID int64) ([]model.TargetWeight, error) {
	var out []model.TargetWeight
	for _, w := range f.targets {
		if w.PortfolioID == portfolioID {
			out = append(out, w)
		}
	}
	return out, nil
}

func (f *fakeRepo) UpsertQuantityRecord(ctx context.Context, record model.QuantityRecord) error {
	return f.UpsertQuantityRecords(ctx, []model.QuantityRecord{record})
}

func (f *fakeRepo) UpsertQuantityRecords(_ context.Context, records []model.QuantityRecord) error {
	for _, rec := range records {
		replaced := false
		for i, existing := range f.quantities {
			if existing.PortfolioID == rec.PortfolioID && existing.AssetID == rec.AssetID && existing.Date.Equal(rec.Date) {
				f.quantities[i] = rec
				replaced = true
				break
			}
		}
		if !replaced {
			f.quantities = append(f.quantities, rec)
		}
	}
	return nil
}

func (f *fakeRepo) GetQuantityRecords(_ context.Context, portfolioID int64) ([]model.QuantityRecord, error) {
	var out []model.QuantityRecord
	for _, rec := range f.quantities {
		if rec.PortfolioID == portfolioID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeRepo) GetQuantityRecordsForAsset(_ context.Context, portfolioID, assetID int64) ([]model.QuantityRecord, error) {
	var out []model.QuantityRecord
	for _, rec := range f.quantities {
		if rec.PortfolioID == portfolioID && rec.AssetID == assetID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (f *fakeRepo) UpsertPortfolioValues(_ context.Context, values []model.PortfolioValue) error {
	for _, v := range values {
		replaced := false
		for i, existing := range f.values {
			if existing.PortfolioID == v.PortfolioID && existing.Date.Equal(v.Date) {
				f.values[i] = v
				replaced = true
				break
			}
		}
		if !replaced {
			f.values = append(f.values, v)
		}
	}
	return nil
}

func (f *fakeRepo) UpsertAssetWeights(_ context.Context, weights []model.AssetWeight) error {
	for _, w := range weights {
		replaced := false
		for i, existing := range f.assetWeights {
			if existing.PortfolioID == w.PortfolioID && existing.AssetID == w.AssetID && existing.Date.Equal(w.Date) {
				f.assetWeights[i] = w
				replaced = true
				break
			}
		}
		if !replaced {
			f.assetWeights = append(f.assetWeights, w)
		}
	}
	return nil
}

func (f *fakeRepo) GetPortfolioValues(_ context.Context, portfolioID int64, from, to time.Time) ([]model.PortfolioValue, error) {
	var out []model.PortfolioValue
	for _, v := range f.values {
		if v.PortfolioID == portfolioID && !v.Date.Before(from) && !v.Date.After(to) {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (f *fakeRepo) GetAssetWeights(_ context.Context, portfolioID int64, from, to time.Time) ([]model.AssetWeight, error) {
	var out []model.AssetWeight
	for _, w := range f.assetWeights {
		if w.PortfolioID == portfolioID && !w.Date.Before(from) && !w.Date.After(to) {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].AssetCode < out[j].AssetCode
	})
	return out, nil
}

func (f *fakeRepo) HasPortfolioValues(_ context.Context, portfolioID int64) (bool, error) {
	for _, v := range f.values {
		if v.PortfolioID == portfolioID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRepo) InsertTransaction(_ context.Context, txn model.Transaction) (int64, error) {
	txn.TransactionID = int64(len(f.transactions) + 1)
	f.transactions = append(f.transactions, txn)
	return txn.TransactionID, nil
}

func (f *fakeRepo) GetTransactions(_ context.Context, portfolioID int64) ([]model.Transaction, error) {
	var out []model.Transaction
	for _, txn := range f.transactions {
		if txn.PortfolioID == portfolioID {
			out = append(out, txn)
		}
	}
	return out, nil
}

// quantityAt mirrors the step-function read for assertions.
func (f *fakeRepo) quantityAt(t *testing.T, portfolioID, assetID int64, d time.Time) decimal.Decimal {
	t.Helper()
	for _, rec := range f.quantities {
		if rec.PortfolioID == portfolioID && rec.AssetID == assetID && rec.Date.Equal(d) {
			return rec.Quantity
		}
	}
	t.Fatalf("no quantity record at %s", utils.FormatDate(d))
	return decimal.Decimal{}
}

type fakeCache struct{}

func (fakeCache) GetPortfolioSeries(context.Context, int64, string, string) (model.PortfolioSeries, error) {
	return model.PortfolioSeries{}, repository.ErrNotFound
}
func (fakeCache) SetPortfolioSeries(context.Context, int64, string, string, model.PortfolioSeries) error {
	return nil
}
func (fakeCache) FlushPortfolioSeries(context.Context, int64) error { return nil }

type fakeParser struct {
	workbook model.Workbook
	report   *diag.Report
	err      error
}

func (p fakeParser) Parse(context.Context, io.Reader) (model.Workbook, *diag.Report, error) {
	report := p.report
	if report == nil {
		report = &diag.Report{}
	}
	return p.workbook, report, p.err
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.ETL.InitialValue = "1000000000.00"
	return cfg
}

func newTestService(repo *fakeRepo, parser WorkbookParser) *PortfolioService {
	return New(testConfig(), repo, fakeCache{}, parser, nil, nil, nil)
}

func seededWorkbook(t *testing.T) model.Workbook {
	return model.Workbook{
		PortfolioNames: []string{"Growth"},
		AssetCodes:     []string{"AAA", "BBB"},
		WeightRows: []model.WeightRow{
			{Date: date(t, "2024-01-01"), AssetCode: "AAA", Weights: map[string]decimal.Decimal{"Growth": dec("0.5")}},
			{Date: date(t, "2024-01-01"), AssetCode: "BBB", Weights: map[string]decimal.Decimal{"Growth": dec("0.5")}},
		},
		PriceRows: []model.PriceRow{
			{Date: date(t, "2024-01-01"), Prices: map[string]decimal.Decimal{"AAA": dec("100.00"), "BBB": dec("200.00")}},
			{Date: date(t, "2024-01-02"), Prices: map[string]decimal.Decimal{"AAA": dec("110.00"), "BBB": dec("200.00")}},
		},
	}
}

func TestLoadWorkbookSeedsQuantitiesFromTargetWeights(t *testing.T) {
	repo := &fakeRepo{}
	svc := newTestService(repo, fakeParser{workbook: seededWorkbook(t)})

	summary, report, err := svc.LoadWorkbook(context.Background(), nil, model.LoadOptions{})
	require.NoError(t, err)
	assert.True(t, report.Success())
	assert.Equal(t, 2, summary.SeededRecords)
	require.Len(t, summary.Portfolios, 1)

	portfolioID := summary.Portfolios[0].PortfolioID
	aaa, err := repo.GetAssetByCode(context.Background(), "AAA")
	require.NoError(t, err)

	// c0 = 0.5 * 1,000,000,000 / 100 = 5,000,000
	qty := repo.quantityAt(t, portfolioID, aaa.AssetID, date(t, "2024-01-01"))
	assert.True(t, qty.Equal(dec("5000000")), "got %s", qty)
}

func TestLoadWorkbookSweepCarriesQuantityForward(t *testing.T) {
	repo := &fakeRepo{}
	svc := newTestService(repo, fakeParser{workbook: seededWorkbook(t)})

	summary, _, err := svc.LoadWorkbook(context.Background(), nil, model.LoadOptions{})
	require.NoError(t, err)
	portfolioID := summary.Portfolios[0].PortfolioID

	weights, err := repo.GetAssetWeights(context.Background(), portfolioID, date(t, "2024-01-02"), date(t, "2024-01-02"))
	require.NoError(t, err)
	require.Len(t, weights, 2)

	// AAA held 5,000,000 units at 110.00 on day two.
	assert.Equal(t, "AAA", weights[0].AssetCode)
	assert.True(t, weights[0].AssetValue.Equal(dec("550000000")), "got %s", weights[0].AssetValue)

	values, err := repo.GetPortfolioValues(context.Background(), portfolioID, date(t, "2024-01-02"), date(t, "2024-01-02"))
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.True(t, values[0].TotalValue.Equal(dec("1050000000")), "got %s", values[0].TotalValue)
}

func TestLoadWorkbookSkipsAssetWithoutInceptionPrice(t *testing.T) {
	workbook := seededWorkbook(t)
	workbook.PriceRows[0] = model.PriceRow{
		Date:   date(t, "2024-01-01"),
		Prices: map[string]decimal.Decimal{"AAA": dec("100.00")}, // BBB missing at inception
	}

	repo := &fakeRepo{}
	svc := newTestService(repo, fakeParser{workbook: workbook})

	summary, report, err := svc.LoadWorkbook(context.Background(), nil, model.LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.SeededRecords)
	assert.True(t, report.Success(), "skips are warnings, not failures")
	assert.NotEmpty(t, report.Notes())
}

func TestLoadWorkbookAbortsWhenParserRejects(t *testing.T) {
	repo := &fakeRepo{}
	svc := newTestService(repo, fakeParser{err: assert.AnError})

	_, _, err := svc.LoadWorkbook(context.Background(), nil, model.LoadOptions{})
	require.ErrorIs(t, err, service.ErrLoadAborted)
	assert.Empty(t, repo.portfolios)
	assert.Empty(t, repo.prices)
}

func TestLoadWorkbookKeepsBaselineOfValuedPortfolio(t *testing.T) {
	repo := &fakeRepo{}
	svc := newTestService(repo, fakeParser{workbook: seededWorkbook(t)})

	first, _, err := svc.LoadWorkbook(context.Background(), nil, model.LoadOptions{})
	require.NoError(t, err)
	portfolioID := first.Portfolios[0].PortfolioID

	// reload with a different initial value must not rewrite the baseline
	second, report, err := svc.LoadWorkbook(context.Background(), nil, model.LoadOptions{InitialValue: dec("777.00")})
	require.NoError(t, err)
	assert.Equal(t, 0, second.SeededRecords)
	assert.NotEmpty(t, report.Notes())

	portfolio, err := repo.GetPortfolio(context.Background(), portfolioID)
	require.NoError(t, err)
	assert.True(t, portfolio.InitialValue.Equal(dec("1000000000.00")))
}

func TestSweepWeightsSumToOne(t *testing.T) {
	repo := &fakeRepo{}
	svc := newTestService(repo, fakeParser{workbook: seededWorkbook(t)})

	summary, _, err := svc.LoadWorkbook(context.Background(), nil, model.LoadOptions{})
	require.NoError(t, err)
	portfolioID := summary.Portfolios[0].PortfolioID

	values, err := repo.GetPortfolioValues(context.Background(), portfolioID, date(t, "2024-01-01"), date(t, "2024-01-02"))
	require.NoError(t, err)
	require.NotEmpty(t, values)

	epsilon := dec("0.000001")
	for _, value := range values {
		weights, err := repo.GetAssetWeights(context.Background(), portfolioID, value.Date, value.Date)
		require.NoError(t, err)

		valueSum, weightSum := decimal.Zero, decimal.Zero
		for _, w := range weights {
			valueSum = valueSum.Add(w.AssetValue)
			weightSum = weightSum.Add(w.Weight)
		}
		assert.True(t, valueSum.Equal(value.TotalValue), "asset values must sum to the portfolio total at %s", utils.FormatDate(value.Date))
		assert.True(t, weightSum.Sub(dec("1")).Abs().LessThanOrEqual(epsilon), "weights sum to %s at %s", weightSum, utils.FormatDate(value.Date))
	}
}

func TestProcessTransactionsBuyPropagatesForward(t *testing.T) {
	repo := &fakeRepo{}
	svc := newTestService(repo, fakeParser{workbook: seededWorkbook(t)})

	summary, _, err := svc.LoadWorkbook(context.Background(), nil, model.LoadOptions{})
	require.NoError(t, err)
	portfolioID := summary.Portfolios[0].PortfolioID
	aaa, err := repo.GetAssetByCode(context.Background(), "AAA")
	require.NoError(t, err)

	// later step boundary that the propagation must overwrite
	require.NoError(t, repo.UpsertQuantityRecord(context.Background(), model.QuantityRecord{
		PortfolioID: portfolioID,
		AssetID:     aaa.AssetID,
		Date:        date(t, "2024-01-03"),
		Quantity:    dec("4000000"),
	}))

	result, report, err := svc.ProcessTransactions(context.Background(), model.TransactionRequest{
		PortfolioID: portfolioID,
		Date:        date(t, "2024-01-02"),
		Items: []model.TransactionItem{
			{AssetCode: "AAA", Type: model.TransactionBuy, Amount: dec("1100000.00")},
		},
	})
	require.NoError(t, err)
	assert.True(t, report.Success())
	require.True(t, result.Applied)
	require.Len(t, result.Items, 1)

	// prior 5,000,000 carried from inception, delta 1,100,000 / 110 = 10,000
	item := result.Items[0]
	assert.Empty(t, item.Err)
	assert.True(t, item.UnitPrice.Equal(dec("110.00")))
	assert.True(t, item.Delta.Equal(dec("10000")), "got %s", item.Delta)
	assert.True(t, item.NewQuantity.Equal(dec("5010000")), "got %s", item.NewQuantity)

	assert.True(t, repo.quantityAt(t, portfolioID, aaa.AssetID, date(t, "2024-01-02")).Equal(dec("5010000")))
	assert.True(t, repo.quantityAt(t, portfolioID, aaa.AssetID, date(t, "2024-01-03")).Equal(dec("5010000")), "later record overwritten with the absolute quantity")
	assert.True(t, repo.quantityAt(t, portfolioID, aaa.AssetID, date(t, "2024-01-01")).Equal(dec("5000000")), "earlier record untouched")

	transactions, err := repo.GetTransactions(context.Background(), portfolioID)
	require.NoError(t, err)
	require.Len(t, transactions, 1)
	assert.Equal(t, model.TransactionBuy, transactions[0].Type)
	assert.True(t, transactions[0].Quantity.Equal(dec("10000")), "audit quantity is the magnitude")
}

func TestProcessTransactionsSellReducesQuantity(t *testing.T) {
	repo := &fakeRepo{}
	svc := newTestService(repo, fakeParser{workbook: seededWorkbook(t)})

	summary, _, err := svc.LoadWorkbook(context.Background(), nil, model.LoadOptions{})
	require.NoError(t, err)
	portfolioID := summary.Portfolios[0].PortfolioID

	result, _, err := svc.ProcessTransactions(context.Background(), model.TransactionRequest{
		PortfolioID: portfolioID,
		Date:        date(t, "2024-01-02"),
		Items: []model.TransactionItem{
			{AssetCode: "AAA", Type: model.TransactionSell, Amount: dec("1100000.00")},
		},
	})
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.True(t, result.Items[0].Delta.Equal(dec("-10000")), "got %s", result.Items[0].Delta)
	assert.True(t, result.Items[0].NewQuantity.Equal(dec("4990000")), "got %s", result.Items[0].NewQuantity)
}

func TestProcessTransactionsZeroPriceYieldsZeroDelta(t *testing.T) {
	repo := &fakeRepo{}
	svc := newTestService(repo, fakeParser{workbook: seededWorkbook(t)})

	summary, _, err := svc.LoadWorkbook(context.Background(), nil, model.LoadOptions{})
	require.NoError(t, err)
	portfolioID := summary.Portfolios[0].PortfolioID
	aaa, err := repo.GetAssetByCode(context.Background(), "AAA")
	require.NoError(t, err)

	// AAA's stored quote on day two becomes zero.
	err = repo.UpsertPrices(context.Background(), []model.PriceObservation{
		{AssetID: aaa.AssetID, Date: date(t, "2024-01-02"), Price: decimal.Zero},
	})
	require.NoError(t, err)

	before := len(repo.transactions)
	result, report, err := svc.ProcessTransactions(context.Background(), model.TransactionRequest{
		PortfolioID: portfolioID,
		Date:        date(t, "2024-01-02"),
		Items: []model.TransactionItem{
			{AssetCode: "AAA", Type: model.TransactionBuy, Amount: dec("1100000.00")},
		},
	})
	require.NoError(t, err, "a stored zero price must not fail the batch")
	require.True(t, result.Applied)
	require.Len(t, result.Items, 1)

	item := result.Items[0]
	assert.Empty(t, item.Err)
	assert.True(t, item.Delta.IsZero(), "got %s", item.Delta)
	assert.True(t, item.NewQuantity.Equal(dec("5000000")), "quantity carries forward unchanged")
	assert.True(t, repo.quantityAt(t, portfolioID, aaa.AssetID, date(t, "2024-01-02")).Equal(dec("5000000")))

	require.Len(t, repo.transactions, before+1, "the audit row is still appended")
	assert.True(t, repo.transactions[before].Quantity.IsZero())

	warned := false
	for _, note := range report.Notes() {
		if strings.Contains(note.Message, "zero price") {
			warned = true
		}
	}
	assert.True(t, warned, "expected a zero-price diagnostic, got %v", report.Notes())
}

func TestProcessTransactionsSameAssetTwiceInOneBatch(t *testing.T) {
	repo := &fakeRepo{}
	svc := newTestService(repo, fakeParser{workbook: seededWorkbook(t)})

	summary, _, err := svc.LoadWorkbook(context.Background(), nil, model.LoadOptions{})
	require.NoError(t, err)
	portfolioID := summary.Portfolios[0].PortfolioID
	aaa, err := repo.GetAssetByCode(context.Background(), "AAA")
	require.NoError(t, err)

	result, _, err := svc.ProcessTransactions(context.Background(), model.TransactionRequest{
		PortfolioID: portfolioID,
		Date:        date(t, "2024-01-02"),
		Items: []model.TransactionItem{
			{AssetCode: "AAA", Type: model.TransactionBuy, Amount: dec("1100000.00")},
			{AssetCode: "AAA", Type: model.TransactionBuy, Amount: dec("1100000.00")},
		},
	})
	require.NoError(t, err)
	require.True(t, result.Applied)
	require.Len(t, result.Items, 2)

	// Both items carry forward from strictly before the date, so the second
	// overwrites the first's record instead of stacking on it.
	assert.True(t, result.Items[0].NewQuantity.Equal(dec("5010000")), "got %s", result.Items[0].NewQuantity)
	assert.True(t, result.Items[1].NewQuantity.Equal(dec("5010000")), "got %s", result.Items[1].NewQuantity)
	assert.True(t, repo.quantityAt(t, portfolioID, aaa.AssetID, date(t, "2024-01-02")).Equal(dec("5010000")),
		"deltas do not stack within a batch, the last one wins")

	transactions, err := repo.GetTransactions(context.Background(), portfolioID)
	require.NoError(t, err)
	assert.Len(t, transactions, 2, "every item still leaves an audit row")
}

func TestProcessTransactionsLocksPortfolio(t *testing.T) {
	repo := &fakeRepo{}
	svc := newTestService(repo, fakeParser{workbook: seededWorkbook(t)})

	summary, _, err := svc.LoadWorkbook(context.Background(), nil, model.LoadOptions{})
	require.NoError(t, err)
	portfolioID := summary.Portfolios[0].PortfolioID

	repo.locked = nil
	_, _, err = svc.ProcessTransactions(context.Background(), model.TransactionRequest{
		PortfolioID: portfolioID,
		Date:        date(t, "2024-01-02"),
		Items: []model.TransactionItem{
			{AssetCode: "AAA", Type: model.TransactionBuy, Amount: dec("1100000.00")},
		},
	})
	require.NoError(t, err)
	assert.Contains(t, repo.locked, portfolioID, "the batch must serialize on the portfolio row")
}

func TestRecalculateLocksPortfolio(t *testing.T) {
	repo := &fakeRepo{}
	svc := newTestService(repo, fakeParser{workbook: seededWorkbook(t)})

	summary, _, err := svc.LoadWorkbook(context.Background(), nil, model.LoadOptions{})
	require.NoError(t, err)
	portfolioID := summary.Portfolios[0].PortfolioID

	repo.locked = nil
	_, err = svc.Recalculate(context.Background(), []int64{portfolioID}, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Contains(t, repo.locked, portfolioID, "the sweep must serialize on the portfolio row")
}

func TestProcessTransactionsUnknownAssetRejectsWholeBatch(t *testing.T) {
	repo := &fakeRepo{}
	svc := newTestService(repo, fakeParser{workbook: seededWorkbook(t)})

	summary, _, err := svc.LoadWorkbook(context.Background(), nil, model.LoadOptions{})
	require.NoError(t, err)
	portfolioID := summary.Portfolios[0].PortfolioID

	before := len(repo.transactions)
	result, _, err := svc.ProcessTransactions(context.Background(), model.TransactionRequest{
		PortfolioID: portfolioID,
		Date:        date(t, "2024-01-02"),
		Items: []model.TransactionItem{
			{AssetCode: "AAA", Type: model.TransactionBuy, Amount: dec("100.00")},
			{AssetCode: "ZZZ", Type: model.TransactionBuy, Amount: dec("100.00")},
		},
	})
	require.ErrorIs(t, err, service.ErrBatchRejected)
	assert.False(t, result.Applied)
	assert.Empty(t, result.Items[0].Err)
	assert.Equal(t, service.ErrAssetNotFound.Error(), result.Items[1].Err)
	assert.Len(t, repo.transactions, before, "nothing persisted for a rejected batch")
}

func TestProcessTransactionsValidatesItemsUpFront(t *testing.T) {
	repo := &fakeRepo{}
	svc := newTestService(repo, fakeParser{workbook: seededWorkbook(t)})

	summary, _, err := svc.LoadWorkbook(context.Background(), nil, model.LoadOptions{})
	require.NoError(t, err)

	result, _, err := svc.ProcessTransactions(context.Background(), model.TransactionRequest{
		PortfolioID: summary.Portfolios[0].PortfolioID,
		Date:        date(t, "2024-01-02"),
		Items: []model.TransactionItem{
			{AssetCode: "AAA", Type: "HOLD", Amount: dec("100.00")},
			{AssetCode: "AAA", Type: model.TransactionBuy, Amount: dec("-5")},
		},
	})
	require.ErrorIs(t, err, service.ErrBatchRejected)
	assert.False(t, result.Applied)
	assert.NotEmpty(t, result.Items[0].Err)
	assert.NotEmpty(t, result.Items[1].Err)
}

func TestProcessTransactionsUnknownPortfolio(t *testing.T) {
	svc := newTestService(&fakeRepo{}, fakeParser{})

	_, _, err := svc.ProcessTransactions(context.Background(), model.TransactionRequest{
		PortfolioID: 42,
		Date:        date(t, "2024-01-02"),
		Items:       []model.TransactionItem{{AssetCode: "AAA", Type: model.TransactionBuy, Amount: dec("1")}},
	})
	require.ErrorIs(t, err, service.ErrPortfolioNotFound)
}

func TestSweepSkipsDateAssetPairsWithoutPrice(t *testing.T) {
	workbook := seededWorkbook(t)
	// BBB has no quote on day two
	workbook.PriceRows[1] = model.PriceRow{
		Date:   date(t, "2024-01-02"),
		Prices: map[string]decimal.Decimal{"AAA": dec("110.00")},
	}

	repo := &fakeRepo{}
	svc := newTestService(repo, fakeParser{workbook: workbook})

	summary, report, err := svc.LoadWorkbook(context.Background(), nil, model.LoadOptions{})
	require.NoError(t, err)
	assert.True(t, report.Success())
	portfolioID := summary.Portfolios[0].PortfolioID

	weights, err := repo.GetAssetWeights(context.Background(), portfolioID, date(t, "2024-01-02"), date(t, "2024-01-02"))
	require.NoError(t, err)
	require.Len(t, weights, 1, "BBB contributes no row on its missing date")
	assert.Equal(t, "AAA", weights[0].AssetCode)
	assert.True(t, weights[0].Weight.Equal(dec("1")), "the denominator excludes the skipped asset")

	values, err := repo.GetPortfolioValues(context.Background(), portfolioID, date(t, "2024-01-02"), date(t, "2024-01-02"))
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.True(t, values[0].TotalValue.Equal(dec("550000000")))
}

func TestRecalculateIsIdempotent(t *testing.T) {
	repo := &fakeRepo{}
	svc := newTestService(repo, fakeParser{workbook: seededWorkbook(t)})

	summary, _, err := svc.LoadWorkbook(context.Background(), nil, model.LoadOptions{})
	require.NoError(t, err)
	portfolioID := summary.Portfolios[0].PortfolioID

	firstValues, err := repo.GetPortfolioValues(context.Background(), portfolioID, date(t, "2024-01-01"), date(t, "2024-01-02"))
	require.NoError(t, err)

	_, err = svc.Recalculate(context.Background(), []int64{portfolioID}, time.Time{}, time.Time{})
	require.NoError(t, err)

	secondValues, err := repo.GetPortfolioValues(context.Background(), portfolioID, date(t, "2024-01-01"), date(t, "2024-01-02"))
	require.NoError(t, err)
	require.Equal(t, len(firstValues), len(secondValues))
	for i := range firstValues {
		assert.True(t, firstValues[i].TotalValue.Equal(secondValues[i].TotalValue))
	}
}

func TestQuerySeriesRestrictsRange(t *testing.T) {
	repo := &fakeRepo{}
	svc := newTestService(repo, fakeParser{workbook: seededWorkbook(t)})

	summary, _, err := svc.LoadWorkbook(context.Background(), nil, model.LoadOptions{})
	require.NoError(t, err)
	portfolioID := summary.Portfolios[0].PortfolioID

	series, err := svc.QuerySeries(context.Background(), portfolioID, date(t, "2024-01-02"), date(t, "2024-01-02"))
	require.NoError(t, err)
	require.Len(t, series.Values, 1)
	assert.True(t, series.Values[0].Date.Equal(date(t, "2024-01-02")))
	for _, w := range series.Weights {
		assert.True(t, w.Date.Equal(date(t, "2024-01-02")))
	}
}

func TestListTransactionsReturnsAuditTrail(t *testing.T) {
	repo := &fakeRepo{}
	svc := newTestService(repo, fakeParser{workbook: seededWorkbook(t)})

	summary, _, err := svc.LoadWorkbook(context.Background(), nil, model.LoadOptions{})
	require.NoError(t, err)
	portfolioID := summary.Portfolios[0].PortfolioID

	_, _, err = svc.ProcessTransactions(context.Background(), model.TransactionRequest{
		PortfolioID: portfolioID,
		Date:        date(t, "2024-01-02"),
		Items: []model.TransactionItem{
			{AssetCode: "AAA", Type: model.TransactionBuy, Amount: dec("1100000.00")},
		},
	})
	require.NoError(t, err)

	transactions, err := svc.ListTransactions(context.Background(), portfolioID)
	require.NoError(t, err)
	require.Len(t, transactions, 1)
	assert.Equal(t, model.TransactionBuy, transactions[0].Type)
	assert.True(t, transactions[0].Amount.Equal(dec("1100000.00")))
	assert.True(t, transactions[0].UnitPrice.Equal(dec("110.00")))
}

func TestListTransactionsUnknownPortfolio(t *testing.T) {
	svc := newTestService(&fakeRepo{}, fakeParser{})

	_, err := svc.ListTransactions(context.Background(), 42)
	require.ErrorIs(t, err, service.ErrPortfolioNotFound)
}
