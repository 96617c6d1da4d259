package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/acalderon/portfolio-valuation/internal/diag"
	"github.com/acalderon/portfolio-valuation/internal/model"
	"github.com/acalderon/portfolio-valuation/internal/service"
	"github.com/acalderon/portfolio-valuation/utils"
)

const maxWorkbookSize = 32 << 20 // 32 MiB upload cap

type PortfolioService interface {
	LoadWorkbook(ctx context.Context, reader io.Reader, opts model.LoadOptions) (model.LoadSummary, *diag.Report, error)
	ProcessTransactions(ctx context.Context, req model.TransactionRequest) (model.TransactionResult, *diag.Report, error)
	QuerySeries(ctx context.Context, portfolioID int64, from, to time.Time) (model.PortfolioSeries, error)
	Recalculate(ctx context.Context, portfolioIDs []int64, from, to time.Time) (*diag.Report, error)
	GenerateReport(ctx context.Context, portfolioIDs []int64, from, to time.Time) (fileName string, fileBytes []byte, downloadLink string, err error)
	ListTransactions(ctx context.Context, portfolioID int64) ([]model.Transaction, error)
}

type Controller struct {
	service PortfolioService
}

func NewController(service PortfolioService) *Controller {
	return &Controller{service: service}
}

func (c *Controller) RegisterRoutes(r chi.Router) {
	r.Post("/workbooks", c.loadWorkbook)
	r.Post("/recalculations", c.recalculate)
	r.Get("/reports", c.generateReport)
	r.Route("/portfolios/{portfolioID}", func(r chi.Router) {
		r.Post("/transactions", c.processTransactions)
		r.Get("/transactions", c.listTransactions)
		r.Get("/series", c.querySeries)
	})
}

type errorResponse struct {
	Error string      `json:"error"`
	Notes []diag.Note `json:"notes,omitempty"`
}

type loadResponse struct {
	Portfolios    []portfolioResponse `json:"portfolios"`
	AssetCount    int                 `json:"asset_count"`
	PriceRows     int                 `json:"price_rows"`
	WeightRows    int                 `json:"weight_rows"`
	SeededRecords int                 `json:"seeded_records"`
	SweepFrom     string              `json:"sweep_from,omitempty"`
	SweepTo       string              `json:"sweep_to,omitempty"`
	Notes         []diag.Note         `json:"notes"`
}

type portfolioResponse struct {
	PortfolioID   int64           `json:"portfolio_id"`
	Name          string          `json:"name"`
	InitialValue  decimal.Decimal `json:"initial_value"`
	InceptionDate string          `json:"inception_date"`
}

// loadWorkbook ingests a multipart workbook upload: registers assets and
// portfolios, stores prices, seeds quantities and reruns the full sweep.
func (c *Controller) loadWorkbook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := r.ParseMultipartForm(maxWorkbookSize); err != nil {
		writeError(w, http.StatusBadRequest, "can't parse multipart form", nil)
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field", nil)
		return
	}
	defer file.Close()

	opts := model.LoadOptions{}
	if raw := r.FormValue("initial_value"); raw != "" {
		opts.InitialValue, err = utils.ParseFlexDecimal(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad initial_value", nil)
			return
		}
	}
	if raw := r.FormValue("inception_date"); raw != "" {
		opts.InceptionDate, err = utils.ParseDate(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad inception_date, expected YYYY-MM-DD", nil)
			return
		}
	}

	summary, report, err := c.service.LoadWorkbook(ctx, file, opts)
	if err != nil {
		if errors.Is(err, service.ErrLoadAborted) {
			writeError(w, http.StatusUnprocessableEntity, err.Error(), report)
			return
		}
		c.internalError(ctx, w, err)
		return
	}

	resp := loadResponse{
		Portfolios:    make([]portfolioResponse, 0, len(summary.Portfolios)),
		AssetCount:    summary.AssetCount,
		PriceRows:     summary.PriceRows,
		WeightRows:    summary.WeightRows,
		SeededRecords: summary.SeededRecords,
		Notes:         report.Notes(),
	}
	if !summary.SweepFrom.IsZero() {
		resp.SweepFrom = utils.FormatDate(summary.SweepFrom)
		resp.SweepTo = utils.FormatDate(summary.SweepTo)
	}
	for _, portfolio := range summary.Portfolios {
		resp.Portfolios = append(resp.Portfolios, portfolioResponse{
			PortfolioID:   portfolio.PortfolioID,
			Name:          portfolio.Name,
			InitialValue:  portfolio.InitialValue,
			InceptionDate: utils.FormatDate(portfolio.InceptionDate),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

type transactionItemRequest struct {
	AssetCode string          `json:"asset_code"`
	Type      string          `json:"type"`
	Amount    decimal.Decimal `json:"amount"`
}

type transactionsRequest struct {
	Date  string                   `json:"date"`
	Items []transactionItemRequest `json:"items"`
}

type transactionItemResponse struct {
	AssetCode   string          `json:"asset_code"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Delta       decimal.Decimal `json:"delta"`
	NewQuantity decimal.Decimal `json:"new_quantity"`
	Error       string          `json:"error,omitempty"`
}

type transactionsResponse struct {
	PortfolioID int64                     `json:"portfolio_id"`
	Date        string                    `json:"date"`
	Applied     bool                      `json:"applied"`
	Items       []transactionItemResponse `json:"items"`
	Notes       []diag.Note               `json:"notes"`
}

// processTransactions applies one buy/sell batch. A rejected batch still
// returns the per-item outcomes so the caller can see which item failed.
func (c *Controller) processTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	portfolioID, err := portfolioIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad portfolio id", nil)
		return
	}

	req := transactionsRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "can't decode request body", nil)
		return
	}
	if len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, "empty items", nil)
		return
	}
	date, err := utils.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad date, expected YYYY-MM-DD", nil)
		return
	}

	items := make([]model.TransactionItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, model.TransactionItem{
			AssetCode: item.AssetCode,
			Type:      model.TransactionType(item.Type),
			Amount:    item.Amount,
		})
	}

	result, report, err := c.service.ProcessTransactions(ctx, model.TransactionRequest{
		PortfolioID: portfolioID,
		Date:        date,
		Items:       items,
	})
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, toTransactionsResponse(result, report))
	case errors.Is(err, service.ErrBatchRejected):
		writeJSON(w, http.StatusUnprocessableEntity, toTransactionsResponse(result, report))
	case errors.Is(err, service.ErrPortfolioNotFound):
		writeError(w, http.StatusNotFound, "portfolio not found", nil)
	default:
		c.internalError(ctx, w, err)
	}
}

func toTransactionsResponse(result model.TransactionResult, report *diag.Report) transactionsResponse {
	resp := transactionsResponse{
		PortfolioID: result.PortfolioID,
		Date:        utils.FormatDate(result.Date),
		Applied:     result.Applied,
		Items:       make([]transactionItemResponse, 0, len(result.Items)),
		Notes:       report.Notes(),
	}
	for _, item := range result.Items {
		resp.Items = append(resp.Items, transactionItemResponse{
			AssetCode:   item.AssetCode,
			UnitPrice:   item.UnitPrice,
			Delta:       item.Delta,
			NewQuantity: item.NewQuantity,
			Error:       item.Err,
		})
	}
	return resp
}

type transactionAuditResponse struct {
	TransactionID int64           `json:"transaction_id"`
	AssetID       int64           `json:"asset_id"`
	Date          string          `json:"date"`
	Type          string          `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	Quantity      decimal.Decimal `json:"quantity"`
}

type transactionListResponse struct {
	PortfolioID  int64                      `json:"portfolio_id"`
	Transactions []transactionAuditResponse `json:"transactions"`
}

// listTransactions returns the applied audit trail, oldest first.
func (c *Controller) listTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	portfolioID, err := portfolioIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad portfolio id", nil)
		return
	}

	transactions, err := c.service.ListTransactions(ctx, portfolioID)
	if err != nil {
		if errors.Is(err, service.ErrPortfolioNotFound) {
			writeError(w, http.StatusNotFound, "portfolio not found", nil)
			return
		}
		c.internalError(ctx, w, err)
		return
	}

	resp := transactionListResponse{
		PortfolioID:  portfolioID,
		Transactions: make([]transactionAuditResponse, 0, len(transactions)),
	}
	for _, txn := range transactions {
		resp.Transactions = append(resp.Transactions, transactionAuditResponse{
			TransactionID: txn.TransactionID,
			AssetID:       txn.AssetID,
			Date:          utils.FormatDate(txn.Date),
			Type:          string(txn.Type),
			Amount:        txn.Amount,
			UnitPrice:     txn.UnitPrice,
			Quantity:      txn.Quantity,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

type valueResponse struct {
	Date       string          `json:"date"`
	TotalValue decimal.Decimal `json:"total_value"`
}

type weightResponse struct {
	Date       string          `json:"date"`
	AssetCode  string          `json:"asset_code"`
	AssetValue decimal.Decimal `json:"asset_value"`
	Weight     decimal.Decimal `json:"weight"`
}

type seriesResponse struct {
	Portfolio portfolioResponse `json:"portfolio"`
	From      string            `json:"from"`
	To        string            `json:"to"`
	Values    []valueResponse   `json:"values"`
	Weights   []weightResponse  `json:"weights"`
}

func (c *Controller) querySeries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	portfolioID, err := portfolioIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad portfolio id", nil)
		return
	}

	from, to, err := rangeParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	series, err := c.service.QuerySeries(ctx, portfolioID, from, to)
	if err != nil {
		if errors.Is(err, service.ErrPortfolioNotFound) {
			writeError(w, http.StatusNotFound, "portfolio not found", nil)
			return
		}
		c.internalError(ctx, w, err)
		return
	}

	resp := seriesResponse{
		Portfolio: portfolioResponse{
			PortfolioID:   series.Portfolio.PortfolioID,
			Name:          series.Portfolio.Name,
			InitialValue:  series.Portfolio.InitialValue,
			InceptionDate: utils.FormatDate(series.Portfolio.InceptionDate),
		},
		From:    utils.FormatDate(series.From),
		To:      utils.FormatDate(series.To),
		Values:  make([]valueResponse, 0, len(series.Values)),
		Weights: make([]weightResponse, 0, len(series.Weights)),
	}
	for _, value := range series.Values {
		resp.Values = append(resp.Values, valueResponse{
			Date:       utils.FormatDate(value.Date),
			TotalValue: value.TotalValue,
		})
	}
	for _, weight := range series.Weights {
		resp.Weights = append(resp.Weights, weightResponse{
			Date:       utils.FormatDate(weight.Date),
			AssetCode:  weight.AssetCode,
			AssetValue: weight.AssetValue,
			Weight:     weight.Weight,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

type recalculateRequest struct {
	PortfolioIDs []int64 `json:"portfolio_ids"`
	From         string  `json:"from"`
	To           string  `json:"to"`
}

type recalculateResponse struct {
	Success bool        `json:"success"`
	Notes   []diag.Note `json:"notes"`
}

func (c *Controller) recalculate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req := recalculateRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "can't decode request body", nil)
		return
	}

	var from, to time.Time
	var err error
	if req.From != "" {
		if from, err = utils.ParseDate(req.From); err != nil {
			writeError(w, http.StatusBadRequest, "bad from, expected YYYY-MM-DD", nil)
			return
		}
	}
	if req.To != "" {
		if to, err = utils.ParseDate(req.To); err != nil {
			writeError(w, http.StatusBadRequest, "bad to, expected YYYY-MM-DD", nil)
			return
		}
	}

	report, err := c.service.Recalculate(ctx, req.PortfolioIDs, from, to)
	if err != nil {
		if errors.Is(err, service.ErrPortfolioNotFound) {
			writeError(w, http.StatusNotFound, err.Error(), nil)
			return
		}
		c.internalError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusOK, recalculateResponse{Success: report.Success(), Notes: report.Notes()})
}

type reportResponse struct {
	FileName     string `json:"file_name"`
	DownloadLink string `json:"download_link"`
}

// generateReport streams the xlsx unless a cloud download link is available,
// in which case only the link is returned.
func (c *Controller) generateReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	portfolioIDs, err := portfolioIDsQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad portfolio_ids", nil)
		return
	}
	from, to, err := rangeParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	fileName, fileBytes, downloadLink, err := c.service.GenerateReport(ctx, portfolioIDs, from, to)
	if err != nil {
		if errors.Is(err, service.ErrPortfolioNotFound) {
			writeError(w, http.StatusNotFound, err.Error(), nil)
			return
		}
		c.internalError(ctx, w, err)
		return
	}

	if downloadLink != "" {
		writeJSON(w, http.StatusOK, reportResponse{FileName: fileName, DownloadLink: downloadLink})
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(fileBytes)
}

func portfolioIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "portfolioID"), 10, 64)
}

func portfolioIDsQuery(r *http.Request) ([]int64, error) {
	raw := r.URL.Query().Get("portfolio_ids")
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func rangeParams(r *http.Request) (from, to time.Time, err error) {
	if raw := r.URL.Query().Get("from"); raw != "" {
		if from, err = utils.ParseDate(raw); err != nil {
			return from, to, errors.New("bad from, expected YYYY-MM-DD")
		}
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		if to, err = utils.ParseDate(raw); err != nil {
			return from, to, errors.New("bad to, expected YYYY-MM-DD")
		}
	}
	return from, to, nil
}

func (c *Controller) internalError(ctx context.Context, w http.ResponseWriter, err error) {
	slog.Error("internal error", slog.String("rqID", utils.GetRequestIDFromCtx(ctx)), slog.String("err", err.Error()))
	writeError(w, http.StatusInternalServerError, "internal error", nil)
}

func writeError(w http.ResponseWriter, status int, message string, report *diag.Report) {
	resp := errorResponse{Error: message}
	if report != nil {
		resp.Notes = report.Notes()
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("can't encode response", slog.String("err", err.Error()))
	}
}
