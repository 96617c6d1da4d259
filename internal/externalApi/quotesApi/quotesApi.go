package quotesApi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/acalderon/portfolio-valuation/config"
	"github.com/acalderon/portfolio-valuation/internal/externalApi"
	"github.com/acalderon/portfolio-valuation/internal/model/quotesModel"
	"github.com/acalderon/portfolio-valuation/utils"
)

// QuotesApi pulls end-of-day closing prices from the external quotes feed.
type QuotesApi struct {
	client *resty.Client
}

func New(cfg *config.Config) *QuotesApi {
	client := resty.New().
		SetDebug(cfg.API.Debug).
		SetTimeout(cfg.API.Timeout).
		SetBaseURL(cfg.API.QuotesApi.Url)
	return &QuotesApi{client: client}
}

func (a *QuotesApi) GetClosingQuotes(ctx context.Context, codes []string) ([]quotesModel.Quote, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "QuotesApi.GetClosingQuotes"
	url := "/eod/latest"
	params := map[string]string{
		"symbols": strings.Join(codes, ","),
	}

	slog.Debug("GetClosingQuotes start", slog.String("rqID", rqID), slog.String("op", op), slog.Int("codes", len(codes)))

	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetQueryParams(params).
		Get(url)
	if err != nil {
		slog.Error("error while dialing quotes api", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, err
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, externalApi.ErrNotFound
	}
	if resp.IsError() {
		slog.Error("quotes api returned error status", slog.String("rqID", rqID), slog.String("op", op), slog.Int("status", resp.StatusCode()))
		return nil, fmt.Errorf("quotes api status %d", resp.StatusCode())
	}

	rawQuotes := quotesModel.RawQuotes{}
	err = json.Unmarshal(resp.Body(), &rawQuotes)
	if err != nil {
		slog.Error("can't unmarshal response into quotesModel.RawQuotes", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, err
	}

	quotes, err := a.parseRawQuotes(rawQuotes)
	if err != nil {
		slog.Error("can't parse raw quotes", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, err
	}

	slog.Debug("GetClosingQuotes completed", slog.String("rqID", rqID), slog.String("op", op), slog.Int("quotes", len(quotes)))

	return quotes, nil
}

func (a *QuotesApi) parseRawQuotes(raw quotesModel.RawQuotes) ([]quotesModel.Quote, error) {
	quotes := make([]quotesModel.Quote, 0, len(raw.Quotes))
	for _, r := range raw.Quotes {
		date, err := utils.ParseDate(r.Date)
		if err != nil {
			return nil, fmt.Errorf("bad date %q for symbol %s: %w", r.Date, r.Symbol, err)
		}
		price, err := decimal.NewFromString(r.Close)
		if err != nil {
			return nil, fmt.Errorf("bad close %q for symbol %s: %w", r.Close, r.Symbol, err)
		}
		quotes = append(quotes, quotesModel.Quote{
			Code:  r.Symbol,
			Date:  date,
			Price: price,
		})
	}
	return quotes, nil
}
