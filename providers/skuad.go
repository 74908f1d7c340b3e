package providers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"hirequote-cloud/quote"
)

// SkuadAdapter talks to the Skuad cost calculator endpoint.
type SkuadAdapter struct {
	Endpoint string
	APIKey   string
	Client   *http.Client
}

type skuadResponse struct {
	Data struct {
		CurrencyCode string `json:"currency_code"`
		FeeBreakdown []struct {
			Type string  `json:"type"`
			Cost float64 `json:"cost"`
		} `json:"fee_breakdown"`
		CostSummary struct {
			Monthly float64 `json:"monthly"`
			Annual  float64 `json:"annual"`
		} `json:"cost_summary"`
	} `json:"data"`
}

func (a *SkuadAdapter) Name() string { return "skuad" }

func (a *SkuadAdapter) FetchQuote(ctx context.Context, req QuoteRequest) (*quote.Quote, []byte, error) {
	var resp skuadResponse
	raw, err := postJSON(ctx, a.Client, a.Endpoint, a.APIKey, req, &resp)
	if err != nil {
		return nil, raw, err
	}

	q := &quote.Quote{
		Provider:     a.Name(),
		Country:      req.Country,
		Currency:     firstNonEmpty(resp.Data.CurrencyCode, req.Currency),
		BaseSalary:   salaryNumber(req.Salary),
		MonthlyTotal: resp.Data.CostSummary.Monthly,
		AnnualTotal:  resp.Data.CostSummary.Annual,
		RetrievedAt:  time.Now().UTC(),
	}
	for _, fee := range resp.Data.FeeBreakdown {
		name := fee.Type
		// Skuad labels fees like "employer-tax"; present them readable.
		name = strings.ReplaceAll(name, "-", " ")
		name = humanizeLabel(strings.ReplaceAll(name, " ", "_"))
		q.Items = append(q.Items, quote.CostItem{Name: name, Amount: fee.Cost, Frequency: "monthly"})
	}
	if q.AnnualTotal == 0 && q.MonthlyTotal > 0 {
		q.AnnualTotal = q.MonthlyTotal * 12
	}
	return q, raw, nil
}
