package providers

import (
	"context"
	"net/http"
	"time"

	"hirequote-cloud/quote"
)

// OysterAdapter talks to the Oyster HR cost estimate endpoint. Oyster uses
// OAuth2 client credentials, so the HTTP client injected here already
// carries the token source and no bearer key is set per request.
type OysterAdapter struct {
	Endpoint string
	Client   *http.Client
}

type oysterResponse struct {
	Currency  string `json:"currency"`
	LineItems []struct {
		Label   string  `json:"label"`
		Monthly float64 `json:"monthly"`
		Yearly  float64 `json:"yearly"`
	} `json:"line_items"`
	Totals struct {
		Monthly float64 `json:"monthly"`
		Yearly  float64 `json:"yearly"`
	} `json:"totals"`
}

func (a *OysterAdapter) Name() string { return "oyster" }

func (a *OysterAdapter) FetchQuote(ctx context.Context, req QuoteRequest) (*quote.Quote, []byte, error) {
	var resp oysterResponse
	raw, err := postJSON(ctx, a.Client, a.Endpoint, "", req, &resp)
	if err != nil {
		return nil, raw, err
	}

	q := &quote.Quote{
		Provider:     a.Name(),
		Country:      req.Country,
		Currency:     firstNonEmpty(resp.Currency, req.Currency),
		BaseSalary:   salaryNumber(req.Salary),
		MonthlyTotal: resp.Totals.Monthly,
		AnnualTotal:  resp.Totals.Yearly,
		RetrievedAt:  time.Now().UTC(),
	}
	for _, item := range resp.LineItems {
		q.Items = append(q.Items, quote.CostItem{Name: item.Label, Amount: item.Monthly, Frequency: "monthly"})
	}
	if q.AnnualTotal == 0 && q.MonthlyTotal > 0 {
		q.AnnualTotal = q.MonthlyTotal * 12
	}
	return q, raw, nil
}
