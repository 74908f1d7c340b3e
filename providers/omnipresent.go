package providers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"hirequote-cloud/quote"
)

// OmnipresentAdapter talks to the Omnipresent cost estimate endpoint.
// Omnipresent only reports annual figures; monthly amounts are derived.
type OmnipresentAdapter struct {
	Endpoint string
	APIKey   string
	Client   *http.Client
}

type omnipresentResponse struct {
	Currency        string             `json:"currency"`
	AnnualTotal     float64            `json:"annual_total"`
	AnnualBreakdown map[string]float64 `json:"annual_breakdown"`
}

func (a *OmnipresentAdapter) Name() string { return "omnipresent" }

func (a *OmnipresentAdapter) FetchQuote(ctx context.Context, req QuoteRequest) (*quote.Quote, []byte, error) {
	var resp omnipresentResponse
	raw, err := postJSON(ctx, a.Client, a.Endpoint, a.APIKey, req, &resp)
	if err != nil {
		return nil, raw, err
	}

	q := &quote.Quote{
		Provider:    a.Name(),
		Country:     req.Country,
		Currency:    firstNonEmpty(resp.Currency, req.Currency),
		BaseSalary:  salaryNumber(req.Salary),
		AnnualTotal: resp.AnnualTotal,
		RetrievedAt: time.Now().UTC(),
	}
	if resp.AnnualTotal > 0 {
		q.MonthlyTotal = resp.AnnualTotal / 12
	}

	keys := make([]string, 0, len(resp.AnnualBreakdown))
	for k := range resp.AnnualBreakdown {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		q.Items = append(q.Items, quote.CostItem{
			Name:      humanizeLabel(k),
			Amount:    resp.AnnualBreakdown[k],
			Frequency: "annual",
		})
	}
	return q, raw, nil
}
