package providers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"hirequote-cloud/quote"
)

// RipplingAdapter talks to the Rippling global payroll estimate endpoint.
// Rippling authenticates with OAuth2 client credentials and reports cost
// components with an UPPERCASE cadence that gets normalized here.
type RipplingAdapter struct {
	Endpoint string
	Client   *http.Client
}

type ripplingResponse struct {
	Currency   string `json:"currency"`
	Components []struct {
		Description string  `json:"description"`
		Value       float64 `json:"value"`
		Cadence     string  `json:"cadence"`
	} `json:"components"`
	Summary struct {
		MonthlyCost float64 `json:"monthly_cost"`
		AnnualCost  float64 `json:"annual_cost"`
	} `json:"summary"`
}

func (a *RipplingAdapter) Name() string { return "rippling" }

func (a *RipplingAdapter) FetchQuote(ctx context.Context, req QuoteRequest) (*quote.Quote, []byte, error) {
	var resp ripplingResponse
	raw, err := postJSON(ctx, a.Client, a.Endpoint, "", req, &resp)
	if err != nil {
		return nil, raw, err
	}

	q := &quote.Quote{
		Provider:     a.Name(),
		Country:      req.Country,
		Currency:     firstNonEmpty(resp.Currency, req.Currency),
		BaseSalary:   salaryNumber(req.Salary),
		MonthlyTotal: resp.Summary.MonthlyCost,
		AnnualTotal:  resp.Summary.AnnualCost,
		RetrievedAt:  time.Now().UTC(),
	}
	for _, c := range resp.Components {
		cadence := strings.ToLower(c.Cadence)
		if cadence == "" {
			cadence = "monthly"
		}
		q.Items = append(q.Items, quote.CostItem{Name: c.Description, Amount: c.Value, Frequency: cadence})
	}
	if q.AnnualTotal == 0 && q.MonthlyTotal > 0 {
		q.AnnualTotal = q.MonthlyTotal * 12
	}
	return q, raw, nil
}
