package providers

import (
	"context"
	"net/http"
	"time"

	"hirequote-cloud/quote"
)

// VelocityAdapter talks to the Velocity Global cost estimate endpoint.
type VelocityAdapter struct {
	Endpoint string
	APIKey   string
	Client   *http.Client
}

type velocityResponse struct {
	Currency     string  `json:"currency"`
	MonthlyTotal float64 `json:"monthly_total"`
	AnnualTotal  float64 `json:"annual_total"`
	Charges      []struct {
		ChargeName    string  `json:"charge_name"`
		MonthlyAmount float64 `json:"monthly_amount"`
		AnnualAmount  float64 `json:"annual_amount"`
	} `json:"charges"`
}

func (a *VelocityAdapter) Name() string { return "velocity" }

func (a *VelocityAdapter) FetchQuote(ctx context.Context, req QuoteRequest) (*quote.Quote, []byte, error) {
	var resp velocityResponse
	raw, err := postJSON(ctx, a.Client, a.Endpoint, a.APIKey, req, &resp)
	if err != nil {
		return nil, raw, err
	}

	q := &quote.Quote{
		Provider:     a.Name(),
		Country:      req.Country,
		Currency:     firstNonEmpty(resp.Currency, req.Currency),
		BaseSalary:   salaryNumber(req.Salary),
		MonthlyTotal: resp.MonthlyTotal,
		AnnualTotal:  resp.AnnualTotal,
		RetrievedAt:  time.Now().UTC(),
	}
	for _, ch := range resp.Charges {
		amount := ch.MonthlyAmount
		freq := "monthly"
		if amount == 0 && ch.AnnualAmount > 0 {
			amount = ch.AnnualAmount
			freq = "annual"
		}
		q.Items = append(q.Items, quote.CostItem{Name: ch.ChargeName, Amount: amount, Frequency: freq})
	}
	if q.AnnualTotal == 0 && q.MonthlyTotal > 0 {
		q.AnnualTotal = q.MonthlyTotal * 12
	}
	return q, raw, nil
}
