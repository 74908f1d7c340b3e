package providers

import (
	"context"
	"net/http"
	"time"

	"hirequote-cloud/quote"
)

// DeelAdapter talks to the Deel cost calculator endpoint. Deel is the
// primary provider: its quote is the first one the UI lands on.
type DeelAdapter struct {
	Endpoint string
	APIKey   string
	Client   *http.Client
}

type deelResponse struct {
	Salary            string  `json:"salary"`
	Currency          string  `json:"currency"`
	CountryName       string  `json:"country_name"`
	EmployerCostTotal float64 `json:"employer_cost_total"`
	TotalAnnual       float64 `json:"total_annual"`
	PlatformFee       float64 `json:"platform_fee"`
	Costs             []struct {
		Name      string  `json:"name"`
		Amount    float64 `json:"amount"`
		Frequency string  `json:"frequency"`
	} `json:"costs"`
}

func (a *DeelAdapter) Name() string { return "deel" }

func (a *DeelAdapter) FetchQuote(ctx context.Context, req QuoteRequest) (*quote.Quote, []byte, error) {
	var resp deelResponse
	raw, err := postJSON(ctx, a.Client, a.Endpoint, a.APIKey, req, &resp)
	if err != nil {
		return nil, raw, err
	}

	q := &quote.Quote{
		Provider:     a.Name(),
		Country:      firstNonEmpty(resp.CountryName, req.Country),
		Currency:     firstNonEmpty(resp.Currency, req.Currency),
		BaseSalary:   salaryNumber(firstNonEmpty(resp.Salary, req.Salary)),
		MonthlyTotal: resp.EmployerCostTotal,
		AnnualTotal:  resp.TotalAnnual,
		RetrievedAt:  time.Now().UTC(),
	}
	for _, c := range resp.Costs {
		q.Items = append(q.Items, quote.CostItem{Name: c.Name, Amount: c.Amount, Frequency: c.Frequency})
	}
	if resp.PlatformFee > 0 {
		q.Items = append(q.Items, quote.CostItem{Name: "Deel platform fee", Amount: resp.PlatformFee, Frequency: "monthly"})
	}
	if q.AnnualTotal == 0 && q.MonthlyTotal > 0 {
		q.AnnualTotal = q.MonthlyTotal * 12
	}
	return q, raw, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
