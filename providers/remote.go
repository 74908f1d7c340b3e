package providers

import (
	"context"
	"net/http"
	"time"

	"hirequote-cloud/quote"
)

// RemoteAdapter talks to the Remote.com employment cost API. Remote wraps
// everything in a data envelope and reports monthly amounts only.
type RemoteAdapter struct {
	Endpoint string
	APIKey   string
	Client   *http.Client
}

type remoteResponse struct {
	Data struct {
		EmploymentCost struct {
			MonthlyTotal float64 `json:"monthly_total"`
			AnnualTotal  float64 `json:"annual_total"`
			Breakdown    []struct {
				Name          string  `json:"name"`
				MonthlyAmount float64 `json:"monthly_amount"`
			} `json:"breakdown"`
		} `json:"employment_cost"`
		Country struct {
			Name     string `json:"name"`
			Currency string `json:"currency"`
		} `json:"country"`
	} `json:"data"`
}

func (a *RemoteAdapter) Name() string { return "remote" }

func (a *RemoteAdapter) FetchQuote(ctx context.Context, req QuoteRequest) (*quote.Quote, []byte, error) {
	var resp remoteResponse
	raw, err := postJSON(ctx, a.Client, a.Endpoint, a.APIKey, req, &resp)
	if err != nil {
		return nil, raw, err
	}

	ec := resp.Data.EmploymentCost
	q := &quote.Quote{
		Provider:     a.Name(),
		Country:      firstNonEmpty(resp.Data.Country.Name, req.Country),
		Currency:     firstNonEmpty(resp.Data.Country.Currency, req.Currency),
		BaseSalary:   salaryNumber(req.Salary),
		MonthlyTotal: ec.MonthlyTotal,
		AnnualTotal:  ec.AnnualTotal,
		RetrievedAt:  time.Now().UTC(),
	}
	for _, line := range ec.Breakdown {
		q.Items = append(q.Items, quote.CostItem{Name: line.Name, Amount: line.MonthlyAmount, Frequency: "monthly"})
	}
	if q.AnnualTotal == 0 && q.MonthlyTotal > 0 {
		q.AnnualTotal = q.MonthlyTotal * 12
	}
	return q, raw, nil
}
