package providers

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"

	"hirequote-cloud/quote"
)

// RivermateAdapter talks to the Rivermate quote endpoint. Rivermate
// returns monthly costs as a flat map keyed by snake_case labels, so the
// breakdown order is normalized here to keep quotes stable across fetches.
type RivermateAdapter struct {
	Endpoint string
	APIKey   string
	Client   *http.Client
}

type rivermateResponse struct {
	Currency     string             `json:"currency"`
	MonthlyTotal float64            `json:"monthly_total"`
	MonthlyCosts map[string]float64 `json:"monthly_costs"`
}

func (a *RivermateAdapter) Name() string { return "rivermate" }

func (a *RivermateAdapter) FetchQuote(ctx context.Context, req QuoteRequest) (*quote.Quote, []byte, error) {
	var resp rivermateResponse
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
		AnnualTotal:  resp.MonthlyTotal * 12,
		RetrievedAt:  time.Now().UTC(),
	}

	keys := make([]string, 0, len(resp.MonthlyCosts))
	for k := range resp.MonthlyCosts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		q.Items = append(q.Items, quote.CostItem{
			Name:      humanizeLabel(k),
			Amount:    resp.MonthlyCosts[k],
			Frequency: "monthly",
		})
	}
	return q, raw, nil
}

// humanizeLabel turns "social_security_employer" into "Social Security Employer".
func humanizeLabel(key string) string {
	parts := strings.Split(key, "_")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}
