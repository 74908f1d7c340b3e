package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"hirequote-cloud/quote"
)

// QuoteRequest is the normalized request every adapter translates into its
// provider's wire format. Salary stays a string end to end; providers are
// inconsistent about numeric formats and the form already validated it.
type QuoteRequest struct {
	Salary        string `json:"salary"`
	Country       string `json:"country"`
	Currency      string `json:"currency"`
	State         string `json:"state,omitempty"`
	ClientCountry string `json:"clientCountry"`
	Age           int    `json:"age"`
}

// Adapter fetches one provider's employer cost quote and maps it into the
// common Quote shape. Implementations are stateless; the raw response body
// is returned alongside so callers can stash it for debugging.
type Adapter interface {
	Name() string
	FetchQuote(ctx context.Context, req QuoteRequest) (*quote.Quote, []byte, error)
}

const defaultFetchTimeout = 60 * time.Second

// newHTTPClient is the default client for bearer-auth providers.
func newHTTPClient() *http.Client {
	return &http.Client{Timeout: defaultFetchTimeout}
}

// postJSON posts the normalized request to a provider endpoint and decodes
// the provider-specific response into out. Non-2xx statuses become errors
// that keep the upstream status text, so rate-limit responses stay
// recognizable to the retry and circuit-breaker classifiers.
func postJSON(ctx context.Context, client *http.Client, endpoint, apiKey string, req QuoteRequest, out any) ([]byte, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal quote request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build quote request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call provider: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read provider response: %w", err)
	}

	if resp.StatusCode >= 300 {
		return raw, fmt.Errorf("provider returned %s: %s", resp.Status, truncate(string(raw), 256))
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return raw, fmt.Errorf("decode provider response: %w", err)
	}
	return raw, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// salaryNumber parses the salary string for adapters that echo it back as
// the quote's base. The form validated it already; fall back to zero rather
// than failing a whole fetch on a formatting surprise.
func salaryNumber(salary string) float64 {
	f := quote.FormData{BaseSalary: salary}
	amount, err := f.SalaryAmount()
	if err != nil {
		return 0
	}
	return amount
}
