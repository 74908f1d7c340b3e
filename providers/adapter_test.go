package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func testRequest() QuoteRequest {
	return QuoteRequest{
		Salary:        "85,000",
		Country:       "Germany",
		Currency:      "EUR",
		ClientCountry: "United States",
		Age:           30,
	}
}

func TestDeelAdapterMapsResponse(t *testing.T) {
	var gotAuth string
	var gotBody QuoteRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"salary": "85,000",
			"currency": "EUR",
			"country_name": "Germany",
			"employer_cost_total": 8850.25,
			"total_annual": 106203,
			"platform_fee": 599,
			"costs": [
				{"name": "Gross salary", "amount": 7083.33, "frequency": "monthly"},
				{"name": "Employer contributions", "amount": 1167.92, "frequency": "monthly"}
			]
		}`))
	}))
	defer srv.Close()

	a := &DeelAdapter{Endpoint: srv.URL, APIKey: "deel-key", Client: srv.Client()}
	q, raw, err := a.FetchQuote(context.Background(), testRequest())
	require.NoError(t, err)
	require.NotEmpty(t, raw)

	require.Equal(t, "Bearer deel-key", gotAuth)
	require.Equal(t, "85,000", gotBody.Salary)
	require.Equal(t, "United States", gotBody.ClientCountry)

	require.Equal(t, "deel", q.Provider)
	require.Equal(t, "Germany", q.Country)
	require.Equal(t, "EUR", q.Currency)
	require.InDelta(t, 85000, q.BaseSalary, 0.001)
	require.InDelta(t, 8850.25, q.MonthlyTotal, 0.001)
	require.InDelta(t, 106203, q.AnnualTotal, 0.001)
	require.Len(t, q.Items, 3)
	require.Equal(t, "Deel platform fee", q.Items[2].Name)
}

func TestRemoteAdapterUnwrapsEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"data": {
				"employment_cost": {
					"monthly_total": 9100.5,
					"breakdown": [
						{"name": "Base salary", "monthly_amount": 7083.33},
						{"name": "Social contributions", "monthly_amount": 2017.17}
					]
				},
				"country": {"name": "Germany", "currency": "EUR"}
			}
		}`))
	}))
	defer srv.Close()

	a := &RemoteAdapter{Endpoint: srv.URL, APIKey: "remote-key", Client: srv.Client()}
	q, _, err := a.FetchQuote(context.Background(), testRequest())
	require.NoError(t, err)

	require.Equal(t, "remote", q.Provider)
	require.InDelta(t, 9100.5, q.MonthlyTotal, 0.001)
	// Remote omits the annual figure; it is derived from the monthly one.
	require.InDelta(t, 9100.5*12, q.AnnualTotal, 0.001)
	require.Len(t, q.Items, 2)
	require.Equal(t, "monthly", q.Items[0].Frequency)
}

func TestRivermateAdapterNormalizesCostMap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"currency": "EUR",
			"monthly_total": 8700,
			"monthly_costs": {
				"gross_salary": 7083.33,
				"social_security_employer": 1400,
				"accident_insurance": 216.67
			}
		}`))
	}))
	defer srv.Close()

	a := &RivermateAdapter{Endpoint: srv.URL, APIKey: "rm-key", Client: srv.Client()}
	q, _, err := a.FetchQuote(context.Background(), testRequest())
	require.NoError(t, err)

	require.InDelta(t, 8700*12, q.AnnualTotal, 0.001)
	require.Len(t, q.Items, 3)
	// Map keys come back sorted and humanized.
	require.Equal(t, "Accident Insurance", q.Items[0].Name)
	require.Equal(t, "Gross Salary", q.Items[1].Name)
	require.Equal(t, "Social Security Employer", q.Items[2].Name)
}

func TestOysterAdapterSendsNoBearerKey(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{
			"currency": "EUR",
			"line_items": [{"label": "Gross salary", "monthly": 7083.33, "yearly": 85000}],
			"totals": {"monthly": 8900, "yearly": 106800}
		}`))
	}))
	defer srv.Close()

	a := &OysterAdapter{Endpoint: srv.URL, Client: srv.Client()}
	q, _, err := a.FetchQuote(context.Background(), testRequest())
	require.NoError(t, err)

	// The OAuth2 transport owns auth; the adapter itself must not set it.
	require.Empty(t, gotAuth)
	require.InDelta(t, 8900, q.MonthlyTotal, 0.001)
	require.InDelta(t, 106800, q.AnnualTotal, 0.001)
}

func TestRipplingAdapterNormalizesCadence(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"currency": "EUR",
			"components": [
				{"description": "Gross salary", "value": 7083.33, "cadence": "MONTHLY"},
				{"description": "Pension", "value": 650, "cadence": ""}
			],
			"summary": {"monthly_cost": 8750, "annual_cost": 105000}
		}`))
	}))
	defer srv.Close()

	a := &RipplingAdapter{Endpoint: srv.URL, Client: srv.Client()}
	q, _, err := a.FetchQuote(context.Background(), testRequest())
	require.NoError(t, err)

	require.Equal(t, "monthly", q.Items[0].Frequency)
	require.Equal(t, "monthly", q.Items[1].Frequency)
	require.InDelta(t, 105000, q.AnnualTotal, 0.001)
}

func TestSkuadAdapterHumanizesFeeTypes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"data": {
				"currency_code": "EUR",
				"fee_breakdown": [
					{"type": "employer-tax", "cost": 1500},
					{"type": "management_fee", "cost": 449}
				],
				"cost_summary": {"monthly": 9032.33, "annual": 108387.96}
			}
		}`))
	}))
	defer srv.Close()

	a := &SkuadAdapter{Endpoint: srv.URL, APIKey: "sk-key", Client: srv.Client()}
	q, _, err := a.FetchQuote(context.Background(), testRequest())
	require.NoError(t, err)

	require.Equal(t, "Employer Tax", q.Items[0].Name)
	require.Equal(t, "Management Fee", q.Items[1].Name)
	require.InDelta(t, 9032.33, q.MonthlyTotal, 0.001)
}

func TestVelocityAdapterFallsBackToAnnualCharges(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"currency": "EUR",
			"monthly_total": 8920,
			"annual_total": 107040,
			"charges": [
				{"charge_name": "Gross salary", "monthly_amount": 7083.33, "annual_amount": 85000},
				{"charge_name": "13th month accrual", "monthly_amount": 0, "annual_amount": 7083.33}
			]
		}`))
	}))
	defer srv.Close()

	a := &VelocityAdapter{Endpoint: srv.URL, APIKey: "vg-key", Client: srv.Client()}
	q, _, err := a.FetchQuote(context.Background(), testRequest())
	require.NoError(t, err)

	require.Equal(t, "monthly", q.Items[0].Frequency)
	require.Equal(t, "annual", q.Items[1].Frequency)
	require.InDelta(t, 7083.33, q.Items[1].Amount, 0.001)
}

func TestOmnipresentAdapterDerivesMonthlyTotal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"currency": "EUR",
			"annual_total": 108000,
			"annual_breakdown": {"gross_salary": 85000, "employer_costs": 23000}
		}`))
	}))
	defer srv.Close()

	a := &OmnipresentAdapter{Endpoint: srv.URL, APIKey: "op-key", Client: srv.Client()}
	q, _, err := a.FetchQuote(context.Background(), testRequest())
	require.NoError(t, err)

	require.InDelta(t, 9000, q.MonthlyTotal, 0.001)
	require.Len(t, q.Items, 2)
	require.Equal(t, "annual", q.Items[0].Frequency)
}

func TestPostJSONKeepsStatusInError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": "rate limit exceeded"}`))
	}))
	defer srv.Close()

	a := &DeelAdapter{Endpoint: srv.URL, APIKey: "deel-key", Client: srv.Client()}
	_, raw, err := a.FetchQuote(context.Background(), testRequest())
	require.Error(t, err)
	require.Contains(t, err.Error(), "429")
	require.Contains(t, string(raw), "rate limit exceeded")
}

func TestPostJSONRejectsMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"currency": `))
	}))
	defer srv.Close()

	a := &VelocityAdapter{Endpoint: srv.URL, APIKey: "vg-key", Client: srv.Client()}
	_, _, err := a.FetchQuote(context.Background(), testRequest())
	require.Error(t, err)
	require.Contains(t, err.Error(), "decode provider response")
}

func TestFetchQuoteHonorsContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := &DeelAdapter{Endpoint: srv.URL, APIKey: "deel-key", Client: srv.Client()}
	_, _, err := a.FetchQuote(ctx, testRequest())
	require.Error(t, err)
}
