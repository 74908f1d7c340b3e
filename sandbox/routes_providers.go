package main

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log"
	"math"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// sandboxConfig controls fault injection for local runs. Provider ids listed
// in SANDBOX_FAIL answer 503, ids in SANDBOX_RATE_LIMIT answer 429, and
// SANDBOX_LATENCY delays every provider response.
type sandboxConfig struct {
	fail      map[string]bool
	rateLimit map[string]bool
	latency   time.Duration
}

func sandboxConfigFromEnv() sandboxConfig {
	cfg := sandboxConfig{
		fail:      splitSet(os.Getenv("SANDBOX_FAIL")),
		rateLimit: splitSet(os.Getenv("SANDBOX_RATE_LIMIT")),
	}
	if raw := strings.TrimSpace(os.Getenv("SANDBOX_LATENCY")); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			cfg.latency = d
		} else {
			log.Printf("sandbox: invalid SANDBOX_LATENCY %q ignored", raw)
		}
	}
	return cfg
}

func splitSet(raw string) map[string]bool {
	set := make(map[string]bool)
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			set[p] = true
		}
	}
	return set
}

// quoteRequest mirrors the body the cloud server posts to every provider.
type quoteRequest struct {
	Salary        string `json:"salary"`
	Country       string `json:"country"`
	Currency      string `json:"currency"`
	State         string `json:"state"`
	ClientCountry string `json:"clientCountry"`
	Age           int    `json:"age"`
}

// costModel is the deterministic fake behind every provider: burden rate and
// platform fee are hashed from provider+country, so each provider quotes a
// different but stable number for the same hire.
type costModel struct {
	monthlySalary float64
	burden        float64
	fee           float64
}

func (m costModel) monthlyTotal() float64 { return m.monthlySalary + m.burden + m.fee }
func (m costModel) annualTotal() float64  { return m.monthlyTotal() * 12 }

func modelFor(provider string, req quoteRequest) costModel {
	salary, err := strconv.ParseFloat(strings.ReplaceAll(req.Salary, ",", ""), 64)
	if err != nil || salary <= 0 {
		salary = 50000
	}

	h := fnv.New32a()
	h.Write([]byte(provider + ":" + req.Country))
	n := h.Sum32()

	monthly := salary / 12
	return costModel{
		monthlySalary: monthly,
		burden:        monthly * (0.18 + float64(n%1000)/10000),
		fee:           float64(300 + n%7*50),
	}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func registerSandboxRoutes(r *mux.Router, cfg sandboxConfig) {
	r.HandleFunc("/providers/{provider}", cfg.handleProviderQuote).Methods("POST")
	r.HandleFunc("/oauth2/token", handleToken).Methods("POST")
	r.HandleFunc("/v1/chat/completions", handleChatCompletions).Methods("POST")
	r.HandleFunc("/rates", handleRates).Methods("GET")
}

func (cfg sandboxConfig) handleProviderQuote(w http.ResponseWriter, r *http.Request) {
	provider := mux.Vars(r)["provider"]
	defer r.Body.Close()

	if cfg.latency > 0 {
		time.Sleep(cfg.latency)
	}
	if cfg.rateLimit[provider] {
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}
	if cfg.fail[provider] {
		http.Error(w, "sandbox outage", http.StatusServiceUnavailable)
		return
	}

	var req quoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	m := modelFor(provider, req)
	payload, ok := providerPayload(provider, req, m)
	if !ok {
		http.Error(w, fmt.Sprintf("unknown provider %q", provider), http.StatusNotFound)
		return
	}

	log.Printf("sandbox: %s quote %s/%s -> %.2f monthly", provider, req.Country, req.Currency, m.monthlyTotal())
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

// providerPayload renders the cost model in each provider's wire format.
func providerPayload(provider string, req quoteRequest, m costModel) (any, bool) {
	switch provider {
	case "deel":
		return map[string]any{
			"salary":              req.Salary,
			"currency":            req.Currency,
			"country_name":        req.Country,
			"employer_cost_total": round2(m.monthlyTotal()),
			"total_annual":        round2(m.annualTotal()),
			"platform_fee":        round2(m.fee),
			"costs": []map[string]any{
				{"name": "Gross salary", "amount": round2(m.monthlySalary), "frequency": "monthly"},
				{"name": "Employer contributions", "amount": round2(m.burden), "frequency": "monthly"},
			},
		}, true
	case "remote":
		return map[string]any{
			"data": map[string]any{
				"employment_cost": map[string]any{
					"monthly_total": round2(m.monthlyTotal()),
					"annual_total":  round2(m.annualTotal()),
					"breakdown": []map[string]any{
						{"name": "Gross salary", "monthly_amount": round2(m.monthlySalary)},
						{"name": "Employer taxes", "monthly_amount": round2(m.burden)},
						{"name": "Remote management fee", "monthly_amount": round2(m.fee)},
					},
				},
				"country": map[string]any{"name": req.Country, "currency": req.Currency},
			},
		}, true
	case "oyster":
		return map[string]any{
			"currency": req.Currency,
			"line_items": []map[string]any{
				{"label": "Gross salary", "monthly": round2(m.monthlySalary), "yearly": round2(m.monthlySalary * 12)},
				{"label": "Employer contributions", "monthly": round2(m.burden), "yearly": round2(m.burden * 12)},
				{"label": "Oyster flat fee", "monthly": round2(m.fee), "yearly": round2(m.fee * 12)},
			},
			"totals": map[string]any{
				"monthly": round2(m.monthlyTotal()),
				"yearly":  round2(m.annualTotal()),
			},
		}, true
	case "rivermate":
		return map[string]any{
			"currency":      req.Currency,
			"monthly_total": round2(m.monthlyTotal()),
			"monthly_costs": map[string]any{
				"gross_salary":             round2(m.monthlySalary),
				"social_security_employer": round2(m.burden),
				"service_fee":              round2(m.fee),
			},
		}, true
	case "rippling":
		return map[string]any{
			"currency": req.Currency,
			"components": []map[string]any{
				{"description": "Gross salary", "value": round2(m.monthlySalary), "cadence": "MONTHLY"},
				{"description": "Employer burden", "value": round2(m.burden), "cadence": "MONTHLY"},
				{"description": "Rippling EOR fee", "value": round2(m.fee), "cadence": "MONTHLY"},
			},
			"summary": map[string]any{
				"monthly_cost": round2(m.monthlyTotal()),
				"annual_cost":  round2(m.annualTotal()),
			},
		}, true
	case "skuad":
		return map[string]any{
			"data": map[string]any{
				"currency_code": req.Currency,
				"fee_breakdown": []map[string]any{
					{"type": "gross-salary", "cost": round2(m.monthlySalary)},
					{"type": "employer-tax", "cost": round2(m.burden)},
					{"type": "platform-fee", "cost": round2(m.fee)},
				},
				"cost_summary": map[string]any{
					"monthly": round2(m.monthlyTotal()),
					"annual":  round2(m.annualTotal()),
				},
			},
		}, true
	case "velocity":
		return map[string]any{
			"currency":      req.Currency,
			"monthly_total": round2(m.monthlyTotal()),
			"annual_total":  round2(m.annualTotal()),
			"charges": []map[string]any{
				{"charge_name": "Gross salary", "monthly_amount": round2(m.monthlySalary), "annual_amount": round2(m.monthlySalary * 12)},
				{"charge_name": "Statutory employer costs", "monthly_amount": round2(m.burden), "annual_amount": round2(m.burden * 12)},
				{"charge_name": "Velocity service charge", "monthly_amount": round2(m.fee), "annual_amount": round2(m.fee * 12)},
			},
		}, true
	case "omnipresent":
		return map[string]any{
			"currency":     req.Currency,
			"annual_total": round2(m.annualTotal()),
			"annual_breakdown": map[string]any{
				"gross_salary":    round2(m.monthlySalary * 12),
				"employer_costs":  round2(m.burden * 12),
				"omnipresent_fee": round2(m.fee * 12),
			},
		}, true
	default:
		return nil, false
	}
}

func handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid token request", http.StatusBadRequest)
		return
	}
	if grant := r.PostForm.Get("grant_type"); grant != "client_credentials" {
		http.Error(w, fmt.Sprintf("unsupported grant_type %q", grant), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token": "sandbox-" + uuid.NewString(),
		"token_type":   "Bearer",
		"expires_in":   3600,
	})
}

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Messages) == 0 {
		http.Error(w, "invalid chat request", http.StatusBadRequest)
		return
	}

	content := `{"statutory": [{"name": "13th month salary accrual", "amount": 412.50, "frequency": "monthly"}, {"name": "Statutory severance accrual", "amount": 180, "frequency": "monthly"}], "notes": ["Sandbox enhancement; amounts are illustrative."]}`
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": content}},
		},
	})
}

// eurRates is the sandbox rate table with EUR as the reference currency.
var eurRates = map[string]float64{
	"EUR": 1,
	"USD": 1.09,
	"GBP": 0.85,
	"CHF": 0.94,
	"PLN": 4.28,
	"INR": 91.2,
	"BRL": 5.95,
	"MXN": 19.8,
	"JPY": 162.5,
	"AUD": 1.63,
	"CAD": 1.48,
	"SGD": 1.45,
}

func handleRates(w http.ResponseWriter, r *http.Request) {
	base := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("base")))
	if base == "" {
		base = "EUR"
	}
	anchor, ok := eurRates[base]
	if !ok {
		http.Error(w, fmt.Sprintf("unknown base currency %q", base), http.StatusBadRequest)
		return
	}

	rates := make(map[string]float64, len(eurRates))
	for code, r := range eurRates {
		rates[code] = round6(r / anchor)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"date":  time.Now().UTC().Format("2006-01-02"),
		"base":  base,
		"rates": rates,
	})
}

func round6(v float64) float64 { return math.Round(v*1e6) / 1e6 }
