package quote

import (
	"strings"
	"time"
)

// Status is the lifecycle of a durable quote record. It is monotonic:
// calculating moves to completed or error and never reverses.
type Status string

const (
	StatusCalculating Status = "calculating"
	StatusCompleted   Status = "completed"
	StatusError       Status = "error"
)

// CostItem is one employer cost line in a provider breakdown.
type CostItem struct {
	Name      string  `json:"name"`
	Amount    float64 `json:"amount"`
	Frequency string  `json:"frequency,omitempty"` // monthly | annual | one-time
}

// Quote is the provider-agnostic cost breakdown every adapter maps into.
type Quote struct {
	Provider     string     `json:"provider"`
	Country      string     `json:"country"`
	Currency     string     `json:"currency"`
	BaseSalary   float64    `json:"baseSalary"`
	Items        []CostItem `json:"items"`
	MonthlyTotal float64    `json:"monthlyTotal"`
	AnnualTotal  float64    `json:"annualTotal"`

	// Enhancement output. Statutory holds inferred employer obligations
	// (13th month, severance accrual, mandatory insurances) added by the
	// enhancement model on top of the provider's own line items.
	Enhanced         bool       `json:"enhanced,omitempty"`
	Statutory        []CostItem `json:"statutory,omitempty"`
	EnhancementNotes []string   `json:"enhancementNotes,omitempty"`

	RetrievedAt time.Time `json:"retrievedAt"`
}

// Clone returns a deep copy so enhancement can build on a base quote
// without mutating the record already merged into QuoteData.
func (q *Quote) Clone() *Quote {
	if q == nil {
		return nil
	}
	out := *q
	out.Items = append([]CostItem(nil), q.Items...)
	out.Statutory = append([]CostItem(nil), q.Statutory...)
	out.EnhancementNotes = append([]string(nil), q.EnhancementNotes...)
	return &out
}

// ProviderDualCurrencyQuotes holds the per-provider quote variants gathered
// when the user overrides the display currency away from the country's
// native currency.
type ProviderDualCurrencyQuotes struct {
	SelectedCurrencyQuote        *Quote `json:"selectedCurrencyQuote,omitempty"`
	LocalCurrencyQuote           *Quote `json:"localCurrencyQuote,omitempty"`
	CompareSelectedCurrencyQuote *Quote `json:"compareSelectedCurrencyQuote,omitempty"`
	CompareLocalCurrencyQuote    *Quote `json:"compareLocalCurrencyQuote,omitempty"`

	// IsDualCurrencyMode is true iff both the selected- and local-currency
	// quotes resolved for this provider.
	IsDualCurrencyMode bool `json:"isDualCurrencyMode"`
	// HasComparison is true iff both comparison-country variants resolved.
	HasComparison bool `json:"hasComparison"`
	// IsCalculating marks an on-demand dual-currency fill still in flight
	// (provider switch after a currency override).
	IsCalculating bool `json:"isCalculating,omitempty"`
}

// Metadata carries informational display state alongside the record.
type Metadata struct {
	Timestamp time.Time `json:"timestamp"`
	Currency  string    `json:"currency"`
}

// QuoteData is the single durable record for one quote session. It is
// persisted after every provider merge so a reloaded page or a second tab
// can pick up where the calculation stands.
type QuoteData struct {
	FormData           FormData                               `json:"formData"`
	Quotes             map[string]*Quote                      `json:"quotes,omitempty"`
	DualCurrencyQuotes map[string]*ProviderDualCurrencyQuotes `json:"dualCurrencyQuotes,omitempty"`
	Metadata           Metadata                               `json:"metadata"`
	Status             Status                                 `json:"status"`
	Error              string                                 `json:"error,omitempty"`
}

// NewQuoteData builds the initial calculating record for a submitted form.
func NewQuoteData(form FormData) *QuoteData {
	return &QuoteData{
		FormData: form,
		Metadata: Metadata{Timestamp: time.Now().UTC(), Currency: form.Currency},
		Status:   StatusCalculating,
	}
}

// Clone deep-copies the record so callers can hand out snapshots while
// calculators keep merging into the canonical one.
func (d *QuoteData) Clone() *QuoteData {
	if d == nil {
		return nil
	}
	out := *d
	if d.Quotes != nil {
		out.Quotes = make(map[string]*Quote, len(d.Quotes))
		for k, v := range d.Quotes {
			out.Quotes[k] = v.Clone()
		}
	}
	if d.DualCurrencyQuotes != nil {
		out.DualCurrencyQuotes = make(map[string]*ProviderDualCurrencyQuotes, len(d.DualCurrencyQuotes))
		for k, v := range d.DualCurrencyQuotes {
			if v == nil {
				continue
			}
			dq := *v
			dq.SelectedCurrencyQuote = v.SelectedCurrencyQuote.Clone()
			dq.LocalCurrencyQuote = v.LocalCurrencyQuote.Clone()
			dq.CompareSelectedCurrencyQuote = v.CompareSelectedCurrencyQuote.Clone()
			dq.CompareLocalCurrencyQuote = v.CompareLocalCurrencyQuote.Clone()
			out.DualCurrencyQuotes[k] = &dq
		}
	}
	return &out
}

// ComparisonKey returns the quotes-map key for a provider's comparison
// country quote, e.g. "comparisonDeel" for "deel".
func ComparisonKey(provider string) string {
	if provider == "" {
		return ""
	}
	return "comparison" + strings.ToUpper(provider[:1]) + provider[1:]
}

// SetQuote writes (or overwrites) one quotes-map entry. Keys belonging to
// other providers are untouched; recalculating a provider replaces its
// entry wholesale so line items never accumulate across runs.
func (d *QuoteData) SetQuote(key string, q *Quote) {
	if q == nil {
		return
	}
	if d.Quotes == nil {
		d.Quotes = make(map[string]*Quote)
	}
	d.Quotes[key] = q
}

// SetDualCurrency writes one provider's dual-currency bundle, deriving the
// IsDualCurrencyMode and HasComparison flags from which variants resolved.
func (d *QuoteData) SetDualCurrency(provider string, dq *ProviderDualCurrencyQuotes) {
	if dq == nil {
		return
	}
	dq.IsDualCurrencyMode = dq.SelectedCurrencyQuote != nil && dq.LocalCurrencyQuote != nil
	dq.HasComparison = dq.CompareSelectedCurrencyQuote != nil && dq.CompareLocalCurrencyQuote != nil
	if d.DualCurrencyQuotes == nil {
		d.DualCurrencyQuotes = make(map[string]*ProviderDualCurrencyQuotes)
	}
	d.DualCurrencyQuotes[provider] = dq
}

// HasAnyData reports whether the record carries at least one quote for the
// given provider (primary, comparison, or any dual-currency variant).
func (d *QuoteData) HasAnyData(provider string) bool {
	if d == nil {
		return false
	}
	if d.Quotes != nil {
		if d.Quotes[provider] != nil || d.Quotes[ComparisonKey(provider)] != nil {
			return true
		}
	}
	if dq := d.DualCurrencyQuotes[provider]; dq != nil {
		if dq.SelectedCurrencyQuote != nil || dq.LocalCurrencyQuote != nil ||
			dq.CompareSelectedCurrencyQuote != nil || dq.CompareLocalCurrencyQuote != nil {
			return true
		}
	}
	return false
}
