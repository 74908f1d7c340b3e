package quote

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// FormData is the normalized snapshot of user input for one calculation.
// It is frozen when the calculation starts and re-supplied unchanged to
// every provider call; changing any field means starting a new quote id.
type FormData struct {
	Country          string `json:"country"`
	State            string `json:"state,omitempty"`
	BaseSalary       string `json:"baseSalary"`
	Currency         string `json:"currency"`
	OriginalCurrency string `json:"originalCurrency,omitempty"`
	// IsCurrencyManuallySet marks that the user picked a display currency
	// different from the one the country defaulted to.
	IsCurrencyManuallySet bool   `json:"isCurrencyManuallySet,omitempty"`
	ClientCountry         string `json:"clientCountry"`
	Age                   int    `json:"age,omitempty"`

	EnableComparison        bool   `json:"enableComparison,omitempty"`
	CompareCountry          string `json:"compareCountry,omitempty"`
	CompareState            string `json:"compareState,omitempty"`
	CompareCurrency         string `json:"compareCurrency,omitempty"`
	CompareOriginalCurrency string `json:"compareOriginalCurrency,omitempty"`
}

// ErrIncompleteForm marks a precondition violation: required fields are
// missing or malformed, so no provider may be called at all. Distinct from
// a provider-side HTTP failure.
var ErrIncompleteForm = errors.New("incomplete form data")

// Validate fails fast on the fields every provider call requires.
func (f FormData) Validate() error {
	var missing []string
	if strings.TrimSpace(f.Country) == "" {
		missing = append(missing, "country")
	}
	if strings.TrimSpace(f.BaseSalary) == "" {
		missing = append(missing, "baseSalary")
	}
	if strings.TrimSpace(f.ClientCountry) == "" {
		missing = append(missing, "clientCountry")
	}
	if strings.TrimSpace(f.Currency) == "" {
		missing = append(missing, "currency")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrIncompleteForm, strings.Join(missing, ", "))
	}
	salary, err := f.SalaryAmount()
	if err != nil {
		return err
	}
	if salary <= 0 {
		return fmt.Errorf("%w: baseSalary must be positive", ErrIncompleteForm)
	}
	return nil
}

// SalaryAmount parses the submitted salary string, tolerating thousands
// separators the browser form lets through.
func (f FormData) SalaryAmount() (float64, error) {
	raw := strings.ReplaceAll(strings.TrimSpace(f.BaseSalary), ",", "")
	amount, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: baseSalary %q is not a number", ErrIncompleteForm, f.BaseSalary)
	}
	return amount, nil
}

// DualCurrencyMode reports whether this calculation needs both a
// selected-currency and a local-currency quote per provider. Derived once
// from the frozen form; never re-evaluated mid-calculation.
func (f FormData) DualCurrencyMode() bool {
	return f.IsCurrencyManuallySet &&
		strings.TrimSpace(f.OriginalCurrency) != "" &&
		!strings.EqualFold(f.OriginalCurrency, f.Currency)
}

// CompareDualCurrencyMode is the comparison-country analogue of
// DualCurrencyMode.
func (f FormData) CompareDualCurrencyMode() bool {
	if !f.EnableComparison || strings.TrimSpace(f.CompareCountry) == "" {
		return false
	}
	return f.IsCurrencyManuallySet &&
		strings.TrimSpace(f.CompareOriginalCurrency) != "" &&
		!strings.EqualFold(f.CompareOriginalCurrency, f.Currency)
}

// ComparisonEnabled reports whether a second country was requested.
func (f FormData) ComparisonEnabled() bool {
	return f.EnableComparison && strings.TrimSpace(f.CompareCountry) != ""
}
