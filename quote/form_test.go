package quote

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormDataValidate(t *testing.T) {
	valid := FormData{
		Country:       "Germany",
		BaseSalary:    "60000",
		Currency:      "EUR",
		ClientCountry: "United States",
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*FormData)
	}{
		{"missing country", func(f *FormData) { f.Country = "" }},
		{"missing salary", func(f *FormData) { f.BaseSalary = "  " }},
		{"missing client country", func(f *FormData) { f.ClientCountry = "" }},
		{"missing currency", func(f *FormData) { f.Currency = "" }},
		{"non-numeric salary", func(f *FormData) { f.BaseSalary = "sixty k" }},
		{"zero salary", func(f *FormData) { f.BaseSalary = "0" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := valid
			tt.mutate(&f)
			err := f.Validate()
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrIncompleteForm))
		})
	}
}

func TestSalaryAmountToleratesSeparators(t *testing.T) {
	f := FormData{BaseSalary: "60,000"}
	amount, err := f.SalaryAmount()
	require.NoError(t, err)
	require.Equal(t, 60000.0, amount)
}

func TestDualCurrencyMode(t *testing.T) {
	tests := []struct {
		name string
		form FormData
		want bool
	}{
		{
			name: "manual override with differing currencies",
			form: FormData{IsCurrencyManuallySet: true, OriginalCurrency: "EUR", Currency: "USD"},
			want: true,
		},
		{
			name: "not manually set",
			form: FormData{OriginalCurrency: "EUR", Currency: "USD"},
			want: false,
		},
		{
			name: "same currency",
			form: FormData{IsCurrencyManuallySet: true, OriginalCurrency: "USD", Currency: "USD"},
			want: false,
		},
		{
			name: "missing original currency",
			form: FormData{IsCurrencyManuallySet: true, Currency: "USD"},
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.form.DualCurrencyMode())
		})
	}
}

func TestCompareDualCurrencyMode(t *testing.T) {
	f := FormData{
		IsCurrencyManuallySet:   true,
		Currency:                "USD",
		EnableComparison:        true,
		CompareCountry:          "Portugal",
		CompareOriginalCurrency: "EUR",
	}
	require.True(t, f.CompareDualCurrencyMode())

	f.EnableComparison = false
	require.False(t, f.CompareDualCurrencyMode())
}
