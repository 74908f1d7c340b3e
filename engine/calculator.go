package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"hirequote-cloud/providers"
	"hirequote-cloud/quote"
)

// providerDelta is one calculator run's outcome before merging into the
// record. Legs that failed are nil; only primaryErr is kept, comparison and
// dual-leg failures are logged and swallowed.
type providerDelta struct {
	primary    *quote.Quote
	comparison *quote.Quote
	dual       *quote.ProviderDualCurrencyQuotes
	primaryErr error
}

func (d providerDelta) hasData() bool {
	if d.primary != nil || d.comparison != nil {
		return true
	}
	if d.dual != nil {
		return d.dual.SelectedCurrencyQuote != nil || d.dual.LocalCurrencyQuote != nil ||
			d.dual.CompareSelectedCurrencyQuote != nil || d.dual.CompareLocalCurrencyQuote != nil
	}
	return false
}

// runBaseCalculation fetches, merges and enqueues one provider's quote. The
// returned error is the primary fetch failure (nil when it succeeded); the
// sequential scheduler sniffs it for the rate-limit breaker.
func (s *Session) runBaseCalculation(provider string) error {
	adapter, ok := s.registry.Get(provider)
	if !ok {
		s.applyTransition(provider, evBaseFailed, "no adapter registered")
		return fmt.Errorf("no adapter registered for %s", provider)
	}

	// Precondition check: never call a provider with partial form data.
	if err := s.form.Validate(); err != nil {
		s.applyTransition(provider, evBaseFailed, err.Error())
		return err
	}

	if !s.beginBase(provider) {
		return nil
	}
	defer s.endBase(provider)

	delta := s.fetchProviderData(s.ctx, adapter)
	if s.ctx.Err() != nil {
		return s.ctx.Err()
	}

	s.mu.Lock()
	prior := s.data.HasAnyData(provider)
	s.mu.Unlock()

	if !delta.hasData() && !prior {
		// Total failure: nothing resolved and no earlier state to fall
		// back on.
		msg := "no quote data returned"
		if delta.primaryErr != nil {
			msg = delta.primaryErr.Error()
		}
		s.applyTransition(provider, evBaseFailed, msg)
		return delta.primaryErr
	}

	s.mergeDelta(provider, delta)

	base := delta.primary
	if base == nil {
		s.mu.Lock()
		if q := s.data.Quotes[provider]; q != nil {
			base = q.Clone()
		}
		s.mu.Unlock()
	} else {
		base = base.Clone()
	}
	if base == nil {
		// Comparison or dual legs resolved but no primary base quote ever
		// did; the provider tab stays unusable.
		msg := "base quote unavailable"
		if delta.primaryErr != nil {
			msg = delta.primaryErr.Error()
		}
		s.applyTransition(provider, evBaseFailed, msg)
		return delta.primaryErr
	}

	s.enqueueEnhancement(provider, base, s.form)
	return delta.primaryErr
}

// mergeDelta folds one provider's results into the latest record. Sibling
// providers' keys survive untouched; this provider's keys are overwritten
// wholesale so recalculation never duplicates line items.
func (s *Session) mergeDelta(provider string, delta providerDelta) {
	s.update(func(d *quote.QuoteData) {
		if delta.primary != nil {
			d.SetQuote(provider, delta.primary)
		}
		if delta.comparison != nil {
			d.SetQuote(quote.ComparisonKey(provider), delta.comparison)
		}
		if delta.dual != nil {
			d.SetDualCurrency(provider, delta.dual)
		}
	})
}

// fetchProviderData performs the up-to-four provider calls for one
// calculation: primary, optional comparison, and in dual-currency mode the
// local-currency leg for each. Each leg is independently fallible.
func (s *Session) fetchProviderData(ctx context.Context, adapter providers.Adapter) providerDelta {
	form := s.form
	name := adapter.Name()
	var delta providerDelta

	primary, raw, err := adapter.FetchQuote(ctx, providers.QuoteRequest{
		Salary:        form.BaseSalary,
		Country:       form.Country,
		Currency:      form.Currency,
		State:         form.State,
		ClientCountry: form.ClientCountry,
		Age:           form.Age,
	})
	s.recordDebug(name, "primary", raw)
	if err != nil {
		delta.primaryErr = err
		log.Printf("engine: %s primary fetch failed: %v", name, err)
	} else {
		delta.primary = primary
	}

	if form.ComparisonEnabled() {
		comparison, raw, err := adapter.FetchQuote(ctx, providers.QuoteRequest{
			Salary:        form.BaseSalary,
			Country:       form.CompareCountry,
			Currency:      s.compareCurrency(),
			State:         form.CompareState,
			ClientCountry: form.ClientCountry,
			Age:           form.Age,
		})
		s.recordDebug(name, "comparison", raw)
		if err != nil {
			log.Printf("engine: %s comparison fetch failed (primary unaffected): %v", name, err)
		} else {
			delta.comparison = comparison
		}
	}

	if s.dualMode {
		dual := &quote.ProviderDualCurrencyQuotes{
			SelectedCurrencyQuote: delta.primary,
		}
		dual.LocalCurrencyQuote = s.fetchLocalLeg(ctx, adapter, localLeg{
			country: form.Country,
			state:   form.State,
			from:    form.Currency,
			to:      form.OriginalCurrency,
			variant: "local",
		})
		if form.ComparisonEnabled() {
			dual.CompareSelectedCurrencyQuote = delta.comparison
			if s.compareDual {
				dual.CompareLocalCurrencyQuote = s.fetchLocalLeg(ctx, adapter, localLeg{
					country: form.CompareCountry,
					state:   form.CompareState,
					from:    s.compareCurrency(),
					to:      form.CompareOriginalCurrency,
					variant: "comparison-local",
				})
			}
		}
		delta.dual = dual
	}

	return delta
}

// compareCurrency is the display currency for comparison fetches; it falls
// back to the main display currency when no override was given.
func (s *Session) compareCurrency() string {
	if c := strings.TrimSpace(s.form.CompareCurrency); c != "" {
		return c
	}
	return s.form.Currency
}

type localLeg struct {
	country string
	state   string
	from    string
	to      string
	variant string
}

// fetchLocalLeg converts the salary into a country's native currency and
// re-queries the provider in that currency. Any failure skips just this leg.
func (s *Session) fetchLocalLeg(ctx context.Context, adapter providers.Adapter, leg localLeg) *quote.Quote {
	name := adapter.Name()
	amount, err := s.form.SalaryAmount()
	if err != nil {
		log.Printf("engine: %s %s leg skipped: %v", name, leg.variant, err)
		return nil
	}

	res, err := s.fxc.Convert(ctx, amount, leg.from, leg.to)
	if err != nil || !res.Success {
		if err == nil {
			err = errors.New("conversion unavailable")
		}
		log.Printf("engine: %s %s conversion %s->%s failed: %v", name, leg.variant, leg.from, leg.to, err)
		return nil
	}

	q, raw, err := adapter.FetchQuote(ctx, providers.QuoteRequest{
		Salary:        strconv.FormatFloat(res.TargetAmount, 'f', 2, 64),
		Country:       leg.country,
		Currency:      leg.to,
		State:         leg.state,
		ClientCountry: s.form.ClientCountry,
		Age:           s.form.Age,
	})
	s.recordDebug(name, leg.variant, raw)
	if err != nil {
		log.Printf("engine: %s %s fetch failed: %v", name, leg.variant, err)
		return nil
	}
	return q
}

// fillDualCurrency runs an on-demand calculation to produce the
// dual-currency legs a switch target is missing. It shares the base
// in-flight guard with startup, so a still-running startup fetch simply
// wins. The error return means the target genuinely has no dual data.
func (s *Session) fillDualCurrency(ctx context.Context, provider string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	adapter, ok := s.registry.Get(provider)
	if !ok {
		return fmt.Errorf("no adapter registered for %s", provider)
	}

	if !s.beginBase(provider) {
		// A startup or earlier switch fetch is still running; its merge
		// will deliver the data.
		return nil
	}
	defer s.endBase(provider)

	s.update(func(d *quote.QuoteData) {
		dq := d.DualCurrencyQuotes[provider]
		if dq == nil {
			dq = &quote.ProviderDualCurrencyQuotes{}
		}
		dq.IsCalculating = true
		d.SetDualCurrency(provider, dq)
	})

	delta := s.fetchProviderData(s.ctx, adapter)
	if delta.dual != nil {
		delta.dual.IsCalculating = false
	}
	// Merge only the dual bundle: the switch target already holds a base
	// quote (possibly enhanced) and this run must not regress it.
	s.mergeDelta(provider, providerDelta{dual: delta.dual})

	s.mu.Lock()
	ready := s.dualReadyLocked(provider)
	s.mu.Unlock()
	if !ready {
		if delta.primaryErr != nil {
			return fmt.Errorf("dual-currency quotes unavailable: %w", delta.primaryErr)
		}
		return errors.New("dual-currency quotes unavailable")
	}
	return nil
}

func (s *Session) recordDebug(provider, variant string, raw []byte) {
	if s.debug == nil || len(raw) == 0 {
		return
	}
	if err := s.debug.Record(s.ctx, s.id, provider+":"+variant, raw); err != nil && s.ctx.Err() == nil {
		log.Printf("engine: record debug payload %s:%s: %v", provider, variant, err)
	}
}
