package engine

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"hirequote-cloud/events"
	"hirequote-cloud/fx"
	"hirequote-cloud/providers"
	"hirequote-cloud/quote"
	"hirequote-cloud/store"
)

// fakeAdapter is a scriptable providers.Adapter. The zero respond func
// returns a stub quote echoing the request's country and currency.
type fakeAdapter struct {
	name string

	mu          sync.Mutex
	respond     func(ctx context.Context, req providers.QuoteRequest) (*quote.Quote, error)
	calls       []providers.QuoteRequest
	inFlight    int
	maxInFlight int
}

func newFakeAdapter(name string) *fakeAdapter {
	return &fakeAdapter{name: name}
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) FetchQuote(ctx context.Context, req providers.QuoteRequest) (*quote.Quote, []byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	respond := f.respond
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if respond != nil {
		q, err := respond(ctx, req)
		if err != nil {
			return nil, []byte(`{"error":"scripted failure"}`), err
		}
		return q, mustJSON(q), nil
	}
	return stubQuote(f.name, req), mustJSON(req), nil
}

func (f *fakeAdapter) setRespond(fn func(ctx context.Context, req providers.QuoteRequest) (*quote.Quote, error)) {
	f.mu.Lock()
	f.respond = fn
	f.mu.Unlock()
}

func (f *fakeAdapter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeAdapter) maxConcurrent() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInFlight
}

func (f *fakeAdapter) requests() []providers.QuoteRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]providers.QuoteRequest(nil), f.calls...)
}

func stubQuote(provider string, req providers.QuoteRequest) *quote.Quote {
	return &quote.Quote{
		Provider: provider,
		Country:  req.Country,
		Currency: req.Currency,
		Items: []quote.CostItem{
			{Name: "Employer contributions", Amount: 750, Frequency: "monthly"},
		},
		MonthlyTotal: 5750,
		AnnualTotal:  69000,
		RetrievedAt:  time.Now().UTC(),
	}
}

func mustJSON(v any) []byte {
	raw, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return raw
}

// fakeEnhancer satisfies Enhancer. respond is consulted per call with a
// 1-based global call number; a nil error yields an enhanced clone of the
// base quote.
type fakeEnhancer struct {
	delay time.Duration

	mu          sync.Mutex
	respond     func(call int, provider string) error
	calls       int
	perProvider map[string]int
	order       []string
	inFlight    int
	maxInFlight int
}

func (f *fakeEnhancer) EnhanceQuote(ctx context.Context, provider string, base *quote.Quote, form quote.FormData) (*quote.Quote, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	if f.perProvider == nil {
		f.perProvider = make(map[string]int)
	}
	f.perProvider[provider]++
	f.order = append(f.order, provider)
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	respond := f.respond
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if respond != nil {
		if err := respond(call, provider); err != nil {
			return nil, err
		}
	}

	out := base.Clone()
	out.Enhanced = true
	out.Statutory = []quote.CostItem{
		{Name: "13th month salary accrual", Amount: base.MonthlyTotal / 12, Frequency: "monthly"},
	}
	out.EnhancementNotes = []string{"statutory obligations inferred from country rules"}
	return out, nil
}

func (f *fakeEnhancer) setRespond(fn func(call int, provider string) error) {
	f.mu.Lock()
	f.respond = fn
	f.mu.Unlock()
}

func (f *fakeEnhancer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeEnhancer) callsFor(provider string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.perProvider[provider]
}

func (f *fakeEnhancer) callOrder() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.order...)
}

func (f *fakeEnhancer) maxConcurrent() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInFlight
}

// fakeConverter satisfies Converter with a fixed rate (0.5 unless set).
type fakeConverter struct {
	rate float64
	err  error

	mu    sync.Mutex
	calls int
}

func (f *fakeConverter) Convert(ctx context.Context, amount float64, from, to string) (fx.ConvertResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return fx.ConvertResult{}, f.err
	}
	rate := f.rate
	if rate == 0 {
		rate = 0.5
	}
	if strings.EqualFold(from, to) {
		rate = 1
	}
	return fx.ConvertResult{Success: true, TargetAmount: amount * rate, Rate: rate}, nil
}

func (f *fakeConverter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func baseForm() quote.FormData {
	return quote.FormData{
		Country:       "Germany",
		BaseSalary:    "60000",
		Currency:      "EUR",
		ClientCountry: "United States",
		Age:           30,
	}
}

// dualForm simulates a user overriding the display currency to USD for a
// country whose native currency is EUR.
func dualForm() quote.FormData {
	f := baseForm()
	f.Currency = "USD"
	f.OriginalCurrency = "EUR"
	f.IsCurrencyManuallySet = true
	return f
}

func comparisonForm() quote.FormData {
	f := baseForm()
	f.EnableComparison = true
	f.CompareCountry = "Netherlands"
	return f
}

// fastConfig keeps scheduling delays small enough for tests while leaving
// retries and the concurrency bound at their production values.
func fastConfig() Config {
	return Config{
		MaxConcurrentEnhancements: 3,
		MaxRetries:                3,
		RetryBaseDelay:            5 * time.Millisecond,
		BatchDelay:                5 * time.Millisecond,
	}
}

type sessionHarness struct {
	sess  *Session
	store *store.QuoteStore
	debug *store.DebugStore
	bus   *events.Bus
	mr    *miniredis.Miniredis
}

func newSessionHarness(t *testing.T, form quote.FormData, reg *providers.Registry, enh Enhancer, conv Converter, cfg Config) *sessionHarness {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	qs := store.NewQuoteStore(client)
	ds := store.NewDebugStore(client, qs)
	bus := events.NewBus(client, time.Hour)

	data := quote.NewQuoteData(form)
	sess, err := NewSession("q-test", data, Deps{
		Registry:  reg,
		Enhancer:  enh,
		Converter: conv,
		Store:     qs,
		Debug:     ds,
		Bus:       bus,
	}, cfg)
	require.NoError(t, err)
	t.Cleanup(sess.Close)

	return &sessionHarness{sess: sess, store: qs, debug: ds, bus: bus, mr: mr}
}

// waitSettled waits until no provider work is pending. Only valid for
// started sessions.
func waitSettled(t *testing.T, sess *Session) {
	t.Helper()
	require.Eventually(t, func() bool { return !sess.Loading() },
		5*time.Second, 10*time.Millisecond, "session never settled")
}

// waitStates waits until every named provider reaches the wanted state.
func waitStates(t *testing.T, sess *Session, want State, names ...string) {
	t.Helper()
	require.Eventually(t, func() bool {
		states := sess.ProviderStates()
		for _, name := range names {
			if states[name].Status != want {
				return false
			}
		}
		return true
	}, 5*time.Second, 10*time.Millisecond, "providers %v never reached %s", names, want)
}
