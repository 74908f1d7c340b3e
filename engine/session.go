package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"hirequote-cloud/events"
	"hirequote-cloud/fx"
	"hirequote-cloud/providers"
	"hirequote-cloud/quote"
	"hirequote-cloud/store"
)

// Enhancer produces an enhanced copy of a base quote.
type Enhancer interface {
	EnhanceQuote(ctx context.Context, provider string, base *quote.Quote, form quote.FormData) (*quote.Quote, error)
}

// Converter resolves currency conversions for dual-currency legs.
type Converter interface {
	Convert(ctx context.Context, amount float64, from, to string) (fx.ConvertResult, error)
}

// Deps are the collaborators a session drives. Registry, Enhancer, Converter
// and Store are required; Debug and Bus may be nil.
type Deps struct {
	Registry  *providers.Registry
	Enhancer  Enhancer
	Converter Converter
	Store     *store.QuoteStore
	Debug     *store.DebugStore
	Bus       *events.Bus
}

func (d Deps) validate() error {
	if d.Registry == nil {
		return errors.New("engine: provider registry is required")
	}
	if d.Enhancer == nil {
		return errors.New("engine: enhancer is required")
	}
	if d.Converter == nil {
		return errors.New("engine: currency converter is required")
	}
	if d.Store == nil {
		return errors.New("engine: quote store is required")
	}
	return nil
}

// Rejected-operation sentinels, surfaced by the API as 409s.
var (
	ErrSwitchRejected = errors.New("provider switch rejected")
	ErrRetryRejected  = errors.New("enhancement retry rejected")
)

// Session drives the full multi-provider lifecycle for one quote id: the
// base-quote fan-out, the batched enhancement queue, dual-currency fills and
// provider switching. All record mutations funnel through update so
// concurrent calculators merge into the latest state instead of clobbering
// each other, and every merge is persisted.
type Session struct {
	id       string
	registry *providers.Registry
	enhancer Enhancer
	fxc      Converter
	store    *store.QuoteStore
	debug    *store.DebugStore
	bus      *events.Bus
	cfg      Config

	form        quote.FormData
	dualMode    bool
	compareDual bool
	tiers       [][]string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	queueWake chan struct{}
	sem       chan struct{}

	mu           sync.Mutex
	data         *quote.QuoteData
	states       map[string]*ProviderState
	current      string
	baseInFlight map[string]bool
	enhInFlight  map[string]bool
	queue        []queueItem
	batch        BatchInfo
	batchSize    int
	batchDone    int
	seqRunning   bool
	started      bool
	closed       bool
	lastActivity time.Time
}

// NewSession wraps a stored record in a live session. Call Start to begin
// driving it.
func NewSession(id string, data *quote.QuoteData, deps Deps, cfg Config) (*Session, error) {
	if id == "" {
		return nil, errors.New("engine: quote id is required")
	}
	if data == nil {
		return nil, errors.New("engine: quote data is required")
	}
	if err := deps.validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:           id,
		registry:     deps.Registry,
		enhancer:     deps.Enhancer,
		fxc:          deps.Converter,
		store:        deps.Store,
		debug:        deps.Debug,
		bus:          deps.Bus,
		cfg:          cfg,
		form:         data.FormData,
		dualMode:     data.FormData.DualCurrencyMode(),
		compareDual:  data.FormData.CompareDualCurrencyMode(),
		tiers:        deps.Registry.Batches(),
		ctx:          ctx,
		cancel:       cancel,
		queueWake:    make(chan struct{}, 1),
		sem:          make(chan struct{}, cfg.MaxConcurrentEnhancements),
		data:         data,
		states:       make(map[string]*ProviderState),
		current:      deps.Registry.Primary(),
		baseInFlight: make(map[string]bool),
		enhInFlight:  make(map[string]bool),
		lastActivity: time.Now(),
	}
	for _, p := range deps.Registry.IDs() {
		s.states[p] = &ProviderState{Status: StateInactive}
	}
	s.batch.TotalBatches = len(s.tiers)
	return s, nil
}

// ID returns the quote id this session drives.
func (s *Session) ID() string { return s.id }

// Start kicks off the base-quote fan-out and the enhancement drain loop.
// Safe to call once; later calls are no-ops.
func (s *Session) Start() {
	s.mu.Lock()
	if s.started || s.closed {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.drainEnhancements()

	if s.cfg.Sequential {
		s.mu.Lock()
		s.seqRunning = true
		s.mu.Unlock()
		s.wg.Add(1)
		go s.runSequential()
		return
	}

	ids := s.registry.IDs()
	for _, p := range ids {
		s.applyTransition(p, evSchedule, "")
	}

	primary := s.registry.Primary()
	s.launchBase(primary)
	// The record flips to completed as soon as the primary fetch is kicked
	// off; providers keep resolving in the background and the per-provider
	// states carry true readiness.
	s.markInteractive()
	for _, p := range ids {
		if p == primary {
			continue
		}
		s.launchBase(p)
	}
}

// StartResumed brings a session for an already-calculated record live without
// re-running the base fan-out. Provider states are rebuilt from the stored
// quotes; providers whose enhancement never landed are re-queued so only the
// model calls they still owe are made. Safe to call once, like Start.
func (s *Session) StartResumed() {
	s.mu.Lock()
	if s.started || s.closed {
		s.mu.Unlock()
		return
	}
	s.started = true
	var owed []queueItem
	for _, p := range s.registry.IDs() {
		q := s.data.Quotes[p]
		if q == nil {
			continue
		}
		// Stored quotes land past the event sequence that produced them.
		if q.Enhanced {
			s.states[p].Status = StateActive
			continue
		}
		s.states[p].Status = StateLoadingBase
		owed = append(owed, queueItem{provider: p, quote: q.Clone(), form: s.form})
	}
	s.mu.Unlock()

	s.wg.Add(1)
	go s.drainEnhancements()

	for _, it := range owed {
		s.enqueueEnhancement(it.provider, it.quote, it.form)
	}
}

func (s *Session) launchBase(provider string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runBaseCalculation(provider)
	}()
}

// Close tears the session down: cancels every in-flight fetch, backoff wait
// and batch delay, then waits for the workers. Late completions after Close
// are dropped.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

// update applies a delta to the latest record state under the session lock
// and persists the result. Returns false once the session is closed, so late
// async completions become no-ops.
func (s *Session) update(apply func(*quote.QuoteData)) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	apply(s.data)
	s.lastActivity = time.Now()
	if err := s.store.Save(s.ctx, s.id, s.data); err != nil {
		log.Printf("engine: persist quote %s: %v", s.id, err)
	}
	s.mu.Unlock()
	return true
}

// applyTransition runs one provider through the state machine and publishes
// the change. Illegal transitions are logged and dropped.
func (s *Session) applyTransition(provider string, ev stateEvent, detail string) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	rec, ok := s.states[provider]
	if !ok {
		rec = &ProviderState{Status: StateInactive}
		s.states[provider] = rec
	}
	next, err := transition(rec.Status, ev)
	if err != nil {
		s.mu.Unlock()
		log.Printf("engine: quote %s provider %s: %v", s.id, provider, err)
		return false
	}
	rec.Status = next
	switch ev {
	case evBaseFailed:
		rec.Error = detail
	case evEnhanceFailure:
		rec.EnhancementError = detail
	case evEnhanceStart, evEnhanceSuccess:
		rec.EnhancementError = ""
	}
	s.lastActivity = time.Now()
	s.mu.Unlock()

	if s.bus != nil {
		if _, pubErr := s.bus.PublishProviderState(s.ctx, s.id, provider, string(next), detail); pubErr != nil && s.ctx.Err() == nil {
			log.Printf("engine: publish state for %s: %v", provider, pubErr)
		}
	}
	return true
}

// markInteractive flips a calculating record to completed.
func (s *Session) markInteractive() {
	flipped := false
	s.update(func(d *quote.QuoteData) {
		if d.Status == quote.StatusCalculating {
			d.Status = quote.StatusCompleted
			flipped = true
		}
	})
	if flipped && s.bus != nil {
		if _, err := s.bus.PublishStatus(s.ctx, s.id, string(quote.StatusCompleted), ""); err != nil && s.ctx.Err() == nil {
			log.Printf("engine: publish status for %s: %v", s.id, err)
		}
	}
}

// beginBase takes the per-provider base in-flight guard. A false return
// means another fetch for this provider is already running (or the session
// is closed) and the caller must back off.
func (s *Session) beginBase(provider string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.baseInFlight[provider] {
		return false
	}
	s.baseInFlight[provider] = true
	return true
}

func (s *Session) endBase(provider string) {
	s.mu.Lock()
	delete(s.baseInFlight, provider)
	s.mu.Unlock()
}

// Data returns a deep copy of the current record.
func (s *Session) Data() *quote.QuoteData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.Clone()
}

// ProviderStates returns a snapshot of every provider's display state.
func (s *Session) ProviderStates() map[string]ProviderState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]ProviderState, len(s.states))
	for p, rec := range s.states {
		out[p] = *rec
	}
	return out
}

// CurrentProvider returns the provider the UI is pointed at.
func (s *Session) CurrentProvider() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Loading reports whether any provider work is still pending or in flight.
func (s *Session) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return true
	}
	if s.seqRunning || len(s.queue) > 0 || len(s.enhInFlight) > 0 || len(s.baseInFlight) > 0 {
		return true
	}
	for _, rec := range s.states {
		if rec.Status == StateLoadingBase || rec.Status == StateLoadingEnhanced {
			return true
		}
	}
	return false
}

// LastActivity returns the time of the last state change or caller access;
// the manager's janitor uses it to expire idle sessions.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Touch refreshes the idle clock on caller access.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// SwitchProvider points the session at another provider. Allowed only when
// the target holds a base quote (active, loading-enhanced or
// enhancement-failed). In dual-currency mode a target missing its
// local-currency data triggers an on-demand calculator run first; if that
// run cannot produce the data, the switch is rolled back.
func (s *Session) SwitchProvider(ctx context.Context, target string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("quote session closed")
	}
	s.lastActivity = time.Now()
	if s.data == nil {
		s.mu.Unlock()
		return nil
	}
	if target == s.current {
		s.mu.Unlock()
		return nil
	}
	if !s.registry.Known(target) {
		s.mu.Unlock()
		return fmt.Errorf("%w: unknown provider %q", ErrSwitchRejected, target)
	}
	rec := s.states[target]
	status := StateInactive
	if rec != nil {
		status = rec.Status
	}
	if !status.HasBaseQuote() {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrSwitchRejected, target, status)
	}
	prev := s.current
	s.current = target
	needDual := s.dualMode && !s.dualReadyLocked(target)
	s.mu.Unlock()

	s.publishSwitch(target)

	if needDual {
		if err := s.fillDualCurrency(ctx, target); err != nil {
			s.mu.Lock()
			if s.current == target {
				s.current = prev
			}
			s.mu.Unlock()
			s.publishSwitch(prev)
			return fmt.Errorf("switch to %s: %w", target, err)
		}
	}
	return nil
}

// dualReadyLocked reports whether both dual-currency legs already resolved
// for a provider. Caller holds s.mu.
func (s *Session) dualReadyLocked(provider string) bool {
	dq := s.data.DualCurrencyQuotes[provider]
	return dq != nil && dq.IsDualCurrencyMode
}

func (s *Session) publishSwitch(provider string) {
	if s.bus == nil {
		return
	}
	if _, err := s.bus.Append(s.ctx, s.id, map[string]any{
		"kind":     "switch",
		"provider": provider,
	}); err != nil && s.ctx.Err() == nil {
		log.Printf("engine: publish switch for %s: %v", provider, err)
	}
}

// RetryEnhancement re-queues a provider whose enhancement exhausted its
// retries. Only legal from enhancement-failed.
func (s *Session) RetryEnhancement(provider string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("quote session closed")
	}
	s.lastActivity = time.Now()
	rec := s.states[provider]
	status := StateInactive
	if rec != nil {
		status = rec.Status
	}
	if status != StateEnhancementFailed {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrRetryRejected, provider, status)
	}
	base := s.data.Quotes[provider]
	if base == nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: no base quote for %s", ErrRetryRejected, provider)
	}
	baseCopy := base.Clone()
	form := s.form
	s.mu.Unlock()

	s.enqueueEnhancement(provider, baseCopy, form)
	return nil
}
