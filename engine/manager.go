package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"hirequote-cloud/quote"
)

const (
	defaultSessionIdle   = 30 * time.Minute
	defaultSweepInterval = time.Minute
)

// Manager owns the live sessions of this process, keyed by quote id. A
// session is created when a calculation starts, re-created when a request
// arrives for a stored record with no live session (page reload, second
// tab), and closed by the janitor once idle.
type Manager struct {
	deps          Deps
	cfg           Config
	idle          time.Duration
	sweepInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager builds the session registry. Session idle lifetime comes from
// QUOTE_SESSION_IDLE (default 30m).
func NewManager(deps Deps, cfg Config) (*Manager, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		deps:          deps,
		cfg:           cfg.withDefaults(),
		idle:          envDuration("QUOTE_SESSION_IDLE", defaultSessionIdle),
		sweepInterval: defaultSweepInterval,
		ctx:           ctx,
		cancel:        cancel,
		sessions:      make(map[string]*Session),
	}, nil
}

// Start launches the idle-session janitor.
func (m *Manager) Start() {
	m.wg.Add(1)
	go m.janitorLoop()
	log.Printf("quote manager: started (session idle %s)", m.idle)
}

// Stop halts the janitor and closes every live session.
func (m *Manager) Stop() {
	m.cancel()
	m.wg.Wait()

	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		sessions = append(sessions, sess)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, sess := range sessions {
		sess.Close()
	}
	log.Printf("quote manager: stopped (%d sessions closed)", len(sessions))
}

// StartCalculation validates the form, persists the initial calculating
// record and starts a session driving it. Returns the new quote id.
func (m *Manager) StartCalculation(ctx context.Context, form quote.FormData) (string, error) {
	if err := form.Validate(); err != nil {
		return "", err
	}

	id := uuid.NewString()
	data := quote.NewQuoteData(form)
	if err := m.deps.Store.Save(ctx, id, data); err != nil {
		return "", err
	}

	sess, err := NewSession(id, data, m.deps, m.cfg)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	m.sessions[id] = sess
	sess.Start()
	m.mu.Unlock()

	log.Printf("quote manager: started calculation %s (country=%s providers=%d)", id, form.Country, len(m.deps.Registry.IDs()))
	return id, nil
}

// Session returns the live session for a quote id, if any.
func (m *Manager) Session(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	return sess, ok
}

// Count reports how many sessions are live.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Resume returns the live session for a quote id, re-creating one from the
// stored record when none exists. A record that already holds every
// provider's base quote reattaches without touching the providers again; a
// record with holes re-drives the calculators to fill them (merges are
// idempotent per provider, so prior data survives). Store misses propagate
// store.ErrNotFound; an unusable stored form marks the record failed.
func (m *Manager) Resume(ctx context.Context, id string) (*Session, error) {
	m.mu.Lock()
	if sess, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		sess.Touch()
		return sess, nil
	}
	m.mu.Unlock()

	data, err := m.deps.Store.Load(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := data.FormData.Validate(); err != nil {
		data.Status = quote.StatusError
		data.Error = err.Error()
		if saveErr := m.deps.Store.Save(ctx, id, data); saveErr != nil {
			log.Printf("quote manager: mark %s failed: %v", id, saveErr)
		}
		if m.deps.Bus != nil {
			if _, pubErr := m.deps.Bus.PublishStatus(ctx, id, string(quote.StatusError), err.Error()); pubErr != nil {
				log.Printf("quote manager: publish error status for %s: %v", id, pubErr)
			}
		}
		return nil, fmt.Errorf("quote %s unusable: %w", id, err)
	}
	if data.Status == quote.StatusError {
		return nil, fmt.Errorf("quote %s failed: %s", id, data.Error)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[id]; ok {
		return sess, nil
	}
	sess, err := NewSession(id, data, m.deps, m.cfg)
	if err != nil {
		return nil, err
	}
	m.sessions[id] = sess
	if m.settled(data) {
		sess.StartResumed()
		log.Printf("quote manager: reattached settled session %s", id)
	} else {
		sess.Start()
		log.Printf("quote manager: resumed session %s", id)
	}
	return sess, nil
}

// settled reports whether a stored record already holds a base quote for
// every provider. Reattaching such a record must not re-fire provider calls
// just to view a finished quote.
func (m *Manager) settled(data *quote.QuoteData) bool {
	if data.Status != quote.StatusCompleted {
		return false
	}
	for _, p := range m.deps.Registry.IDs() {
		if data.Quotes[p] == nil {
			return false
		}
	}
	return true
}

func (m *Manager) janitorLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.sweepIdle()
		}
	}
}

// sweepIdle closes sessions with no activity past the idle lifetime. The
// stored records outlive their sessions and expire on their own TTL.
func (m *Manager) sweepIdle() {
	cutoff := time.Now().Add(-m.idle)

	var expired []*Session
	m.mu.Lock()
	for id, sess := range m.sessions {
		if sess.LastActivity().Before(cutoff) {
			delete(m.sessions, id)
			expired = append(expired, sess)
		}
	}
	m.mu.Unlock()

	for _, sess := range expired {
		sess.Close()
		log.Printf("quote manager: closed idle session %s", sess.ID())
	}
}
