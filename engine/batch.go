package engine

import (
	"log"
	"sync"
	"time"

	"hirequote-cloud/quote"
)

// queueItem is one pending enhancement: a provider's freshly fetched base
// quote plus the form it was fetched for. Consumed exactly once.
type queueItem struct {
	provider string
	quote    *quote.Quote
	form     quote.FormData
}

// BatchInfo is the enhancement progress surface the UI polls.
type BatchInfo struct {
	CurrentBatch  int     `json:"currentBatch"`
	TotalBatches  int     `json:"totalBatches"`
	BatchProgress float64 `json:"batchProgress"`
	IsProcessing  bool    `json:"isProcessing"`
}

// BatchInfo returns a snapshot of the enhancement queue's progress.
func (s *Session) BatchInfo() BatchInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batch
}

// enqueueEnhancement adds a provider's base quote to the enhancement queue.
// A second enqueue for an already-queued provider replaces its payload
// instead of duplicating the item; an enqueue for a provider whose
// enhancement is currently running is dropped.
func (s *Session) enqueueEnhancement(provider string, base *quote.Quote, form quote.FormData) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.enhInFlight[provider] {
		s.mu.Unlock()
		log.Printf("engine: %s enhancement already in flight, dropping enqueue", provider)
		return
	}
	replaced := false
	for i := range s.queue {
		if s.queue[i].provider == provider {
			s.queue[i].quote = base
			s.queue[i].form = form
			replaced = true
			break
		}
	}
	if !replaced {
		s.queue = append(s.queue, queueItem{provider: provider, quote: base, form: form})
	}
	s.mu.Unlock()

	select {
	case s.queueWake <- struct{}{}:
	default:
	}
}

// tierOf maps a provider to its 1-based batch tier.
func (s *Session) tierOf(provider string) int {
	for i, tier := range s.tiers {
		for _, id := range tier {
			if id == provider {
				return i + 1
			}
		}
	}
	return len(s.tiers)
}

// takeBatch removes and returns every queued item belonging to the earliest
// tier that has pending work, marking those providers in flight.
func (s *Session) takeBatch() ([]queueItem, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil, 0
	}

	best := 0
	for _, it := range s.queue {
		if t := s.tierOf(it.provider); best == 0 || t < best {
			best = t
		}
	}

	var group, rest []queueItem
	for _, it := range s.queue {
		if s.tierOf(it.provider) == best {
			group = append(group, it)
			s.enhInFlight[it.provider] = true
		} else {
			rest = append(rest, it)
		}
	}
	s.queue = rest
	return group, best
}

// drainEnhancements is the single loop that processes enhancement batches:
// earliest tier first, items of a batch settled together under the global
// concurrency bound, a small delay between batches. Items enqueued while a
// batch is in flight are picked up on the next pass without disturbing
// running ones.
func (s *Session) drainEnhancements() {
	defer s.wg.Done()
	for {
		group, tier := s.takeBatch()
		if group == nil {
			select {
			case <-s.ctx.Done():
				return
			case <-s.queueWake:
			}
			continue
		}

		s.startBatch(tier, len(group))
		var wg sync.WaitGroup
		for _, item := range group {
			wg.Add(1)
			go func(it queueItem) {
				defer wg.Done()
				defer s.finishItem(it.provider)
				select {
				case s.sem <- struct{}{}:
				case <-s.ctx.Done():
					return
				}
				defer func() { <-s.sem }()
				s.runEnhancement(it)
			}(item)
		}
		wg.Wait()
		s.endBatch()

		select {
		case <-time.After(s.cfg.BatchDelay):
		case <-s.ctx.Done():
			return
		}
	}
}

// runEnhancement drives one item through loading-enhanced to its outcome.
func (s *Session) runEnhancement(it queueItem) {
	if !s.applyTransition(it.provider, evEnhanceStart, "") {
		return
	}

	enhanced, err := s.enhanceWithRetry(s.ctx, it.provider, it.quote, it.form)
	if err != nil {
		if s.ctx.Err() != nil {
			return
		}
		log.Printf("engine: %s enhancement failed after retries: %v", it.provider, err)
		s.applyTransition(it.provider, evEnhanceFailure, err.Error())
		return
	}

	s.update(func(d *quote.QuoteData) {
		d.SetQuote(it.provider, enhanced)
	})
	s.applyTransition(it.provider, evEnhanceSuccess, "")
}

func (s *Session) startBatch(tier, size int) {
	s.mu.Lock()
	s.batch.CurrentBatch = tier
	s.batch.TotalBatches = len(s.tiers)
	s.batch.BatchProgress = 0
	s.batch.IsProcessing = true
	s.batchSize = size
	s.batchDone = 0
	s.mu.Unlock()

	if s.bus != nil {
		if _, err := s.bus.Append(s.ctx, s.id, map[string]any{
			"kind":  "batch",
			"batch": tier,
			"size":  size,
		}); err != nil && s.ctx.Err() == nil {
			log.Printf("engine: publish batch start: %v", err)
		}
	}
}

func (s *Session) finishItem(provider string) {
	s.mu.Lock()
	delete(s.enhInFlight, provider)
	if s.batchSize > 0 {
		s.batchDone++
		s.batch.BatchProgress = float64(s.batchDone) / float64(s.batchSize)
	}
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *Session) endBatch() {
	s.mu.Lock()
	s.batch.IsProcessing = false
	s.mu.Unlock()
}
