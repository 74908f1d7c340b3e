package engine

import "log"

// runSequential is the legacy scheduler kept behind QUOTE_SEQUENTIAL_MODE:
// providers run one at a time in catalog order, and a rate-limited base
// fetch trips a circuit breaker that stops scheduling the remaining
// providers entirely instead of letting them cascade into the same limit.
// The parallel path has no breaker; its per-provider failures are isolated.
func (s *Session) runSequential() {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		s.seqRunning = false
		s.mu.Unlock()
	}()

	interactive := false
	for _, provider := range s.registry.IDs() {
		if s.ctx.Err() != nil {
			return
		}
		if !s.applyTransition(provider, evSchedule, "") {
			continue
		}
		if !interactive {
			// Catalog order puts the primary first; the record flips to
			// completed as soon as its fetch is kicked off.
			s.markInteractive()
			interactive = true
		}

		err := s.runBaseCalculation(provider)
		if err != nil && isRateLimitError(err) {
			log.Printf("engine: quote %s: rate limit from %s, halting sequential scheduling", s.id, provider)
			return
		}
	}
}
