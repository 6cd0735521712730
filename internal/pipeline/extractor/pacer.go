// internal/pipeline/extractor/pacer.go
package extractor

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Pacer enforces a minimum delay between requests to the same host.
// Each host owns one limiter; the map is guarded by mu.
type Pacer struct {
	mu           sync.Mutex
	limiters     map[string]*rate.Limiter
	defaultDelay time.Duration
	delays       map[string]time.Duration
}

func NewPacer(defaultDelay time.Duration, delays map[string]time.Duration) *Pacer {
	normalized := make(map[string]time.Duration, len(delays))
	for host, d := range delays {
		normalized[strings.ToLower(host)] = d
	}
	return &Pacer{
		limiters:     make(map[string]*rate.Limiter),
		defaultDelay: defaultDelay,
		delays:       normalized,
	}
}

// Wait blocks until a request to host may be issued or ctx is done.
func (p *Pacer) Wait(ctx context.Context, host string) error {
	lim := p.limiter(strings.ToLower(host))
	if lim == nil {
		return nil
	}
	return lim.Wait(ctx)
}

func (p *Pacer) limiter(host string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	if lim, ok := p.limiters[host]; ok {
		return lim
	}

	delay := p.defaultDelay
	if d, ok := p.delays[host]; ok {
		delay = d
	}
	if delay <= 0 {
		return nil
	}

	lim := rate.NewLimiter(rate.Every(delay), 1)
	p.limiters[host] = lim
	return lim
}
