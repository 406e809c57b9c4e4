package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type limiterEntry struct {
	l        *rate.Limiter
	lastSeen time.Time
}

// Memory is a per-(party, action) token-bucket pool. Idle buckets are dropped
// after ttl by a cleanup goroutine started on first use.
type Memory struct {
	mu            sync.Mutex
	m             map[string]*limiterEntry
	rules         map[Action]Rule
	now           func() time.Time
	startCleanup  sync.Once
	ttl           time.Duration
	cleanupPeriod time.Duration
	done          chan struct{}
	closeOnce     sync.Once
}

func NewMemory(rules map[Action]Rule) *Memory {
	return &Memory{
		m:             make(map[string]*limiterEntry),
		rules:         rules,
		now:           time.Now,
		ttl:           10 * time.Minute,
		cleanupPeriod: time.Minute,
		done:          make(chan struct{}),
	}
}

func (p *Memory) get(key string, rule Rule, now time.Time) *rate.Limiter {
	p.startCleanup.Do(func() {
		go p.cleanupLoop()
	})

	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.m[key]; ok {
		e.lastSeen = now
		return e.l
	}
	l := rate.NewLimiter(rate.Every(rule.Every), rule.Burst)
	p.m[key] = &limiterEntry{l: l, lastSeen: now}
	return l
}

func (p *Memory) CheckAndConsume(_ context.Context, partyKey string, action Action) (Decision, error) {
	rule, ok := p.rules[action]
	if !ok {
		return Decision{Allowed: true}, nil
	}

	now := p.now()
	l := p.get(string(action)+":"+partyKey, rule, now)
	r := l.ReserveN(now, 1)
	if !r.OK() {
		return Decision{Allowed: false, RetryAfter: rule.Every}, nil
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return Decision{Allowed: false, RetryAfter: delay}, nil
	}
	return Decision{Allowed: true}, nil
}

func (p *Memory) Close() {
	p.closeOnce.Do(func() { close(p.done) })
}

func (p *Memory) cleanupLoop() {
	ticker := time.NewTicker(p.cleanupPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			p.sweep(p.now())
		}
	}
}

func (p *Memory) sweep(now time.Time) {
	cutoff := now.Add(-p.ttl)
	p.mu.Lock()
	defer p.mu.Unlock()
	for k, e := range p.m {
		if e.lastSeen.Before(cutoff) {
			delete(p.m, k)
		}
	}
}
