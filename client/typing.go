package client

import (
	"sync"
	"time"
)

const (
	DefaultTypingDebounce = time.Second
	DefaultTypingQuiet    = 2 * time.Second
)

// typer turns keystrokes into typing signals: true at most once per debounce,
// false after a quiet period without keystrokes.
type typer struct {
	mu       sync.Mutex
	clock    Clock
	debounce time.Duration
	quiet    time.Duration
	signal   func(isTyping bool)

	lastTrue time.Time
	timer    Timer
	seq      uint64
}

func newTyper(clock Clock, debounce, quiet time.Duration, signal func(bool)) *typer {
	return &typer{clock: clock, debounce: debounce, quiet: quiet, signal: signal}
}

func (t *typer) keystroke() {
	t.mu.Lock()
	now := t.clock.Now()
	sendTrue := t.lastTrue.IsZero() || now.Sub(t.lastTrue) >= t.debounce
	if sendTrue {
		t.lastTrue = now
	}
	if t.timer != nil {
		t.timer.Stop()
	}
	t.seq++
	seq := t.seq
	t.timer = t.clock.AfterFunc(t.quiet, func() { t.expire(seq) })
	t.mu.Unlock()

	if sendTrue {
		t.signal(true)
	}
}

func (t *typer) expire(seq uint64) {
	t.mu.Lock()
	if seq != t.seq || t.timer == nil {
		t.mu.Unlock()
		return
	}
	t.timer = nil
	t.lastTrue = time.Time{}
	t.mu.Unlock()

	t.signal(false)
}

// sent cancels the pending quiet timer and signals false right away.
func (t *typer) sent() {
	t.mu.Lock()
	pending := t.timer != nil
	t.stopLocked()
	t.mu.Unlock()

	if pending {
		t.signal(false)
	}
}

// reset drops any pending timer without signalling.
func (t *typer) reset() {
	t.mu.Lock()
	t.stopLocked()
	t.mu.Unlock()
}

func (t *typer) stopLocked() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.seq++
	t.lastTrue = time.Time{}
}
