// Package ratelimit implements checkAndConsume for explicit user actions.
package ratelimit

import (
	"context"
	"time"
)

type Action string

const (
	Send  Action = "send"
	React Action = "react"
)

// Rule allows Burst actions at once, refilled one token per Every.
type Rule struct {
	Every time.Duration
	Burst int
}

// DefaultRules leaves typing heartbeats unlimited.
var DefaultRules = map[Action]Rule{
	Send:  {Every: time.Second, Burst: 10},
	React: {Every: time.Second / 3, Burst: 20},
}

type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Limiter consumes one token for (party, action) when allowed. Actions without
// a rule are always allowed.
type Limiter interface {
	CheckAndConsume(ctx context.Context, partyKey string, action Action) (Decision, error)
}

// Unlimited allows everything.
type Unlimited struct{}

func (Unlimited) CheckAndConsume(context.Context, string, Action) (Decision, error) {
	return Decision{Allowed: true}, nil
}
