// Package presence records ephemeral "last activity" heartbeats. Freshness is
// decided at read time, so stale rows never need a sweep to be correct.
package presence

import (
	"context"
	"fmt"
	"time"

	"support-chat/protocol"
)

type Kind string

const (
	Typing Kind = "typing"
	Online Kind = "online"
)

const (
	// TypingWindow is deliberately shorter than OnlineWindow so the indicator
	// clears quickly once the other party stops.
	TypingWindow = 3 * time.Second
	OnlineWindow = 30 * time.Second
)

// Ledger is an upsert-or-delete store of heartbeat timestamps. Writes are
// last-write-wins.
type Ledger interface {
	Set(ctx context.Context, kind Kind, key string, at time.Time) error
	Delete(ctx context.Context, kind Kind, key string) error
	Get(ctx context.Context, kind Kind, key string) (time.Time, bool, error)
}

// Fresh reports whether a heartbeat at last is still within window at now.
func Fresh(now, last time.Time, window time.Duration) bool {
	return now.Sub(last) < window
}

func TypingKey(conversationID uint, party protocol.Party) string {
	return fmt.Sprintf("%d:%s", conversationID, party.Side())
}

func OnlineKey(party protocol.Party) string {
	return party.Key()
}

// IsFresh reads a heartbeat and applies the window for its kind.
func IsFresh(ctx context.Context, l Ledger, kind Kind, key string, now time.Time) (bool, error) {
	last, ok, err := l.Get(ctx, kind, key)
	if err != nil || !ok {
		return false, err
	}
	return Fresh(now, last, window(kind)), nil
}

func window(kind Kind) time.Duration {
	if kind == Typing {
		return TypingWindow
	}
	return OnlineWindow
}

// retention bounds how long a backend keeps a row after its last write. It
// only limits memory; freshness is computed with the windows above.
func retention(kind Kind) time.Duration {
	return 20 * window(kind)
}
