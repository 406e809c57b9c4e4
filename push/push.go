// Package push is the best-effort notification side-channel. Nothing here may
// fail or slow down the write that triggered it.
package push

import (
	"context"
	"time"

	"support-chat/protocol"

	"github.com/rs/zerolog/log"
)

const (
	Queue        = "push"
	ActionNotify = "push.notify"
)

// Notification is addressed to a party, never to a device.
type Notification struct {
	PartyKey       string    `json:"party"`
	Summary        string    `json:"summary"`
	ConversationID uint      `json:"conversation_id"`
	CreatedAt      time.Time `json:"created_at"`
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Async runs a Notifier in the background with a timeout and a bound on
// in-flight sends. Overflow and failures are logged and dropped.
type Async struct {
	next    Notifier
	timeout time.Duration
	slots   chan struct{}
}

func NewAsync(next Notifier, timeout time.Duration, maxInFlight int) *Async {
	if maxInFlight <= 0 {
		maxInFlight = 64
	}
	return &Async{next: next, timeout: timeout, slots: make(chan struct{}, maxInFlight)}
}

// NotifyOtherParty returns immediately.
func (a *Async) NotifyOtherParty(to protocol.Party, summary string, conversationID uint) {
	n := Notification{
		PartyKey:       to.Key(),
		Summary:        summary,
		ConversationID: conversationID,
		CreatedAt:      time.Now().UTC(),
	}

	select {
	case a.slots <- struct{}{}:
	default:
		log.Warn().Str("party", n.PartyKey).Msg("push dropped: too many in flight")
		return
	}

	go func() {
		defer func() { <-a.slots }()
		defer func() {
			if r := recover(); r != nil {
				log.Warn().Interface("panic", r).Msg("push notifier panicked")
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		if err := a.next.Notify(ctx, n); err != nil {
			log.Warn().Err(err).Str("party", n.PartyKey).Uint("conversation", conversationID).Msg("push notify failed")
		}
	}()
}

// LogNotifier only records the notification; used when no broker is configured.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, n Notification) error {
	log.Debug().Str("party", n.PartyKey).Uint("conversation", n.ConversationID).Str("summary", n.Summary).Msg("push notification")
	return nil
}
