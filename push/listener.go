package push

import (
	"context"
	"encoding/json"
	"time"

	"support-chat/event"
	"support-chat/model"

	"github.com/rs/zerolog/log"
)

// Subscriptions looks up the endpoints registered by a party.
type Subscriptions interface {
	PushSubscriptions(ctx context.Context, partyKey string) ([]model.PushSubscription, error)
}

// Deliverer sends one notification to one endpoint. The browser push
// mechanics (VAPID, payload encryption) live behind this interface.
type Deliverer interface {
	Deliver(ctx context.Context, sub model.PushSubscription, n Notification) error
}

type LogDeliverer struct{}

func (LogDeliverer) Deliver(_ context.Context, sub model.PushSubscription, n Notification) error {
	log.Info().Str("party", n.PartyKey).Str("subscription", sub.ID).Uint("conversation", n.ConversationID).Msg("push delivered")
	return nil
}

// Listener drains queued notifications and fans them out to subscriptions.
type Listener struct {
	subs      Subscriptions
	deliverer Deliverer
	timeout   time.Duration
}

func NewListener(subs Subscriptions, deliverer Deliverer) *Listener {
	return &Listener{subs: subs, deliverer: deliverer, timeout: 10 * time.Second}
}

// Run consumes until in is closed.
func (l *Listener) Run(in <-chan event.EventChannelData) {
	for ev := range in {
		if ev.Action != ActionNotify {
			log.Debug().Str("action", ev.Action).Msg("push listener: ignored event")
			continue
		}
		var n Notification
		if err := json.Unmarshal(ev.Data, &n); err != nil {
			log.Warn().Err(err).Msg("push listener: bad payload")
			continue
		}
		l.handle(n)
	}
}

func (l *Listener) handle(n Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	subs, err := l.subs.PushSubscriptions(ctx, n.PartyKey)
	if err != nil {
		log.Warn().Err(err).Str("party", n.PartyKey).Msg("push listener: lookup failed")
		return
	}
	for _, sub := range subs {
		if err := l.deliverer.Deliver(ctx, sub, n); err != nil {
			log.Warn().Err(err).Str("subscription", sub.ID).Msg("push listener: delivery failed")
		}
	}
}
