package push

import (
	"context"
	"encoding/json"
	"fmt"
)

// Emitter is satisfied by *event.Broker.
type Emitter interface {
	Emit(ctx context.Context, queue string, action string, data []byte) error
}

// QueueNotifier hands notifications to the broker; the Listener delivers them.
type QueueNotifier struct {
	emitter Emitter
}

func NewQueueNotifier(emitter Emitter) *QueueNotifier {
	return &QueueNotifier{emitter: emitter}
}

func (q *QueueNotifier) Notify(ctx context.Context, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := q.emitter.Emit(ctx, Queue, ActionNotify, body); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}
