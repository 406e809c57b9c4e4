package push

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"support-chat/event"
	"support-chat/model"
	"support-chat/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu    sync.Mutex
	got   []Notification
	err   error
	block chan struct{}
	done  chan struct{}
}

func (r *recordingNotifier) Notify(ctx context.Context, n Notification) error {
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
		}
	}
	r.mu.Lock()
	r.got = append(r.got, n)
	r.mu.Unlock()
	if r.done != nil {
		r.done <- struct{}{}
	}
	return r.err
}

func TestAsyncDoesNotBlockOrPropagateFailure(t *testing.T) {
	rec := &recordingNotifier{err: errors.New("broker down"), block: make(chan struct{}), done: make(chan struct{}, 1)}
	a := NewAsync(rec, time.Second, 4)

	start := time.Now()
	a.NotifyOtherParty(protocol.Operator, "hi", 9)
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	close(rec.block)
	select {
	case <-rec.done:
	case <-time.After(2 * time.Second):
		t.Fatal("notification never sent")
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.got, 1)
	assert.Equal(t, "operator", rec.got[0].PartyKey)
	assert.Equal(t, uint(9), rec.got[0].ConversationID)
}

func TestAsyncDropsWhenSaturated(t *testing.T) {
	rec := &recordingNotifier{block: make(chan struct{}), done: make(chan struct{}, 4)}
	a := NewAsync(rec, time.Second, 1)

	a.NotifyOtherParty(protocol.Visitor(1), "first", 1)
	a.NotifyOtherParty(protocol.Visitor(1), "second", 1)
	close(rec.block)
	<-rec.done

	time.Sleep(50 * time.Millisecond)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.got, 1)
	assert.Equal(t, "first", rec.got[0].Summary)
}

type fakeEmitter struct {
	queue, action string
	body          []byte
}

func (f *fakeEmitter) Emit(_ context.Context, queue, action string, data []byte) error {
	f.queue, f.action, f.body = queue, action, data
	return nil
}

type fakeSubs map[string][]model.PushSubscription

func (f fakeSubs) PushSubscriptions(_ context.Context, key string) ([]model.PushSubscription, error) {
	return f[key], nil
}

type recordingDeliverer struct {
	subs []string
}

func (r *recordingDeliverer) Deliver(_ context.Context, sub model.PushSubscription, _ Notification) error {
	r.subs = append(r.subs, sub.ID)
	return nil
}

func TestQueueNotifierAndListenerRoundTrip(t *testing.T) {
	em := &fakeEmitter{}
	q := NewQueueNotifier(em)
	require.NoError(t, q.Notify(context.Background(), Notification{PartyKey: "user:4", Summary: "hello", ConversationID: 2}))
	assert.Equal(t, Queue, em.queue)
	assert.Equal(t, ActionNotify, em.action)

	var decoded Notification
	require.NoError(t, json.Unmarshal(em.body, &decoded))
	assert.Equal(t, "hello", decoded.Summary)

	del := &recordingDeliverer{}
	l := NewListener(fakeSubs{"user:4": {{ID: "s1"}, {ID: "s2"}}}, del)

	in := make(chan event.EventChannelData, 3)
	in <- event.EventChannelData{Action: "other", Data: []byte("{}")}
	in <- event.EventChannelData{Action: ActionNotify, Data: []byte("not json")}
	in <- event.EventChannelData{Action: ActionNotify, Data: em.body}
	close(in)
	l.Run(in)

	assert.Equal(t, []string{"s1", "s2"}, del.subs)
}
