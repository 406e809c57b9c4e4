package client

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"support-chat/protocol"
)

type fakeTimer struct {
	c       *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{c: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves time forward and fires due timers in deadline order.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	due := make([]*fakeTimer, 0)
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.f()
	}
}

// fakeServer is an in-memory Transport with the server's read semantics.
type fakeServer struct {
	mu     sync.Mutex
	party  protocol.Party
	convID uint
	msgs   []protocol.Message
	nextID uint

	typingFlag bool
	typing     []bool
	sent       []protocol.SendMessageRequest

	sendErr     error
	messagesErr error
	reactErr    error

	// onMessages runs before a Messages call is served, without the lock.
	onMessages   func(q protocol.MessagesQuery)
	messageCalls []protocol.MessagesQuery
}

func newFakeServer(party protocol.Party, n int) *fakeServer {
	s := &fakeServer{party: party, convID: 7}
	for i := 1; i <= n; i++ {
		s.add(fmt.Sprintf("m%d", i), i%2 == 0)
	}
	return s
}

func (s *fakeServer) add(content string, admin bool) protocol.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(protocol.SendMessageRequest{Content: &content}, admin)
}

// addLocked stores content trimmed, as the server does.
func (s *fakeServer) addLocked(req protocol.SendMessageRequest, admin bool) protocol.Message {
	if req.Content != nil {
		content := strings.TrimSpace(*req.Content)
		req.Content = &content
	}
	s.nextID++
	m := protocol.Message{
		ID:             s.nextID,
		ConversationID: s.convID,
		IsAdmin:        admin,
		Content:        req.Content,
		ReplyToID:      req.ReplyToID,
		Reactions:      []protocol.ReactionGroup{},
		CreatedAt:      time.Unix(int64(s.nextID), 0).UTC(),
	}
	if req.Image != nil {
		m.Image = &protocol.Image{ID: s.nextID, URL: fmt.Sprintf("/v1/images/%d", s.nextID), Width: req.Image.Width, Height: req.Image.Height}
	}
	s.msgs = append(s.msgs, m)
	return m
}

func (s *fakeServer) react(id uint, emoji string, operator bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.msgs {
		if s.msgs[i].ID == id {
			s.msgs[i].Reactions = ApplyReactionToggle(s.msgs[i].Reactions, emoji, operator)
		}
	}
}

func (s *fakeServer) setTypingFlag(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.typingFlag = v
}

func (s *fakeServer) latestLocked(limit int) ([]protocol.Message, bool) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if len(s.msgs) <= limit {
		return append([]protocol.Message{}, s.msgs...), false
	}
	return append([]protocol.Message{}, s.msgs[len(s.msgs)-limit:]...), true
}

func (s *fakeServer) Bootstrap(_ context.Context, req protocol.BootstrapRequest) (protocol.BootstrapResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs, more := s.latestLocked(req.Limit)
	return protocol.BootstrapResponse{ConversationID: s.convID, Messages: msgs, HasMore: more}, nil
}

func (s *fakeServer) Messages(_ context.Context, conversationID uint, q protocol.MessagesQuery) (protocol.MessagesResponse, error) {
	s.mu.Lock()
	s.messageCalls = append(s.messageCalls, q)
	hook := s.onMessages
	s.mu.Unlock()
	if hook != nil {
		hook(q)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.messagesErr != nil {
		return protocol.MessagesResponse{}, s.messagesErr
	}
	if conversationID != s.convID {
		return protocol.MessagesResponse{}, &StatusError{Status: http.StatusNotFound}
	}
	res := protocol.MessagesResponse{CounterpartTyping: s.typingFlag}

	index := func(id uint) int {
		for i, m := range s.msgs {
			if m.ID == id {
				return i
			}
		}
		return -1
	}
	switch {
	case q.Before != nil:
		idx := index(*q.Before)
		if idx < 0 {
			return protocol.MessagesResponse{}, &StatusError{Status: http.StatusBadRequest, Message: "invalid cursor"}
		}
		older := s.msgs[:idx]
		limit := q.Limit
		if limit <= 0 {
			limit = DefaultPageSize
		}
		if len(older) > limit {
			res.Messages = append([]protocol.Message{}, older[len(older)-limit:]...)
			res.HasMore = true
		} else {
			res.Messages = append([]protocol.Message{}, older...)
		}
	case q.After != nil:
		idx := index(*q.After)
		if idx < 0 {
			return protocol.MessagesResponse{}, &StatusError{Status: http.StatusBadRequest, Message: "invalid cursor"}
		}
		res.Messages = append([]protocol.Message{}, s.msgs[idx+1:]...)
	default:
		res.Messages, res.HasMore = s.latestLocked(q.Limit)
	}
	return res, nil
}

func (s *fakeServer) SendMessage(_ context.Context, _ uint, req protocol.SendMessageRequest) (protocol.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, req)
	if s.sendErr != nil {
		return protocol.Message{}, s.sendErr
	}
	return s.addLocked(req, s.party.Operator), nil
}

func (s *fakeServer) ToggleReaction(_ context.Context, messageID uint, emoji string) (protocol.ToggleReactionResponse, error) {
	s.mu.Lock()
	err := s.reactErr
	s.mu.Unlock()
	if err != nil {
		return protocol.ToggleReactionResponse{}, err
	}
	s.react(messageID, emoji, s.party.Operator)
	return protocol.ToggleReactionResponse{Action: protocol.ReactionAdded, Emoji: emoji}, nil
}

func (s *fakeServer) SetTyping(_ context.Context, _ uint, isTyping bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.typing = append(s.typing, isTyping)
	return nil
}

func (s *fakeServer) typingSignals() []bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]bool{}, s.typing...)
}

type fakeViewport struct {
	mu     sync.Mutex
	top    float64
	height float64
}

func (v *fakeViewport) ScrollTop() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.top
}

func (v *fakeViewport) ScrollHeight() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.height
}

func (v *fakeViewport) SetScrollTop(top float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.top = top
}

// render lays out every entry at 10 units high.
func (v *fakeViewport) render(s Snapshot) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.height = float64(len(s.Entries) * 10)
}
