// Package client is the client side of the sync protocol: an engine that owns
// one open conversation's timeline, overlays optimistic sends and reactions,
// and reconciles them with what polling brings back.
package client

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"support-chat/protocol"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type State int

const (
	Uninitialized State = iota
	Bootstrapping
	Steady
	Paginating
	Closed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Bootstrapping:
		return "bootstrapping"
	case Steady:
		return "steady"
	case Paginating:
		return "paginating"
	case Closed:
		return "closed"
	}
	return "unknown"
}

const (
	DefaultPageSize       = 25
	DefaultPollInterval   = 2 * time.Second
	DefaultSuppressWindow = 3 * time.Second
	DefaultReconcileEvery = 5
	DefaultLoadThreshold  = 80.0
)

var (
	ErrNotOpen        = errors.New("client: no open conversation")
	ErrStale          = errors.New("client: conversation changed while the request was in flight")
	ErrUnknownMessage = errors.New("client: message is not in the timeline")
)

// Viewport is the scrollable surface rendering the timeline. Heights are in
// the viewport's own units.
type Viewport interface {
	ScrollTop() float64
	ScrollHeight() float64
	SetScrollTop(v float64)
}

// Snapshot is an immutable copy of the engine state for rendering.
type Snapshot struct {
	State             State
	ConversationID    uint
	Entries           []Entry
	HasMore           bool
	CounterpartTyping bool
	CounterpartOnline bool
	Replying          *protocol.Message
	RateLimitedUntil  time.Time
}

// RetryIn is the remaining send countdown.
func (s Snapshot) RetryIn(now time.Time) time.Duration {
	if d := s.RateLimitedUntil.Sub(now); d > 0 {
		return d
	}
	return 0
}

type Engine struct {
	transport Transport
	party     protocol.Party
	clock     Clock
	viewport  Viewport
	onChange  func(Snapshot)
	spawn     func(func())
	typer     *typer

	pageSize       int
	pollInterval   time.Duration
	suppressWindow time.Duration
	reconcileEvery int
	loadThreshold  float64

	nudge chan struct{}

	mu                sync.Mutex
	gen               uint64
	state             State
	conversationID    uint
	entries           []Entry
	hasMore           bool
	counterpartTyping bool
	counterpartOnline bool
	replying          *protocol.Message
	lastOptimistic    time.Time
	rateLimitedUntil  time.Time
	polls             int
}

type Option func(*Engine)

func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

func WithViewport(v Viewport) Option {
	return func(e *Engine) { e.viewport = v }
}

// WithOnChange registers the render callback. It runs on the goroutine that
// changed the state and must not call back into the engine synchronously.
func WithOnChange(f func(Snapshot)) Option {
	return func(e *Engine) { e.onChange = f }
}

func WithPageSize(n int) Option {
	return func(e *Engine) { e.pageSize = n }
}

func WithPollInterval(d time.Duration) Option {
	return func(e *Engine) { e.pollInterval = d }
}

func WithSuppressWindow(d time.Duration) Option {
	return func(e *Engine) { e.suppressWindow = d }
}

// WithReconcileEvery refreshes reaction groups of the latest page every n
// polls. Zero disables it.
func WithReconcileEvery(n int) Option {
	return func(e *Engine) { e.reconcileEvery = n }
}

func WithTyping(debounce, quiet time.Duration) Option {
	return func(e *Engine) {
		e.typer.debounce = debounce
		e.typer.quiet = quiet
	}
}

// withSpawn replaces the goroutine launcher for background typing signals.
func withSpawn(f func(func())) Option {
	return func(e *Engine) { e.spawn = f }
}

func New(transport Transport, party protocol.Party, opts ...Option) *Engine {
	e := &Engine{
		transport:      transport,
		party:          party,
		clock:          realClock{},
		spawn:          func(f func()) { go f() },
		pageSize:       DefaultPageSize,
		pollInterval:   DefaultPollInterval,
		suppressWindow: DefaultSuppressWindow,
		reconcileEvery: DefaultReconcileEvery,
		loadThreshold:  DefaultLoadThreshold,
		nudge:          make(chan struct{}, 1),
	}
	e.typer = newTyper(e.clock, DefaultTypingDebounce, DefaultTypingQuiet, e.signalTyping)
	for _, opt := range opts {
		opt(e)
	}
	e.typer.clock = e.clock
	return e
}

func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() Snapshot {
	s := Snapshot{
		State:             e.state,
		ConversationID:    e.conversationID,
		Entries:           append([]Entry(nil), e.entries...),
		HasMore:           e.hasMore,
		CounterpartTyping: e.counterpartTyping,
		CounterpartOnline: e.counterpartOnline,
		RateLimitedUntil:  e.rateLimitedUntil,
	}
	if e.replying != nil {
		r := *e.replying
		s.Replying = &r
	}
	return s
}

func (e *Engine) emit() {
	if e.onChange != nil {
		e.onChange(e.Snapshot())
	}
}

func (e *Engine) live() bool {
	return e.state == Steady || e.state == Paginating
}

func (e *Engine) suppressedLocked(now time.Time) bool {
	return !e.lastOptimistic.IsZero() && now.Sub(e.lastOptimistic) < e.suppressWindow
}

// cursorLocked is the id of the newest confirmed entry; pending entries are
// skipped.
func (e *Engine) cursorLocked() uint {
	for i := len(e.entries) - 1; i >= 0; i-- {
		if !e.entries[i].Pending() {
			return e.entries[i].ID
		}
	}
	return 0
}

func (e *Engine) oldestLocked() uint {
	for _, entry := range e.entries {
		if !entry.Pending() {
			return entry.ID
		}
	}
	return 0
}

// Open bootstraps a conversation, replacing whatever was open before. Visitors
// pass 0 and get their own conversation; the operator names one.
func (e *Engine) Open(ctx context.Context, conversationID uint) error {
	e.typer.reset()

	e.mu.Lock()
	e.gen++
	gen := e.gen
	e.state = Bootstrapping
	e.conversationID = conversationID
	e.entries = nil
	e.hasMore = false
	e.counterpartTyping = false
	e.counterpartOnline = false
	e.replying = nil
	e.lastOptimistic = time.Time{}
	e.polls = 0
	e.mu.Unlock()
	e.emit()

	res, err := e.transport.Bootstrap(ctx, protocol.BootstrapRequest{ConversationID: conversationID, Limit: e.pageSize})

	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		return ErrStale
	}
	if err != nil {
		e.state = Uninitialized
		e.mu.Unlock()
		e.emit()
		return err
	}
	e.state = Steady
	e.conversationID = res.ConversationID
	e.entries = confirmed(res.Messages)
	e.hasMore = res.HasMore
	e.mu.Unlock()

	log.Debug().Uint("conversation", res.ConversationID).Int("messages", len(res.Messages)).Msg("conversation opened")
	e.emit()
	return nil
}

// Close invalidates every in-flight request and clears the timeline.
func (e *Engine) Close() {
	e.typer.reset()

	e.mu.Lock()
	e.gen++
	e.state = Closed
	e.conversationID = 0
	e.entries = nil
	e.hasMore = false
	e.counterpartTyping = false
	e.counterpartOnline = false
	e.replying = nil
	e.mu.Unlock()
	e.emit()
}

// Nudge asks Run to poll now instead of waiting for the next tick.
func (e *Engine) Nudge() {
	select {
	case e.nudge <- struct{}{}:
	default:
	}
}

// Run polls on the configured interval until ctx is done. Poll failures are
// logged and skipped.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-e.nudge:
		}
		if err := e.Poll(ctx); err != nil && !errors.Is(err, ErrStale) {
			log.Debug().Err(err).Msg("poll failed")
		}
	}
}

// Poll fetches everything after the newest confirmed message and merges it.
// Errors leave the state untouched.
func (e *Engine) Poll(ctx context.Context) error {
	e.mu.Lock()
	if !e.live() {
		e.mu.Unlock()
		return nil
	}
	gen := e.gen
	conversationID := e.conversationID
	cursor := e.cursorLocked()
	now := e.clock.Now()
	if cursor == 0 && e.suppressedLocked(now) {
		e.mu.Unlock()
		return nil
	}
	e.polls++
	reconcile := e.reconcileEvery > 0 && e.polls%e.reconcileEvery == 0 && cursor != 0 && !e.suppressedLocked(now)
	e.mu.Unlock()

	q := protocol.MessagesQuery{}
	if cursor != 0 {
		q.After = &cursor
	} else {
		q.Limit = e.pageSize
	}
	res, err := e.transport.Messages(ctx, conversationID, q)
	if err != nil {
		return err
	}

	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		return ErrStale
	}
	changed := false
	if cursor == 0 {
		changed = e.replaceLocked(res)
	} else {
		e.entries, changed = Merge(e.entries, res.Messages)
	}
	if e.counterpartTyping != res.CounterpartTyping || e.counterpartOnline != res.CounterpartOnline {
		e.counterpartTyping = res.CounterpartTyping
		e.counterpartOnline = res.CounterpartOnline
		changed = true
	}
	e.mu.Unlock()

	if changed {
		e.emit()
	}
	if reconcile {
		return e.reconcile(ctx, gen, conversationID)
	}
	return nil
}

// replaceLocked applies the initial, path-replacing load. It yields to any
// optimistic mutation made while the request was in flight.
func (e *Engine) replaceLocked(res protocol.MessagesResponse) bool {
	if e.suppressedLocked(e.clock.Now()) {
		return false
	}
	if len(res.Messages) == 0 && len(e.entries) == 0 {
		return false
	}
	e.entries = confirmed(res.Messages)
	e.hasMore = res.HasMore
	return true
}

func (e *Engine) reconcile(ctx context.Context, gen uint64, conversationID uint) error {
	res, err := e.transport.Messages(ctx, conversationID, protocol.MessagesQuery{Limit: e.pageSize})
	if err != nil {
		return err
	}

	e.mu.Lock()
	if gen != e.gen || e.suppressedLocked(e.clock.Now()) {
		e.mu.Unlock()
		return nil
	}
	var changed bool
	e.entries, changed = ReconcileReactions(e.entries, res.Messages)
	e.mu.Unlock()

	if changed {
		e.emit()
	}
	return nil
}

// MaybeLoadOlder pages backward when the viewport is near the top.
func (e *Engine) MaybeLoadOlder(ctx context.Context) error {
	if e.viewport == nil || e.viewport.ScrollTop() > e.loadThreshold {
		return nil
	}
	return e.LoadOlder(ctx)
}

// LoadOlder prepends the page before the oldest message. Any failure ends
// pagination for this conversation.
func (e *Engine) LoadOlder(ctx context.Context) error {
	e.mu.Lock()
	if e.state != Steady || !e.hasMore {
		e.mu.Unlock()
		return nil
	}
	oldest := e.oldestLocked()
	if oldest == 0 {
		e.hasMore = false
		e.mu.Unlock()
		e.emit()
		return nil
	}
	gen := e.gen
	conversationID := e.conversationID
	e.state = Paginating
	e.mu.Unlock()
	e.emit()

	res, err := e.transport.Messages(ctx, conversationID, protocol.MessagesQuery{Before: &oldest, Limit: e.pageSize})

	var height float64
	if e.viewport != nil {
		height = e.viewport.ScrollHeight()
	}

	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		return ErrStale
	}
	if e.state == Paginating {
		e.state = Steady
	}
	if err != nil {
		e.hasMore = false
		e.mu.Unlock()
		log.Debug().Err(err).Uint("before", oldest).Msg("pagination stopped")
		e.emit()
		return err
	}
	e.entries = Prepend(e.entries, res.Messages)
	e.hasMore = res.HasMore
	e.mu.Unlock()

	e.emit()
	if e.viewport != nil && len(res.Messages) > 0 {
		e.viewport.SetScrollTop(e.viewport.ScrollTop() + e.viewport.ScrollHeight() - height)
	}
	return nil
}

// StageReply marks a confirmed message as the target of the next send.
func (e *Engine) StageReply(messageID uint) error {
	e.mu.Lock()
	var target *protocol.Message
	for i := range e.entries {
		if !e.entries[i].Pending() && e.entries[i].ID == messageID {
			m := e.entries[i].Message
			target = &m
			break
		}
	}
	if target == nil {
		e.mu.Unlock()
		return ErrUnknownMessage
	}
	e.replying = target
	e.mu.Unlock()
	e.emit()
	return nil
}

func (e *Engine) ClearReply() {
	e.mu.Lock()
	e.replying = nil
	e.mu.Unlock()
	e.emit()
}

// Keystroke feeds the typing debounce.
func (e *Engine) Keystroke() {
	e.mu.Lock()
	live := e.live()
	e.mu.Unlock()
	if live {
		e.typer.keystroke()
	}
}

func (e *Engine) signalTyping(isTyping bool) {
	e.mu.Lock()
	if !e.live() {
		e.mu.Unlock()
		return
	}
	conversationID := e.conversationID
	e.mu.Unlock()

	e.spawn(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.transport.SetTyping(ctx, conversationID, isTyping); err != nil {
			log.Debug().Err(err).Bool("typing", isTyping).Msg("typing signal failed")
		}
	})
}

// Send posts a text message, showing it immediately as a pending entry. The
// content is trimmed the way the server stores it.
func (e *Engine) Send(ctx context.Context, content string) error {
	content = strings.TrimSpace(content)
	return e.send(ctx, protocol.SendMessageRequest{Content: &content})
}

// SendImage posts an image message.
func (e *Engine) SendImage(ctx context.Context, image protocol.ImagePayload) error {
	return e.send(ctx, protocol.SendMessageRequest{Image: &image})
}

func (e *Engine) send(ctx context.Context, req protocol.SendMessageRequest) error {
	e.mu.Lock()
	if !e.live() {
		e.mu.Unlock()
		return ErrNotOpen
	}
	now := e.clock.Now()
	if wait := e.rateLimitedUntil.Sub(now); wait > 0 {
		e.mu.Unlock()
		return &StatusError{Status: http.StatusTooManyRequests, Message: "rate limited", RetryAfter: wait}
	}

	echo := Entry{
		LocalID: uuid.NewString(),
		Message: protocol.Message{
			ConversationID: e.conversationID,
			IsAdmin:        e.party.Operator,
			Content:        req.Content,
			Reactions:      []protocol.ReactionGroup{},
			CreatedAt:      now,
		},
	}
	if req.Image != nil {
		echo.Image = &protocol.Image{Width: req.Image.Width, Height: req.Image.Height}
	}
	if e.replying != nil {
		id := e.replying.ID
		req.ReplyToID = &id
		echo.ReplyToID = &id
		preview := protocol.ReplyPreview{ID: id, IsAdmin: e.replying.IsAdmin}
		if e.replying.Content != nil {
			preview.Content = *e.replying.Content
		}
		echo.ReplyTo = &preview
		e.replying = nil
	}
	e.entries = append(e.entries, echo)
	e.lastOptimistic = now
	gen := e.gen
	conversationID := e.conversationID
	e.mu.Unlock()
	e.emit()

	e.typer.sent()

	if _, err := e.transport.SendMessage(ctx, conversationID, req); err != nil {
		e.fail(ctx, gen, conversationID, echo.LocalID, err)
		return err
	}
	e.Nudge()
	return nil
}

// ToggleReaction flips the caller's reaction optimistically and confirms it.
func (e *Engine) ToggleReaction(ctx context.Context, messageID uint, emoji string) error {
	e.mu.Lock()
	if !e.live() {
		e.mu.Unlock()
		return ErrNotOpen
	}
	idx := -1
	for i := range e.entries {
		if !e.entries[i].Pending() && e.entries[i].ID == messageID {
			idx = i
			break
		}
	}
	if idx < 0 {
		e.mu.Unlock()
		return ErrUnknownMessage
	}
	entries := append([]Entry(nil), e.entries...)
	entries[idx].Reactions = ApplyReactionToggle(entries[idx].Reactions, emoji, e.party.Operator)
	e.entries = entries
	e.lastOptimistic = e.clock.Now()
	gen := e.gen
	conversationID := e.conversationID
	e.mu.Unlock()
	e.emit()

	if _, err := e.transport.ToggleReaction(ctx, messageID, emoji); err != nil {
		e.fail(ctx, gen, conversationID, "", err)
		return err
	}
	return nil
}

// fail reverts an explicit action: the pending echo goes, a 429 starts the
// countdown, and the timeline is replaced with a fresh server read.
func (e *Engine) fail(ctx context.Context, gen uint64, conversationID uint, localID string, cause error) {
	log.Warn().Err(cause).Uint("conversation", conversationID).Msg("optimistic action failed, resyncing")

	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		return
	}
	if localID != "" {
		kept := make([]Entry, 0, len(e.entries))
		for _, entry := range e.entries {
			if entry.LocalID != localID {
				kept = append(kept, entry)
			}
		}
		e.entries = kept
	}
	var se *StatusError
	if errors.As(cause, &se) && se.RateLimited() {
		e.rateLimitedUntil = e.clock.Now().Add(se.RetryAfter)
	}
	e.lastOptimistic = time.Time{}
	e.mu.Unlock()
	e.emit()

	res, err := e.transport.Messages(ctx, conversationID, protocol.MessagesQuery{Limit: e.pageSize})
	if err != nil {
		log.Debug().Err(err).Msg("resync failed")
		return
	}

	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		return
	}
	e.entries = confirmed(res.Messages)
	e.hasMore = res.HasMore
	e.counterpartTyping = res.CounterpartTyping
	e.counterpartOnline = res.CounterpartOnline
	e.mu.Unlock()
	e.emit()
}
