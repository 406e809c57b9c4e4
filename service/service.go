// Package service implements the sync protocol: cursor reads over the message
// store, the write paths, and the typing/presence ledger.
package service

import (
	"context"
	"errors"
	"time"

	"support-chat/model"
	"support-chat/presence"
	"support-chat/protocol"
	"support-chat/ratelimit"
	"support-chat/store"

	"github.com/rs/zerolog/log"
)

const (
	DefaultPageSize = 25
	MaxPageSize     = 100
	PollPageSize    = 100
	InboxPageSize   = 100
)

// Pusher is the fire-and-forget notification contract. Implementations must
// not block the caller.
type Pusher interface {
	NotifyOtherParty(to protocol.Party, summary string, conversationID uint)
}

// Hinter nudges a party's connected clients to poll now.
type Hinter interface {
	Hint(to protocol.Party, hint protocol.SyncHint)
}

type noopPusher struct{}

func (noopPusher) NotifyOtherParty(protocol.Party, string, uint) {}

type noopHinter struct{}

func (noopHinter) Hint(protocol.Party, protocol.SyncHint) {}

type Service struct {
	store   store.Store
	ledger  presence.Ledger
	limiter ratelimit.Limiter
	pusher  Pusher
	hinter  Hinter
	now     func() time.Time
}

type Option func(*Service)

func WithPusher(p Pusher) Option {
	return func(s *Service) { s.pusher = p }
}

func WithHinter(h Hinter) Option {
	return func(s *Service) { s.hinter = h }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(st store.Store, ledger presence.Ledger, limiter ratelimit.Limiter, opts ...Option) *Service {
	s := &Service{
		store:   st,
		ledger:  ledger,
		limiter: limiter,
		pusher:  noopPusher{},
		hinter:  noopHinter{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// conversation loads a conversation the party may access. Visitors only see
// their own; the operator sees any that exists.
func (s *Service) conversation(ctx context.Context, party protocol.Party, id uint) (*model.Conversation, error) {
	conv, err := s.store.Conversation(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !party.Operator && conv.UserID != party.ID {
		return nil, ErrNotFound
	}
	return conv, nil
}

// counterpart is the other side of a conversation.
func counterpart(party protocol.Party, conv *model.Conversation) protocol.Party {
	if party.Operator {
		return protocol.Visitor(conv.UserID)
	}
	return protocol.Operator
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}

// seen records a presence heartbeat. Failures only cost presence accuracy.
func (s *Service) seen(ctx context.Context, party protocol.Party) {
	if err := s.ledger.Set(ctx, presence.Online, presence.OnlineKey(party), s.now()); err != nil {
		log.Debug().Err(err).Str("party", party.Key()).Msg("presence heartbeat failed")
	}
}

func (s *Service) fresh(ctx context.Context, kind presence.Kind, key string) bool {
	ok, err := presence.IsFresh(ctx, s.ledger, kind, key, s.now())
	if err != nil {
		log.Debug().Err(err).Str("kind", string(kind)).Str("key", key).Msg("presence read failed")
		return false
	}
	return ok
}
