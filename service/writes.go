package service

import (
	"context"
	"errors"
	"fmt"

	"support-chat/model"
	"support-chat/presence"
	"support-chat/protocol"
	"support-chat/ratelimit"
	"support-chat/store"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

func (s *Service) consume(ctx context.Context, party protocol.Party, action ratelimit.Action) error {
	d, err := s.limiter.CheckAndConsume(ctx, party.Key(), action)
	if err != nil {
		// A broken limiter backend must not take the chat down with it.
		log.Warn().Err(err).Str("action", string(action)).Msg("rate limiter unavailable")
		return nil
	}
	if !d.Allowed {
		return &RateLimitedError{RetryAfter: d.RetryAfter}
	}
	return nil
}

// SendMessage validates, persists and announces a message. Push delivery is
// fire-and-forget and cannot fail the write.
func (s *Service) SendMessage(ctx context.Context, party protocol.Party, conversationID uint, req protocol.SendMessageRequest) (protocol.Message, error) {
	conv, err := s.conversation(ctx, party, conversationID)
	if err != nil {
		return protocol.Message{}, err
	}
	if err := s.consume(ctx, party, ratelimit.Send); err != nil {
		return protocol.Message{}, err
	}

	msg := &model.Message{ConversationID: conv.ID, IsAdmin: party.Operator}
	switch {
	case req.Image != nil && req.Content != nil && *req.Content != "":
		return protocol.Message{}, fmt.Errorf("%w: send either text or an image", ErrInvalidContent)
	case req.Image != nil:
		img, err := validateImage(req.Image)
		if err != nil {
			return protocol.Message{}, err
		}
		msg.Image = img
	case req.Content != nil:
		content, err := validateContent(*req.Content)
		if err != nil {
			return protocol.Message{}, err
		}
		msg.Content = &content
	default:
		return protocol.Message{}, fmt.Errorf("%w: message is empty", ErrInvalidContent)
	}

	var target *model.Message
	if req.ReplyToID != nil {
		target, err = s.store.Message(ctx, *req.ReplyToID)
		if errors.Is(err, store.ErrNotFound) || (err == nil && target.ConversationID != conv.ID) {
			return protocol.Message{}, fmt.Errorf("%w: message %d is not in this conversation", ErrInvalidReplyTarget, *req.ReplyToID)
		}
		if err != nil {
			return protocol.Message{}, err
		}
		msg.ReplyToID = &target.ID
	}

	if err := s.store.CreateMessage(ctx, msg); err != nil {
		return protocol.Message{}, fmt.Errorf("create message: %w", err)
	}

	if err := s.ledger.Delete(ctx, presence.Typing, presence.TypingKey(conv.ID, party)); err != nil {
		log.Debug().Err(err).Msg("clear typing on send failed")
	}
	s.seen(ctx, party)

	other := counterpart(party, conv)
	if !s.fresh(ctx, presence.Online, presence.OnlineKey(other)) {
		s.pusher.NotifyOtherParty(other, summary(msg), conv.ID)
	}
	s.hinter.Hint(other, protocol.SyncHint{ConversationID: conv.ID, Kind: protocol.HintMessage})

	out := toProtocol(msg)
	if target != nil {
		out.ReplyTo = replyPreview(target)
	}
	log.Debug().Uint("conversation", conv.ID).Uint("message", msg.ID).Bool("operator", party.Operator).Msg("message created")
	return out, nil
}

func summary(m *model.Message) string {
	if m.Content != nil {
		return truncate(*m.Content, PreviewRunes)
	}
	return "📷 Image"
}

// ToggleReaction enforces one reaction per party per message: the same emoji
// removes it, a different one replaces it.
func (s *Service) ToggleReaction(ctx context.Context, party protocol.Party, messageID uint, emoji string) (protocol.ToggleReactionResponse, error) {
	if !validEmoji(emoji) {
		return protocol.ToggleReactionResponse{}, fmt.Errorf("%w: %q is not an allowed reaction", ErrInvalidEmoji, emoji)
	}
	msg, err := s.store.Message(ctx, messageID)
	if errors.Is(err, store.ErrNotFound) {
		return protocol.ToggleReactionResponse{}, ErrNotFound
	}
	if err != nil {
		return protocol.ToggleReactionResponse{}, err
	}
	conv, err := s.conversation(ctx, party, msg.ConversationID)
	if err != nil {
		return protocol.ToggleReactionResponse{}, err
	}
	if err := s.consume(ctx, party, ratelimit.React); err != nil {
		return protocol.ToggleReactionResponse{}, err
	}

	added, err := s.store.ToggleReaction(ctx, msg.ID, party.Key(), emoji)
	if errors.Is(err, store.ErrDuplicate) {
		// lost a race with a concurrent toggle by the same party; its result stands
		added, err = s.store.ToggleReaction(ctx, msg.ID, party.Key(), emoji)
	}
	if err != nil {
		return protocol.ToggleReactionResponse{}, fmt.Errorf("toggle reaction: %w", err)
	}

	s.hinter.Hint(counterpart(party, conv), protocol.SyncHint{ConversationID: conv.ID, Kind: protocol.HintReaction})

	action := protocol.ReactionRemoved
	if added {
		action = protocol.ReactionAdded
	}
	return protocol.ToggleReactionResponse{Action: action, Emoji: emoji}, nil
}

// SetTyping upserts or deletes the party's typing heartbeat.
func (s *Service) SetTyping(ctx context.Context, party protocol.Party, conversationID uint, isTyping bool) error {
	conv, err := s.conversation(ctx, party, conversationID)
	if err != nil {
		return err
	}
	key := presence.TypingKey(conv.ID, party)
	if isTyping {
		err = s.ledger.Set(ctx, presence.Typing, key, s.now())
	} else {
		err = s.ledger.Delete(ctx, presence.Typing, key)
	}
	if err != nil {
		return fmt.Errorf("set typing: %w", err)
	}
	s.seen(ctx, party)
	s.hinter.Hint(counterpart(party, conv), protocol.SyncHint{ConversationID: conv.ID, Kind: protocol.HintTyping})
	return nil
}

// SubscribePush stores a push endpoint for the party.
func (s *Service) SubscribePush(ctx context.Context, party protocol.Party, req protocol.PushSubscribeRequest) error {
	if req.Endpoint == "" {
		return fmt.Errorf("%w: endpoint is required", ErrInvalidContent)
	}
	sub := &model.PushSubscription{
		ID:       uuid.NewString(),
		PartyKey: party.Key(),
		Endpoint: req.Endpoint,
		Keys:     req.Keys,
	}
	if err := s.store.SavePushSubscription(ctx, sub); err != nil {
		return fmt.Errorf("save push subscription: %w", err)
	}
	return nil
}
