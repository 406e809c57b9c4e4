package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"support-chat/model"
	"support-chat/presence"
	"support-chat/protocol"
	"support-chat/store"
)

// Bootstrap returns the caller's conversation and its latest page. Visitors get
// their conversation created on first call; the operator must name one.
func (s *Service) Bootstrap(ctx context.Context, party protocol.Party, req protocol.BootstrapRequest) (protocol.BootstrapResponse, error) {
	var (
		conv *model.Conversation
		err  error
	)
	if party.Operator {
		if req.ConversationID == 0 {
			return protocol.BootstrapResponse{}, ErrNotFound
		}
		conv, err = s.conversation(ctx, party, req.ConversationID)
	} else {
		if _, err := s.store.User(ctx, party.ID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return protocol.BootstrapResponse{}, ErrUnauthorized
			}
			return protocol.BootstrapResponse{}, err
		}
		conv, err = s.store.GetOrCreateConversation(ctx, party.ID)
	}
	if err != nil {
		return protocol.BootstrapResponse{}, err
	}
	s.seen(ctx, party)

	msgs, hasMore, err := s.store.LatestMessages(ctx, conv.ID, clampLimit(req.Limit))
	if err != nil {
		return protocol.BootstrapResponse{}, fmt.Errorf("latest messages: %w", err)
	}
	out, err := s.decorate(ctx, msgs)
	if err != nil {
		return protocol.BootstrapResponse{}, err
	}
	return protocol.BootstrapResponse{ConversationID: conv.ID, Messages: out, HasMore: hasMore}, nil
}

// Messages serves the three read modes. Before pages backward, After polls
// forward, and neither returns the latest page.
func (s *Service) Messages(ctx context.Context, party protocol.Party, conversationID uint, q protocol.MessagesQuery) (protocol.MessagesResponse, error) {
	if q.Before != nil && q.After != nil {
		return protocol.MessagesResponse{}, fmt.Errorf("%w: before and after are exclusive", ErrInvalidCursor)
	}
	conv, err := s.conversation(ctx, party, conversationID)
	if err != nil {
		return protocol.MessagesResponse{}, err
	}
	s.seen(ctx, party)

	var (
		msgs    []model.Message
		hasMore bool
	)
	switch {
	case q.Before != nil:
		cursor, err := s.cursor(ctx, conv.ID, *q.Before)
		if err != nil {
			return protocol.MessagesResponse{}, err
		}
		msgs, hasMore, err = s.store.MessagesBefore(ctx, cursor, clampLimit(q.Limit))
		if err != nil {
			return protocol.MessagesResponse{}, fmt.Errorf("messages before %d: %w", cursor.ID, err)
		}
	case q.After != nil:
		cursor, err := s.cursor(ctx, conv.ID, *q.After)
		if err != nil {
			return protocol.MessagesResponse{}, err
		}
		msgs, err = s.store.MessagesAfter(ctx, cursor, PollPageSize)
		if err != nil {
			return protocol.MessagesResponse{}, fmt.Errorf("messages after %d: %w", cursor.ID, err)
		}
	default:
		msgs, hasMore, err = s.store.LatestMessages(ctx, conv.ID, clampLimit(q.Limit))
		if err != nil {
			return protocol.MessagesResponse{}, fmt.Errorf("latest messages: %w", err)
		}
	}

	out, err := s.decorate(ctx, msgs)
	if err != nil {
		return protocol.MessagesResponse{}, err
	}
	other := counterpart(party, conv)
	return protocol.MessagesResponse{
		Messages:          out,
		HasMore:           hasMore,
		CounterpartTyping: s.fresh(ctx, presence.Typing, presence.TypingKey(conv.ID, other)),
		CounterpartOnline: s.fresh(ctx, presence.Online, presence.OnlineKey(other)),
	}, nil
}

// cursor resolves a message id that must belong to the conversation.
func (s *Service) cursor(ctx context.Context, conversationID, id uint) (*model.Message, error) {
	msg, err := s.store.Message(ctx, id)
	if errors.Is(err, store.ErrNotFound) || (err == nil && msg.ConversationID != conversationID) {
		return nil, fmt.Errorf("%w: message %d is not in this conversation", ErrInvalidCursor, id)
	}
	return msg, err
}

// decorate attaches reaction groups and reply previews, looking up only the
// ids on this page.
func (s *Service) decorate(ctx context.Context, msgs []model.Message) ([]protocol.Message, error) {
	out := make([]protocol.Message, 0, len(msgs))
	if len(msgs) == 0 {
		return out, nil
	}

	ids := make([]uint, 0, len(msgs))
	replyIDs := make([]uint, 0)
	seenReply := make(map[uint]bool)
	for _, m := range msgs {
		ids = append(ids, m.ID)
		if m.ReplyToID != nil && !seenReply[*m.ReplyToID] {
			seenReply[*m.ReplyToID] = true
			replyIDs = append(replyIDs, *m.ReplyToID)
		}
	}

	reactions, err := s.store.Reactions(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("reactions: %w", err)
	}
	groups := GroupReactions(reactions)

	targets, err := s.store.MessagesByIDs(ctx, replyIDs)
	if err != nil {
		return nil, fmt.Errorf("reply targets: %w", err)
	}
	previews := make(map[uint]*protocol.ReplyPreview, len(targets))
	for i := range targets {
		previews[targets[i].ID] = replyPreview(&targets[i])
	}

	for i := range msgs {
		m := toProtocol(&msgs[i])
		if g, ok := groups[m.ID]; ok {
			m.Reactions = g
		}
		if m.ReplyToID != nil {
			m.ReplyTo = previews[*m.ReplyToID]
		}
		out = append(out, m)
	}
	return out, nil
}

// GroupReactions summarizes reactions per message, groups ordered by first use.
func GroupReactions(reactions []model.Reaction) map[uint][]protocol.ReactionGroup {
	out := make(map[uint][]protocol.ReactionGroup)
	for _, r := range reactions {
		groups := out[r.MessageID]
		idx := -1
		for i := range groups {
			if groups[i].Emoji == r.Emoji {
				idx = i
				break
			}
		}
		if idx < 0 {
			groups = append(groups, protocol.ReactionGroup{Emoji: r.Emoji})
			idx = len(groups) - 1
		}
		groups[idx].Count++
		if r.PartyKey == protocol.Operator.Key() {
			groups[idx].HasAdmin = true
		} else {
			groups[idx].HasUser = true
		}
		out[r.MessageID] = groups
	}
	return out
}

func replyPreview(m *model.Message) *protocol.ReplyPreview {
	content := ""
	if m.Content != nil {
		content = truncate(*m.Content, PreviewRunes)
	}
	return &protocol.ReplyPreview{ID: m.ID, Content: content, IsAdmin: m.IsAdmin}
}

func toProtocol(m *model.Message) protocol.Message {
	out := protocol.Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		IsAdmin:        m.IsAdmin,
		Content:        m.Content,
		ReplyToID:      m.ReplyToID,
		Reactions:      []protocol.ReactionGroup{},
		CreatedAt:      time.UnixMilli(m.CreatedAt).UTC(),
	}
	if m.Image != nil {
		out.Image = &protocol.Image{
			ID:     m.Image.ID,
			URL:    fmt.Sprintf("/v1/images/%d", m.Image.ID),
			Width:  m.Image.Width,
			Height: m.Image.Height,
		}
	}
	return out
}

// Conversations is the operator inbox.
func (s *Service) Conversations(ctx context.Context, party protocol.Party) ([]protocol.ConversationSummary, error) {
	if !party.Operator {
		return nil, ErrUnauthorized
	}
	s.seen(ctx, party)

	convs, err := s.store.Conversations(ctx, InboxPageSize)
	if err != nil {
		return nil, fmt.Errorf("conversations: %w", err)
	}
	out := make([]protocol.ConversationSummary, 0, len(convs))
	for _, c := range convs {
		out = append(out, protocol.ConversationSummary{
			ID:           c.ID,
			UserID:       c.UserID,
			Username:     c.User.Username,
			LastActivity: c.LastActivity,
			Online:       s.fresh(ctx, presence.Online, presence.OnlineKey(protocol.Visitor(c.UserID))),
		})
	}
	return out, nil
}

// Image returns an image blob visible to the party.
func (s *Service) Image(ctx context.Context, party protocol.Party, imageID uint) (*model.MessageImage, error) {
	msg, err := s.store.MessageByImage(ctx, imageID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if _, err := s.conversation(ctx, party, msg.ConversationID); err != nil {
		return nil, err
	}
	img, err := s.store.Image(ctx, imageID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	return img, err
}
