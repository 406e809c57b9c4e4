package store

import (
	"context"
	"time"

	"support-chat/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (s *Gorm) Message(ctx context.Context, id uint) (*model.Message, error) {
	msg := new(model.Message)
	if err := s.db.WithContext(ctx).Preload("Image").First(msg, id).Error; err != nil {
		return nil, notFound(err)
	}
	return msg, nil
}

func (s *Gorm) MessagesByIDs(ctx context.Context, ids []uint) ([]model.Message, error) {
	msgs := []model.Message{}
	if len(ids) == 0 {
		return msgs, nil
	}
	err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&msgs).Error
	return msgs, err
}

func (s *Gorm) MessageByImage(ctx context.Context, imageID uint) (*model.Message, error) {
	msg := new(model.Message)
	if err := s.db.WithContext(ctx).Where("image_id = ?", imageID).First(msg).Error; err != nil {
		return nil, notFound(err)
	}
	return msg, nil
}

func (s *Gorm) Image(ctx context.Context, id uint) (*model.MessageImage, error) {
	img := new(model.MessageImage)
	if err := s.db.WithContext(ctx).First(img, id).Error; err != nil {
		return nil, notFound(err)
	}
	return img, nil
}

// LatestMessages returns the newest page in chronological order. hasMore
// reports whether older messages exist.
func (s *Gorm) LatestMessages(ctx context.Context, conversationID uint, limit int) ([]model.Message, bool, error) {
	msgs := []model.Message{}
	err := s.db.WithContext(ctx).
		Preload("Image").
		Where("conversation_id = ?", conversationID).
		Order("created_at desc, id desc").
		Limit(limit + 1).
		Find(&msgs).Error
	if err != nil {
		return nil, false, err
	}
	return pageDescending(msgs, limit)
}

// MessagesBefore returns up to limit messages strictly older than cursor, in
// chronological order.
func (s *Gorm) MessagesBefore(ctx context.Context, cursor *model.Message, limit int) ([]model.Message, bool, error) {
	msgs := []model.Message{}
	err := s.db.WithContext(ctx).
		Preload("Image").
		Where("conversation_id = ?", cursor.ConversationID).
		Where("(created_at < ? OR (created_at = ? AND id < ?))", cursor.CreatedAt, cursor.CreatedAt, cursor.ID).
		Order("created_at desc, id desc").
		Limit(limit + 1).
		Find(&msgs).Error
	if err != nil {
		return nil, false, err
	}
	return pageDescending(msgs, limit)
}

// MessagesAfter returns up to limit messages strictly newer than cursor, in
// chronological order.
func (s *Gorm) MessagesAfter(ctx context.Context, cursor *model.Message, limit int) ([]model.Message, error) {
	msgs := []model.Message{}
	err := s.db.WithContext(ctx).
		Preload("Image").
		Where("conversation_id = ?", cursor.ConversationID).
		Where("(created_at > ? OR (created_at = ? AND id > ?))", cursor.CreatedAt, cursor.CreatedAt, cursor.ID).
		Order("created_at asc, id asc").
		Limit(limit).
		Find(&msgs).Error
	return msgs, err
}

// pageDescending trims the probe row and flips newest-first rows into
// chronological order.
func pageDescending(msgs []model.Message, limit int) ([]model.Message, bool, error) {
	hasMore := len(msgs) > limit
	if hasMore {
		msgs = msgs[:limit]
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, hasMore, nil
}

// CreateMessage inserts the message (and its image, if any) and bumps the
// conversation's last activity in one transaction.
func (s *Gorm) CreateMessage(ctx context.Context, msg *model.Message) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if msg.Image != nil {
			if err := tx.Create(msg.Image).Error; err != nil {
				return err
			}
			msg.ImageID = &msg.Image.ID
		}
		if err := tx.Omit("Image").Create(msg).Error; err != nil {
			return err
		}
		return tx.Model(&model.Conversation{}).
			Where("id = ?", msg.ConversationID).
			Update("last_activity", time.Now()).Error
	})
}

func (s *Gorm) Reactions(ctx context.Context, messageIDs []uint) ([]model.Reaction, error) {
	reactions := []model.Reaction{}
	if len(messageIDs) == 0 {
		return reactions, nil
	}
	err := s.db.WithContext(ctx).
		Where("message_id IN ?", messageIDs).
		Order("created_at asc, id asc").
		Find(&reactions).Error
	return reactions, err
}

// ToggleReaction applies toggle-and-replace for one party on one message and
// reports whether the emoji is now active. The delete and insert share a
// transaction; a racing insert for the same party fails on the unique index.
func (s *Gorm) ToggleReaction(ctx context.Context, messageID uint, partyKey, emoji string) (bool, error) {
	added := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Where("message_id = ? AND party_key = ?", messageID, partyKey)
		if tx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		existing := []model.Reaction{}
		if err := q.Find(&existing).Error; err != nil {
			return err
		}
		if len(existing) > 0 {
			if err := tx.Where("message_id = ? AND party_key = ?", messageID, partyKey).Delete(&model.Reaction{}).Error; err != nil {
				return err
			}
			if existing[0].Emoji == emoji {
				return nil
			}
		}

		added = true
		return tx.Create(&model.Reaction{MessageID: messageID, PartyKey: partyKey, Emoji: emoji}).Error
	})
	if err != nil {
		if isDuplicate(err) {
			return false, ErrDuplicate
		}
		return false, err
	}
	return added, nil
}
