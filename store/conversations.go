package store

import (
	"context"
	"time"

	"support-chat/model"
)

// GetOrCreateConversation returns the visitor's only conversation, creating it
// on first use. A concurrent create loses on the unique index and re-reads.
func (s *Gorm) GetOrCreateConversation(ctx context.Context, userID uint) (*model.Conversation, error) {
	conv := new(model.Conversation)
	err := s.db.WithContext(ctx).
		Where(&model.Conversation{UserID: userID}).
		Attrs(&model.Conversation{LastActivity: time.Now()}).
		FirstOrCreate(conv).Error
	if err == nil {
		return conv, nil
	}

	retry := new(model.Conversation)
	if err2 := s.db.WithContext(ctx).Where(&model.Conversation{UserID: userID}).First(retry).Error; err2 == nil {
		return retry, nil
	}
	return nil, err
}

func (s *Gorm) Conversation(ctx context.Context, id uint) (*model.Conversation, error) {
	conv := new(model.Conversation)
	if err := s.db.WithContext(ctx).Preload("User").First(conv, id).Error; err != nil {
		return nil, notFound(err)
	}
	return conv, nil
}

// Conversations lists the operator inbox, most recently active first.
func (s *Gorm) Conversations(ctx context.Context, limit int) ([]model.Conversation, error) {
	convs := []model.Conversation{}
	err := s.db.WithContext(ctx).
		Preload("User").
		Order("last_activity desc, id desc").
		Limit(limit).
		Find(&convs).Error
	return convs, err
}
