// Package store persists conversations, messages, reactions and push
// subscriptions through gorm.
package store

import (
	"context"
	"errors"
	"strings"

	"support-chat/model"

	"gorm.io/gorm"
)

var (
	ErrNotFound  = errors.New("store: record not found")
	ErrDuplicate = errors.New("store: duplicate record")
)

// Store is the persistence contract consumed by the sync service.
type Store interface {
	CreateUser(ctx context.Context, user *model.User) error
	UserByUsername(ctx context.Context, username string) (*model.User, error)
	User(ctx context.Context, id uint) (*model.User, error)

	GetOrCreateConversation(ctx context.Context, userID uint) (*model.Conversation, error)
	Conversation(ctx context.Context, id uint) (*model.Conversation, error)
	Conversations(ctx context.Context, limit int) ([]model.Conversation, error)

	Message(ctx context.Context, id uint) (*model.Message, error)
	MessagesByIDs(ctx context.Context, ids []uint) ([]model.Message, error)
	MessageByImage(ctx context.Context, imageID uint) (*model.Message, error)
	LatestMessages(ctx context.Context, conversationID uint, limit int) ([]model.Message, bool, error)
	MessagesBefore(ctx context.Context, cursor *model.Message, limit int) ([]model.Message, bool, error)
	MessagesAfter(ctx context.Context, cursor *model.Message, limit int) ([]model.Message, error)
	CreateMessage(ctx context.Context, msg *model.Message) error
	Image(ctx context.Context, id uint) (*model.MessageImage, error)

	Reactions(ctx context.Context, messageIDs []uint) ([]model.Reaction, error)
	ToggleReaction(ctx context.Context, messageID uint, partyKey, emoji string) (bool, error)

	SavePushSubscription(ctx context.Context, sub *model.PushSubscription) error
	PushSubscriptions(ctx context.Context, partyKey string) ([]model.PushSubscription, error)
}

// Gorm implements Store on postgres or sqlite.
type Gorm struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Gorm {
	return &Gorm{db: db}
}

func (s *Gorm) DB() *gorm.DB {
	return s.db
}

// isDuplicate matches unique index violations from either backend, whether or
// not the dialector translated them.
func isDuplicate(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *Gorm) CreateUser(ctx context.Context, user *model.User) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.User{}).Where("username = ?", user.Username).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrDuplicate
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

func (s *Gorm) UserByUsername(ctx context.Context, username string) (*model.User, error) {
	user := new(model.User)
	if err := s.db.WithContext(ctx).Where(&model.User{Username: username}).First(user).Error; err != nil {
		return nil, notFound(err)
	}
	return user, nil
}

func (s *Gorm) User(ctx context.Context, id uint) (*model.User, error) {
	user := new(model.User)
	if err := s.db.WithContext(ctx).First(user, id).Error; err != nil {
		return nil, notFound(err)
	}
	return user, nil
}

func (s *Gorm) SavePushSubscription(ctx context.Context, sub *model.PushSubscription) error {
	existing := new(model.PushSubscription)
	err := s.db.WithContext(ctx).
		Where("party_key = ? AND endpoint = ?", sub.PartyKey, sub.Endpoint).
		First(existing).Error
	switch {
	case err == nil:
		return s.db.WithContext(ctx).Model(existing).Update("keys", sub.Keys).Error
	case errors.Is(err, gorm.ErrRecordNotFound):
		return s.db.WithContext(ctx).Create(sub).Error
	default:
		return err
	}
}

func (s *Gorm) PushSubscriptions(ctx context.Context, partyKey string) ([]model.PushSubscription, error) {
	subs := []model.PushSubscription{}
	err := s.db.WithContext(ctx).Where("party_key = ?", partyKey).Order("created_at asc").Find(&subs).Error
	return subs, err
}
