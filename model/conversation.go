package model

import (
	"time"

	"gorm.io/gorm"
)

// Conversation is the 1:1 channel between one visitor and the operator.
type Conversation struct {
	gorm.Model
	UserID       uint      `gorm:"uniqueIndex;not null" json:"user_id"`
	User         User      `gorm:"foreignKey:UserID" json:"user"`
	LastActivity time.Time `gorm:"index;not null" json:"last_activity"`
}
