package model

import "gorm.io/gorm"

// User is a visitor account. The operator has no row; it is configured.
type User struct {
	gorm.Model
	Username string `gorm:"uniqueIndex;not null" json:"username"`
	Password string `gorm:"not null" json:"-"`
	Role     string `gorm:"not null;default:visitor" json:"role"`
}
