package model

import "time"

// PushSubscription is an opaque browser push endpoint owned by a party.
type PushSubscription struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	PartyKey  string    `gorm:"not null;index;uniqueIndex:idx_push_endpoint,priority:1" json:"party"`
	Endpoint  string    `gorm:"not null;uniqueIndex:idx_push_endpoint,priority:2" json:"endpoint"`
	Keys      string    `json:"keys"`
	CreatedAt time.Time `json:"created_at"`
}
