package model

// Message rows are never updated or deleted. CreatedAt is the server clock in
// unix milliseconds; (CreatedAt, ID) is the ordering key.
type Message struct {
	ID             uint          `gorm:"primaryKey" json:"id"`
	ConversationID uint          `gorm:"not null;index:idx_messages_page,priority:1" json:"conversation_id"`
	IsAdmin        bool          `gorm:"not null;default:false" json:"is_admin"`
	Content        *string       `json:"content"`
	ImageID        *uint         `gorm:"index" json:"image_id"`
	Image          *MessageImage `gorm:"foreignKey:ImageID" json:"image,omitempty"`
	ReplyToID      *uint         `json:"reply_to_id"`
	CreatedAt      int64         `gorm:"autoCreateTime:milli;not null;index:idx_messages_page,priority:2" json:"created_at"`
}

// MessageImage holds the base64 blob separately so page reads stay small.
type MessageImage struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	Data   string `gorm:"not null" json:"-"`
	Mime   string `gorm:"not null" json:"mime"`
	Width  int    `gorm:"not null" json:"width"`
	Height int    `gorm:"not null" json:"height"`
}

// Reaction is one party's emoji on one message. The unique index keeps at most
// one active reaction per party per message.
type Reaction struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	MessageID uint   `gorm:"not null;uniqueIndex:idx_reaction_owner,priority:1" json:"message_id"`
	PartyKey  string `gorm:"not null;uniqueIndex:idx_reaction_owner,priority:2" json:"party"`
	Emoji     string `gorm:"not null" json:"emoji"`
	CreatedAt int64  `gorm:"autoCreateTime:milli;not null" json:"created_at"`
}
