package models

import "time"

// ConversationTurn stores a single message in a user's conversation history.
// A bounded window of recent turns is replayed to the language model as
// context on every request.
type ConversationTurn struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	UserID    uint   `gorm:"not null;index"`
	Role      string `gorm:"size:16;not null"` // "user" or "assistant"
	Content   string `gorm:"type:text;not null"`
	CreatedAt time.Time

	User User `gorm:"foreignKey:UserID"`
}
