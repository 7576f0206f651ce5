package models

import "time"

// User represents a chat user known to Valet. Users are created on first
// contact and never deleted; display metadata is refreshed opportunistically.
type User struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	ChatUserID string `gorm:"size:128;uniqueIndex;not null"` // platform-scoped id, e.g. "telegram:12345"
	UserName   string `gorm:"size:64"`
	FirstName  string `gorm:"size:64"`
	LastName   string `gorm:"size:64"`
	CreatedAt  time.Time
	UpdatedAt  time.Time

	Vehicles []Vehicle `gorm:"foreignKey:UserID"`
}
