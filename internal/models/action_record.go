package models

import "time"

// ActionRecord is the audit trail for one processed turn: what the
// interpreter decided and how execution ended. VehicleID is zero when the
// turn targeted no vehicle.
type ActionRecord struct {
	ID          uint    `gorm:"primaryKey;autoIncrement"`
	UserID      uint    `gorm:"not null;index"`
	VehicleID   uint    `gorm:"index"`
	Action      string  `gorm:"size:32;not null"`
	Outcome     string  `gorm:"size:16;not null;index"` // success, skipped, failed
	FailureKind string  `gorm:"size:32"`
	Confidence  float64
	CreatedAt   time.Time
}
