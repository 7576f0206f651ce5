package models

import "time"

// TelemetryRecord is a persisted point-in-time snapshot of a vehicle's
// readings, written by the scheduled recorder. Data is the JSON rendering
// of the snapshot so the schema stays stable as fields come and go.
type TelemetryRecord struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	VehicleID  uint   `gorm:"not null;index"`
	Data       string `gorm:"type:json"`
	RecordedAt time.Time `gorm:"index"`

	Vehicle Vehicle `gorm:"foreignKey:VehicleID"`
}
