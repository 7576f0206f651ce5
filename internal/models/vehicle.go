package models

import (
	"strconv"
	"strings"
	"time"
)

// Vehicle connection statuses.
const (
	VehiclePending      = "pending"
	VehicleActive       = "active"
	VehicleDisconnected = "disconnected"
	VehicleError        = "error"
)

// Vehicle is a connected car owned by exactly one User. The OAuth credential
// columns are mutated only by the credential manager (refresh) and by the
// connection flow (creation).
type Vehicle struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	UserID     uint   `gorm:"not null;index"`
	ExternalID string `gorm:"size:128;uniqueIndex;not null"` // Smartcar vehicle id
	Make       string `gorm:"size:64"`
	Model      string `gorm:"size:64"`
	Year       int
	Status     string `gorm:"size:16;default:pending;index"`

	AccessToken  string `gorm:"size:512"`
	RefreshToken string `gorm:"size:512"`
	TokenExpiry  *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time

	User User `gorm:"foreignKey:UserID"`
}

// DisplayName returns a human-readable name like "2022 Tesla Model 3",
// falling back to "Unknown Vehicle" when no attributes are known.
func (v Vehicle) DisplayName() string {
	var parts []string
	if v.Year > 0 {
		parts = append(parts, strconv.Itoa(v.Year))
	}
	if v.Make != "" {
		parts = append(parts, v.Make)
	}
	if v.Model != "" {
		parts = append(parts, v.Model)
	}
	if len(parts) == 0 {
		return "Unknown Vehicle"
	}
	return strings.Join(parts, " ")
}

// HasCredential reports whether the vehicle carries a usable credential pair.
// An access token without an expiry is treated as absent.
func (v Vehicle) HasCredential() bool {
	return v.AccessToken != "" && v.RefreshToken != "" && v.TokenExpiry != nil
}
