package dashboard

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"

	"github.com/openvalet/valet/internal/models"
)

// VehicleRow holds vehicle data for display.
type VehicleRow struct {
	ID          uint      `json:"id"`
	Owner       string    `json:"owner"`
	DisplayName string    `json:"display_name"`
	Status      string    `json:"status"`
	ConnectedAt time.Time `json:"connected_at"`
}

// VehicleSummary returns all vehicles with their owner's chat identity.
func VehicleSummary(db *gorm.DB) ([]VehicleRow, error) {
	var vehicles []models.Vehicle
	if err := db.Preload("User").Order("created_at ASC, id ASC").Find(&vehicles).Error; err != nil {
		return nil, err
	}

	rows := make([]VehicleRow, len(vehicles))
	for i, v := range vehicles {
		rows[i] = VehicleRow{
			ID:          v.ID,
			Owner:       v.User.ChatUserID,
			DisplayName: v.DisplayName(),
			Status:      v.Status,
			ConnectedAt: v.CreatedAt,
		}
	}
	return rows, nil
}

// ActionRow holds one audit entry for display.
type ActionRow struct {
	ID          uint      `json:"id"`
	UserID      uint      `json:"user_id"`
	VehicleID   uint      `json:"vehicle_id,omitempty"`
	Action      string    `json:"action"`
	Outcome     string    `json:"outcome"`
	FailureKind string    `json:"failure_kind,omitempty"`
	Confidence  float64   `json:"confidence"`
	CreatedAt   time.Time `json:"created_at"`
}

// RecentActions returns the latest n audit entries, newest first.
func RecentActions(db *gorm.DB, n int) ([]ActionRow, error) {
	var records []models.ActionRecord
	if err := db.Order("created_at DESC, id DESC").Limit(n).Find(&records).Error; err != nil {
		return nil, err
	}

	rows := make([]ActionRow, len(records))
	for i, r := range records {
		rows[i] = ActionRow{
			ID:          r.ID,
			UserID:      r.UserID,
			VehicleID:   r.VehicleID,
			Action:      r.Action,
			Outcome:     r.Outcome,
			FailureKind: r.FailureKind,
			Confidence:  r.Confidence,
			CreatedAt:   r.CreatedAt,
		}
	}
	return rows, nil
}

// TelemetryRow holds one recorded snapshot for display. Data is the raw
// snapshot JSON re-emitted as-is.
type TelemetryRow struct {
	RecordedAt time.Time       `json:"recorded_at"`
	Data       json.RawMessage `json:"data"`
}

// TelemetryHistory returns the latest n snapshots for a vehicle, newest first.
func TelemetryHistory(db *gorm.DB, vehicleID uint, n int) ([]TelemetryRow, error) {
	var records []models.TelemetryRecord
	if err := db.Where("vehicle_id = ?", vehicleID).
		Order("recorded_at DESC, id DESC").Limit(n).Find(&records).Error; err != nil {
		return nil, err
	}

	rows := make([]TelemetryRow, len(records))
	for i, r := range records {
		rows[i] = TelemetryRow{
			RecordedAt: r.RecordedAt,
			Data:       json.RawMessage(r.Data),
		}
	}
	return rows, nil
}
