// Package store provides the persistence operations consumed by the
// assistant pipeline. It is a thin GORM wrapper: gets return (nil, nil)
// when a record does not exist, and any other error means the database
// itself is unavailable.
package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/openvalet/valet/internal/models"
	"gorm.io/gorm"
)

// Store wraps a GORM connection with the narrow operations Valet needs.
type Store struct {
	db *gorm.DB
}

// New creates a Store.
func New(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("store: db is required")
	}
	return &Store{db: db}, nil
}

// Identity is the platform-provided description of a chat user.
type Identity struct {
	ChatUserID string // platform-scoped, e.g. "telegram:12345"
	UserName   string
	FirstName  string
	LastName   string
}

// GetOrCreateUser fetches the user for a chat identity, creating the record
// on first contact. Display metadata is refreshed when it changed.
func (s *Store) GetOrCreateUser(identity Identity) (*models.User, error) {
	if identity.ChatUserID == "" {
		return nil, fmt.Errorf("store: chat user id is required")
	}

	var user models.User
	err := s.db.Where("chat_user_id = ?", identity.ChatUserID).First(&user).Error
	if err == nil {
		if user.UserName != identity.UserName || user.FirstName != identity.FirstName || user.LastName != identity.LastName {
			user.UserName = identity.UserName
			user.FirstName = identity.FirstName
			user.LastName = identity.LastName
			if err := s.db.Save(&user).Error; err != nil {
				return nil, fmt.Errorf("store: refresh user metadata: %w", err)
			}
		}
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("store: get user %q: %w", identity.ChatUserID, err)
	}

	user = models.User{
		ChatUserID: identity.ChatUserID,
		UserName:   identity.UserName,
		FirstName:  identity.FirstName,
		LastName:   identity.LastName,
	}
	if err := s.db.Create(&user).Error; err != nil {
		return nil, fmt.Errorf("store: create user %q: %w", identity.ChatUserID, err)
	}
	return &user, nil
}

// GetUser fetches a user by primary key. Returns (nil, nil) if not found.
func (s *Store) GetUser(id uint) (*models.User, error) {
	var user models.User
	err := s.db.First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get user %d: %w", id, err)
	}
	return &user, nil
}

// ListVehicles returns all vehicles for a user in creation order.
func (s *Store) ListVehicles(userID uint) ([]models.Vehicle, error) {
	var vehicles []models.Vehicle
	err := s.db.Where("user_id = ?", userID).
		Order("created_at ASC, id ASC").
		Find(&vehicles).Error
	if err != nil {
		return nil, fmt.Errorf("store: list vehicles for user %d: %w", userID, err)
	}
	return vehicles, nil
}

// GetVehicle fetches a vehicle by primary key. Returns (nil, nil) if not found.
func (s *Store) GetVehicle(id uint) (*models.Vehicle, error) {
	var vehicle models.Vehicle
	err := s.db.First(&vehicle, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get vehicle %d: %w", id, err)
	}
	return &vehicle, nil
}

// VehicleByExternalID fetches a vehicle by its Smartcar id. Returns
// (nil, nil) if not found.
func (s *Store) VehicleByExternalID(externalID string) (*models.Vehicle, error) {
	var vehicle models.Vehicle
	err := s.db.Where("external_id = ?", externalID).First(&vehicle).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get vehicle %q: %w", externalID, err)
	}
	return &vehicle, nil
}

// CreateVehicle inserts a new vehicle row.
func (s *Store) CreateVehicle(vehicle *models.Vehicle) error {
	if err := s.db.Create(vehicle).Error; err != nil {
		return fmt.Errorf("store: create vehicle %q: %w", vehicle.ExternalID, err)
	}
	return nil
}

// UpdateVehicleCredential persists a refreshed credential. A credential
// without an expiry is never valid, so a zero expiry is rejected.
func (s *Store) UpdateVehicleCredential(id uint, accessToken, refreshToken string, expiry time.Time) error {
	if accessToken == "" || refreshToken == "" {
		return fmt.Errorf("store: update credential for vehicle %d: tokens are required", id)
	}
	if expiry.IsZero() {
		return fmt.Errorf("store: update credential for vehicle %d: expiry is required", id)
	}

	result := s.db.Model(&models.Vehicle{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"access_token":  accessToken,
			"refresh_token": refreshToken,
			"token_expiry":  expiry,
		})
	if result.Error != nil {
		return fmt.Errorf("store: update credential for vehicle %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("store: update credential: vehicle %d not found", id)
	}
	return nil
}

// UpdateVehicleStatus transitions a vehicle's connection status.
func (s *Store) UpdateVehicleStatus(id uint, status string) error {
	result := s.db.Model(&models.Vehicle{}).
		Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		return fmt.Errorf("store: update status for vehicle %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("store: update status: vehicle %d not found", id)
	}
	return nil
}

// AppendTurn records one conversation message for a user.
func (s *Store) AppendTurn(userID uint, role, content string) error {
	turn := models.ConversationTurn{
		UserID:  userID,
		Role:    role,
		Content: content,
	}
	if err := s.db.Create(&turn).Error; err != nil {
		return fmt.Errorf("store: append turn for user %d: %w", userID, err)
	}
	return nil
}

// RecentTurns returns the last n conversation turns for a user, oldest first.
func (s *Store) RecentTurns(userID uint, n int) ([]models.ConversationTurn, error) {
	var turns []models.ConversationTurn
	err := s.db.Where("user_id = ?", userID).
		Order("id DESC").
		Limit(n).
		Find(&turns).Error
	if err != nil {
		return nil, fmt.Errorf("store: recent turns for user %d: %w", userID, err)
	}
	// Reverse into chronological order.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// RecordAction writes one audit row for a processed turn.
func (s *Store) RecordAction(rec *models.ActionRecord) error {
	if err := s.db.Create(rec).Error; err != nil {
		return fmt.Errorf("store: record action for user %d: %w", rec.UserID, err)
	}
	return nil
}

// RecentActions returns the last n action records across all users,
// newest first.
func (s *Store) RecentActions(n int) ([]models.ActionRecord, error) {
	var recs []models.ActionRecord
	err := s.db.Order("id DESC").Limit(n).Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("store: recent actions: %w", err)
	}
	return recs, nil
}

// RecordTelemetry persists one telemetry snapshot for a vehicle.
func (s *Store) RecordTelemetry(vehicleID uint, data string, at time.Time) error {
	rec := models.TelemetryRecord{
		VehicleID:  vehicleID,
		Data:       data,
		RecordedAt: at,
	}
	if err := s.db.Create(&rec).Error; err != nil {
		return fmt.Errorf("store: record telemetry for vehicle %d: %w", vehicleID, err)
	}
	return nil
}

// ListActiveVehicles returns every vehicle in active status, in creation
// order. Used by the scheduled telemetry recorder.
func (s *Store) ListActiveVehicles() ([]models.Vehicle, error) {
	var vehicles []models.Vehicle
	err := s.db.Where("status = ?", models.VehicleActive).
		Order("created_at ASC, id ASC").
		Find(&vehicles).Error
	if err != nil {
		return nil, fmt.Errorf("store: list active vehicles: %w", err)
	}
	return vehicles, nil
}

// AllVehicles returns every vehicle with its owner, in creation order.
func (s *Store) AllVehicles() ([]models.Vehicle, error) {
	var vehicles []models.Vehicle
	err := s.db.Preload("User").Order("created_at ASC, id ASC").Find(&vehicles).Error
	if err != nil {
		return nil, fmt.Errorf("store: list vehicles: %w", err)
	}
	return vehicles, nil
}
