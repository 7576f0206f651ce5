package assist

import (
	"context"
	"time"

	"github.com/openvalet/valet/internal/models"
	"github.com/openvalet/valet/internal/smartcar"
	"github.com/openvalet/valet/internal/store"
)

// Store is the slice of the persistence layer the pipeline depends on.
// *store.Store satisfies it; tests substitute stubs.
type Store interface {
	GetOrCreateUser(id store.Identity) (*models.User, error)
	ListVehicles(userID uint) ([]models.Vehicle, error)
	UpdateVehicleCredential(vehicleID uint, accessToken, refreshToken string, expiry time.Time) error
	UpdateVehicleStatus(vehicleID uint, status string) error
	AppendTurn(userID uint, role, content string) error
	RecentTurns(userID uint, n int) ([]models.ConversationTurn, error)
	RecordAction(rec *models.ActionRecord) error
}

// VehicleAPI is the slice of the vehicle platform the pipeline depends on.
// *smartcar.API satisfies it.
type VehicleAPI interface {
	Refresh(ctx context.Context, refreshToken string) (smartcar.Credential, error)
	GetTelemetry(ctx context.Context, accessToken, vehicleID string) (*smartcar.Telemetry, error)
	SendLockCommand(ctx context.Context, accessToken, vehicleID string, lock bool) error
}
