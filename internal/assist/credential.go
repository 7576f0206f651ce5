package assist

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/openvalet/valet/internal/models"
	"github.com/openvalet/valet/internal/smartcar"
)

// expirySkew is subtracted from the stored expiry before comparing against
// the clock, so a token about to lapse mid-call is refreshed up front.
const expirySkew = 60 * time.Second

// CredentialManager keeps vehicle access tokens usable. Refreshes for the
// same vehicle are serialized so concurrent turns cannot race a rotating
// refresh token.
type CredentialManager struct {
	store Store
	api   VehicleAPI

	// locks holds one mutex per vehicle id seen, kept for the process
	// lifetime; the map stays proportional to the number of vehicles ever
	// loaded.
	mu    sync.Mutex
	locks map[uint]*sync.Mutex
}

// NewCredentialManager creates a CredentialManager.
func NewCredentialManager(st Store, api VehicleAPI) (*CredentialManager, error) {
	if st == nil {
		return nil, errors.New("assist: credential manager requires a store")
	}
	if api == nil {
		return nil, errors.New("assist: credential manager requires a vehicle API")
	}
	return &CredentialManager{
		store: st,
		api:   api,
		locks: make(map[uint]*sync.Mutex),
	}, nil
}

func (m *CredentialManager) vehicleLock(id uint) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	return l
}

// EnsureValid returns a credential for the vehicle that is good for at
// least expirySkew from now, refreshing and persisting through the store
// when it is not. The vehicle is updated in place so callers observe the
// rotated tokens. A vehicle without a stored credential fails with
// FailNotConnected; a rejected refresh marks it disconnected and fails
// with FailRefreshDenied; transient refresh errors leave the stored
// credential untouched.
func (m *CredentialManager) EnsureValid(ctx context.Context, vehicle *models.Vehicle) (smartcar.Credential, error) {
	l := m.vehicleLock(vehicle.ID)
	l.Lock()
	defer l.Unlock()

	if !vehicle.HasCredential() {
		return smartcar.Credential{}, failf(FailNotConnected, fmt.Errorf("vehicle %d has no stored credential", vehicle.ID))
	}

	if time.Now().Before(vehicle.TokenExpiry.Add(-expirySkew)) {
		return smartcar.Credential{
			AccessToken:  vehicle.AccessToken,
			RefreshToken: vehicle.RefreshToken,
			Expiry:       *vehicle.TokenExpiry,
		}, nil
	}

	cred, err := m.api.Refresh(ctx, vehicle.RefreshToken)
	if err != nil {
		if smartcar.KindOf(err) == smartcar.KindUnauthorized {
			if serr := m.store.UpdateVehicleStatus(vehicle.ID, models.VehicleDisconnected); serr != nil {
				log.Printf("assist: failed to mark vehicle %d disconnected: %v", vehicle.ID, serr)
			} else {
				vehicle.Status = models.VehicleDisconnected
			}
			return smartcar.Credential{}, failf(FailRefreshDenied, err)
		}
		return smartcar.Credential{}, failf(FailTransient, err)
	}

	if err := m.store.UpdateVehicleCredential(vehicle.ID, cred.AccessToken, cred.RefreshToken, cred.Expiry); err != nil {
		return smartcar.Credential{}, failf(FailStoreUnavailable, err)
	}
	vehicle.AccessToken = cred.AccessToken
	vehicle.RefreshToken = cred.RefreshToken
	expiry := cred.Expiry
	vehicle.TokenExpiry = &expiry

	if vehicle.Status == models.VehicleError || vehicle.Status == models.VehicleDisconnected {
		if err := m.store.UpdateVehicleStatus(vehicle.ID, models.VehicleActive); err != nil {
			log.Printf("assist: failed to mark vehicle %d active: %v", vehicle.ID, err)
		} else {
			vehicle.Status = models.VehicleActive
		}
	}

	return cred, nil
}
