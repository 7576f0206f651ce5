package assist

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/openvalet/valet/internal/llm"
	"github.com/openvalet/valet/internal/models"
	"github.com/openvalet/valet/internal/smartcar"
	"github.com/openvalet/valet/internal/store"
)

// stubStore is an in-memory Store with injectable failures.
type stubStore struct {
	mu sync.Mutex

	user    *models.User
	userErr error

	vehicles []models.Vehicle
	listErr  error

	credUpdates []credUpdate
	credErr     error
	statuses    map[uint]string

	turns   []models.ConversationTurn
	actions []models.ActionRecord
}

type credUpdate struct {
	vehicleID    uint
	accessToken  string
	refreshToken string
	expiry       time.Time
}

func newStubStore() *stubStore {
	return &stubStore{
		user:     &models.User{ID: 1, ChatUserID: "telegram:100", FirstName: "Ada"},
		statuses: make(map[uint]string),
	}
}

func (s *stubStore) GetOrCreateUser(store.Identity) (*models.User, error) {
	if s.userErr != nil {
		return nil, s.userErr
	}
	return s.user, nil
}

func (s *stubStore) ListVehicles(uint) ([]models.Vehicle, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.vehicles, nil
}

func (s *stubStore) UpdateVehicleCredential(vehicleID uint, accessToken, refreshToken string, expiry time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.credErr != nil {
		return s.credErr
	}
	s.credUpdates = append(s.credUpdates, credUpdate{vehicleID, accessToken, refreshToken, expiry})
	return nil
}

func (s *stubStore) UpdateVehicleStatus(vehicleID uint, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[vehicleID] = status
	return nil
}

func (s *stubStore) AppendTurn(userID uint, role, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, models.ConversationTurn{UserID: userID, Role: role, Content: content})
	return nil
}

func (s *stubStore) RecentTurns(userID uint, n int) ([]models.ConversationTurn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	turns := s.turns
	if len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	out := make([]models.ConversationTurn, len(turns))
	copy(out, turns)
	return out, nil
}

func (s *stubStore) RecordAction(rec *models.ActionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions = append(s.actions, *rec)
	return nil
}

// stubAPI is an in-memory VehicleAPI with injectable failures and call
// accounting.
type stubAPI struct {
	mu sync.Mutex

	refreshCalls int
	refreshErr   error
	// refreshErrs is consumed one per Refresh call; nil entries (and calls
	// past the end) succeed.
	refreshErrs []error
	refreshCred smartcar.Credential

	telemetry    map[string]*smartcar.Telemetry
	telemetryErr map[string]error

	// sendErrs is consumed one per SendLockCommand call; nil entries (and
	// calls past the end) succeed.
	sendCalls []sendCall
	sendErrs  []error

	inFlight    int
	maxInFlight int
	stall       time.Duration
}

type sendCall struct {
	vehicleID string
	lock      bool
}

func newStubAPI() *stubAPI {
	return &stubAPI{
		refreshCred: smartcar.Credential{
			AccessToken:  "new-access",
			RefreshToken: "new-refresh",
			Expiry:       time.Now().Add(2 * time.Hour),
		},
		telemetry:    make(map[string]*smartcar.Telemetry),
		telemetryErr: make(map[string]error),
	}
}

func (a *stubAPI) Refresh(context.Context, string) (smartcar.Credential, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.refreshCalls++
	if a.refreshErr != nil {
		return smartcar.Credential{}, a.refreshErr
	}
	if n := a.refreshCalls - 1; n < len(a.refreshErrs) && a.refreshErrs[n] != nil {
		return smartcar.Credential{}, a.refreshErrs[n]
	}
	return a.refreshCred, nil
}

func (a *stubAPI) GetTelemetry(_ context.Context, _, vehicleID string) (*smartcar.Telemetry, error) {
	a.mu.Lock()
	a.inFlight++
	if a.inFlight > a.maxInFlight {
		a.maxInFlight = a.inFlight
	}
	stall := a.stall
	a.mu.Unlock()

	if stall > 0 {
		time.Sleep(stall)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.inFlight--
	if err, ok := a.telemetryErr[vehicleID]; ok {
		return nil, err
	}
	if snap, ok := a.telemetry[vehicleID]; ok {
		return snap, nil
	}
	return &smartcar.Telemetry{CapturedAt: time.Now()}, nil
}

func (a *stubAPI) SendLockCommand(_ context.Context, _, vehicleID string, lock bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := len(a.sendCalls)
	a.sendCalls = append(a.sendCalls, sendCall{vehicleID: vehicleID, lock: lock})
	if n < len(a.sendErrs) {
		return a.sendErrs[n]
	}
	return nil
}

// stubLLM returns a canned reply and remembers the last request.
type stubLLM struct {
	reply   string
	err     error
	lastReq llm.Request
}

func (c *stubLLM) Complete(_ context.Context, req llm.Request) (string, error) {
	c.lastReq = req
	if c.err != nil {
		return "", c.err
	}
	return c.reply, nil
}

func testVehicle(id uint, expiry time.Time) models.Vehicle {
	e := expiry
	return models.Vehicle{
		ID:           id,
		UserID:       1,
		ExternalID:   fmt.Sprintf("veh-%d", id),
		Make:         "Tesla",
		Model:        "Model 3",
		Year:         2022,
		Status:       models.VehicleActive,
		AccessToken:  "access",
		RefreshToken: "refresh",
		TokenExpiry:  &e,
	}
}

func newTestCredentialManager(st *stubStore, api *stubAPI) *CredentialManager {
	m, err := NewCredentialManager(st, api)
	if err != nil {
		panic(err)
	}
	return m
}

func newTestBuilder(st *stubStore, api *stubAPI, fanout int) *ContextBuilder {
	b, err := NewContextBuilder(ContextBuilderOpts{
		Store:       st,
		API:         api,
		Credentials: newTestCredentialManager(st, api),
		Fanout:      fanout,
	})
	if err != nil {
		panic(err)
	}
	return b
}
