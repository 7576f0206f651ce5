package store

import (
	"strings"
	"testing"
	"time"

	"github.com/openvalet/valet/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := gdb.AutoMigrate(
		&models.User{}, &models.Vehicle{}, &models.ConversationTurn{},
		&models.ActionRecord{}, &models.TelemetryRecord{},
	); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	s, err := New(gdb)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestGetOrCreateUser_CreatesOnFirstContact(t *testing.T) {
	s := openTestStore(t)

	user, err := s.GetOrCreateUser(Identity{ChatUserID: "telegram:42", UserName: "alice"})
	if err != nil {
		t.Fatalf("GetOrCreateUser: %v", err)
	}
	if user.ID == 0 {
		t.Fatal("expected user ID to be set")
	}
	if user.ChatUserID != "telegram:42" {
		t.Errorf("ChatUserID = %q, want telegram:42", user.ChatUserID)
	}

	again, err := s.GetOrCreateUser(Identity{ChatUserID: "telegram:42", UserName: "alice"})
	if err != nil {
		t.Fatalf("GetOrCreateUser again: %v", err)
	}
	if again.ID != user.ID {
		t.Errorf("second call created a new user: %d != %d", again.ID, user.ID)
	}
}

func TestGetOrCreateUser_RefreshesMetadata(t *testing.T) {
	s := openTestStore(t)

	user, err := s.GetOrCreateUser(Identity{ChatUserID: "telegram:42", UserName: "alice"})
	if err != nil {
		t.Fatalf("GetOrCreateUser: %v", err)
	}

	updated, err := s.GetOrCreateUser(Identity{ChatUserID: "telegram:42", UserName: "alice_new", FirstName: "Alice"})
	if err != nil {
		t.Fatalf("GetOrCreateUser update: %v", err)
	}
	if updated.ID != user.ID {
		t.Fatalf("expected same user, got %d and %d", user.ID, updated.ID)
	}
	if updated.UserName != "alice_new" || updated.FirstName != "Alice" {
		t.Errorf("metadata not refreshed: %+v", updated)
	}
}

func TestListVehicles_CreationOrder(t *testing.T) {
	s := openTestStore(t)
	user, _ := s.GetOrCreateUser(Identity{ChatUserID: "telegram:1"})

	for _, ext := range []string{"sc-a", "sc-b", "sc-c"} {
		if err := s.CreateVehicle(&models.Vehicle{UserID: user.ID, ExternalID: ext, Status: models.VehicleActive}); err != nil {
			t.Fatalf("CreateVehicle %s: %v", ext, err)
		}
	}

	vehicles, err := s.ListVehicles(user.ID)
	if err != nil {
		t.Fatalf("ListVehicles: %v", err)
	}
	if len(vehicles) != 3 {
		t.Fatalf("len(vehicles) = %d, want 3", len(vehicles))
	}
	for i, want := range []string{"sc-a", "sc-b", "sc-c"} {
		if vehicles[i].ExternalID != want {
			t.Errorf("vehicles[%d].ExternalID = %q, want %q", i, vehicles[i].ExternalID, want)
		}
	}
}

func TestGetVehicle_NotFoundReturnsNil(t *testing.T) {
	s := openTestStore(t)

	vehicle, err := s.GetVehicle(999)
	if err != nil {
		t.Fatalf("GetVehicle: %v", err)
	}
	if vehicle != nil {
		t.Errorf("expected nil for missing vehicle, got %+v", vehicle)
	}
}

func TestUpdateVehicleCredential(t *testing.T) {
	s := openTestStore(t)
	user, _ := s.GetOrCreateUser(Identity{ChatUserID: "telegram:1"})
	v := &models.Vehicle{UserID: user.ID, ExternalID: "sc-1", Status: models.VehicleActive}
	if err := s.CreateVehicle(v); err != nil {
		t.Fatalf("CreateVehicle: %v", err)
	}

	expiry := time.Now().Add(2 * time.Hour).UTC()
	if err := s.UpdateVehicleCredential(v.ID, "new-at", "new-rt", expiry); err != nil {
		t.Fatalf("UpdateVehicleCredential: %v", err)
	}

	got, err := s.GetVehicle(v.ID)
	if err != nil {
		t.Fatalf("GetVehicle: %v", err)
	}
	if got.AccessToken != "new-at" || got.RefreshToken != "new-rt" {
		t.Errorf("tokens = %q/%q, want new-at/new-rt", got.AccessToken, got.RefreshToken)
	}
	if got.TokenExpiry == nil || !got.TokenExpiry.Equal(expiry) {
		t.Errorf("TokenExpiry = %v, want %v", got.TokenExpiry, expiry)
	}
}

func TestUpdateVehicleCredential_RejectsZeroExpiry(t *testing.T) {
	s := openTestStore(t)
	user, _ := s.GetOrCreateUser(Identity{ChatUserID: "telegram:1"})
	v := &models.Vehicle{UserID: user.ID, ExternalID: "sc-1"}
	if err := s.CreateVehicle(v); err != nil {
		t.Fatalf("CreateVehicle: %v", err)
	}

	err := s.UpdateVehicleCredential(v.ID, "at", "rt", time.Time{})
	if err == nil {
		t.Fatal("expected error for zero expiry")
	}
	if !strings.Contains(err.Error(), "expiry is required") {
		t.Errorf("error = %q, want expiry complaint", err)
	}
}

func TestUpdateVehicleStatus(t *testing.T) {
	s := openTestStore(t)
	user, _ := s.GetOrCreateUser(Identity{ChatUserID: "telegram:1"})
	v := &models.Vehicle{UserID: user.ID, ExternalID: "sc-1", Status: models.VehicleActive}
	if err := s.CreateVehicle(v); err != nil {
		t.Fatalf("CreateVehicle: %v", err)
	}

	if err := s.UpdateVehicleStatus(v.ID, models.VehicleDisconnected); err != nil {
		t.Fatalf("UpdateVehicleStatus: %v", err)
	}
	got, _ := s.GetVehicle(v.ID)
	if got.Status != models.VehicleDisconnected {
		t.Errorf("Status = %q, want disconnected", got.Status)
	}

	if err := s.UpdateVehicleStatus(999, models.VehicleActive); err == nil {
		t.Error("expected error for missing vehicle")
	}
}

func TestRecentTurns_ChronologicalWindow(t *testing.T) {
	s := openTestStore(t)
	user, _ := s.GetOrCreateUser(Identity{ChatUserID: "telegram:1"})

	for i, content := range []string{"one", "two", "three", "four"} {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		if err := s.AppendTurn(user.ID, role, content); err != nil {
			t.Fatalf("AppendTurn %q: %v", content, err)
		}
	}

	turns, err := s.RecentTurns(user.ID, 3)
	if err != nil {
		t.Fatalf("RecentTurns: %v", err)
	}
	if len(turns) != 3 {
		t.Fatalf("len(turns) = %d, want 3", len(turns))
	}
	for i, want := range []string{"two", "three", "four"} {
		if turns[i].Content != want {
			t.Errorf("turns[%d].Content = %q, want %q", i, turns[i].Content, want)
		}
	}
}

func TestRecordAction_And_RecentActions(t *testing.T) {
	s := openTestStore(t)
	user, _ := s.GetOrCreateUser(Identity{ChatUserID: "telegram:1"})

	recs := []models.ActionRecord{
		{UserID: user.ID, Action: "lock", Outcome: "success", Confidence: 0.95},
		{UserID: user.ID, Action: "unlock", Outcome: "failed", FailureKind: "refresh_denied", Confidence: 0.9},
	}
	for i := range recs {
		if err := s.RecordAction(&recs[i]); err != nil {
			t.Fatalf("RecordAction: %v", err)
		}
	}

	got, err := s.RecentActions(10)
	if err != nil {
		t.Fatalf("RecentActions: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Action != "unlock" {
		t.Errorf("newest action = %q, want unlock", got[0].Action)
	}
}

func TestListActiveVehicles_FiltersStatus(t *testing.T) {
	s := openTestStore(t)
	user, _ := s.GetOrCreateUser(Identity{ChatUserID: "telegram:1"})

	s.CreateVehicle(&models.Vehicle{UserID: user.ID, ExternalID: "sc-active", Status: models.VehicleActive})
	s.CreateVehicle(&models.Vehicle{UserID: user.ID, ExternalID: "sc-dead", Status: models.VehicleDisconnected})

	vehicles, err := s.ListActiveVehicles()
	if err != nil {
		t.Fatalf("ListActiveVehicles: %v", err)
	}
	if len(vehicles) != 1 || vehicles[0].ExternalID != "sc-active" {
		t.Errorf("active vehicles = %+v, want only sc-active", vehicles)
	}
}

func TestRecordTelemetry(t *testing.T) {
	s := openTestStore(t)
	user, _ := s.GetOrCreateUser(Identity{ChatUserID: "telegram:1"})
	v := &models.Vehicle{UserID: user.ID, ExternalID: "sc-1", Status: models.VehicleActive}
	s.CreateVehicle(v)

	at := time.Now().UTC()
	if err := s.RecordTelemetry(v.ID, `{"odometer_km":12345}`, at); err != nil {
		t.Fatalf("RecordTelemetry: %v", err)
	}
}
