package dashboard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/openvalet/valet/internal/models"
)

func openTestDB(t *testing.T) *gorm.DB {
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
	return gdb
}

func seedVehicle(t *testing.T, db *gorm.DB) models.Vehicle {
	t.Helper()
	user := models.User{ChatUserID: "telegram:100", FirstName: "Ada"}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	vehicle := models.Vehicle{
		UserID:     user.ID,
		ExternalID: "veh-1",
		Make:       "Tesla",
		Model:      "Model 3",
		Year:       2022,
		Status:     models.VehicleActive,
	}
	if err := db.Create(&vehicle).Error; err != nil {
		t.Fatalf("seed vehicle: %v", err)
	}
	return vehicle
}

func doGET(t *testing.T, db *gorm.DB, path string) *httptest.ResponseRecorder {
	t.Helper()
	router := NewRouter(db)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	router.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	db := openTestDB(t)
	w := doGET(t, db, "/healthz")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestVehiclesEndpoint(t *testing.T) {
	db := openTestDB(t)
	seedVehicle(t, db)

	w := doGET(t, db, "/api/vehicles")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var body struct {
		Vehicles []VehicleRow `json:"vehicles"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Vehicles) != 1 {
		t.Fatalf("vehicles = %d, want 1", len(body.Vehicles))
	}
	v := body.Vehicles[0]
	if v.DisplayName != "2022 Tesla Model 3" || v.Owner != "telegram:100" || v.Status != "active" {
		t.Fatalf("vehicle = %+v", v)
	}
}

func TestActionsEndpoint(t *testing.T) {
	db := openTestDB(t)
	vehicle := seedVehicle(t, db)

	for i, outcome := range []string{"success", "failed", "skipped"} {
		rec := models.ActionRecord{
			UserID:     vehicle.UserID,
			VehicleID:  vehicle.ID,
			Action:     "lock",
			Outcome:    outcome,
			Confidence: 0.9,
			CreatedAt:  time.Now().Add(time.Duration(i) * time.Second),
		}
		if err := db.Create(&rec).Error; err != nil {
			t.Fatalf("seed action: %v", err)
		}
	}

	w := doGET(t, db, "/api/actions?limit=2")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var body struct {
		Actions []ActionRow `json:"actions"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Actions) != 2 {
		t.Fatalf("actions = %d, want 2 (limit)", len(body.Actions))
	}
	// Newest first.
	if body.Actions[0].Outcome != "skipped" {
		t.Fatalf("actions[0] = %+v, want the newest entry", body.Actions[0])
	}
}

func TestTelemetryEndpoint(t *testing.T) {
	db := openTestDB(t)
	vehicle := seedVehicle(t, db)

	rec := models.TelemetryRecord{
		VehicleID:  vehicle.ID,
		Data:       `{"battery_percent":82}`,
		RecordedAt: time.Now(),
	}
	if err := db.Create(&rec).Error; err != nil {
		t.Fatalf("seed telemetry: %v", err)
	}

	w := doGET(t, db, "/api/vehicles/1/telemetry")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var body struct {
		Telemetry []TelemetryRow `json:"telemetry"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Telemetry) != 1 {
		t.Fatalf("telemetry = %d, want 1", len(body.Telemetry))
	}

	var snap map[string]interface{}
	if err := json.Unmarshal(body.Telemetry[0].Data, &snap); err != nil {
		t.Fatalf("snapshot is not raw JSON: %v", err)
	}
	if snap["battery_percent"] != float64(82) {
		t.Fatalf("snapshot = %v", snap)
	}
}

func TestTelemetryEndpointBadID(t *testing.T) {
	db := openTestDB(t)
	w := doGET(t, db, "/api/vehicles/notanumber/telemetry")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}
