package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/openvalet/valet/internal/config"
	"github.com/openvalet/valet/internal/db"
	"github.com/openvalet/valet/internal/models"
	"github.com/openvalet/valet/internal/smartcar"
	"github.com/openvalet/valet/internal/store"
)

func testSmartcarConfig() config.SmartcarConfig {
	return config.SmartcarConfig{
		ClientID:     "cid",
		ClientSecret: "csecret",
		RedirectURI:  "https://example.com/callback",
		Mode:         "simulated",
	}
}

func TestConnectCmd_Help(t *testing.T) {
	out, err := runCLI(t, "connect", "--help")
	if err != nil {
		t.Fatalf("connect --help failed: %v", err)
	}
	if !strings.Contains(out, "url") || !strings.Contains(out, "exchange") {
		t.Errorf("expected help to list url and exchange subcommands, got: %s", out)
	}
}

func TestConnectURLCmd(t *testing.T) {
	dir := t.TempDir()
	cfgPath := dir + "/valet.yaml"
	if err := writeTestFile(cfgPath, validTestConfig(dir)); err != nil {
		t.Fatal(err)
	}

	out, err := runCLI(t, "connect", "url", "--config", cfgPath, "--user", "telegram:42")
	if err != nil {
		t.Fatalf("connect url failed: %v", err)
	}
	if !strings.Contains(out, "client_id=cid") {
		t.Errorf("expected auth URL to carry client id, got: %s", out)
	}
	if !strings.Contains(out, "state=telegram%3A42") {
		t.Errorf("expected auth URL to carry the user as state, got: %s", out)
	}
}

func TestConnectURLCmd_RequiresUser(t *testing.T) {
	_, err := runCLI(t, "connect", "url")
	if err == nil {
		t.Fatal("expected error when --user is missing")
	}
}

func TestConnectExchangeCmd_RequiresFlags(t *testing.T) {
	_, err := runCLI(t, "connect", "exchange", "--user", "telegram:42")
	if err == nil {
		t.Fatal("expected error when --code is missing")
	}
}

// fakeSmartcar serves a token endpoint plus the vehicle listing and
// attributes endpoints used by the exchange flow.
func fakeSmartcar(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  "at-1",
			"refresh_token": "rt-1",
			"token_type":    "Bearer",
			"expires_in":    7200,
		})
	})
	mux.HandleFunc("/vehicles", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"vehicles": []string{"sc-1"}})
	})
	mux.HandleFunc("/vehicles/sc-1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(smartcar.Attributes{ID: "sc-1", Make: "Honda", Model: "Civic", Year: 2021})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newExchangeFixture(t *testing.T) (*store.Store, *smartcar.Auth, *smartcar.Client) {
	t.Helper()
	srv := fakeSmartcar(t)

	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatal(err)
	}
	st, err := store.New(gdb)
	if err != nil {
		t.Fatal(err)
	}

	auth, err := smartcar.NewAuth(smartcar.AuthOpts{
		Smartcar: testSmartcarConfig(),
		TokenURL: srv.URL + "/oauth/token",
	})
	if err != nil {
		t.Fatal(err)
	}
	client, err := smartcar.NewClient(smartcar.ClientOpts{Auth: auth, APIRoot: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	return st, auth, client
}

func TestRunConnectExchange_LinksVehicles(t *testing.T) {
	st, auth, client := newExchangeFixture(t)

	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)

	if err := runConnectExchange(cmd, st, auth, client, "telegram:42", "auth-code"); err != nil {
		t.Fatalf("runConnectExchange failed: %v", err)
	}
	if !strings.Contains(buf.String(), "Linked 2021 Honda Civic (sc-1)") {
		t.Errorf("expected linked vehicle line, got: %s", buf.String())
	}

	vehicle, err := st.VehicleByExternalID("sc-1")
	if err != nil {
		t.Fatalf("vehicle lookup: %v", err)
	}
	if vehicle == nil {
		t.Fatal("vehicle was not created")
	}
	if vehicle.AccessToken != "at-1" || vehicle.RefreshToken != "rt-1" {
		t.Errorf("credential not stored: %+v", vehicle)
	}
	if vehicle.Status != "active" {
		t.Errorf("Status = %q, want active", vehicle.Status)
	}

	user, err := st.GetOrCreateUser(store.Identity{ChatUserID: "telegram:42"})
	if err != nil {
		t.Fatal(err)
	}
	if vehicle.UserID != user.ID {
		t.Errorf("vehicle owner = %d, want %d", vehicle.UserID, user.ID)
	}
}

func TestRunConnectExchange_RelinksDisconnectedVehicle(t *testing.T) {
	st, auth, client := newExchangeFixture(t)

	user, err := st.GetOrCreateUser(store.Identity{ChatUserID: "telegram:42"})
	if err != nil {
		t.Fatal(err)
	}
	existing := &models.Vehicle{
		UserID:     user.ID,
		ExternalID: "sc-1",
		Make:       "Honda",
		Model:      "Civic",
		Year:       2021,
		Status:     models.VehicleDisconnected,
	}
	if err := st.CreateVehicle(existing); err != nil {
		t.Fatal(err)
	}

	cmd := newRootCmd()
	cmd.SetOut(new(bytes.Buffer))

	if err := runConnectExchange(cmd, st, auth, client, "telegram:42", "auth-code"); err != nil {
		t.Fatalf("runConnectExchange failed: %v", err)
	}

	vehicle, err := st.VehicleByExternalID("sc-1")
	if err != nil {
		t.Fatalf("vehicle lookup: %v", err)
	}
	if vehicle == nil {
		t.Fatal("vehicle disappeared")
	}
	if vehicle.ID != existing.ID {
		t.Errorf("vehicle id = %d, want the existing row %d", vehicle.ID, existing.ID)
	}
	if vehicle.Status != models.VehicleActive {
		t.Errorf("Status = %q, want %q", vehicle.Status, models.VehicleActive)
	}
	if vehicle.AccessToken != "at-1" || vehicle.RefreshToken != "rt-1" {
		t.Errorf("credential not rotated: %+v", vehicle)
	}

	all, err := st.AllVehicles()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Errorf("vehicle count = %d, want 1 (no duplicate row)", len(all))
	}
}
