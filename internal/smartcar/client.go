// Package smartcar is a client for the Smartcar vehicle API: OAuth token
// lifecycle, telemetry reads, and lock/unlock commands.
package smartcar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultAPIRoot = "https://api.smartcar.com/v2.0"
	defaultTimeout = 10 * time.Second
)

// Client talks to the Smartcar vehicle API. Token acquisition lives in
// auth.go; every method here expects a valid access token.
type Client struct {
	apiRoot    string
	httpClient *http.Client
	auth       *Auth
}

// ClientOpts holds parameters for creating a Client.
type ClientOpts struct {
	Auth    *Auth
	APIRoot string        // defaults to the public Smartcar API
	Timeout time.Duration // per-request timeout, defaults to 10s
}

// NewClient creates a Client.
func NewClient(opts ClientOpts) (*Client, error) {
	if opts.Auth == nil {
		return nil, fmt.Errorf("smartcar: auth is required")
	}
	root := opts.APIRoot
	if root == "" {
		root = defaultAPIRoot
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		apiRoot:    root,
		httpClient: &http.Client{Timeout: timeout},
		auth:       opts.Auth,
	}, nil
}

// Attributes is the basic identity of a vehicle.
type Attributes struct {
	ID    string `json:"id"`
	Make  string `json:"make"`
	Model string `json:"model"`
	Year  int    `json:"year"`
}

// Telemetry is a point-in-time snapshot of vehicle readings. Every field is
// independently optional: vehicles and plans differ in what they expose.
type Telemetry struct {
	OdometerKm     *float64   `json:"odometer_km,omitempty"`
	FuelPercent    *float64   `json:"fuel_percent,omitempty"`
	FuelRangeKm    *float64   `json:"fuel_range_km,omitempty"`
	BatteryPercent *float64   `json:"battery_percent,omitempty"`
	BatteryRangeKm *float64   `json:"battery_range_km,omitempty"`
	Latitude       *float64   `json:"latitude,omitempty"`
	Longitude      *float64   `json:"longitude,omitempty"`
	TireFrontLeft  *float64   `json:"tire_front_left,omitempty"`
	TireFrontRight *float64   `json:"tire_front_right,omitempty"`
	TireRearLeft   *float64   `json:"tire_rear_left,omitempty"`
	TireRearRight  *float64   `json:"tire_rear_right,omitempty"`
	Locked         *bool      `json:"locked,omitempty"`
	CapturedAt     time.Time  `json:"captured_at"`
}

// Empty reports whether no reading came back at all.
func (t *Telemetry) Empty() bool {
	return t.OdometerKm == nil && t.FuelPercent == nil && t.BatteryPercent == nil &&
		t.Latitude == nil && t.TireFrontLeft == nil && t.Locked == nil
}

// Vehicles lists the vehicle ids visible to an access token.
func (c *Client) Vehicles(ctx context.Context, accessToken string) ([]string, error) {
	var out struct {
		Vehicles []string `json:"vehicles"`
	}
	if err := c.get(ctx, accessToken, "/vehicles", &out); err != nil {
		return nil, err
	}
	return out.Vehicles, nil
}

// VehicleAttributes fetches make/model/year for a vehicle.
func (c *Client) VehicleAttributes(ctx context.Context, accessToken, vehicleID string) (*Attributes, error) {
	var out Attributes
	if err := c.get(ctx, accessToken, "/vehicles/"+vehicleID, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetTelemetry fetches all available readings for a vehicle. Fields the
// vehicle does not support are left nil; an unauthorized token aborts
// immediately so the caller can refresh. If no endpoint returned data at
// all, the last failure is returned.
func (c *Client) GetTelemetry(ctx context.Context, accessToken, vehicleID string) (*Telemetry, error) {
	snap := &Telemetry{CapturedAt: time.Now().UTC()}
	base := "/vehicles/" + vehicleID

	var lastErr error
	fetch := func(path string, out interface{}, apply func()) error {
		err := c.get(ctx, accessToken, base+path, out)
		if err == nil {
			apply()
			return nil
		}
		if KindOf(err) == KindUnauthorized {
			return err
		}
		lastErr = err
		return nil
	}

	var odo struct {
		Distance float64 `json:"distance"`
	}
	if err := fetch("/odometer", &odo, func() { snap.OdometerKm = &odo.Distance }); err != nil {
		return nil, err
	}

	var fuel struct {
		PercentRemaining float64 `json:"percentRemaining"`
		Range            float64 `json:"range"`
	}
	if err := fetch("/fuel", &fuel, func() {
		pct := fuel.PercentRemaining * 100
		snap.FuelPercent = &pct
		snap.FuelRangeKm = &fuel.Range
	}); err != nil {
		return nil, err
	}

	var battery struct {
		PercentRemaining float64 `json:"percentRemaining"`
		Range            float64 `json:"range"`
	}
	if err := fetch("/battery", &battery, func() {
		pct := battery.PercentRemaining * 100
		snap.BatteryPercent = &pct
		snap.BatteryRangeKm = &battery.Range
	}); err != nil {
		return nil, err
	}

	var loc struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	}
	if err := fetch("/location", &loc, func() {
		snap.Latitude = &loc.Latitude
		snap.Longitude = &loc.Longitude
	}); err != nil {
		return nil, err
	}

	var tires struct {
		FrontLeft  float64 `json:"frontLeft"`
		FrontRight float64 `json:"frontRight"`
		BackLeft   float64 `json:"backLeft"`
		BackRight  float64 `json:"backRight"`
	}
	if err := fetch("/tires/pressure", &tires, func() {
		snap.TireFrontLeft = &tires.FrontLeft
		snap.TireFrontRight = &tires.FrontRight
		snap.TireRearLeft = &tires.BackLeft
		snap.TireRearRight = &tires.BackRight
	}); err != nil {
		return nil, err
	}

	var security struct {
		IsLocked bool `json:"isLocked"`
	}
	if err := fetch("/security", &security, func() { snap.Locked = &security.IsLocked }); err != nil {
		return nil, err
	}

	if snap.Empty() {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, &APIError{Kind: KindTransient, Message: "no telemetry available"}
	}
	return snap, nil
}

// SendLockCommand locks (lock=true) or unlocks the vehicle.
func (c *Client) SendLockCommand(ctx context.Context, accessToken, vehicleID string, lock bool) error {
	action := "UNLOCK"
	if lock {
		action = "LOCK"
	}
	body, err := json.Marshal(map[string]string{"action": action})
	if err != nil {
		return fmt.Errorf("smartcar: marshal lock command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.apiRoot+"/vehicles/"+vehicleID+"/security", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("smartcar: build lock request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &APIError{Kind: KindTransient, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return responseError(resp)
	}
	return nil
}

// get performs an authorized GET and decodes the JSON body into out.
func (c *Client) get(ctx context.Context, accessToken, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiRoot+path, nil)
	if err != nil {
		return fmt.Errorf("smartcar: build request %s: %w", path, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &APIError{Kind: KindTransient, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return responseError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &APIError{Kind: KindTransient, Message: fmt.Sprintf("decode %s: %v", path, err)}
	}
	return nil
}

// responseError reads an error body and classifies it by status code.
func responseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var apiBody struct {
		Type        string `json:"type"`
		Code        string `json:"code"`
		Description string `json:"description"`
	}
	msg := string(body)
	if err := json.Unmarshal(body, &apiBody); err == nil && apiBody.Description != "" {
		msg = apiBody.Description
	}

	kind := classifyStatus(resp.StatusCode)
	// Smartcar reports missing capabilities as 400 with a typed body.
	if resp.StatusCode == http.StatusBadRequest && apiBody.Type == "VEHICLE_NOT_CAPABLE" {
		kind = KindUnsupported
	}

	return &APIError{Kind: kind, StatusCode: resp.StatusCode, Message: msg}
}
