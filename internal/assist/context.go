package assist

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/openvalet/valet/internal/models"
	"github.com/openvalet/valet/internal/smartcar"
)

// unknownValue is rendered for any reading a vehicle did not report.
const unknownValue = "unknown"

// VehicleContext is one vehicle's slot in a context summary. Telemetry is
// nil when the snapshot could not be taken; Unavailable then carries a
// short, user-safe reason.
type VehicleContext struct {
	Vehicle     models.Vehicle
	Telemetry   *smartcar.Telemetry
	Unavailable string
}

// ContextSummary is everything the language model gets to see about the
// user's garage for one turn.
type ContextSummary struct {
	Vehicles []VehicleContext
}

// ContextBuilder assembles a ContextSummary by snapshotting every vehicle
// a user has connected, a bounded number of them at a time.
type ContextBuilder struct {
	store  Store
	api    VehicleAPI
	creds  *CredentialManager
	fanout int
}

// ContextBuilderOpts holds parameters for creating a ContextBuilder.
type ContextBuilderOpts struct {
	Store       Store
	API         VehicleAPI
	Credentials *CredentialManager
	Fanout      int // concurrent telemetry fetches, defaults to 3
}

// NewContextBuilder creates a ContextBuilder.
func NewContextBuilder(opts ContextBuilderOpts) (*ContextBuilder, error) {
	if opts.Store == nil {
		return nil, errors.New("assist: context builder requires a store")
	}
	if opts.API == nil {
		return nil, errors.New("assist: context builder requires a vehicle API")
	}
	if opts.Credentials == nil {
		return nil, errors.New("assist: context builder requires a credential manager")
	}
	fanout := opts.Fanout
	if fanout <= 0 {
		fanout = 3
	}
	return &ContextBuilder{
		store:  opts.Store,
		api:    opts.API,
		creds:  opts.Credentials,
		fanout: fanout,
	}, nil
}

// Build snapshots all of the user's vehicles. A vehicle whose credential or
// telemetry fetch fails still occupies its slot, with a placeholder reason,
// so one bad vehicle never hides the others. Only a failing vehicle list
// read is an error.
func (b *ContextBuilder) Build(ctx context.Context, user *models.User) (*ContextSummary, error) {
	vehicles, err := b.store.ListVehicles(user.ID)
	if err != nil {
		return nil, failf(FailStoreUnavailable, err)
	}

	summary := &ContextSummary{Vehicles: make([]VehicleContext, len(vehicles))}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.fanout)
	for i := range vehicles {
		i := i
		g.Go(func() error {
			v := vehicles[i]
			slot := &summary.Vehicles[i]
			slot.Vehicle = v

			cred, err := b.creds.EnsureValid(gctx, &slot.Vehicle)
			if err != nil {
				slot.Unavailable = placeholderReason(KindOf(err))
				return nil
			}
			snap, err := b.api.GetTelemetry(gctx, cred.AccessToken, v.ExternalID)
			if err != nil {
				slot.Unavailable = placeholderReason(KindOf(fromAPIError(err)))
				return nil
			}
			slot.Telemetry = snap
			return nil
		})
	}
	// Goroutines never return errors; Wait just joins them.
	_ = g.Wait()

	return summary, nil
}

// placeholderReason maps a failure kind to the short reason shown in a
// vehicle's context slot.
func placeholderReason(kind FailureKind) string {
	switch kind {
	case FailNotConnected:
		return "not connected"
	case FailRefreshDenied, FailUnauthorized:
		return "reconnection required"
	case FailUnsupported:
		return "telemetry not supported"
	case FailStoreUnavailable:
		return "temporarily unavailable"
	default:
		return "temporarily unavailable"
	}
}

// Render produces the deterministic plain-text block handed to the
// language model. Every field a vehicle can report appears on its own
// "name: value" line, with unknownValue standing in for missing readings,
// so the model sees the same shape for every vehicle.
func (s *ContextSummary) Render() string {
	if len(s.Vehicles) == 0 {
		return "No vehicles connected."
	}

	var sb strings.Builder
	sb.WriteString("Connected vehicles:\n")
	for i, vc := range s.Vehicles {
		fmt.Fprintf(&sb, "%d. %s (status: %s)\n", i+1, vc.Vehicle.DisplayName(), vc.Vehicle.Status)
		if vc.Telemetry == nil {
			fmt.Fprintf(&sb, "   telemetry: unavailable (%s)\n", vc.Unavailable)
			continue
		}
		t := vc.Telemetry
		writeField(&sb, "odometer_km", floatValue(t.OdometerKm))
		writeField(&sb, "fuel_percent", floatValue(t.FuelPercent))
		writeField(&sb, "fuel_range_km", floatValue(t.FuelRangeKm))
		writeField(&sb, "battery_percent", floatValue(t.BatteryPercent))
		writeField(&sb, "battery_range_km", floatValue(t.BatteryRangeKm))
		writeField(&sb, "latitude", floatValue(t.Latitude))
		writeField(&sb, "longitude", floatValue(t.Longitude))
		writeField(&sb, "tire_front_left_kpa", floatValue(t.TireFrontLeft))
		writeField(&sb, "tire_front_right_kpa", floatValue(t.TireFrontRight))
		writeField(&sb, "tire_rear_left_kpa", floatValue(t.TireRearLeft))
		writeField(&sb, "tire_rear_right_kpa", floatValue(t.TireRearRight))
		writeField(&sb, "locked", boolValue(t.Locked))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func writeField(sb *strings.Builder, name, value string) {
	fmt.Fprintf(sb, "   %s: %s\n", name, value)
}

func floatValue(v *float64) string {
	if v == nil {
		return unknownValue
	}
	return fmt.Sprintf("%.1f", *v)
}

func boolValue(v *bool) string {
	if v == nil {
		return unknownValue
	}
	return fmt.Sprintf("%t", *v)
}
