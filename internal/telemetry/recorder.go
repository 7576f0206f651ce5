// Package telemetry periodically snapshots readings from every active
// vehicle so the dashboard has history beyond the last chat turn.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/openvalet/valet/internal/assist"
	"github.com/openvalet/valet/internal/models"
)

// defaultSpec snapshots twice an hour.
const defaultSpec = "*/30 * * * *"

// snapshotFanout bounds concurrent vehicle API calls per sweep.
const snapshotFanout = 3

// Store is the slice of the persistence layer the recorder needs.
type Store interface {
	ListActiveVehicles() ([]models.Vehicle, error)
	RecordTelemetry(vehicleID uint, data string, at time.Time) error
}

// Recorder runs telemetry sweeps on a cron schedule.
type Recorder struct {
	store Store
	api   assist.VehicleAPI
	creds *assist.CredentialManager
	spec  string
	cron  *cron.Cron
	out   io.Writer
}

// RecorderOpts holds parameters for creating a Recorder.
type RecorderOpts struct {
	Store       Store
	API         assist.VehicleAPI
	Credentials *assist.CredentialManager
	Spec        string    // 5-field cron expression, defaults to every 30 minutes
	Out         io.Writer // defaults to os.Stdout
}

// NewRecorder creates a Recorder.
func NewRecorder(opts RecorderOpts) (*Recorder, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("telemetry: store is required")
	}
	if opts.API == nil {
		return nil, fmt.Errorf("telemetry: vehicle API is required")
	}
	if opts.Credentials == nil {
		return nil, fmt.Errorf("telemetry: credential manager is required")
	}
	spec := opts.Spec
	if spec == "" {
		spec = defaultSpec
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	return &Recorder{
		store: opts.Store,
		api:   opts.API,
		creds: opts.Credentials,
		spec:  spec,
		out:   out,
	}, nil
}

// Start schedules the sweep and returns. Call Stop to shut down.
func (r *Recorder) Start() error {
	c := cron.New(cron.WithParser(cron.NewParser(
		cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
	)))
	_, err := c.AddFunc(r.spec, func() {
		if err := r.SnapshotAll(context.Background()); err != nil {
			log.Printf("telemetry: sweep: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("telemetry: schedule %q: %w", r.spec, err)
	}
	c.Start()
	r.cron = c
	fmt.Fprintf(r.out, "telemetry: recording on schedule %q\n", r.spec)
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (r *Recorder) Stop() {
	if r.cron != nil {
		<-r.cron.Stop().Done()
	}
}

// SnapshotAll sweeps every active vehicle once. A vehicle that cannot be
// read is logged and skipped; only a failing vehicle list is an error.
func (r *Recorder) SnapshotAll(ctx context.Context) error {
	vehicles, err := r.store.ListActiveVehicles()
	if err != nil {
		return fmt.Errorf("telemetry: list vehicles: %w", err)
	}
	if len(vehicles) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(snapshotFanout)
	for i := range vehicles {
		v := vehicles[i]
		g.Go(func() error {
			r.snapshot(gctx, v)
			return nil
		})
	}
	_ = g.Wait()
	return nil
}

func (r *Recorder) snapshot(ctx context.Context, vehicle models.Vehicle) {
	cred, err := r.creds.EnsureValid(ctx, &vehicle)
	if err != nil {
		log.Printf("telemetry: vehicle %d credential: %v", vehicle.ID, err)
		return
	}
	snap, err := r.api.GetTelemetry(ctx, cred.AccessToken, vehicle.ExternalID)
	if err != nil {
		log.Printf("telemetry: vehicle %d snapshot: %v", vehicle.ID, err)
		return
	}
	data, err := json.Marshal(snap)
	if err != nil {
		log.Printf("telemetry: vehicle %d marshal: %v", vehicle.ID, err)
		return
	}
	if err := r.store.RecordTelemetry(vehicle.ID, string(data), snap.CapturedAt); err != nil {
		log.Printf("telemetry: vehicle %d persist: %v", vehicle.ID, err)
	}
}
