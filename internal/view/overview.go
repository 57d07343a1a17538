package view

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yorozuya-cybersecurity/scanwatch/internal/logger"
	"github.com/yorozuya-cybersecurity/scanwatch/internal/normalize"
	"github.com/yorozuya-cybersecurity/scanwatch/internal/poller"
	"github.com/yorozuya-cybersecurity/scanwatch/internal/scanapi"
	"github.com/yorozuya-cybersecurity/scanwatch/internal/schema"
	"github.com/yorozuya-cybersecurity/scanwatch/internal/stats"
)

// OverviewSnapshot is the dashboard state
type OverviewSnapshot struct {
	Records   []schema.ScanRecord
	Stats     stats.Stats
	Active    *schema.ScanRecord
	Err       error
	Loaded    bool
	UpdatedAt time.Time
}

// Overview polls the recent scan list and keeps dashboard counters current
type Overview struct {
	client scanapi.Client
	opts   options
	ctrl   *poller.Controller[[]schema.ScanRecord]
	log    *logrus.Entry
	hub    hub[OverviewSnapshot]

	mu   sync.Mutex
	snap OverviewSnapshot
}

// NewOverview builds an idle overview. Call Start to begin polling.
func NewOverview(client scanapi.Client, opts ...Option) *Overview {
	v := &Overview{
		client: client,
		opts:   buildOptions(DefaultListInterval, opts),
		log:    logger.WithField("view", "overview"),
	}
	v.ctrl = poller.New(poller.Config[[]schema.ScanRecord]{
		ViewKey: "overview",
		Fetch:   v.fetch,
		Publish: v.apply,
		OnError: v.fail,
		Clock:   v.opts.clock,
	})
	return v
}

func (v *Overview) fetch(ctx context.Context) ([]schema.ScanRecord, error) {
	raws, err := v.client.ListScans(ctx, v.opts.limit)
	if err != nil {
		return nil, err
	}
	return normalize.NormalizeList(raws), nil
}

func (v *Overview) apply(records []schema.ScanRecord) {
	v.mu.Lock()
	records = keepMonotonic(v.snap.Records, records, v.log)
	snap := OverviewSnapshot{
		Records:   records,
		Stats:     stats.Compute(records),
		Loaded:    true,
		UpdatedAt: v.opts.clock.Now(),
	}
	if active, ok := stats.ActiveScan(records); ok {
		snap.Active = &active
	}
	v.snap = snap
	v.mu.Unlock()

	v.hub.publish(snap)
}

func (v *Overview) fail(err error) {
	v.mu.Lock()
	v.snap.Err = err
	snap := v.snap
	v.mu.Unlock()
	v.hub.publish(snap)
}

// Start begins polling every list interval until Stop or ctx is done
func (v *Overview) Start(ctx context.Context) error {
	return v.ctrl.Start(ctx, v.opts.interval, poller.Always)
}

// Stop ends polling. A fetch still in flight is discarded.
func (v *Overview) Stop() { v.ctrl.Stop() }

// Refresh fetches now unless a fetch is already in flight
func (v *Overview) Refresh(ctx context.Context) bool { return v.ctrl.Refresh(ctx) }

// Snapshot returns the current state
func (v *Overview) Snapshot() OverviewSnapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snap
}

// Subscribe delivers every new snapshot until cancel is called
func (v *Overview) Subscribe() (<-chan OverviewSnapshot, func()) { return v.hub.subscribe() }

// Done is closed when polling has ended
func (v *Overview) Done() <-chan struct{} { return v.ctrl.Done() }

// StartScan submits a new scan and refreshes the list so it shows up immediately.
// Validation failures come back as *scanapi.ValidationError.
func (v *Overview) StartScan(ctx context.Context, target, portRange string) (string, error) {
	id, err := v.client.StartScan(ctx, target, portRange)
	if err != nil {
		v.log.WithError(err).Warn("start scan failed")
		return "", err
	}
	v.log.WithFields(logrus.Fields{"scan_id": id, "target": target}).Info("scan submitted")
	v.ctrl.Refresh(ctx)
	return id, nil
}
