package view

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yorozuya-cybersecurity/scanwatch/internal/logger"
	"github.com/yorozuya-cybersecurity/scanwatch/internal/normalize"
	"github.com/yorozuya-cybersecurity/scanwatch/internal/poller"
	"github.com/yorozuya-cybersecurity/scanwatch/internal/scanapi"
	"github.com/yorozuya-cybersecurity/scanwatch/internal/schema"
)

var ErrNoScan = errors.New("no scan selected")

// DetailSnapshot is the state of a single scan. Record is nil until the first successful
// fetch and again after the scan was deleted or reported missing.
type DetailSnapshot struct {
	ID        string
	Record    *schema.ScanRecord
	NotFound  bool
	Deleted   bool
	Err       error
	UpdatedAt time.Time
}

// Terminal reports whether the scan has finished and polling is over
func (s DetailSnapshot) Terminal() bool {
	return s.Record != nil && s.Record.Status.IsTerminal()
}

type detailResult struct {
	id  string
	rec schema.ScanRecord
}

// Detail polls one scan until it reaches a terminal status
type Detail struct {
	client scanapi.Client
	opts   options
	ctrl   *poller.Controller[detailResult]
	log    *logrus.Entry
	hub    hub[DetailSnapshot]

	mu   sync.Mutex
	snap DetailSnapshot
}

// NewDetail builds an idle detail view for id
func NewDetail(client scanapi.Client, id string, opts ...Option) *Detail {
	v := &Detail{
		client: client,
		opts:   buildOptions(DefaultDetailInterval, opts),
		log:    logger.WithField("view", "detail"),
		snap:   DetailSnapshot{ID: id},
	}
	v.ctrl = poller.New(poller.Config[detailResult]{
		ViewKey: "detail",
		Fetch:   v.fetch,
		Status:  func(detailResult) schema.Status { return v.status() },
		Publish: v.apply,
		OnError: v.fail,
		Halt:    scanapi.IsNotFound,
		Clock:   v.opts.clock,
	})
	return v
}

func (v *Detail) fetch(ctx context.Context) (detailResult, error) {
	v.mu.Lock()
	id := v.snap.ID
	v.mu.Unlock()

	raw, err := v.client.GetScan(ctx, id)
	if err != nil {
		return detailResult{}, err
	}
	rec := normalize.Normalize(raw)
	if rec.ID == "" {
		rec.ID = id
	}
	return detailResult{id: id, rec: rec}, nil
}

func (v *Detail) apply(res detailResult) {
	v.mu.Lock()
	log := v.log.WithField("scan_id", v.snap.ID)
	switch {
	case res.id != v.snap.ID || res.rec.ID != v.snap.ID:
		v.mu.Unlock()
		log.WithField("got", res.rec.ID).Debug("ignoring response for another scan")
		return
	case v.snap.Deleted:
		v.mu.Unlock()
		return
	case v.snap.Record != nil && !v.snap.Record.Status.CanAdvanceTo(res.rec.Status):
		have := v.snap.Record.Status
		v.mu.Unlock()
		log.WithFields(logrus.Fields{"have": have, "got": res.rec.Status}).Debug("refusing status regression")
		return
	}

	rec := res.rec
	v.snap.Record = &rec
	v.snap.NotFound = false
	v.snap.Err = nil
	v.snap.UpdatedAt = v.opts.clock.Now()
	snap := v.snap
	v.mu.Unlock()

	v.hub.publish(snap)
}

func (v *Detail) fail(err error) {
	v.mu.Lock()
	v.snap.Err = err
	if scanapi.IsNotFound(err) {
		v.snap.NotFound = true
		v.snap.Record = nil
	}
	snap := v.snap
	v.mu.Unlock()

	v.hub.publish(snap)
}

// status is what the poller sees after each apply: the last accepted status
func (v *Detail) status() schema.Status {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.snap.Record == nil {
		return schema.StatusPending
	}
	return v.snap.Record.Status
}

// Start polls every detail interval while the scan is pending or running
func (v *Detail) Start(ctx context.Context) error {
	v.mu.Lock()
	id := v.snap.ID
	v.mu.Unlock()
	if id == "" {
		return ErrNoScan
	}
	return v.ctrl.Start(ctx, v.opts.interval, poller.WhileActive)
}

// Show switches the view to another scan and restarts polling. Responses still in flight for
// the previous scan are dropped.
func (v *Detail) Show(ctx context.Context, id string) error {
	v.ctrl.Stop()

	v.mu.Lock()
	v.snap = DetailSnapshot{ID: id}
	snap := v.snap
	v.mu.Unlock()
	v.hub.publish(snap)

	return v.Start(ctx)
}

// Stop ends polling
func (v *Detail) Stop() { v.ctrl.Stop() }

// Refresh fetches now unless a fetch is in flight or the scan is gone
func (v *Detail) Refresh(ctx context.Context) bool {
	v.mu.Lock()
	gone := v.snap.Deleted || v.snap.ID == ""
	v.mu.Unlock()
	if gone {
		return false
	}
	return v.ctrl.Refresh(ctx)
}

// Snapshot returns the current state
func (v *Detail) Snapshot() DetailSnapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snap
}

// Subscribe delivers every new snapshot until cancel is called
func (v *Detail) Subscribe() (<-chan DetailSnapshot, func()) { return v.hub.subscribe() }

// Done is closed when polling has ended, including after a terminal status
func (v *Detail) Done() <-chan struct{} { return v.ctrl.Done() }

// Delete removes the scan on the server, clears the view and stops polling
func (v *Detail) Delete(ctx context.Context) (string, error) {
	v.mu.Lock()
	id := v.snap.ID
	deleted := v.snap.Deleted
	v.mu.Unlock()
	if id == "" || deleted {
		return "", ErrNoScan
	}

	msg, err := v.client.DeleteScan(ctx, id)
	if err != nil {
		v.log.WithError(err).WithField("scan_id", id).Warn("delete failed")
		return "", err
	}

	v.ctrl.Stop()

	v.mu.Lock()
	v.snap.Record = nil
	v.snap.Deleted = true
	v.snap.Err = nil
	snap := v.snap
	v.mu.Unlock()

	v.hub.publish(snap)
	v.log.WithField("scan_id", id).Info("scan deleted")
	return msg, nil
}
