package view

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yorozuya-cybersecurity/scanwatch/internal/filter"
	"github.com/yorozuya-cybersecurity/scanwatch/internal/logger"
	"github.com/yorozuya-cybersecurity/scanwatch/internal/normalize"
	"github.com/yorozuya-cybersecurity/scanwatch/internal/poller"
	"github.com/yorozuya-cybersecurity/scanwatch/internal/scanapi"
	"github.com/yorozuya-cybersecurity/scanwatch/internal/schema"
	"github.com/yorozuya-cybersecurity/scanwatch/internal/stats"
)

// HistorySnapshot is the filtered scan list. Stats cover every known scan, not only the
// filtered ones.
type HistorySnapshot struct {
	Records   []schema.ScanRecord
	Criteria  filter.Criteria
	Stats     stats.Stats
	Err       error
	Loaded    bool
	UpdatedAt time.Time
}

// History polls the scan list, applies search criteria and handles deletion
type History struct {
	client scanapi.Client
	opts   options
	ctrl   *poller.Controller[[]schema.ScanRecord]
	log    *logrus.Entry
	hub    hub[HistorySnapshot]

	mu        sync.Mutex
	all       []schema.ScanRecord
	criteria  filter.Criteria
	deleted   map[string]struct{}
	err       error
	loaded    bool
	updatedAt time.Time
}

// NewHistory builds an idle history view
func NewHistory(client scanapi.Client, opts ...Option) *History {
	v := &History{
		client:  client,
		opts:    buildOptions(DefaultListInterval, opts),
		log:     logger.WithField("view", "history"),
		deleted: make(map[string]struct{}),
	}
	v.ctrl = poller.New(poller.Config[[]schema.ScanRecord]{
		ViewKey: "history",
		Fetch:   v.fetch,
		Publish: v.apply,
		OnError: v.fail,
		Clock:   v.opts.clock,
	})
	return v
}

func (v *History) fetch(ctx context.Context) ([]schema.ScanRecord, error) {
	raws, err := v.client.ListScans(ctx, v.opts.limit)
	if err != nil {
		return nil, err
	}
	return normalize.NormalizeList(raws), nil
}

func (v *History) apply(records []schema.ScanRecord) {
	v.mu.Lock()
	kept := make([]schema.ScanRecord, 0, len(records))
	for _, r := range records {
		if _, gone := v.deleted[r.ID]; gone {
			continue
		}
		kept = append(kept, r)
	}
	v.all = keepMonotonic(v.all, kept, v.log)
	v.err = nil
	v.loaded = true
	v.updatedAt = v.opts.clock.Now()
	snap := v.snapshotLocked()
	v.mu.Unlock()

	v.hub.publish(snap)
}

func (v *History) fail(err error) {
	v.mu.Lock()
	v.err = err
	snap := v.snapshotLocked()
	v.mu.Unlock()

	v.hub.publish(snap)
}

func (v *History) snapshotLocked() HistorySnapshot {
	return HistorySnapshot{
		Records:   filter.Apply(v.all, v.criteria),
		Criteria:  v.criteria,
		Stats:     stats.Compute(v.all),
		Err:       v.err,
		Loaded:    v.loaded,
		UpdatedAt: v.updatedAt,
	}
}

// Start begins polling every list interval until Stop or ctx is done
func (v *History) Start(ctx context.Context) error {
	return v.ctrl.Start(ctx, v.opts.interval, poller.Always)
}

// Stop ends polling
func (v *History) Stop() { v.ctrl.Stop() }

// Refresh fetches now unless a fetch is already in flight
func (v *History) Refresh(ctx context.Context) bool { return v.ctrl.Refresh(ctx) }

// Snapshot returns the current filtered state
func (v *History) Snapshot() HistorySnapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snapshotLocked()
}

// Subscribe delivers every new snapshot until cancel is called
func (v *History) Subscribe() (<-chan HistorySnapshot, func()) { return v.hub.subscribe() }

// Done is closed when polling has ended
func (v *History) Done() <-chan struct{} { return v.ctrl.Done() }

// SetCriteria re-filters the known records without fetching
func (v *History) SetCriteria(c filter.Criteria) {
	v.mu.Lock()
	v.criteria = c
	snap := v.snapshotLocked()
	v.mu.Unlock()

	v.hub.publish(snap)
}

// Delete removes a scan on the server. Once the server confirms, the record leaves the view
// at once and can no longer be brought back by a list response that was already in flight.
func (v *History) Delete(ctx context.Context, id string) (string, error) {
	msg, err := v.client.DeleteScan(ctx, id)
	if err != nil {
		v.log.WithError(err).WithField("scan_id", id).Warn("delete failed")
		return "", err
	}

	v.mu.Lock()
	v.deleted[id] = struct{}{}
	kept := make([]schema.ScanRecord, 0, len(v.all))
	for _, r := range v.all {
		if r.ID != id {
			kept = append(kept, r)
		}
	}
	v.all = kept
	snap := v.snapshotLocked()
	v.mu.Unlock()

	v.ctrl.Invalidate()
	v.hub.publish(snap)
	v.log.WithField("scan_id", id).Info("scan deleted")
	return msg, nil
}
