// Package view holds the view-local state of the overview, history and detail screens.
//
// Each view owns one poller.Controller and publishes immutable snapshots. Renderers read a
// Snapshot or Subscribe to updates; they never mutate view state.
package view

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"github.com/yorozuya-cybersecurity/scanwatch/internal/config"
	"github.com/yorozuya-cybersecurity/scanwatch/internal/schema"
)

const (
	DefaultListInterval   = 5 * time.Second
	DefaultDetailInterval = 3 * time.Second
	DefaultListLimit      = 100
)

type options struct {
	interval time.Duration
	limit    int
	clock    clock.WithTicker
}

// Option customizes a view
type Option func(*options)

// WithInterval overrides the refresh cadence
func WithInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.interval = d
		}
	}
}

// WithLimit sets how many scans list views request
func WithLimit(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.limit = n
		}
	}
}

// WithClock injects the clock driving the poller, for tests
func WithClock(c clock.WithTicker) Option {
	return func(o *options) { o.clock = c }
}

// ListOptions maps the poll config onto options for the overview and history views
func ListOptions(cfg config.PollConfig) []Option {
	return []Option{WithInterval(cfg.ListInterval), WithLimit(cfg.ListLimit)}
}

// DetailOptions maps the poll config onto options for the detail view
func DetailOptions(cfg config.PollConfig) []Option {
	return []Option{WithInterval(cfg.DetailInterval)}
}

func buildOptions(interval time.Duration, opts []Option) options {
	o := options{
		interval: interval,
		limit:    DefaultListLimit,
		clock:    clock.RealClock{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// keepMonotonic returns next with every record whose status would move backwards replaced by
// the copy already held in prev.
func keepMonotonic(prev, next []schema.ScanRecord, log *logrus.Entry) []schema.ScanRecord {
	if len(prev) == 0 {
		return next
	}
	held := make(map[string]schema.ScanRecord, len(prev))
	for _, r := range prev {
		if r.ID != "" {
			held[r.ID] = r
		}
	}
	out := make([]schema.ScanRecord, len(next))
	for i, r := range next {
		out[i] = r
		have, ok := held[r.ID]
		if !ok || have.Status.CanAdvanceTo(r.Status) {
			continue
		}
		log.WithFields(logrus.Fields{"scan_id": r.ID, "have": have.Status, "got": r.Status}).
			Debug("refusing status regression")
		out[i] = have
	}
	return out
}

// hub fans snapshots out to subscribers. Each subscriber holds at most the latest snapshot;
// slow readers miss intermediate ones.
type hub[S any] struct {
	mu   sync.Mutex
	subs map[chan S]struct{}
}

func (h *hub[S]) subscribe() (<-chan S, func()) {
	ch := make(chan S, 1)
	h.mu.Lock()
	if h.subs == nil {
		h.subs = make(map[chan S]struct{})
	}
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

func (h *hub[S]) publish(s S) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- s:
		default:
		}
	}
}
