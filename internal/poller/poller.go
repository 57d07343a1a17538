// Package poller drives view-local refresh cycles.
//
// A Controller owns one view's timer loop. Ticks that arrive while a fetch is still in
// flight are dropped, so a view never has more than one outstanding request. Every fetch
// is stamped with the controller's epoch when it is issued; Stop, Start and Invalidate
// advance the epoch, and a fetch that returns under an older epoch is discarded instead
// of being published.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"github.com/yorozuya-cybersecurity/scanwatch/internal/logger"
	"github.com/yorozuya-cybersecurity/scanwatch/internal/schema"
)

// State of the controller's loop
type State string

const (
	StateIdle      State = "idle"
	StateScheduled State = "scheduled"
	StateFetching  State = "fetching"
)

var ErrAlreadyStarted = errors.New("poller already started")

// Config wires a controller to its view. Publish and OnError run with the controller's
// lock held, so they must not call back into the controller.
type Config[T any] struct {
	ViewKey string
	Fetch   func(ctx context.Context) (T, error)

	// Status extracts the value handed to shouldContinue. Nil reports an empty status.
	Status  func(T) schema.Status
	Publish func(T)
	OnError func(error)

	// Halt reports whether a fetch error ends polling. Nil never halts.
	Halt func(error) bool

	// Clock defaults to the real clock
	Clock clock.WithTicker
}

// Controller schedules fetches for a single view
type Controller[T any] struct {
	cfg Config[T]
	log *logrus.Entry

	mu             sync.Mutex
	state          State
	busy           bool
	epoch          uint64
	stop           chan struct{}
	done           chan struct{}
	shouldContinue func(schema.Status) bool
	lastErr        error
	skipped        int
	wg             sync.WaitGroup
}

// New builds an idle controller
func New[T any](cfg Config[T]) *Controller[T] {
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}
	if cfg.Status == nil {
		cfg.Status = func(T) schema.Status { return "" }
	}
	if cfg.Publish == nil {
		cfg.Publish = func(T) {}
	}
	if cfg.OnError == nil {
		cfg.OnError = func(error) {}
	}
	return &Controller[T]{
		cfg:   cfg,
		log:   logger.WithField("view", cfg.ViewKey),
		state: StateIdle,
	}
}

// Always keeps polling regardless of status
func Always(schema.Status) bool { return true }

// WhileActive keeps polling until the status is terminal
func WhileActive(s schema.Status) bool { return !s.IsTerminal() }

// Start begins the timer loop: idle -> scheduled. The first tick fires immediately.
// The loop also stops when ctx is done.
func (c *Controller[T]) Start(ctx context.Context, interval time.Duration, shouldContinue func(schema.Status) bool) error {
	if interval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", interval)
	}
	if shouldContinue == nil {
		shouldContinue = Always
	}

	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.epoch++
	c.state = StateScheduled
	c.shouldContinue = shouldContinue
	stop := make(chan struct{})
	done := make(chan struct{})
	c.stop, c.done = stop, done
	c.mu.Unlock()

	c.log.WithField("interval", interval.String()).Debug("poller started")
	go c.loop(ctx, interval, stop, done)
	return nil
}

// Stop returns the controller to idle. An in-flight fetch is not cancelled; its result is
// discarded when it arrives.
func (c *Controller[T]) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.haltLocked("stopped")
}

// Invalidate discards any in-flight result without stopping the loop
func (c *Controller[T]) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
}

// Refresh issues an immediate fetch unless one is already in flight. It works while idle
// too, so it can be used to recover after errors or after polling has finished.
func (c *Controller[T]) Refresh(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.issueLocked(ctx, "refresh")
}

// State reports the current loop state
func (c *Controller[T]) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Busy reports whether a fetch is in flight
func (c *Controller[T]) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

// Generation is the current epoch. Results issued under an older epoch are dropped.
func (c *Controller[T]) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}

// LastError is the error of the most recent applied fetch, nil after a success
func (c *Controller[T]) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Skipped counts ticks dropped because a fetch was still in flight
func (c *Controller[T]) Skipped() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.skipped
}

// Done is closed once the current loop has exited. It is already closed when idle.
func (c *Controller[T]) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return c.done
}

// Wait blocks until the loop has exited and no fetch is in flight
func (c *Controller[T]) Wait() {
	<-c.Done()
	c.wg.Wait()
}

func (c *Controller[T]) loop(ctx context.Context, interval time.Duration, stop, done chan struct{}) {
	defer close(done)

	ticker := c.cfg.Clock.NewTicker(interval)
	defer ticker.Stop()

	c.tick(ctx, stop)
	for {
		select {
		case <-ctx.Done():
			c.mu.Lock()
			if c.stop == stop {
				c.haltLocked("context done")
			}
			c.mu.Unlock()
			return
		case <-stop:
			return
		case <-ticker.C():
			c.tick(ctx, stop)
		}
	}
}

func (c *Controller[T]) tick(ctx context.Context, stop chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != stop || c.state == StateIdle {
		return
	}
	c.issueLocked(ctx, "tick")
}

func (c *Controller[T]) issueLocked(ctx context.Context, reason string) bool {
	if c.busy {
		c.skipped++
		c.log.WithField("reason", reason).Debug("fetch in flight, skipping")
		return false
	}
	c.busy = true
	if c.state == StateScheduled {
		c.state = StateFetching
	}
	c.wg.Add(1)
	go c.run(ctx, c.epoch)
	return true
}

func (c *Controller[T]) run(ctx context.Context, epoch uint64) {
	defer c.wg.Done()

	val, err := c.cfg.Fetch(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.busy = false
	if c.state == StateFetching {
		c.state = StateScheduled
	}
	if epoch != c.epoch {
		c.log.WithFields(logrus.Fields{"issued": epoch, "current": c.epoch}).Debug("discarding stale result")
		return
	}

	if err != nil {
		if ctx.Err() != nil {
			return
		}
		c.lastErr = err
		c.log.WithError(err).Warn("poll failed, keeping last result")
		c.cfg.OnError(err)
		if c.cfg.Halt != nil && c.cfg.Halt(err) {
			c.haltLocked("fatal fetch error")
		}
		return
	}

	c.lastErr = nil
	c.cfg.Publish(val)

	status := c.cfg.Status(val)
	if c.state != StateIdle && !c.shouldContinue(status) {
		c.haltLocked(fmt.Sprintf("status %q ends polling", status))
	}
}

func (c *Controller[T]) haltLocked(reason string) {
	if c.state == StateIdle {
		return
	}
	c.state = StateIdle
	c.epoch++
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	c.log.WithField("reason", reason).Debug("poller stopped")
}
