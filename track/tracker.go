// Package track implements dual-channel task progress tracking.
//
// A task is observed over two channels at once: a push subscription for low
// latency and status polling as the reliable fallback. Either channel may
// seal the task, but exactly one of them does; after the seal every further
// update from either channel is discarded.
package track

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/filegeek/filegeek-go/log"
	"github.com/filegeek/filegeek-go/metrics"
	"github.com/filegeek/filegeek-go/push"
	"github.com/filegeek/filegeek-go/types"
)

// DefaultFallbackTimer is how long the tracker waits for the first push
// event before activating polling alongside the subscription.
const DefaultFallbackTimer = 3 * time.Second

// DefaultPollInterval is the delay between status polls once polling is
// active.
const DefaultPollInterval = 1500 * time.Millisecond

// DefaultPollFailureBudget is the number of consecutive poll failures
// tolerated before the task is declared lost.
const DefaultPollFailureBudget = 3

// ErrPollBudgetExhausted is returned when polling fails too many times in a
// row with no intervening success.
var ErrPollBudgetExhausted = errors.New("track: poll failure budget exhausted")

// Poller retrieves the current status of a background task.
// Satisfied by the API client.
type Poller interface {
	TaskStatus(ctx context.Context, taskID string) (*types.TaskStatus, error)
}

// Config configures a Tracker.
type Config struct {
	// FallbackTimer is how long to wait for the first push event before
	// starting to poll (default 3s).
	FallbackTimer time.Duration
	// PollInterval is the delay between polls (default 1.5s).
	PollInterval time.Duration
	// PollFailureBudget is the consecutive-failure limit (default 3).
	PollFailureBudget int
	// Logger is an optional logger. Defaults to no-op.
	Logger *log.Logger
	// Collector counts channel activity. Nil is allowed.
	Collector *metrics.Collector
}

// Tracker observes background tasks until they reach a terminal phase.
//
// Thread safety: a Tracker is immutable after construction and safe for
// concurrent Track calls; all per-task state lives in the watch.
type Tracker struct {
	poller     Poller
	subscriber push.Subscriber // nil disables push, polling only
	config     Config
	logger     *log.Logger
	collector  *metrics.Collector
}

// New creates a Tracker. The subscriber may be nil, in which case the
// tracker runs on polling alone from the start.
func New(poller Poller, subscriber push.Subscriber, config Config) (*Tracker, error) {
	if poller == nil {
		return nil, errors.New("track: poller is required")
	}
	if config.FallbackTimer <= 0 {
		config.FallbackTimer = DefaultFallbackTimer
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.PollFailureBudget <= 0 {
		config.PollFailureBudget = DefaultPollFailureBudget
	}
	if config.Logger == nil {
		config.Logger = log.Nop()
	}

	return &Tracker{
		poller:     poller,
		subscriber: subscriber,
		config:     config,
		logger:     config.Logger,
		collector:  config.Collector,
	}, nil
}

// watch is the per-Track state shared by the push and poll goroutines.
//
// Thread safety:
//   - mu guards sealed, final, err, sawPush
//   - seal performs the single terminal transition; first caller wins
//   - done closes exactly once, inside the winning seal
type watch struct {
	mu      sync.Mutex
	sealed  bool
	sawPush bool
	final   *types.Task
	err     error
	done    chan struct{}

	onUpdate func(types.Task)
	pollOnce sync.Once
}

// markPush records that at least one push event arrived.
func (w *watch) markPush() {
	w.mu.Lock()
	w.sawPush = true
	w.mu.Unlock()
}

func (w *watch) pushSeen() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sawPush
}

// update forwards a non-terminal progress observation. Discarded after seal.
func (w *watch) update(task types.Task) {
	w.mu.Lock()
	sealed := w.sealed
	w.mu.Unlock()

	if sealed || w.onUpdate == nil {
		return
	}
	w.onUpdate(task)
}

// seal attempts the terminal transition. Returns true for the winner;
// every later call is a no-op.
func (w *watch) seal(task *types.Task, err error) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.sealed {
		return false
	}
	w.sealed = true
	w.final = task
	w.err = err
	close(w.done)
	return true
}

func (w *watch) outcome() (*types.Task, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.final, w.err
}

// Track observes the task until it reaches a terminal phase, the poll budget
// runs out, or the context is canceled. onUpdate receives non-terminal
// progress observations from whichever channel delivered them; it may be nil.
//
// The returned Task is terminal. A failed task is a sealed outcome, not an
// error: the task carries the failure phase and server-reported message.
func (t *Tracker) Track(ctx context.Context, taskID string, onUpdate func(types.Task)) (*types.Task, error) {
	if taskID == "" {
		return nil, errors.New("track: empty task ID")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := &watch{
		done:     make(chan struct{}),
		onUpdate: onUpdate,
	}

	startPolling := func() {
		w.pollOnce.Do(func() {
			go t.pollLoop(ctx, taskID, w)
		})
	}

	if t.subscriber != nil {
		events, stop, err := t.subscriber.Subscribe(ctx, taskID)
		if err != nil {
			// Push is an optimization. A dead push channel degrades to
			// polling immediately, it never fails the task.
			t.logger.Warn("push subscribe failed, polling only", map[string]any{
				"task_id": taskID,
				"error":   err.Error(),
			})
			startPolling()
		} else {
			defer stop()
			go t.pushLoop(ctx, events, w, startPolling)
			go t.fallbackTimer(ctx, taskID, w, startPolling)
		}
	} else {
		startPolling()
	}

	select {
	case <-w.done:
		return w.outcome()
	case <-ctx.Done():
		return nil, fmt.Errorf("track %s: %w", taskID, ctx.Err())
	}
}

// pushLoop consumes push events until the channel closes or the task seals.
// A closed channel before the seal means the transport died; polling takes
// over.
func (t *Tracker) pushLoop(ctx context.Context, events <-chan types.TaskEvent, w *watch, startPolling func()) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				startPolling()
				return
			}
			w.markPush()

			task := ev.ToTask()
			if task.Terminal() {
				if w.seal(&task, nil) {
					t.collector.IncSealedByPush()
				}
				return
			}
			w.update(task)

		case <-w.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// fallbackTimer activates polling when no push event arrives in time.
// The subscription stays open either way; push may still win the seal.
func (t *Tracker) fallbackTimer(ctx context.Context, taskID string, w *watch, startPolling func()) {
	timer := time.NewTimer(t.config.FallbackTimer)
	defer timer.Stop()

	select {
	case <-timer.C:
		if !w.pushSeen() {
			t.logger.Debug("push silent, activating polling", map[string]any{
				"task_id": taskID,
				"after":   t.config.FallbackTimer.String(),
			})
			t.collector.IncFallbacksFired()
			startPolling()
		}
	case <-w.done:
	case <-ctx.Done():
	}
}

// pollLoop polls task status until the task seals, the failure budget runs
// out, or the context is canceled. The first poll fires immediately.
func (t *Tracker) pollLoop(ctx context.Context, taskID string, w *watch) {
	ticker := time.NewTicker(t.config.PollInterval)
	defer ticker.Stop()

	failures := 0

	for {
		t.collector.IncPollsIssued()
		status, err := t.poller.TaskStatus(ctx, taskID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			t.collector.IncPollFailures()
			t.logger.Warn("poll failed", map[string]any{
				"task_id":  taskID,
				"failures": failures,
				"error":    err.Error(),
			})
			if failures >= t.config.PollFailureBudget {
				w.seal(nil, fmt.Errorf("track %s after %d consecutive poll failures: %w",
					taskID, failures, ErrPollBudgetExhausted))
				return
			}
		} else {
			failures = 0
			task := status.ToTask(taskID)
			if task.Terminal() {
				if w.seal(&task, nil) {
					t.collector.IncSealedByPolling()
				}
				return
			}
			w.update(task)
		}

		select {
		case <-ticker.C:
		case <-w.done:
			return
		case <-ctx.Done():
			return
		}
	}
}
