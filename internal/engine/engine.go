// Package engine drives the periodic quota refresh loop: resolve credentials,
// fetch user status, parse it into a snapshot, and cache the last good
// reading for consumers.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/j-veylop/cascade-quota-engine/internal/logger"
	"github.com/j-veylop/cascade-quota-engine/internal/models"
	"github.com/j-veylop/cascade-quota-engine/internal/snapshot"
	"github.com/j-veylop/cascade-quota-engine/internal/transport"
)

// State is the engine's refresh lifecycle state.
type State int

const (
	// StateIdle means no refresh has run yet or the last one failed.
	StateIdle State = iota
	// StateResolving means the credential chain is being walked.
	StateResolving
	// StateFetching means the quota API call is in flight.
	StateFetching
	// StateReady means a snapshot is cached.
	StateReady
	// StateFailed means the last refresh errored; the next tick retries.
	StateFailed
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateResolving:
		return "resolving"
	case StateFetching:
		return "fetching"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "idle"
	}
}

// EventType defines the type of engine event.
type EventType int

const (
	// EventRefreshing indicates a refresh cycle has started.
	EventRefreshing EventType = iota
	// EventUpdated indicates a new snapshot has been cached.
	EventUpdated
	// EventNotConfigured indicates no credential source resolved.
	EventNotConfigured
	// EventError indicates the refresh failed after credentials resolved.
	EventError
)

// Event represents an engine event.
type Event struct {
	Error    error
	Snapshot *models.QuotaSnapshot
	Type     EventType
}

// Resolver produces a ready-to-use transport target, or reports that quota
// is not configured anywhere.
type Resolver interface {
	Resolve(ctx context.Context) (*transport.Config, bool)
}

// Recorder persists successful snapshots. May be nil.
type Recorder interface {
	Insert(*models.QuotaSnapshot) error
}

// FetchFunc performs the GetUserStatus call for a resolved target.
type FetchFunc func(ctx context.Context, cfg *transport.Config) ([]byte, error)

// Config holds engine configuration.
type Config struct {
	// PollInterval is the background refresh period.
	PollInterval time.Duration
	// StatusSlot keys the projected status for consumers.
	StatusSlot string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		PollInterval: 2 * time.Minute,
		StatusSlot:   "cascade.quota",
	}
}

// Engine owns the refresh loop and the single cached last-good snapshot. The
// snapshot is replaced wholesale on each successful refresh and never mutated.
type Engine struct {
	mu           sync.RWMutex
	resolver     Resolver
	recorder     Recorder
	fetch        FetchFunc
	snapshot     *models.QuotaSnapshot
	currentModel models.ModelDescriptor
	lastErr      error
	state        State
	config       Config
	eventChan    chan Event
	triggerChan  chan struct{}
	stopChan     chan struct{}
	startOnce    sync.Once
	stopOnce     sync.Once
}

// New creates an engine. recorder may be nil to disable history.
func New(resolver Resolver, recorder Recorder, config Config) *Engine {
	if config.PollInterval == 0 {
		config = DefaultConfig()
	}
	return &Engine{
		resolver:    resolver,
		recorder:    recorder,
		fetch:       fetchUserStatus,
		config:      config,
		eventChan:   make(chan Event, 100),
		triggerChan: make(chan struct{}, 1),
		stopChan:    make(chan struct{}),
	}
}

// SetFetchFunc overrides the fetch implementation. For tests.
func (e *Engine) SetFetchFunc(fetch FetchFunc) {
	e.fetch = fetch
}

// Start launches the background refresh loop. Safe to call once.
func (e *Engine) Start() {
	e.startOnce.Do(func() {
		go e.loop()
	})
}

// Stop shuts the loop down. In-flight requests are not cancelled but carry
// short timeouts, so shutdown latency is bounded by a single request.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.stopChan)
	})
}

// Events returns the event channel.
func (e *Engine) Events() <-chan Event {
	return e.eventChan
}

// Snapshot returns the cached last-good snapshot, or nil if none exists.
func (e *Engine) Snapshot() *models.QuotaSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshot
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// LastError returns the error from the most recent failed refresh.
func (e *Engine) LastError() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastErr
}

// CurrentModel returns the active model descriptor last reported by the host.
func (e *Engine) CurrentModel() models.ModelDescriptor {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.currentModel
}

// ModelChanged records the newly active model and triggers a refresh.
func (e *Engine) ModelChanged(desc models.ModelDescriptor) {
	e.mu.Lock()
	e.currentModel = desc
	e.mu.Unlock()
	e.trigger()
}

// TurnCompleted triggers a refresh after a completed interaction turn.
func (e *Engine) TurnCompleted() {
	e.trigger()
}

// trigger requests an out-of-band refresh; coalesces when one is pending.
func (e *Engine) trigger() {
	select {
	case e.triggerChan <- struct{}{}:
	default:
	}
}

// loop runs the background refresh goroutine.
func (e *Engine) loop() {
	// Initial refresh
	e.refresh(context.Background())

	ticker := time.NewTicker(e.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.refresh(context.Background())
		case <-e.triggerChan:
			e.refresh(context.Background())
		case <-e.stopChan:
			return
		}
	}
}

// Refresh runs one on-demand refresh cycle and returns the tri-state result:
// a snapshot on success, (nil, nil) when quota is not configured, and an
// error when a resolved target could not be fetched or parsed. This is the
// path explicit user refreshes use to surface raw failure messages.
func (e *Engine) Refresh(ctx context.Context) (*models.QuotaSnapshot, error) {
	return e.refresh(ctx)
}

// refresh performs one full cycle. Credentials are re-resolved from scratch
// every time: the underlying process may have restarted with a new secret or
// port since the last tick.
func (e *Engine) refresh(ctx context.Context) (*models.QuotaSnapshot, error) {
	e.setState(StateResolving)
	e.sendEvent(Event{Type: EventRefreshing})

	target, ok := e.resolver.Resolve(ctx)
	if !ok {
		e.mu.Lock()
		e.state = StateIdle
		e.lastErr = nil
		e.mu.Unlock()
		e.sendEvent(Event{Type: EventNotConfigured})
		return nil, nil
	}

	e.setState(StateFetching)

	raw, err := e.fetch(ctx, target)
	if err != nil {
		return nil, e.fail(err)
	}

	snap, err := snapshot.Parse(raw)
	if err != nil {
		return nil, e.fail(err)
	}

	e.mu.Lock()
	e.snapshot = snap
	e.lastErr = nil
	e.state = StateReady
	e.mu.Unlock()

	if e.recorder != nil {
		if err := e.recorder.Insert(snap); err != nil {
			logger.Warn("failed to record snapshot", "error", err)
		}
	}

	e.sendEvent(Event{Type: EventUpdated, Snapshot: snap})
	return snap, nil
}

// fail caches the error and degrades; the next scheduled tick retries.
func (e *Engine) fail(err error) error {
	e.mu.Lock()
	e.lastErr = err
	e.state = StateFailed
	e.mu.Unlock()

	logger.Debug("quota refresh failed", "error", err)
	e.sendEvent(Event{Type: EventError, Error: err})
	return err
}

func (e *Engine) setState(state State) {
	e.mu.Lock()
	e.state = state
	e.mu.Unlock()
}

// sendEvent sends an event to the event channel non-blocking.
func (e *Engine) sendEvent(event Event) {
	select {
	case e.eventChan <- event:
	default:
		// Channel full, drop oldest
		select {
		case <-e.eventChan:
		default:
		}
		select {
		case e.eventChan <- event:
		default:
		}
	}
}

// fetchUserStatus performs the real GetUserStatus call.
func fetchUserStatus(ctx context.Context, cfg *transport.Config) ([]byte, error) {
	client := transport.NewClient(cfg)
	return client.Fetch(ctx, cfg.StatusPath(), nil)
}
