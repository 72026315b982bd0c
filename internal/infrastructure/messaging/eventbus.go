// Package messaging delivers engine events (xp grants, clusters, weight
// refreshes, flushes) to in-process subscribers and relays them to redis.
package messaging

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/alem-hub/skill-progression/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrEventBusClosed is returned when operations are attempted on a closed bus.
	ErrEventBusClosed = errors.New("event bus is closed")

	// ErrHandlerPanic wraps a recovered handler panic.
	ErrHandlerPanic = errors.New("handler panicked")

	// ErrNilHandler is returned by Subscribe for a nil handler.
	ErrNilHandler = errors.New("handler cannot be nil")

	// ErrNilEvent is returned by Publish for a nil event.
	ErrNilEvent = errors.New("event cannot be nil")
)

// ══════════════════════════════════════════════════════════════════════════════
// IN-MEMORY EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// InMemoryEventBus implements shared.EventBus inside one process.
// In sync mode handlers run on the publishing goroutine, in order; in async
// mode each handler runs on a bounded worker pool.
type InMemoryEventBus struct {
	mu          sync.RWMutex
	handlers    map[shared.EventType][]shared.EventHandler
	allHandlers []shared.EventHandler
	asyncMode   bool
	workerPool  chan struct{}
	logger      *slog.Logger
	stats       *Stats
	closed      bool
	closeCh     chan struct{}
	wg          sync.WaitGroup
}

var _ shared.EventBus = (*InMemoryEventBus)(nil)

// InMemoryEventBusConfig contains configuration for InMemoryEventBus.
type InMemoryEventBusConfig struct {
	// AsyncMode enables asynchronous event processing.
	AsyncMode bool

	// WorkerPoolSize bounds concurrent async handlers.
	WorkerPoolSize int

	Logger *slog.Logger
}

// DefaultInMemoryEventBusConfig returns sensible defaults.
func DefaultInMemoryEventBusConfig() InMemoryEventBusConfig {
	return InMemoryEventBusConfig{
		AsyncMode:      true,
		WorkerPoolSize: 8,
	}
}

// NewInMemoryEventBus creates a new in-memory event bus.
func NewInMemoryEventBus(config InMemoryEventBusConfig) *InMemoryEventBus {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.WorkerPoolSize <= 0 {
		config.WorkerPoolSize = 8
	}

	return &InMemoryEventBus{
		handlers:   make(map[shared.EventType][]shared.EventHandler),
		asyncMode:  config.AsyncMode,
		workerPool: make(chan struct{}, config.WorkerPoolSize),
		logger:     config.Logger,
		stats:      newStats(),
		closeCh:    make(chan struct{}),
	}
}

// Subscribe registers a handler for a specific event type.
func (b *InMemoryEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	if handler == nil {
		return ErrNilHandler
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrEventBusClosed
	}
	b.handlers[eventType] = append(b.handlers[eventType], handler)
	b.logger.Debug("subscribed handler", "event_type", eventType)
	return nil
}

// SubscribeAll registers a handler for all events.
func (b *InMemoryEventBus) SubscribeAll(handler shared.EventHandler) error {
	if handler == nil {
		return ErrNilHandler
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrEventBusClosed
	}
	b.allHandlers = append(b.allHandlers, handler)
	b.logger.Debug("subscribed global handler")
	return nil
}

// Publish delivers an event to type subscribers first, then to global ones.
// Handler errors are logged and counted, never returned: publishing is a
// diagnostic side channel and must not fail the operation that emitted it.
func (b *InMemoryEventBus) Publish(event shared.Event) error {
	if event == nil {
		return ErrNilEvent
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrEventBusClosed
	}
	typed := b.handlers[event.EventType()]
	handlers := make([]shared.EventHandler, 0, len(typed)+len(b.allHandlers))
	handlers = append(handlers, typed...)
	handlers = append(handlers, b.allHandlers...)
	if b.asyncMode {
		// Registered under the read lock so Close cannot miss it.
		b.wg.Add(len(handlers))
	}
	b.mu.RUnlock()

	b.stats.recordPublish(event.EventType())

	for _, handler := range handlers {
		if b.asyncMode {
			go b.executeAsync(event, handler)
			continue
		}
		if err := b.execute(event, handler); err != nil {
			b.logger.Error("handler error", "event_type", event.EventType(), "error", err)
		}
	}
	return nil
}

func (b *InMemoryEventBus) executeAsync(event shared.Event, handler shared.EventHandler) {
	defer b.wg.Done()

	select {
	case b.workerPool <- struct{}{}:
		defer func() { <-b.workerPool }()
	case <-b.closeCh:
		b.stats.recordDropped()
		return
	}

	if err := b.execute(event, handler); err != nil {
		b.logger.Error("async handler error", "event_type", event.EventType(), "error", err)
	}
}

func (b *InMemoryEventBus) execute(event shared.Event, handler shared.EventHandler) (err error) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, p)
			b.logger.Error("event handler panic",
				"event_type", event.EventType(),
				"panic", p,
				"stack", string(debug.Stack()),
			)
		}
		b.stats.recordExecution(time.Since(start), err == nil)
	}()
	return handler(event)
}

// Close stops accepting events and waits for in-flight handlers.
// Async handlers still waiting for a worker slot are dropped.
func (b *InMemoryEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.closeCh)
	b.mu.Unlock()

	b.wg.Wait()
	b.logger.Info("event bus closed", "published", b.stats.Snapshot().Published)
	return nil
}

// Drain waits for every async handler started so far, leaving the bus open.
func (b *InMemoryEventBus) Drain() {
	b.wg.Wait()
}

// Stats returns the bus counters.
func (b *InMemoryEventBus) Stats() *Stats {
	return b.stats
}

// ══════════════════════════════════════════════════════════════════════════════
// STATS
// ══════════════════════════════════════════════════════════════════════════════

// Stats tracks event bus counters.
type Stats struct {
	mu            sync.Mutex
	published     map[shared.EventType]int64
	executions    int64
	failures      int64
	dropped       int64
	totalDuration time.Duration
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Published       int64
	PublishedByType map[shared.EventType]int64
	Executions      int64
	Failures        int64
	Dropped         int64
	AverageDuration time.Duration
}

func newStats() *Stats {
	return &Stats{published: make(map[shared.EventType]int64)}
}

func (s *Stats) recordPublish(t shared.EventType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published[t]++
}

func (s *Stats) recordExecution(d time.Duration, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executions++
	s.totalDuration += d
	if !ok {
		s.failures++
	}
}

func (s *Stats) recordDropped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropped++
}

// Snapshot returns a copy of the counters.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := StatsSnapshot{
		PublishedByType: make(map[shared.EventType]int64, len(s.published)),
		Executions:      s.executions,
		Failures:        s.failures,
		Dropped:         s.dropped,
	}
	for t, n := range s.published {
		snap.PublishedByType[t] = n
		snap.Published += n
	}
	if s.executions > 0 {
		snap.AverageDuration = s.totalDuration / time.Duration(s.executions)
	}
	return snap
}
