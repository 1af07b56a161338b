package events

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/wildalert/internal/logger"
)

// Config sizes the bus.
type Config struct {
	BufferSize int // queued events before TryPublish starts dropping
	Workers    int
}

// DefaultConfig returns a 1000-event buffer served by two workers.
func DefaultConfig() *Config {
	return &Config{BufferSize: 1000, Workers: 2}
}

// ErrShutdownTimeout is returned when workers outlive the Shutdown timeout.
var ErrShutdownTimeout = errors.New("event bus shutdown timeout exceeded")

// EventBus fans lifecycle events out to consumers on worker goroutines.
// Publishing never blocks: a full buffer drops the event.
type EventBus struct {
	queue   chan LifecycleEvent
	stop    chan struct{}
	workers int
	log     logger.Logger

	regMu     sync.Mutex
	consumers atomic.Pointer[[]EventConsumer] // replaced on register, read lock-free
	started   bool

	accepting atomic.Bool
	stopOnce  sync.Once
	wg        sync.WaitGroup

	received  atomic.Uint64
	processed atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
}

// New creates an idle bus. Workers start with the first registered
// consumer, so a bus nobody listens to accepts nothing.
func New(cfg *Config, log logger.Logger) *EventBus {
	def := DefaultConfig()
	if cfg == nil {
		cfg = def
	}
	size, workers := cfg.BufferSize, cfg.Workers
	if size <= 0 {
		size = def.BufferSize
	}
	if workers <= 0 {
		workers = def.Workers
	}
	if log == nil {
		log = logger.NewDiscardLogger()
	}

	eb := &EventBus{
		queue:   make(chan LifecycleEvent, size),
		stop:    make(chan struct{}),
		workers: workers,
		log:     log,
	}
	eb.consumers.Store(&[]EventConsumer{})
	log.Debug("event bus created", logger.Int("buffer_size", size), logger.Int("workers", workers))
	return eb
}

// RegisterConsumer adds consumer. Names must be unique.
func (eb *EventBus) RegisterConsumer(consumer EventConsumer) error {
	if eb == nil {
		return errors.New("event bus not initialized")
	}

	eb.regMu.Lock()
	defer eb.regMu.Unlock()

	current := *eb.consumers.Load()
	if slices.ContainsFunc(current, func(c EventConsumer) bool { return c.Name() == consumer.Name() }) {
		return fmt.Errorf("consumer %s already registered", consumer.Name())
	}
	next := append(slices.Clip(current), consumer)
	eb.consumers.Store(&next)
	eb.log.Info("registered event consumer", logger.String("consumer", consumer.Name()))

	if !eb.started && !eb.stopped() {
		eb.started = true
		eb.accepting.Store(true)
		for id := range eb.workers {
			eb.wg.Go(func() { eb.run(id) })
		}
	}
	return nil
}

func (eb *EventBus) stopped() bool {
	select {
	case <-eb.stop:
		return true
	default:
		return false
	}
}

// TryPublish queues event and reports whether it was accepted.
func (eb *EventBus) TryPublish(event LifecycleEvent) bool {
	if eb == nil || !eb.accepting.Load() {
		return false
	}
	select {
	case eb.queue <- event:
		eb.received.Add(1)
		return true
	default:
		eb.dropped.Add(1)
		eb.log.Debug("event dropped, buffer full",
			logger.String("kind", string(event.Kind)),
			logger.Uint64("alert_id", event.Alert.ID))
		return false
	}
}

func (eb *EventBus) run(id int) {
	log := eb.log.With(logger.Int("worker_id", id))
	for {
		select {
		case event := <-eb.queue:
			eb.dispatch(event, log)
		case <-eb.stop:
			// accepted events are delivered before the worker exits
			for {
				select {
				case event := <-eb.queue:
					eb.dispatch(event, log)
				default:
					return
				}
			}
		}
	}
}

func (eb *EventBus) dispatch(event LifecycleEvent, log logger.Logger) {
	for _, c := range *eb.consumers.Load() {
		if err := deliver(c, event); err != nil {
			eb.failed.Add(1)
			log.Error("event consumer failed",
				logger.String("consumer", c.Name()),
				logger.String("kind", string(event.Kind)),
				logger.Uint64("alert_id", event.Alert.ID),
				logger.Error(err))
			continue
		}
		eb.processed.Add(1)
	}
}

// deliver turns a consumer panic into an error.
func deliver(c EventConsumer, event LifecycleEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return c.ProcessEvent(event)
}

// Shutdown stops accepting events, lets workers drain the buffer and waits
// up to timeout for them. Calling it again is harmless.
func (eb *EventBus) Shutdown(timeout time.Duration) error {
	if eb == nil {
		return nil
	}
	eb.accepting.Store(false)
	eb.stopOnce.Do(func() { close(eb.stop) })

	done := make(chan struct{})
	go func() {
		eb.wg.Wait()
		close(done)
	}()

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-done:
		eb.log.Info("event bus stopped", logger.Uint64("processed", eb.processed.Load()))
		return nil
	case <-t.C:
		eb.log.Warn("event bus shutdown timed out", logger.Duration("timeout", timeout))
		return ErrShutdownTimeout
	}
}

// GetStats returns a snapshot of the counters.
func (eb *EventBus) GetStats() EventBusStats {
	if eb == nil {
		return EventBusStats{}
	}
	return EventBusStats{
		EventsReceived:  eb.received.Load(),
		EventsProcessed: eb.processed.Load(),
		EventsDropped:   eb.dropped.Load(),
		ConsumerErrors:  eb.failed.Load(),
	}
}
