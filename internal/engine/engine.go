// Package engine implements the alert lifecycle: admission, operator
// verification, role-scoped distribution and read tracking on top of the
// alert store, with change broadcast to subscribers and integrations.
package engine

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/tphakala/wildalert/internal/alert"
	"github.com/tphakala/wildalert/internal/errors"
	"github.com/tphakala/wildalert/internal/events"
	"github.com/tphakala/wildalert/internal/logger"
	"github.com/tphakala/wildalert/internal/notice"
	"github.com/tphakala/wildalert/internal/observability/metrics"
	"github.com/tphakala/wildalert/internal/session"
)

// EventPublisher receives lifecycle events for integrations. *events.EventBus
// satisfies it.
type EventPublisher interface {
	TryPublish(event events.LifecycleEvent) bool
}

// Options wires optional collaborators into an Engine. Zero values are valid.
type Options struct {
	Clock            func() time.Time
	Logger           logger.Logger
	Metrics          *metrics.AlertMetrics
	Notices          *notice.Center
	Events           EventPublisher
	SubscriberBuffer int
}

// Engine owns the alert store and serializes every mutation with its broadcast.
type Engine struct {
	store   *alert.Store
	clock   func() time.Time
	log     logger.Logger
	metrics *metrics.AlertMetrics
	notices *notice.Center
	events  EventPublisher

	// writeMu orders mutate-then-broadcast so subscribers see changes in
	// mutation order.
	writeMu sync.Mutex

	subscribers   []*subscriber
	subscribersMu sync.RWMutex
	subBuffer     int

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates an engine over store.
func New(store *alert.Store, opts Options) *Engine {
	if store == nil {
		store = alert.NewStore()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewDiscardLogger()
	}
	if opts.SubscriberBuffer <= 0 {
		opts.SubscriberBuffer = DefaultSubscriberBuffer
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		store:     store,
		clock:     opts.Clock,
		log:       opts.Logger,
		metrics:   opts.Metrics,
		notices:   opts.Notices,
		events:    opts.Events,
		subBuffer: opts.SubscriberBuffer,
		ctx:       ctx,
		cancel:    cancel,
	}
	e.refreshGauges()
	return e
}

// Store returns the underlying store.
func (e *Engine) Store() *alert.Store {
	return e.store
}

// Now returns the engine clock reading.
func (e *Engine) Now() time.Time {
	return e.clock()
}

// Close cancels every subscription context.
func (e *Engine) Close() {
	e.cancel()
	e.subscribersMu.Lock()
	e.subscribers = nil
	e.subscribersMu.Unlock()
}

// Client binds the engine to a caller identity.
func (e *Engine) Client(p session.Provider) *Client {
	if p == nil {
		p = session.Anonymous()
	}
	return &Client{engine: e, session: p}
}

// Admit appends a detection as a pending alert. It is a system operation used
// by the ingestor and carries no caller identity.
func (e *Engine) Admit(d alert.Detection) (alert.Alert, error) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	a, err := e.store.Admit(d)
	if err != nil {
		e.recordFailure("admit", err)
		return alert.Alert{}, err
	}

	e.metrics.RecordAdmission(string(a.Species))
	e.log.Info("detection admitted",
		logger.Uint64("alert_id", a.ID),
		logger.String("species", string(a.Species)),
		logger.Int("confidence", a.Confidence),
		logger.String("camera", a.SourceCameraID))

	e.publishNotice(notice.AdmissionNotice(&a))
	e.broadcastLocked(ChangeAdmitted, &a, session.RoleNone)
	e.publishEvent(events.KindAdmitted, &a)
	e.refreshGauges()

	return a, nil
}

func (e *Engine) publishNotice(n notice.Notice) {
	if e.notices == nil {
		return
	}
	_, ok := e.notices.Publish(n)
	e.metrics.RecordNotice(n.Audience.String(), ok)
}

func (e *Engine) publishEvent(kind events.Kind, a *alert.Alert) {
	if e.events == nil {
		return
	}
	ev := events.LifecycleEvent{Kind: kind, Alert: *a, OccurredAt: e.clock()}
	ev.Alert.Read = false
	if !e.events.TryPublish(ev) {
		e.log.Debug("lifecycle event not accepted by bus",
			logger.String("kind", string(kind)),
			logger.Uint64("alert_id", a.ID))
	}
}

// broadcastLocked delivers a change to every subscriber allowed to see it.
// readRole restricts read/unread changes to subscribers of that role.
// Caller must hold writeMu.
func (e *Engine) broadcastLocked(kind ChangeKind, a *alert.Alert, readRole session.Role) {
	e.subscribersMu.Lock()
	defer e.subscribersMu.Unlock()

	if len(e.subscribers) == 0 {
		return
	}

	at := e.clock()
	projected := make(map[session.Role]alert.Alert, 2)
	active := e.subscribers[:0]
	for _, sub := range e.subscribers {
		if sub.cancelled() {
			continue
		}
		active = append(active, sub)

		if (kind == ChangeRead || kind == ChangeUnread) && sub.role != readRole {
			continue
		}
		if !alert.VisibleTo(sub.role)(a) {
			continue
		}

		view, ok := projected[sub.role]
		if !ok {
			var err error
			view, err = e.store.Get(a.ID, sub.role)
			if err != nil {
				continue
			}
			projected[sub.role] = view
		}

		e.send(sub, Change{Kind: kind, Alert: view, At: at})
	}
	clear(e.subscribers[len(active):])
	e.subscribers = active
}

// broadcastReadAllLocked sends one read-all change to subscribers of role,
// however many alerts it covers. Caller must hold writeMu.
func (e *Engine) broadcastReadAllLocked(role session.Role, ids []uint64) {
	e.subscribersMu.RLock()
	defer e.subscribersMu.RUnlock()

	at := e.clock()
	for _, sub := range e.subscribers {
		if sub.role != role || sub.cancelled() {
			continue
		}
		e.send(sub, Change{Kind: ChangeReadAll, AlertIDs: slices.Clone(ids), At: at})
	}
}

func (e *Engine) send(sub *subscriber, c Change) {
	select {
	case sub.ch <- c:
	default:
		e.metrics.RecordSubscriberDrop()
		e.log.Warn("subscriber buffer full, change dropped",
			logger.String("kind", string(c.Kind)),
			logger.Uint64("alert_id", c.Alert.ID),
			logger.String("role", sub.role.String()))
	}
}

// sendToOwner delivers a client-local change to that client's subscriptions.
func (e *Engine) sendToOwner(owner *Client, c Change) {
	e.subscribersMu.RLock()
	defer e.subscribersMu.RUnlock()

	for _, sub := range e.subscribers {
		if sub.owner == owner && !sub.cancelled() {
			e.send(sub, c)
		}
	}
}

func (e *Engine) subscribe(owner *Client, role session.Role) (<-chan Change, context.Context) {
	e.subscribersMu.Lock()
	defer e.subscribersMu.Unlock()

	ctx, cancel := context.WithCancel(e.ctx)
	sub := &subscriber{
		ch:     make(chan Change, e.subBuffer),
		ctx:    ctx,
		cancel: cancel,
		role:   role,
		owner:  owner,
	}
	e.subscribers = append(e.subscribers, sub)

	e.log.Debug("subscriber added",
		logger.String("role", role.String()),
		logger.Int("total_subscribers", len(e.subscribers)))

	return sub.ch, ctx
}

func (e *Engine) unsubscribe(ch <-chan Change) {
	e.subscribersMu.Lock()
	defer e.subscribersMu.Unlock()

	for i, sub := range e.subscribers {
		if sub.ch == ch {
			sub.cancel()
			e.subscribers = append(e.subscribers[:i], e.subscribers[i+1:]...)
			e.log.Debug("subscriber removed",
				logger.Int("remaining_subscribers", len(e.subscribers)))
			return
		}
	}
}

// SubscriberCount returns the number of live subscriptions.
func (e *Engine) SubscriberCount() int {
	e.subscribersMu.RLock()
	defer e.subscribersMu.RUnlock()
	return len(e.subscribers)
}

func (e *Engine) refreshGauges() {
	if e.metrics == nil {
		return
	}
	for _, role := range []session.Role{session.RoleOperator, session.RoleRecipient} {
		e.metrics.SetUnread(role.String(), e.store.CountUnread(role, alert.VisibleTo(role)))
	}
	pending := 0
	for _, a := range e.store.Snapshot(session.RoleOperator) {
		if a.IsPending() {
			pending++
		}
	}
	e.metrics.SetPending(pending)
}

func (e *Engine) recordFailure(operation string, err error) {
	category := errors.CategoryOf(err)
	e.metrics.RecordOperationFailure(operation, string(category))
	e.log.Debug("operation rejected",
		logger.String("operation", operation),
		logger.String("category", string(category)),
		logger.Error(err))
}
