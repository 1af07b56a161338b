package alert

import (
	"strings"
	"sync"
	"time"

	"github.com/tphakala/wildalert/internal/session"
)

// record is the stored form of an alert. Read flags are kept per role so one
// role acknowledging an alert never changes another role's unread count.
type record struct {
	alert Alert
	read  map[session.Role]bool
}

func (r *record) project(role session.Role) Alert {
	a := r.alert
	a.Read = r.read[role]
	return a
}

// Store is the authoritative in-memory alert collection.
// All mutations happen under the write lock; reads return copies.
type Store struct {
	mu      sync.RWMutex
	records map[uint64]*record
	order   []uint64 // ids in admission order
	nextID  uint64
}

// NewStore creates an empty store. The first admitted alert gets ID 1.
func NewStore() *Store {
	return &Store{
		records: make(map[uint64]*record),
		nextID:  1,
	}
}

// Admit appends a detection as a pending alert, unread for every role.
func (s *Store) Admit(d Detection) (Alert, error) {
	if err := d.Validate(); err != nil {
		return Alert{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := &record{
		alert: Alert{
			ID:             s.nextID,
			Species:        d.Species,
			Confidence:     d.Confidence,
			DetectedAt:     d.DetectedAt,
			Location:       d.Location,
			Coordinates:    d.Coordinates,
			SourceCameraID: d.SourceCameraID,
			ImageRef:       d.ImageRef,
			Daylight:       d.Daylight,
			State:          StatePending,
		},
		read: make(map[session.Role]bool, 2),
	}
	s.records[rec.alert.ID] = rec
	s.order = append(s.order, rec.alert.ID)
	s.nextID++

	return rec.alert, nil
}

// Get returns a copy of one alert with role's read flag.
func (s *Store) Get(id uint64, role session.Role) (Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return Alert{}, notFound(id)
	}
	return rec.project(role), nil
}

// Snapshot returns copies of every alert in admission order with role's read flags.
func (s *Store) Snapshot(role session.Role) []Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Alert, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.records[id].project(role))
	}
	return out
}

// Len returns the number of stored alerts.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Verify moves a pending alert to verified and attaches the operator message.
// Existence is checked first, then state, then the message.
func (s *Store) Verify(id uint64, message string, at time.Time) (Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return Alert{}, notFound(id)
	}
	if !rec.alert.State.CanTransitionTo(StateVerified) {
		return Alert{}, invalidTransition(id, rec.alert.State, StateVerified)
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return Alert{}, emptyMessage(id)
	}

	rec.alert.State = StateVerified
	rec.alert.OperatorMessage = message
	rec.alert.DecidedAt = at
	return rec.alert, nil
}

// Reject moves a pending alert to rejected.
func (s *Store) Reject(id uint64, at time.Time) (Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return Alert{}, notFound(id)
	}
	if !rec.alert.State.CanTransitionTo(StateRejected) {
		return Alert{}, invalidTransition(id, rec.alert.State, StateRejected)
	}

	rec.alert.State = StateRejected
	rec.alert.DecidedAt = at
	return rec.alert, nil
}

// SetRead sets role's read flag on one alert. visible decides whether the
// alert exists from role's point of view; hidden alerts report NotFound.
// changed is false when the flag already had the requested value.
func (s *Store) SetRead(id uint64, role session.Role, read bool, visible func(*Alert) bool) (a Alert, changed bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok || (visible != nil && !visible(&rec.alert)) {
		return Alert{}, false, notFound(id)
	}
	if rec.read[role] != read {
		rec.read[role] = read
		changed = true
	}
	return rec.project(role), changed, nil
}

// MarkAllRead sets role's read flag on every alert accepted by visible and
// returns the alerts whose flag changed, in admission order.
func (s *Store) MarkAllRead(role session.Role, visible func(*Alert) bool) []Alert {
	s.mu.Lock()
	defer s.mu.Unlock()

	var changed []Alert
	for _, id := range s.order {
		rec := s.records[id]
		if visible != nil && !visible(&rec.alert) {
			continue
		}
		if rec.read[role] {
			continue
		}
		rec.read[role] = true
		changed = append(changed, rec.project(role))
	}
	return changed
}

// CountUnread counts alerts accepted by visible whose read flag for role is false.
func (s *Store) CountUnread(role session.Role, visible func(*Alert) bool) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, id := range s.order {
		rec := s.records[id]
		if visible != nil && !visible(&rec.alert) {
			continue
		}
		if !rec.read[role] {
			n++
		}
	}
	return n
}
