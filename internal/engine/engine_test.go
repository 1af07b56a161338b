package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/wildalert/internal/alert"
	"github.com/tphakala/wildalert/internal/events"
	"github.com/tphakala/wildalert/internal/notice"
	"github.com/tphakala/wildalert/internal/observability/metrics"
	"github.com/tphakala/wildalert/internal/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var testNow = time.Date(2026, 3, 14, 6, 30, 0, 0, time.UTC)

type fixture struct {
	engine    *Engine
	operator  *Client
	recipient *Client
	notices   *notice.Center
	metrics   *metrics.AlertMetrics
	events    *recordingPublisher
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.LifecycleEvent
}

func (r *recordingPublisher) TryPublish(ev events.LifecycleEvent) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return true
}

func (r *recordingPublisher) kinds() []events.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Kind, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	m, err := metrics.NewAlertMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	f := &fixture{
		notices: notice.NewCenter(notice.Config{TTL: time.Hour, RatePerSecond: 100, Burst: 100}, nil),
		metrics: m,
		events:  &recordingPublisher{},
	}
	f.engine = New(alert.NewStore(), Options{
		Clock:   func() time.Time { return testNow },
		Metrics: m,
		Notices: f.notices,
		Events:  f.events,
	})
	t.Cleanup(f.engine.Close)

	f.operator = f.engine.Client(session.NewStatic(session.RoleOperator))
	f.recipient = f.engine.Client(session.NewStatic(session.RoleRecipient))
	return f
}

func (f *fixture) admit(t *testing.T, species alert.Species, confidence int, ago time.Duration) alert.Alert {
	t.Helper()
	a, err := f.engine.Admit(alert.Detection{
		Species:        species,
		Confidence:     confidence,
		DetectedAt:     testNow.Add(-ago),
		Location:       "Core Zone Section A",
		Coordinates:    alert.Coordinates{Lat: 26.8851, Lng: 93.7792},
		SourceCameraID: "cam-001",
		ImageRef:       "frame/cam-001/1",
	})
	require.NoError(t, err)
	return a
}

func (f *fixture) admitN(t *testing.T, n int) []alert.Alert {
	t.Helper()
	out := make([]alert.Alert, 0, n)
	for i := range n {
		out = append(out, f.admit(t, alert.SpeciesTiger, 90, time.Duration(n-i)*time.Minute))
	}
	return out
}

func alertIDs(alerts []alert.Alert) []uint64 {
	out := make([]uint64, 0, len(alerts))
	for i := range alerts {
		out = append(out, alerts[i].ID)
	}
	return out
}

func TestVerifyMakesAlertVisibleToRecipient(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.admitN(t, 6)
	a := f.admit(t, alert.SpeciesTiger, 92, 0)
	require.Equal(t, uint64(7), a.ID)

	visible, err := f.recipient.VisibleAlerts(session.RoleRecipient, nil)
	require.NoError(t, err)
	assert.NotContains(t, alertIDs(visible), uint64(7))

	v, err := f.operator.Verify(7, "Stay indoors")
	require.NoError(t, err)
	assert.Equal(t, alert.StateVerified, v.State)
	assert.Equal(t, "Stay indoors", v.OperatorMessage)

	visible, err = f.recipient.VisibleAlerts(session.RoleRecipient, nil)
	require.NoError(t, err)
	assert.Contains(t, alertIDs(visible), uint64(7))
}

func TestSecondTransitionFails(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	a := f.admit(t, alert.SpeciesTiger, 92, 0)

	_, err := f.operator.Verify(a.ID, "Stay indoors")
	require.NoError(t, err)

	_, err = f.operator.Reject(a.ID)
	require.ErrorIs(t, err, alert.ErrInvalidTransition)

	got, err := f.engine.Store().Get(a.ID, session.RoleOperator)
	require.NoError(t, err)
	assert.Equal(t, alert.StateVerified, got.State)
}

func TestRecipientCannotVerify(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	a := f.admit(t, alert.SpeciesTiger, 92, 0)

	_, err := f.recipient.Verify(a.ID, "x")
	require.ErrorIs(t, err, alert.ErrPermissionDenied)
	assert.False(t, IsUnauthenticated(err))

	_, err = f.recipient.Reject(a.ID)
	require.ErrorIs(t, err, alert.ErrPermissionDenied)

	got, err := f.engine.Store().Get(a.ID, session.RoleOperator)
	require.NoError(t, err)
	assert.Equal(t, alert.StatePending, got.State)
}

func TestEmptyMessageIsValidationError(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.admitN(t, 7)
	a := f.admit(t, alert.SpeciesElephant, 80, 0)
	require.Equal(t, uint64(8), a.ID)

	_, err := f.operator.Verify(8, "")
	require.ErrorIs(t, err, alert.ErrValidation)

	got, err := f.engine.Store().Get(8, session.RoleOperator)
	require.NoError(t, err)
	assert.Equal(t, alert.StatePending, got.State)
}

func TestMarkAllReadLeavesOtherRoleUnread(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	alerts := f.admitN(t, 3)
	_, err := f.operator.Verify(alerts[0].ID, "Tiger near school road")
	require.NoError(t, err)

	opUnread, err := f.operator.UnreadCount(session.RoleOperator)
	require.NoError(t, err)
	require.Equal(t, 3, opUnread)
	rcUnread, err := f.recipient.UnreadCount(session.RoleRecipient)
	require.NoError(t, err)
	require.Equal(t, 1, rcUnread)

	n, err := f.operator.MarkAllRead(session.RoleOperator)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	opUnread, err = f.operator.UnreadCount(session.RoleOperator)
	require.NoError(t, err)
	assert.Zero(t, opUnread)

	rcUnread, err = f.recipient.UnreadCount(session.RoleRecipient)
	require.NoError(t, err)
	assert.Equal(t, 1, rcUnread)

	assert.InDelta(t, 0, testutil.ToFloat64(f.metrics.UnreadAlerts.WithLabelValues("operator")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.UnreadAlerts.WithLabelValues("recipient")), 0)
}

func TestVerifyCheckOrder(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	anon := f.engine.Client(session.Anonymous())

	a := f.admit(t, alert.SpeciesTiger, 92, 0)
	_, err := f.operator.Reject(a.ID)
	require.NoError(t, err)

	tests := []struct {
		name   string
		client *Client
		id     uint64
		msg    string
		want   error
	}{
		{"unauthenticated before existence", anon, 999, "", alert.ErrPermissionDenied},
		{"role before existence", f.recipient, 999, "", alert.ErrPermissionDenied},
		{"existence before state", f.operator, 999, "", alert.ErrNotFound},
		{"state before message", f.operator, a.ID, "", alert.ErrInvalidTransition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.client.Verify(tt.id, tt.msg)
			require.ErrorIs(t, err, tt.want)
		})
	}

	_, err = anon.Verify(a.ID, "x")
	assert.True(t, IsUnauthenticated(err))
}

func TestMarkReadIsIdempotentAndScoped(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	a := f.admit(t, alert.SpeciesBear, 77, 0)

	first, err := f.operator.MarkRead(a.ID)
	require.NoError(t, err)
	assert.True(t, first.Read)

	second, err := f.operator.MarkRead(a.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	unread, err := f.operator.UnreadCount(session.RoleOperator)
	require.NoError(t, err)
	assert.Zero(t, unread)

	back, err := f.operator.MarkUnread(a.ID)
	require.NoError(t, err)
	assert.False(t, back.Read)
}

func TestRecipientCannotTouchHiddenAlerts(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	pending := f.admit(t, alert.SpeciesLeopard, 81, 0)

	_, err := f.recipient.MarkRead(pending.ID)
	require.ErrorIs(t, err, alert.ErrNotFound)

	_, err = f.recipient.FocusAlert(pending.ID)
	require.ErrorIs(t, err, alert.ErrNotFound)

	_, err = f.recipient.PendingAlerts()
	require.ErrorIs(t, err, alert.ErrPermissionDenied)

	_, err = f.recipient.VisibleAlerts(session.RoleOperator, nil)
	require.ErrorIs(t, err, alert.ErrPermissionDenied)

	_, err = f.recipient.UnreadCount(session.RoleOperator)
	require.ErrorIs(t, err, alert.ErrPermissionDenied)
}

func TestMarkAllReadForOtherRoleDenied(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.admitN(t, 2)

	_, err := f.operator.MarkAllRead(session.RoleRecipient)
	require.ErrorIs(t, err, alert.ErrPermissionDenied)

	_, err = f.recipient.MarkAllRead(session.RoleOperator)
	require.ErrorIs(t, err, alert.ErrPermissionDenied)

	_, err = f.engine.Client(session.Anonymous()).MarkAllRead(session.RoleOperator)
	require.ErrorIs(t, err, alert.ErrPermissionDenied)
}

func TestRecipientSeesOnlyVerifiedAfterEveryCall(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	alerts := f.admitN(t, 6)

	check := func() {
		t.Helper()
		visible, err := f.recipient.VisibleAlerts(session.RoleRecipient, nil)
		require.NoError(t, err)
		for _, a := range visible {
			assert.Equal(t, alert.StateVerified, a.State)
			assert.NotEmpty(t, a.OperatorMessage)
		}
	}

	check()
	_, err := f.operator.Verify(alerts[0].ID, "Stay indoors")
	require.NoError(t, err)
	check()
	_, err = f.operator.Reject(alerts[1].ID)
	require.NoError(t, err)
	check()
	_, err = f.operator.MarkRead(alerts[2].ID)
	require.NoError(t, err)
	check()
	_, err = f.operator.MarkAllRead(session.RoleOperator)
	require.NoError(t, err)
	check()

	visible, err := f.recipient.VisibleAlerts(session.RoleRecipient, nil)
	require.NoError(t, err)
	assert.Equal(t, []uint64{alerts[0].ID}, alertIDs(visible))
}

func TestOperatorPartition(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	alerts := f.admitN(t, 3)
	_, err := f.operator.Verify(alerts[0].ID, "Seen near river")
	require.NoError(t, err)

	pending, err := f.operator.PendingAlerts()
	require.NoError(t, err)
	assert.Equal(t, []uint64{alerts[2].ID, alerts[1].ID}, alertIDs(pending))

	all, err := f.operator.VisibleAlerts(session.RoleOperator, nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	preview, err := f.operator.VisibleAlerts(session.RoleRecipient, nil)
	require.NoError(t, err)
	assert.Equal(t, []uint64{alerts[0].ID}, alertIDs(preview))
}

func TestNoticesFollowAudience(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	a := f.admit(t, alert.SpeciesTiger, 92, 0)
	require.Len(t, f.operator.Notices(), 1)
	assert.Empty(t, f.recipient.Notices())

	_, err := f.operator.Verify(a.ID, "Stay indoors")
	require.NoError(t, err)

	rc := f.recipient.Notices()
	require.Len(t, rc, 1)
	assert.Equal(t, "Stay indoors", rc[0].Message)
	assert.Zero(t, rc[0].Confidence)

	assert.Empty(t, f.engine.Client(session.Anonymous()).Notices())
}

func TestEveryLifecycleNoticeIsKeptUnderFloodLimit(t *testing.T) {
	t.Parallel()

	notices := notice.NewCenter(notice.DefaultConfig(), nil)
	e := New(alert.NewStore(), Options{
		Clock:   func() time.Time { return testNow },
		Notices: notices,
	})
	t.Cleanup(e.Close)
	operator := e.Client(session.NewStatic(session.RoleOperator))
	recipient := e.Client(session.NewStatic(session.RoleRecipient))

	const n = 8 // above the default burst
	for i := range n {
		a, err := e.Admit(alert.Detection{
			Species:        alert.SpeciesElephant,
			Confidence:     88,
			DetectedAt:     testNow.Add(-time.Duration(i) * time.Second),
			Location:       "Core Zone Section A",
			Coordinates:    alert.Coordinates{Lat: 26.8851, Lng: 93.7792},
			SourceCameraID: "cam-002",
			ImageRef:       "frame/cam-002/1",
		})
		require.NoError(t, err)
		_, err = operator.Verify(a.ID, "Stay indoors")
		require.NoError(t, err)
	}

	assert.Len(t, operator.Notices(), n)
	rc := recipient.Notices()
	require.Len(t, rc, n)
	for _, got := range rc {
		assert.Equal(t, "Stay indoors", got.Message)
	}
	assert.Positive(t, notices.Quieted())
}

func TestLifecycleEventsPublished(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	a := f.admit(t, alert.SpeciesTiger, 92, 0)
	b := f.admit(t, alert.SpeciesBear, 74, 0)

	_, err := f.operator.Verify(a.ID, "Stay indoors")
	require.NoError(t, err)
	_, err = f.operator.Reject(b.ID)
	require.NoError(t, err)
	_, err = f.operator.MarkRead(a.ID)
	require.NoError(t, err)

	assert.Equal(t, []events.Kind{
		events.KindAdmitted, events.KindAdmitted, events.KindVerified, events.KindRejected,
	}, f.events.kinds())
}

func TestFailureMetrics(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	a := f.admit(t, alert.SpeciesTiger, 92, 0)

	_, _ = f.recipient.Verify(a.ID, "x")
	_, _ = f.operator.Verify(a.ID, "")
	_, _ = f.operator.Reject(404)

	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.OperationFailuresTotal.WithLabelValues("verify", "permission-denied")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.OperationFailuresTotal.WithLabelValues("verify", "validation")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.OperationFailuresTotal.WithLabelValues("reject", "not-found")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.PendingAlerts), 0)
}

func TestSeedDemo(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	require.NoError(t, f.engine.SeedDemo())

	all, err := f.operator.VisibleAlerts(session.RoleOperator, nil)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, alert.SpeciesTiger, all[0].Species)
	assert.Equal(t, testNow.Add(-5*time.Minute), all[0].DetectedAt)
	assert.Equal(t, "Large tiger spotted moving south. Stay alert.", all[0].OperatorMessage)
	assert.Equal(t, alert.SpeciesLeopard, all[2].Species)
	assert.Equal(t, alert.StatePending, all[2].State)

	visible, err := f.recipient.VisibleAlerts(session.RoleRecipient, nil)
	require.NoError(t, err)
	assert.Len(t, visible, 2)
	assert.Empty(t, f.operator.Notices())
	assert.Empty(t, f.events.kinds())
}

func TestConcurrentOperationsKeepInvariants(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	alerts := f.admitN(t, 20)

	var wg sync.WaitGroup
	for i := range alerts {
		id := alerts[i].ID
		wg.Add(3)
		go func() {
			defer wg.Done()
			_, _ = f.operator.Verify(id, "checked")
		}()
		go func() {
			defer wg.Done()
			_, _ = f.operator.Reject(id)
		}()
		go func() {
			defer wg.Done()
			_, _ = f.recipient.MarkRead(id)
			_, _ = f.recipient.VisibleAlerts(session.RoleRecipient, nil)
		}()
	}
	wg.Wait()

	for _, a := range f.engine.Store().Snapshot(session.RoleOperator) {
		assert.True(t, a.State.Terminal())
		assert.Equal(t, a.State == alert.StateVerified, a.OperatorMessage != "")
	}
}
