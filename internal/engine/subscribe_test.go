package engine

import (
	"testing"
	"time"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/wildalert/internal/alert"
	"github.com/tphakala/wildalert/internal/session"
	"github.com/tphakala/wildalert/internal/testutil"
)

func drain(ch <-chan Change) []Change {
	var out []Change
	for {
		select {
		case c := <-ch:
			out = append(out, c)
		default:
			return out
		}
	}
}

func kinds(changes []Change) []ChangeKind {
	out := make([]ChangeKind, 0, len(changes))
	for _, c := range changes {
		out = append(out, c.Kind)
	}
	return out
}

func TestSubscriptionsAreRoleFiltered(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	opCh, _ := f.operator.Subscribe()
	rcCh, _ := f.recipient.Subscribe()

	a := f.admit(t, alert.SpeciesTiger, 92, 0)
	b := f.admit(t, alert.SpeciesBear, 70, 0)
	_, err := f.operator.Verify(a.ID, "Stay indoors")
	require.NoError(t, err)
	_, err = f.operator.Reject(b.ID)
	require.NoError(t, err)

	op := drain(opCh)
	assert.Equal(t, []ChangeKind{ChangeAdmitted, ChangeAdmitted, ChangeVerified, ChangeRejected}, kinds(op))

	rc := drain(rcCh)
	require.Len(t, rc, 1)
	assert.Equal(t, ChangeVerified, rc[0].Kind)
	assert.Equal(t, a.ID, rc[0].Alert.ID)
	assert.Equal(t, "Stay indoors", rc[0].Alert.OperatorMessage)
}

func TestReadChangesOnlyReachOwnRole(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	a := f.admit(t, alert.SpeciesTiger, 92, 0)
	_, err := f.operator.Verify(a.ID, "Stay indoors")
	require.NoError(t, err)

	opCh, _ := f.operator.Subscribe()
	rcCh, _ := f.recipient.Subscribe()

	_, err = f.recipient.MarkRead(a.ID)
	require.NoError(t, err)

	assert.Empty(t, drain(opCh))
	rc := drain(rcCh)
	require.Len(t, rc, 1)
	assert.Equal(t, ChangeRead, rc[0].Kind)
	assert.True(t, rc[0].Alert.Read)

	// repeated mark changes nothing and broadcasts nothing
	_, err = f.recipient.MarkRead(a.ID)
	require.NoError(t, err)
	assert.Empty(t, drain(rcCh))
}

func TestChangesArriveInMutationOrder(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ch, _ := f.operator.Subscribe()

	for range 10 {
		f.admit(t, alert.SpeciesElephant, 85, 0)
	}

	got := drain(ch)
	require.Len(t, got, 10)
	for i, c := range got {
		assert.Equal(t, uint64(i+1), c.Alert.ID)
	}
}

func TestUnsubscribeCancelsContext(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	ch, ctx := f.operator.Subscribe()
	require.Equal(t, 1, f.engine.SubscriberCount())

	f.operator.Unsubscribe(ch)
	testutil.WaitForChannel(t, ctx.Done(), testutil.ShortTestTimeout, "context not cancelled")
	assert.Zero(t, f.engine.SubscriberCount())

	f.admit(t, alert.SpeciesTiger, 92, 0)
	assert.Empty(t, drain(ch))
}

func TestEngineCloseCancelsSubscriptions(t *testing.T) {
	t.Parallel()
	e := New(nil, Options{})
	_, ctx := e.Client(session.NewStatic(session.RoleOperator)).Subscribe()

	e.Close()
	testutil.WaitForChannel(t, ctx.Done(), testutil.ShortTestTimeout, "context not cancelled")
}

func TestFullSubscriberDropsInsteadOfBlocking(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	e := New(alert.NewStore(), Options{
		Clock:            func() time.Time { return testNow },
		Metrics:          f.metrics,
		SubscriberBuffer: 2,
	})
	t.Cleanup(e.Close)
	op := e.Client(session.NewStatic(session.RoleOperator))
	ch, _ := op.Subscribe()

	for range 5 {
		_, err := e.Admit(alert.Detection{
			Species:        alert.SpeciesTiger,
			Confidence:     90,
			DetectedAt:     testNow,
			SourceCameraID: "cam-002",
		})
		require.NoError(t, err)
	}

	assert.Len(t, drain(ch), 2)
	assert.InDelta(t, 3, promtestutil.ToFloat64(f.metrics.SubscriberDropsTotal), 0)
}

func TestFocusIsPerClient(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	a := f.admit(t, alert.SpeciesTiger, 92, 0)

	other := f.engine.Client(session.NewStatic(session.RoleOperator))
	mine, _ := f.operator.Subscribe()
	theirs, _ := other.Subscribe()
	drain(mine)
	drain(theirs)

	focused, err := f.operator.FocusAlert(a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, focused.ID)

	got := drain(mine)
	require.Len(t, got, 1)
	assert.Equal(t, ChangeFocused, got[0].Kind)
	assert.Empty(t, drain(theirs))

	_, ok := other.Focused()
	assert.False(t, ok)

	// focus reflects later store changes
	_, err = f.operator.Verify(a.ID, "Stay indoors")
	require.NoError(t, err)
	cur, ok := f.operator.Focused()
	require.True(t, ok)
	assert.Equal(t, alert.StateVerified, cur.State)

	drain(mine)
	f.operator.ClearFocus()
	assert.Equal(t, []ChangeKind{ChangeUnfocused}, kinds(drain(mine)))
	_, ok = f.operator.Focused()
	assert.False(t, ok)

	f.operator.ClearFocus()
	assert.Empty(t, drain(mine))
}

func TestRecipientFocusDropsWhenHidden(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	_, err := f.recipient.FocusAlert(99)
	require.ErrorIs(t, err, alert.ErrNotFound)

	_, ok := f.recipient.Focused()
	assert.False(t, ok)
}

func TestAnonymousSubscriberGetsNothing(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	anon := f.engine.Client(session.Anonymous())
	ch, _ := anon.Subscribe()

	a := f.admit(t, alert.SpeciesTiger, 92, 0)
	_, err := f.operator.Verify(a.ID, "Stay indoors")
	require.NoError(t, err)

	assert.Empty(t, drain(ch))
}

func TestMarkAllReadSendsOneChangeWhateverTheCount(t *testing.T) {
	t.Parallel()
	e := New(alert.NewStore(), Options{
		Clock:            func() time.Time { return testNow },
		SubscriberBuffer: 2,
	})
	t.Cleanup(e.Close)
	op := e.Client(session.NewStatic(session.RoleOperator))
	rc := e.Client(session.NewStatic(session.RoleRecipient))

	want := make([]uint64, 0, 5)
	for range 5 {
		a, err := e.Admit(alert.Detection{
			Species:        alert.SpeciesLeopard,
			Confidence:     82,
			DetectedAt:     testNow,
			SourceCameraID: "cam-003",
		})
		require.NoError(t, err)
		want = append(want, a.ID)
	}

	opCh, _ := op.Subscribe()
	rcCh, _ := rc.Subscribe()

	n, err := op.MarkAllRead(session.RoleOperator)
	require.NoError(t, err)
	require.Equal(t, 5, n)

	got := drain(opCh)
	require.Len(t, got, 1)
	assert.Equal(t, ChangeReadAll, got[0].Kind)
	assert.Zero(t, got[0].Alert.ID)
	assert.ElementsMatch(t, want, got[0].AlertIDs)
	assert.Empty(t, drain(rcCh))

	// nothing left to mark, nothing broadcast
	_, err = op.MarkAllRead(session.RoleOperator)
	require.NoError(t, err)
	assert.Empty(t, drain(opCh))
}
