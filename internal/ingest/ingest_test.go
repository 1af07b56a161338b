package ingest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/wildalert/internal/alert"
	"github.com/tphakala/wildalert/internal/engine"
	"github.com/tphakala/wildalert/internal/errors"
	"github.com/tphakala/wildalert/internal/observability/metrics"
	"github.com/tphakala/wildalert/internal/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var testNow = time.Date(2026, 3, 14, 6, 30, 0, 0, time.UTC)

// scriptedSource replays fixed values and then repeats the last one.
type scriptedSource struct {
	mu     sync.Mutex
	floats []float64
	ints   []int
	calls  int
}

func (s *scriptedSource) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.floats) == 0 {
		return 0
	}
	v := s.floats[0]
	if len(s.floats) > 1 {
		s.floats = s.floats[1:]
	}
	return v
}

func (s *scriptedSource) IntN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.ints) == 0 {
		return 0
	}
	v := s.ints[0]
	if len(s.ints) > 1 {
		s.ints = s.ints[1:]
	}
	return v % n
}

func (s *scriptedSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type manualTicker struct {
	ch      chan time.Time
	stopped chan struct{}
	once    sync.Once
}

func newManualTicker() *manualTicker {
	return &manualTicker{ch: make(chan time.Time), stopped: make(chan struct{})}
}

func (m *manualTicker) C() <-chan time.Time { return m.ch }
func (m *manualTicker) Stop()               { m.once.Do(func() { close(m.stopped) }) }

type fakeAdmitter struct {
	mu       sync.Mutex
	got      []alert.Detection
	err      error
	nextID   uint64
	admitted chan struct{}
}

func (f *fakeAdmitter) Admit(d alert.Detection) (alert.Alert, error) {
	f.mu.Lock()
	defer func() {
		f.mu.Unlock()
		if f.admitted != nil {
			f.admitted <- struct{}{}
		}
	}()
	f.got = append(f.got, d)
	if f.err != nil {
		return alert.Alert{}, f.err
	}
	f.nextID++
	return alert.Alert{ID: f.nextID, Species: d.Species, State: alert.StatePending}, nil
}

func (f *fakeAdmitter) detections() []alert.Detection {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]alert.Detection(nil), f.got...)
}

func newTestMetrics(t *testing.T) *metrics.AlertMetrics {
	t.Helper()
	m, err := metrics.NewAlertMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	return m
}

func TestTickAdmitsFullyBuiltDetection(t *testing.T) {
	t.Parallel()

	src := &scriptedSource{
		floats: []float64{0.1, 0.75, 0.25},
		ints:   []int{2, 22, 1},
	}
	adm := &fakeAdmitter{}
	m := newTestMetrics(t)
	ing, err := New(DefaultConfig(), adm, WithSource(src), WithMetrics(m))
	require.NoError(t, err)

	a, ok, err := ing.Tick(testNow)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(1), a.ID)

	got := adm.detections()
	require.Len(t, got, 1)
	d := got[0]
	assert.Equal(t, alert.DefaultSpecies[2], d.Species)
	assert.Equal(t, 92, d.Confidence)
	assert.Equal(t, "cam-002", d.SourceCameraID)
	assert.Equal(t, testNow, d.DetectedAt)
	assert.Equal(t, "Core Zone Section A", d.Location)
	assert.InDelta(t, 26.8851+0.005, d.Coordinates.Lat, 1e-9)
	assert.InDelta(t, 93.7792-0.005, d.Coordinates.Lng, 1e-9)
	assert.Equal(t, fmt.Sprintf("frame/cam-002/%d", testNow.UnixNano()), d.ImageRef)
	require.NoError(t, d.Validate())

	assert.InDelta(t, 1, testutil.ToFloat64(m.IngestTicksTotal.WithLabelValues(metrics.TickAdmitted)), 0)
}

func TestTickSkipsWhenDrawMisses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		probability float64
		draw        float64
	}{
		{"draw above probability", 0.4, 0.9},
		{"draw equal to probability", 0.4, 0.4},
		{"zero probability", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			cfg.Probability = tt.probability
			src := &scriptedSource{floats: []float64{tt.draw}}
			adm := &fakeAdmitter{}
			ing, err := New(cfg, adm, WithSource(src))
			require.NoError(t, err)

			_, ok, err := ing.Tick(testNow)
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Empty(t, adm.detections())
			assert.Equal(t, 1, src.Calls())
		})
	}
}

func TestTickUsesFramePool(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.FramePool = []string{"img/a.jpg", "img/b.jpg"}
	src := &scriptedSource{floats: []float64{0}, ints: []int{0, 0, 0, 1}}
	adm := &fakeAdmitter{}
	ing, err := New(cfg, adm, WithSource(src))
	require.NoError(t, err)

	_, ok, err := ing.Tick(testNow)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "img/b.jpg", adm.detections()[0].ImageRef)
}

func TestPausedTickDrawsNothing(t *testing.T) {
	t.Parallel()

	src := &scriptedSource{}
	adm := &fakeAdmitter{}
	m := newTestMetrics(t)
	ing, err := New(DefaultConfig(), adm, WithSource(src), WithMetrics(m))
	require.NoError(t, err)

	ing.Pause()
	require.True(t, ing.Paused())
	_, ok, err := ing.Tick(testNow)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, src.Calls())
	assert.InDelta(t, 1, testutil.ToFloat64(m.IngestTicksTotal.WithLabelValues(metrics.TickPaused)), 0)

	ing.Resume()
	assert.False(t, ing.Paused())
	_, ok, err = ing.Tick(testNow)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTickFailureIsCategorized(t *testing.T) {
	t.Parallel()

	adm := &fakeAdmitter{err: fmt.Errorf("store unavailable")}
	m := newTestMetrics(t)
	ing, err := New(DefaultConfig(), adm, WithSource(&scriptedSource{}), WithMetrics(m))
	require.NoError(t, err)

	_, ok, err := ing.Tick(testNow)
	require.Error(t, err)
	assert.False(t, ok)
	assert.True(t, errors.IsCategory(err, errors.CategoryIngest))
	assert.Contains(t, err.Error(), "store unavailable")
	assert.InDelta(t, 1, testutil.ToFloat64(m.IngestTicksTotal.WithLabelValues(metrics.TickFailed)), 0)
}

func TestNewRejectsBadConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero interval", func(c *Config) { c.Interval = 0 }, "interval"},
		{"probability above one", func(c *Config) { c.Probability = 1.5 }, "probability"},
		{"no species", func(c *Config) { c.Species = nil }, "species"},
		{"no cameras", func(c *Config) { c.Cameras = nil }, "camera"},
		{"negative radius", func(c *Config) { c.Radius = -1 }, "radius"},
		{"inverted confidence", func(c *Config) { c.MinConfidence = 90; c.MaxConfidence = 80 }, "confidence"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			_, err := New(cfg, &fakeAdmitter{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, err := New(DefaultConfig(), nil)
	require.Error(t, err)
}

func TestRunTicksUntilStopped(t *testing.T) {
	t.Parallel()

	ticker := newManualTicker()
	adm := &fakeAdmitter{admitted: make(chan struct{}, 4)}
	ing, err := New(DefaultConfig(), adm,
		WithSource(&scriptedSource{}),
		WithClock(func() time.Time { return testNow }),
		WithTicker(func(time.Duration) Ticker { return ticker }))
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- ing.Run(context.Background()) }()

	for range 3 {
		ticker.ch <- testNow
		<-adm.admitted
	}

	ing.Stop()
	require.NoError(t, <-errCh)
	assert.Len(t, adm.detections(), 3)

	select {
	case <-ticker.stopped:
	default:
		t.Fatal("ticker not stopped")
	}

	// second Stop is a no-op and a second Run is refused
	ing.Stop()
	require.Error(t, ing.Run(context.Background()))
}

func TestRunSurvivesFailedTicks(t *testing.T) {
	t.Parallel()

	ticker := newManualTicker()
	adm := &fakeAdmitter{err: fmt.Errorf("boom"), admitted: make(chan struct{}, 4)}
	ing, err := New(DefaultConfig(), adm,
		WithSource(&scriptedSource{}),
		WithTicker(func(time.Duration) Ticker { return ticker }))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- ing.Run(ctx) }()

	ticker.ch <- testNow
	<-adm.admitted
	ticker.ch <- testNow
	<-adm.admitted

	cancel()
	require.NoError(t, <-errCh)
	assert.Len(t, adm.detections(), 2)
}

func TestStopBeforeRun(t *testing.T) {
	t.Parallel()

	ing, err := New(DefaultConfig(), &fakeAdmitter{})
	require.NoError(t, err)
	ing.Stop()
	ing.Stop()
}

func TestTickFeedsEngineAsPending(t *testing.T) {
	t.Parallel()

	eng := engine.New(alert.NewStore(), engine.Options{Clock: func() time.Time { return testNow }})
	t.Cleanup(eng.Close)

	ing, err := New(DefaultConfig(), eng, WithSource(&scriptedSource{}))
	require.NoError(t, err)

	a, ok, err := ing.Tick(testNow)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, alert.StatePending, a.State)

	op := eng.Client(session.NewStatic(session.RoleOperator))
	pending, err := op.PendingAlerts()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, a.ID, pending[0].ID)

	rc := eng.Client(session.NewStatic(session.RoleRecipient))
	visible, err := rc.VisibleAlerts(session.RoleRecipient, nil)
	require.NoError(t, err)
	assert.Empty(t, visible)
}

type fixedDaylight struct {
	period alert.Daylight
	err    error
}

func (f fixedDaylight) DaylightAt(time.Time) (alert.Daylight, error) { return f.period, f.err }

func TestTickTagsDaylight(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct {
		name string
		cls  fixedDaylight
		want alert.Daylight
	}{
		{"classified", fixedDaylight{period: alert.DaylightNight}, alert.DaylightNight},
		{"classifier error leaves it empty", fixedDaylight{err: fmt.Errorf("polar night")}, ""},
	} {
		src := &scriptedSource{
			floats: []float64{0.1, 0.75, 0.25},
			ints:   []int{2, 22, 1},
		}
		adm := &fakeAdmitter{}
		ing, err := New(DefaultConfig(), adm, WithSource(src), WithDaylight(tt.cls))
		require.NoError(t, err)

		_, ok, err := ing.Tick(testNow)
		require.NoError(t, err, tt.name)
		require.True(t, ok, tt.name)
		assert.Equal(t, tt.want, adm.detections()[0].Daylight, tt.name)
	}
}
