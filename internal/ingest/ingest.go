// Package ingest synthesizes camera detections on a tick and admits them to
// the alert engine as pending alerts.
package ingest

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/wildalert/internal/alert"
	"github.com/tphakala/wildalert/internal/errors"
	"github.com/tphakala/wildalert/internal/logger"
	"github.com/tphakala/wildalert/internal/observability/metrics"
)

// Source supplies randomness. *rand.Rand satisfies it.
type Source interface {
	Float64() float64
	IntN(n int) int
}

// Ticker drives Run. Tests supply a manual implementation.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory builds a Ticker for the configured interval.
type TickerFactory func(d time.Duration) Ticker

type stdTicker struct{ t *time.Ticker }

func (s stdTicker) C() <-chan time.Time { return s.t.C }
func (s stdTicker) Stop()               { s.t.Stop() }

// NewStdTicker wraps time.NewTicker.
func NewStdTicker(d time.Duration) Ticker {
	return stdTicker{t: time.NewTicker(d)}
}

// DaylightClassifier labels a detection time. *suncalc.Calculator satisfies it.
type DaylightClassifier interface {
	DaylightAt(t time.Time) (alert.Daylight, error)
}

// Admitter accepts a fully built detection. *engine.Engine satisfies it.
type Admitter interface {
	Admit(d alert.Detection) (alert.Alert, error)
}

// Ingestor produces zero or one detection per tick.
type Ingestor struct {
	cfg       Config
	admitter  Admitter
	log       logger.Logger
	metrics   *metrics.AlertMetrics
	clock     func() time.Time
	newTicker TickerFactory
	daylight  DaylightClassifier

	srcMu sync.Mutex
	src   Source

	paused  atomic.Bool
	started atomic.Bool

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// Option configures an Ingestor.
type Option func(*Ingestor)

// WithSource injects the random source.
func WithSource(src Source) Option {
	return func(i *Ingestor) { i.src = src }
}

// WithClock injects the time source used for DetectedAt.
func WithClock(clock func() time.Time) Option {
	return func(i *Ingestor) { i.clock = clock }
}

// WithTicker injects the tick driver used by Run.
func WithTicker(f TickerFactory) Option {
	return func(i *Ingestor) { i.newTicker = f }
}

// WithDaylight tags each detection with the light period at the site.
func WithDaylight(c DaylightClassifier) Option {
	return func(i *Ingestor) { i.daylight = c }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(i *Ingestor) { i.log = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.AlertMetrics) Option {
	return func(i *Ingestor) { i.metrics = m }
}

// New validates cfg and builds an Ingestor feeding admitter.
func New(cfg Config, admitter Admitter, opts ...Option) (*Ingestor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if admitter == nil {
		return nil, errors.Newf("ingestor requires an admitter").
			Component("ingest").
			Category(errors.CategoryConfiguration).
			Build()
	}

	i := &Ingestor{
		cfg:       cfg,
		admitter:  admitter,
		log:       logger.NewDiscardLogger(),
		clock:     time.Now,
		newTicker: NewStdTicker,
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.src == nil {
		i.src = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)) //nolint:gosec // simulation, not security
	}
	return i, nil
}

// Pause makes subsequent ticks admit nothing until Resume.
func (i *Ingestor) Pause() {
	if !i.paused.Swap(true) {
		i.log.Info("ingestor paused")
	}
}

// Resume undoes Pause.
func (i *Ingestor) Resume() {
	if i.paused.Swap(false) {
		i.log.Info("ingestor resumed")
	}
}

// Paused reports whether ticks are being skipped.
func (i *Ingestor) Paused() bool {
	return i.paused.Load()
}

// Tick runs exactly one admission attempt at now. It returns the admitted
// alert and true, or false when the draw produced nothing or the ingestor is
// paused. A failed admission is logged, counted and returned; the caller
// decides whether to continue.
func (i *Ingestor) Tick(now time.Time) (alert.Alert, bool, error) {
	if i.paused.Load() {
		i.metrics.RecordTick(metrics.TickPaused)
		return alert.Alert{}, false, nil
	}

	d, ok := i.draw(now)
	if !ok {
		i.metrics.RecordTick(metrics.TickSkipped)
		return alert.Alert{}, false, nil
	}
	if i.daylight != nil {
		if period, err := i.daylight.DaylightAt(now); err == nil {
			d.Daylight = period
		} else {
			i.log.Debug("daylight unavailable", logger.Error(err))
		}
	}

	a, err := i.admitter.Admit(d)
	if err != nil {
		i.metrics.RecordTick(metrics.TickFailed)
		wrapped := errors.New(err).
			Component("ingest").
			Category(errors.CategoryIngest).
			Context("species", string(d.Species)).
			Context("camera", d.SourceCameraID).
			Context("operation", "admit_detection").
			Build()
		i.log.Error("detection admission failed",
			logger.Error(err),
			logger.String("species", string(d.Species)),
			logger.String("camera", d.SourceCameraID))
		return alert.Alert{}, false, wrapped
	}

	i.metrics.RecordTick(metrics.TickAdmitted)
	return a, true, nil
}

// draw builds the complete detection before anything touches the store.
func (i *Ingestor) draw(now time.Time) (alert.Detection, bool) {
	i.srcMu.Lock()
	defer i.srcMu.Unlock()

	if i.src.Float64() >= i.cfg.Probability {
		return alert.Detection{}, false
	}

	species := i.cfg.Species[i.src.IntN(len(i.cfg.Species))]
	confidence := i.cfg.MinConfidence + i.src.IntN(i.cfg.MaxConfidence-i.cfg.MinConfidence+1)
	camera := i.cfg.Cameras[i.src.IntN(len(i.cfg.Cameras))]
	coords := alert.Coordinates{
		Lat: i.cfg.Base.Lat + (i.src.Float64()*2-1)*i.cfg.Radius,
		Lng: i.cfg.Base.Lng + (i.src.Float64()*2-1)*i.cfg.Radius,
	}

	var image string
	if len(i.cfg.FramePool) > 0 {
		image = i.cfg.FramePool[i.src.IntN(len(i.cfg.FramePool))]
	} else {
		image = fmt.Sprintf("frame/%s/%d", camera, now.UnixNano())
	}

	return alert.Detection{
		Species:        species,
		Confidence:     confidence,
		DetectedAt:     now,
		Location:       i.cfg.Location,
		Coordinates:    coords,
		SourceCameraID: camera,
		ImageRef:       image,
	}, true
}

// Run ticks until ctx is done or Stop is called. Failed ticks never end the loop.
// Run may be called once.
func (i *Ingestor) Run(ctx context.Context) error {
	if i.started.Swap(true) {
		return fmt.Errorf("ingestor already started")
	}
	defer close(i.done)

	ticker := i.newTicker(i.cfg.Interval)
	defer ticker.Stop()

	i.log.Info("ingestor started",
		logger.Duration("interval", i.cfg.Interval),
		logger.Float64("probability", i.cfg.Probability))

	for {
		select {
		case <-ctx.Done():
			i.log.Info("ingestor stopping", logger.String("reason", "context cancelled"))
			return nil
		case <-i.stopCh:
			i.log.Info("ingestor stopping", logger.String("reason", "stop requested"))
			return nil
		case <-ticker.C():
			// Stop wins over a tick that raced with it.
			select {
			case <-i.stopCh:
				return nil
			default:
			}
			if a, ok, err := i.Tick(i.clock()); err == nil && ok {
				i.log.Debug("tick admitted detection", logger.Uint64("alert_id", a.ID))
			}
		}
	}
}

// Stop ends Run and waits for an in-flight tick to finish. Safe to call at
// any time and more than once, including before Run.
func (i *Ingestor) Stop() {
	i.stopOnce.Do(func() {
		close(i.stopCh)
	})
	if i.started.Load() {
		<-i.done
	}
}
