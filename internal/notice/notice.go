// Package notice holds transient, TTL-bounded notices surfaced to a role as
// soon as something happens, independent of read state.
package notice

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/tphakala/wildalert/internal/alert"
	"github.com/tphakala/wildalert/internal/logger"
	"github.com/tphakala/wildalert/internal/session"
)

// Notice is a short-lived message for one audience.
type Notice struct {
	ID         string        `json:"id"`
	Audience   session.Role  `json:"audience"`
	AlertID    uint64        `json:"alert_id"`
	Species    alert.Species `json:"species"`
	Confidence int           `json:"confidence,omitempty"`
	Location   string        `json:"location"`
	Title      string        `json:"title"`
	Message    string        `json:"message,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	ExpiresAt  time.Time     `json:"expires_at"`
	// Quiet notices arrived while the audience was over its flood limit.
	// They are listed but not raised as pop-ups.
	Quiet bool `json:"quiet,omitempty"`
}

// AdmissionNotice announces a new detection to operators.
func AdmissionNotice(a *alert.Alert) Notice {
	return Notice{
		Audience:   session.RoleOperator,
		AlertID:    a.ID,
		Species:    a.Species,
		Confidence: a.Confidence,
		Location:   a.Location,
		Title:      fmt.Sprintf("%s detected (%d%%)", a.Species, a.Confidence),
	}
}

// VerificationNotice announces a verified alert to recipients. Confidence is
// operator-only and left out.
func VerificationNotice(a *alert.Alert) Notice {
	return Notice{
		Audience: session.RoleRecipient,
		AlertID:  a.ID,
		Species:  a.Species,
		Location: a.Location,
		Title:    fmt.Sprintf("%s alert: %s", a.Species, a.Location),
		Message:  a.OperatorMessage,
	}
}

// Config controls notice lifetime and flood limiting.
type Config struct {
	// TTL is how long a notice stays listable
	TTL time.Duration
	// RatePerSecond is the sustained notices per second per audience
	RatePerSecond float64
	// Burst is the number of notices allowed at once per audience
	Burst int
}

// DefaultConfig mirrors the original toast lifetime.
func DefaultConfig() Config {
	return Config{
		TTL:           10 * time.Second,
		RatePerSecond: 2,
		Burst:         5,
	}
}

// Center stores notices per audience. Every published notice is kept for
// the TTL; the flood limit only decides whether it is raised or quiet.
type Center struct {
	cfg      Config
	items    *cache.Cache
	mu       sync.Mutex
	limiters map[session.Role]*rate.Limiter
	clock    func() time.Time
	quieted  atomic.Uint64
	log      logger.Logger
}

// NewCenter creates a notice center. Expiry follows the center clock, so
// go-cache entries never expire on their own and are swept on publish.
func NewCenter(cfg Config, log logger.Logger) *Center {
	def := DefaultConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = def.RatePerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	return &Center{
		cfg:      cfg,
		items:    cache.New(cache.NoExpiration, 0),
		limiters: make(map[session.Role]*rate.Limiter),
		clock:    time.Now,
		log:      log,
	}
}

// SetClock replaces the time source used for timestamps, expiry and rate
// limiting.
func (c *Center) SetClock(clock func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clock = clock
}

func (c *Center) limiterFor(role session.Role) *rate.Limiter {
	l, ok := c.limiters[role]
	if !ok {
		l = rate.NewLimiter(rate.Limit(c.cfg.RatePerSecond), c.cfg.Burst)
		c.limiters[role] = l
	}
	return l
}

// Publish stores n for its audience. The returned bool is false when the
// audience is over its flood limit and the notice was stored quiet.
func (c *Center) Publish(n Notice) (Notice, bool) {
	c.mu.Lock()
	now := c.clock()
	raised := c.limiterFor(n.Audience).AllowN(now, 1)

	n.ID = uuid.NewString()
	n.CreatedAt = now
	n.ExpiresAt = now.Add(c.cfg.TTL)
	n.Quiet = !raised
	c.sweepLocked(now)
	c.items.Set(n.ID, n, cache.NoExpiration)
	c.mu.Unlock()

	if !raised {
		c.quieted.Add(1)
	}
	c.log.Debug("notice published",
		logger.String("notice_id", n.ID),
		logger.String("audience", n.Audience.String()),
		logger.String("title", n.Title),
		logger.Bool("quiet", n.Quiet))
	return n, raised
}

func (c *Center) sweepLocked(now time.Time) {
	for id, item := range c.items.Items() {
		if n, ok := item.Object.(Notice); !ok || !n.ExpiresAt.After(now) {
			c.items.Delete(id)
		}
	}
}

// List returns live notices for role, newest first.
func (c *Center) List(role session.Role) []Notice {
	c.mu.Lock()
	now := c.clock()
	c.mu.Unlock()

	out := make([]Notice, 0)
	for _, item := range c.items.Items() {
		n, ok := item.Object.(Notice)
		if !ok || n.Audience != role || !n.ExpiresAt.After(now) {
			continue
		}
		out = append(out, n)
	}
	slices.SortFunc(out, func(a, b Notice) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.AlertID, a.AlertID)
	})
	return out
}

// Dismiss removes a notice before its TTL.
func (c *Center) Dismiss(id string) {
	c.items.Delete(id)
}

// Quieted returns how many notices were stored quiet by the flood limit.
func (c *Center) Quieted() uint64 {
	return c.quieted.Load()
}
