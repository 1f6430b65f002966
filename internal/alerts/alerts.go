package alerts

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/signalsfoundry/leo-serving-planner/internal/logging"
	"github.com/signalsfoundry/leo-serving-planner/model"
)

// Sink consumes coverage alerts. Sinks must tolerate bursts; the
// dispatcher rate-limits and deduplicates before fan-out.
type Sink interface {
	Send(ctx context.Context, a model.CoverageAlert) error
}

const (
	defaultDedupWindow = 5 * time.Minute
	defaultRetention   = 24 * time.Hour
	defaultBurst       = 10
)

// Dispatcher deduplicates, rate-limits and fans alerts out to sinks, and
// keeps a 24 h in-memory history for queries. Sink failures are logged and
// never block the monitor.
type Dispatcher struct {
	sinks   []Sink
	log     logging.Logger
	limiter *rate.Limiter
	now     func() time.Time

	dedupWindow time.Duration
	retention   time.Duration

	mu      sync.Mutex
	seen    map[string]time.Time
	history []model.CoverageAlert
}

// Option adjusts dispatcher behaviour.
type Option func(*Dispatcher)

// WithDedupWindow sets how long an identical alert is suppressed.
func WithDedupWindow(d time.Duration) Option {
	return func(dp *Dispatcher) { dp.dedupWindow = d }
}

// WithRetention sets how long alerts stay queryable.
func WithRetention(d time.Duration) Option {
	return func(dp *Dispatcher) { dp.retention = d }
}

// WithLimiter replaces the default 1/s, burst-10 rate limiter.
func WithLimiter(l *rate.Limiter) Option {
	return func(dp *Dispatcher) { dp.limiter = l }
}

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(dp *Dispatcher) { dp.now = now }
}

// NewDispatcher builds a dispatcher over the given sinks.
func NewDispatcher(log logging.Logger, sinks []Sink, opts ...Option) *Dispatcher {
	if log == nil {
		log = logging.Noop()
	}
	d := &Dispatcher{
		sinks:       sinks,
		log:         log,
		limiter:     rate.NewLimiter(rate.Every(time.Second), defaultBurst),
		now:         time.Now,
		dedupWindow: defaultDedupWindow,
		retention:   defaultRetention,
		seen:        make(map[string]time.Time),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Publish routes one alert. Duplicate alerts inside the dedup window and
// alerts over the rate limit are dropped; both drops are observable in the
// debug log but invisible to the caller.
func (d *Dispatcher) Publish(ctx context.Context, a model.CoverageAlert) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = d.now().UTC()
	}

	key := string(a.Level) + "|" + a.SatelliteID + "|" + a.Description
	now := d.now()

	d.mu.Lock()
	if last, ok := d.seen[key]; ok && now.Sub(last) < d.dedupWindow {
		d.mu.Unlock()
		d.log.Debug(ctx, "alert suppressed as duplicate", logging.String("alert_id", a.ID))
		return
	}
	if !d.limiter.Allow() {
		d.mu.Unlock()
		d.log.Debug(ctx, "alert dropped by rate limit", logging.String("alert_id", a.ID))
		return
	}
	d.seen[key] = now
	d.history = append(d.history, a)
	d.prune(now)
	d.mu.Unlock()

	for _, s := range d.sinks {
		if err := s.Send(ctx, a); err != nil {
			d.log.Warn(ctx, "alert sink failed",
				logging.String("alert_id", a.ID),
				logging.Err(err))
		}
	}
}

// Recent returns retained alerts at or after since, oldest first.
func (d *Dispatcher) Recent(since time.Time) []model.CoverageAlert {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.prune(d.now())

	out := make([]model.CoverageAlert, 0, len(d.history))
	for _, a := range d.history {
		if !a.Timestamp.Before(since) {
			out = append(out, a)
		}
	}
	return out
}

// prune drops history and dedup entries past retention. Callers hold d.mu.
func (d *Dispatcher) prune(now time.Time) {
	cutoff := now.Add(-d.retention)
	i := 0
	for ; i < len(d.history); i++ {
		if d.history[i].Timestamp.After(cutoff) {
			break
		}
	}
	if i > 0 {
		d.history = append([]model.CoverageAlert(nil), d.history[i:]...)
	}
	for k, t := range d.seen {
		if t.Before(cutoff) {
			delete(d.seen, k)
		}
	}
}

// LogSink writes alerts to the structured log, mapping alert level to log
// level.
type LogSink struct {
	log logging.Logger
}

// NewLogSink builds a sink over log.
func NewLogSink(log logging.Logger) *LogSink {
	if log == nil {
		log = logging.Noop()
	}
	return &LogSink{log: log}
}

func (s *LogSink) Send(ctx context.Context, a model.CoverageAlert) error {
	fields := []logging.Field{
		logging.String("alert_id", a.ID),
		logging.String("satellite_id", a.SatelliteID),
		logging.String("recommended_action", a.RecommendedAction),
	}
	switch a.Level {
	case model.AlertCritical, model.AlertEmergency:
		s.log.Error(ctx, a.Description, fields...)
	case model.AlertWarning:
		s.log.Warn(ctx, a.Description, fields...)
	default:
		s.log.Info(ctx, a.Description, fields...)
	}
	return nil
}
