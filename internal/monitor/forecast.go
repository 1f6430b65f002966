package monitor

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/signalsfoundry/leo-serving-planner/internal/orbit"
)

// Forecast is the short-horizon coverage outlook for the monitored fleet.
type Forecast struct {
	At1Min     float64 `json:"predicted_coverage_1min"`
	At5Min     float64 `json:"predicted_coverage_5min"`
	At10Min    float64 `json:"predicted_coverage_10min"`
	Trend      string  `json:"trend_direction"`
	Confidence float64 `json:"confidence"`
	Method     string  `json:"method"`
}

const (
	forecastMethodSGP4     = "sgp4_propagation"
	forecastMethodFallback = "conservative_fallback"

	// The fallback assumes a slow decline from the current rate.
	fallbackDecay5Min  = 0.95
	fallbackDecay10Min = 0.90
	fallbackConfidence = 0.3

	trendBand = 0.05
)

var forecastHorizons = [3]time.Duration{time.Minute, 5 * time.Minute, 10 * time.Minute}

// forecast predicts coverage at each horizon by propagating every monitored
// satellite forward and weighting its contribution by elevation. When the
// orbit source cannot answer for any satellite, the conservative fallback
// applies.
func (m *Monitor) forecast(ctx context.Context, now time.Time, current float64, ids []string) Forecast {
	total := len(ids)
	if total == 0 || m.source == nil {
		return conservativeForecast(current)
	}

	var rates [3]float64
	valid := 0
	for hi, horizon := range forecastHorizons {
		at := now.Add(horizon)
		sum := 0.0
		answered := 0
		for _, id := range ids {
			pred, ok := m.predictCached(ctx, id, at)
			if !ok {
				continue
			}
			answered++
			if pred.ElevationDeg > 0 {
				sum += math.Min(1, pred.ElevationDeg/90)
			}
		}
		if answered > valid {
			valid = answered
		}
		rates[hi] = sum / float64(total)
	}
	if valid == 0 {
		return conservativeForecast(current)
	}

	f := Forecast{
		At1Min:     rates[0],
		At5Min:     rates[1],
		At10Min:    rates[2],
		Method:     forecastMethodSGP4,
		Confidence: math.Min(0.95, 0.5+float64(valid)/float64(total)*0.45),
	}
	f.Trend = trendOf(current, f.At10Min)
	return f
}

func (m *Monitor) predictCached(ctx context.Context, satelliteID string, at time.Time) (orbit.Prediction, bool) {
	key := forecastKey(satelliteID, at)
	if pred, ok := m.cache.get(key); ok {
		return pred, true
	}
	pred, err := m.source.Predict(ctx, satelliteID, at)
	if err != nil {
		return orbit.Prediction{}, false
	}
	m.cache.update(key, pred)
	return pred, true
}

func forecastKey(satelliteID string, at time.Time) string {
	return fmt.Sprintf("%s|%s", satelliteID, at.UTC().Format(time.RFC3339))
}

func conservativeForecast(current float64) Forecast {
	return Forecast{
		At1Min:     current,
		At5Min:     current * fallbackDecay5Min,
		At10Min:    current * fallbackDecay10Min,
		Trend:      trendOf(current, current*fallbackDecay10Min),
		Confidence: fallbackConfidence,
		Method:     forecastMethodFallback,
	}
}

func trendOf(current, predicted float64) string {
	switch {
	case predicted > current+trendBand:
		return "improving"
	case predicted < current-trendBand:
		return "declining"
	default:
		return "stable"
	}
}

type forecastEntry struct {
	pred    orbit.Prediction
	updated time.Time
}

// forecastCache holds per-(satellite, horizon) orbit predictions so
// overlapping ticks do not re-propagate the same epoch. Hits and misses
// accumulate for the cache-ratio gauge; an expired entry counts as a miss.
type forecastCache struct {
	mu      sync.RWMutex
	entries map[string]forecastEntry
	ttl     time.Duration
	now     func() time.Time

	hits   uint64
	misses uint64
}

func newForecastCache(ttl time.Duration, now func() time.Time) *forecastCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &forecastCache{
		entries: make(map[string]forecastEntry),
		ttl:     ttl,
		now:     now,
	}
}

func (c *forecastCache) get(key string) (orbit.Prediction, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok || c.now().Sub(entry.updated) > c.ttl {
		c.misses++
		return orbit.Prediction{}, false
	}
	c.hits++
	return entry.pred, true
}

func (c *forecastCache) update(key string, pred orbit.Prediction) {
	c.mu.Lock()
	c.entries[key] = forecastEntry{pred: pred, updated: c.now()}
	c.mu.Unlock()
}

// hitRatio reports the cumulative cache hit ratio, 0 before any lookup.
func (c *forecastCache) hitRatio() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	total := c.hits + c.misses
	if total == 0 {
		return 0
	}
	return float64(c.hits) / float64(total)
}
