package observability

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// PlannerCollector bundles the planner's Prometheus metrics and provides
// helpers to wire them into the health gRPC server and the /metrics
// HTTP handler.
type PlannerCollector struct {
	gatherer prometheus.Gatherer

	RPCRequests  *prometheus.CounterVec
	RPCDurations *prometheus.HistogramVec

	StageSurvivors  *prometheus.GaugeVec
	CycleDuration   prometheus.Histogram
	FinalCandidates prometheus.Gauge

	CoverageRate prometheus.Gauge
	CoverageGaps prometheus.Gauge

	PoolSize      prometheus.Gauge
	PoolReadiness prometheus.Gauge

	Switches *prometheus.CounterVec
	Alerts   *prometheus.CounterVec

	ForecastCacheRatio prometheus.Gauge
}

// NewPlannerCollector registers planner Prometheus metrics against the
// provided registerer, defaulting to the global Prometheus registry when nil.
func NewPlannerCollector(reg prometheus.Registerer) (*PlannerCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "planner_grpc_requests_total",
		Help: "Total number of handled gRPC requests, labeled by service, method, and status code.",
	}, []string{"service", "method", "code"})
	requests, err := registerCounterVec(reg, requests, "planner_grpc_requests_total")
	if err != nil {
		return nil, err
	}

	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "planner_grpc_request_duration_seconds",
		Help:    "gRPC request latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"service", "method"})
	durations, err = registerHistogramVec(reg, durations, "planner_grpc_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	survivors := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "planner_stage_survivors",
		Help: "Satellites surviving each admission stage in the latest cycle, labeled by constellation and stage.",
	}, []string{"constellation", "stage"})
	survivors, err = registerGaugeVec(reg, survivors, "planner_stage_survivors")
	if err != nil {
		return nil, err
	}

	cycleDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "planner_cycle_duration_seconds",
		Help:    "Duration of full planning cycles.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
	})
	cycleDuration, err = registerHistogram(reg, cycleDuration, "planner_cycle_duration_seconds")
	if err != nil {
		return nil, err
	}

	finalCandidates, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "planner_final_candidates",
		Help: "Candidates admitted by the latest planning cycle.",
	}), "planner_final_candidates")
	if err != nil {
		return nil, err
	}

	coverageRate, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "planner_coverage_rate",
		Help: "Instantaneous coverage rate from the latest monitor tick.",
	}), "planner_coverage_rate")
	if err != nil {
		return nil, err
	}

	coverageGaps, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "planner_coverage_gaps",
		Help: "Coverage gaps detected in the latest monitor tick.",
	}), "planner_coverage_gaps")
	if err != nil {
		return nil, err
	}

	poolSize, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "planner_backup_pool_size",
		Help: "Entries in the current backup pool.",
	}), "planner_backup_pool_size")
	if err != nil {
		return nil, err
	}

	poolReadiness, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "planner_backup_pool_readiness",
		Help: "Average readiness score of the current backup pool.",
	}), "planner_backup_pool_readiness")
	if err != nil {
		return nil, err
	}

	switches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "planner_switches_total",
		Help: "Failover attempts by outcome: completed, failed, or rolled_back.",
	}, []string{"outcome"})
	switches, err = registerCounterVec(reg, switches, "planner_switches_total")
	if err != nil {
		return nil, err
	}

	alertCounter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "planner_alerts_total",
		Help: "Coverage alerts published, labeled by level.",
	}, []string{"level"})
	alertCounter, err = registerCounterVec(reg, alertCounter, "planner_alerts_total")
	if err != nil {
		return nil, err
	}

	cacheRatio, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "planner_forecast_cache_hit_ratio",
		Help: "Hit ratio for the monitor's orbit forecast cache.",
	}), "planner_forecast_cache_hit_ratio")
	if err != nil {
		return nil, err
	}

	return &PlannerCollector{
		gatherer:           gatherer,
		RPCRequests:        requests,
		RPCDurations:       durations,
		StageSurvivors:     survivors,
		CycleDuration:      cycleDuration,
		FinalCandidates:    finalCandidates,
		CoverageRate:       coverageRate,
		CoverageGaps:       coverageGaps,
		PoolSize:           poolSize,
		PoolReadiness:      poolReadiness,
		Switches:           switches,
		Alerts:             alertCounter,
		ForecastCacheRatio: cacheRatio,
	}, nil
}

// UnaryServerInterceptor records request counts and durations for unary RPCs.
func (c *PlannerCollector) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		if c == nil {
			return resp, err
		}

		fullMethod := ""
		if info != nil {
			fullMethod = info.FullMethod
		}
		service, method := SplitMethod(fullMethod)
		code := status.Code(err).String()

		if c.RPCRequests != nil {
			c.RPCRequests.WithLabelValues(service, method, code).Inc()
		}
		if c.RPCDurations != nil {
			c.RPCDurations.WithLabelValues(service, method).Observe(time.Since(start).Seconds())
		}

		return resp, err
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (c *PlannerCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveCycle records one completed planning cycle.
func (c *PlannerCollector) ObserveCycle(duration time.Duration, finalCandidates int) {
	if c == nil {
		return
	}
	if c.CycleDuration != nil {
		c.CycleDuration.Observe(duration.Seconds())
	}
	if c.FinalCandidates != nil {
		c.FinalCandidates.Set(float64(finalCandidates))
	}
}

// SetStageSurvivors records the survivor count for one stage of one
// constellation.
func (c *PlannerCollector) SetStageSurvivors(constellation, stage string, survivors int) {
	if c == nil || c.StageSurvivors == nil {
		return
	}
	c.StageSurvivors.WithLabelValues(constellation, stage).Set(float64(survivors))
}

// SetCoverage records the latest monitor tick.
func (c *PlannerCollector) SetCoverage(rate float64, gaps int) {
	if c == nil {
		return
	}
	if c.CoverageRate != nil {
		c.CoverageRate.Set(rate)
	}
	if c.CoverageGaps != nil {
		c.CoverageGaps.Set(float64(gaps))
	}
}

// SetPool records the current backup pool shape.
func (c *PlannerCollector) SetPool(size int, avgReadiness float64) {
	if c == nil {
		return
	}
	if c.PoolSize != nil {
		c.PoolSize.Set(float64(size))
	}
	if c.PoolReadiness != nil {
		c.PoolReadiness.Set(avgReadiness)
	}
}

// RecordSwitch counts one failover attempt by outcome.
func (c *PlannerCollector) RecordSwitch(outcome string) {
	if c == nil || c.Switches == nil {
		return
	}
	c.Switches.WithLabelValues(outcome).Inc()
}

// SetForecastCacheRatio records the monitor's forecast cache hit ratio.
func (c *PlannerCollector) SetForecastCacheRatio(ratio float64) {
	if c == nil || c.ForecastCacheRatio == nil {
		return
	}
	c.ForecastCacheRatio.Set(ratio)
}

// RecordAlert counts one published alert by level.
func (c *PlannerCollector) RecordAlert(level string) {
	if c == nil || c.Alerts == nil {
		return
	}
	c.Alerts.WithLabelValues(level).Inc()
}

// SplitMethod parses a fully-qualified gRPC method name into service and method
// components. It tolerates empty strings and partial paths, returning
// "unknown"/"unknown" when parsing fails.
func SplitMethod(fullMethod string) (string, string) {
	if fullMethod == "" {
		return "unknown", "unknown"
	}
	fullMethod = strings.TrimPrefix(fullMethod, "/")
	parts := strings.Split(fullMethod, "/")
	if len(parts) < 2 {
		return "unknown", "unknown"
	}
	service := parts[len(parts)-2]
	method := parts[len(parts)-1]
	if dot := strings.LastIndex(service, "."); dot >= 0 && dot+1 < len(service) {
		service = service[dot+1:]
	}
	if service == "" {
		service = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	return service, method
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
