package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestUnaryInterceptorRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewPlannerCollector(reg)
	if err != nil {
		t.Fatalf("NewPlannerCollector: %v", err)
	}

	interceptor := collector.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

	_, err = interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		time.Sleep(10 * time.Millisecond)
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("interceptor handler returned error: %v", err)
	}

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("Health", "Check", "OK")); got != 1 {
		t.Fatalf("planner_grpc_requests_total = %v, want 1", got)
	}

	if count := histogramSampleCount(t, reg, "planner_grpc_request_duration_seconds", map[string]string{
		"service": "Health",
		"method":  "Check",
	}); count != 1 {
		t.Fatalf("planner_grpc_request_duration_seconds sample_count = %d, want 1", count)
	}
}

func TestUnaryInterceptorRecordsErrorCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewPlannerCollector(reg)
	if err != nil {
		t.Fatalf("NewPlannerCollector: %v", err)
	}

	interceptor := collector.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Watch"}

	_, _ = interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, status.Error(codes.InvalidArgument, "boom")
	})

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("Health", "Watch", "InvalidArgument")); got != 1 {
		t.Fatalf("planner_grpc_requests_total error label = %v, want 1", got)
	}
}

func TestMetricsHandlerExposesPlannerGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewPlannerCollector(reg)
	if err != nil {
		t.Fatalf("NewPlannerCollector: %v", err)
	}
	collector.ObserveCycle(1200*time.Millisecond, 42)
	collector.SetStageSurvivors("starlink", "stage1_geographic", 317)
	collector.SetCoverage(0.96, 1)
	collector.SetPool(6, 0.82)
	collector.RecordSwitch("completed")
	collector.RecordAlert("critical")
	collector.SetForecastCacheRatio(0.75)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"planner_cycle_duration_seconds",
		"planner_final_candidates",
		"planner_stage_survivors",
		"planner_coverage_rate",
		"planner_coverage_gaps",
		"planner_backup_pool_size",
		"planner_backup_pool_readiness",
		"planner_switches_total",
		"planner_alerts_total",
		"planner_forecast_cache_hit_ratio",
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output", metric)
		}
	}

	if got := testutil.ToFloat64(collector.Switches.WithLabelValues("completed")); got != 1 {
		t.Fatalf("planner_switches_total{outcome=completed} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.Alerts.WithLabelValues("critical")); got != 1 {
		t.Fatalf("planner_alerts_total{level=critical} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.StageSurvivors.WithLabelValues("starlink", "stage1_geographic")); got != 317 {
		t.Fatalf("planner_stage_survivors = %v, want 317", got)
	}
	if got := testutil.ToFloat64(collector.ForecastCacheRatio); got != 0.75 {
		t.Fatalf("planner_forecast_cache_hit_ratio = %v, want 0.75", got)
	}
}

func TestCollectorSurvivesDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewPlannerCollector(reg); err != nil {
		t.Fatalf("first registration: %v", err)
	}
	second, err := NewPlannerCollector(reg)
	if err != nil {
		t.Fatalf("second registration: %v", err)
	}
	second.RecordAlert("warning")
	if got := testutil.ToFloat64(second.Alerts.WithLabelValues("warning")); got != 1 {
		t.Fatalf("reused collector counter = %v, want 1", got)
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
