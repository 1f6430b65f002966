package alerts

import (
	"context"
	"sync"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/signalsfoundry/leo-serving-planner/model"
)

type captureSink struct {
	mu     sync.Mutex
	alerts []model.CoverageAlert
}

func (s *captureSink) Send(_ context.Context, a model.CoverageAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, a)
	return nil
}

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.alerts)
}

func warningAlert(sat, desc string) model.CoverageAlert {
	return model.CoverageAlert{
		Level:       model.AlertWarning,
		SatelliteID: sat,
		Description: desc,
	}
}

func TestPublishAssignsIdentity(t *testing.T) {
	sink := &captureSink{}
	d := NewDispatcher(nil, []Sink{sink})

	d.Publish(context.Background(), warningAlert("sat-a", "low coverage"))
	if sink.count() != 1 {
		t.Fatalf("sink got %d alerts, want 1", sink.count())
	}
	got := sink.alerts[0]
	if got.ID == "" {
		t.Fatal("alert published without ID")
	}
	if got.Timestamp.IsZero() {
		t.Fatal("alert published without timestamp")
	}
}

func TestDuplicateSuppressedInsideWindow(t *testing.T) {
	now := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	sink := &captureSink{}
	d := NewDispatcher(nil, []Sink{sink},
		WithDedupWindow(5*time.Minute), WithClock(clock))

	ctx := context.Background()
	d.Publish(ctx, warningAlert("sat-a", "low coverage"))
	d.Publish(ctx, warningAlert("sat-a", "low coverage")) // duplicate
	d.Publish(ctx, warningAlert("sat-b", "low coverage")) // different satellite

	if sink.count() != 2 {
		t.Fatalf("sink got %d alerts, want 2", sink.count())
	}

	// Outside the window the same alert flows again.
	now = now.Add(6 * time.Minute)
	d.Publish(ctx, warningAlert("sat-a", "low coverage"))
	if sink.count() != 3 {
		t.Fatalf("sink got %d alerts after window, want 3", sink.count())
	}
}

func TestRateLimitDropsOverflow(t *testing.T) {
	sink := &captureSink{}
	d := NewDispatcher(nil, []Sink{sink},
		WithLimiter(rate.NewLimiter(rate.Every(time.Hour), 2)))

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		d.Publish(ctx, warningAlert("sat-a", time.Duration(i).String()))
	}
	if sink.count() != 2 {
		t.Fatalf("sink got %d alerts, want burst limit 2", sink.count())
	}
}

func TestRecentHonorsRetention(t *testing.T) {
	now := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	d := NewDispatcher(nil, nil,
		WithRetention(time.Hour), WithClock(clock),
		WithDedupWindow(time.Millisecond))

	ctx := context.Background()
	d.Publish(ctx, warningAlert("sat-a", "first"))

	now = now.Add(2 * time.Hour)
	d.Publish(ctx, warningAlert("sat-a", "second"))

	recent := d.Recent(time.Time{})
	if len(recent) != 1 {
		t.Fatalf("got %d retained alerts, want 1", len(recent))
	}
	if recent[0].Description != "second" {
		t.Fatalf("retained %q, want the recent alert", recent[0].Description)
	}
}

func TestSubjectFor(t *testing.T) {
	if got := SubjectFor(model.AlertCritical); got != "alerts.critical" {
		t.Fatalf("subject %q, want alerts.critical", got)
	}
}
