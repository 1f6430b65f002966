package orbit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/signalsfoundry/leo-serving-planner/model"
)

const (
	issTLE1 = "1 25544U 98067A   24001.50000000  .00016717  00000-0  30330-3 0  9990"
	issTLE2 = "2 25544  51.6400 208.9163 0006317  69.9862 290.2553 15.49815308 25470"
)

func testCatalog() []model.Satellite {
	return []model.Satellite{
		{
			ID:            "iss",
			Name:          "ISS (ZARYA)",
			Constellation: model.ConstellationOther,
			TLELine1:      issTLE1,
			TLELine2:      issTLE2,
		},
		{ID: "no-tle", Name: "NO TLE"},
	}
}

func TestPositionsCadenceAndOrdering(t *testing.T) {
	src := NewSGP4Source(24.9442, 121.3714, testCatalog())
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	tr := TimeRange{Start: start, End: start.Add(10 * time.Minute)}

	samples, err := src.Positions(context.Background(), "iss", tr)
	if err != nil {
		t.Fatalf("Positions: %v", err)
	}
	if want := 21; len(samples) != want {
		t.Fatalf("got %d samples, want %d", len(samples), want)
	}
	for i, p := range samples {
		if wantT := start.Add(time.Duration(i) * SamplePeriod); !p.Timestamp.Equal(wantT) {
			t.Fatalf("sample %d timestamp %v, want %v", i, p.Timestamp, wantT)
		}
		if i > 0 && !samples[i-1].Timestamp.Before(p.Timestamp) {
			t.Fatalf("timestamps not strictly increasing at %d", i)
		}
	}
}

func TestPositionsPlausibleGeometry(t *testing.T) {
	src := NewSGP4Source(24.9442, 121.3714, testCatalog())
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	samples, err := src.Positions(context.Background(), "iss", TimeRange{Start: start, End: start.Add(time.Hour)})
	if err != nil {
		t.Fatalf("Positions: %v", err)
	}
	for _, p := range samples {
		if p.AltKm < 300 || p.AltKm > 500 {
			t.Fatalf("implausible ISS altitude %.1f km at %v", p.AltKm, p.Timestamp)
		}
		if p.AzimuthDeg < 0 || p.AzimuthDeg >= 360 {
			t.Fatalf("azimuth %.2f out of range", p.AzimuthDeg)
		}
		if p.RangeKm < p.AltKm {
			t.Fatalf("slant range %.1f below altitude %.1f", p.RangeKm, p.AltKm)
		}
		if p.LatDeg < -52.5 || p.LatDeg > 52.5 {
			t.Fatalf("latitude %.2f exceeds ISS inclination band", p.LatDeg)
		}
	}
}

func TestPositionsUnknownSatellite(t *testing.T) {
	src := NewSGP4Source(24.9442, 121.3714, testCatalog())
	start := time.Now().UTC()

	_, err := src.Positions(context.Background(), "ghost", TimeRange{Start: start, End: start})
	if !errors.Is(err, model.ErrMissingData) {
		t.Fatalf("got %v, want ErrMissingData", err)
	}

	// Catalog entries without TLE lines never enter the propagation table.
	_, err = src.Positions(context.Background(), "no-tle", TimeRange{Start: start, End: start})
	if !errors.Is(err, model.ErrMissingData) {
		t.Fatalf("got %v, want ErrMissingData for TLE-less entry", err)
	}
}

func TestPositionsInvertedRange(t *testing.T) {
	src := NewSGP4Source(24.9442, 121.3714, testCatalog())
	start := time.Now().UTC()

	_, err := src.Positions(context.Background(), "iss", TimeRange{Start: start, End: start.Add(-time.Minute)})
	if !errors.Is(err, model.ErrMissingData) {
		t.Fatalf("got %v, want ErrMissingData", err)
	}
}

func TestPredict(t *testing.T) {
	src := NewSGP4Source(24.9442, 121.3714, testCatalog())
	at := time.Date(2024, 1, 1, 6, 30, 0, 0, time.UTC)

	p, err := src.Predict(context.Background(), "iss", at)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if !p.Time.Equal(at) {
		t.Fatalf("prediction time %v, want %v", p.Time, at)
	}
	if p.RangeKm <= 0 {
		t.Fatalf("non-positive range %.1f", p.RangeKm)
	}

	if _, err := src.Predict(context.Background(), "ghost", at); !errors.Is(err, model.ErrForecastUnavailable) {
		t.Fatalf("got %v, want ErrForecastUnavailable", err)
	}
}

func TestUpsertAndRemoveTrackCatalogChanges(t *testing.T) {
	src := NewSGP4Source(24.9442, 121.3714, nil)
	at := time.Date(2024, 1, 1, 6, 30, 0, 0, time.UTC)

	if _, err := src.Predict(context.Background(), "iss", at); !errors.Is(err, model.ErrForecastUnavailable) {
		t.Fatalf("got %v, want ErrForecastUnavailable before upsert", err)
	}

	src.Upsert(model.Satellite{ID: "iss", TLELine1: issTLE1, TLELine2: issTLE2})
	if _, err := src.Predict(context.Background(), "iss", at); err != nil {
		t.Fatalf("Predict after upsert: %v", err)
	}

	// A replacement without element lines evicts the entry rather than
	// propagating stale state.
	src.Upsert(model.Satellite{ID: "iss"})
	if _, err := src.Predict(context.Background(), "iss", at); !errors.Is(err, model.ErrForecastUnavailable) {
		t.Fatalf("got %v, want ErrForecastUnavailable after TLE-less upsert", err)
	}

	src.Upsert(model.Satellite{ID: "iss", TLELine1: issTLE1, TLELine2: issTLE2})
	src.Remove("iss")
	if _, err := src.Predict(context.Background(), "iss", at); !errors.Is(err, model.ErrForecastUnavailable) {
		t.Fatalf("got %v, want ErrForecastUnavailable after remove", err)
	}
}

func TestPositionsHonorsContext(t *testing.T) {
	src := NewSGP4Source(24.9442, 121.3714, testCatalog())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now().UTC()
	if _, err := src.Positions(ctx, "iss", TimeRange{Start: start, End: start.Add(time.Hour)}); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}
