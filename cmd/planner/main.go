package main

import (
	"context"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/signalsfoundry/leo-serving-planner/internal/alerts"
	"github.com/signalsfoundry/leo-serving-planner/internal/catalog"
	"github.com/signalsfoundry/leo-serving-planner/internal/config"
	"github.com/signalsfoundry/leo-serving-planner/internal/logging"
	"github.com/signalsfoundry/leo-serving-planner/internal/monitor"
	"github.com/signalsfoundry/leo-serving-planner/internal/observability"
	"github.com/signalsfoundry/leo-serving-planner/internal/orbit"
	"github.com/signalsfoundry/leo-serving-planner/internal/pipeline"
	"github.com/signalsfoundry/leo-serving-planner/internal/pool"
	"github.com/signalsfoundry/leo-serving-planner/internal/state"
	"github.com/signalsfoundry/leo-serving-planner/model"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Path to a JSON planner config; empty uses defaults")
	tlePath := flag.String("tle", "configs/catalog.tle", "Path to the TLE catalog feed")
	metricsAddr := flag.String("metrics-addr", ":9090", "HTTP address for Prometheus /metrics")
	healthAddr := flag.String("health-addr", ":50051", "TCP address the gRPC health server listens on")
	cycleInterval := flag.Duration("cycle-interval", 5*time.Minute, "Planning cycle period")
	planningWindow := flag.Duration("planning-window", 2*time.Hour, "Orbit sampling window per cycle")
	servingSize := flag.Int("serving-size", 3, "Serving satellites kept out of the backup pool")
	exportDir := flag.String("export-dir", "", "Directory for per-cycle export documents; empty disables")
	natsURL := flag.String("nats-url", os.Getenv("PLANNER_NATS_URL"), "NATS server URL for alert publishing; empty disables")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx := context.Background()

	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		log.Error(ctx, "failed to load config", logging.Err(err))
		os.Exit(1)
	}

	collector, err := observability.NewPlannerCollector(nil)
	if err != nil {
		log.Error(ctx, "failed to initialise metrics collector", logging.Err(err))
		os.Exit(1)
	}
	metricsSrv := serveMetrics(*metricsAddr, collector, log)

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		os.Exit(1)
	}

	sats, err := catalog.LoadTLEFile(*tlePath)
	if err != nil {
		log.Error(ctx, "failed to load TLE catalog", logging.Err(err))
		os.Exit(1)
	}
	inventory := catalog.New()
	for _, sat := range sats {
		if err := inventory.Add(sat); err != nil {
			log.Warn(ctx, "skipping duplicate catalog entry", logging.String("id", sat.ID))
		}
	}
	log.Info(ctx, "catalog loaded", logging.String("path", *tlePath), logging.Int("satellites", inventory.Len()))

	source := orbit.NewSGP4Source(cfg.Observer.LatDeg, cfg.Observer.LonDeg, inventory.List())
	inventory.Subscribe(func(ev catalog.Event) {
		switch ev.Type {
		case catalog.EventSatelliteUpserted:
			source.Upsert(ev.Satellite)
		case catalog.EventSatelliteRemoved:
			source.Remove(ev.Satellite.ID)
		}
	})

	sinks := []alerts.Sink{alerts.NewLogSink(log), alertCounterSink{collector}}
	if *natsURL != "" {
		natsSink, err := alerts.NewNATSSink(*natsURL, log)
		if err != nil {
			log.Warn(ctx, "NATS sink unavailable, alerts stay local", logging.Err(err))
		} else {
			sinks = append(sinks, natsSink)
			defer func() { _ = natsSink.Close() }()
		}
	}
	dispatcher := alerts.NewDispatcher(log, sinks)

	store := state.NewStore()
	p := &planner{
		cfg:         cfg,
		inventory:   inventory,
		pipe:        pipeline.New(cfg, source, log),
		poolMgr:     pool.NewManager(cfg.Pool, log),
		optimizer:   pool.NewOptimizer(cfg.Pool, log),
		store:       store,
		collector:   collector,
		log:         log,
		window:      *planningWindow,
		servingSize: *servingSize,
		exportDir:   *exportDir,
		now:         time.Now,
	}
	p.switcher = pool.NewSwitcher(
		&servingLink{store: store, now: time.Now},
		&orbitProbe{source: source, inventory: inventory, now: time.Now},
		pool.SwitchConfig{},
		log,
	)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	healthSrv := observability.NewHealthServer(collector)
	mon := monitor.New(cfg.Monitor, source, dispatcher, log,
		monitor.WithReportHook(func(report *monitor.Report) {
			collector.SetCoverage(report.CoverageRate, len(report.Gaps))
			collector.SetForecastCacheRatio(report.ForecastCacheHitRatio)
			healthSrv.SetCoverageStatus(report.Status)
			if report.CoveringSatellites == 0 && report.TotalSatellites > 0 {
				go p.failover(runCtx)
			}
		}))

	lis, err := net.Listen("tcp", *healthAddr)
	if err != nil {
		log.Error(ctx, "failed to listen for gRPC health", logging.String("addr", *healthAddr), logging.Err(err))
		os.Exit(1)
	}
	log.Info(ctx, "starting gRPC health server", logging.String("addr", *healthAddr))
	go func() {
		if err := healthSrv.Serve(lis); err != nil {
			log.Error(ctx, "health server exited", logging.Err(err))
		}
	}()

	go p.runLoop(runCtx, *cycleInterval)
	go func() { _ = mon.Run(runCtx, monitorFeed(store, source)) }()

	<-runCtx.Done()

	log.Info(ctx, "shutting down planner")
	healthSrv.GracefulStop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)
}

// alertCounterSink counts every published alert by level.
type alertCounterSink struct {
	collector *observability.PlannerCollector
}

func (s alertCounterSink) Send(_ context.Context, a model.CoverageAlert) error {
	s.collector.RecordAlert(string(a.Level))
	return nil
}

func serveMetrics(addr string, collector *observability.PlannerCollector, log logging.Logger) *http.Server {
	if collector == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
