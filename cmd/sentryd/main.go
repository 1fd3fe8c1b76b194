// Command sentryd is the agent daemon: it wires the five sensors, the
// inventory listers, the platform actuator, the durable stores, and
// the tick-loop scheduler into one running process and one runtime
// state, with an optional NATS bridge for external consumers.
// Composition style follows the teacher's cmd/giru: flags, optional
// collaborators that degrade gracefully when unavailable, background
// goroutines, and a signal-driven graceful shutdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/sentrymesh/nyxsentry/internal/sentry/actuator"
	"github.com/sentrymesh/nyxsentry/internal/sentry/alerts"
	"github.com/sentrymesh/nyxsentry/internal/sentry/correlation"
	"github.com/sentrymesh/nyxsentry/internal/sentry/eventstore"
	"github.com/sentrymesh/nyxsentry/internal/sentry/inventory"
	"github.com/sentrymesh/nyxsentry/internal/sentry/response"
	"github.com/sentrymesh/nyxsentry/internal/sentry/scheduler"
	"github.com/sentrymesh/nyxsentry/internal/sentry/sensors"
	"github.com/sentrymesh/nyxsentry/internal/sentry/state"
	"github.com/sentrymesh/nyxsentry/internal/telemetry"
	"github.com/sentrymesh/nyxsentry/internal/transport"
)

func main() {
	dataDir := flag.String("data-dir", defaultDataDir(), "directory for persisted state (alerts, known-entity overrides, response log)")
	eventBackend := flag.String("event-backend", "embedded", "durable event log backend: embedded, postgres, or mongo")
	postgresDSN := flag.String("postgres-dsn", "", "postgres DSN, required when -event-backend=postgres")
	mongoURI := flag.String("mongo-uri", "", "mongodb URI, required when -event-backend=mongo")
	mongoDatabase := flag.String("mongo-database", "nyxsentry", "mongodb database name")
	mongoCollection := flag.String("mongo-collection", "events", "mongodb collection name")
	natsURL := flag.String("nats", "", "NATS server URL; when empty, alert/snapshot publishing to NATS is disabled")
	metricsAddr := flag.String("metrics-addr", ":9477", "Prometheus metrics and health-check listen address")
	tracingEnabled := flag.Bool("tracing", false, "emit tick spans to stdout via the OpenTelemetry SDK")
	flag.Parse()

	hostID := os.Getenv("NYXSENTRY_HOST_ID")
	if hostID == "" {
		hostID = "unknown-host"
	}

	if err := os.MkdirAll(*dataDir, 0o700); err != nil {
		log.Fatalf("[Sentry] creating data dir %s: %v", *dataDir, err)
	}

	tracer, shutdownTracing, err := initTracing(*tracingEnabled)
	if err != nil {
		log.Fatalf("[Sentry] initializing tracing: %v", err)
	}
	defer shutdownTracing(context.Background())

	alertStore, err := alerts.NewStore(filepath.Join(*dataDir, "alerts.json"))
	if err != nil {
		log.Fatalf("[Sentry] opening alert store: %v", err)
	}

	known, err := state.NewKnownEntityStore(filepath.Join(*dataDir, "known_entities.json"))
	if err != nil {
		log.Fatalf("[Sentry] opening known-entity store: %v", err)
	}

	eventStore, err := openEventStore(*eventBackend, *postgresDSN, *mongoURI, *mongoDatabase, *mongoCollection, *dataDir)
	if err != nil {
		log.Fatalf("[Sentry] opening event store: %v", err)
	}

	act := actuator.NewPlatform()

	responses, err := response.NewEngine(filepath.Join(*dataDir, "response_actions.json"), act)
	if err != nil {
		log.Fatalf("[Sentry] opening response engine: %v", err)
	}

	st := state.New(hostID, alertStore, eventStore, known, responses)

	sn := scheduler.Sensors{
		Process:   sensors.NewProcessSensor(),
		GPU:       sensors.NewGPUSensor(),
		Network:   sensors.NewNetworkSensor(),
		Registry:  sensors.NewRegistrySensor(),
		Signature: sensors.NewSignatureSensor(act),
	}
	inv := scheduler.Inventory{
		Programs: inventory.NewProgramLister(),
		Startup:  inventory.NewStartupLister(),
	}

	sched := scheduler.New(st, sn, inv, correlation.NewTracker(), tracer)

	var bridge *transport.Bridge
	var publisher *transport.Publisher
	if *natsURL != "" {
		cfg := transport.DefaultConfig()
		cfg.URL = *natsURL
		publisher, err = transport.NewPublisher(cfg)
		if err != nil {
			log.Printf("[Sentry] NATS publisher unavailable, continuing without it: %v", err)
			publisher = nil
		} else {
			bridge = transport.NewBridge(publisher, sched.AlertCreated, sched.SnapshotUpdated)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched.Start(ctx)

	if bridge != nil {
		go bridge.Run(ctx)
	}

	metricsServer := startMetricsServer(*metricsAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	log.Printf("[Sentry] sentryd running as host %q, tick interval 2s, metrics on %s", hostID, *metricsAddr)
	<-sigCh

	log.Printf("[Sentry] shutting down")
	cancel()
	sched.Stop()
	shutdownMetricsServer(metricsServer)
	if publisher != nil {
		publisher.Close()
	}
	if err := eventStore.Close(context.Background()); err != nil {
		log.Printf("[Sentry] closing event store: %v", err)
	}
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "nyxsentry")
	}
	return "."
}

func openEventStore(backend, postgresDSN, mongoURI, mongoDatabase, mongoCollection, dataDir string) (eventstore.EventStore, error) {
	switch backend {
	case "embedded", "":
		return eventstore.NewEmbedded(), nil
	case "postgres":
		if postgresDSN == "" {
			return nil, fmt.Errorf("event-backend=postgres requires -postgres-dsn")
		}
		return eventstore.NewPostgres(postgresDSN)
	case "mongo":
		if mongoURI == "" {
			return nil, fmt.Errorf("event-backend=mongo requires -mongo-uri")
		}
		return eventstore.NewMongo(mongoURI, mongoDatabase, mongoCollection)
	default:
		return nil, fmt.Errorf("unknown event-backend %q (want embedded, postgres, or mongo)", backend)
	}
}

func initTracing(enabled bool) (trace.Tracer, func(context.Context) error, error) {
	if !enabled {
		return noop.NewTracerProvider().Tracer(""), func(context.Context) error { return nil }, nil
	}

	exporter, err := stdouttrace.New(stdouttrace.WithoutTimestamps())
	if err != nil {
		return nil, nil, err
	}
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(attribute.String("service.name", "nyxsentry-sentryd")))
	if err != nil {
		return nil, nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	return tp.Tracer("sentryd"), tp.Shutdown, nil
}

func startMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", telemetry.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[Sentry] metrics server error: %v", err)
		}
	}()
	return server
}

func shutdownMetricsServer(server *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("[Sentry] metrics server shutdown error: %v", err)
	}
}
