// Package scheduler implements the tick loop (C11): a single task
// driving sensor sampling, per-process scoring, correlation,
// alerting, auto-response, and event emission on a fixed 2-second
// cadence. Grounded on the original agent's
// monitoring::start_background_tasks tick loop and the teacher's
// blueteam.Agent Start/Stop goroutine lifecycle (stopCh + WaitGroup).
package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/sentrymesh/nyxsentry/internal/sentry/correlation"
	"github.com/sentrymesh/nyxsentry/internal/sentry/inventory"
	"github.com/sentrymesh/nyxsentry/internal/sentry/model"
	"github.com/sentrymesh/nyxsentry/internal/sentry/sensors"
	"github.com/sentrymesh/nyxsentry/internal/sentry/state"
	"github.com/sentrymesh/nyxsentry/internal/telemetry"
)

const (
	tickInterval          = 2 * time.Second
	gpuRefreshTicks        = 3
	networkRefreshTicks    = 3
	registryRefreshTicks   = 5
	inventoryRefreshTicks  = 300
	signatureProbeBudget   = 16
)

// Sensors bundles the five sensor adapters the scheduler drives on
// their respective cadences (§4.1, §4.11).
type Sensors struct {
	Process   sensors.ProcessSensor
	GPU       sensors.GPUSensor
	Network   sensors.NetworkSensor
	Registry  sensors.RegistrySensor
	Signature sensors.SignatureSensor
}

// Inventory bundles the installed-program and startup-item listers
// refreshed every inventoryRefreshTicks.
type Inventory struct {
	Programs inventory.ProgramLister
	Startup  inventory.StartupLister
}

// Scheduler drives the tick loop against a single runtime state. All
// tick work executes sequentially on one goroutine; external readers
// of state are unaffected, since state guards every collection with
// its own lock (§4.11's "no intra-tick concurrency" guarantee).
type Scheduler struct {
	state       *state.State
	sensors     Sensors
	inventory   Inventory
	correlation *correlation.Tracker
	tracer      trace.Tracer
	probeLimiter *rate.Limiter

	AlertCreated    chan model.Alert
	SnapshotUpdated chan []model.ProcessMetric

	prevMetrics     map[uint32]model.ProcessMetric
	prevConnections map[string]model.NetworkConnection
	prevRegistry    map[string]string
	lastGPUCache    map[uint32]float32
	tick            uint64

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New wires a scheduler against st. tracer may be a no-op tracer
// (noop.NewTracerProvider().Tracer("")) when tracing is disabled.
func New(st *state.State, sn Sensors, inv Inventory, corr *correlation.Tracker, tracer trace.Tracer) *Scheduler {
	return &Scheduler{
		state:       st,
		sensors:     sn,
		inventory:   inv,
		correlation: corr,
		tracer:      tracer,
		// Burst 16 matches the §4.11 fresh-probe budget; refill rate
		// spreads that budget evenly across one tick interval rather
		// than granting it instantaneously every 2s, which would let
		// a burst of fresh binaries exhaust it in the opening instant
		// of a tick and starve probes requested slightly later.
		probeLimiter:    rate.NewLimiter(rate.Every(tickInterval/signatureProbeBudget), signatureProbeBudget),
		AlertCreated:    make(chan model.Alert, 256),
		SnapshotUpdated: make(chan []model.ProcessMetric, 16),
		prevConnections: make(map[string]model.NetworkConnection),
		prevRegistry:    make(map[string]string),
		stopCh:          make(chan struct{}),
	}
}

// Start refreshes the inventory once synchronously, then launches the
// tick loop as a background goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	s.refreshInventory(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(tickInterval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				started := time.Now()
				s.runTick(ctx, started)
				elapsed := time.Since(started)
				s.state.RecordLoopDuration(float64(elapsed.Milliseconds()))
				telemetry.RecordTick(elapsed.Seconds())
				telemetry.GetMetrics().TrackedProcesses.Set(float64(len(s.state.Metrics())))
				telemetry.RecordAlertsActive(len(s.state.Alerts.Active()))
				if count, err := s.state.Events.Count(ctx); err == nil {
					telemetry.RecordEventStoreSize(count)
				}
			}
		}
	}()

	log.Printf("[Sentry:Scheduler] started, tick interval %s", tickInterval)
}

// Stop signals the tick loop to exit and waits for it to return.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
	log.Printf("[Sentry:Scheduler] stopped after %d ticks", s.tick)
}
