package scheduler

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/sentrymesh/nyxsentry/internal/sentry/actuator"
	"github.com/sentrymesh/nyxsentry/internal/sentry/alerts"
	"github.com/sentrymesh/nyxsentry/internal/sentry/correlation"
	"github.com/sentrymesh/nyxsentry/internal/sentry/eventstore"
	"github.com/sentrymesh/nyxsentry/internal/sentry/model"
	"github.com/sentrymesh/nyxsentry/internal/sentry/response"
	"github.com/sentrymesh/nyxsentry/internal/sentry/state"
)

type fakeProcessSensor struct {
	metrics []model.ProcessMetric
}

func (f *fakeProcessSensor) Sample() ([]model.ProcessMetric, error) {
	return append([]model.ProcessMetric(nil), f.metrics...), nil
}

type fakeGPUSensor struct{}

func (fakeGPUSensor) Sample() (map[uint32]float32, error) { return map[uint32]float32{}, nil }

type fakeNetworkSensor struct{}

func (fakeNetworkSensor) Sample() ([]model.NetworkConnection, error) { return nil, nil }

type fakeRegistrySensor struct{}

func (fakeRegistrySensor) Sample() (map[string]string, error) { return map[string]string{}, nil }

type fakeSignatureSensor struct{ signed bool }

func (f fakeSignatureSensor) Probe(string) (bool, error) { return f.signed, nil }

type fakeActuator struct{}

func (fakeActuator) Suspend(uint32) (string, error)             { return "suspended", nil }
func (fakeActuator) Terminate(uint32) (string, error)           { return "terminated", nil }
func (fakeActuator) BlockNetwork(uint32, string) (string, error) { return "blocked", nil }
func (fakeActuator) VerifySignature(string) (bool, error)       { return true, nil }

func newTestScheduler(t *testing.T, proc *fakeProcessSensor) *Scheduler {
	t.Helper()
	dir := t.TempDir()

	alertStore, err := alerts.NewStore(filepath.Join(dir, "alerts.json"))
	require.NoError(t, err)
	known, err := state.NewKnownEntityStore(filepath.Join(dir, "known.json"))
	require.NoError(t, err)
	var act actuator.Actuator = fakeActuator{}
	respEngine, err := response.NewEngine(filepath.Join(dir, "responses.json"), act)
	require.NoError(t, err)
	events := eventstore.NewEmbedded()

	st := state.New("test-host", alertStore, events, known, respEngine)

	sn := Sensors{
		Process:   proc,
		GPU:       fakeGPUSensor{},
		Network:   fakeNetworkSensor{},
		Registry:  fakeRegistrySensor{},
		Signature: fakeSignatureSensor{signed: false},
	}

	return New(st, sn, Inventory{}, correlation.NewTracker(), noop.NewTracerProvider().Tracer(""))
}

func stringPtr(s string) *string { return &s }

// TestRunTickFlagsSuspiciousProcessAndEmitsAlert mirrors scenario S1:
// an unsigned script host under a temp path, spawned by an office
// parent, scores high enough to be classified suspicious and to
// generate a critical suspicious_process alert.
func TestRunTickFlagsSuspiciousProcessAndEmitsAlert(t *testing.T) {
	proc := &fakeProcessSensor{metrics: []model.ProcessMetric{
		{PID: 1234, PPID: uint32Ptr(10), Name: "powershell.exe", ExePath: stringPtr(`C:\Users\x\AppData\Local\Temp\a.exe`)},
		{PID: 10, Name: "winword.exe"},
	}}
	sched := newTestScheduler(t, proc)

	sched.runTick(context.Background(), time.Now())

	metrics := sched.state.Metrics()
	require.Len(t, metrics, 2)

	var target model.ProcessMetric
	for _, m := range metrics {
		if m.PID == 1234 {
			target = m
		}
	}
	require.Equal(t, model.RiskSuspicious, target.Suspicion.Level)
	require.Equal(t, uint8(100), target.RiskScore)

	active := sched.state.Alerts.Active()
	require.Len(t, active, 1)
	require.Equal(t, model.AlertTypeSuspiciousProcess, active[0].AlertType)
	require.Equal(t, model.SeverityCritical, active[0].Severity)
}

func uint32Ptr(v uint32) *uint32 { return &v }

// TestRunTickAppliesKnownEntityOverride mirrors scenario S6: a
// known-entity override for a normalized exe path forces the
// matching metric's trust to Trusted with the stored label.
func TestRunTickAppliesKnownEntityOverride(t *testing.T) {
	proc := &fakeProcessSensor{metrics: []model.ProcessMetric{
		{PID: 77, Name: "tool.exe", ExePath: stringPtr(`C:\Foo\Bar.exe`)},
	}}
	sched := newTestScheduler(t, proc)

	trusted := model.TrustTrusted
	label := "Known Tool"
	_, err := sched.state.Known.Upsert(model.EntityKindProcess, `c:\foo\bar.exe`, &trusted, &label, time.Now())
	require.NoError(t, err)

	sched.runTick(context.Background(), time.Now())

	metrics := sched.state.Metrics()
	require.Len(t, metrics, 1)
	require.Equal(t, model.TrustTrusted, metrics[0].TrustLevel)
	require.Equal(t, "Known Tool", *metrics[0].TrustLabel)
}

// TestRunTickSkipsInternalProcessAlerts verifies the engine's own
// process never generates alerts or a non-benign verdict.
func TestRunTickSkipsInternalProcessAlerts(t *testing.T) {
	proc := &fakeProcessSensor{metrics: []model.ProcessMetric{
		{PID: 5, Name: "nyxsentryd.exe", ExePath: stringPtr(`C:\Users\x\AppData\Local\Temp\nyxsentryd.exe`)},
	}}
	sched := newTestScheduler(t, proc)

	sched.runTick(context.Background(), time.Now())

	metrics := sched.state.Metrics()
	require.Equal(t, model.VerdictBenign, metrics[0].Verdict)
	require.Empty(t, sched.state.Alerts.Active())
}

func TestBuildRiskFactorsDefaultsAndDedups(t *testing.T) {
	factors := buildRiskFactors(nil, nil, model.RiskLegitimate)
	require.Equal(t, []string{"No suspicious heuristics triggered"}, factors)

	factors = buildRiskFactors([]string{"a", "a"}, []string{"b"}, model.RiskSuspicious)
	require.Equal(t, []string{"a", "b"}, factors)

	factors = buildRiskFactors([]string{"a"}, nil, model.RiskUnknown)
	require.Contains(t, factors, "Heuristics inconclusive; process classified as unclassified risk")
}

func TestIsListeningOrWildcardExcludesListenersAndEmptyRemotes(t *testing.T) {
	listening := "LISTENING"
	require.True(t, isListeningOrWildcard(model.NetworkConnection{Protocol: "tcp", State: &listening, RemoteAddress: "0.0.0.0:0"}))
	require.True(t, isListeningOrWildcard(model.NetworkConnection{Protocol: "udp", RemoteAddress: "*:*"}))
	require.False(t, isListeningOrWildcard(model.NetworkConnection{Protocol: "tcp", RemoteAddress: "93.184.216.34:443"}))
}
