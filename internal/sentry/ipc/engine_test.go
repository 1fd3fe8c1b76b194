package ipc

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sentrymesh/nyxsentry/internal/sentry/actuator"
	"github.com/sentrymesh/nyxsentry/internal/sentry/alerts"
	"github.com/sentrymesh/nyxsentry/internal/sentry/eventstore"
	"github.com/sentrymesh/nyxsentry/internal/sentry/model"
	"github.com/sentrymesh/nyxsentry/internal/sentry/response"
	"github.com/sentrymesh/nyxsentry/internal/sentry/state"
)

type fakeActuator struct{}

func (fakeActuator) Suspend(uint32) (string, error)              { return "suspended", nil }
func (fakeActuator) Terminate(uint32) (string, error)            { return "terminated", nil }
func (fakeActuator) BlockNetwork(uint32, string) (string, error) { return "blocked", nil }
func (fakeActuator) VerifySignature(string) (bool, error)        { return true, nil }

func newTestEngine(t *testing.T) *Engine {
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
	return New(st)
}

func TestSetProcessTrustOverrideAppliesImmediatelyToLiveMetric(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	path := `C:\Tools\agent.exe`
	metrics := []model.ProcessMetric{{PID: 42, Name: "agent.exe", ExePath: &path, TrustLevel: model.TrustUnknown}}
	e.state.UpdateSnapshot(metrics, nil, time.Now())

	label := "Ops Tooling"
	err := e.SetProcessTrustOverride(ctx, ProcessTrustOverride{
		Path:  &path,
		Name:  "agent.exe",
		Trust: model.TrustTrusted,
		Label: &label,
	})
	require.NoError(t, err)

	got, err := e.GetProcessMetrics(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, model.TrustTrusted, got[0].TrustLevel)
	require.Equal(t, "Ops Tooling", *got[0].TrustLabel)
}

func TestAlertLifecycleCommands(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	pid := uint32(7)
	alert, err := e.state.Alerts.Push(model.AlertTypeCPUSpike, model.SeverityWarn, &pid, "title", "desc", nil, time.Now())
	require.NoError(t, err)
	require.NotNil(t, alert)

	active, err := e.GetActiveAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)

	ok, err := e.AckAlert(ctx, alert.ID)
	require.NoError(t, err)
	require.True(t, ok)

	active, err = e.GetActiveAlerts(ctx)
	require.NoError(t, err)
	require.Empty(t, active)

	history, err := e.GetAlertHistory(ctx)
	require.NoError(t, err)
	require.Len(t, history, 1)
}

func TestGetFileSHA256(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "sample.bin")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	sum, err := e.GetFileSHA256(ctx, path)
	require.NoError(t, err)
	require.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", sum)
}

func TestRunResponseActionIsNeverAutomatic(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	path := `C:\Tools\agent.exe`
	metrics := []model.ProcessMetric{{PID: 99, Name: "agent.exe", ExePath: &path, RiskScore: 10, Verdict: model.VerdictBenign}}
	e.state.UpdateSnapshot(metrics, nil, time.Now())

	record, err := e.RunResponseAction(ctx, 99, model.ActionSuspendProcess, "")
	require.NoError(t, err)
	require.NotNil(t, record)
	require.False(t, record.Automatic)
	require.Equal(t, "manual operator action", record.Reason)
}
