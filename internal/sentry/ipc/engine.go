package ipc

import (
	"context"
	"fmt"
	"time"

	"github.com/sentrymesh/nyxsentry/internal/sentry/eventstore"
	"github.com/sentrymesh/nyxsentry/internal/sentry/model"
	"github.com/sentrymesh/nyxsentry/internal/sentry/state"
	"github.com/sentrymesh/nyxsentry/internal/sentry/trust"
	"github.com/sentrymesh/nyxsentry/internal/telemetry"
)

// Engine implements Commands against a single runtime state, backing
// every mutation with the same stores the scheduler reads and writes.
type Engine struct {
	state *state.State
}

// New wires an Engine against st.
func New(st *state.State) *Engine {
	return &Engine{state: st}
}

func (e *Engine) GetProcessTree(ctx context.Context) ([]model.ProcessNode, error) {
	return e.state.Tree(), nil
}

func (e *Engine) GetProcessMetrics(ctx context.Context) ([]model.ProcessMetric, error) {
	return e.state.Metrics(), nil
}

func (e *Engine) GetInstalledPrograms(ctx context.Context) ([]model.InstalledProgram, error) {
	return e.state.Programs(), nil
}

func (e *Engine) GetStartupProcesses(ctx context.Context) ([]model.StartupProcess, error) {
	return e.state.StartupProcesses(), nil
}

func (e *Engine) GetAppUsageHistory(ctx context.Context) ([]model.AppUsageEntry, error) {
	return e.state.UsageHistory(), nil
}

func (e *Engine) GetActiveAlerts(ctx context.Context) ([]model.Alert, error) {
	return e.state.Alerts.Active(), nil
}

func (e *Engine) GetAlertHistory(ctx context.Context) ([]model.Alert, error) {
	return e.state.Alerts.History(), nil
}

func (e *Engine) AckAlert(ctx context.Context, id string) (bool, error) {
	return e.state.Alerts.Acknowledge(id)
}

func (e *Engine) DeleteAlert(ctx context.Context, id string) (bool, error) {
	return e.state.Alerts.Delete(id, time.Now())
}

func (e *Engine) DeleteAllAlerts(ctx context.Context) (int, error) {
	return e.state.Alerts.DeleteAllActive(time.Now())
}

func (e *Engine) SetDetectionProfile(ctx context.Context, profile model.DetectionProfile) error {
	e.state.SetDetectionProfile(profile)
	return nil
}

func (e *Engine) SetCPUSpikeThreshold(ctx context.Context, cfg model.CpuSpikeConfig) error {
	e.state.SetCPUSpikeConfig(cfg)
	return nil
}

// AddKnownProcess implements §6's add_known_process: the override is
// keyed by the normalized exe path when present, else the process
// name, and always forces trust_level to Trusted.
func (e *Engine) AddKnownProcess(ctx context.Context, in KnownProcessOverride) error {
	path := ""
	if in.Path != nil {
		path = *in.Path
	}
	keys := trust.ProcessMatchKeys(path, in.Name)
	if len(keys) == 0 {
		return fmt.Errorf("ipc: add_known_process requires a path or name")
	}
	trusted := model.TrustTrusted
	label := in.Label
	_, err := e.state.Known.Upsert(model.EntityKindProcess, keys[0], &trusted, &label, time.Now())
	return err
}

// AddKnownProgram implements §6's add_known_program, keyed by the
// program's primary match key (exe path, then install location, then
// name).
func (e *Engine) AddKnownProgram(ctx context.Context, in KnownProgramOverride) error {
	exe, install := "", ""
	if in.ExecutablePath != nil {
		exe = *in.ExecutablePath
	}
	if in.InstallLocation != nil {
		install = *in.InstallLocation
	}
	key := trust.ProgramPrimaryKey(exe, install, in.Name)
	trusted := model.TrustTrusted
	label := in.Label
	_, err := e.state.Known.Upsert(model.EntityKindProgram, key, &trusted, &label, time.Now())
	return err
}

// SetProcessTrustOverride implements §6's set_process_trust_override:
// persists the override, then applies it immediately to any current
// metric matching the normalized key, per state.ApplyOverride's
// contract.
func (e *Engine) SetProcessTrustOverride(ctx context.Context, in ProcessTrustOverride) error {
	path := ""
	if in.Path != nil {
		path = *in.Path
	}
	keys := trust.ProcessMatchKeys(path, in.Name)
	if len(keys) == 0 {
		return fmt.Errorf("ipc: set_process_trust_override requires a path or name")
	}
	key := keys[0]
	trustLevel := in.Trust
	if _, err := e.state.Known.Upsert(model.EntityKindProcess, key, &trustLevel, in.Label, time.Now()); err != nil {
		return err
	}
	e.state.ApplyOverride(func(m model.ProcessMetric) []string {
		p := ""
		if m.ExePath != nil {
			p = *m.ExePath
		}
		return trust.ProcessMatchKeys(p, m.Name)
	}, trustLevel, in.Label, key)
	return nil
}

func (e *Engine) GetEventTimeline(ctx context.Context, q EventTimelineQuery) ([]model.EventEnvelope, error) {
	return e.state.Events.List(ctx, eventstore.ListQuery{
		Limit:     q.Limit,
		EventType: q.Type,
		Sensor:    q.Sensor,
		Search:    q.Search,
	})
}

func (e *Engine) GetSensorHealth(ctx context.Context) ([]model.SensorHealth, error) {
	return e.state.SensorHealth(), nil
}

func (e *Engine) GetPerformanceStats(ctx context.Context) (model.PerformanceStats, error) {
	return e.state.PerformanceStats(func() (uint64, uint64) {
		total, err := e.state.Events.Count(ctx)
		if err != nil {
			return 0, 0
		}
		return total, total
	}), nil
}

func (e *Engine) GetResponsePolicy(ctx context.Context) (model.ResponsePolicy, error) {
	return e.state.Policy(), nil
}

func (e *Engine) SetResponsePolicy(ctx context.Context, policy model.ResponsePolicy) error {
	e.state.SetPolicy(policy)
	return nil
}

func (e *Engine) GetResponseActions(ctx context.Context, limit int) ([]model.ResponseActionRecord, error) {
	return e.state.Responses.Records(limit), nil
}

// RunResponseAction implements §6's run_response_action: an
// operator-triggered dispatch, always non-automatic so it bypasses the
// cooldown gate that protects only the automatic ladder.
func (e *Engine) RunResponseAction(ctx context.Context, pid uint32, actionType model.ResponseActionType, reason string) (*model.ResponseActionRecord, error) {
	if reason == "" {
		reason = "manual operator action"
	}
	record, err := e.state.Responses.RunAction(pid, actionType, reason, false, e.state.Policy(), e.state.MetricByPID, time.Now())
	if err != nil {
		telemetry.RecordResponseActionDenied(string(actionType))
		return nil, err
	}
	telemetry.RecordResponseAction(string(actionType), false, record.Success)
	return record, nil
}

func (e *Engine) GetFileSHA256(ctx context.Context, path string) (string, error) {
	return hashFileSHA256(path)
}

func (e *Engine) OpenPathInExplorer(ctx context.Context, path string) error {
	return openPath(path)
}

func (e *Engine) OpenURLInBrowser(ctx context.Context, url string) error {
	return openURL(url)
}
