// Package ipc exposes the engine as a transport-agnostic command
// surface (§6): one Go interface any RPC layer (HTTP, NATS, an
// in-process call) can sit in front of, so no particular wire
// framework is baked into the core. Grounded in shape on the original
// agent's tauri::command surface, translated away from a single
// specific transport.
package ipc

import (
	"context"

	"github.com/sentrymesh/nyxsentry/internal/sentry/model"
)

// EventTimelineQuery mirrors get_event_timeline's filter parameters.
type EventTimelineQuery struct {
	Limit  int
	Type   *string
	Sensor *string
	Search *string
}

// KnownProcessOverride mirrors add_known_process's parameters.
type KnownProcessOverride struct {
	Path  *string
	Name  string
	Label string
}

// KnownProgramOverride mirrors add_known_program's parameters.
type KnownProgramOverride struct {
	ExecutablePath  *string
	InstallLocation *string
	Name            string
	Label           string
}

// ProcessTrustOverride mirrors set_process_trust_override's parameters.
type ProcessTrustOverride struct {
	Path  *string
	Name  string
	Trust model.TrustLevel
	Label *string
}

// Commands is the full §6 command surface. Every method is safe to
// call concurrently; all state is owned by the underlying runtime
// state and response/alert stores.
type Commands interface {
	GetProcessTree(ctx context.Context) ([]model.ProcessNode, error)
	GetProcessMetrics(ctx context.Context) ([]model.ProcessMetric, error)
	GetInstalledPrograms(ctx context.Context) ([]model.InstalledProgram, error)
	GetStartupProcesses(ctx context.Context) ([]model.StartupProcess, error)
	GetAppUsageHistory(ctx context.Context) ([]model.AppUsageEntry, error)

	GetActiveAlerts(ctx context.Context) ([]model.Alert, error)
	GetAlertHistory(ctx context.Context) ([]model.Alert, error)
	AckAlert(ctx context.Context, id string) (bool, error)
	DeleteAlert(ctx context.Context, id string) (bool, error)
	DeleteAllAlerts(ctx context.Context) (int, error)

	SetDetectionProfile(ctx context.Context, profile model.DetectionProfile) error
	SetCPUSpikeThreshold(ctx context.Context, cfg model.CpuSpikeConfig) error

	AddKnownProcess(ctx context.Context, in KnownProcessOverride) error
	AddKnownProgram(ctx context.Context, in KnownProgramOverride) error
	SetProcessTrustOverride(ctx context.Context, in ProcessTrustOverride) error

	GetEventTimeline(ctx context.Context, q EventTimelineQuery) ([]model.EventEnvelope, error)
	GetSensorHealth(ctx context.Context) ([]model.SensorHealth, error)
	GetPerformanceStats(ctx context.Context) (model.PerformanceStats, error)

	GetResponsePolicy(ctx context.Context) (model.ResponsePolicy, error)
	SetResponsePolicy(ctx context.Context, policy model.ResponsePolicy) error
	GetResponseActions(ctx context.Context, limit int) ([]model.ResponseActionRecord, error)
	RunResponseAction(ctx context.Context, pid uint32, actionType model.ResponseActionType, reason string) (*model.ResponseActionRecord, error)

	GetFileSHA256(ctx context.Context, path string) (string, error)
	OpenPathInExplorer(ctx context.Context, path string) error
	OpenURLInBrowser(ctx context.Context, url string) error
}
