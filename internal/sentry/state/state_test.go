package state

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sentrymesh/nyxsentry/internal/sentry/alerts"
	"github.com/sentrymesh/nyxsentry/internal/sentry/eventstore"
	"github.com/sentrymesh/nyxsentry/internal/sentry/model"
	"github.com/sentrymesh/nyxsentry/internal/sentry/response"
)

type nopActuator struct{}

func (nopActuator) Suspend(uint32) (string, error)             { return "", nil }
func (nopActuator) Terminate(uint32) (string, error)            { return "", nil }
func (nopActuator) BlockNetwork(uint32, string) (string, error) { return "", nil }
func (nopActuator) VerifySignature(string) (bool, error)        { return true, nil }

func newTestState(t *testing.T) *State {
	t.Helper()
	dir := t.TempDir()

	alertStore, err := alerts.NewStore(filepath.Join(dir, "alerts.json"))
	require.NoError(t, err)

	knownStore, err := NewKnownEntityStore(filepath.Join(dir, "known.json"))
	require.NoError(t, err)

	respEngine, err := response.NewEngine(filepath.Join(dir, "responses.json"), nopActuator{})
	require.NoError(t, err)

	return New("test-host", alertStore, eventstore.NewEmbedded(), knownStore, respEngine)
}

func strPtr(s string) *string { return &s }

func TestUpdateSnapshotIncrementsLaunchCountOnlyForNewPIDs(t *testing.T) {
	s := newTestState(t)
	now := time.Now()

	exe := `C:\Apps\worker.exe`
	metric := model.ProcessMetric{PID: 1, Name: "worker.exe", ExePath: &exe, CPUPct: 10}
	s.UpdateSnapshot([]model.ProcessMetric{metric}, BuildTree([]model.ProcessMetric{metric}), now)

	metric.CPUPct = 50
	s.UpdateSnapshot([]model.ProcessMetric{metric}, BuildTree([]model.ProcessMetric{metric}), now.Add(2*time.Second))

	usage := s.UsageHistory()
	require.Len(t, usage, 1)
	require.Equal(t, uint64(1), usage[0].LaunchCount, "the same PID observed across ticks must not re-increment launch_count")
	require.Equal(t, float32(50), usage[0].MaxCPUPct)
}

func TestUpdateSnapshotIncrementsLaunchCountForNewPID(t *testing.T) {
	s := newTestState(t)
	now := time.Now()
	exe := `C:\Apps\worker.exe`

	m1 := model.ProcessMetric{PID: 1, Name: "worker.exe", ExePath: &exe}
	s.UpdateSnapshot([]model.ProcessMetric{m1}, nil, now)

	m2 := model.ProcessMetric{PID: 2, Name: "worker.exe", ExePath: &exe}
	s.UpdateSnapshot([]model.ProcessMetric{m2}, nil, now.Add(2*time.Second))

	usage := s.UsageHistory()
	require.Len(t, usage, 1, "same exe_path collapses to one usage entry")
	require.Equal(t, uint64(2), usage[0].LaunchCount)
}

func TestBuildTreeRootsOnMissingParent(t *testing.T) {
	child := model.ProcessMetric{PID: 2, PPID: uint32Ptr(1), Name: "child.exe"}
	tree := BuildTree([]model.ProcessMetric{child})
	require.Len(t, tree, 1, "a child whose parent is not in the current metric set becomes a root")
	require.Equal(t, uint32(2), tree[0].PID)
}

func TestBuildTreeNestsChildUnderParent(t *testing.T) {
	parent := model.ProcessMetric{PID: 1, Name: "parent.exe"}
	child := model.ProcessMetric{PID: 2, PPID: uint32Ptr(1), Name: "child.exe"}
	tree := BuildTree([]model.ProcessMetric{parent, child})

	require.Len(t, tree, 1)
	require.Len(t, tree[0].Children, 1)
	require.Equal(t, uint32(2), tree[0].Children[0].PID)
}

func TestApplyOverrideRewritesMatchingMetricsAndRebuildsTree(t *testing.T) {
	s := newTestState(t)
	exe := `c:\foo\bar.exe`
	metric := model.ProcessMetric{PID: 1, Name: "bar.exe", ExePath: &exe, TrustLevel: model.TrustUnknown}
	s.UpdateSnapshot([]model.ProcessMetric{metric}, BuildTree([]model.ProcessMetric{metric}), time.Now())

	matchKeys := func(m model.ProcessMetric) []string {
		if m.ExePath != nil {
			return []string{*m.ExePath}
		}
		return nil
	}
	s.ApplyOverride(matchKeys, model.TrustTrusted, strPtr("Pinned"), exe)

	metrics := s.Metrics()
	require.Equal(t, model.TrustTrusted, metrics[0].TrustLevel)
	require.Equal(t, "Pinned", *metrics[0].TrustLabel)
	require.Equal(t, model.TrustTrusted, s.Tree()[0].Trust)
}

func TestKnownPIDsReflectsLastSnapshot(t *testing.T) {
	s := newTestState(t)
	now := time.Now()
	s.UpdateSnapshot([]model.ProcessMetric{{PID: 1}, {PID: 2}}, nil, now)

	pids := s.KnownPIDs()
	require.Len(t, pids, 2)
	_, ok := pids[2]
	require.True(t, ok)
}

func TestRecordLoopDurationIsBounded(t *testing.T) {
	s := newTestState(t)
	for i := 0; i < loopSampleCap+50; i++ {
		s.RecordLoopDuration(float64(i))
	}
	require.Len(t, s.loop, loopSampleCap)
	stats := s.PerformanceStats(nil)
	require.Equal(t, float64(loopSampleCap+49), stats.LoopLastMS)
}

func uint32Ptr(v uint32) *uint32 { return &v }
