// Package state implements the runtime state (C10): every piece of
// shared mutable data in the agent, each guarded by its own lock so
// that readers and writers of unrelated fields never contend, per the
// per-field locking discipline documented in §5 (lock order:
// metrics/tree -> caches -> stores).
package state

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sentrymesh/nyxsentry/internal/sentry/alerts"
	"github.com/sentrymesh/nyxsentry/internal/sentry/cpuspike"
	"github.com/sentrymesh/nyxsentry/internal/sentry/eventstore"
	"github.com/sentrymesh/nyxsentry/internal/sentry/model"
	"github.com/sentrymesh/nyxsentry/internal/sentry/response"
)

// loopSampleCap bounds the loop-timing history used for performance
// stats (§3 PerformanceStats).
const loopSampleCap = 240

// State is the single owner of every collection the scheduler, the
// UI/IPC command surface, and the response engine read or mutate.
// Fields are grouped with the mutex that guards them; callers must
// never hold two of these locks across an external call.
type State struct {
	HostID string

	metricsMu sync.RWMutex
	metrics   []model.ProcessMetric
	tree      []model.ProcessNode

	programsMu sync.RWMutex
	programs   []model.InstalledProgram

	startupMu sync.RWMutex
	startup   []model.StartupProcess

	profileMu sync.RWMutex
	profile   model.DetectionProfile

	cpuCfgMu sync.RWMutex
	cpuCfg   model.CpuSpikeConfig

	CPUHistory *cpuspike.Detector

	usageMu sync.Mutex
	usage   map[string]model.AppUsageEntry

	knownPIDsMu sync.RWMutex
	knownPIDs   map[uint32]struct{}

	sigCacheMu sync.RWMutex
	sigCache   map[string]bool

	Alerts    *alerts.Store
	Events    eventstore.EventStore
	Known     *KnownEntityStore
	Responses *response.Engine

	healthMu sync.RWMutex
	health   map[string]model.SensorHealth

	loopMu sync.Mutex
	loop   []float64

	policyMu sync.RWMutex
	policy   model.ResponsePolicy
}

// New wires the injected collaborators and returns an empty state
// with secure-default policy and balanced detection profile.
func New(hostID string, alertStore *alerts.Store, eventStore eventstore.EventStore, known *KnownEntityStore, responses *response.Engine) *State {
	return &State{
		HostID:     hostID,
		CPUHistory: cpuspike.NewDetector(),
		usage:      make(map[string]model.AppUsageEntry),
		knownPIDs:  make(map[uint32]struct{}),
		sigCache:   make(map[string]bool),
		health:     make(map[string]model.SensorHealth),
		profile:    model.ProfileBalanced,
		cpuCfg:     model.DefaultCpuSpikeConfig(),
		policy:     model.DefaultResponsePolicy(),
		Alerts:     alertStore,
		Events:     eventStore,
		Known:      known,
		Responses:  responses,
	}
}

// Metrics returns a read copy of the current metric snapshot.
func (s *State) Metrics() []model.ProcessMetric {
	s.metricsMu.RLock()
	defer s.metricsMu.RUnlock()
	return append([]model.ProcessMetric(nil), s.metrics...)
}

// Tree returns a read copy of the current process tree.
func (s *State) Tree() []model.ProcessNode {
	s.metricsMu.RLock()
	defer s.metricsMu.RUnlock()
	return append([]model.ProcessNode(nil), s.tree...)
}

// MetricByPID looks up a single metric, implementing the
// response.MetricLookup contract.
func (s *State) MetricByPID(pid uint32) (model.ProcessMetric, bool) {
	s.metricsMu.RLock()
	defer s.metricsMu.RUnlock()
	for _, m := range s.metrics {
		if m.PID == pid {
			return m, true
		}
	}
	return model.ProcessMetric{}, false
}

// KnownPIDs returns the live PID set observed at the last snapshot.
func (s *State) KnownPIDs() map[uint32]struct{} {
	s.knownPIDsMu.RLock()
	defer s.knownPIDsMu.RUnlock()
	out := make(map[uint32]struct{}, len(s.knownPIDs))
	for pid := range s.knownPIDs {
		out[pid] = struct{}{}
	}
	return out
}

// UpdateSnapshot replaces metrics and tree atomically from the
// caller's view, then folds usage-history updates per §4.10: for each
// metric, upsert an app-usage entry keyed by exe_path (lowercased
// name as fallback), incrementing launch_count only for PIDs absent
// from the prior known-PID set, and finally refreshes the known-PID
// set to the metrics just installed.
func (s *State) UpdateSnapshot(metrics []model.ProcessMetric, tree []model.ProcessNode, now time.Time) {
	priorPIDs := s.KnownPIDs()

	s.metricsMu.Lock()
	s.metrics = metrics
	s.tree = tree
	s.metricsMu.Unlock()

	s.usageMu.Lock()
	for _, m := range metrics {
		key := usageKey(m)
		entry, exists := s.usage[key]
		if !exists {
			entry = model.AppUsageEntry{
				AppKey:         key,
				Name:           m.Name,
				ExecutablePath: m.ExePath,
				FirstSeen:      now,
			}
		}
		if _, wasKnown := priorPIDs[m.PID]; !wasKnown {
			entry.LaunchCount++
		}
		if m.CPUPct > entry.MaxCPUPct {
			entry.MaxCPUPct = m.CPUPct
		}
		pid := m.PID
		entry.LastPID = &pid
		entry.LastSeen = now
		s.usage[key] = entry
	}
	s.usageMu.Unlock()

	live := make(map[uint32]struct{}, len(metrics))
	for _, m := range metrics {
		live[m.PID] = struct{}{}
	}
	s.knownPIDsMu.Lock()
	s.knownPIDs = live
	s.knownPIDsMu.Unlock()
}

func usageKey(m model.ProcessMetric) string {
	if m.ExePath != nil && *m.ExePath != "" {
		return strings.ToLower(*m.ExePath)
	}
	return strings.ToLower(m.Name)
}

// UsageHistory returns a read copy of the app-usage table.
func (s *State) UsageHistory() []model.AppUsageEntry {
	s.usageMu.Lock()
	defer s.usageMu.Unlock()
	out := make([]model.AppUsageEntry, 0, len(s.usage))
	for _, entry := range s.usage {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastSeen.After(out[j].LastSeen) })
	return out
}

// ApplyOverride rewrites trust_level/trust_label on every current
// metric whose normalized match keys intersect the override's key,
// then rebuilds the tree from the mutated metrics, per §4.10's
// override-application contract.
func (s *State) ApplyOverride(matchKeys func(model.ProcessMetric) []string, trust model.TrustLevel, label *string, overrideKey string) {
	s.metricsMu.Lock()
	defer s.metricsMu.Unlock()

	changed := false
	for i := range s.metrics {
		for _, key := range matchKeys(s.metrics[i]) {
			if key == overrideKey {
				s.metrics[i].TrustLevel = trust
				s.metrics[i].TrustLabel = label
				changed = true
				break
			}
		}
	}
	if changed {
		s.tree = BuildTree(s.metrics)
	}
}

// BuildTree derives the process tree from a flat metric list per
// §9's "derived projection" design note: it never stores parent/child
// pointers, so reused PIDs across ticks cannot produce stale edges.
func BuildTree(metrics []model.ProcessMetric) []model.ProcessNode {
	nodes := make(map[uint32]*model.ProcessNode, len(metrics))
	present := make(map[uint32]struct{}, len(metrics))
	for _, m := range metrics {
		present[m.PID] = struct{}{}
		nodes[m.PID] = &model.ProcessNode{
			PID:        m.PID,
			PPID:       m.PPID,
			Name:       m.Name,
			ExePath:    m.ExePath,
			User:       m.User,
			Risk:       m.Suspicion.Level,
			Trust:      m.TrustLevel,
			TrustLabel: m.TrustLabel,
		}
	}

	var roots []*model.ProcessNode
	for _, m := range metrics {
		node := nodes[m.PID]
		if m.PPID == nil {
			roots = append(roots, node)
			continue
		}
		if _, ok := present[*m.PPID]; !ok {
			roots = append(roots, node)
			continue
		}
		parent := nodes[*m.PPID]
		parent.Children = append(parent.Children, *node)
	}

	result := make([]model.ProcessNode, 0, len(roots))
	for _, root := range roots {
		result = append(result, *root)
	}
	return result
}

// Programs returns the installed-program inventory.
func (s *State) Programs() []model.InstalledProgram {
	s.programsMu.RLock()
	defer s.programsMu.RUnlock()
	return append([]model.InstalledProgram(nil), s.programs...)
}

// SetPrograms replaces the installed-program inventory.
func (s *State) SetPrograms(programs []model.InstalledProgram) {
	s.programsMu.Lock()
	defer s.programsMu.Unlock()
	s.programs = programs
}

// StartupProcesses returns the startup-item inventory.
func (s *State) StartupProcesses() []model.StartupProcess {
	s.startupMu.RLock()
	defer s.startupMu.RUnlock()
	return append([]model.StartupProcess(nil), s.startup...)
}

// SetStartupProcesses replaces the startup-item inventory.
func (s *State) SetStartupProcesses(items []model.StartupProcess) {
	s.startupMu.Lock()
	defer s.startupMu.Unlock()
	s.startup = items
}

// DetectionProfile returns the active suspicion-scorer profile.
func (s *State) DetectionProfile() model.DetectionProfile {
	s.profileMu.RLock()
	defer s.profileMu.RUnlock()
	return s.profile
}

// SetDetectionProfile updates the active profile.
func (s *State) SetDetectionProfile(profile model.DetectionProfile) {
	s.profileMu.Lock()
	defer s.profileMu.Unlock()
	s.profile = profile
}

// CPUSpikeConfig returns the active CPU-spike detector parameters.
func (s *State) CPUSpikeConfig() model.CpuSpikeConfig {
	s.cpuCfgMu.RLock()
	defer s.cpuCfgMu.RUnlock()
	return s.cpuCfg
}

// SetCPUSpikeConfig updates the CPU-spike detector parameters.
func (s *State) SetCPUSpikeConfig(cfg model.CpuSpikeConfig) {
	s.cpuCfgMu.Lock()
	defer s.cpuCfgMu.Unlock()
	s.cpuCfg = cfg
}

// CachedSignature returns the signature cache's verdict for path, if
// one was probed before. Entries are never invalidated: a binary
// replaced at the same path keeps the verdict of its first probe.
func (s *State) CachedSignature(path string) (bool, bool) {
	s.sigCacheMu.RLock()
	defer s.sigCacheMu.RUnlock()
	signed, ok := s.sigCache[path]
	return signed, ok
}

// SetCachedSignature records a fresh signature-probe result.
func (s *State) SetCachedSignature(path string, signed bool) {
	s.sigCacheMu.Lock()
	defer s.sigCacheMu.Unlock()
	s.sigCache[path] = signed
}

// Policy returns the active response policy.
func (s *State) Policy() model.ResponsePolicy {
	s.policyMu.RLock()
	defer s.policyMu.RUnlock()
	return s.policy
}

// SetPolicy updates the active response policy.
func (s *State) SetPolicy(policy model.ResponsePolicy) {
	s.policyMu.Lock()
	defer s.policyMu.Unlock()
	s.policy = policy
}

// ReportSensor records a sensor's outcome for the next health query.
func (s *State) ReportSensor(sensor string, status model.SensorStatus, now time.Time, lastError *string, latencyMS *int64, eventsEmittedDelta uint64) {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()

	entry := s.health[sensor]
	entry.Sensor = sensor
	entry.Status = status
	entry.LastError = lastError
	entry.LastLatencyMS = latencyMS
	entry.EventsEmitted += eventsEmittedDelta
	if status == model.SensorStatusOK {
		t := now
		entry.LastSuccessUTC = &t
	}
	s.health[sensor] = entry
}

// SensorHealth returns a read copy of every sensor's health.
func (s *State) SensorHealth() []model.SensorHealth {
	s.healthMu.RLock()
	defer s.healthMu.RUnlock()
	out := make([]model.SensorHealth, 0, len(s.health))
	for _, h := range s.health {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sensor < out[j].Sensor })
	return out
}

// RecordLoopDuration appends a tick's duration (milliseconds) to the
// bounded, FIFO loop-timing history (cap 240).
func (s *State) RecordLoopDuration(ms float64) {
	s.loopMu.Lock()
	defer s.loopMu.Unlock()
	s.loop = append(s.loop, ms)
	if len(s.loop) > loopSampleCap {
		s.loop = s.loop[len(s.loop)-loopSampleCap:]
	}
}

// PerformanceStats derives §3's PerformanceStats from the loop
// history and the other collections' current sizes.
func (s *State) PerformanceStats(ctx eventCounter) model.PerformanceStats {
	s.loopMu.Lock()
	samples := append([]float64(nil), s.loop...)
	s.loopMu.Unlock()

	stats := model.PerformanceStats{}
	if len(samples) == 0 {
		return stats
	}
	stats.LoopLastMS = samples[len(samples)-1]

	sum := 0.0
	for _, v := range samples {
		sum += v
	}
	stats.LoopAvgMS = sum / float64(len(samples))

	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)
	idx := int(float64(len(sorted))*0.95) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	stats.LoopP95MS = sorted[idx]

	s.metricsMu.RLock()
	stats.TrackedProcesses = len(s.metrics)
	s.metricsMu.RUnlock()

	if ctx != nil {
		stats.TotalEvents, stats.EventStoreSize = ctx()
	}
	return stats
}

// eventCounter supplies the total-events and event-store-size figures
// PerformanceStats needs from the event store, without giving state a
// hard dependency on a context.Context-bearing call.
type eventCounter func() (uint64, uint64)
