package scheduler

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/sentrymesh/nyxsentry/internal/sentry/eventstore"
	"github.com/sentrymesh/nyxsentry/internal/sentry/model"
	"github.com/sentrymesh/nyxsentry/internal/sentry/sensors"
	"github.com/sentrymesh/nyxsentry/internal/sentry/state"
	"github.com/sentrymesh/nyxsentry/internal/sentry/suspicion"
	"github.com/sentrymesh/nyxsentry/internal/sentry/trust"
	"github.com/sentrymesh/nyxsentry/internal/sentry/verdict"
	"github.com/sentrymesh/nyxsentry/internal/telemetry"
)

// runTick executes exactly one pass of §4.11's ordered tick recipe.
// Sensor failures are recorded to sensor health and never abort the
// tick; the previous snapshot is retained when a sensor fails.
func (s *Scheduler) runTick(ctx context.Context, now time.Time) {
	ctx, span := s.tracer.Start(ctx, "tick.run")
	defer span.End()

	s.correlation.Prune(now)
	priorPIDs := s.state.KnownPIDs()
	firstTick := s.tick == 0

	metrics := s.sampleProcess(now)
	gpuCache := s.maybeRefreshGPU(now)

	parentNames := make(map[uint32]string, len(metrics))
	for _, m := range metrics {
		parentNames[m.PID] = strings.ToLower(m.Name)
	}

	profile := s.state.DetectionProfile()
	policy := s.state.Policy()
	livePIDs := make(map[uint32]struct{}, len(metrics))

	for i := range metrics {
		m := &metrics[i]
		livePIDs[m.PID] = struct{}{}
		m.GPUPct = gpuCache[m.PID]

		exePath := ""
		if m.ExePath != nil {
			exePath = *m.ExePath
		}

		isSigned := s.resolveSignature(exePath)

		cpuSpike := s.state.CPUHistory.Update(m.PID, m.CPUPct, s.state.CPUSpikeConfig())

		parentName := ""
		if m.PPID != nil {
			parentName = parentNames[*m.PPID]
		}

		assessment := suspicion.Assess(suspicion.Input{
			Name:       m.Name,
			ExePath:    exePath,
			ParentName: parentName,
			IsSigned:   isSigned,
			CPUSpike:   cpuSpike,
			Profile:    profile,
		})
		m.Suspicion = assessment

		trustLevel := trust.ClassifyProcessTrust(exePath, isSigned)
		var trustLabel *string
		if known, ok := s.state.Known.Find(model.EntityKindProcess, trust.ProcessMatchKeys(exePath, m.Name)); ok {
			if known.TrustLevel != nil {
				trustLevel = *known.TrustLevel
			}
			trustLabel = known.Label
		}

		internal := trust.IsInternalProcess(m.Name, exePath)
		if internal {
			trustLevel = model.TrustTrusted
			label := "Nyx Internal"
			trustLabel = &label
		}
		m.TrustLevel = trustLevel
		m.TrustLabel = trustLabel

		bonuses := s.correlation.Evaluate(m.PID, now, assessment.Score, trustLevel == model.TrustUnknown)
		if _, wasKnown := priorPIDs[m.PID]; !wasKnown {
			s.correlation.MarkProcessStart(m.PID, now)
		}

		m.RiskScore = verdict.ComputeRiskScore(assessment.Score, bonuses.Score)
		m.Verdict = verdict.Classify(m.RiskScore, assessment.Level, trustLevel, bonuses.Count, internal)
		m.RiskFactors = buildRiskFactors(assessment.Reasons, bonuses.Reasons, assessment.Level)

		if !internal {
			s.buildAlerts(ctx, m, cpuSpike, bonuses.Count, now)
			s.maybeAutoRespond(ctx, m, policy, now)
		}
	}

	if !firstTick {
		s.emitLifecycleEvents(ctx, priorPIDs, metrics, now)
	}

	if s.tick%networkRefreshTicks == 0 {
		s.sampleNetworkAndDiff(ctx, now)
	}
	if s.tick%registryRefreshTicks == 0 {
		s.sampleRegistryAndDiff(ctx, now)
	}

	s.state.CPUHistory.Prune(livePIDs)
	tree := state.BuildTree(metrics)
	s.state.UpdateSnapshot(metrics, tree, now)

	select {
	case s.SnapshotUpdated <- metrics:
	default:
		log.Printf("[Sentry:Scheduler] snapshot channel full, dropping update")
	}

	s.prevMetrics = make(map[uint32]model.ProcessMetric, len(metrics))
	for _, m := range metrics {
		s.prevMetrics[m.PID] = m
	}

	if s.tick%inventoryRefreshTicks == 0 {
		s.refreshInventory(ctx)
	}

	s.tick++
}

func (s *Scheduler) sampleProcess(now time.Time) []model.ProcessMetric {
	start := time.Now()
	metrics, err := s.sensors.Process.Sample()
	s.reportSensor(sensors.NameProcess, err, start, now)
	if err != nil {
		return s.state.Metrics()
	}
	return metrics
}

func (s *Scheduler) maybeRefreshGPU(now time.Time) map[uint32]float32 {
	if s.tick%gpuRefreshTicks != 0 {
		return s.gpuCacheFallback()
	}
	start := time.Now()
	cache, err := s.sensors.GPU.Sample()
	s.reportSensor(sensors.NameGPU, err, start, now)
	if err != nil {
		return map[uint32]float32{}
	}
	s.lastGPUCache = cache
	return cache
}

func (s *Scheduler) gpuCacheFallback() map[uint32]float32 {
	if s.lastGPUCache == nil {
		return map[uint32]float32{}
	}
	return s.lastGPUCache
}

func (s *Scheduler) resolveSignature(exePath string) *bool {
	if exePath == "" {
		return nil
	}
	if cached, ok := s.state.CachedSignature(exePath); ok {
		return &cached
	}
	if !s.probeLimiter.Allow() {
		return nil
	}
	telemetry.GetMetrics().SignatureProbes.Inc()
	signed, err := s.sensors.Signature.Probe(exePath)
	if err != nil {
		return nil
	}
	s.state.SetCachedSignature(exePath, signed)
	return &signed
}

func (s *Scheduler) reportSensor(name string, err error, started time.Time, now time.Time) {
	latency := time.Since(started).Milliseconds()
	if err != nil {
		msg := err.Error()
		s.state.ReportSensor(name, model.SensorStatusDegraded, now, &msg, &latency, 0)
		telemetry.RecordTickError(name)
		telemetry.RecordSensorStatus(name, false)
		log.Printf("[Sentry:Scheduler] sensor %s degraded: %v", name, err)
		return
	}
	s.state.ReportSensor(name, model.SensorStatusOK, now, nil, &latency, 1)
	telemetry.RecordSensorStatus(name, true)
}

func buildRiskFactors(reasons []string, correlationReasons []string, level model.RiskLevel) []string {
	seen := make(map[string]struct{})
	var factors []string
	for _, r := range append(append([]string{}, reasons...), correlationReasons...) {
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		factors = append(factors, r)
	}
	if level == model.RiskUnknown {
		factors = append(factors, "Heuristics inconclusive; process classified as unclassified risk")
	}
	if len(factors) == 0 {
		factors = append(factors, "No suspicious heuristics triggered")
	}
	return factors
}

func (s *Scheduler) emitLifecycleEvents(ctx context.Context, priorPIDs map[uint32]struct{}, metrics []model.ProcessMetric, now time.Time) {
	current := make(map[uint32]model.ProcessMetric, len(metrics))
	for _, m := range metrics {
		current[m.PID] = m
		if _, existed := priorPIDs[m.PID]; !existed {
			mCopy := m
			s.emitEvent(ctx, sensors.NameProcess, "process_started", model.SeverityInfo,
				fmt.Sprintf("Process started: %s (pid %d)", m.Name, m.PID), &mCopy, nil, nil, nil, nil, nil, now)
		}
	}
	for pid := range priorPIDs {
		if _, stillLive := current[pid]; stillLive {
			continue
		}
		prior, ok := s.prevMetrics[pid]
		if !ok {
			continue
		}
		priorCopy := prior
		s.emitEvent(ctx, sensors.NameProcess, "process_stopped", model.SeverityInfo,
			fmt.Sprintf("Process stopped: %s (pid %d)", prior.Name, pid), &priorCopy, nil, nil, nil, nil, nil, now)
	}
}

func (s *Scheduler) sampleNetworkAndDiff(ctx context.Context, now time.Time) {
	start := time.Now()
	connections, err := s.sensors.Network.Sample()
	s.reportSensor(sensors.NameNetwork, err, start, now)
	if err != nil {
		return
	}

	current := make(map[string]model.NetworkConnection, len(connections))
	for _, conn := range connections {
		current[conn.Key()] = conn
		if _, existed := s.prevConnections[conn.Key()]; existed {
			continue
		}
		if isListeningOrWildcard(conn) {
			continue
		}
		connCopy := conn
		s.correlation.MarkNetworkActivity(conn.PID, now)
		s.emitEvent(ctx, sensors.NameNetwork, "connection_opened", model.SeverityInfo,
			fmt.Sprintf("New connection: %s %s -> %s (pid %d)", conn.Protocol, conn.LocalAddress, conn.RemoteAddress, conn.PID),
			nil, &connCopy, nil, nil, nil, nil, now)
	}
	s.prevConnections = current
}

func isListeningOrWildcard(conn model.NetworkConnection) bool {
	if conn.Protocol == "tcp" && conn.State != nil && strings.EqualFold(*conn.State, "LISTENING") {
		return true
	}
	remote := strings.TrimSpace(conn.RemoteAddress)
	return remote == "" || remote == "*:*" || strings.HasPrefix(remote, "0.0.0.0:0")
}

func (s *Scheduler) sampleRegistryAndDiff(ctx context.Context, now time.Time) {
	start := time.Now()
	current, err := s.sensors.Registry.Sample()
	s.reportSensor(sensors.NameRegistry, err, start, now)
	if err != nil {
		return
	}

	changed := false
	for key, value := range current {
		oldValue, existed := s.prevRegistry[key]
		if !existed {
			changed = true
			s.emitRegistryChange(ctx, key, nil, &value, model.RegistryValueAdded, 35, model.VerdictLowRisk, now)
			continue
		}
		if oldValue != value {
			changed = true
			old := oldValue
			s.emitRegistryChange(ctx, key, &old, &value, model.RegistryValueChanged, 45, model.VerdictSuspicious, now)
		}
	}
	for key, oldValue := range s.prevRegistry {
		if _, stillPresent := current[key]; stillPresent {
			continue
		}
		changed = true
		old := oldValue
		s.emitRegistryChange(ctx, key, &old, nil, model.RegistryValueRemoved, 40, model.VerdictLowRisk, now)
	}

	if changed {
		s.correlation.MarkRegistryChange(now)
	}
	s.prevRegistry = current
}

func (s *Scheduler) emitRegistryChange(ctx context.Context, key string, oldValue, newValue *string, kind model.RegistryChangeKind, score uint8, verdict model.ThreatVerdict, now time.Time) {
	change := model.RegistryChange{Key: key, OldValue: oldValue, NewValue: newValue, Kind: kind}
	severity := model.SeverityWarn
	if kind == model.RegistryValueChanged {
		severity = model.SeverityCritical
	}
	s.emitEvent(ctx, sensors.NameRegistry, string(kind), severity,
		fmt.Sprintf("Registry persistence value %s: %s", kind, key),
		nil, nil, &change, []string{"registry_persistence_watch"}, &score, &verdict, now)
}

func (s *Scheduler) refreshInventory(ctx context.Context) {
	if s.inventory.Programs != nil {
		programs, err := s.inventory.Programs.List()
		if err == nil {
			s.applyProgramOverrides(programs)
			s.state.SetPrograms(programs)
		}
	}
	if s.inventory.Startup != nil {
		items, err := s.inventory.Startup.List()
		if err == nil {
			s.state.SetStartupProcesses(items)
		}
	}
}

func (s *Scheduler) applyProgramOverrides(programs []model.InstalledProgram) {
	for i := range programs {
		p := &programs[i]
		executable, installLocation := "", ""
		if p.ExecutablePath != nil {
			executable = *p.ExecutablePath
		}
		if p.InstallLocation != nil {
			installLocation = *p.InstallLocation
		}
		keys := trust.ProgramMatchKeys(executable, installLocation, p.Name)
		if known, ok := s.state.Known.Find(model.EntityKindProgram, keys); ok {
			if known.TrustLevel != nil {
				p.TrustLevel = *known.TrustLevel
			}
			p.TrustLabel = known.Label
		} else {
			p.TrustLabel = nil
		}
	}
}

func (s *Scheduler) emitEvent(ctx context.Context, sensor, eventType string, severity model.AlertSeverity, message string, process *model.ProcessMetric, network *model.NetworkConnection, registry *model.RegistryChange, ruleHits []string, riskScore *uint8, verdict *model.ThreatVerdict, now time.Time) {
	env := model.EventEnvelope{
		EventID:      eventstore.NextEventID(sensor, eventType, now),
		HostID:       s.state.HostID,
		TimestampUTC: now,
		EventType:    eventType,
		Sensor:       sensor,
		Severity:     severity,
		Message:      message,
		Process:      process,
		Network:      network,
		Registry:     registry,
		RuleHits:     ruleHits,
		RiskScore:    riskScore,
		Verdict:      verdict,
	}
	if err := s.state.Events.Insert(ctx, env); err != nil {
		log.Printf("[Sentry:Scheduler] event insert failed for %s: %v", eventType, err)
		return
	}
	telemetry.RecordEventProcessed(sensor, eventType)
}
