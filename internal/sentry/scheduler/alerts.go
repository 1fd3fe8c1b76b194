package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/sentrymesh/nyxsentry/internal/sentry/model"
	"github.com/sentrymesh/nyxsentry/internal/sentry/response"
	"github.com/sentrymesh/nyxsentry/internal/sentry/sensors"
	"github.com/sentrymesh/nyxsentry/internal/telemetry"
)

// buildAlerts implements §4.7's three constructors against one
// already-scored metric, skipped entirely for internal processes by
// the caller.
func (s *Scheduler) buildAlerts(ctx context.Context, m *model.ProcessMetric, cpuSpike bool, correlationCount int, now time.Time) {
	pid := m.PID

	switch {
	case m.Suspicion.Level == model.RiskSuspicious:
		s.pushAlert(ctx, model.AlertTypeSuspiciousProcess, model.SeverityCritical, &pid, m,
			fmt.Sprintf("Suspicious process detected: %s", m.Name),
			fmt.Sprintf("Process %s (pid %d) scored %d and was classified suspicious.", m.Name, pid, m.Suspicion.Score),
			m.Suspicion.Reasons, now)
	case cpuSpike:
		s.pushAlert(ctx, model.AlertTypeCPUSpike, model.SeverityWarn, &pid, m,
			fmt.Sprintf("Sustained CPU spike: %s", m.Name),
			fmt.Sprintf("Process %s (pid %d) sustained CPU usage above baseline.", m.Name, pid),
			[]string{"Sustained high CPU usage detected"}, now)
	}

	untrusted := m.TrustLevel == model.TrustUnknown
	if m.RiskScore >= 88 && correlationCount >= 2 && m.Suspicion.Level == model.RiskSuspicious && untrusted {
		severity := model.SeverityWarn
		if m.RiskScore >= 90 {
			severity = model.SeverityCritical
		}
		s.pushAlert(ctx, model.AlertTypeCorrelatedThreat, severity, &pid, m,
			fmt.Sprintf("Correlated threat indicators: %s", m.Name),
			fmt.Sprintf("Process %s (pid %d) triggered %d correlated signals with risk score %d.", m.Name, pid, correlationCount, m.RiskScore),
			m.RiskFactors, now)
	}
}

// pushAlert stores an alert (if it survives de-dup/suppression) and,
// for each accepted alert, emits the matching alert_generated event
// carrying the responsible process identity and rule_hits = evidence.
func (s *Scheduler) pushAlert(ctx context.Context, alertType model.AlertType, severity model.AlertSeverity, pid *uint32, process *model.ProcessMetric, title, description string, evidence []string, now time.Time) {
	alert, err := s.state.Alerts.Push(alertType, severity, pid, title, description, evidence, now)
	if err != nil {
		log.Printf("[Sentry:Alerts] persist failed for %s: %v", title, err)
	}
	if alert == nil {
		return
	}
	telemetry.RecordAlertGenerated(string(alertType), string(severity))

	select {
	case s.AlertCreated <- *alert:
	default:
		log.Printf("[Sentry:Alerts] alert channel full, dropping notification")
	}

	var riskScore *uint8
	var verdictValue *model.ThreatVerdict
	var processCopy *model.ProcessMetric
	if process != nil {
		score, verdictCopy, pCopy := process.RiskScore, process.Verdict, *process
		riskScore, verdictValue, processCopy = &score, &verdictCopy, &pCopy
	}
	s.emitEvent(ctx, sensors.NameProcess, "alert_generated", severity, title, processCopy, nil, nil, evidence, riskScore, verdictValue, now)
}

// maybeAutoRespond implements §4.9's automatic-triggering rule for a
// single non-internal metric.
func (s *Scheduler) maybeAutoRespond(ctx context.Context, m *model.ProcessMetric, policy model.ResponsePolicy, now time.Time) {
	if !response.ShouldTriggerAutomatic(m.RiskScore, policy) {
		return
	}

	actionType := response.PickAutomaticAction(m.ExePath != nil, m.RiskScore, policy)
	// Look up against the in-flight metric being scored this tick, not
	// committed state: UpdateSnapshot hasn't run yet, so a process that
	// just appeared this tick would otherwise be "not found".
	inFlight := func(pid uint32) (model.ProcessMetric, bool) {
		if pid == m.PID {
			return *m, true
		}
		return model.ProcessMetric{}, false
	}
	record, err := s.state.Responses.RunAction(m.PID, actionType, "automatic threshold trigger", true, policy, inFlight, now)
	if err != nil {
		telemetry.RecordResponseActionDenied(string(actionType))
		log.Printf("[Sentry:Response] automatic %s denied for pid %d: %v", actionType, m.PID, err)
		return
	}
	telemetry.RecordResponseAction(string(actionType), true, record.Success)

	pid := m.PID
	severity := model.SeverityWarn
	if !record.Success {
		severity = model.SeverityCritical
	}
	s.pushAlert(ctx, model.AlertTypeResponseAction, severity, &pid, m,
		fmt.Sprintf("Automatic response: %s", actionType),
		fmt.Sprintf("Automatic %s against %s (pid %d): %s", actionType, m.Name, m.PID, record.Details),
		[]string{record.Reason}, now)

	s.emitEvent(ctx, sensors.NameProcess, "response_action", severity,
		fmt.Sprintf("Automatic response action %s against pid %d", actionType, m.PID),
		nil, nil, nil, nil, &record.Score, &record.Verdict, now)
}
