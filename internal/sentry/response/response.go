// Package response implements the guarded response engine (C9):
// precondition gating, cooldown tracking, the automatic-trigger
// ladder, and the bounded, persisted action log.
package response

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sentrymesh/nyxsentry/internal/sentry/actuator"
	"github.com/sentrymesh/nyxsentry/internal/sentry/model"
)

// RecordCap bounds the persisted response-action log (§3 ResponseActionRecord).
const RecordCap = 5_000

// MetricLookup resolves a live pid to its current metric, mirroring
// the runtime state's read surface; returning false models "not found".
type MetricLookup func(pid uint32) (model.ProcessMetric, bool)

// Engine dispatches guarded response actions against the configured
// Actuator and persists the resulting record log.
type Engine struct {
	act actuator.Actuator

	cooldownMu sync.Mutex
	cooldowns  map[string]time.Time

	recordMu sync.Mutex
	path     string
	records  []model.ResponseActionRecord
}

// NewEngine loads any existing record log from path (or starts empty)
// and wires act as the dispatch target.
func NewEngine(path string, act actuator.Actuator) (*Engine, error) {
	e := &Engine{
		act:       act,
		cooldowns: make(map[string]time.Time),
		path:      path,
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return e, nil
		}
		return nil, fmt.Errorf("response: reading record log %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, &e.records); err != nil {
		e.records = nil
	}
	return e, nil
}

// IsCriticalProcess reports whether name or a system32-rooted path
// identifies one of the OS-critical processes safe mode must never
// touch (§4.9).
func IsCriticalProcess(name, exePath string) bool {
	base := strings.ToLower(strings.TrimSuffix(name, filepath.Ext(name)))
	for _, critical := range actuator.CriticalProcessNames {
		if base == critical {
			return true
		}
	}

	if exePath == "" {
		return false
	}
	lower := strings.ToLower(exePath)
	if !strings.HasPrefix(lower, `c:\windows\system32\`) {
		return false
	}
	for _, critical := range actuator.CriticalProcessNames {
		if strings.Contains(lower, `\`+critical+`.exe`) {
			return true
		}
	}
	return false
}

// PickAutomaticAction implements the automatic-trigger ladder from
// §4.9: terminate (if allowed and score high enough), else block
// network (if an exe path is known), else suspend.
func PickAutomaticAction(exePathPresent bool, riskScore uint8, policy model.ResponsePolicy) model.ResponseActionType {
	if riskScore >= 95 && policy.AllowTerminate {
		return model.ActionTerminateProcess
	}
	if exePathPresent {
		return model.ActionBlockProcessNetwork
	}
	return model.ActionSuspendProcess
}

// ShouldTriggerAutomatic reports whether the automatic-response
// condition holds for a non-internal metric this tick.
func ShouldTriggerAutomatic(riskScore uint8, policy model.ResponsePolicy) bool {
	return policy.Mode == model.ResponseModeConstrain && riskScore >= policy.AutoConstrainThreshold
}

func cooldownKey(pid uint32, actionType model.ResponseActionType) string {
	return fmt.Sprintf("%d:%s", pid, actionType)
}

// RunAction implements §4.9's ordered preconditions, then dispatches
// the actuator and returns the persisted record. A precondition
// failure returns a nil record and a descriptive error; no record is
// stored for denied attempts.
func (e *Engine) RunAction(pid uint32, actionType model.ResponseActionType, reason string, automatic bool, policy model.ResponsePolicy, lookup MetricLookup, now time.Time) (*model.ResponseActionRecord, error) {
	metric, ok := lookup(pid)
	if !ok {
		return nil, fmt.Errorf("process pid %d not found", pid)
	}

	if automatic && policy.Mode != model.ResponseModeConstrain {
		return nil, fmt.Errorf("automatic constrain blocked because policy mode is audit")
	}

	exePath := ""
	if metric.ExePath != nil {
		exePath = *metric.ExePath
	}
	if policy.SafeMode && IsCriticalProcess(metric.Name, exePath) {
		return nil, fmt.Errorf("response action denied: %s is an OS-critical process under safe mode", metric.Name)
	}

	if actionType == model.ActionTerminateProcess && !policy.AllowTerminate {
		return nil, fmt.Errorf("terminate action denied: policy does not allow process termination")
	}

	key := cooldownKey(pid, actionType)
	if automatic {
		e.cooldownMu.Lock()
		last, seen := e.cooldowns[key]
		e.cooldownMu.Unlock()
		if seen && now.Sub(last) < time.Duration(policy.CooldownSeconds)*time.Second {
			return nil, fmt.Errorf("skipped by cooldown")
		}
	}

	details, dispatchErr := e.dispatch(actionType, pid, exePath)
	success := dispatchErr == nil
	errMessage := ""
	if dispatchErr != nil {
		errMessage = dispatchErr.Error()
	}

	record := model.ResponseActionRecord{
		ID:           uuid.NewString(),
		TimestampUTC: now,
		ActionType:   actionType,
		Mode:         policy.Mode,
		PID:          pid,
		ProcessName:  metric.Name,
		Success:      success,
		Automatic:    automatic,
		Score:        metric.RiskScore,
		Verdict:      metric.Verdict,
		Reason:       reason,
		Details:      pickDetails(success, details, errMessage),
	}

	if automatic {
		e.cooldownMu.Lock()
		e.cooldowns[key] = now
		e.cooldownMu.Unlock()
	}

	if err := e.appendRecord(record); err != nil {
		return &record, err
	}
	return &record, nil
}

func pickDetails(success bool, details, errMessage string) string {
	if success {
		return details
	}
	return errMessage
}

func (e *Engine) dispatch(actionType model.ResponseActionType, pid uint32, exePath string) (string, error) {
	switch actionType {
	case model.ActionSuspendProcess:
		return e.act.Suspend(pid)
	case model.ActionTerminateProcess:
		return e.act.Terminate(pid)
	case model.ActionBlockProcessNetwork:
		return e.act.BlockNetwork(pid, exePath)
	default:
		return "", fmt.Errorf("unknown response action type %q", actionType)
	}
}

func (e *Engine) appendRecord(record model.ResponseActionRecord) error {
	e.recordMu.Lock()
	defer e.recordMu.Unlock()

	e.records = append(e.records, record)
	if len(e.records) > RecordCap {
		e.records = e.records[len(e.records)-RecordCap:]
	}

	if dir := filepath.Dir(e.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("response: creating record directory %s: %w", dir, err)
		}
	}
	payload, err := json.MarshalIndent(e.records, "", "  ")
	if err != nil {
		return fmt.Errorf("response: serializing record log: %w", err)
	}
	if err := os.WriteFile(e.path, payload, 0o644); err != nil {
		return fmt.Errorf("response: writing record log %s: %w", e.path, err)
	}
	return nil
}

// Records returns the most recent limit records, newest first.
func (e *Engine) Records(limit int) []model.ResponseActionRecord {
	e.recordMu.Lock()
	defer e.recordMu.Unlock()

	n := len(e.records)
	if limit <= 0 || limit > n {
		limit = n
	}
	result := make([]model.ResponseActionRecord, limit)
	for i := 0; i < limit; i++ {
		result[i] = e.records[n-1-i]
	}
	return result
}
