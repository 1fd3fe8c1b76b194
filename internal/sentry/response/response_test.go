package response

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sentrymesh/nyxsentry/internal/sentry/model"
)

type fakeActuator struct {
	failNext bool
}

func (f *fakeActuator) Suspend(pid uint32) (string, error) {
	if f.failNext {
		return "", fmt.Errorf("boom")
	}
	return fmt.Sprintf("process %d suspended", pid), nil
}
func (f *fakeActuator) Terminate(pid uint32) (string, error) {
	if f.failNext {
		return "", fmt.Errorf("boom")
	}
	return fmt.Sprintf("process %d terminated", pid), nil
}
func (f *fakeActuator) BlockNetwork(pid uint32, exePath string) (string, error) {
	if f.failNext {
		return "", fmt.Errorf("boom")
	}
	return fmt.Sprintf("blocked %d", pid), nil
}
func (f *fakeActuator) VerifySignature(path string) (bool, error) { return true, nil }

func newTestEngine(t *testing.T, act *fakeActuator) *Engine {
	t.Helper()
	e, err := NewEngine(filepath.Join(t.TempDir(), "responses.json"), act)
	require.NoError(t, err)
	return e
}

func lookupFor(metric model.ProcessMetric) MetricLookup {
	return func(pid uint32) (model.ProcessMetric, bool) {
		if pid == metric.PID {
			return metric, true
		}
		return model.ProcessMetric{}, false
	}
}

func TestRunActionNotFound(t *testing.T) {
	e := newTestEngine(t, &fakeActuator{})
	policy := model.DefaultResponsePolicy()
	_, err := e.RunAction(999, model.ActionSuspendProcess, "", false, policy, func(uint32) (model.ProcessMetric, bool) {
		return model.ProcessMetric{}, false
	}, time.Now())
	require.ErrorContains(t, err, "not found")
}

func TestRunActionAutomaticRequiresConstrainMode(t *testing.T) {
	e := newTestEngine(t, &fakeActuator{})
	policy := model.DefaultResponsePolicy() // audit by default
	metric := model.ProcessMetric{PID: 10, Name: "evil.exe"}

	_, err := e.RunAction(10, model.ActionSuspendProcess, "", true, policy, lookupFor(metric), time.Now())
	require.ErrorContains(t, err, "audit")
}

func TestRunActionSafeModeBlocksCriticalProcess(t *testing.T) {
	e := newTestEngine(t, &fakeActuator{})
	policy := model.DefaultResponsePolicy()
	policy.Mode = model.ResponseModeConstrain
	metric := model.ProcessMetric{PID: 500, Name: "lsass.exe"}

	_, err := e.RunAction(500, model.ActionTerminateProcess, "", false, policy, lookupFor(metric), time.Now())
	require.Error(t, err, "safe mode must deny any action against lsass.exe")
}

func TestRunActionTerminateRequiresAllowTerminate(t *testing.T) {
	e := newTestEngine(t, &fakeActuator{})
	policy := model.DefaultResponsePolicy()
	policy.Mode = model.ResponseModeConstrain
	policy.AllowTerminate = false
	metric := model.ProcessMetric{PID: 20, Name: "evil.exe"}

	_, err := e.RunAction(20, model.ActionTerminateProcess, "", false, policy, lookupFor(metric), time.Now())
	require.ErrorContains(t, err, "terminate")
}

func TestRunActionCooldownBlocksSecondAutomaticAttempt(t *testing.T) {
	e := newTestEngine(t, &fakeActuator{})
	policy := model.DefaultResponsePolicy()
	policy.Mode = model.ResponseModeConstrain
	policy.CooldownSeconds = 60
	metric := model.ProcessMetric{PID: 30, Name: "evil.exe"}
	now := time.Now()

	first, err := e.RunAction(30, model.ActionSuspendProcess, "", true, policy, lookupFor(metric), now)
	require.NoError(t, err)
	require.NotNil(t, first)
	require.True(t, first.Success)

	_, err = e.RunAction(30, model.ActionSuspendProcess, "", true, policy, lookupFor(metric), now.Add(30*time.Second))
	require.ErrorContains(t, err, "cooldown")

	third, err := e.RunAction(30, model.ActionSuspendProcess, "", true, policy, lookupFor(metric), now.Add(61*time.Second))
	require.NoError(t, err)
	require.NotNil(t, third)
}

func TestRunActionRecordsFailureDetails(t *testing.T) {
	act := &fakeActuator{failNext: true}
	e := newTestEngine(t, act)
	policy := model.DefaultResponsePolicy()
	policy.Mode = model.ResponseModeConstrain
	policy.AllowTerminate = true
	metric := model.ProcessMetric{PID: 40, Name: "evil.exe"}

	record, err := e.RunAction(40, model.ActionTerminateProcess, "auto", true, policy, lookupFor(metric), time.Now())
	require.NoError(t, err)
	require.False(t, record.Success)
	require.Equal(t, "boom", record.Details)
}

func TestPickAutomaticActionLadder(t *testing.T) {
	policy := model.DefaultResponsePolicy()
	policy.AllowTerminate = true

	require.Equal(t, model.ActionTerminateProcess, PickAutomaticAction(true, 95, policy))
	require.Equal(t, model.ActionBlockProcessNetwork, PickAutomaticAction(true, 96, model.DefaultResponsePolicy()))
	require.Equal(t, model.ActionSuspendProcess, PickAutomaticAction(false, 96, model.DefaultResponsePolicy()))
}

func TestIsCriticalProcessMatchesNameAndSystem32Path(t *testing.T) {
	require.True(t, IsCriticalProcess("lsass.exe", ""))
	require.True(t, IsCriticalProcess("lsass", ""))
	require.True(t, IsCriticalProcess("anything.exe", `C:\Windows\System32\lsass.exe`))
	require.False(t, IsCriticalProcess("notepad.exe", `C:\Windows\System32\notepad.exe`))
}
