package alerts

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sentrymesh/nyxsentry/internal/sentry/model"
)

func pidPtr(v uint32) *uint32 { return &v }

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "alerts.json"))
	require.NoError(t, err)
	return s
}

func TestPushAcceptsFirstAlert(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	alert, err := s.Push(model.AlertTypeSuspiciousProcess, model.SeverityCritical, pidPtr(10), "Suspicious process detected: evil.exe", "desc", []string{"reason"}, now)
	require.NoError(t, err)
	require.NotNil(t, alert)
	require.Len(t, s.Active(), 1)
}

func TestPushDeduplicatesWithinWindow(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	_, err := s.Push(model.AlertTypeSuspiciousProcess, model.SeverityCritical, pidPtr(10), "Suspicious process detected: evil.exe", "desc", nil, now)
	require.NoError(t, err)

	dup, err := s.Push(model.AlertTypeSuspiciousProcess, model.SeverityCritical, pidPtr(10), "Suspicious process detected: evil.exe", "desc", nil, now.Add(119*time.Second))
	require.NoError(t, err)
	require.Nil(t, dup, "a matching (pid, type, title) within 120s must be rejected")

	later, err := s.Push(model.AlertTypeSuspiciousProcess, model.SeverityCritical, pidPtr(10), "Suspicious process detected: evil.exe", "desc", nil, now.Add(121*time.Second))
	require.NoError(t, err)
	require.NotNil(t, later, "beyond the 120s window the alert should be accepted again")
}

func TestDeleteThenSuppressesWithinWindow(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	alert, err := s.Push(model.AlertTypeCPUSpike, model.SeverityWarn, pidPtr(7), "High CPU sustained in worker.exe", "desc", nil, now)
	require.NoError(t, err)
	require.NotNil(t, alert)

	ok, err := s.Delete(alert.ID, now.Add(time.Second))
	require.NoError(t, err)
	require.True(t, ok)

	suppressed, err := s.Push(model.AlertTypeCPUSpike, model.SeverityWarn, pidPtr(7), "High CPU sustained in worker.exe", "desc", nil, now.Add(200*time.Second))
	require.NoError(t, err)
	require.Nil(t, suppressed, "the same signature within 300s of dismissal must be suppressed")

	accepted, err := s.Push(model.AlertTypeCPUSpike, model.SeverityWarn, pidPtr(7), "High CPU sustained in worker.exe", "desc", nil, now.Add(301*time.Second))
	require.NoError(t, err)
	require.NotNil(t, accepted, "after 300s the suppression should have expired")
}

func TestAcknowledgeTransitionsStatus(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()
	alert, err := s.Push(model.AlertTypeSuspiciousProcess, model.SeverityCritical, pidPtr(1), "t", "d", nil, now)
	require.NoError(t, err)

	ok, err := s.Acknowledge(alert.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Empty(t, s.Active())
}

func TestDeleteAllActiveReturnsCount(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()
	_, _ = s.Push(model.AlertTypeSuspiciousProcess, model.SeverityCritical, pidPtr(1), "a", "d", nil, now)
	_, _ = s.Push(model.AlertTypeSuspiciousProcess, model.SeverityCritical, pidPtr(2), "b", "d", nil, now)

	n, err := s.DeleteAllActive(now)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Empty(t, s.Active())
}
