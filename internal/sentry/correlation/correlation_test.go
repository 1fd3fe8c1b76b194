package correlation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEvaluateNoSignalsYieldsZero(t *testing.T) {
	tr := NewTracker()
	b := tr.Evaluate(1, time.Now(), 10, true)
	require.Equal(t, uint8(0), b.Score)
	require.Equal(t, 0, b.Count)
	require.Empty(t, b.Reasons)
}

func TestEvaluateCombinesAndCapsBonuses(t *testing.T) {
	tr := NewTracker()
	now := time.Now()
	tr.MarkProcessStart(1, now)
	tr.MarkNetworkActivity(1, now)
	tr.MarkRegistryChange(now)

	b := tr.Evaluate(1, now, 50, true)
	require.Equal(t, uint8(18), b.Score) // 4 + 8 + 6 = 18, under the 22 cap
	require.Equal(t, 3, b.Count)
}

func TestEvaluateRegistryBonusRequiresScoreAndUntrusted(t *testing.T) {
	tr := NewTracker()
	now := time.Now()
	tr.MarkRegistryChange(now)

	require.Equal(t, uint8(0), tr.Evaluate(1, now, 10, true).Score, "below score 45 the registry bonus must not apply")
	require.Equal(t, uint8(0), tr.Evaluate(1, now, 50, false).Score, "a trusted process must not receive the registry bonus")
	require.Equal(t, uint8(6), tr.Evaluate(1, now, 50, true).Score)
}

func TestPruneDropsEntriesOutsideWindow(t *testing.T) {
	tr := NewTracker()
	now := time.Now()
	tr.MarkProcessStart(1, now.Add(-Window-time.Second))
	tr.MarkNetworkActivity(1, now.Add(-time.Second))

	tr.Prune(now)
	b := tr.Evaluate(1, now, 0, true)
	require.Equal(t, 1, b.Count, "only the still-fresh network-activity mark should survive the prune")
	require.Equal(t, uint8(bonusNetworkActivity), b.Score)
}

func TestMarkNetworkActivityIsPerPID(t *testing.T) {
	tr := NewTracker()
	now := time.Now()
	tr.MarkNetworkActivity(1, now)

	require.Equal(t, 1, tr.Evaluate(1, now, 0, true).Count)
	require.Equal(t, 0, tr.Evaluate(2, now, 0, true).Count)
}
