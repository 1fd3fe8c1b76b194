package eventstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sentrymesh/nyxsentry/internal/sentry/model"
)

func strPtr(s string) *string { return &s }

func TestEmbeddedInsertPrunesOldestBeyondCap(t *testing.T) {
	store := NewEmbedded()
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	for i := 0; i < Cap+100; i++ {
		ev := model.EventEnvelope{
			EventID:      NextEventID("process", "process_started", base.Add(time.Duration(i)*time.Millisecond)),
			TimestampUTC: base.Add(time.Duration(i) * time.Millisecond),
			EventType:    "process_started",
			Sensor:       "process",
			Severity:     model.SeverityInfo,
		}
		require.NoError(t, store.Insert(ctx, ev))
	}

	count, err := store.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(Cap), count)

	oldest, err := store.List(ctx, ListQuery{Limit: Cap})
	require.NoError(t, err)
	require.Len(t, oldest, 5000) // List scans at most min(limit*5, 5000) rows
	// The 100 oldest events (index 0-99) must have been pruned.
	for _, ev := range store.events {
		require.True(t, ev.TimestampUTC.After(base.Add(99*time.Millisecond)) || ev.TimestampUTC.Equal(base.Add(100*time.Millisecond)))
	}
}

func TestEmbeddedListAppliesFiltersAndNewestFirst(t *testing.T) {
	store := NewEmbedded()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Insert(ctx, model.EventEnvelope{
		EventID: "a", TimestampUTC: now, EventType: "process_started", Sensor: "process", Severity: model.SeverityInfo,
		Message: "launched notepad.exe",
	}))
	require.NoError(t, store.Insert(ctx, model.EventEnvelope{
		EventID: "b", TimestampUTC: now.Add(time.Second), EventType: "connection_opened", Sensor: "network", Severity: model.SeverityInfo,
		Message: "outbound to 10.0.0.5",
	}))

	all, err := store.List(ctx, ListQuery{Limit: 10})
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "b", all[0].EventID)
	require.Equal(t, "a", all[1].EventID)

	results, err := store.List(ctx, ListQuery{Limit: 10, Sensor: strPtr("network")})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "b", results[0].EventID)

	bySearch, err := store.List(ctx, ListQuery{Limit: 10, Search: strPtr("notepad")})
	require.NoError(t, err)
	require.Len(t, bySearch, 1)
	require.Equal(t, "a", bySearch[0].EventID)
}

func TestNextEventIDIsUniqueWithinSameMillisecond(t *testing.T) {
	now := time.Now()
	first := NextEventID("process", "process_started", now)
	second := NextEventID("process", "process_started", now)
	require.NotEqual(t, first, second)
}
