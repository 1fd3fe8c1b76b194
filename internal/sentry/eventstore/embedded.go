package eventstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/sentrymesh/nyxsentry/internal/sentry/model"
)

// Embedded is the default in-process backend: a slice ordered by
// insertion, FIFO-pruned at Cap. It needs no external service and is
// what the daemon runs with unless a durable backend is configured.
type Embedded struct {
	mu     sync.RWMutex
	events []model.EventEnvelope
}

// NewEmbedded returns an empty embedded store.
func NewEmbedded() *Embedded {
	return &Embedded{}
}

// Insert appends event and prunes the oldest entries by timestamp_utc
// ascending once the store exceeds Cap.
func (e *Embedded) Insert(ctx context.Context, event model.EventEnvelope) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.events = append(e.events, event)
	if len(e.events) <= Cap {
		return nil
	}

	sort.Slice(e.events, func(i, j int) bool {
		return e.events[i].TimestampUTC.Before(e.events[j].TimestampUTC)
	})
	excess := len(e.events) - Cap
	e.events = e.events[excess:]
	return nil
}

// List scans up to maxScan(limit) most recent rows and applies
// case-insensitive filters, returning newest-first up to limit.
func (e *Embedded) List(ctx context.Context, q ListQuery) ([]model.EventEnvelope, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ordered := append([]model.EventEnvelope(nil), e.events...)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].TimestampUTC.After(ordered[j].TimestampUTC)
	})

	scanLimit := maxScan(q.Limit)
	if scanLimit < len(ordered) {
		ordered = ordered[:scanLimit]
	}

	var result []model.EventEnvelope
	for _, ev := range ordered {
		if !matches(ev, q) {
			continue
		}
		result = append(result, ev)
		if q.Limit > 0 && len(result) >= q.Limit {
			break
		}
	}
	return result, nil
}

func matches(ev model.EventEnvelope, q ListQuery) bool {
	if q.EventType != nil && !strings.EqualFold(ev.EventType, *q.EventType) {
		return false
	}
	if q.Sensor != nil && !strings.EqualFold(ev.Sensor, *q.Sensor) {
		return false
	}
	if q.Search != nil && *q.Search != "" {
		needle := strings.ToLower(*q.Search)
		if !containsSearchTerm(ev, needle) {
			return false
		}
	}
	return true
}

func containsSearchTerm(ev model.EventEnvelope, needle string) bool {
	if strings.Contains(strings.ToLower(ev.Message), needle) {
		return true
	}
	if ev.Process != nil {
		if strings.Contains(strings.ToLower(ev.Process.Name), needle) {
			return true
		}
		if ev.Process.ExePath != nil && strings.Contains(strings.ToLower(*ev.Process.ExePath), needle) {
			return true
		}
	}
	return false
}

// Count returns the current number of retained events.
func (e *Embedded) Count(ctx context.Context) (uint64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return uint64(len(e.events)), nil
}

// Close is a no-op for the embedded backend.
func (e *Embedded) Close(ctx context.Context) error { return nil }
