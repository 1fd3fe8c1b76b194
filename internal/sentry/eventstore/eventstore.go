// Package eventstore implements the durable event log (C8): envelope
// construction helpers and the EventStore contract with an embedded
// in-process default and optional Postgres/MongoDB-backed
// implementations sharing the same interface.
package eventstore

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sentrymesh/nyxsentry/internal/sentry/model"
)

// Cap is the maximum number of retained events; inserts beyond this
// trigger FIFO pruning by ascending timestamp.
const Cap = 50_000

// ListQuery is the filter set accepted by List, mirroring the
// `list(limit, event_type?, sensor?, search?)` command contract.
type ListQuery struct {
	Limit     int
	EventType *string
	Sensor    *string
	Search    *string
}

// EventStore is the durable log contract. Implementations must
// serialize their own handle access: concurrent opens are the
// caller's responsibility to serialize per §5's shared-resource
// policy, but a single EventStore value must be safe for concurrent
// Insert/List/Count calls from multiple goroutines.
type EventStore interface {
	Insert(ctx context.Context, event model.EventEnvelope) error
	List(ctx context.Context, q ListQuery) ([]model.EventEnvelope, error)
	Count(ctx context.Context) (uint64, error)
	Close(ctx context.Context) error
}

var monotonic uint64

// NextEventID builds the `{sensor}-{event_type}-{unix_ms}-{counter}`
// identity format required by §4.8, using a process-wide atomic
// counter to break ties within the same millisecond.
func NextEventID(sensor, eventType string, now time.Time) string {
	counter := atomic.AddUint64(&monotonic, 1)
	return fmt.Sprintf("%s-%s-%d-%d", sensor, eventType, now.UnixMilli(), counter)
}

// maxScan bounds how many recent rows List backends may examine when
// applying in-memory filters, per §4.8's query contract:
// min(limit*5, 5000).
func maxScan(limit int) int {
	scan := limit * 5
	if scan > 5000 || scan <= 0 {
		scan = 5000
	}
	return scan
}
