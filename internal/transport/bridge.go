package transport

import (
	"context"
	"log"

	"github.com/sentrymesh/nyxsentry/internal/sentry/model"
)

// Bridge forwards the scheduler's in-process notification channels
// onto a Publisher until ctx is canceled. While it runs it is a
// receiver of those channels: each notification goes to exactly one
// receiver, so another reader of the same channel does not also see
// the values the bridge takes.
type Bridge struct {
	publisher       *Publisher
	alertCreated    <-chan model.Alert
	snapshotUpdated <-chan []model.ProcessMetric
}

// NewBridge wires publisher against the scheduler's two channels.
func NewBridge(publisher *Publisher, alertCreated <-chan model.Alert, snapshotUpdated <-chan []model.ProcessMetric) *Bridge {
	return &Bridge{publisher: publisher, alertCreated: alertCreated, snapshotUpdated: snapshotUpdated}
}

// Run blocks, forwarding notifications until ctx is canceled.
func (b *Bridge) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case alert, ok := <-b.alertCreated:
			if !ok {
				return
			}
			if err := b.publisher.PublishAlert(alert); err != nil {
				log.Printf("[Sentry:Transport] publish alert failed: %v", err)
			}
		case metrics, ok := <-b.snapshotUpdated:
			if !ok {
				return
			}
			if err := b.publisher.PublishSnapshot(metrics); err != nil {
				log.Printf("[Sentry:Transport] publish snapshot failed: %v", err)
			}
		}
	}
}
