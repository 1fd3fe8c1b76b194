// Package transport implements the optional NATS publisher (DOMAIN
// STACK §6): mirroring the in-process AlertCreated/SnapshotUpdated
// channels onto subjects an external UI/IPC process can subscribe to
// instead of linking against the engine directly. PublishEvent can
// send a single event envelope, but nothing in the daemon calls it, so
// the durable event log is not mirrored. Grounded on the teacher's
// events.Publisher.
package transport

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/sentrymesh/nyxsentry/internal/sentry/model"
)

// Subjects mirrors the teacher's SubjectSecurity* constant table,
// scoped to nyxsentry's own event families.
const (
	SubjectAlertCreated   = "nyxsentry.alerts.created"
	SubjectSnapshotUpdate = "nyxsentry.process.snapshot_updated"
	SubjectEvent          = "nyxsentry.events.envelope"
)

// PublisherStats tracks publishing outcomes, matching the teacher's
// PublisherStats shape.
type PublisherStats struct {
	AlertsPublished    int64
	SnapshotsPublished int64
	EventsPublished    int64
	Errors             int64
	LastPublished      time.Time
}

// Config holds NATS connection parameters.
type Config struct {
	URL           string
	ReconnectWait time.Duration
	MaxReconnects int
}

// DefaultConfig mirrors the teacher's DefaultPublisherConfig.
func DefaultConfig() Config {
	return Config{
		URL:           "nats://localhost:4222",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: 60,
	}
}

// Publisher publishes engine notifications to NATS subjects.
type Publisher struct {
	nc *nats.Conn

	mu    sync.RWMutex
	stats PublisherStats
}

// NewPublisher connects to NATS per cfg.
func NewPublisher(cfg Config) (*Publisher, error) {
	opts := []nats.Option{
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[Sentry:Transport] reconnected to NATS: %s", nc.ConnectedUrl())
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Printf("[Sentry:Transport] disconnected from NATS: %v", err)
			}
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, err
	}
	return &Publisher{nc: nc}, nil
}

// PublishAlert publishes an accepted alert.
func (p *Publisher) PublishAlert(alert model.Alert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		p.recordError()
		return err
	}
	if err := p.nc.Publish(SubjectAlertCreated, data); err != nil {
		p.recordError()
		return err
	}
	p.mu.Lock()
	p.stats.AlertsPublished++
	p.stats.LastPublished = time.Now()
	p.mu.Unlock()
	return nil
}

// PublishSnapshot publishes a full process-metric snapshot.
func (p *Publisher) PublishSnapshot(metrics []model.ProcessMetric) error {
	data, err := json.Marshal(metrics)
	if err != nil {
		p.recordError()
		return err
	}
	if err := p.nc.Publish(SubjectSnapshotUpdate, data); err != nil {
		p.recordError()
		return err
	}
	p.mu.Lock()
	p.stats.SnapshotsPublished++
	p.stats.LastPublished = time.Now()
	p.mu.Unlock()
	return nil
}

// PublishEvent publishes a single durable-log event envelope.
func (p *Publisher) PublishEvent(event model.EventEnvelope) error {
	data, err := json.Marshal(event)
	if err != nil {
		p.recordError()
		return err
	}
	if err := p.nc.Publish(SubjectEvent, data); err != nil {
		p.recordError()
		return err
	}
	p.mu.Lock()
	p.stats.EventsPublished++
	p.stats.LastPublished = time.Now()
	p.mu.Unlock()
	return nil
}

func (p *Publisher) recordError() {
	p.mu.Lock()
	p.stats.Errors++
	p.mu.Unlock()
}

// Stats returns a copy of the current publishing statistics.
func (p *Publisher) Stats() PublisherStats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stats
}

// IsConnected reports whether the underlying NATS connection is live.
func (p *Publisher) IsConnected() bool {
	return p.nc != nil && p.nc.IsConnected()
}

// Close closes the NATS connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}
