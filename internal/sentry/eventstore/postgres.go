package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/sentrymesh/nyxsentry/internal/sentry/model"
)

// Postgres is the durable-log backend for deployments that want the
// event log to survive a host reboot independent of the daemon's data
// directory, per §6's `events.db` schema.
type Postgres struct {
	db *sql.DB
}

// NewPostgres opens dsn and ensures the events table and its secondary
// indices exist.
func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("eventstore: opening postgres: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("eventstore: pinging postgres: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		return nil, err
	}

	return &Postgres{db: db}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS events (
	event_id      TEXT PRIMARY KEY,
	timestamp_utc TIMESTAMPTZ NOT NULL,
	event_type    TEXT NOT NULL,
	sensor        TEXT NOT NULL,
	severity      TEXT NOT NULL,
	payload       JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS events_timestamp_utc_desc ON events (timestamp_utc DESC);
CREATE INDEX IF NOT EXISTS events_event_type ON events (event_type);
CREATE INDEX IF NOT EXISTS events_sensor ON events (sensor);
`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("eventstore: migrating postgres schema: %w", err)
	}
	return nil
}

// Insert writes event and, if the table now holds more than Cap rows,
// deletes the oldest excess by timestamp_utc ascending.
func (p *Postgres) Insert(ctx context.Context, event model.EventEnvelope) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("eventstore: marshaling event %s: %w", event.EventID, err)
	}

	const insert = `
INSERT INTO events (event_id, timestamp_utc, event_type, sensor, severity, payload)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (event_id) DO NOTHING`
	if _, err := p.db.ExecContext(ctx, insert, event.EventID, event.TimestampUTC, event.EventType, event.Sensor, string(event.Severity), payload); err != nil {
		return fmt.Errorf("eventstore: inserting event %s: %w", event.EventID, err)
	}

	const prune = `
DELETE FROM events WHERE event_id IN (
	SELECT event_id FROM events ORDER BY timestamp_utc DESC
	OFFSET $1
)`
	if _, err := p.db.ExecContext(ctx, prune, Cap); err != nil {
		return fmt.Errorf("eventstore: pruning excess events: %w", err)
	}
	return nil
}

// List applies the query's filters at the SQL layer for event_type
// and sensor, and in Go for the substring search (which spans nested
// JSON payload fields not worth indexing).
func (p *Postgres) List(ctx context.Context, q ListQuery) ([]model.EventEnvelope, error) {
	scanLimit := maxScan(q.Limit)

	query := `SELECT payload FROM events WHERE 1=1`
	args := []any{}
	if q.EventType != nil {
		args = append(args, *q.EventType)
		query += fmt.Sprintf(" AND event_type ILIKE $%d", len(args))
	}
	if q.Sensor != nil {
		args = append(args, *q.Sensor)
		query += fmt.Sprintf(" AND sensor ILIKE $%d", len(args))
	}
	args = append(args, scanLimit)
	query += fmt.Sprintf(" ORDER BY timestamp_utc DESC LIMIT $%d", len(args))

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("eventstore: querying events: %w", err)
	}
	defer rows.Close()

	var result []model.EventEnvelope
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("eventstore: scanning event row: %w", err)
		}
		var ev model.EventEnvelope
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, fmt.Errorf("eventstore: decoding event payload: %w", err)
		}
		if q.Search != nil && *q.Search != "" && !containsSearchTerm(ev, strings.ToLower(*q.Search)) {
			continue
		}
		result = append(result, ev)
		if q.Limit > 0 && len(result) >= q.Limit {
			break
		}
	}
	return result, rows.Err()
}

// Count returns the row count.
func (p *Postgres) Count(ctx context.Context) (uint64, error) {
	var count uint64
	if err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&count); err != nil {
		return 0, fmt.Errorf("eventstore: counting events: %w", err)
	}
	return count, nil
}

// Close releases the connection pool.
func (p *Postgres) Close(ctx context.Context) error {
	if err := p.db.Close(); err != nil {
		return fmt.Errorf("eventstore: closing postgres: %w", err)
	}
	return nil
}
