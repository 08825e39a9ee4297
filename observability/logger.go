// Package observability records the audit trail of the exchange: snapshots
// received, messages written and operator logins, as rows in an SQLite
// business_event_logs table.
//
// The trail is write-only from the service's point of view. It is never read
// back to rebuild mailbox state.
package observability

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/mailbox/dbopen"
	"github.com/hazyhaar/mailbox/idgen"
)

// Event types written by the service.
const (
	EventSnapshotReceived = "snapshot.received"
	EventMessageWritten   = "message.written"
	EventLogin            = "operator.login"
	EventLoginFailed      = "operator.login_failed"
	EventLogout           = "operator.logout"
)

// ServiceName is stored in every row.
const ServiceName = "mailbox"

// BusinessEvent represents a domain-level event to record.
type BusinessEvent struct {
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	EntityType string    `json:"entity_type,omitempty"` // "client", "session"
	EntityID   string    `json:"entity_id,omitempty"`
	UserID     string    `json:"user_id,omitempty"`
	TraceID    string    `json:"trace_id,omitempty"`
	Action     string    `json:"action"`
	Details    string    `json:"details,omitempty"` // optional JSON
	Success    bool      `json:"success"`
	CreatedAt  time.Time `json:"created_at"`
}

// EventLogger persists business events asynchronously. A nil *EventLogger
// is valid and discards everything, which is how a disabled audit trail is
// represented.
type EventLogger struct {
	db    *sql.DB
	newID idgen.Generator
	now   func() time.Time

	ch   chan *BusinessEvent
	stop chan struct{}
	done chan struct{}
}

// EventLoggerOption configures an EventLogger.
type EventLoggerOption func(*EventLogger)

// WithEventIDGenerator sets a custom ID generator for event IDs.
func WithEventIDGenerator(gen idgen.Generator) EventLoggerOption {
	return func(l *EventLogger) { l.newID = gen }
}

// WithBufferSize sets the async queue length. Default 1000.
func WithBufferSize(n int) EventLoggerOption {
	return func(l *EventLogger) {
		if n > 0 {
			l.ch = make(chan *BusinessEvent, n)
		}
	}
}

// NewEventLogger creates a logger backed by the given audit database and
// starts its flush goroutine. Call Close to drain it.
func NewEventLogger(db *sql.DB, opts ...EventLoggerOption) *EventLogger {
	l := &EventLogger{
		db:    db,
		newID: idgen.Prefixed("evt_", idgen.Default),
		now:   time.Now,
		ch:    make(chan *BusinessEvent, 1000),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	for _, o := range opts {
		o(l)
	}
	go l.flushLoop()
	return l
}

// Log inserts an event synchronously.
func (l *EventLogger) Log(ctx context.Context, event BusinessEvent) error {
	if l == nil {
		return nil
	}
	l.fillDefaults(&event)
	return l.insert(ctx, l.db, &event)
}

// LogEvent queues an event. Non-blocking: when the queue is full the event is
// written synchronously, and a failing write is only logged, so the audit
// store never fails a request.
func (l *EventLogger) LogEvent(event BusinessEvent) {
	if l == nil {
		return
	}
	l.fillDefaults(&event)
	select {
	case l.ch <- &event:
	default:
		slog.Warn("audit buffer full, sync fallback", "event_type", event.EventType)
		if err := l.insert(context.Background(), l.db, &event); err != nil {
			slog.Error("audit event log failed", "error", err, "event_type", event.EventType)
		}
	}
}

// Close drains the queue and stops the flush goroutine.
func (l *EventLogger) Close() error {
	if l == nil {
		return nil
	}
	close(l.stop)
	<-l.done
	return nil
}

func (l *EventLogger) fillDefaults(e *BusinessEvent) {
	if e.EventID == "" {
		e.EventID = l.newID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = l.now()
	}
}

func (l *EventLogger) flushLoop() {
	defer close(l.done)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	batch := make([]*BusinessEvent, 0, 100)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		tx, err := l.db.BeginTx(ctx, nil)
		if err != nil {
			slog.Error("audit: begin tx", "error", err, "dropped", len(batch))
			batch = batch[:0]
			return
		}
		for _, e := range batch {
			if err := l.insert(ctx, tx, e); err != nil {
				slog.Error("audit: insert", "error", err, "event_id", e.EventID)
			}
		}
		if err := tx.Commit(); err != nil {
			slog.Error("audit: commit", "error", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-l.stop:
			for {
				select {
				case e := <-l.ch:
					batch = append(batch, e)
				default:
					flush()
					return
				}
			}
		case e := <-l.ch:
			batch = append(batch, e)
			if len(batch) >= 100 {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (l *EventLogger) insert(ctx context.Context, db execer, e *BusinessEvent) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO business_event_logs (
			event_id, event_type, service_name, entity_type, entity_id,
			user_id, trace_id, action, details, success, created_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		e.EventID, e.EventType, ServiceName, e.EntityType, e.EntityID,
		e.UserID, e.TraceID, e.Action, e.Details, e.Success, e.CreatedAt.Unix())
	return err
}

// EventFilter controls Query results.
type EventFilter struct {
	EventType string
	EntityID  string
	Since     time.Time
	Limit     int // default 100
}

// Query returns events matching f, newest first.
func (l *EventLogger) Query(ctx context.Context, f EventFilter) ([]BusinessEvent, error) {
	if l == nil {
		return nil, nil
	}
	q := `SELECT event_id, event_type, entity_type, entity_id, user_id,
		trace_id, action, details, success, created_at
		FROM business_event_logs WHERE 1=1`
	var args []any
	if f.EventType != "" {
		q += " AND event_type = ?"
		args = append(args, f.EventType)
	}
	if f.EntityID != "" {
		q += " AND entity_id = ?"
		args = append(args, f.EntityID)
	}
	if !f.Since.IsZero() {
		q += " AND created_at >= ?"
		args = append(args, f.Since.Unix())
	}
	limit := 100
	if f.Limit > 0 {
		limit = f.Limit
	}
	q += " ORDER BY created_at DESC, event_id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []BusinessEvent
	for rows.Next() {
		var e BusinessEvent
		var entityType, entityID, userID, traceID, details sql.NullString
		var ts int64
		if err := rows.Scan(&e.EventID, &e.EventType, &entityType, &entityID, &userID,
			&traceID, &e.Action, &details, &e.Success, &ts); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.EntityType = entityType.String
		e.EntityID = entityID.String
		e.UserID = userID.String
		e.TraceID = traceID.String
		e.Details = details.String
		e.CreatedAt = time.Unix(ts, 0)
		events = append(events, e)
	}
	return events, rows.Err()
}

// Cleanup deletes events older than retentionDays. Zero or negative days
// keeps everything.
func Cleanup(ctx context.Context, db *sql.DB, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays).Unix()
	res, err := dbopen.Exec(ctx, db, "DELETE FROM business_event_logs WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup business_event_logs: %w", err)
	}
	return res.RowsAffected()
}
