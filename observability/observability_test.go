package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/mailbox/dbopen"
	"github.com/hazyhaar/mailbox/kit"
	"github.com/hazyhaar/mailbox/mailbox"
)

func setupObsDB(t *testing.T) *sql.DB {
	t.Helper()
	return dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
}

func countEvents(t *testing.T, db *sql.DB, eventType string) int {
	t.Helper()
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM business_event_logs WHERE event_type = ?", eventType).Scan(&n); err != nil {
		t.Fatal(err)
	}
	return n
}

func TestInit_Idempotent(t *testing.T) {
	db := setupObsDB(t)
	if err := Init(db); err != nil {
		t.Fatalf("second Init: %v", err)
	}
	var count int
	db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='business_event_logs'").Scan(&count)
	if count != 1 {
		t.Fatal("business_event_logs not found")
	}
}

func TestEventLogger_LogSync(t *testing.T) {
	db := setupObsDB(t)
	el := NewEventLogger(db)
	defer el.Close()

	err := el.Log(context.Background(), BusinessEvent{
		EventType:  EventMessageWritten,
		EntityType: "client",
		EntityID:   "c1",
		Action:     "put_message",
		Success:    true,
	})
	if err != nil {
		t.Fatal(err)
	}

	var service, action string
	db.QueryRow("SELECT service_name, action FROM business_event_logs LIMIT 1").Scan(&service, &action)
	if service != ServiceName || action != "put_message" {
		t.Fatalf("got service=%q action=%q", service, action)
	}
}

func TestEventLogger_LogEventFlushesOnClose(t *testing.T) {
	db := setupObsDB(t)
	el := NewEventLogger(db)

	for i := 0; i < 5; i++ {
		el.LogEvent(BusinessEvent{EventType: EventSnapshotReceived, EntityID: "c1", Action: "put_snapshot", Success: true})
	}
	el.Close()

	if n := countEvents(t, db, EventSnapshotReceived); n != 5 {
		t.Fatalf("got %d events, want 5", n)
	}
}

func TestEventLogger_BufferFullFallsBackToSync(t *testing.T) {
	db := setupObsDB(t)
	el := NewEventLogger(db, WithBufferSize(1))

	for i := 0; i < 20; i++ {
		el.LogEvent(BusinessEvent{EventType: EventMessageWritten, Action: "put_message", Success: true})
	}
	el.Close()

	if n := countEvents(t, db, EventMessageWritten); n != 20 {
		t.Fatalf("got %d events, want 20", n)
	}
}

func TestEventLogger_WithIDGenerator(t *testing.T) {
	db := setupObsDB(t)
	el := NewEventLogger(db, WithEventIDGenerator(func() string { return "evt_custom" }))
	defer el.Close()

	el.Log(context.Background(), BusinessEvent{EventType: "test", Action: "test", Success: true})

	var eventID string
	db.QueryRow("SELECT event_id FROM business_event_logs LIMIT 1").Scan(&eventID)
	if eventID != "evt_custom" {
		t.Fatalf("custom event_id: got %q", eventID)
	}
}

func TestEventLogger_Nil(t *testing.T) {
	var el *EventLogger
	el.LogEvent(BusinessEvent{EventType: "x"})
	if err := el.Log(context.Background(), BusinessEvent{}); err != nil {
		t.Fatal(err)
	}
	if events, err := el.Query(context.Background(), EventFilter{}); err != nil || events != nil {
		t.Fatalf("Query on nil logger: %v %v", events, err)
	}
	if err := el.Close(); err != nil {
		t.Fatal(err)
	}

	// A recorder over a nil logger is the disabled audit trail.
	a := NewMailboxAudit(nil)
	a.SnapshotStored(1, mailbox.Snapshot{ClientID: "c1", HTML: "<p>x</p>"})
	a.LoginFailed(context.Background(), "admin")
}

func TestEventLogger_Query(t *testing.T) {
	db := setupObsDB(t)
	el := NewEventLogger(db)
	defer el.Close()
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	el.Log(ctx, BusinessEvent{EventType: EventMessageWritten, EntityID: "c1", Action: "put_message", Success: true, CreatedAt: base})
	el.Log(ctx, BusinessEvent{EventType: EventMessageWritten, EntityID: "c2", Action: "put_message", Success: true, CreatedAt: base.Add(time.Minute)})
	el.Log(ctx, BusinessEvent{EventType: EventSnapshotReceived, EntityID: "c1", Action: "put_snapshot", Success: true, CreatedAt: base.Add(2 * time.Minute)})

	all, err := el.Query(ctx, EventFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("all: got %d", len(all))
	}
	if all[0].EventType != EventSnapshotReceived {
		t.Errorf("newest first: got %q", all[0].EventType)
	}

	byClient, _ := el.Query(ctx, EventFilter{EntityID: "c1"})
	if len(byClient) != 2 {
		t.Errorf("by client: got %d", len(byClient))
	}
	byType, _ := el.Query(ctx, EventFilter{EventType: EventMessageWritten, Limit: 1})
	if len(byType) != 1 || byType[0].EntityID != "c2" {
		t.Errorf("by type with limit: %+v", byType)
	}
	recent, _ := el.Query(ctx, EventFilter{Since: base.Add(90 * time.Second)})
	if len(recent) != 1 {
		t.Errorf("since: got %d", len(recent))
	}
}

func TestCleanup_Retention(t *testing.T) {
	db := setupObsDB(t)
	ctx := context.Background()

	oldTs := time.Now().Add(-40 * 24 * time.Hour).Unix()
	db.Exec("INSERT INTO business_event_logs (event_id, event_type, service_name, action, success, created_at) VALUES ('e1', 'test', 'mailbox', 'act', 1, ?)", oldTs)
	db.Exec("INSERT INTO business_event_logs (event_id, event_type, service_name, action, success, created_at) VALUES ('e2', 'test', 'mailbox', 'act', 1, ?)", time.Now().Unix())

	deleted, err := Cleanup(ctx, db, 30)
	if err != nil {
		t.Fatal(err)
	}
	if deleted != 1 {
		t.Fatalf("deleted: got %d, want 1", deleted)
	}
	if n := countEvents(t, db, "test"); n != 1 {
		t.Fatalf("remaining: got %d, want 1", n)
	}
}

func TestCleanup_SkipsZeroDays(t *testing.T) {
	db := setupObsDB(t)
	oldTs := time.Now().Add(-400 * 24 * time.Hour).Unix()
	db.Exec("INSERT INTO business_event_logs (event_id, event_type, service_name, action, success, created_at) VALUES ('e1', 'test', 'mailbox', 'act', 1, ?)", oldTs)

	if _, err := Cleanup(context.Background(), db, 0); err != nil {
		t.Fatal(err)
	}
	if n := countEvents(t, db, "test"); n != 1 {
		t.Fatalf("should not clean when days=0: got %d", n)
	}
}

func TestMailboxAudit_StoreWrites(t *testing.T) {
	db := setupObsDB(t)
	el := NewEventLogger(db)
	store := mailbox.NewStore(mailbox.WithObserver(NewMailboxAudit(el)))

	store.PutSnapshot(mailbox.Snapshot{ClientID: "c1", HTML: "<p>Q1</p>", URL: "http://x"})
	store.PutMessage("c1", "Answer B")
	store.PutMessage("c1", "") // rejected, not audited
	el.Close()

	if n := countEvents(t, db, EventSnapshotReceived); n != 1 {
		t.Fatalf("snapshot events: %d", n)
	}
	if n := countEvents(t, db, EventMessageWritten); n != 1 {
		t.Fatalf("message events: %d", n)
	}

	var entity, det string
	db.QueryRow("SELECT entity_id, details FROM business_event_logs WHERE event_type = ?", EventSnapshotReceived).Scan(&entity, &det)
	if entity != "c1" {
		t.Errorf("entity_id = %q", entity)
	}
	var d map[string]any
	if err := json.Unmarshal([]byte(det), &d); err != nil {
		t.Fatalf("details: %v", err)
	}
	if d["url"] != "http://x" || d["bytes"] != float64(len("<p>Q1</p>")) || d["rev"] != float64(1) {
		t.Errorf("details = %v", d)
	}
}

func TestMailboxAudit_Sessions(t *testing.T) {
	db := setupObsDB(t)
	el := NewEventLogger(db)
	a := NewMailboxAudit(el)
	ctx := kit.WithTraceID(context.Background(), "abcd1234")

	a.LoginFailed(ctx, "admin")
	a.LoginSucceeded(ctx, "admin", "sess_1")
	a.LoggedOut(ctx, "admin", "sess_1")
	el.Close()

	for _, typ := range []string{EventLoginFailed, EventLogin, EventLogout} {
		if n := countEvents(t, db, typ); n != 1 {
			t.Errorf("%s: got %d", typ, n)
		}
	}
	var success bool
	var trace string
	db.QueryRow("SELECT success, trace_id FROM business_event_logs WHERE event_type = ?", EventLoginFailed).Scan(&success, &trace)
	if success {
		t.Error("failed login recorded as success")
	}
	if trace != "abcd1234" {
		t.Errorf("trace_id = %q", trace)
	}
}

func TestMCP_AuditEvents(t *testing.T) {
	db := setupObsDB(t)
	el := NewEventLogger(db)
	defer el.Close()
	ctx := context.Background()
	el.Log(ctx, BusinessEvent{EventType: EventMessageWritten, EntityID: "c1", Action: "put_message", Success: true})
	el.Log(ctx, BusinessEvent{EventType: EventLogin, EntityID: "sess_1", Action: "login", Success: true})

	impl := &mcp.Implementation{Name: "audit-test", Version: "0.1.0"}
	srv := mcp.NewServer(impl, nil)
	el.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	go func() { _ = srv.Run(ctx, serverT) }()
	session, err := mcp.NewClient(impl, nil).Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })

	result, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "audit_events",
		Arguments: map[string]any{"client_id": "c1"},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %v", result.Content)
	}
	var events []BusinessEvent
	if err := json.Unmarshal([]byte(result.Content[0].(*mcp.TextContent).Text), &events); err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].EventType != EventMessageWritten {
		t.Fatalf("events = %+v", events)
	}
}
