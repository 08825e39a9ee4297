package observability

import (
	"context"
	"encoding/json"

	"github.com/hazyhaar/mailbox/kit"
	"github.com/hazyhaar/mailbox/mailbox"
)

// MailboxAudit turns mailbox writes and operator session changes into
// business events. It satisfies mailbox.Observer and console.LoginRecorder.
type MailboxAudit struct {
	events *EventLogger
}

// NewMailboxAudit wraps l. A nil l yields a recorder that discards events.
func NewMailboxAudit(l *EventLogger) *MailboxAudit {
	return &MailboxAudit{events: l}
}

var _ mailbox.Observer = (*MailboxAudit)(nil)

// SnapshotStored records a snapshot.received event. The page body itself is
// not kept, only its size. rev is kept in details to recover commit order.
func (a *MailboxAudit) SnapshotStored(rev uint64, s mailbox.Snapshot) {
	a.events.LogEvent(BusinessEvent{
		EventType:  EventSnapshotReceived,
		EntityType: "client",
		EntityID:   s.ClientID,
		Action:     "put_snapshot",
		Details:    details(map[string]any{"rev": rev, "url": s.URL, "title": s.Title, "bytes": len(s.HTML)}),
		Success:    true,
		CreatedAt:  s.CapturedAt,
	})
}

// MessageStored records a message.written event.
func (a *MailboxAudit) MessageStored(rev uint64, clientID, text string) {
	a.events.LogEvent(BusinessEvent{
		EventType:  EventMessageWritten,
		EntityType: "client",
		EntityID:   clientID,
		Action:     "put_message",
		Details:    details(map[string]any{"rev": rev, "text": text}),
		Success:    true,
	})
}

func (a *MailboxAudit) LoginSucceeded(ctx context.Context, login, sessionID string) {
	a.events.LogEvent(BusinessEvent{
		EventType:  EventLogin,
		EntityType: "session",
		EntityID:   sessionID,
		UserID:     login,
		TraceID:    kit.GetTraceID(ctx),
		Action:     "login",
		Details:    details(map[string]any{"transport": kit.GetTransport(ctx)}),
		Success:    true,
	})
}

func (a *MailboxAudit) LoginFailed(ctx context.Context, login string) {
	a.events.LogEvent(BusinessEvent{
		EventType:  EventLoginFailed,
		EntityType: "session",
		UserID:     login,
		TraceID:    kit.GetTraceID(ctx),
		Action:     "login",
		Success:    false,
	})
}

func (a *MailboxAudit) LoggedOut(ctx context.Context, login, sessionID string) {
	a.events.LogEvent(BusinessEvent{
		EventType:  EventLogout,
		EntityType: "session",
		EntityID:   sessionID,
		UserID:     login,
		TraceID:    kit.GetTraceID(ctx),
		Action:     "logout",
		Success:    true,
	})
}

func details(v map[string]any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
