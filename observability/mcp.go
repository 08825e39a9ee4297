package observability

import (
	"context"
	"encoding/json"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/mailbox/kit"
)

// RegisterMCP exposes the audit trail as the read-only audit_events tool.
func (l *EventLogger) RegisterMCP(srv *mcp.Server) {
	type req struct {
		EventType string `json:"event_type"`
		ClientID  string `json:"client_id"`
		SinceMins int    `json:"since_minutes"`
		Limit     int    `json:"limit"`
	}

	tool := &mcp.Tool{
		Name:        "audit_events",
		Description: "List recent audit events (snapshots, messages, operator logins), newest first",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"event_type":    map[string]any{"type": "string", "description": "Filter by event type, e.g. message.written"},
				"client_id":     map[string]any{"type": "string", "description": "Filter by client identifier"},
				"since_minutes": map[string]any{"type": "integer", "description": "Only events from the last N minutes"},
				"limit":         map[string]any{"type": "integer", "description": "Max results (default 100)"},
			},
		},
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		f := EventFilter{EventType: p.EventType, EntityID: p.ClientID, Limit: p.Limit}
		if p.SinceMins > 0 {
			f.Since = l.now().Add(-time.Duration(p.SinceMins) * time.Minute)
		}
		events, err := l.Query(ctx, f)
		if err != nil {
			return nil, err
		}
		if events == nil {
			events = []BusinessEvent{}
		}
		return events, nil
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var p req
		if len(r.Params.Arguments) > 0 {
			if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
				return nil, err
			}
		}
		return &kit.MCPDecodeResult{Request: &p}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}
