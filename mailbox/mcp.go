package mailbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/mailbox/kit"
)

// RegisterMCP registers the operator tools on an MCP server. The caller is
// responsible for placing the server behind an operator session.
func (s *Store) RegisterMCP(srv *mcp.Server) {
	s.registerList(srv)
	s.registerRead(srv)
	s.registerSend(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// listItem omits the page body; mailbox_read returns it on demand.
type listItem struct {
	ClientID   string `json:"client_id"`
	URL        string `json:"url,omitempty"`
	Title      string `json:"title,omitempty"`
	CapturedAt string `json:"captured_at,omitempty"`
	HasPage    bool   `json:"has_page"`
	Message    string `json:"message"`
}

func (s *Store) registerList(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "mailbox_list",
		Description: "List every known client with its page metadata and current message",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(_ context.Context, _ any) (any, error) {
		entries := s.List()
		items := make([]listItem, 0, len(entries))
		for _, e := range entries {
			it := listItem{ClientID: e.ClientID, Message: WaitingText}
			if e.HasMessage {
				it.Message = e.Message
			}
			if e.Snapshot != nil {
				it.HasPage = true
				it.URL = e.Snapshot.URL
				it.Title = e.Snapshot.Title
				it.CapturedAt = e.Snapshot.CapturedAt.Format("2006-01-02 15:04:05")
			}
			items = append(items, it)
		}
		return items, nil
	}

	decode := func(_ *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

func (s *Store) registerRead(srv *mcp.Server) {
	type req struct {
		ClientID string `json:"client_id"`
	}

	tool := &mcp.Tool{
		Name:        "mailbox_read",
		Description: "Read the latest page snapshot and message of one client",
		InputSchema: inputSchema(map[string]any{
			"client_id": map[string]any{"type": "string", "description": "Client identifier"},
		}, []string{"client_id"}),
	}

	endpoint := func(_ context.Context, r any) (any, error) {
		p := r.(*req)
		out := map[string]any{
			"client_id": p.ClientID,
			"message":   s.Message(p.ClientID),
		}
		if snap, ok := s.Snapshot(p.ClientID); ok {
			out["snapshot"] = snap
		}
		return out, nil
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var p req
		if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
			return nil, err
		}
		if p.ClientID == "" {
			return nil, fmt.Errorf("client_id is required")
		}
		return &kit.MCPDecodeResult{Request: &p}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

func (s *Store) registerSend(srv *mcp.Server) {
	type req struct {
		ClientID string `json:"client_id"`
		Text     string `json:"text"`
	}

	tool := &mcp.Tool{
		Name:        "mailbox_send",
		Description: "Overwrite the message a client will receive on its next poll",
		InputSchema: inputSchema(map[string]any{
			"client_id": map[string]any{"type": "string", "description": "Client identifier"},
			"text":      map[string]any{"type": "string", "description": "Message text"},
		}, []string{"client_id", "text"}),
	}

	endpoint := func(_ context.Context, r any) (any, error) {
		p := r.(*req)
		if err := s.PutMessage(p.ClientID, p.Text); err != nil {
			return nil, err
		}
		return map[string]string{"client_id": p.ClientID, "status": "saved"}, nil
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var p req
		if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
			return nil, err
		}
		if p.ClientID == "" {
			return nil, fmt.Errorf("client_id is required")
		}
		return &kit.MCPDecodeResult{Request: &p}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}
