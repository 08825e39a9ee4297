// Package mailbox is the shared state of the exchange: per client identifier,
// the latest page snapshot pushed by an agent and the latest message written
// by the operator.
//
// Both records follow last-write-wins semantics. There is no registration
// step: the first write for an identifier creates its entry, and entries live
// for the lifetime of the process.
//
// The package also carries the HTTP endpoints agents talk to
// ([Handler.Routes]) and the MCP tools ([Store.RegisterMCP]).
package mailbox

import (
	"errors"
	"time"
)

// DefaultClientID is used when an ingestion omits client_id.
const DefaultClientID = "unknown"

// WaitingText is returned for identifiers that never received a message.
const WaitingText = "Waiting for new data..."

var (
	// ErrEmptyContent is returned when a snapshot has no HTML.
	ErrEmptyContent = errors.New("mailbox: html is required")

	// ErrEmptyText is returned when a message is empty after trimming.
	ErrEmptyText = errors.New("mailbox: text is required")
)

// Snapshot is the last page state reported by an agent.
type Snapshot struct {
	ClientID   string    `json:"client_id"`
	HTML       string    `json:"html"`
	URL        string    `json:"url"`
	Title      string    `json:"title"`
	CapturedAt time.Time `json:"captured_at"`
}

// Entry is the listing view of one identifier. Snapshot is nil when only a
// message was ever written; HasMessage is false when only a snapshot was.
type Entry struct {
	ClientID   string    `json:"client_id"`
	Snapshot   *Snapshot `json:"snapshot,omitempty"`
	Message    string    `json:"message,omitempty"`
	HasMessage bool      `json:"has_message"`
}
