// Package event defines the opencode bus events carried over the global
// event stream.
//
// event.go - Event type constants and payload variants
//
// This file contains:
// - Event type constants for opencode SSE events
// - Envelope, the directory-scoped unit the pipeline routes
// - Payload, a closed set of typed event variants
//
// Each variant keeps the raw properties JSON it was decoded from, so
// consumers that need fields not modelled here can still read them.

package event

import "encoding/json"

// GlobalDirectory is the routing key for events the server sends without a
// directory.
const GlobalDirectory = "global"

// opencode event types
const (
	// Session events
	EventSessionCreated = "session.created"
	EventSessionUpdated = "session.updated"
	EventSessionDeleted = "session.deleted"
	EventSessionStatus  = "session.status"
	EventSessionIdle    = "session.idle"
	EventSessionError   = "session.error"

	// Message events
	EventMessageUpdated     = "message.updated"
	EventMessageRemoved     = "message.removed"
	EventMessagePartUpdated = "message.part.updated"
	EventMessagePartRemoved = "message.part.removed"

	// Permission events
	EventPermissionAsked   = "permission.asked"
	EventPermissionReplied = "permission.replied"

	// Workspace events
	EventFileEdited = "file.edited"
	EventLSPUpdated = "lsp.updated"

	// Server events
	EventServerConnected = "server.connected"
	EventServerHeartbeat = "server.heartbeat"
	EventGlobalDisposed  = "global.disposed"
)

// Session status values
const (
	StatusIdle  = "idle"
	StatusBusy  = "busy"
	StatusRetry = "retry"
)

// Envelope is one decoded event from the global stream.
type Envelope struct {
	Directory string
	Payload   Payload
}

// Payload is implemented only by the variants in this package. Handlers
// switch on the concrete type.
type Payload interface {
	// EventType returns the wire discriminant, e.g. "session.status".
	EventType() string
	// Properties returns the raw properties object as received.
	Properties() json.RawMessage

	isPayload()
}

type raw struct {
	props json.RawMessage
}

func (r raw) Properties() json.RawMessage { return r.props }

func (raw) isPayload() {}

// SessionStatus reports a session moving between idle, busy and retry.
type SessionStatus struct {
	raw
	SessionID string `json:"sessionID"`
	Status    Status `json:"status"`
}

// Status is the body of a session.status event.
type Status struct {
	Type    string `json:"type"`
	Attempt int    `json:"attempt,omitempty"`
	Message string `json:"message,omitempty"`
	Next    int64  `json:"next,omitempty"`
}

// SessionInfo is the session record carried by session lifecycle events.
type SessionInfo struct {
	ID        string `json:"id"`
	ProjectID string `json:"projectID,omitempty"`
	Directory string `json:"directory,omitempty"`
	ParentID  string `json:"parentID,omitempty"`
	Title     string `json:"title,omitempty"`
}

type SessionCreated struct {
	raw
	Info SessionInfo `json:"info"`
}

type SessionUpdated struct {
	raw
	Info SessionInfo `json:"info"`
}

type SessionDeleted struct {
	raw
	Info SessionInfo `json:"info"`
}

type SessionIdle struct {
	raw
	SessionID string `json:"sessionID"`
}

type SessionError struct {
	raw
	SessionID string          `json:"sessionID,omitempty"`
	Error     json.RawMessage `json:"error,omitempty"`
}

// MessageInfo is the message header carried by message.updated.
type MessageInfo struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionID"`
	Role      string `json:"role"`
}

type MessageUpdated struct {
	raw
	Info MessageInfo `json:"info"`
}

type MessageRemoved struct {
	raw
	SessionID string `json:"sessionID"`
	MessageID string `json:"messageID"`
}

// Part is one piece of a message: text, a tool call, a file and so on.
type Part struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionID"`
	MessageID string `json:"messageID"`
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
}

// MessagePartUpdated is emitted on every growth of a streaming part.
type MessagePartUpdated struct {
	raw
	Part  Part   `json:"part"`
	Delta string `json:"delta,omitempty"`
}

type MessagePartRemoved struct {
	raw
	SessionID string `json:"sessionID"`
	MessageID string `json:"messageID"`
	PartID    string `json:"partID"`
}

type PermissionAsked struct {
	raw
	ID         string `json:"id"`
	SessionID  string `json:"sessionID"`
	Permission string `json:"permission,omitempty"`
}

type PermissionReplied struct {
	raw
	SessionID string `json:"sessionID"`
	RequestID string `json:"requestID"`
	Reply     string `json:"reply"`
}

type FileEdited struct {
	raw
	File string `json:"file"`
}

// LSPUpdated signals that language-server state for a directory changed.
type LSPUpdated struct {
	raw
}

type ServerConnected struct {
	raw
}

type ServerHeartbeat struct {
	raw
}

type GlobalDisposed struct {
	raw
}

// Unknown holds any event type not modelled above.
type Unknown struct {
	raw
	Type string
}

func (SessionStatus) EventType() string      { return EventSessionStatus }
func (SessionCreated) EventType() string     { return EventSessionCreated }
func (SessionUpdated) EventType() string     { return EventSessionUpdated }
func (SessionDeleted) EventType() string     { return EventSessionDeleted }
func (SessionIdle) EventType() string        { return EventSessionIdle }
func (SessionError) EventType() string       { return EventSessionError }
func (MessageUpdated) EventType() string     { return EventMessageUpdated }
func (MessageRemoved) EventType() string     { return EventMessageRemoved }
func (MessagePartUpdated) EventType() string { return EventMessagePartUpdated }
func (MessagePartRemoved) EventType() string { return EventMessagePartRemoved }
func (PermissionAsked) EventType() string    { return EventPermissionAsked }
func (PermissionReplied) EventType() string  { return EventPermissionReplied }
func (FileEdited) EventType() string         { return EventFileEdited }
func (LSPUpdated) EventType() string         { return EventLSPUpdated }
func (ServerConnected) EventType() string    { return EventServerConnected }
func (ServerHeartbeat) EventType() string    { return EventServerHeartbeat }
func (GlobalDisposed) EventType() string     { return EventGlobalDisposed }
func (u Unknown) EventType() string          { return u.Type }
