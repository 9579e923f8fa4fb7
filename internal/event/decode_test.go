package event

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecodeEnvelope_SessionStatus(t *testing.T) {
	data := `{"directory":"/work/app","payload":{"type":"session.status","properties":{"sessionID":"ses_1","status":{"type":"busy"}}}}`

	env, err := DecodeEnvelope([]byte(data))
	if err != nil {
		t.Fatalf("DecodeEnvelope() returned error: %v", err)
	}
	if env.Directory != "/work/app" {
		t.Errorf("Directory = %q, want %q", env.Directory, "/work/app")
	}

	status, ok := env.Payload.(SessionStatus)
	if !ok {
		t.Fatalf("Payload = %T, want SessionStatus", env.Payload)
	}
	if status.SessionID != "ses_1" {
		t.Errorf("SessionID = %q, want 'ses_1'", status.SessionID)
	}
	if status.Status.Type != StatusBusy {
		t.Errorf("Status.Type = %q, want %q", status.Status.Type, StatusBusy)
	}
}

func TestDecodeEnvelope_MissingDirectoryIsGlobal(t *testing.T) {
	data := `{"payload":{"type":"server.connected","properties":{}}}`

	env, err := DecodeEnvelope([]byte(data))
	if err != nil {
		t.Fatalf("DecodeEnvelope() returned error: %v", err)
	}
	if env.Directory != GlobalDirectory {
		t.Errorf("Directory = %q, want %q", env.Directory, GlobalDirectory)
	}
	if _, ok := env.Payload.(ServerConnected); !ok {
		t.Errorf("Payload = %T, want ServerConnected", env.Payload)
	}
}

func TestDecodeEnvelope_MessagePartUpdated(t *testing.T) {
	data := `{"directory":"d","payload":{"type":"message.part.updated","properties":{"part":{"id":"prt_1","sessionID":"ses_1","messageID":"msg_1","type":"text","text":"Hello world"},"delta":"world"}}}`

	env, err := DecodeEnvelope([]byte(data))
	if err != nil {
		t.Fatalf("DecodeEnvelope() returned error: %v", err)
	}

	part, ok := env.Payload.(MessagePartUpdated)
	if !ok {
		t.Fatalf("Payload = %T, want MessagePartUpdated", env.Payload)
	}
	if part.Part.ID != "prt_1" || part.Part.MessageID != "msg_1" {
		t.Errorf("Part = %+v, want id prt_1 message msg_1", part.Part)
	}
	if part.Part.Text != "Hello world" {
		t.Errorf("Text = %q, want 'Hello world'", part.Part.Text)
	}
	if part.Delta != "world" {
		t.Errorf("Delta = %q, want 'world'", part.Delta)
	}
}

func TestDecodeEnvelope_UnknownTypeKeepsProperties(t *testing.T) {
	data := `{"directory":"d","payload":{"type":"todo.updated","properties":{"todos":[1,2]}}}`

	env, err := DecodeEnvelope([]byte(data))
	if err != nil {
		t.Fatalf("DecodeEnvelope() returned error: %v", err)
	}

	u, ok := env.Payload.(Unknown)
	if !ok {
		t.Fatalf("Payload = %T, want Unknown", env.Payload)
	}
	if u.EventType() != "todo.updated" {
		t.Errorf("EventType() = %q, want 'todo.updated'", u.EventType())
	}
	if string(u.Properties()) != `{"todos":[1,2]}` {
		t.Errorf("Properties() = %s, want raw properties", u.Properties())
	}
}

func TestDecodeEnvelope_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"invalid json", `not json`},
		{"missing type", `{"directory":"d","payload":{"properties":{}}}`},
		{"malformed properties", `{"payload":{"type":"session.status","properties":{"sessionID":5}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeEnvelope([]byte(tt.data)); err == nil {
				t.Errorf("DecodeEnvelope(%q) should return error", tt.data)
			}
		})
	}
}

func TestDecodePayload_MissingType(t *testing.T) {
	_, err := DecodePayload("", nil)
	if !errors.Is(err, ErrMissingType) {
		t.Errorf("DecodePayload() error = %v, want ErrMissingType", err)
	}
}

func TestDecodePayload_NullProperties(t *testing.T) {
	p, err := DecodePayload(EventSessionIdle, json.RawMessage("null"))
	if err != nil {
		t.Fatalf("DecodePayload() returned error: %v", err)
	}
	if _, ok := p.(SessionIdle); !ok {
		t.Errorf("Payload = %T, want SessionIdle", p)
	}
}

func TestEnvelope_MarshalJSON(t *testing.T) {
	data := `{"directory":"d","payload":{"type":"file.edited","properties":{"file":"main.go"}}}`

	env, err := DecodeEnvelope([]byte(data))
	if err != nil {
		t.Fatalf("DecodeEnvelope() returned error: %v", err)
	}

	out, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("Marshal() returned error: %v", err)
	}
	if string(out) != data {
		t.Errorf("Marshal() = %s, want %s", out, data)
	}
}

func TestEnvelope_MarshalJSON_EmptyProperties(t *testing.T) {
	env := Envelope{Directory: "d", Payload: LSPUpdated{}}

	out, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("Marshal() returned error: %v", err)
	}
	want := `{"directory":"d","payload":{"type":"lsp.updated","properties":{}}}`
	if string(out) != want {
		t.Errorf("Marshal() = %s, want %s", out, want)
	}
}

func TestEventTypeConstants(t *testing.T) {
	tests := []struct {
		name     string
		constant string
		expected string
	}{
		{"EventSessionStatus", EventSessionStatus, "session.status"},
		{"EventLSPUpdated", EventLSPUpdated, "lsp.updated"},
		{"EventMessagePartUpdated", EventMessagePartUpdated, "message.part.updated"},
		{"EventServerHeartbeat", EventServerHeartbeat, "server.heartbeat"},
		{"EventGlobalDisposed", EventGlobalDisposed, "global.disposed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.constant != tt.expected {
				t.Errorf("%s = %q, want %q", tt.name, tt.constant, tt.expected)
			}
		})
	}
}
