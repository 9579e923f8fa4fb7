package event

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMissingType is returned for a payload without a type discriminant.
var ErrMissingType = errors.New("event payload has no type")

// wireEnvelope is the JSON shape of one frame on /global/event:
// {"directory": "...", "payload": {"type": "...", "properties": {...}}}
type wireEnvelope struct {
	Directory string      `json:"directory,omitempty"`
	Payload   wirePayload `json:"payload"`
}

type wirePayload struct {
	Type       string          `json:"type"`
	Properties json.RawMessage `json:"properties,omitempty"`
}

// DecodeEnvelope parses one SSE data payload. A missing directory is routed
// as GlobalDirectory.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var w wireEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return Envelope{}, fmt.Errorf("decoding envelope: %w", err)
	}

	payload, err := DecodePayload(w.Payload.Type, w.Payload.Properties)
	if err != nil {
		return Envelope{}, err
	}

	directory := w.Directory
	if directory == "" {
		directory = GlobalDirectory
	}
	return Envelope{Directory: directory, Payload: payload}, nil
}

// DecodePayload builds the typed variant for eventType from its properties.
// Types this package does not model decode to Unknown.
func DecodePayload(eventType string, props json.RawMessage) (Payload, error) {
	if eventType == "" {
		return nil, ErrMissingType
	}
	r := raw{props: props}

	switch eventType {
	case EventSessionStatus:
		return decode(eventType, props, &SessionStatus{raw: r})
	case EventSessionCreated:
		return decode(eventType, props, &SessionCreated{raw: r})
	case EventSessionUpdated:
		return decode(eventType, props, &SessionUpdated{raw: r})
	case EventSessionDeleted:
		return decode(eventType, props, &SessionDeleted{raw: r})
	case EventSessionIdle:
		return decode(eventType, props, &SessionIdle{raw: r})
	case EventSessionError:
		return decode(eventType, props, &SessionError{raw: r})
	case EventMessageUpdated:
		return decode(eventType, props, &MessageUpdated{raw: r})
	case EventMessageRemoved:
		return decode(eventType, props, &MessageRemoved{raw: r})
	case EventMessagePartUpdated:
		return decode(eventType, props, &MessagePartUpdated{raw: r})
	case EventMessagePartRemoved:
		return decode(eventType, props, &MessagePartRemoved{raw: r})
	case EventPermissionAsked:
		return decode(eventType, props, &PermissionAsked{raw: r})
	case EventPermissionReplied:
		return decode(eventType, props, &PermissionReplied{raw: r})
	case EventFileEdited:
		return decode(eventType, props, &FileEdited{raw: r})
	case EventLSPUpdated:
		return LSPUpdated{raw: r}, nil
	case EventServerConnected:
		return ServerConnected{raw: r}, nil
	case EventServerHeartbeat:
		return ServerHeartbeat{raw: r}, nil
	case EventGlobalDisposed:
		return GlobalDisposed{raw: r}, nil
	default:
		return Unknown{raw: r, Type: eventType}, nil
	}
}

func decode[T Payload](eventType string, props json.RawMessage, p *T) (Payload, error) {
	trimmed := bytes.TrimSpace(props)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return *p, nil
	}
	if err := json.Unmarshal(trimmed, p); err != nil {
		return nil, fmt.Errorf("decoding %s properties: %w", eventType, err)
	}
	return *p, nil
}

// MarshalJSON encodes the envelope in its wire shape.
func (e Envelope) MarshalJSON() ([]byte, error) {
	w := wireEnvelope{Directory: e.Directory}
	if e.Payload != nil {
		w.Payload.Type = e.Payload.EventType()
		w.Payload.Properties = e.Payload.Properties()
	}
	if len(w.Payload.Properties) == 0 {
		w.Payload.Properties = json.RawMessage("{}")
	}
	return json.Marshal(w)
}
