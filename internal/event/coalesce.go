package event

import "strings"

// keyFunc derives the coalescing identity of a payload within a directory.
type keyFunc func(directory string, p Payload) (string, bool)

// coalescePolicy lists the high-frequency event types whose pending updates
// may replace each other before dispatch. Anything absent here is appended
// and dispatched individually; add a type only if each update fully
// supersedes the previous one.
var coalescePolicy = map[string]keyFunc{
	EventSessionStatus: func(directory string, p Payload) (string, bool) {
		s, ok := p.(SessionStatus)
		if !ok {
			return "", false
		}
		return joinKey(EventSessionStatus, directory, s.SessionID), true
	},
	EventLSPUpdated: func(directory string, p Payload) (string, bool) {
		return joinKey(EventLSPUpdated, directory), true
	},
	EventMessagePartUpdated: func(directory string, p Payload) (string, bool) {
		m, ok := p.(MessagePartUpdated)
		if !ok {
			return "", false
		}
		return joinKey(EventMessagePartUpdated, directory, m.Part.MessageID, m.Part.ID), true
	},
}

// CoalesceKey returns the key under which e may be merged with a pending
// event, or false if e must always be delivered on its own.
func CoalesceKey(e Envelope) (string, bool) {
	if e.Payload == nil {
		return "", false
	}
	fn, ok := coalescePolicy[e.Payload.EventType()]
	if !ok {
		return "", false
	}
	return fn(e.Directory, e.Payload)
}

// Coalesces reports whether events of eventType are ever merged.
func Coalesces(eventType string) bool {
	_, ok := coalescePolicy[eventType]
	return ok
}

func joinKey(parts ...string) string {
	return strings.Join(parts, ":")
}
