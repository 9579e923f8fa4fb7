package main

import (
	"bytes"
	"encoding/json"
	"slices"
	"testing"

	"github.com/HyphaGroup/eventsync/internal/config"
	"github.com/HyphaGroup/eventsync/internal/event"
)

func TestWatchedDirectories(t *testing.T) {
	tests := []struct {
		name       string
		configured []string
		flagged    []string
		want       []string
	}{
		{"none", nil, nil, []string{event.GlobalDirectory}},
		{"configured only", []string{"/a"}, nil, []string{"/a"}},
		{"merged and deduplicated", []string{"/a", "/b"}, []string{"/b", "/c", ""}, []string{"/a", "/b", "/c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := watchedDirectories(tt.configured, tt.flagged)
			if len(got) != len(tt.want) {
				t.Fatalf("watchedDirectories() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("watchedDirectories() = %v, want %v", got, tt.want)
					break
				}
			}
		})
	}
}

func TestEventPrinter_WritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	p := &eventPrinter{w: &buf}

	payload, err := event.DecodePayload(event.EventSessionIdle, json.RawMessage(`{"sessionID":"s1"}`))
	if err != nil {
		t.Fatalf("DecodePayload() returned error: %v", err)
	}
	p.handler("/work")(payload)
	p.handler("/work")(event.ServerHeartbeat{})

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 2 {
		t.Fatalf("wrote %d lines, want 2:\n%s", len(lines), buf.String())
	}

	env, err := event.DecodeEnvelope(lines[0])
	if err != nil {
		t.Fatalf("DecodeEnvelope() returned error: %v", err)
	}
	idle, ok := env.Payload.(event.SessionIdle)
	if !ok || idle.SessionID != "s1" || env.Directory != "/work" {
		t.Errorf("line 0 = %s, want session.idle s1 in /work", lines[0])
	}
}

func TestConfigTemplate_Parses(t *testing.T) {
	cfg, err := config.Parse([]byte(configTemplate))
	if err != nil {
		t.Fatalf("Parse(configTemplate) returned error: %v", err)
	}
	server, err := cfg.ActiveServer()
	if err != nil {
		t.Fatalf("ActiveServer() returned error: %v", err)
	}
	if server.URL != "http://localhost:4096" {
		t.Errorf("ActiveServer().URL = %q, want http://localhost:4096", server.URL)
	}
}

func TestStringList(t *testing.T) {
	var s stringList
	_ = s.Set("/a")
	_ = s.Set("/b")
	if s.String() != "/a,/b" {
		t.Errorf("String() = %q, want /a,/b", s.String())
	}
}

func TestSubscriptions_Sync(t *testing.T) {
	var subscribed, unsubscribed []string
	subs := newSubscriptions(func(dir string) func() {
		subscribed = append(subscribed, dir)
		return func() { unsubscribed = append(unsubscribed, dir) }
	})

	added, removed := subs.sync([]string{"/a", "/b"})
	if !slices.Equal(added, []string{"/a", "/b"}) || len(removed) != 0 {
		t.Errorf("first sync() = %v, %v; want [/a /b], []", added, removed)
	}

	added, removed = subs.sync([]string{"/b", "/c"})
	if !slices.Equal(added, []string{"/c"}) || !slices.Equal(removed, []string{"/a"}) {
		t.Errorf("second sync() = %v, %v; want [/c], [/a]", added, removed)
	}

	added, removed = subs.sync([]string{"/b", "/c"})
	if len(added) != 0 || len(removed) != 0 {
		t.Errorf("unchanged sync() = %v, %v; want no changes", added, removed)
	}

	if !slices.Equal(subscribed, []string{"/a", "/b", "/c"}) {
		t.Errorf("subscribed = %v, want [/a /b /c]", subscribed)
	}
	if !slices.Equal(unsubscribed, []string{"/a"}) {
		t.Errorf("unsubscribed = %v, want [/a]", unsubscribed)
	}
}
