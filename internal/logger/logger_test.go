package logger

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFromContext_AddsFields(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))

	ctx := WithServer(context.Background(), "http://localhost:4096")
	ctx = WithDirectory(ctx, "/work/app")
	ctx = WithAttempt(ctx, "att-1")

	FromContext(ctx, base).Info("connected")

	out := buf.String()
	for _, want := range []string{"server=http://localhost:4096", "directory=/work/app", "attempt_id=att-1"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output %q missing %q", out, want)
		}
	}
}

func TestFromContext_NoFields(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))

	FromContext(context.Background(), base).Info("plain")

	if strings.Contains(buf.String(), "attempt_id") {
		t.Errorf("log output %q should not contain attempt_id", buf.String())
	}
}

func TestInitSlog_WritesFile(t *testing.T) {
	dir := t.TempDir()
	if err := InitSlog(dir, true, slog.LevelInfo); err != nil {
		t.Fatalf("InitSlog() returned error: %v", err)
	}
	t.Cleanup(func() { _ = CloseSlog() })

	Slog().Info("hello", "k", "v")

	matches, err := filepath.Glob(filepath.Join(dir, "eventsync-*.log"))
	if err != nil || len(matches) != 1 {
		t.Fatalf("log file glob = %v, %v; want one file", matches, err)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("ReadFile() returned error: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"hello"`) {
		t.Errorf("log file = %q, want JSON line with msg hello", data)
	}
}
