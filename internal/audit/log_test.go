package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"civreg.org/internal/auth"
	"civreg.org/internal/obs"
)

func TestLogEvent(t *testing.T) {
	logger := obs.Logger()
	original := logger.Out
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(original)

	ctx := context.Background()
	ctx = WithRequestID(ctx, "req-123")
	ctx = auth.ContextWithIdentity(ctx, auth.Identity{ID: "user-42", Role: auth.RoleWardAdmin})

	if err := LogEvent(ctx, EventUserCreate, map[string]any{"target_id": "u-7"}); err != nil {
		t.Fatalf("LogEvent failed: %v", err)
	}

	line := buf.String()
	if line == "" {
		t.Fatal("expected log output")
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	if entry["type"] != "audit" {
		t.Fatalf("unexpected type: %v", entry["type"])
	}
	if entry["event"] != EventUserCreate {
		t.Fatalf("unexpected event: %v", entry["event"])
	}
	if entry["request_id"] != "req-123" {
		t.Fatalf("unexpected request id: %v", entry["request_id"])
	}
	if entry["actor_id"] != "user-42" || entry["actor_role"] != "WardAdmin" {
		t.Fatalf("unexpected actor: %v %v", entry["actor_id"], entry["actor_role"])
	}
	if _, ok := entry["ts"]; !ok {
		t.Fatalf("timestamp missing: %v", entry)
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok || fields["target_id"] != "u-7" {
		t.Fatalf("fields missing or incorrect: %v", entry["fields"])
	}
}

func TestLogEventRequiresName(t *testing.T) {
	if err := LogEvent(context.Background(), "  ", nil); err == nil {
		t.Fatal("expected error for empty event name")
	}
}
