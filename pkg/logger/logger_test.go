package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	if got := ParseLevel("warn"); got != zerolog.WarnLevel {
		t.Fatalf("expected warn level, got %v", got)
	}
	if got := ParseLevel(""); got != zerolog.InfoLevel {
		t.Fatalf("expected default info level, got %v", got)
	}
	if got := ParseLevel("garbage"); got != zerolog.InfoLevel {
		t.Fatalf("expected info for unknown level, got %v", got)
	}
}

func TestContextFieldsFlowThrough(t *testing.T) {
	var buf bytes.Buffer
	logg := New(Options{ServiceName: "test", Output: &buf})

	ctx := logg.WithRequestID(context.Background(), "req-123")
	ctx = logg.WithPaymentID(ctx, "pay-456")
	logg.Info(ctx, "hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not json: %v", err)
	}
	if entry["request_id"] != "req-123" {
		t.Fatalf("request_id missing from entry: %v", entry)
	}
	if entry["payment_id"] != "pay-456" {
		t.Fatalf("payment_id missing from entry: %v", entry)
	}
	if entry["service"] != "test" {
		t.Fatalf("service missing from entry: %v", entry)
	}
}

func TestErrorIncludesStack(t *testing.T) {
	var buf bytes.Buffer
	logg := New(Options{ServiceName: "test", Output: &buf})

	logg.Error(context.Background(), "boom", context.Canceled)
	if !strings.Contains(buf.String(), "stack") {
		t.Fatalf("expected stack field in error log: %s", buf.String())
	}
}
