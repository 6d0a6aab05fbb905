package logger

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestInit(t *testing.T) {
	logger := Init("test-service", slog.LevelInfo)
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestRequestID_RoundTrip(t *testing.T) {
	ctx := context.Background()

	// No request ID set
	if id := RequestID(ctx); id != "" {
		t.Errorf("expected empty request id, got %q", id)
	}

	// Set and retrieve
	ctx = WithRequestID(ctx, "test-req-123")
	if id := RequestID(ctx); id != "test-req-123" {
		t.Errorf("expected 'test-req-123', got %q", id)
	}
}

func TestNewRequestID(t *testing.T) {
	ts := time.Date(2026, 8, 28, 10, 30, 0, 123456789, time.UTC)
	id := NewRequestID("10.0.0.7:51234", ts)

	if id == "" {
		t.Fatal("expected non-empty request id")
	}
	if !strings.HasPrefix(id, "10.0.0.7:51234-") {
		t.Errorf("expected request id to start with the remote addr, got %s", id)
	}
	// Verify it contains the nano timestamp
	if !strings.Contains(id, "123456789") {
		t.Errorf("expected request id to contain nanoseconds, got %s", id)
	}
}

func TestLogWithRequest(t *testing.T) {
	ctx := context.Background()

	// No request ID
	attrs := LogWithRequest(ctx)
	if attrs != nil {
		t.Errorf("expected nil attrs when no request id, got %v", attrs)
	}

	// With request ID — returns [slog.Attr] which is a single element
	ctx = WithRequestID(ctx, "abc-123")
	attrs = LogWithRequest(ctx)
	if len(attrs) == 0 {
		t.Fatal("expected non-empty attrs with request id set")
	}
}
