package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/trace"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	return out
}

func TestWithContext_RunID(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("test", "info", FormatJSON, &buf)

	ctx := WithRunID(context.Background(), "run-123")
	WithContext(ctx, l).Info("hello")

	out := decodeLine(t, &buf)
	if got := out["run_id"]; got != "run-123" {
		t.Errorf("run_id = %v, want %q", got, "run-123")
	}
	if got := out["service"]; got != "test" {
		t.Errorf("service = %v, want %q", got, "test")
	}
}

func TestWithContext_StoreID(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("test", "info", FormatJSON, &buf)

	ctx := WithStoreID(context.Background(), 3)
	WithContext(ctx, l).Info("store scoped")

	out := decodeLine(t, &buf)
	if got := out["store_id"]; got != float64(3) {
		t.Errorf("store_id = %v, want 3", got)
	}
}

func TestWithContext_NoSpan(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("test", "info", FormatJSON, &buf)

	WithContext(context.Background(), l).Info("no span")

	out := decodeLine(t, &buf)
	if _, ok := out["trace_id"]; ok {
		t.Error("trace_id should not be present when no span in context")
	}
	if _, ok := out["run_id"]; ok {
		t.Error("run_id should not be present when not in context")
	}
	if _, ok := out["store_id"]; ok {
		t.Error("store_id should not be present when not in context")
	}
}

func TestWithContext_WithValidSpan(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("test", "info", FormatJSON, &buf)

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)
	ctx = WithRunID(ctx, "run-456")

	WithContext(ctx, l).Info("with span")

	out := decodeLine(t, &buf)
	if got := out["trace_id"]; got != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("trace_id = %v, want %q", got, "4bf92f3577b34da6a3ce929d0e0e4736")
	}
	if got := out["span_id"]; got != "00f067aa0ba902b7" {
		t.Errorf("span_id = %v, want %q", got, "00f067aa0ba902b7")
	}
	if got := out["run_id"]; got != "run-456" {
		t.Errorf("run_id = %v, want %q", got, "run-456")
	}
}

func TestNewWithWriter_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("urlrewrite", "info", FormatText, &buf)
	l.Info("plain")

	line := buf.String()
	if !strings.Contains(line, "msg=plain") {
		t.Errorf("text output %q should contain msg=plain", line)
	}
	if !strings.Contains(line, "service=urlrewrite") {
		t.Errorf("text output %q should contain service attr", line)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
