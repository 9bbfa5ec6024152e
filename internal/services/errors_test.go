package services_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"subguard/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "transform", "ffmpeg", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"transform", "ffmpeg", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected default detail, got %q", err.Error())
	}
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"validation", services.Wrap(services.ErrValidation, "pipeline", "input", "bad id", nil), false},
		{"configuration", services.Wrap(services.ErrConfiguration, "pipeline", "new", "missing dir", nil), false},
		{"not found", services.Wrap(services.ErrNotFound, "pipeline", "move", "gone", nil), false},
		{"external tool", services.Wrap(services.ErrExternalTool, "transform", "ffmpeg", "exit 1", nil), true},
		{"timeout", services.Wrap(services.ErrTimeout, "transform", "ffmpeg", "deadline", nil), true},
		{"store", services.Wrap(services.ErrStore, "approve", "record", "busy", nil), true},
		{"plain", errors.New("io"), true},
	}
	for _, tc := range cases {
		if got := services.Retryable(tc.err); got != tc.want {
			t.Fatalf("%s: Retryable=%v want %v", tc.name, got, tc.want)
		}
	}
}

func TestKind(t *testing.T) {
	if got := services.Kind(fmt.Errorf("stage: %w", context.DeadlineExceeded)); got != "timeout" {
		t.Fatalf("expected timeout, got %q", got)
	}
	if got := services.Kind(services.Wrap(services.ErrDetector, "validate", "ensemble", "no votes", nil)); got != "detector" {
		t.Fatalf("expected detector, got %q", got)
	}
	if got := services.Kind(context.Canceled); got != "canceled" {
		t.Fatalf("expected canceled, got %q", got)
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithVideoID(ctx, "abc123")
	ctx = services.WithJobID(ctx, "job-1")
	ctx = services.WithStage(ctx, "validating")
	ctx = services.WithRequestID(ctx, "req-9")

	if v, ok := services.VideoIDFromContext(ctx); !ok || v != "abc123" {
		t.Fatalf("unexpected video id %q %v", v, ok)
	}
	if v, ok := services.JobIDFromContext(ctx); !ok || v != "job-1" {
		t.Fatalf("unexpected job id %q %v", v, ok)
	}
	if v, ok := services.StageFromContext(ctx); !ok || v != "validating" {
		t.Fatalf("unexpected stage %q %v", v, ok)
	}
	if v, ok := services.RequestIDFromContext(ctx); !ok || v != "req-9" {
		t.Fatalf("unexpected request id %q %v", v, ok)
	}
	if _, ok := services.VideoIDFromContext(services.WithVideoID(context.Background(), "")); ok {
		t.Fatal("empty video id should not be stored")
	}
}
