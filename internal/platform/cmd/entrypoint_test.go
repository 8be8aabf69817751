package cmd

import (
	"context"
	"testing"
)

func TestParseConfig_RequiresTarget(t *testing.T) {
	var cfg *struct{}
	if err := ParseConfig(cfg); err == nil {
		t.Fatal("expected error for nil config target")
	}
}

func TestRunWithTelemetry_RequiresServiceName(t *testing.T) {
	err := RunWithTelemetry(context.Background(), "  ", func(context.Context) error { return nil })
	if err == nil {
		t.Fatal("expected error for empty service name")
	}
}

func TestRunWithTelemetry_RequiresRunFunc(t *testing.T) {
	err := RunWithTelemetry(context.Background(), ServiceChronicler, nil)
	if err == nil {
		t.Fatal("expected error for nil run function")
	}
}

func TestRunWithTelemetry_ExecutesRun(t *testing.T) {
	t.Setenv("CHRONICLER_OTEL_ENDPOINT", "")

	ran := false
	err := RunWithTelemetry(context.Background(), ServiceChronicler, func(context.Context) error {
		ran = true
		return nil
	})
	if err != nil {
		t.Fatalf("run with telemetry: %v", err)
	}
	if !ran {
		t.Fatal("run function was not executed")
	}
}
