package main

import (
	"testing"
	"time"
)

func TestApplyEnvOverrides_Basic(t *testing.T) {
	base := baseConfig()
	t.Setenv("CAN_BRIDGE_BITRATE", "250000")
	t.Setenv("CAN_BRIDGE_BACKEND", "slcan")
	t.Setenv("CAN_BRIDGE_MDNS_ENABLE", "true")
	t.Setenv("CAN_BRIDGE_SERIAL_READ_TIMEOUT", "100ms")
	t.Setenv("CAN_BRIDGE_LOG_METRICS_INTERVAL", "5s")

	if err := applyEnvOverrides(base, map[string]struct{}{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if base.bitrate != 250000 {
		t.Fatalf("expected bitrate override, got %d", base.bitrate)
	}
	if base.backend != "slcan" {
		t.Fatalf("expected backend override, got %s", base.backend)
	}
	if !base.mdnsEnable {
		t.Fatalf("expected mdnsEnable true")
	}
	if base.serialReadTO != 100*time.Millisecond {
		t.Fatalf("expected serialReadTO 100ms got %v", base.serialReadTO)
	}
	if base.logMetricsEvery != 5*time.Second {
		t.Fatalf("expected logMetricsEvery 5s got %v", base.logMetricsEvery)
	}
}

func TestApplyEnvOverrides_FlagPrecedence(t *testing.T) {
	base := baseConfig()
	t.Setenv("CAN_BRIDGE_BITRATE", "250000")
	// Simulate user passed -bitrate flag (so env should be ignored)
	if err := applyEnvOverrides(base, map[string]struct{}{"bitrate": {}}); err != nil {
		t.Fatalf("err: %v", err)
	}
	if base.bitrate != 500000 {
		t.Fatalf("expected bitrate unchanged 500000 got %d", base.bitrate)
	}
}

func TestApplyEnvOverrides_BadInt(t *testing.T) {
	base := baseConfig()
	t.Setenv("CAN_BRIDGE_HUB_BUFFER", "notint")
	if err := applyEnvOverrides(base, map[string]struct{}{}); err == nil {
		t.Fatalf("expected error for bad integer")
	}
}
