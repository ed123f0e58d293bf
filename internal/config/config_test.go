package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"MIX_SESSION_URL", "MIX_SESSION_API_KEY", "MIX_SESSION_MODEL",
		"MIX_PORT", "MIX_OUTPUT_DIR", "MIX_PRESETS_FILE", "MIX_BUFFER_SECONDS",
		"MIX_UNDERRUN_TOLERANCE", "MIX_OUTPUT_GAIN", "MIX_THROTTLE_MS",
		"MIX_GEN_URL", "MIX_GEN_MODEL",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.SessionModel != "realtime-music-001" {
		t.Errorf("SessionModel = %q, want realtime-music-001", cfg.SessionModel)
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.OutputDir != "recordings" {
		t.Errorf("OutputDir = %q, want recordings", cfg.OutputDir)
	}
	if cfg.PresetsPath != "presets.json" {
		t.Errorf("PresetsPath = %q, want presets.json", cfg.PresetsPath)
	}
	if cfg.BufferSeconds != 2.0 {
		t.Errorf("BufferSeconds = %v, want 2.0", cfg.BufferSeconds)
	}
	if cfg.UnderrunTolerance != 0 {
		t.Errorf("UnderrunTolerance = %v, want 0", cfg.UnderrunTolerance)
	}
	if cfg.OutputGain != 1.0 {
		t.Errorf("OutputGain = %v, want 1.0", cfg.OutputGain)
	}
	if cfg.ThrottleWindow != 200*time.Millisecond {
		t.Errorf("ThrottleWindow = %v, want 200ms", cfg.ThrottleWindow)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("MIX_SESSION_URL", "wss://example.test/session")
	t.Setenv("MIX_PORT", "9999")
	t.Setenv("MIX_BUFFER_SECONDS", "0.5")
	t.Setenv("MIX_THROTTLE_MS", "50")

	cfg := Load()
	if cfg.SessionURL != "wss://example.test/session" {
		t.Errorf("SessionURL = %q", cfg.SessionURL)
	}
	if cfg.Port != 9999 {
		t.Errorf("Port = %d, want 9999", cfg.Port)
	}
	if cfg.BufferSeconds != 0.5 {
		t.Errorf("BufferSeconds = %v, want 0.5", cfg.BufferSeconds)
	}
	if cfg.ThrottleWindow != 50*time.Millisecond {
		t.Errorf("ThrottleWindow = %v, want 50ms", cfg.ThrottleWindow)
	}
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("MIX_PORT", "not-a-number")
	t.Setenv("MIX_BUFFER_SECONDS", "wat")

	cfg := Load()
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want default 8080", cfg.Port)
	}
	if cfg.BufferSeconds != 2.0 {
		t.Errorf("BufferSeconds = %v, want default 2.0", cfg.BufferSeconds)
	}
}
