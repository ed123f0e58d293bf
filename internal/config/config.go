package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration, loaded from environment variables.
type Config struct {
	// Remote streaming session
	SessionURL    string
	SessionAPIKey string
	SessionModel  string

	// Server
	Port        int
	OutputDir   string // recordings land here
	PresetsPath string // saved knob layouts, one JSON file

	// Playback engine
	BufferSeconds     float64       // client buffer time before audible start
	UnderrunTolerance float64       // seconds of anchor lag before re-buffer
	OutputGain        float64       // master gain
	ThrottleWindow    time.Duration // prompt sync throttle

	// Configuration service (optional)
	GenURL   string
	GenModel string
}

// Load reads configuration from the environment with sane defaults. A local
// .env file is honored when present.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		SessionURL:    envStr("MIX_SESSION_URL", ""),
		SessionAPIKey: envStr("MIX_SESSION_API_KEY", ""),
		SessionModel:  envStr("MIX_SESSION_MODEL", "realtime-music-001"),

		Port:        envInt("MIX_PORT", 8080),
		OutputDir:   envStr("MIX_OUTPUT_DIR", "recordings"),
		PresetsPath: envStr("MIX_PRESETS_FILE", "presets.json"),

		BufferSeconds:     envFloat("MIX_BUFFER_SECONDS", 2.0),
		UnderrunTolerance: envFloat("MIX_UNDERRUN_TOLERANCE", 0),
		OutputGain:        envFloat("MIX_OUTPUT_GAIN", 1.0),
		ThrottleWindow:    time.Duration(envInt("MIX_THROTTLE_MS", 200)) * time.Millisecond,

		GenURL:   envStr("MIX_GEN_URL", ""),
		GenModel: envStr("MIX_GEN_MODEL", "qwen3:8b"),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
