// Package config provides environment helpers for go-superres commands.
package config

import (
	"os"
	"strconv"
	"strings"
)

// Defaults used when the environment does not say otherwise.
const (
	DefaultModelPath     = "models/quicksrnetsmall.onnx"
	DefaultDashboardPort = "8080"
	DefaultCameraDevice  = "0"
	DefaultTier          = "npu"
	DefaultLogLevel      = "info"
)

// ModelPath returns the model asset path from SUPERRES_MODEL.
func ModelPath() string {
	return env("SUPERRES_MODEL", DefaultModelPath)
}

// ModelSHA256 returns the expected hex digest of the model asset from
// SUPERRES_MODEL_SHA256. Empty means the integrity check is skipped.
func ModelSHA256() string {
	return strings.ToLower(strings.TrimSpace(os.Getenv("SUPERRES_MODEL_SHA256")))
}

// CameraDevice returns the capture device from CAMERA_DEVICE.
// Numeric values are device indexes, anything else is a path or URL.
func CameraDevice() string {
	return env("CAMERA_DEVICE", DefaultCameraDevice)
}

// DashboardPort returns the dashboard listen port from DASHBOARD_PORT.
func DashboardPort() string {
	return env("DASHBOARD_PORT", DefaultDashboardPort)
}

// Tier returns the initially selected tier name from SUPERRES_TIER.
func Tier() string {
	return strings.ToLower(env("SUPERRES_TIER", DefaultTier))
}

// LogLevel returns the log level from LOG_LEVEL.
func LogLevel() string {
	return env("LOG_LEVEL", DefaultLogLevel)
}

// Int reads an integer from key, falling back to def when unset or invalid.
func Int(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func env(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
