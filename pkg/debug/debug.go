// Package debug provides global debug logging flags
package debug

import "github.com/teslashibe/go-superres/internal/log"

// Enabled controls whether debug logging is active
var Enabled bool

// Frames controls per-frame pipeline logs (drops, not-ready tiers, timings).
// Use --debug-frames to enable these very verbose logs
var Frames bool

// Log logs a debug message only if debug mode is enabled
func Log(msg string, args ...any) {
	if Enabled {
		log.Debug(msg, args...)
	}
}

// FrameLog logs a message only if frame debug mode is enabled
func FrameLog(msg string, args ...any) {
	if Frames {
		log.Debug(msg, args...)
	}
}
