// Package camera delivers raw frames to the pipeline and holds the capture
// settings that can be changed at runtime.
package camera

import "github.com/teslashibe/go-superres/pkg/frame"

// Config holds the capture parameters.
type Config struct {
	// === Source ===
	// Backend selects the capture implementation.
	// Values: "synthetic", "gocv", "mediadevices"
	Backend string `json:"backend"`
	Device  string `json:"device"` // Device index or path; empty for the default camera

	// === Resolution ===
	Width     int `json:"width"`     // Frame width in pixels
	Height    int `json:"height"`    // Frame height in pixels
	Framerate int `json:"framerate"` // Target FPS

	// Rotation is the clockwise rotation, in degrees, that brings the sensor
	// image upright. Attached to every frame as its rotation hint.
	Rotation int `json:"rotation"`
}

// Backend names.
const (
	BackendSynthetic    = "synthetic"
	BackendGoCV         = "gocv"
	BackendMediaDevices = "mediadevices"
)

// Capture limits.
const (
	MinWidth     = 64
	MinHeight    = 64
	MaxWidth     = 4096
	MaxHeight    = 2160
	MaxFramerate = 120
)

// DefaultConfig returns the 640x480 capture the pipeline is tuned for.
func DefaultConfig() Config {
	return Config{
		Backend:   BackendGoCV,
		Width:     640,
		Height:    480,
		Framerate: 30,
		Rotation:  0,
	}
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	switch c.Backend {
	case BackendSynthetic, BackendGoCV, BackendMediaDevices:
	default:
		errors = append(errors, "backend must be synthetic, gocv, or mediadevices")
	}

	if c.Width < MinWidth || c.Width > MaxWidth {
		errors = append(errors, "width must be between 64 and 4096")
	}
	if c.Height < MinHeight || c.Height > MaxHeight {
		errors = append(errors, "height must be between 64 and 2160")
	}
	if c.Framerate < 1 || c.Framerate > MaxFramerate {
		errors = append(errors, "framerate must be between 1 and 120")
	}
	if c.Rotation%90 != 0 {
		errors = append(errors, "rotation must be a multiple of 90")
	}

	return errors
}

// RotationHint returns Rotation normalised to 0, 90, 180 or 270.
func (c Config) RotationHint() int {
	return frame.NormalizeRotation(c.Rotation)
}
