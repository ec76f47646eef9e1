// Package app wires the camera, executor registry, pipeline and dashboard
// into one process and owns their lifecycle.
package app

import (
	"fmt"
	"os"
	"strings"

	"github.com/teslashibe/go-superres/internal/config"
	"github.com/teslashibe/go-superres/pkg/camera"
	"github.com/teslashibe/go-superres/pkg/executor"
	"github.com/teslashibe/go-superres/pkg/overlay"
	"github.com/teslashibe/go-superres/pkg/pipeline"
	"github.com/teslashibe/go-superres/pkg/settings"
	"github.com/teslashibe/go-superres/pkg/web"
)

// Config holds all configuration for the application.
// Flag parsing is done in cmd/superres/main.go; this struct is data only.
type Config struct {
	// Debug enables verbose debug logging.
	Debug bool

	// DebugFrames enables per-frame pipeline logs.
	DebugFrames bool

	// LogLevel is one of debug, info, warn, error.
	LogLevel string

	// Model asset shared by every tier.
	ModelPath   string
	ModelSHA256 string

	// Initial settings.
	Tier string
	Crop int

	// Overlay draws telemetry onto presented images.
	Overlay bool

	Camera   camera.Config
	Pipeline pipeline.Config
	Web      web.Config
	Font     overlay.Config
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	webCfg := web.DefaultConfig()
	webCfg.Port = config.DefaultDashboardPort

	return Config{
		LogLevel:  config.DefaultLogLevel,
		ModelPath: config.DefaultModelPath,
		Tier:      config.DefaultTier,
		Crop:      settings.MaxCrop,
		Overlay:   true,
		Camera:    camera.DefaultConfig(),
		Pipeline:  pipeline.DefaultConfig(),
		Web:       webCfg,
		Font:      overlay.DefaultConfig(),
	}
}

// LoadEnvConfig applies environment overrides. Call it after flag parsing;
// set reports which flags were given explicitly, and those win.
func (c *Config) LoadEnvConfig(set map[string]bool) {
	if !set["model"] {
		c.ModelPath = config.ModelPath()
	}
	if c.ModelSHA256 == "" {
		c.ModelSHA256 = config.ModelSHA256()
	}
	if !set["tier"] && os.Getenv("SUPERRES_TIER") != "" {
		c.Tier = config.Tier()
	}
	if !set["crop"] {
		c.Crop = config.Int("SUPERRES_CROP", c.Crop)
	}
	if !set["port"] {
		c.Web.Port = config.DashboardPort()
	}
	if !set["log-level"] {
		switch {
		case os.Getenv("LOG_LEVEL") != "":
			c.LogLevel = config.LogLevel()
		case c.Debug || c.DebugFrames:
			// Debug and frame logs are emitted at debug level.
			c.LogLevel = "debug"
		}
	}
	if !set["device"] && os.Getenv("CAMERA_DEVICE") != "" {
		c.Camera.Device = config.CameraDevice()
	}
	if !set["backend"] {
		if b := strings.TrimSpace(os.Getenv("CAMERA_BACKEND")); b != "" {
			c.Camera.Backend = b
		}
	}
	c.Camera.Framerate = config.Int("CAMERA_FPS", c.Camera.Framerate)
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.ModelPath == "" {
		return &ConfigError{Field: "ModelPath", Message: "model path is required (SUPERRES_MODEL or --model)"}
	}
	if _, err := executor.ParseTier(c.Tier); err != nil {
		return &ConfigError{Field: "Tier", Message: err.Error()}
	}
	if !settings.Crop(c.Crop).Valid() {
		return &ConfigError{Field: "Crop", Message: fmt.Sprintf("crop %d is not one of %v", c.Crop, settings.Crops())}
	}
	if errs := c.Camera.Validate(); len(errs) > 0 {
		return &ConfigError{Field: "Camera", Message: strings.Join(errs, "; ")}
	}
	if err := c.Pipeline.Validate(); err != nil {
		return &ConfigError{Field: "Pipeline", Message: err.Error()}
	}
	if err := c.Web.Validate(); err != nil {
		return &ConfigError{Field: "Web", Message: err.Error()}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}
