package camera

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/teslashibe/go-superres/internal/log"
	"github.com/teslashibe/go-superres/pkg/frame"
)

// ErrNotStarted is returned by Stop before Start.
var ErrNotStarted = errors.New("camera: not started")

// Manager holds the current camera configuration and the running source.
// A config change while capturing reopens the source with the new settings.
type Manager struct {
	config Config
	open   Opener
	logger *slog.Logger
	mu     sync.RWMutex

	src     Source
	ctx     context.Context
	deliver func(*frame.RawFrame)

	// Callback when config changes (after the source was reopened)
	OnConfigChange func(cfg Config) error
}

// NewManager creates a manager for cfg. open builds sources.
func NewManager(cfg Config, open Opener, logger *slog.Logger) *Manager {
	return &Manager{
		config: cfg,
		open:   open,
		logger: log.Or(logger, "camera.manager"),
	}
}

// Start opens the configured source and begins delivering frames.
func (m *Manager) Start(ctx context.Context, deliver func(*frame.RawFrame)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.src != nil {
		return errors.New("camera: already started")
	}
	if errs := m.config.Validate(); len(errs) > 0 {
		return fmt.Errorf("camera: validation failed: %v", errs)
	}

	src, err := m.startSource(ctx, m.config, deliver)
	if err != nil {
		return err
	}
	m.src, m.ctx, m.deliver = src, ctx, deliver
	return nil
}

func (m *Manager) startSource(ctx context.Context, cfg Config, deliver func(*frame.RawFrame)) (Source, error) {
	src, err := m.open(cfg)
	if err != nil {
		return nil, fmt.Errorf("camera: open %s: %w", cfg.Backend, err)
	}
	if err := src.Start(ctx, deliver); err != nil {
		_ = src.Close()
		return nil, fmt.Errorf("camera: start %s: %w", cfg.Backend, err)
	}
	m.logger.Info("camera streaming",
		"backend", cfg.Backend,
		"device", cfg.Device,
		"width", cfg.Width,
		"height", cfg.Height,
		"fps", cfg.Framerate,
		"rotation", cfg.RotationHint(),
	)
	return src, nil
}

// Stop closes the running source. Frames stop arriving once it returns.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.src == nil {
		return ErrNotStarted
	}
	err := m.src.Close()
	m.src = nil
	m.logger.Info("camera stopped")
	return err
}

// Running reports whether a source is open.
func (m *Manager) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.src != nil
}

// GetConfig returns the current camera configuration.
func (m *Manager) GetConfig() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// SetConfig validates cfg and applies it. If the camera is running the
// source is reopened; when that fails the previous source is restored and
// the error returned.
func (m *Manager) SetConfig(cfg Config) error {
	if errors := cfg.Validate(); len(errors) > 0 {
		return fmt.Errorf("validation failed: %v", errors)
	}

	m.mu.Lock()
	prev := m.config
	if m.src != nil && cfg != prev {
		_ = m.src.Close()
		m.src = nil

		src, err := m.startSource(m.ctx, cfg, m.deliver)
		if err != nil {
			m.logger.Warn("reconfigure failed, restoring previous camera", "error", err)
			if old, rerr := m.startSource(m.ctx, prev, m.deliver); rerr == nil {
				m.src = old
			}
			m.mu.Unlock()
			return err
		}
		m.src = src
	}
	m.config = cfg
	callback := m.OnConfigChange
	m.mu.Unlock()

	if callback != nil {
		if err := callback(cfg); err != nil {
			return fmt.Errorf("failed to apply config: %w", err)
		}
	}
	return nil
}

// UpdateConfig updates specific fields of the configuration.
// Accepts a map of field names to values, or a "preset" name.
func (m *Manager) UpdateConfig(params map[string]any) error {
	cfg := m.GetConfig()

	if presetName, ok := params["preset"].(string); ok {
		preset := GetPreset(presetName, cfg)
		if preset == nil {
			return fmt.Errorf("unknown preset: %s", presetName)
		}
		cfg = *preset
	}

	for key, value := range params {
		switch key {
		case "width":
			if v, ok := toInt(value); ok {
				cfg.Width = v
			}
		case "height":
			if v, ok := toInt(value); ok {
				cfg.Height = v
			}
		case "framerate":
			if v, ok := toInt(value); ok {
				cfg.Framerate = v
			}
		case "rotation":
			if v, ok := toInt(value); ok {
				cfg.Rotation = v
			}
		case "backend":
			if v, ok := value.(string); ok {
				cfg.Backend = v
			}
		case "device":
			if v, ok := value.(string); ok {
				cfg.Device = v
			}
		}
	}

	return m.SetConfig(cfg)
}

// GetConfigJSON returns the current config as a map for JSON serialization.
func (m *Manager) GetConfigJSON() map[string]any {
	data, _ := json.Marshal(m.GetConfig())
	var result map[string]any
	_ = json.Unmarshal(data, &result)
	return result
}

func toInt(v any) (int, bool) {
	switch val := v.(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	case float64:
		return int(val), true
	case json.Number:
		i, err := val.Int64()
		if err == nil {
			return int(i), true
		}
	case string:
		i, err := strconv.Atoi(val)
		if err == nil {
			return i, true
		}
	}
	return 0, false
}
