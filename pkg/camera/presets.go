package camera

// Preset names for common configurations
const (
	PresetDefault  = "default"
	PresetQVGA     = "qvga"
	Preset720p     = "720p"
	PresetPortrait = "portrait"
	PresetSlow     = "slow"
)

// Presets returns all available preset configurations. Presets keep the
// backend and device of base.
func Presets(base Config) map[string]Config {
	return map[string]Config{
		PresetDefault:  withBackend(DefaultConfig(), base),
		PresetQVGA:     withBackend(QVGAConfig(), base),
		Preset720p:     withBackend(HD720Config(), base),
		PresetPortrait: withBackend(PortraitConfig(), base),
		PresetSlow:     withBackend(SlowConfig(), base),
	}
}

// PresetNames returns the list of available preset names.
func PresetNames() []string {
	return []string{
		PresetDefault,
		PresetQVGA,
		Preset720p,
		PresetPortrait,
		PresetSlow,
	}
}

// GetPreset returns a preset config by name, or nil if not found.
func GetPreset(name string, base Config) *Config {
	if cfg, ok := Presets(base)[name]; ok {
		return &cfg
	}
	return nil
}

func withBackend(cfg, base Config) Config {
	cfg.Backend = base.Backend
	cfg.Device = base.Device
	return cfg
}

// QVGAConfig is 320x240, still large enough for every crop size.
func QVGAConfig() Config {
	cfg := DefaultConfig()
	cfg.Width = 320
	cfg.Height = 240
	return cfg
}

// HD720Config returns 1280x720.
func HD720Config() Config {
	cfg := DefaultConfig()
	cfg.Width = 1280
	cfg.Height = 720
	return cfg
}

// PortraitConfig is the default capture on a sensor mounted sideways.
func PortraitConfig() Config {
	cfg := DefaultConfig()
	cfg.Rotation = 90
	return cfg
}

// SlowConfig drops the frame rate for machines without an accelerator.
func SlowConfig() Config {
	cfg := DefaultConfig()
	cfg.Framerate = 10
	return cfg
}
