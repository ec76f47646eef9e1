package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-superres/internal/log"
	"github.com/teslashibe/go-superres/pkg/camera"
	"github.com/teslashibe/go-superres/pkg/executor"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ModelPath = "testdata/unused.onnx"
	cfg.Tier = "cpu"
	cfg.Crop = 64
	cfg.Camera.Backend = camera.BackendSynthetic
	cfg.Camera.Width, cfg.Camera.Height, cfg.Camera.Framerate = 160, 120, 30
	cfg.Web.Port = "0"
	cfg.Web.StaticDir = ""
	cfg.Pipeline.StatsInterval = 0
	return cfg
}

type tierMocks struct {
	mu    sync.Mutex
	execs map[executor.Tier]*executor.Mock
}

func (m *tierMocks) constructor(failing executor.Tier) executor.Constructor {
	return func(_ context.Context, spec executor.BuildSpec) (executor.Executor, error) {
		if spec.Tier == failing {
			return nil, errors.New("no OpenCL device")
		}
		exec := executor.NewMock()
		m.mu.Lock()
		m.execs[spec.Tier] = exec
		m.mu.Unlock()
		return exec, nil
	}
}

func TestApp_EndToEnd(t *testing.T) {
	mocks := &tierMocks{execs: map[executor.Tier]*executor.Mock{}}
	a, err := New(testConfig(),
		WithCameraOpener(camera.OpenSynthetic),
		WithConstructor(mocks.constructor(executor.TierGPU)),
		WithLogger(log.Discard()),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for {
		st := a.Status()
		if st.Last != nil {
			if st.Last.Tier != executor.TierCPU || st.Last.Crop != 64 {
				t.Errorf("last = %+v, want cpu 64x64", *st.Last)
			}
			if st.Last.Inference != "8.50 ms" || st.Last.Total != "10.50 ms" {
				t.Errorf("telemetry = %s / %s", st.Last.Inference, st.Last.Total)
			}
			break
		}
		if time.Now().After(deadline) {
			cancel()
			t.Fatal("no result presented")
		}
		time.Sleep(20 * time.Millisecond)
	}

	var gpuFailed bool
	for _, n := range a.webServer.Notifications() {
		if n.Tier == executor.TierGPU && n.Level == "error" {
			gpuFailed = strings.Contains(n.Message, "no OpenCL device")
		}
	}
	if !gpuFailed {
		t.Error("no build failure notification for the gpu tier")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if err := a.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	mocks.mu.Lock()
	defer mocks.mu.Unlock()
	for tier, m := range mocks.execs {
		if got := m.ReleaseCount(); got != 1 {
			t.Errorf("%s released %d times, want 1", tier, got)
		}
	}
}

func TestApp_CameraFailureStopsRun(t *testing.T) {
	open := func(camera.Config) (camera.Source, error) {
		return nil, errors.New("device busy")
	}
	a, err := New(testConfig(),
		WithCameraOpener(open),
		WithConstructor(executor.MockConstructor(executor.NewMock(), nil)),
		WithLogger(log.Discard()),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = a.Run(ctx)
	if err == nil || !strings.Contains(err.Error(), "device busy") {
		t.Fatalf("Run = %v, want camera error", err)
	}
	if ctx.Err() != nil {
		t.Fatal("Run only returned after the test deadline")
	}
	_ = a.Shutdown()
}

func TestNew_RequiresBackends(t *testing.T) {
	if _, err := New(testConfig(), WithConstructor(executor.FailingConstructor(executor.ErrInitialization))); err == nil {
		t.Error("New without a camera opener succeeded")
	}
	if _, err := New(testConfig(), WithCameraOpener(camera.OpenSynthetic)); err == nil {
		t.Error("New without a constructor succeeded")
	}
}

func TestApp_RunBeforeInit(t *testing.T) {
	a, err := New(testConfig(),
		WithCameraOpener(camera.OpenSynthetic),
		WithConstructor(executor.MockConstructor(executor.NewMock(), nil)),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Run(context.Background()); err == nil {
		t.Error("Run before Init succeeded")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{"valid", func(*Config) {}, ""},
		{"no model", func(c *Config) { c.ModelPath = "" }, "ModelPath"},
		{"bad tier", func(c *Config) { c.Tier = "tpu" }, "Tier"},
		{"crop off grid", func(c *Config) { c.Crop = 100 }, "Crop"},
		{"crop too big", func(c *Config) { c.Crop = 160 }, "Crop"},
		{"camera too small", func(c *Config) { c.Camera.Width = 8 }, "Camera"},
		{"negative stats interval", func(c *Config) { c.Pipeline.StatsInterval = -time.Second }, "Pipeline"},
		{"no port", func(c *Config) { c.Web.Port = "" }, "Web"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantField == "" {
				if err != nil {
					t.Fatalf("Validate() = %v", err)
				}
				return
			}
			var ce *ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("Validate() = %v, want ConfigError", err)
			}
			if ce.Field != tc.wantField {
				t.Errorf("field = %s, want %s", ce.Field, tc.wantField)
			}
		})
	}
}

func TestConfig_LoadEnvConfig(t *testing.T) {
	t.Setenv("SUPERRES_MODEL", "/env/model.onnx")
	t.Setenv("SUPERRES_TIER", "gpu")
	t.Setenv("SUPERRES_CROP", "96")
	t.Setenv("DASHBOARD_PORT", "9090")
	t.Setenv("CAMERA_BACKEND", "synthetic")
	t.Setenv("CAMERA_FPS", "15")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("CAMERA_DEVICE", "")
	t.Setenv("SUPERRES_MODEL_SHA256", "")

	cfg := DefaultConfig()
	cfg.ModelPath = "/flag/model.onnx"
	cfg.LoadEnvConfig(map[string]bool{"model": true})

	if cfg.ModelPath != "/flag/model.onnx" {
		t.Errorf("ModelPath = %q, explicit flag should win", cfg.ModelPath)
	}
	if cfg.Tier != "gpu" || cfg.Crop != 96 || cfg.Web.Port != "9090" {
		t.Errorf("env not applied: tier=%s crop=%d port=%s", cfg.Tier, cfg.Crop, cfg.Web.Port)
	}
	if cfg.Camera.Backend != camera.BackendSynthetic || cfg.Camera.Framerate != 15 {
		t.Errorf("camera = %+v", cfg.Camera)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want default", cfg.LogLevel)
	}
}

func TestConfig_LoadEnvConfig_DebugFlagsRaiseLevel(t *testing.T) {
	tests := []struct {
		name        string
		debug       bool
		debugFrames bool
		env         string
		set         map[string]bool
		flagLevel   string
		want        string
	}{
		{"no debug", false, false, "", nil, "info", "info"},
		{"debug", true, false, "", nil, "info", "debug"},
		{"debug frames only", false, true, "", nil, "info", "debug"},
		{"env wins over debug frames", false, true, "warn", nil, "info", "warn"},
		{"explicit flag wins", false, true, "", map[string]bool{"log-level": true}, "error", "error"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("LOG_LEVEL", tc.env)
			cfg := DefaultConfig()
			cfg.Debug, cfg.DebugFrames = tc.debug, tc.debugFrames
			cfg.LogLevel = tc.flagLevel
			cfg.LoadEnvConfig(tc.set)
			if cfg.LogLevel != tc.want {
				t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, tc.want)
			}
		})
	}
}
