// superres captures camera frames, upscales a center crop with the selected
// inference tier and serves the result on a web dashboard.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/teslashibe/go-superres/internal/log"
	"github.com/teslashibe/go-superres/pkg/app"
	"github.com/teslashibe/go-superres/pkg/camera"
	"github.com/teslashibe/go-superres/pkg/camera/gocvcam"
	"github.com/teslashibe/go-superres/pkg/camera/mediadev"
	"github.com/teslashibe/go-superres/pkg/executor/dnn"
)

func main() {
	cfg := parseFlags()
	log.Init(cfg.LogLevel)

	opener := camera.Backends(map[string]camera.Opener{
		camera.BackendSynthetic:    camera.OpenSynthetic,
		camera.BackendGoCV:         gocvcam.Open,
		camera.BackendMediaDevices: mediadev.Open,
	})

	a, err := app.New(cfg,
		app.WithCameraOpener(opener),
		app.WithConstructor(dnn.Constructor),
	)
	if err != nil {
		log.Error("configuration error", "error", err)
		os.Exit(1)
	}

	if err := a.Init(); err != nil {
		log.Error("initialization failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	runErr := a.Run(ctx)
	cancel()

	shutdownErr := a.Shutdown()
	if runErr != nil {
		log.Error("runtime error", "error", runErr)
		os.Exit(1)
	}
	if shutdownErr != nil {
		os.Exit(1)
	}
}

// parseFlags parses command line flags and returns configuration.
func parseFlags() app.Config {
	cfg := app.DefaultConfig()

	debug := flag.Bool("debug", false, "Enable verbose debug logging")
	debugFrames := flag.Bool("debug-frames", false, "Log every frame (drops, not-ready tiers, timings)")
	logLevel := flag.String("log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	model := flag.String("model", cfg.ModelPath, "Super-resolution model (ONNX); overrides SUPERRES_MODEL")
	modelSHA := flag.String("model-sha256", "", "Expected model digest; overrides SUPERRES_MODEL_SHA256")
	tier := flag.String("tier", cfg.Tier, "Initial tier: cpu, gpu, npu")
	crop := flag.Int("crop", cfg.Crop, "Initial crop size: 64, 96, 128")
	port := flag.String("port", cfg.Web.Port, "Dashboard port; overrides DASHBOARD_PORT")
	static := flag.String("static", cfg.Web.StaticDir, "Directory served at / (empty disables)")
	backend := flag.String("backend", cfg.Camera.Backend, "Camera backend: synthetic, gocv, mediadevices")
	device := flag.String("device", cfg.Camera.Device, "Camera device index or path; overrides CAMERA_DEVICE")
	preset := flag.String("preset", "", "Camera preset: "+strings.Join(camera.PresetNames(), ", "))
	rotation := flag.Int("rotation", cfg.Camera.Rotation, "Sensor rotation in degrees: 0, 90, 180, 270")
	noOverlay := flag.Bool("no-overlay", false, "Do not draw telemetry onto results")

	flag.Parse()
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	cfg.Debug, cfg.DebugFrames = *debug, *debugFrames
	cfg.LogLevel = *logLevel
	cfg.ModelPath, cfg.ModelSHA256 = *model, *modelSHA
	cfg.Tier, cfg.Crop = *tier, *crop
	cfg.Web.Port, cfg.Web.StaticDir = *port, *static
	cfg.Overlay = !*noOverlay

	cfg.Camera.Backend, cfg.Camera.Device = *backend, *device
	if *preset != "" {
		p := camera.GetPreset(*preset, cfg.Camera)
		if p == nil {
			fmt.Fprintf(os.Stderr, "unknown camera preset %q (have %s)\n", *preset, strings.Join(camera.PresetNames(), ", "))
			os.Exit(2)
		}
		cfg.Camera = *p
	}
	if set["rotation"] {
		cfg.Camera.Rotation = *rotation
	}

	// Environment variables
	cfg.LoadEnvConfig(set)
	return cfg
}
