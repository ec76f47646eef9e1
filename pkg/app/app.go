package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-superres/internal/log"
	"github.com/teslashibe/go-superres/pkg/camera"
	"github.com/teslashibe/go-superres/pkg/debug"
	"github.com/teslashibe/go-superres/pkg/executor"
	"github.com/teslashibe/go-superres/pkg/overlay"
	"github.com/teslashibe/go-superres/pkg/pipeline"
	"github.com/teslashibe/go-superres/pkg/settings"
	"github.com/teslashibe/go-superres/pkg/web"
)

// App is the main application orchestrator.
// It manages all components and their lifecycle.
type App struct {
	config Config
	logger *slog.Logger

	// Injected backends
	open      camera.Opener
	construct executor.Constructor

	// Core components
	store      *settings.Store
	registry   *executor.Registry
	dispatcher *pipeline.Dispatcher
	camera     *camera.Manager

	// Web dashboard
	webServer *web.Server
}

// Option configures an App.
type Option func(*App)

// WithCameraOpener sets how capture sources are opened.
func WithCameraOpener(open camera.Opener) Option {
	return func(a *App) { a.open = open }
}

// WithConstructor sets the executor constructor used for every tier.
func WithConstructor(c executor.Constructor) Option {
	return func(a *App) { a.construct = c }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.logger = l }
}

// New creates a new application with the given configuration.
func New(cfg Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	debug.Enabled = cfg.Debug
	debug.Frames = cfg.DebugFrames

	a := &App{config: cfg}
	for _, opt := range opts {
		opt(a)
	}
	if a.open == nil {
		return nil, errors.New("app: no camera opener configured")
	}
	if a.construct == nil {
		return nil, errors.New("app: no executor constructor configured")
	}
	a.logger = log.Or(a.logger, "app")
	return a, nil
}

// Init builds every component. Call it after New and before Run.
func (a *App) Init() error {
	tier, err := executor.ParseTier(a.config.Tier)
	if err != nil {
		return err
	}
	a.store = settings.NewStore(settings.Snapshot{Tier: tier, Crop: settings.Crop(a.config.Crop)})

	a.registry = executor.NewRegistry(
		executor.WithObserver(a),
		executor.WithLogger(a.logger),
	)

	var webOpts []web.Option
	webOpts = append(webOpts, web.WithLogger(a.logger))
	if a.config.Overlay {
		r, err := overlay.New(a.config.Font)
		if err != nil {
			return fmt.Errorf("overlay: %w", err)
		}
		webOpts = append(webOpts, web.WithOverlay(r))
	}
	a.webServer, err = web.NewServer(a.config.Web, a.store, a.registry, webOpts...)
	if err != nil {
		return fmt.Errorf("dashboard: %w", err)
	}

	a.dispatcher, err = pipeline.New(a.config.Pipeline, a.store, a.registry, a.webServer,
		pipeline.WithLogger(a.logger),
	)
	if err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	a.webServer.OnStats = a.dispatcher.Stats

	a.camera = camera.NewManager(a.config.Camera, a.open, a.logger)
	a.camera.OnConfigChange = func(cfg camera.Config) error {
		a.logger.Info("camera reconfigured",
			"backend", cfg.Backend,
			"size", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
			"fps", cfg.Framerate,
			"rotation", cfg.Rotation,
		)
		return nil
	}
	a.webServer.Camera = a.camera

	a.store.OnChange(func(s settings.Snapshot) {
		a.logger.Info("settings changed", "tier", s.Tier, "crop", s.Crop)
		a.webServer.BroadcastStatus()
	})

	a.logger.Info("initialized",
		"model", a.config.ModelPath,
		"tier", tier,
		"crop", settings.Crop(a.config.Crop),
		"camera", a.config.Camera.Backend,
		"overlay", a.config.Overlay,
	)
	return nil
}

// specs returns one build spec per tier, all sharing the model asset.
func (a *App) specs() []executor.BuildSpec {
	specs := make([]executor.BuildSpec, 0, executor.NumTiers)
	for _, t := range executor.Tiers {
		specs = append(specs, executor.BuildSpec{
			Tier:        t,
			ModelPath:   a.config.ModelPath,
			ModelSHA256: a.config.ModelSHA256,
			Priority:    executor.DefaultPriority(t),
			Constructor: a.construct,
		})
		debug.Log("build spec", "tier", t, "priority", executor.DefaultPriority(t))
	}
	return specs
}

// Run starts executor construction, the pipeline, the dashboard and the
// camera. Blocks until ctx is cancelled or a component fails.
func (a *App) Run(ctx context.Context) error {
	if a.dispatcher == nil {
		return errors.New("app: Run called before Init")
	}

	a.registry.BuildAll(ctx, a.specs())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.dispatcher.Run(gctx)
	})
	g.Go(func() error {
		if err := a.webServer.Run(gctx); err != nil {
			return fmt.Errorf("dashboard: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := a.camera.Start(gctx, a.dispatcher.OnFrame); err != nil {
			return fmt.Errorf("camera: %w", err)
		}
		a.logger.Info("running", "dashboard", "http://localhost:"+a.config.Web.Port)
		<-gctx.Done()
		if err := a.camera.Stop(); err != nil {
			a.logger.Warn("camera stop", "error", err)
		}
		return nil
	})

	return g.Wait()
}

// Shutdown releases every executor. Call it after Run has returned.
func (a *App) Shutdown() error {
	var errs error
	if a.camera != nil && a.camera.Running() {
		errs = multierr.Append(errs, a.camera.Stop())
	}
	if a.registry != nil {
		errs = multierr.Append(errs, a.registry.ReleaseAll())
	}
	if errs != nil {
		a.logger.Warn("shutdown", "error", errs)
	} else {
		a.logger.Info("shutdown complete")
	}
	return errs
}

// OnReady implements executor.Observer.
func (a *App) OnReady(t executor.Tier, elapsed time.Duration) {
	if a.webServer != nil {
		a.webServer.OnReady(t, elapsed)
	}
}

// OnBuildFailed implements executor.Observer.
func (a *App) OnBuildFailed(t executor.Tier, err *executor.BuildError) {
	if a.webServer != nil {
		a.webServer.OnBuildFailed(t, err)
	}
}

// Status returns the dashboard state document.
func (a *App) Status() web.Status {
	return a.webServer.Status()
}

// Settings returns the settings store.
func (a *App) Settings() *settings.Store {
	return a.store
}
