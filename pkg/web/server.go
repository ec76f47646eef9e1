// Package web provides the dashboard: it presents pipeline results, shows
// executor readiness and build failures, and lets the user switch the tier
// and crop size at runtime.
package web

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-superres/internal/log"
	"github.com/teslashibe/go-superres/pkg/executor"
	"github.com/teslashibe/go-superres/pkg/hub"
	"github.com/teslashibe/go-superres/pkg/overlay"
	"github.com/teslashibe/go-superres/pkg/pipeline"
	"github.com/teslashibe/go-superres/pkg/settings"
	"github.com/teslashibe/go-superres/pkg/telemetry"
)

// Config configures the dashboard server.
type Config struct {
	Port             string `json:"port"`
	StaticDir        string `json:"static_dir"`
	JPEGQuality      int    `json:"jpeg_quality"`
	MaxNotifications int    `json:"max_notifications"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Port:             "8080",
		StaticDir:        "./web",
		JPEGQuality:      85,
		MaxNotifications: 50,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("web: port is required")
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return fmt.Errorf("web: jpeg quality must be between 1 and 100, got %d", c.JPEGQuality)
	}
	if c.MaxNotifications < 1 {
		return fmt.Errorf("web: max notifications must be positive")
	}
	return nil
}

// SettingsControl is the UI-facing side of the settings store.
type SettingsControl interface {
	Snapshot() settings.Snapshot
	SetTier(t executor.Tier) error
	IncrementCrop() settings.Crop
	DecrementCrop() settings.Crop
}

// TierStatusSource reports executor readiness.
type TierStatusSource interface {
	Status() []executor.TierStatus
}

// CameraControl exposes runtime camera settings.
type CameraControl interface {
	GetConfigJSON() map[string]any
	UpdateConfig(params map[string]any) error
}

// Notification is a user-facing message about executor construction.
type Notification struct {
	ID      string        `json:"id"`
	Time    time.Time     `json:"time"`
	Level   string        `json:"level"` // info, error
	Tier    executor.Tier `json:"tier"`
	Kind    string        `json:"kind,omitempty"`
	Message string        `json:"message"`
}

// Telemetry is the last presented result without its image.
type Telemetry struct {
	Seq       uint64        `json:"seq"`
	Tier      executor.Tier `json:"tier"`
	Crop      settings.Crop `json:"crop"`
	Inference string        `json:"inference"`
	Total     string        `json:"total"`
	LatencyMs float64       `json:"latency_ms"`
	Width     int           `json:"width"`
	Height    int           `json:"height"`
}

// Status is the dashboard state document.
type Status struct {
	Session   string                `json:"session"`
	Tier      executor.Tier         `json:"tier"`
	Crop      settings.Crop         `json:"crop"`
	CropSide  int                   `json:"crop_side"`
	Tiers     []executor.TierStatus `json:"tiers"`
	Stats     *pipeline.Stats       `json:"stats,omitempty"`
	Last      *Telemetry            `json:"last,omitempty"`
	Viewers   int                   `json:"viewers"`
	UpdatedAt time.Time             `json:"updated_at"`
}

// Event is the envelope sent on /ws/status.
type Event struct {
	Type string `json:"type"` // status, notification
	Data any    `json:"data"`
}

// Server is the web dashboard server
type Server struct {
	cfg     Config
	app     *fiber.App
	logger  *slog.Logger
	session string

	settings SettingsControl
	tiers    TierStatusSource
	overlay  *overlay.Renderer

	// Last presented result
	lastMu   sync.RWMutex
	last     *Telemetry
	lastJPEG []byte

	// Notification ring (newest last)
	notesMu       sync.RWMutex
	notifications []Notification

	// Hubs for websocket broadcast
	statusHub *hub.Hub
	resultHub *hub.Hub

	// Pipeline counters, set once the dispatcher exists
	OnStats func() pipeline.Stats

	// Camera settings endpoint, optional
	Camera CameraControl
}

// Option configures optional Server dependencies.
type Option func(*Server)

// WithOverlay draws telemetry onto presented images.
func WithOverlay(r *overlay.Renderer) Option {
	return func(s *Server) { s.overlay = r }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// NewServer creates a new web dashboard server
func NewServer(cfg Config, ctl SettingsControl, tiers TierStatusSource, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if ctl == nil || tiers == nil {
		return nil, fmt.Errorf("web: settings and tier status are required")
	}

	s := &Server{
		cfg:           cfg,
		session:       uuid.NewString(),
		settings:      ctl,
		tiers:         tiers,
		notifications: make([]Notification, 0, cfg.MaxNotifications),
		statusHub:     hub.New("status"),
		resultHub:     hub.New("result"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = log.Or(s.logger, "web").With("session", s.session)

	app := fiber.New(fiber.Config{
		AppName:               "superres dashboard",
		DisableStartupMessage: true,
	})

	// CORS for local development
	app.Use(cors.New())

	if cfg.StaticDir != "" {
		if fi, err := os.Stat(cfg.StaticDir); err == nil && fi.IsDir() {
			app.Static("/", cfg.StaticDir)
		}
	}

	// API routes
	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Post("/tier/:name", s.handleSetTier)
	api.Post("/crop/increment", s.handleCropIncrement)
	api.Post("/crop/decrement", s.handleCropDecrement)
	api.Get("/notifications", s.handleNotifications)
	api.Get("/snapshot.jpg", s.handleSnapshot)
	api.Get("/camera", s.handleGetCamera)
	api.Post("/camera", s.handleUpdateCamera)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// WebSocket routes
	app.Get("/ws/result", websocket.New(s.handleResultWS))
	app.Get("/ws/status", websocket.New(s.handleStatusWS))

	s.app = app
	return s, nil
}

// Session returns the random ID of this server instance.
func (s *Server) Session() string {
	return s.session
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	go s.statusHub.Run(ctx)
	go s.resultHub.Run(ctx)

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("dashboard listening", "url", "http://localhost:"+s.cfg.Port)
		errc <- s.app.Listen(":" + s.cfg.Port)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		if err := s.app.ShutdownWithTimeout(5 * time.Second); err != nil {
			s.logger.Warn("dashboard shutdown", "error", err)
		}
		return nil
	}
}

// Present implements pipeline.Sink. It runs on the presenter goroutine.
func (s *Server) Present(r pipeline.Result) {
	inference := telemetry.Label(r.InferenceText)
	total := telemetry.Label(r.TotalText)

	img := r.Image
	if s.overlay != nil {
		img = s.overlay.Annotate(img,
			"infer "+inference,
			"total "+total,
			r.Tier.String()+" "+r.Crop.String(),
		)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(s.cfg.JPEGQuality)); err != nil {
		s.logger.Warn("encode result", "seq", r.Seq, "error", err)
		return
	}

	b := img.Bounds()
	t := &Telemetry{
		Seq:       r.Seq,
		Tier:      r.Tier,
		Crop:      r.Crop,
		Inference: inference,
		Total:     total,
		Width:     b.Dx(),
		Height:    b.Dy(),
	}
	if !r.CapturedAt.IsZero() && !r.FinishedAt.IsZero() {
		t.LatencyMs = telemetry.Millis(r.FinishedAt.Sub(r.CapturedAt).Nanoseconds())
	}

	s.lastMu.Lock()
	s.last = t
	s.lastJPEG = buf.Bytes()
	s.lastMu.Unlock()

	s.resultHub.BroadcastBinary(buf.Bytes())
	s.BroadcastStatus()
}

// OnReady implements executor.Observer.
func (s *Server) OnReady(t executor.Tier, elapsed time.Duration) {
	s.notify(Notification{
		Level:   "info",
		Tier:    t,
		Message: fmt.Sprintf("%s model ready in %s", t, elapsed.Round(time.Millisecond)),
	})
	s.BroadcastStatus()
}

// OnBuildFailed implements executor.Observer.
func (s *Server) OnBuildFailed(t executor.Tier, err *executor.BuildError) {
	s.notify(Notification{
		Level:   "error",
		Tier:    t,
		Kind:    err.Kind.String(),
		Message: "Error initializing models: " + err.Err.Error(),
	})
	s.BroadcastStatus()
}

func (s *Server) notify(n Notification) {
	n.ID = uuid.NewString()
	n.Time = time.Now()

	s.notesMu.Lock()
	s.notifications = append(s.notifications, n)
	if over := len(s.notifications) - s.cfg.MaxNotifications; over > 0 {
		s.notifications = s.notifications[over:]
	}
	s.notesMu.Unlock()

	if n.Level == "error" {
		s.logger.Error("executor notification", "tier", n.Tier, "kind", n.Kind, "message", n.Message)
	} else {
		s.logger.Info("executor notification", "tier", n.Tier, "message", n.Message)
	}
	if err := s.statusHub.BroadcastJSON(Event{Type: "notification", Data: n}); err != nil {
		s.logger.Warn("encode notification", "error", err)
	}
}

// Notifications returns a copy of the stored notifications, oldest first.
func (s *Server) Notifications() []Notification {
	s.notesMu.RLock()
	defer s.notesMu.RUnlock()
	out := make([]Notification, len(s.notifications))
	copy(out, s.notifications)
	return out
}

// Status builds the current state document.
func (s *Server) Status() Status {
	snap := s.settings.Snapshot()
	st := Status{
		Session:   s.session,
		Tier:      snap.Tier,
		Crop:      snap.Crop,
		CropSide:  snap.Crop.Side(),
		Tiers:     s.tiers.Status(),
		Viewers:   s.resultHub.ClientCount(),
		UpdatedAt: time.Now(),
	}
	if s.OnStats != nil {
		stats := s.OnStats()
		st.Stats = &stats
	}
	s.lastMu.RLock()
	if s.last != nil {
		last := *s.last
		st.Last = &last
	}
	s.lastMu.RUnlock()
	return st
}

// BroadcastStatus pushes the current state to /ws/status clients.
func (s *Server) BroadcastStatus() {
	if err := s.statusHub.BroadcastJSON(Event{Type: "status", Data: s.Status()}); err != nil {
		s.logger.Warn("encode status", "error", err)
	}
}

var (
	_ pipeline.Sink     = (*Server)(nil)
	_ executor.Observer = (*Server)(nil)
)
