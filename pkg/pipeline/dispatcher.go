// Package pipeline schedules camera frames through conversion, inference
// and presentation on a single sequential worker.
//
// Frames arrive through OnFrame from the camera goroutine and land in a
// latest-wins slot, so a slow executor makes the pipeline skip frames
// instead of falling behind. Results go through a second latest-wins slot
// to a presenter goroutine that calls the Sink.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-superres/internal/log"
	"github.com/teslashibe/go-superres/pkg/debug"
	"github.com/teslashibe/go-superres/pkg/executor"
	"github.com/teslashibe/go-superres/pkg/frame"
	"github.com/teslashibe/go-superres/pkg/mailbox"
	"github.com/teslashibe/go-superres/pkg/settings"
	"github.com/teslashibe/go-superres/pkg/telemetry"
)

// ErrAlreadyRunning is returned by a second concurrent call to Run.
var ErrAlreadyRunning = errors.New("pipeline: already running")

// SettingsSource supplies the settings snapshot taken at the start of
// every frame. *settings.Store implements it.
type SettingsSource interface {
	Snapshot() settings.Snapshot
}

// ExecutorSource resolves the executor for a tier without blocking.
// *executor.Registry implements it.
type ExecutorSource interface {
	Get(t executor.Tier) (executor.Executor, bool)
}

// Result is one presented inference.
type Result struct {
	Image         image.Image
	InferenceText string
	TotalText     string
	Prediction    executor.Prediction
	Tier          executor.Tier
	Crop          settings.Crop
	Seq           uint64
	CapturedAt    time.Time
	FinishedAt    time.Time
}

// Sink receives results on the presenter goroutine, never on the worker.
type Sink interface {
	Present(r Result)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Result)

// Present implements Sink.
func (f SinkFunc) Present(r Result) { f(r) }

// Outcome is how the worker finished one frame.
type Outcome int

const (
	// OutcomeProcessed means a result was handed to the presenter.
	OutcomeProcessed Outcome = iota
	// OutcomeDropped means conversion rejected the frame.
	OutcomeDropped
	// OutcomeNotReady means the selected tier has no executor yet.
	OutcomeNotReady
	// OutcomeFailed means the executor returned an error or panicked.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeProcessed:
		return "processed"
	case OutcomeDropped:
		return "dropped"
	case OutcomeNotReady:
		return "not_ready"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Stats are the dispatcher counters.
type Stats struct {
	Received       uint64 `json:"received"`
	Superseded     uint64 `json:"superseded"`
	Processed      uint64 `json:"processed"`
	Dropped        uint64 `json:"dropped"`
	NotReady       uint64 `json:"not_ready"`
	Failed         uint64 `json:"failed"`
	Presented      uint64 `json:"presented"`
	ResultsSkipped uint64 `json:"results_skipped"`
}

// Dispatcher is the single-flight frame scheduler.
type Dispatcher struct {
	cfg       Config
	settings  SettingsSource
	executors ExecutorSource
	sink      Sink
	logger    *slog.Logger
	hook      func(uint64, Outcome)

	frames  *mailbox.Slot[*frame.RawFrame]
	results *mailbox.Slot[Result]

	running atomic.Bool
	seq     atomic.Uint64

	processed atomic.Uint64
	dropped   atomic.Uint64
	notReady  atomic.Uint64
	failed    atomic.Uint64
	presented atomic.Uint64
}

// New creates a dispatcher. Call Run to start the worker.
func New(cfg Config, src SettingsSource, execs ExecutorSource, sink Sink, opts ...Option) (*Dispatcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if src == nil || execs == nil || sink == nil {
		return nil, errors.New("pipeline: settings, executors and sink are required")
	}

	d := &Dispatcher{
		cfg:       cfg,
		settings:  src,
		executors: execs,
		sink:      sink,
		frames:    mailbox.New[*frame.RawFrame](),
		results:   mailbox.New[Result](),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = log.Or(d.logger, "pipeline.dispatcher")
	return d, nil
}

// OnFrame hands a camera frame to the worker. It never blocks; a frame the
// worker has not picked up yet is replaced. The dispatcher takes ownership
// of raw. Frames with no sequence number are numbered here.
func (d *Dispatcher) OnFrame(raw *frame.RawFrame) {
	if raw == nil {
		return
	}
	if raw.Seq == 0 {
		raw.Seq = d.seq.Add(1)
	}
	if raw.CapturedAt.IsZero() {
		raw.CapturedAt = time.Now()
	}
	d.frames.Put(raw)
}

// Run processes frames until ctx is cancelled. Cancellation stops frame
// intake, lets the in-flight frame finish, then stops the presenter.
func (d *Dispatcher) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	stop := context.AfterFunc(ctx, d.frames.Close)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		d.present()
	}()

	if d.cfg.StatsInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.logStats(ctx)
		}()
	}

	d.logger.Info("pipeline started")
	for {
		raw, ok := d.frames.Take()
		if !ok {
			break
		}
		d.process(raw)
	}

	d.results.Close()
	wg.Wait()
	d.logger.Info("pipeline stopped", "stats", d.Stats())
	return nil
}

// process runs one frame. Settings are read once, before conversion.
func (d *Dispatcher) process(raw *frame.RawFrame) {
	snap := d.settings.Snapshot()

	img, ok := frame.Convert(raw, snap.Crop.Side())
	if !ok {
		d.dropped.Add(1)
		debug.FrameLog("frame dropped", "seq", raw.Seq, "crop", snap.Crop)
		d.finish(raw.Seq, OutcomeDropped)
		return
	}

	exec, ok := d.executors.Get(snap.Tier)
	if !ok {
		d.notReady.Add(1)
		debug.FrameLog("tier not ready", "seq", raw.Seq, "tier", snap.Tier)
		d.finish(raw.Seq, OutcomeNotReady)
		return
	}

	pred, err := infer(exec, img)
	if err != nil {
		n := d.failed.Add(1)
		if every := d.cfg.FailureLogEvery; every <= 1 || n%every == 1 {
			d.logger.Warn("inference failed, frame dropped",
				"seq", raw.Seq,
				"tier", snap.Tier,
				"failures", n,
				"error", err,
			)
		}
		d.finish(raw.Seq, OutcomeFailed)
		return
	}

	inferText, totalText := telemetry.Format(pred)
	d.results.Put(Result{
		Image:         pred.Image,
		InferenceText: inferText,
		TotalText:     totalText,
		Prediction:    pred,
		Tier:          snap.Tier,
		Crop:          snap.Crop,
		Seq:           raw.Seq,
		CapturedAt:    raw.CapturedAt,
		FinishedAt:    time.Now(),
	})
	d.processed.Add(1)
	debug.FrameLog("frame processed", "seq", raw.Seq, "tier", snap.Tier, "inference_ms", inferText)
	d.finish(raw.Seq, OutcomeProcessed)
}

func (d *Dispatcher) finish(seq uint64, o Outcome) {
	if d.hook != nil {
		d.hook(seq, o)
	}
}

// infer calls the executor, turning panics and empty output into errors.
func infer(exec executor.Executor, img image.Image) (pred executor.Prediction, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("executor panic: %v", p)
		}
	}()
	pred, err = exec.Infer(img)
	if err == nil && pred.Image == nil {
		err = errors.New("executor returned no image")
	}
	return pred, err
}

func (d *Dispatcher) present() {
	for {
		r, ok := d.results.Take()
		if !ok {
			return
		}
		d.presentOne(r)
	}
}

func (d *Dispatcher) presentOne(r Result) {
	defer func() {
		if p := recover(); p != nil {
			d.logger.Error("sink panic", "seq", r.Seq, "panic", p)
		}
	}()
	d.sink.Present(r)
	d.presented.Add(1)
}

func (d *Dispatcher) logStats(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.StatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := d.Stats()
			d.logger.Info("pipeline stats",
				"received", s.Received,
				"superseded", s.Superseded,
				"processed", s.Processed,
				"dropped", s.Dropped,
				"not_ready", s.NotReady,
				"failed", s.Failed,
				"presented", s.Presented,
			)
		}
	}
}

// Stats returns the current counters.
func (d *Dispatcher) Stats() Stats {
	fs := d.frames.Stats()
	rs := d.results.Stats()
	return Stats{
		Received:       fs.Published,
		Superseded:     fs.Superseded,
		Processed:      d.processed.Load(),
		Dropped:        d.dropped.Load(),
		NotReady:       d.notReady.Load(),
		Failed:         d.failed.Load(),
		Presented:      d.presented.Load(),
		ResultsSkipped: rs.Superseded,
	}
}
