package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"

	"github.com/teslashibe/go-superres/internal/log"
)

// State is the construction state of one tier.
type State int32

const (
	// StatePending means no build was requested for the tier.
	StatePending State = iota
	// StateBuilding means the constructor is running.
	StateBuilding
	// StateReady means the executor is published and usable.
	StateReady
	// StateFailed means construction failed; the tier stays unusable.
	StateFailed
	// StateReleased means the executor was released at shutdown.
	StateReleased
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateBuilding:
		return "building"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateReleased:
		return "released"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(b []byte) error {
	for v := StatePending; v <= StateReleased; v++ {
		if v.String() == string(b) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", b)
}

// TierStatus is a point-in-time view of one tier.
type TierStatus struct {
	Tier  Tier   `json:"tier"`
	State State  `json:"state"`
	Error string `json:"error,omitempty"`
}

type handle struct {
	exec Executor
}

// slot holds one tier. exec is written once on publish and swapped to nil
// on release; readers never see a half-constructed executor.
type slot struct {
	requested atomic.Bool
	state     atomic.Int32
	exec      atomic.Pointer[handle]
	err       atomic.Pointer[BuildError]
}

// Registry owns up to one executor per tier.
type Registry struct {
	slots    [NumTiers]slot
	observer Observer
	logger   *slog.Logger

	wg sync.WaitGroup

	// mu orders publish against ReleaseAll so a late build cannot publish
	// into a registry that was already released.
	mu       sync.Mutex
	released bool
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithObserver sets the observer notified of build outcomes.
func WithObserver(o Observer) RegistryOption {
	return func(r *Registry) { r.observer = o }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) { r.logger = l }
}

// NewRegistry creates an empty registry. Every tier starts Pending.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = log.Or(r.logger, "executor.registry")
	return r
}

// BuildAll starts building every spec on its own goroutine and returns
// immediately. A tier that was already requested is skipped: executors are
// never reconstructed. A failing tier never affects the others.
func (r *Registry) BuildAll(ctx context.Context, specs []BuildSpec) {
	for _, spec := range specs {
		if !spec.Tier.Valid() {
			r.logger.Warn("skipping build for unknown tier", "tier", spec.Tier)
			continue
		}
		s := &r.slots[spec.Tier]
		if !s.requested.CompareAndSwap(false, true) {
			r.logger.Debug("tier already requested, not rebuilding", "tier", spec.Tier)
			continue
		}
		s.state.Store(int32(StateBuilding))

		r.wg.Add(1)
		go func(spec BuildSpec) {
			defer r.wg.Done()
			r.build(ctx, spec)
		}(spec)
	}
}

func (r *Registry) build(ctx context.Context, spec BuildSpec) {
	s := &r.slots[spec.Tier]
	start := time.Now()

	r.logger.Info("building executor",
		"tier", spec.Tier,
		"model", spec.ModelPath,
		"priority", len(spec.Priority),
	)

	exec, err := construct(ctx, spec)
	elapsed := time.Since(start)

	if err != nil {
		be := WrapBuildError(spec.Tier, err)
		s.err.Store(be)
		s.state.Store(int32(StateFailed))
		r.logger.Error("executor build failed",
			"tier", spec.Tier,
			"kind", be.Kind,
			"elapsed_ms", elapsed.Milliseconds(),
			"error", be.Err,
		)
		if r.observer != nil {
			r.observer.OnBuildFailed(spec.Tier, be)
		}
		return
	}

	r.mu.Lock()
	if r.released {
		r.mu.Unlock()
		if rerr := exec.Release(); rerr != nil {
			r.logger.Warn("release of late executor failed", "tier", spec.Tier, "error", rerr)
		}
		s.state.Store(int32(StateReleased))
		r.logger.Info("executor finished after shutdown, released", "tier", spec.Tier)
		return
	}
	s.exec.Store(&handle{exec: exec})
	s.state.Store(int32(StateReady))
	r.mu.Unlock()

	r.logger.Info("executor ready", "tier", spec.Tier, "elapsed_ms", elapsed.Milliseconds())
	if r.observer != nil {
		r.observer.OnReady(spec.Tier, elapsed)
	}
}

// construct runs the constructor, turning panics and nil results into
// initialization errors.
func construct(ctx context.Context, spec BuildSpec) (exec Executor, err error) {
	if spec.Constructor == nil {
		return nil, fmt.Errorf("%w: no constructor for tier %s", ErrInitialization, spec.Tier)
	}
	defer func() {
		if p := recover(); p != nil {
			exec, err = nil, fmt.Errorf("%w: constructor panic: %v", ErrInitialization, p)
		}
	}()

	exec, err = spec.Constructor(ctx, spec)
	if err == nil && exec == nil {
		err = fmt.Errorf("%w: constructor returned no executor", ErrInitialization)
	}
	return exec, err
}

// Get returns the tier's executor if it completed construction.
// It never blocks.
func (r *Registry) Get(t Tier) (Executor, bool) {
	if !t.Valid() {
		return nil, false
	}
	h := r.slots[t].exec.Load()
	if h == nil {
		return nil, false
	}
	return h.exec, true
}

// State returns the tier's construction state.
func (r *Registry) State(t Tier) State {
	if !t.Valid() {
		return StatePending
	}
	return State(r.slots[t].state.Load())
}

// Err returns the tier's construction error, or nil.
func (r *Registry) Err(t Tier) *BuildError {
	if !t.Valid() {
		return nil
	}
	return r.slots[t].err.Load()
}

// Status returns a snapshot of every tier.
func (r *Registry) Status() []TierStatus {
	out := make([]TierStatus, 0, NumTiers)
	for _, t := range Tiers {
		st := TierStatus{Tier: t, State: r.State(t)}
		if be := r.Err(t); be != nil {
			st.Error = be.Err.Error()
		}
		out = append(out, st)
	}
	return out
}

// Wait blocks until every requested build has finished or ctx is done.
func (r *Registry) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ReleaseAll releases every ready executor exactly once. Tiers that never
// became ready are skipped. Builds still running release their executor as
// soon as they finish. Safe to call more than once.
func (r *Registry) ReleaseAll() error {
	r.mu.Lock()
	r.released = true
	r.mu.Unlock()

	var errs error
	for _, t := range Tiers {
		s := &r.slots[t]
		h := s.exec.Swap(nil)
		if h == nil {
			continue
		}
		s.state.Store(int32(StateReleased))
		if err := h.exec.Release(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("release %s: %w", t, err))
			continue
		}
		r.logger.Info("executor released", "tier", t)
	}
	return errs
}
