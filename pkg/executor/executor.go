// Package executor defines the narrow contract between the pipeline and the
// per-tier inference executors, and the registry that builds and owns them.
//
// The pipeline never sees an executor's internals. It only needs:
//
//	exec, ok := registry.Get(executor.TierNPU)
//	if !ok {
//	    return // still building, or failed for good
//	}
//	pred, err := exec.Infer(img)
//
// Executors are constructed once per tier by a Constructor, asynchronously
// and independently, and released exactly once at shutdown.
package executor

import (
	"context"
	"fmt"
	"image"
	"strings"
	"time"
)

// Tier is one of the three interchangeable acceleration targets.
type Tier int

const (
	// TierCPU is the general-purpose tier.
	TierCPU Tier = iota
	// TierGPU is the vector-accelerated tier.
	TierGPU
	// TierNPU is the dedicated-accelerator tier.
	TierNPU
)

// NumTiers is the size of the fixed tier set.
const NumTiers = 3

// Tiers lists every tier in index order.
var Tiers = [NumTiers]Tier{TierCPU, TierGPU, TierNPU}

// String returns the short lowercase tier name.
func (t Tier) String() string {
	switch t {
	case TierCPU:
		return "cpu"
	case TierGPU:
		return "gpu"
	case TierNPU:
		return "npu"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	return t >= TierCPU && t <= TierNPU
}

// ParseTier accepts "cpu", "gpu", "npu" (any case) or "0", "1", "2".
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cpu", "0", "tier0":
		return TierCPU, nil
	case "gpu", "1", "tier1":
		return TierGPU, nil
	case "npu", "2", "tier2":
		return TierNPU, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownTier, s)
}

// MarshalText implements encoding.TextMarshaler.
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Tier) UnmarshalText(b []byte) error {
	v, err := ParseTier(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Executor is a constructed, ready-to-use model bound to exactly one Tier.
type Executor interface {
	// Infer runs the model on img. It is only called from the single
	// pipeline worker, never concurrently.
	Infer(img image.Image) (Prediction, error)

	// Release frees the executor. Safe to call more than once.
	Release() error
}

// Prediction is the output of one successful Infer call.
type Prediction struct {
	Image image.Image

	// Stage durations in nanoseconds.
	Preprocess  int64
	Inference   int64
	Postprocess int64
}

// Total returns the sum of all three stage durations in nanoseconds.
func (p Prediction) Total() int64 {
	return p.Preprocess + p.Inference + p.Postprocess
}

// Acceleration is one entry of a tier's priority order: a compute backend and
// the device target it should run on.
type Acceleration struct {
	Backend string `json:"backend"`
	Target  string `json:"target"`
}

func (a Acceleration) String() string {
	return a.Backend + "/" + a.Target
}

// BuildSpec describes how to construct one tier's executor.
type BuildSpec struct {
	Tier Tier

	// ModelPath is the model asset on disk.
	ModelPath string

	// ModelSHA256 is the expected hex digest of the asset. Empty skips the
	// integrity check.
	ModelSHA256 string

	// Priority lists accelerations to try, most preferred first.
	Priority []Acceleration

	// Constructor builds the executor. It runs on its own goroutine.
	Constructor Constructor
}

// Constructor builds an executor for spec. Errors should wrap one of
// ErrResourceUnavailable, ErrIntegrityCheckFailed or ErrInitialization.
type Constructor func(ctx context.Context, spec BuildSpec) (Executor, error)

// Observer receives construction outcomes. Each tier produces exactly one
// call: OnReady or OnBuildFailed.
type Observer interface {
	OnReady(tier Tier, elapsed time.Duration)
	OnBuildFailed(tier Tier, err *BuildError)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Ready  func(tier Tier, elapsed time.Duration)
	Failed func(tier Tier, err *BuildError)
}

// OnReady implements Observer.
func (o ObserverFuncs) OnReady(tier Tier, elapsed time.Duration) {
	if o.Ready != nil {
		o.Ready(tier, elapsed)
	}
}

// OnBuildFailed implements Observer.
func (o ObserverFuncs) OnBuildFailed(tier Tier, err *BuildError) {
	if o.Failed != nil {
		o.Failed(tier, err)
	}
}

// DefaultPriority returns the acceleration order each tier tries. The
// accelerator tier falls back to GPU then CPU, the GPU tier to CPU, and the
// CPU tier has no fallback.
func DefaultPriority(t Tier) []Acceleration {
	cpu := Acceleration{Backend: "opencv", Target: "cpu"}
	switch t {
	case TierNPU:
		return []Acceleration{
			{Backend: "openvino", Target: "vpu"},
			{Backend: "cuda", Target: "cuda_fp16"},
			{Backend: "opencv", Target: "opencl"},
			cpu,
		}
	case TierGPU:
		return []Acceleration{
			{Backend: "cuda", Target: "cuda"},
			{Backend: "opencv", Target: "opencl"},
			cpu,
		}
	default:
		return []Acceleration{cpu}
	}
}
