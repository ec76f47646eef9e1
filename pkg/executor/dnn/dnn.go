// Package dnn implements executor.Executor on the OpenCV DNN module.
//
// A tier's priority list is tried in order: the first backend/target pair
// that survives a warm-up forward pass is kept, later ones are never touched.
package dnn

import (
	"context"
	"fmt"
	"image"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-superres/internal/log"
	"github.com/teslashibe/go-superres/pkg/executor"
)

// ProbeSide is the square input used for the warm-up pass.
const ProbeSide = 64

var backends = map[string]gocv.NetBackendType{
	"default":  gocv.NetBackendDefault,
	"opencv":   gocv.NetBackendOpenCV,
	"openvino": gocv.NetBackendOpenVINO,
	"vulkan":   gocv.NetBackendVKCOM,
	"cuda":     gocv.NetBackendCUDA,
}

var targets = map[string]gocv.NetTargetType{
	"cpu":         gocv.NetTargetCPU,
	"opencl":      gocv.NetTargetFP32,
	"opencl_fp16": gocv.NetTargetFP16,
	"vpu":         gocv.NetTargetVPU,
	"vulkan":      gocv.NetTargetVulkan,
	"cuda":        gocv.NetTargetCUDA,
	"cuda_fp16":   gocv.NetTargetCUDAFP16,
}

func lookup(a executor.Acceleration) (gocv.NetBackendType, gocv.NetTargetType, error) {
	b, ok := backends[strings.ToLower(a.Backend)]
	if !ok {
		return 0, 0, fmt.Errorf("unknown backend %q", a.Backend)
	}
	t, ok := targets[strings.ToLower(a.Target)]
	if !ok {
		return 0, 0, fmt.Errorf("unknown target %q", a.Target)
	}
	return b, t, nil
}

// Executor runs one super-resolution network.
type Executor struct {
	tier  executor.Tier
	accel executor.Acceleration

	mu       sync.Mutex
	net      gocv.Net
	released atomic.Bool
	once     sync.Once
}

// Constructor loads spec.ModelPath after verifying its digest, then binds the
// first acceleration in spec.Priority that works.
func Constructor(ctx context.Context, spec executor.BuildSpec) (executor.Executor, error) {
	logger := log.Component("executor.dnn").With("tier", spec.Tier)

	if err := executor.VerifyAsset(spec.ModelPath, spec.ModelSHA256); err != nil {
		return nil, err
	}

	priority := spec.Priority
	if len(priority) == 0 {
		priority = executor.DefaultPriority(spec.Tier)
	}

	var tried []string
	for _, accel := range priority {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", executor.ErrInitialization, err)
		}

		backend, target, err := lookup(accel)
		if err != nil {
			tried = append(tried, fmt.Sprintf("%s: %v", accel, err))
			continue
		}

		net := gocv.ReadNetFromONNX(spec.ModelPath)
		if net.Empty() {
			return nil, fmt.Errorf("%w: cannot load network from %s", executor.ErrInitialization, spec.ModelPath)
		}
		net.SetPreferableBackend(backend)
		net.SetPreferableTarget(target)

		if err := warmUp(&net); err != nil {
			net.Close()
			logger.Warn("acceleration unavailable, falling back", "accel", accel.String(), "error", err)
			tried = append(tried, fmt.Sprintf("%s: %v", accel, err))
			continue
		}

		logger.Info("network bound", "accel", accel.String(), "model", spec.ModelPath)
		return &Executor{tier: spec.Tier, accel: accel, net: net}, nil
	}

	return nil, fmt.Errorf("%w: no usable acceleration (%s)", executor.ErrResourceUnavailable, strings.Join(tried, "; "))
}

// warmUp runs one forward pass on a blank frame. OpenCV reports an
// unsupported backend by raising, which gocv surfaces as a panic.
func warmUp(net *gocv.Net) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("warm-up: %v", p)
		}
	}()

	probe := gocv.NewMatWithSize(ProbeSide, ProbeSide, gocv.MatTypeCV8UC3)
	defer probe.Close()

	blob := gocv.BlobFromImage(probe, 1.0/255.0, image.Pt(ProbeSide, ProbeSide), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	net.SetInput(blob, "")
	out := net.Forward("")
	defer out.Close()
	if out.Empty() {
		return fmt.Errorf("warm-up produced no output")
	}
	return nil
}

// Acceleration returns the backend/target pair the executor is bound to.
func (e *Executor) Acceleration() executor.Acceleration {
	return e.accel
}

// Infer upscales img. Timings cover blob creation, the forward pass and the
// tensor-to-image copy respectively.
func (e *Executor) Infer(img image.Image) (executor.Prediction, error) {
	if e.released.Load() {
		return executor.Prediction{}, executor.ErrReleased
	}
	if img == nil {
		return executor.Prediction{}, fmt.Errorf("dnn: nil image")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return executor.Prediction{}, fmt.Errorf("dnn: image to mat: %w", err)
	}
	defer mat.Close()

	size := img.Bounds().Size()
	blob := gocv.BlobFromImage(mat, 1.0/255.0, size, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()
	pre := time.Since(start)

	start = time.Now()
	e.net.SetInput(blob, "")
	out := e.net.Forward("")
	defer out.Close()
	infer := time.Since(start)

	start = time.Now()
	data, err := out.DataPtrFloat32()
	if err != nil {
		return executor.Prediction{}, fmt.Errorf("dnn: read output: %w", err)
	}
	result, err := TensorToImage(data, out.Size())
	if err != nil {
		return executor.Prediction{}, err
	}
	post := time.Since(start)

	return executor.Prediction{
		Image:       result,
		Preprocess:  pre.Nanoseconds(),
		Inference:   infer.Nanoseconds(),
		Postprocess: post.Nanoseconds(),
	}, nil
}

// Release frees the network. Later calls are no-ops.
func (e *Executor) Release() error {
	var err error
	e.once.Do(func() {
		e.released.Store(true)
		e.mu.Lock()
		defer e.mu.Unlock()
		err = e.net.Close()
	})
	return err
}

var _ executor.Executor = (*Executor)(nil)
