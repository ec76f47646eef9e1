package dnn

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/teslashibe/go-superres/pkg/executor"
)

func TestTensorToImage(t *testing.T) {
	// 1x3x1x2: left pixel pure red, right pixel mid grey.
	data := []float32{
		1, 0.5,
		0, 0.5,
		0, 0.5,
	}
	img, err := TensorToImage(data, []int{1, 3, 1, 2})
	if err != nil {
		t.Fatalf("TensorToImage: %v", err)
	}
	if got := img.Bounds().Size(); got != image.Pt(2, 1) {
		t.Fatalf("size = %v, want 2x1", got)
	}
	if got := img.NRGBAAt(0, 0); got != (color.NRGBA{R: 255, A: 255}) {
		t.Errorf("pixel 0 = %v, want red", got)
	}
	if got := img.NRGBAAt(1, 0); got != (color.NRGBA{R: 128, G: 128, B: 128, A: 255}) {
		t.Errorf("pixel 1 = %v, want mid grey", got)
	}
}

func TestTensorToImage_Clamps(t *testing.T) {
	img, err := TensorToImage([]float32{-0.3, 1.7}, []int{1, 1, 1, 2})
	if err != nil {
		t.Fatalf("TensorToImage: %v", err)
	}
	if got := img.NRGBAAt(0, 0).R; got != 0 {
		t.Errorf("negative value = %d, want 0", got)
	}
	if got := img.NRGBAAt(1, 0).R; got != 255 {
		t.Errorf("overflow value = %d, want 255", got)
	}
}

func TestTensorToImage_BadShape(t *testing.T) {
	tests := []struct {
		name string
		data []float32
		dims []int
	}{
		{"rank 3", make([]float32, 12), []int{3, 2, 2}},
		{"two channels", make([]float32, 8), []int{1, 2, 2, 2}},
		{"short data", make([]float32, 5), []int{1, 3, 2, 2}},
		{"zero width", nil, []int{1, 3, 2, 0}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := TensorToImage(tc.data, tc.dims); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLookup(t *testing.T) {
	for _, tier := range executor.Tiers {
		for _, a := range executor.DefaultPriority(tier) {
			if _, _, err := lookup(a); err != nil {
				t.Errorf("default %s acceleration %s: %v", tier, a, err)
			}
		}
	}
	if _, _, err := lookup(executor.Acceleration{Backend: "tflite", Target: "cpu"}); err == nil {
		t.Error("unknown backend should fail")
	}
	if _, _, err := lookup(executor.Acceleration{Backend: "opencv", Target: "hexagon"}); err == nil {
		t.Error("unknown target should fail")
	}
}

func TestConstructor_MissingAsset(t *testing.T) {
	spec := executor.BuildSpec{
		Tier:      executor.TierCPU,
		ModelPath: filepath.Join(t.TempDir(), "absent.onnx"),
	}
	_, err := Constructor(context.Background(), spec)
	if !errors.Is(err, executor.ErrResourceUnavailable) {
		t.Errorf("error = %v, want resource unavailable", err)
	}
}

func TestConstructor_DigestMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.onnx")
	if err := os.WriteFile(path, []byte("corrupt"), 0o600); err != nil {
		t.Fatal(err)
	}
	spec := executor.BuildSpec{
		Tier:        executor.TierNPU,
		ModelPath:   path,
		ModelSHA256: "deadbeef",
	}
	_, err := Constructor(context.Background(), spec)
	if !errors.Is(err, executor.ErrIntegrityCheckFailed) {
		t.Errorf("error = %v, want integrity check failed", err)
	}
}

// TestConstructor_Model runs the real network when a model is present.
func TestConstructor_Model(t *testing.T) {
	path := os.Getenv("SUPERRES_TEST_MODEL")
	if path == "" {
		path = filepath.Join("..", "..", "..", "models", "quicksrnetsmall.onnx")
	}
	if _, err := os.Stat(path); err != nil {
		t.Skip("super-resolution model not found, skipping test")
	}

	exec, err := Constructor(context.Background(), executor.BuildSpec{Tier: executor.TierCPU, ModelPath: path})
	if err != nil {
		t.Fatalf("Constructor: %v", err)
	}
	defer exec.Release()

	in := image.NewNRGBA(image.Rect(0, 0, 64, 64))
	pred, err := exec.Infer(in)
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	if got := pred.Image.Bounds().Dx(); got < 64 {
		t.Errorf("output width = %d, want at least 64", got)
	}
	if pred.Inference <= 0 {
		t.Errorf("inference time = %d, want > 0", pred.Inference)
	}

	if err := exec.Release(); err != nil {
		t.Errorf("Release: %v", err)
	}
	if _, err := exec.Infer(in); !errors.Is(err, executor.ErrReleased) {
		t.Errorf("Infer after release = %v, want ErrReleased", err)
	}
}
