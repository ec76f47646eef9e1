package executor

import (
	"context"
	"image"
	"sync"
	"time"
)

// Mock implements Executor for testing. It returns deterministic timings and,
// by default, the input image unchanged.
type Mock struct {
	// InferFunc is called when Infer is invoked.
	InferFunc func(img image.Image) (Prediction, error)

	// ReleaseFunc is called when Release is invoked.
	ReleaseFunc func() error

	mu       sync.Mutex
	calls    []MockCall
	released int
}

// MockCall records a method invocation.
type MockCall struct {
	Method string
	Size   image.Point
	Time   time.Time
}

// Default stage timings reported by NewMock.
const (
	MockPreprocess  int64 = 1_250_000
	MockInference   int64 = 8_500_000
	MockPostprocess int64 = 750_000
)

// NewMock creates a mock executor that echoes its input with fixed timings.
func NewMock() *Mock {
	return &Mock{
		InferFunc: func(img image.Image) (Prediction, error) {
			return Prediction{
				Image:       img,
				Preprocess:  MockPreprocess,
				Inference:   MockInference,
				Postprocess: MockPostprocess,
			}, nil
		},
	}
}

// MockWithError returns a mock whose Infer always fails with err.
func MockWithError(err error) *Mock {
	return &Mock{
		InferFunc: func(image.Image) (Prediction, error) {
			return Prediction{}, err
		},
	}
}

// Infer calls InferFunc and records the call.
func (m *Mock) Infer(img image.Image) (Prediction, error) {
	var size image.Point
	if img != nil {
		size = img.Bounds().Size()
	}
	m.record("Infer", size)
	if m.InferFunc != nil {
		return m.InferFunc(img)
	}
	return Prediction{Image: img}, nil
}

// Release calls ReleaseFunc and records the call.
func (m *Mock) Release() error {
	m.record("Release", image.Point{})
	m.mu.Lock()
	m.released++
	m.mu.Unlock()
	if m.ReleaseFunc != nil {
		return m.ReleaseFunc()
	}
	return nil
}

func (m *Mock) record(method string, size image.Point) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{Method: method, Size: size, Time: time.Now()})
}

// Calls returns all recorded method calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]MockCall, len(m.calls))
	copy(result, m.calls)
	return result
}

// CallCount returns the number of times a method was called.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, c := range m.calls {
		if c.Method == method {
			count++
		}
	}
	return count
}

// ReleaseCount returns how many times Release was called.
func (m *Mock) ReleaseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.released
}

// Reset clears all recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.released = 0
}

// MockConstructor returns a Constructor that yields exec. When gate is
// non-nil the constructor blocks until gate is closed or ctx is done, which
// lets tests observe the Building state.
func MockConstructor(exec Executor, gate <-chan struct{}) Constructor {
	return func(ctx context.Context, _ BuildSpec) (Executor, error) {
		if gate != nil {
			select {
			case <-gate:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		return exec, nil
	}
}

// FailingConstructor returns a Constructor that always fails with err.
func FailingConstructor(err error) Constructor {
	return func(context.Context, BuildSpec) (Executor, error) {
		return nil, err
	}
}

// Verify Mock implements Executor at compile time.
var _ Executor = (*Mock)(nil)
