package camera

import (
	"context"
	"fmt"

	"github.com/teslashibe/go-superres/pkg/frame"
)

// Source captures frames and pushes them to deliver from its own goroutine.
// deliver must not block; the pipeline's OnFrame satisfies that.
type Source interface {
	// Start begins capture and returns once the device is streaming.
	Start(ctx context.Context, deliver func(*frame.RawFrame)) error

	// Close stops delivery and waits for the capture goroutine to exit.
	Close() error
}

// Opener creates a source for cfg.
type Opener func(cfg Config) (Source, error)

// Backends returns an Opener that picks the implementation by cfg.Backend.
func Backends(openers map[string]Opener) Opener {
	return func(cfg Config) (Source, error) {
		open, ok := openers[cfg.Backend]
		if !ok || open == nil {
			return nil, fmt.Errorf("camera: backend %q not available", cfg.Backend)
		}
		return open(cfg)
	}
}
