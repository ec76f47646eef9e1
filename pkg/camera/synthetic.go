package camera

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/teslashibe/go-superres/pkg/frame"
)

// Synthetic renders a moving test pattern. It needs no hardware and is used
// for development and tests.
type Synthetic struct {
	cfg Config

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// OpenSynthetic is an Opener for BackendSynthetic.
func OpenSynthetic(cfg Config) (Source, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, errors.New(errs[0])
	}
	return &Synthetic{cfg: cfg}, nil
}

// Start implements Source.
func (s *Synthetic) Start(ctx context.Context, deliver func(*frame.RawFrame)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return errors.New("camera: synthetic source already started")
	}

	ctx, s.cancel = context.WithCancel(ctx)
	interval := time.Second / time.Duration(s.cfg.Framerate)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var seq uint64
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				seq++
				raw := frame.FromImage(Pattern(s.cfg.Width, s.cfg.Height, seq), s.cfg.RotationHint())
				raw.Seq = seq
				raw.CapturedAt = now
				deliver(raw)
			}
		}
	}()
	return nil
}

// Close implements Source.
func (s *Synthetic) Close() error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	return nil
}

// Pattern draws frame n of the test pattern: a colour gradient with a white
// bar sweeping left to right.
func Pattern(w, h int, n uint64) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	bar := int(n*4) % w
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.NRGBA{
				R: uint8(x * 255 / w),
				G: uint8(y * 255 / h),
				B: uint8((x + y + int(n)) & 0xff),
				A: 0xff,
			}
			if x >= bar && x < bar+8 {
				c = color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
			}
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}
