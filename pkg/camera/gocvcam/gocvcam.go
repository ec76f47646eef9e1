// Package gocvcam captures frames from a local camera through OpenCV.
package gocvcam

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-superres/internal/log"
	"github.com/teslashibe/go-superres/pkg/camera"
	"github.com/teslashibe/go-superres/pkg/frame"
)

// maxReadFailures is how many consecutive empty reads end the capture loop.
const maxReadFailures = 30

// Source reads from a gocv.VideoCapture and converts each BGR frame to I420.
type Source struct {
	cfg    camera.Config
	cam    *gocv.VideoCapture
	logger *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Open is a camera.Opener for camera.BackendGoCV.
func Open(cfg camera.Config) (camera.Source, error) {
	var device any = cfg.Device
	if cfg.Device == "" {
		device = 0
	} else if id, err := strconv.Atoi(cfg.Device); err == nil {
		device = id
	}

	cam, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("open camera %v: %w", device, err)
	}
	if !cam.IsOpened() {
		cam.Close()
		return nil, fmt.Errorf("camera %v did not open", device)
	}

	cam.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	cam.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	cam.Set(gocv.VideoCaptureFPS, float64(cfg.Framerate))
	// Keep the driver queue short so reads return the newest frame.
	cam.Set(gocv.VideoCaptureBufferSize, 1)

	return &Source{
		cfg:    cfg,
		cam:    cam,
		logger: log.Component("camera.gocv").With("device", device),
	}, nil
}

// Start implements camera.Source.
func (s *Source) Start(ctx context.Context, deliver func(*frame.RawFrame)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return errors.New("gocvcam: already started")
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(ctx, deliver)
	}()
	return nil
}

func (s *Source) loop(ctx context.Context, deliver func(*frame.RawFrame)) {
	img := gocv.NewMat()
	defer img.Close()
	yuv := gocv.NewMat()
	defer yuv.Close()

	var seq uint64
	failures := 0
	for ctx.Err() == nil {
		if ok := s.cam.Read(&img); !ok || img.Empty() {
			failures++
			if failures >= maxReadFailures {
				s.logger.Error("camera stopped delivering frames", "failures", failures)
				return
			}
			time.Sleep(10 * time.Millisecond)
			continue
		}
		failures = 0

		w, h := img.Cols()&^1, img.Rows()&^1
		if w != img.Cols() || h != img.Rows() {
			region := img.Region(image.Rect(0, 0, w, h))
			cropped := region.Clone()
			region.Close()
			img.Close()
			img = cropped
		}

		gocv.CvtColor(img, &yuv, gocv.ColorBGRToYUVI420)
		if yuv.Empty() {
			s.logger.Warn("colour conversion produced no data")
			continue
		}

		raw, err := frame.FromI420(yuv.ToBytes(), w, h, s.cfg.RotationHint())
		if err != nil {
			s.logger.Warn("bad I420 frame", "error", err)
			continue
		}
		seq++
		raw.Seq = seq
		raw.CapturedAt = time.Now()
		deliver(raw)
	}
}

// Close implements camera.Source.
func (s *Source) Close() error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	return s.cam.Close()
}

var _ camera.Source = (*Source)(nil)
