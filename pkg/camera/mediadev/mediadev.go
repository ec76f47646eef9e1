// Package mediadev captures frames through pion/mediadevices, which hands
// out planar YCbCr images straight from the driver.
package mediadev

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/mediadevices"
	mdcamera "github.com/pion/mediadevices/pkg/driver/camera"
	mdframe "github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/io/video"
	"github.com/pion/mediadevices/pkg/prop"

	"github.com/teslashibe/go-superres/internal/log"
	"github.com/teslashibe/go-superres/pkg/camera"
	"github.com/teslashibe/go-superres/pkg/frame"
)

var initOnce sync.Once

// Source reads a mediadevices video track.
type Source struct {
	cfg    camera.Config
	track  mediadevices.Track
	reader video.Reader
	logger *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Constraints returns the track constraints for cfg. Planar formats are
// preferred; anything else is converted on read.
func Constraints(cfg camera.Config) mediadevices.MediaStreamConstraints {
	return mediadevices.MediaStreamConstraints{
		Video: func(c *mediadevices.MediaTrackConstraints) {
			c.Width = prop.IntExact(cfg.Width)
			c.Height = prop.IntExact(cfg.Height)
			c.FrameRate = prop.FloatRanged{Min: 1, Ideal: float32(cfg.Framerate), Max: float32(camera.MaxFramerate)}
			c.FrameFormat = prop.FrameFormatOneOf{
				mdframe.FormatI420,
				mdframe.FormatI444,
				mdframe.FormatNV12,
				mdframe.FormatYUY2,
				mdframe.FormatMJPEG,
			}
		},
	}
}

// Open is a camera.Opener for camera.BackendMediaDevices.
func Open(cfg camera.Config) (camera.Source, error) {
	logger := log.Component("camera.mediadevices")
	initOnce.Do(mdcamera.Initialize)
	if cfg.Device != "" {
		logger.Warn("device selection is not supported by this backend, using the first camera", "device", cfg.Device)
	}

	stream, err := mediadevices.GetUserMedia(Constraints(cfg))
	if err != nil {
		return nil, fmt.Errorf("get user media: %w", err)
	}
	tracks := stream.GetVideoTracks()
	if len(tracks) == 0 {
		return nil, errors.New("no video track")
	}
	vt, ok := tracks[0].(*mediadevices.VideoTrack)
	if !ok {
		_ = tracks[0].Close()
		return nil, fmt.Errorf("unexpected track type %T", tracks[0])
	}

	return &Source{
		cfg:    cfg,
		track:  vt,
		reader: vt.NewReader(false),
		logger: logger,
	}, nil
}

// Start implements camera.Source.
func (s *Source) Start(ctx context.Context, deliver func(*frame.RawFrame)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return errors.New("mediadev: already started")
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
	var seq uint64
	rotation := s.cfg.RotationHint()
	for ctx.Err() == nil {
		img, release, err := s.reader.Read()
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Error("read failed, capture stopped", "error", err)
			}
			return
		}

		raw, err := toRaw(img, rotation)
		if release != nil {
			release()
		}
		if err != nil {
			s.logger.Warn("unusable frame", "error", err)
			continue
		}

		seq++
		raw.Seq = seq
		raw.CapturedAt = time.Now()
		deliver(raw)
	}
}

// toRaw copies img out of the driver buffer.
func toRaw(img image.Image, rotation int) (*frame.RawFrame, error) {
	if ycc, ok := img.(*image.YCbCr); ok {
		if raw, err := frame.FromYCbCr(ycc, rotation); err == nil {
			return raw, nil
		}
	}
	if img == nil || img.Bounds().Empty() {
		return nil, errors.New("empty image")
	}
	return frame.FromImage(img, rotation), nil
}

// Close implements camera.Source.
func (s *Source) Close() error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	// Closing the track unblocks a pending Read.
	err := s.track.Close()
	s.wg.Wait()
	return err
}

var _ camera.Source = (*Source)(nil)
