// Package frame converts raw planar camera frames into the square
// region-of-interest images fed to the executors.
package frame

import (
	"image"
	"time"
)

// Subsampling is the chroma layout of a RawFrame.
type Subsampling int

const (
	// Subsample420 has one chroma sample per 2x2 luma block (NV21/I420 cameras).
	Subsample420 Subsampling = iota
	// Subsample422 has one chroma sample per 2x1 luma block.
	Subsample422
	// Subsample444 has full resolution chroma.
	Subsample444
)

func (s Subsampling) ratio() image.YCbCrSubsampleRatio {
	switch s {
	case Subsample422:
		return image.YCbCrSubsampleRatio422
	case Subsample444:
		return image.YCbCrSubsampleRatio444
	default:
		return image.YCbCrSubsampleRatio420
	}
}

// chromaSize returns the chroma plane dimensions for a w x h frame.
func (s Subsampling) chromaSize(w, h int) (cw, ch int) {
	switch s {
	case Subsample422:
		return (w + 1) / 2, h
	case Subsample444:
		return w, h
	default:
		return (w + 1) / 2, (h + 1) / 2
	}
}

// RawFrame is one planar frame as delivered by a camera source.
// The pipeline owns it after delivery and discards it after conversion.
type RawFrame struct {
	Y, Cb, Cr []byte

	// Strides in bytes. Zero means tightly packed.
	YStride int
	CStride int

	Width  int
	Height int

	Subsampling Subsampling

	// Rotation is the clockwise rotation, in degrees, needed to display
	// the frame upright.
	Rotation int

	Seq        uint64
	CapturedAt time.Time
}

// strides returns the effective luma and chroma strides.
func (f *RawFrame) strides() (ys, cs int) {
	ys, cs = f.YStride, f.CStride
	if ys == 0 {
		ys = f.Width
	}
	if cs == 0 {
		cs, _ = f.Subsampling.chromaSize(f.Width, f.Height)
	}
	return ys, cs
}

// Size returns the frame dimensions before rotation.
func (f *RawFrame) Size() (w, h int) {
	return f.Width, f.Height
}

// RotatedSize returns the frame dimensions after applying Rotation.
func (f *RawFrame) RotatedSize() (w, h int) {
	switch NormalizeRotation(f.Rotation) {
	case 90, 270:
		return f.Height, f.Width
	default:
		return f.Width, f.Height
	}
}

// NormalizeRotation maps a rotation hint onto {0, 90, 180, 270}.
// Hints that are not a multiple of 90 are treated as 0.
func NormalizeRotation(deg int) int {
	if deg%90 != 0 {
		return 0
	}
	deg %= 360
	if deg < 0 {
		deg += 360
	}
	return deg
}
