package frame

import (
	"fmt"
	"image"
)

// FromI420 splits a contiguous I420 buffer (Y plane, then U, then V) into a
// RawFrame. buf is referenced, not copied.
func FromI420(buf []byte, w, h, rotation int) (*RawFrame, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("frame: bad size %dx%d", w, h)
	}
	cw, ch := Subsample420.chromaSize(w, h)
	ySize, cSize := w*h, cw*ch
	if len(buf) < ySize+2*cSize {
		return nil, fmt.Errorf("frame: I420 buffer holds %d bytes, want %d", len(buf), ySize+2*cSize)
	}
	return &RawFrame{
		Y:           buf[:ySize],
		Cb:          buf[ySize : ySize+cSize],
		Cr:          buf[ySize+cSize : ySize+2*cSize],
		YStride:     w,
		CStride:     cw,
		Width:       w,
		Height:      h,
		Subsampling: Subsample420,
		Rotation:    NormalizeRotation(rotation),
	}, nil
}

// FromYCbCr copies img's planes into a RawFrame, so the source buffer can be
// recycled once it returns. Only 4:2:0, 4:2:2 and 4:4:4 are supported.
func FromYCbCr(img *image.YCbCr, rotation int) (*RawFrame, error) {
	var sub Subsampling
	switch img.SubsampleRatio {
	case image.YCbCrSubsampleRatio420:
		sub = Subsample420
	case image.YCbCrSubsampleRatio422:
		sub = Subsample422
	case image.YCbCrSubsampleRatio444:
		sub = Subsample444
	default:
		return nil, fmt.Errorf("frame: unsupported subsampling %v", img.SubsampleRatio)
	}

	r := img.Rect
	w, h := r.Dx(), r.Dy()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("frame: empty image")
	}
	cw, ch := sub.chromaSize(w, h)

	raw := &RawFrame{
		Y:           copyPlane(img.Y, img.YStride, img.YOffset(r.Min.X, r.Min.Y), w, h),
		Cb:          copyPlane(img.Cb, img.CStride, img.COffset(r.Min.X, r.Min.Y), cw, ch),
		Cr:          copyPlane(img.Cr, img.CStride, img.COffset(r.Min.X, r.Min.Y), cw, ch),
		Width:       w,
		Height:      h,
		Subsampling: sub,
		Rotation:    NormalizeRotation(rotation),
	}
	return raw, nil
}

// copyPlane copies a cols x rows window starting at off into a packed slice.
func copyPlane(src []byte, stride, off, cols, rows int) []byte {
	dst := make([]byte, cols*rows)
	for y := 0; y < rows; y++ {
		start := off + y*stride
		if start >= len(src) {
			break
		}
		end := start + cols
		if end > len(src) {
			end = len(src)
		}
		copy(dst[y*cols:], src[start:end])
	}
	return dst
}
