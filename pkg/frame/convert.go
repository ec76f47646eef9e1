package frame

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// Convert decodes raw, rotates it upright and extracts the centred square of
// side cropSide.
//
// It reports false (dropped) instead of an error when the frame cannot be
// decoded or when the rotated image is smaller than cropSide in either
// dimension; the caller simply waits for the next frame.
func Convert(raw *RawFrame, cropSide int) (image.Image, bool) {
	if raw == nil || cropSide <= 0 {
		return nil, false
	}
	if w, h := raw.RotatedSize(); w < cropSide || h < cropSide {
		return nil, false
	}

	img, ok := Decode(raw)
	if !ok {
		return nil, false
	}

	return CropCenter(Rotate(img, raw.Rotation), cropSide)
}

// Decode wraps the planes of raw in an image.YCbCr without copying.
// It reports false when the planes are too short for the declared geometry.
func Decode(raw *RawFrame) (*image.YCbCr, bool) {
	if raw == nil || raw.Width <= 0 || raw.Height <= 0 {
		return nil, false
	}

	ys, cs := raw.strides()
	cw, ch := raw.Subsampling.chromaSize(raw.Width, raw.Height)
	if ys < raw.Width || cs < cw {
		return nil, false
	}
	if !planeFits(raw.Y, ys, raw.Width, raw.Height) ||
		!planeFits(raw.Cb, cs, cw, ch) ||
		!planeFits(raw.Cr, cs, cw, ch) {
		return nil, false
	}

	return &image.YCbCr{
		Y:              raw.Y,
		Cb:             raw.Cb,
		Cr:             raw.Cr,
		YStride:        ys,
		CStride:        cs,
		SubsampleRatio: raw.Subsampling.ratio(),
		Rect:           image.Rect(0, 0, raw.Width, raw.Height),
	}, true
}

// planeFits reports whether a plane of rows x cols with stride fits in buf.
// The last row only needs cols bytes. The check divides instead of
// multiplying so huge declared geometry cannot overflow into a pass.
func planeFits(buf []byte, stride, cols, rows int) bool {
	if rows < 0 || cols < 0 {
		return false
	}
	if rows == 0 || cols == 0 {
		return true
	}
	if stride < cols || len(buf) < cols {
		return false
	}
	return rows-1 <= (len(buf)-cols)/stride
}

// Rotate packs img into NRGBA and applies a clockwise rotation hint.
// imaging rotates counter-clockwise, so a 90 degree hint maps to Rotate270.
func Rotate(img image.Image, rotation int) *image.NRGBA {
	switch NormalizeRotation(rotation) {
	case 90:
		return imaging.Rotate270(img)
	case 180:
		return imaging.Rotate180(img)
	case 270:
		return imaging.Rotate90(img)
	default:
		return imaging.Clone(img)
	}
}

// CropCenter extracts the centred side x side square of img.
func CropCenter(img image.Image, side int) (image.Image, bool) {
	b := img.Bounds()
	if side <= 0 || b.Dx() < side || b.Dy() < side {
		return nil, false
	}
	x := b.Min.X + (b.Dx()-side)/2
	y := b.Min.Y + (b.Dy()-side)/2
	return imaging.Crop(img, image.Rect(x, y, x+side, y+side)), true
}

// FromImage builds a 4:2:0 RawFrame from a packed image. Camera sources that
// deliver RGB frames use it to hand the pipeline the same planar layout a
// mobile sensor would.
func FromImage(img image.Image, rotation int) *RawFrame {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	ycc, ok := img.(*image.YCbCr)
	if !ok || ycc.SubsampleRatio != image.YCbCrSubsampleRatio420 || b.Min != (image.Point{}) {
		ycc = toYCbCr420(img)
	}

	return &RawFrame{
		Y:           ycc.Y,
		Cb:          ycc.Cb,
		Cr:          ycc.Cr,
		YStride:     ycc.YStride,
		CStride:     ycc.CStride,
		Width:       w,
		Height:      h,
		Subsampling: Subsample420,
		Rotation:    rotation,
	}
}

// toYCbCr420 converts img to a 4:2:0 image, sampling chroma from the top-left
// pixel of each 2x2 block.
func toYCbCr420(img image.Image) *image.YCbCr {
	b := img.Bounds()
	out := image.NewYCbCr(image.Rect(0, 0, b.Dx(), b.Dy()), image.YCbCrSubsampleRatio420)
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			yy, cb, cr := color.RGBToYCbCr(uint8(r>>8), uint8(g>>8), uint8(bl>>8))
			out.Y[out.YOffset(x, y)] = yy
			if x%2 == 0 && y%2 == 0 {
				ci := out.COffset(x, y)
				out.Cb[ci] = cb
				out.Cr[ci] = cr
			}
		}
	}
	return out
}
