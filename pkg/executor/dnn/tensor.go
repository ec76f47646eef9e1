package dnn

import (
	"fmt"
	"image"
	"image/color"
)

// TensorToImage converts a planar NCHW float tensor with values in [0, 1]
// into an NRGBA image. Only the first batch element is used. A single
// channel tensor becomes grey.
func TensorToImage(data []float32, dims []int) (*image.NRGBA, error) {
	if len(dims) != 4 {
		return nil, fmt.Errorf("dnn: output rank %d, want 4", len(dims))
	}
	c, h, w := dims[1], dims[2], dims[3]
	if c != 1 && c != 3 {
		return nil, fmt.Errorf("dnn: output has %d channels", c)
	}
	if h <= 0 || w <= 0 {
		return nil, fmt.Errorf("dnn: output size %dx%d", w, h)
	}
	plane := h * w
	if len(data) < c*plane {
		return nil, fmt.Errorf("dnn: output holds %d values, want %d", len(data), c*plane)
	}

	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			r := toByte(data[i])
			g, b := r, r
			if c == 3 {
				g = toByte(data[plane+i])
				b = toByte(data[2*plane+i])
			}
			img.SetNRGBA(x, y, color.NRGBA{R: r, G: g, B: b, A: 0xff})
		}
	}
	return img, nil
}

func toByte(v float32) uint8 {
	v *= 255
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v + 0.5)
	}
}
