package frame

import (
	"bytes"
	"image"
	"image/color"
	"math"
	"testing"
)

// newRawFrame builds a tightly packed 4:2:0 frame filled with a luma ramp.
func newRawFrame(w, h, rotation int) *RawFrame {
	cw, ch := (w+1)/2, (h+1)/2
	y := make([]byte, w*h)
	for i := range y {
		y[i] = byte(i % 251)
	}
	cb := bytes.Repeat([]byte{128}, cw*ch)
	cr := bytes.Repeat([]byte{128}, cw*ch)
	return &RawFrame{Y: y, Cb: cb, Cr: cr, Width: w, Height: h, Rotation: rotation}
}

func TestConvert_CropsCentredSquare(t *testing.T) {
	tests := []struct {
		name     string
		w, h     int
		rotation int
		side     int
	}{
		{"landscape no rotation", 640, 480, 0, 128},
		{"landscape rotated 90", 640, 480, 90, 128},
		{"landscape rotated 270", 640, 480, 270, 96},
		{"exact fit", 64, 64, 180, 64},
		{"odd dimensions", 129, 131, 0, 128},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			img, ok := Convert(newRawFrame(tc.w, tc.h, tc.rotation), tc.side)
			if !ok {
				t.Fatal("Convert dropped a frame that fits the crop")
			}
			b := img.Bounds()
			if b.Dx() != tc.side || b.Dy() != tc.side {
				t.Errorf("crop size = %dx%d, want %dx%d", b.Dx(), b.Dy(), tc.side, tc.side)
			}
		})
	}
}

func TestConvert_DropsUndersizedFrames(t *testing.T) {
	for _, side := range []int{64, 96, 128} {
		for _, dim := range [][2]int{{side - 1, side}, {side, side - 1}, {100, 100}, {1, 1}} {
			if dim[0] >= side && dim[1] >= side {
				continue
			}
			for _, rot := range []int{0, 90, 180, 270} {
				img, ok := Convert(newRawFrame(dim[0], dim[1], rot), side)
				if ok || img != nil {
					t.Errorf("Convert(%dx%d rot %d, side %d) = %v, %v; want dropped",
						dim[0], dim[1], rot, side, img, ok)
				}
			}
		}
	}
}

func TestConvert_RotationDecidesFit(t *testing.T) {
	// 100x200 rotated by 90 becomes 200x100, too short for 128.
	if _, ok := Convert(newRawFrame(100, 200, 90), 128); ok {
		t.Error("expected drop for 100x200 rotated to 200x100 with side 128")
	}
	if _, ok := Convert(newRawFrame(130, 200, 90), 128); !ok {
		t.Error("expected 130x200 rotated to 200x130 to fit side 128")
	}
}

func TestConvert_RejectsUnusableFrames(t *testing.T) {
	short := newRawFrame(640, 480, 0)
	short.Y = short.Y[:len(short.Y)-1]

	noChroma := newRawFrame(640, 480, 0)
	noChroma.Cr = nil

	badStride := newRawFrame(640, 480, 0)
	badStride.YStride = 320

	tests := []struct {
		name string
		raw  *RawFrame
		side int
	}{
		{"nil frame", nil, 128},
		{"short luma plane", short, 128},
		{"missing chroma plane", noChroma, 128},
		{"stride narrower than width", badStride, 128},
		{"zero crop", newRawFrame(640, 480, 0), 0},
		{"negative crop", newRawFrame(640, 480, 0), -32},
		{"empty frame", &RawFrame{}, 64},
		{"overflowing width", &RawFrame{Width: 1 << 57, Height: 128, Subsampling: Subsample444}, 128},
		{"overflowing height", &RawFrame{Width: 128, Height: 1 << 60}, 128},
		{"max width", &RawFrame{Width: math.MaxInt, Height: 128, Subsampling: Subsample422}, 128},
		{"overflowing stride", &RawFrame{
			Y: make([]byte, 256), Cb: make([]byte, 64), Cr: make([]byte, 64),
			YStride: math.MaxInt / 2, Width: 128, Height: 128,
		}, 64},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if img, ok := Convert(tc.raw, tc.side); ok || img != nil {
				t.Errorf("Convert = %v, %v; want dropped", img, ok)
			}
		})
	}
}

func TestDecode_HugeGeometryOnEmptyPlanes(t *testing.T) {
	for _, sub := range []Subsampling{Subsample420, Subsample422, Subsample444} {
		raw := &RawFrame{Width: 1 << 57, Height: 128, Subsampling: sub}
		if img, ok := Decode(raw); ok || img != nil {
			t.Errorf("Decode(subsampling %d) = %v, %v; want rejected", sub, img, ok)
		}
	}
}

func TestPlaneFits(t *testing.T) {
	tests := []struct {
		name                  string
		n, stride, cols, rows int
		want                  bool
	}{
		{"exact", 16, 4, 4, 4, true},
		{"last row short stride", 14, 5, 4, 3, true},
		{"one byte short", 15, 4, 4, 4, false},
		{"empty plane", 0, 0, 0, 0, true},
		{"stride below cols", 64, 2, 4, 4, false},
		{"negative cols", 64, 4, -1, 4, false},
		{"huge rows", 64, 4, 4, math.MaxInt, false},
		{"huge stride", 64, math.MaxInt, 4, 2, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := planeFits(make([]byte, tc.n), tc.stride, tc.cols, tc.rows); got != tc.want {
				t.Errorf("planeFits = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestConvert_Deterministic(t *testing.T) {
	raw := newRawFrame(320, 240, 90)
	a, _ := Convert(raw, 96)
	b, _ := Convert(raw, 96)
	na, nb := a.(*image.NRGBA), b.(*image.NRGBA)
	if !bytes.Equal(na.Pix, nb.Pix) {
		t.Error("Convert is not deterministic for identical input")
	}
}

func TestRotate_Clockwise(t *testing.T) {
	red := color.NRGBA{R: 255, A: 255}
	blue := color.NRGBA{B: 255, A: 255}
	src := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	src.SetNRGBA(0, 0, red)
	src.SetNRGBA(1, 0, blue)

	tests := []struct {
		rotation int
		w, h     int
		redAt    image.Point
		blueAt   image.Point
	}{
		{0, 2, 1, image.Pt(0, 0), image.Pt(1, 0)},
		{90, 1, 2, image.Pt(0, 0), image.Pt(0, 1)},
		{180, 2, 1, image.Pt(1, 0), image.Pt(0, 0)},
		{270, 1, 2, image.Pt(0, 1), image.Pt(0, 0)},
		{-90, 1, 2, image.Pt(0, 1), image.Pt(0, 0)},
		{45, 2, 1, image.Pt(0, 0), image.Pt(1, 0)},
	}

	for _, tc := range tests {
		out := Rotate(src, tc.rotation)
		if out.Bounds().Dx() != tc.w || out.Bounds().Dy() != tc.h {
			t.Errorf("rotation %d: size %v, want %dx%d", tc.rotation, out.Bounds().Size(), tc.w, tc.h)
			continue
		}
		if got := out.NRGBAAt(tc.redAt.X, tc.redAt.Y); got != red {
			t.Errorf("rotation %d: red expected at %v, got %v", tc.rotation, tc.redAt, got)
		}
		if got := out.NRGBAAt(tc.blueAt.X, tc.blueAt.Y); got != blue {
			t.Errorf("rotation %d: blue expected at %v, got %v", tc.rotation, tc.blueAt, got)
		}
	}
}

func TestCropCenter_Offsets(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 5, 5))
	marker := color.NRGBA{G: 255, A: 255}
	src.SetNRGBA(1, 1, marker)

	out, ok := CropCenter(src, 3)
	if !ok {
		t.Fatal("CropCenter dropped a fitting image")
	}
	// (5-3)/2 = 1, so source (1,1) lands on (0,0).
	if got := out.(*image.NRGBA).NRGBAAt(0, 0); got != marker {
		t.Errorf("top-left of crop = %v, want %v", got, marker)
	}
}

func TestFromImage_RoundTripsGeometry(t *testing.T) {
	src := image.NewRGBA(image.Rect(10, 10, 74, 58))
	raw := FromImage(src, 90)
	if raw.Width != 64 || raw.Height != 48 {
		t.Errorf("size = %dx%d, want 64x48", raw.Width, raw.Height)
	}
	if w, h := raw.RotatedSize(); w != 48 || h != 64 {
		t.Errorf("rotated size = %dx%d, want 48x64", w, h)
	}
	if _, ok := Decode(raw); !ok {
		t.Error("FromImage produced an undecodable frame")
	}
}

func TestNormalizeRotation(t *testing.T) {
	tests := map[int]int{0: 0, 90: 90, 180: 180, 270: 270, 360: 0, 450: 90, -90: 270, 30: 0}
	for in, want := range tests {
		if got := NormalizeRotation(in); got != want {
			t.Errorf("NormalizeRotation(%d) = %d, want %d", in, got, want)
		}
	}
}
