// Package overlay draws telemetry text onto presented images.
package overlay

import (
	"fmt"
	"image"
	"math"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"
)

// Config controls the text panel.
type Config struct {
	// MinFontSize and MaxFontSize bound the font size in points. The size
	// scales with image width between the two.
	MinFontSize float64
	MaxFontSize float64

	// Margin is the padding around the panel, in pixels.
	Margin float64

	// PanelAlpha is the opacity of the panel background (0 to 1).
	PanelAlpha float64
}

// DefaultConfig returns readable defaults for 128px to 1024px images.
func DefaultConfig() Config {
	return Config{
		MinFontSize: 7,
		MaxFontSize: 28,
		Margin:      4,
		PanelAlpha:  0.55,
	}
}

// Renderer annotates images. Calls are serialized because truetype faces
// keep a glyph cache that is not safe for concurrent use.
type Renderer struct {
	cfg  Config
	font *truetype.Font

	mu    sync.Mutex
	faces map[int]font.Face
}

// New parses the embedded font.
func New(cfg Config) (*Renderer, error) {
	if cfg.MinFontSize <= 0 || cfg.MaxFontSize < cfg.MinFontSize {
		return nil, fmt.Errorf("overlay: bad font size range %.1f-%.1f", cfg.MinFontSize, cfg.MaxFontSize)
	}
	f, err := truetype.Parse(gomono.TTF)
	if err != nil {
		return nil, fmt.Errorf("overlay: parse font: %w", err)
	}
	return &Renderer{cfg: cfg, font: f, faces: make(map[int]font.Face)}, nil
}

// FontSize returns the point size used for an image w pixels wide.
func (r *Renderer) FontSize(w int) float64 {
	size := float64(w) / 18
	return math.Max(r.cfg.MinFontSize, math.Min(r.cfg.MaxFontSize, size))
}

// face returns the cached face for size. Callers hold r.mu.
func (r *Renderer) face(size float64) font.Face {
	key := int(size * 10)
	if f, ok := r.faces[key]; ok {
		return f
	}
	f := truetype.NewFace(r.font, &truetype.Options{Size: size})
	r.faces[key] = f
	return f
}

// Annotate returns a copy of img with lines drawn in a panel at the bottom
// left. img itself is not modified.
func (r *Renderer) Annotate(img image.Image, lines ...string) image.Image {
	if img == nil || len(lines) == 0 {
		return img
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	dc := gg.NewContextForImage(img)
	w := dc.Width()
	face := r.face(r.FontSize(w))
	dc.SetFontFace(face)

	lineHeight := dc.FontHeight() * 1.3
	var textW float64
	for _, l := range lines {
		if lw, _ := dc.MeasureString(l); lw > textW {
			textW = lw
		}
	}

	m := r.cfg.Margin
	panelH := lineHeight*float64(len(lines)) + m
	top := float64(dc.Height()) - panelH - m

	dc.SetRGBA(0, 0, 0, r.cfg.PanelAlpha)
	dc.DrawRectangle(m, top, textW+2*m, panelH)
	dc.Fill()

	dc.SetRGB(1, 1, 1)
	for i, l := range lines {
		y := top + m/2 + lineHeight*float64(i) + dc.FontHeight()
		dc.DrawString(l, 2*m, y)
	}
	return dc.Image()
}
