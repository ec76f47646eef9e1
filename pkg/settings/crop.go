// Package settings holds the user-selected configuration read by the
// pipeline: the active executor tier and the square crop size.
package settings

import (
	"fmt"
	"strconv"
	"strings"
)

// Crop bounds. Valid sizes are MinCrop, MinCrop+StepCrop, ... MaxCrop.
const (
	MinCrop  = 64
	MaxCrop  = 128
	StepCrop = 32

	DefaultCrop Crop = MaxCrop
)

// Crop is a square crop side length in pixels. The zero value is not valid;
// use NewCrop or DefaultCrop.
type Crop int

// NewCrop snaps side onto the crop grid: clamped to [MinCrop, MaxCrop] and
// rounded down to a step boundary.
func NewCrop(side int) Crop {
	if side <= MinCrop {
		return MinCrop
	}
	if side >= MaxCrop {
		return MaxCrop
	}
	return Crop(MinCrop + (side-MinCrop)/StepCrop*StepCrop)
}

// ParseCrop accepts "96" or "96x96".
func ParseCrop(s string) (Crop, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if w, h, ok := strings.Cut(s, "x"); ok {
		if w != h {
			return 0, fmt.Errorf("crop %q is not square", s)
		}
		s = w
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("parse crop %q: %w", s, err)
	}
	c := Crop(n)
	if !c.Valid() {
		return 0, fmt.Errorf("crop %d not in {%s}", n, strings.Join(cropNames(), ", "))
	}
	return c, nil
}

// Valid reports whether c lies on the crop grid.
func (c Crop) Valid() bool {
	return c >= MinCrop && c <= MaxCrop && (c-MinCrop)%StepCrop == 0
}

// Increment returns the next larger size, or c at MaxCrop.
func (c Crop) Increment() Crop {
	return NewCrop(int(c) + StepCrop)
}

// Decrement returns the next smaller size, or c at MinCrop.
func (c Crop) Decrement() Crop {
	return NewCrop(int(c) - StepCrop)
}

// Side returns the side length as an int.
func (c Crop) Side() int { return int(c) }

// String returns the "NxN" label.
func (c Crop) String() string {
	return fmt.Sprintf("%dx%d", int(c), int(c))
}

// MarshalText implements encoding.TextMarshaler.
func (c Crop) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Crop) UnmarshalText(b []byte) error {
	v, err := ParseCrop(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Crops lists every valid size, smallest first.
func Crops() []Crop {
	var out []Crop
	for c := Crop(MinCrop); c <= MaxCrop; c += StepCrop {
		out = append(out, c)
	}
	return out
}

func cropNames() []string {
	var names []string
	for _, c := range Crops() {
		names = append(names, strconv.Itoa(int(c)))
	}
	return names
}
