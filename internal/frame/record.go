// Package frame defines the per-frame observation record and its binary
// serialization.
package frame

import (
	"errors"
	"fmt"
	"image"
)

// ErrMalformedFrame is returned when a record's buffers disagree in shape.
var ErrMalformedFrame = errors.New("frame: malformed record")

// Camera holds the captured buffers of one frame. Depth is never persisted.
type Camera struct {
	RGB   *image.RGBA
	Depth []float32
	Mask  *image.Gray16
}

// Record is one captured observation. Annotations hold poses, object ids
// and scene metadata; values must be msgpack-encodable: maps keyed by
// string, slices and arrays of encodable values, numbers, strings, bools and
// byte slices.
type Record struct {
	Camera      Camera
	Annotations map[string]any
}

// Validate checks that RGB, mask and depth describe the same H×W grid.
func (r *Record) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: nil record", ErrMalformedFrame)
	}
	c := r.Camera
	if c.RGB == nil || c.Mask == nil {
		return fmt.Errorf("%w: rgb and mask are required", ErrMalformedFrame)
	}
	rb, mb := c.RGB.Bounds(), c.Mask.Bounds()
	if rb.Empty() {
		return fmt.Errorf("%w: empty rgb image", ErrMalformedFrame)
	}
	if rb.Dx() != mb.Dx() || rb.Dy() != mb.Dy() {
		return fmt.Errorf("%w: rgb %dx%d vs mask %dx%d", ErrMalformedFrame, rb.Dx(), rb.Dy(), mb.Dx(), mb.Dy())
	}
	if c.Depth != nil && len(c.Depth) != rb.Dx()*rb.Dy() {
		return fmt.Errorf("%w: depth has %d values for %dx%d image", ErrMalformedFrame, len(c.Depth), rb.Dx(), rb.Dy())
	}
	return nil
}

// Size returns width and height of the frame.
func (r *Record) Size() (int, int) {
	b := r.Camera.RGB.Bounds()
	return b.Dx(), b.Dy()
}
