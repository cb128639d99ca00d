// Package stereo converts decoded side-by-side stereo frames into
// display-ready pixel layouts. Every transform is a pure function of the
// input frame and the supplied params, so the receive loop can call it from
// any goroutine.
package stereo

import (
	"errors"
	"fmt"
	"image"

	"github.com/nfnt/resize"

	"github.com/WeebOrWeed/3d-streaming/internal/source"
)

// Mode selects how a side-by-side stereo pair is laid out for display.
type Mode int

const (
	// CrossEye swaps the eyes so the viewer crosses their eyes to fuse.
	CrossEye Mode = iota
	// Parallel keeps the eyes in place for parallel (wall-eyed) viewing.
	Parallel
	// AnaglyphRedCyan encodes depth into the red vs. green/blue channels.
	AnaglyphRedCyan
	// AnaglyphGreenMagenta encodes depth into the green vs. red/blue channels.
	AnaglyphGreenMagenta
)

var modeNames = map[Mode]string{
	CrossEye:             "cross-eye",
	Parallel:             "parallel",
	AnaglyphRedCyan:      "anaglyph-red-cyan",
	AnaglyphGreenMagenta: "anaglyph-green-magenta",
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ParseMode maps a flag value back to a Mode.
func ParseMode(s string) (Mode, error) {
	for m, name := range modeNames {
		if name == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown stereo mode %q", s)
}

// Offset bounds, matching the range the display slider exposes.
const (
	MinOffset = 10
	MaxOffset = 100
)

// ErrInvalidParam is returned for an offset outside [MinOffset, MaxOffset].
// Out-of-range offsets are rejected rather than clamped so a disparity test
// harness sees the failure instead of silently altered geometry.
var ErrInvalidParam = errors.New("stereo offset out of range")

// Params carries the display configuration, owned by the UI layer and read
// once per transformed frame.
type Params struct {
	Mode   Mode
	Offset int
}

// Validate rejects offsets outside the allowed range.
func (p Params) Validate() error {
	if p.Offset < MinOffset || p.Offset > MaxOffset {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrInvalidParam, p.Offset, MinOffset, MaxOffset)
	}
	return nil
}

func (p Params) validate(width int) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.Offset >= width/2 {
		return fmt.Errorf("%w: %d too large for %d-wide frame", ErrInvalidParam, p.Offset, width)
	}
	return nil
}

// Transform converts a side-by-side stereo frame into a display frame of the
// same dimensions. The input is assumed to hold the left eye in columns
// [0, w/2) and the right eye in [w/2, w). Same input always yields
// byte-identical output.
func Transform(frame *source.RawFrame, p Params) (*source.RawFrame, error) {
	if err := p.validate(frame.Width); err != nil {
		return nil, err
	}

	var out *source.RawFrame
	switch p.Mode {
	case CrossEye:
		out = sideBySide(frame, p.Offset, true)
	case Parallel:
		out = sideBySide(frame, p.Offset, false)
	case AnaglyphRedCyan:
		out = anaglyph(frame, p.Offset, false)
	case AnaglyphGreenMagenta:
		out = anaglyph(frame, p.Offset, true)
	default:
		return nil, fmt.Errorf("unknown stereo mode %v", p.Mode)
	}

	out.Index = frame.Index
	out.PTS = frame.PTS
	return out, nil
}

// sideBySide builds the two display halves from offset-trimmed crops of the
// full frame. Each crop drops `offset` columns from one edge, is resized to
// half width with newH = half*h/(w-offset) (full frame width in the aspect
// denominator, not the crop's own), and is vertically centered with floor
// margins.
func sideBySide(frame *source.RawFrame, offset int, swapEyes bool) *source.RawFrame {
	w, h := frame.Width, frame.Height
	half := w / 2
	newH := half * h / (w - offset)
	yOff := (h - newH) / 2

	// Crop trimmed at the left edge and crop trimmed at the right edge,
	// both full height, both (w-offset) wide.
	fromLeft := cropColumns(frame, offset, w)
	fromRight := cropColumns(frame, 0, w-offset)

	leftHalf := resizeRGB(fromLeft, half, newH)
	rightHalf := resizeRGB(fromRight, half, newH)
	if !swapEyes {
		leftHalf, rightHalf = rightHalf, leftHalf
	}

	out := &source.RawFrame{
		Pix:    make([]byte, w*h*3),
		Width:  w,
		Height: h,
	}
	blitRGB(out, leftHalf, 0, yOff)
	blitRGB(out, rightHalf, half, yOff)
	return out
}

// anaglyph writes the frame's luminance unshifted into one channel and a
// copy shifted right by `offset` columns into the two others. The first
// `offset` columns of the shifted copy stay black.
func anaglyph(frame *source.RawFrame, offset int, greenMagenta bool) *source.RawFrame {
	w, h := frame.Width, frame.Height
	gray := luminance(frame)

	out := &source.RawFrame{
		Pix:    make([]byte, w*h*3),
		Width:  w,
		Height: h,
	}
	for y := 0; y < h; y++ {
		row := y * w
		for x := 0; x < w; x++ {
			var shifted byte
			if x >= offset {
				shifted = gray[row+x-offset]
			}
			i := (row + x) * 3
			if greenMagenta {
				out.Pix[i] = shifted
				out.Pix[i+1] = gray[row+x]
				out.Pix[i+2] = shifted
			} else {
				out.Pix[i] = gray[row+x]
				out.Pix[i+1] = shifted
				out.Pix[i+2] = shifted
			}
		}
	}
	return out
}

// luminance converts interleaved RGB to single-channel gray using the same
// fixed-point BT.601 weights OpenCV uses, so both ends of a regression
// harness compute identical bytes.
func luminance(frame *source.RawFrame) []byte {
	gray := make([]byte, frame.Width*frame.Height)
	for i, j := 0, 0; j < len(gray); i, j = i+3, j+1 {
		r := int(frame.Pix[i])
		g := int(frame.Pix[i+1])
		b := int(frame.Pix[i+2])
		gray[j] = byte((4899*r + 9617*g + 1868*b + 8192) >> 14)
	}
	return gray
}

// cropColumns returns the full-height crop covering columns [x0, x1).
func cropColumns(frame *source.RawFrame, x0, x1 int) *source.RawFrame {
	cw := x1 - x0
	crop := &source.RawFrame{
		Pix:    make([]byte, cw*frame.Height*3),
		Width:  cw,
		Height: frame.Height,
	}
	for y := 0; y < frame.Height; y++ {
		src := (y*frame.Width + x0) * 3
		dst := y * cw * 3
		copy(crop.Pix[dst:dst+cw*3], frame.Pix[src:src+cw*3])
	}
	return crop
}

// resizeRGB scales a crop to the given size with bilinear interpolation, the
// one interpolation policy used everywhere so pixel deltas reproduce.
func resizeRGB(frame *source.RawFrame, width, height int) *source.RawFrame {
	scaled := resize.Resize(uint(width), uint(height), frame.RGBA(), resize.Bilinear).(*image.RGBA)

	out := &source.RawFrame{
		Pix:    make([]byte, width*height*3),
		Width:  width,
		Height: height,
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			src := scaled.PixOffset(x, y)
			dst := (y*width + x) * 3
			out.Pix[dst] = scaled.Pix[src]
			out.Pix[dst+1] = scaled.Pix[src+1]
			out.Pix[dst+2] = scaled.Pix[src+2]
		}
	}
	return out
}

// blitRGB copies src into dst with its top-left corner at (x0, y0).
func blitRGB(dst, src *source.RawFrame, x0, y0 int) {
	for y := 0; y < src.Height; y++ {
		di := ((y0+y)*dst.Width + x0) * 3
		si := y * src.Width * 3
		copy(dst.Pix[di:di+src.Width*3], src.Pix[si:si+src.Width*3])
	}
}
