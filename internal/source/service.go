package source

import (
	"errors"
	"image"
	"io"
)

// PTSClockRate is the RTP video clock every emitted timestamp is expressed in.
const PTSClockRate = 90000

// ErrInvalidAsset is returned when a video file can't be opened or reports
// unusable properties (zero frame rate, zero frame count).
var ErrInvalidAsset = errors.New("invalid video asset")

// VideoAsset describes a decodable, seekable video file. It is created when
// the file is probed and never mutated afterwards.
type VideoAsset struct {
	Path       string
	Width      int
	Height     int
	FPS        float64
	FrameCount int
}

// RawFrame is a single decoded frame: interleaved RGB, Width*Height*3 bytes,
// tagged with its index in the asset and a presentation timestamp on the
// 90 kHz clock.
type RawFrame struct {
	Pix    []byte
	Width  int
	Height int
	Index  int
	PTS    int64
}

// RGBA copies the frame into an *image.RGBA, the pixel layout the resizer and
// the encoders work with.
func (f *RawFrame) RGBA() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for i, j := 0, 0; i < len(f.Pix); i, j = i+3, j+4 {
		img.Pix[j] = f.Pix[i]
		img.Pix[j+1] = f.Pix[i+1]
		img.Pix[j+2] = f.Pix[i+2]
		img.Pix[j+3] = 0xff
	}
	return img
}

// Decoder seeks and decodes single frames out of an asset. Implementations
// don't fill in the Index or PTS fields, that's the frame source's job.
type Decoder interface {
	io.Closer
	Seek(index int) error
	Decode() (*RawFrame, error)
}
