package decoders

import (
	"io"

	"github.com/WeebOrWeed/3d-streaming/internal/source"
)

// Service creates decoder instances
type Service interface {
	NewDecoder(codec VideoCodec) (Decoder, error)
	Supports(codec VideoCodec) bool
}

// Decoder turns encoded access units into raw frames. Decode returns a nil
// frame when the payload didn't complete a picture yet.
type Decoder interface {
	io.Closer
	Decode(payload []byte) (*source.RawFrame, error)
}

// VideoCodec identifies the wire codec a decoder consumes
type VideoCodec = int

const (
	// H264Codec h264
	H264Codec VideoCodec = iota
)
