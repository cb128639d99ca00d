package decoders

import (
	"fmt"
)

type decoderFactory = func() (Decoder, error)

// Index of supported codecs, each decoder should register itself
// It's implemented this way to support conditional compilation
// of each decoder.
var registeredDecoders = make(map[VideoCodec]decoderFactory, 1)

// DecoderService creates instances of decoders
type DecoderService struct {
}

// NewDecoderService creates a decoder factory
func NewDecoderService() Service {
	return &DecoderService{}
}

// NewDecoder creates an instance of a decoder of the selected codec
func (*DecoderService) NewDecoder(codec VideoCodec) (Decoder, error) {
	factory, found := registeredDecoders[codec]
	if !found {
		return nil, fmt.Errorf("codec not supported, rebuild with the matching decoder tag")
	}
	return factory()
}

// Supports returns a boolean indicating if the codec is supported
func (*DecoderService) Supports(codec VideoCodec) bool {
	_, found := registeredDecoders[codec]
	return found
}
