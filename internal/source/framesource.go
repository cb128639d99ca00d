package source

import (
	"fmt"
	"math"
	"time"

	"github.com/pion/logging"
)

// FrameSource paces a finite frame sequence to wall-clock real time, looping
// forever. The target frame index is derived from elapsed time rather than a
// per-call increment, so a jittery caller gets frames dropped or repeated to
// stay synchronized instead of drifting.
//
// FrameSource is not safe for concurrent use; the streamer loop is its only
// caller.
type FrameSource struct {
	asset VideoAsset
	dec   Decoder
	log   logging.LeveledLogger

	now   func() time.Time
	start time.Time
	index int
}

// NewFrameSource wraps a decoder with the pacing algorithm. It fails with
// ErrInvalidAsset if the asset reports a zero frame rate or frame count,
// which would make timestamp derivation divide by zero later.
func NewFrameSource(asset VideoAsset, dec Decoder, loggerFactory logging.LoggerFactory) (*FrameSource, error) {
	if asset.FPS <= 0 {
		return nil, fmt.Errorf("%w: frame rate %v", ErrInvalidAsset, asset.FPS)
	}
	if asset.FrameCount <= 0 {
		return nil, fmt.Errorf("%w: frame count %d", ErrInvalidAsset, asset.FrameCount)
	}
	return &FrameSource{
		asset: asset,
		dec:   dec,
		log:   loggerFactory.NewLogger("source"),
		now:   time.Now,
	}, nil
}

// Asset returns the immutable properties of the underlying file.
func (s *FrameSource) Asset() VideoAsset {
	return s.asset
}

// Next decodes the frame the wall clock says should be on screen right now.
// The sequence is infinite: when elapsed time passes the end of the asset the
// source loops back to frame zero and restarts its clock. A decode failure at
// the target index falls back to frame zero instead of propagating, playback
// must not die on one bad frame.
func (s *FrameSource) Next() (*RawFrame, error) {
	if s.start.IsZero() {
		s.start = s.now()
	}

	elapsed := s.now().Sub(s.start)
	target := int(elapsed.Seconds() * s.asset.FPS)
	if target >= s.asset.FrameCount {
		s.start = s.now()
		target = 0
	}

	frame, err := s.decodeAt(target)
	if err != nil {
		s.log.Warnf("decode failed at frame %d, looping: %v", target, err)
		s.start = s.now()
		target = 0
		if frame, err = s.decodeAt(0); err != nil {
			s.start = time.Time{}
			s.index = 0
			return nil, fmt.Errorf("decode failed at frame 0: %w", err)
		}
	}

	s.index = target
	frame.Index = target
	frame.PTS = int64(math.Round(float64(target) / s.asset.FPS * PTSClockRate))
	return frame, nil
}

func (s *FrameSource) decodeAt(index int) (*RawFrame, error) {
	if err := s.dec.Seek(index); err != nil {
		return nil, err
	}
	return s.dec.Decode()
}

// Close releases the underlying decoder.
func (s *FrameSource) Close() error {
	return s.dec.Close()
}
