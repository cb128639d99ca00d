package rtc

import (
	"sync"
	"time"

	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"

	"github.com/WeebOrWeed/3d-streaming/internal/encoders"
	"github.com/WeebOrWeed/3d-streaming/internal/source"
)

// rtcStreamer is the transport tick: it pulls the wall-clock-paced frame
// from the source once per frame interval, encodes it and hands it to the
// outbound track.
type rtcStreamer struct {
	track    *webrtc.TrackLocalStaticSample
	src      *source.FrameSource
	encoder  encoders.Encoder
	interval time.Duration
	log      logging.LeveledLogger

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
}

func newRTCStreamer(track *webrtc.TrackLocalStaticSample, src *source.FrameSource,
	encoder encoders.Encoder, fps float64, loggerFactory logging.LoggerFactory) *rtcStreamer {
	return &rtcStreamer{
		track:    track,
		src:      src,
		encoder:  encoder,
		interval: time.Duration(float64(time.Second) / fps),
		log:      loggerFactory.NewLogger("streamer"),
		stop:     make(chan struct{}),
	}
}

func (s *rtcStreamer) start() {
	s.startOnce.Do(func() {
		go s.startStream()
	})
}

func (s *rtcStreamer) startStream() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if err := s.streamFrame(); err != nil {
				s.log.Warnf("streamer: %v", err)
				return
			}
		}
	}
}

func (s *rtcStreamer) streamFrame() error {
	frame, err := s.src.Next()
	if err != nil {
		return err
	}
	payload, err := s.encoder.Encode(frame.RGBA())
	if err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	return s.track.WriteSample(media.Sample{
		Data:     payload,
		Duration: s.interval,
	})
}

// close stops the tick loop and releases the encoder and the frame source.
func (s *rtcStreamer) close() {
	s.stopOnce.Do(func() {
		close(s.stop)
		if err := s.encoder.Close(); err != nil {
			s.log.Warnf("encoder close: %v", err)
		}
		if err := s.src.Close(); err != nil {
			s.log.Warnf("source close: %v", err)
		}
	})
}
