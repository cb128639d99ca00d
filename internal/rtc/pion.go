package rtc

import (
	"errors"
	"fmt"
	"image"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/interceptor"
	"github.com/pion/logging"
	"github.com/pion/rtcp"
	"github.com/pion/rtp/codecs"
	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/samplebuilder"

	"github.com/WeebOrWeed/3d-streaming/internal/decoders"
	"github.com/WeebOrWeed/3d-streaming/internal/encoders"
	"github.com/WeebOrWeed/3d-streaming/internal/source"
)

const (
	pliInterval        = 3 * time.Second
	sampleBuilderDepth = 64
	remoteFrameBuffer  = 4
)

// PionEngine is the pion-webrtc implementation of the Engine interface.
type PionEngine struct {
	stunServer    string
	encService    encoders.Service
	decService    decoders.Service
	loggerFactory logging.LoggerFactory
}

// NewPionEngine creates a media engine backed by pion/webrtc. decService may
// be nil on the publisher side.
func NewPionEngine(stun string, enc encoders.Service, dec decoders.Service, loggerFactory logging.LoggerFactory) *PionEngine {
	return &PionEngine{
		stunServer:    stun,
		encService:    enc,
		decService:    dec,
		loggerFactory: loggerFactory,
	}
}

// CreateSession allocates a peer connection with the default codecs and
// interceptors registered.
func (e *PionEngine) CreateSession() (Session, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}
	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return nil, err
	}
	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(registry),
	)

	pc, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{e.stunServer}},
		},
	})
	if err != nil {
		return nil, err
	}

	sess := &pionSession{
		engine: e,
		pc:     pc,
		log:    e.loggerFactory.NewLogger("engine"),
		frames: make(chan *source.RawFrame, remoteFrameBuffer),
		stop:   make(chan struct{}),
	}

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		sess.log.Infof("connection state: %s", state)
		sess.dispatch(state)
	})
	pc.OnSignalingStateChange(func(state webrtc.SignalingState) {
		sess.log.Debugf("signaling state: %s", state)
	})

	return sess, nil
}

// pionSession wraps one webrtc.PeerConnection.
type pionSession struct {
	engine *PionEngine
	pc     *webrtc.PeerConnection
	log    logging.LeveledLogger

	mu       sync.Mutex
	observer func(EngineState)
	streamer *rtcStreamer

	frames    chan *source.RawFrame
	stop      chan struct{}
	closeOnce sync.Once
}

func (s *pionSession) OnStateChange(observer func(EngineState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observer = observer
}

// dispatch maps pion connection states onto the observer contract. Observers
// run on their own goroutine so a state change can never re-enter a caller's
// lock from inside a signaling call.
func (s *pionSession) dispatch(state webrtc.PeerConnectionState) {
	var engineState EngineState
	switch state {
	case webrtc.PeerConnectionStateConnecting:
		engineState = EngineConnecting
	case webrtc.PeerConnectionStateConnected:
		engineState = EngineConnected
		s.mu.Lock()
		if s.streamer != nil {
			s.streamer.start()
		}
		s.mu.Unlock()
	case webrtc.PeerConnectionStateFailed:
		engineState = EngineFailed
	case webrtc.PeerConnectionStateClosed:
		engineState = EngineClosed
	default:
		return
	}

	s.mu.Lock()
	observer := s.observer
	s.mu.Unlock()
	if observer != nil {
		go observer(engineState)
	}
}

func (s *pionSession) AttachTrack(src *source.FrameSource, direction Direction) error {
	switch direction {
	case SendOnly:
		return s.attachSendTrack(src)
	case RecvOnly:
		return s.attachReceiver()
	}
	return fmt.Errorf("unsupported direction %d", direction)
}

func (s *pionSession) attachSendTrack(src *source.FrameSource) error {
	if src == nil {
		return fmt.Errorf("send-only session needs a frame source")
	}

	track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypeH264,
		ClockRate: source.PTSClockRate,
	}, "video", uuid.New().String())
	if err != nil {
		return err
	}

	if _, err := s.pc.AddTransceiverFromTrack(track, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionSendonly,
	}); err != nil {
		return err
	}

	asset := src.Asset()
	encoder, err := s.engine.encService.NewEncoder(
		image.Pt(asset.Width, asset.Height), int(asset.FPS+0.5))
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.streamer = newRTCStreamer(track, src, encoder, asset.FPS, s.engine.loggerFactory)
	s.mu.Unlock()
	return nil
}

func (s *pionSession) attachReceiver() error {
	if s.engine.decService == nil || !s.engine.decService.Supports(decoders.H264Codec) {
		return fmt.Errorf("no h264 decoder available")
	}

	if _, err := s.pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		return err
	}

	s.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		s.log.Infof("remote track: id=%s codec=%s", track.ID(), track.Codec().MimeType)
		go s.consumeTrack(track)
	})
	return nil
}

// consumeTrack depacketizes the remote track, decodes complete access units
// and publishes raw frames on the receive channel. A slow consumer loses the
// oldest frame, never delays the track reader.
func (s *pionSession) consumeTrack(track *webrtc.TrackRemote) {
	decoder, err := s.engine.decService.NewDecoder(decoders.H264Codec)
	if err != nil {
		s.log.Errorf("decoder init: %v", err)
		return
	}
	defer decoder.Close()

	go s.pliLoop(uint32(track.SSRC()))

	builder := samplebuilder.New(sampleBuilderDepth, &codecs.H264Packet{}, source.PTSClockRate)
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.log.Warnf("track read: %v", err)
			}
			return
		}
		builder.Push(pkt)

		for sample := builder.Pop(); sample != nil; sample = builder.Pop() {
			frame, err := decoder.Decode(sample.Data)
			if err != nil {
				s.log.Warnf("decode: %v", err)
				continue
			}
			if frame == nil {
				continue
			}
			frame.PTS = int64(sample.PacketTimestamp)
			s.publishFrame(frame)
		}
	}
}

func (s *pionSession) publishFrame(frame *source.RawFrame) {
	for {
		select {
		case s.frames <- frame:
			return
		default:
		}
		select {
		case <-s.frames:
		default:
		}
	}
}

// pliLoop periodically asks the sender for a keyframe so a receiver that
// joins or loses packets recovers a decodable picture.
func (s *pionSession) pliLoop(ssrc uint32) {
	ticker := time.NewTicker(pliInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			err := s.pc.WriteRTCP([]rtcp.Packet{
				&rtcp.PictureLossIndication{MediaSSRC: ssrc},
			})
			if err != nil {
				return
			}
		}
	}
}

func (s *pionSession) CreateOffer() (SessionDescription, error) {
	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		return SessionDescription{}, err
	}
	return fromPion(offer), nil
}

func (s *pionSession) CreateAnswer() (SessionDescription, error) {
	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		return SessionDescription{}, err
	}
	return fromPion(answer), nil
}

func (s *pionSession) SetLocalDescription(desc SessionDescription) error {
	gatherComplete := webrtc.GatheringCompletePromise(s.pc)
	if err := s.pc.SetLocalDescription(toPion(desc)); err != nil {
		return err
	}
	<-gatherComplete
	return nil
}

func (s *pionSession) SetRemoteDescription(desc SessionDescription) error {
	if desc.Type == "offer" {
		if err := validateVideoOffer(desc.SDP); err != nil {
			return err
		}
	}
	return s.pc.SetRemoteDescription(toPion(desc))
}

func (s *pionSession) LocalDescription() SessionDescription {
	local := s.pc.LocalDescription()
	if local == nil {
		return SessionDescription{}
	}
	return fromPion(*local)
}

func (s *pionSession) Frames() <-chan *source.RawFrame {
	return s.frames
}

// Close stops the streamer and the PLI loop and closes the peer connection.
// The engine reports completion through the state observer.
func (s *pionSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.stop)
		s.mu.Lock()
		if s.streamer != nil {
			s.streamer.close()
		}
		s.mu.Unlock()
		err = s.pc.Close()
	})
	return err
}

// validateVideoOffer rejects offers with no video section before they reach
// the engine.
func validateVideoOffer(rawSDP string) error {
	parsed := sdp.SessionDescription{}
	if err := parsed.Unmarshal([]byte(rawSDP)); err != nil {
		return fmt.Errorf("malformed sdp: %w", err)
	}
	for _, md := range parsed.MediaDescriptions {
		if md.MediaName.Media == "video" {
			return nil
		}
	}
	return fmt.Errorf("offer carries no video section")
}

func toPion(desc SessionDescription) webrtc.SessionDescription {
	return webrtc.SessionDescription{
		SDP:  desc.SDP,
		Type: webrtc.NewSDPType(desc.Type),
	}
}

func fromPion(desc webrtc.SessionDescription) SessionDescription {
	return SessionDescription{
		SDP:  desc.SDP,
		Type: desc.Type.String(),
	}
}
