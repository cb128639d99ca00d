package rtc

import (
	"errors"
	"testing"

	"github.com/pion/logging"

	"github.com/WeebOrWeed/3d-streaming/internal/source"
)

// stubDecoder satisfies source.Decoder for publisher-role tests.
type stubDecoder struct{}

func (stubDecoder) Seek(int) error { return nil }
func (stubDecoder) Decode() (*source.RawFrame, error) {
	return &source.RawFrame{Pix: make([]byte, 16*8*3), Width: 16, Height: 8}, nil
}
func (stubDecoder) Close() error { return nil }

func stubSourceFactory() (*source.FrameSource, error) {
	asset := source.VideoAsset{Width: 16, Height: 8, FPS: 30, FrameCount: 10}
	return source.NewFrameSource(asset, stubDecoder{}, logging.NewDefaultLoggerFactory())
}

type fakeSession struct {
	observer func(EngineState)

	attachedSrc *source.FrameSource
	attachedDir Direction
	attachCalls int
	closeCalls  int

	failSetRemote bool
	failCreate    bool

	local SessionDescription
}

func (s *fakeSession) AttachTrack(src *source.FrameSource, dir Direction) error {
	s.attachCalls++
	s.attachedSrc = src
	s.attachedDir = dir
	return nil
}

func (s *fakeSession) OnStateChange(observer func(EngineState)) {
	s.observer = observer
}

func (s *fakeSession) CreateOffer() (SessionDescription, error) {
	if s.failCreate {
		return SessionDescription{}, errors.New("create failed")
	}
	return SessionDescription{SDP: "offer-sdp", Type: "offer"}, nil
}

func (s *fakeSession) CreateAnswer() (SessionDescription, error) {
	if s.failCreate {
		return SessionDescription{}, errors.New("create failed")
	}
	return SessionDescription{SDP: "answer-sdp", Type: "answer"}, nil
}

func (s *fakeSession) SetLocalDescription(desc SessionDescription) error {
	// Candidates would be appended here by a real engine.
	s.local = SessionDescription{SDP: desc.SDP + "+candidates", Type: desc.Type}
	return nil
}

func (s *fakeSession) SetRemoteDescription(SessionDescription) error {
	if s.failSetRemote {
		return errors.New("incompatible description")
	}
	return nil
}

func (s *fakeSession) LocalDescription() SessionDescription {
	return s.local
}

func (s *fakeSession) Frames() <-chan *source.RawFrame { return nil }

func (s *fakeSession) Close() error {
	s.closeCalls++
	return nil
}

type fakeEngine struct {
	sessions   []*fakeSession
	failCreate bool
}

func (e *fakeEngine) CreateSession() (Session, error) {
	if e.failCreate {
		return nil, errors.New("engine down")
	}
	sess := &fakeSession{}
	e.sessions = append(e.sessions, sess)
	return sess, nil
}

func newTestLifecycle(engine *fakeEngine) *Lifecycle {
	return NewLifecycle(engine, stubSourceFactory, logging.NewDefaultLoggerFactory())
}

func TestResetOnIdleIsNoOp(t *testing.T) {
	engine := &fakeEngine{}
	l := newTestLifecycle(engine)

	l.Reset()
	l.Reset()
	if l.State() != StateIdle {
		t.Fatalf("state after idle resets: %v", l.State())
	}
	if len(engine.sessions) != 0 {
		t.Fatal("reset should not allocate sessions")
	}
}

func TestBeginSessionPublisherAttachesSendTrack(t *testing.T) {
	engine := &fakeEngine{}
	l := newTestLifecycle(engine)

	sess, err := l.BeginSession(RolePublisher)
	if err != nil {
		t.Fatalf("BeginSession: %v", err)
	}
	if l.State() != StateNegotiating {
		t.Errorf("state = %v, expected negotiating", l.State())
	}

	fake := sess.(*fakeSession)
	if fake.attachCalls != 1 || fake.attachedDir != SendOnly || fake.attachedSrc == nil {
		t.Errorf("publisher attach: calls=%d dir=%v src=%v", fake.attachCalls, fake.attachedDir, fake.attachedSrc)
	}
}

func TestBeginSessionReceiverAttachesRecvOnly(t *testing.T) {
	engine := &fakeEngine{}
	l := newTestLifecycle(engine)

	sess, err := l.BeginSession(RoleReceiver)
	if err != nil {
		t.Fatalf("BeginSession: %v", err)
	}
	fake := sess.(*fakeSession)
	if fake.attachedDir != RecvOnly || fake.attachedSrc != nil {
		t.Errorf("receiver attach: dir=%v src=%v", fake.attachedDir, fake.attachedSrc)
	}
}

func TestBeginSessionReplacesPreviousSession(t *testing.T) {
	engine := &fakeEngine{}
	l := newTestLifecycle(engine)

	if _, err := l.BeginSession(RoleReceiver); err != nil {
		t.Fatalf("first BeginSession: %v", err)
	}
	if _, err := l.BeginSession(RoleReceiver); err != nil {
		t.Fatalf("second BeginSession: %v", err)
	}

	if len(engine.sessions) != 2 {
		t.Fatalf("engine allocated %d sessions, expected 2", len(engine.sessions))
	}
	if engine.sessions[0].closeCalls != 1 {
		t.Errorf("first session closed %d times, expected 1", engine.sessions[0].closeCalls)
	}
	if engine.sessions[1].closeCalls != 0 {
		t.Errorf("live session was closed")
	}
}

func TestBeginSessionEngineFailure(t *testing.T) {
	engine := &fakeEngine{failCreate: true}
	l := newTestLifecycle(engine)

	_, err := l.BeginSession(RolePublisher)
	if !errors.Is(err, ErrEngineInit) {
		t.Fatalf("expected ErrEngineInit, got %v", err)
	}
	if l.State() != StateIdle {
		t.Errorf("state after failed begin: %v", l.State())
	}
}

func TestApplyRemoteOfferWithoutSession(t *testing.T) {
	l := newTestLifecycle(&fakeEngine{})

	_, err := l.ApplyRemoteOffer(SessionDescription{SDP: "x", Type: "offer"})
	if !errors.Is(err, ErrNegotiation) {
		t.Fatalf("expected ErrNegotiation, got %v", err)
	}
}

func TestApplyRemoteOfferReturnsGatheredAnswer(t *testing.T) {
	engine := &fakeEngine{}
	l := newTestLifecycle(engine)

	if _, err := l.BeginSession(RolePublisher); err != nil {
		t.Fatalf("BeginSession: %v", err)
	}
	answer, err := l.ApplyRemoteOffer(SessionDescription{SDP: "remote", Type: "offer"})
	if err != nil {
		t.Fatalf("ApplyRemoteOffer: %v", err)
	}
	if answer.SDP != "answer-sdp+candidates" || answer.Type != "answer" {
		t.Errorf("answer = %+v, expected the gathered local description", answer)
	}
}

func TestRejectedOfferResetsLifecycle(t *testing.T) {
	engine := &fakeEngine{}
	l := newTestLifecycle(engine)

	if _, err := l.BeginSession(RolePublisher); err != nil {
		t.Fatalf("BeginSession: %v", err)
	}
	engine.sessions[0].failSetRemote = true

	_, err := l.ApplyRemoteOffer(SessionDescription{SDP: "bad", Type: "offer"})
	if !errors.Is(err, ErrNegotiation) {
		t.Fatalf("expected ErrNegotiation, got %v", err)
	}
	if l.State() != StateIdle {
		t.Errorf("state after rejected offer: %v, expected idle", l.State())
	}
	if engine.sessions[0].closeCalls != 1 {
		t.Errorf("rejected session closed %d times, expected 1", engine.sessions[0].closeCalls)
	}

	// The next offer starts clean.
	if _, err := l.BeginSession(RolePublisher); err != nil {
		t.Fatalf("BeginSession after reset: %v", err)
	}
	if _, err := l.ApplyRemoteOffer(SessionDescription{SDP: "good", Type: "offer"}); err != nil {
		t.Fatalf("ApplyRemoteOffer after reset: %v", err)
	}
}

func TestCreateLocalOfferRequiresNegotiatingState(t *testing.T) {
	l := newTestLifecycle(&fakeEngine{})

	_, err := l.CreateLocalOffer()
	if !errors.Is(err, ErrState) {
		t.Fatalf("expected ErrState, got %v", err)
	}
}

func TestApplyRemoteAnswerRequiresNegotiatingState(t *testing.T) {
	engine := &fakeEngine{}
	l := newTestLifecycle(engine)

	err := l.ApplyRemoteAnswer(SessionDescription{SDP: "x", Type: "answer"})
	if !errors.Is(err, ErrState) {
		t.Fatalf("idle: expected ErrState, got %v", err)
	}

	if _, err := l.BeginSession(RoleReceiver); err != nil {
		t.Fatalf("BeginSession: %v", err)
	}
	if err := l.ApplyRemoteAnswer(SessionDescription{SDP: "x", Type: "answer"}); err != nil {
		t.Fatalf("negotiating: %v", err)
	}
}

func TestEngineStateDrivesSessionState(t *testing.T) {
	engine := &fakeEngine{}
	l := newTestLifecycle(engine)

	if _, err := l.BeginSession(RoleReceiver); err != nil {
		t.Fatalf("BeginSession: %v", err)
	}
	sess := engine.sessions[0]
	if sess.observer == nil {
		t.Fatal("observer not registered")
	}

	sess.observer(EngineConnected)
	if l.State() != StateConnected {
		t.Errorf("after EngineConnected: %v", l.State())
	}
	sess.observer(EngineClosed)
	if l.State() != StateClosed {
		t.Errorf("after EngineClosed: %v", l.State())
	}
}

func TestStaleObserverIgnored(t *testing.T) {
	engine := &fakeEngine{}
	l := newTestLifecycle(engine)

	if _, err := l.BeginSession(RoleReceiver); err != nil {
		t.Fatalf("first BeginSession: %v", err)
	}
	stale := engine.sessions[0].observer
	if _, err := l.BeginSession(RoleReceiver); err != nil {
		t.Fatalf("second BeginSession: %v", err)
	}

	stale(EngineFailed)
	if l.State() != StateNegotiating {
		t.Errorf("stale callback changed state to %v", l.State())
	}
}

func TestEventsReportTransitions(t *testing.T) {
	engine := &fakeEngine{}
	l := newTestLifecycle(engine)

	if _, err := l.BeginSession(RoleReceiver); err != nil {
		t.Fatalf("BeginSession: %v", err)
	}
	l.Reset()

	want := []SessionState{StateNegotiating, StateClosing, StateIdle}
	for i, expected := range want {
		select {
		case ev := <-l.Events():
			if ev.State != expected {
				t.Fatalf("event %d: got %v, expected %v", i, ev.State, expected)
			}
		default:
			t.Fatalf("event %d (%v) missing", i, expected)
		}
	}
}

func TestEventOverflowDropsInsteadOfBlocking(t *testing.T) {
	engine := &fakeEngine{}
	l := newTestLifecycle(engine)

	// Eight renegotiations produce more transitions than the channel
	// buffers. Nothing reads the channel, so the sends must drop instead of
	// wedging the lifecycle.
	for i := 0; i < 8; i++ {
		if _, err := l.BeginSession(RoleReceiver); err != nil {
			t.Fatalf("BeginSession %d: %v", i, err)
		}
	}
	if l.State() != StateNegotiating {
		t.Fatalf("state after churn: %v", l.State())
	}
}
