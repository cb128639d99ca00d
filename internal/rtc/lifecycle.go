package rtc

import (
	"fmt"
	"sync"
	"time"

	"github.com/pion/logging"

	"github.com/WeebOrWeed/3d-streaming/internal/source"
)

// teardownGrace is how long Reset waits after closing a session so the
// engine's asynchronous close callbacks finish before a new session reuses
// the transport resources.
const teardownGrace = 100 * time.Millisecond

// SourceFactory builds a fresh outbound frame source for each new publisher
// session.
type SourceFactory func() (*source.FrameSource, error)

// Event is a tagged lifecycle transition published on the Events channel.
type Event struct {
	State SessionState
}

// Lifecycle owns at most one media session and serializes every mutating
// operation under one mutex: a signaling request that arrives while another
// is in flight waits instead of racing the teardown. Every new negotiation
// discards the previous session completely rather than renegotiating in
// place; reconnects glitch briefly but can never inherit stale state.
type Lifecycle struct {
	engine    Engine
	newSource SourceFactory
	log       logging.LeveledLogger

	mu      sync.Mutex
	session Session
	state   SessionState
	events  chan Event
}

// NewLifecycle creates an idle lifecycle. newSource may be nil for
// receiver-only processes.
func NewLifecycle(engine Engine, newSource SourceFactory, loggerFactory logging.LoggerFactory) *Lifecycle {
	return &Lifecycle{
		engine:    engine,
		newSource: newSource,
		log:       loggerFactory.NewLogger("lifecycle"),
		state:     StateIdle,
		events:    make(chan Event, 16),
	}
}

// Events delivers state transitions to at most one consumer. Events are
// dropped, not queued, if the consumer falls behind.
func (l *Lifecycle) Events() <-chan Event {
	return l.events
}

// State returns the current session state.
func (l *Lifecycle) State() SessionState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Reset tears down the current session, if any, and returns the lifecycle to
// idle. It is idempotent and safe to call from any state; with no active
// session it is a no-op.
func (l *Lifecycle) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resetLocked()
}

func (l *Lifecycle) resetLocked() {
	if l.session == nil {
		l.setStateLocked(StateIdle)
		return
	}

	l.setStateLocked(StateClosing)
	if err := l.session.Close(); err != nil {
		l.log.Warnf("error closing session: %v", err)
	}
	l.session = nil

	// Let the engine finish its asynchronous teardown callbacks before a
	// new session can be allocated.
	time.Sleep(teardownGrace)
	l.setStateLocked(StateIdle)
}

// BeginSession discards any previous session, allocates a fresh one from the
// engine and attaches the media track for the given role. The returned
// handle is only good for inspection; all further signaling goes through the
// lifecycle.
func (l *Lifecycle) BeginSession(role Role) (Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.resetLocked()

	sess, err := l.engine.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineInit, err)
	}

	sess.OnStateChange(func(s EngineState) {
		l.onEngineState(sess, s)
	})

	if role == RolePublisher {
		src, err := l.newSource()
		if err != nil {
			sess.Close()
			return nil, err
		}
		if err := sess.AttachTrack(src, SendOnly); err != nil {
			src.Close()
			sess.Close()
			return nil, fmt.Errorf("%w: attach track: %v", ErrEngineInit, err)
		}
	} else {
		if err := sess.AttachTrack(nil, RecvOnly); err != nil {
			sess.Close()
			return nil, fmt.Errorf("%w: attach transceiver: %v", ErrEngineInit, err)
		}
	}

	l.session = sess
	l.setStateLocked(StateNegotiating)
	return sess, nil
}

// ApplyRemoteOffer sets the peer's offer on the current session and returns
// the generated answer. Publisher side. A rejection resets the lifecycle so
// the next offer starts from a clean slate.
func (l *Lifecycle) ApplyRemoteOffer(offer SessionDescription) (SessionDescription, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.session == nil {
		return SessionDescription{}, fmt.Errorf("%w: apply remote offer", ErrNegotiation)
	}

	if err := l.session.SetRemoteDescription(offer); err != nil {
		l.resetLocked()
		return SessionDescription{}, fmt.Errorf("%w: set remote description: %v", ErrNegotiation, err)
	}

	answer, err := l.session.CreateAnswer()
	if err != nil {
		l.resetLocked()
		return SessionDescription{}, fmt.Errorf("%w: create answer: %v", ErrNegotiation, err)
	}

	if err := l.session.SetLocalDescription(answer); err != nil {
		l.resetLocked()
		return SessionDescription{}, fmt.Errorf("%w: set local description: %v", ErrNegotiation, err)
	}

	// The session's view includes the gathered candidates, the bare answer
	// from CreateAnswer does not.
	return l.session.LocalDescription(), nil
}

// CreateLocalOffer generates the local offer on a freshly begun session.
// Receiver side.
func (l *Lifecycle) CreateLocalOffer() (SessionDescription, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.session == nil || l.state != StateNegotiating {
		return SessionDescription{}, fmt.Errorf("%w: create local offer in state %v", ErrState, l.state)
	}

	offer, err := l.session.CreateOffer()
	if err != nil {
		return SessionDescription{}, fmt.Errorf("%w: create offer: %v", ErrNegotiation, err)
	}
	if err := l.session.SetLocalDescription(offer); err != nil {
		return SessionDescription{}, fmt.Errorf("%w: set local description: %v", ErrNegotiation, err)
	}
	return l.session.LocalDescription(), nil
}

// ApplyRemoteAnswer sets the peer's answer on a negotiating session.
// Receiver side.
func (l *Lifecycle) ApplyRemoteAnswer(answer SessionDescription) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.session == nil || l.state != StateNegotiating {
		return fmt.Errorf("%w: apply remote answer in state %v", ErrState, l.state)
	}

	if err := l.session.SetRemoteDescription(answer); err != nil {
		l.resetLocked()
		return fmt.Errorf("%w: set remote description: %v", ErrNegotiation, err)
	}
	return nil
}

// onEngineState reacts to observer callbacks from the engine. Callbacks for
// a session that has already been replaced are ignored.
func (l *Lifecycle) onEngineState(sess Session, s EngineState) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.session != sess {
		return
	}

	l.log.Infof("engine state: %v", s)
	switch s {
	case EngineConnected:
		l.setStateLocked(StateConnected)
	case EngineFailed:
		l.log.Errorf("session transport failed")
		l.setStateLocked(StateClosed)
	case EngineClosed:
		l.setStateLocked(StateClosed)
	}
}

func (l *Lifecycle) setStateLocked(s SessionState) {
	if l.state == s {
		return
	}
	l.state = s
	select {
	case l.events <- Event{State: s}:
	default:
	}
}
