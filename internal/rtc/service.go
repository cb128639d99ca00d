// Package rtc owns the media session lifecycle. The Lifecycle state machine
// serializes signaling operations against a media engine that is only known
// through the Engine/Session interfaces; the pion implementation lives in
// pion.go.
package rtc

import (
	"errors"
	"io"

	"github.com/WeebOrWeed/3d-streaming/internal/source"
)

// Role says which end of the stream a session plays.
type Role int

const (
	// RolePublisher sends the video track.
	RolePublisher Role = iota
	// RoleReceiver consumes the video track.
	RoleReceiver
)

// SessionState is the lifecycle's view of its single session.
type SessionState int

const (
	// StateIdle no session exists.
	StateIdle SessionState = iota
	// StateNegotiating a session exists and descriptions are being exchanged.
	StateNegotiating
	// StateConnected media is flowing.
	StateConnected
	// StateClosing teardown is in progress.
	StateClosing
	// StateClosed the engine reported the session gone.
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// EngineState is a transition reported by the media engine's observer
// callback.
type EngineState int

const (
	// EngineConnecting transport negotiation is under way.
	EngineConnecting EngineState = iota
	// EngineConnected the transport is established.
	EngineConnected
	// EngineFailed the transport failed and won't recover.
	EngineFailed
	// EngineClosed the session was torn down.
	EngineClosed
)

func (s EngineState) String() string {
	switch s {
	case EngineConnecting:
		return "connecting"
	case EngineConnected:
		return "connected"
	case EngineFailed:
		return "failed"
	case EngineClosed:
		return "closed"
	}
	return "unknown"
}

// Direction of the media track attached to a session.
type Direction int

const (
	// SendOnly the session publishes the track.
	SendOnly Direction = iota
	// RecvOnly the session consumes a remote track.
	RecvOnly
)

// SessionDescription is an SDP blob plus its type, the only thing the two
// peers exchange.
type SessionDescription struct {
	SDP  string `json:"sdp"`
	Type string `json:"type"`
}

// Session is one live media session inside the engine. Callers receive it as
// an opaque handle; every mutation goes through the lifecycle's serialized
// entry points.
type Session interface {
	io.Closer

	// AttachTrack wires the media track. src must be non-nil for SendOnly
	// and is owned by the session from then on; for RecvOnly a receive-only
	// transceiver is registered and src is ignored.
	AttachTrack(src *source.FrameSource, direction Direction) error

	// OnStateChange registers the observer for engine transitions. The
	// engine delivers callbacks on their own goroutine, never from inside a
	// signaling call.
	OnStateChange(func(EngineState))

	CreateOffer() (SessionDescription, error)
	CreateAnswer() (SessionDescription, error)
	// SetLocalDescription applies the description and blocks until ICE
	// gathering completes, so LocalDescription afterwards carries the full
	// candidate set. The signaling contract has no trickle channel.
	SetLocalDescription(SessionDescription) error
	SetRemoteDescription(SessionDescription) error
	LocalDescription() SessionDescription

	// Frames is the receive API: decoded remote frames, RecvOnly sessions
	// only. Stale frames are dropped rather than queued.
	Frames() <-chan *source.RawFrame
}

// Engine is the external media engine collaborator.
type Engine interface {
	CreateSession() (Session, error)
}

// Error taxonomy. Callers distinguish categories with errors.Is.
var (
	// ErrEngineInit the engine could not allocate a session; the lifecycle
	// stays idle and the call may be retried.
	ErrEngineInit = errors.New("engine could not allocate a session")
	// ErrNegotiation a remote description was rejected.
	ErrNegotiation = errors.New("negotiation failed")
	// ErrState an operation needed an active session and there was none.
	ErrState = errors.New("no active session")
)
