// Package display drives the receive side: remote frames in, stereo
// transform applied, display frames out to a sink. The actual GUI surface is
// whatever implements Sink.
package display

import (
	"context"
	"sync"

	"github.com/pion/logging"

	"github.com/WeebOrWeed/3d-streaming/internal/source"
	"github.com/WeebOrWeed/3d-streaming/internal/stereo"
)

// Sink receives display-ready frames.
type Sink interface {
	Display(frame *source.RawFrame) error
}

// Pipeline applies the stereo transform to every received frame. The params
// are read per frame, so mode and offset can change while video is playing.
type Pipeline struct {
	frames <-chan *source.RawFrame
	sink   Sink
	log    logging.LeveledLogger

	mu     sync.RWMutex
	params stereo.Params
}

// NewPipeline validates the initial params and wires the frame channel to
// the sink.
func NewPipeline(frames <-chan *source.RawFrame, sink Sink, params stereo.Params,
	loggerFactory logging.LoggerFactory) (*Pipeline, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Pipeline{
		frames: frames,
		sink:   sink,
		log:    loggerFactory.NewLogger("display"),
		params: params,
	}, nil
}

// SetParams switches mode/offset for subsequent frames. Out-of-range offsets
// are rejected and the previous params stay in effect.
func (p *Pipeline) SetParams(params stereo.Params) error {
	if err := params.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	p.params = params
	p.mu.Unlock()
	return nil
}

// Params returns the params currently applied to incoming frames.
func (p *Pipeline) Params() stereo.Params {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.params
}

// Run consumes frames until the context is canceled or the channel closes.
// A frame the transform rejects is dropped with a log line; a sink failure
// stops the pipeline.
func (p *Pipeline) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-p.frames:
			if !ok {
				return nil
			}
			out, err := stereo.Transform(frame, p.Params())
			if err != nil {
				p.log.Warnf("transform: %v", err)
				continue
			}
			if err := p.sink.Display(out); err != nil {
				return err
			}
		}
	}
}
