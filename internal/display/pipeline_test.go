package display

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pion/logging"

	"github.com/WeebOrWeed/3d-streaming/internal/source"
	"github.com/WeebOrWeed/3d-streaming/internal/stereo"
)

type captureSink struct {
	frames []*source.RawFrame
	err    error
}

func (s *captureSink) Display(frame *source.RawFrame) error {
	if s.err != nil {
		return s.err
	}
	s.frames = append(s.frames, frame)
	return nil
}

func testFrame(index int) *source.RawFrame {
	const w, h = 64, 48
	frame := &source.RawFrame{
		Pix:    make([]byte, w*h*3),
		Width:  w,
		Height: h,
		Index:  index,
		PTS:    int64(index) * 3000,
	}
	for i := range frame.Pix {
		frame.Pix[i] = 200
	}
	return frame
}

func TestNewPipelineRejectsBadParams(t *testing.T) {
	frames := make(chan *source.RawFrame)
	_, err := NewPipeline(frames, &captureSink{}, stereo.Params{Mode: stereo.CrossEye, Offset: 5},
		logging.NewDefaultLoggerFactory())
	if !errors.Is(err, stereo.ErrInvalidParam) {
		t.Fatalf("expected ErrInvalidParam, got %v", err)
	}
}

func TestPipelineTransformsAndStopsOnChannelClose(t *testing.T) {
	frames := make(chan *source.RawFrame, 2)
	sink := &captureSink{}
	params := stereo.Params{Mode: stereo.AnaglyphRedCyan, Offset: 10}
	pipeline, err := NewPipeline(frames, sink, params, logging.NewDefaultLoggerFactory())
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	frames <- testFrame(0)
	frames <- testFrame(1)
	close(frames)

	if err := pipeline.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(sink.frames) != 2 {
		t.Fatalf("sink saw %d frames, expected 2", len(sink.frames))
	}
	out := sink.frames[1]
	if out.Width != 64 || out.Height != 48 {
		t.Errorf("output %dx%d, expected input dimensions", out.Width, out.Height)
	}
	if out.Index != 1 || out.PTS != 3000 {
		t.Errorf("frame timing not carried: index=%d pts=%d", out.Index, out.PTS)
	}
	// Anaglyph red-cyan of a uniform gray frame: red carries the luminance,
	// the first offset columns of green/blue stay black.
	if out.Pix[0] != 200 || out.Pix[1] != 0 || out.Pix[2] != 0 {
		t.Errorf("first pixel = (%d,%d,%d)", out.Pix[0], out.Pix[1], out.Pix[2])
	}
}

func TestPipelineDropsUntransformableFrames(t *testing.T) {
	frames := make(chan *source.RawFrame, 2)
	sink := &captureSink{}
	params := stereo.Params{Mode: stereo.CrossEye, Offset: 100}
	pipeline, err := NewPipeline(frames, sink, params, logging.NewDefaultLoggerFactory())
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	// 64 wide: offset 100 is valid for the slider but too large for the
	// frame, so the frame is dropped and the pipeline keeps running.
	frames <- testFrame(0)
	close(frames)

	if err := pipeline.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(sink.frames) != 0 {
		t.Fatalf("sink saw %d frames, expected 0", len(sink.frames))
	}
}

func TestPipelineStopsOnSinkError(t *testing.T) {
	frames := make(chan *source.RawFrame, 1)
	sinkErr := errors.New("display gone")
	pipeline, err := NewPipeline(frames, &captureSink{err: sinkErr},
		stereo.Params{Mode: stereo.Parallel, Offset: 10}, logging.NewDefaultLoggerFactory())
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	frames <- testFrame(0)
	if err := pipeline.Run(context.Background()); !errors.Is(err, sinkErr) {
		t.Fatalf("Run = %v, expected sink error", err)
	}
}

func TestPipelineStopsOnContextCancel(t *testing.T) {
	frames := make(chan *source.RawFrame)
	pipeline, err := NewPipeline(frames, &captureSink{},
		stereo.Params{Mode: stereo.CrossEye, Offset: 10}, logging.NewDefaultLoggerFactory())
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- pipeline.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run = %v, expected context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("pipeline did not stop on cancel")
	}
}

func TestSetParamsValidatesAndApplies(t *testing.T) {
	frames := make(chan *source.RawFrame)
	initial := stereo.Params{Mode: stereo.CrossEye, Offset: 20}
	pipeline, err := NewPipeline(frames, &captureSink{}, initial, logging.NewDefaultLoggerFactory())
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	if err := pipeline.SetParams(stereo.Params{Mode: stereo.Parallel, Offset: 300}); !errors.Is(err, stereo.ErrInvalidParam) {
		t.Fatalf("expected ErrInvalidParam, got %v", err)
	}
	if got := pipeline.Params(); got != initial {
		t.Errorf("rejected params took effect: %+v", got)
	}

	next := stereo.Params{Mode: stereo.AnaglyphGreenMagenta, Offset: 30}
	if err := pipeline.SetParams(next); err != nil {
		t.Fatalf("SetParams: %v", err)
	}
	if got := pipeline.Params(); got != next {
		t.Errorf("params = %+v, expected %+v", got, next)
	}
}
