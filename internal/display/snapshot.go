package display

import (
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"time"

	"github.com/WeebOrWeed/3d-streaming/internal/source"
)

// SnapshotSink is a headless Sink: it writes a PNG of the current display
// frame at most once per interval. Useful for checking the stream without a
// GUI attached.
type SnapshotSink struct {
	dir      string
	interval time.Duration
	last     time.Time
	seq      int
}

// NewSnapshotSink creates the output directory if needed.
func NewSnapshotSink(dir string, interval time.Duration) (*SnapshotSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &SnapshotSink{dir: dir, interval: interval}, nil
}

// Display writes the frame if enough time passed since the previous
// snapshot, otherwise drops it.
func (s *SnapshotSink) Display(frame *source.RawFrame) error {
	now := time.Now()
	if !s.last.IsZero() && now.Sub(s.last) < s.interval {
		return nil
	}
	s.last = now

	name := filepath.Join(s.dir, fmt.Sprintf("frame-%06d.png", s.seq))
	s.seq++

	f, err := os.Create(name)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, frame.RGBA())
}
