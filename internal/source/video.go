package source

import (
	"fmt"

	"github.com/pion/logging"
	"gocv.io/x/gocv"
)

// videoDecoder decodes frames out of a local file through OpenCV.
type videoDecoder struct {
	capture *gocv.VideoCapture
	bgr     gocv.Mat
	rgb     gocv.Mat
}

// Open probes a video file and returns a paced frame source for it.
func Open(path string, loggerFactory logging.LoggerFactory) (*FrameSource, error) {
	return OpenWithFPS(path, 0, loggerFactory)
}

// OpenWithFPS is Open with the container's frame rate replaced by fps when
// fps > 0, for files whose metadata reports a bogus rate.
func OpenWithFPS(path string, fps float64, loggerFactory logging.LoggerFactory) (*FrameSource, error) {
	capture, err := gocv.OpenVideoCapture(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidAsset, path, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("%w: %s: not a decodable file", ErrInvalidAsset, path)
	}

	asset := VideoAsset{
		Path:       path,
		Width:      int(capture.Get(gocv.VideoCaptureFrameWidth)),
		Height:     int(capture.Get(gocv.VideoCaptureFrameHeight)),
		FPS:        capture.Get(gocv.VideoCaptureFPS),
		FrameCount: int(capture.Get(gocv.VideoCaptureFrameCount)),
	}
	if fps > 0 {
		asset.FPS = fps
	}

	dec := &videoDecoder{
		capture: capture,
		bgr:     gocv.NewMat(),
		rgb:     gocv.NewMat(),
	}
	src, err := NewFrameSource(asset, dec, loggerFactory)
	if err != nil {
		dec.Close()
		return nil, err
	}

	log := loggerFactory.NewLogger("source")
	log.Infof("video loaded: %dx%d @ %.2ffps, %d frames",
		asset.Width, asset.Height, asset.FPS, asset.FrameCount)
	return src, nil
}

func (d *videoDecoder) Seek(index int) error {
	d.capture.Set(gocv.VideoCapturePosFrames, float64(index))
	return nil
}

func (d *videoDecoder) Decode() (*RawFrame, error) {
	if ok := d.capture.Read(&d.bgr); !ok || d.bgr.Empty() {
		return nil, fmt.Errorf("read returned no frame")
	}
	gocv.CvtColor(d.bgr, &d.rgb, gocv.ColorBGRToRGB)
	return &RawFrame{
		Pix:    d.rgb.ToBytes(),
		Width:  d.rgb.Cols(),
		Height: d.rgb.Rows(),
	}, nil
}

func (d *videoDecoder) Close() error {
	d.bgr.Close()
	d.rgb.Close()
	return d.capture.Close()
}
