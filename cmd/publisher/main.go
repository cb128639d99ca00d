package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pion/logging"

	"github.com/WeebOrWeed/3d-streaming/internal/api"
	"github.com/WeebOrWeed/3d-streaming/internal/encoders"
	"github.com/WeebOrWeed/3d-streaming/internal/rtc"
	"github.com/WeebOrWeed/3d-streaming/internal/source"
)

const (
	httpDefaultPort   = "3030"
	defaultStunServer = "stun:stun.l.google.com:19302"
)

func main() {
	videoPath := flag.String("video", "", "path to the side-by-side video file")
	httpPort := flag.String("http.port", httpDefaultPort, "HTTP listen port")
	stunServer := flag.String("stun.server", defaultStunServer, "STUN server URL (stun:)")
	fpsOverride := flag.Float64("fps.override", 0, "force a frame rate, for files with broken fps metadata")
	flag.Parse()

	if *videoPath == "" {
		log.Fatal("missing -video: path to a side-by-side video file")
	}

	loggerFactory := logging.NewDefaultLoggerFactory()
	logger := loggerFactory.NewLogger("publisher")

	// Probe the asset once so a bad path or broken file fails at startup,
	// not on the first offer.
	probe, err := source.OpenWithFPS(*videoPath, *fpsOverride, loggerFactory)
	if err != nil {
		log.Fatalf("can't open video: %v", err)
	}
	probe.Close()

	enc, err := encoders.NewEncoderServiceFor(encoders.H264Codec)
	if err != nil {
		log.Fatalf("can't create encoder service: %v", err)
	}

	engine := rtc.NewPionEngine(*stunServer, enc, nil, loggerFactory)
	lifecycle := rtc.NewLifecycle(engine, func() (*source.FrameSource, error) {
		return source.OpenWithFPS(*videoPath, *fpsOverride, loggerFactory)
	}, loggerFactory)

	go func() {
		for ev := range lifecycle.Events() {
			logger.Infof("session state: %v", ev.State)
		}
	}()

	errs := make(chan error, 2)
	go func() {
		logger.Infof("publisher signaling on port %s", *httpPort)
		errs <- http.ListenAndServe(fmt.Sprintf(":%s", *httpPort), api.NewRouter(lifecycle, loggerFactory))
	}()

	go func() {
		interrupt := make(chan os.Signal, 1)
		signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
		errs <- fmt.Errorf("received %v signal", <-interrupt)
	}()

	err = <-errs
	lifecycle.Reset()
	logger.Infof("%s, exiting", err)
}
